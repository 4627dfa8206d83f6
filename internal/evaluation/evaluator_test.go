package evaluation

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/jordanhubbard/gauntlet/internal/provider"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseJudgement(t *testing.T) {
	tests := []struct {
		in       string
		score    float64
		feedback string
	}{
		{"85\nSolid error handling.", 85, "Solid error handling."},
		{"Score: 72/100 - misses retries", 72, "misses retries"},
		{"140", 100, ""},
		{"-5: nothing useful", 0, "nothing useful"},
	}
	for _, tt := range tests {
		score, feedback, err := parseJudgement(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.score, score, tt.in)
		assert.Equal(t, tt.feedback, feedback, tt.in)
	}

	_, _, err := parseJudgement("looks fine to me")
	assert.Error(t, err)
}

func TestJudgeEvaluator(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req provider.ChatCompletionRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "judge-model", req.Model)
		require.Len(t, req.Messages, 2)
		assert.Contains(t, req.Messages[1].Content, "Criterion: Handles errors")

		_ = json.NewEncoder(w).Encode(provider.ChatCompletionResponse{
			Choices: []provider.Choice{{Message: provider.ChatMessage{Role: "assistant", Content: "91\nThorough."}}},
		})
	}))
	defer srv.Close()

	rp := &provider.RegisteredProvider{ID: "judge", Model: "default-model", Protocol: provider.NewOpenAIProvider(srv.URL, "", 0)}
	j := NewJudgeEvaluator(rp, "judge-model")

	score, feedback, err := j.Score(context.Background(), ScoreRequest{Criterion: "Handles errors", Response: "it does"})
	require.NoError(t, err)
	assert.Equal(t, 91.0, score)
	assert.Equal(t, "Thorough.", feedback)
}
