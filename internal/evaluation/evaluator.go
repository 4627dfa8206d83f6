// Package evaluation scores agent responses against scenario success criteria.
package evaluation

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/jordanhubbard/gauntlet/internal/provider"
	"github.com/jordanhubbard/gauntlet/pkg/models"
)

// ErrEvaluatorUnavailable is what callers see in logs when every attempt
// failed. It never escapes the Pipeline.
var ErrEvaluatorUnavailable = errors.New("evaluator unavailable")

// ScoreRequest is one criterion to score.
type ScoreRequest struct {
	Criterion string
	Response  string
	Scenario  *models.TestScenario
	History   []models.HistoryEntry
}

// Evaluator scores a response against a single criterion on a 0-100 scale.
type Evaluator interface {
	Score(ctx context.Context, req ScoreRequest) (score float64, feedback string, err error)
}

// EvaluatorFunc adapts a function to Evaluator.
type EvaluatorFunc func(ctx context.Context, req ScoreRequest) (float64, string, error)

// Score calls f.
func (f EvaluatorFunc) Score(ctx context.Context, req ScoreRequest) (float64, string, error) {
	return f(ctx, req)
}

// JudgeEvaluator asks a chat model to grade the response.
type JudgeEvaluator struct {
	provider *provider.RegisteredProvider
	model    string
}

// NewJudgeEvaluator uses p; model overrides the provider's default when set.
func NewJudgeEvaluator(p *provider.RegisteredProvider, model string) *JudgeEvaluator {
	if model == "" {
		model = p.Model
	}
	return &JudgeEvaluator{provider: p, model: model}
}

const judgeSystemPrompt = `You grade answers to engineering skill tests.
Reply with a single integer score from 0 to 100 on the first line, then one sentence of feedback.`

var (
	scorePattern = regexp.MustCompile(`-?\d+(\.\d+)?`)
	outOfPattern = regexp.MustCompile(`^\s*(/\s*100|out of 100)`)
)

// Score sends the criterion and response to the judge model.
func (j *JudgeEvaluator) Score(ctx context.Context, req ScoreRequest) (float64, string, error) {
	var b strings.Builder
	if req.Scenario != nil {
		fmt.Fprintf(&b, "Scenario: %s (%s, %s %s)\n%s\n\n", req.Scenario.Title, req.Scenario.Category, req.Scenario.Tier, req.Scenario.Multiplier, req.Scenario.Description)
	}
	fmt.Fprintf(&b, "Criterion: %s\n\nAnswer:\n%s\n", req.Criterion, req.Response)

	resp, err := j.provider.Protocol.CreateChatCompletion(ctx, &provider.ChatCompletionRequest{
		Model: j.model,
		Messages: []provider.ChatMessage{
			{Role: "system", Content: judgeSystemPrompt},
			{Role: "user", Content: b.String()},
		},
		Temperature: 0,
	})
	if err != nil {
		return 0, "", fmt.Errorf("judge %s: %w", j.provider.ID, err)
	}
	return parseJudgement(resp.Text())
}

// parseJudgement takes the first number in text as the score and the rest
// as feedback.
func parseJudgement(text string) (float64, string, error) {
	loc := scorePattern.FindStringIndex(text)
	if loc == nil {
		return 0, "", fmt.Errorf("judge reply has no score: %q", truncate(text, 80))
	}
	score, err := strconv.ParseFloat(text[loc[0]:loc[1]], 64)
	if err != nil {
		return 0, "", fmt.Errorf("parse judge score: %w", err)
	}
	rest := outOfPattern.ReplaceAllString(text[loc[1]:], "")
	feedback := strings.TrimSpace(strings.TrimLeft(rest, ":.-) \t\n"))
	return clamp(score), feedback, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
