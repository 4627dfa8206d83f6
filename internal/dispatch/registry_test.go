package dispatch

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_Resolve(t *testing.T) {
	r := NewRegistry("static")
	r.Register("static", StaticResponder{Reply: "default"})
	r.Register("remote", StaticResponder{Reply: "remote"})
	r.Assign("agent-7", "remote")
	r.Assign("agent-9", "missing")

	resp, err := r.ResponderFor("agent-1")
	require.NoError(t, err)
	text, err := resp.Respond(context.Background(), "agent-1", "p", RespondContext{})
	require.NoError(t, err)
	assert.Equal(t, "default", text)

	resp, err = r.ResponderFor("agent-7")
	require.NoError(t, err)
	text, _ = resp.Respond(context.Background(), "agent-7", "p", RespondContext{})
	assert.Equal(t, "remote", text)

	_, err = r.ResponderFor("agent-9")
	assert.ErrorIs(t, err, ErrNoResponder)
	assert.Equal(t, []string{"remote", "static"}, r.Kinds())
	assert.Equal(t, "remote", r.KindOf("agent-7"))
}

func TestStaticResponder_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := StaticResponder{Reply: "x"}.Respond(ctx, "a", "p", RespondContext{})
	assert.ErrorIs(t, err, context.Canceled)
}
