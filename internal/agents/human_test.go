package agents

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/lumehq/lume/internal/conversation"
)

func TestHumanHandler_SuspendsWithPackagedPrompt(t *testing.T) {
	h := NewHumanHandler(zap.NewNop())

	st := newState(conversation.PhaseNormal, "remind me about the thing")
	st.ClarificationPrompt = "Task or calendar event?"

	cmd := handle(h, st)
	assert.True(t, cmd.Dest.IsSuspend())
	assert.Equal(t, "Task or calendar event?", cmd.Updates.Reply)
	assert.Equal(t, "Task or calendar event?", cmd.Updates.ClarificationPrompt)
	require.NotNil(t, cmd.Updates.NeedsClarification)
	assert.True(t, *cmd.Updates.NeedsClarification)
}

func TestHumanHandler_DefaultPrompt(t *testing.T) {
	h := NewHumanHandler(zap.NewNop())

	st := newState(conversation.PhaseNormal, "???")
	cmd := handle(h, st)

	assert.True(t, cmd.Dest.IsSuspend())
	assert.Equal(t, defaultClarification, cmd.Updates.Reply)
}
