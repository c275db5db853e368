package orchestrator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumehq/lume/internal/conversation"
)

func TestNewTurnState_EmptyPhaseStartsIdle(t *testing.T) {
	st := NewTurnState(Seed{ThreadID: "t1"})
	assert.Equal(t, conversation.PhaseIdle, st.Phase)
	assert.NotNil(t, st.Context)
	assert.Empty(t, st.Messages)
}

func TestNewTurnState_CopiesSeedMessages(t *testing.T) {
	seed := Seed{
		ThreadID: "t1",
		Messages: []conversation.Message{
			{Role: conversation.RoleUser, Text: "hello"},
		},
	}
	st := NewTurnState(seed)
	st.AppendUser("second")

	assert.Len(t, seed.Messages, 1)
	assert.Len(t, st.Messages, 2)
}

func TestApply_ReplyAppendsAssistantMessage(t *testing.T) {
	st := NewTurnState(Seed{ThreadID: "t1", Phase: conversation.PhaseNormal})
	st.AppendUser("show my tasks")

	st.apply(NodeTask, Updates{Reply: "You have 3 open tasks."})

	require.Len(t, st.Messages, 2)
	assert.Equal(t, conversation.RoleAssistant, st.Messages[1].Role)
	assert.Equal(t, "You have 3 open tasks.", conversation.LastAssistant(st.Messages))
}

func TestApply_ZeroValuedFieldsLeaveStateUnchanged(t *testing.T) {
	st := NewTurnState(Seed{ThreadID: "t1", Phase: conversation.PhaseNormal})
	st.Intent = "add_task"
	st.Confidence = 0.9
	st.NeedsClarification = true

	st.apply(NodeTask, Updates{})

	assert.Equal(t, conversation.PhaseNormal, st.Phase)
	assert.Equal(t, "add_task", st.Intent)
	assert.Equal(t, 0.9, st.Confidence)
	assert.True(t, st.NeedsClarification)
}

func TestApply_ConfidencePointerDistinguishesUnsetFromZero(t *testing.T) {
	st := NewTurnState(Seed{ThreadID: "t1"})
	st.Confidence = 0.8

	st.apply(NodeRouter, Updates{Confidence: Float64(0)})
	assert.Equal(t, 0.0, st.Confidence)

	st.apply(NodeRouter, Updates{NeedsClarification: Bool(false)})
	assert.False(t, st.NeedsClarification)
}

func TestApply_ContextNilValueDeletesKey(t *testing.T) {
	st := NewTurnState(Seed{
		ThreadID: "t1",
		Context:  map[string]any{"task_scheduling": true, "timezone": "UTC"},
	})

	st.apply(NodeCalendar, Updates{Context: map[string]any{
		"task_scheduling": nil,
		"last_event":      "standup",
	}})

	_, ok := st.Context["task_scheduling"]
	assert.False(t, ok)
	assert.Equal(t, "UTC", st.Context["timezone"])
	assert.Equal(t, "standup", st.Context["last_event"])
}

func TestApply_EntitiesMergePerKey(t *testing.T) {
	st := NewTurnState(Seed{ThreadID: "t1"})

	st.apply(NodeRouter, Updates{Entities: map[string]any{"title": "buy milk"}})
	st.apply(NodeTask, Updates{Entities: map[string]any{"priority": "high"}})

	assert.Equal(t, "buy milk", st.Entities["title"])
	assert.Equal(t, "high", st.Entities["priority"])
}

func TestApply_ScratchIsScopedToEmittingNode(t *testing.T) {
	st := NewTurnState(Seed{ThreadID: "t1"})

	st.apply(NodeTask, Updates{Scratch: map[string]any{"draft": "buy milk"}})
	st.apply(NodeCalendar, Updates{Scratch: map[string]any{"draft": "standup"}})

	taskScratch := st.ScratchFor(NodeTask)
	v, ok := taskScratch.Get("draft")
	require.True(t, ok)
	assert.Equal(t, "buy milk", v)

	calScratch := st.ScratchFor(NodeCalendar)
	v, ok = calScratch.Get("draft")
	require.True(t, ok)
	assert.Equal(t, "standup", v)

	// A node with no writes sees nothing, not the siblings' values.
	_, ok = st.ScratchFor(NodeRouter).Get("draft")
	assert.False(t, ok)
}

func TestApply_ErrorAndHandoffReason(t *testing.T) {
	st := NewTurnState(Seed{ThreadID: "t1"})

	st.apply(NodeRouter, Updates{
		HandoffReason: "user asked for their calendar",
		Error:         "nlu timeout",
	})

	assert.Equal(t, "user asked for their calendar", st.HandoffReason)
	assert.Equal(t, "nlu timeout", st.Error)
}

func TestDestination_TaggedKinds(t *testing.T) {
	d := To(NodeCalendar)
	n, ok := d.Node()
	assert.True(t, ok)
	assert.Equal(t, NodeCalendar, n)
	assert.False(t, d.IsTerminal())
	assert.False(t, d.IsSuspend())

	assert.True(t, Terminal().IsTerminal())
	assert.True(t, Suspend().IsSuspend())

	var zero Destination
	_, ok = zero.Node()
	assert.False(t, ok)
	assert.Equal(t, "invalid", zero.String())
}

func TestNodeName_Valid(t *testing.T) {
	for _, n := range AllNodes() {
		assert.True(t, n.Valid(), string(n))
	}
	assert.False(t, NodeName("billing").Valid())
	assert.False(t, NodeName("").Valid())
}
