package orchestrator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/lumehq/lume/internal/checkpoint"
	"github.com/lumehq/lume/internal/conversation"
	"github.com/lumehq/lume/internal/logging"
)

func newTestService(t *testing.T, o *Orchestrator, store checkpoint.Store) *Service {
	t.Helper()
	svc, err := NewService(nil, o, store, zap.NewNop())
	require.NoError(t, err)
	return svc
}

func TestProcessMessage_NewThreadStartsIdleAndPersists(t *testing.T) {
	o := newTestOrchestrator(t, 8)

	var phaseSeenByRouter conversation.Phase
	router := &stubNode{name: NodeRouter, fn: func(_ context.Context, st *TurnState, _ Scratch) HandoffCommand {
		phaseSeenByRouter = st.Phase
		return HandoffCommand{
			Dest: Terminal(),
			Updates: Updates{
				Reply: "Hi! Let's set up your pillars first.",
				Phase: conversation.PhaseOnboardingPillars,
			},
		}
	}}
	require.NoError(t, o.Register(router))

	store := checkpoint.NewMemoryStore()
	svc := newTestService(t, o, store)

	res, err := svc.ProcessMessage(context.Background(), InboundMessage{
		ThreadID: "t1",
		Text:     "hello",
	})
	require.NoError(t, err)

	assert.Equal(t, conversation.PhaseIdle, phaseSeenByRouter)
	assert.Equal(t, "Hi! Let's set up your pillars first.", res.Response)

	persisted, err := store.Load(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, conversation.PhaseOnboardingPillars, persisted.Phase)
	require.Len(t, persisted.Messages, 2)
	assert.Equal(t, conversation.RoleUser, persisted.Messages[0].Role)
	assert.Equal(t, "hello", persisted.Messages[0].Text)
}

func TestProcessMessage_SecondTurnSeesPersistedState(t *testing.T) {
	o := newTestOrchestrator(t, 8)

	var phases []conversation.Phase
	var histories []int
	router := &stubNode{name: NodeRouter, fn: func(_ context.Context, st *TurnState, _ Scratch) HandoffCommand {
		phases = append(phases, st.Phase)
		histories = append(histories, len(st.Messages))
		return HandoffCommand{
			Dest:    Terminal(),
			Updates: Updates{Reply: "ok", Phase: conversation.PhaseNormal},
		}
	}}
	require.NoError(t, o.Register(router))

	svc := newTestService(t, o, checkpoint.NewMemoryStore())
	ctx := context.Background()

	_, err := svc.ProcessMessage(ctx, InboundMessage{ThreadID: "t1", Text: "first"})
	require.NoError(t, err)
	_, err = svc.ProcessMessage(ctx, InboundMessage{ThreadID: "t1", Text: "second"})
	require.NoError(t, err)

	require.Len(t, phases, 2)
	assert.Equal(t, conversation.PhaseIdle, phases[0])
	assert.Equal(t, conversation.PhaseNormal, phases[1])
	// Turn two: two persisted messages from turn one plus the new user message.
	assert.Equal(t, []int{1, 3}, histories)
}

func TestProcessMessage_SuspendThenResume(t *testing.T) {
	o := newTestOrchestrator(t, 8)

	var phasesSeen []conversation.Phase
	router := &stubNode{name: NodeRouter, fn: func(_ context.Context, st *TurnState, _ Scratch) HandoffCommand {
		phasesSeen = append(phasesSeen, st.Phase)
		if len(phasesSeen) == 1 {
			return HandoffCommand{
				Dest:    To(NodeHuman),
				Updates: Updates{HandoffReason: "ambiguous"},
			}
		}
		return HandoffCommand{Dest: Terminal(), Updates: Updates{Reply: "Got it, a task then."}}
	}}
	human := &stubNode{name: NodeHuman, cmd: HandoffCommand{
		Dest: Suspend(),
		Updates: Updates{
			Reply:               "Task or calendar event?",
			ClarificationPrompt: "Task or calendar event?",
		},
	}}
	require.NoError(t, o.Register(router, NodeHuman))
	require.NoError(t, o.Register(human, NodeRouter))

	store := checkpoint.NewMemoryStore()
	svc := newTestService(t, o, store)
	ctx := context.Background()

	res, err := svc.ProcessMessage(ctx, InboundMessage{ThreadID: "t1", Text: "remind me about the thing"})
	require.NoError(t, err)
	assert.True(t, res.Suspended)

	persisted, err := store.Load(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, conversation.PhaseClarifying, persisted.Phase)

	// The clarification reply resumes the thread as a fresh routed turn.
	res, err = svc.ProcessMessage(ctx, InboundMessage{ThreadID: "t1", Text: "a task"})
	require.NoError(t, err)
	assert.False(t, res.Suspended)
	assert.Equal(t, "Got it, a task then.", res.Response)

	require.Len(t, phasesSeen, 2)
	assert.Equal(t, conversation.PhaseNormal, phasesSeen[1])
	assert.False(t, res.State.NeedsClarification)
}

func TestProcessMessage_ErrorIncrementsRecoveryAttempts(t *testing.T) {
	o := newTestOrchestrator(t, 8)
	router := &stubNode{name: NodeRouter, cmd: HandoffCommand{
		Dest:    Terminal(),
		Updates: Updates{Reply: "something went sideways", Error: "nlu timeout"},
	}}
	require.NoError(t, o.Register(router))

	store := checkpoint.NewMemoryStore()
	svc := newTestService(t, o, store)
	ctx := context.Background()

	res, err := svc.ProcessMessage(ctx, InboundMessage{ThreadID: "t1", Text: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "nlu timeout", res.Err)

	persisted, err := store.Load(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, 1, persisted.ErrorRecoveryAttempts)

	_, err = svc.ProcessMessage(ctx, InboundMessage{ThreadID: "t1", Text: "hi again"})
	require.NoError(t, err)

	persisted, err = store.Load(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, 2, persisted.ErrorRecoveryAttempts)
}

func TestProcessMessage_HistoryWindowBoundsPersistedMessages(t *testing.T) {
	o := newTestOrchestrator(t, 8)
	router := &stubNode{name: NodeRouter, cmd: HandoffCommand{
		Dest:    Terminal(),
		Updates: Updates{Reply: "ok"},
	}}
	require.NoError(t, o.Register(router))

	store := checkpoint.NewMemoryStore()
	svc, err := NewService(&ServiceConfig{HistoryWindow: 4}, o, store, zap.NewNop())
	require.NoError(t, err)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := svc.ProcessMessage(ctx, InboundMessage{ThreadID: "t1", Text: "ping"})
		require.NoError(t, err)
	}

	persisted, err := store.Load(ctx, "t1")
	require.NoError(t, err)
	assert.Len(t, persisted.Messages, 4)
}

// ctxCapturingStore records the context passed to Load for inspection.
type ctxCapturingStore struct {
	checkpoint.Store
	loadCtx context.Context
}

func (s *ctxCapturingStore) Load(ctx context.Context, threadID string) (*checkpoint.State, error) {
	s.loadCtx = ctx
	return s.Store.Load(ctx, threadID)
}

func TestProcessMessage_TagsContextWithThreadID(t *testing.T) {
	o := newTestOrchestrator(t, 8)
	require.NoError(t, o.Register(&stubNode{name: NodeRouter, cmd: HandoffCommand{
		Dest:    Terminal(),
		Updates: Updates{Reply: "ok"},
	}}))

	store := &ctxCapturingStore{Store: checkpoint.NewMemoryStore()}
	svc := newTestService(t, o, store)

	_, err := svc.ProcessMessage(context.Background(), InboundMessage{ThreadID: "t1", Text: "hi"})
	require.NoError(t, err)

	require.NotNil(t, store.loadCtx)
	fields := logging.ContextFields(store.loadCtx)
	require.NotEmpty(t, fields)
	assert.Equal(t, zap.String("thread_id", "t1"), fields[len(fields)-1])
}

func TestProcessMessage_RejectsInvalidInput(t *testing.T) {
	o := newTestOrchestrator(t, 8)
	require.NoError(t, o.Register(&stubNode{name: NodeRouter, cmd: HandoffCommand{Dest: Terminal()}}))
	svc := newTestService(t, o, checkpoint.NewMemoryStore())

	_, err := svc.ProcessMessage(context.Background(), InboundMessage{Text: "no thread"})
	assert.Error(t, err)
	_, err = svc.ProcessMessage(context.Background(), InboundMessage{ThreadID: "t1"})
	assert.Error(t, err)
}

func TestNewService_Validation(t *testing.T) {
	o := newTestOrchestrator(t, 8)
	store := checkpoint.NewMemoryStore()

	_, err := NewService(nil, nil, store, zap.NewNop())
	assert.Error(t, err)
	_, err = NewService(nil, o, nil, zap.NewNop())
	assert.Error(t, err)

	svc, err := NewService(&ServiceConfig{HistoryWindow: -1}, o, store, nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultHistoryWindow, svc.historyWindow)
}
