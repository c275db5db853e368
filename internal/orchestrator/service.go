package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/lumehq/lume/internal/checkpoint"
	"github.com/lumehq/lume/internal/conversation"
	"github.com/lumehq/lume/internal/logging"
)

// DefaultHistoryWindow bounds how many messages persist across turns.
const DefaultHistoryWindow = 40

// InboundMessage is the transport-agnostic inbound contract. Platform is
// opaque to the core and only forwarded for handlers that need it.
type InboundMessage struct {
	ThreadID string         `json:"thread_id"`
	Text     string         `json:"message_text"`
	Platform map[string]any `json:"raw_platform_payload,omitempty"`
}

// ServiceConfig configures the turn service.
type ServiceConfig struct {
	// HistoryWindow is how many messages survive across turns (default: 40).
	HistoryWindow int
}

// DefaultServiceConfig returns sensible defaults.
func DefaultServiceConfig() *ServiceConfig {
	return &ServiceConfig{HistoryWindow: DefaultHistoryWindow}
}

// Service runs complete turns: it loads the thread's checkpoint, builds the
// TurnState, drives the orchestrator loop, and persists the surviving state.
// Turns for the same thread are serialized; different threads run
// concurrently without coordination.
type Service struct {
	orch          *Orchestrator
	store         checkpoint.Store
	logger        *zap.Logger
	historyWindow int

	// threadLocks holds one mutex per thread id, enforcing at most one
	// in-flight turn per thread.
	threadLocks sync.Map
}

// NewService creates a turn service.
func NewService(cfg *ServiceConfig, orch *Orchestrator, store checkpoint.Store, logger *zap.Logger) (*Service, error) {
	if cfg == nil {
		cfg = DefaultServiceConfig()
	}
	if orch == nil {
		return nil, errors.New("orchestrator is required")
	}
	if store == nil {
		return nil, errors.New("checkpoint store is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.HistoryWindow <= 0 {
		cfg.HistoryWindow = DefaultHistoryWindow
	}
	return &Service{
		orch:          orch,
		store:         store,
		logger:        logger,
		historyWindow: cfg.HistoryWindow,
	}, nil
}

// ProcessMessage runs one turn for an inbound message and persists the
// resulting thread state. The returned result is what the integration layer
// renders; orchestration failures surface in result.Err, never as a Go error.
// A Go error is returned only when the message is invalid or the checkpoint
// store fails.
func (s *Service) ProcessMessage(ctx context.Context, msg InboundMessage) (*TurnResult, error) {
	ctx, span := s.orch.tracer.Start(ctx, "orchestrator.process_message",
		trace.WithAttributes(attribute.String("thread_id", msg.ThreadID)))
	defer span.End()

	if msg.ThreadID == "" {
		return nil, errors.New("thread id is required")
	}
	if msg.Text == "" {
		return nil, errors.New("message text is required")
	}
	ctx = logging.WithThreadID(ctx, msg.ThreadID)

	mu := s.threadLock(msg.ThreadID)
	mu.Lock()
	defer mu.Unlock()

	persisted, err := s.store.Load(ctx, msg.ThreadID)
	if errors.Is(err, checkpoint.ErrNotFound) {
		persisted = &checkpoint.State{Phase: conversation.PhaseIdle}
	} else if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("loading thread state: %w", err)
	}

	phase := persisted.Phase
	resumed := phase == conversation.PhaseClarifying
	if resumed {
		// A clarification reply is re-routed as a fresh intent; it is not
		// assumed to answer the suspended question verbatim.
		phase = conversation.Transition(phase, conversation.EventResume)
	}

	st := NewTurnState(Seed{
		ThreadID:              msg.ThreadID,
		Phase:                 phase,
		Messages:              persisted.Messages,
		Context:               persisted.Context,
		ErrorRecoveryAttempts: persisted.ErrorRecoveryAttempts,
		Platform:              msg.Platform,
	})
	st.AppendUser(msg.Text)

	s.logger.Info("processing turn",
		append(logging.ContextFields(ctx),
			zap.String("phase", string(st.Phase)),
			zap.Bool("resumed_from_clarification", resumed))...)

	result := s.orch.Run(ctx, st)

	attempts := st.ErrorRecoveryAttempts
	if result.Err != "" {
		attempts++
	}

	next := &checkpoint.State{
		Phase:                 st.Phase,
		Context:               st.Context,
		Messages:              conversation.Window(st.Messages, s.historyWindow),
		ErrorRecoveryAttempts: attempts,
		UpdatedAt:             time.Now().UTC(),
	}
	if err := s.store.Save(ctx, msg.ThreadID, next); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("persisting thread state: %w", err)
	}

	s.logger.Info("turn finished",
		append(logging.ContextFields(ctx),
			zap.String("active_node", string(result.ActiveNode)),
			zap.String("phase", string(st.Phase)),
			zap.Bool("suspended", result.Suspended),
			zap.Int("hops", st.HopCount),
			zap.String("error", result.Err))...)

	result.State.ErrorRecoveryAttempts = attempts
	return result, nil
}

func (s *Service) threadLock(threadID string) *sync.Mutex {
	if mu, ok := s.threadLocks.Load(threadID); ok {
		return mu.(*sync.Mutex)
	}
	mu, _ := s.threadLocks.LoadOrStore(threadID, &sync.Mutex{})
	return mu.(*sync.Mutex)
}
