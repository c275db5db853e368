package orchestrator

import (
	"errors"
	"fmt"

	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/lumehq/lume/internal/conversation"
)

const instrumentationName = "github.com/lumehq/lume/internal/orchestrator"

// DefaultMaxHops bounds node invocations per turn. A defect that makes two
// handlers hand off to each other forever degrades to a clarification prompt
// instead of spinning.
const DefaultMaxHops = 8

// stillWorkingPrompt is what the user sees when a turn runs out of hops.
const stillWorkingPrompt = "I'm still working on that one. Could you rephrase or give me a little more detail?"

// Config configures the orchestrator loop.
type Config struct {
	// MaxHops is the node invocation budget per turn (default: 8).
	MaxHops int
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{MaxHops: DefaultMaxHops}
}

// Orchestrator holds the node registry and the adjacency table of legal
// handoffs, and drives the per-turn execution loop.
type Orchestrator struct {
	nodes     map[NodeName]Node
	adjacency map[NodeName]map[NodeName]bool
	maxHops   int
	logger    *zap.Logger

	tracer         trace.Tracer
	meter          metric.Meter
	turnCounter    metric.Int64Counter
	handoffCounter metric.Int64Counter
	hopHistogram   metric.Int64Histogram
}

// New creates an orchestrator. Nodes are added with Register before the first
// Run; registration errors are construction-time defects.
func New(cfg *Config, logger *zap.Logger) (*Orchestrator, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.MaxHops <= 0 {
		return nil, errors.New("max hops must be positive")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	o := &Orchestrator{
		nodes:     make(map[NodeName]Node),
		adjacency: make(map[NodeName]map[NodeName]bool),
		maxHops:   cfg.MaxHops,
		logger:    logger,
		tracer:    otel.Tracer(instrumentationName),
		meter:     otel.Meter(instrumentationName),
	}
	o.initMetrics()
	return o, nil
}

func (o *Orchestrator) initMetrics() {
	var err error

	o.turnCounter, err = o.meter.Int64Counter(
		"lume.orchestrator.turns_total",
		metric.WithDescription("Completed turns labeled by outcome (terminal, suspend, defect)"),
		metric.WithUnit("{turn}"),
	)
	if err != nil {
		o.logger.Warn("failed to create turn counter", zap.Error(err))
	}

	o.handoffCounter, err = o.meter.Int64Counter(
		"lume.orchestrator.handoffs_total",
		metric.WithDescription("Node handoffs labeled by source and destination"),
		metric.WithUnit("{handoff}"),
	)
	if err != nil {
		o.logger.Warn("failed to create handoff counter", zap.Error(err))
	}

	o.hopHistogram, err = o.meter.Int64Histogram(
		"lume.orchestrator.hops_per_turn",
		metric.WithDescription("Node invocations per turn"),
		metric.WithUnit("{hop}"),
		metric.WithExplicitBucketBoundaries(1, 2, 3, 4, 6, 8, 12, 16),
	)
	if err != nil {
		o.logger.Warn("failed to create hop histogram", zap.Error(err))
	}
}

// Register adds a node and declares its whitelist of legal node destinations.
// Terminal and Suspend are always legal and not listed.
func (o *Orchestrator) Register(node Node, allowed ...NodeName) error {
	if node == nil {
		return errors.New("node is required")
	}
	name := node.Name()
	if !name.Valid() {
		return fmt.Errorf("unknown node name: %s", name)
	}
	if _, exists := o.nodes[name]; exists {
		return fmt.Errorf("node already registered: %s", name)
	}
	whitelist := make(map[NodeName]bool, len(allowed))
	for _, dest := range allowed {
		if !dest.Valid() {
			return fmt.Errorf("node %s: invalid destination in whitelist: %s", name, dest)
		}
		whitelist[dest] = true
	}
	o.nodes[name] = node
	o.adjacency[name] = whitelist
	return nil
}

// TurnResult is what a finished turn reports to the integration layer.
type TurnResult struct {
	// State is the final TurnState.
	State *TurnState

	// ActiveNode is the handler that owned the turn at terminal or suspend.
	ActiveNode NodeName

	// Response is the reply to render, or "" when the turn produced none.
	Response string

	// Suspended is true when the turn stopped awaiting user clarification.
	Suspended bool

	// Err carries an orchestration or handler error, or "". Never an
	// exception to the caller: defects resolve to a terminal state.
	Err string
}

// Run drives one turn from the router to a terminal or suspend marker. It
// never returns an error: every failure mode resolves to a TurnResult whose
// Err field is set, per the graceful degradation contract.
func (o *Orchestrator) Run(ctx context.Context, st *TurnState) *TurnResult {
	ctx, span := o.tracer.Start(ctx, "orchestrator.run",
		trace.WithAttributes(attribute.String("thread_id", st.ThreadID)))
	defer span.End()

	current := NodeRouter
	for {
		if err := ctx.Err(); err != nil {
			st.Error = fmt.Sprintf("turn cancelled: %v", err)
			return o.finish(ctx, st, current, "defect")
		}

		node, ok := o.nodes[current]
		if !ok {
			st.Error = fmt.Sprintf("no node registered for %s", current)
			o.logger.Error("orchestration defect: missing node",
				zap.String("thread_id", st.ThreadID),
				zap.String("node", string(current)))
			return o.finish(ctx, st, current, "defect")
		}

		// Consumed on the previous iteration; reset before the next hop.
		st.HandoffTarget = ""
		st.HandoffReason = ""
		st.ActiveNode = current

		hopCtx, hopSpan := o.tracer.Start(ctx, "orchestrator.hop",
			trace.WithAttributes(attribute.String("node", string(current))))
		cmd := node.Handle(hopCtx, st, st.ScratchFor(current))
		hopSpan.End()

		st.apply(current, cmd.Updates)
		st.HopCount++

		o.logger.Debug("node handled hop",
			zap.String("thread_id", st.ThreadID),
			zap.String("node", string(current)),
			zap.String("destination", cmd.Dest.String()),
			zap.String("reason", st.HandoffReason),
			zap.Int("hop", st.HopCount))

		switch {
		case cmd.Dest.IsTerminal():
			return o.finish(ctx, st, current, "terminal")

		case cmd.Dest.IsSuspend():
			st.Phase = conversation.PhaseClarifying
			st.NeedsClarification = true
			return o.finish(ctx, st, current, "suspend")

		default:
			next, ok := cmd.Dest.Node()
			if !ok {
				st.Error = fmt.Sprintf("node %s returned no destination", current)
				o.logger.Error("orchestration defect: empty destination",
					zap.String("thread_id", st.ThreadID),
					zap.String("node", string(current)))
				return o.finish(ctx, st, current, "defect")
			}
			if _, known := o.nodes[next]; !known || !o.adjacency[current][next] {
				st.Error = fmt.Sprintf("illegal handoff from %s to %s", current, next)
				o.logger.Error("orchestration defect: illegal handoff",
					zap.String("thread_id", st.ThreadID),
					zap.String("from", string(current)),
					zap.String("to", string(next)))
				return o.finish(ctx, st, current, "defect")
			}

			if o.handoffCounter != nil {
				o.handoffCounter.Add(ctx, 1, metric.WithAttributes(
					attribute.String("from", string(current)),
					attribute.String("to", string(next)),
				))
			}

			// Hop budget exhausted: force a clarification suspend instead of
			// invoking the next node, so the loop always terminates.
			if st.HopCount >= o.maxHops {
				o.logger.Warn("hop budget exhausted, forcing clarification",
					zap.String("thread_id", st.ThreadID),
					zap.String("refused_destination", string(next)),
					zap.Int("hops", st.HopCount))
				st.Messages = append(st.Messages, conversation.Message{
					Role: conversation.RoleAssistant,
					Text: stillWorkingPrompt,
				})
				st.NeedsClarification = true
				st.ClarificationPrompt = stillWorkingPrompt
				st.Phase = conversation.PhaseClarifying
				return o.finish(ctx, st, current, "suspend")
			}

			st.HandoffTarget = next
			current = next
		}
	}
}

// finish records turn metrics and assembles the result.
func (o *Orchestrator) finish(ctx context.Context, st *TurnState, last NodeName, outcome string) *TurnResult {
	st.ActiveNode = last

	if o.turnCounter != nil {
		o.turnCounter.Add(ctx, 1, metric.WithAttributes(
			attribute.String("outcome", outcome),
			attribute.String("node", string(last)),
		))
	}
	if o.hopHistogram != nil {
		o.hopHistogram.Record(ctx, int64(st.HopCount))
	}

	return &TurnResult{
		State:      st,
		ActiveNode: last,
		Response:   conversation.LastAssistant(st.Messages),
		Suspended:  outcome == "suspend",
		Err:        st.Error,
	}
}
