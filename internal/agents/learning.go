package agents

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/lumehq/lume/internal/insights"
	"github.com/lumehq/lume/internal/orchestrator"
)

// patternsShown caps how many recurring observations a reply lists.
const patternsShown = 3

// LearningHandler surfaces behavioral patterns from the recorded
// observations.
type LearningHandler struct {
	insights *insights.Service
	logger   *zap.Logger
}

// NewLearningHandler creates the learning node.
func NewLearningHandler(svc *insights.Service, logger *zap.Logger) *LearningHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LearningHandler{insights: svc, logger: logger}
}

func (h *LearningHandler) Name() orchestrator.NodeName { return orchestrator.NodeLearning }

func (h *LearningHandler) Handle(ctx context.Context, st *orchestrator.TurnState, _ orchestrator.Scratch) orchestrator.HandoffCommand {
	return protect(h.Name(), h.logger, func() orchestrator.HandoffCommand {
		summary := h.insights.Summary(ctx, st.ThreadID)

		patterns, err := h.insights.Patterns(ctx, st.ThreadID, st.LastUserMessage(), patternsShown)
		if err != nil {
			h.logger.Warn("pattern query failed", zap.Error(err))
		}

		var b strings.Builder
		b.WriteString(summary)
		if len(patterns) > 0 {
			b.WriteString("\n\nRelated things I've noticed:")
			for _, p := range patterns {
				fmt.Fprintf(&b, "\n- %s", p.Observation.Text)
			}
		}

		return orchestrator.HandoffCommand{
			Dest:    orchestrator.Terminal(),
			Updates: orchestrator.Updates{Reply: b.String()},
		}
	})
}
