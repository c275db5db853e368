package agents

import (
	"context"

	"go.uber.org/zap"

	"github.com/lumehq/lume/internal/orchestrator"
)

// defaultClarification is asked when no upstream node packaged a prompt.
const defaultClarification = "Could you tell me a bit more about what you'd like to do?"

// HumanHandler suspends the turn with a clarification question. The next
// inbound message resumes the thread through the router.
type HumanHandler struct {
	logger *zap.Logger
}

// NewHumanHandler creates the clarification node.
func NewHumanHandler(logger *zap.Logger) *HumanHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HumanHandler{logger: logger}
}

func (h *HumanHandler) Name() orchestrator.NodeName { return orchestrator.NodeHuman }

func (h *HumanHandler) Handle(_ context.Context, st *orchestrator.TurnState, _ orchestrator.Scratch) orchestrator.HandoffCommand {
	return protect(h.Name(), h.logger, func() orchestrator.HandoffCommand {
		prompt := st.ClarificationPrompt
		if prompt == "" {
			prompt = defaultClarification
		}
		return orchestrator.HandoffCommand{
			Dest: orchestrator.Suspend(),
			Updates: orchestrator.Updates{
				Reply:               prompt,
				ClarificationPrompt: prompt,
				NeedsClarification:  orchestrator.Bool(true),
			},
		}
	})
}
