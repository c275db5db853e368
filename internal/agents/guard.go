package agents

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/lumehq/lume/internal/orchestrator"
)

// Shared context keys. task_scheduling and its companions are turn-scoped:
// the task node sets them, the calendar node consumes and deletes them.
// task.draft persists across turns for the guided creation flow.
const (
	ctxTaskScheduling = "task_scheduling"
	ctxTaskEntities   = "task_entities"
	ctxTaskID         = "task_id"
	ctxTaskDraft      = "task.draft"
)

// recoveryPrompt is what the user sees when a handler fails outright.
const recoveryPrompt = "Something went wrong on my side. Could you try that again in different words?"

// protect runs a handler body and converts a panic into a clarification
// suspend, keeping the failure inside the node per the graceful degradation
// contract.
func protect(name orchestrator.NodeName, logger *zap.Logger, fn func() orchestrator.HandoffCommand) (cmd orchestrator.HandoffCommand) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("handler panicked",
				zap.String("node", string(name)),
				zap.Any("panic", r))
			cmd = failure(fmt.Sprintf("%s handler panicked: %v", name, r))
		}
	}()
	return fn()
}

// failure builds the suspend command a node emits when it cannot proceed.
func failure(errMsg string) orchestrator.HandoffCommand {
	return orchestrator.HandoffCommand{
		Dest: orchestrator.Suspend(),
		Updates: orchestrator.Updates{
			Reply:               recoveryPrompt,
			ClarificationPrompt: recoveryPrompt,
			NeedsClarification:  orchestrator.Bool(true),
			Error:               errMsg,
		},
	}
}
