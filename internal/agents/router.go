package agents

import (
	"context"

	"go.uber.org/zap"

	"github.com/lumehq/lume/internal/nlu"
	"github.com/lumehq/lume/internal/orchestrator"
)

// degradedConfidence is assigned when classification fails and the router
// falls back to the default destination.
const degradedConfidence = 0.3

// Router classifies the inbound message and dispatches to a handler node.
// Messages inside a guided sub-flow skip classification entirely: the phase
// already names their handler.
type Router struct {
	classifier nlu.Classifier
	logger     *zap.Logger
}

// NewRouter creates the router node.
func NewRouter(classifier nlu.Classifier, logger *zap.Logger) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{classifier: classifier, logger: logger}
}

func (r *Router) Name() orchestrator.NodeName { return orchestrator.NodeRouter }

func (r *Router) Handle(ctx context.Context, st *orchestrator.TurnState, _ orchestrator.Scratch) orchestrator.HandoffCommand {
	return protect(r.Name(), r.logger, func() orchestrator.HandoffCommand {
		if st.Phase.IsOnboarding() {
			return orchestrator.HandoffCommand{
				Dest:    orchestrator.To(orchestrator.NodeOnboarding),
				Updates: orchestrator.Updates{HandoffReason: "continuing the onboarding flow"},
			}
		}
		if st.Phase.IsAddingTask() {
			return orchestrator.HandoffCommand{
				Dest:    orchestrator.To(orchestrator.NodeTask),
				Updates: orchestrator.Updates{HandoffReason: "continuing guided task creation"},
			}
		}

		cls, err := r.classifier.Classify(ctx, st.LastUserMessage(), st.Messages, st.Phase)
		if err != nil {
			r.logger.Warn("classification failed, routing to default handler",
				zap.String("thread_id", st.ThreadID),
				zap.Error(err))
			return orchestrator.HandoffCommand{
				Dest: orchestrator.To(orchestrator.NodeTask),
				Updates: orchestrator.Updates{
					Intent:        nlu.IntentGeneralChat,
					Confidence:    orchestrator.Float64(degradedConfidence),
					HandoffReason: "default route after classification failure",
					Error:         "classification failed: " + err.Error(),
				},
			}
		}

		dest, reason := r.route(cls)
		updates := orchestrator.Updates{
			Intent:        cls.Intent,
			Confidence:    orchestrator.Float64(cls.Confidence),
			Entities:      cls.Entities,
			HandoffReason: reason,
		}
		if dest == orchestrator.NodeHuman {
			updates.NeedsClarification = orchestrator.Bool(true)
			updates.ClarificationPrompt = cls.ClarificationPrompt
		}
		return orchestrator.HandoffCommand{Dest: orchestrator.To(dest), Updates: updates}
	})
}

// route maps a classification onto a destination node in fixed priority
// order: direct actions win over intents, intents win over the clarification
// flag, and unknown intents fall through to the task handler. A confident
// action routes even when the classifier also asked for clarification.
func (r *Router) route(cls *nlu.Classification) (orchestrator.NodeName, string) {
	switch {
	case cls.Action == nlu.ActionOnboarding, cls.Intent == nlu.IntentStartOnboarding:
		return orchestrator.NodeOnboarding, "user wants to start onboarding"

	case cls.Action == nlu.ActionCreateTask:
		return orchestrator.NodeTask, "message fully specifies a task"

	case cls.Intent == nlu.IntentAddTask && cls.Confidence >= 0.6:
		return orchestrator.NodeTask, "user wants to add a task"

	case cls.Action == nlu.ActionShowTasks,
		cls.Intent == nlu.IntentShowTasks, cls.Intent == nlu.IntentViewTasks:
		return orchestrator.NodeTask, "user asked to see their tasks"

	case cls.Intent == nlu.IntentCompleteTask, cls.Intent == nlu.IntentPrioritizeTask:
		return orchestrator.NodeTask, "user wants to update a task"

	case cls.Action == nlu.ActionViewCalendar,
		cls.Intent == nlu.IntentViewCalendar, cls.Intent == nlu.IntentCalendarQuery,
		cls.Intent == nlu.IntentSchedule, cls.Intent == nlu.IntentScheduleTask:
		return orchestrator.NodeCalendar, "calendar question or scheduling request"

	case cls.Action == nlu.ActionViewInsights,
		cls.Intent == nlu.IntentInsights, cls.Intent == nlu.IntentPatterns,
		cls.Intent == nlu.IntentAnalytics, cls.Intent == nlu.IntentLearn,
		cls.Intent == nlu.IntentViewInsights:
		return orchestrator.NodeLearning, "user asked about their patterns"

	case cls.NeedsClarification:
		return orchestrator.NodeHuman, "classifier asked for clarification"
	}

	return orchestrator.NodeTask, "default route"
}
