package agents

import (
	"errors"

	"github.com/lumehq/lume/internal/orchestrator"
)

// Nodes bundles the graph's handlers for registration.
type Nodes struct {
	Router     *Router
	Task       *TaskHandler
	Calendar   *CalendarHandler
	Onboarding *OnboardingHandler
	Learning   *LearningHandler
	Human      *HumanHandler
}

// RegisterAll registers every node with its whitelist of legal handoffs.
// The adjacency is the conversation graph: the router fans out everywhere,
// the specialists reach their collaborators plus the router and the
// clarification node, and clarification only ever returns through the router.
func RegisterAll(o *orchestrator.Orchestrator, n Nodes) error {
	if n.Router == nil || n.Task == nil || n.Calendar == nil ||
		n.Onboarding == nil || n.Learning == nil || n.Human == nil {
		return errors.New("all nodes are required")
	}

	if err := o.Register(n.Router,
		orchestrator.NodeOnboarding, orchestrator.NodeTask, orchestrator.NodeCalendar,
		orchestrator.NodeLearning, orchestrator.NodeHuman); err != nil {
		return err
	}
	if err := o.Register(n.Onboarding,
		orchestrator.NodeRouter, orchestrator.NodeTask, orchestrator.NodeCalendar,
		orchestrator.NodeHuman); err != nil {
		return err
	}
	if err := o.Register(n.Task,
		orchestrator.NodeCalendar, orchestrator.NodeRouter, orchestrator.NodeHuman); err != nil {
		return err
	}
	if err := o.Register(n.Calendar,
		orchestrator.NodeTask, orchestrator.NodeRouter, orchestrator.NodeHuman); err != nil {
		return err
	}
	if err := o.Register(n.Learning,
		orchestrator.NodeRouter, orchestrator.NodeHuman); err != nil {
		return err
	}
	return o.Register(n.Human, orchestrator.NodeRouter)
}
