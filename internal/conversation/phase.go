package conversation

// Phase represents the persisted conversation-level state of a thread.
// A thread has exactly one Phase at any time; it only changes through an
// explicit Transition.
type Phase string

const (
	// PhaseIdle is the initial phase of a brand-new thread.
	PhaseIdle Phase = "idle"

	// PhaseNormal is the steady state for an onboarded thread.
	PhaseNormal Phase = "normal"

	// Onboarding sub-flow, in fixed step order.
	PhaseOnboardingPillars      Phase = "onboarding_pillars"
	PhaseOnboardingCustomPillar Phase = "onboarding_custom_pillar"
	PhaseOnboardingWorkHours    Phase = "onboarding_work_hours"
	PhaseOnboardingTimezone     Phase = "onboarding_timezone"
	PhaseOnboardingInitialTasks Phase = "onboarding_initial_tasks"
	PhaseOnboardingHabits       Phase = "onboarding_habits"
	PhaseOnboardingMoodTracking Phase = "onboarding_mood_tracking"

	// Guided task creation sub-flow, in fixed step order.
	PhaseAddingTask         Phase = "adding_task"
	PhaseAddingTaskPillar   Phase = "adding_task_pillar"
	PhaseAddingTaskPriority Phase = "adding_task_priority"
	PhaseAddingTaskDueDate  Phase = "adding_task_due_date"
	PhaseAddingTaskDuration Phase = "adding_task_duration"

	PhaseEditingTask    Phase = "editing_task"
	PhaseSchedulingTask Phase = "scheduling_task"
	PhaseClarifying     Phase = "clarifying"
	PhaseSettings       Phase = "settings"
)

// onboardingOrder is the forward-only step order of the onboarding flow.
var onboardingOrder = []Phase{
	PhaseOnboardingPillars,
	PhaseOnboardingCustomPillar,
	PhaseOnboardingWorkHours,
	PhaseOnboardingTimezone,
	PhaseOnboardingInitialTasks,
	PhaseOnboardingHabits,
	PhaseOnboardingMoodTracking,
}

// addingTaskOrder is the forward-only step order of guided task creation.
var addingTaskOrder = []Phase{
	PhaseAddingTask,
	PhaseAddingTaskPillar,
	PhaseAddingTaskPriority,
	PhaseAddingTaskDueDate,
	PhaseAddingTaskDuration,
}

// OnboardingSteps returns the onboarding phases in step order.
func OnboardingSteps() []Phase {
	steps := make([]Phase, len(onboardingOrder))
	copy(steps, onboardingOrder)
	return steps
}

// AddingTaskSteps returns the guided task creation phases in step order.
func AddingTaskSteps() []Phase {
	steps := make([]Phase, len(addingTaskOrder))
	copy(steps, addingTaskOrder)
	return steps
}

// IsOnboarding reports whether p is any onboarding sub-step.
func (p Phase) IsOnboarding() bool {
	for _, step := range onboardingOrder {
		if p == step {
			return true
		}
	}
	return false
}

// IsAddingTask reports whether p is any guided task creation sub-step.
func (p Phase) IsAddingTask() bool {
	for _, step := range addingTaskOrder {
		if p == step {
			return true
		}
	}
	return false
}

// Valid reports whether p is a known phase.
func (p Phase) Valid() bool {
	switch p {
	case PhaseIdle, PhaseNormal, PhaseEditingTask, PhaseSchedulingTask,
		PhaseClarifying, PhaseSettings:
		return true
	}
	return p.IsOnboarding() || p.IsAddingTask()
}

// nextInOrder returns the phase after p in the given order, or "" when p is
// the last step or not part of the order at all.
func nextInOrder(order []Phase, p Phase) Phase {
	for i, step := range order {
		if step == p && i+1 < len(order) {
			return order[i+1]
		}
	}
	return ""
}
