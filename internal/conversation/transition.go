package conversation

// Event is a named trigger for a phase transition.
type Event string

const (
	// EventStartOnboarding enters the onboarding flow at its first step.
	EventStartOnboarding Event = "start_onboarding"

	// EventAdvance moves a sub-flow forward one step.
	EventAdvance Event = "advance"

	// EventOnboardingComplete leaves onboarding for Normal. Emitted exactly
	// once, when the onboarding profile collaborator reports completion.
	EventOnboardingComplete Event = "onboarding_complete"

	// EventBeginTask enters the guided task creation flow.
	EventBeginTask Event = "begin_task"

	// EventEditTask enters task editing.
	EventEditTask Event = "edit_task"

	// EventSchedule enters the scheduling flow.
	EventSchedule Event = "schedule"

	// EventOpenSettings enters the settings flow.
	EventOpenSettings Event = "open_settings"

	// EventComplete finishes the current sub-flow and returns to Normal.
	EventComplete Event = "complete"

	// EventCancel abandons the current sub-flow and returns to Normal.
	EventCancel Event = "cancel"

	// EventClarify suspends the conversation awaiting user clarification.
	EventClarify Event = "clarify"

	// EventResume leaves Clarifying when the next message arrives.
	EventResume Event = "resume"
)

// Transition returns the phase that follows current on event. It is a total
// function: any (phase, event) pair without a defined transition stays in the
// current phase. Onboarding and task-creation phases only ever move forward
// through their step order or out to Normal.
func Transition(current Phase, event Event) Phase {
	switch event {
	case EventClarify:
		return PhaseClarifying

	case EventCancel:
		if current == PhaseIdle {
			return PhaseIdle
		}
		return PhaseNormal

	case EventComplete:
		switch current {
		case PhaseAddingTask, PhaseAddingTaskPillar, PhaseAddingTaskPriority,
			PhaseAddingTaskDueDate, PhaseAddingTaskDuration,
			PhaseEditingTask, PhaseSchedulingTask, PhaseSettings,
			PhaseIdle, PhaseNormal:
			return PhaseNormal
		}
		return current

	case EventStartOnboarding:
		switch current {
		case PhaseIdle, PhaseNormal:
			return PhaseOnboardingPillars
		}
		return current

	case EventAdvance:
		if next := nextInOrder(onboardingOrder, current); next != "" {
			return next
		}
		if next := nextInOrder(addingTaskOrder, current); next != "" {
			return next
		}
		return current

	case EventOnboardingComplete:
		if current.IsOnboarding() {
			return PhaseNormal
		}
		return current

	case EventBeginTask:
		switch current {
		case PhaseIdle, PhaseNormal:
			return PhaseAddingTask
		}
		return current

	case EventEditTask:
		switch current {
		case PhaseIdle, PhaseNormal:
			return PhaseEditingTask
		}
		return current

	case EventSchedule:
		switch current {
		case PhaseIdle, PhaseNormal, PhaseAddingTaskDuration:
			return PhaseSchedulingTask
		}
		return current

	case EventOpenSettings:
		switch current {
		case PhaseIdle, PhaseNormal:
			return PhaseSettings
		}
		return current

	case EventResume:
		if current == PhaseClarifying {
			return PhaseNormal
		}
		return current
	}

	return current
}
