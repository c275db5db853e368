// Package nlu classifies inbound messages into routing signals: an intent,
// optional entities, a confidence score, and an optional direct action.
package nlu

import (
	"context"

	"github.com/lumehq/lume/internal/conversation"
)

// Intents the router keys its decisions on. Classifiers may emit other
// strings; unknown intents route to the default destination.
const (
	IntentStartOnboarding = "start_onboarding"
	IntentAddTask         = "add_task"
	IntentShowTasks       = "show_tasks"
	IntentViewTasks       = "view_tasks"
	IntentCompleteTask    = "complete_task"
	IntentPrioritizeTask  = "prioritize_task"
	IntentViewCalendar    = "view_calendar"
	IntentCalendarQuery   = "calendar_query"
	IntentSchedule        = "schedule"
	IntentScheduleTask    = "schedule_task"
	IntentInsights        = "insights"
	IntentPatterns        = "patterns"
	IntentAnalytics       = "analytics"
	IntentLearn           = "learn"
	IntentViewInsights    = "view_insights"
	IntentGeneralChat     = "general_chat"
)

// Actions short-circuit intent mapping when the classifier is certain.
const (
	ActionOnboarding   = "onboarding"
	ActionCreateTask   = "create_task"
	ActionShowTasks    = "show_tasks"
	ActionViewCalendar = "view_calendar"
	ActionViewInsights = "view_insights"
)

// Classification is one message's routing signal.
type Classification struct {
	Intent     string         `json:"intent"`
	Action     string         `json:"action,omitempty"`
	Entities   map[string]any `json:"entities,omitempty"`
	Confidence float64        `json:"confidence"`

	NeedsClarification  bool   `json:"needs_clarification,omitempty"`
	ClarificationPrompt string `json:"clarification_prompt,omitempty"`
}

// Classifier turns a message plus recent history into a Classification.
// Implementations return an error on infrastructure failure; the router
// degrades to a low-confidence default rather than failing the turn.
type Classifier interface {
	Classify(ctx context.Context, text string, history []conversation.Message, phase conversation.Phase) (*Classification, error)
}
