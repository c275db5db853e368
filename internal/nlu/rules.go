package nlu

import (
	"context"
	"strings"

	"github.com/lumehq/lume/internal/conversation"
)

// RuleClassifier is a deterministic keyword classifier for development runs
// and tests where no model endpoint is available. It covers the common
// phrasings well enough to exercise every route.
type RuleClassifier struct{}

// NewRuleClassifier creates a rule-based classifier.
func NewRuleClassifier() *RuleClassifier { return &RuleClassifier{} }

type rulePattern struct {
	keywords   []string
	intent     string
	action     string
	confidence float64
}

// Ordered: the first matching pattern wins, so the more specific phrasings
// come before the generic ones.
var rulePatterns = []rulePattern{
	{[]string{"start onboarding", "get started", "set me up", "setup my account"}, IntentStartOnboarding, ActionOnboarding, 0.9},
	{[]string{"add task", "add a task", "new task", "create task", "create a task", "remind me to"}, IntentAddTask, "", 0.85},
	{[]string{"show my tasks", "show tasks", "list my tasks", "list tasks", "my tasks", "what do i have to do"}, IntentShowTasks, "", 0.85},
	{[]string{"mark as done", "mark done", "i finished", "i completed", "check off", "done with"}, IntentCompleteTask, "", 0.85},
	{[]string{"prioritize", "change priority", "priority of"}, IntentPrioritizeTask, "", 0.8},
	{[]string{"schedule", "find time", "book time"}, IntentScheduleTask, "", 0.75},
	{[]string{"calendar", "my week", "my day", "what's on", "whats on", "free slot", "availability"}, IntentViewCalendar, "", 0.8},
	{[]string{"insight", "pattern", "analytics", "how am i doing", "productivity report"}, IntentViewInsights, "", 0.8},
}

// Classify matches the message against the keyword table. Unmatched messages
// come back as general_chat with middling confidence.
func (r *RuleClassifier) Classify(_ context.Context, text string, _ []conversation.Message, _ conversation.Phase) (*Classification, error) {
	lower := strings.ToLower(strings.TrimSpace(text))

	for _, p := range rulePatterns {
		for _, kw := range p.keywords {
			if strings.Contains(lower, kw) {
				cls := &Classification{
					Intent:     p.intent,
					Action:     p.action,
					Confidence: p.confidence,
				}
				if p.intent == IntentAddTask {
					if title := extractTaskTitle(lower, kw); title != "" {
						cls.Entities = map[string]any{"title": title}
					}
				}
				return cls, nil
			}
		}
	}

	return &Classification{Intent: IntentGeneralChat, Confidence: 0.5}, nil
}

// extractTaskTitle pulls the task title from the text after the trigger
// phrase, trimming filler like a leading "to" or a colon.
func extractTaskTitle(lower, trigger string) string {
	idx := strings.Index(lower, trigger)
	if idx < 0 {
		return ""
	}
	rest := strings.TrimSpace(lower[idx+len(trigger):])
	rest = strings.TrimPrefix(rest, ":")
	rest = strings.TrimSpace(rest)
	if trigger != "remind me to" {
		if after, ok := strings.CutPrefix(rest, "to "); ok {
			rest = after
		}
	}
	return strings.TrimSpace(rest)
}
