package agents

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/lumehq/lume/internal/conversation"
	"github.com/lumehq/lume/internal/insights"
	"github.com/lumehq/lume/internal/nlu"
	"github.com/lumehq/lume/internal/orchestrator"
	"github.com/lumehq/lume/internal/tasks"
)

// directCreateConfidence is the threshold for creating a task straight from
// the classified entities; below it the guided flow collects the fields.
const directCreateConfidence = 0.7

// clarifyConfidence is the threshold below which an add-task intent is too
// uncertain to act on at all.
const clarifyConfidence = 0.6

// TaskHandler owns everything task shaped: listing, direct creation, the
// guided multi-turn creation flow, and handing a timed task off to the
// calendar for a slot.
type TaskHandler struct {
	tasks    *tasks.Service
	insights *insights.Service
	logger   *zap.Logger
}

// NewTaskHandler creates the task node. insights may be nil.
func NewTaskHandler(taskSvc *tasks.Service, insightSvc *insights.Service, logger *zap.Logger) *TaskHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TaskHandler{tasks: taskSvc, insights: insightSvc, logger: logger}
}

func (h *TaskHandler) Name() orchestrator.NodeName { return orchestrator.NodeTask }

func (h *TaskHandler) Handle(ctx context.Context, st *orchestrator.TurnState, _ orchestrator.Scratch) orchestrator.HandoffCommand {
	return protect(h.Name(), h.logger, func() orchestrator.HandoffCommand {
		if st.Phase.IsAddingTask() {
			return h.continueGuidedFlow(ctx, st)
		}

		switch st.Intent {
		case nlu.IntentShowTasks, nlu.IntentViewTasks:
			return h.list(ctx, st)
		case nlu.IntentCompleteTask:
			return h.complete(ctx, st)
		case nlu.IntentPrioritizeTask:
			return h.reprioritize(ctx, st)
		case nlu.IntentAddTask:
			if st.Confidence < clarifyConfidence {
				prompt := "It sounds like you might want to add a task. What should it be called?"
				return orchestrator.HandoffCommand{
					Dest: orchestrator.To(orchestrator.NodeHuman),
					Updates: orchestrator.Updates{
						ClarificationPrompt: prompt,
						NeedsClarification:  orchestrator.Bool(true),
						HandoffReason:       "add-task intent below confidence threshold",
					},
				}
			}
			return h.create(ctx, st)
		}

		// Default route for general chat and anything unrecognized.
		return orchestrator.HandoffCommand{
			Dest: orchestrator.Terminal(),
			Updates: orchestrator.Updates{
				Reply: "I can add tasks, show your list, check your calendar, or dig into your patterns. What would you like?",
			},
		}
	})
}

func (h *TaskHandler) list(ctx context.Context, st *orchestrator.TurnState) orchestrator.HandoffCommand {
	open, err := h.tasks.List(ctx, st.ThreadID)
	if err != nil {
		return failure("listing tasks: " + err.Error())
	}
	if len(open) == 0 {
		return orchestrator.HandoffCommand{
			Dest:    orchestrator.Terminal(),
			Updates: orchestrator.Updates{Reply: "You're all clear, no open tasks."},
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "You have %d open task(s):\n", len(open))
	for i, t := range open {
		fmt.Fprintf(&b, "%d. [%s] %s", i+1, t.Priority, t.Title)
		if t.DueDate != nil {
			fmt.Fprintf(&b, " (due %s)", t.DueDate.Format("Mon Jan 2"))
		}
		b.WriteString("\n")
	}
	return orchestrator.HandoffCommand{
		Dest:    orchestrator.Terminal(),
		Updates: orchestrator.Updates{Reply: strings.TrimRight(b.String(), "\n")},
	}
}

// create handles a direct add-task intent. A confident classification with a
// title creates immediately; otherwise the guided flow takes over.
func (h *TaskHandler) create(ctx context.Context, st *orchestrator.TurnState) orchestrator.HandoffCommand {
	title, _ := st.Entities["title"].(string)

	if title == "" || st.Confidence < directCreateConfidence {
		return h.startGuidedFlow(st, title)
	}

	created, err := h.tasks.Create(ctx, tasks.Task{
		ThreadID: st.ThreadID,
		Title:    title,
		Pillar:   stringEntity(st.Entities, "pillar"),
		Priority: normalizePriority(stringEntity(st.Entities, "priority")),
		Duration: intEntity(st.Entities, "duration_minutes"),
	})
	if err != nil {
		return failure("creating task: " + err.Error())
	}
	h.observe(ctx, st.ThreadID, insights.KindTaskCreated, "created task: "+created.Title)

	// A task that already names a time wants a calendar slot in the same turn.
	if when := stringEntity(st.Entities, "when"); when != "" || stringEntity(st.Entities, "due_date") != "" {
		entities := map[string]any{"task_title": created.Title}
		if when != "" {
			entities["when"] = when
		}
		if created.Duration > 0 {
			entities["duration_minutes"] = created.Duration
		}
		return orchestrator.HandoffCommand{
			Dest: orchestrator.To(orchestrator.NodeCalendar),
			Updates: orchestrator.Updates{
				Context: map[string]any{
					ctxTaskScheduling: true,
					ctxTaskEntities:   entities,
					ctxTaskID:         created.ID,
				},
				HandoffReason: "new task needs a calendar slot",
			},
		}
	}

	return orchestrator.HandoffCommand{
		Dest: orchestrator.Terminal(),
		Updates: orchestrator.Updates{
			Reply:   fmt.Sprintf("Added %q to your list.", created.Title),
			Scratch: map[string]any{"created_task_id": created.ID},
		},
	}
}

// complete checks off the open task the message refers to.
func (h *TaskHandler) complete(ctx context.Context, st *orchestrator.TurnState) orchestrator.HandoffCommand {
	match, err := h.findTask(ctx, st)
	if err != nil {
		return failure("finding task to complete: " + err.Error())
	}
	if match == nil {
		return orchestrator.HandoffCommand{
			Dest: orchestrator.To(orchestrator.NodeHuman),
			Updates: orchestrator.Updates{
				ClarificationPrompt: "Which task did you finish?",
				NeedsClarification:  orchestrator.Bool(true),
				HandoffReason:       "complete-task intent matched no open task",
			},
		}
	}

	if err := h.tasks.Complete(ctx, match.ID); err != nil {
		return failure("completing task: " + err.Error())
	}
	h.observe(ctx, st.ThreadID, insights.KindTaskCompleted, "completed task: "+match.Title)

	return orchestrator.HandoffCommand{
		Dest: orchestrator.Terminal(),
		Updates: orchestrator.Updates{
			Reply:   fmt.Sprintf("Checked off %q. Nice work.", match.Title),
			Scratch: map[string]any{"completed_task_id": match.ID},
		},
	}
}

// reprioritize moves the referenced open task to the requested priority.
func (h *TaskHandler) reprioritize(ctx context.Context, st *orchestrator.TurnState) orchestrator.HandoffCommand {
	match, err := h.findTask(ctx, st)
	if err != nil {
		return failure("finding task to reprioritize: " + err.Error())
	}
	if match == nil {
		return orchestrator.HandoffCommand{
			Dest: orchestrator.To(orchestrator.NodeHuman),
			Updates: orchestrator.Updates{
				ClarificationPrompt: "Which task should change priority?",
				NeedsClarification:  orchestrator.Bool(true),
				HandoffReason:       "prioritize-task intent matched no open task",
			},
		}
	}

	priority := stringEntity(st.Entities, "priority")
	if priority == "" {
		priority = priorityFromText(st.LastUserMessage())
	}

	updated := *match
	updated.Priority = normalizePriority(priority)
	if err := h.tasks.Update(ctx, updated); err != nil {
		return failure("updating task priority: " + err.Error())
	}

	return orchestrator.HandoffCommand{
		Dest: orchestrator.Terminal(),
		Updates: orchestrator.Updates{
			Reply:   fmt.Sprintf("Moved %q to %s priority.", match.Title, updated.Priority),
			Scratch: map[string]any{"reprioritized_task_id": match.ID},
		},
	}
}

// findTask matches an open task by the classified title entity or by its
// title appearing in the message text. No match returns nil, nil.
func (h *TaskHandler) findTask(ctx context.Context, st *orchestrator.TurnState) (*tasks.Task, error) {
	open, err := h.tasks.List(ctx, st.ThreadID)
	if err != nil {
		return nil, err
	}

	title := strings.ToLower(stringEntity(st.Entities, "title"))
	message := strings.ToLower(st.LastUserMessage())
	for i := range open {
		candidate := strings.ToLower(open[i].Title)
		if title != "" && strings.Contains(candidate, title) {
			return &open[i], nil
		}
		if strings.Contains(message, candidate) {
			return &open[i], nil
		}
	}
	return nil, nil
}

// startGuidedFlow enters the multi-turn creation flow, pre-filling whatever
// the classifier already extracted.
func (h *TaskHandler) startGuidedFlow(st *orchestrator.TurnState, title string) orchestrator.HandoffCommand {
	draft := tasks.Draft{Title: title}
	phase := conversation.Transition(st.Phase, conversation.EventBeginTask)
	if draft.Title != "" {
		phase = conversation.Transition(phase, conversation.EventAdvance)
	}
	return orchestrator.HandoffCommand{
		Dest: orchestrator.Terminal(),
		Updates: orchestrator.Updates{
			Reply:   questionFor(phase),
			Phase:   phase,
			Context: map[string]any{ctxTaskDraft: draftToMap(draft)},
		},
	}
}

// continueGuidedFlow records the user's answer for the current step, then
// either asks the next question or creates the finished task.
func (h *TaskHandler) continueGuidedFlow(ctx context.Context, st *orchestrator.TurnState) orchestrator.HandoffCommand {
	answer := strings.TrimSpace(st.LastUserMessage())
	if isCancel(answer) {
		return orchestrator.HandoffCommand{
			Dest: orchestrator.Terminal(),
			Updates: orchestrator.Updates{
				Reply:   "Okay, I dropped that task.",
				Phase:   conversation.Transition(st.Phase, conversation.EventCancel),
				Context: map[string]any{ctxTaskDraft: nil},
			},
		}
	}

	draft := draftFromContext(st.Context)
	switch st.Phase {
	case conversation.PhaseAddingTask:
		draft.Title = answer
	case conversation.PhaseAddingTaskPillar:
		draft.Pillar = answer
	case conversation.PhaseAddingTaskPriority:
		draft.Priority = normalizePriority(answer)
	case conversation.PhaseAddingTaskDueDate:
		if !isSkip(answer) {
			draft.DueDate = answer
		} else {
			draft.DueDate = "-"
		}
	case conversation.PhaseAddingTaskDuration:
		draft.Duration = parseMinutes(answer)
	}

	next := conversation.Transition(st.Phase, conversation.EventAdvance)
	if next != st.Phase && st.Phase != conversation.PhaseAddingTaskDuration {
		return orchestrator.HandoffCommand{
			Dest: orchestrator.Terminal(),
			Updates: orchestrator.Updates{
				Reply:   questionFor(next),
				Phase:   next,
				Context: map[string]any{ctxTaskDraft: draftToMap(draft)},
			},
		}
	}

	// Last step answered: create the task and leave the flow.
	created, err := h.tasks.Create(ctx, tasks.Task{
		ThreadID: st.ThreadID,
		Title:    draft.Title,
		Pillar:   draft.Pillar,
		Priority: draft.Priority,
		DueDate:  parseDueDate(draft.DueDate),
		Duration: draft.Duration,
	})
	if err != nil {
		return failure("creating task from guided flow: " + err.Error())
	}
	h.observe(ctx, st.ThreadID, insights.KindTaskCreated, "created task: "+created.Title)

	return orchestrator.HandoffCommand{
		Dest: orchestrator.Terminal(),
		Updates: orchestrator.Updates{
			Reply:   fmt.Sprintf("Added %q to your list.", created.Title),
			Phase:   conversation.Transition(st.Phase, conversation.EventComplete),
			Context: map[string]any{ctxTaskDraft: nil},
			Scratch: map[string]any{"created_task_id": created.ID},
		},
	}
}

func (h *TaskHandler) observe(ctx context.Context, threadID, kind, text string) {
	if h.insights == nil {
		return
	}
	if _, err := h.insights.Record(ctx, threadID, kind, text); err != nil {
		h.logger.Warn("failed to record observation", zap.Error(err))
	}
}

func questionFor(phase conversation.Phase) string {
	switch phase {
	case conversation.PhaseAddingTask:
		return "What should the task be called?"
	case conversation.PhaseAddingTaskPillar:
		return "Which pillar does it belong to?"
	case conversation.PhaseAddingTaskPriority:
		return "How important is it: low, medium, or high?"
	case conversation.PhaseAddingTaskDueDate:
		return "When is it due? You can say skip."
	case conversation.PhaseAddingTaskDuration:
		return "Roughly how long will it take, in minutes?"
	}
	return ""
}

func draftFromContext(ctx map[string]any) tasks.Draft {
	raw, _ := ctx[ctxTaskDraft].(map[string]any)
	d := tasks.Draft{
		Title:    stringEntity(raw, "title"),
		Pillar:   stringEntity(raw, "pillar"),
		Priority: stringEntity(raw, "priority"),
		DueDate:  stringEntity(raw, "due_date"),
		Duration: intEntity(raw, "duration_minutes"),
	}
	return d
}

func draftToMap(d tasks.Draft) map[string]any {
	m := map[string]any{}
	if d.Title != "" {
		m["title"] = d.Title
	}
	if d.Pillar != "" {
		m["pillar"] = d.Pillar
	}
	if d.Priority != "" {
		m["priority"] = d.Priority
	}
	if d.DueDate != "" {
		m["due_date"] = d.DueDate
	}
	if d.Duration > 0 {
		m["duration_minutes"] = d.Duration
	}
	return m
}

// priorityFromText reads the requested priority out of free-form phrasing
// like "make it high priority".
func priorityFromText(text string) string {
	lower := strings.ToLower(text)
	switch {
	case strings.Contains(lower, "high"), strings.Contains(lower, "urgent"), strings.Contains(lower, "top"):
		return tasks.PriorityHigh
	case strings.Contains(lower, "low"):
		return tasks.PriorityLow
	}
	return tasks.PriorityMedium
}

func normalizePriority(answer string) string {
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case tasks.PriorityLow, "l":
		return tasks.PriorityLow
	case tasks.PriorityHigh, "h", "urgent":
		return tasks.PriorityHigh
	}
	return tasks.PriorityMedium
}

// parseDueDate accepts the few formats the guided flow sees; anything else,
// including the skip marker, leaves the due date unset.
func parseDueDate(answer string) *time.Time {
	answer = strings.TrimSpace(answer)
	if answer == "" || answer == "-" {
		return nil
	}
	for _, layout := range []string{"2006-01-02", "Jan 2", "January 2"} {
		if t, err := time.Parse(layout, answer); err == nil {
			if t.Year() == 0 {
				t = t.AddDate(time.Now().Year(), 0, 0)
			}
			return &t
		}
	}
	switch strings.ToLower(answer) {
	case "today":
		t := time.Now().Truncate(24 * time.Hour)
		return &t
	case "tomorrow":
		t := time.Now().Truncate(24 * time.Hour).AddDate(0, 0, 1)
		return &t
	}
	return nil
}

func parseMinutes(answer string) int {
	fields := strings.Fields(answer)
	for _, f := range fields {
		if n, err := strconv.Atoi(strings.TrimSuffix(f, "m")); err == nil && n > 0 {
			return n
		}
	}
	return 0
}

func isSkip(answer string) bool {
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "skip", "none", "no", "n/a":
		return true
	}
	return false
}

func isCancel(answer string) bool {
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "cancel", "nevermind", "never mind", "forget it", "stop":
		return true
	}
	return false
}

func stringEntity(m map[string]any, key string) string {
	if m == nil {
		return ""
	}
	s, _ := m[key].(string)
	return s
}

func intEntity(m map[string]any, key string) int {
	if m == nil {
		return 0
	}
	switch v := m[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	case string:
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return 0
}
