package agents

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/lumehq/lume/internal/calendar"
	"github.com/lumehq/lume/internal/insights"
	"github.com/lumehq/lume/internal/nlu"
	"github.com/lumehq/lume/internal/orchestrator"
)

// defaultSlotMinutes is the slot length when neither the task nor the user
// named a duration.
const defaultSlotMinutes = 30

// CalendarHandler answers calendar queries and finds slots for tasks the task
// handler hands over.
type CalendarHandler struct {
	calendar *calendar.Service
	insights *insights.Service
	logger   *zap.Logger

	// now is swapped in tests.
	now func() time.Time
}

// NewCalendarHandler creates the calendar node. insights may be nil.
func NewCalendarHandler(calSvc *calendar.Service, insightSvc *insights.Service, logger *zap.Logger) *CalendarHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CalendarHandler{
		calendar: calSvc,
		insights: insightSvc,
		logger:   logger,
		now:      time.Now,
	}
}

func (h *CalendarHandler) Name() orchestrator.NodeName { return orchestrator.NodeCalendar }

func (h *CalendarHandler) Handle(ctx context.Context, st *orchestrator.TurnState, _ orchestrator.Scratch) orchestrator.HandoffCommand {
	return protect(h.Name(), h.logger, func() orchestrator.HandoffCommand {
		if scheduling, _ := st.Context[ctxTaskScheduling].(bool); scheduling {
			return h.scheduleHandedOffTask(ctx, st)
		}

		switch st.Intent {
		case nlu.IntentViewCalendar, nlu.IntentCalendarQuery:
			return h.agenda(ctx, st)
		case nlu.IntentSchedule, nlu.IntentScheduleTask:
			return h.scheduleFromEntities(ctx, st)
		}

		return h.agenda(ctx, st)
	})
}

// scheduleHandedOffTask consumes the task_scheduling context the task handler
// set, books a slot, and deletes the keys so they never leak into later turns.
func (h *CalendarHandler) scheduleHandedOffTask(ctx context.Context, st *orchestrator.TurnState) orchestrator.HandoffCommand {
	clear := map[string]any{
		ctxTaskScheduling: nil,
		ctxTaskEntities:   nil,
		ctxTaskID:         nil,
	}

	entities, _ := st.Context[ctxTaskEntities].(map[string]any)
	title := stringEntity(entities, "task_title")
	if title == "" {
		title = "Focused work"
	}
	duration := time.Duration(intEntity(entities, "duration_minutes")) * time.Minute
	if duration <= 0 {
		duration = defaultSlotMinutes * time.Minute
	}
	taskID, _ := st.Context[ctxTaskID].(string)

	slot, err := h.calendar.SuggestSlot(ctx, st.ThreadID, h.now(), duration, calendar.WorkHours{})
	if errors.Is(err, calendar.ErrNoFreeSlot) {
		return orchestrator.HandoffCommand{
			Dest: orchestrator.Terminal(),
			Updates: orchestrator.Updates{
				Reply:   fmt.Sprintf("I added %q, but your next days look full. Want me to look further out?", title),
				Context: clear,
			},
		}
	}
	if err != nil {
		return failure("finding a slot: " + err.Error())
	}

	event, err := h.calendar.Schedule(ctx, calendar.Event{
		ThreadID: st.ThreadID,
		Title:    title,
		Start:    slot,
		End:      slot.Add(duration),
		TaskID:   taskID,
	})
	if err != nil {
		return failure("booking the slot: " + err.Error())
	}
	h.observe(ctx, st.ThreadID, "scheduled task "+title)

	return orchestrator.HandoffCommand{
		Dest: orchestrator.Terminal(),
		Updates: orchestrator.Updates{
			Reply: fmt.Sprintf("Added %q and scheduled it for %s.",
				title, event.Start.Format("Mon Jan 2 at 15:04")),
			Context: clear,
		},
	}
}

// agenda lists the next 24 hours.
func (h *CalendarHandler) agenda(ctx context.Context, st *orchestrator.TurnState) orchestrator.HandoffCommand {
	from := h.now()
	events, err := h.calendar.EventsBetween(ctx, st.ThreadID, from, from.Add(24*time.Hour))
	if err != nil {
		return failure("reading the calendar: " + err.Error())
	}
	if len(events) == 0 {
		return orchestrator.HandoffCommand{
			Dest:    orchestrator.Terminal(),
			Updates: orchestrator.Updates{Reply: "Nothing on your calendar for the next 24 hours."},
		}
	}

	var b strings.Builder
	b.WriteString("Coming up:\n")
	for _, e := range events {
		fmt.Fprintf(&b, "- %s: %s to %s\n", e.Title,
			e.Start.Format("Mon 15:04"), e.End.Format("15:04"))
	}
	return orchestrator.HandoffCommand{
		Dest:    orchestrator.Terminal(),
		Updates: orchestrator.Updates{Reply: strings.TrimRight(b.String(), "\n")},
	}
}

// scheduleFromEntities books a slot for a scheduling request arriving
// directly from the router.
func (h *CalendarHandler) scheduleFromEntities(ctx context.Context, st *orchestrator.TurnState) orchestrator.HandoffCommand {
	title := stringEntity(st.Entities, "title")
	if title == "" {
		prompt := "What would you like me to schedule?"
		return orchestrator.HandoffCommand{
			Dest: orchestrator.To(orchestrator.NodeHuman),
			Updates: orchestrator.Updates{
				ClarificationPrompt: prompt,
				NeedsClarification:  orchestrator.Bool(true),
				HandoffReason:       "scheduling request without a subject",
			},
		}
	}

	duration := time.Duration(intEntity(st.Entities, "duration_minutes")) * time.Minute
	if duration <= 0 {
		duration = defaultSlotMinutes * time.Minute
	}

	slot, err := h.calendar.SuggestSlot(ctx, st.ThreadID, h.now(), duration, calendar.WorkHours{})
	if errors.Is(err, calendar.ErrNoFreeSlot) {
		return orchestrator.HandoffCommand{
			Dest:    orchestrator.Terminal(),
			Updates: orchestrator.Updates{Reply: "Your next days look full. Want me to look further out?"},
		}
	}
	if err != nil {
		return failure("finding a slot: " + err.Error())
	}

	event, err := h.calendar.Schedule(ctx, calendar.Event{
		ThreadID: st.ThreadID,
		Title:    title,
		Start:    slot,
		End:      slot.Add(duration),
	})
	if err != nil {
		return failure("booking the slot: " + err.Error())
	}
	h.observe(ctx, st.ThreadID, "scheduled "+title)

	return orchestrator.HandoffCommand{
		Dest: orchestrator.Terminal(),
		Updates: orchestrator.Updates{
			Reply: fmt.Sprintf("Scheduled %q for %s.", title, event.Start.Format("Mon Jan 2 at 15:04")),
		},
	}
}

func (h *CalendarHandler) observe(ctx context.Context, threadID, text string) {
	if h.insights == nil {
		return
	}
	if _, err := h.insights.Record(ctx, threadID, insights.KindScheduled, text); err != nil {
		h.logger.Warn("failed to record observation", zap.Error(err))
	}
}
