package agents

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/lumehq/lume/internal/conversation"
	"github.com/lumehq/lume/internal/nlu"
	"github.com/lumehq/lume/internal/orchestrator"
	"github.com/lumehq/lume/internal/tasks"
)

func newTaskHandler(t *testing.T) (*TaskHandler, *tasks.Service) {
	t.Helper()
	svc := tasks.NewService(zap.NewNop())
	return NewTaskHandler(svc, nil, zap.NewNop()), svc
}

func handle(h interface {
	Name() orchestrator.NodeName
	Handle(context.Context, *orchestrator.TurnState, orchestrator.Scratch) orchestrator.HandoffCommand
}, st *orchestrator.TurnState) orchestrator.HandoffCommand {
	return h.Handle(context.Background(), st, st.ScratchFor(h.Name()))
}

func TestTaskHandler_ListEmpty(t *testing.T) {
	h, _ := newTaskHandler(t)

	st := newState(conversation.PhaseNormal, "show my tasks")
	st.Intent = nlu.IntentShowTasks
	st.Confidence = 0.9

	cmd := handle(h, st)
	assert.True(t, cmd.Dest.IsTerminal())
	assert.Contains(t, cmd.Updates.Reply, "no open tasks")
}

func TestTaskHandler_ListShowsPriorities(t *testing.T) {
	h, svc := newTaskHandler(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, tasks.Task{ThreadID: "t1", Title: "buy milk", Priority: tasks.PriorityHigh})
	require.NoError(t, err)
	_, err = svc.Create(ctx, tasks.Task{ThreadID: "t1", Title: "water plants", Priority: tasks.PriorityLow})
	require.NoError(t, err)

	st := newState(conversation.PhaseNormal, "show my tasks")
	st.Intent = nlu.IntentShowTasks
	st.Confidence = 0.9

	cmd := handle(h, st)
	assert.Contains(t, cmd.Updates.Reply, "2 open task(s)")
	assert.Contains(t, cmd.Updates.Reply, "[high] buy milk")
	assert.Contains(t, cmd.Updates.Reply, "[low] water plants")
}

func TestTaskHandler_DirectCreateWithConfidentEntities(t *testing.T) {
	h, svc := newTaskHandler(t)

	st := newState(conversation.PhaseNormal, "add task: buy milk")
	st.Intent = nlu.IntentAddTask
	st.Confidence = 0.9
	st.Entities = map[string]any{"title": "buy milk", "priority": "high"}

	cmd := handle(h, st)
	assert.True(t, cmd.Dest.IsTerminal())
	assert.Contains(t, cmd.Updates.Reply, `"buy milk"`)
	assert.NotEmpty(t, cmd.Updates.Scratch["created_task_id"])

	list, err := svc.List(context.Background(), "t1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, tasks.PriorityHigh, list[0].Priority)
}

func TestTaskHandler_CompleteTaskByMessageText(t *testing.T) {
	h, svc := newTaskHandler(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, tasks.Task{ThreadID: "t1", Title: "buy milk"})
	require.NoError(t, err)
	_, err = svc.Create(ctx, tasks.Task{ThreadID: "t1", Title: "water plants"})
	require.NoError(t, err)

	st := newState(conversation.PhaseNormal, "i finished buy milk")
	st.Intent = nlu.IntentCompleteTask
	st.Confidence = 0.85

	cmd := handle(h, st)
	require.True(t, cmd.Dest.IsTerminal())
	assert.Contains(t, cmd.Updates.Reply, `"buy milk"`)
	assert.NotEmpty(t, cmd.Updates.Scratch["completed_task_id"])

	list, err := svc.List(ctx, "t1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "water plants", list[0].Title)
}

func TestTaskHandler_CompleteTaskByTitleEntity(t *testing.T) {
	h, svc := newTaskHandler(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, tasks.Task{ThreadID: "t1", Title: "write quarterly review"})
	require.NoError(t, err)

	st := newState(conversation.PhaseNormal, "that one is done")
	st.Intent = nlu.IntentCompleteTask
	st.Confidence = 0.85
	st.Entities = map[string]any{"title": "quarterly review"}

	cmd := handle(h, st)
	require.True(t, cmd.Dest.IsTerminal())

	list, err := svc.List(ctx, "t1")
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestTaskHandler_CompleteTaskNoMatchAsksWhich(t *testing.T) {
	h, _ := newTaskHandler(t)

	st := newState(conversation.PhaseNormal, "mark it done")
	st.Intent = nlu.IntentCompleteTask
	st.Confidence = 0.85

	cmd := handle(h, st)
	assert.Equal(t, orchestrator.NodeHuman, destNode(t, cmd))
	assert.Contains(t, cmd.Updates.ClarificationPrompt, "Which task")
}

func TestTaskHandler_ReprioritizeFromMessageText(t *testing.T) {
	h, svc := newTaskHandler(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, tasks.Task{ThreadID: "t1", Title: "buy milk", Priority: tasks.PriorityLow})
	require.NoError(t, err)

	st := newState(conversation.PhaseNormal, "make buy milk high priority")
	st.Intent = nlu.IntentPrioritizeTask
	st.Confidence = 0.8

	cmd := handle(h, st)
	require.True(t, cmd.Dest.IsTerminal())
	assert.Contains(t, cmd.Updates.Reply, "high")
	assert.NotEmpty(t, cmd.Updates.Scratch["reprioritized_task_id"])

	list, err := svc.List(ctx, "t1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, tasks.PriorityHigh, list[0].Priority)
}

func TestTaskHandler_TimedTaskHandsOffToCalendar(t *testing.T) {
	h, _ := newTaskHandler(t)

	st := newState(conversation.PhaseNormal, "add task: review PR tomorrow morning")
	st.Intent = nlu.IntentAddTask
	st.Confidence = 0.9
	st.Entities = map[string]any{"title": "review PR", "when": "tomorrow morning"}

	cmd := handle(h, st)
	assert.Equal(t, orchestrator.NodeCalendar, destNode(t, cmd))
	assert.NotEmpty(t, cmd.Updates.HandoffReason)
	assert.Equal(t, true, cmd.Updates.Context[ctxTaskScheduling])

	entities, ok := cmd.Updates.Context[ctxTaskEntities].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "review PR", entities["task_title"])
	assert.NotEmpty(t, cmd.Updates.Context[ctxTaskID])
}

func TestTaskHandler_LowConfidenceAddGoesToClarification(t *testing.T) {
	h, _ := newTaskHandler(t)

	st := newState(conversation.PhaseNormal, "maybe do something?")
	st.Intent = nlu.IntentAddTask
	st.Confidence = 0.5

	cmd := handle(h, st)
	assert.Equal(t, orchestrator.NodeHuman, destNode(t, cmd))
	assert.NotEmpty(t, cmd.Updates.ClarificationPrompt)
}

func TestTaskHandler_MissingTitleStartsGuidedFlow(t *testing.T) {
	h, _ := newTaskHandler(t)

	st := newState(conversation.PhaseNormal, "add a task")
	st.Intent = nlu.IntentAddTask
	st.Confidence = 0.8

	cmd := handle(h, st)
	assert.True(t, cmd.Dest.IsTerminal())
	assert.Equal(t, conversation.PhaseAddingTask, cmd.Updates.Phase)
	assert.Contains(t, cmd.Updates.Reply, "called")
	assert.Contains(t, cmd.Updates.Context, ctxTaskDraft)
}

func TestTaskHandler_GuidedFlowEndToEnd(t *testing.T) {
	h, svc := newTaskHandler(t)

	steps := []struct {
		phase     conversation.Phase
		answer    string
		wantNext  conversation.Phase
		wantAsked string
	}{
		{conversation.PhaseAddingTask, "write quarterly review", conversation.PhaseAddingTaskPillar, "pillar"},
		{conversation.PhaseAddingTaskPillar, "career", conversation.PhaseAddingTaskPriority, "low, medium, or high"},
		{conversation.PhaseAddingTaskPriority, "high", conversation.PhaseAddingTaskDueDate, "due"},
		{conversation.PhaseAddingTaskDueDate, "skip", conversation.PhaseAddingTaskDuration, "minutes"},
	}

	draft := map[string]any{}
	for _, step := range steps {
		st := newState(step.phase, step.answer)
		st.Context[ctxTaskDraft] = draft

		cmd := handle(h, st)
		require.True(t, cmd.Dest.IsTerminal())
		assert.Equal(t, step.wantNext, cmd.Updates.Phase)
		assert.Contains(t, cmd.Updates.Reply, step.wantAsked)

		var ok bool
		draft, ok = cmd.Updates.Context[ctxTaskDraft].(map[string]any)
		require.True(t, ok)
	}

	// Final step creates the task and clears the draft.
	st := newState(conversation.PhaseAddingTaskDuration, "45 minutes")
	st.Context[ctxTaskDraft] = draft

	cmd := handle(h, st)
	require.True(t, cmd.Dest.IsTerminal())
	assert.Equal(t, conversation.PhaseNormal, cmd.Updates.Phase)
	assert.Contains(t, cmd.Updates.Reply, `"write quarterly review"`)
	assert.Nil(t, cmd.Updates.Context[ctxTaskDraft])
	assert.NotEmpty(t, cmd.Updates.Scratch["created_task_id"])

	list, err := svc.List(context.Background(), "t1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "write quarterly review", list[0].Title)
	assert.Equal(t, "career", list[0].Pillar)
	assert.Equal(t, tasks.PriorityHigh, list[0].Priority)
	assert.Equal(t, 45, list[0].Duration)
	assert.Nil(t, list[0].DueDate)
}

func TestTaskHandler_GuidedFlowCancel(t *testing.T) {
	h, svc := newTaskHandler(t)

	st := newState(conversation.PhaseAddingTaskPillar, "nevermind")
	st.Context[ctxTaskDraft] = map[string]any{"title": "half-finished"}

	cmd := handle(h, st)
	require.True(t, cmd.Dest.IsTerminal())
	assert.Equal(t, conversation.PhaseNormal, cmd.Updates.Phase)
	assert.Nil(t, cmd.Updates.Context[ctxTaskDraft])

	list, err := svc.List(context.Background(), "t1")
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestTaskHandler_GeneralChatFallback(t *testing.T) {
	h, _ := newTaskHandler(t)

	st := newState(conversation.PhaseNormal, "how are you?")
	st.Intent = nlu.IntentGeneralChat
	st.Confidence = 0.5

	cmd := handle(h, st)
	assert.True(t, cmd.Dest.IsTerminal())
	assert.Contains(t, cmd.Updates.Reply, "add tasks")
}

func TestNormalizePriority(t *testing.T) {
	assert.Equal(t, tasks.PriorityHigh, normalizePriority("HIGH"))
	assert.Equal(t, tasks.PriorityHigh, normalizePriority("urgent"))
	assert.Equal(t, tasks.PriorityLow, normalizePriority("low"))
	assert.Equal(t, tasks.PriorityMedium, normalizePriority("whatever"))
	assert.Equal(t, tasks.PriorityMedium, normalizePriority(""))
}

func TestPriorityFromText(t *testing.T) {
	assert.Equal(t, tasks.PriorityHigh, priorityFromText("bump it to high"))
	assert.Equal(t, tasks.PriorityHigh, priorityFromText("this is urgent"))
	assert.Equal(t, tasks.PriorityLow, priorityFromText("drop it to low"))
	assert.Equal(t, tasks.PriorityMedium, priorityFromText("change the priority"))
}

func TestParseMinutes(t *testing.T) {
	assert.Equal(t, 45, parseMinutes("45 minutes"))
	assert.Equal(t, 30, parseMinutes("30m"))
	assert.Equal(t, 90, parseMinutes("about 90"))
	assert.Equal(t, 0, parseMinutes("a while"))
}
