package onboarding

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/lumehq/lume/internal/conversation"
)

func TestService_RecordStepAccumulatesProfile(t *testing.T) {
	svc := NewService(zap.NewNop())
	ctx := context.Background()

	_, err := svc.RecordStep(ctx, "t1", conversation.PhaseOnboardingPillars, "health, career,learning")
	require.NoError(t, err)
	_, err = svc.RecordStep(ctx, "t1", conversation.PhaseOnboardingWorkHours, "9 to 17")
	require.NoError(t, err)
	p, err := svc.RecordStep(ctx, "t1", conversation.PhaseOnboardingTimezone, "Europe/Madrid")
	require.NoError(t, err)

	assert.Equal(t, []string{"health", "career", "learning"}, p.Pillars)
	assert.Equal(t, "9 to 17", p.WorkHours)
	assert.Equal(t, "Europe/Madrid", p.Timezone)
	assert.False(t, p.Completed)
}

func TestService_MoodTrackingStepCompletesProfile(t *testing.T) {
	svc := NewService(zap.NewNop())
	ctx := context.Background()

	p, err := svc.RecordStep(ctx, "t1", conversation.PhaseOnboardingMoodTracking, "yes please")
	require.NoError(t, err)
	assert.True(t, p.Completed)
	// "yes please" is not a recognized bare affirmative.
	assert.False(t, p.MoodTracking)

	p, err = svc.RecordStep(ctx, "t2", conversation.PhaseOnboardingMoodTracking, "yes")
	require.NoError(t, err)
	assert.True(t, p.MoodTracking)

	p, err = svc.RecordStep(ctx, "t3", conversation.PhaseOnboardingMoodTracking, "no thanks")
	require.NoError(t, err)
	assert.True(t, p.Completed)
	assert.False(t, p.MoodTracking)
}

func TestService_RecordStepRejectsNonOnboardingPhase(t *testing.T) {
	svc := NewService(zap.NewNop())
	_, err := svc.RecordStep(context.Background(), "t1", conversation.PhaseNormal, "x")
	assert.ErrorIs(t, err, ErrUnknownStep)
}

func TestService_ProfileLookup(t *testing.T) {
	svc := NewService(zap.NewNop())
	ctx := context.Background()

	_, err := svc.Profile(ctx, "t1")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = svc.RecordStep(ctx, "t1", conversation.PhaseOnboardingHabits, "daily reading; morning run")
	require.NoError(t, err)

	p, err := svc.Profile(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, []string{"daily reading", "morning run"}, p.Habits)
}

func TestPrompt_CoversEveryOnboardingPhase(t *testing.T) {
	phases := []conversation.Phase{
		conversation.PhaseOnboardingPillars,
		conversation.PhaseOnboardingCustomPillar,
		conversation.PhaseOnboardingWorkHours,
		conversation.PhaseOnboardingTimezone,
		conversation.PhaseOnboardingInitialTasks,
		conversation.PhaseOnboardingHabits,
		conversation.PhaseOnboardingMoodTracking,
	}
	for _, phase := range phases {
		assert.NotEmpty(t, Prompt(phase), string(phase))
	}
	assert.Empty(t, Prompt(conversation.PhaseNormal))
}
