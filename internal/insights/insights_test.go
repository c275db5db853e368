package insights

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	svc, err := NewService(nil, zap.NewNop())
	require.NoError(t, err)
	return svc
}

func TestService_RecordValidation(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.Record(ctx, "", KindNote, "text")
	assert.ErrorIs(t, err, ErrInvalidObservation)

	_, err = svc.Record(ctx, "t1", KindNote, "   ")
	assert.ErrorIs(t, err, ErrInvalidObservation)

	obs, err := svc.Record(ctx, "t1", "", "kindless note")
	require.NoError(t, err)
	assert.Equal(t, KindNote, obs.Kind)
	assert.NotEmpty(t, obs.ID)
}

func TestService_PatternsFindsSimilarObservations(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.Record(ctx, "t1", KindTaskCompleted, "finished deep work block in the morning")
	require.NoError(t, err)
	_, err = svc.Record(ctx, "t1", KindTaskCompleted, "morning deep work went well again")
	require.NoError(t, err)
	_, err = svc.Record(ctx, "t1", KindMood, "felt tired after lunch")
	require.NoError(t, err)

	patterns, err := svc.Patterns(ctx, "t1", "morning deep work", 2)
	require.NoError(t, err)
	require.Len(t, patterns, 2)
	for _, p := range patterns {
		assert.Contains(t, p.Observation.Text, "morning")
		assert.Equal(t, "t1", p.Observation.ThreadID)
	}
}

func TestService_PatternsIsolatesThreads(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.Record(ctx, "t1", KindNote, "planning the week")
	require.NoError(t, err)
	_, err = svc.Record(ctx, "t2", KindNote, "planning the week too")
	require.NoError(t, err)

	patterns, err := svc.Patterns(ctx, "t1", "planning", 5)
	require.NoError(t, err)
	require.Len(t, patterns, 1)
	assert.Equal(t, "t1", patterns[0].Observation.ThreadID)
}

func TestService_PatternsEmptyThread(t *testing.T) {
	svc := newTestService(t)

	patterns, err := svc.Patterns(context.Background(), "nobody", "anything", 3)
	require.NoError(t, err)
	assert.Empty(t, patterns)
}

func TestService_Summary(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	assert.Contains(t, svc.Summary(ctx, "t1"), "enough history")

	_, err := svc.Record(ctx, "t1", KindTaskCreated, "added buy milk")
	require.NoError(t, err)
	_, err = svc.Record(ctx, "t1", KindTaskCompleted, "bought milk")
	require.NoError(t, err)

	summary := svc.Summary(ctx, "t1")
	assert.Contains(t, summary, "1 tasks created")
	assert.Contains(t, summary, "1 completed")
}

func TestLocalEmbedding_DeterministicAndNormalized(t *testing.T) {
	embed := LocalEmbedding()
	ctx := context.Background()

	a, err := embed(ctx, "morning deep work")
	require.NoError(t, err)
	b, err := embed(ctx, "morning deep work")
	require.NoError(t, err)
	assert.Equal(t, a, b)

	var norm float64
	for _, v := range a {
		norm += float64(v) * float64(v)
	}
	assert.InDelta(t, 1.0, norm, 1e-5)

	// Empty text still yields a unit vector.
	c, err := embed(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, float32(1), c[0])
}
