package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const instrumentationName = "github.com/lumehq/lume/internal/checkpoint"

// NATSConfig configures the JetStream-backed store.
type NATSConfig struct {
	// Bucket is the JetStream key-value bucket name (default: "lume_threads").
	Bucket string

	// History is how many revisions the bucket keeps per thread (default: 1).
	History uint8
}

// DefaultNATSConfig returns sensible defaults.
func DefaultNATSConfig() *NATSConfig {
	return &NATSConfig{
		Bucket:  "lume_threads",
		History: 1,
	}
}

// NATSStore persists thread state in a NATS JetStream key-value bucket. One
// key per thread; the bucket is created on first use when missing.
type NATSStore struct {
	kv     nats.KeyValue
	logger *zap.Logger

	tracer      trace.Tracer
	meter       metric.Meter
	saveCounter metric.Int64Counter
	loadCounter metric.Int64Counter
}

// NewNATSStore creates a Store over an established NATS connection.
func NewNATSStore(cfg *NATSConfig, nc *nats.Conn, logger *zap.Logger) (*NATSStore, error) {
	if cfg == nil {
		cfg = DefaultNATSConfig()
	}
	if nc == nil {
		return nil, errors.New("nats connection is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	js, err := nc.JetStream()
	if err != nil {
		return nil, fmt.Errorf("creating jetstream context: %w", err)
	}

	kv, err := js.KeyValue(cfg.Bucket)
	if errors.Is(err, nats.ErrBucketNotFound) {
		kv, err = js.CreateKeyValue(&nats.KeyValueConfig{
			Bucket:  cfg.Bucket,
			History: cfg.History,
		})
	}
	if err != nil {
		return nil, fmt.Errorf("opening bucket %s: %w", cfg.Bucket, err)
	}

	s := &NATSStore{
		kv:     kv,
		logger: logger,
		tracer: otel.Tracer(instrumentationName),
		meter:  otel.Meter(instrumentationName),
	}
	s.initMetrics()
	return s, nil
}

func (s *NATSStore) initMetrics() {
	var err error

	s.saveCounter, err = s.meter.Int64Counter(
		"lume.checkpoint.saves_total",
		metric.WithDescription("Total thread checkpoints saved"),
		metric.WithUnit("{save}"),
	)
	if err != nil {
		s.logger.Warn("failed to create save counter", zap.Error(err))
	}

	s.loadCounter, err = s.meter.Int64Counter(
		"lume.checkpoint.loads_total",
		metric.WithDescription("Total thread checkpoint loads labeled by hit/miss"),
		metric.WithUnit("{load}"),
	)
	if err != nil {
		s.logger.Warn("failed to create load counter", zap.Error(err))
	}
}

// Load returns the persisted state for a thread, or ErrNotFound.
func (s *NATSStore) Load(ctx context.Context, threadID string) (*State, error) {
	ctx, span := s.tracer.Start(ctx, "checkpoint.load",
		trace.WithAttributes(attribute.String("thread_id", threadID)))
	defer span.End()

	if threadID == "" {
		return nil, errors.New("thread id is required")
	}

	entry, err := s.kv.Get(threadKey(threadID))
	if errors.Is(err, nats.ErrKeyNotFound) {
		if s.loadCounter != nil {
			s.loadCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("result", "miss")))
		}
		return nil, ErrNotFound
	}
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("loading checkpoint for %s: %w", threadID, err)
	}

	var st State
	if err := json.Unmarshal(entry.Value(), &st); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("decoding checkpoint for %s: %w", threadID, err)
	}

	if s.loadCounter != nil {
		s.loadCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("result", "hit")))
	}
	return &st, nil
}

// Save persists the state for a thread.
func (s *NATSStore) Save(ctx context.Context, threadID string, state *State) error {
	ctx, span := s.tracer.Start(ctx, "checkpoint.save",
		trace.WithAttributes(attribute.String("thread_id", threadID)))
	defer span.End()

	if threadID == "" {
		return errors.New("thread id is required")
	}
	if state == nil {
		return errors.New("state is required")
	}

	raw, err := json.Marshal(state)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("encoding checkpoint for %s: %w", threadID, err)
	}

	if _, err := s.kv.Put(threadKey(threadID), raw); err != nil {
		span.RecordError(err)
		return fmt.Errorf("saving checkpoint for %s: %w", threadID, err)
	}

	if s.saveCounter != nil {
		s.saveCounter.Add(ctx, 1)
	}
	s.logger.Debug("saved checkpoint",
		zap.String("thread_id", threadID),
		zap.String("phase", string(state.Phase)))
	return nil
}

// Delete removes a thread's state.
func (s *NATSStore) Delete(ctx context.Context, threadID string) error {
	_, span := s.tracer.Start(ctx, "checkpoint.delete",
		trace.WithAttributes(attribute.String("thread_id", threadID)))
	defer span.End()

	err := s.kv.Delete(threadKey(threadID))
	if err != nil && !errors.Is(err, nats.ErrKeyNotFound) {
		span.RecordError(err)
		return fmt.Errorf("deleting checkpoint for %s: %w", threadID, err)
	}
	return nil
}

// Close is a no-op; the NATS connection is owned by the caller.
func (s *NATSStore) Close() error { return nil }

// threadKey maps a thread ID onto the JetStream key charset. Valid key
// characters pass through; everything else becomes an underscore.
func threadKey(threadID string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '-' || r == '_' || r == '=' || r == '.':
			return r
		}
		return '_'
	}, threadID)
}
