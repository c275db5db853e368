// Package insights records behavioral observations per thread and surfaces
// recurring patterns by vector similarity over an embedded chromem store.
package insights

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	chromem "github.com/philippgille/chromem-go"
	"go.uber.org/zap"
)

// Observation kinds.
const (
	KindTaskCreated   = "task_created"
	KindTaskCompleted = "task_completed"
	KindScheduled     = "scheduled"
	KindMood          = "mood"
	KindNote          = "note"
)

var (
	// ErrInvalidObservation indicates an observation that fails validation.
	ErrInvalidObservation = errors.New("invalid observation")
)

// Observation is one recorded behavioral data point.
type Observation struct {
	ID       string    `json:"id"`
	ThreadID string    `json:"thread_id"`
	Kind     string    `json:"kind"`
	Text     string    `json:"text"`
	At       time.Time `json:"at"`
}

// Pattern is an observation surfaced by a similarity query.
type Pattern struct {
	Observation Observation `json:"observation"`
	Similarity  float32     `json:"similarity"`
}

// Config configures the insights service.
type Config struct {
	// Path is the directory for persistence; empty keeps everything in memory.
	Path string

	// Collection is the chromem collection name (default: "lume_insights").
	Collection string

	// Embedding computes document vectors. Defaults to a local deterministic
	// embedding so the service works without any model endpoint.
	Embedding chromem.EmbeddingFunc
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{Collection: "lume_insights"}
}

// Service stores observations and answers pattern queries.
type Service struct {
	collection *chromem.Collection
	logger     *zap.Logger

	mu     sync.RWMutex
	counts map[string]map[string]int // threadID -> kind -> count
}

// NewService creates an insights service backed by chromem.
func NewService(cfg *Config, logger *zap.Logger) (*Service, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Collection == "" {
		cfg.Collection = "lume_insights"
	}
	embedding := cfg.Embedding
	if embedding == nil {
		embedding = LocalEmbedding()
	}

	var db *chromem.DB
	var err error
	if cfg.Path != "" {
		db, err = chromem.NewPersistentDB(cfg.Path, false)
		if err != nil {
			return nil, fmt.Errorf("creating persistent insights db: %w", err)
		}
	} else {
		db = chromem.NewDB()
	}

	collection, err := db.GetOrCreateCollection(cfg.Collection, nil, embedding)
	if err != nil {
		return nil, fmt.Errorf("creating collection %s: %w", cfg.Collection, err)
	}

	return &Service{
		collection: collection,
		logger:     logger,
		counts:     make(map[string]map[string]int),
	}, nil
}

// Record stores one observation.
func (s *Service) Record(ctx context.Context, threadID, kind, text string) (*Observation, error) {
	if threadID == "" {
		return nil, fmt.Errorf("%w: thread id is required", ErrInvalidObservation)
	}
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: text is required", ErrInvalidObservation)
	}
	if kind == "" {
		kind = KindNote
	}

	obs := Observation{
		ID:       uuid.NewString(),
		ThreadID: threadID,
		Kind:     kind,
		Text:     text,
		At:       time.Now().UTC(),
	}

	err := s.collection.AddDocuments(ctx, []chromem.Document{{
		ID:      obs.ID,
		Content: obs.Text,
		Metadata: map[string]string{
			"thread_id": obs.ThreadID,
			"kind":      obs.Kind,
			"at":        obs.At.Format(time.RFC3339),
		},
	}}, 1)
	if err != nil {
		return nil, fmt.Errorf("storing observation: %w", err)
	}

	s.mu.Lock()
	if s.counts[threadID] == nil {
		s.counts[threadID] = make(map[string]int)
	}
	s.counts[threadID][kind]++
	s.mu.Unlock()

	s.logger.Debug("recorded observation",
		zap.String("thread_id", threadID),
		zap.String("kind", kind))
	return &obs, nil
}

// Patterns returns up to k observations similar to the query for the thread,
// most similar first.
func (s *Service) Patterns(ctx context.Context, threadID, query string, k int) ([]Pattern, error) {
	if strings.TrimSpace(query) == "" {
		return nil, errors.New("query is required")
	}
	if k <= 0 {
		k = 5
	}

	s.mu.RLock()
	total := 0
	for _, n := range s.counts[threadID] {
		total += n
	}
	s.mu.RUnlock()
	if total == 0 {
		return nil, nil
	}
	if k > total {
		k = total
	}

	results, err := s.collection.Query(ctx, query, k, map[string]string{"thread_id": threadID}, nil)
	if err != nil {
		return nil, fmt.Errorf("querying observations: %w", err)
	}

	patterns := make([]Pattern, 0, len(results))
	for _, r := range results {
		at, _ := time.Parse(time.RFC3339, r.Metadata["at"])
		patterns = append(patterns, Pattern{
			Observation: Observation{
				ID:       r.ID,
				ThreadID: r.Metadata["thread_id"],
				Kind:     r.Metadata["kind"],
				Text:     r.Content,
				At:       at,
			},
			Similarity: r.Similarity,
		})
	}
	return patterns, nil
}

// Summary renders a short per-kind activity digest for the thread.
func (s *Service) Summary(_ context.Context, threadID string) string {
	s.mu.RLock()
	kinds := s.counts[threadID]
	created := kinds[KindTaskCreated]
	completed := kinds[KindTaskCompleted]
	scheduled := kinds[KindScheduled]
	s.mu.RUnlock()

	if created == 0 && completed == 0 && scheduled == 0 {
		return "I don't have enough history yet to spot patterns. Keep going and check back soon."
	}
	return fmt.Sprintf("So far I've seen %d tasks created, %d completed, and %d scheduling decisions.",
		created, completed, scheduled)
}

// LocalEmbedding is a deterministic token-hash embedding. It is no substitute
// for a real model, but it makes similarity between texts sharing vocabulary
// work offline.
func LocalEmbedding() chromem.EmbeddingFunc {
	const dims = 128
	return func(_ context.Context, text string) ([]float32, error) {
		vec := make([]float32, dims)
		for _, token := range strings.Fields(strings.ToLower(text)) {
			h := fnv.New32a()
			h.Write([]byte(token))
			vec[h.Sum32()%dims]++
		}
		var norm float64
		for _, v := range vec {
			norm += float64(v) * float64(v)
		}
		if norm == 0 {
			vec[0] = 1
			return vec, nil
		}
		scale := float32(1 / math.Sqrt(norm))
		for i := range vec {
			vec[i] *= scale
		}
		return vec, nil
	}
}
