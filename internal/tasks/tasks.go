// Package tasks stores and queries the user's tasks.
package tasks

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Priority buckets, lowest to highest.
const (
	PriorityLow    = "low"
	PriorityMedium = "medium"
	PriorityHigh   = "high"
)

var (
	// ErrNotFound is returned when no task has the requested ID.
	ErrNotFound = errors.New("task not found")

	// ErrInvalidTask indicates a task that fails validation.
	ErrInvalidTask = errors.New("invalid task")
)

// Task is one unit of work the user committed to.
type Task struct {
	ID        string     `json:"id"`
	ThreadID  string     `json:"thread_id"`
	Title     string     `json:"title"`
	Pillar    string     `json:"pillar,omitempty"`
	Priority  string     `json:"priority"`
	DueDate   *time.Time `json:"due_date,omitempty"`
	Duration  int        `json:"duration_minutes,omitempty"`
	Completed bool       `json:"completed"`
	CreatedAt time.Time  `json:"created_at"`
}

// Draft is a partially specified task collected across a guided creation
// flow. Missing returns what still has to be asked for.
type Draft struct {
	Title    string `json:"title,omitempty"`
	Pillar   string `json:"pillar,omitempty"`
	Priority string `json:"priority,omitempty"`
	DueDate  string `json:"due_date,omitempty"`
	Duration int    `json:"duration_minutes,omitempty"`
}

// Missing returns the draft fields still unset, in prompt order.
func (d Draft) Missing() []string {
	var missing []string
	if d.Title == "" {
		missing = append(missing, "title")
	}
	if d.Pillar == "" {
		missing = append(missing, "pillar")
	}
	if d.Priority == "" {
		missing = append(missing, "priority")
	}
	if d.DueDate == "" {
		missing = append(missing, "due_date")
	}
	return missing
}

// Service manages tasks in memory, keyed by thread.
type Service struct {
	mu     sync.RWMutex
	byID   map[string]*Task
	logger *zap.Logger
}

// NewService creates an empty task service.
func NewService(logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		byID:   make(map[string]*Task),
		logger: logger,
	}
}

// Create validates and stores a new task, assigning its ID.
func (s *Service) Create(_ context.Context, t Task) (*Task, error) {
	if strings.TrimSpace(t.Title) == "" {
		return nil, fmt.Errorf("%w: title is required", ErrInvalidTask)
	}
	if t.ThreadID == "" {
		return nil, fmt.Errorf("%w: thread id is required", ErrInvalidTask)
	}
	switch t.Priority {
	case PriorityLow, PriorityMedium, PriorityHigh:
	case "":
		t.Priority = PriorityMedium
	default:
		return nil, fmt.Errorf("%w: unknown priority %q", ErrInvalidTask, t.Priority)
	}

	t.ID = uuid.NewString()
	t.CreatedAt = time.Now().UTC()

	s.mu.Lock()
	s.byID[t.ID] = &t
	s.mu.Unlock()

	s.logger.Info("created task",
		zap.String("task_id", t.ID),
		zap.String("thread_id", t.ThreadID),
		zap.String("priority", t.Priority))
	stored := t
	return &stored, nil
}

// Get returns the task with the given ID.
func (s *Service) Get(_ context.Context, id string) (*Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *t
	return &cp, nil
}

// List returns the thread's open tasks, highest priority first, ties broken
// by due date then creation time.
func (s *Service) List(_ context.Context, threadID string) ([]Task, error) {
	s.mu.RLock()
	var out []Task
	for _, t := range s.byID {
		if t.ThreadID == threadID && !t.Completed {
			out = append(out, *t)
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if pi, pj := priorityRank(out[i].Priority), priorityRank(out[j].Priority); pi != pj {
			return pi > pj
		}
		di, dj := out[i].DueDate, out[j].DueDate
		switch {
		case di != nil && dj != nil && !di.Equal(*dj):
			return di.Before(*dj)
		case di != nil && dj == nil:
			return true
		case di == nil && dj != nil:
			return false
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// Complete marks a task done.
func (s *Service) Complete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.byID[id]
	if !ok {
		return ErrNotFound
	}
	t.Completed = true
	return nil
}

// Update replaces the mutable fields of an existing task.
func (s *Service) Update(_ context.Context, t Task) error {
	if t.ID == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidTask)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.byID[t.ID]
	if !ok {
		return ErrNotFound
	}
	if strings.TrimSpace(t.Title) != "" {
		existing.Title = t.Title
	}
	if t.Pillar != "" {
		existing.Pillar = t.Pillar
	}
	if t.Priority != "" {
		existing.Priority = t.Priority
	}
	if t.DueDate != nil {
		existing.DueDate = t.DueDate
	}
	if t.Duration > 0 {
		existing.Duration = t.Duration
	}
	return nil
}

func priorityRank(p string) int {
	switch p {
	case PriorityHigh:
		return 3
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 1
	}
	return 0
}
