// Package calendar stores events and answers scheduling queries: conflict
// detection on insert and free-slot suggestions inside working hours.
package calendar

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

var (
	// ErrConflict is returned when a new event overlaps an existing one.
	ErrConflict = errors.New("event conflicts with an existing event")

	// ErrInvalidEvent indicates an event that fails validation.
	ErrInvalidEvent = errors.New("invalid event")

	// ErrNoFreeSlot is returned when no gap fits the requested duration.
	ErrNoFreeSlot = errors.New("no free slot of the requested duration")
)

// Event is one calendar entry.
type Event struct {
	ID       string    `json:"id"`
	ThreadID string    `json:"thread_id"`
	Title    string    `json:"title"`
	Start    time.Time `json:"start"`
	End      time.Time `json:"end"`

	// TaskID links the event back to the task it schedules, when any.
	TaskID string `json:"task_id,omitempty"`
}

// WorkHours bounds where free slots may be suggested, in the thread's local
// day. Zero value means 9 to 17.
type WorkHours struct {
	StartHour int `json:"start_hour"`
	EndHour   int `json:"end_hour"`
}

func (w WorkHours) orDefault() WorkHours {
	if w.StartHour == 0 && w.EndHour == 0 {
		return WorkHours{StartHour: 9, EndHour: 17}
	}
	return w
}

// Service manages events in memory, keyed by thread.
type Service struct {
	mu     sync.RWMutex
	byID   map[string]*Event
	logger *zap.Logger
}

// NewService creates an empty calendar service.
func NewService(logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		byID:   make(map[string]*Event),
		logger: logger,
	}
}

// Schedule validates and stores a new event. Overlap with any existing event
// on the same thread fails with ErrConflict.
func (s *Service) Schedule(_ context.Context, e Event) (*Event, error) {
	if strings.TrimSpace(e.Title) == "" {
		return nil, fmt.Errorf("%w: title is required", ErrInvalidEvent)
	}
	if e.ThreadID == "" {
		return nil, fmt.Errorf("%w: thread id is required", ErrInvalidEvent)
	}
	if !e.End.After(e.Start) {
		return nil, fmt.Errorf("%w: end must be after start", ErrInvalidEvent)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.byID {
		if existing.ThreadID == e.ThreadID && overlaps(existing.Start, existing.End, e.Start, e.End) {
			return nil, fmt.Errorf("%w: %q from %s to %s", ErrConflict,
				existing.Title, existing.Start.Format(time.Kitchen), existing.End.Format(time.Kitchen))
		}
	}

	e.ID = uuid.NewString()
	s.byID[e.ID] = &e

	s.logger.Info("scheduled event",
		zap.String("event_id", e.ID),
		zap.String("thread_id", e.ThreadID),
		zap.Time("start", e.Start))
	stored := e
	return &stored, nil
}

// EventsBetween returns the thread's events intersecting [from, to),
// ordered by start time.
func (s *Service) EventsBetween(_ context.Context, threadID string, from, to time.Time) ([]Event, error) {
	s.mu.RLock()
	var out []Event
	for _, e := range s.byID {
		if e.ThreadID == threadID && overlaps(e.Start, e.End, from, to) {
			out = append(out, *e)
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out, nil
}

// Cancel removes an event. Cancelling an absent event is not an error.
func (s *Service) Cancel(_ context.Context, id string) error {
	s.mu.Lock()
	delete(s.byID, id)
	s.mu.Unlock()
	return nil
}

// SuggestSlot finds the earliest gap of the given duration inside working
// hours, starting no earlier than after. It scans up to seven days ahead.
func (s *Service) SuggestSlot(ctx context.Context, threadID string, after time.Time, duration time.Duration, hours WorkHours) (time.Time, error) {
	if duration <= 0 {
		return time.Time{}, fmt.Errorf("%w: duration must be positive", ErrInvalidEvent)
	}
	hours = hours.orDefault()

	for day := 0; day < 7; day++ {
		dayStart := time.Date(after.Year(), after.Month(), after.Day(), hours.StartHour, 0, 0, 0, after.Location()).AddDate(0, 0, day)
		dayEnd := time.Date(after.Year(), after.Month(), after.Day(), hours.EndHour, 0, 0, 0, after.Location()).AddDate(0, 0, day)

		cursor := dayStart
		if after.After(cursor) {
			cursor = after
		}
		if !cursor.Add(duration).After(dayEnd) {
			events, err := s.EventsBetween(ctx, threadID, dayStart, dayEnd)
			if err != nil {
				return time.Time{}, err
			}
			for _, e := range events {
				if !cursor.Add(duration).After(e.Start) {
					break
				}
				if e.End.After(cursor) {
					cursor = e.End
				}
			}
			if !cursor.Add(duration).After(dayEnd) {
				return cursor, nil
			}
		}
	}
	return time.Time{}, ErrNoFreeSlot
}

func overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && bStart.Before(aEnd)
}
