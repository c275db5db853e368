// Package onboarding collects a new user's profile across the guided setup
// flow: pillars, working hours, timezone, initial tasks, habits, and mood
// tracking preference.
package onboarding

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/lumehq/lume/internal/conversation"
)

var (
	// ErrNotFound is returned when the thread has no profile yet.
	ErrNotFound = errors.New("profile not found")

	// ErrUnknownStep indicates a phase outside the onboarding sequence.
	ErrUnknownStep = errors.New("unknown onboarding step")
)

// Profile is what onboarding produces. Completed flips once the final step
// (mood tracking) has been recorded.
type Profile struct {
	ThreadID     string    `json:"thread_id"`
	Pillars      []string  `json:"pillars,omitempty"`
	CustomPillar string    `json:"custom_pillar,omitempty"`
	WorkHours    string    `json:"work_hours,omitempty"`
	Timezone     string    `json:"timezone,omitempty"`
	InitialTasks []string  `json:"initial_tasks,omitempty"`
	Habits       []string  `json:"habits,omitempty"`
	MoodTracking bool      `json:"mood_tracking"`
	Completed    bool      `json:"completed"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Service accumulates onboarding answers per thread.
type Service struct {
	mu       sync.RWMutex
	profiles map[string]*Profile
	logger   *zap.Logger
}

// NewService creates an empty onboarding service.
func NewService(logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		profiles: make(map[string]*Profile),
		logger:   logger,
	}
}

// Profile returns the thread's profile, or ErrNotFound.
func (s *Service) Profile(_ context.Context, threadID string) (*Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.profiles[threadID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

// RecordStep stores the user's answer for the given onboarding phase and
// returns the updated profile. Recording the mood tracking step completes
// the profile.
func (s *Service) RecordStep(_ context.Context, threadID string, phase conversation.Phase, answer string) (*Profile, error) {
	if threadID == "" {
		return nil, errors.New("thread id is required")
	}
	answer = strings.TrimSpace(answer)

	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.profiles[threadID]
	if !ok {
		p = &Profile{ThreadID: threadID}
		s.profiles[threadID] = p
	}

	switch phase {
	case conversation.PhaseOnboardingPillars:
		p.Pillars = splitList(answer)
	case conversation.PhaseOnboardingCustomPillar:
		p.CustomPillar = answer
	case conversation.PhaseOnboardingWorkHours:
		p.WorkHours = answer
	case conversation.PhaseOnboardingTimezone:
		p.Timezone = answer
	case conversation.PhaseOnboardingInitialTasks:
		p.InitialTasks = splitList(answer)
	case conversation.PhaseOnboardingHabits:
		p.Habits = splitList(answer)
	case conversation.PhaseOnboardingMoodTracking:
		p.MoodTracking = isAffirmative(answer)
		p.Completed = true
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownStep, phase)
	}
	p.UpdatedAt = time.Now().UTC()

	s.logger.Info("recorded onboarding step",
		zap.String("thread_id", threadID),
		zap.String("step", string(phase)),
		zap.Bool("completed", p.Completed))

	cp := *p
	return &cp, nil
}

// Prompt returns the question to ask for the given onboarding phase.
func Prompt(phase conversation.Phase) string {
	switch phase {
	case conversation.PhaseOnboardingPillars:
		return "Which areas of your life do you want to focus on? For example: health, career, family, learning."
	case conversation.PhaseOnboardingCustomPillar:
		return "You mentioned something outside the usual areas. What should we call that pillar?"
	case conversation.PhaseOnboardingWorkHours:
		return "What are your usual working hours? For example: 9 to 17."
	case conversation.PhaseOnboardingTimezone:
		return "Which timezone are you in? For example: Europe/Madrid."
	case conversation.PhaseOnboardingInitialTasks:
		return "Let's seed your list. What are two or three things on your plate right now?"
	case conversation.PhaseOnboardingHabits:
		return "Any habits you want to build or keep? For example: daily reading, morning run."
	case conversation.PhaseOnboardingMoodTracking:
		return "Last one: want me to check in on your mood once a day? (yes/no)"
	}
	return ""
}

func splitList(answer string) []string {
	var out []string
	for _, part := range strings.FieldsFunc(answer, func(r rune) bool {
		return r == ',' || r == ';' || r == '\n'
	}) {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func isAffirmative(answer string) bool {
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "yes", "y", "yep", "yeah", "sure", "ok", "okay", "please":
		return true
	}
	return false
}
