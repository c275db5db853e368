package agents

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/lumehq/lume/internal/conversation"
	"github.com/lumehq/lume/internal/onboarding"
	"github.com/lumehq/lume/internal/orchestrator"
)

// OnboardingHandler walks a new user through the setup steps, one question
// per turn, and flips the thread to Normal once the profile completes.
type OnboardingHandler struct {
	onboarding *onboarding.Service
	logger     *zap.Logger
}

// NewOnboardingHandler creates the onboarding node.
func NewOnboardingHandler(svc *onboarding.Service, logger *zap.Logger) *OnboardingHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OnboardingHandler{onboarding: svc, logger: logger}
}

func (h *OnboardingHandler) Name() orchestrator.NodeName { return orchestrator.NodeOnboarding }

func (h *OnboardingHandler) Handle(ctx context.Context, st *orchestrator.TurnState, _ orchestrator.Scratch) orchestrator.HandoffCommand {
	return protect(h.Name(), h.logger, func() orchestrator.HandoffCommand {
		if !st.Phase.IsOnboarding() {
			return h.start(st)
		}
		return h.recordAnswer(ctx, st)
	})
}

// start enters the flow at its first step.
func (h *OnboardingHandler) start(st *orchestrator.TurnState) orchestrator.HandoffCommand {
	first := conversation.Transition(st.Phase, conversation.EventStartOnboarding)
	if !first.IsOnboarding() {
		// Mid-flow phases cannot restart onboarding.
		return orchestrator.HandoffCommand{
			Dest: orchestrator.Terminal(),
			Updates: orchestrator.Updates{
				Reply: "Let's finish what we're doing first, then I can walk you through setup.",
			},
		}
	}
	return orchestrator.HandoffCommand{
		Dest: orchestrator.Terminal(),
		Updates: orchestrator.Updates{
			Reply: "Welcome! A few quick questions to set you up.\n\n" + onboarding.Prompt(first),
			Phase: first,
		},
	}
}

// recordAnswer stores the reply for the current step and asks the next
// question, skipping the custom pillar step unless the pillars call for it.
func (h *OnboardingHandler) recordAnswer(ctx context.Context, st *orchestrator.TurnState) orchestrator.HandoffCommand {
	answer := st.LastUserMessage()

	profile, err := h.onboarding.RecordStep(ctx, st.ThreadID, st.Phase, answer)
	if err != nil {
		return failure("recording onboarding step: " + err.Error())
	}

	if profile.Completed {
		return orchestrator.HandoffCommand{
			Dest: orchestrator.Terminal(),
			Updates: orchestrator.Updates{
				Reply: completionSummary(profile),
				Phase: conversation.Transition(st.Phase, conversation.EventOnboardingComplete),
			},
		}
	}

	next := conversation.Transition(st.Phase, conversation.EventAdvance)
	if next == conversation.PhaseOnboardingCustomPillar && !wantsCustomPillar(profile.Pillars) {
		next = conversation.Transition(next, conversation.EventAdvance)
	}

	return orchestrator.HandoffCommand{
		Dest: orchestrator.Terminal(),
		Updates: orchestrator.Updates{
			Reply: onboarding.Prompt(next),
			Phase: next,
		},
	}
}

func wantsCustomPillar(pillars []string) bool {
	for _, p := range pillars {
		lower := strings.ToLower(p)
		if strings.Contains(lower, "other") || strings.Contains(lower, "custom") {
			return true
		}
	}
	return false
}

func completionSummary(p *onboarding.Profile) string {
	var b strings.Builder
	b.WriteString("You're all set!")
	if len(p.Pillars) > 0 {
		fmt.Fprintf(&b, " We'll focus on %s.", strings.Join(p.Pillars, ", "))
	}
	if p.MoodTracking {
		b.WriteString(" I'll check in on your mood once a day.")
	}
	b.WriteString(" Try \"add task: ...\" to get going.")
	return b.String()
}
