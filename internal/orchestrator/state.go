package orchestrator

import (
	"github.com/lumehq/lume/internal/conversation"
)

// TurnState is the mutable working record for one processing turn. It is
// created fresh per turn, seeded from the thread's persisted phase and
// context, and mutated only by the orchestrator's merge of node Updates.
type TurnState struct {
	ThreadID string

	// Messages is append-only within a turn.
	Messages []conversation.Message

	Phase conversation.Phase

	// ActiveNode names the handler currently owning the turn. At most one
	// non-empty value at any point during execution.
	ActiveNode NodeName

	// Intent, Entities and Confidence are absent until the router has run.
	Intent     string
	Entities   map[string]any
	Confidence float64

	// Context holds shared cross-handler keys. It survives across turns as
	// part of the persisted state; handlers delete turn-scoped keys once
	// consumed.
	Context map[string]any

	// scratch is handler-private working data keyed by node name. Unexported:
	// a handler reaches only its own area through the Scratch capability.
	scratch map[NodeName]map[string]any

	NeedsClarification  bool
	ClarificationPrompt string

	// HandoffTarget and HandoffReason are consumed and cleared by the
	// orchestrator on each loop iteration.
	HandoffTarget NodeName
	HandoffReason string

	Error                 string
	ErrorRecoveryAttempts int

	// HopCount increments once per node invocation within the turn.
	HopCount int

	// Platform carries the raw platform payload, opaque to the core.
	Platform map[string]any
}

// Seed is the persisted subset a new TurnState starts from.
type Seed struct {
	ThreadID              string
	Phase                 conversation.Phase
	Messages              []conversation.Message
	Context               map[string]any
	ErrorRecoveryAttempts int
	Platform              map[string]any
}

// NewTurnState builds the working record for one turn. An empty seed phase
// means a brand-new thread, which starts Idle.
func NewTurnState(seed Seed) *TurnState {
	phase := seed.Phase
	if phase == "" {
		phase = conversation.PhaseIdle
	}
	ctx := seed.Context
	if ctx == nil {
		ctx = make(map[string]any)
	}
	return &TurnState{
		ThreadID: seed.ThreadID,
		Messages: append([]conversation.Message(nil), seed.Messages...),
		Phase:    phase,
		Context:  ctx,
		scratch:  make(map[NodeName]map[string]any),

		ErrorRecoveryAttempts: seed.ErrorRecoveryAttempts,
		Platform:              seed.Platform,
	}
}

// AppendUser appends a user message to the history.
func (st *TurnState) AppendUser(text string) {
	st.Messages = append(st.Messages, conversation.Message{
		Role: conversation.RoleUser,
		Text: text,
	})
}

// LastUserMessage returns the most recent user message text.
func (st *TurnState) LastUserMessage() string {
	return conversation.LastUser(st.Messages)
}

// RecentMessages returns at most n of the latest history entries.
func (st *TurnState) RecentMessages(n int) []conversation.Message {
	return conversation.Window(st.Messages, n)
}

// ScratchFor returns the capability scoped to owner's private area.
func (st *TurnState) ScratchFor(owner NodeName) Scratch {
	return Scratch{owner: owner, st: st}
}

// Scratch is a read capability over a single node's private scratch area.
// Writes go through Updates.Scratch, which the orchestrator merges under the
// emitting node's own key.
type Scratch struct {
	owner NodeName
	st    *TurnState
}

// Get returns the value stored under key in the owner's area.
func (s Scratch) Get(key string) (any, bool) {
	area, ok := s.st.scratch[s.owner]
	if !ok {
		return nil, false
	}
	v, ok := area[key]
	return v, ok
}

// Owner returns the node this capability is scoped to.
func (s Scratch) Owner() NodeName { return s.owner }

// apply merges a node's Updates into the state. Invoked only by the
// orchestrator loop; from names the emitting node for scratch scoping.
func (st *TurnState) apply(from NodeName, u Updates) {
	if u.Reply != "" {
		st.Messages = append(st.Messages, conversation.Message{
			Role: conversation.RoleAssistant,
			Text: u.Reply,
		})
	}
	if u.Phase != "" {
		st.Phase = u.Phase
	}
	if u.Intent != "" {
		st.Intent = u.Intent
	}
	if u.Confidence != nil {
		st.Confidence = *u.Confidence
	}
	if len(u.Entities) > 0 {
		if st.Entities == nil {
			st.Entities = make(map[string]any, len(u.Entities))
		}
		for k, v := range u.Entities {
			st.Entities[k] = v
		}
	}
	for k, v := range u.Context {
		if v == nil {
			delete(st.Context, k)
			continue
		}
		st.Context[k] = v
	}
	if len(u.Scratch) > 0 {
		area, ok := st.scratch[from]
		if !ok {
			area = make(map[string]any, len(u.Scratch))
			st.scratch[from] = area
		}
		for k, v := range u.Scratch {
			area[k] = v
		}
	}
	if u.NeedsClarification != nil {
		st.NeedsClarification = *u.NeedsClarification
	}
	if u.ClarificationPrompt != "" {
		st.ClarificationPrompt = u.ClarificationPrompt
	}
	if u.HandoffReason != "" {
		st.HandoffReason = u.HandoffReason
	}
	if u.Error != "" {
		st.Error = u.Error
	}
}
