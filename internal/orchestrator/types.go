package orchestrator

import (
	"context"

	"github.com/lumehq/lume/internal/conversation"
)

// NodeName identifies a handler node. The set of names is closed: routing to
// anything outside it is an orchestration defect, not a runtime lookup miss.
type NodeName string

const (
	NodeRouter     NodeName = "router"
	NodeTask       NodeName = "task"
	NodeCalendar   NodeName = "calendar"
	NodeOnboarding NodeName = "onboarding"
	NodeLearning   NodeName = "learning"
	NodeHuman      NodeName = "human"
)

// AllNodes returns every legal node name.
func AllNodes() []NodeName {
	return []NodeName{
		NodeRouter, NodeTask, NodeCalendar, NodeOnboarding, NodeLearning, NodeHuman,
	}
}

// Valid reports whether n is a known node name.
func (n NodeName) Valid() bool {
	switch n {
	case NodeRouter, NodeTask, NodeCalendar, NodeOnboarding, NodeLearning, NodeHuman:
		return true
	}
	return false
}

type destKind int

const (
	destInvalid destKind = iota
	destNode
	destTerminal
	destSuspend
)

// Destination is the tagged target of a HandoffCommand: a named node, the
// terminal marker, or the suspend marker.
type Destination struct {
	kind destKind
	node NodeName
}

// To targets a named sibling node.
func To(n NodeName) Destination { return Destination{kind: destNode, node: n} }

// Terminal stops the turn; the accumulated state is the turn's result.
func Terminal() Destination { return Destination{kind: destTerminal} }

// Suspend stops the turn awaiting user clarification; the thread's persisted
// phase becomes Clarifying.
func Suspend() Destination { return Destination{kind: destSuspend} }

// Node returns the target node name when the destination is a node.
func (d Destination) Node() (NodeName, bool) { return d.node, d.kind == destNode }

// IsTerminal reports whether the destination is the terminal marker.
func (d Destination) IsTerminal() bool { return d.kind == destTerminal }

// IsSuspend reports whether the destination is the suspend marker.
func (d Destination) IsSuspend() bool { return d.kind == destSuspend }

func (d Destination) String() string {
	switch d.kind {
	case destNode:
		return string(d.node)
	case destTerminal:
		return "terminal"
	case destSuspend:
		return "suspend"
	}
	return "invalid"
}

// Updates is the partial TurnState a node asks the orchestrator to merge.
// Zero-valued fields leave the state unchanged; maps merge per key, and a nil
// map value deletes the key. Scratch always merges into the emitting node's
// own area, so a handler cannot write another handler's scratch.
type Updates struct {
	// Reply is appended to the history as an assistant message when non-empty.
	Reply string

	Phase      conversation.Phase
	Intent     string
	Confidence *float64
	Entities   map[string]any
	Context    map[string]any
	Scratch    map[string]any

	NeedsClarification  *bool
	ClarificationPrompt string

	// HandoffReason must be non-empty when the command targets a sibling node.
	HandoffReason string

	Error string
}

// HandoffCommand is a node's verdict for the current hop: where control goes
// next and what state to merge first. Nodes produce these; the orchestrator
// never constructs one on a node's behalf.
type HandoffCommand struct {
	Dest    Destination
	Updates Updates
}

// Node is one handler in the graph. Handle must not let a failure escape:
// collaborator errors and panics are converted by the handler itself into a
// clarification handoff, so failure is just another HandoffCommand.
type Node interface {
	Name() NodeName
	Handle(ctx context.Context, st *TurnState, scratch Scratch) HandoffCommand
}

// Float64 returns a pointer for Updates fields that distinguish unset from zero.
func Float64(v float64) *float64 { return &v }

// Bool returns a pointer for Updates fields that distinguish unset from false.
func Bool(v bool) *bool { return &v }
