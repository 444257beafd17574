package engine

import (
	"sync"
	"time"
)

// State is the lifecycle of an optimistic mutation.
type State int

const (
	StatePending State = iota
	StateConfirmed
	StateRolledBack
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateConfirmed:
		return "confirmed"
	case StateRolledBack:
		return "rolled_back"
	default:
		return "unknown"
	}
}

type ledgerKey struct {
	nodeID string
	kind   Kind
}

// Mutation is one tracked optimistic change.
type Mutation struct {
	NodeID  string
	Kind    Kind
	State   State
	Started time.Time
}

// Ledger tracks optimistic mutations per node and kind, allowing at most one
// pending mutation of a kind on a node. Safe for concurrent use.
type Ledger struct {
	mu      sync.Mutex
	entries map[ledgerKey]Mutation
}

func NewLedger() *Ledger {
	return &Ledger{entries: make(map[ledgerKey]Mutation)}
}

// Begin moves (nodeID, kind) to pending. It returns false if a mutation of the
// same kind on the same node is still pending.
func (l *Ledger) Begin(nodeID string, kind Kind) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	k := ledgerKey{nodeID: nodeID, kind: kind}
	if m, ok := l.entries[k]; ok && m.State == StatePending {
		return false
	}
	l.entries[k] = Mutation{NodeID: nodeID, Kind: kind, State: StatePending, Started: time.Now()}
	return true
}

// Confirm marks a pending mutation confirmed. A rename (provisional id
// replaced by the server id) is recorded under the new id.
func (l *Ledger) Confirm(nodeID string, kind Kind, renamedTo ...string) {
	l.finish(nodeID, kind, StateConfirmed, renamedTo...)
}

// RollBack marks a pending mutation rolled back.
func (l *Ledger) RollBack(nodeID string, kind Kind) {
	l.finish(nodeID, kind, StateRolledBack)
}

func (l *Ledger) finish(nodeID string, kind Kind, st State, renamedTo ...string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	k := ledgerKey{nodeID: nodeID, kind: kind}
	m, ok := l.entries[k]
	if !ok || m.State != StatePending {
		return
	}
	m.State = st
	if len(renamedTo) > 0 && renamedTo[0] != "" && renamedTo[0] != nodeID {
		delete(l.entries, k)
		m.NodeID = renamedTo[0]
		k.nodeID = renamedTo[0]
	}
	l.entries[k] = m
}

// Lookup returns the last mutation recorded for (nodeID, kind).
func (l *Ledger) Lookup(nodeID string, kind Kind) (Mutation, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	m, ok := l.entries[ledgerKey{nodeID: nodeID, kind: kind}]
	return m, ok
}

// Pending reports whether nodeID has any pending mutation.
func (l *Ledger) Pending(nodeID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for k, m := range l.entries {
		if k.nodeID == nodeID && m.State == StatePending {
			return true
		}
	}
	return false
}

// InFlight counts pending mutations.
func (l *Ledger) InFlight() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, m := range l.entries {
		if m.State == StatePending {
			n++
		}
	}
	return n
}
