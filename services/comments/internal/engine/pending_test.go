package engine

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLedger_OnePendingPerNodeAndKind(t *testing.T) {
	l := NewLedger()
	require.True(t, l.Begin("c1", KindLike))
	assert.False(t, l.Begin("c1", KindLike))
	assert.True(t, l.Begin("c1", KindEdit), "other kinds are independent")
	assert.True(t, l.Begin("c2", KindLike), "other nodes are independent")
	assert.Equal(t, 3, l.InFlight())

	l.Confirm("c1", KindLike)
	m, ok := l.Lookup("c1", KindLike)
	require.True(t, ok)
	assert.Equal(t, StateConfirmed, m.State)
	assert.True(t, l.Begin("c1", KindLike), "a finished mutation can start again")
}

func TestLedger_RollBack(t *testing.T) {
	l := NewLedger()
	l.Begin("c1", KindDelete)
	assert.True(t, l.Pending("c1"))

	l.RollBack("c1", KindDelete)
	m, _ := l.Lookup("c1", KindDelete)
	assert.Equal(t, StateRolledBack, m.State)
	assert.False(t, l.Pending("c1"))
	assert.Equal(t, 0, l.InFlight())

	// finishing twice keeps the first outcome
	l.Confirm("c1", KindDelete)
	m, _ = l.Lookup("c1", KindDelete)
	assert.Equal(t, StateRolledBack, m.State)
}

func TestLedger_ConfirmWithRename(t *testing.T) {
	l := NewLedger()
	l.Begin("tmp-1", KindAdd)
	l.Confirm("tmp-1", KindAdd, "srv-1")

	_, ok := l.Lookup("tmp-1", KindAdd)
	assert.False(t, ok)
	m, ok := l.Lookup("srv-1", KindAdd)
	require.True(t, ok)
	assert.Equal(t, "srv-1", m.NodeID)
	assert.Equal(t, StateConfirmed, m.State)
	assert.False(t, m.Started.IsZero())
}

func TestLedger_ConcurrentBegin(t *testing.T) {
	l := NewLedger()
	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		won int
	)
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.Begin("c1", KindLike) {
				mu.Lock()
				won++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, won)
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "pending", StatePending.String())
	assert.Equal(t, "confirmed", StateConfirmed.String())
	assert.Equal(t, "rolled_back", StateRolledBack.String())
	assert.Equal(t, "unknown", State(42).String())
}
