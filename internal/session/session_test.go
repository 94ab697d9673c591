package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/growfi/growfi-server/internal/catalog"
	"github.com/growfi/growfi-server/internal/layout"
	"github.com/growfi/growfi-server/internal/ledger"
	"github.com/growfi/growfi-server/internal/model"
	"github.com/growfi/growfi-server/internal/purchase"
)

const testAddress = "rN7n7otQDd6FczFgLdSqtcsAUxDkw6fzRH"

var (
	testFarm  = catalog.Farm{ID: "farm-1", Name: "Test Farm", TokenID: "tok-1", Seed: layout.DefaultSeed}
	otherFarm = catalog.Farm{ID: "farm-2", Name: "Other Farm", TokenID: "tok-2", Seed: 223456}
	epoch     = time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
)

type memStore struct {
	mu      sync.Mutex
	records []model.OwnershipRecord
}

func (m *memStore) SaveOwnership(_ context.Context, rs []model.OwnershipRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, rs...)
	return nil
}

// gatedLedger blocks AuthorizeHolder until release is closed.
type gatedLedger struct {
	*ledger.Simulator
	release chan struct{}
}

func (g *gatedLedger) AuthorizeHolder(ctx context.Context, address, tokenID string) (ledger.TxResult, error) {
	<-g.release
	return g.Simulator.AuthorizeHolder(ctx, address, tokenID)
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

func newRegistry(t *testing.T, l ledger.Ledger) (*Registry, *memStore, *clock) {
	t.Helper()
	store := &memStore{}
	clk := &clock{now: epoch}
	r := NewRegistry(purchase.Deps{
		Connector: ledger.NewWalletConnector(l),
		Ledger:    l,
		Store:     store,
	}, Options{IdleTTL: 10 * time.Minute, CallTimeout: 5 * time.Second, Now: clk.Now})
	return r, store, clk
}

func firstAvailable(t *testing.T, s *Session) string {
	t.Helper()
	for _, p := range s.Cart.Plots() {
		if p.Status == layout.StatusAvailable {
			return p.ID
		}
	}
	t.Fatal("no available plot")
	return ""
}

func recv(t *testing.T, ch <-chan Snapshot) Snapshot {
	t.Helper()
	select {
	case s, ok := <-ch:
		require.True(t, ok, "channel closed")
		return s
	case <-time.After(2 * time.Second):
		t.Fatal("no snapshot received")
		return Snapshot{}
	}
}

func TestGetReusesSessionPerUserAndFarm(t *testing.T) {
	r, _, _ := newRegistry(t, ledger.NewSimulator("testnet", 100))

	a := r.Get(1, testFarm)
	assert.Same(t, a, r.Get(1, testFarm))
	assert.NotSame(t, a, r.Get(1, otherFarm))
	assert.NotSame(t, a, r.Get(2, testFarm))
	assert.Equal(t, 3, r.Len())
	assert.NotEmpty(t, a.ID)

	got, ok := r.Lookup(1, "farm-2")
	require.True(t, ok)
	assert.Equal(t, "farm-2", got.Farm.ID)
	_, ok = r.Lookup(3, "farm-1")
	assert.False(t, ok)
}

func TestSessionLayoutFollowsFarmSeed(t *testing.T) {
	r, _, _ := newRegistry(t, ledger.NewSimulator("testnet", 100))
	assert.Equal(t, layout.Generate(223456), r.Get(1, otherFarm).Cart.Plots())
}

func TestToggleBroadcastsToEveryTab(t *testing.T) {
	r, _, _ := newRegistry(t, ledger.NewSimulator("testnet", 100))
	s := r.Get(1, testFarm)

	tab1, stop1 := s.Subscribe()
	defer stop1()
	tab2, stop2 := s.Subscribe()
	defer stop2()
	assert.Empty(t, recv(t, tab1).Cart.Entries)
	assert.Empty(t, recv(t, tab2).Cart.Entries)

	id := firstAvailable(t, s)
	_, changed, err := s.Toggle(id)
	require.NoError(t, err)
	require.True(t, changed)

	for _, ch := range []<-chan Snapshot{tab1, tab2} {
		snap := recv(t, ch)
		require.Len(t, snap.Cart.Entries, 1)
		assert.Equal(t, id, snap.Cart.Entries[0].PlotID)
		assert.Equal(t, s.ID, snap.SessionID)
	}

	removed, err := s.Remove(id)
	require.NoError(t, err)
	assert.True(t, removed)
	assert.Empty(t, recv(t, tab1).Cart.Entries)
}

func TestSlowSubscriberGetsLatestSnapshot(t *testing.T) {
	r, _, _ := newRegistry(t, ledger.NewSimulator("testnet", 100))
	s := r.Get(1, testFarm)
	ch, stop := s.Subscribe()
	defer stop()

	id := firstAvailable(t, s)
	for i := 0; i < subscriberBuffer*3+1; i++ {
		_, _, err := s.Toggle(id)
		require.NoError(t, err)
	}

	var last Snapshot
	for len(ch) > 0 {
		last = <-ch
	}
	require.Len(t, last.Cart.Entries, 1, "odd number of toggles leaves the plot selected")
}

func TestConcurrentBroadcastsArriveInOrder(t *testing.T) {
	r, _, _ := newRegistry(t, ledger.NewSimulator("testnet", 100))
	s := r.Get(1, testFarm)
	ch, stop := s.Subscribe()
	defer stop()
	first := recv(t, ch)

	var ids []string
	for _, p := range s.Cart.Plots() {
		if p.Status == layout.StatusAvailable && len(ids) < 12 {
			ids = append(ids, p.ID)
		}
	}
	require.Len(t, ids, 12)

	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_, _, err := s.Toggle(id)
			assert.NoError(t, err)
		}(id)
	}
	wg.Wait()

	prev := first.Seq
	var last Snapshot
	for len(ch) > 0 {
		last = <-ch
		assert.Greater(t, last.Seq, prev)
		prev = last.Seq
	}
	assert.Len(t, last.Cart.Entries, len(ids), "the newest snapshot reflects every toggle")
}

func TestUnsubscribeIsIdempotent(t *testing.T) {
	r, _, _ := newRegistry(t, ledger.NewSimulator("testnet", 100))
	s := r.Get(1, testFarm)
	ch, stop := s.Subscribe()
	<-ch
	stop()
	stop()
	_, ok := <-ch
	assert.False(t, ok)
	assert.Equal(t, 0, s.Subscribers())
}

func TestPurchaseStateIsBroadcast(t *testing.T) {
	r, store, _ := newRegistry(t, ledger.NewSimulator("testnet", 100))
	s := r.Get(7, testFarm)
	ctx := context.Background()

	require.True(t, s.Purchase.Connect(ctx, testAddress).Success)
	_, _, err := s.Toggle(firstAvailable(t, s))
	require.NoError(t, err)

	ch, stop := s.Subscribe()
	defer stop()
	recv(t, ch)

	res := s.Purchase.Confirm(ctx)
	require.True(t, res.Success, res.Error)
	assert.True(t, res.Simulated)

	var states []purchase.State
	for len(ch) > 0 {
		states = append(states, (<-ch).Purchase.State)
	}
	assert.Contains(t, states, purchase.StateAuthorizing)
	assert.Equal(t, purchase.StateComplete, states[len(states)-1])
	assert.Len(t, store.records, 1)
	assert.Equal(t, uint64(7), store.records[0].UserID)
}

func TestSweepEvictsIdleSessions(t *testing.T) {
	r, _, clk := newRegistry(t, ledger.NewSimulator("testnet", 100))
	idle := r.Get(1, testFarm)
	clk.Set(epoch.Add(8 * time.Minute))
	r.Get(2, testFarm)

	assert.Equal(t, 0, r.Sweep(epoch.Add(9*time.Minute)))
	assert.Equal(t, 1, r.Sweep(epoch.Add(11*time.Minute)))
	_, ok := r.Lookup(1, testFarm.ID)
	assert.False(t, ok)
	assert.NotSame(t, idle, r.Get(1, testFarm))
}

func TestSweepKeepsSubscribedSessions(t *testing.T) {
	r, _, _ := newRegistry(t, ledger.NewSimulator("testnet", 100))
	_, stop := r.Get(1, testFarm).Subscribe()

	assert.Equal(t, 0, r.Sweep(epoch.Add(time.Hour)))
	stop()
	assert.Equal(t, 1, r.Sweep(epoch.Add(time.Hour)))
}

func TestSweepKeepsSessionsWithPurchaseInFlight(t *testing.T) {
	gate := &gatedLedger{Simulator: ledger.NewSimulator("testnet", 100), release: make(chan struct{})}
	r, _, _ := newRegistry(t, gate)
	s := r.Get(1, testFarm)
	ctx := context.Background()
	require.True(t, s.Purchase.Connect(ctx, testAddress).Success)
	_, _, err := s.Toggle(firstAvailable(t, s))
	require.NoError(t, err)

	done := make(chan purchase.Result, 1)
	go func() { done <- s.Purchase.Confirm(ctx) }()
	require.Eventually(t, s.Purchase.InFlight, 2*time.Second, 5*time.Millisecond)

	assert.Equal(t, 0, r.Sweep(epoch.Add(time.Hour)))

	close(gate.release)
	res := <-done
	require.True(t, res.Success, res.Error)
	assert.Equal(t, 1, r.Sweep(epoch.Add(time.Hour)))
}

func TestCloseEndsSubscriptions(t *testing.T) {
	r, _, _ := newRegistry(t, ledger.NewSimulator("testnet", 100))
	ch, stop := r.Get(1, testFarm).Subscribe()
	defer stop()
	<-ch
	r.Close()
	_, ok := <-ch
	assert.False(t, ok)
}

func TestRunStopsWithContext(t *testing.T) {
	r, _, _ := newRegistry(t, ledger.NewSimulator("testnet", 100))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx, time.Millisecond)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return")
	}
}
