// Package session keeps one cart and purchase flow per user and farm, and
// fans out a snapshot to every subscriber (one per open tab) after each
// change.
package session

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/growfi/growfi-server/internal/cart"
	"github.com/growfi/growfi-server/internal/catalog"
	"github.com/growfi/growfi-server/internal/layout"
	"github.com/growfi/growfi-server/internal/purchase"
)

// subscriberBuffer is how many snapshots a slow subscriber may lag behind
// before older ones are dropped.
const subscriberBuffer = 8

// Snapshot is the state pushed to subscribers.
type Snapshot struct {
	SessionID string          `json:"session_id"`
	FarmID    string          `json:"farm_id"`
	Cart      cart.Snapshot   `json:"cart"`
	Purchase  purchase.Status `json:"purchase"`
	At        time.Time       `json:"at"`
	// Seq increases with every snapshot delivered to subscribers.
	Seq uint64 `json:"seq"`
}

// Session is one user's view of one farm.
type Session struct {
	ID       string
	UserID   uint64
	Farm     catalog.Farm
	Cart     *cart.Cart
	Purchase *purchase.Orchestrator

	now func() time.Time

	// bcast orders snapshot capture with delivery; it is taken before mu.
	bcast sync.Mutex
	seq   uint64

	mu       sync.Mutex
	lastSeen time.Time
	nextSub  int
	subs     map[int]chan Snapshot
}

func newSession(userID uint64, farm catalog.Farm, now func() time.Time) *Session {
	return &Session{
		ID:       uuid.NewString(),
		UserID:   userID,
		Farm:     farm,
		Cart:     cart.New(farm.Seed),
		now:      now,
		lastSeen: now(),
		subs:     make(map[int]chan Snapshot),
	}
}

// Snapshot returns the current cart and purchase state.
func (s *Session) Snapshot() Snapshot {
	return Snapshot{
		SessionID: s.ID,
		FarmID:    s.Farm.ID,
		Cart:      s.Cart.Snapshot(),
		Purchase:  s.Purchase.Status(),
		At:        s.now().UTC(),
	}
}

// Toggle selects or deselects a plot and notifies subscribers.
func (s *Session) Toggle(plotID string) (layout.Plot, bool, error) {
	s.Touch()
	p, changed, err := s.Cart.ToggleSelect(plotID)
	if changed {
		s.Broadcast()
	}
	return p, changed, err
}

// Remove drops a plot from the cart and notifies subscribers.
func (s *Session) Remove(plotID string) (bool, error) {
	s.Touch()
	removed, err := s.Cart.RemoveFromCart(plotID)
	if removed {
		s.Broadcast()
	}
	return removed, err
}

// Touch marks the session as recently used.
func (s *Session) Touch() {
	s.mu.Lock()
	s.lastSeen = s.now()
	s.mu.Unlock()
}

// Subscribe registers for snapshots.  The channel receives the current
// snapshot immediately.  The returned func unsubscribes and closes the
// channel; it is safe to call more than once.
func (s *Session) Subscribe() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, subscriberBuffer)

	s.bcast.Lock()
	defer s.bcast.Unlock()
	ch <- s.sequenced()

	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch
	s.lastSeen = s.now()
	s.mu.Unlock()

	return ch, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if c, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(c)
		}
	}
}

// Subscribers returns the number of live subscribers.
func (s *Session) Subscribers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

// Broadcast sends the current snapshot to every subscriber.  A subscriber
// whose buffer is full loses its oldest snapshot; the newest always gets
// through.  Concurrent broadcasts deliver in capture order, so the last
// snapshot a subscriber holds is never older than one delivered before it.
func (s *Session) Broadcast() {
	s.bcast.Lock()
	defer s.bcast.Unlock()
	snap := s.sequenced()
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- snap:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- snap:
			default:
			}
		}
	}
}

// sequenced captures a snapshot and stamps the next sequence number.
// Callers hold bcast.
func (s *Session) sequenced() Snapshot {
	snap := s.Snapshot()
	s.seq++
	snap.Seq = s.seq
	return snap
}

func (s *Session) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}

func (s *Session) closeSubscribers() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, ch := range s.subs {
		delete(s.subs, id)
		close(ch)
	}
}
