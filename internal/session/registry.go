package session

import (
	"context"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/growfi/growfi-server/internal/catalog"
	"github.com/growfi/growfi-server/internal/purchase"
)

// DefaultIdleTTL is how long an unused session is kept.
const DefaultIdleTTL = 30 * time.Minute

// Options tune a Registry.
type Options struct {
	IdleTTL     time.Duration
	CallTimeout time.Duration
	Now         func() time.Time
	Log         *zap.Logger
}

type key struct {
	userID uint64
	farmID string
}

// Registry owns the live sessions.
type Registry struct {
	deps purchase.Deps
	opts Options
	log  *zap.Logger

	mu       sync.Mutex
	sessions map[key]*Session
}

// NewRegistry returns an empty registry whose sessions purchase through
// deps.
func NewRegistry(deps purchase.Deps, opts Options) *Registry {
	if opts.IdleTTL <= 0 {
		opts.IdleTTL = DefaultIdleTTL
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Log == nil {
		opts.Log = zap.NewNop()
	}
	if deps.Log == nil {
		deps.Log = opts.Log
	}
	return &Registry{deps: deps, opts: opts, log: opts.Log, sessions: make(map[key]*Session)}
}

// Get returns the user's session for farm, creating it on first use.
func (r *Registry) Get(userID uint64, farm catalog.Farm) *Session {
	k := key{userID, farm.ID}
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[k]; ok {
		s.Touch()
		return s
	}
	s := newSession(userID, farm, r.opts.Now)
	s.Purchase = purchase.New(farm, s.Cart, r.deps, purchase.Options{
		UserID:      userID,
		UserKey:     strconv.FormatUint(userID, 10),
		CallTimeout: r.opts.CallTimeout,
		Now:         r.opts.Now,
		OnChange:    s.Broadcast,
	})
	r.sessions[k] = s
	r.log.Debug("session created", zap.String("session_id", s.ID), zap.Uint64("user_id", userID), zap.String("farm_id", farm.ID))
	return s
}

// Lookup returns an existing session without creating one.
func (r *Registry) Lookup(userID uint64, farmID string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[key{userID, farmID}]
	return s, ok
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Sweep evicts sessions idle for longer than the idle TTL.  Sessions with
// a purchase in flight or an open subscriber are kept.  It returns the
// number evicted.
func (r *Registry) Sweep(now time.Time) int {
	r.mu.Lock()
	var evicted []*Session
	for k, s := range r.sessions {
		if now.Sub(s.idleSince()) <= r.opts.IdleTTL {
			continue
		}
		if s.Purchase.InFlight() || s.Subscribers() > 0 {
			continue
		}
		delete(r.sessions, k)
		evicted = append(evicted, s)
	}
	r.mu.Unlock()

	for _, s := range evicted {
		r.log.Debug("session evicted", zap.String("session_id", s.ID), zap.String("farm_id", s.Farm.ID))
	}
	return len(evicted)
}

// Run sweeps every interval until ctx is done.
func (r *Registry) Run(ctx context.Context, every time.Duration) {
	if every <= 0 {
		every = time.Minute
	}
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			if n := r.Sweep(now); n > 0 {
				r.log.Info("idle sessions evicted", zap.Int("count", n), zap.Int("remaining", r.Len()))
			}
		}
	}
}

// Close ends all subscriptions so stream handlers return.  It is called
// on shutdown; flows in flight are left to finish.
func (r *Registry) Close() {
	r.mu.Lock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.mu.Unlock()
	for _, s := range sessions {
		s.closeSubscribers()
	}
}
