package purchase

import (
	"context"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/growfi/growfi-server/internal/cart"
	"github.com/growfi/growfi-server/internal/catalog"
	"github.com/growfi/growfi-server/internal/ledger"
	"github.com/growfi/growfi-server/internal/model"
	"github.com/growfi/growfi-server/internal/queue"
)

// DefaultCallTimeout bounds a single ledger or wallet call.
const DefaultCallTimeout = 30 * time.Second

// OwnershipStore persists ownership records, overwriting any record with
// the same farm and plot.
type OwnershipStore interface {
	SaveOwnership(ctx context.Context, records []model.OwnershipRecord) error
}

// WalletMemory remembers the last wallet a user connected.  Last returns
// an empty address when nothing is remembered.
type WalletMemory interface {
	Remember(ctx context.Context, userKey, address string) error
	Last(ctx context.Context, userKey string) (string, error)
}

// EventPublisher announces completed purchases.
type EventPublisher interface {
	PublishPlotsPurchased(ctx context.Context, ev queue.PlotsPurchasedEvent) error
}

// Deps are the collaborators of an Orchestrator.  Wallets, Events and Log
// are optional.
type Deps struct {
	Connector ledger.Connector
	Ledger    ledger.Ledger
	Store     OwnershipStore
	Wallets   WalletMemory
	Events    EventPublisher
	Log       *zap.Logger
}

// Options identify the purchaser and tune the flow.
type Options struct {
	UserID      uint64
	UserKey     string
	CallTimeout time.Duration
	Now         func() time.Time
	// OnChange is called after every state transition, outside any lock.
	OnChange func()
}

// Status is a point-in-time view of the flow.
type Status struct {
	State    State          `json:"state"`
	InFlight bool           `json:"in_flight"`
	Wallet   *ledger.Wallet `json:"wallet,omitempty"`
	Last     *Result        `json:"last,omitempty"`
}

// Orchestrator runs the purchase flow for one user's cart on one farm.
// Only one flow runs at a time; a second Confirm while a flow is active is
// rejected with KindBusy and never reaches the ledger.
type Orchestrator struct {
	farm catalog.Farm
	cart *cart.Cart
	deps Deps
	opts Options
	log  *zap.Logger

	mu         sync.Mutex
	state      State
	wallet     *ledger.Wallet
	busy       bool
	recording  bool // payment confirmed, ownership being written
	pending    bool // a Confirm is waiting for a wallet
	epoch      uint64
	cancel     context.CancelFunc
	authorized map[string]bool
	last       *Result
}

// New returns an idle orchestrator over c.
func New(farm catalog.Farm, c *cart.Cart, deps Deps, opts Options) *Orchestrator {
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = DefaultCallTimeout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	log := deps.Log
	if log == nil {
		log = zap.NewNop()
	}
	return &Orchestrator{
		farm:       farm,
		cart:       c,
		deps:       deps,
		opts:       opts,
		log:        log.With(zap.String("farm_id", farm.ID), zap.Uint64("user_id", opts.UserID)),
		state:      StateIdle,
		authorized: make(map[string]bool),
	}
}

// Status returns the current state of the flow.
func (o *Orchestrator) Status() Status {
	o.mu.Lock()
	defer o.mu.Unlock()
	s := Status{State: o.state, InFlight: o.busy, Last: o.last}
	if o.wallet != nil {
		w := *o.wallet
		s.Wallet = &w
	}
	return s
}

// InFlight reports whether a flow is currently running.
func (o *Orchestrator) InFlight() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.busy
}

// Connect connects the wallet at address.  When a Confirm is waiting for a
// wallet the purchase resumes with the connected wallet and Connect returns
// the purchase result.
func (o *Orchestrator) Connect(ctx context.Context, address string) Result {
	o.mu.Lock()
	if o.busy {
		defer o.mu.Unlock()
		return o.resultLocked(KindBusy, "a purchase is already in progress")
	}
	pending := o.pending
	flowCtx, epoch := o.beginLocked(ctx)
	o.mu.Unlock()

	w, err := bounded(flowCtx, o.opts.CallTimeout, func(ctx context.Context) (ledger.Wallet, error) {
		return o.deps.Connector.Connect(ctx, address)
	})

	o.mu.Lock()
	if epoch != o.epoch {
		defer o.mu.Unlock()
		return o.resultLocked(KindCancelled, "purchase cancelled")
	}
	if err != nil {
		kind, msg := classify(err)
		if pending {
			o.state = StateWalletRequired
		} else if o.state == StateWalletRequired {
			o.state = StateIdle
		}
		o.endLocked()
		res := o.finishLocked(Result{State: o.state, Kind: kind, Error: msg})
		o.mu.Unlock()
		o.log.Info("wallet connect failed", zap.String("kind", string(kind)), zap.Error(err))
		o.changed()
		return res
	}
	o.wallet = &w
	o.mu.Unlock()

	o.remember(ctx, w.Address)
	o.log.Info("wallet connected", zap.String("network", w.Network))

	if !pending {
		o.mu.Lock()
		if o.state == StateWalletRequired {
			o.state = StateIdle
		}
		o.endLocked()
		res := Result{Success: true, State: o.state, Wallet: &w}
		o.mu.Unlock()
		o.changed()
		return res
	}

	o.mu.Lock()
	o.pending = false
	o.mu.Unlock()
	return o.run(flowCtx, epoch, w)
}

// Confirm purchases every plot in the cart.  Without a connected wallet it
// first tries the last remembered wallet and otherwise parks the flow in
// WalletRequired until Connect is called.
func (o *Orchestrator) Confirm(ctx context.Context) Result {
	o.mu.Lock()
	if o.busy {
		defer o.mu.Unlock()
		o.log.Warn("confirm rejected, purchase in flight", zap.String("state", string(o.state)))
		return o.resultLocked(KindBusy, "a purchase is already in progress")
	}
	if o.cart.Len() == 0 {
		defer o.mu.Unlock()
		return o.resultLocked(KindValidation, "cart is empty")
	}
	flowCtx, epoch := o.beginLocked(ctx)
	var wallet ledger.Wallet
	connected := o.wallet != nil
	if connected {
		wallet = *o.wallet
	}
	o.mu.Unlock()

	if !connected {
		w, ok := o.restore(flowCtx)
		o.mu.Lock()
		if epoch != o.epoch {
			defer o.mu.Unlock()
			return o.resultLocked(KindCancelled, "purchase cancelled")
		}
		if !ok {
			o.state = StateWalletRequired
			o.pending = true
			o.endLocked()
			res := o.resultLocked(KindWalletRequired, "connect a wallet to continue")
			o.mu.Unlock()
			o.changed()
			return res
		}
		o.wallet = &w
		wallet = w
		o.mu.Unlock()
	}
	return o.run(flowCtx, epoch, wallet)
}

// Cancel abandons the current flow and returns to Idle.  An outstanding
// ledger call is cancelled and its result, should it still arrive, is
// discarded.  Once the payment is confirmed the flow can no longer be
// cancelled and Cancel returns KindBusy.
func (o *Orchestrator) Cancel() Result {
	o.mu.Lock()
	if o.recording {
		defer o.mu.Unlock()
		return o.resultLocked(KindBusy, "payment confirmed, recording ownership")
	}
	if o.cancel != nil {
		o.cancel()
		o.cancel = nil
	}
	wasBusy := o.busy
	o.epoch++
	o.busy = false
	o.pending = false
	o.state = StateIdle
	o.cart.Unlock()
	res := Result{Success: true, State: StateIdle}
	o.mu.Unlock()

	if wasBusy {
		o.log.Info("purchase cancelled")
	}
	o.changed()
	return res
}

// run executes authorize, transfer and record for the locked cart.  It
// must be entered with busy set for epoch.
func (o *Orchestrator) run(ctx context.Context, epoch uint64, w ledger.Wallet) Result {
	tokenID := o.farm.TokenID
	authKey := w.Address + "|" + tokenID
	res := Result{Wallet: &w}

	// The cart is locked under mu so the lock always belongs to the
	// current epoch.
	o.mu.Lock()
	if epoch != o.epoch {
		defer o.mu.Unlock()
		return o.resultLocked(KindCancelled, "purchase cancelled")
	}
	entries, err := o.cart.Lock()
	if err != nil {
		defer o.mu.Unlock()
		o.endLocked()
		return o.resultLocked(KindBusy, "a purchase is already in progress")
	}
	if len(entries) == 0 {
		defer o.mu.Unlock()
		o.cart.Unlock()
		o.state = StateIdle
		o.endLocked()
		return o.resultLocked(KindValidation, "cart is empty")
	}
	skipAuth := o.authorized[authKey]
	if skipAuth {
		o.state = StatePurchasing
	} else {
		o.state = StateAuthorizing
	}
	o.mu.Unlock()
	o.changed()

	if !skipAuth {
		auth, err := bounded(ctx, o.opts.CallTimeout, func(ctx context.Context) (ledger.TxResult, error) {
			return o.deps.Ledger.AuthorizeHolder(ctx, w.Address, tokenID)
		})
		o.mu.Lock()
		if epoch != o.epoch {
			defer o.mu.Unlock()
			return o.resultLocked(KindCancelled, "purchase cancelled")
		}
		if err != nil {
			return o.failLocked(res, "authorize", err)
		}
		o.authorized[authKey] = true
		res.AuthTxRef = auth.TxRef
		res.Simulated = auth.Simulated
		o.state = StatePurchasing
		o.mu.Unlock()
		o.log.Info("holder authorized", zap.String("tx_ref", auth.TxRef))
		o.changed()
	}

	ids := make([]string, len(entries))
	for i, e := range entries {
		ids[i] = e.PlotID
	}
	transfer := ledger.Transfer{
		Address: w.Address,
		TokenID: tokenID,
		Amount:  len(entries),
		Memo:    Memo(o.farm.Name, ids),
	}
	pay, err := bounded(ctx, o.opts.CallTimeout, func(ctx context.Context) (ledger.TxResult, error) {
		return o.deps.Ledger.SubmitTransfer(ctx, transfer)
	})

	o.mu.Lock()
	if epoch != o.epoch {
		defer o.mu.Unlock()
		if err == nil {
			o.log.Warn("discarding payment result of a cancelled purchase", zap.String("tx_ref", pay.TxRef))
		}
		return o.resultLocked(KindCancelled, "purchase cancelled")
	}
	if err != nil {
		return o.failLocked(res, "transfer", err)
	}
	res.PaymentTxRef = pay.TxRef
	res.ExplorerURL = pay.ExplorerURL
	res.Simulated = res.Simulated || pay.Simulated

	now := o.opts.Now().UTC()
	records := make([]model.OwnershipRecord, len(entries))
	var total float64
	for i, e := range entries {
		records[i] = model.OwnershipRecord{
			FarmID:           o.farm.ID,
			PlotID:           e.PlotID,
			FarmName:         o.farm.Name,
			UserID:           o.opts.UserID,
			Holder:           w.Address,
			TokenID:          tokenID,
			PricePaidXRP:     e.PriceXRP,
			Crop:             string(e.Crop),
			EstimatedYieldKg: e.YieldKg,
			TxRef:            pay.TxRef,
			Simulated:        res.Simulated,
			PurchasedAt:      now,
		}
		total += e.PriceXRP
	}

	// The payment already happened, so the write must not be abandoned
	// because the caller went away.  mu is released for the write; while
	// recording is set Cancel refuses and the flow stays busy.
	o.recording = true
	o.mu.Unlock()
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.opts.CallTimeout)
	err = o.deps.Store.SaveOwnership(saveCtx, records)
	cancel()
	o.mu.Lock()
	o.recording = false

	o.cart.Reset()
	o.endLocked()
	if err != nil {
		o.state = StateFailed
		res.State = StateFailed
		res.Kind = KindInternal
		res.Error = "payment confirmed but ownership could not be recorded; contact support with the payment reference"
		out := o.finishLocked(res)
		o.mu.Unlock()
		o.log.Error("ownership write failed after payment", zap.String("tx_ref", pay.TxRef), zap.Strings("plot_ids", ids), zap.Error(err))
		o.changed()
		return out
	}
	o.state = StateComplete
	res.Success = true
	res.State = StateComplete
	res.Records = records
	out := o.finishLocked(res)
	o.mu.Unlock()

	o.log.Info("purchase complete", zap.String("tx_ref", pay.TxRef), zap.Int("plots", len(records)), zap.Bool("simulated", res.Simulated))
	o.publish(ctx, queue.PlotsPurchasedEvent{
		EventID:       uuid.NewString(),
		FarmID:        o.farm.ID,
		FarmName:      o.farm.Name,
		UserID:        o.opts.UserID,
		Holder:        w.Address,
		TokenID:       tokenID,
		TxRef:         pay.TxRef,
		PlotIDs:       ids,
		TotalPriceXRP: math.Round(total*10) / 10,
		Simulated:     res.Simulated,
		PurchasedAt:   now,
	})
	o.changed()
	return out
}

// failLocked ends the flow after a ledger error.  It must be called with mu
// held and releases it.
func (o *Orchestrator) failLocked(res Result, step string, err error) Result {
	kind, msg := classify(err)
	switch kind {
	case KindUnavailable, KindCancelled:
		o.state = StateIdle
	default:
		o.state = StateFailed
	}
	o.endLocked()
	res.State = o.state
	res.Kind = kind
	res.Error = msg
	o.cart.Unlock()
	out := o.finishLocked(res)
	o.mu.Unlock()

	o.log.Info("purchase failed", zap.String("step", step), zap.String("state", string(out.State)), zap.String("kind", string(kind)), zap.Error(err))
	o.changed()
	return out
}

// beginLocked marks a flow as running and returns its context and epoch.
func (o *Orchestrator) beginLocked(ctx context.Context) (context.Context, uint64) {
	o.epoch++
	o.busy = true
	flowCtx, cancel := context.WithCancel(ctx)
	o.cancel = cancel
	return flowCtx, o.epoch
}

func (o *Orchestrator) endLocked() {
	if o.cancel != nil {
		o.cancel()
		o.cancel = nil
	}
	o.busy = false
}

// resultLocked builds an unsuccessful result without changing the flow.
func (o *Orchestrator) resultLocked(kind Kind, msg string) Result {
	res := Result{State: o.state, Kind: kind, Error: msg}
	if o.wallet != nil {
		w := *o.wallet
		res.Wallet = &w
	}
	return res
}

func (o *Orchestrator) finishLocked(res Result) Result {
	last := res
	o.last = &last
	return res
}

// restore reconnects the last remembered wallet, if any.
func (o *Orchestrator) restore(ctx context.Context) (ledger.Wallet, bool) {
	if o.deps.Wallets == nil || o.opts.UserKey == "" {
		return ledger.Wallet{}, false
	}
	addr, err := o.deps.Wallets.Last(ctx, o.opts.UserKey)
	if err != nil {
		o.log.Warn("wallet memory lookup failed", zap.Error(err))
		return ledger.Wallet{}, false
	}
	if addr == "" {
		return ledger.Wallet{}, false
	}
	w, err := bounded(ctx, o.opts.CallTimeout, func(ctx context.Context) (ledger.Wallet, error) {
		return o.deps.Connector.Connect(ctx, addr)
	})
	if err != nil {
		o.log.Info("remembered wallet could not be restored", zap.Error(err))
		return ledger.Wallet{}, false
	}
	return w, true
}

func (o *Orchestrator) remember(ctx context.Context, address string) {
	if o.deps.Wallets == nil || o.opts.UserKey == "" {
		return
	}
	if err := o.deps.Wallets.Remember(context.WithoutCancel(ctx), o.opts.UserKey, address); err != nil {
		o.log.Warn("remember wallet failed", zap.Error(err))
	}
}

func (o *Orchestrator) publish(ctx context.Context, ev queue.PlotsPurchasedEvent) {
	if o.deps.Events == nil {
		return
	}
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := o.deps.Events.PublishPlotsPurchased(pubCtx, ev); err != nil {
		o.log.Warn("publish purchase event failed", zap.String("event_id", ev.EventID), zap.Error(err))
	}
}

func (o *Orchestrator) changed() {
	if o.opts.OnChange != nil {
		o.opts.OnChange()
	}
}

// Memo builds the transfer memo: GrowFi-{farm}-{plot ids joined by ','}.
func Memo(farmName string, plotIDs []string) string {
	return "GrowFi-" + farmName + "-" + strings.Join(plotIDs, ",")
}

// bounded runs f with a deadline of d.  It returns as soon as ctx is done
// even if f does not honour its context.
func bounded[T any](ctx context.Context, d time.Duration, f func(context.Context) (T, error)) (T, error) {
	callCtx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	type outcome struct {
		v   T
		err error
	}
	ch := make(chan outcome, 1)
	go func() {
		v, err := f(callCtx)
		ch <- outcome{v, err}
	}()
	select {
	case out := <-ch:
		return out.v, out.err
	case <-callCtx.Done():
		select {
		case out := <-ch:
			return out.v, out.err
		default:
		}
		var zero T
		return zero, callCtx.Err()
	}
}
