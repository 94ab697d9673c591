// Package purchase sequences the purchase of the plots in a cart: connect a
// wallet, authorize the holder for the farm token, submit the transfer and
// record ownership.  Authorization, payment and signing are delegated to the
// ledger collaborators; this package only orders the calls and interprets
// their results.
package purchase

import (
	"context"
	"errors"

	"github.com/growfi/growfi-server/internal/ledger"
	"github.com/growfi/growfi-server/internal/model"
)

// State is a purchase flow state.
type State string

const (
	StateIdle           State = "idle"
	StateWalletRequired State = "wallet_required"
	StateAuthorizing    State = "authorizing"
	StatePurchasing     State = "purchasing"
	StateComplete       State = "complete"
	StateFailed         State = "failed"
)

// InFlight reports whether a ledger call may be outstanding in this state.
func (s State) InFlight() bool { return s == StateAuthorizing || s == StatePurchasing }

// Kind classifies an unsuccessful Result.
type Kind string

const (
	KindNone           Kind = ""
	KindValidation     Kind = "validation"
	KindWalletRequired Kind = "wallet_required"
	KindUnavailable    Kind = "unavailable"
	KindRejected       Kind = "rejected"
	KindBusy           Kind = "busy"
	KindCancelled      Kind = "cancelled"
	KindTimeout        Kind = "timeout"
	KindInternal       Kind = "internal"
)

// Result is returned by every orchestrator operation.  Collaborator errors
// are folded into Kind and Error; they never escape as Go errors.
type Result struct {
	Success      bool                    `json:"success"`
	State        State                   `json:"state"`
	Kind         Kind                    `json:"kind,omitempty"`
	Error        string                  `json:"error,omitempty"`
	Wallet       *ledger.Wallet          `json:"wallet,omitempty"`
	AuthTxRef    string                  `json:"auth_tx_ref,omitempty"`
	PaymentTxRef string                  `json:"payment_tx_ref,omitempty"`
	ExplorerURL  string                  `json:"explorer_url,omitempty"`
	Records      []model.OwnershipRecord `json:"records,omitempty"`
	Simulated    bool                    `json:"simulated,omitempty"`
}

const genericFailure = "purchase failed, please try again"

// classify maps a collaborator error to a result kind and a message safe
// to show the user.
func classify(err error) (Kind, string) {
	if rej, ok := ledger.IsRejected(err); ok {
		return KindRejected, rej.Reason
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return KindTimeout, "the ledger did not answer in time"
	case errors.Is(err, context.Canceled):
		return KindCancelled, "purchase cancelled"
	case errors.Is(err, ledger.ErrInvalidAddress), errors.Is(err, ledger.ErrInvalidRequest):
		return KindValidation, err.Error()
	case errors.Is(err, ledger.ErrUnavailable):
		return KindUnavailable, "the wallet or ledger is unavailable, please try again later"
	case errors.Is(err, ledger.ErrNotConfigured):
		return KindInternal, "purchasing is not configured on this server"
	default:
		return KindInternal, genericFailure
	}
}
