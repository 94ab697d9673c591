// Package ledger defines the contracts of the wallet and ledger
// collaborators the purchase flow depends on, together with the
// implementations the server can be configured with: a client for an
// external signing gateway, an explicit simulation mode and a disabled
// ledger that refuses every call.
package ledger

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrInvalidAddress is returned when a wallet address is malformed.
	ErrInvalidAddress = errors.New("invalid wallet address")
	// ErrInvalidRequest is returned when a required identifier or amount is missing.
	ErrInvalidRequest = errors.New("invalid ledger request")
	// ErrUnavailable is returned when the ledger or wallet cannot be reached.
	ErrUnavailable = errors.New("ledger unavailable")
	// ErrNotConfigured is returned by the disabled ledger.
	ErrNotConfigured = errors.New("ledger not configured")
)

// RejectedError carries the reason a ledger or wallet refused a request,
// such as a declined signature or a failed transaction result.
type RejectedError struct {
	Reason string
	TxRef  string
}

func (e *RejectedError) Error() string { return "ledger rejected request: " + e.Reason }

// Rejected builds a RejectedError.
func Rejected(reason, txRef string) error { return &RejectedError{Reason: reason, TxRef: txRef} }

// IsRejected reports whether err carries a rejection and returns it.
func IsRejected(err error) (*RejectedError, bool) {
	var rej *RejectedError
	if errors.As(err, &rej) {
		return rej, true
	}
	return nil, false
}

// Wallet is a connected holder account.
type Wallet struct {
	Address    string  `json:"address"`
	Network    string  `json:"network"`
	BalanceXRP float64 `json:"balance_xrp"`
}

// Transfer describes a token transfer to a holder.  Amount is expressed in
// whole token units.
type Transfer struct {
	Address string
	TokenID string
	Amount  int
	Memo    string
}

// Validate checks the fields every ledger requires before submission.
func (t Transfer) Validate() error {
	if err := ValidateAddress(t.Address); err != nil {
		return err
	}
	if t.TokenID == "" {
		return fmt.Errorf("%w: token id is required", ErrInvalidRequest)
	}
	if t.Amount <= 0 {
		return fmt.Errorf("%w: amount must be positive", ErrInvalidRequest)
	}
	return nil
}

// TxResult is the outcome of a successful ledger transaction.
type TxResult struct {
	TxRef       string `json:"tx_ref"`
	ExplorerURL string `json:"explorer_url,omitempty"`
	Simulated   bool   `json:"simulated"`
}

// Account is what the ledger reports about an address.
type Account struct {
	Address    string
	Network    string
	BalanceXRP float64
}

// Ledger is the authorization and transfer collaborator.  AuthorizeHolder
// must succeed before a transfer of that token to that address is valid.
// SubmitTransfer is not idempotent; callers must not submit the same
// transfer twice.
type Ledger interface {
	AuthorizeHolder(ctx context.Context, address, tokenID string) (TxResult, error)
	SubmitTransfer(ctx context.Context, t Transfer) (TxResult, error)
	AccountInfo(ctx context.Context, address string) (Account, error)
	Mode() string
}

// Connector connects a wallet by address.
type Connector interface {
	Connect(ctx context.Context, address string) (Wallet, error)
}

// Disabled is the ledger used when no mode is configured.
type Disabled struct{}

func (Disabled) AuthorizeHolder(context.Context, string, string) (TxResult, error) {
	return TxResult{}, ErrNotConfigured
}

func (Disabled) SubmitTransfer(context.Context, Transfer) (TxResult, error) {
	return TxResult{}, ErrNotConfigured
}

func (Disabled) AccountInfo(context.Context, string) (Account, error) {
	return Account{}, ErrNotConfigured
}

func (Disabled) Mode() string { return "disabled" }
