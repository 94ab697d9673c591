package ledger

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// SimPrefix marks every transaction reference fabricated by the Simulator.
const SimPrefix = "SIM-"

// Simulator is the ledger behind LEDGER_MODE=simulate.  It never contacts a
// network: every call succeeds after input validation and every result is
// flagged Simulated with a SIM- prefixed reference.
type Simulator struct {
	Network    string
	BalanceXRP float64

	mu         sync.Mutex
	authorized map[string]bool
}

// NewSimulator returns a simulator that reports balance for every account.
func NewSimulator(network string, balance float64) *Simulator {
	return &Simulator{Network: network, BalanceXRP: balance, authorized: make(map[string]bool)}
}

// Mode implements Ledger.
func (s *Simulator) Mode() string { return "simulate" }

// AuthorizeHolder implements Ledger.
func (s *Simulator) AuthorizeHolder(ctx context.Context, address, tokenID string) (TxResult, error) {
	if err := ctx.Err(); err != nil {
		return TxResult{}, err
	}
	if err := ValidateAddress(address); err != nil {
		return TxResult{}, err
	}
	if tokenID == "" {
		return TxResult{}, ErrInvalidRequest
	}
	s.mu.Lock()
	s.authorized[address+"|"+tokenID] = true
	s.mu.Unlock()
	return s.result(), nil
}

// SubmitTransfer implements Ledger.  A transfer to a holder that was never
// authorized for the token is rejected, as the real ledger would.
func (s *Simulator) SubmitTransfer(ctx context.Context, t Transfer) (TxResult, error) {
	if err := ctx.Err(); err != nil {
		return TxResult{}, err
	}
	if err := t.Validate(); err != nil {
		return TxResult{}, err
	}
	s.mu.Lock()
	ok := s.authorized[t.Address+"|"+t.TokenID]
	s.mu.Unlock()
	if !ok {
		return TxResult{}, Rejected("holder not authorized for token", "")
	}
	return s.result(), nil
}

// AccountInfo implements Ledger.
func (s *Simulator) AccountInfo(ctx context.Context, address string) (Account, error) {
	if err := ctx.Err(); err != nil {
		return Account{}, err
	}
	return Account{Address: address, Network: s.Network, BalanceXRP: s.BalanceXRP}, nil
}

func (s *Simulator) result() TxResult {
	ref := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
	return TxResult{TxRef: SimPrefix + ref, Simulated: true}
}
