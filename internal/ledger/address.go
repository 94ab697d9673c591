package ledger

import (
	"context"
	"fmt"
	"strings"
)

// base58 alphabet used by classic ledger addresses.
const addressAlphabet = "rpshnaf39wBUDNEGHJKLM4PQRST7VWXYZ2bcdeCg65jkm8oFqi1tuvAxyz"

// ValidateAddress checks the shape of a classic address: a leading 'r'
// followed by base58 characters, 25 to 35 characters in total.  The
// checksum is the wallet's concern and is not verified here.
func ValidateAddress(address string) error {
	if len(address) < 25 || len(address) > 35 {
		return fmt.Errorf("%w: length %d", ErrInvalidAddress, len(address))
	}
	if address[0] != 'r' {
		return fmt.Errorf("%w: must start with 'r'", ErrInvalidAddress)
	}
	for _, ch := range address {
		if !strings.ContainsRune(addressAlphabet, ch) {
			return fmt.Errorf("%w: unexpected character %q", ErrInvalidAddress, ch)
		}
	}
	return nil
}

// WalletConnector connects a wallet by validating its address and loading
// the account from the ledger.
type WalletConnector struct {
	Ledger Ledger
}

// NewWalletConnector returns a connector backed by l.
func NewWalletConnector(l Ledger) *WalletConnector { return &WalletConnector{Ledger: l} }

// Connect implements Connector.
func (w *WalletConnector) Connect(ctx context.Context, address string) (Wallet, error) {
	address = strings.TrimSpace(address)
	if err := ValidateAddress(address); err != nil {
		return Wallet{}, err
	}
	acct, err := w.Ledger.AccountInfo(ctx, address)
	if err != nil {
		return Wallet{}, err
	}
	return Wallet{Address: address, Network: acct.Network, BalanceXRP: acct.BalanceXRP}, nil
}
