package ledger

import (
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

// SimulatedBalanceXRP is the balance the simulator reports for every account.
const SimulatedBalanceXRP = 1000

// Open returns the ledger for mode together with a function that releases it.
// An empty mode or "disabled" yields Disabled.
func Open(mode, gatewayURL, network string, timeout time.Duration, log *zap.Logger) (Ledger, func(), error) {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "", "disabled":
		return Disabled{}, func() {}, nil
	case "simulate":
		return NewSimulator(network, SimulatedBalanceXRP), func() {}, nil
	case "gateway":
		g, err := NewGatewayClient(gatewayURL, network, timeout, log)
		if err != nil {
			return nil, nil, err
		}
		return g, g.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown ledger mode %q", mode)
	}
}
