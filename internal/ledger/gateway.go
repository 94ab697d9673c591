package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

// gatewayRequest is the body of POST /authorize and POST /purchase.
type gatewayRequest struct {
	UserAddress string `json:"userAddress"`
	MPTTokenID  string `json:"mptTokenId"`
	Amount      int    `json:"amount,omitempty"`
	Memo        string `json:"memo,omitempty"`
}

type gatewayResponse struct {
	Success     bool   `json:"success"`
	TxHash      string `json:"txHash"`
	ExplorerURL string `json:"explorerLink"`
	Error       string `json:"error"`
}

type accountResponse struct {
	Address    string  `json:"address"`
	Network    string  `json:"network"`
	BalanceXRP float64 `json:"balanceXrp"`
}

// GatewayClient talks to the external signing gateway that holds the
// issuer credentials.  It is created once at startup and must be closed on
// shutdown.
type GatewayClient struct {
	baseURL *url.URL
	network string
	http    *http.Client
	log     *zap.Logger
}

// NewGatewayClient validates baseURL and returns a client for it.
func NewGatewayClient(baseURL, network string, timeout time.Duration, log *zap.Logger) (*GatewayClient, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid gateway url %q", baseURL)
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &GatewayClient{
		baseURL: u,
		network: network,
		http:    &http.Client{Timeout: timeout},
		log:     log.Named("gateway"),
	}, nil
}

// Mode implements Ledger.
func (g *GatewayClient) Mode() string { return "gateway" }

// Close releases idle connections.
func (g *GatewayClient) Close() { g.http.CloseIdleConnections() }

// AuthorizeHolder implements Ledger.
func (g *GatewayClient) AuthorizeHolder(ctx context.Context, address, tokenID string) (TxResult, error) {
	if err := ValidateAddress(address); err != nil {
		return TxResult{}, err
	}
	if tokenID == "" {
		return TxResult{}, fmt.Errorf("%w: token id is required", ErrInvalidRequest)
	}
	return g.submit(ctx, "/authorize", gatewayRequest{UserAddress: address, MPTTokenID: tokenID})
}

// SubmitTransfer implements Ledger.
func (g *GatewayClient) SubmitTransfer(ctx context.Context, t Transfer) (TxResult, error) {
	if err := t.Validate(); err != nil {
		return TxResult{}, err
	}
	return g.submit(ctx, "/purchase", gatewayRequest{
		UserAddress: t.Address,
		MPTTokenID:  t.TokenID,
		Amount:      t.Amount,
		Memo:        t.Memo,
	})
}

// AccountInfo implements Ledger.
func (g *GatewayClient) AccountInfo(ctx context.Context, address string) (Account, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.endpoint("/accounts/"+url.PathEscape(address)), nil)
	if err != nil {
		return Account{}, err
	}
	res, err := g.http.Do(req)
	if err != nil {
		return Account{}, g.transportErr(ctx, err)
	}
	defer res.Body.Close()

	switch {
	case res.StatusCode == http.StatusNotFound:
		return Account{}, fmt.Errorf("%w: account %s not found", ErrInvalidAddress, address)
	case res.StatusCode >= 500:
		return Account{}, fmt.Errorf("%w: gateway returned %d", ErrUnavailable, res.StatusCode)
	case res.StatusCode != http.StatusOK:
		raw, _ := io.ReadAll(io.LimitReader(res.Body, maxBody))
		return Account{}, Rejected(rejectReason(raw, res.Status), "")
	}
	var body accountResponse
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		return Account{}, fmt.Errorf("%w: decode account: %v", ErrUnavailable, err)
	}
	network := body.Network
	if network == "" {
		network = g.network
	}
	return Account{Address: address, Network: network, BalanceXRP: body.BalanceXRP}, nil
}

func (g *GatewayClient) submit(ctx context.Context, path string, payload gatewayRequest) (TxResult, error) {
	buf, err := json.Marshal(payload)
	if err != nil {
		return TxResult{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint(path), bytes.NewReader(buf))
	if err != nil {
		return TxResult{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := g.http.Do(req)
	if err != nil {
		return TxResult{}, g.transportErr(ctx, err)
	}
	defer res.Body.Close()

	if res.StatusCode >= 500 {
		g.log.Warn("gateway error", zap.String("path", path), zap.Int("status", res.StatusCode))
		return TxResult{}, fmt.Errorf("%w: gateway returned %d", ErrUnavailable, res.StatusCode)
	}
	raw, err := io.ReadAll(io.LimitReader(res.Body, maxBody))
	if err != nil {
		return TxResult{}, g.transportErr(ctx, err)
	}
	var body gatewayResponse
	decodeErr := json.Unmarshal(raw, &body)
	if res.StatusCode != http.StatusOK || (decodeErr == nil && !body.Success) {
		reason := rejectReason(raw, res.Status)
		g.log.Info("gateway rejected request", zap.String("path", path), zap.String("reason", reason), zap.String("tx_ref", body.TxHash))
		return TxResult{}, Rejected(reason, body.TxHash)
	}
	if decodeErr != nil {
		return TxResult{}, fmt.Errorf("%w: decode response: %v", ErrUnavailable, decodeErr)
	}
	g.log.Info("gateway accepted request", zap.String("path", path), zap.String("tx_ref", body.TxHash))
	return TxResult{TxRef: body.TxHash, ExplorerURL: body.ExplorerURL}, nil
}

func (g *GatewayClient) endpoint(path string) string {
	return g.baseURL.String() + path
}

func (g *GatewayClient) transportErr(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	var uerr *url.Error
	if errors.As(err, &uerr) && uerr.Timeout() {
		return fmt.Errorf("%w: %w", ErrUnavailable, context.DeadlineExceeded)
	}
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}

// Response bodies are read up to maxBody; rejection reasons taken from a
// plain text body are cut at maxReason bytes.
const (
	maxBody   = 64 << 10
	maxReason = 200
)

// rejectReason extracts the reason from a non-success body.  It prefers
// the JSON error field, then the body text, then fallback.
func rejectReason(raw []byte, fallback string) string {
	var body gatewayResponse
	if err := json.Unmarshal(raw, &body); err == nil && body.Error != "" {
		return body.Error
	}
	text := strings.TrimSpace(string(raw))
	if text == "" || text[0] == '{' {
		return fallback
	}
	if len(text) > maxReason {
		text = strings.TrimSpace(strings.ToValidUTF8(text[:maxReason], ""))
	}
	return text
}
