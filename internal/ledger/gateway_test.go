package ledger

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newGateway(t *testing.T, h http.HandlerFunc) *GatewayClient {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	g, err := NewGatewayClient(srv.URL+"/", "testnet", 2*time.Second, nil)
	require.NoError(t, err)
	t.Cleanup(g.Close)
	return g
}

func TestGatewayAuthorize(t *testing.T) {
	var got gatewayRequest
	g := newGateway(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/authorize", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode(gatewayResponse{Success: true, TxHash: "AUTH1"})
	})

	res, err := g.AuthorizeHolder(context.Background(), testAddress, "tok-1")
	require.NoError(t, err)
	assert.Equal(t, "AUTH1", res.TxRef)
	assert.False(t, res.Simulated)
	assert.Equal(t, gatewayRequest{UserAddress: testAddress, MPTTokenID: "tok-1"}, got)
}

func TestGatewayPurchaseSendsMemo(t *testing.T) {
	var got gatewayRequest
	g := newGateway(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/purchase", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode(gatewayResponse{Success: true, TxHash: "PAY1", ExplorerURL: "https://explorer/tx/PAY1"})
	})

	res, err := g.SubmitTransfer(context.Background(), Transfer{Address: testAddress, TokenID: "tok-1", Amount: 2, Memo: "GrowFi-Farm-T1-L1-A,T1-L1-B"})
	require.NoError(t, err)
	assert.Equal(t, "PAY1", res.TxRef)
	assert.Equal(t, "https://explorer/tx/PAY1", res.ExplorerURL)
	assert.Equal(t, 2, got.Amount)
	assert.Equal(t, "GrowFi-Farm-T1-L1-A,T1-L1-B", got.Memo)
}

func TestGatewayBadRequestIsRejection(t *testing.T) {
	g := newGateway(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(gatewayResponse{Error: "Payment failed with code: tecNO_AUTH", TxHash: "X"})
	})

	_, err := g.SubmitTransfer(context.Background(), Transfer{Address: testAddress, TokenID: "tok", Amount: 1})
	rej, ok := IsRejected(err)
	require.True(t, ok)
	assert.Equal(t, "Payment failed with code: tecNO_AUTH", rej.Reason)
	assert.Equal(t, "X", rej.TxRef)
}

func TestGatewayPlainTextRejection(t *testing.T) {
	g := newGateway(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "tecNO_AUTH: holder not authorized", http.StatusBadRequest)
	})

	_, err := g.SubmitTransfer(context.Background(), Transfer{Address: testAddress, TokenID: "tok", Amount: 1})
	assert.NotErrorIs(t, err, ErrUnavailable)
	rej, ok := IsRejected(err)
	require.True(t, ok)
	assert.Equal(t, "tecNO_AUTH: holder not authorized", rej.Reason)
}

func TestGatewayEmptyRejectionUsesStatus(t *testing.T) {
	g := newGateway(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	})

	_, err := g.AuthorizeHolder(context.Background(), testAddress, "tok")
	rej, ok := IsRejected(err)
	require.True(t, ok)
	assert.Equal(t, "403 Forbidden", rej.Reason)
}

func TestGatewayUndecodableSuccessIsUnavailable(t *testing.T) {
	g := newGateway(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html>ok</html>"))
	})

	_, err := g.AuthorizeHolder(context.Background(), testAddress, "tok")
	assert.ErrorIs(t, err, ErrUnavailable)
	_, ok := IsRejected(err)
	assert.False(t, ok)
}

func TestRejectReasonTruncatesText(t *testing.T) {
	long := strings.Repeat("x", 500)
	assert.Len(t, rejectReason([]byte(long), "fallback"), maxReason)
	assert.Equal(t, "fallback", rejectReason([]byte(`{"success":false}`), "fallback"))
	assert.Equal(t, "bad", rejectReason([]byte(`{"error":"bad"}`), "fallback"))
}

func TestGatewayServerErrorIsUnavailable(t *testing.T) {
	g := newGateway(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := g.AuthorizeHolder(context.Background(), testAddress, "tok")
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestGatewayValidatesBeforeCalling(t *testing.T) {
	called := false
	g := newGateway(t, func(w http.ResponseWriter, r *http.Request) { called = true })

	_, err := g.AuthorizeHolder(context.Background(), "bogus", "tok")
	assert.ErrorIs(t, err, ErrInvalidAddress)
	_, err = g.SubmitTransfer(context.Background(), Transfer{Address: testAddress, TokenID: "tok"})
	assert.ErrorIs(t, err, ErrInvalidRequest)
	assert.False(t, called)
}

func TestGatewayAccountInfo(t *testing.T) {
	g := newGateway(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/accounts/"+testAddress {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_ = json.NewEncoder(w).Encode(accountResponse{Address: testAddress, BalanceXRP: 99.5})
	})

	acct, err := g.AccountInfo(context.Background(), testAddress)
	require.NoError(t, err)
	assert.Equal(t, 99.5, acct.BalanceXRP)
	assert.Equal(t, "testnet", acct.Network)

	_, err = g.AccountInfo(context.Background(), "rPEPPER7kfTD9w2To4CQk6UCfuHM9c6GDY")
	assert.ErrorIs(t, err, ErrInvalidAddress)
}

func TestGatewayContextDeadline(t *testing.T) {
	release := make(chan struct{})
	g := newGateway(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := g.AuthorizeHolder(ctx, testAddress, "tok")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
