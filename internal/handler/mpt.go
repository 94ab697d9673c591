package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/growfi/growfi-server/internal/ledger"
)

// MPTHandler is the thin boundary over the ledger used by clients that
// drive token authorization and delivery themselves.
type MPTHandler struct {
	Ledger  ledger.Ledger
	Timeout time.Duration
	Log     *zap.Logger
}

func NewMPTHandler(l ledger.Ledger, timeout time.Duration, log *zap.Logger) *MPTHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &MPTHandler{Ledger: l, Timeout: timeout, Log: log}
}

// tokenAmount accepts a JSON number or a numeric string.
type tokenAmount int

func (a *tokenAmount) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		*a = 0
		return nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return errors.New("amount must be a whole number")
	}
	*a = tokenAmount(n)
	return nil
}

type mptReq struct {
	UserAddress    string      `json:"userAddress"`
	TokenID        string      `json:"tokenId"`
	MPTTokenID     string      `json:"mptTokenId"`
	Amount         tokenAmount `json:"amount"`
	Memo           string      `json:"memo"`
	FarmName       string      `json:"farmName"`
	PlotDetails    string      `json:"plotDetails"`
	XRPPaymentHash string      `json:"xrpPaymentHash"`
}

func (r mptReq) tokenID() string {
	if id := strings.TrimSpace(r.TokenID); id != "" {
		return id
	}
	return strings.TrimSpace(r.MPTTokenID)
}

// memo returns the explicit memo, or one built from the farm and plot
// details with the client's XRP payment hash appended when given.
func (r mptReq) memo() string {
	if r.Memo != "" || r.PlotDetails == "" {
		return r.Memo
	}
	m := "GrowFi-" + r.FarmName + "-" + r.PlotDetails
	if r.XRPPaymentHash != "" {
		m += "-XRPTx:" + r.XRPPaymentHash
	}
	return m
}

type mptResp struct {
	Success      bool   `json:"success"`
	TxHash       string `json:"txHash,omitempty"`
	ExplorerLink string `json:"explorerLink,omitempty"`
	Simulated    bool   `json:"simulated,omitempty"`
	Error        string `json:"error,omitempty"`
}

// Authorize opts userAddress in to hold the token.
func (h *MPTHandler) Authorize(c echo.Context) error {
	var req mptReq
	if err := json.NewDecoder(c.Request().Body).Decode(&req); err != nil {
		return c.JSON(http.StatusBadRequest, mptResp{Error: "invalid body"})
	}
	if req.UserAddress == "" || req.tokenID() == "" {
		return c.JSON(http.StatusBadRequest, mptResp{Error: "Missing required parameters"})
	}
	ctx, cancel := h.callContext(c)
	defer cancel()
	res, err := h.Ledger.AuthorizeHolder(ctx, req.UserAddress, req.tokenID())
	return h.reply(c, "authorize", res, err)
}

// Purchase delivers amount tokens to userAddress.
func (h *MPTHandler) Purchase(c echo.Context) error {
	var req mptReq
	if err := json.NewDecoder(c.Request().Body).Decode(&req); err != nil {
		return c.JSON(http.StatusBadRequest, mptResp{Error: "invalid body"})
	}
	if req.UserAddress == "" || req.tokenID() == "" || req.Amount <= 0 {
		return c.JSON(http.StatusBadRequest, mptResp{Error: "Missing required parameters"})
	}
	ctx, cancel := h.callContext(c)
	defer cancel()
	res, err := h.Ledger.SubmitTransfer(ctx, ledger.Transfer{
		Address: req.UserAddress,
		TokenID: req.tokenID(),
		Amount:  int(req.Amount),
		Memo:    req.memo(),
	})
	return h.reply(c, "purchase", res, err)
}

func (h *MPTHandler) callContext(c echo.Context) (context.Context, context.CancelFunc) {
	d := h.Timeout
	if d <= 0 {
		d = 30 * time.Second
	}
	return context.WithTimeout(c.Request().Context(), d)
}

// reply maps validation errors and ledger rejections to 400 and every
// other failure to 500.
func (h *MPTHandler) reply(c echo.Context, op string, res ledger.TxResult, err error) error {
	if err == nil {
		return c.JSON(http.StatusOK, mptResp{Success: true, TxHash: res.TxRef, ExplorerLink: res.ExplorerURL, Simulated: res.Simulated})
	}
	log := h.Log.With(zap.String("op", op))
	if rej, ok := ledger.IsRejected(err); ok {
		log.Info("ledger rejected request", zap.String("reason", rej.Reason), zap.String("tx_ref", rej.TxRef))
		return c.JSON(http.StatusBadRequest, mptResp{TxHash: rej.TxRef, Error: rej.Reason})
	}
	switch {
	case errors.Is(err, ledger.ErrInvalidAddress), errors.Is(err, ledger.ErrInvalidRequest):
		return c.JSON(http.StatusBadRequest, mptResp{Error: err.Error()})
	case errors.Is(err, ledger.ErrNotConfigured):
		return c.JSON(http.StatusInternalServerError, mptResp{Error: "ledger is not configured on this server"})
	}
	log.Warn("ledger call failed", zap.Error(err))
	return c.JSON(http.StatusInternalServerError, mptResp{Error: "Internal server error"})
}
