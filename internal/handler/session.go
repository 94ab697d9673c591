package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/growfi/growfi-server/internal/cart"
	"github.com/growfi/growfi-server/internal/catalog"
	"github.com/growfi/growfi-server/internal/session"
)

// SessionHandler serves a user's cart and purchase flow on one farm.
type SessionHandler struct {
	Catalog  *catalog.Catalog
	Sessions *session.Registry
	Log      *zap.Logger
	Upgrader websocket.Upgrader
}

func NewSessionHandler(cat *catalog.Catalog, reg *session.Registry, log *zap.Logger) *SessionHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &SessionHandler{
		Catalog:  cat,
		Sessions: reg,
		Log:      log,
		Upgrader: websocket.Upgrader{ReadBufferSize: 1024, WriteBufferSize: 16 * 1024},
	}
}

type walletReq struct {
	Address string `json:"address"`
}

// session resolves the caller's session for the :id farm.
func (h *SessionHandler) session(c echo.Context) (*session.Session, error) {
	uid, err := getUserID(c)
	if err != nil {
		return nil, err
	}
	farm, err := h.Catalog.Get(c.Param("id"))
	if err != nil {
		return nil, err
	}
	return h.Sessions.Get(uid, farm), nil
}

func sessionError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, errNoUser):
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	case errors.Is(err, catalog.ErrFarmNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "farm not found"})
	case errors.Is(err, cart.ErrUnknownPlot):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "plot not found"})
	case errors.Is(err, cart.ErrCartLocked):
		return c.JSON(http.StatusConflict, echo.Map{"error": err.Error()})
	default:
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
	}
}

// GetSession returns the plots with this user's selection, the cart and the
// purchase state.
func (h *SessionHandler) GetSession(c echo.Context) error {
	sess, err := h.session(c)
	if err != nil {
		return sessionError(c, err)
	}
	sess.Touch()
	return c.JSON(http.StatusOK, sess.Snapshot())
}

// TogglePlot selects or deselects :plot.
func (h *SessionHandler) TogglePlot(c echo.Context) error {
	sess, err := h.session(c)
	if err != nil {
		return sessionError(c, err)
	}
	p, changed, err := sess.Toggle(c.Param("plot"))
	if err != nil {
		return sessionError(c, err)
	}
	if !changed {
		return c.JSON(http.StatusConflict, echo.Map{"error": "plot is not available", "plot": p})
	}
	return c.JSON(http.StatusOK, echo.Map{"plot": p, "session": sess.Snapshot()})
}

// RemoveFromCart drops :plot from the cart.
func (h *SessionHandler) RemoveFromCart(c echo.Context) error {
	sess, err := h.session(c)
	if err != nil {
		return sessionError(c, err)
	}
	removed, err := sess.Remove(c.Param("plot"))
	if err != nil {
		return sessionError(c, err)
	}
	if !removed {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "plot not in cart"})
	}
	return c.JSON(http.StatusOK, sess.Snapshot())
}

// ConnectWallet connects the wallet at address and resumes a purchase that
// was waiting for one.
func (h *SessionHandler) ConnectWallet(c echo.Context) error {
	var req walletReq
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.Address) == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "address required"})
	}
	sess, err := h.session(c)
	if err != nil {
		return sessionError(c, err)
	}
	sess.Touch()
	return writeResult(c, sess.Purchase.Connect(flowContext(c), req.Address))
}

// ConfirmPurchase buys every plot in the cart.
func (h *SessionHandler) ConfirmPurchase(c echo.Context) error {
	sess, err := h.session(c)
	if err != nil {
		return sessionError(c, err)
	}
	sess.Touch()
	return writeResult(c, sess.Purchase.Confirm(flowContext(c)))
}

// CancelPurchase abandons the current flow.
func (h *SessionHandler) CancelPurchase(c echo.Context) error {
	sess, err := h.session(c)
	if err != nil {
		return sessionError(c, err)
	}
	sess.Touch()
	return writeResult(c, sess.Purchase.Cancel())
}

// flowContext detaches a purchase from the request.  A client that drops
// the connection does not abandon a payment in progress; the outcome is
// pushed on the stream and an explicit cancel stops the flow.
func flowContext(c echo.Context) context.Context {
	return context.WithoutCancel(c.Request().Context())
}
