// Package handler exposes the HTTP handlers of the plot market: auth,
// public farm browsing, the per-farm session cart and purchase flow, the
// ledger boundary and the portfolio.
package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/growfi/growfi-server/internal/middleware"
	"github.com/growfi/growfi-server/internal/purchase"
)

var errNoUser = errors.New("invalid user_id in context")

// getUserID returns the user id set by the JWT middleware.
func getUserID(c echo.Context) (uint64, error) {
	if id, ok := middleware.UserID(c); ok {
		return id, nil
	}
	return 0, errNoUser
}

// statusForKind maps a purchase result kind to its HTTP status.
func statusForKind(k purchase.Kind) int {
	switch k {
	case purchase.KindNone:
		return http.StatusOK
	case purchase.KindValidation:
		return http.StatusBadRequest
	case purchase.KindWalletRequired:
		return http.StatusPreconditionRequired
	case purchase.KindUnavailable:
		return http.StatusFailedDependency
	case purchase.KindRejected:
		return http.StatusPaymentRequired
	case purchase.KindBusy, purchase.KindCancelled:
		return http.StatusConflict
	case purchase.KindTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// writeResult sends a purchase result with the status of its kind.
func writeResult(c echo.Context, res purchase.Result) error {
	if res.Success {
		return c.JSON(http.StatusOK, res)
	}
	return c.JSON(statusForKind(res.Kind), res)
}
