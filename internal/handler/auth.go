package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/growfi/growfi-server/internal/config"
	"github.com/growfi/growfi-server/internal/middleware"
	"github.com/growfi/growfi-server/internal/model"
	"github.com/growfi/growfi-server/internal/repository"
	"github.com/growfi/growfi-server/internal/utils"
)

// WalletForgetter drops the wallet remembered for a user.
type WalletForgetter interface {
	Forget(ctx context.Context, userKey string) error
}

// AuthHandler serves account registration and the token lifecycle.
type AuthHandler struct {
	Cfg     config.Config
	Users   *repository.UserRepo
	Tokens  *repository.TokenRepo
	Wallets WalletForgetter
	Log     *zap.Logger
}

// NewAuthHandler wires the handler.  w may be nil, in which case logging
// out everywhere leaves remembered wallets alone.
func NewAuthHandler(cfg config.Config, u *repository.UserRepo, t *repository.TokenRepo, w WalletForgetter, log *zap.Logger) *AuthHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &AuthHandler{Cfg: cfg, Users: u, Tokens: t, Wallets: w, Log: log}
}

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (c *credentials) normalize() { c.Email = strings.ToLower(strings.TrimSpace(c.Email)) }

type refreshReq struct {
	RefreshToken string `json:"refresh_token"`
}

type tokenPart struct {
	Token   string    `json:"token"`
	Expires time.Time `json:"expires"`
}

type userPart struct {
	ID    uint64 `json:"id"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

type authResp struct {
	User    userPart  `json:"user"`
	Access  tokenPart `json:"access"`
	Refresh tokenPart `json:"refresh"`
}

// pair is a freshly minted token pair; refreshHash is what gets stored.
type pair struct {
	resp        authResp
	refreshHash string
}

func authCtx(c echo.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request().Context(), 5*time.Second)
}

// Register creates an investor account and signs it in.  Operators are
// promoted out of band with growfictl.
func (h *AuthHandler) Register(c echo.Context) error {
	var req credentials
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	req.normalize()
	switch {
	case req.Email == "" || req.Password == "":
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "email/password required"})
	case !strings.Contains(req.Email, "@"):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid email"})
	}
	if err := utils.ValidatePassword(req.Password); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}

	ctx, cancel := authCtx(c)
	defer cancel()

	uid, err := h.Users.Create(ctx, req.Email, req.Password, model.RoleInvestor, h.Cfg.BcryptCost)
	if errors.Is(err, repository.ErrEmailExists) {
		return c.JSON(http.StatusConflict, echo.Map{"error": "email already exists"})
	}
	if err != nil {
		h.Log.Error("create user", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "create user failed"})
	}
	u := model.User{ID: uid, Email: req.Email, Role: model.RoleInvestor}
	return h.signIn(ctx, c, u, http.StatusCreated)
}

// Login exchanges credentials for a token pair.
func (h *AuthHandler) Login(c echo.Context) error {
	var req credentials
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	req.normalize()
	if req.Email == "" || req.Password == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "email/password required"})
	}

	ctx, cancel := authCtx(c)
	defer cancel()

	u, err := h.Users.GetByEmail(ctx, req.Email)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credentials"})
	case err != nil:
		h.Log.Error("load user", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	if !u.IsActive || !utils.VerifyPassword(u.PasswordHash, req.Password) {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credentials"})
	}
	return h.signIn(ctx, c, u, http.StatusOK)
}

// Refresh trades a live refresh token for a new pair.  The old token is
// revoked in the same transaction that stores the new one, so a token
// can be used once.
func (h *AuthHandler) Refresh(c echo.Context) error {
	var req refreshReq
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.RefreshToken) == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "refresh_token required"})
	}
	oldHash := utils.HashRefreshRaw(strings.TrimSpace(req.RefreshToken))

	ctx, cancel := authCtx(c)
	defer cancel()

	userID, err := h.Tokens.Active(ctx, oldHash)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid refresh"})
	}
	u, err := h.Users.GetByID(ctx, userID)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid refresh"})
	case err != nil:
		h.Log.Error("load user", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "load user failed"})
	}
	if !u.IsActive {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid refresh"})
	}

	p, err := h.mint(u)
	if err != nil {
		h.Log.Error("mint tokens", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "issue tokens failed"})
	}
	_, err = h.Tokens.Rotate(ctx, oldHash, p.refreshHash, p.resp.Refresh.Expires)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid refresh"})
	case err != nil:
		h.Log.Error("rotate refresh token", zap.Uint64("user_id", u.ID), zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "rotate refresh failed"})
	}
	return c.JSON(http.StatusOK, p.resp)
}

// Logout revokes the refresh_token in the body, or every refresh token of
// the bearer when the body has none.  Logging out everywhere also forgets
// the bearer's remembered wallet.  It sits outside the JWT middleware
// so a client whose access token expired can still log out.
func (h *AuthHandler) Logout(c echo.Context) error {
	var req refreshReq
	_ = c.Bind(&req)
	raw := strings.TrimSpace(req.RefreshToken)

	ctx, cancel := authCtx(c)
	defer cancel()

	if raw != "" {
		err := h.Tokens.Revoke(ctx, utils.HashRefreshRaw(raw))
		switch {
		case errors.Is(err, repository.ErrNotFound):
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid refresh token"})
		case err != nil:
			h.Log.Error("revoke refresh token", zap.Error(err))
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "logout failed"})
		}
		return c.NoContent(http.StatusNoContent)
	}

	uid, ok := h.bearerUser(c)
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "provide Authorization header or refresh_token"})
	}
	n, err := h.Tokens.RevokeUser(ctx, uid)
	if err != nil {
		h.Log.Error("revoke user tokens", zap.Uint64("user_id", uid), zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "logout failed"})
	}
	if h.Wallets != nil {
		if err := h.Wallets.Forget(ctx, strconv.FormatUint(uid, 10)); err != nil {
			h.Log.Warn("forget wallet", zap.Uint64("user_id", uid), zap.Error(err))
		}
	}
	h.Log.Debug("logged out everywhere", zap.Uint64("user_id", uid), zap.Int64("revoked", n))
	return c.NoContent(http.StatusNoContent)
}

// Me returns the authenticated user.
func (h *AuthHandler) Me(c echo.Context) error {
	uid, ok := middleware.UserID(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	ctx, cancel := authCtx(c)
	defer cancel()

	u, err := h.Users.GetByID(ctx, uid)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "user not found"})
	case err != nil:
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "load user failed"})
	}
	return c.JSON(http.StatusOK, userPart{ID: u.ID, Email: u.Email, Role: u.Role})
}

func (h *AuthHandler) bearerUser(c echo.Context) (uint64, bool) {
	auth := c.Request().Header.Get(echo.HeaderAuthorization)
	raw, found := strings.CutPrefix(auth, "Bearer ")
	if !found {
		return 0, false
	}
	claims, err := utils.ParseAccessToken(h.Cfg.JWTSecret, strings.TrimSpace(raw))
	if err != nil {
		return 0, false
	}
	uid, err := claims.UserID()
	return uid, err == nil && uid != 0
}

// mint creates an access token and a refresh token for u without storing
// anything.
func (h *AuthHandler) mint(u model.User) (pair, error) {
	access, err := utils.NewAccessToken(h.Cfg.JWTSecret, u.ID, u.Role, h.Cfg.AccessTTLMin)
	if err != nil {
		return pair{}, fmt.Errorf("access token: %w", err)
	}
	refresh, err := utils.NewRefreshToken(h.Cfg.RefreshTTLDays)
	if err != nil {
		return pair{}, fmt.Errorf("refresh token: %w", err)
	}
	return pair{
		resp: authResp{
			User:    userPart{ID: u.ID, Email: u.Email, Role: u.Role},
			Access:  tokenPart{Token: access.Token, Expires: access.Exp},
			Refresh: tokenPart{Token: refresh.Raw, Expires: refresh.Exp},
		},
		refreshHash: utils.HashRefreshRaw(refresh.Raw),
	}, nil
}

// signIn mints a pair for u, stores its refresh token and writes it.
func (h *AuthHandler) signIn(ctx context.Context, c echo.Context, u model.User, status int) error {
	p, err := h.mint(u)
	if err == nil {
		err = h.Tokens.Store(ctx, u.ID, p.refreshHash, p.resp.Refresh.Expires)
	}
	if err != nil {
		h.Log.Error("issue tokens", zap.Uint64("user_id", u.ID), zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "issue tokens failed"})
	}
	return c.JSON(status, p.resp)
}
