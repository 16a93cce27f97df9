package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/egfr-calculator/internal/auth"
)

// AuthHandler exposes the authentication capability.
type AuthHandler struct {
	Auth *auth.Service
}

func NewAuthHandler(a *auth.Service) *AuthHandler { return &AuthHandler{Auth: a} }

type credentialsReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshReq struct {
	RefreshToken string `json:"refresh_token"`
}

type tokenPart struct {
	Token   string    `json:"token"`
	Expires time.Time `json:"expires"`
}

type authResp struct {
	User    auth.CurrentUser `json:"user"`
	Access  tokenPart        `json:"access"`
	Refresh tokenPart        `json:"refresh"`
}

func sessionResp(s auth.Session) authResp {
	return authResp{
		User:    s.User,
		Access:  tokenPart{Token: s.AccessToken, Expires: s.AccessExpiresAt},
		Refresh: tokenPart{Token: s.RefreshToken, Expires: s.RefreshExpiresAt},
	}
}

// Register creates an account and returns a session.
func (h *AuthHandler) Register(c echo.Context) error {
	var req credentialsReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	ctx, cancel := withTimeout(c)
	defer cancel()

	s, err := h.Auth.SignUp(ctx, req.Email, req.Password)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, sessionResp(s))
}

// Login verifies credentials and returns a session.
func (h *AuthHandler) Login(c echo.Context) error {
	var req credentialsReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	ctx, cancel := withTimeout(c)
	defer cancel()

	s, err := h.Auth.SignIn(ctx, req.Email, req.Password)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, sessionResp(s))
}

// Refresh rotates a refresh token.
func (h *AuthHandler) Refresh(c echo.Context) error {
	var req refreshReq
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.RefreshToken) == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "refresh_token required"})
	}
	ctx, cancel := withTimeout(c)
	defer cancel()

	s, err := h.Auth.Refresh(ctx, req.RefreshToken)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, sessionResp(s))
}

// Logout revokes the given refresh token, or every session of the caller
// when the body carries none.  Runs behind JWTAuth.
func (h *AuthHandler) Logout(c echo.Context) error {
	u, err := currentUser(c)
	if err != nil {
		return writeError(c, err)
	}
	var req refreshReq
	_ = c.Bind(&req) // an empty body means "everywhere"

	ctx, cancel := withTimeout(c)
	defer cancel()
	if err := h.Auth.SignOut(ctx, u, req.RefreshToken); err != nil {
		return writeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}
