package httpserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/studio_gateway/internal/events"
	"github.com/Skotchmaster/studio_gateway/internal/logging"
	"github.com/Skotchmaster/studio_gateway/internal/middleware"
	"github.com/Skotchmaster/studio_gateway/internal/session"
	"github.com/Skotchmaster/studio_gateway/internal/tokens"
	"github.com/Skotchmaster/studio_gateway/pkg/apiclient"
)

// Backend endpoints used by the auth handlers.
const (
	BackendLoginPath   = "/api/auth/login/"
	BackendLogoutPath  = "/api/auth/logout/"
	BackendRefreshPath = apiclient.DefaultRefreshPath
)

// accessFallback is the access cookie lifetime when the backend token
// carries no readable expiry.
const accessFallback = 15 * time.Minute

// AuthHTTP serves login, refresh and logout. The backend client holds no
// tokens of its own; every call is made with SkipAuth and per-request headers.
type AuthHTTP struct {
	API      *apiclient.Client
	Sessions session.Repository
	Signer   *tokens.Signer
	Events   events.Publisher

	SecureCookies bool
	SessionTTL    time.Duration
	Now           func() time.Time
}

type loginRequest struct {
	Email    string `json:"email,omitempty"`
	Username string `json:"username,omitempty"`
	Password string `json:"password"`
}

type backendUser struct {
	ID    any    `json:"id"`
	Email string `json:"email"`
}

type loginResponse struct {
	Access  string      `json:"access"`
	Refresh string      `json:"refresh"`
	User    backendUser `json:"user"`
}

type refreshRequest struct {
	Refresh string `json:"refresh"`
}

type refreshResponse struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh,omitempty"`
}

func (h *AuthHTTP) Login(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth_login")

	var req loginRequest
	if err := c.Bind(&req); err != nil {
		l.Warn("login_error", "status", 400, "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	if req.Password == "" || (req.Email == "" && req.Username == "") {
		l.Warn("login_error", "status", 400, "reason", "missing credentials")
		return echo.NewHTTPError(http.StatusBadRequest, "email and password are required")
	}

	resp, err := h.API.Send(ctx, apiclient.Request{
		Method:   http.MethodPost,
		Path:     BackendLoginPath,
		Body:     req,
		SkipAuth: true,
	})
	if err != nil {
		code, msg := backendFailure(err, http.StatusInternalServerError)
		l.Warn("login_failed", "status", code, "error", err)
		return echo.NewHTTPError(code, msg)
	}
	var out loginResponse
	if err := resp.Decode(&out); err != nil || out.Access == "" {
		l.Error("login_failed", "status", 500, "reason", "malformed backend response", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "malformed login response")
	}

	now := h.now()
	userID := fmt.Sprint(out.User.ID)
	s := session.New(userID, out.User.Email, out.Refresh, h.SessionTTL, now)
	if err := h.Sessions.Create(ctx, s); err != nil {
		l.Error("login_failed", "status", 500, "reason", "cannot create session", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "session store unavailable")
	}
	dash, err := h.Signer.Sign(s.ID, s.UserID, s.Email, s.ExpiresAt)
	if err != nil {
		l.Error("login_failed", "status", 500, "reason", "cannot sign session", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "cannot issue session")
	}

	c.SetCookie(CreateCookie(AccessCookie, out.Access, "/", expiryOr(out.Access, now.Add(accessFallback)), h.SecureCookies))
	if out.Refresh != "" {
		c.SetCookie(CreateCookie(RefreshCookie, out.Refresh, "/", expiryOr(out.Refresh, s.ExpiresAt), h.SecureCookies))
	}
	c.SetCookie(CreateCookie(middleware.DashboardCookie, dash, "/", s.ExpiresAt, h.SecureCookies))

	h.publish(ctx, l, events.Event{Type: events.SessionCreated, SessionID: s.ID, UserID: s.UserID, Email: s.Email})
	l.Info("login_successful", "session_id", s.ID, "user_id", s.UserID)

	return c.JSON(http.StatusOK, echo.Map{
		"access": out.Access,
		"user":   out.User,
	})
}

// Refresh exchanges a refresh token, taken from the body or the refreshToken
// cookie, for a new access token stored in the accessToken cookie.
func (h *AuthHTTP) Refresh(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth_refresh")

	var req refreshRequest
	if err := c.Bind(&req); err != nil {
		l.Warn("refresh_error", "status", 400, "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	if req.Refresh == "" {
		if ck, err := c.Cookie(RefreshCookie); err == nil {
			req.Refresh = ck.Value
		}
	}
	sid := h.sessionID(c)

	if req.Refresh == "" {
		h.teardown(c, l, sid, "missing refresh token")
		return echo.NewHTTPError(http.StatusUnauthorized, "missing refresh token")
	}
	if sid != "" {
		s, err := h.Sessions.Get(ctx, sid)
		switch {
		case errors.Is(err, session.ErrNotFound):
			sid = ""
		case err != nil:
			l.Error("refresh_error", "status", 500, "reason", "session lookup", "error", err)
			return echo.NewHTTPError(http.StatusInternalServerError, "session store unavailable")
		case s.RefreshHash != "" && s.RefreshHash != session.HashToken(req.Refresh):
			h.teardown(c, l, sid, "refresh token does not match session")
			l.Warn("refresh_failed", "status", 401, "reason", "refresh token does not match session", "session_id", sid)
			return echo.NewHTTPError(http.StatusUnauthorized, "refresh token does not match session")
		}
	}

	resp, err := h.API.Send(ctx, apiclient.Request{
		Method:   http.MethodPost,
		Path:     BackendRefreshPath,
		Body:     req,
		SkipAuth: true,
	})
	if err != nil {
		code, msg := backendFailure(err, http.StatusUnauthorized)
		h.teardown(c, l, sid, msg)
		l.Warn("refresh_failed", "status", code, "error", err)
		return echo.NewHTTPError(code, msg)
	}
	var out refreshResponse
	if err := resp.Decode(&out); err != nil || out.Access == "" {
		h.teardown(c, l, sid, "malformed refresh response")
		l.Warn("refresh_failed", "status", 401, "reason", "malformed backend response", "error", err)
		return echo.NewHTTPError(http.StatusUnauthorized, "refresh failed")
	}

	now := h.now()
	c.SetCookie(CreateCookie(AccessCookie, out.Access, "/", expiryOr(out.Access, now.Add(accessFallback)), h.SecureCookies))
	current := req.Refresh
	if out.Refresh != "" {
		current = out.Refresh
		c.SetCookie(CreateCookie(RefreshCookie, out.Refresh, "/", expiryOr(out.Refresh, now.Add(h.SessionTTL)), h.SecureCookies))
	}

	if sid != "" {
		err := h.Sessions.Touch(ctx, sid, session.HashToken(current), now)
		if err != nil && !errors.Is(err, session.ErrNotFound) {
			l.Warn("session_touch_failed", "session_id", sid, "error", err)
		}
		h.publish(ctx, l, events.Event{Type: events.SessionRefreshed, SessionID: sid})
	}
	l.Info("refresh_successful")

	return c.JSON(http.StatusOK, echo.Map{"access": out.Access})
}

func (h *AuthHTTP) Logout(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth_logout")

	header := http.Header{}
	if ck, err := c.Cookie(AccessCookie); err == nil && ck.Value != "" {
		header.Set(echo.HeaderAuthorization, "Bearer "+ck.Value)
	}
	var body any
	if ck, err := c.Cookie(RefreshCookie); err == nil && ck.Value != "" {
		body = refreshRequest{Refresh: ck.Value}
	}
	if _, err := h.API.Send(ctx, apiclient.Request{
		Method:   http.MethodPost,
		Path:     BackendLogoutPath,
		Body:     body,
		Header:   header,
		SkipAuth: true,
	}); err != nil {
		l.Warn("backend_logout_failed", "status", apiclient.StatusOf(err), "error", err)
	}

	sid := h.sessionID(c)
	if sid != "" {
		if err := h.Sessions.Revoke(ctx, sid); err != nil && !errors.Is(err, session.ErrNotFound) {
			l.Error("logout_failed", "status", 500, "reason", "cannot revoke session", "error", err)
		}
		h.publish(ctx, l, events.Event{Type: events.SessionDestroyed, SessionID: sid, Reason: "logout"})
	}
	h.clearCookies(c)

	l.Info("successful_logout")
	return c.JSON(http.StatusOK, echo.Map{
		"message": "logged out",
	})
}

// teardown destroys the dashboard session after a failed refresh.
func (h *AuthHTTP) teardown(c echo.Context, l *slog.Logger, sid, reason string) {
	h.clearCookies(c)
	if sid == "" {
		return
	}
	ctx := c.Request().Context()
	if err := h.Sessions.Revoke(ctx, sid); err != nil && !errors.Is(err, session.ErrNotFound) {
		l.Warn("session_revoke_failed", "session_id", sid, "error", err)
	}
	h.publish(ctx, l, events.Event{Type: events.SessionRefreshFailed, SessionID: sid, Reason: reason})
}

func (h *AuthHTTP) clearCookies(c echo.Context) {
	c.SetCookie(DeleteCookie(AccessCookie, "/", h.SecureCookies))
	c.SetCookie(DeleteCookie(RefreshCookie, "/", h.SecureCookies))
	c.SetCookie(DeleteCookie(middleware.DashboardCookie, "/", h.SecureCookies))
}

// sessionID returns the id from a valid dashboard cookie, or "".
func (h *AuthHTTP) sessionID(c echo.Context) string {
	ck, err := c.Cookie(middleware.DashboardCookie)
	if err != nil || ck.Value == "" {
		return ""
	}
	claims, err := h.Signer.Parse(ck.Value)
	if err != nil {
		return ""
	}
	return claims.ID
}

func (h *AuthHTTP) publish(ctx context.Context, l *slog.Logger, ev events.Event) {
	if h.Events == nil {
		return
	}
	ev.At = h.now().UTC()
	if err := h.Events.Publish(ctx, ev); err != nil {
		l.Warn("event_publish_failed", "type", ev.Type, "error", err)
	}
}

func (h *AuthHTTP) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now()
}

// backendFailure maps a backend call error to the status and message
// returned to the caller. Network failures use fallback.
func backendFailure(err error, fallback int) (int, string) {
	var apiErr *apiclient.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status, apiErr.Message
	}
	if errors.Is(err, apiclient.ErrNetwork) {
		return fallback, "upstream request failed"
	}
	return fallback, http.StatusText(fallback)
}

func expiryOr(token string, def time.Time) time.Time {
	if exp, ok := tokens.ExpiryOf(token); ok {
		return exp
	}
	return def
}
