package middleware

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/studio_gateway/internal/logging"
	"github.com/Skotchmaster/studio_gateway/internal/session"
	"github.com/Skotchmaster/studio_gateway/internal/tokens"
)

const (
	DashboardCookie = "dashboard_session"

	CtxSessionID = "session_id"
	CtxUserID    = "user_id"
)

type Dashboard struct {
	Signer    *tokens.Signer
	Sessions  session.Repository
	LoginPath string
	Now       func() time.Time
}

// Require admits requests carrying a valid, unrevoked dashboard session.
// Browser navigations are redirected to the login page; API callers get 401.
func (d *Dashboard) Require(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		l := logging.FromContext(c.Request().Context()).With("middleware", "dashboard")

		ck, err := c.Cookie(DashboardCookie)
		if err != nil || ck.Value == "" {
			return d.deny(c, "missing dashboard session")
		}
		claims, err := d.Signer.Parse(ck.Value)
		if err != nil {
			l.Warn("dashboard_denied", "reason", "invalid token", "error", err)
			return d.deny(c, "invalid or expired session")
		}

		s, err := d.Sessions.Get(c.Request().Context(), claims.ID)
		switch {
		case errors.Is(err, session.ErrNotFound):
			return d.deny(c, "unknown session")
		case err != nil:
			l.Error("dashboard_error", "reason", "session lookup", "error", err)
			return echo.NewHTTPError(http.StatusInternalServerError, "session lookup failed")
		}
		if err := s.Check(d.now()); err != nil {
			l.Warn("dashboard_denied", "reason", err.Error(), "session_id", s.ID)
			return d.deny(c, err.Error())
		}

		c.Set(CtxSessionID, s.ID)
		c.Set(CtxUserID, s.UserID)
		return next(c)
	}
}

func (d *Dashboard) deny(c echo.Context, msg string) error {
	if wantsHTML(c.Request()) {
		return c.Redirect(http.StatusFound, d.LoginPath)
	}
	return echo.NewHTTPError(http.StatusUnauthorized, msg)
}

func (d *Dashboard) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

func wantsHTML(r *http.Request) bool {
	return r.Method == http.MethodGet && strings.Contains(r.Header.Get(echo.HeaderAccept), echo.MIMETextHTML)
}
