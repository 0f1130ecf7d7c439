package httpserver

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Skotchmaster/studio_gateway/internal/logging"
	"github.com/Skotchmaster/studio_gateway/internal/middleware"
	"github.com/Skotchmaster/studio_gateway/internal/routes"
	"github.com/Skotchmaster/studio_gateway/internal/session"
)

func TestRegister_Health(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, func(w http.ResponseWriter, r *http.Request) {})

	rec := env.do(httptest.NewRequest(http.MethodGet, "/health/live", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestRegister_ReadyFailure(t *testing.T) {
	t.Parallel()

	e := echo.New()
	require.NoError(t, Register(e, &Deps{
		Logger: logging.Discard(),
		Ready: []Check{{Name: "elasticsearch", Fn: func(context.Context) error {
			return errors.New("connection refused")
		}}},
	}))

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.JSONEq(t, `{"error":"elasticsearch not ready"}`, rec.Body.String())
}

func TestRegister_DashboardRoutesAreGuarded(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"balance":"12.00"}`))
	})

	req := httptest.NewRequest(http.MethodGet, "/api/billing/summary", nil)
	req.Header.Set(echo.HeaderAccept, echo.MIMEApplicationJSON)
	rec := env.do(req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"error":"missing dashboard session"}`, rec.Body.String())

	s := session.New("42", "ada@example.com", "r1", time.Hour, time.Now())
	require.NoError(t, env.sessions.Create(context.Background(), s))
	dash, err := env.signer.Sign(s.ID, s.UserID, s.Email, s.ExpiresAt)
	require.NoError(t, err)

	req = httptest.NewRequest(http.MethodGet, "/api/billing/summary", nil)
	req.AddCookie(&http.Cookie{Name: middleware.DashboardCookie, Value: dash})
	rec = env.do(req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"balance":"12.00"}`, rec.Body.String())
}

func TestRegister_UnknownRouteRendersJSON(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, func(w http.ResponseWriter, r *http.Request) {})

	rec := env.do(httptest.NewRequest(http.MethodGet, "/api/does-not-exist", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"error":"Not Found"}`, rec.Body.String())
}

func TestRegister_RejectsShadowedAuthRoute(t *testing.T) {
	t.Parallel()

	err := Register(echo.New(), &Deps{
		Logger: logging.Discard(),
		Routes: routes.Table{{Name: "login", Method: http.MethodPost, Path: "/api/auth/login", Upstream: "/api/auth/login/"}},
	})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "shadows")
}
