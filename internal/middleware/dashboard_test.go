package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Skotchmaster/studio_gateway/internal/session"
	"github.com/Skotchmaster/studio_gateway/internal/tokens"
)

type dashboardEnv struct {
	d        *Dashboard
	sessions *session.MemoryRepo
	signer   *tokens.Signer
}

func newDashboardEnv(t *testing.T) *dashboardEnv {
	t.Helper()
	signer, err := tokens.NewSigner([]byte("nextauth-secret"))
	require.NoError(t, err)
	sessions := session.NewMemoryRepo()
	return &dashboardEnv{
		d:        &Dashboard{Signer: signer, Sessions: sessions, LoginPath: "/login"},
		sessions: sessions,
		signer:   signer,
	}
}

func (env *dashboardEnv) login(t *testing.T) (*session.Session, *http.Cookie) {
	t.Helper()
	s := session.New("42", "ada@example.com", "refresh", time.Hour, time.Now())
	require.NoError(t, env.sessions.Create(context.Background(), s))
	tok, err := env.signer.Sign(s.ID, s.UserID, s.Email, s.ExpiresAt)
	require.NoError(t, err)
	return s, &http.Cookie{Name: DashboardCookie, Value: tok}
}

func (env *dashboardEnv) serve(req *http.Request) (*httptest.ResponseRecorder, echo.Context, error) {
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	err := env.d.Require(func(c echo.Context) error {
		return c.JSON(http.StatusOK, echo.Map{"user": c.Get(CtxUserID)})
	})(c)
	return rec, c, err
}

func TestDashboard_AdmitsValidSession(t *testing.T) {
	t.Parallel()

	env := newDashboardEnv(t)
	s, ck := env.login(t)

	req := httptest.NewRequest(http.MethodGet, "/api/billing/summary", nil)
	req.AddCookie(ck)
	rec, c, err := env.serve(req)

	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, s.ID, c.Get(CtxSessionID))
}

func TestDashboard_RejectsAPICallers(t *testing.T) {
	t.Parallel()

	env := newDashboardEnv(t)
	s, ck := env.login(t)
	require.NoError(t, env.sessions.Revoke(context.Background(), s.ID))

	tests := []struct {
		name   string
		cookie *http.Cookie
	}{
		{name: "no cookie"},
		{name: "garbage", cookie: &http.Cookie{Name: DashboardCookie, Value: "not-a-jwt"}},
		{name: "revoked", cookie: ck},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			req := httptest.NewRequest(http.MethodGet, "/api/moderation/queue", nil)
			req.Header.Set(echo.HeaderAccept, echo.MIMEApplicationJSON)
			if tt.cookie != nil {
				req.AddCookie(tt.cookie)
			}
			_, _, err := env.serve(req)

			he, ok := err.(*echo.HTTPError)
			require.True(t, ok, "expected HTTPError")
			assert.Equal(t, http.StatusUnauthorized, he.Code)
		})
	}
}

func TestDashboard_RedirectsBrowsers(t *testing.T) {
	t.Parallel()

	env := newDashboardEnv(t)
	req := httptest.NewRequest(http.MethodGet, "/api/analytics/overview", nil)
	req.Header.Set(echo.HeaderAccept, "text/html,application/xhtml+xml")
	rec, _, err := env.serve(req)

	require.NoError(t, err)
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/login", rec.Header().Get(echo.HeaderLocation))
}

func TestDashboard_UnknownSession(t *testing.T) {
	t.Parallel()

	env := newDashboardEnv(t)
	tok, err := env.signer.Sign("ghost", "42", "", time.Now().Add(time.Hour))
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/billing/summary", nil)
	req.AddCookie(&http.Cookie{Name: DashboardCookie, Value: tok})
	_, _, err = env.serve(req)

	he, ok := err.(*echo.HTTPError)
	require.True(t, ok)
	assert.Equal(t, http.StatusUnauthorized, he.Code)
}
