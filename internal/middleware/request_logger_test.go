package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Skotchmaster/studio_gateway/internal/logging"
)

func TestRequestLogger(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	e := echo.New()
	for _, m := range Common() {
		e.Use(m)
	}
	e.Use(RequestLogger(logging.NewWithWriter(&buf, "debug")))

	var fwd string
	e.GET("/api/tracks/:id", func(c echo.Context) error {
		logging.FromContext(c.Request().Context()).Info("handler_ran")
		fwd = c.Request().Header.Get(echo.HeaderXRequestID)
		return echo.NewHTTPError(http.StatusNotFound, "track not found")
	})

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/tracks/7", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	rid := rec.Header().Get(echo.HeaderXRequestID)
	require.NotEmpty(t, rid)
	assert.Equal(t, rid, fwd)

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 2)

	var handler, done map[string]any
	require.NoError(t, json.Unmarshal(lines[0], &handler))
	require.NoError(t, json.Unmarshal(lines[1], &done))
	assert.Equal(t, rid, handler["request_id"])
	assert.Equal(t, "request completed", done["msg"])
	assert.Equal(t, "WARN", done["level"])
	assert.Equal(t, float64(http.StatusNotFound), done["status"])
	assert.Equal(t, "/api/tracks/:id", done["path"])
}
