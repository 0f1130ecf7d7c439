package httpserver

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/studio_gateway/internal/middleware"
	"github.com/Skotchmaster/studio_gateway/internal/proxy"
	"github.com/Skotchmaster/studio_gateway/internal/routes"
)

// Check is a named readiness probe.
type Check struct {
	Name string
	Fn   func(ctx context.Context) error
}

type Deps struct {
	Logger    *slog.Logger
	Routes    routes.Table
	Proxy     *proxy.Proxy
	Auth      *AuthHTTP
	Dashboard *middleware.Dashboard
	Origin    middleware.OriginConfig
	Ready     []Check
}

const (
	loginPath   = "/api/auth/login"
	refreshPath = "/api/auth/refresh"
	logoutPath  = "/api/auth/logout"
)

func Register(e *echo.Echo, d *Deps) error {
	if err := d.Routes.Validate(); err != nil {
		return err
	}
	for _, r := range d.Routes {
		switch r.Path {
		case loginPath, refreshPath, logoutPath:
			return fmt.Errorf("route %q shadows the built-in auth endpoint %s", r.Name, r.Path)
		}
	}

	e.HTTPErrorHandler = ErrorHandler

	e.GET("/health/live", func(c echo.Context) error { return c.NoContent(http.StatusOK) })
	e.GET("/health/ready", d.ready)

	for _, m := range middleware.Common() {
		e.Use(m)
	}
	e.Use(middleware.RequestLogger(d.Logger))
	e.Use(middleware.SameOrigin(d.Origin))

	e.POST(loginPath, d.Auth.Login)
	e.POST(refreshPath, d.Auth.Refresh)
	e.POST(logoutPath, d.Auth.Logout)

	for _, r := range d.Routes {
		var mws []echo.MiddlewareFunc
		if r.Dashboard {
			mws = append(mws, d.Dashboard.Require)
		}
		e.Add(r.Method, r.Path, d.Proxy.Handler(r), mws...).Name = r.Name
	}
	return nil
}

func (d *Deps) ready(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()
	for _, chk := range d.Ready {
		if err := chk.Fn(ctx); err != nil {
			return echo.NewHTTPError(http.StatusServiceUnavailable, chk.Name+" not ready").SetInternal(err)
		}
	}
	return c.JSON(http.StatusOK, echo.Map{"status": "ok"})
}
