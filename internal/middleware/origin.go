package middleware

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/labstack/echo/v4"
)

// sessionCookies carry credentials that a browser attaches on its own.
var sessionCookies = []string{"accessToken", "refreshToken", DashboardCookie}

type OriginConfig struct {
	// Allowed lists extra origins (scheme://host) besides the gateway's own.
	Allowed []string
	// SkipPaths are exempt, matched exactly.
	SkipPaths []string
}

// SameOrigin rejects state-changing requests that authenticate with session
// cookies but come from a foreign origin. Bearer-authenticated calls pass.
func SameOrigin(cfg OriginConfig) echo.MiddlewareFunc {
	allowed := make(map[string]struct{}, len(cfg.Allowed))
	for _, o := range cfg.Allowed {
		allowed[strings.ToLower(strings.TrimRight(o, "/"))] = struct{}{}
	}
	skip := make(map[string]struct{}, len(cfg.SkipPaths))
	for _, p := range cfg.SkipPaths {
		skip[p] = struct{}{}
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if _, ok := skip[req.URL.Path]; ok || safeMethod(req.Method) {
				return next(c)
			}
			if req.Header.Get(echo.HeaderAuthorization) != "" || !hasSessionCookie(req) {
				return next(c)
			}
			if !sameOrigin(req, allowed) {
				return echo.NewHTTPError(http.StatusForbidden, "invalid origin")
			}
			return next(c)
		}
	}
}

func safeMethod(m string) bool {
	switch strings.ToUpper(m) {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	}
	return false
}

func hasSessionCookie(r *http.Request) bool {
	for _, name := range sessionCookies {
		if ck, err := r.Cookie(name); err == nil && ck.Value != "" {
			return true
		}
	}
	return false
}

func sameOrigin(r *http.Request, allowed map[string]struct{}) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		origin = r.Header.Get("Referer")
		if origin == "" {
			return false
		}
	}
	u, err := url.Parse(origin)
	if err != nil || u.Host == "" {
		return false
	}
	if _, ok := allowed[strings.ToLower(u.Scheme+"://"+u.Host)]; ok {
		return true
	}
	return strings.EqualFold(u.Scheme, schemeOf(r)) && strings.EqualFold(u.Host, r.Host)
}

func schemeOf(r *http.Request) string {
	if p := r.Header.Get(echo.HeaderXForwardedProto); p != "" {
		return p
	}
	if r.TLS != nil {
		return "https"
	}
	return "http"
}
