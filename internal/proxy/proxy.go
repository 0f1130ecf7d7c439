package proxy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/studio_gateway/internal/events"
	"github.com/Skotchmaster/studio_gateway/internal/logging"
	"github.com/Skotchmaster/studio_gateway/internal/routes"
	"github.com/Skotchmaster/studio_gateway/pkg/apiclient"
)

// ErrorBody is the normalised error envelope returned to callers.
type ErrorBody struct {
	Error string `json:"error"`
}

// forwardHeaders are the only inbound headers sent upstream.
var forwardHeaders = []string{
	echo.HeaderAuthorization,
	echo.HeaderContentType,
	echo.HeaderAccept,
	"Accept-Language",
	echo.HeaderXRequestID,
	"User-Agent",
}

const maxErrorBody = 1 << 20

type Options struct {
	Timeout   time.Duration
	Transport http.RoundTripper
	Auditor   events.Auditor
	Logger    *slog.Logger
}

type Proxy struct {
	target *url.URL
	rp     *httputil.ReverseProxy
	audit  events.Auditor
	log    *slog.Logger
}

type ctxKey struct{}

type forward struct {
	route    routes.Route
	escaped  string
	upstream string
}

func New(target string, opts Options) (*Proxy, error) {
	u, err := url.Parse(target)
	if err != nil {
		return nil, err
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("upstream %q must be absolute", target)
	}

	transport := opts.Transport
	if transport == nil {
		transport = &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   5 * time.Second,
				KeepAlive: 60 * time.Second,
			}).DialContext,
			MaxIdleConns:          200,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
			ResponseHeaderTimeout: opts.Timeout,
		}
	}
	audit := opts.Auditor
	if audit == nil {
		audit = events.NopAuditor{}
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	p := &Proxy{target: u, audit: audit, log: log.With("component", "proxy")}
	p.rp = &httputil.ReverseProxy{
		Rewrite:        p.rewrite,
		Transport:      transport,
		ModifyResponse: p.modifyResponse,
		ErrorHandler:   p.errorHandler,
		FlushInterval:  100 * time.Millisecond,
	}
	return p, nil
}

func (p *Proxy) rewrite(pr *httputil.ProxyRequest) {
	fw, _ := pr.In.Context().Value(ctxKey{}).(*forward)

	pr.SetURL(p.target)
	pr.Out.URL.RawQuery = pr.In.URL.RawQuery
	if fw != nil {
		base := strings.TrimRight(p.target.Path, "/")
		pr.Out.URL.Path = base + fw.upstream
		pr.Out.URL.RawPath = strings.TrimRight(p.target.EscapedPath(), "/") + fw.escaped
	}

	pr.Out.Header = make(http.Header, len(forwardHeaders))
	for _, h := range forwardHeaders {
		if v := pr.In.Header.Values(h); len(v) > 0 {
			pr.Out.Header[h] = append([]string(nil), v...)
		}
	}
	if pr.Out.Header.Get(echo.HeaderAuthorization) == "" {
		if ck, err := pr.In.Cookie("accessToken"); err == nil && ck.Value != "" {
			pr.Out.Header.Set(echo.HeaderAuthorization, "Bearer "+ck.Value)
		}
	}
	pr.SetXForwarded()
}

func (p *Proxy) modifyResponse(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	fw, _ := resp.Request.Context().Value(ctxKey{}).(*forward)

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	resp.Body.Close()
	if err != nil {
		return fmt.Errorf("read upstream error body: %w", err)
	}

	status := http.StatusInternalServerError
	if keepsStatus(resp.StatusCode) || (fw != nil && fw.route.PassStatus) {
		status = resp.StatusCode
	}
	body, err := json.Marshal(ErrorBody{Error: apiclient.MessageFromBody(resp.StatusCode, raw)})
	if err != nil {
		return err
	}

	resp.StatusCode = status
	resp.Status = fmt.Sprintf("%d %s", status, http.StatusText(status))
	resp.Body = io.NopCloser(bytes.NewReader(body))
	resp.ContentLength = int64(len(body))
	resp.Header.Del("Content-Encoding")
	resp.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	resp.Header.Set(echo.HeaderContentLength, strconv.Itoa(len(body)))
	return nil
}

// keepsStatus reports statuses that are never folded into 500: the client
// refresh contract depends on seeing them.
func keepsStatus(code int) bool {
	return code == http.StatusUnauthorized || code == http.StatusForbidden
}

func (p *Proxy) errorHandler(w http.ResponseWriter, r *http.Request, err error) {
	l := logging.FromContext(r.Context())
	if fw, ok := r.Context().Value(ctxKey{}).(*forward); ok {
		l = l.With("route", fw.route.Name, "upstream", fw.upstream)
	}
	l.Error("proxy_failed", "status", http.StatusInternalServerError, "error", err)

	w.Header().Set(echo.HeaderContentType, echo.MIMEApplicationJSONCharsetUTF8)
	w.WriteHeader(http.StatusInternalServerError)
	_ = json.NewEncoder(w).Encode(ErrorBody{Error: "upstream request failed"})
}

// Handler forwards requests matched by route to its upstream path.
func (p *Proxy) Handler(route routes.Route) echo.HandlerFunc {
	params := route.Params()
	return func(c echo.Context) error {
		values := make(map[string]string, len(params))
		for _, name := range params {
			values[name] = c.Param(name)
		}
		escaped, err := route.Expand(values, url.PathEscape)
		if err != nil {
			return c.JSON(http.StatusBadRequest, ErrorBody{Error: err.Error()})
		}
		upstream, err := url.PathUnescape(escaped)
		if err != nil {
			return c.JSON(http.StatusBadRequest, ErrorBody{Error: err.Error()})
		}

		req := c.Request()
		ctx := context.WithValue(req.Context(), ctxKey{}, &forward{route: route, escaped: escaped, upstream: upstream})
		start := time.Now()
		p.rp.ServeHTTP(c.Response(), req.WithContext(ctx))

		p.audit.Audit(req.Context(), events.AuditRecord{
			Route:     route.Name,
			Method:    req.Method,
			Path:      req.URL.Path,
			Upstream:  upstream,
			Status:    c.Response().Status,
			Duration:  time.Since(start).Milliseconds(),
			RequestID: c.Response().Header().Get(echo.HeaderXRequestID),
			RemoteIP:  c.RealIP(),
			At:        start.UTC(),
		})
		return nil
	}
}
