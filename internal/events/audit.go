package events

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/elastic/go-elasticsearch/v9"
)

// AuditRecord is one proxied request.
type AuditRecord struct {
	Route     string    `json:"route"`
	Method    string    `json:"method"`
	Path      string    `json:"path"`
	Upstream  string    `json:"upstream"`
	Status    int       `json:"status"`
	Duration  int64     `json:"duration_ms"`
	RequestID string    `json:"request_id,omitempty"`
	RemoteIP  string    `json:"remote_ip,omitempty"`
	At        time.Time `json:"@timestamp"`
}

// Auditor records proxied requests. Implementations must not block the
// request path and only log their own failures.
type Auditor interface {
	Audit(ctx context.Context, rec AuditRecord)
}

type NopAuditor struct{}

func (NopAuditor) Audit(context.Context, AuditRecord) {}

type ESAuditor struct {
	es    *elasticsearch.Client
	index string
	log   *slog.Logger
	wg    sync.WaitGroup
}

type ESConfig struct {
	URL      string
	User     string
	Password string
	Index    string
}

func NewESAuditor(cfg ESConfig, log *slog.Logger) (*ESAuditor, error) {
	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: []string{cfg.URL},
		Username:  cfg.User,
		Password:  cfg.Password,
	})
	if err != nil {
		return nil, fmt.Errorf("elasticsearch: new client: %w", err)
	}
	if log == nil {
		log = slog.Default()
	}
	return &ESAuditor{es: client, index: cfg.Index, log: log.With("component", "audit")}, nil
}

// Ping checks the cluster answers, the way startup verifies every dependency.
func (a *ESAuditor) Ping(ctx context.Context) error {
	res, err := a.es.Info(a.es.Info.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("elasticsearch: info: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		body, _ := io.ReadAll(res.Body)
		return fmt.Errorf("elasticsearch: %s: %s", res.Status(), body)
	}
	return nil
}

func (a *ESAuditor) Audit(ctx context.Context, rec AuditRecord) {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := a.write(ctx, rec); err != nil {
			a.log.Warn("audit_failed", "route", rec.Route, "error", err)
		}
	}()
}

func (a *ESAuditor) write(ctx context.Context, rec AuditRecord) error {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(rec); err != nil {
		return fmt.Errorf("encode: %w", err)
	}
	res, err := a.es.Index(a.index, &buf, a.es.Index.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("index: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		body, _ := io.ReadAll(res.Body)
		return fmt.Errorf("index %s: %s", res.Status(), body)
	}
	return nil
}

// Wait blocks until in-flight audit writes finish.
func (a *ESAuditor) Wait() {
	a.wg.Wait()
}
