package events

import (
	"context"
	"time"
)

const (
	SessionCreated       = "session_created"
	SessionRefreshed     = "session_refreshed"
	SessionRefreshFailed = "session_refresh_failed"
	SessionDestroyed     = "session_destroyed"
)

// Event describes a session lifecycle change.
type Event struct {
	Type      string    `json:"type"`
	SessionID string    `json:"session_id,omitempty"`
	UserID    string    `json:"user_id,omitempty"`
	Email     string    `json:"email,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	At        time.Time `json:"at"`
}

type Publisher interface {
	Publish(ctx context.Context, ev Event) error
	Close() error
}

type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) error { return nil }
func (NopPublisher) Close() error                         { return nil }
