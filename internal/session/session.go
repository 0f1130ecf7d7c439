package session

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound = errors.New("session not found")
	ErrRevoked  = errors.New("session revoked")
	ErrExpired  = errors.New("session expired")
)

// Session is the gateway's record of one login. The refresh token itself is
// never stored, only its hash.
type Session struct {
	ID          string    `gorm:"primaryKey;size:36" json:"id"`
	UserID      string    `gorm:"index;size:64" json:"user_id"`
	Email       string    `gorm:"size:320" json:"email"`
	RefreshHash string    `gorm:"size:64" json:"refresh_hash"`
	CreatedAt   time.Time `json:"created_at"`
	RefreshedAt time.Time `json:"refreshed_at"`
	ExpiresAt   time.Time `gorm:"index" json:"expires_at"`
	Revoked     bool      `json:"revoked"`
}

func (Session) TableName() string { return "gateway_sessions" }

type Repository interface {
	Create(ctx context.Context, s *Session) error
	Get(ctx context.Context, id string) (*Session, error)
	Touch(ctx context.Context, id, refreshHash string, at time.Time) error
	Revoke(ctx context.Context, id string) error
}

func New(userID, email, refreshToken string, ttl time.Duration, now time.Time) *Session {
	now = now.UTC()
	return &Session{
		ID:          uuid.NewString(),
		UserID:      userID,
		Email:       email,
		RefreshHash: HashToken(refreshToken),
		CreatedAt:   now,
		RefreshedAt: now,
		ExpiresAt:   now.Add(ttl),
	}
}

// Check reports why s can no longer be used, or nil.
func (s *Session) Check(now time.Time) error {
	if s.Revoked {
		return ErrRevoked
	}
	if !now.Before(s.ExpiresAt) {
		return ErrExpired
	}
	return nil
}

func HashToken(tok string) string {
	if tok == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(tok))
	return hex.EncodeToString(sum[:])
}
