package tokens

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/hkdf"
)

const dashboardKeyInfo = "studio-gateway dashboard session"

// DashboardClaims back the dashboard_session cookie. Subject is the user id,
// ID is the session id.
type DashboardClaims struct {
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

type Signer struct {
	key []byte
}

// NewSigner derives the HS256 key from NEXTAUTH_SECRET so the raw secret is
// never used as a signing key directly.
func NewSigner(secret []byte) (*Signer, error) {
	if len(secret) == 0 {
		return nil, errors.New("empty session secret")
	}
	key := make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, nil, []byte(dashboardKeyInfo)), key); err != nil {
		return nil, fmt.Errorf("derive session key: %w", err)
	}
	return &Signer{key: key}, nil
}

func (s *Signer) Sign(sessionID, userID, email string, exp time.Time) (string, error) {
	claims := DashboardClaims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        sessionID,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.key)
}

func (s *Signer) Parse(tokenStr string) (*DashboardClaims, error) {
	var claims DashboardClaims
	tkn, err := jwt.ParseWithClaims(tokenStr, &claims, func(t *jwt.Token) (any, error) {
		if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, errors.New("unexpected sign method")
		}
		return s.key, nil
	})
	if err != nil {
		return nil, err
	}
	if !tkn.Valid {
		return nil, errors.New("invalid session token")
	}
	if claims.ID == "" {
		return nil, errors.New("session token has no id")
	}
	return &claims, nil
}

// ExpiryOf reads the exp claim of a backend-issued JWT without verifying it;
// the gateway does not hold the backend's signing key and only needs the
// expiry for cookie lifetimes.
func ExpiryOf(tokenStr string) (time.Time, bool) {
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(tokenStr, &claims); err != nil {
		return time.Time{}, false
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}
