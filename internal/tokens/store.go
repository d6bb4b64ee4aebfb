// Package tokens issues and redeems short-lived opaque download tokens.
// A token grants read-only access to exactly one artifact path. Tokens
// live on the broker so they survive gateway restarts; the worker pools
// never touch them.
package tokens

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redemption failures are deliberately indistinguishable in HTTP bodies;
// the status code (404 vs 410) is the only signal.
var (
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
)

// Token is an issued download capability.
type Token struct {
	Token     string    `json:"token"`
	Path      string    `json:"-"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Store issues and redeems tokens against Redis.
type Store struct {
	rdb *redis.Client
	ttl time.Duration
}

// retentionSlack keeps expired token records around long enough to
// answer 410 instead of 404.
const retentionSlack = time.Hour

// NewStore creates a token store. ttl defaults to 30 minutes.
func NewStore(rdb *redis.Client, ttl time.Duration) *Store {
	if ttl == 0 {
		ttl = 30 * time.Minute
	}
	return &Store{rdb: rdb, ttl: ttl}
}

func tokenKey(token string) string { return "dltoken:" + token }

// Issue mints a token bound to an artifact path.
func (s *Store) Issue(ctx context.Context, path string) (Token, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return Token{}, fmt.Errorf("failed to generate token: %w", err)
	}
	t := Token{
		Token:     hex.EncodeToString(buf),
		Path:      path,
		ExpiresAt: time.Now().Add(s.ttl).UTC(),
	}

	pipe := s.rdb.TxPipeline()
	pipe.HSet(ctx, tokenKey(t.Token), map[string]interface{}{
		"path":       t.Path,
		"expires_at": t.ExpiresAt.Format(time.RFC3339),
	})
	pipe.Expire(ctx, tokenKey(t.Token), s.ttl+retentionSlack)
	if _, err := pipe.Exec(ctx); err != nil {
		return Token{}, fmt.Errorf("failed to store token: %w", err)
	}
	return t, nil
}

// Redeem resolves a token to its artifact path, checking expiry against
// the wall clock at redemption time.
func (s *Store) Redeem(ctx context.Context, token string) (string, error) {
	fields, err := s.rdb.HGetAll(ctx, tokenKey(token)).Result()
	if err != nil {
		return "", fmt.Errorf("failed to read token: %w", err)
	}
	if len(fields) == 0 {
		return "", ErrInvalidToken
	}
	expiresAt, err := time.Parse(time.RFC3339, fields["expires_at"])
	if err != nil {
		return "", ErrInvalidToken
	}
	if time.Now().After(expiresAt) {
		return "", ErrTokenExpired
	}
	return fields["path"], nil
}
