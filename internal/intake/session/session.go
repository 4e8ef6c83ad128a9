// internal/intake/session/session.go

// Package session caches submission context snapshots and raw note text in
// Redis so follow-up workers can pick up where a submission left off without
// re-parsing the note.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	sessionKeyPrefix = "intake:session:"
	rawTextKeyPrefix = "intake:rawtext:"
)

// ErrNotFound marks a missing or expired entry.
var ErrNotFound = errors.New("session entry not found")

// Store persists per-submission state between workers.
type Store struct {
	client *redis.Client
}

func NewStore(client *redis.Client) *Store {
	return &Store{client: client}
}

// SaveSession stores a submission context snapshot under the given token.
func (s *Store) SaveSession(ctx context.Context, token string, snapshot map[string]string, ttl time.Duration) error {
	if token == "" {
		return errors.New("session token is empty")
	}

	raw, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}

	if err := s.client.Set(ctx, sessionKeyPrefix+token, raw, ttl).Err(); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// LoadSession returns the snapshot stored under the token, or ErrNotFound.
func (s *Store) LoadSession(ctx context.Context, token string) (map[string]string, error) {
	raw, err := s.client.Get(ctx, sessionKeyPrefix+token).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load session: %w", err)
	}

	var snapshot map[string]string
	if err := json.Unmarshal([]byte(raw), &snapshot); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	return snapshot, nil
}

// RememberRawText keeps the original note text for a customer so the
// follow-up task worker can reuse it as task content.
func (s *Store) RememberRawText(ctx context.Context, customerCode, text string, ttl time.Duration) error {
	key, err := rawTextKey(customerCode)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, key, text, ttl).Err(); err != nil {
		return fmt.Errorf("save raw text: %w", err)
	}
	return nil
}

// RawText returns the remembered note text for a customer, or ErrNotFound.
func (s *Store) RawText(ctx context.Context, customerCode string) (string, error) {
	key, err := rawTextKey(customerCode)
	if err != nil {
		return "", err
	}
	text, err := s.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("load raw text: %w", err)
	}
	return text, nil
}

// rawTextKey normalizes the customer code the same way the CRM lookup does,
// so "c45636" and "C45636" share one entry.
func rawTextKey(customerCode string) (string, error) {
	code := strings.ToUpper(strings.TrimSpace(customerCode))
	if code == "" {
		return "", errors.New("customer code is empty")
	}
	return rawTextKeyPrefix + code, nil
}
