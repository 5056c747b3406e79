// Package session is the registry of editing sessions. File locks are owned
// by sessions; ending a session releases its locks.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"docvault/internal/auth"
	"docvault/internal/models"
	"docvault/internal/store"
)

var (
	// ErrUnknownSession means no session with the given id exists.
	ErrUnknownSession = errors.New("unknown session")
	// ErrInvalidToken means the presented token does not match.
	ErrInvalidToken = errors.New("invalid session token")
)

// Created is returned once on creation; the plaintext token is not stored.
type Created struct {
	Session models.Session `json:"session"`
	Token   string         `json:"token"`
}

// Registry creates, authenticates and ends sessions.
type Registry struct {
	store  store.SessionStore
	now    func() time.Time
	logger *slog.Logger
}

// NewRegistry creates a registry over st.
func NewRegistry(st store.SessionStore, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{store: st, now: time.Now, logger: logger.With("component", "session")}
}

// Create registers a new session for user.
func (r *Registry) Create(ctx context.Context, user string) (*Created, error) {
	name, err := auth.NormalizeUsername(user)
	if err != nil {
		return nil, err
	}
	token, err := auth.NewToken()
	if err != nil {
		return nil, fmt.Errorf("generate token: %w", err)
	}
	hash, err := auth.HashToken(token)
	if err != nil {
		return nil, fmt.Errorf("hash token: %w", err)
	}
	now := r.now().UTC()
	sess := models.Session{
		ID:         uuid.NewString(),
		User:       name,
		TokenHash:  hash,
		CreatedAt:  now,
		LastSeenAt: now,
	}
	if err := r.store.CreateSession(ctx, &sess); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	r.logger.Info("session created", "session", sess.ID, "user", name)
	return &Created{Session: sess, Token: token}, nil
}

// Lookup returns the session without checking credentials.
func (r *Registry) Lookup(ctx context.Context, id string) (*models.Session, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrUnknownSession
	}
	sess, err := r.store.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, ErrUnknownSession
	}
	return sess, nil
}

// Authenticate checks token against the session and records activity.
func (r *Registry) Authenticate(ctx context.Context, id, token string) (*models.Session, error) {
	sess, err := r.Lookup(ctx, id)
	if err != nil {
		return nil, err
	}
	if !auth.VerifyToken(sess.TokenHash, token) {
		return nil, ErrInvalidToken
	}
	now := r.now().UTC()
	if _, err := r.store.TouchSession(ctx, id, now); err != nil {
		r.logger.Warn("touch session failed", "session", id, "err", err)
	} else {
		sess.LastSeenAt = now
	}
	return sess, nil
}

// End removes the session and releases every lock it held.
func (r *Registry) End(ctx context.Context, id string) (int, error) {
	teardown, err := r.store.DeleteSession(ctx, id)
	if err != nil {
		return 0, fmt.Errorf("end session: %w", err)
	}
	if !teardown.Found {
		return teardown.LocksReleased, ErrUnknownSession
	}
	r.logger.Info("session ended", "session", id, "locks_released", teardown.LocksReleased)
	return teardown.LocksReleased, nil
}

// List returns every session.
func (r *Registry) List(ctx context.Context) ([]models.Session, error) {
	return r.store.ListSessions(ctx)
}
