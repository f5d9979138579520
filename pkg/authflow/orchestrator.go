package authflow

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"zenspace/models"
	"zenspace/pkg/credential"
	"zenspace/pkg/token"
)

// DeviceMeta records where a session was issued from.
type DeviceMeta struct {
	UserAgent string
	IPAddress string
}

// TokenPair is what a client receives on any successful authentication event.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
}

// Orchestrator ties codec, hasher and stores together: it creates a session
// and a fresh pair on every successful authentication event, and rotates
// pairs on refresh. Sessions are never updated in place; rotation always
// deletes and recreates.
type Orchestrator struct {
	codec      *token.Codec
	hasher     credential.Hasher
	users      UserStore
	sessions   SessionStore
	refreshTTL time.Duration
	log        *zap.Logger
	now        func() time.Time
}

func NewOrchestrator(codec *token.Codec, hasher credential.Hasher, users UserStore, sessions SessionStore, refreshTTL time.Duration, log *zap.Logger) *Orchestrator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Orchestrator{
		codec:      codec,
		hasher:     hasher,
		users:      users,
		sessions:   sessions,
		refreshTTL: refreshTTL,
		log:        log,
		now:        time.Now,
	}
}

// IssueForUser mints a new session and returns its access/refresh pair. Only
// the hash of the refresh token is persisted. If the caller never receives
// the pair (request cancelled mid-flight) the session is dead data: it cannot
// be presented without the token, and expires like any other.
func (o *Orchestrator) IssueForUser(ctx context.Context, user *models.User, meta DeviceMeta) (TokenPair, error) {
	sessionID := uuid.NewString()
	refresh, err := o.codec.IssueRefresh(Subject(user.ID), sessionID)
	if err != nil {
		return TokenPair{}, err
	}
	hash, err := o.hasher.Hash(refresh)
	if err != nil {
		return TokenPair{}, err
	}
	session := &models.Session{
		ID:               sessionID,
		UserID:           user.ID,
		RefreshTokenHash: hash,
		ExpiresAt:        o.now().Add(o.refreshTTL),
		UserAgent:        meta.UserAgent,
		IPAddress:        meta.IPAddress,
	}
	if err := o.sessions.Create(ctx, session); err != nil {
		return TokenPair{}, err
	}
	access, err := o.codec.IssueAccess(Subject(user.ID))
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{AccessToken: access, RefreshToken: refresh, TokenType: "bearer"}, nil
}

// Rotate exchanges a presented refresh token for a new pair. The old session
// is deleted before the replacement is created, and the conditional delete
// decides the winner when two requests race on the same token: whoever fails
// to delete gets ErrUnauthorized.
//
// Expired sessions, hash mismatches and orphaned sessions are all deleted on
// sight. A hash mismatch on an otherwise well-formed, unexpired token means a
// stale client replaying after an earlier rotation, or tampering; either way
// the session is revoked.
func (o *Orchestrator) Rotate(ctx context.Context, presented string, meta DeviceMeta) (*models.User, TokenPair, error) {
	claims, err := o.codec.Decode(presented, token.TypeRefresh)
	if err != nil {
		return nil, TokenPair{}, err
	}
	userID, err := ParseSubject(claims.Subject)
	if err != nil || claims.SessionID == "" {
		return nil, TokenPair{}, token.ErrInvalidToken
	}

	session, err := o.sessions.Get(ctx, claims.SessionID)
	if err != nil {
		return nil, TokenPair{}, err
	}
	if session == nil || session.UserID != userID {
		return nil, TokenPair{}, ErrUnauthorized
	}
	if o.now().After(session.ExpiresAt) {
		o.discard(ctx, session.ID, "expired")
		return nil, TokenPair{}, ErrUnauthorized
	}
	if !o.hasher.Verify(presented, session.RefreshTokenHash) {
		o.discard(ctx, session.ID, "hash mismatch")
		return nil, TokenPair{}, ErrUnauthorized
	}

	user, err := o.users.FindByID(ctx, session.UserID)
	if err != nil {
		return nil, TokenPair{}, err
	}
	if user == nil {
		o.discard(ctx, session.ID, "owner deleted")
		return nil, TokenPair{}, ErrUserNotFound
	}

	deleted, err := o.sessions.Delete(ctx, session.ID)
	if err != nil {
		return nil, TokenPair{}, err
	}
	if !deleted {
		// Another request rotated this session first.
		return nil, TokenPair{}, ErrUnauthorized
	}

	pair, err := o.IssueForUser(ctx, user, meta)
	if err != nil {
		return nil, TokenPair{}, err
	}
	return user, pair, nil
}

// discard is best-effort cleanup of a session that can no longer be trusted.
func (o *Orchestrator) discard(ctx context.Context, id, reason string) {
	if _, err := o.sessions.Delete(ctx, id); err != nil {
		o.log.Warn("failed to delete stale session",
			zap.String("session_id", id),
			zap.String("reason", reason),
			zap.Error(err))
	}
}

// Subject renders a user id as a token subject claim.
func Subject(userID uint) string {
	return strconv.FormatUint(uint64(userID), 10)
}

// ParseSubject parses a subject claim back into a user id.
func ParseSubject(subject string) (uint, error) {
	id, err := strconv.ParseUint(subject, 10, 32)
	if err != nil {
		return 0, err
	}
	return uint(id), nil
}
