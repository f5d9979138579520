package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"zenspace/models"
	"zenspace/pkg/authflow"
	"zenspace/pkg/credential"
	"zenspace/pkg/token"
)

// In-memory store fakes so the auth endpoints can be exercised without
// Postgres. The GORM-backed chat and analytics stores are covered by the
// opt-in integration test instead.

type fakeUserStore struct {
	mu      sync.Mutex
	nextID  uint
	users   map[uint]models.User
	findErr error // when set, FindByID fails with it
}

func newFakeUserStore() *fakeUserStore {
	return &fakeUserStore{users: make(map[uint]models.User)}
}

func (s *fakeUserStore) FindByEmail(_ context.Context, email string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Email == email {
			copied := u
			return &copied, nil
		}
	}
	return nil, nil
}

func (s *fakeUserStore) FindByID(_ context.Context, id uint) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.findErr != nil {
		return nil, s.findErr
	}
	if u, ok := s.users[id]; ok {
		copied := u
		return &copied, nil
	}
	return nil, nil
}

func (s *fakeUserStore) Create(_ context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Email == user.Email {
			return authflow.ErrAlreadyExists
		}
	}
	s.nextID++
	user.ID = s.nextID
	s.users[user.ID] = *user
	return nil
}

func (s *fakeUserStore) Update(_ context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[user.ID] = *user
	return nil
}

type fakeSessionStore struct {
	mu       sync.Mutex
	sessions map[string]models.Session
}

func newFakeSessionStore() *fakeSessionStore {
	return &fakeSessionStore{sessions: make(map[string]models.Session)}
}

func (s *fakeSessionStore) Create(_ context.Context, session *models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.ID] = *session
	return nil
}

func (s *fakeSessionStore) Get(_ context.Context, id string) (*models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[id]; ok {
		copied := sess
		return &copied, nil
	}
	return nil, nil
}

func (s *fakeSessionStore) Delete(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[id]; !ok {
		return false, nil
	}
	delete(s.sessions, id)
	return true, nil
}

func (s *fakeSessionStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func newTestRouter(t *testing.T) (*gin.Engine, *fakeUserStore, *fakeSessionStore) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := Config{
		JWTSecret:                "test-secret",
		JWTAlgorithm:             "HS256",
		AccessTokenExpireMinutes: 15,
		RefreshTokenExpireDays:   7,
		FrontendOrigin:           "http://localhost:5173",
	}
	codec, err := token.NewCodec(cfg.JWTSecret, cfg.JWTAlgorithm, cfg.AccessTokenTTL(), cfg.RefreshTokenTTL())
	require.NoError(t, err)
	hasher := credential.NewHasher(bcrypt.MinCost)
	users := newFakeUserStore()
	sessions := newFakeSessionStore()

	a := &api{
		cfg:          cfg,
		log:          zap.NewNop(),
		users:        users,
		reconciler:   authflow.NewReconciler(users, hasher),
		orchestrator: authflow.NewOrchestrator(codec, hasher, users, sessions, cfg.RefreshTokenTTL(), zap.NewNop()),
		codec:        codec,
	}
	r := gin.New()
	setupRoutes(r, a)
	return r, users, sessions
}

func performJSON(r http.Handler, method, path string, payload any, bearer string) *httptest.ResponseRecorder {
	var body *bytes.Buffer
	if payload != nil {
		b, _ := json.Marshal(payload)
		body = bytes.NewBuffer(b)
	} else {
		body = &bytes.Buffer{}
	}
	req, _ := http.NewRequest(method, path, body)
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

type authBody struct {
	User   map[string]any     `json:"user"`
	Tokens authflow.TokenPair `json:"tokens"`
}

func TestAuthFlow(t *testing.T) {
	r, _, sessions := newTestRouter(t)

	// Signup.
	rec := performJSON(r, http.MethodPost, "/api/auth/signup", map[string]string{
		"name": "Ada Lovelace", "email": "a@x.com", "password": "pw123456",
	}, "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var signup authBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &signup))
	assert.Equal(t, "a@x.com", signup.User["email"])
	assert.Equal(t, "Ada", signup.User["firstName"])
	require.NotEmpty(t, signup.Tokens.AccessToken)
	require.NotEmpty(t, signup.Tokens.RefreshToken)
	assert.Equal(t, 1, sessions.count())

	// Duplicate signup.
	rec = performJSON(r, http.MethodPost, "/api/auth/signup", map[string]string{
		"name": "Ada", "email": "a@x.com", "password": "pw123456",
	}, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Wrong password.
	rec = performJSON(r, http.MethodPost, "/api/auth/login", map[string]string{
		"email": "a@x.com", "password": "wrong",
	}, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid credentials")

	// Correct login creates a second session; signup's stays valid until used.
	rec = performJSON(r, http.MethodPost, "/api/auth/login", map[string]string{
		"email": "a@x.com", "password": "pw123456",
	}, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 2, sessions.count())

	// Refresh with signup's token rotates it.
	rec = performJSON(r, http.MethodPost, "/api/auth/refresh", map[string]string{
		"refresh_token": signup.Tokens.RefreshToken,
	}, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var rotated authflow.TokenPair
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rotated))
	assert.NotEqual(t, signup.Tokens.RefreshToken, rotated.RefreshToken)
	assert.Equal(t, 2, sessions.count())

	// Replaying the rotated token fails.
	rec = performJSON(r, http.MethodPost, "/api/auth/refresh", map[string]string{
		"refresh_token": signup.Tokens.RefreshToken,
	}, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid or expired refresh token")
}

func TestMeRequiresAccessToken(t *testing.T) {
	r, _, _ := newTestRouter(t)

	rec := performJSON(r, http.MethodPost, "/api/auth/signup", map[string]string{
		"name": "Ada", "email": "a@x.com", "password": "pw123456",
	}, "")
	require.Equal(t, http.StatusCreated, rec.Code)
	var signup authBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &signup))

	// Access token works.
	rec = performJSON(r, http.MethodGet, "/api/users/me", nil, signup.Tokens.AccessToken)
	assert.Equal(t, http.StatusOK, rec.Code)

	// A refresh token is the wrong type and must be rejected.
	rec = performJSON(r, http.MethodGet, "/api/users/me", nil, signup.Tokens.RefreshToken)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// No token at all.
	rec = performJSON(r, http.MethodGet, "/api/users/me", nil, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestUpdateParent(t *testing.T) {
	r, _, _ := newTestRouter(t)

	rec := performJSON(r, http.MethodPost, "/api/auth/signup", map[string]string{
		"name": "Ada", "email": "a@x.com", "password": "pw123456",
	}, "")
	require.Equal(t, http.StatusCreated, rec.Code)
	var signup authBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &signup))

	rec = performJSON(r, http.MethodPut, "/api/users/me/parent", map[string]string{
		"name": "Guardian", "email": "g@x.com", "phone": "555-0100",
	}, signup.Tokens.AccessToken)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	parent := out["parent"].(map[string]any)
	assert.Equal(t, "Guardian", parent["name"])
}

func TestMalformedRefreshBody(t *testing.T) {
	r, _, _ := newTestRouter(t)
	rec := performJSON(r, http.MethodPost, "/api/auth/refresh", map[string]string{
		"refresh_token": "short",
	}, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGoogleStartUnconfigured(t *testing.T) {
	r, _, _ := newTestRouter(t)
	rec := performJSON(r, http.MethodGet, "/api/auth/google/start", nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealth(t *testing.T) {
	r, _, _ := newTestRouter(t)
	rec := performJSON(r, http.MethodGet, "/api/health", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "zenspace")
}

func TestScanRiskFlags(t *testing.T) {
	assert.Empty(t, scanRiskFlags("just a normal day"))
	flags := scanRiskFlags("I feel Hopeless and want to END IT")
	assert.Equal(t, []string{"hopeless", "end it"}, flags)
}

func TestExpiredAccessTokenRejected(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cfg := Config{JWTSecret: "test-secret", AccessTokenExpireMinutes: 15, RefreshTokenExpireDays: 7}
	// A codec with an already-elapsed access lifetime.
	expiredCodec, err := token.NewCodec(cfg.JWTSecret, "HS256", -time.Minute, cfg.RefreshTokenTTL())
	require.NoError(t, err)

	r, _, _ := newTestRouter(t)
	expired, err := expiredCodec.IssueAccess("1")
	require.NoError(t, err)

	rec := performJSON(r, http.MethodGet, "/api/users/me", nil, expired)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid or expired token")
}

// A failing user lookup is a server fault, not a bad credential; it must not
// be reported to the client as a 401.
func TestAuthStoreFailureIs500(t *testing.T) {
	r, users, _ := newTestRouter(t)

	rec := performJSON(r, http.MethodPost, "/api/auth/signup", map[string]string{
		"name": "Ada", "email": "a@x.com", "password": "pw123456",
	}, "")
	require.Equal(t, http.StatusCreated, rec.Code)
	var signup authBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &signup))

	users.findErr = errors.New("connection refused")

	rec = performJSON(r, http.MethodGet, "/api/users/me", nil, signup.Tokens.AccessToken)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "internal error")

	// Same contract on the optional-auth path.
	rec = performJSON(r, http.MethodPost, "/api/chat/send", map[string]string{
		"message": "hi",
	}, signup.Tokens.AccessToken)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestCORSPreflight(t *testing.T) {
	r, _, _ := newTestRouter(t)

	req, _ := http.NewRequest(http.MethodOptions, "/api/auth/login", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "http://localhost:5173", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))

	// A foreign origin is refused outright.
	req, _ = http.NewRequest(http.MethodOptions, "/api/auth/login", nil)
	req.Header.Set("Origin", "http://evil.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}
