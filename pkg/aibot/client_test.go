package aibot

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReplySuccess(t *testing.T) {
	var got request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		_ = json.NewEncoder(w).Encode(map[string]string{"reply": "  hello there  "})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)
	reply, err := c.Reply(context.Background(), "hi", &Context{UserID: "42", RiskFlags: []string{"harm"}})
	require.NoError(t, err)
	assert.Equal(t, "hello there", reply) // whitespace trimmed
	assert.Equal(t, "hi", got.Message)
	require.NotNil(t, got.Context)
	assert.Equal(t, "42", got.Context.UserID)
}

func TestReplyErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(map[string]string{"error": "model overloaded"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)
	_, err := c.Reply(context.Background(), "hi", nil)
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Contains(t, err.Error(), "model overloaded")
}

func TestReplyMissingField(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"something": "else"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)
	_, err := c.Reply(context.Background(), "hi", nil)
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestReplyInvalidJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json"))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)
	_, err := c.Reply(context.Background(), "hi", nil)
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestReplyUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // shut down before use

	c := NewClient(srv.URL, time.Second)
	_, err := c.Reply(context.Background(), "hi", nil)
	assert.ErrorIs(t, err, ErrUnavailable)
}
