package dashboard

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestBridge_FetchConfig(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		require.Equal(t, "/api/bot/config", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"freeze_enabled": false,
			"min_age":        18,
		})
	}))
	defer srv.Close()

	bridge := NewBridge(srv.URL, "dash-key", 2*time.Second, zaptest.NewLogger(t).Sugar())
	cfg, err := bridge.FetchConfig(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "Bearer dash-key", gotAuth)
	require.NotNil(t, cfg.FreezeEnabled)
	assert.False(t, *cfg.FreezeEnabled)
	require.NotNil(t, cfg.MinAge)
	assert.Equal(t, 18, *cfg.MinAge)
	assert.Nil(t, cfg.WelcomeMessage)
}

func TestBridge_FetchConfigError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	bridge := NewBridge(srv.URL, "", 2*time.Second, zaptest.NewLogger(t).Sugar())
	_, err := bridge.FetchConfig(context.Background())
	assert.Error(t, err)
}

func TestBridge_PushEvent(t *testing.T) {
	var mu sync.Mutex
	var received map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/bot/events", r.URL.Path)
		mu.Lock()
		defer mu.Unlock()
		json.NewDecoder(r.Body).Decode(&received)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	bridge := NewBridge(srv.URL, "dash-key", 2*time.Second, zaptest.NewLogger(t).Sugar())
	bridge.PushEvent(context.Background(), "member_verified", map[string]interface{}{"user_id": "user-1"})

	mu.Lock()
	defer mu.Unlock()
	require.NotNil(t, received)
	assert.Equal(t, "member_verified", received["event"])
	payload, ok := received["payload"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "user-1", payload["user_id"])
}

func TestBridge_PushSwallowsFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	bridge := NewBridge(srv.URL, "", 2*time.Second, zaptest.NewLogger(t).Sugar())

	// Neither call returns an error or panics on a failing dashboard.
	bridge.PushEvent(context.Background(), "member_join", nil)
	bridge.PushMetrics(context.Background(), map[string]interface{}{"pending": 3})
}
