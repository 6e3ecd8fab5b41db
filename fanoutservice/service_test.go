package fanoutservice_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tinywideclouds/go-microservice-base/pkg/middleware"

	"github.com/tinywideclouds/go-fanout-service/fanoutservice"
	"github.com/tinywideclouds/go-fanout-service/fanoutservice/config"
	"github.com/tinywideclouds/go-fanout-service/internal/fanout"
	"github.com/tinywideclouds/go-fanout-service/internal/registry"
	"github.com/tinywideclouds/go-fanout-service/internal/storage/memory"
	"github.com/tinywideclouds/go-fanout-service/pkg/push"
)

// recordingGateway succeeds for every token and remembers what it sent.
type recordingGateway struct {
	mu    sync.Mutex
	sends [][]string
}

func (g *recordingGateway) SendOne(_ context.Context, token string, _ push.Payload) (push.TokenResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.sends = append(g.sends, []string{token})
	return push.TokenResult{Token: token, Success: true, MessageID: "m-" + token}, nil
}

func (g *recordingGateway) SendMany(_ context.Context, tokens []string, _ push.Payload) (push.BatchResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.sends = append(g.sends, tokens)
	results := make([]push.TokenResult, len(tokens))
	for i, t := range tokens {
		results[i] = push.TokenResult{Token: t, Success: true}
	}
	return push.NewBatchResult(results), nil
}

func (g *recordingGateway) Sent() [][]string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.sends
}

// headerAuth stands in for the JWKS middleware.
func headerAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := r.Header.Get("X-Test-User"); id != "" {
			r = r.WithContext(middleware.ContextWithUserID(r.Context(), id))
		}
		next.ServeHTTP(w, r)
	})
}

func TestService_Routes(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	dir := memory.NewDirectory(
		push.User{ID: "boss", Role: push.RoleAdministrator},
		push.User{ID: "alice", Role: push.RoleRecipient},
		push.User{ID: "bob", Role: push.RoleRecipient, DeviceToken: "tok-bob"},
	)
	reg := registry.New(dir, logger)
	gw := &recordingGateway{}
	coordinator := fanout.NewCoordinator(reg, gw, logger)

	svc, err := fanoutservice.New(&config.Config{ListenAddr: ":0"}, nil, coordinator, reg, headerAuth, logger)
	require.NoError(t, err)

	do := func(method, path, user string, body any) *httptest.ResponseRecorder {
		var buf bytes.Buffer
		if body != nil {
			require.NoError(t, json.NewEncoder(&buf).Encode(body))
		}
		req := httptest.NewRequest(method, path, &buf)
		req.Header.Set("X-Test-User", user)
		w := httptest.NewRecorder()
		svc.Mux().ServeHTTP(w, req)
		return w
	}

	t.Run("Register then self-test", func(t *testing.T) {
		w := do("POST", "/api/v1/tokens", "alice", map[string]string{"token": "tok-alice"})
		require.Equal(t, http.StatusNoContent, w.Code)

		w = do("POST", "/api/v1/notifications/test", "alice", nil)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, gw.Sent(), []string{"tok-alice"})
	})

	t.Run("Administrator broadcast to a role", func(t *testing.T) {
		w := do("POST", "/api/v1/notifications/send", "boss", map[string]any{
			"role": "Recipient", "title": "T", "body": "B",
		})

		assert.Equal(t, http.StatusOK, w.Code)
		var s push.Summary
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &s))
		assert.Equal(t, 2, s.SuccessCount)
	})

	t.Run("Administrator removes a token", func(t *testing.T) {
		w := do("DELETE", "/api/v1/tokens/bob", "boss", nil)
		require.Equal(t, http.StatusNoContent, w.Code)

		_, ok, err := reg.TokenForUser(context.Background(), "bob")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("Recipient cannot broadcast", func(t *testing.T) {
		w := do("POST", "/api/v1/notifications/send", "alice", map[string]any{
			"role": "Recipient", "title": "T", "body": "B",
		})
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("Unregister own token", func(t *testing.T) {
		w := do("DELETE", "/api/v1/tokens", "alice", nil)
		require.Equal(t, http.StatusNoContent, w.Code)

		w = do("POST", "/api/v1/notifications/test", "alice", nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}
