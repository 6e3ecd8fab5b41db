package web_test

import (
	"context"
	"crypto/ecdh"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tinywideclouds/go-fanout-service/internal/payload"
	"github.com/tinywideclouds/go-fanout-service/internal/platform/web"
	"github.com/tinywideclouds/go-fanout-service/pkg/push"
)

// subscriptionToken builds a browser-shaped subscription with real key material
// so webpush-go can encrypt against it.
func subscriptionToken(t *testing.T, endpoint string) string {
	t.Helper()

	key, err := ecdh.P256().GenerateKey(rand.Reader)
	require.NoError(t, err)
	auth := make([]byte, 16)
	_, err = rand.Read(auth)
	require.NoError(t, err)

	raw, err := json.Marshal(webpush.Subscription{
		Endpoint: endpoint,
		Keys: webpush.Keys{
			P256dh: base64.RawURLEncoding.EncodeToString(key.PublicKey().Bytes()),
			Auth:   base64.RawURLEncoding.EncodeToString(auth),
		},
	})
	require.NoError(t, err)
	return string(raw)
}

func TestGateway_Lifecycle(t *testing.T) {
	// Simulates Google/Mozilla push servers
	mockServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NotEmpty(t, r.Header.Get("Authorization"))
		assert.Equal(t, "high", r.Header.Get("Urgency"))

		switch r.URL.Path {
		case "/success":
			w.Header().Set("Location", "/msg/1")
			w.WriteHeader(http.StatusCreated)
		case "/expired":
			w.WriteHeader(http.StatusGone)
		case "/error":
			w.WriteHeader(http.StatusInternalServerError)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer mockServer.Close()

	privateKey, publicKey, err := webpush.GenerateVAPIDKeys()
	require.NoError(t, err)

	gw := web.NewGateway(web.VapidConfig{
		PrivateKey:      privateKey,
		PublicKey:       publicKey,
		SubscriberEmail: "test-runner@tinywideclouds.com",
	}, slog.New(slog.NewTextHandler(io.Discard, nil))).WithHTTPClient(mockServer.Client())

	ctx := context.Background()
	p := payload.Build("Test", "Body", map[string]string{"id": "1"}, time.Now())

	tokens := []string{
		subscriptionToken(t, mockServer.URL+"/success"),
		subscriptionToken(t, mockServer.URL+"/expired"),
		subscriptionToken(t, mockServer.URL+"/error"),
		subscriptionToken(t, mockServer.URL+"/missing"),
		"not-json",
	}

	br, err := gw.SendMany(ctx, tokens, p)
	require.NoError(t, err)
	require.Len(t, br.Results, 5)

	assert.Equal(t, 1, br.SuccessCount)
	assert.Equal(t, 4, br.FailureCount)

	assert.True(t, br.Results[0].Success)
	assert.Equal(t, "/msg/1", br.Results[0].MessageID)

	assert.True(t, br.Results[1].Permanent(), "410 is a dead subscription")
	assert.Equal(t, "status-410", br.Results[1].ErrorCode)

	assert.False(t, br.Results[2].Permanent(), "500 must not prune")
	assert.True(t, br.Results[3].Permanent(), "404 is a dead subscription")

	assert.True(t, br.Results[4].Permanent())
	assert.Equal(t, "invalid-subscription", br.Results[4].ErrorCode)
}

func TestGateway_Unconfigured(t *testing.T) {
	gw := web.NewGateway(web.VapidConfig{}, slog.New(slog.NewTextHandler(io.Discard, nil)))

	_, err := gw.SendOne(context.Background(), "tok", push.Payload{})

	assert.ErrorIs(t, err, push.ErrProviderUnavailable)
}

func TestParseSubscription(t *testing.T) {
	_, err := web.ParseSubscription(`{"endpoint":"https://push.example/abc"}`)
	assert.ErrorIs(t, err, push.ErrInvalidToken)

	sub, err := web.ParseSubscription(`{"endpoint":"https://push.example/abc","keys":{"p256dh":"k","auth":"a"}}`)
	require.NoError(t, err)
	assert.Equal(t, "https://push.example/abc", sub.Endpoint)
}
