// Package web delivers payloads to browsers over the Web Push protocol.
// A device token for this gateway is the JSON encoded PushSubscription the
// browser handed to the client application.
package web

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/tinywideclouds/go-fanout-service/pkg/push"
)

// VapidConfig carries the application server keys.
type VapidConfig struct {
	PublicKey       string
	PrivateKey      string
	SubscriberEmail string
}

type Gateway struct {
	subscriber string
	privateKey string
	publicKey  string
	ttl        int
	logger     *slog.Logger
	httpClient *http.Client
}

func NewGateway(cfg VapidConfig, logger *slog.Logger) *Gateway {
	return &Gateway{
		privateKey: cfg.PrivateKey,
		publicKey:  cfg.PublicKey,
		subscriber: cfg.SubscriberEmail,
		ttl:        60,
		logger:     logger.With("component", "WebPushGateway"),
		httpClient: &http.Client{},
	}
}

// WithHTTPClient replaces the client used to reach push services.
func (g *Gateway) WithHTTPClient(c *http.Client) *Gateway {
	g.httpClient = c
	return g
}

type webMessage struct {
	Notification webNotification   `json:"notification"`
	Data         map[string]string `json:"data"`
}

type webNotification struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

func (g *Gateway) SendOne(ctx context.Context, token string, p push.Payload) (push.TokenResult, error) {
	if g.privateKey == "" {
		return push.TokenResult{}, push.ErrProviderUnavailable
	}
	body, err := encode(p)
	if err != nil {
		return push.TokenResult{}, err
	}
	return g.send(ctx, token, body), nil
}

// SendMany posts to each subscription endpoint in turn.
func (g *Gateway) SendMany(ctx context.Context, tokens []string, p push.Payload) (push.BatchResult, error) {
	if g.privateKey == "" {
		return push.BatchResult{}, push.ErrProviderUnavailable
	}
	body, err := encode(p)
	if err != nil {
		return push.BatchResult{}, err
	}

	results := make([]push.TokenResult, 0, len(tokens))
	for _, t := range tokens {
		results = append(results, g.send(ctx, t, body))
	}
	return push.NewBatchResult(results), nil
}

func encode(p push.Payload) ([]byte, error) {
	b, err := json.Marshal(webMessage{
		Notification: webNotification{Title: p.Title, Body: p.Body},
		Data:         p.Data,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}
	return b, nil
}

// ParseSubscription decodes a device token into a webpush subscription.
func ParseSubscription(token string) (*webpush.Subscription, error) {
	var s webpush.Subscription
	if err := json.Unmarshal([]byte(token), &s); err != nil {
		return nil, fmt.Errorf("%w: %v", push.ErrInvalidToken, err)
	}
	if s.Endpoint == "" || s.Keys.P256dh == "" || s.Keys.Auth == "" {
		return nil, fmt.Errorf("%w: incomplete subscription", push.ErrInvalidToken)
	}
	return &s, nil
}

func (g *Gateway) send(ctx context.Context, token string, body []byte) push.TokenResult {
	sub, err := ParseSubscription(token)
	if err != nil {
		// A token that can never be delivered to is as dead as a 410.
		g.logger.Warn("Unusable web push subscription", "err", err)
		return push.TokenResult{Token: token, ErrorCode: "invalid-subscription", Class: push.ClassPermanent}
	}

	resp, err := webpush.SendNotificationWithContext(ctx, body, sub, &webpush.Options{
		Subscriber:      g.subscriber,
		VAPIDPublicKey:  g.publicKey,
		VAPIDPrivateKey: g.privateKey,
		TTL:             g.ttl,
		Urgency:         webpush.UrgencyHigh,
		HTTPClient:      g.httpClient,
	})
	if err != nil {
		// Transport error (DNS, Timeout) - Log and skip, don't delete
		g.logger.Error("WebPush transport error", "endpoint", sub.Endpoint, "err", err)
		return push.TokenResult{Token: token, ErrorCode: "transport", Class: push.ClassTransient}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return push.TokenResult{Token: token, Success: true, MessageID: resp.Header.Get("Location")}
	case resp.StatusCode == http.StatusGone, resp.StatusCode == http.StatusNotFound:
		return push.TokenResult{Token: token, ErrorCode: fmt.Sprintf("status-%d", resp.StatusCode), Class: push.ClassPermanent}
	default:
		g.logger.Warn("WebPush rejected", "status", resp.StatusCode, "endpoint", sub.Endpoint)
		return push.TokenResult{Token: token, ErrorCode: fmt.Sprintf("status-%d", resp.StatusCode), Class: push.ClassTransient}
	}
}
