// Package apns provides the gateway for the Apple Push Notification Service.
package apns

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sideshow/apns2"
	"github.com/sideshow/apns2/payload"
	"github.com/sideshow/apns2/token"
	"github.com/tinywideclouds/go-fanout-service/pkg/push"
)

// APNSClient defines the subset of the apns2.Client methods we use.
// This allows mocking for unit tests.
type APNSClient interface {
	PushWithContext(ctx apns2.Context, n *apns2.Notification) (*apns2.Response, error)
}

type Gateway struct {
	client APNSClient
	topic  string // The App Bundle ID
	logger *slog.Logger
}

// Config holds the credentials required to sign APNs tokens.
type Config struct {
	KeyID    string
	TeamID   string
	BundleID string
	// P8KeyContent is the raw string content of the .p8 file
	P8KeyContent string
	// Production selects the production endpoint; otherwise the sandbox is used.
	Production bool
}

// NewGateway creates a configured APNS gateway.
// It parses the P8 key immediately to fail fast on startup if credentials are bad.
func NewGateway(cfg Config, logger *slog.Logger) (*Gateway, error) {
	authKey, err := token.AuthKeyFromBytes([]byte(cfg.P8KeyContent))
	if err != nil {
		return nil, fmt.Errorf("failed to parse APNs P8 key: %w", err)
	}

	tokenSource := &token.Token{
		AuthKey: authKey,
		KeyID:   cfg.KeyID,
		TeamID:  cfg.TeamID,
	}

	client := apns2.NewTokenClient(tokenSource)
	if cfg.Production {
		client = client.Production()
	} else {
		client = client.Development()
	}

	return &Gateway{
		client: client,
		topic:  cfg.BundleID,
		logger: logger.With("component", "APNSGateway"),
	}, nil
}

// NewUnavailableGateway returns a gateway for a provider that could not be
// initialised. Every send reports push.ErrProviderUnavailable.
func NewUnavailableGateway(logger *slog.Logger) *Gateway {
	return &Gateway{logger: logger.With("component", "APNSGateway")}
}

// permanentReasons are the APNs rejections that mean the token is dead.
var permanentReasons = map[string]struct{}{
	apns2.ReasonBadDeviceToken:         {},
	apns2.ReasonUnregistered:           {},
	apns2.ReasonDeviceTokenNotForTopic: {},
}

func (g *Gateway) SendOne(ctx context.Context, deviceToken string, p push.Payload) (push.TokenResult, error) {
	if g.client == nil {
		return push.TokenResult{}, push.ErrProviderUnavailable
	}
	return g.push(ctx, deviceToken, g.buildPayload(p)), nil
}

// SendMany sends the payload to each token in turn.
// The APNs HTTP/2 API is unary (one request per token); there is no multicast endpoint.
func (g *Gateway) SendMany(ctx context.Context, tokens []string, p push.Payload) (push.BatchResult, error) {
	if g.client == nil {
		return push.BatchResult{}, push.ErrProviderUnavailable
	}

	body := g.buildPayload(p)
	results := make([]push.TokenResult, 0, len(tokens))
	for _, t := range tokens {
		results = append(results, g.push(ctx, t, body))
	}
	return push.NewBatchResult(results), nil
}

func (g *Gateway) buildPayload(p push.Payload) *payload.Payload {
	builder := payload.NewPayload().
		AlertTitle(p.Title).
		AlertBody(p.Body).
		Sound(p.Hints.Sound).
		Badge(p.Hints.Badge)

	for k, v := range p.Data {
		builder.Custom(k, v)
	}
	return builder
}

func (g *Gateway) push(ctx context.Context, deviceToken string, body *payload.Payload) push.TokenResult {
	n := &apns2.Notification{
		DeviceToken: deviceToken,
		Topic:       g.topic,
		Payload:     body,
		Priority:    apns2.PriorityHigh,
		PushType:    apns2.PushTypeAlert,
	}

	res, err := g.client.PushWithContext(ctx, n)
	if err != nil {
		g.logger.Error("APNs transport failed", "err", err)
		return push.TokenResult{Token: deviceToken, ErrorCode: "transport", Class: push.ClassTransient}
	}

	if res.Sent() {
		return push.TokenResult{Token: deviceToken, Success: true, MessageID: res.ApnsID}
	}

	if _, dead := permanentReasons[res.Reason]; dead {
		return push.TokenResult{Token: deviceToken, ErrorCode: res.Reason, Class: push.ClassPermanent}
	}

	// TopicDisallowed, PayloadEmpty and friends: the token may be fine, our
	// configuration is not.
	g.logger.Warn("APNs rejected notification", "reason", res.Reason, "status", res.StatusCode)
	code := res.Reason
	if code == "" {
		code = fmt.Sprintf("status-%d", res.StatusCode)
	}
	return push.TokenResult{Token: deviceToken, ErrorCode: code, Class: push.ClassTransient}
}
