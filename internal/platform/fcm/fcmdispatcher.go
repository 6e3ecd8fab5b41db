// Package fcm delivers payloads through Firebase Cloud Messaging.
package fcm

import (
	"context"
	"log/slog"

	"firebase.google.com/go/v4/messaging"
	"github.com/tinywideclouds/go-fanout-service/pkg/push"
)

// MessagingClient defines the subset of the Firebase Messaging API we use.
// This interface allows us to mock the client for unit testing.
type MessagingClient interface {
	Send(ctx context.Context, msg *messaging.Message) (string, error)
	SendEachForMulticast(ctx context.Context, msg *messaging.MulticastMessage) (*messaging.BatchResponse, error)
}

// Gateway implements push.Gateway on top of FCM.
type Gateway struct {
	client   MessagingClient
	classify func(error) (string, push.ErrorClass)
	logger   *slog.Logger
}

// NewGateway accepts the concrete client but stores it as the interface.
// A nil client (untyped) yields a gateway that reports push.ErrProviderUnavailable,
// which is how the service runs when Firebase failed to initialise.
func NewGateway(client MessagingClient, logger *slog.Logger) *Gateway {
	return &Gateway{
		client:   client,
		classify: ClassifyError,
		logger:   logger.With("component", "FCMGateway"),
	}
}

// ClassifyError maps an FCM send error to a stable code and class. Only an
// unregistered or malformed token is permanent.
func ClassifyError(err error) (string, push.ErrorClass) {
	switch {
	case messaging.IsUnregistered(err):
		return "registration-token-not-registered", push.ClassPermanent
	case messaging.IsInvalidArgument(err):
		return "invalid-registration-token", push.ClassPermanent
	case messaging.IsSenderIDMismatch(err):
		return "sender-id-mismatch", push.ClassTransient
	case messaging.IsQuotaExceeded(err):
		return "quota-exceeded", push.ClassTransient
	case messaging.IsUnavailable(err):
		return "unavailable", push.ClassTransient
	case messaging.IsThirdPartyAuthError(err):
		return "third-party-auth-error", push.ClassTransient
	case messaging.IsInternal(err):
		return "internal", push.ClassTransient
	default:
		return "unknown", push.ClassTransient
	}
}

func (g *Gateway) SendOne(ctx context.Context, token string, p push.Payload) (push.TokenResult, error) {
	if g.client == nil {
		return push.TokenResult{}, push.ErrProviderUnavailable
	}

	msg := &messaging.Message{
		Token:        token,
		Notification: notification(p),
		Data:         p.Data,
		Android:      androidConfig(p),
		APNS:         apnsConfig(p),
	}

	id, err := g.client.Send(ctx, msg)
	if err != nil {
		code, class := g.classify(err)
		g.logger.Warn("FCM send failed", "code", code, "class", class.String(), "err", err)
		return push.TokenResult{Token: token, ErrorCode: code, Class: class}, nil
	}
	return push.TokenResult{Token: token, Success: true, MessageID: id}, nil
}

func (g *Gateway) SendMany(ctx context.Context, tokens []string, p push.Payload) (push.BatchResult, error) {
	if g.client == nil {
		return push.BatchResult{}, push.ErrProviderUnavailable
	}

	msg := &messaging.MulticastMessage{
		Tokens:       tokens,
		Notification: notification(p),
		Data:         p.Data,
		Android:      androidConfig(p),
		APNS:         apnsConfig(p),
	}

	br, err := g.client.SendEachForMulticast(ctx, msg)
	if err != nil {
		// The whole request was rejected or never arrived. Nothing here says
		// anything about individual tokens, so none of them is pruned.
		code, _ := g.classify(err)
		g.logger.Error("FCM multicast failed", "tokens", len(tokens), "code", code, "err", err)
		results := make([]push.TokenResult, len(tokens))
		for i, t := range tokens {
			results[i] = push.TokenResult{Token: t, ErrorCode: code, Class: push.ClassTransient}
		}
		return push.NewBatchResult(results), nil
	}

	results := make([]push.TokenResult, len(tokens))
	for i, t := range tokens {
		if i >= len(br.Responses) || br.Responses[i] == nil {
			results[i] = push.TokenResult{Token: t, ErrorCode: "missing-response", Class: push.ClassTransient}
			continue
		}
		resp := br.Responses[i]
		if resp.Success {
			results[i] = push.TokenResult{Token: t, Success: true, MessageID: resp.MessageID}
			continue
		}
		code, class := g.classify(resp.Error)
		results[i] = push.TokenResult{Token: t, ErrorCode: code, Class: class}
	}

	out := push.NewBatchResult(results)
	g.logger.Debug("FCM multicast sent", "success", out.SuccessCount, "failure", out.FailureCount)
	return out, nil
}

func notification(p push.Payload) *messaging.Notification {
	return &messaging.Notification{
		Title: p.Title,
		Body:  p.Body,
	}
}

func androidConfig(p push.Payload) *messaging.AndroidConfig {
	return &messaging.AndroidConfig{
		Priority: p.Hints.Priority,
		Notification: &messaging.AndroidNotification{
			Sound:     p.Hints.Sound,
			ChannelID: p.Hints.AndroidChannelID,
		},
	}
}

func apnsConfig(p push.Payload) *messaging.APNSConfig {
	badge := p.Hints.Badge
	return &messaging.APNSConfig{
		Payload: &messaging.APNSPayload{
			Aps: &messaging.Aps{
				Sound: p.Hints.Sound,
				Badge: &badge,
			},
		},
	}
}
