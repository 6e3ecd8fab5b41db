// Package fanout resolves a notification target to device tokens, sends one
// payload to all of them and prunes the tokens the provider reports dead.
package fanout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tinywideclouds/go-fanout-service/internal/payload"
	"github.com/tinywideclouds/go-fanout-service/pkg/push"
)

// TokenSource is the part of the token registry the coordinator needs.
type TokenSource interface {
	TokenForUser(ctx context.Context, id string) (string, bool, error)
	TokensForUsers(ctx context.Context, ids []string) ([]string, error)
	TokensForRole(ctx context.Context, role push.Role) ([]string, error)
	PruneToken(ctx context.Context, token string) error
}

// Coordinator holds no per-call state; one instance serves concurrent callers.
type Coordinator struct {
	tokens  TokenSource
	gateway push.Gateway
	logger  *slog.Logger
	now     func() time.Time
	newID   func() string
}

func NewCoordinator(tokens TokenSource, gateway push.Gateway, logger *slog.Logger) *Coordinator {
	return &Coordinator{
		tokens:  tokens,
		gateway: gateway,
		logger:  logger.With("component", "FanoutCoordinator"),
		now:     time.Now,
		newID:   uuid.NewString,
	}
}

func (c *Coordinator) NotifyDevice(ctx context.Context, token, title, body string, data map[string]string) push.Summary {
	return c.Notify(ctx, push.DeviceTarget(token), title, body, data)
}

func (c *Coordinator) NotifyDevices(ctx context.Context, tokens []string, title, body string, data map[string]string) push.Summary {
	return c.Notify(ctx, push.DevicesTarget(tokens), title, body, data)
}

func (c *Coordinator) NotifyUser(ctx context.Context, userID, title, body string, data map[string]string) push.Summary {
	return c.Notify(ctx, push.UserTarget(userID), title, body, data)
}

func (c *Coordinator) NotifyUsers(ctx context.Context, userIDs []string, title, body string, data map[string]string) push.Summary {
	return c.Notify(ctx, push.UsersTarget(userIDs), title, body, data)
}

func (c *Coordinator) NotifyRole(ctx context.Context, role push.Role, title, body string, data map[string]string) push.Summary {
	return c.Notify(ctx, push.RoleTarget(role), title, body, data)
}

// Notify delivers one notification to every token target resolves to.
// Delivery problems never surface as errors; they are reported in the Summary.
func (c *Coordinator) Notify(ctx context.Context, target push.Target, title, body string, data map[string]string) push.Summary {
	dispatchID := c.newID()
	log := c.logger.With("dispatch_id", dispatchID, "target", string(target.Kind))

	if err := target.Validate(); err != nil {
		log.Warn("Rejected notify request", "err", err)
		return push.Summary{Error: fmt.Sprintf("invalid target: %v", err), DispatchID: dispatchID}
	}

	resolved, err := c.resolve(ctx, target)
	if err != nil {
		log.Error("Failed to resolve target", "err", err)
		return push.Summary{Error: fmt.Sprintf("resolve target: %v", err), DispatchID: dispatchID}
	}

	tokens := uniqueTokens(resolved)
	if len(tokens) == 0 {
		log.Info("No device tokens for target")
		return push.Summary{Error: push.ErrNoTokens.Error(), DispatchID: dispatchID}
	}

	p := payload.Build(title, body, data, c.now())

	results, err := c.send(ctx, tokens, p)
	if err != nil {
		log.Error("Push provider unavailable", "err", err)
		return push.Summary{Error: err.Error(), DispatchID: dispatchID}
	}

	results = alignResults(tokens, results)
	outcome := push.Outcome{Attempted: len(tokens), Results: results}
	for _, r := range results {
		if r.Success {
			outcome.Succeeded++
			continue
		}
		outcome.Failed++
		if !r.Permanent() {
			continue
		}
		// Best effort: the token stays registered and is pruned on the next failure.
		if err := c.tokens.PruneToken(ctx, r.Token); err != nil {
			log.Warn("Failed to prune dead token", "code", r.ErrorCode, "err", err)
			continue
		}
		outcome.Pruned = append(outcome.Pruned, r.Token)
	}

	summary := Report(outcome, dispatchID)
	log.Info("Dispatch complete",
		"attempted", outcome.Attempted,
		"success", summary.SuccessCount,
		"failure", summary.FailureCount,
		"pruned", len(outcome.Pruned),
	)
	return summary
}

func (c *Coordinator) resolve(ctx context.Context, target push.Target) ([]string, error) {
	switch target.Kind {
	case push.TargetDevice, push.TargetDevices:
		return target.Tokens, nil
	case push.TargetUser:
		token, ok, err := c.tokens.TokenForUser(ctx, target.UserIDs[0])
		if err != nil || !ok {
			return nil, err
		}
		return []string{token}, nil
	case push.TargetUsers:
		return c.tokens.TokensForUsers(ctx, target.UserIDs)
	case push.TargetRole:
		role, err := push.ParseRole(string(target.Role))
		if err != nil {
			return nil, err
		}
		return c.tokens.TokensForRole(ctx, role)
	default:
		return nil, fmt.Errorf("unknown target kind %q", target.Kind)
	}
}

// send uses the unary call for a single token and one multicast otherwise.
func (c *Coordinator) send(ctx context.Context, tokens []string, p push.Payload) ([]push.TokenResult, error) {
	if len(tokens) == 1 {
		r, err := c.gateway.SendOne(ctx, tokens[0], p)
		if err != nil {
			return nil, unavailable(err)
		}
		return []push.TokenResult{r}, nil
	}

	br, err := c.gateway.SendMany(ctx, tokens, p)
	if err != nil {
		return nil, unavailable(err)
	}
	return br.Results, nil
}

func unavailable(err error) error {
	if errors.Is(err, push.ErrProviderUnavailable) {
		return push.ErrProviderUnavailable
	}
	return fmt.Errorf("%w: %v", push.ErrProviderUnavailable, err)
}

// uniqueTokens drops blank tokens and repeats, keeping first-seen order.
// Tokens are compared trimmed but passed on as stored, so a failed token can
// be pruned by the exact value the directory holds.
func uniqueTokens(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, t := range in {
		key := strings.TrimSpace(t)
		if key == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, t)
	}
	return out
}

// alignResults returns exactly one result per sent token, in send order.
// A result without a token is matched by position. A token the gateway did
// not answer for counts as a transient failure.
func alignResults(tokens []string, got []push.TokenResult) []push.TokenResult {
	byToken := make(map[string]push.TokenResult, len(got))
	for i, r := range got {
		if r.Token == "" && i < len(tokens) {
			r.Token = tokens[i]
		}
		if _, dup := byToken[r.Token]; !dup {
			byToken[r.Token] = r
		}
	}

	out := make([]push.TokenResult, len(tokens))
	for i, t := range tokens {
		r, ok := byToken[t]
		if !ok {
			r = push.TokenResult{Token: t, ErrorCode: "no-result", Class: push.ClassTransient}
		}
		out[i] = r
	}
	return out
}
