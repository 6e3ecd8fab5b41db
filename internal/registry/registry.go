// Package registry answers "which device tokens belong to these recipients"
// and keeps the user directory's token field current.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/tinywideclouds/go-fanout-service/pkg/push"
)

// Registry reads and writes device tokens through a push.Directory.
// Nothing is cached; every call reaches the backing store.
type Registry struct {
	dir    push.Directory
	logger *slog.Logger
}

func New(dir push.Directory, logger *slog.Logger) *Registry {
	return &Registry{
		dir:    dir,
		logger: logger.With("component", "TokenRegistry"),
	}
}

// TokenForUser returns the user's token. ok is false when the user is unknown
// or has no token; neither case is an error.
func (r *Registry) TokenForUser(ctx context.Context, id string) (string, bool, error) {
	u, err := r.dir.GetUser(ctx, id)
	if errors.Is(err, push.ErrUserNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("lookup user %s: %w", id, err)
	}
	if strings.TrimSpace(u.DeviceToken) == "" {
		return "", false, nil
	}
	return u.DeviceToken, true, nil
}

// TokensForUsers returns the tokens of every known user in ids that has one.
// Duplicate ids and duplicate tokens collapse; first-seen order is kept.
func (r *Registry) TokensForUsers(ctx context.Context, ids []string) ([]string, error) {
	unique := dedupe(ids)
	if len(unique) == 0 {
		return nil, nil
	}

	users, err := r.dir.GetUsers(ctx, unique)
	if err != nil {
		return nil, fmt.Errorf("lookup %d users: %w", len(unique), err)
	}

	// The directory may return users in any order.
	byID := make(map[string]push.User, len(users))
	for _, u := range users {
		byID[u.ID] = u
	}

	tokens := make([]string, 0, len(users))
	for _, id := range unique {
		if u, ok := byID[id]; ok {
			tokens = append(tokens, u.DeviceToken)
		}
	}
	return dedupeTokens(tokens), nil
}

// TokensForRole returns the tokens of every user holding role.
func (r *Registry) TokensForRole(ctx context.Context, role push.Role) ([]string, error) {
	users, err := r.dir.UsersWithTokenByRole(ctx, role)
	if err != nil {
		return nil, fmt.Errorf("lookup role %s: %w", role, err)
	}
	tokens := make([]string, 0, len(users))
	for _, u := range users {
		tokens = append(tokens, u.DeviceToken)
	}
	return dedupeTokens(tokens), nil
}

// PruneToken removes token from whichever user holds it. Pruning a token that
// is not registered succeeds. token is matched exactly as stored.
func (r *Registry) PruneToken(ctx context.Context, token string) error {
	if strings.TrimSpace(token) == "" {
		return nil
	}
	if err := r.dir.UnsetDeviceTokenEverywhere(ctx, token); err != nil {
		return fmt.Errorf("prune token: %w", err)
	}
	r.logger.Debug("Pruned device token")
	return nil
}

// SetTokenForUser registers token as the user's only device token.
func (r *Registry) SetTokenForUser(ctx context.Context, id, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return push.ErrInvalidToken
	}
	if err := r.dir.SetDeviceToken(ctx, id, token); err != nil {
		return fmt.Errorf("set token for %s: %w", id, err)
	}
	r.logger.Info("Device token registered", "user_id", id)
	return nil
}

// ClearTokenForUser removes the user's token, if any.
func (r *Registry) ClearTokenForUser(ctx context.Context, id string) error {
	if err := r.dir.UnsetDeviceToken(ctx, id); err != nil {
		return fmt.Errorf("clear token for %s: %w", id, err)
	}
	r.logger.Info("Device token removed", "user_id", id)
	return nil
}

// User returns the directory record for id.
func (r *Registry) User(ctx context.Context, id string) (push.User, error) {
	return r.dir.GetUser(ctx, id)
}

// dedupe trims, drops blanks and removes repeats, keeping first-seen order.
func dedupe(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

// dedupeTokens drops blank tokens and repeats. Stored values are returned
// untouched; only the comparison is trimmed.
func dedupeTokens(in []string) []string {
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
