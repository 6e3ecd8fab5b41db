package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/tinywideclouds/go-fanout-service/internal/platform/web"
	"github.com/tinywideclouds/go-fanout-service/pkg/push"
	"github.com/tinywideclouds/go-microservice-base/pkg/middleware"
	"github.com/tinywideclouds/go-microservice-base/pkg/response"
)

// TokenRegistry is the part of the token registry the HTTP layer writes through.
type TokenRegistry interface {
	SetTokenForUser(ctx context.Context, id, token string) error
	ClearTokenForUser(ctx context.Context, id string) error
	User(ctx context.Context, id string) (push.User, error)
}

type TokenAPI struct {
	Registry TokenRegistry
	Logger   *slog.Logger
}

func NewTokenAPI(registry TokenRegistry, logger *slog.Logger) *TokenAPI {
	return &TokenAPI{
		Registry: registry,
		Logger:   logger.With("component", "TokenAPI"),
	}
}

// RegisterTokenRequest carries either a mobile token or a browser subscription.
// A subscription is stored as its compact JSON, which is what the web push
// gateway expects as a token.
type RegisterTokenRequest struct {
	Token        string          `json:"token"`
	Subscription json.RawMessage `json:"subscription,omitempty"`
}

func (req RegisterTokenRequest) deviceToken() (string, error) {
	if len(req.Subscription) == 0 {
		return req.Token, nil
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, req.Subscription); err != nil {
		return "", err
	}
	token := buf.String()
	if _, err := web.ParseSubscription(token); err != nil {
		return "", err
	}
	return token, nil
}

// RegisterToken handles POST /api/v1/tokens for the calling user.
func (api *TokenAPI) RegisterToken(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := middleware.GetUserIDFromContext(ctx)
	if !ok {
		response.WriteJSONError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req RegisterTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.WriteJSONError(w, http.StatusBadRequest, "invalid json")
		return
	}

	token, err := req.deviceToken()
	if err != nil {
		api.Logger.Warn("RegisterToken: Validation failed", "reason", "incomplete subscription", "err", err)
		response.WriteJSONError(w, http.StatusBadRequest, "incomplete subscription object")
		return
	}

	err = api.Registry.SetTokenForUser(ctx, userID, token)
	switch {
	case errors.Is(err, push.ErrInvalidToken):
		response.WriteJSONError(w, http.StatusBadRequest, "missing token")
		return
	case errors.Is(err, push.ErrUserNotFound):
		response.WriteJSONError(w, http.StatusNotFound, "user not found")
		return
	case err != nil:
		api.Logger.Error("failed to register token", "err", err)
		response.WriteJSONError(w, http.StatusInternalServerError, "storage failed")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// UnregisterToken handles DELETE /api/v1/tokens for the calling user.
func (api *TokenAPI) UnregisterToken(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := middleware.GetUserIDFromContext(ctx)
	if !ok {
		response.WriteJSONError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	if err := api.Registry.ClearTokenForUser(ctx, userID); err != nil {
		// Log but don't fail hard; idempotency is preferred for unregister
		api.Logger.Warn("failed to unregister token", "err", err)
	}

	w.WriteHeader(http.StatusNoContent)
}

// UnregisterUserToken handles DELETE /api/v1/tokens/{userId}. Administrators only.
func (api *TokenAPI) UnregisterUserToken(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if _, ok := requireAdmin(w, r, api.Registry, api.Logger); !ok {
		return
	}

	target := r.PathValue("userId")
	if target == "" {
		response.WriteJSONError(w, http.StatusBadRequest, "missing user id")
		return
	}

	if err := api.Registry.ClearTokenForUser(ctx, target); err != nil {
		api.Logger.Error("failed to unregister user token", "user_id", target, "err", err)
		response.WriteJSONError(w, http.StatusInternalServerError, "storage failed")
		return
	}
	api.Logger.Info("Token removed by administrator", "user_id", target)

	w.WriteHeader(http.StatusNoContent)
}

// UserLookup loads the caller for role checks.
type UserLookup interface {
	User(ctx context.Context, id string) (push.User, error)
}

// requireAdmin writes the error response itself and reports whether the
// caller may proceed.
func requireAdmin(w http.ResponseWriter, r *http.Request, users UserLookup, logger *slog.Logger) (string, bool) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		response.WriteJSONError(w, http.StatusUnauthorized, "unauthorized")
		return "", false
	}

	u, err := users.User(r.Context(), userID)
	switch {
	case errors.Is(err, push.ErrUserNotFound):
		response.WriteJSONError(w, http.StatusForbidden, "administrator role required")
		return "", false
	case err != nil:
		logger.Error("failed to load caller", "err", err)
		response.WriteJSONError(w, http.StatusInternalServerError, "storage failed")
		return "", false
	case u.Role != push.RoleAdministrator:
		response.WriteJSONError(w, http.StatusForbidden, "administrator role required")
		return "", false
	}
	return userID, true
}
