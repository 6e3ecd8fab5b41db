package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/tinywideclouds/go-fanout-service/pkg/push"
	"github.com/tinywideclouds/go-microservice-base/pkg/middleware"
	"github.com/tinywideclouds/go-microservice-base/pkg/response"
)

const (
	defaultTestTitle = "Test Notification"
	defaultTestBody  = "This is a test notification"
)

// Notifier is the caller-facing side of the fan-out coordinator.
type Notifier interface {
	NotifyUser(ctx context.Context, userID, title, body string, data map[string]string) push.Summary
	NotifyUsers(ctx context.Context, userIDs []string, title, body string, data map[string]string) push.Summary
	NotifyRole(ctx context.Context, role push.Role, title, body string, data map[string]string) push.Summary
}

type NotifyAPI struct {
	Notifier Notifier
	Users    UserLookup
	Logger   *slog.Logger
}

func NewNotifyAPI(notifier Notifier, users UserLookup, logger *slog.Logger) *NotifyAPI {
	return &NotifyAPI{
		Notifier: notifier,
		Users:    users,
		Logger:   logger.With("component", "NotifyAPI"),
	}
}

type TestNotificationRequest struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// SendTest handles POST /api/v1/notifications/test: the caller notifies themself.
func (api *NotifyAPI) SendTest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := middleware.GetUserIDFromContext(ctx)
	if !ok {
		response.WriteJSONError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	// An empty body is allowed; defaults apply.
	var req TestNotificationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		response.WriteJSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if strings.TrimSpace(req.Title) == "" {
		req.Title = defaultTestTitle
	}
	if strings.TrimSpace(req.Body) == "" {
		req.Body = defaultTestBody
	}

	summary := api.Notifier.NotifyUser(ctx, userID, req.Title, req.Body, map[string]string{
		push.EventTypeKey: string(push.EventTest),
	})
	writeSummary(w, summary)
}

type SendNotificationRequest struct {
	UserIDs []string          `json:"userIds"`
	Role    string            `json:"role"`
	Title   string            `json:"title"`
	Body    string            `json:"body"`
	Data    map[string]string `json:"data"`
}

// Send handles POST /api/v1/notifications/send. Administrators only.
// userIds takes precedence over role.
func (api *NotifyAPI) Send(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if _, ok := requireAdmin(w, r, api.Users, api.Logger); !ok {
		return
	}

	var req SendNotificationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.WriteJSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if strings.TrimSpace(req.Title) == "" || strings.TrimSpace(req.Body) == "" {
		response.WriteJSONError(w, http.StatusBadRequest, "title and body are required")
		return
	}
	if err := push.ValidateEventData(req.Data); err != nil {
		response.WriteJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	var summary push.Summary
	switch {
	case len(req.UserIDs) > 0:
		summary = api.Notifier.NotifyUsers(ctx, req.UserIDs, req.Title, req.Body, req.Data)
	case req.Role != "":
		role, err := push.ParseRole(req.Role)
		if err != nil {
			response.WriteJSONError(w, http.StatusBadRequest, err.Error())
			return
		}
		summary = api.Notifier.NotifyRole(ctx, role, req.Title, req.Body, req.Data)
	default:
		response.WriteJSONError(w, http.StatusBadRequest, "either userIds or role is required")
		return
	}

	writeSummary(w, summary)
}

// writeSummary answers 200 when anyone was reached and 400 otherwise; the
// body is the summary either way.
func writeSummary(w http.ResponseWriter, s push.Summary) {
	status := http.StatusOK
	if !s.Success {
		status = http.StatusBadRequest
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(s)
}
