package push

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Domain errors
var (
	ErrNoTokens            = errors.New("no tokens")
	ErrProviderUnavailable = errors.New("push provider not initialized")
	ErrUserNotFound        = errors.New("user not found")
	ErrInvalidToken        = errors.New("device token is required")
	ErrUnknownRole         = errors.New("unknown role")
)

// Role is the class of a user in the directory.
type Role string

const (
	RoleSender        Role = "Sender"
	RoleRecipient     Role = "Recipient"
	RoleAdministrator Role = "Administrator"
)

// ParseRole validates a role name. Matching is case-insensitive.
func ParseRole(s string) (Role, error) {
	for _, r := range []Role{RoleSender, RoleRecipient, RoleAdministrator} {
		if strings.EqualFold(string(r), strings.TrimSpace(s)) {
			return r, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownRole, s)
}

// User is the directory's view of a user. DeviceToken is empty when the user
// has no registered device.
type User struct {
	ID          string `json:"id"`
	Role        Role   `json:"role"`
	DeviceToken string `json:"deviceToken,omitempty"`
}

// DeliveryHints are the platform delivery options attached to every payload.
type DeliveryHints struct {
	// Priority is the Android delivery priority ("high" or "normal").
	Priority string
	// Sound is used for both Android and APNs.
	Sound string
	// AndroidChannelID is the Android notification channel.
	AndroidChannelID string
	// Badge is the APNs badge value.
	Badge int
}

// Payload is the envelope handed to a Gateway. It is built once per send and
// must not be modified afterwards; gateways only read from it.
type Payload struct {
	Title string
	Body  string
	Data  map[string]string

	// DeliveredAt is the timestamp injected into Data under TimestampKey.
	DeliveredAt  time.Time
	TimestampKey string

	Hints DeliveryHints
}

// ErrorClass separates failures that invalidate a token from everything else.
type ErrorClass int

const (
	ClassNone ErrorClass = iota
	// ClassTransient failures leave the token registered.
	ClassTransient
	// ClassPermanent failures mean the token will never work again.
	ClassPermanent
)

func (c ErrorClass) String() string {
	switch c {
	case ClassTransient:
		return "transient"
	case ClassPermanent:
		return "permanent"
	default:
		return "none"
	}
}

// MarshalText lets the class appear by name in JSON summaries.
func (c ErrorClass) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// TokenResult is the normalized outcome of delivering to one token.
type TokenResult struct {
	Token     string     `json:"token"`
	Success   bool       `json:"success"`
	MessageID string     `json:"messageId,omitempty"`
	ErrorCode string     `json:"errorCode,omitempty"`
	Class     ErrorClass `json:"class"`
}

// Permanent reports whether the failure warrants pruning the token.
func (r TokenResult) Permanent() bool {
	return !r.Success && r.Class == ClassPermanent
}

// BatchResult is the outcome of a multicast send.
type BatchResult struct {
	SuccessCount int
	FailureCount int
	Results      []TokenResult
}

// NewBatchResult counts successes and failures of results.
func NewBatchResult(results []TokenResult) BatchResult {
	br := BatchResult{Results: results}
	for _, r := range results {
		if r.Success {
			br.SuccessCount++
		} else {
			br.FailureCount++
		}
	}
	return br
}

// Outcome is the per-call delivery accounting produced by the coordinator.
type Outcome struct {
	Attempted int
	Succeeded int
	Failed    int
	Results   []TokenResult
	Pruned    []string
}

// Summary is the caller-facing result of a notify call. Success is true when
// at least one recipient was reached.
type Summary struct {
	Success      bool          `json:"success"`
	SuccessCount int           `json:"successCount"`
	FailureCount int           `json:"failureCount"`
	Error        string        `json:"error,omitempty"`
	DispatchID   string        `json:"dispatchId,omitempty"`
	MessageID    string        `json:"messageId,omitempty"`
	Results      []TokenResult `json:"results,omitempty"`
	Pruned       []string      `json:"pruned,omitempty"`
}
