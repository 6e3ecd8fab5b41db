package push

import (
	"encoding/json"
	"fmt"
)

// TargetKind identifies the shape of a Target.
type TargetKind string

const (
	TargetDevice  TargetKind = "device"
	TargetDevices TargetKind = "devices"
	TargetUser    TargetKind = "user"
	TargetUsers   TargetKind = "users"
	TargetRole    TargetKind = "role"
)

// Target describes who a notification is for. Only the field matching Kind is
// read; a single device or user is carried as a one-element slice.
type Target struct {
	Kind    TargetKind `json:"kind"`
	Tokens  []string   `json:"tokens,omitempty"`
	UserIDs []string   `json:"userIds,omitempty"`
	Role    Role       `json:"role,omitempty"`
}

func DeviceTarget(token string) Target {
	return Target{Kind: TargetDevice, Tokens: []string{token}}
}

func DevicesTarget(tokens []string) Target {
	return Target{Kind: TargetDevices, Tokens: tokens}
}

func UserTarget(id string) Target {
	return Target{Kind: TargetUser, UserIDs: []string{id}}
}

func UsersTarget(ids []string) Target {
	return Target{Kind: TargetUsers, UserIDs: ids}
}

func RoleTarget(role Role) Target {
	return Target{Kind: TargetRole, Role: role}
}

// Validate checks that the target is structurally well formed. It does not
// check that any token or user exists.
func (t Target) Validate() error {
	switch t.Kind {
	case TargetDevice:
		if len(t.Tokens) != 1 {
			return fmt.Errorf("device target needs exactly one token, got %d", len(t.Tokens))
		}
	case TargetUser:
		if len(t.UserIDs) != 1 {
			return fmt.Errorf("user target needs exactly one user id, got %d", len(t.UserIDs))
		}
	case TargetDevices, TargetUsers:
	case TargetRole:
		if _, err := ParseRole(string(t.Role)); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown target kind %q", t.Kind)
	}
	return nil
}

// NotifyCommand is the wire form of a notify request accepted by the
// asynchronous ingestion path.
type NotifyCommand struct {
	Target Target            `json:"target"`
	Title  string            `json:"title"`
	Body   string            `json:"body"`
	Data   map[string]string `json:"data,omitempty"`
}

// UnmarshalJSON decodes and validates a command.
func (c *NotifyCommand) UnmarshalJSON(b []byte) error {
	type alias NotifyCommand
	var raw alias
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	if err := raw.Target.Validate(); err != nil {
		return fmt.Errorf("invalid target: %w", err)
	}
	if raw.Target.Kind == TargetRole {
		raw.Target.Role, _ = ParseRole(string(raw.Target.Role))
	}
	if err := ValidateEventData(raw.Data); err != nil {
		return err
	}
	*c = NotifyCommand(raw)
	return nil
}
