// Package push contains the public interfaces and domain models for the
// fan-out service.
package push

import "context"

// Gateway defines the contract for a component that can deliver a payload to
// push-provider device tokens (e.g., Google's FCM, Apple's APNS).
//
// The returned error is reserved for ErrProviderUnavailable: a gateway whose
// provider was never initialised. Every other failure, including a transport
// error covering the whole batch, is reported per token in the result.
type Gateway interface {
	// SendOne delivers the payload to a single token.
	SendOne(ctx context.Context, token string, payload Payload) (TokenResult, error)

	// SendMany delivers the payload to a non-empty batch of tokens in one
	// provider call. Results are in the same order as tokens.
	SendMany(ctx context.Context, tokens []string, payload Payload) (BatchResult, error)
}

// Directory is the backing store of users and their current device token.
// Implementations must rely on the store's native single-record atomicity;
// no cross-call transaction is assumed.
type Directory interface {
	// GetUser returns ErrUserNotFound if no user has the given id.
	GetUser(ctx context.Context, id string) (User, error)

	// GetUsers returns the users that exist among ids. Unknown ids are omitted.
	GetUsers(ctx context.Context, ids []string) ([]User, error)

	// UsersWithTokenByRole returns users of the role that hold a non-empty token.
	UsersWithTokenByRole(ctx context.Context, role Role) ([]User, error)

	// SetDeviceToken overwrites the user's token. A token is owned by one user
	// at a time, so any other user holding it loses it.
	SetDeviceToken(ctx context.Context, id, token string) error

	// UnsetDeviceToken removes the user's token. Unknown users are a no-op.
	UnsetDeviceToken(ctx context.Context, id string) error

	// UnsetDeviceTokenEverywhere removes the token from whichever user holds
	// it, matching by value. Missing tokens are a no-op.
	UnsetDeviceTokenEverywhere(ctx context.Context, token string) error
}
