// Package storagetest holds the behaviour every push.Directory must share.
// Each backing store runs it from its own tests.
package storagetest

import (
	"context"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tinywideclouds/go-fanout-service/pkg/push"
)

// Seeder inserts a user record exactly as given.
type Seeder func(t *testing.T, u push.User)

// RunDirectoryContract exercises dir against a fresh, empty store. ns prefixes
// every user id so runs against shared infrastructure do not collide.
func RunDirectoryContract(t *testing.T, dir push.Directory, seed Seeder, ns string) {
	ctx := context.Background()
	id := func(s string) string { return ns + s }

	seed(t, push.User{ID: id("sender"), Role: push.RoleSender, DeviceToken: ns + "tok-s"})
	seed(t, push.User{ID: id("r1"), Role: push.RoleRecipient, DeviceToken: ns + "tok-r1"})
	seed(t, push.User{ID: id("r2"), Role: push.RoleRecipient})
	seed(t, push.User{ID: id("admin"), Role: push.RoleAdministrator, DeviceToken: ns + "tok-a"})

	t.Run("GetUser", func(t *testing.T) {
		u, err := dir.GetUser(ctx, id("r1"))
		require.NoError(t, err)
		assert.Equal(t, push.RoleRecipient, u.Role)
		assert.Equal(t, ns+"tok-r1", u.DeviceToken)

		_, err = dir.GetUser(ctx, id("nobody"))
		assert.ErrorIs(t, err, push.ErrUserNotFound)
	})

	t.Run("GetUsers omits unknown ids", func(t *testing.T) {
		users, err := dir.GetUsers(ctx, []string{id("r1"), id("nobody"), id("admin")})
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{id("r1"), id("admin")}, ids(users))
	})

	t.Run("UsersWithTokenByRole skips tokenless users", func(t *testing.T) {
		users, err := dir.UsersWithTokenByRole(ctx, push.RoleRecipient)
		require.NoError(t, err)
		assert.Equal(t, []string{id("r1")}, ids(users))
	})

	t.Run("SetDeviceToken moves the token to its new owner", func(t *testing.T) {
		require.NoError(t, dir.SetDeviceToken(ctx, id("r2"), ns+"tok-r1"))

		r1, err := dir.GetUser(ctx, id("r1"))
		require.NoError(t, err)
		assert.Empty(t, r1.DeviceToken)

		r2, err := dir.GetUser(ctx, id("r2"))
		require.NoError(t, err)
		assert.Equal(t, ns+"tok-r1", r2.DeviceToken)
	})

	t.Run("SetDeviceToken on unknown user", func(t *testing.T) {
		err := dir.SetDeviceToken(ctx, id("nobody"), "tok")
		assert.ErrorIs(t, err, push.ErrUserNotFound)
	})

	t.Run("UnsetDeviceToken is idempotent", func(t *testing.T) {
		require.NoError(t, dir.UnsetDeviceToken(ctx, id("sender")))
		require.NoError(t, dir.UnsetDeviceToken(ctx, id("sender")))
		require.NoError(t, dir.UnsetDeviceToken(ctx, id("nobody")))

		u, err := dir.GetUser(ctx, id("sender"))
		require.NoError(t, err)
		assert.Empty(t, u.DeviceToken)
	})

	t.Run("UnsetDeviceTokenEverywhere matches by value", func(t *testing.T) {
		require.NoError(t, dir.UnsetDeviceTokenEverywhere(ctx, ns+"tok-a"))
		require.NoError(t, dir.UnsetDeviceTokenEverywhere(ctx, ns+"tok-a"))

		u, err := dir.GetUser(ctx, id("admin"))
		require.NoError(t, err)
		assert.Empty(t, u.DeviceToken)

		users, err := dir.UsersWithTokenByRole(ctx, push.RoleAdministrator)
		require.NoError(t, err)
		assert.Empty(t, users)
	})
}

func ids(users []push.User) []string {
	out := make([]string, 0, len(users))
	for _, u := range users {
		out = append(out, u.ID)
	}
	sort.Strings(out)
	return out
}
