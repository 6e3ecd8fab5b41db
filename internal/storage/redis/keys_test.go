package redis

import (
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/tinywideclouds/go-fanout-service/pkg/push"
)

// The Lua scripts rebuild user and token keys from the prefix; they must agree
// with the Go side.
func TestDirectory_KeyLayout(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	t.Cleanup(func() { _ = rdb.Close() })

	t.Run("Default prefix", func(t *testing.T) {
		d := NewDirectory(rdb, "")
		assert.Equal(t, "fanout:user:u1", d.userKey("u1"))
		assert.Equal(t, "fanout:token:tok", d.tokenKey("tok"))
		assert.Equal(t, "fanout:role:Recipient", d.roleKey(push.RoleRecipient))
	})

	t.Run("Custom prefix", func(t *testing.T) {
		d := NewDirectory(rdb, "test:")
		assert.Equal(t, "test:user:u1", d.userKey("u1"))
	})
}
