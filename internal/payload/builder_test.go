package payload_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/tinywideclouds/go-fanout-service/internal/payload"
)

func TestBuild(t *testing.T) {
	at := time.Date(2024, 3, 9, 14, 5, 6, 789_000_000, time.FixedZone("CET", 3600))

	t.Run("Injects timestamp under reserved key", func(t *testing.T) {
		p := payload.Build("Hi", "Body", map[string]string{"type": "test"}, at)

		assert.Equal(t, "Hi", p.Title)
		assert.Equal(t, "Body", p.Body)
		assert.Equal(t, "timestamp", p.TimestampKey)
		assert.Equal(t, "2024-03-09T13:05:06.789Z", p.Data["timestamp"])
		assert.Equal(t, "test", p.Data["type"])
		assert.Equal(t, at.UTC(), p.DeliveredAt)
	})

	t.Run("Caller timestamp wins and a fresh key is used", func(t *testing.T) {
		data := map[string]string{"timestamp": "caller", "timestamp_1": "also caller"}
		p := payload.Build("Hi", "Body", data, at)

		assert.Equal(t, "caller", p.Data["timestamp"])
		assert.Equal(t, "also caller", p.Data["timestamp_1"])
		assert.Equal(t, "timestamp_2", p.TimestampKey)
		assert.Equal(t, "2024-03-09T13:05:06.789Z", p.Data["timestamp_2"])
	})

	t.Run("Does not mutate caller data", func(t *testing.T) {
		data := map[string]string{"k": "v"}
		p := payload.Build("Hi", "Body", data, at)

		assert.Len(t, data, 1)
		p.Data["k"] = "changed"
		assert.Equal(t, "v", data["k"])
	})

	t.Run("Nil data", func(t *testing.T) {
		p := payload.Build("Hi", "Body", nil, at)
		assert.Len(t, p.Data, 1)
	})

	t.Run("Static delivery hints", func(t *testing.T) {
		p := payload.Build("Hi", "Body", nil, at)
		assert.Equal(t, "high", p.Hints.Priority)
		assert.Equal(t, "default", p.Hints.Sound)
		assert.Equal(t, "default", p.Hints.AndroidChannelID)
		assert.Equal(t, 1, p.Hints.Badge)
	})
}
