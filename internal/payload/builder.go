// Package payload builds the notification envelope handed to gateways.
package payload

import (
	"strconv"
	"time"

	"github.com/tinywideclouds/go-fanout-service/pkg/push"
)

// TimestampKey is the data key that carries the delivery timestamp.
const TimestampKey = "timestamp"

// timestampLayout matches ISO-8601 with millisecond precision in UTC.
const timestampLayout = "2006-01-02T15:04:05.000Z07:00"

// DefaultHints is the fixed delivery policy for every notification.
// The badge is a constant, not an unread count.
var DefaultHints = push.DeliveryHints{
	Priority:         "high",
	Sound:            "default",
	AndroidChannelID: "default",
	Badge:            1,
}

// Build constructs the payload for one send. The caller's data is copied and
// wins over the timestamp: when the caller already uses TimestampKey, the
// delivery time is stored under the first free key of "timestamp_1",
// "timestamp_2", ... and the key actually used is returned in
// Payload.TimestampKey.
func Build(title, body string, data map[string]string, at time.Time) push.Payload {
	out := make(map[string]string, len(data)+1)
	for k, v := range data {
		out[k] = v
	}

	key := TimestampKey
	for i := 1; ; i++ {
		if _, taken := out[key]; !taken {
			break
		}
		key = TimestampKey + "_" + strconv.Itoa(i)
	}

	at = at.UTC()
	out[key] = at.Format(timestampLayout)

	return push.Payload{
		Title:        title,
		Body:         body,
		Data:         out,
		DeliveredAt:  at,
		TimestampKey: key,
		Hints:        DefaultHints,
	}
}
