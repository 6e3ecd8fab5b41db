// Package pipeline turns notify commands arriving on a message stream into
// fan-out dispatches.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"
	"github.com/tinywideclouds/go-fanout-service/pkg/push"
)

// NotifyCommandTransformer is a dataflow Transformer that unmarshals and
// validates a raw message payload into a push.NotifyCommand.
//
// Validation lives in NotifyCommand.UnmarshalJSON, so a malformed target or
// incomplete event data fails here and never reaches the coordinator.
func NotifyCommandTransformer(
	_ context.Context,
	msg *messagepipeline.Message,
) (*push.NotifyCommand, bool, error) {
	var cmd push.NotifyCommand

	if err := json.Unmarshal(msg.Payload, &cmd); err != nil {
		// skip=true lets the StreamingService handle the Nack/DLQ logic.
		return nil, true, fmt.Errorf("failed to unmarshal notify command from message %s: %w", msg.ID, err)
	}

	return &cmd, false, nil
}
