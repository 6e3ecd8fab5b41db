package pipeline

import (
	"context"
	"log/slog"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"
	"github.com/tinywideclouds/go-fanout-service/pkg/push"
)

// Notifier is satisfied by the fan-out coordinator.
type Notifier interface {
	Notify(ctx context.Context, target push.Target, title, body string, data map[string]string) push.Summary
}

// NewProcessor hands each command to the coordinator. Delivery outcomes are
// logged, never returned: a failed dispatch is not retried by redelivery.
func NewProcessor(notifier Notifier, logger *slog.Logger) messagepipeline.StreamProcessor[push.NotifyCommand] {
	logger = logger.With("component", "NotifyProcessor")

	return func(ctx context.Context, original messagepipeline.Message, cmd *push.NotifyCommand) error {
		procLogger := logger.With(
			"target", string(cmd.Target.Kind),
			"pubsub_msg_id", original.ID,
		)

		summary := notifier.Notify(ctx, cmd.Target, cmd.Title, cmd.Body, cmd.Data)

		if summary.Success {
			procLogger.Info("Notification dispatched",
				"dispatch_id", summary.DispatchID,
				"success", summary.SuccessCount,
				"failure", summary.FailureCount,
			)
			return nil
		}

		procLogger.Warn("Notification not delivered",
			"dispatch_id", summary.DispatchID,
			"reason", summary.Error,
			"failure", summary.FailureCount,
		)
		return nil
	}
}
