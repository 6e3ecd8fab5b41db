package pipeline_test

import (
	"context"
	"testing"
	"time"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tinywideclouds/go-fanout-service/internal/pipeline"
	"github.com/tinywideclouds/go-fanout-service/pkg/push"
)

func TestNotifyCommandTransformer(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)

	testCases := []struct {
		name                  string
		payload               string
		expectError           bool
		expectedErrorContains string
		expectedTarget        push.Target
	}{
		{
			name:           "Happy Path - Role broadcast",
			payload:        `{"target":{"kind":"role","role":"recipient"},"title":"T","body":"B"}`,
			expectedTarget: push.RoleTarget(push.RoleRecipient),
		},
		{
			name:           "Happy Path - Users with event data",
			payload:        `{"target":{"kind":"users","userIds":["u1","u2"]},"title":"T","body":"B","data":{"type":"new_donation","donationId":"d","trustId":"t","trustName":"n"}}`,
			expectedTarget: push.UsersTarget([]string{"u1", "u2"}),
		},
		{
			name:                  "Failure - Malformed JSON",
			payload:               "not-json",
			expectError:           true,
			expectedErrorContains: "failed to unmarshal notify command",
		},
		{
			name:                  "Failure - Unknown target kind",
			payload:               `{"target":{"kind":"planet"},"title":"T","body":"B"}`,
			expectError:           true,
			expectedErrorContains: "invalid target",
		},
		{
			name:                  "Failure - Incomplete event",
			payload:               `{"target":{"kind":"user","userIds":["u1"]},"data":{"type":"distribution_alert"}}`,
			expectError:           true,
			expectedErrorContains: "invalid event data",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			msg := &messagepipeline.Message{
				MessageData: messagepipeline.MessageData{ID: "msg-1", Payload: []byte(tc.payload)},
			}

			cmd, skip, err := pipeline.NotifyCommandTransformer(ctx, msg)

			if tc.expectError {
				require.Error(t, err)
				assert.True(t, skip)
				assert.Nil(t, cmd)
				assert.Contains(t, err.Error(), tc.expectedErrorContains)
				return
			}
			require.NoError(t, err)
			assert.False(t, skip)
			require.NotNil(t, cmd)
			assert.Equal(t, tc.expectedTarget, cmd.Target)
		})
	}
}
