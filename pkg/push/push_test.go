package push_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tinywideclouds/go-fanout-service/pkg/push"
)

func TestParseRole(t *testing.T) {
	r, err := push.ParseRole("recipient")
	require.NoError(t, err)
	assert.Equal(t, push.RoleRecipient, r)

	_, err = push.ParseRole("Janitor")
	assert.ErrorIs(t, err, push.ErrUnknownRole)
}

func TestValidateEventData(t *testing.T) {
	testCases := []struct {
		name    string
		data    map[string]string
		wantErr bool
	}{
		{name: "No type passes", data: map[string]string{"foo": "bar"}},
		{name: "Unknown type passes", data: map[string]string{"type": "custom"}},
		{name: "Complete donation", data: push.NewDonationData("d1", "t1", "Trust One")},
		{name: "Complete alert", data: push.DistributionAlertData("a1", "Depot", "2024-05-01", "Ann")},
		{name: "Donation missing trustName", data: map[string]string{"type": "new_donation", "donationId": "d1", "trustId": "t1"}, wantErr: true},
		{name: "Test event needs nothing", data: map[string]string{"type": "test"}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := push.ValidateEventData(tc.data)
			if tc.wantErr {
				assert.ErrorIs(t, err, push.ErrInvalidEventData)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestNotifyCommand_UnmarshalJSON(t *testing.T) {
	t.Run("Valid role command", func(t *testing.T) {
		var cmd push.NotifyCommand
		err := json.Unmarshal([]byte(`{"target":{"kind":"role","role":"Recipient"},"title":"T","body":"B"}`), &cmd)
		require.NoError(t, err)
		assert.Equal(t, push.RoleTarget(push.RoleRecipient), cmd.Target)
		assert.Equal(t, "T", cmd.Title)
	})

	t.Run("Rejects unknown kind", func(t *testing.T) {
		var cmd push.NotifyCommand
		err := json.Unmarshal([]byte(`{"target":{"kind":"broadcast"}}`), &cmd)
		assert.Error(t, err)
	})

	t.Run("Rejects device target with two tokens", func(t *testing.T) {
		var cmd push.NotifyCommand
		err := json.Unmarshal([]byte(`{"target":{"kind":"device","tokens":["a","b"]}}`), &cmd)
		assert.Error(t, err)
	})

	t.Run("Rejects incomplete known event", func(t *testing.T) {
		var cmd push.NotifyCommand
		err := json.Unmarshal([]byte(`{"target":{"kind":"user","userIds":["u1"]},"data":{"type":"distribution_alert"}}`), &cmd)
		assert.ErrorIs(t, err, push.ErrInvalidEventData)
	})
}

func TestNewBatchResult(t *testing.T) {
	br := push.NewBatchResult([]push.TokenResult{
		{Token: "a", Success: true},
		{Token: "b", Class: push.ClassPermanent},
		{Token: "c", Class: push.ClassTransient},
	})
	assert.Equal(t, 1, br.SuccessCount)
	assert.Equal(t, 2, br.FailureCount)
	assert.True(t, br.Results[1].Permanent())
	assert.False(t, br.Results[2].Permanent())
}
