package push

import (
	"errors"
	"fmt"
)

// EventTypeKey is the data key that names the event a notification is about.
const EventTypeKey = "type"

// EventType is a known value of the "type" data key.
type EventType string

const (
	EventNewDonation       EventType = "new_donation"
	EventDistributionAlert EventType = "distribution_alert"
	EventTest              EventType = "test"
)

var ErrInvalidEventData = errors.New("invalid event data")

// requiredEventFields lists the data keys each known event must carry.
var requiredEventFields = map[EventType][]string{
	EventNewDonation:       {"donationId", "trustId", "trustName"},
	EventDistributionAlert: {"alertId", "location", "date", "creatorName"},
	EventTest:              nil,
}

// ValidateEventData checks the required fields of known event types. Data
// without a type, or with a type this service does not know, passes through.
func ValidateEventData(data map[string]string) error {
	t, ok := data[EventTypeKey]
	if !ok {
		return nil
	}
	fields, known := requiredEventFields[EventType(t)]
	if !known {
		return nil
	}
	for _, f := range fields {
		if data[f] == "" {
			return fmt.Errorf("%w: %s event missing %q", ErrInvalidEventData, t, f)
		}
	}
	return nil
}

// NewDonationData is the data bag for a new donation opportunity.
func NewDonationData(donationID, trustID, trustName string) map[string]string {
	return map[string]string{
		EventTypeKey: string(EventNewDonation),
		"donationId": donationID,
		"trustId":    trustID,
		"trustName":  trustName,
	}
}

// DistributionAlertData is the data bag for a distribution alert.
func DistributionAlertData(alertID, location, date, creatorName string) map[string]string {
	return map[string]string{
		EventTypeKey:  string(EventDistributionAlert),
		"alertId":     alertID,
		"location":    location,
		"date":        date,
		"creatorName": creatorName,
	}
}
