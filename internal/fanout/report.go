package fanout

import "github.com/tinywideclouds/go-fanout-service/pkg/push"

// Report turns the accounting of one dispatch into the caller-facing summary.
// A dispatch succeeds when at least one recipient was reached. When none
// was, Error carries the first failure code.
func Report(o push.Outcome, dispatchID string) push.Summary {
	s := push.Summary{
		Success:      o.Succeeded > 0,
		SuccessCount: o.Succeeded,
		FailureCount: o.Failed,
		DispatchID:   dispatchID,
		Results:      o.Results,
		Pruned:       o.Pruned,
	}

	if len(o.Results) == 1 && o.Results[0].Success {
		s.MessageID = o.Results[0].MessageID
	}

	if !s.Success {
		for _, r := range o.Results {
			if !r.Success && r.ErrorCode != "" {
				s.Error = r.ErrorCode
				break
			}
		}
		if s.Error == "" {
			s.Error = "delivery failed"
		}
	}
	return s
}
