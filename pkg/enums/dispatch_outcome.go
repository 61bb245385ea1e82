package enums

// DispatchOutcome classifies a single dispatch response.
type DispatchOutcome string

const (
	DispatchOutcomeSuccess   DispatchOutcome = "success"
	DispatchOutcomeRetryable DispatchOutcome = "retryable"
	DispatchOutcomePermanent DispatchOutcome = "permanent"
)

var validDispatchOutcomes = []DispatchOutcome{
	DispatchOutcomeSuccess,
	DispatchOutcomeRetryable,
	DispatchOutcomePermanent,
}

func (o DispatchOutcome) IsValid() bool {
	for _, candidate := range validDispatchOutcomes {
		if candidate == o {
			return true
		}
	}
	return false
}
