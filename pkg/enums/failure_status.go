package enums

import "fmt"

// FailureStatus tracks an open dunning record in the failure queue.
type FailureStatus string

const (
	FailureStatusPending  FailureStatus = "pending"
	FailureStatusResolved FailureStatus = "resolved"
)

var validFailureStatuses = []FailureStatus{
	FailureStatusPending,
	FailureStatusResolved,
}

// String implements fmt.Stringer.
func (f FailureStatus) String() string {
	return string(f)
}

// IsValid reports whether the value is known.
func (f FailureStatus) IsValid() bool {
	for _, candidate := range validFailureStatuses {
		if candidate == f {
			return true
		}
	}
	return false
}

// ParseFailureStatus converts raw input into a FailureStatus.
func ParseFailureStatus(value string) (FailureStatus, error) {
	for _, candidate := range validFailureStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid failure status %q", value)
}
