package enums

import "fmt"

// ScheduleStatus tracks the lifecycle of a recurring billing schedule.
type ScheduleStatus string

const (
	ScheduleStatusActive    ScheduleStatus = "active"
	ScheduleStatusPaused    ScheduleStatus = "paused"
	ScheduleStatusCancelled ScheduleStatus = "cancelled"
	ScheduleStatusCompleted ScheduleStatus = "completed"
)

var validScheduleStatuses = []ScheduleStatus{
	ScheduleStatusActive,
	ScheduleStatusPaused,
	ScheduleStatusCancelled,
	ScheduleStatusCompleted,
}

// String implements fmt.Stringer.
func (s ScheduleStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is known.
func (s ScheduleStatus) IsValid() bool {
	for _, candidate := range validScheduleStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseScheduleStatus converts raw input into a ScheduleStatus.
func ParseScheduleStatus(value string) (ScheduleStatus, error) {
	for _, candidate := range validScheduleStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid schedule status %q", value)
}
