package enums

import "fmt"

// EnrollmentStatus mirrors the membership enrollment workflow owned by the CRM.
type EnrollmentStatus string

const (
	EnrollmentStatusPending  EnrollmentStatus = "pending"
	EnrollmentStatusApproved EnrollmentStatus = "approved"
	EnrollmentStatusActive   EnrollmentStatus = "active"
	EnrollmentStatusRejected EnrollmentStatus = "rejected"
	EnrollmentStatusEnded    EnrollmentStatus = "ended"
)

var validEnrollmentStatuses = []EnrollmentStatus{
	EnrollmentStatusPending,
	EnrollmentStatusApproved,
	EnrollmentStatusActive,
	EnrollmentStatusRejected,
	EnrollmentStatusEnded,
}

// String implements fmt.Stringer.
func (e EnrollmentStatus) String() string {
	return string(e)
}

// IsValid reports whether the value is known.
func (e EnrollmentStatus) IsValid() bool {
	for _, candidate := range validEnrollmentStatuses {
		if candidate == e {
			return true
		}
	}
	return false
}

// Billable reports whether a schedule tied to this enrollment may be charged.
func (e EnrollmentStatus) Billable() bool {
	return e == EnrollmentStatusApproved || e == EnrollmentStatusActive
}

// ParseEnrollmentStatus converts raw input into an EnrollmentStatus.
func ParseEnrollmentStatus(value string) (EnrollmentStatus, error) {
	for _, candidate := range validEnrollmentStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid enrollment status %q", value)
}
