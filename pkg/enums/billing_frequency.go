package enums

import "fmt"

// BillingFrequency defines the cadence for a recurring schedule.
type BillingFrequency string

const (
	BillingFrequencyMonthly   BillingFrequency = "monthly"
	BillingFrequencyQuarterly BillingFrequency = "quarterly"
	BillingFrequencyAnnual    BillingFrequency = "annual"
)

var validBillingFrequencies = []BillingFrequency{
	BillingFrequencyMonthly,
	BillingFrequencyQuarterly,
	BillingFrequencyAnnual,
}

// String implements fmt.Stringer.
func (b BillingFrequency) String() string {
	return string(b)
}

// IsValid reports whether the value is a known BillingFrequency.
func (b BillingFrequency) IsValid() bool {
	for _, candidate := range validBillingFrequencies {
		if candidate == b {
			return true
		}
	}
	return false
}

// Months returns the number of calendar months one billing period spans.
func (b BillingFrequency) Months() int {
	switch b {
	case BillingFrequencyQuarterly:
		return 3
	case BillingFrequencyAnnual:
		return 12
	default:
		return 1
	}
}

// ParseBillingFrequency converts raw input into a BillingFrequency.
func ParseBillingFrequency(value string) (BillingFrequency, error) {
	for _, candidate := range validBillingFrequencies {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid billing frequency %q", value)
}
