package enums

import "fmt"

// NotificationTemplate identifies a templated email owned by the notification collaborator.
type NotificationTemplate string

const (
	NotificationTemplateReceipt       NotificationTemplate = "payment-receipt"
	NotificationTemplatePaymentFailed NotificationTemplate = "payment-failed"
)

var validNotificationTemplates = []NotificationTemplate{
	NotificationTemplateReceipt,
	NotificationTemplatePaymentFailed,
}

// String implements fmt.Stringer.
func (n NotificationTemplate) String() string {
	return string(n)
}

// IsValid reports whether the value is known.
func (n NotificationTemplate) IsValid() bool {
	for _, candidate := range validNotificationTemplates {
		if candidate == n {
			return true
		}
	}
	return false
}

// ParseNotificationTemplate converts raw input into a NotificationTemplate.
func ParseNotificationTemplate(value string) (NotificationTemplate, error) {
	for _, candidate := range validNotificationTemplates {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid notification template %q", value)
}
