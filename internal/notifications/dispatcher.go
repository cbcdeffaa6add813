package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/omnivurse/crm-eco-sub010/internal/billing"
	"github.com/omnivurse/crm-eco-sub010/pkg/enums"
	"github.com/omnivurse/crm-eco-sub010/pkg/logger"
)

const defaultPublishTimeout = 10 * time.Second

// Envelope is the wire format consumed by the downstream notification
// service. Template names select the rendered email; variables fill it.
type Envelope struct {
	EventID        string            `json:"eventId"`
	Template       string            `json:"template"`
	RecipientEmail string            `json:"recipientEmail"`
	RecipientName  string            `json:"recipientName"`
	MemberID       string            `json:"memberId"`
	Variables      map[string]string `json:"variables"`
	OccurredAt     time.Time         `json:"occurredAt"`
}

// publisher abstracts the Pub/Sub publisher handle so tests can intercept
// the publish call.
type publisher interface {
	Publish(ctx context.Context, msg *gcppubsub.Message) publishResult
}

type publishResult interface {
	Get(ctx context.Context) (string, error)
}

type gcpPublisher struct {
	*gcppubsub.Publisher
}

func (p *gcpPublisher) Publish(ctx context.Context, msg *gcppubsub.Message) publishResult {
	if p == nil || p.Publisher == nil {
		return nil
	}
	return p.Publisher.Publish(ctx, msg)
}

// DispatcherParams groups dependencies for the notification dispatcher.
type DispatcherParams struct {
	Publisher *gcppubsub.Publisher
	Logger    *logger.Logger
	Timeout   time.Duration
	Now       func() time.Time
}

// Dispatcher publishes payment notification events. It is fire and forget
// from the billing engine's perspective: the downstream consumer owns
// rendering and delivery.
type Dispatcher struct {
	pub     publisher
	logg    *logger.Logger
	timeout time.Duration
	now     func() time.Time
}

// NewDispatcher builds a Pub/Sub backed dispatcher.
func NewDispatcher(params DispatcherParams) (*Dispatcher, error) {
	if params.Publisher == nil {
		return nil, errors.New("publisher is required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	timeout := params.Timeout
	if timeout <= 0 {
		timeout = defaultPublishTimeout
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &Dispatcher{
		pub:     &gcpPublisher{Publisher: params.Publisher},
		logg:    params.Logger,
		timeout: timeout,
		now:     now,
	}, nil
}

// PaymentReceipt publishes the successful-charge notification.
func (d *Dispatcher) PaymentReceipt(ctx context.Context, event billing.PaymentEvent) error {
	return d.publish(ctx, enums.NotificationTemplateReceipt, event)
}

// PaymentFailed publishes the failed-charge notification.
func (d *Dispatcher) PaymentFailed(ctx context.Context, event billing.PaymentEvent) error {
	return d.publish(ctx, enums.NotificationTemplatePaymentFailed, event)
}

func (d *Dispatcher) publish(ctx context.Context, template enums.NotificationTemplate, event billing.PaymentEvent) error {
	envelope := Envelope{
		EventID:        uuid.NewString(),
		Template:       template.String(),
		RecipientEmail: event.MemberEmail,
		RecipientName:  event.MemberName,
		MemberID:       event.MemberID.String(),
		Variables:      templateVariables(template, event),
		OccurredAt:     d.now().UTC(),
	}
	payload, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("marshal notification envelope: %w", err)
	}

	msg := &gcppubsub.Message{
		Data: payload,
		Attributes: map[string]string{
			"event_id":  envelope.EventID,
			"template":  envelope.Template,
			"member_id": envelope.MemberID,
		},
	}

	publishCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	result := d.pub.Publish(publishCtx, msg)
	if result == nil {
		return errors.New("publisher returned nil result")
	}
	if _, err := result.Get(publishCtx); err != nil {
		return fmt.Errorf("publish %s notification: %w", template, err)
	}

	logCtx := d.logg.WithFields(ctx, map[string]any{
		"template":  envelope.Template,
		"member_id": envelope.MemberID,
	})
	d.logg.Info(logCtx, "notification published")
	return nil
}

func templateVariables(template enums.NotificationTemplate, event billing.PaymentEvent) map[string]string {
	vars := map[string]string{
		"amount":        event.Amount.StringFixed(2),
		"scheduleId":    event.ScheduleID.String(),
		"transactionId": event.TransactionID.String(),
		"chargedAt":     event.OccurredAt.UTC().Format(time.RFC3339),
	}
	if template != enums.NotificationTemplatePaymentFailed {
		return vars
	}
	vars["failureReason"] = event.FailureReason
	if event.NextRetryAt != nil {
		vars["nextRetryAt"] = event.NextRetryAt.UTC().Format(time.RFC3339)
	}
	if event.SchedulePaused {
		vars["schedulePaused"] = "true"
	}
	return vars
}

// NoopDispatcher satisfies the billing notifier when Pub/Sub is not
// configured, which is the normal state for local development.
type NoopDispatcher struct {
	Logger *logger.Logger
}

func (n NoopDispatcher) PaymentReceipt(ctx context.Context, event billing.PaymentEvent) error {
	n.log(ctx, enums.NotificationTemplateReceipt, event)
	return nil
}

func (n NoopDispatcher) PaymentFailed(ctx context.Context, event billing.PaymentEvent) error {
	n.log(ctx, enums.NotificationTemplatePaymentFailed, event)
	return nil
}

func (n NoopDispatcher) log(ctx context.Context, template enums.NotificationTemplate, event billing.PaymentEvent) {
	if n.Logger == nil {
		return
	}
	logCtx := n.Logger.WithFields(ctx, map[string]any{
		"template":  template.String(),
		"member_id": event.MemberID.String(),
	})
	n.Logger.Info(logCtx, "notification dispatch skipped; pubsub not configured")
}
