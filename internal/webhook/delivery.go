package webhook

import "time"

// DeliveryStatus tracks one delivery through its retry lifecycle.
type DeliveryStatus string

const (
	// StatusPending: created, no attempt has completed yet.
	StatusPending DeliveryStatus = "pending"
	// StatusDelivered: an attempt got a success response. Terminal.
	StatusDelivered DeliveryStatus = "delivered"
	// StatusFailed: the last attempt failed and a retry is scheduled.
	StatusFailed DeliveryStatus = "failed"
	// StatusExhausted: the attempt ceiling was reached without success. Terminal.
	StatusExhausted DeliveryStatus = "exhausted"
)

// Delivery is the single mutable record for one (endpoint, event) dispatch.
// Retries update it in place; there is never more than one record per
// triggered event per endpoint.
type Delivery struct {
	ID            string         `json:"id"`
	WebhookID     string         `json:"webhook_id"`
	Event         string         `json:"event"`
	Payload       map[string]any `json:"payload"`
	Attempt       int            `json:"attempt"`
	Status        DeliveryStatus `json:"status"`
	Error         string         `json:"error,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	LastAttemptAt *time.Time     `json:"last_attempt_at,omitempty"`

	// Set while an attempt is in flight so a manual retry cannot race the
	// scheduled one. Guarded by the dispatcher lock.
	running bool
}

func (d *Delivery) clone() *Delivery {
	out := *d
	out.running = false
	if d.LastAttemptAt != nil {
		t := *d.LastAttemptAt
		out.LastAttemptAt = &t
	}
	return &out
}

// terminal reports whether no further attempts will be made.
func (d *Delivery) terminal() bool {
	return d.Status == StatusDelivered || d.Status == StatusExhausted
}
