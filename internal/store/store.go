package store

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("not found")

// DeliveryRecord is one audit row: the outcome of a single webhook delivery
// attempt.
type DeliveryRecord struct {
	DeliveryID string    `json:"delivery_id"`
	WebhookID  string    `json:"webhook_id"`
	Event      string    `json:"event"`
	Attempt    int       `json:"attempt"`
	Status     string    `json:"status"`
	Error      string    `json:"error,omitempty"`
	At         time.Time `json:"at"`
}

// DeliveryLog is the audit sink for delivery attempts. Append must be safe
// for concurrent use; an Append failure is logged by the caller and never
// fails the delivery itself.
type DeliveryLog interface {
	Append(ctx context.Context, rec DeliveryRecord) error
	Recent(ctx context.Context, limit int) ([]DeliveryRecord, error)
	Close()
}
