package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/expr-lang/expr"
	"github.com/google/uuid"

	"platform-backend/internal/clock"
	"platform-backend/internal/store"
)

// Config tunes the retry schedule. Zero values fall back to the defaults.
type Config struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

const (
	defaultMaxAttempts = 5
	defaultBaseDelay   = 30 * time.Second
	defaultMaxDelay    = 10 * time.Minute
)

// Dispatcher owns the endpoint registry and the delivery lifecycle. One lock
// guards both maps; delivery attempts run outside it and re-enter only to
// record outcomes, so a slow subscriber never blocks registration or other
// deliveries.
type Dispatcher struct {
	transport Transport
	clock     clock.Clock
	audit     store.DeliveryLog

	maxAttempts int
	baseDelay   time.Duration
	maxDelay    time.Duration

	// Retry timer hook. Production uses time.AfterFunc; tests swap in a
	// synchronous scheduler.
	schedule func(d time.Duration, fn func())

	mu         sync.RWMutex
	endpoints  map[string]*Endpoint
	deliveries map[string]*Delivery
}

func NewDispatcher(transport Transport, clk clock.Clock, audit store.DeliveryLog, cfg Config) *Dispatcher {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = defaultBaseDelay
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = defaultMaxDelay
	}
	return &Dispatcher{
		transport:   transport,
		clock:       clk,
		audit:       audit,
		maxAttempts: cfg.MaxAttempts,
		baseDelay:   cfg.BaseDelay,
		maxDelay:    cfg.MaxDelay,
		schedule: func(d time.Duration, fn func()) {
			time.AfterFunc(d, fn)
		},
		endpoints:  make(map[string]*Endpoint),
		deliveries: make(map[string]*Delivery),
	}
}

// Register creates an endpoint with a fresh signing secret. Enabled defaults
// to true.
func (d *Dispatcher) Register(req NewEndpoint) (*Endpoint, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	secret, err := NewSecret()
	if err != nil {
		return nil, err
	}

	now := d.clock.Now()
	ep := &Endpoint{
		ID:          uuid.NewString(),
		URL:         req.URL,
		Events:      append([]string(nil), req.Events...),
		Secret:      secret,
		Enabled:     req.Enabled == nil || *req.Enabled,
		Description: req.Description,
		Filter:      req.Filter,
		Metadata:    req.Metadata,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	d.mu.Lock()
	d.endpoints[ep.ID] = ep
	d.mu.Unlock()

	log.Printf("webhook %s registered for %v", ep.ID, ep.Events)
	return ep.clone(), nil
}

func (d *Dispatcher) Get(id string) (*Endpoint, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	ep, ok := d.endpoints[id]
	if !ok {
		return nil, false
	}
	return ep.clone(), true
}

// List returns all endpoints ordered by creation time.
func (d *Dispatcher) List() []*Endpoint {
	d.mu.RLock()
	out := make([]*Endpoint, 0, len(d.endpoints))
	for _, ep := range d.endpoints {
		out = append(out, ep.clone())
	}
	d.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Update applies a partial patch. Changing the filter discards the cached
// compiled program.
func (d *Dispatcher) Update(id string, patch EndpointPatch) (*Endpoint, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	ep, ok := d.endpoints[id]
	if !ok {
		return nil, store.ErrNotFound
	}

	// Validate the whole patch before touching the endpoint: a rejected
	// update must leave no partial state behind.
	if patch.URL != nil && *patch.URL == "" {
		return nil, fmt.Errorf("webhook url is required")
	}
	if patch.Events != nil && len(*patch.Events) == 0 {
		return nil, fmt.Errorf("webhook must subscribe to at least one event")
	}

	if patch.URL != nil {
		ep.URL = *patch.URL
	}
	if patch.Events != nil {
		ep.Events = append([]string(nil), (*patch.Events)...)
	}
	if patch.Description != nil {
		ep.Description = *patch.Description
	}
	if patch.Filter != nil {
		ep.Filter = *patch.Filter
		ep.compiledFilter = nil
	}
	if patch.Metadata != nil {
		ep.Metadata = *patch.Metadata
	}
	if patch.Enabled != nil {
		ep.Enabled = *patch.Enabled
	}
	ep.UpdatedAt = d.clock.Now()
	return ep.clone(), nil
}

// Remove deletes an endpoint. In-flight deliveries for it are marked
// exhausted on their next attempt.
func (d *Dispatcher) Remove(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.endpoints[id]; !ok {
		return false
	}
	delete(d.endpoints, id)
	return true
}

// RotateSecret replaces the signing secret. The old secret stops validating
// the moment this returns; callers must read the new one from the result.
func (d *Dispatcher) RotateSecret(id string) (*Endpoint, error) {
	secret, err := NewSecret()
	if err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	ep, ok := d.endpoints[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	ep.Secret = secret
	ep.UpdatedAt = d.clock.Now()
	return ep.clone(), nil
}

// Trigger fans an event out to every enabled subscribed endpoint whose
// filter admits the payload, creating one delivery per endpoint and kicking
// off the first attempt. Returns the created deliveries.
func (d *Dispatcher) Trigger(event string, payload map[string]any) []*Delivery {
	now := d.clock.Now()

	d.mu.Lock()
	var created []*Delivery
	var ids []string
	for _, ep := range d.endpoints {
		if !ep.Enabled || !ep.SubscribesTo(event) {
			continue
		}
		if !d.filterAllows(ep, event, payload) {
			continue
		}
		del := &Delivery{
			ID:        uuid.NewString(),
			WebhookID: ep.ID,
			Event:     event,
			Payload:   payload,
			Status:    StatusPending,
			CreatedAt: now,
		}
		d.deliveries[del.ID] = del
		t := now
		ep.LastTriggeredAt = &t
		created = append(created, del.clone())
		ids = append(ids, del.ID)
	}
	d.mu.Unlock()

	for _, id := range ids {
		id := id
		d.schedule(0, func() { d.attempt(id) })
	}
	return created
}

// filterAllows evaluates the endpoint's filter expression against the event.
// Compile and eval errors suppress the delivery. Caller holds the lock.
func (d *Dispatcher) filterAllows(ep *Endpoint, event string, payload map[string]any) bool {
	if ep.Filter == "" {
		return true
	}
	if ep.compiledFilter == nil {
		prog, err := expr.Compile(ep.Filter, expr.AsBool(), expr.AllowUndefinedVariables())
		if err != nil {
			log.Printf("ERROR: webhook %s: compile filter: %v", ep.ID, err)
			return false
		}
		ep.compiledFilter = prog
	}
	out, err := expr.Run(ep.compiledFilter, map[string]any{
		"event":   event,
		"payload": payload,
	})
	if err != nil {
		log.Printf("ERROR: webhook %s: evaluate filter: %v", ep.ID, err)
		return false
	}
	allow, ok := out.(bool)
	return ok && allow
}

func (d *Dispatcher) GetDelivery(id string) (*Delivery, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	del, ok := d.deliveries[id]
	if !ok {
		return nil, false
	}
	return del.clone(), true
}

// ListDeliveries returns delivery records, newest first, optionally filtered
// to one endpoint.
func (d *Dispatcher) ListDeliveries(webhookID string) []*Delivery {
	d.mu.RLock()
	out := make([]*Delivery, 0, len(d.deliveries))
	for _, del := range d.deliveries {
		if webhookID != "" && del.WebhookID != webhookID {
			continue
		}
		out = append(out, del.clone())
	}
	d.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// RetryDelivery re-drives a failed or exhausted delivery immediately. A
// delivery that already succeeded, or one with an attempt in flight, is not
// retried.
func (d *Dispatcher) RetryDelivery(id string) (*Delivery, error) {
	d.mu.Lock()
	del, ok := d.deliveries[id]
	if !ok {
		d.mu.Unlock()
		return nil, store.ErrNotFound
	}
	if del.Status == StatusDelivered || del.running {
		out := del.clone()
		d.mu.Unlock()
		return out, fmt.Errorf("delivery %s is %s", id, out.Status)
	}
	del.Status = StatusPending
	out := del.clone()
	d.mu.Unlock()

	d.schedule(0, func() { d.attempt(id) })
	return out, nil
}

type deliveryBody struct {
	Event       string         `json:"event"`
	Payload     map[string]any `json:"payload"`
	DeliveredAt time.Time      `json:"deliveredAt"`
}

// attempt runs one delivery attempt and either finishes the delivery or
// schedules the next attempt. Attempts for one delivery are strictly
// sequential: the next timer is armed only after this outcome is recorded.
func (d *Dispatcher) attempt(deliveryID string) {
	d.mu.Lock()
	del, ok := d.deliveries[deliveryID]
	if !ok || del.terminal() || del.running {
		d.mu.Unlock()
		return
	}
	ep := d.endpoints[del.WebhookID]
	if ep == nil {
		now := d.clock.Now()
		del.LastAttemptAt = &now
		del.Status = StatusExhausted
		del.Error = "endpoint removed"
		rec := auditRecord(del)
		d.mu.Unlock()
		d.appendAudit(rec)
		return
	}
	del.running = true
	url, secret := ep.URL, ep.Secret
	event, payload := del.Event, del.Payload
	attemptNo := del.Attempt + 1
	d.mu.Unlock()

	body, err := json.Marshal(deliveryBody{
		Event:       event,
		Payload:     payload,
		DeliveredAt: d.clock.Now().UTC(),
	})
	var deliverErr error
	if err != nil {
		deliverErr = fmt.Errorf("marshal payload: %w", err)
	} else {
		headers := map[string]string{
			"Content-Type":        "application/json",
			"X-Webhook-Signature": Sign(secret, body),
			"X-Webhook-Event":     event,
			"X-Webhook-Delivery":  deliveryID,
		}
		deliverErr = d.transport.Deliver(context.Background(), url, headers, body)
	}

	d.mu.Lock()
	del.running = false
	del.Attempt = attemptNo
	at := d.clock.Now()
	del.LastAttemptAt = &at
	ep = d.endpoints[del.WebhookID]

	if deliverErr == nil {
		del.Status = StatusDelivered
		del.Error = ""
		if ep != nil {
			ep.SuccessCount++
		}
		rec := auditRecord(del)
		d.mu.Unlock()
		d.appendAudit(rec)
		log.Printf("webhook %s: delivered %s (attempt %d)", rec.WebhookID, event, attemptNo)
		return
	}

	del.Error = deliverErr.Error()
	if ep != nil {
		ep.FailureCount++
	}
	if attemptNo >= d.maxAttempts {
		del.Status = StatusExhausted
		rec := auditRecord(del)
		d.mu.Unlock()
		d.appendAudit(rec)
		log.Printf("ERROR: webhook %s: %s exhausted after %d attempts: %v", rec.WebhookID, event, attemptNo, deliverErr)
		return
	}
	del.Status = StatusFailed
	rec := auditRecord(del)
	delay := d.backoff(attemptNo)
	d.mu.Unlock()
	d.appendAudit(rec)
	log.Printf("webhook %s: %s attempt %d failed, retrying in %s: %v", rec.WebhookID, event, attemptNo, delay, deliverErr)
	d.schedule(delay, func() { d.attempt(deliveryID) })
}

// backoff doubles per completed attempt: base, 2*base, 4*base, capped.
func (d *Dispatcher) backoff(attempt int) time.Duration {
	delay := d.baseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= d.maxDelay {
			return d.maxDelay
		}
	}
	if delay > d.maxDelay {
		return d.maxDelay
	}
	return delay
}

func auditRecord(del *Delivery) store.DeliveryRecord {
	rec := store.DeliveryRecord{
		DeliveryID: del.ID,
		WebhookID:  del.WebhookID,
		Event:      del.Event,
		Attempt:    del.Attempt,
		Status:     string(del.Status),
		Error:      del.Error,
	}
	if del.LastAttemptAt != nil {
		rec.At = *del.LastAttemptAt
	}
	return rec
}

func (d *Dispatcher) appendAudit(rec store.DeliveryRecord) {
	if d.audit == nil {
		return
	}
	if err := d.audit.Append(context.Background(), rec); err != nil {
		log.Printf("ERROR: append delivery audit record: %v", err)
	}
}
