package webhook

import (
	"fmt"
	"time"

	"github.com/expr-lang/expr/vm"
)

// Endpoint is one subscriber registration. Endpoints are active unless
// explicitly disabled; duplicate URLs are allowed, identity is the id only.
type Endpoint struct {
	ID              string         `json:"id"`
	URL             string         `json:"url"`
	Events          []string       `json:"events"`
	Secret          string         `json:"secret"`
	Enabled         bool           `json:"enabled"`
	Description     string         `json:"description,omitempty"`
	Filter          string         `json:"filter,omitempty"`
	Metadata        map[string]any `json:"metadata,omitempty"`
	SuccessCount    int            `json:"success_count"`
	FailureCount    int            `json:"failure_count"`
	LastTriggeredAt *time.Time     `json:"last_triggered_at,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`

	// Lazily compiled Filter program, guarded by the dispatcher lock.
	compiledFilter *vm.Program
}

// SubscribesTo reports whether the endpoint wants the given event. The
// wildcard "*" subscribes to everything.
func (e *Endpoint) SubscribesTo(event string) bool {
	for _, ev := range e.Events {
		if ev == event || ev == "*" {
			return true
		}
	}
	return false
}

func (e *Endpoint) clone() *Endpoint {
	out := *e
	out.Events = append([]string(nil), e.Events...)
	if e.LastTriggeredAt != nil {
		t := *e.LastTriggeredAt
		out.LastTriggeredAt = &t
	}
	out.compiledFilter = nil
	return &out
}

// NewEndpoint is the registration request.
type NewEndpoint struct {
	URL         string         `json:"url"`
	Events      []string       `json:"events"`
	Description string         `json:"description"`
	Filter      string         `json:"filter"`
	Metadata    map[string]any `json:"metadata"`
	// Enabled defaults to true when omitted.
	Enabled *bool `json:"enabled"`
}

func (n NewEndpoint) validate() error {
	if n.URL == "" {
		return fmt.Errorf("webhook url is required")
	}
	if len(n.Events) == 0 {
		return fmt.Errorf("webhook must subscribe to at least one event")
	}
	return nil
}

// EndpointPatch updates an endpoint in place; nil fields are left unchanged.
type EndpointPatch struct {
	URL         *string         `json:"url"`
	Events      *[]string       `json:"events"`
	Description *string         `json:"description"`
	Filter      *string         `json:"filter"`
	Metadata    *map[string]any `json:"metadata"`
	Enabled     *bool           `json:"enabled"`
}
