package ratelimit

import "fmt"

// Rule is the admission configuration for one (method, endpoint pattern)
// pair. Rules are immutable once stored; Configure replaces them wholesale.
type Rule struct {
	Method         string `json:"method"`
	Endpoint       string `json:"endpoint"`
	Requests       int    `json:"requests"`
	WindowSeconds  int    `json:"window"`
	Burst          int    `json:"burst,omitempty"`
	CostPerRequest int    `json:"cost_per_request,omitempty"`
}

// Key identifies a rule. Two rules with the same method and endpoint pattern
// replace each other.
func (r Rule) Key() string {
	return r.Method + " " + r.Endpoint
}

// Cost returns the per-request cost, defaulting to 1.
func (r Rule) Cost() int {
	if r.CostPerRequest > 0 {
		return r.CostPerRequest
	}
	return 1
}

// Validate rejects misconfiguration at configure time. Exceeding a limit at
// request time is never an error; a broken rule always is.
func (r Rule) Validate() error {
	if r.Method == "" {
		return fmt.Errorf("rule method is required")
	}
	if r.Endpoint == "" {
		return fmt.Errorf("rule endpoint is required")
	}
	if r.Requests <= 0 {
		return fmt.Errorf("rule requests must be > 0, got %d", r.Requests)
	}
	if r.WindowSeconds <= 0 {
		return fmt.Errorf("rule window must be > 0 seconds, got %d", r.WindowSeconds)
	}
	if r.Burst < 0 {
		return fmt.Errorf("rule burst must be >= 0, got %d", r.Burst)
	}
	if r.CostPerRequest < 0 {
		return fmt.Errorf("rule cost_per_request must be >= 0, got %d", r.CostPerRequest)
	}
	return nil
}

// DefaultRules is the coarse per-area admission baseline applied at startup.
// Operators override individual entries through POST /rate-limits.
func DefaultRules() []Rule {
	return []Rule{
		{Method: "GET", Endpoint: "/finance/*", Requests: 100, WindowSeconds: 60, Burst: 20},
		{Method: "POST", Endpoint: "/finance/*", Requests: 50, WindowSeconds: 60},
		{Method: "GET", Endpoint: "/hr/*", Requests: 100, WindowSeconds: 60},
		{Method: "POST", Endpoint: "/hr/*", Requests: 20, WindowSeconds: 60},
		{Method: "GET", Endpoint: "/hse/*", Requests: 100, WindowSeconds: 60},
		{Method: "POST", Endpoint: "/hse/*", Requests: 30, WindowSeconds: 60},
		{Method: "GET", Endpoint: "/logistics/*", Requests: 100, WindowSeconds: 60},
		{Method: "GET", Endpoint: "/lms/*", Requests: 100, WindowSeconds: 60},
		{Method: "GET", Endpoint: "/webhooks/*", Requests: 50, WindowSeconds: 60},
		{Method: "POST", Endpoint: "/webhooks/*", Requests: 10, WindowSeconds: 60},
	}
}
