package ratelimit

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// Status is the read-only projection returned by Check. Unlimited means no
// rule matched: unconfigured endpoints are never throttled, so rolling out a
// new route can't silently block traffic.
type Status struct {
	Endpoint  string    `json:"endpoint"`
	ClientID  string    `json:"client_id"`
	Limit     int       `json:"limit"`
	Remaining int       `json:"remaining"`
	Used      int       `json:"used"`
	ResetAt   time.Time `json:"reset_at"`
	Unlimited bool      `json:"unlimited"`
}

// Limiter is the rate admission controller: a rule table plus a window store.
// The rule table is guarded by its own lock; per-client consumption state is
// serialized per key inside the WindowStore so unrelated clients never
// contend.
type Limiter struct {
	windows WindowStore

	mu    sync.RWMutex
	rules map[string]Rule
}

func NewLimiter(windows WindowStore) *Limiter {
	return &Limiter{
		windows: windows,
		rules:   make(map[string]Rule),
	}
}

// Configure upserts a rule by (method, endpoint). The replacement is
// wholesale: no field-level merge with a prior rule.
func (l *Limiter) Configure(rule Rule) error {
	if err := rule.Validate(); err != nil {
		return err
	}
	rule.Method = strings.ToUpper(rule.Method)

	l.mu.Lock()
	l.rules[rule.Key()] = rule
	l.mu.Unlock()
	return nil
}

// Rules returns all configured rules ordered by key.
func (l *Limiter) Rules() []Rule {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]Rule, 0, len(l.rules))
	for _, r := range l.rules {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out
}

// Match finds the most specific rule for (method, endpoint): exact literal,
// then template, then prefix wildcard. Pure with respect to limiter state,
// so Check and Consume always resolve the same rule.
func (l *Limiter) Match(method, endpoint string) (Rule, bool) {
	method = strings.ToUpper(method)

	l.mu.RLock()
	defer l.mu.RUnlock()

	if r, ok := l.rules[method+" "+endpoint]; ok {
		return r, true
	}

	var tmpl, prefix *Rule
	for key := range l.rules {
		r := l.rules[key]
		if r.Method != method {
			continue
		}
		switch {
		case matchTemplate(r.Endpoint, endpoint):
			if tmpl == nil || moreSpecific(r.Endpoint, tmpl.Endpoint) {
				tmpl = &r
			}
		case matchPrefix(r.Endpoint, endpoint):
			if prefix == nil || moreSpecific(r.Endpoint, prefix.Endpoint) {
				prefix = &r
			}
		}
	}
	if tmpl != nil {
		return *tmpl, true
	}
	if prefix != nil {
		return *prefix, true
	}
	return Rule{}, false
}

func windowKey(clientID string, rule Rule) string {
	return clientID + "|" + rule.Key()
}

// Check reports current capacity without consuming any of it.
func (l *Limiter) Check(ctx context.Context, clientID, method, endpoint string) (Status, error) {
	rule, ok := l.Match(method, endpoint)
	if !ok {
		return Status{
			Endpoint:  endpoint,
			ClientID:  clientID,
			Limit:     -1,
			Remaining: -1,
			Unlimited: true,
		}, nil
	}

	window := time.Duration(rule.WindowSeconds) * time.Second
	used, startedAt, err := l.windows.Peek(ctx, windowKey(clientID, rule), window)
	if err != nil {
		return Status{}, err
	}

	remaining := rule.Requests - used
	if remaining < 0 {
		remaining = 0
	}
	return Status{
		Endpoint:  endpoint,
		ClientID:  clientID,
		Limit:     rule.Requests,
		Remaining: remaining,
		Used:      used,
		ResetAt:   startedAt.Add(window),
	}, nil
}

// Consume atomically checks and deducts cost against the matched rule's
// window. A false return means the request must be rejected; the window is
// left untouched so an immediate Check reports the same remaining capacity.
// Admission is bounded by the steady-state limit; burst only raises the
// invariant ceiling on recorded consumption, it is never advertised and
// never admits past the limit.
func (l *Limiter) Consume(ctx context.Context, clientID, method, endpoint string, cost int) (bool, error) {
	rule, ok := l.Match(method, endpoint)
	if !ok {
		return true, nil
	}
	if cost <= 0 {
		cost = rule.Cost()
	}

	window := time.Duration(rule.WindowSeconds) * time.Second
	dec, err := l.windows.Take(ctx, windowKey(clientID, rule), window, rule.Requests, cost)
	if err != nil {
		return false, err
	}
	return dec.Allowed, nil
}

// Reset clears consumption state for a client, optionally scoped to one
// endpoint. Support tooling uses this to unblock a client without waiting
// for window expiry.
func (l *Limiter) Reset(ctx context.Context, clientID, endpoint string) error {
	l.mu.RLock()
	keys := make([]string, 0, len(l.rules))
	for _, r := range l.rules {
		if endpoint != "" && !ruleCovers(r, endpoint) {
			continue
		}
		keys = append(keys, windowKey(clientID, r))
	}
	l.mu.RUnlock()

	return l.windows.Remove(ctx, keys...)
}

func ruleCovers(r Rule, endpoint string) bool {
	return r.Endpoint == endpoint || matchTemplate(r.Endpoint, endpoint) || matchPrefix(r.Endpoint, endpoint)
}
