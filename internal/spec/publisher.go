package spec

import (
	"encoding/json"
	"fmt"
	"strings"

	"go.yaml.in/yaml/v3"

	"platform-backend/internal/ratelimit"
	"platform-backend/internal/version"
	"platform-backend/internal/webhook"
)

// Publisher projects the live platform state into the OpenAPI document and
// the status aggregate. It holds references, never copies: every Build call
// sees the current rules, webhooks, and version catalog.
type Publisher struct {
	limiter    *ratelimit.Limiter
	dispatcher *webhook.Dispatcher
	catalog    *version.Catalog
}

func NewPublisher(l *ratelimit.Limiter, d *webhook.Dispatcher, c *version.Catalog) *Publisher {
	return &Publisher{limiter: l, dispatcher: d, catalog: c}
}

// Build assembles the OpenAPI 3.0.3 document. Each operation carries an
// x-rate-limit annotation when an admission rule covers it.
func (p *Publisher) Build() map[string]any {
	current := "v1"
	if v, ok := p.catalog.Current(); ok {
		current = v.Version
	}

	paths := map[string]any{}
	for _, r := range routes() {
		op := map[string]any{
			"operationId": r.OperationID,
			"summary":     r.Summary,
			"tags":        []string{r.Tag},
			"responses": map[string]any{
				"200": map[string]any{"description": "Success"},
				"401": map[string]any{"description": "Unauthorized"},
				"429": map[string]any{"description": "Rate limit exceeded"},
			},
		}
		if rule, ok := p.limiter.Match(r.Method, r.Path); ok {
			op["x-rate-limit"] = map[string]any{
				"requests": rule.Requests,
				"window":   formatWindow(rule.WindowSeconds),
			}
		}
		item, _ := paths[r.Path].(map[string]any)
		if item == nil {
			item = map[string]any{}
			paths[r.Path] = item
		}
		item[strings.ToLower(r.Method)] = op
	}

	schemas := map[string]any{}
	for _, name := range schemaNames() {
		schemas[name] = map[string]any{"type": "object"}
	}

	return map[string]any{
		"openapi": "3.0.3",
		"info": map[string]any{
			"title":       "Platform API",
			"description": "Public API for the business platform: Finance, HR, HSE, Logistics, LMS, and webhook subscriptions.",
			"version":     current,
		},
		"servers": []map[string]any{
			{"url": "https://api.example.com/v1", "description": "Production server"},
			{"url": "http://localhost:8080/api/v1", "description": "Local development"},
		},
		"paths": paths,
		"components": map[string]any{
			"schemas": schemas,
			"securitySchemes": map[string]any{
				"BearerAuth": map[string]any{"type": "http", "scheme": "bearer", "bearerFormat": "JWT"},
				"ApiKey":     map[string]any{"type": "apiKey", "in": "header", "name": "x-api-key"},
			},
		},
		"security": []map[string]any{{"BearerAuth": []any{}}},
		"tags":     tags(),
	}
}

func (p *Publisher) JSON() ([]byte, error) {
	return json.Marshal(p.Build())
}

func (p *Publisher) YAML() ([]byte, error) {
	return yaml.Marshal(p.Build())
}

// formatWindow renders a window length the way the published document shows
// it: whole minutes as "1m", everything else in seconds.
func formatWindow(seconds int) string {
	if seconds > 0 && seconds%60 == 0 {
		return fmt.Sprintf("%dm", seconds/60)
	}
	return fmt.Sprintf("%ds", seconds)
}

// WebhookStats is the endpoint census in the status aggregate.
type WebhookStats struct {
	Total   int `json:"total"`
	Enabled int `json:"enabled"`
}

// Status is the platform overview served at GET /status.
type Status struct {
	Version        string       `json:"version"`
	Paths          int          `json:"paths"`
	Schemas        int          `json:"schemas"`
	RateLimitRules int          `json:"rate_limit_rules"`
	Webhooks       WebhookStats `json:"webhooks"`
	SDKLanguages   []string     `json:"sdk_languages"`
}

func (p *Publisher) Status() Status {
	current := ""
	if v, ok := p.catalog.Current(); ok {
		current = v.Version
	}

	endpoints := p.dispatcher.List()
	stats := WebhookStats{Total: len(endpoints)}
	for _, ep := range endpoints {
		if ep.Enabled {
			stats.Enabled++
		}
	}

	pathSet := map[string]bool{}
	for _, r := range routes() {
		pathSet[r.Path] = true
	}

	return Status{
		Version:        current,
		Paths:          len(pathSet),
		Schemas:        len(schemaNames()),
		RateLimitRules: len(p.limiter.Rules()),
		Webhooks:       stats,
		SDKLanguages:   SupportedSDKLanguages(),
	}
}
