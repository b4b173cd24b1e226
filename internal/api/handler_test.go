package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"

	"platform-backend/internal/auth"
	"platform-backend/internal/clock"
	"platform-backend/internal/ratelimit"
	"platform-backend/internal/spec"
	"platform-backend/internal/store"
	"platform-backend/internal/version"
	"platform-backend/internal/webhook"
)

const testJWTSecret = "test-secret"

type nopTransport struct{}

func (nopTransport) Deliver(_ context.Context, _ string, _ map[string]string, _ []byte) error {
	return nil
}

func newTestApp(t *testing.T) (*fiber.App, *webhook.Dispatcher, *store.MemoryLog) {
	t.Helper()

	clk := clock.NewManual(time.Unix(1_700_000_000, 0))
	limiter := ratelimit.NewLimiter(ratelimit.NewMemoryStore(clk))
	for _, r := range ratelimit.DefaultRules() {
		if err := limiter.Configure(r); err != nil {
			t.Fatalf("configure: %v", err)
		}
	}
	audit := store.NewMemoryLog()
	dispatcher := webhook.NewDispatcher(nopTransport{}, clk, audit, webhook.Config{})
	catalog := version.NewSeededCatalog()
	publisher := spec.NewPublisher(limiter, dispatcher, catalog)

	app := NewApp()
	h := NewHandler(limiter, dispatcher, catalog, publisher, audit)
	RegisterRoutes(app, h, AuthMiddleware(testJWTSecret), RequireAdmin())
	return app, dispatcher, audit
}

func doJSON(t *testing.T, app *fiber.App, method, path string, body any, headers map[string]string) (*http.Response, map[string]any) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(buf)
	}
	req, _ := http.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("request %s %s: %v", method, path, err)
	}
	raw, _ := io.ReadAll(resp.Body)
	var decoded map[string]any
	if len(raw) > 0 && strings.Contains(resp.Header.Get("Content-Type"), "json") {
		if err := json.Unmarshal(raw, &decoded); err != nil {
			t.Fatalf("decode %s %s response: %v (%s)", method, path, err, raw)
		}
	}
	return resp, decoded
}

func adminToken(t *testing.T) string {
	t.Helper()
	token, err := auth.GenerateAccessToken("op-1", []string{"admin"}, testJWTSecret)
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	return "Bearer " + token
}

func TestCheckRateLimit_RequiresClientID(t *testing.T) {
	app, _, _ := newTestApp(t)

	resp, body := doJSON(t, app, "GET", "/rate-limits/check?endpoint=/finance/invoices", nil, nil)
	if resp.StatusCode != 400 {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
	errObj := body["error"].(map[string]any)
	if errObj["code"] != "BAD_REQUEST" {
		t.Fatalf("error code = %v", errObj["code"])
	}
}

func TestCheckRateLimit_UnlimitedWithoutRule(t *testing.T) {
	app, _, _ := newTestApp(t)

	resp, body := doJSON(t, app, "GET", "/rate-limits/check?endpoint=/uncovered&method=GET", nil,
		map[string]string{"x-client-id": "acme"})
	if resp.StatusCode != 200 {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	data := body["data"].(map[string]any)
	if data["unlimited"] != true {
		t.Fatalf("expected unlimited, got %v", data)
	}
}

func TestConsumeRateLimit_DeniesWith429(t *testing.T) {
	app, _, _ := newTestApp(t)
	headers := map[string]string{"x-client-id": "acme"}
	payload := map[string]any{"method": "POST", "endpoint": "/finance/invoices"}

	var last *http.Response
	var lastBody map[string]any
	for i := 0; i < 51; i++ {
		last, lastBody = doJSON(t, app, "POST", "/rate-limits/consume", payload, headers)
	}
	if last.StatusCode != 429 {
		t.Fatalf("51st consume status = %d, want 429", last.StatusCode)
	}
	data := lastBody["data"].(map[string]any)
	if data["allowed"] != false {
		t.Fatalf("allowed = %v, want false", data["allowed"])
	}
}

func TestConfigureRule_RequiresAdminToken(t *testing.T) {
	app, _, _ := newTestApp(t)
	rule := map[string]any{"method": "GET", "endpoint": "/reports", "requests": 10, "window": 60}

	resp, _ := doJSON(t, app, "POST", "/rate-limits", rule, nil)
	if resp.StatusCode != 401 {
		t.Fatalf("unauthenticated status = %d, want 401", resp.StatusCode)
	}

	viewer, _ := auth.GenerateAccessToken("op-2", []string{"viewer"}, testJWTSecret)
	resp, _ = doJSON(t, app, "POST", "/rate-limits", rule, map[string]string{"Authorization": "Bearer " + viewer})
	if resp.StatusCode != 403 {
		t.Fatalf("non-admin status = %d, want 403", resp.StatusCode)
	}

	resp, _ = doJSON(t, app, "POST", "/rate-limits", rule, map[string]string{"Authorization": adminToken(t)})
	if resp.StatusCode != 201 {
		t.Fatalf("admin status = %d, want 201", resp.StatusCode)
	}
}

func TestWebhookLifecycleOverHTTP(t *testing.T) {
	app, _, _ := newTestApp(t)

	resp, body := doJSON(t, app, "POST", "/webhooks", map[string]any{
		"url":    "https://example.com/hook",
		"events": []string{"invoice.created"},
	}, nil)
	if resp.StatusCode != 201 {
		t.Fatalf("create status = %d", resp.StatusCode)
	}
	data := body["data"].(map[string]any)
	id := data["id"].(string)
	if !strings.HasPrefix(data["secret"].(string), "whsec_") {
		t.Fatalf("secret = %v", data["secret"])
	}

	resp, body = doJSON(t, app, "GET", "/webhooks/"+id, nil, nil)
	if resp.StatusCode != 200 {
		t.Fatalf("get status = %d", resp.StatusCode)
	}

	resp, body = doJSON(t, app, "POST", "/webhooks/"+id+"/regenerate-secret", nil, nil)
	if resp.StatusCode != 200 {
		t.Fatalf("rotate status = %d", resp.StatusCode)
	}
	rotated := body["data"].(map[string]any)["secret"].(string)
	if rotated == data["secret"].(string) {
		t.Fatal("rotation should change the secret")
	}

	resp, _ = doJSON(t, app, "DELETE", "/webhooks/"+id, nil, nil)
	if resp.StatusCode != 200 {
		t.Fatalf("delete status = %d", resp.StatusCode)
	}
	resp, body = doJSON(t, app, "GET", "/webhooks/"+id, nil, nil)
	if resp.StatusCode != 404 {
		t.Fatalf("get after delete status = %d", resp.StatusCode)
	}
	if body["error"].(map[string]any)["code"] != "NOT_FOUND" {
		t.Fatalf("error envelope = %v", body["error"])
	}
}

func TestWebhookEventsCatalogRoute(t *testing.T) {
	app, _, _ := newTestApp(t)

	resp, body := doJSON(t, app, "GET", "/webhooks/events", nil, nil)
	if resp.StatusCode != 200 {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	events := body["data"].([]any)
	if len(events) != 7 {
		t.Fatalf("event catalog size = %d, want 7", len(events))
	}
}

func TestTriggerWebhooks_Accepted(t *testing.T) {
	app, dispatcher, _ := newTestApp(t)
	dispatcher.Register(webhook.NewEndpoint{URL: "https://example.com/hook", Events: []string{"*"}})

	resp, body := doJSON(t, app, "POST", "/webhooks/trigger", map[string]any{
		"event":   "invoice.created",
		"payload": map[string]any{"id": "inv-1"},
	}, nil)
	if resp.StatusCode != 202 {
		t.Fatalf("status = %d, want 202", resp.StatusCode)
	}
	deliveries := body["data"].(map[string]any)["deliveries"].([]any)
	if len(deliveries) != 1 {
		t.Fatalf("deliveries = %d, want 1", len(deliveries))
	}
}

func TestVersionRoutes(t *testing.T) {
	app, _, _ := newTestApp(t)
	admin := map[string]string{"Authorization": adminToken(t)}

	resp, body := doJSON(t, app, "GET", "/versions/current", nil, nil)
	if resp.StatusCode != 200 || body["data"].(map[string]any)["version"] != "v1" {
		t.Fatalf("current: status=%d body=%v", resp.StatusCode, body)
	}

	resp, _ = doJSON(t, app, "POST", "/versions", map[string]any{
		"version": "v2", "status": "current", "release_date": "2026-01-01T00:00:00Z",
	}, admin)
	if resp.StatusCode != 201 {
		t.Fatalf("create status = %d", resp.StatusCode)
	}
	resp, _ = doJSON(t, app, "POST", "/versions", map[string]any{"version": "v2"}, admin)
	if resp.StatusCode != 409 {
		t.Fatalf("duplicate status = %d, want 409", resp.StatusCode)
	}

	resp, body = doJSON(t, app, "PUT", "/versions/v1/deprecate", map[string]any{
		"sunset_date": "2026-12-31T00:00:00Z",
	}, admin)
	if resp.StatusCode != 200 {
		t.Fatalf("deprecate status = %d", resp.StatusCode)
	}
	if body["data"].(map[string]any)["status"] != "deprecated" {
		t.Fatalf("deprecate body = %v", body["data"])
	}

	resp, _ = doJSON(t, app, "PUT", "/versions/v999/deprecate", map[string]any{
		"sunset_date": "2026-12-31T00:00:00Z",
	}, admin)
	if resp.StatusCode != 404 {
		t.Fatalf("unknown version status = %d, want 404", resp.StatusCode)
	}

	resp, body = doJSON(t, app, "POST", "/versions/v2/changelog", map[string]any{
		"type": "added", "description": "New reporting endpoints",
	}, admin)
	if resp.StatusCode != 201 {
		t.Fatalf("changelog status = %d", resp.StatusCode)
	}
	entries := body["data"].([]any)
	if len(entries) != 1 {
		t.Fatalf("changelog entries = %d, want 1", len(entries))
	}
}

func TestDeliveryAuditRoute(t *testing.T) {
	app, _, audit := newTestApp(t)

	resp, _ := doJSON(t, app, "GET", "/webhooks/deliveries/audit", nil, nil)
	if resp.StatusCode != 401 {
		t.Fatalf("unauthenticated status = %d, want 401", resp.StatusCode)
	}

	admin := map[string]string{"Authorization": adminToken(t)}
	resp, body := doJSON(t, app, "GET", "/webhooks/deliveries/audit", nil, admin)
	if resp.StatusCode != 200 {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if rows := body["data"].([]any); len(rows) != 0 {
		t.Fatalf("expected empty audit trail, got %d rows", len(rows))
	}

	for i, status := range []string{"failed", "delivered"} {
		audit.Append(context.Background(), store.DeliveryRecord{
			DeliveryID: "del-1", WebhookID: "wh-1", Event: "invoice.paid",
			Attempt: i + 1, Status: status, At: time.Unix(1_700_000_000+int64(i), 0),
		})
	}

	resp, body = doJSON(t, app, "GET", "/webhooks/deliveries/audit?limit=1", nil, admin)
	if resp.StatusCode != 200 {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	rows := body["data"].([]any)
	if len(rows) != 1 {
		t.Fatalf("limit=1 returned %d rows", len(rows))
	}
	// Newest first: the delivered attempt was appended last.
	if rows[0].(map[string]any)["status"] != "delivered" {
		t.Fatalf("newest row = %v", rows[0])
	}
}

func TestStatusAndOpenAPIRoutes(t *testing.T) {
	app, _, _ := newTestApp(t)

	resp, body := doJSON(t, app, "GET", "/status", nil, nil)
	if resp.StatusCode != 200 {
		t.Fatalf("status route = %d", resp.StatusCode)
	}
	data := body["data"].(map[string]any)
	if data["version"] != "v1" {
		t.Fatalf("status version = %v", data["version"])
	}
	if len(data["sdk_languages"].([]any)) != 8 {
		t.Fatalf("sdk languages = %v", data["sdk_languages"])
	}

	resp, body = doJSON(t, app, "GET", "/openapi.json", nil, nil)
	if resp.StatusCode != 200 || body["openapi"] != "3.0.3" {
		t.Fatalf("openapi.json: status=%d openapi=%v", resp.StatusCode, body["openapi"])
	}

	req, _ := http.NewRequest("GET", "/openapi.yaml", nil)
	yresp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("openapi.yaml: %v", err)
	}
	if yresp.StatusCode != 200 || !strings.Contains(yresp.Header.Get("Content-Type"), "yaml") {
		t.Fatalf("openapi.yaml: status=%d type=%s", yresp.StatusCode, yresp.Header.Get("Content-Type"))
	}
}
