package api

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"

	"platform-backend/internal/ratelimit"
	"platform-backend/internal/spec"
	"platform-backend/internal/store"
	"platform-backend/internal/version"
	"platform-backend/internal/webhook"
)

// Handler wires the platform services to the HTTP surface.
type Handler struct {
	limiter    *ratelimit.Limiter
	dispatcher *webhook.Dispatcher
	catalog    *version.Catalog
	publisher  *spec.Publisher
	audit      store.DeliveryLog
}

func NewHandler(l *ratelimit.Limiter, d *webhook.Dispatcher, c *version.Catalog, p *spec.Publisher, audit store.DeliveryLog) *Handler {
	return &Handler{limiter: l, dispatcher: d, catalog: c, publisher: p, audit: audit}
}

// RegisterRoutes mounts the platform surface. Mutating operator routes sit
// behind the auth middlewares; integrator and read routes are open.
func RegisterRoutes(app *fiber.App, h *Handler, authMW, adminMW fiber.Handler) {
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	app.Get("/openapi.json", h.OpenAPIJSON)
	app.Get("/openapi.yaml", h.OpenAPIYAML)
	app.Get("/status", h.PlatformStatus)

	app.Get("/rate-limits", h.ListRules)
	app.Post("/rate-limits", authMW, adminMW, h.ConfigureRule)
	app.Get("/rate-limits/check", h.CheckRateLimit)
	app.Post("/rate-limits/consume", h.ConsumeRateLimit)
	app.Post("/rate-limits/reset", authMW, adminMW, h.ResetRateLimit)

	app.Get("/webhooks/events", h.ListWebhookEvents)
	app.Get("/webhooks", h.ListWebhooks)
	app.Post("/webhooks", h.CreateWebhook)
	app.Post("/webhooks/trigger", h.TriggerWebhooks)
	app.Get("/webhooks/deliveries/audit", authMW, adminMW, h.DeliveryAudit)
	app.Post("/webhooks/deliveries/:deliveryId/retry", h.RetryDelivery)
	app.Get("/webhooks/:id", h.GetWebhook)
	app.Put("/webhooks/:id", h.UpdateWebhook)
	app.Delete("/webhooks/:id", h.DeleteWebhook)
	app.Post("/webhooks/:id/regenerate-secret", h.RegenerateSecret)
	app.Get("/webhooks/:id/deliveries", h.ListDeliveries)

	app.Get("/versions", h.ListVersions)
	app.Get("/versions/current", h.CurrentVersion)
	app.Post("/versions", authMW, adminMW, h.CreateVersion)
	app.Get("/versions/:version", h.GetVersion)
	app.Put("/versions/:version/deprecate", authMW, adminMW, h.DeprecateVersion)
	app.Post("/versions/:version/changelog", authMW, adminMW, h.AppendChangelog)
}

// --- Spec Publisher ---

func (h *Handler) OpenAPIJSON(c *fiber.Ctx) error {
	out, err := h.publisher.JSON()
	if err != nil {
		return err
	}
	c.Set("Content-Type", "application/json")
	return c.Send(out)
}

func (h *Handler) OpenAPIYAML(c *fiber.Ctx) error {
	out, err := h.publisher.YAML()
	if err != nil {
		return err
	}
	c.Set("Content-Type", "application/yaml")
	return c.Send(out)
}

func (h *Handler) PlatformStatus(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"data": h.publisher.Status()})
}

// --- Rate limits ---

func (h *Handler) ListRules(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"data": h.limiter.Rules()})
}

func (h *Handler) ConfigureRule(c *fiber.Ctx) error {
	var rule ratelimit.Rule
	if err := c.BodyParser(&rule); err != nil {
		return BadRequestError("Invalid JSON body")
	}
	if err := h.limiter.Configure(rule); err != nil {
		return ValidationError([]ErrorDetail{{Message: err.Error()}})
	}
	return c.Status(201).JSON(fiber.Map{"data": rule})
}

func (h *Handler) CheckRateLimit(c *fiber.Ctx) error {
	client, err := clientID(c)
	if err != nil {
		return err
	}
	method := c.Query("method", "GET")
	endpoint := c.Query("endpoint")
	if endpoint == "" {
		return BadRequestError("endpoint query parameter is required")
	}

	st, err := h.limiter.Check(c.Context(), client, method, endpoint)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": st})
}

type consumeRequest struct {
	Method   string `json:"method"`
	Endpoint string `json:"endpoint"`
	Cost     int    `json:"cost"`
}

func (h *Handler) ConsumeRateLimit(c *fiber.Ctx) error {
	client, err := clientID(c)
	if err != nil {
		return err
	}
	var req consumeRequest
	if err := c.BodyParser(&req); err != nil {
		return BadRequestError("Invalid JSON body")
	}
	if req.Endpoint == "" {
		return BadRequestError("endpoint is required")
	}
	if req.Method == "" {
		req.Method = "GET"
	}

	allowed, err := h.limiter.Consume(c.Context(), client, req.Method, req.Endpoint, req.Cost)
	if err != nil {
		return err
	}
	st, err := h.limiter.Check(c.Context(), client, req.Method, req.Endpoint)
	if err != nil {
		return err
	}

	// Denied admission is an outcome, not an error, but integrators expect
	// the conventional status code.
	status := fiber.StatusOK
	if !allowed {
		status = fiber.StatusTooManyRequests
	}
	return c.Status(status).JSON(fiber.Map{"data": fiber.Map{"allowed": allowed, "status": st}})
}

type resetRequest struct {
	ClientID string `json:"client_id"`
	Endpoint string `json:"endpoint"`
}

func (h *Handler) ResetRateLimit(c *fiber.Ctx) error {
	var req resetRequest
	if err := c.BodyParser(&req); err != nil {
		return BadRequestError("Invalid JSON body")
	}
	if req.ClientID == "" {
		return BadRequestError("client_id is required")
	}
	if err := h.limiter.Reset(c.Context(), req.ClientID, req.Endpoint); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"reset": true}})
}

// --- Webhooks ---

func (h *Handler) ListWebhookEvents(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"data": webhook.Catalog()})
}

func (h *Handler) ListWebhooks(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"data": h.dispatcher.List()})
}

func (h *Handler) CreateWebhook(c *fiber.Ctx) error {
	var req webhook.NewEndpoint
	if err := c.BodyParser(&req); err != nil {
		return BadRequestError("Invalid JSON body")
	}
	ep, err := h.dispatcher.Register(req)
	if err != nil {
		return ValidationError([]ErrorDetail{{Message: err.Error()}})
	}
	return c.Status(201).JSON(fiber.Map{"data": ep})
}

func (h *Handler) GetWebhook(c *fiber.Ctx) error {
	ep, ok := h.dispatcher.Get(c.Params("id"))
	if !ok {
		return NotFoundError("Webhook", c.Params("id"))
	}
	return c.JSON(fiber.Map{"data": ep})
}

func (h *Handler) UpdateWebhook(c *fiber.Ctx) error {
	var patch webhook.EndpointPatch
	if err := c.BodyParser(&patch); err != nil {
		return BadRequestError("Invalid JSON body")
	}
	ep, err := h.dispatcher.Update(c.Params("id"), patch)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return NotFoundError("Webhook", c.Params("id"))
		}
		return ValidationError([]ErrorDetail{{Message: err.Error()}})
	}
	return c.JSON(fiber.Map{"data": ep})
}

func (h *Handler) DeleteWebhook(c *fiber.Ctx) error {
	if !h.dispatcher.Remove(c.Params("id")) {
		return NotFoundError("Webhook", c.Params("id"))
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"deleted": true}})
}

func (h *Handler) RegenerateSecret(c *fiber.Ctx) error {
	ep, err := h.dispatcher.RotateSecret(c.Params("id"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return NotFoundError("Webhook", c.Params("id"))
		}
		return err
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"id": ep.ID, "secret": ep.Secret}})
}

type triggerRequest struct {
	Event   string         `json:"event"`
	Payload map[string]any `json:"payload"`
}

func (h *Handler) TriggerWebhooks(c *fiber.Ctx) error {
	var req triggerRequest
	if err := c.BodyParser(&req); err != nil {
		return BadRequestError("Invalid JSON body")
	}
	if req.Event == "" {
		return BadRequestError("event is required")
	}
	deliveries := h.dispatcher.Trigger(req.Event, req.Payload)
	return c.Status(202).JSON(fiber.Map{"data": fiber.Map{
		"event":      req.Event,
		"deliveries": deliveries,
	}})
}

func (h *Handler) ListDeliveries(c *fiber.Ctx) error {
	id := c.Params("id")
	if _, ok := h.dispatcher.Get(id); !ok {
		return NotFoundError("Webhook", id)
	}
	return c.JSON(fiber.Map{"data": h.dispatcher.ListDeliveries(id)})
}

// DeliveryAudit returns the most recent delivery attempt outcomes, newest
// first. Operators use it to inspect retry history across all endpoints.
func (h *Handler) DeliveryAudit(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 100)
	recs, err := h.audit.Recent(c.Context(), limit)
	if err != nil {
		return err
	}
	if recs == nil {
		recs = []store.DeliveryRecord{}
	}
	return c.JSON(fiber.Map{"data": recs})
}

func (h *Handler) RetryDelivery(c *fiber.Ctx) error {
	del, err := h.dispatcher.RetryDelivery(c.Params("deliveryId"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return NotFoundError("Delivery", c.Params("deliveryId"))
		}
		return ConflictError(err.Error())
	}
	return c.Status(202).JSON(fiber.Map{"data": del})
}

// --- Versions ---

func (h *Handler) ListVersions(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"data": h.catalog.ListAll()})
}

func (h *Handler) CurrentVersion(c *fiber.Ctx) error {
	v, ok := h.catalog.Current()
	if !ok {
		return NotFoundError("Current version", "none")
	}
	return c.JSON(fiber.Map{"data": v})
}

func (h *Handler) GetVersion(c *fiber.Ctx) error {
	v, ok := h.catalog.Get(c.Params("version"))
	if !ok {
		return NotFoundError("Version", c.Params("version"))
	}
	return c.JSON(fiber.Map{"data": v})
}

type createVersionRequest struct {
	Version     string                `json:"version"`
	Status      version.VersionStatus `json:"status"`
	ReleaseDate time.Time             `json:"release_date"`
}

func (h *Handler) CreateVersion(c *fiber.Ctx) error {
	var req createVersionRequest
	if err := c.BodyParser(&req); err != nil {
		return BadRequestError("Invalid JSON body")
	}
	if req.ReleaseDate.IsZero() {
		req.ReleaseDate = time.Now().UTC()
	}
	v, err := h.catalog.Create(req.Version, req.Status, req.ReleaseDate)
	if err != nil {
		return ConflictError(err.Error())
	}
	return c.Status(201).JSON(fiber.Map{"data": v})
}

type deprecateRequest struct {
	SunsetDate time.Time `json:"sunset_date"`
}

func (h *Handler) DeprecateVersion(c *fiber.Ctx) error {
	var req deprecateRequest
	if err := c.BodyParser(&req); err != nil {
		return BadRequestError("Invalid JSON body")
	}
	if req.SunsetDate.IsZero() {
		return BadRequestError("sunset_date is required")
	}
	if !h.catalog.Deprecate(c.Params("version"), req.SunsetDate) {
		return NotFoundError("Version", c.Params("version"))
	}
	v, _ := h.catalog.Get(c.Params("version"))
	return c.JSON(fiber.Map{"data": v})
}

func (h *Handler) AppendChangelog(c *fiber.Ctx) error {
	var entry version.ChangelogEntry
	if err := c.BodyParser(&entry); err != nil {
		return BadRequestError("Invalid JSON body")
	}
	if entry.Description == "" {
		return ValidationError([]ErrorDetail{{Field: "description", Rule: "required", Message: "description is required"}})
	}
	if entry.Date.IsZero() {
		entry.Date = time.Now().UTC()
	}
	if !h.catalog.AppendChangelog(c.Params("version"), entry) {
		return NotFoundError("Version", c.Params("version"))
	}
	v, _ := h.catalog.Get(c.Params("version"))
	return c.Status(201).JSON(fiber.Map{"data": v.Changelog})
}
