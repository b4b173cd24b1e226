package webhook

// Event describes one domain event the platform can emit to subscribers.
type Event struct {
	Type        string         `json:"type"`
	Description string         `json:"description"`
	Example     map[string]any `json:"example,omitempty"`
}

// Catalog lists every event type the domain modules emit. Served at
// GET /webhooks/events so integrators can discover what to subscribe to.
func Catalog() []Event {
	return []Event{
		{
			Type:        "invoice.created",
			Description: "Fired when a new invoice is created",
			Example:     map[string]any{"id": "inv-123", "number": "INV-2025-001", "total": 1000},
		},
		{
			Type:        "invoice.paid",
			Description: "Fired when an invoice is marked as paid",
			Example:     map[string]any{"id": "inv-123", "status": "paid", "paidAt": "2025-01-15"},
		},
		{
			Type:        "employee.created",
			Description: "Fired when a new employee is onboarded",
			Example:     map[string]any{"id": "emp-123", "firstName": "John", "lastName": "Doe"},
		},
		{
			Type:        "employee.terminated",
			Description: "Fired when an employee is terminated",
			Example:     map[string]any{"id": "emp-123", "status": "terminated"},
		},
		{
			Type:        "incident.reported",
			Description: "Fired when a safety incident is reported",
			Example:     map[string]any{"id": "inc-123", "severity": "major", "type": "injury"},
		},
		{
			Type:        "shipment.delivered",
			Description: "Fired when a shipment is delivered",
			Example:     map[string]any{"id": "ship-123", "status": "delivered"},
		},
		{
			Type:        "course.completed",
			Description: "Fired when an employee completes a course",
			Example:     map[string]any{"employeeId": "emp-123", "courseId": "course-456", "score": 85},
		},
	}
}
