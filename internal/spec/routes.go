package spec

// Route is one published operation in the public API surface. The table is
// static; rate-limit annotations are resolved live at build time.
type Route struct {
	Method      string
	Path        string
	OperationID string
	Summary     string
	Tag         string
}

func routes() []Route {
	return []Route{
		{Method: "GET", Path: "/finance/invoices", OperationID: "listInvoices", Summary: "List invoices", Tag: "Finance"},
		{Method: "POST", Path: "/finance/invoices", OperationID: "createInvoice", Summary: "Create invoice", Tag: "Finance"},
		{Method: "GET", Path: "/hr/employees", OperationID: "listEmployees", Summary: "List employees", Tag: "HR"},
		{Method: "POST", Path: "/hr/employees", OperationID: "createEmployee", Summary: "Create employee", Tag: "HR"},
		{Method: "GET", Path: "/hse/incidents", OperationID: "listIncidents", Summary: "List safety incidents", Tag: "HSE"},
		{Method: "POST", Path: "/hse/incidents", OperationID: "reportIncident", Summary: "Report safety incident", Tag: "HSE"},
		{Method: "GET", Path: "/logistics/shipments", OperationID: "listShipments", Summary: "List shipments", Tag: "Logistics"},
		{Method: "GET", Path: "/lms/courses", OperationID: "listCourses", Summary: "List courses", Tag: "LMS"},
		{Method: "GET", Path: "/webhooks", OperationID: "listWebhooks", Summary: "List webhook subscriptions", Tag: "Webhooks"},
		{Method: "POST", Path: "/webhooks", OperationID: "createWebhook", Summary: "Register webhook subscription", Tag: "Webhooks"},
	}
}

func tags() []map[string]string {
	return []map[string]string{
		{"name": "Finance", "description": "Invoice, payment, and financial management"},
		{"name": "HR", "description": "Human resources and employee management"},
		{"name": "HSE", "description": "Health, Safety, and Environment management"},
		{"name": "Logistics", "description": "Shipping, inventory, and supply chain"},
		{"name": "LMS", "description": "Learning management and courses"},
		{"name": "Webhooks", "description": "Webhook subscription management"},
	}
}

func schemaNames() []string {
	return []string{
		"Invoice", "InvoiceList", "CreateInvoice",
		"Employee", "EmployeeList", "CreateEmployee",
		"Incident", "CreateIncident",
		"Shipment", "Course",
		"Webhook", "CreateWebhook",
	}
}

// SupportedSDKLanguages lists the client languages the platform publishes
// SDK packages for. Codegen runs in a separate pipeline; the surface only
// reports the list.
func SupportedSDKLanguages() []string {
	return []string{"typescript", "javascript", "python", "java", "csharp", "go", "php", "ruby"}
}
