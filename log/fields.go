package log

// Common field names for structured logging
const (
	FieldComponent  = "component"
	FieldRequestID  = "request_id"
	FieldMethod     = "method"
	FieldPath       = "path"
	FieldStatusCode = "status_code"
	FieldDuration   = "duration_ms"
	FieldError      = "error"
	FieldOperation  = "operation"
	FieldActor      = "actor_id"
	FieldBudgetID   = "budget_id"
	FieldBudgetCode = "budget_code"
	FieldCenterID   = "center_id"
	FieldStatus     = "status"
	FieldAttempt    = "attempt"
	FieldLines      = "lines"
)

// Component names
const (
	ComponentApp       = "app"
	ComponentHTTP      = "http"
	ComponentEngine    = "engine"
	ComponentStorage   = "storage"
	ComponentAMQP      = "amqp"
	ComponentWorker    = "worker"
	ComponentTemplates = "templates"
)

// Operation names
const (
	OpCreate   = "create"
	OpUpdate   = "update"
	OpDelete   = "delete"
	OpSubmit   = "submit"
	OpValidate = "validate"
	OpReject   = "reject"
	OpRecord   = "record_usage"
	OpConsume  = "consume"
	OpStartup  = "startup"
	OpShutdown = "shutdown"
)
