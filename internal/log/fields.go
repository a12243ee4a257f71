package log

// Common field names for structured logging
const (
	FieldComponent   = "component"
	FieldRequestID   = "request_id"
	FieldRunID       = "run_id"
	FieldClientIP    = "client_ip"
	FieldMethod      = "method"
	FieldPath        = "path"
	FieldStatusCode  = "status_code"
	FieldDuration    = "duration_ms"
	FieldSuccess     = "success"
	FieldError       = "error"
	FieldErrorType   = "error_type"
	FieldOperation   = "operation"
	FieldPeriod      = "period"
	FieldPeriodLabel = "period_label"
	FieldRecordCount = "record_count"
	FieldGrandTotal  = "grand_total"
	FieldState       = "state"
	FieldReason      = "reason"
	FieldTrigger     = "trigger"
	FieldChatID      = "chat_id"
	FieldCommand     = "command"
	FieldBackend     = "backend"
	FieldImageSize   = "image_size"
)

// Components defines standard component names
const (
	ComponentApp       = "app"
	ComponentHTTP      = "http"
	ComponentReport    = "report"
	ComponentStorage   = "storage"
	ComponentAMQP      = "amqp"
	ComponentWorker    = "worker"
	ComponentScheduler = "scheduler"
	ComponentTelegram  = "telegram"
	ComponentChart     = "chart"
	ComponentCache     = "cache"
	ComponentSecurity  = "security"
	ComponentRateLimit = "rate_limit"
	ComponentTrace     = "trace"
	ComponentBackend   = "backend"
	ComponentArchive   = "archive"
	ComponentBot       = "bot"
)

// Operations defines standard operation names
const (
	OpFetch    = "fetch"
	OpRender   = "render"
	OpDeliver  = "deliver"
	OpFallback = "fallback"
	OpMark     = "mark"
	OpClaim    = "claim"
	OpRelease  = "release"
	OpValidate = "validate"
	OpParse    = "parse"
	OpPublish  = "publish"
	OpConsume  = "consume"
	OpArchive  = "archive"
	OpShutdown = "shutdown"
	OpStartup  = "startup"
)

// ErrorTypes defines standard error type categories
const (
	ErrorTypeConfiguration = "configuration_error"
	ErrorTypeFetch         = "fetch_error"
	ErrorTypeRender        = "render_error"
	ErrorTypeDelivery      = "delivery_error"
	ErrorTypeDatabase      = "database_error"
	ErrorTypeTimeout       = "timeout_error"
	ErrorTypeInternal      = "internal_error"
)

// LogFields provides a builder pattern for structured log fields
type LogFields map[string]any

// NewFields creates a new LogFields instance
func NewFields() LogFields {
	return make(LogFields)
}

// WithComponent adds component field
func (f LogFields) WithComponent(component string) LogFields {
	f[FieldComponent] = component
	return f
}

// WithRunID adds the report run identifier
func (f LogFields) WithRunID(runID string) LogFields {
	f[FieldRunID] = runID
	return f
}

// WithError adds error field
func (f LogFields) WithError(err error) LogFields {
	if err != nil {
		f[FieldError] = err.Error()
	}
	return f
}

// WithErrorType adds the error category
func (f LogFields) WithErrorType(kind string) LogFields {
	f[FieldErrorType] = kind
	return f
}

// WithOperation adds operation field
func (f LogFields) WithOperation(op string) LogFields {
	f[FieldOperation] = op
	return f
}

// WithPeriod adds the reporting period key and label
func (f LogFields) WithPeriod(key, label string) LogFields {
	f[FieldPeriod] = key
	f[FieldPeriodLabel] = label
	return f
}

// WithRecords adds record count and grand total
func (f LogFields) WithRecords(count int, grandTotal string) LogFields {
	f[FieldRecordCount] = count
	f[FieldGrandTotal] = grandTotal
	return f
}

// WithHTTPResponse adds HTTP response fields
func (f LogFields) WithHTTPResponse(statusCode int, durationMs int64, success bool) LogFields {
	f[FieldStatusCode] = statusCode
	f[FieldDuration] = durationMs
	f[FieldSuccess] = success
	return f
}

// ToSlice converts LogFields to a slice for slog
func (f LogFields) ToSlice() []any {
	slice := make([]any, 0, len(f)*2)
	for k, v := range f {
		slice = append(slice, k, v)
	}
	return slice
}
