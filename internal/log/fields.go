package log

// Common field names for structured logging
const (
	FieldComponent     = "component"
	FieldRequestID     = "request_id"
	FieldClientIP      = "client_ip"
	FieldMethod        = "method"
	FieldPath          = "path"
	FieldQuery         = "query"
	FieldStatusCode    = "status_code"
	FieldDuration      = "duration_ms"
	FieldDurationHuman = "duration_human"
	FieldUserAgent     = "user_agent"
	FieldSuccess       = "success"
	FieldError         = "error"
	FieldErrorType     = "error_type"
	FieldOperation     = "operation"
	FieldUserID        = "user_id"
	FieldKind          = "kind"
	FieldEntryID       = "entry_id"
	FieldAmountCents   = "amount_cents"
	FieldEntryDate     = "entry_date"
)

// Components defines standard component names
const (
	ComponentApp       = "app"
	ComponentHTTP      = "http"
	ComponentAuth      = "auth"
	ComponentLedger    = "ledger"
	ComponentStorage   = "storage"
	ComponentAMQP      = "amqp"
	ComponentWorker    = "worker"
	ComponentSheets    = "sheets"
	ComponentCache     = "cache"
	ComponentSecurity  = "security"
	ComponentRateLimit = "rate_limit"
	ComponentTrace     = "trace"
	ComponentBackend   = "backend"
)

// Operations defines standard operation names
const (
	OpCreate   = "create"
	OpUpdate   = "update"
	OpDelete   = "delete"
	OpSummary  = "summary"
	OpSignUp   = "sign_up"
	OpSignIn   = "sign_in"
	OpSignOut  = "sign_out"
	OpPublish  = "publish"
	OpSync     = "sync"
	OpShutdown = "shutdown"
	OpStartup  = "startup"
)

// ErrorTypes defines standard error type categories
const (
	ErrorTypeValidation    = "validation_error"
	ErrorTypeConfiguration = "configuration_error"
	ErrorTypeDatabase      = "database_error"
	ErrorTypeNetwork       = "network_error"
	ErrorTypeAuth          = "auth_error"
	ErrorTypeNotFound      = "not_found_error"
	ErrorTypeConflict      = "conflict_error"
	ErrorTypeInternal      = "internal_error"
)

// LogFields builds slog key/value pairs in the order they are added.
// Setting a key again replaces its value in place.
type LogFields struct {
	pairs []any
}

func NewFields() *LogFields {
	return &LogFields{}
}

func (f *LogFields) set(key string, value any) {
	for i := 0; i < len(f.pairs); i += 2 {
		if f.pairs[i] == key {
			f.pairs[i+1] = value
			return
		}
	}
	f.pairs = append(f.pairs, key, value)
}

func (f *LogFields) WithRequestID(requestID string) *LogFields {
	if requestID != "" {
		f.set(FieldRequestID, requestID)
	}
	return f
}

func (f *LogFields) WithClientIP(ip string) *LogFields {
	f.set(FieldClientIP, ip)
	return f
}

func (f *LogFields) WithOperation(op string) *LogFields {
	f.set(FieldOperation, op)
	return f
}

func (f *LogFields) WithUser(userID string) *LogFields {
	f.set(FieldUserID, userID)
	return f
}

// WithEntry adds the identifying fields of an income or expense entry.
func (f *LogFields) WithEntry(kind, id string, amountCents int64, date string) *LogFields {
	f.set(FieldKind, kind)
	f.set(FieldEntryID, id)
	f.set(FieldAmountCents, amountCents)
	f.set(FieldEntryDate, date)
	return f
}

func (f *LogFields) WithHTTPRequest(method, path, query, userAgent string) *LogFields {
	f.set(FieldMethod, method)
	f.set(FieldPath, path)
	if query != "" {
		f.set(FieldQuery, query)
	}
	if userAgent != "" {
		f.set(FieldUserAgent, userAgent)
	}
	return f
}

func (f *LogFields) WithHTTPResponse(statusCode int, durationMs int64, durationHuman string) *LogFields {
	f.set(FieldStatusCode, statusCode)
	f.set(FieldDuration, durationMs)
	f.set(FieldDurationHuman, durationHuman)
	f.set(FieldSuccess, statusCode < 400)
	return f
}

// ToSlice returns the pairs for slog in insertion order.
func (f *LogFields) ToSlice() []any {
	return append([]any(nil), f.pairs...)
}
