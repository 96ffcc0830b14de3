package log

// Field names shared by every component
const (
	FieldComponent  = "component"
	FieldRequestID  = "request_id"
	FieldClientIP   = "client_ip"
	FieldMethod     = "method"
	FieldPath       = "path"
	FieldStatusCode = "status_code"
	FieldDuration   = "duration_ms"
	FieldUserAgent  = "user_agent"
	FieldSuccess    = "success"
	FieldError      = "error"
	FieldErrorType  = "error_type"
	FieldOperation  = "operation"
	FieldAttempt    = "attempt"
	FieldAccountID  = "account_id"
	FieldProjectID  = "project_id"
	FieldAmount     = "amount"
	FieldBalance    = "balance"
	FieldCurrent    = "current_investment"
	FieldConnID     = "conn_id"
	FieldPeers      = "peers"
	FieldEvent      = "event"
	FieldSheetsRef  = "sheets_ref"
)

// Component names
const (
	ComponentApp      = "app"
	ComponentHTTP     = "http"
	ComponentLedger   = "ledger"
	ComponentRealtime = "realtime"
	ComponentStorage  = "storage"
	ComponentAMQP     = "amqp"
	ComponentWorker   = "worker"
	ComponentSheets   = "sheets"
	ComponentCache    = "cache"
	ComponentSecurity = "security"
	ComponentBackend  = "backend"
	ComponentAuth     = "auth"
)

// Ledger operations
const (
	OpInvest = "invest"
	OpTopUp  = "top_up"
)

// Error categories for FieldErrorType
const (
	ErrorTypeConfiguration = "configuration_error"
	ErrorTypeConflict      = "conflict_error"
)

// LogFields collects attributes before handing them to slog.
type LogFields map[string]any

func NewFields() LogFields {
	return make(LogFields)
}

// WithError adds the error text; nil is skipped.
func (f LogFields) WithError(err error) LogFields {
	if err != nil {
		f[FieldError] = err.Error()
	}
	return f
}

func (f LogFields) WithOperation(op string) LogFields {
	f[FieldOperation] = op
	return f
}

// WithTransfer adds the parties and amount of a ledger movement. An empty
// projectID is omitted.
func (f LogFields) WithTransfer(accountID, projectID, amount string) LogFields {
	f[FieldAccountID] = accountID
	if projectID != "" {
		f[FieldProjectID] = projectID
	}
	f[FieldAmount] = amount
	return f
}

// WithBalances adds the post-transfer wallet balance and, when set, the
// project's committed total.
func (f LogFields) WithBalances(balance, current string) LogFields {
	f[FieldBalance] = balance
	if current != "" {
		f[FieldCurrent] = current
	}
	return f
}

// ToSlice flattens the fields into slog key/value pairs.
func (f LogFields) ToSlice() []any {
	slice := make([]any, 0, len(f)*2)
	for k, v := range f {
		slice = append(slice, k, v)
	}
	return slice
}
