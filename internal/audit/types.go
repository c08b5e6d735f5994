// Package audit provides structured, write-only audit logging for
// tool-related security events: invocation, outcome, sanitization, and
// scope rejection.
package audit

import "time"

// EventKind categorizes an audit event.
type EventKind string

const (
	EventToolCall        EventKind = "TOOL_CALL"
	EventToolCallSuccess EventKind = "TOOL_CALL_SUCCESS"
	EventToolCallFailure EventKind = "TOOL_CALL_FAILURE"
	EventInputSanitized  EventKind = "INPUT_SANITIZED"
	EventScopeRejected   EventKind = "SCOPE_REJECTED"
)

// Event is a single audit log entry.
type Event struct {
	Timestamp       time.Time      `json:"timestamp"`
	Kind            EventKind      `json:"event_kind"`
	User            string         `json:"user"` // "anon" when unauthenticated
	ToolName        string         `json:"tool_name,omitempty"`
	RedactedArgs    map[string]any `json:"redacted_args,omitempty"`
	TruncatedResult string         `json:"truncated_result,omitempty"`
	Error           string         `json:"error,omitempty"`
	SanitizedFields []string       `json:"sanitized_fields,omitempty"`
	Metadata        map[string]any `json:"metadata,omitempty"`
}

// OutputFormat specifies the audit log's on-wire format.
type OutputFormat string

const (
	FormatJSON OutputFormat = "json"
	FormatText OutputFormat = "text"
)

// Config configures the audit logger.
type Config struct {
	Enabled bool         `json:"enabled" yaml:"enabled"`
	Format  OutputFormat `json:"format" yaml:"format"`
	// Output is "stdout", "stderr", or "file:/path/to/file.log".
	Output string `json:"output" yaml:"output"`
	// MaxResultSize truncates TruncatedResult payloads logged for
	// TOOL_CALL_SUCCESS/TOOL_CALL_FAILURE (~1000 chars by default).
	MaxResultSize int `json:"max_result_size" yaml:"max_result_size"`
	BufferSize    int `json:"buffer_size" yaml:"buffer_size"`
}

// DefaultConfig returns sane defaults for local development.
func DefaultConfig() Config {
	return Config{
		Enabled:       true,
		Format:        FormatJSON,
		Output:        "stdout",
		MaxResultSize: 1000,
		BufferSize:    1000,
	}
}
