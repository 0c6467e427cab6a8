package model

import "time"

// OutputStyle selects how segments are joined into the final text.
type OutputStyle string

const (
	// OutputStyleLabeled prefixes each segment with "--- label ---".
	OutputStyleLabeled OutputStyle = "labeled"
	// OutputStylePlain joins segment bodies without labels.
	OutputStylePlain OutputStyle = "plain"
)

// Valid reports whether s is a known output style.
func (s OutputStyle) Valid() bool {
	return s == OutputStyleLabeled || s == OutputStylePlain
}

// Severity of a diagnostic message.
type Severity string

const (
	SeverityInfo  Severity = "info"
	SeverityWarn  Severity = "warn"
	SeverityError Severity = "error"
)

// Diagnostic message codes. Messages are non-fatal by construction: every
// failure inside rendering or resolution degrades to one of these instead
// of aborting the pipeline.
const (
	CodeCycleDetected         = "cycle_detected"
	CodeMissingVariable       = "missing_variable"
	CodeVariableStatic        = "variable_static"
	CodeVariableResolved      = "variable_resolved"
	CodeVariableResolveFailed = "variable_resolve_failed"
	CodeLocalFallback         = "local_fallback"
)

// Resolver error codes, attached under the "errorCode" detail of a
// variable_resolve_failed message. The set is fixed; unrecognized backend
// failures classify as "unknown".
const (
	ErrCodeResolverMissing   = "resolver_missing"
	ErrCodeConnectFailed     = "connect_failed"
	ErrCodeInvalidURL        = "invalid_url"
	ErrCodeDecryptFailed     = "decrypt_failed"
	ErrCodeSQLiteOpenFailed  = "sqlite_open_failed"
	ErrCodeUnsupportedScheme = "unsupported_scheme"
	ErrCodeFeatureNotEnabled = "feature_not_enabled"
	ErrCodeReadonlyRequired  = "readonly_required"
	ErrCodeUnknown           = "unknown"
)

// Message is a non-fatal diagnostic attached to a segment or a whole trace.
type Message struct {
	Severity Severity       `json:"severity"`
	Code     string         `json:"code"`
	Message  string         `json:"message"`
	Details  map[string]any `json:"details,omitempty"`
}

// Segment is the rendered output and diagnostics for one context node.
type Segment struct {
	NodeID           string    `json:"nodeId"`
	Label            string    `json:"label"`
	Kind             NodeKind  `json:"kind"`
	Template         string    `json:"template"`
	Rendered         string    `json:"rendered"`
	MissingVariables []string  `json:"missingVariables"`
	Messages         []Message `json:"messages"`
}

// TraceRun is the full result of one render: ordered segments, the joined
// final text, and all diagnostics. Immutable once produced.
type TraceRun struct {
	RunID       string      `json:"runId"`
	CreatedAt   time.Time   `json:"createdAt"`
	OutputStyle OutputStyle `json:"outputStyle"`
	Text        string      `json:"text"`
	Segments    []Segment   `json:"segments"`
	Messages    []Message   `json:"messages"`
}

// MissingVariableCount returns the number of distinct variable names
// reported missing across all segments of the trace.
func (t TraceRun) MissingVariableCount() int {
	set := map[string]bool{}
	for _, seg := range t.Segments {
		for _, name := range seg.MissingVariables {
			if name != "" {
				set[name] = true
			}
		}
	}
	return len(set)
}
