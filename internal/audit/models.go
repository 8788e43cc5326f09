package audit

import (
	"time"
)

// Action is the classified operation a request performed.
type Action string

const (
	ActionCreate Action = "create"
	ActionRead   Action = "read"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
	ActionLogin  Action = "login"
	ActionLogout Action = "logout"
	ActionExport Action = "export"
	ActionPrint  Action = "print"
)

// Record is one append-only audit entry. Exactly one is emitted per observed request.
// It never carries PHI values: only field names, identifiers and sanitised metadata.
type Record struct {
	ID             string         `json:"id"`
	Timestamp      time.Time      `json:"timestamp"`
	PrincipalID    string         `json:"principal_id,omitempty"`
	Role           string         `json:"role,omitempty"`
	SessionID      string         `json:"session_id,omitempty"`
	RequestID      string         `json:"request_id,omitempty"`
	TraceID        string         `json:"trace_id,omitempty"`
	ClientIP       string         `json:"client_ip,omitempty"`
	UserAgent      string         `json:"user_agent,omitempty"`
	Method         string         `json:"method"`
	Endpoint       string         `json:"endpoint"`
	ResourceType   string         `json:"resource_type,omitempty"`
	ResourceID     string         `json:"resource_id,omitempty"`
	Action         Action         `json:"action"`
	PHIAccessed    bool           `json:"phi_accessed"`
	DetectedFields []string       `json:"detected_fields"`
	StatusCode     int            `json:"status_code"`
	Success        bool           `json:"success"`
	ErrorCode      string         `json:"error_code,omitempty"`
	ErrorMessage   string         `json:"error_message,omitempty"`
	StackTrace     string         `json:"stack_trace,omitempty"`
	Latency        time.Duration  `json:"latency_ns"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

// Metadata keys attached to records.
const (
	MetaStatusCode  = "status_code"
	MetaRecordCount = "record_count"
	MetaQuery       = "query"
	MetaBrowser     = "browser"
	MetaOS          = "os"
	MetaBot         = "bot"
	MetaMobile      = "mobile"
)
