package mcp

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
)

// AuditSchemaVersion is stamped into every audit record.
const AuditSchemaVersion = 1

// PreviewMaxChars bounds how much raw content an audit record may quote
// verbatim — full content is never written to the audit log, only a
// hash and a short preview (spec.md section 4.14's privacy rule).
const PreviewMaxChars = 120

// AuditRecord is one line of the JSONL audit log.
type AuditRecord struct {
	SchemaVersion int            `json:"schema_version"`
	RequestID     string         `json:"request_id"`
	SessionID     string         `json:"session_id"`
	Tool          string         `json:"tool"`
	Outcome       string         `json:"outcome"`
	DBPath        string         `json:"db_path,omitempty"`
	ElapsedMs     int64          `json:"elapsed_ms"`
	Timestamp     time.Time      `json:"timestamp"`
	Detail        map[string]any `json:"detail,omitempty"`
}

// AuditLogger writes fire-and-forget JSONL audit records — a failed
// write is swallowed rather than surfaced, since audit logging must
// never block or fail a tool call.
type AuditLogger struct {
	mu sync.Mutex
	w  io.Writer
}

// NewAuditLogger wraps an io.Writer (normally an append-only file) as an
// audit sink.
func NewAuditLogger(w io.Writer) *AuditLogger {
	return &AuditLogger{w: w}
}

// NewRID mints a fresh request id for one tool invocation.
func NewRID() string {
	return uuid.NewString()
}

// Log appends one audit record; any write error is swallowed.
func (a *AuditLogger) Log(rec AuditRecord) {
	if a == nil || a.w == nil {
		return
	}
	rec.SchemaVersion = AuditSchemaVersion
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}
	b, err := json.Marshal(rec)
	if err != nil {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	_, _ = a.w.Write(append(b, '\n'))
}

// MakeContentDetail builds the hash+preview+length detail block for
// audit records that touch item content — never the raw content itself.
func MakeContentDetail(content string) map[string]any {
	sum := sha256.Sum256([]byte(content))
	preview := content
	truncated := false
	if len(preview) > PreviewMaxChars {
		preview = preview[:PreviewMaxChars] + "…"
		truncated = true
	}
	return map[string]any{
		"content_hash":    hex.EncodeToString(sum[:]),
		"content_preview": preview,
		"truncated":       truncated,
		"byte_length":     len(content),
	}
}
