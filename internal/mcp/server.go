package mcp

import (
	"context"
	"fmt"
	"time"

	"github.com/memctl/memctl/internal/errs"
)

// ToolFunc is a tool handler, after all middleware has run.
type ToolFunc func(ctx context.Context, sessionID string, args map[string]any) (any, error)

// auditDetail lets a tool handler's result attach its own structured
// audit detail (e.g. MakeContentDetail's hash+preview block) instead of
// the generic "ok" audit record falling back to nil detail.
type auditDetail interface {
	AuditDetail() map[string]any
}

// Server registers tools and runs every call through the fixed
// guard -> session -> rate-limit -> execute -> audit middleware chain
// (spec.md section 4.14).
type Server struct {
	Guard   *Guard
	Limiter *RateLimiter
	Audit   *AuditLogger
	Tracker *SessionTracker
	DBPath  string // db path served; re-validated against Guard on every call

	tools map[string]ToolFunc
}

// NewServer wires the middleware dependencies into a ready-to-register
// server. dbPath is the database path this server serves; it is
// re-checked against guard.ValidateDBPath on every call.
func NewServer(guard *Guard, limiter *RateLimiter, audit *AuditLogger, dbPath string) *Server {
	return &Server{
		Guard: guard, Limiter: limiter, Audit: audit, DBPath: dbPath,
		Tracker: NewSessionTracker(), tools: map[string]ToolFunc{},
	}
}

// Register adds a tool handler under name.
func (s *Server) Register(name string, fn ToolFunc) {
	s.tools[name] = fn
}

// Call runs the full middleware chain around one tool invocation: the
// path guard -> session resolution -> rate limiting by the tool's class
// -> the handler itself -> a fire-and-forget audit record, in that
// fixed order.
func (s *Server) Call(ctx context.Context, ctxSessionID, tool string, args map[string]any) (any, error) {
	start := time.Now()
	rid := NewRID()
	sessionID := ResolveSessionID(ctxSessionID)

	resolved, err := s.Guard.ValidateDBPath(s.DBPath)
	if err != nil {
		s.audit(rid, sessionID, tool, "blocked", s.DBPath, time.Since(start), map[string]any{"reason": "path_guard", "error": err.Error()})
		return nil, err
	}
	dbRel := s.Guard.RelativeDBPath(resolved)

	session := s.Tracker.GetOrCreate(sessionID)
	session.IncrementTurn()

	class := ClassifyTool(tool)
	switch class {
	case ClassWrite:
		if !s.Limiter.CheckWrite(sessionID) {
			s.audit(rid, sessionID, tool, "blocked", dbRel, time.Since(start), map[string]any{"reason": "rate_limited"})
			return nil, fmt.Errorf("rate limit exceeded for write tool %q", tool)
		}
	case ClassRead:
		if !s.Limiter.CheckRead(sessionID) {
			s.audit(rid, sessionID, tool, "blocked", dbRel, time.Since(start), map[string]any{"reason": "rate_limited"})
			return nil, fmt.Errorf("rate limit exceeded for read tool %q", tool)
		}
	}

	handler, ok := s.tools[tool]
	if !ok {
		s.audit(rid, sessionID, tool, "error", dbRel, time.Since(start), map[string]any{"reason": "unknown_tool"})
		return nil, fmt.Errorf("unknown tool %q", tool)
	}

	result, err := handler(ctx, sessionID, args)
	if err != nil {
		outcome := "error"
		if ae, ok := errs.As(err); ok {
			outcome = ae.Kind.MCPOutcome()
		}
		s.audit(rid, sessionID, tool, outcome, dbRel, time.Since(start), map[string]any{"error": err.Error()})
		return nil, err
	}

	if class == ClassWrite {
		session.RecordWrite()
	}
	var detail map[string]any
	if ad, ok := result.(auditDetail); ok {
		detail = ad.AuditDetail()
	}
	s.audit(rid, sessionID, tool, "ok", dbRel, time.Since(start), detail)
	return result, nil
}

func (s *Server) audit(rid, sessionID, tool, outcome, dbPath string, elapsed time.Duration, detail map[string]any) {
	s.Audit.Log(AuditRecord{
		RequestID: rid, SessionID: sessionID, Tool: tool, Outcome: outcome,
		DBPath: dbPath, ElapsedMs: elapsed.Milliseconds(),
		Timestamp: time.Now(), Detail: detail,
	})
}
