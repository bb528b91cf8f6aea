package mcp

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// WriteTools and ReadTools classify every exposed MCP tool name into the
// rate class it draws from; ExemptTools bypass rate limiting entirely
// (read-only introspection, cheap enough not to matter).
var (
	WriteTools = map[string]bool{
		"write": true, "propose": true, "import": true,
		"consolidate": true, "sync": true, "reindex": true,
	}
	ReadTools = map[string]bool{
		"recall": true, "search": true, "read": true,
		"export": true, "inspect": true, "ask": true, "loop": true,
	}
	ExemptTools = map[string]bool{
		"stats": true, "mount": true,
	}
)

// ToolClass is the rate-limiting bucket a tool name falls into.
type ToolClass string

const (
	ClassWrite  ToolClass = "write"
	ClassRead   ToolClass = "read"
	ClassExempt ToolClass = "exempt"
)

// ClassifyTool returns which bucket a tool name belongs to.
func ClassifyTool(name string) ToolClass {
	if ExemptTools[name] {
		return ClassExempt
	}
	if WriteTools[name] {
		return ClassWrite
	}
	return ClassRead
}

// RateLimiter enforces a per-session token bucket for write and read
// tool classes, with bursts capped at twice the steady rate.
type RateLimiter struct {
	mu           sync.Mutex
	writeLimiters map[string]*rate.Limiter
	readLimiters  map[string]*rate.Limiter
	writeRPS     rate.Limit
	readRPS      rate.Limit
}

// NewRateLimiter builds a limiter with the given steady-state rates, in
// events per second.
func NewRateLimiter(writePerSec, readPerSec float64) *RateLimiter {
	return &RateLimiter{
		writeLimiters: map[string]*rate.Limiter{},
		readLimiters:  map[string]*rate.Limiter{},
		writeRPS:      rate.Limit(writePerSec),
		readRPS:       rate.Limit(readPerSec),
	}
}

func (rl *RateLimiter) bucket(m map[string]*rate.Limiter, sessionID string, rps rate.Limit) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	l, ok := m[sessionID]
	if !ok {
		l = rate.NewLimiter(rps, int(rps*2)+1)
		m[sessionID] = l
	}
	return l
}

// CheckWrite consumes one write-class token for the session.
func (rl *RateLimiter) CheckWrite(sessionID string) bool {
	return rl.bucket(rl.writeLimiters, sessionID, rl.writeRPS).Allow()
}

// CheckWriteN consumes n write-class tokens at once (e.g. a batch
// import), failing the whole call if not all n are available.
func (rl *RateLimiter) CheckWriteN(sessionID string, n int) bool {
	return rl.bucket(rl.writeLimiters, sessionID, rl.writeRPS).AllowN(time.Now(), n)
}

// CheckRead consumes one read-class token for the session.
func (rl *RateLimiter) CheckRead(sessionID string) bool {
	return rl.bucket(rl.readLimiters, sessionID, rl.readRPS).Allow()
}

// CheckProposals rate-limits a batch of proposals the same way a write
// batch is rate-limited.
func (rl *RateLimiter) CheckProposals(sessionID string, n int) bool {
	return rl.CheckWriteN(sessionID, n)
}

// ResetTurn clears accumulated tokens back to full for a new turn —
// used when the caller wants a clean per-turn budget rather than a
// rolling window.
func (rl *RateLimiter) ResetTurn(sessionID string) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	delete(rl.writeLimiters, sessionID)
	delete(rl.readLimiters, sessionID)
}
