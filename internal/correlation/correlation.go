package correlation

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Context describes one logical operation. Contexts nest: a child opened
// under an active context inherits its ID as ParentID. The active context
// rides on context.Context, so scope exit (and unwinding) restores the
// previous one for free.
type Context struct {
	ID        string
	ParentID  string
	Operation string
	Provider  string
	StartTime time.Time
	Metadata  map[string]string
}

type ctxKey struct{}

// NewID returns a fresh 8-character hex correlation ID.
func NewID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

// Start opens a correlation context for an operation and returns the derived
// context.Context carrying it.
func Start(ctx context.Context, operation, provider string) (context.Context, *Context) {
	cc := &Context{
		ID:        NewID(),
		Operation: operation,
		Provider:  provider,
		StartTime: time.Now().UTC(),
	}
	if parent := FromContext(ctx); parent != nil {
		cc.ParentID = parent.ID
	}
	return context.WithValue(ctx, ctxKey{}, cc), cc
}

// FromContext returns the active correlation context, or nil.
func FromContext(ctx context.Context) *Context {
	cc, _ := ctx.Value(ctxKey{}).(*Context)
	return cc
}

// ActiveID returns the active correlation ID, or "" outside any context.
func ActiveID(ctx context.Context) string {
	if cc := FromContext(ctx); cc != nil {
		return cc.ID
	}
	return ""
}

// Logger decorates a zerolog logger with the active correlation fields so
// every line in the operation's scope carries them.
func Logger(ctx context.Context, base zerolog.Logger) zerolog.Logger {
	cc := FromContext(ctx)
	if cc == nil {
		return base
	}
	lc := base.With().Str("correlation_id", cc.ID).Str("operation", cc.Operation)
	if cc.ParentID != "" {
		lc = lc.Str("parent_id", cc.ParentID)
	}
	if cc.Provider != "" {
		lc = lc.Str("provider", cc.Provider)
	}
	return lc.Logger()
}
