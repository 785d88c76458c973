package ports

import (
	"context"
	"time"

	"github.com/swapmaker/swapmaker/internal/domain"
)

// AuditLog persists the engine's order and halt history. The engine treats a
// nil AuditLog as disabled and all writes as best-effort.
type AuditLog interface {
	// RecordOrder stores a freshly signed open order.
	RecordOrder(ctx context.Context, order domain.OpenOrder) error

	// MarkOrderClosed records why an open order left the books
	// ("expired" or "cancelled").
	MarkOrderClosed(ctx context.Context, signature, reason string, at time.Time) error

	// RecordHalt stores a circuit-breaker or rights halt with its reason.
	RecordHalt(ctx context.Context, reason string, at time.Time) error

	// RecordCycle stores the lightweight per-iteration summary.
	RecordCycle(ctx context.Context, summary domain.CycleSummary) error
}
