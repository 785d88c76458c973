package ports

import "context"

// Notifier surfaces operator-facing messages (halts, shortfalls, stops).
// Fire-and-forget: the engine logs a returned error and moves on, it never
// interprets the result.
type Notifier interface {
	Notify(ctx context.Context, message string) error
}
