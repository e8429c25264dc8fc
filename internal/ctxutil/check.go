// Package ctxutil provides context helpers shared across packages.
package ctxutil

import "context"

// Canceled returns the context's error when it has been canceled or has
// exceeded its deadline, and nil otherwise. Store and engine operations
// call this at entry before touching any state.
func Canceled(ctx context.Context) error {
	return ctx.Err()
}
