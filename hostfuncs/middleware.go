package hostfuncs

import (
	"context"
	"log/slog"
)

// Middleware wraps a host function handler to add cross-cutting behavior.
// The wrapped function's export name is passed so middleware can attribute
// calls without a shared lookup.
type Middleware func(name string, next Handler) Handler

// RegistryOption is a functional option for configuring a Registry.
type RegistryOption func(*registryBuilder)

// PanicRecoveryMiddleware returns a middleware that catches panics in host
// functions and zeroes the result slots instead of crashing the host. A
// panicking host function must not take down the process; the guest observes
// zero results.
func PanicRecoveryMiddleware(logger *slog.Logger) Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	return func(name string, next Handler) Handler {
		return func(ctx context.Context, stack []uint64) {
			defer func() {
				if r := recover(); r != nil {
					logger.ErrorContext(ctx, "host function panicked", "function", name, "panic", r)
					for i := range stack {
						stack[i] = 0
					}
				}
			}()
			next(ctx, stack)
		}
	}
}

// LoggingMiddleware returns a middleware that logs host function invocations
// at debug level.
func LoggingMiddleware(logger *slog.Logger) Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	return func(name string, next Handler) Handler {
		return func(ctx context.Context, stack []uint64) {
			logger.DebugContext(ctx, "invoking host function", "function", name)
			next(ctx, stack)
		}
	}
}
