package utils

import (
	"context"
	"log"
	"runtime/debug"

	"k-stock-insight/pkg/logger"
)

// GoSafe runs fn in a new goroutine and recovers from panics.
func GoSafe(fn func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				log.Printf("recovered from panic: %v\n%s", r, debug.Stack())
			}
		}()
		fn()
	}()
}

// ShouldContinue reports whether ctx is still live. Loops call it between items.
func ShouldContinue(ctx context.Context, log *logger.Logger) bool {
	select {
	case <-ctx.Done():
		if log != nil {
			log.Info("Context done, stopping loop", logger.ErrorField(ctx.Err()))
		}
		return false
	default:
		return true
	}
}

func ToPointer[T any](v T) *T {
	return &v
}
