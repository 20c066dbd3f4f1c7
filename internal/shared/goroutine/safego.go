// Package goroutine launches background work that must never crash the process.
package goroutine

import (
	"fmt"
	"runtime/debug"

	"github.com/bookwise-inc/bookwise/internal/shared/logger"
)

// SafeGo runs fn in a new goroutine and logs a panic instead of propagating it.
func SafeGo(log logger.Interface, name string, fn func()) {
	go func() {
		defer Recover(log, name)
		fn()
	}()
}

// Recover is deferred by long-lived loops that handle one item at a time,
// so a panic in one item is logged and the loop keeps its goroutine.
func Recover(log logger.Interface, name string) {
	if r := recover(); r != nil {
		log.Errorw("goroutine panicked",
			"goroutine", name,
			"panic", fmt.Sprintf("%v", r),
			"stack", string(debug.Stack()),
		)
	}
}
