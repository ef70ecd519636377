package recovery

import (
	"context"
	"fmt"
	"runtime/debug"

	"github.com/getsentry/sentry-go"
)

// PanicCallback receives the recovered value and stack of a panic.
type PanicCallback func(recovered interface{}, stack []byte)

var onPanic PanicCallback

// SetPanicCallback installs a process-wide panic callback, typically used
// to bump a recovered-panics counter.
func SetPanicCallback(fn PanicCallback) {
	onPanic = fn
}

func report(recovered interface{}, stack []byte) {
	fmt.Printf("PANIC in goroutine: %v\n%s", recovered, stack)

	if onPanic != nil {
		onPanic(recovered, stack)
	}

	if sentry.CurrentHub() != nil {
		sentry.WithScope(func(scope *sentry.Scope) {
			scope.SetLevel(sentry.LevelFatal)
			scope.SetContext("goroutine", map[string]interface{}{
				"recovered": recovered,
				"stack":     string(stack),
			})
			sentry.CaptureException(fmt.Errorf("goroutine panic: %v", recovered))
		})
	}
}

// SafeGo runs a goroutine with panic recovery
func SafeGo(fn func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				report(r, debug.Stack())
			}
		}()

		fn()
	}()
}

// SafeGoWithContext runs a goroutine with panic recovery and context
func SafeGoWithContext(ctx context.Context, fn func(context.Context)) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				report(r, debug.Stack())
			}
		}()

		fn(ctx)
	}()
}
