package log

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync/atomic"

	"github.com/davecgh/go-spew/spew"
	"github.com/fatih/color"
)

type ctxKey string

const contextKeyRequestID ctxKey = "request_id"

var (
	out   io.Writer = os.Stdout
	debug atomic.Bool

	infoLabel  = color.New(color.FgWhite, color.BgGreen).SprintFunc()
	warnLabel  = color.New(color.FgBlack, color.BgYellow).SprintFunc()
	errorLabel = color.New(color.FgRed).SprintFunc()
	debugLabel = color.New(color.FgCyan).SprintFunc()
)

// SetOutput redirects all log lines. A nil writer restores stdout.
func SetOutput(w io.Writer) {
	if w == nil {
		w = os.Stdout
	}
	out = w
}

// SetDebug toggles Debug and Dump output.
func SetDebug(enabled bool) {
	debug.Store(enabled)
}

// WithRequestID adds request ID to context for logging
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, contextKeyRequestID, requestID)
}

func requestID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if id, ok := ctx.Value(contextKeyRequestID).(string); ok {
		return id
	}
	return ""
}

func write(label string, reqID string, format string, a ...interface{}) {
	msg := fmt.Sprintf(format, a...)
	if reqID != "" {
		fmt.Fprintf(out, "%s [req_id=%s] %s\n", label, reqID, msg)
		return
	}
	fmt.Fprintf(out, "%s %s\n", label, msg)
}

// Info log information
func Info(format string, a ...interface{}) {
	write(infoLabel("[INFO] "), "", format, a...)
}

// InfoWithContext logs information with the request ID carried by ctx
func InfoWithContext(ctx context.Context, format string, a ...interface{}) {
	write(infoLabel("[INFO] "), requestID(ctx), format, a...)
}

// Warn log warning
func Warn(format string, a ...interface{}) {
	write(warnLabel("[WARN] "), "", format, a...)
}

func WarnWithContext(ctx context.Context, format string, a ...interface{}) {
	write(warnLabel("[WARN] "), requestID(ctx), format, a...)
}

// Error log error
func Error(format string, a ...interface{}) {
	write(errorLabel("[Error]"), "", format, a...)
}

func ErrorWithContext(ctx context.Context, format string, a ...interface{}) {
	write(errorLabel("[Error]"), requestID(ctx), format, a...)
}

// Debug is silent unless SetDebug(true) was called.
func Debug(format string, a ...interface{}) {
	if !debug.Load() {
		return
	}
	write(debugLabel("[DEBUG]"), "", format, a...)
}

// Dump pretty-prints values when debug output is enabled.
func Dump(a ...interface{}) {
	if !debug.Load() {
		return
	}
	fmt.Fprint(out, spew.Sdump(a...))
}
