package logx

import (
	"context"
	"fmt"
	"log/slog"
	"os"
)

const (
	// EcoSystemLoggingKey is the name of the logging key used to store the current ecosystem.
	EcoSystemLoggingKey = "eco"
	// SubsystemLoggingKey is the name of the logging key used to store the current subsystem.
	SubsystemLoggingKey = "sub"
	// AreaLoggingKey is the name of the logging key used to store the functional area.
	AreaLoggingKey = "loc"
	// CaseLoggingKey is the name of the logging key used to store the case id.
	CaseLoggingKey = "case_id"
)

// Err will output an error message to the log and return the error with
// additional attributes.
func Err(ctx context.Context, message string, err error, atts ...any) error {
	l := FromContext(ctx)
	if l.Enabled(ctx, slog.LevelError) {
		l.Error(message, append([]any{slog.Any("error", err)}, atts...)...)
	}
	return fmt.Errorf(message+": %w", err)
}

// SetDefault installs the process-wide default logger.
func SetDefault(level slog.Level, addSource bool, ecosystem string) {
	o := &slog.HandlerOptions{
		AddSource: addSource,
		Level:     level,
	}
	h := slog.NewTextHandler(os.Stdout, o)
	slog.SetDefault(slog.New(h).With(slog.String(EcoSystemLoggingKey, ecosystem)))
}

type contextLoggerKey string

var ctxLogKey contextLoggerKey = "__log"

// ContextWith obtains a new logger with an area parameter.  Typically it
// should be used when obtaining a logger within a programmatic boundary.
func ContextWith(ctx context.Context, area string) (context.Context, *slog.Logger) {
	logger := FromContext(ctx).With(AreaLoggingKey, area)
	return NewContext(ctx, logger), logger
}

// NewContext creates a new context with the specified logger.
func NewContext(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, ctxLogKey, logger)
}

// FromContext obtains a logger from the context or takes the default logger.
func FromContext(ctx context.Context) *slog.Logger {
	l := ctx.Value(ctxLogKey)
	if l == nil {
		return slog.Default()
	}
	return l.(*slog.Logger)
}
