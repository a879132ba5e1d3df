package logging

import (
	"context"
	"log/slog"
)

type contextKey string

const (
	sweepIDKey   contextKey = "sweep_id"
	panelIDKey   contextKey = "panel_id"
	requestIDKey contextKey = "request_id"
)

// WithSweepID tags ctx with the id of the running sweep.
func WithSweepID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, sweepIDKey, id)
}

// SweepID returns the sweep id from ctx, or "".
func SweepID(ctx context.Context) string {
	id, _ := ctx.Value(sweepIDKey).(string)
	return id
}

// WithPanelID tags ctx with the panel being processed.
func WithPanelID(ctx context.Context, id int64) context.Context {
	return context.WithValue(ctx, panelIDKey, id)
}

// PanelID returns the panel id from ctx and whether it was set.
func PanelID(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(panelIDKey).(int64)
	return id, ok
}

// WithRequestID tags ctx with an operator API request id.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestID returns the request id from ctx, or "".
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

func contextFields(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	var fields []slog.Attr
	if id := SweepID(ctx); id != "" {
		fields = append(fields, slog.String(string(sweepIDKey), id))
	}
	if id, ok := PanelID(ctx); ok {
		fields = append(fields, slog.Int64(string(panelIDKey), id))
	}
	if id := RequestID(ctx); id != "" {
		fields = append(fields, slog.String(string(requestIDKey), id))
	}
	return fields
}
