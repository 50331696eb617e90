package pipeline

import (
	"context"

	"go.uber.org/zap"
)

// ProgressEvent represents a progress update during pipeline execution
type ProgressEvent struct {
	RunID    string `json:"run_id"`
	Stage    string `json:"stage,omitempty"`
	Category string `json:"category,omitempty"`
	Level    string `json:"level"`
	Message  string `json:"message"`
	Progress int    `json:"progress,omitempty"`
}

// LogSink receives a best-effort stream of progress events. A failing sink
// never affects the run.
type LogSink interface {
	Emit(ctx context.Context, event ProgressEvent) error
}

// ProgressCallback adapts a function to LogSink.
type ProgressCallback func(event ProgressEvent)

// Emit implements LogSink.
func (f ProgressCallback) Emit(_ context.Context, event ProgressEvent) error {
	f(event)
	return nil
}

// emitProgress sends an event to the sink if one is configured.
func emitProgress(ctx context.Context, sink LogSink, logger *zap.Logger, event ProgressEvent) {
	if sink == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			logger.Warn("log sink panicked", zap.Any("panic", r))
		}
	}()
	if err := sink.Emit(ctx, event); err != nil {
		logger.Debug("log sink failed", zap.Error(err))
	}
}
