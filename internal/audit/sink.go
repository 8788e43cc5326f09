package audit

import (
	"context"
	"errors"
	"log/slog"
)

// Sink persists audit records. Implementations are append-only and must not retry
// internally; the recorder dead-letters anything a sink rejects.
//
//go:generate mockgen -source=sink.go -destination=mocks/sink_mock.go -package=mocks
type Sink interface {
	Emit(ctx context.Context, record Record) error
}

// FanoutSink writes every record to each sink in order. All sinks are attempted;
// their errors are joined.
type FanoutSink struct {
	sinks []Sink
}

// NewFanoutSink skips nil sinks so optional backends can be passed unconditionally.
func NewFanoutSink(sinks ...Sink) *FanoutSink {
	f := &FanoutSink{}
	for _, s := range sinks {
		if s != nil {
			f.sinks = append(f.sinks, s)
		}
	}
	return f
}

func (f *FanoutSink) Emit(ctx context.Context, record Record) error {
	var errs []error
	for _, s := range f.sinks {
		if err := s.Emit(ctx, record); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// LogSink writes records to a structured log stream for a log aggregator to collect.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink tags every entry with log_type=audit.
func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{logger: logger.With("log_type", "audit")}
}

func (s *LogSink) Emit(ctx context.Context, record Record) error {
	s.logger.InfoContext(ctx, "audit record", "record", record)
	return nil
}
