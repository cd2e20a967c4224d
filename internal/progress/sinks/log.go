package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/JakeFAU/docmeta-crawler/internal/progress"
)

// LogSink emits structured logs for each progress event. Page successes are
// logged at debug level so large runs stay readable.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink wires a Zap logger to the sink interface.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Consume logs each event in the batch using structured fields.
func (s *LogSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		fields := []zap.Field{
			zap.Stringer("run_id", evt.RunUUID()),
			zap.String("stage", string(evt.Stage)),
		}
		switch evt.Stage {
		case progress.StagePageDone:
			fields = append(fields,
				zap.String("url", evt.URL),
				zap.Int("batch", evt.Batch),
				zap.Duration("dur", evt.Dur),
			)
			s.logger.Debug("progress event", fields...)
			continue
		case progress.StagePageFailed:
			fields = append(fields,
				zap.String("url", evt.URL),
				zap.Int("batch", evt.Batch),
				zap.String("failure", evt.Failure),
				zap.String("note", evt.Note),
			)
		case progress.StageBatchDone:
			fields = append(fields,
				zap.Int("batch", evt.Batch),
				zap.Int("records", evt.Records),
				zap.Duration("dur", evt.Dur),
			)
		default:
			fields = append(fields,
				zap.Int("total", evt.Total),
				zap.Int("records", evt.Records),
				zap.Duration("dur", evt.Dur),
			)
		}
		s.logger.Info("progress event", fields...)
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *LogSink) Close(context.Context) error {
	return nil
}
