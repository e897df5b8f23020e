package observability

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"resumatch/internal/stream"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	oteltrace "go.opentelemetry.io/otel/trace"
)

// Stream error kinds recorded on resumatch_stream_errors_total
const (
	ErrorKindFrame     = "frame"
	ErrorKindTruncated = "truncated"
	ErrorKindTransport = "transport"
)

// ErrorKind classifies a terminal stream error
func ErrorKind(err error) string {
	var frameErr *stream.FrameError
	switch {
	case errors.As(err, &frameErr):
		return ErrorKindFrame
	case errors.Is(err, stream.ErrStreamEndedWithoutResult):
		return ErrorKindTruncated
	default:
		return ErrorKindTransport
	}
}

// InstrumentObserver wraps obs so that every frame and the terminal outcome
// are recorded as metrics and on a span named after mode. The returned
// observer delivers to obs unchanged. When telemetry is disabled obs is
// returned as is.
func (om *ObservabilityManager) InstrumentObserver(ctx context.Context, obs stream.Observer, mode string) stream.Observer {
	if !om.Enabled() || om.metrics == nil {
		return obs
	}

	streaming := om.streamingMetricsConfig()
	if !streaming.Enabled {
		return obs
	}

	ctx, span := om.Tracer("resumatch.stream").Start(ctx, "stream."+mode)
	om.metrics.ActiveStreams.Add(ctx, 1, metric.WithAttributes(attribute.String("mode", mode)))

	return &instrumentedObserver{
		ctx:           ctx,
		next:          obs,
		metrics:       om.metrics,
		span:          span,
		mode:          mode,
		start:         time.Now(),
		trackFrames:   streaming.TrackFrames,
		trackDuration: streaming.TrackDuration,
	}
}

type streamingToggles struct {
	Enabled       bool
	TrackFrames   bool
	TrackDuration bool
}

func (om *ObservabilityManager) streamingMetricsConfig() streamingToggles {
	if om.fullConfig == nil {
		return streamingToggles{Enabled: true, TrackFrames: true, TrackDuration: true}
	}
	s := om.fullConfig.Observability.CustomMetrics.Streaming
	return streamingToggles{Enabled: s.Enabled, TrackFrames: s.TrackFrames, TrackDuration: s.TrackDuration}
}

type instrumentedObserver struct {
	ctx           context.Context
	next          stream.Observer
	metrics       *Metrics
	span          oteltrace.Span
	mode          string
	start         time.Time
	trackFrames   bool
	trackDuration bool

	once   sync.Once
	frames int64
}

func (o *instrumentedObserver) OnFrame(frame stream.Frame) {
	o.frames++
	o.recordStage(frame.Stage)
	if pct, ok := frame.Percent(); ok {
		o.span.AddEvent("progress", oteltrace.WithAttributes(
			attribute.String("stage", frame.Stage),
			attribute.Float64("percent", pct),
		))
	}
	o.next.OnFrame(frame)
}

func (o *instrumentedObserver) OnComplete(data json.RawMessage) {
	o.finish(stream.StageComplete, nil)
	o.next.OnComplete(data)
}

func (o *instrumentedObserver) OnError(err error) {
	o.finish(stream.StageError, err)
	o.next.OnError(err)
}

func (o *instrumentedObserver) recordStage(stage string) {
	if o.trackFrames {
		o.metrics.StreamFrames.Add(o.ctx, 1, metric.WithAttributes(attribute.String("stage", stage)))
	}
}

func (o *instrumentedObserver) finish(stage string, err error) {
	o.once.Do(func() {
		success := err == nil
		modeAttr := attribute.String("mode", o.mode)

		if stage == stream.StageComplete {
			o.recordStage(stage)
		}
		if err != nil {
			kind := ErrorKind(err)
			if kind == ErrorKindFrame {
				o.recordStage(stage)
			}
			o.metrics.StreamErrors.Add(o.ctx, 1, metric.WithAttributes(attribute.String("kind", kind), modeAttr))
			o.span.RecordError(err)
			o.span.SetStatus(codes.Error, err.Error())
		}

		o.metrics.Submissions.Add(o.ctx, 1, metric.WithAttributes(modeAttr, attribute.Bool("success", success)))
		if o.trackDuration {
			o.metrics.SubmissionDuration.Record(o.ctx, time.Since(o.start).Seconds(),
				metric.WithAttributes(modeAttr, attribute.Bool("success", success)))
		}
		o.metrics.ActiveStreams.Add(o.ctx, -1, metric.WithAttributes(modeAttr))

		o.span.SetAttributes(
			attribute.Int64("stream.frames", o.frames),
			attribute.Bool("stream.success", success),
		)
		o.span.End()
	})
}
