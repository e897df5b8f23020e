package stream

import (
	"context"
	"encoding/json"
	"errors"
	"io"

	resumatchErrors "resumatch/internal/errors"
)

// Source produces the notifications of one analysis run. Stream blocks until
// the terminal callback has been delivered.
type Source interface {
	Stream(ctx context.Context, obs Observer)
}

// SourceFunc adapts a function to the Source interface.
type SourceFunc func(ctx context.Context, obs Observer)

func (f SourceFunc) Stream(ctx context.Context, obs Observer) {
	f(ctx, obs)
}

// ReaderSource is a Source backed by a server-sent event body, typically an
// HTTP response body.
type ReaderSource struct {
	Body    io.ReadCloser
	Channel *Channel
}

// NewReaderSource wraps body. A nil channel uses the default one.
func NewReaderSource(body io.ReadCloser, channel *Channel) *ReaderSource {
	if channel == nil {
		channel = defaultChannel
	}
	return &ReaderSource{Body: body, Channel: channel}
}

// Stream consumes the body and closes it. Cancelling ctx closes the body,
// which ends the read loop; the resulting error wraps ctx.Err().
func (s *ReaderSource) Stream(ctx context.Context, obs Observer) {
	defer s.Body.Close()

	stop := context.AfterFunc(ctx, func() {
		_ = s.Body.Close()
	})
	defer stop()

	s.Channel.Consume(s.Body, &abortObserver{ctx: ctx, next: obs})
}

// abortObserver makes read failures caused by cancellation report the
// context error.
type abortObserver struct {
	ctx  context.Context
	next Observer
}

func (o *abortObserver) OnFrame(frame Frame) {
	o.next.OnFrame(frame)
}

func (o *abortObserver) OnComplete(data json.RawMessage) {
	o.next.OnComplete(data)
}

func (o *abortObserver) OnError(err error) {
	ctxErr := o.ctx.Err()
	var frameErr *FrameError
	if ctxErr == nil || errors.Is(err, ctxErr) || errors.As(err, &frameErr) {
		o.next.OnError(err)
		return
	}
	o.next.OnError(resumatchErrors.NewNetworkError(
		resumatchErrors.ErrCodeStreamReadFailed,
		"event stream aborted",
		errors.Join(ctxErr, err),
	))
}
