package stream

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
)

// Encoder writes frames in the wire format Consume reads.
type Encoder struct {
	mu      sync.Mutex
	w       io.Writer
	flusher http.Flusher
}

// NewEncoder creates an encoder. If w is an http.Flusher every frame is
// flushed after it is written.
func NewEncoder(w io.Writer) *Encoder {
	enc := &Encoder{w: w}
	if f, ok := w.(http.Flusher); ok {
		enc.flusher = f
	}
	return enc
}

// Encode writes one frame as "data: <json>\n\n".
func (e *Encoder) Encode(frame Frame) error {
	payload, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("failed to encode frame: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, err := fmt.Fprintf(e.w, "%s%s\n\n", dataPrefix, payload); err != nil {
		return err
	}
	if e.flusher != nil {
		e.flusher.Flush()
	}
	return nil
}

// Comment writes an SSE comment line, used as a keep-alive.
func (e *Encoder) Comment(text string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, err := fmt.Fprintf(e.w, ": %s\n\n", text); err != nil {
		return err
	}
	if e.flusher != nil {
		e.flusher.Flush()
	}
	return nil
}

// WriteFrame encodes a single frame to w.
func WriteFrame(w io.Writer, frame Frame) error {
	return NewEncoder(w).Encode(frame)
}

// EncodingObserver re-encodes every callback it receives, including the
// terminal one, so a consumer of the output sees the same stream.
type EncodingObserver struct {
	enc *Encoder

	mu  sync.Mutex
	err error
}

// NewEncodingObserver creates an observer writing to enc.
func NewEncodingObserver(enc *Encoder) *EncodingObserver {
	return &EncodingObserver{enc: enc}
}

func (o *EncodingObserver) OnFrame(frame Frame) {
	o.record(o.enc.Encode(frame))
}

func (o *EncodingObserver) OnComplete(data json.RawMessage) {
	o.record(o.enc.Encode(Frame{Stage: StageComplete, Data: data}))
}

func (o *EncodingObserver) OnError(err error) {
	var frameErr *FrameError
	if errors.As(err, &frameErr) {
		frame := frameErr.Frame
		frame.Message = frameErr.Message
		o.record(o.enc.Encode(frame))
		return
	}
	o.record(o.enc.Encode(Frame{Stage: StageError, Message: err.Error()}))
}

// Err returns the first write error, if any.
func (o *EncodingObserver) Err() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.err
}

func (o *EncodingObserver) record(err error) {
	if err == nil {
		return
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.err == nil {
		o.err = err
	}
}
