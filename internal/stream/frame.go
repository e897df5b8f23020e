package stream

import (
	"encoding/json"
	"errors"
	"strings"
)

// Known stage tags. The set is open: anything that is not StageComplete or
// StageError is an intermediate stage and is forwarded as-is.
const (
	StageProgress   = "progress"
	StageScoreReady = "score_ready"
	StageComplete   = "complete"
	StageError      = "error"
)

const fallbackErrorMessage = "analysis failed"

// ErrStreamEndedWithoutResult is reported when the stream ends before a
// complete or error frame arrived.
var ErrStreamEndedWithoutResult = errors.New("stream ended without result")

// Frame is one decoded server-sent event.
type Frame struct {
	Stage    string          `json:"stage"`
	Progress *float64        `json:"progress,omitempty"`
	Message  string          `json:"message,omitempty"`
	Data     json.RawMessage `json:"data,omitempty"`
	Error    string          `json:"error,omitempty"`
}

// IsTerminal reports whether the frame ends the stream.
func (f Frame) IsTerminal() bool {
	return f.Stage == StageComplete || f.Stage == StageError
}

// Percent returns the progress value, if the frame carries one.
func (f Frame) Percent() (float64, bool) {
	if f.Progress == nil {
		return 0, false
	}
	return *f.Progress, true
}

// ProgressFrame builds an intermediate progress frame.
func ProgressFrame(percent float64, message string) Frame {
	return Frame{Stage: StageProgress, Progress: &percent, Message: message}
}

// FrameError is the error delivered for an explicit error frame.
type FrameError struct {
	Frame   Frame
	Message string
}

func (e *FrameError) Error() string {
	return e.Message
}

// newFrameError picks the message from message, data.error, error, then a
// generic fallback.
func newFrameError(f Frame) *FrameError {
	msg := strings.TrimSpace(f.Message)
	if msg == "" {
		msg = dataError(f.Data)
	}
	if msg == "" {
		msg = strings.TrimSpace(f.Error)
	}
	if msg == "" {
		msg = fallbackErrorMessage
	}
	return &FrameError{Frame: f, Message: msg}
}

func dataError(data json.RawMessage) string {
	if len(data) == 0 {
		return ""
	}
	var payload struct {
		Error any `json:"error"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return ""
	}
	switch v := payload.Error.(type) {
	case string:
		return strings.TrimSpace(v)
	case map[string]any:
		if m, ok := v["message"].(string); ok {
			return strings.TrimSpace(m)
		}
	}
	return ""
}
