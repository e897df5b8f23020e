// Package stream consumes analysis progress delivered as server-sent events.
//
// A stream is a sequence of "data: <json>" lines. Each JSON object carries a
// stage tag; intermediate stages are forwarded to the observer in order and a
// complete or error frame ends the stream.
package stream

import (
	"bufio"
	"encoding/json"
	"errors"
	"io"
	"strings"

	resumatchErrors "resumatch/internal/errors"
)

const (
	dataPrefix        = "data: "
	defaultBufferSize = 4096
)

// Channel turns a byte stream of server-sent events into observer callbacks.
// A Channel holds no per-stream state and may be shared by concurrent
// Consume calls.
type Channel struct {
	logger     *resumatchErrors.Logger
	bufferSize int
}

// NewChannel creates a channel that logs skipped lines at debug level.
// A nil logger discards them.
func NewChannel(logger *resumatchErrors.Logger) *Channel {
	if logger == nil {
		logger = resumatchErrors.NewNopLogger()
	}
	return &Channel{logger: logger, bufferSize: defaultBufferSize}
}

// WithBufferSize returns a copy of c that reads with an n-byte buffer.
// Values below bufio's minimum are raised by bufio.
func (c *Channel) WithBufferSize(n int) *Channel {
	cp := *c
	if n > 0 {
		cp.bufferSize = n
	}
	return &cp
}

var defaultChannel = NewChannel(nil)

// Consume reads r with a default channel. See (*Channel).Consume.
func Consume(r io.Reader, obs Observer) {
	defaultChannel.Consume(r, obs)
}

// Consume reads r until a terminal frame, end of stream or a read error and
// reports to obs. Exactly one of obs.OnComplete and obs.OnError is called.
// Reading stops as soon as a terminal frame is dispatched.
//
// Bytes after the last newline are kept until the next read completes the
// line. If the stream ends before that, they are dropped.
func (c *Channel) Consume(r io.Reader, obs Observer) {
	br := bufio.NewReaderSize(r, c.bufferSize)
	frames := 0

	for {
		line, err := br.ReadString('\n')
		if err != nil {
			if errors.Is(err, io.EOF) {
				if line != "" {
					c.logger.Debug("Discarding unterminated trailing line", "bytes", len(line))
				}
				c.logger.Debug("Event stream ended without terminal frame", "frames", frames)
				obs.OnError(ErrStreamEndedWithoutResult)
				return
			}
			obs.OnError(resumatchErrors.NewNetworkError(
				resumatchErrors.ErrCodeStreamReadFailed,
				"failed to read event stream",
				err,
			).WithContext("frames", frames))
			return
		}

		frame, ok := c.parseLine(line)
		if !ok {
			continue
		}
		frames++

		switch frame.Stage {
		case StageComplete:
			obs.OnComplete(frame.Data)
			return
		case StageError:
			obs.OnError(newFrameError(frame))
			return
		default:
			obs.OnFrame(frame)
		}
	}
}

func (c *Channel) parseLine(line string) (Frame, bool) {
	line = strings.TrimSuffix(line, "\n")
	line = strings.TrimSuffix(line, "\r")

	payload, ok := strings.CutPrefix(line, dataPrefix)
	if !ok {
		return Frame{}, false
	}

	var frame Frame
	if err := json.Unmarshal([]byte(payload), &frame); err != nil {
		c.logger.Debug("Skipping malformed event", "error", err.Error())
		return Frame{}, false
	}
	if frame.Stage == "" {
		c.logger.Debug("Skipping event without stage")
		return Frame{}, false
	}
	return frame, true
}

// Collect consumes r and returns every intermediate frame along with the
// complete payload or the terminal error.
func Collect(r io.Reader) ([]Frame, json.RawMessage, error) {
	rec := NewRecorder()
	Consume(r, rec)
	res := rec.Result()
	return res.Frames, res.Data, res.Err
}
