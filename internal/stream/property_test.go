package stream

import (
	"bytes"
	"encoding/json"
	"reflect"
	"sort"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func buildTranscript(messages []string) string {
	var buf bytes.Buffer
	enc := NewEncoder(&buf)
	for i, msg := range messages {
		_ = enc.Encode(ProgressFrame(float64(i), msg))
	}
	_ = enc.Encode(Frame{Stage: StageComplete, Data: json.RawMessage(`{"analysis_id":42}`)})
	return buf.String()
}

func splitAt(s string, cuts []int) []string {
	points := make([]int, 0, len(cuts))
	for _, c := range cuts {
		points = append(points, c%(len(s)+1))
	}
	sort.Ints(points)

	chunks := make([]string, 0, len(points)+1)
	prev := 0
	for _, p := range points {
		chunks = append(chunks, s[prev:p])
		prev = p
	}
	return append(chunks, s[prev:])
}

// terminalCounter counts callbacks and flags frames delivered after a
// terminal callback.
type terminalCounter struct {
	frames         int
	terminals      int
	frameAfterDone bool
}

func (c *terminalCounter) OnFrame(Frame) {
	if c.terminals > 0 {
		c.frameAfterDone = true
	}
	c.frames++
}

func (c *terminalCounter) OnComplete(json.RawMessage) { c.terminals++ }
func (c *terminalCounter) OnError(error)              { c.terminals++ }

func TestConsumeReassemblyProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	messageGen := gen.OneConstOf("", "Parsing", "Scoring résumé", "Готово ✓", "匹配中", "line\nbreak", `quote " and \ slash`)

	properties.Property("split transcript dispatches the same frames as the whole", prop.ForAll(
		func(messages []string, cuts []int) bool {
			transcript := buildTranscript(messages)

			wantFrames, wantData, wantErr := Collect(strings.NewReader(transcript))
			gotFrames, gotData, gotErr := Collect(newChunkReader(splitAt(transcript, cuts)...))

			return wantErr == nil && gotErr == nil &&
				len(wantFrames) == len(messages) &&
				reflect.DeepEqual(wantFrames, gotFrames) &&
				bytes.Equal(wantData, gotData)
		},
		gen.SliceOf(messageGen),
		gen.SliceOf(gen.IntRange(0, 4096)),
	))

	properties.TestingRun(t)
}

func TestConsumeTerminalExclusivityProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 300
	properties := gopter.NewProperties(parameters)

	fragmentGen := gen.OneConstOf(
		"data: {\"stage\":\"progress\",\"progress\":10}\n",
		"data: {\"stage\":\"score_ready\",\"data\":{\"score\":70}}\n",
		"data: {\"stage\":\"complete\",\"data\":{\"analysis_id\":1}}\n",
		"data: {\"stage\":\"error\",\"message\":\"boom\"}\n",
		"data: {not json}\n",
		"data: {\"stage\":\"comp",
		": comment\n",
		"\n",
		"\r\n",
		"data: ",
		"é",
	)

	properties.Property("exactly one terminal callback for generated transcripts", prop.ForAll(
		func(fragments []string, cuts []int) bool {
			transcript := strings.Join(fragments, "")
			counter := &terminalCounter{}
			Consume(newChunkReader(splitAt(transcript, cuts)...), counter)
			return counter.terminals == 1 && !counter.frameAfterDone
		},
		gen.SliceOf(fragmentGen),
		gen.SliceOf(gen.IntRange(0, 1024)),
	))

	properties.Property("exactly one terminal callback for arbitrary bytes", prop.ForAll(
		func(raw []uint8) bool {
			counter := &terminalCounter{}
			Consume(bytes.NewReader(raw), counter)
			return counter.terminals == 1
		},
		gen.SliceOf(gen.UInt8()),
	))

	properties.Property("malformed lines never suppress valid frames", prop.ForAll(
		func(noise []string) bool {
			var sb strings.Builder
			sb.WriteString("data: {\"stage\":\"progress\",\"progress\":1}\n")
			for _, n := range noise {
				sb.WriteString("data: " + n + "\n")
			}
			sb.WriteString("data: {\"stage\":\"progress\",\"progress\":2}\n")
			sb.WriteString("data: {\"stage\":\"complete\"}\n")

			frames, _, err := Collect(strings.NewReader(sb.String()))
			if err != nil || len(frames) < 2 {
				return false
			}
			first, last := frames[0], frames[len(frames)-1]
			return *first.Progress == 1 && *last.Progress == 2
		},
		gen.SliceOf(gen.AlphaString()),
	))

	properties.TestingRun(t)
}
