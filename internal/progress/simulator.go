// Package progress produces simulated progress for calls that do not stream.
package progress

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"resumatch/internal/stream"
)

const (
	DefaultInterval = 800 * time.Millisecond
	DefaultStep     = 7.5
	DefaultCeiling  = 90.0
)

// DefaultMessages are shown in order as the simulated percentage advances.
var DefaultMessages = []string{
	"Uploading resume",
	"Parsing resume",
	"Extracting keywords",
	"Comparing with job description",
	"Scoring match",
	"Preparing results",
}

// Simulator emits progress frames at a fixed interval. Percentages never
// decrease and never exceed Ceiling.
type Simulator struct {
	Interval time.Duration
	Step     float64
	Ceiling  float64
	Messages []string

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	current float64
}

// NewSimulator creates a simulator with default pacing.
func NewSimulator() *Simulator {
	return &Simulator{
		Interval: DefaultInterval,
		Step:     DefaultStep,
		Ceiling:  DefaultCeiling,
		Messages: DefaultMessages,
	}
}

// Start begins ticking into emit. It returns immediately. Calling Start on a
// running simulator is a no-op.
func (s *Simulator) Start(ctx context.Context, emit func(stream.Frame)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done != nil {
		return
	}

	interval, step, ceiling := s.settings()
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	s.current = 0

	go func(done chan struct{}) {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		tick := 0
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}

			s.mu.Lock()
			next := s.current + step
			if next > ceiling {
				next = ceiling
			}
			s.current = next
			s.mu.Unlock()

			// a cancelled context wins over a tick that fired at the same time
			if ctx.Err() != nil {
				return
			}
			emit(stream.ProgressFrame(next, s.message(tick)))
			tick++
		}
	}(s.done)
}

// Stop halts ticking and waits for the tick goroutine, so no frame is
// emitted after Stop returns.
func (s *Simulator) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done

	s.mu.Lock()
	s.cancel, s.done = nil, nil
	s.mu.Unlock()
}

// Current returns the last emitted percentage.
func (s *Simulator) Current() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

func (s *Simulator) settings() (time.Duration, float64, float64) {
	interval, step, ceiling := s.Interval, s.Step, s.Ceiling
	if interval <= 0 {
		interval = DefaultInterval
	}
	if step <= 0 {
		step = DefaultStep
	}
	if ceiling <= 0 || ceiling > 100 {
		ceiling = DefaultCeiling
	}
	return interval, step, ceiling
}

func (s *Simulator) message(tick int) string {
	if len(s.Messages) == 0 {
		return ""
	}
	if tick >= len(s.Messages) {
		return s.Messages[len(s.Messages)-1]
	}
	return s.Messages[tick]
}

// Source runs a blocking call while a Simulator reports progress, so callers
// can treat it like a real event stream.
type Source struct {
	Simulator *Simulator
	Run       func(ctx context.Context) (json.RawMessage, error)
}

// NewSource creates a source with a default simulator.
func NewSource(run func(ctx context.Context) (json.RawMessage, error)) *Source {
	return &Source{Simulator: NewSimulator(), Run: run}
}

// Stream implements stream.Source. The final frame reaches 100 percent
// before OnComplete.
func (s *Source) Stream(ctx context.Context, obs stream.Observer) {
	guarded := stream.Guard(obs)

	sim := s.Simulator
	if sim == nil {
		sim = NewSimulator()
	}
	sim.Start(ctx, guarded.OnFrame)

	data, err := s.Run(ctx)
	sim.Stop()

	if err != nil {
		guarded.OnError(err)
		return
	}
	guarded.OnFrame(stream.ProgressFrame(100, "Done"))
	guarded.OnComplete(data)
}

var _ stream.Source = (*Source)(nil)
