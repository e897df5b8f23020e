package stream

import (
	"encoding/json"
	"sync"
)

// Observer receives the notifications of one stream.
// OnFrame may be called any number of times, followed by exactly one call to
// either OnComplete or OnError.
type Observer interface {
	OnFrame(frame Frame)
	OnComplete(data json.RawMessage)
	OnError(err error)
}

// ObserverFuncs adapts plain functions to the Observer interface. Nil fields
// are ignored.
type ObserverFuncs struct {
	Frame    func(Frame)
	Complete func(json.RawMessage)
	Error    func(error)
}

func (o ObserverFuncs) OnFrame(frame Frame) {
	if o.Frame != nil {
		o.Frame(frame)
	}
}

func (o ObserverFuncs) OnComplete(data json.RawMessage) {
	if o.Complete != nil {
		o.Complete(data)
	}
}

func (o ObserverFuncs) OnError(err error) {
	if o.Error != nil {
		o.Error(err)
	}
}

// Guard wraps obs so that it sees at most one terminal callback and no
// frames after it. The returned observer is safe for concurrent use.
func Guard(obs Observer) Observer {
	if g, ok := obs.(*guarded); ok {
		return g
	}
	return &guarded{next: obs}
}

type guarded struct {
	mu   sync.Mutex
	done bool
	next Observer
}

func (g *guarded) OnFrame(frame Frame) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.done {
		return
	}
	g.next.OnFrame(frame)
}

func (g *guarded) OnComplete(data json.RawMessage) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.done {
		return
	}
	g.done = true
	g.next.OnComplete(data)
}

func (g *guarded) OnError(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.done {
		return
	}
	g.done = true
	g.next.OnError(err)
}

// Result is what Collect gathers from one stream.
type Result struct {
	Frames []Frame
	Data   json.RawMessage
	Err    error
}

// Recorder is an Observer that records every callback. It is used by Collect
// and by callers that want the whole stream before acting on it.
type Recorder struct {
	mu     sync.Mutex
	result Result
	done   chan struct{}
	once   sync.Once
}

// NewRecorder creates an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{done: make(chan struct{})}
}

func (r *Recorder) OnFrame(frame Frame) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.result.Frames = append(r.result.Frames, frame)
}

func (r *Recorder) OnComplete(data json.RawMessage) {
	r.mu.Lock()
	r.result.Data = data
	r.mu.Unlock()
	r.once.Do(func() { close(r.done) })
}

func (r *Recorder) OnError(err error) {
	r.mu.Lock()
	r.result.Err = err
	r.mu.Unlock()
	r.once.Do(func() { close(r.done) })
}

// Done is closed after the first terminal callback.
func (r *Recorder) Done() <-chan struct{} {
	return r.done
}

// Result returns a snapshot of what has been recorded so far.
func (r *Recorder) Result() Result {
	r.mu.Lock()
	defer r.mu.Unlock()
	res := r.result
	res.Frames = append([]Frame(nil), r.result.Frames...)
	return res
}
