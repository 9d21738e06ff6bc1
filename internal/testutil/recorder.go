package testutil

import (
	"context"
	"sync"

	"github.com/roach88/quorum/internal/ir"
)

// Recorder is an in-memory event sink.
//
// Thread-safety: safe for concurrent use.
type Recorder struct {
	mu     sync.Mutex
	events []ir.Event
	err    error
}

// Record appends ev. If an error was set with Fail, the event is dropped
// and the error returned.
func (r *Recorder) Record(_ context.Context, ev ir.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.events = append(r.events, ev)
	return nil
}

// Fail makes every subsequent Record return err. nil restores recording.
func (r *Recorder) Fail(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.err = err
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []ir.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]ir.Event(nil), r.events...)
}

// Names returns the notification names of the recorded events, in order.
func (r *Recorder) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, len(r.events))
	for i, ev := range r.events {
		names[i] = ev.Name()
	}
	return names
}

// Last returns the most recent event and whether there is one.
func (r *Recorder) Last() (ir.Event, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.events) == 0 {
		return ir.Event{}, false
	}
	return r.events[len(r.events)-1], true
}
