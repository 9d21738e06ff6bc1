package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roach88/quorum/internal/ir"
)

// EventSink receives every event a gate emits.
type EventSink interface {
	Record(ctx context.Context, ev ir.Event) error
}

// SinkFunc adapts a function to EventSink.
type SinkFunc func(ctx context.Context, ev ir.Event) error

// Record calls f.
func (f SinkFunc) Record(ctx context.Context, ev ir.Event) error {
	return f(ctx, ev)
}

// emitter stamps and delivers events for one gate.
type emitter struct {
	gate     string
	clock    *Clock
	ids      IDGenerator
	sinks    []EventSink
	log      *slog.Logger
	failStop bool

	// stopped holds the sink failure that halted a fail-stop gate.
	stopped error
}

func newEmitter(o options) *emitter {
	return &emitter{
		gate:     o.name,
		clock:    o.clock,
		ids:      o.ids,
		sinks:    o.sinks,
		log:      o.logger.With("gate", o.name),
		failStop: o.failStop,
	}
}

// check refuses every operation once a fail-stop gate has halted.
func (e *emitter) check(d ir.Domain, caller ir.Identity) error {
	if e.stopped != nil {
		return halted(d, caller, e.stopped)
	}
	return nil
}

// emit assigns seq and id, then delivers ev to every sink.
//
// A failing sink is logged. In fail-stop mode the first failure also halts
// the gate and is returned as a JOURNAL error; later sinks are skipped.
func (e *emitter) emit(ctx context.Context, ev ir.Event) error {
	ev.Seq = e.clock.Next()
	ev.ID = e.ids.Generate()

	e.log.Debug("transition",
		"seq", ev.Seq,
		"domain", ev.Domain,
		"kind", ev.Kind,
		"actor", ev.Actor,
		"round", ev.Round)

	for _, s := range e.sinks {
		err := s.Record(ctx, ev)
		if err == nil {
			continue
		}
		e.log.Error("event sink failed",
			"seq", ev.Seq,
			"event", ev.Name(),
			"fail_stop", e.failStop,
			"error", err)
		if e.failStop {
			e.stopped = fmt.Errorf("record seq %d (%s): %w", ev.Seq, ev.Name(), err)
			return journalFailed(ev.Domain, ev.Actor, e.stopped)
		}
	}
	return nil
}

// rejected logs a refused operation and returns err unchanged.
func (e *emitter) rejected(op string, caller ir.Identity, err error) error {
	e.log.Debug("operation rejected",
		"op", op,
		"caller", caller,
		"reason", err)
	return err
}
