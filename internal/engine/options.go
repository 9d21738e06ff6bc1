package engine

import "log/slog"

// Option configures a gate at construction.
type Option func(*options)

type options struct {
	name              string
	logger            *slog.Logger
	sinks             []EventSink
	ids               IDGenerator
	clock             *Clock
	submitterConfirms bool
	failStop          bool
}

func newOptions(name string, opts []Option) options {
	o := options{
		name:   name,
		logger: slog.Default(),
		ids:    UUIDv7Generator{},
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.clock == nil {
		o.clock = NewClock()
	}
	return o
}

// WithName sets the gate name used to tag journal rows and log lines.
func WithName(name string) Option {
	return func(o *options) {
		if name != "" {
			o.name = name
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithSink adds an event sink. Sinks receive events in emission order.
func WithSink(s EventSink) Option {
	return func(o *options) {
		if s != nil {
			o.sinks = append(o.sinks, s)
		}
	}
}

// WithIDGenerator replaces the UUIDv7 event id generator.
func WithIDGenerator(g IDGenerator) Option {
	return func(o *options) {
		if g != nil {
			o.ids = g
		}
	}
}

// WithClock sets the logical clock.
func WithClock(c *Clock) Option {
	return func(o *options) {
		o.clock = c
	}
}

// WithSubmitterConfirmation makes an owner's operator-rotation submit also
// record the submitter's own confirmation (emitting a confirm event).
// Rebalance submits are never auto-confirmed: the operator is not an owner.
// A Custodian ignores it; the submitter confirms methodologist candidates
// explicitly.
func WithSubmitterConfirmation() Option {
	return func(o *options) {
		o.submitterConfirms = true
	}
}

// WithFailStop makes sink failures fatal. The operation whose event could
// not be recorded returns a JOURNAL error and the gate refuses every later
// mutating call. Executes are journaled before their effect runs, so a
// refused execute never reaches the portfolio manager.
//
// Without it sinks are observers: a failure is logged and the operation
// succeeds.
func WithFailStop() Option {
	return func(o *options) {
		o.failStop = true
	}
}
