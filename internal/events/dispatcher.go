// Package events provides the named-event fan-out used by the gateway
// session and everything built on top of it.
//
// Listeners are registered during setup and the table is read on every
// dispatch. Registration is still safe while events are flowing: the table is
// guarded by a read-mostly lock and every dispatch works on a snapshot.
package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// Listener receives the arguments passed to Dispatch.
type Listener func(ctx context.Context, args ...any) error

// Handle identifies a single registration and can be used to remove it.
type Handle struct {
	Event string
	id    uint64
}

type entry struct {
	id       uint64
	listener Listener
}

// Dispatcher maps event names to ordered listener lists.
type Dispatcher struct {
	mu        sync.RWMutex
	listeners map[string][]entry
	nextID    uint64

	logger *slog.Logger
}

func NewDispatcher(logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		listeners: make(map[string][]entry),
		logger:    logger,
	}
}

// AddListener appends listener to the list for event.
// The same function may be registered more than once; it is then invoked once
// per registration.
func (d *Dispatcher) AddListener(event string, listener Listener) Handle {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.nextID++
	d.listeners[event] = append(d.listeners[event], entry{id: d.nextID, listener: listener})
	return Handle{Event: event, id: d.nextID}
}

// RemoveListener removes the registration identified by h.
// It reports whether anything was removed.
func (d *Dispatcher) RemoveListener(h Handle) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	entries := d.listeners[h.Event]
	for i, e := range entries {
		if e.id != h.id {
			continue
		}
		// Copy so that snapshots held by in-flight dispatches stay intact.
		next := make([]entry, 0, len(entries)-1)
		next = append(next, entries[:i]...)
		next = append(next, entries[i+1:]...)
		if len(next) == 0 {
			delete(d.listeners, h.Event)
		} else {
			d.listeners[h.Event] = next
		}
		return true
	}
	return false
}

// Count returns the number of listeners registered for event.
func (d *Dispatcher) Count(event string) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.listeners[event])
}

// Dispatch invokes every listener registered for event, in registration
// order, each one completing before the next one starts.
//
// A listener that returns an error or panics is logged and skipped over; the
// remaining listeners still run. The returned error joins every listener
// failure and is nil when all of them succeeded.
func (d *Dispatcher) Dispatch(ctx context.Context, event string, args ...any) error {
	d.mu.RLock()
	entries := d.listeners[event]
	d.mu.RUnlock()

	var errs []error
	for i, e := range entries {
		if err := invoke(ctx, e.listener, args); err != nil {
			d.logger.ErrorContext(
				ctx,
				"event listener failed",
				slog.String("event", event),
				slog.Int("listener", i),
				slog.Any("error", err),
			)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func invoke(ctx context.Context, listener Listener, args []any) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r}
		}
	}()
	return listener(ctx, args...)
}

// PanicError wraps a value recovered from a panicking callback.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("listener panicked: %v", e.Value)
}

var _ error = (*PanicError)(nil)

// ArgumentError is returned by typed listeners when the dispatched arguments
// do not match the expected type.
type ArgumentError struct {
	Want string
	Got  any
}

func (e *ArgumentError) Error() string {
	return fmt.Sprintf("unexpected listener argument: want %s, got %T", e.Want, e.Got)
}

var _ error = (*ArgumentError)(nil)

// Typed adapts a function taking a single typed argument into a Listener.
func Typed[T any](fn func(ctx context.Context, v T) error) Listener {
	return func(ctx context.Context, args ...any) error {
		var zero T
		if len(args) == 0 {
			return &ArgumentError{Want: fmt.Sprintf("%T", zero), Got: nil}
		}
		v, ok := args[0].(T)
		if !ok {
			return &ArgumentError{Want: fmt.Sprintf("%T", zero), Got: args[0]}
		}
		return fn(ctx, v)
	}
}
