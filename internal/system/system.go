// Package system implements the generic actor base every stateful component
// in the runtime (ChatSystem, GameSystem, Universe) embeds: a bounded-only-
// by-memory FIFO event queue, a single-consumer listen loop, background
// "pipe" tasks that forward events from other systems, and a process-global
// registry keyed by (kind, id).
//
// It is the Go expression of original_source/backend/game/system.py's
// System[E] class: an asyncio.Queue there becomes a mutex+condition-variable
// queue plus a dispatcher goroutine here, because Go has no cooperative
// single-threaded event loop to rely on for ordering.
package system

import (
	"fmt"
	"sync"
)

// PipeFailure is the fatal marker a pipe's panic/error is translated into.
// Listen surfaces it as an error and stops delivering events; Emit still
// enqueues afterwards, but nothing drains the queue.
type PipeFailure struct {
	Cause      error
	SystemName string
}

func (f *PipeFailure) Error() string {
	return fmt.Sprintf("pipe in system %s failed: %v", f.SystemName, f.Cause)
}

type itemKind int

const (
	kindEvent itemKind = iota
	kindStop
	kindFailure
)

type queueItem[E any] struct {
	kind  itemKind
	event E
	err   error
}

// System is the generic actor base. E is the event type the system emits.
type System[E any] struct {
	name string

	mu      sync.Mutex
	cond    *sync.Cond
	queue   []queueItem[E]
	stopped bool
	closed  bool // set once the stop marker has been placed on the queue

	listened bool

	pipesWG sync.WaitGroup
}

// New constructs a System. Callers that need the registry's (kind, id)
// lookup to find them (GameSystem, ChatSystem) register themselves with
// Register once fully built, since New only has the event-queue core, not
// the embedding outer type.
func New[E any](name string) *System[E] {
	s := &System[E]{name: name}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// Name returns the system's diagnostic name, exactly as passed to New.
func (s *System[E]) Name() string { return s.name }

// Emit enqueues an event for delivery to the single listener. Non-blocking;
// a no-op once the system has stopped.
func (s *System[E]) Emit(event E) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	s.queue = append(s.queue, queueItem[E]{kind: kindEvent, event: event})
	s.cond.Signal()
}

// AddPipe registers a background task that forwards events from another
// system into this one. If fn returns an error, the System emits a
// PipeFailure marker that Listen surfaces as a fatal error.
func (s *System[E]) AddPipe(fn func() error) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		panic(fmt.Sprintf("trying to add pipe to a stopped system %s", s.name))
	}
	s.mu.Unlock()

	s.pipesWG.Add(1)
	go func() {
		defer s.pipesWG.Done()
		if err := fn(); err != nil {
			s.mu.Lock()
			if !s.stopped {
				s.queue = append(s.queue, queueItem[E]{kind: kindFailure, err: &PipeFailure{Cause: err, SystemName: s.name}})
				s.cond.Signal()
			}
			s.mu.Unlock()
		}
	}()
}

// Stop awaits completion of all registered pipes and enqueues the stop
// sentinel. Idempotent. Callers that registered themselves with Register
// are responsible for calling Deregister too (GameSystem and ChatSystem's
// own Stop overrides do this before delegating here).
func (s *System[E]) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	s.pipesWG.Wait()

	s.mu.Lock()
	s.stopped = true
	s.queue = append(s.queue, queueItem[E]{kind: kindStop})
	s.cond.Signal()
	s.mu.Unlock()
}

// Listen returns channels of delivered events and a fatal error channel.
// The events channel closes on normal stop; on pipe failure, an error is
// sent on errc and the events channel is closed without further delivery.
// Calling Listen twice on the same System panics, matching the "single
// consumer" contract (spec.md §4.1).
func (s *System[E]) Listen() (<-chan E, <-chan error) {
	s.mu.Lock()
	if s.listened {
		s.mu.Unlock()
		panic(fmt.Sprintf("system %s is already being listened to", s.name))
	}
	s.listened = true
	s.mu.Unlock()

	events := make(chan E)
	errc := make(chan error, 1)

	go func() {
		defer func() {
			close(events)
			s.mu.Lock()
			s.listened = false
			s.mu.Unlock()
		}()

		for {
			s.mu.Lock()
			for len(s.queue) == 0 {
				s.cond.Wait()
			}
			item := s.queue[0]
			s.queue = s.queue[1:]
			s.mu.Unlock()

			switch item.kind {
			case kindStop:
				return
			case kindFailure:
				errc <- item.err
				return
			default:
				events <- item.event
			}
		}
	}()

	return events, errc
}
