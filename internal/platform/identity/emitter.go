// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package identity

import (
	"slices"
	"sync"
)

// emitterQueueSize bounds the events waiting for dispatch.
const emitterQueueSize = 64

type emission struct {
	kind    EventKind
	session *Session
}

// emitter fans session changes out to handlers from a single goroutine, so
// every handler observes events in emission order.
type emitter struct {
	mu       sync.Mutex
	handlers map[uint64]Handler
	nextID   uint64

	queue chan emission
	done  chan struct{}
	once  sync.Once
}

func newEmitter() *emitter {
	e := &emitter{
		handlers: make(map[uint64]Handler),
		queue:    make(chan emission, emitterQueueSize),
		done:     make(chan struct{}),
	}
	go e.dispatch()
	return e
}

// subscribe registers handler and returns its idempotent unsubscribe func.
func (e *emitter) subscribe(handler Handler) func() {
	e.mu.Lock()
	id := e.nextID
	e.nextID++
	e.handlers[id] = handler
	e.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			e.mu.Lock()
			delete(e.handlers, id)
			e.mu.Unlock()
		})
	}
}

// emit queues an event. It drops the event once the emitter is closed.
func (e *emitter) emit(kind EventKind, session *Session) {
	select {
	case e.queue <- emission{kind: kind, session: session.Clone()}:
	case <-e.done:
	}
}

func (e *emitter) dispatch() {
	for {
		select {
		case <-e.done:
			return
		case event := <-e.queue:
			for _, handler := range e.snapshot() {
				handler(event.kind, event.session.Clone())
			}
		}
	}
}

// snapshot returns the handlers in subscription order.
func (e *emitter) snapshot() []Handler {
	e.mu.Lock()
	defer e.mu.Unlock()

	ids := make([]uint64, 0, len(e.handlers))
	for id := range e.handlers {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	handlers := make([]Handler, 0, len(ids))
	for _, id := range ids {
		handlers = append(handlers, e.handlers[id])
	}
	return handlers
}

func (e *emitter) close() {
	e.once.Do(func() { close(e.done) })
}
