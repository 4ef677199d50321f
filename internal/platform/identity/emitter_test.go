// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package identity

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestEmitter_Order verifies every handler sees events in emission order.
func TestEmitter_Order(t *testing.T) {
	e := newEmitter()
	defer e.close()

	var mu sync.Mutex
	var first, second []EventKind
	var wg sync.WaitGroup
	wg.Add(6)

	e.subscribe(func(kind EventKind, _ *Session) {
		mu.Lock()
		first = append(first, kind)
		mu.Unlock()
		wg.Done()
	})
	e.subscribe(func(kind EventKind, _ *Session) {
		mu.Lock()
		second = append(second, kind)
		mu.Unlock()
		wg.Done()
	})

	e.emit(EventSignedIn, &Session{AccessToken: "a"})
	e.emit(EventTokenRefreshed, &Session{AccessToken: "b"})
	e.emit(EventSignedOut, nil)
	wg.Wait()

	want := []EventKind{EventSignedIn, EventTokenRefreshed, EventSignedOut}
	assert.Equal(t, want, first)
	assert.Equal(t, want, second)
}

// TestEmitter_Unsubscribe verifies unsubscribe is idempotent and effective.
func TestEmitter_Unsubscribe(t *testing.T) {
	e := newEmitter()
	defer e.close()

	calls := make(chan EventKind, 4)
	unsubscribe := e.subscribe(func(kind EventKind, _ *Session) { calls <- kind })

	e.emit(EventSignedIn, nil)
	select {
	case kind := <-calls:
		assert.Equal(t, EventSignedIn, kind)
	case <-time.After(time.Second):
		t.Fatal("handler not called")
	}

	unsubscribe()
	unsubscribe()

	e.emit(EventSignedOut, nil)
	assert.Never(t, func() bool { return len(calls) > 0 }, 100*time.Millisecond, 10*time.Millisecond)
}

// TestEmitter_SessionIsolation verifies handlers cannot mutate each other's copy.
func TestEmitter_SessionIsolation(t *testing.T) {
	e := newEmitter()
	defer e.close()

	seen := make(chan string, 2)
	e.subscribe(func(_ EventKind, session *Session) {
		session.User.UserMetadata["name"] = "mutated"
		seen <- "first"
	})
	e.subscribe(func(_ EventKind, session *Session) {
		seen <- session.User.MetadataString("name")
	})

	e.emit(EventUserUpdated, &Session{User: &User{ID: "u-1", UserMetadata: map[string]any{"name": "Rider"}}})

	require.Equal(t, "first", <-seen)
	assert.Equal(t, "Rider", <-seen)
}
