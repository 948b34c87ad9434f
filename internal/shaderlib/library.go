// Package shaderlib provides the shader bytecode library: content-addressed
// shader blobs grouped into components that open and close at runtime as
// content is mounted.
package shaderlib

import (
	"context"
	"sync"

	"github.com/pso-precache/pkg/model"
)

// EventKind discriminates library state-change notifications.
type EventKind int

const (
	// ComponentOpened fires when a component's shaders become resolvable.
	ComponentOpened EventKind = iota
	// ComponentClosed fires when a component's shaders are withdrawn.
	ComponentClosed
)

// String returns the string representation of EventKind.
func (k EventKind) String() string {
	switch k {
	case ComponentOpened:
		return "opened"
	case ComponentClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Event is a library state-change notification.
type Event struct {
	Kind      EventKind
	Component string
}

// Library is the interface the precompile conveyor consumes. Availability is
// incremental: a shader absent now may become resolvable after a component
// opens, which subscribers learn about through Notify.
type Library interface {
	// Contains reports whether bytecode for the hash is currently resolvable.
	Contains(hash model.ShaderHash) bool

	// Preload reads the bytecode blob for the hash.
	Preload(ctx context.Context, hash model.ShaderHash) ([]byte, error)

	// Notify registers a state-change callback and returns an unsubscribe
	// function. Callbacks run on the goroutine mutating the library.
	Notify(fn func(Event)) func()
}

// notifier implements the subscription half of Library.
type notifier struct {
	mu   sync.Mutex
	next int
	subs map[int]func(Event)
}

func (n *notifier) Notify(fn func(Event)) func() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.subs == nil {
		n.subs = make(map[int]func(Event))
	}
	id := n.next
	n.next++
	n.subs[id] = fn
	return func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		delete(n.subs, id)
	}
}

func (n *notifier) publish(ev Event) {
	n.mu.Lock()
	subs := make([]func(Event), 0, len(n.subs))
	for _, fn := range n.subs {
		subs = append(subs, fn)
	}
	n.mu.Unlock()

	for _, fn := range subs {
		fn(ev)
	}
}
