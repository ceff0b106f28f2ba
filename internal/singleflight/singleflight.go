// Package singleflight coalesces concurrent calls that share a key.
//
// The shortener uses it so that a burst of identical requests (the same
// locator submitted twice, the same id resolved by many clients) reaches the
// durable store once.
package singleflight

import (
	"context"
	"fmt"
	"sync"
)

// Group runs fn at most once per in-flight key. Callers that arrive while a
// call for their key is running wait for the leader's result instead.
//
// A follower whose ctx is cancelled stops waiting and returns ctx.Err(); the
// leader keeps running fn to completion.
type Group[K comparable, V any] struct {
	mu sync.Mutex
	m  map[K]*call[V]
}

type call[V any] struct {
	done chan struct{} // closed once val/err are published
	val  V
	err  error
	dups int
}

// Do executes fn for key, or joins the call already in flight. shared
// reports whether the result was handed to more than one caller.
func (g *Group[K, V]) Do(ctx context.Context, key K, fn func() (V, error)) (v V, err error, shared bool) {
	g.mu.Lock()
	if g.m == nil {
		g.m = make(map[K]*call[V])
	}
	if c, ok := g.m[key]; ok {
		c.dups++
		g.mu.Unlock()

		select {
		case <-c.done:
			return c.val, c.err, true
		case <-ctx.Done():
			var zero V
			return zero, ctx.Err(), true
		}
	}

	c := &call[V]{done: make(chan struct{})}
	g.m[key] = c
	g.mu.Unlock()

	g.run(c, key, fn)

	g.mu.Lock()
	shared = c.dups > 0
	g.mu.Unlock()
	return c.val, c.err, shared
}

// run executes fn and publishes its result. A panic in fn is converted to an
// error for the followers and re-raised in the leader.
func (g *Group[K, V]) run(c *call[V], key K, fn func() (V, error)) {
	normal := false
	defer func() {
		if !normal {
			if r := recover(); r != nil {
				c.err = fmt.Errorf("singleflight: call panicked: %v", r)
				g.finish(c, key)
				panic(r)
			}
		}
		g.finish(c, key)
	}()

	c.val, c.err = fn()
	normal = true
}

func (g *Group[K, V]) finish(c *call[V], key K) {
	g.mu.Lock()
	if g.m[key] == c {
		delete(g.m, key)
	}
	g.mu.Unlock()
	close(c.done)
}
