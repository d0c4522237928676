package ecs

import (
	"sort"
	"sync/atomic"
)

// World owns entity liveness and every registered component store.
//
// World is not safe for concurrent structural access: component data may be
// read and written in place during a system pass, but entity creation,
// destruction and component attach/detach go through Buffer and become
// visible only when Flush is called between passes.
type World struct {
	next   atomic.Uint64
	live   map[Entity]struct{}
	stores []componentStore
	buf    *Buffer
}

// NewWorld creates an empty World.
//
// Postcondition: Returns a World with no live entities and no stores.
func NewWorld() *World {
	w := &World{live: make(map[Entity]struct{})}
	w.buf = newBuffer(&w.next)
	return w
}

// Register creates a component store for T and registers it with w so that
// despawned entities are stripped from it.
//
// Precondition: id must be unique within w.
func Register[T any](w *World, id ComponentID) *Store[T] {
	s := newStore[T](id)
	w.stores = append(w.stores, s)
	return s
}

// Buffer returns the world's deferred structural-change buffer.
func (w *World) Buffer() *Buffer { return w.buf }

// IsLive reports whether e has been spawned and not yet despawned.
func (w *World) IsLive(e Entity) bool {
	_, ok := w.live[e]
	return ok
}

// Len returns the number of live entities.
func (w *World) Len() int { return len(w.live) }

// Flush applies every pending buffered operation in record order. This is the
// synchronization barrier between systems.
//
// Spawns make entities live; despawns make them not live immediately so that
// later attaches in the same flush are skipped, and strip their components
// once all operations have been applied.
//
// Postcondition: the buffer is empty; returns the number of operations drained.
func (w *World) Flush() int {
	ops := w.buf.drain()
	var dead map[Entity]struct{}
	for _, o := range ops {
		switch o.kind {
		case opSpawn:
			w.live[o.entity] = struct{}{}
		case opDespawn:
			if _, ok := w.live[o.entity]; !ok {
				continue
			}
			delete(w.live, o.entity)
			if dead == nil {
				dead = make(map[Entity]struct{})
			}
			dead[o.entity] = struct{}{}
		case opAttach, opDetach:
			if _, ok := w.live[o.entity]; ok {
				o.apply()
			}
		}
	}
	if len(dead) > 0 {
		for _, s := range w.stores {
			s.removeBatch(dead)
		}
	}
	return len(ops)
}

// Clear removes every entity and component. Pending buffered operations are
// discarded. Entity IDs keep increasing.
func (w *World) Clear() {
	w.buf.drain()
	w.live = make(map[Entity]struct{})
	for _, s := range w.stores {
		s.clear()
	}
}

// QueryBuilder intersects component stores.
//
//	for _, e := range w.Query().With(positions).With(sides).Execute() {
//	    ...
//	}
type QueryBuilder struct {
	world  *World
	stores []Queryable
}

// Query starts a query over w.
func (w *World) Query() *QueryBuilder {
	return &QueryBuilder{world: w, stores: make([]Queryable, 0, 4)}
}

// With restricts the query to entities holding a component in s.
func (q *QueryBuilder) With(s Queryable) *QueryBuilder {
	q.stores = append(q.stores, s)
	return q
}

// Execute returns the live entities present in every store, in ascending ID
// (spawn) order. Each call recomputes the result, so a QueryBuilder may be
// executed again after a flush.
//
// Postcondition: Returns an empty slice when no stores were given.
func (q *QueryBuilder) Execute() []Entity {
	if len(q.stores) == 0 {
		return []Entity{}
	}
	stores := make([]Queryable, len(q.stores))
	copy(stores, q.stores)
	sort.Slice(stores, func(i, j int) bool { return stores[i].Len() < stores[j].Len() })

	candidates := stores[0].Entities()
	for _, s := range stores[1:] {
		filtered := candidates[:0]
		for _, e := range candidates {
			if s.Has(e) {
				filtered = append(filtered, e)
			}
		}
		candidates = filtered
		if len(candidates) == 0 {
			break
		}
	}
	out := candidates[:0]
	for _, e := range candidates {
		if q.world.IsLive(e) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
