package ecs

import (
	"sync"
	"sync/atomic"
)

type opKind uint8

const (
	opSpawn opKind = iota
	opDespawn
	opAttach
	opDetach
)

// op is one recorded structural change. apply is set for attach and detach.
type op struct {
	kind   opKind
	entity Entity
	apply  func()
}

// Buffer records structural changes during a system pass. Nothing recorded
// here is visible until World.Flush runs at the next barrier.
//
// Buffer is safe for concurrent use; operations apply in record order.
type Buffer struct {
	mu   sync.Mutex
	next *atomic.Uint64
	ops  []op
}

func newBuffer(next *atomic.Uint64) *Buffer {
	return &Buffer{next: next, ops: make([]op, 0, 64)}
}

func (b *Buffer) record(o op) {
	b.mu.Lock()
	b.ops = append(b.ops, o)
	b.mu.Unlock()
}

// Spawn reserves a new entity ID and records its creation. The entity becomes
// live at the next flush; record its components with Attach after Spawn.
//
// Postcondition: Returns a fresh, never-before-used Entity.
func (b *Buffer) Spawn() Entity {
	e := Entity(b.next.Add(1))
	b.record(op{kind: opSpawn, entity: e})
	return e
}

// Despawn records removal of e and all its components. A no-op at flush time
// if e is already gone.
func (b *Buffer) Despawn(e Entity) {
	b.record(op{kind: opDespawn, entity: e})
}

// Len returns the number of pending operations.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.ops)
}

func (b *Buffer) drain() []op {
	b.mu.Lock()
	defer b.mu.Unlock()
	ops := b.ops
	b.ops = make([]op, 0, cap(ops))
	return ops
}

// Attach records setting e's component in s to v, replacing any existing one.
// Skipped at flush time if e is not live.
func Attach[T any](b *Buffer, s *Store[T], e Entity, v T) {
	b.record(op{kind: opAttach, entity: e, apply: func() { s.set(e, v) }})
}

// Detach records removal of e's component from s. Skipped at flush time if e
// is not live or has no such component.
func Detach[T any](b *Buffer, s *Store[T], e Entity) {
	b.record(op{kind: opDetach, entity: e, apply: func() { s.remove(e) }})
}
