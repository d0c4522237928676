// Package ecs provides the entity/component store the combat core runs on:
// typed component stores, monotonically allocated entity IDs, and a deferred
// structural-change buffer that is applied only at system barriers.
package ecs

import "strconv"

// Entity is an opaque entity identifier.
//
// IDs are allocated in increasing order and never reused, so ascending ID order
// is spawn order and a stale Entity can never alias a newer one. Holding an
// Entity does not guarantee the entity is still live; see World.IsLive.
type Entity uint64

// Nil is the zero Entity. It is never allocated.
const Nil Entity = 0

// String returns the entity in "e<id>" form.
func (e Entity) String() string {
	return "e" + strconv.FormatUint(uint64(e), 10)
}

// ComponentID names a component type for access declarations.
type ComponentID string

// Access declares the component set a system reads and writes during its pass.
type Access struct {
	Reads  []ComponentID
	Writes []ComponentID
}

// ConflictsWith reports whether a and b cannot run concurrently: one writes a
// component the other reads or writes.
func (a Access) ConflictsWith(b Access) bool {
	return overlaps(a.Writes, b.Writes) || overlaps(a.Writes, b.Reads) || overlaps(b.Writes, a.Reads)
}

func overlaps(xs, ys []ComponentID) bool {
	for _, x := range xs {
		for _, y := range ys {
			if x == y {
				return true
			}
		}
	}
	return false
}
