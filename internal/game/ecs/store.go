package ecs

// Queryable is the read-only view of a component store used by queries.
type Queryable interface {
	// ID returns the component identifier of the store.
	ID() ComponentID
	// Has reports whether e has this component.
	Has(e Entity) bool
	// Len returns the number of entities holding this component.
	Len() int
	// Entities returns the entities holding this component in attach order.
	Entities() []Entity
}

// componentStore adds the lifecycle operations World needs to strip
// components from despawned entities without knowing the concrete type.
type componentStore interface {
	Queryable
	removeBatch(dead map[Entity]struct{})
	clear()
}

// Store holds every component of type T, one value per entity.
//
// Values live in a dense slice indexed through a sparse map. Pointers returned
// by Get stay valid until the next World.Flush; they must not be retained
// across a barrier.
type Store[T any] struct {
	id       ComponentID
	index    map[Entity]int
	entities []Entity
	values   []T
}

func newStore[T any](id ComponentID) *Store[T] {
	return &Store[T]{
		id:       id,
		index:    make(map[Entity]int),
		entities: make([]Entity, 0, 64),
		values:   make([]T, 0, 64),
	}
}

// ID returns the component identifier this store was registered under.
func (s *Store[T]) ID() ComponentID { return s.id }

// Get returns a pointer to e's component for in-place reads and writes.
//
// Postcondition: Returns (nil, false) if e has no component of this type.
func (s *Store[T]) Get(e Entity) (*T, bool) {
	i, ok := s.index[e]
	if !ok {
		return nil, false
	}
	return &s.values[i], true
}

// Has reports whether e has a component in this store.
func (s *Store[T]) Has(e Entity) bool {
	_, ok := s.index[e]
	return ok
}

// Len returns the number of components in the store.
func (s *Store[T]) Len() int { return len(s.entities) }

// Entities returns a copy of the entity list in attach order.
func (s *Store[T]) Entities() []Entity {
	out := make([]Entity, len(s.entities))
	copy(out, s.entities)
	return out
}

// set inserts or overwrites e's component. Only called at a flush.
func (s *Store[T]) set(e Entity, v T) {
	if i, ok := s.index[e]; ok {
		s.values[i] = v
		return
	}
	s.index[e] = len(s.entities)
	s.entities = append(s.entities, e)
	s.values = append(s.values, v)
}

// remove deletes e's component, preserving the order of the rest.
func (s *Store[T]) remove(e Entity) {
	if _, ok := s.index[e]; !ok {
		return
	}
	s.removeBatch(map[Entity]struct{}{e: {}})
}

// removeBatch deletes every entity in dead with a single compaction pass.
func (s *Store[T]) removeBatch(dead map[Entity]struct{}) {
	if len(s.entities) == 0 || len(dead) == 0 {
		return
	}
	w := 0
	for r, e := range s.entities {
		if _, gone := dead[e]; gone {
			delete(s.index, e)
			continue
		}
		s.entities[w] = e
		s.values[w] = s.values[r]
		s.index[e] = w
		w++
	}
	var zero T
	for i := w; i < len(s.values); i++ {
		s.values[i] = zero
	}
	s.entities = s.entities[:w]
	s.values = s.values[:w]
}

func (s *Store[T]) clear() {
	s.index = make(map[Entity]int)
	s.entities = s.entities[:0]
	s.values = s.values[:0]
}
