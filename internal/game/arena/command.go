package arena

import (
	"fmt"

	"github.com/cory-johannsen/skirmish/internal/game/ecs"
)

// CommandKind identifies an order variant.
// The zero value (CommandUnknown) is intentionally invalid.
type CommandKind int

const (
	CommandUnknown    CommandKind = iota // zero value; intentionally invalid
	CommandAttack                        // engage Target
	CommandAttackMove                    // move toward Destination, engaging on the way
)

// String returns the human-readable name of the CommandKind.
func (k CommandKind) String() string {
	switch k {
	case CommandAttack:
		return "attack"
	case CommandAttackMove:
		return "attack_move"
	default:
		return "unknown"
	}
}

// Command is one queued order.
type Command struct {
	Kind        CommandKind
	Target      ecs.Entity // set for CommandAttack
	Destination Vec2       // set for CommandAttackMove
}

// Attack returns an attack order against target.
func Attack(target ecs.Entity) Command {
	return Command{Kind: CommandAttack, Target: target}
}

// AttackMove returns an attack-move order toward dest.
func AttackMove(dest Vec2) Command {
	return Command{Kind: CommandAttackMove, Destination: dest}
}

// String returns a short description such as "attack(e4)".
func (c Command) String() string {
	switch c.Kind {
	case CommandAttack:
		return fmt.Sprintf("attack(%s)", c.Target)
	case CommandAttackMove:
		return fmt.Sprintf("attack_move(%.2f,%.2f)", c.Destination.X, c.Destination.Y)
	default:
		return "unknown"
	}
}

// CommandQueue holds a unit's orders. Despite the name it is a stack: a new
// order is pushed to the front and interrupts whatever was queued, and the
// front is always the active order.
//
// Invariant: after command pruning, the front is never an attack on an entity
// that is no longer live.
type CommandQueue struct {
	// stack[len-1] is the front.
	stack []Command
}

// NewCommandQueue returns a queue whose front is orders[0].
func NewCommandQueue(orders ...Command) CommandQueue {
	q := CommandQueue{stack: make([]Command, 0, len(orders))}
	for i := len(orders) - 1; i >= 0; i-- {
		q.stack = append(q.stack, orders[i])
	}
	return q
}

// PushFront makes c the active order.
func (q *CommandQueue) PushFront(c Command) {
	q.stack = append(q.stack, c)
}

// PopFront removes and returns the active order.
//
// Postcondition: Returns (Command{}, false) when the queue is empty.
func (q *CommandQueue) PopFront() (Command, bool) {
	n := len(q.stack)
	if n == 0 {
		return Command{}, false
	}
	c := q.stack[n-1]
	q.stack = q.stack[:n-1]
	return c, true
}

// Front returns the active order without removing it.
func (q CommandQueue) Front() (Command, bool) {
	n := len(q.stack)
	if n == 0 {
		return Command{}, false
	}
	return q.stack[n-1], true
}

// Len returns the number of queued orders.
func (q CommandQueue) Len() int { return len(q.stack) }

// Empty reports whether no orders are queued.
func (q CommandQueue) Empty() bool { return len(q.stack) == 0 }

// Commands returns a copy of the queued orders, front first.
func (q CommandQueue) Commands() []Command {
	out := make([]Command, 0, len(q.stack))
	for i := len(q.stack) - 1; i >= 0; i-- {
		out = append(out, q.stack[i])
	}
	return out
}
