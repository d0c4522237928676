// Package scripting runs sandboxed GopherLua battle scripts. It has no
// dependency on game packages; the battle API is injected through Manager
// callback fields.
package scripting

import (
	"context"
	"sync/atomic"

	lua "github.com/yuin/gopher-lua"
)

// DefaultInstructionLimit is the maximum number of Lua opcodes a single script
// entry (file load or hook call) may execute when no override is configured.
const DefaultInstructionLimit = 100_000

// countingContext is a context.Context that cancels itself after Done() has
// been called limit times. GopherLua's mainLoopWithContext calls Done() once
// per opcode, making this an exact instruction-count limit.
type countingContext struct {
	context.Context
	cancel    context.CancelFunc
	remaining *atomic.Int64
}

// Done decrements the remaining counter and fires cancel when it reaches zero.
func (c *countingContext) Done() <-chan struct{} {
	if c.remaining.Add(-1) <= 0 {
		c.cancel()
	}
	return c.Context.Done()
}

// newCountingContext returns a context that cancels after limit calls to Done().
// Precondition: limit > 0.
func newCountingContext(limit int) (context.Context, context.CancelFunc) {
	base, cancel := context.WithCancel(context.Background())
	rem := &atomic.Int64{}
	rem.Store(int64(limit))
	return &countingContext{
		Context:   base,
		cancel:    cancel,
		remaining: rem,
	}, cancel
}

// Sandbox is a GopherLua state with:
//   - Only safe stdlib loaded: base, table, string, math
//   - Dangerous globals removed: dofile, loadfile, load, collectgarbage, require
//   - Every entry limited to at most Limit opcodes
//
// A Sandbox is single-threaded.
type Sandbox struct {
	L     *lua.LState
	limit int
}

// NewSandbox creates a Sandbox.
//
// Precondition: instLimit >= 0; 0 uses DefaultInstructionLimit.
// Postcondition: Returns a Sandbox ready for globals and DoFile. The caller
// must call Close when done.
func NewSandbox(instLimit int) *Sandbox {
	limit := instLimit
	if limit <= 0 {
		limit = DefaultInstructionLimit
	}

	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	lua.OpenBase(L)
	lua.OpenTable(L)
	lua.OpenString(L)
	lua.OpenMath(L)
	for _, name := range []string{"dofile", "loadfile", "load", "collectgarbage", "require"} {
		L.SetGlobal(name, lua.LNil)
	}
	return &Sandbox{L: L, limit: limit}
}

// Limit returns the per-entry opcode budget.
func (s *Sandbox) Limit() int { return s.limit }

// budgeted runs fn with a fresh opcode budget.
func (s *Sandbox) budgeted(fn func() error) error {
	ctx, cancel := newCountingContext(s.limit)
	defer cancel()
	s.L.SetContext(ctx)
	defer s.L.RemoveContext()
	return fn()
}

// DoString executes src under a fresh budget.
func (s *Sandbox) DoString(src string) error {
	return s.budgeted(func() error { return s.L.DoString(src) })
}

// DoFile executes the file at path under a fresh budget.
func (s *Sandbox) DoFile(path string) error {
	return s.budgeted(func() error { return s.L.DoFile(path) })
}

// Call invokes the global function name under a fresh budget.
//
// Postcondition: Returns (LNil, nil) when name is not a function; otherwise
// the first return value or the Lua error.
func (s *Sandbox) Call(name string, args ...lua.LValue) (lua.LValue, error) {
	fn, ok := s.L.GetGlobal(name).(*lua.LFunction)
	if !ok {
		return lua.LNil, nil
	}
	err := s.budgeted(func() error {
		return s.L.CallByParam(lua.P{Fn: fn, NRet: 1, Protect: true}, args...)
	})
	if err != nil {
		return lua.LNil, err
	}
	ret := s.L.Get(-1)
	s.L.Pop(1)
	return ret, nil
}

// Close releases the Lua state.
func (s *Sandbox) Close() { s.L.Close() }
