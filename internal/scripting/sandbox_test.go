package scripting_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	lua "github.com/yuin/gopher-lua"
	"pgregory.net/rapid"

	"github.com/cory-johannsen/skirmish/internal/scripting"
)

func TestNewSandbox_UnsafeLibsNil(t *testing.T) {
	sb := scripting.NewSandbox(0)
	defer sb.Close()
	for _, name := range []string{"os", "io", "debug"} {
		assert.Equal(t, lua.LNil, sb.L.GetGlobal(name), "expected %s to be nil", name)
	}
}

func TestNewSandbox_DangerousGlobalsNil(t *testing.T) {
	sb := scripting.NewSandbox(0)
	defer sb.Close()
	for _, name := range []string{"dofile", "loadfile", "load", "collectgarbage", "require"} {
		assert.Equal(t, lua.LNil, sb.L.GetGlobal(name), "expected %s to be nil", name)
	}
}

func TestNewSandbox_SafeLibsAvailable(t *testing.T) {
	sb := scripting.NewSandbox(0)
	defer sb.Close()
	err := sb.DoString(`
		local x = math.sqrt(4)
		assert(x == 2.0, "math.sqrt failed")
		local s = string.upper("hello")
		assert(s == "HELLO", "string.upper failed")
	`)
	assert.NoError(t, err)
}

func TestNewSandbox_DefaultLimit(t *testing.T) {
	sb := scripting.NewSandbox(0)
	defer sb.Close()
	assert.Equal(t, scripting.DefaultInstructionLimit, sb.Limit())
}

func TestSandbox_InstructionLimitExceeded(t *testing.T) {
	sb := scripting.NewSandbox(10)
	defer sb.Close()
	assert.Error(t, sb.DoString(`while true do end`))
}

func TestSandbox_BudgetIsPerEntry(t *testing.T) {
	sb := scripting.NewSandbox(500)
	defer sb.Close()
	require.NoError(t, sb.DoString(`
		function work()
			local n = 0
			for i = 1, 20 do n = n + i end
			return n
		end
	`))
	// Many calls together exceed the budget; each one alone does not.
	for i := 0; i < 50; i++ {
		ret, err := sb.Call("work")
		require.NoError(t, err)
		assert.Equal(t, lua.LNumber(210), ret)
	}
}

func TestSandbox_RecoversAfterExhaustedCall(t *testing.T) {
	sb := scripting.NewSandbox(200)
	defer sb.Close()
	require.NoError(t, sb.DoString(`
		function spin() while true do end end
		function one() return 1 end
	`))
	_, err := sb.Call("spin")
	require.Error(t, err)
	ret, err := sb.Call("one")
	require.NoError(t, err)
	assert.Equal(t, lua.LNumber(1), ret)
}

func TestSandbox_CallMissingFunction(t *testing.T) {
	sb := scripting.NewSandbox(0)
	defer sb.Close()
	ret, err := sb.Call("nope")
	assert.NoError(t, err)
	assert.Equal(t, lua.LNil, ret)
}

func TestProperty_InstructionLimitAlwaysErrors(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		limit := rapid.IntRange(1, 50).Draw(t, "limit")
		sb := scripting.NewSandbox(limit)
		defer sb.Close()
		if err := sb.DoString(`while true do end`); err == nil {
			t.Fatalf("expected error with limit=%d but got nil", limit)
		}
	})
}
