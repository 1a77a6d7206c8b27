package script

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLuaCompiler_ValidScript(t *testing.T) {
	c := NewLuaCompiler()
	src := `
local host = require("modscript")
local b = {}
function b:initialize(ctx) end
return b
`
	first, err := c.Compile(src, "core/scripts/guard.lua", nil)
	require.NoError(t, err)
	second, err := c.Compile(src, "other/scripts/guard.lua", nil)
	require.NoError(t, err)

	assert.Contains(t, first.Name(), "guard_")
	assert.NotEqual(t, first.Name(), second.Name())
	assert.NotNil(t, first.Constructor())
	assert.Equal(t, first.(*luaType).Digest(), second.(*luaType).Digest())
}

func TestLuaCompiler_SyntaxError(t *testing.T) {
	_, err := NewLuaCompiler().Compile("local x = = 1\nreturn {}", "core/bad.lua", nil)

	var cerr *CompilationError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "core/bad.lua", cerr.Path)
	require.Len(t, cerr.Diagnostics, 1)
	assert.Equal(t, 1, cerr.Diagnostics[0].Line)
}

func TestLuaCompiler_ReportsEveryDiagnostic(t *testing.T) {
	src := `
local a = require("missing.one")
local b = require "missing.two"
local c = require("core.util")
local t = {}
`
	refs := ReferenceSet{{Module: "core.util"}}
	_, err := NewLuaCompiler().Compile(src, "core/multi.lua", refs)

	var cerr *CompilationError
	require.ErrorAs(t, err, &cerr)
	msgs := cerr.Messages()
	require.Len(t, msgs, 3)
	assert.Contains(t, msgs[0], "missing.one")
	assert.Contains(t, msgs[1], "missing.two")
	assert.Contains(t, msgs[2], "no script behavior")
}

func TestLuaCompiler_RequiresInsideFunctions(t *testing.T) {
	src := `
local b = {}
function b:initialize(ctx)
  if ctx then
    local lazy = require("late.module")
  end
end
return b
`
	_, err := NewLuaCompiler().Compile(src, "core/lazy.lua", nil)

	var cerr *CompilationError
	require.ErrorAs(t, err, &cerr)
	require.Len(t, cerr.Diagnostics, 1)
	assert.Equal(t, 5, cerr.Diagnostics[0].Line)
}

func TestLuaCompiler_RejectsConstantReturn(t *testing.T) {
	for _, src := range []string{"return nil", "return 42", "local x = 1", "return {}, {}"} {
		_, err := NewLuaCompiler().Compile(src, "core/c.lua", nil)
		var cerr *CompilationError
		assert.ErrorAs(t, err, &cerr, src)
	}
}

func TestLuaCompiler_Library(t *testing.T) {
	c := NewLuaCompiler()
	proto, err := c.CompileLibrary("local M = {}\nfunction M.twice(x) return x * 2 end\nreturn M", "core/lib/util.lua")
	require.NoError(t, err)
	assert.NotNil(t, proto)

	_, err = c.CompileLibrary("function (", "core/lib/bad.lua")
	var cerr *CompilationError
	assert.ErrorAs(t, err, &cerr)
}
