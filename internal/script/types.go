// Package script compiles mod-authored behavior scripts and runs them against
// the simulation: compilation, the type/factory/reference caches, the loader
// that preloads everything at startup, and the runtime base every behavior
// builds on.
package script

import (
	lua "github.com/yuin/gopher-lua"
)

// Behavior is the contract every script satisfies. Embed Base to get no-op
// hooks and the runtime facilities.
type Behavior interface {
	ScriptBase() *Base
	Initialize(ctx *Context) error
	RegisterEventHandlers(ctx *Context) error
	OnUnload()
}

// Constructor builds a fresh, unbound behavior.
type Constructor func() (Behavior, error)

// CompiledType is the executable unit produced by a Compiler.
type CompiledType interface {
	// Name is unique per compilation.
	Name() string
	// Constructor returns nil when the type cannot be built without arguments.
	Constructor() Constructor
}

// Reference is one compiled library a script may require.
type Reference struct {
	Module string // require name, "{modID}.{stem}"
	ModID  string
	Path   string
	Proto  *lua.FunctionProto
}

// ReferenceSet is an ordered, duplicate-free list of references.
type ReferenceSet []*Reference

// Has reports whether module is in the set.
func (rs ReferenceSet) Has(module string) bool {
	for _, r := range rs {
		if r.Module == module {
			return true
		}
	}
	return false
}

// Modules lists the module names in order.
func (rs ReferenceSet) Modules() []string {
	out := make([]string, len(rs))
	for i, r := range rs {
		out[i] = r.Module
	}
	return out
}

// NativeType wraps a Go behavior so it can be cached and constructed like a
// compiled script. A nil ctor yields a type without a constructor.
func NativeType(name string, ctor func() Behavior) CompiledType {
	return &nativeType{name: name, ctor: ctor}
}

type nativeType struct {
	name string
	ctor func() Behavior
}

func (t *nativeType) Name() string { return t.name }

func (t *nativeType) Constructor() Constructor {
	if t.ctor == nil {
		return nil
	}
	return func() (Behavior, error) { return t.ctor(), nil }
}
