package script

import (
	"fmt"
	"math"
	"sort"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"

	"github.com/l1jgo/modscript/internal/core/ecs"
	"github.com/l1jgo/modscript/internal/core/event"
	"github.com/l1jgo/modscript/internal/vars"
)

// luaType is a compiled Lua behavior. The proto is shared read-only between
// the VMs of every instance built from it.
type luaType struct {
	name   string
	path   string
	digest string
	proto  *lua.FunctionProto
	refs   ReferenceSet
}

func (t *luaType) Name() string             { return t.name }
func (t *luaType) Constructor() Constructor { return t.construct }

// Digest is a short hash of the source text.
func (t *luaType) Digest() string { return t.digest }

// construct gives the instance its own VM, runs the chunk and wraps the
// returned table.
func (t *luaType) construct() (Behavior, error) {
	L := newSandbox()
	L.PreloadModule(HostModule, openHostModule)
	for _, ref := range t.refs {
		L.PreloadModule(ref.Module, protoLoader(ref.Proto))
	}
	L.Push(L.NewFunctionFromProto(t.proto))
	if err := L.PCall(0, 1, nil); err != nil {
		L.Close()
		return nil, fmt.Errorf("run %s: %w", t.path, err)
	}
	ret := L.Get(-1)
	L.Pop(1)
	self, ok := ret.(*lua.LTable)
	if !ok {
		L.Close()
		return nil, fmt.Errorf("%s: chunk returned %s, want a behavior table", t.path, ret.Type())
	}
	b := &luaBehavior{L: L, self: self}
	b.installMethods()
	return b, nil
}

func newSandbox() *lua.LState {
	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	for _, lib := range []struct {
		name string
		fn   lua.LGFunction
	}{
		{lua.LoadLibName, lua.OpenPackage},
		{lua.BaseLibName, lua.OpenBase},
		{lua.TabLibName, lua.OpenTable},
		{lua.StringLibName, lua.OpenString},
		{lua.MathLibName, lua.OpenMath},
	} {
		L.Push(L.NewFunction(lib.fn))
		L.Push(lua.LString(lib.name))
		L.Call(1, 0)
	}
	L.SetGlobal("dofile", lua.LNil)
	L.SetGlobal("loadfile", lua.LNil)
	// require only sees preloaded modules; the file searcher is dropped.
	if loaders, ok := L.GetField(L.Get(lua.RegistryIndex), "_LOADERS").(*lua.LTable); ok {
		for loaders.Len() > 1 {
			loaders.Remove(loaders.Len())
		}
	}
	if pkg, ok := L.GetGlobal("package").(*lua.LTable); ok {
		pkg.RawSetString("path", lua.LString(""))
		pkg.RawSetString("cpath", lua.LString(""))
	}
	return L
}

func protoLoader(proto *lua.FunctionProto) lua.LGFunction {
	return func(L *lua.LState) int {
		L.Push(L.NewFunctionFromProto(proto))
		L.Call(0, 1)
		return 1
	}
}

// openHostModule is the "modscript" module: direction names and logging.
func openHostModule(L *lua.LState) int {
	mod := L.NewTable()
	dirs := L.NewTable()
	for _, d := range []vars.Direction{vars.DirectionDown, vars.DirectionUp, vars.DirectionLeft, vars.DirectionRight} {
		dirs.RawSetString(d.String(), lua.LString(d.String()))
	}
	mod.RawSetString("direction", dirs)
	L.SetFuncs(mod, map[string]lua.LGFunction{
		"opposite": func(L *lua.LState) int {
			d, err := vars.ParseDirection(L.CheckString(1))
			if err != nil {
				L.ArgError(1, err.Error())
			}
			L.Push(lua.LString(d.Opposite().String()))
			return 1
		},
		"delta": func(L *lua.LState) int {
			d, err := vars.ParseDirection(L.CheckString(1))
			if err != nil {
				L.ArgError(1, err.Error())
			}
			dx, dy := d.Delta()
			L.Push(lua.LNumber(dx))
			L.Push(lua.LNumber(dy))
			return 2
		},
	})
	L.Push(mod)
	return 1
}

// luaBehavior adapts a Lua behavior table to Behavior. Hooks are optional
// fields on the table: initialize(self, ctx), register_event_handlers(self,
// ctx) and on_unload(self).
type luaBehavior struct {
	Base
	L    *lua.LState
	self *lua.LTable
}

func (b *luaBehavior) Initialize(ctx *Context) error {
	return b.callHook("initialize", b.contextTable(ctx))
}

func (b *luaBehavior) RegisterEventHandlers(ctx *Context) error {
	return b.callHook("register_event_handlers", b.contextTable(ctx))
}

func (b *luaBehavior) OnUnload() {
	if err := b.callHook("on_unload"); err != nil {
		b.Log().Warn("lua on_unload failed", zap.String("script", b.ScriptID()), zap.Error(err))
	}
}

// Close releases the VM.
func (b *luaBehavior) Close() { b.L.Close() }

func (b *luaBehavior) callHook(name string, args ...lua.LValue) error {
	fn, ok := b.L.GetField(b.self, name).(*lua.LFunction)
	if !ok {
		return nil
	}
	return b.L.CallByParam(lua.P{Fn: fn, NRet: 0, Protect: true}, append([]lua.LValue{b.self}, args...)...)
}

func (b *luaBehavior) contextTable(ctx *Context) *lua.LTable {
	t := b.L.NewTable()
	t.RawSetString("script_id", lua.LString(ctx.ScriptID))
	t.RawSetString("mod_id", lua.LString(ctx.ModID))
	t.RawSetString("scope", lua.LString(ctx.Scope.String()))
	if id, ok := ctx.Entity(); ok {
		t.RawSetString("entity", toLua(b.L, id))
	}
	params := b.L.NewTable()
	for name, v := range ctx.Params {
		params.RawSetString(name, toLua(b.L, v))
	}
	t.RawSetString("params", params)
	return t
}

// handler wraps a Lua function as an event handler. Errors are logged; a
// failing handler never stops dispatch.
func (b *luaBehavior) handler(fn *lua.LFunction) event.Handler {
	return func(ev event.Event) {
		if err := b.L.CallByParam(lua.P{Fn: fn, NRet: 0, Protect: true}, b.self, eventTable(b.L, ev)); err != nil {
			b.Log().Error("lua event handler failed",
				zap.String("script", b.ScriptID()),
				zap.String("event", ev.Name()),
				zap.Error(err),
			)
		}
	}
}

// raise turns a Go error into a Lua error in the calling script.
func raise(L *lua.LState, err error) int {
	L.RaiseError("%s", err.Error())
	return 0
}

func (b *luaBehavior) installMethods() {
	L := b.L
	methods := L.NewTable()
	L.SetFuncs(methods, map[string]lua.LGFunction{
		"on": func(L *lua.LState) int {
			b.On(L.CheckString(2), b.handler(L.CheckFunction(3)))
			return 0
		},
		"on_entity": func(L *lua.LState) int {
			if _, err := b.OnEntity(L.CheckString(2), b.handler(L.CheckFunction(3))); err != nil {
				return raise(L, err)
			}
			return 0
		},
		"on_timer": func(L *lua.LState) int {
			h := b.handler(L.CheckFunction(2))
			b.OnTimer(func(ev event.TimerElapsed) { h(ev) })
			return 0
		},
		"emit": func(L *lua.LState) int {
			var data map[string]any
			if t := L.OptTable(3, nil); t != nil {
				m, ok := fromLua(t).(map[string]any)
				if !ok {
					return raise(L, fmt.Errorf("%w: emit data must be a table with string keys", ErrInvalidArgument))
				}
				data = m
			}
			if err := b.Emit(L.CheckString(2), data); err != nil {
				return raise(L, err)
			}
			return 0
		},
		"get": func(L *lua.LState) int {
			v, ok := b.Get(L.CheckString(2))
			if !ok {
				L.Push(L.Get(3))
				return 1
			}
			L.Push(toLua(L, v))
			return 1
		},
		"set": func(L *lua.LState) int {
			key := L.CheckString(2)
			if L.Get(3) == lua.LNil {
				b.Delete(key)
				return 0
			}
			if err := b.Set(key, fromLua(L.Get(3))); err != nil {
				return raise(L, err)
			}
			return 0
		},
		"start_timer": func(L *lua.LState) int {
			if err := b.StartTimer(L.CheckString(2), float64(L.CheckNumber(3)), L.OptBool(4, false)); err != nil {
				return raise(L, err)
			}
			return 0
		},
		"start_random_timer": func(L *lua.LState) int {
			d, err := b.StartRandomTimer(L.CheckString(2), float64(L.CheckNumber(3)), float64(L.CheckNumber(4)), L.OptBool(5, false))
			if err != nil {
				return raise(L, err)
			}
			L.Push(lua.LNumber(d))
			return 1
		},
		"update_timer": func(L *lua.LState) int {
			if err := b.UpdateTimer(L.CheckString(2), float64(L.CheckNumber(3))); err != nil {
				return raise(L, err)
			}
			return 0
		},
		"cancel_timer": func(L *lua.LState) int {
			b.CancelTimer(L.CheckString(2))
			return 0
		},
		"has_timer": func(L *lua.LState) int {
			L.Push(lua.LBool(b.HasTimer(L.CheckString(2))))
			return 1
		},
		"param_int": func(L *lua.LState) int {
			L.Push(lua.LNumber(b.ParamInt(L.CheckString(2), L.OptInt64(3, 0))))
			return 1
		},
		"param_float": func(L *lua.LState) int {
			L.Push(lua.LNumber(b.ParamFloat(L.CheckString(2), float64(L.OptNumber(3, 0)))))
			return 1
		},
		"param_bool": func(L *lua.LState) int {
			L.Push(lua.LBool(b.ParamBool(L.CheckString(2), L.OptBool(3, false))))
			return 1
		},
		"param_string": func(L *lua.LState) int {
			L.Push(lua.LString(b.ParamString(L.CheckString(2), L.OptString(3, ""))))
			return 1
		},
		"param_direction": func(L *lua.LState) int {
			def, _ := vars.ParseDirection(L.OptString(3, "none"))
			L.Push(lua.LString(b.ParamDirection(L.CheckString(2), def).String()))
			return 1
		},
		"require_entity": func(L *lua.LState) int {
			id, err := b.RequireEntity()
			if err != nil {
				return raise(L, err)
			}
			L.Push(toLua(L, id))
			return 1
		},
		"entity": func(L *lua.LState) int {
			id, err := b.RequireEntity()
			if err != nil {
				L.Push(lua.LNil)
				return 1
			}
			L.Push(toLua(L, id))
			return 1
		},
		"script_id": func(L *lua.LState) int {
			L.Push(lua.LString(b.ScriptID()))
			return 1
		},
		"random": func(L *lua.LState) int {
			L.Push(lua.LNumber(b.api.Rand().Float64()))
			return 1
		},
		"log": func(L *lua.LState) int {
			fields := []zap.Field{zap.String("script", b.ScriptID())}
			if id, err := b.RequireEntity(); err == nil {
				fields = append(fields, zap.Uint64("entity", uint64(id)))
			}
			switch msg := L.CheckString(3); L.CheckString(2) {
			case "debug":
				b.Log().Debug(msg, fields...)
			case "warn":
				b.Log().Warn(msg, fields...)
			case "error":
				b.Log().Error(msg, fields...)
			default:
				b.Log().Info(msg, fields...)
			}
			return 0
		},
	})

	// Chain an existing metatable so class-style behaviors keep their lookups.
	mt, _ := L.GetMetatable(b.self).(*lua.LTable)
	if mt == nil {
		mt = L.NewTable()
		L.SetMetatable(b.self, mt)
	} else if prev := L.GetField(mt, "__index"); prev != lua.LNil {
		fallback := L.NewTable()
		fallback.RawSetString("__index", prev)
		L.SetMetatable(methods, fallback)
	}
	L.SetField(mt, "__index", methods)
}

// toLua converts host values for scripts. Entity ids become numbers, the
// zero id becomes nil.
func toLua(L *lua.LState, v any) lua.LValue {
	switch x := v.(type) {
	case nil:
		return lua.LNil
	case lua.LValue:
		return x
	case bool:
		return lua.LBool(x)
	case string:
		return lua.LString(x)
	case int:
		return lua.LNumber(x)
	case int32:
		return lua.LNumber(x)
	case int64:
		return lua.LNumber(x)
	case uint64:
		return lua.LNumber(x)
	case float32:
		return lua.LNumber(x)
	case float64:
		return lua.LNumber(x)
	case ecs.EntityID:
		if x.IsZero() {
			return lua.LNil
		}
		return lua.LNumber(uint64(x))
	case vars.Direction:
		return lua.LString(x.String())
	case vars.Value:
		return toLua(L, x.V)
	case map[string]any:
		t := L.NewTable()
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			t.RawSetString(k, toLua(L, x[k]))
		}
		return t
	case []any:
		t := L.NewTable()
		for _, e := range x {
			t.Append(toLua(L, e))
		}
		return t
	}
	return lua.LString(fmt.Sprint(v))
}

// fromLua converts script values to host values. Integral numbers become
// int64, tables with only array keys become []any, other tables map[string]any.
func fromLua(v lua.LValue) any {
	switch x := v.(type) {
	case lua.LBool:
		return bool(x)
	case lua.LString:
		return string(x)
	case lua.LNumber:
		f := float64(x)
		if f == math.Trunc(f) && math.Abs(f) < 1<<53 {
			return int64(f)
		}
		return f
	case *lua.LTable:
		if n := x.Len(); n > 0 {
			arr := make([]any, 0, n)
			for i := 1; i <= n; i++ {
				arr = append(arr, fromLua(x.RawGetInt(i)))
			}
			return arr
		}
		m := make(map[string]any)
		x.ForEach(func(k, val lua.LValue) {
			m[k.String()] = fromLua(val)
		})
		return m
	}
	return nil
}

func eventTable(L *lua.LState, ev event.Event) *lua.LTable {
	t, _ := toLua(L, ev.Fields()).(*lua.LTable)
	t.RawSetString("name", lua.LString(ev.Name()))
	if id, ok := ev.Entity(); ok {
		t.RawSetString("entity", toLua(L, id))
	}
	return t
}
