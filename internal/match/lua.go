package match

import (
	"context"
	"fmt"
	"strings"
	"time"

	lua "github.com/yuin/gopher-lua"
	"github.com/yuin/gopher-lua/parse"
)

// luaEvalTimeout bounds a single model predicate evaluation.
const luaEvalTimeout = 100 * time.Millisecond

// sandboxedGlobals are removed from the base library before evaluation.
var sandboxedGlobals = []string{
	"dofile", "loadfile", "load", "loadstring", "require", "module",
	"getfenv", "setfenv", "collectgarbage",
}

// luaModel is a model predicate written as a Lua expression over the global
// `model`, e.g. `string.find(model, "motion") ~= nil`.
type luaModel struct {
	expr  string
	proto *lua.FunctionProto
}

// LuaModel compiles a Lua boolean expression into a ModelFilter. Syntax
// errors are reported here; runtime errors evaluate to no match.
func LuaModel(expr string) (ModelFilter, error) {
	src := "return " + expr
	chunk, err := parse.Parse(strings.NewReader(src), "model_expr")
	if err != nil {
		return nil, fmt.Errorf("%w: model_expr %q: %v", ErrInvalidRule, expr, err)
	}
	proto, err := lua.Compile(chunk, "model_expr")
	if err != nil {
		return nil, fmt.Errorf("%w: model_expr %q: %v", ErrInvalidRule, expr, err)
	}
	return &luaModel{expr: expr, proto: proto}, nil
}

func (m *luaModel) MatchModel(model string) bool {
	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	defer L.Close()

	// Sandbox: only base and string, minus every way to load code.
	for _, lib := range []struct {
		name string
		open lua.LGFunction
	}{
		{lua.BaseLibName, lua.OpenBase},
		{lua.StringLibName, lua.OpenString},
	} {
		L.Push(L.NewFunction(lib.open))
		L.Push(lua.LString(lib.name))
		L.Call(1, 0)
	}
	for _, name := range sandboxedGlobals {
		L.SetGlobal(name, lua.LNil)
	}

	ctx, cancel := context.WithTimeout(context.Background(), luaEvalTimeout)
	defer cancel()
	L.SetContext(ctx)

	L.SetGlobal("model", lua.LString(model))
	L.Push(L.NewFunctionFromProto(m.proto))
	if err := L.PCall(0, 1, nil); err != nil {
		return false
	}
	ret := L.Get(-1)
	L.Pop(1)
	return lua.LVAsBool(ret)
}

func (m *luaModel) String() string {
	return m.expr
}
