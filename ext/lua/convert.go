package lua

import (
	"fmt"

	lua "github.com/yuin/gopher-lua"

	"github.com/joncooperworks/xmlharness/ext"
)

// toLua converts an extension argument to a Lua value. Sequences become array tables.
func toLua(L *lua.LState, v any) lua.LValue {
	switch x := v.(type) {
	case nil:
		return lua.LNil
	case bool:
		return lua.LBool(x)
	case int:
		return lua.LNumber(x)
	case int64:
		return lua.LNumber(x)
	case float64:
		return lua.LNumber(x)
	case string:
		return lua.LString(x)
	case ext.Node:
		return lua.LString(x.Text())
	case []any:
		t := L.NewTable()
		for _, item := range x {
			t.Append(toLua(L, item))
		}
		return t
	}
	if ext.IsEmpty(v) {
		return lua.LNil
	}
	return lua.LString(fmt.Sprint(v))
}

// fromLua converts a Lua result. nil maps to the empty sequence and array
// tables to sequences; the declared result type does the final coercion.
func fromLua(lv lua.LValue) any {
	switch v := lv.(type) {
	case lua.LBool:
		return bool(v)
	case lua.LNumber:
		return float64(v)
	case lua.LString:
		return string(v)
	case *lua.LTable:
		var items []any
		v.ForEach(func(k, item lua.LValue) {
			if _, ok := k.(lua.LNumber); ok {
				items = append(items, fromLua(item))
			}
		})
		if items == nil {
			return ext.Empty
		}
		return items
	}
	return ext.Empty
}
