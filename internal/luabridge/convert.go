package luabridge

import (
	"fmt"

	lua "github.com/yuin/gopher-lua"
)

// mapToTable converts a Go map to a Lua table.
func mapToTable(L *lua.LState, data map[string]any) *lua.LTable {
	tbl := L.NewTable()
	for k, v := range data {
		tbl.RawSetString(k, toLValue(L, v))
	}
	return tbl
}

// tableToMap converts a Lua table to a Go map. Non-string keys are skipped.
func tableToMap(tbl *lua.LTable) map[string]any {
	result := make(map[string]any)
	tbl.ForEach(func(key, value lua.LValue) {
		if k, ok := key.(lua.LString); ok {
			result[string(k)] = fromLValue(value)
		}
	})
	return result
}

func toLValue(L *lua.LState, v any) lua.LValue {
	switch val := v.(type) {
	case nil:
		return lua.LNil
	case bool:
		return lua.LBool(val)
	case int:
		return lua.LNumber(val)
	case int64:
		return lua.LNumber(val)
	case float64:
		return lua.LNumber(val)
	case string:
		return lua.LString(val)
	case []any:
		tbl := L.NewTable()
		for i, item := range val {
			tbl.RawSetInt(i+1, toLValue(L, item))
		}
		return tbl
	case map[string]any:
		return mapToTable(L, val)
	default:
		return lua.LString(fmt.Sprintf("%v", val))
	}
}

func fromLValue(v lua.LValue) any {
	switch val := v.(type) {
	case lua.LBool:
		return bool(val)
	case lua.LNumber:
		return float64(val)
	case lua.LString:
		return string(val)
	case *lua.LTable:
		if n := val.Len(); n > 0 && val.MaxN() == n {
			arr := make([]any, n)
			for i := 1; i <= n; i++ {
				arr[i-1] = fromLValue(val.RawGetInt(i))
			}
			return arr
		}
		return tableToMap(val)
	default:
		if v == nil || v == lua.LNil {
			return nil
		}
		return v.String()
	}
}
