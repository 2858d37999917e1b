package sandbox

import (
	"fmt"
	"math"
	"strings"

	"github.com/dop251/goja"
	"github.com/google/uuid"
)

const isoMillis = "2006-01-02T15:04:05.000Z"

func (ex *execution) utilsObject() *goja.Object {
	utils := ex.vm.NewObject()
	vm := ex.vm

	jsonObj := vm.Get("JSON").ToObject(vm)
	jsonParse, _ := goja.AssertFunction(jsonObj.Get("parse"))
	jsonStringify, _ := goja.AssertFunction(jsonObj.Get("stringify"))

	set := func(name string, fn func(goja.FunctionCall) goja.Value) {
		_ = utils.Set(name, fn)
	}

	set("now", func(goja.FunctionCall) goja.Value {
		return vm.ToValue(ex.now().UnixMilli())
	})
	set("isoNow", func(goja.FunctionCall) goja.Value {
		return vm.ToValue(ex.now().UTC().Format(isoMillis))
	})

	set("parseJSON", func(call goja.FunctionCall) goja.Value {
		text, ok := call.Argument(0).Export().(string)
		if !ok {
			panic(vm.NewTypeError("utils.parseJSON: text must be a string"))
		}
		v, err := jsonParse(jsonObj, vm.ToValue(text))
		if err != nil {
			exc, ok := err.(*goja.Exception)
			if !ok {
				panic(err)
			}
			ex.throwError(fmt.Errorf("Invalid JSON: %s", ex.describe(exc.Value())))
		}
		return v
	})
	set("stringifyJSON", func(call goja.FunctionCall) goja.Value {
		v, err := jsonStringify(jsonObj, call.Argument(0))
		if err != nil {
			panic(err)
		}
		return v
	})

	set("createAction", func(call goja.FunctionCall) goja.Value {
		typ, ok := call.Argument(0).Export().(string)
		if !ok || typ == "" {
			panic(vm.NewTypeError("utils.createAction: type must be a non-empty string"))
		}
		action := vm.NewObject()
		_ = action.Set("type", typ)
		_ = action.Set("payload", call.Argument(1))
		_ = action.Set("timestamp", ex.now().UnixMilli())
		_ = action.Set("id", uuid.NewString())
		return action
	})

	// math
	set("round", func(call goja.FunctionCall) goja.Value {
		x := call.Argument(0).ToFloat()
		digits := 0.0
		if d := call.Argument(1); !goja.IsUndefined(d) {
			digits = d.ToFloat()
		}
		p := math.Pow(10, digits)
		return vm.ToValue(math.Floor(x*p+0.5) / p)
	})
	set("floor", func(call goja.FunctionCall) goja.Value {
		return vm.ToValue(math.Floor(call.Argument(0).ToFloat()))
	})
	set("ceil", func(call goja.FunctionCall) goja.Value {
		return vm.ToValue(math.Ceil(call.Argument(0).ToFloat()))
	})
	set("abs", func(call goja.FunctionCall) goja.Value {
		return vm.ToValue(math.Abs(call.Argument(0).ToFloat()))
	})
	set("min", func(call goja.FunctionCall) goja.Value {
		return vm.ToValue(reduceFloats(call.Arguments, math.Inf(1), math.Min))
	})
	set("max", func(call goja.FunctionCall) goja.Value {
		return vm.ToValue(reduceFloats(call.Arguments, math.Inf(-1), math.Max))
	})
	set("clamp", func(call goja.FunctionCall) goja.Value {
		v := call.Argument(0).ToFloat()
		lo := call.Argument(1).ToFloat()
		hi := call.Argument(2).ToFloat()
		return vm.ToValue(math.Min(math.Max(v, lo), hi))
	})

	// strings
	stringFn := func(name string, f func(string) string) {
		set(name, func(call goja.FunctionCall) goja.Value {
			s, ok := call.Argument(0).Export().(string)
			if !ok {
				panic(vm.NewTypeError("utils.%s: value must be a string", name))
			}
			return vm.ToValue(f(s))
		})
	}
	stringFn("trim", strings.TrimSpace)
	stringFn("upper", strings.ToUpper)
	stringFn("lower", strings.ToLower)
	set("includes", func(call goja.FunctionCall) goja.Value {
		switch haystack := call.Argument(0).Export().(type) {
		case string:
			needle, ok := call.Argument(1).Export().(string)
			return vm.ToValue(ok && strings.Contains(haystack, needle))
		case []any:
			needle := call.Argument(1)
			for _, item := range haystack {
				if vm.ToValue(item).StrictEquals(needle) {
					return vm.ToValue(true)
				}
			}
			return vm.ToValue(false)
		default:
			return vm.ToValue(false)
		}
	})

	// introspection
	set("isArray", func(call goja.FunctionCall) goja.Value {
		_, ok := call.Argument(0).Export().([]any)
		return vm.ToValue(ok)
	})
	set("isString", func(call goja.FunctionCall) goja.Value {
		_, ok := call.Argument(0).Export().(string)
		return vm.ToValue(ok)
	})
	set("isNumber", func(call goja.FunctionCall) goja.Value {
		switch n := call.Argument(0).Export().(type) {
		case int64:
			return vm.ToValue(true)
		case float64:
			return vm.ToValue(!math.IsNaN(n))
		default:
			return vm.ToValue(false)
		}
	})
	set("isObject", func(call goja.FunctionCall) goja.Value {
		_, ok := call.Argument(0).Export().(map[string]any)
		return vm.ToValue(ok)
	})
	set("length", func(call goja.FunctionCall) goja.Value {
		switch v := call.Argument(0).Export().(type) {
		case string:
			return vm.ToValue(len([]rune(v)))
		case []any:
			return vm.ToValue(len(v))
		case map[string]any:
			return vm.ToValue(len(v))
		default:
			return vm.ToValue(0)
		}
	})

	return utils
}

func reduceFloats(args []goja.Value, start float64, f func(a, b float64) float64) float64 {
	acc := start
	for _, a := range args {
		acc = f(acc, a.ToFloat())
	}
	return acc
}
