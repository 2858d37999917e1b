package sandbox

import (
	"context"
	"fmt"

	"github.com/dop251/goja"
)

func (ex *execution) throwError(err error) {
	panic(ex.vm.NewGoError(err))
}

func (ex *execution) unavailable(facade string) {
	ex.throwError(fmt.Errorf("%s API is not available", facade))
}

// stringArg returns argument i as a non-empty string or throws a TypeError.
func (ex *execution) stringArg(call goja.FunctionCall, i int, method, name string) string {
	s, ok := call.Argument(i).Export().(string)
	if !ok || s == "" {
		panic(ex.vm.NewTypeError("%s: %s must be a non-empty string", method, name))
	}
	return s
}

// objectArg returns argument i as a plain object. Absent optional arguments
// yield nil; anything else that is not an object throws a TypeError.
func (ex *execution) objectArg(call goja.FunctionCall, i int, method, name string, optional bool) map[string]any {
	v := call.Argument(i)
	if optional && (goja.IsUndefined(v) || goja.IsNull(v)) {
		return nil
	}
	m, ok := v.Export().(map[string]any)
	if !ok {
		panic(ex.vm.NewTypeError("%s: %s must be an object", method, name))
	}
	return m
}

func (ex *execution) must(err error) {
	if err != nil {
		ex.throwError(err)
	}
}

func (ex *execution) componentFacade() *goja.Object {
	obj := ex.vm.NewObject()
	api := ex.host.Component

	_ = obj.Set("getValue", func(call goja.FunctionCall) goja.Value {
		if api == nil {
			ex.unavailable("component")
		}
		id := ex.stringArg(call, 0, "component.getValue", "componentId")
		v, err := api.GetValue(id)
		ex.must(err)
		return ex.vm.ToValue(v)
	})
	_ = obj.Set("setValue", func(call goja.FunctionCall) goja.Value {
		if api == nil {
			ex.unavailable("component")
		}
		id := ex.stringArg(call, 0, "component.setValue", "componentId")
		ex.must(api.SetValue(id, call.Argument(1).Export()))
		return goja.Undefined()
	})
	_ = obj.Set("getProperty", func(call goja.FunctionCall) goja.Value {
		if api == nil {
			ex.unavailable("component")
		}
		id := ex.stringArg(call, 0, "component.getProperty", "componentId")
		prop := ex.stringArg(call, 1, "component.getProperty", "property")
		v, err := api.GetProperty(id, prop)
		ex.must(err)
		return ex.vm.ToValue(v)
	})
	_ = obj.Set("setProperty", func(call goja.FunctionCall) goja.Value {
		if api == nil {
			ex.unavailable("component")
		}
		id := ex.stringArg(call, 0, "component.setProperty", "componentId")
		prop := ex.stringArg(call, 1, "component.setProperty", "property")
		ex.must(api.SetProperty(id, prop, call.Argument(2).Export()))
		return goja.Undefined()
	})
	return obj
}

func (ex *execution) dataFacade() *goja.Object {
	obj := ex.vm.NewObject()
	api := ex.host.Data

	_ = obj.Set("get", func(call goja.FunctionCall) goja.Value {
		if api == nil {
			ex.unavailable("data")
		}
		key := ex.stringArg(call, 0, "data.get", "key")
		v, err := api.Get(key)
		ex.must(err)
		return ex.vm.ToValue(v)
	})
	_ = obj.Set("set", func(call goja.FunctionCall) goja.Value {
		if api == nil {
			ex.unavailable("data")
		}
		key := ex.stringArg(call, 0, "data.set", "key")
		ex.must(api.Set(key, call.Argument(1).Export()))
		return goja.Undefined()
	})
	_ = obj.Set("query", func(call goja.FunctionCall) goja.Value {
		if api == nil {
			ex.unavailable("data")
		}
		name := ex.stringArg(call, 0, "data.query", "queryName")
		params := ex.objectArg(call, 1, "data.query", "params", true)
		return ex.async(func(ctx context.Context) (any, error) {
			return api.Query(ctx, name, params)
		})
	})
	return obj
}

func (ex *execution) pageFacade() *goja.Object {
	obj := ex.vm.NewObject()
	api := ex.host.Page

	_ = obj.Set("navigate", func(call goja.FunctionCall) goja.Value {
		if api == nil {
			ex.unavailable("page")
		}
		path := ex.stringArg(call, 0, "page.navigate", "path")
		params := ex.objectArg(call, 1, "page.navigate", "params", true)
		ex.must(api.Navigate(path, params))
		return goja.Undefined()
	})
	_ = obj.Set("getParams", func(call goja.FunctionCall) goja.Value {
		if api == nil {
			ex.unavailable("page")
		}
		params := api.Params()
		if params == nil {
			params = map[string]any{}
		}
		return ex.vm.ToValue(params)
	})
	_ = obj.Set("refresh", func(call goja.FunctionCall) goja.Value {
		if api == nil {
			ex.unavailable("page")
		}
		ex.must(api.Refresh())
		return goja.Undefined()
	})
	return obj
}

func (ex *execution) appFacade() *goja.Object {
	obj := ex.vm.NewObject()
	api := ex.host.App

	_ = obj.Set("showMessage", func(call goja.FunctionCall) goja.Value {
		if api == nil {
			ex.unavailable("app")
		}
		message := ex.stringArg(call, 0, "app.showMessage", "message")
		level := "info"
		if arg := call.Argument(1); !goja.IsUndefined(arg) {
			s, ok := arg.Export().(string)
			if !ok || !MessageLevels[s] {
				panic(ex.vm.NewTypeError("app.showMessage: level must be one of info, success, warning, error"))
			}
			level = s
		}
		ex.must(api.ShowMessage(level, message))
		return goja.Undefined()
	})
	_ = obj.Set("getVariable", func(call goja.FunctionCall) goja.Value {
		if api == nil {
			ex.unavailable("app")
		}
		name := ex.stringArg(call, 0, "app.getVariable", "name")
		v, err := api.GetVariable(name)
		ex.must(err)
		return ex.vm.ToValue(v)
	})
	_ = obj.Set("setVariable", func(call goja.FunctionCall) goja.Value {
		if api == nil {
			ex.unavailable("app")
		}
		name := ex.stringArg(call, 0, "app.setVariable", "name")
		ex.must(api.SetVariable(name, call.Argument(1).Export()))
		return goja.Undefined()
	})
	_ = obj.Set("callAPI", func(call goja.FunctionCall) goja.Value {
		if api == nil {
			ex.unavailable("app")
		}
		endpoint := ex.stringArg(call, 0, "app.callAPI", "endpoint")
		body := ex.objectArg(call, 1, "app.callAPI", "body", true)
		return ex.async(func(ctx context.Context) (any, error) {
			return api.CallAPI(ctx, endpoint, body)
		})
	})
	return obj
}
