package sandbox

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestFacades_Forwarding verifies each facade reaches its host callback.
func TestFacades_Forwarding(t *testing.T) {
	m := NewManager(testConfig())
	host := newFakeHost()
	host.data["greeting"] = "hello"

	code := `
		component.setValue("name", "Ada");
		component.setProperty("name", "color", "red");
		data.set("count", 3);
		page.navigate("/orders", { tab: "open" });
		app.showMessage("saved", "success");
		app.setVariable("theme", "dark");
		result = {
			name: component.getValue("name"),
			color: component.getProperty("name", "color"),
			greeting: data.get("greeting"),
			pageId: page.getParams().id,
			theme: app.getVariable("theme"),
		};
	`
	res := m.ExecuteScript(context.Background(), "fwd", code, host.context(), nil)

	require.True(t, res.Success, res.Error)
	out := res.Result.(map[string]any)
	assert.Equal(t, "Ada", out["name"])
	assert.Equal(t, "red", out["color"])
	assert.Equal(t, "hello", out["greeting"])
	assert.Equal(t, "42", out["pageId"])
	assert.Equal(t, "dark", out["theme"])
	assert.EqualValues(t, 3, host.data["count"])
	assert.Equal(t, []string{"/orders"}, host.visited)
	assert.Equal(t, []string{"success:saved"}, host.messages)
}

// TestFacades_AsyncCalls verifies query and callAPI return promises settled by the host.
func TestFacades_AsyncCalls(t *testing.T) {
	m := NewManager(testConfig())

	code := `
		const q = await data.query("orders", { status: "open" });
		const api = await app.callAPI("/ping");
		let failed = "";
		try {
			await app.callAPI("/fail", {});
		} catch (e) {
			failed = e.message;
		}
		result = { rows: q.rows.length, status: q.params.status, ok: api.ok, failed };
	`
	res := m.ExecuteScript(context.Background(), "async", code, newFakeHost().context(), nil)

	require.True(t, res.Success, res.Error)
	out := res.Result.(map[string]any)
	assert.EqualValues(t, 2, out["rows"])
	assert.Equal(t, "open", out["status"])
	assert.Equal(t, true, out["ok"])
	assert.Equal(t, "upstream unavailable", out["failed"])
}

// TestFacades_ArgumentValidation verifies malformed arguments throw before reaching the host.
func TestFacades_ArgumentValidation(t *testing.T) {
	m := NewManager(testConfig())

	tests := []struct {
		name string
		code string
		want string
	}{
		{"component id not a string", `component.getValue(42)`, "component.getValue: componentId must be a non-empty string"},
		{"empty component id", `component.setValue("", 1)`, "component.setValue: componentId must be a non-empty string"},
		{"property not a string", `component.getProperty("a", {})`, "component.getProperty: property must be a non-empty string"},
		{"data key", `data.get(null)`, "data.get: key must be a non-empty string"},
		{"query params not an object", `data.query("q", "nope")`, "data.query: params must be an object"},
		{"navigate params array", `page.navigate("/x", [1])`, "page.navigate: params must be an object"},
		{"message level", `app.showMessage("hi", "loud")`, "app.showMessage: level must be one of info, success, warning, error"},
		{"callAPI endpoint", `app.callAPI(undefined)`, "app.callAPI: endpoint must be a non-empty string"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			host := newFakeHost()
			res := m.ExecuteScript(context.Background(), tt.name, tt.code, host.context(), nil)

			assert.False(t, res.Success)
			assert.Equal(t, "Script execution failed: "+tt.want, res.Error)
			assert.Empty(t, host.values)
			assert.Empty(t, host.messages)
		})
	}
}

// TestFacades_Unavailable verifies a nil host facade throws a descriptive error.
func TestFacades_Unavailable(t *testing.T) {
	m := NewManager(testConfig())

	for _, facade := range []string{"component", "data", "page", "app"} {
		t.Run(facade, func(t *testing.T) {
			code := map[string]string{
				"component": `component.getValue("x")`,
				"data":      `data.get("x")`,
				"page":      `page.refresh()`,
				"app":       `app.getVariable("x")`,
			}[facade]

			res := m.ExecuteScript(context.Background(), facade, code, HostContext{}, nil)

			assert.False(t, res.Success)
			assert.Equal(t, "Script execution failed: "+facade+" API is not available", res.Error)
		})
	}
}

// TestUtils covers the helper surface exposed as utils.
func TestUtils(t *testing.T) {
	fixed := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	m := NewManager(testConfig(), WithClock(func() time.Time { return fixed }))

	tests := []struct {
		name string
		code string
		want any
	}{
		{"now", `result = utils.now()`, fixed.UnixMilli()},
		{"isoNow", `result = utils.isoNow()`, "2024-03-01T12:00:00.000Z"},
		{"parseJSON", `result = utils.parseJSON('{"a":[1,2]}').a.length`, int64(2)},
		{"stringifyJSON", `result = utils.stringifyJSON({a: 1})`, `{"a":1}`},
		{"round digits", `result = utils.round(3.14159, 2)`, 3.14},
		{"floor", `result = utils.floor(2.7)`, int64(2)},
		{"ceil", `result = utils.ceil(2.1)`, int64(3)},
		{"abs", `result = utils.abs(-4)`, int64(4)},
		{"min", `result = utils.min(3, 1, 2)`, int64(1)},
		{"max", `result = utils.max(3, 1, 2)`, int64(3)},
		{"clamp", `result = utils.clamp(15, 0, 10)`, int64(10)},
		{"trim", `result = utils.trim("  x  ")`, "x"},
		{"upper", `result = utils.upper("abc")`, "ABC"},
		{"lower", `result = utils.lower("ABC")`, "abc"},
		{"includes string", `result = utils.includes("abcd", "bc")`, true},
		{"includes array", `result = utils.includes(["a", "b"], "b")`, true},
		{"includes other", `result = utils.includes(5, 5)`, false},
		{"isArray", `result = utils.isArray([1])`, true},
		{"isString", `result = utils.isString(1)`, false},
		{"isNumber NaN", `result = utils.isNumber(NaN)`, false},
		{"isNumber", `result = utils.isNumber(1.5)`, true},
		{"isObject array", `result = utils.isObject([])`, false},
		{"isObject", `result = utils.isObject({})`, true},
		{"length string", `result = utils.length("héllo")`, int64(5)},
		{"length object", `result = utils.length({a: 1, b: 2})`, int64(2)},
		{"length number", `result = utils.length(7)`, int64(0)},
		{"action timestamp", `result = utils.createAction("x").timestamp`, fixed.UnixMilli()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := m.ExecuteScript(context.Background(), tt.name, tt.code, HostContext{}, nil)
			require.True(t, res.Success, res.Error)
			assert.Equal(t, tt.want, res.Result)
		})
	}
}

// TestUtils_ParseJSONInvalid verifies malformed input throws a catchable Invalid JSON error.
func TestUtils_ParseJSONInvalid(t *testing.T) {
	m := NewManager(testConfig())

	caught := m.ExecuteScript(context.Background(), "caught", `
		try {
			utils.parseJSON("{bad");
			result = "parsed";
		} catch (e) {
			result = e.message;
		}
	`, HostContext{}, nil)
	require.True(t, caught.Success, caught.Error)
	msg, ok := caught.Result.(string)
	require.True(t, ok)
	assert.Regexp(t, `^Invalid JSON: `, msg)

	uncaught := m.ExecuteScript(context.Background(), "uncaught", `utils.parseJSON("nope")`, HostContext{}, nil)
	assert.False(t, uncaught.Success)
	assert.Regexp(t, `^Script execution failed: Invalid JSON: `, uncaught.Error)
}

// TestUtils_CreateActionUnique verifies every action gets its own id.
func TestUtils_CreateActionUnique(t *testing.T) {
	m := NewManager(testConfig())

	res := m.ExecuteScript(context.Background(), "ids", `
		result = { actions: [utils.createAction("a", 1), utils.createAction("a", 2)] };
	`, HostContext{}, nil)

	require.True(t, res.Success, res.Error)
	require.Len(t, res.Actions, 2)
	assert.NotEqual(t, res.Actions[0].ID, res.Actions[1].ID)
	assert.EqualValues(t, 2, res.Actions[1].Payload)
}
