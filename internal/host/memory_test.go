package host

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/liamcoop/formrules/fieldpath"
	"github.com/liamcoop/formrules/sandbox"
)

func TestMemoryHost_ComponentsAndData(t *testing.T) {
	h := NewMemoryHost()

	require.NoError(t, h.SetValue("name", "Ada"))
	require.NoError(t, h.SetProperty("name", "disabled", true))
	require.NoError(t, h.Set("k", 3))

	v, err := h.GetValue("name")
	require.NoError(t, err)
	assert.Equal(t, "Ada", v)

	p, err := h.GetProperty("name", "disabled")
	require.NoError(t, err)
	assert.Equal(t, true, p)

	missing, err := h.GetProperty("ghost", "x")
	require.NoError(t, err)
	assert.Nil(t, missing)

	assert.Equal(t, []string{"name"}, h.Components())

	state := h.Snapshot()
	assert.Equal(t, map[string]any{"k": 3}, state.Data)
	state.Data["k"] = 4
	got, _ := h.Get("k")
	assert.Equal(t, 3, got, "snapshot must not alias host state")
}

func TestMemoryHost_DataPaths(t *testing.T) {
	h := NewMemoryHost()

	customer := map[string]any{"name": "Ada", "tags": []any{"vip"}}
	require.NoError(t, h.Set("customer", customer))
	require.NoError(t, h.Set("customer.address.city", "London"))
	require.NoError(t, h.Set("customer.tags[1]", "beta"))

	assert.Equal(t, map[string]any{"name": "Ada", "tags": []any{"vip"}}, customer, "caller's value must not be mutated")

	city, err := h.Get("customer.address.city")
	require.NoError(t, err)
	assert.Equal(t, "London", city)

	tags, err := h.Get("customer.tags")
	require.NoError(t, err)
	assert.Equal(t, []any{"vip", "beta"}, tags)
	tags.([]any)[0] = "changed"
	again, _ := h.Get("customer.tags[0]")
	assert.Equal(t, "vip", again, "returned values must not alias host state")

	missing, err := h.Get("customer.phone")
	require.NoError(t, err)
	assert.Nil(t, missing)

	require.NoError(t, h.Set("customer.address", nil))
	assert.Equal(t, map[string]any{"name": "Ada", "tags": []any{"vip", "beta"}}, h.Snapshot().Data["customer"])

	_, err = h.Get("customer[")
	assert.ErrorIs(t, err, fieldpath.ErrInvalidPath)
	assert.ErrorIs(t, h.Set("items[99999]", 1), fieldpath.ErrInvalidPath)
}

func TestMemoryHost_Query(t *testing.T) {
	h := NewMemoryHost()
	h.RegisterQuery("double", func(ctx context.Context, params map[string]any) (any, error) {
		return params["n"].(int) * 2, nil
	})

	v, err := h.Query(context.Background(), "double", map[string]any{"n": 21})
	require.NoError(t, err)
	assert.Equal(t, 42, v)

	_, err = h.Query(context.Background(), "nope", nil)
	assert.True(t, errors.Is(err, ErrUnknownQuery))
}

func TestMemoryHost_PageAndApp(t *testing.T) {
	fixed := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	h := NewMemoryHost(WithPageParams(map[string]any{"id": "1"}), WithClock(func() time.Time { return fixed }))

	assert.Equal(t, map[string]any{"id": "1"}, h.Params())

	require.NoError(t, h.Navigate("/next", map[string]any{"id": "2"}))
	require.NoError(t, h.Refresh())
	require.NoError(t, h.ShowMessage("success", "saved"))
	require.NoError(t, h.SetVariable("theme", "dark"))

	state := h.Snapshot()
	assert.Equal(t, map[string]any{"id": "2"}, state.Params)
	assert.Equal(t, []Navigation{{Path: "/next", Params: map[string]any{"id": "2"}}}, state.History)
	assert.Equal(t, 1, state.Refreshes)
	assert.Equal(t, []Message{{Level: "success", Text: "saved", Time: fixed}}, state.Messages)
	assert.Equal(t, "dark", state.Variables["theme"])
}

func TestMemoryHost_CallAPI(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/echo":
			var body map[string]any
			_ = json.NewDecoder(r.Body).Decode(&body)
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(map[string]any{"method": r.Method, "got": body})
		case "/v1/empty":
			w.WriteHeader(http.StatusNoContent)
		default:
			http.Error(w, "nope", http.StatusNotFound)
		}
	}))
	defer srv.Close()

	h := NewMemoryHost(WithAPIBaseURL(srv.URL+"/v1/"), WithHTTPClient(srv.Client()))
	ctx := context.Background()

	v, err := h.CallAPI(ctx, "/echo", map[string]any{"a": "b"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"method": "POST", "got": map[string]any{"a": "b"}}, v)

	v, err = h.CallAPI(ctx, "empty", nil)
	require.NoError(t, err)
	assert.Nil(t, v)

	_, err = h.CallAPI(ctx, "missing", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}

func TestMemoryHost_CallAPIUnconfigured(t *testing.T) {
	_, err := NewMemoryHost().CallAPI(context.Background(), "/x", nil)
	assert.True(t, errors.Is(err, ErrNoAPI))
}

// TestMemoryHost_WithSandbox drives every facade from a script.
func TestMemoryHost_WithSandbox(t *testing.T) {
	h := NewMemoryHost(WithPageParams(map[string]any{"step": "1"}))
	h.RegisterQuery("user", func(ctx context.Context, params map[string]any) (any, error) {
		return map[string]any{"name": "Ada", "id": params["id"]}, nil
	})

	cfg := sandbox.DefaultConfig()
	cfg.MaxExecutionTime = time.Second
	m := sandbox.NewManager(cfg)

	code := `
		const user = await data.query("user", { id: page.getParams().step });
		component.setValue("greeting", "Hello " + user.name);
		component.setProperty("greeting", "visible", true);
		app.setVariable("lastUser", user.id);
		app.showMessage("Loaded " + user.name, "info");
		data.set("loaded", true);
		page.navigate("/done", { ok: true });
		result = { greeting: component.getValue("greeting") };
	`
	res := m.ExecuteScript(context.Background(), "host-e2e", code, h.Context(), nil)
	require.True(t, res.Success, res.Error)
	assert.Equal(t, map[string]any{"greeting": "Hello Ada"}, res.Result)

	state := h.Snapshot()
	assert.Equal(t, "Hello Ada", state.Values["greeting"])
	assert.Equal(t, true, state.Properties["greeting"]["visible"])
	assert.Equal(t, "1", state.Variables["lastUser"])
	assert.Equal(t, true, state.Data["loaded"])
	require.Len(t, state.Messages, 1)
	assert.Equal(t, "info", state.Messages[0].Level)
	assert.Equal(t, "Loaded Ada", state.Messages[0].Text)
	assert.Equal(t, "/done", state.History[0].Path)
}
