package sandbox

import "context"

// HostContext supplies the callbacks behind the component, data, page and app
// facades. A nil facade makes every method of that facade throw inside the
// script.
type HostContext struct {
	Component ComponentAPI
	Data      DataAPI
	Page      PageAPI
	App       AppAPI
}

// ComponentAPI reads and writes UI component state.
type ComponentAPI interface {
	GetValue(componentID string) (any, error)
	SetValue(componentID string, value any) error
	GetProperty(componentID, property string) (any, error)
	SetProperty(componentID, property string, value any) error
}

// DataAPI exposes keyed data and named queries. Query is asynchronous from the
// script's point of view and resolves a Promise.
type DataAPI interface {
	Get(key string) (any, error)
	Set(key string, value any) error
	Query(ctx context.Context, name string, params map[string]any) (any, error)
}

// PageAPI drives page navigation.
type PageAPI interface {
	Navigate(path string, params map[string]any) error
	Params() map[string]any
	Refresh() error
}

// AppAPI exposes application-wide services. CallAPI resolves a Promise.
type AppAPI interface {
	ShowMessage(level, message string) error
	GetVariable(name string) (any, error)
	SetVariable(name string, value any) error
	CallAPI(ctx context.Context, endpoint string, body map[string]any) (any, error)
}

// MessageLevels are the levels accepted by app.showMessage.
var MessageLevels = map[string]bool{
	"info":    true,
	"success": true,
	"warning": true,
	"error":   true,
}
