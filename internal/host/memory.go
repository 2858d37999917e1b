// Package host provides an in-memory implementation of the script host facades.
package host

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/liamcoop/formrules/fieldpath"
	"github.com/liamcoop/formrules/internal/logger"
	"github.com/liamcoop/formrules/sandbox"
)

var (
	// ErrUnknownQuery is returned by Query for a name with no registered handler.
	ErrUnknownQuery = errors.New("unknown query")
	// ErrNoAPI is returned by CallAPI when no base URL is configured.
	ErrNoAPI = errors.New("no API base URL configured")
)

const maxAPIResponseBytes = 1 << 20

// QueryFunc answers a named data query.
type QueryFunc func(ctx context.Context, params map[string]any) (any, error)

// Message is one app.showMessage call.
type Message struct {
	Level string    `json:"level"`
	Text  string    `json:"text"`
	Time  time.Time `json:"time"`
}

// Navigation is one page.navigate call.
type Navigation struct {
	Path   string         `json:"path"`
	Params map[string]any `json:"params,omitempty"`
}

// State is a copy of everything scripts have written to a MemoryHost.
type State struct {
	Values     map[string]any            `json:"values"`
	Properties map[string]map[string]any `json:"properties"`
	Data       map[string]any            `json:"data"`
	Variables  map[string]any            `json:"variables"`
	Params     map[string]any            `json:"params"`
	History    []Navigation              `json:"history"`
	Messages   []Message                 `json:"messages"`
	Refreshes  int                       `json:"refreshes"`
}

// MemoryHost implements every facade interface over in-memory maps. It is
// safe for concurrent use.
type MemoryHost struct {
	mu         sync.RWMutex
	values     map[string]any
	properties map[string]map[string]any
	data       map[string]any
	queries    map[string]QueryFunc
	variables  map[string]any
	params     map[string]any
	history    []Navigation
	messages   []Message
	refreshes  int

	apiBaseURL string
	client     *http.Client
	now        func() time.Time
}

// Option configures a MemoryHost.
type Option func(*MemoryHost)

// WithAPIBaseURL makes app.callAPI post to baseURL + endpoint.
func WithAPIBaseURL(baseURL string) Option {
	return func(h *MemoryHost) { h.apiBaseURL = strings.TrimRight(baseURL, "/") }
}

// WithHTTPClient replaces the client used by app.callAPI.
func WithHTTPClient(client *http.Client) Option {
	return func(h *MemoryHost) { h.client = client }
}

// WithPageParams sets the initial page parameters.
func WithPageParams(params map[string]any) Option {
	return func(h *MemoryHost) { h.params = fieldpath.CloneMap(params) }
}

// WithClock sets the time source for recorded messages.
func WithClock(now func() time.Time) Option {
	return func(h *MemoryHost) { h.now = now }
}

// NewMemoryHost creates an empty host.
func NewMemoryHost(opts ...Option) *MemoryHost {
	h := &MemoryHost{
		values:     make(map[string]any),
		properties: make(map[string]map[string]any),
		data:       make(map[string]any),
		queries:    make(map[string]QueryFunc),
		variables:  make(map[string]any),
		params:     make(map[string]any),
		client:     &http.Client{Timeout: 10 * time.Second},
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Context returns a HostContext backed by h for every facade.
func (h *MemoryHost) Context() sandbox.HostContext {
	return sandbox.HostContext{Component: h, Data: h, Page: h, App: h}
}

// RegisterQuery installs the handler for data.query(name, params).
func (h *MemoryHost) RegisterQuery(name string, fn QueryFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.queries[name] = fn
}

// Snapshot copies the host's current state.
func (h *MemoryHost) Snapshot() State {
	h.mu.RLock()
	defer h.mu.RUnlock()

	props := make(map[string]map[string]any, len(h.properties))
	for id, p := range h.properties {
		props[id] = fieldpath.CloneMap(p)
	}
	history := make([]Navigation, len(h.history))
	copy(history, h.history)
	messages := make([]Message, len(h.messages))
	copy(messages, h.messages)

	return State{
		Values:     fieldpath.CloneMap(h.values),
		Properties: props,
		Data:       fieldpath.CloneMap(h.data),
		Variables:  fieldpath.CloneMap(h.variables),
		Params:     fieldpath.CloneMap(h.params),
		History:    history,
		Messages:   messages,
		Refreshes:  h.refreshes,
	}
}

// Components returns the ids of every component with a stored value, sorted.
func (h *MemoryHost) Components() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	ids := make([]string, 0, len(h.values))
	for id := range h.values {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (h *MemoryHost) GetValue(componentID string) (any, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.values[componentID], nil
}

func (h *MemoryHost) SetValue(componentID string, value any) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.values[componentID] = value
	return nil
}

func (h *MemoryHost) GetProperty(componentID, property string) (any, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.properties[componentID][property], nil
}

func (h *MemoryHost) SetProperty(componentID, property string, value any) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	props, ok := h.properties[componentID]
	if !ok {
		props = make(map[string]any)
		h.properties[componentID] = props
	}
	props[property] = value
	return nil
}

// Get reads a data key. key is a field path, so "customer.address.city" and
// "items[0]" reach into stored objects. Missing paths read as nil.
func (h *MemoryHost) Get(key string) (any, error) {
	if _, err := fieldpath.Parse(key); err != nil {
		return nil, err
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	v, _ := fieldpath.Get(h.data, key)
	return fieldpath.Clone(v), nil
}

// Set stores a copy of value at the field path key. A nil value removes the
// path.
func (h *MemoryHost) Set(key string, value any) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	var (
		out any
		err error
	)
	if value == nil {
		out, err = fieldpath.Delete(h.data, key)
	} else {
		out, err = fieldpath.Set(h.data, key, fieldpath.Clone(value))
	}
	if err != nil {
		return err
	}
	h.data = out.(map[string]any)
	return nil
}

// Query runs the registered handler outside the host lock.
func (h *MemoryHost) Query(ctx context.Context, name string, params map[string]any) (any, error) {
	h.mu.RLock()
	fn, ok := h.queries[name]
	h.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownQuery, name)
	}
	return fn(ctx, params)
}

func (h *MemoryHost) Navigate(path string, params map[string]any) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	nav := Navigation{Path: path, Params: fieldpath.CloneMap(params)}
	h.history = append(h.history, nav)
	h.params = fieldpath.CloneMap(params)
	logger.Debug("Page navigation", "path", path)
	return nil
}

func (h *MemoryHost) Params() map[string]any {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return fieldpath.CloneMap(h.params)
}

func (h *MemoryHost) Refresh() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.refreshes++
	return nil
}

func (h *MemoryHost) ShowMessage(level, message string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.messages = append(h.messages, Message{Level: level, Text: message, Time: h.now()})
	return nil
}

func (h *MemoryHost) GetVariable(name string) (any, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.variables[name], nil
}

func (h *MemoryHost) SetVariable(name string, value any) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.variables[name] = value
	return nil
}

// CallAPI posts body as JSON to the configured base URL joined with endpoint
// and decodes the JSON response. An empty response body yields nil.
func (h *MemoryHost) CallAPI(ctx context.Context, endpoint string, body map[string]any) (any, error) {
	if h.apiBaseURL == "" {
		return nil, ErrNoAPI
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request body: %w", err)
	}

	url := h.apiBaseURL + "/" + strings.TrimLeft(endpoint, "/")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("API call to %s failed: %w", endpoint, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxAPIResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read API response: %w", err)
	}
	if resp.StatusCode >= 400 {
		logger.Warn("API call returned an error status", "endpoint", endpoint, "status", resp.StatusCode)
		return nil, fmt.Errorf("API %s returned status %d", endpoint, resp.StatusCode)
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, nil
	}

	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("API %s returned invalid JSON: %w", endpoint, err)
	}
	return out, nil
}
