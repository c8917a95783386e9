package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"

	"github.com/taskrelay/taskrelay/internal/registry"
	"github.com/taskrelay/taskrelay/pkg/provider/llm"
)

type recordedRequest struct {
	Method string
	Path   string
	Query  map[string]string
	Body   map[string]any
}

// newBackend spins up a test server that records each request and answers
// with the given status and body.
func newBackend(t *testing.T, status int, body string) (*httptest.Server, *[]recordedRequest) {
	t.Helper()
	var requests []recordedRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := recordedRequest{
			Method: r.Method,
			Path:   r.URL.Path,
			Query:  map[string]string{},
		}
		for k := range r.URL.Query() {
			rec.Query[k] = r.URL.Query().Get(k)
		}
		if raw, err := io.ReadAll(r.Body); err == nil && len(raw) > 0 {
			_ = json.Unmarshal(raw, &rec.Body)
		}
		requests = append(requests, rec)
		w.WriteHeader(status)
		fmt.Fprint(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv, &requests
}

func newRegistry(t *testing.T, baseURL string, tools ...registry.ManifestTool) *registry.Registry {
	t.Helper()
	r, err := registry.Build(&registry.Manifest{BaseURL: baseURL, Tools: tools})
	if err != nil {
		t.Fatalf("registry.Build() error = %v", err)
	}
	return r
}

func TestDispatchPostBodyRoundTrip(t *testing.T) {
	srv, requests := newBackend(t, http.StatusOK, `{"tasks":[]}`)
	reg := newRegistry(t, srv.URL, registry.ManifestTool{Name: "list_tasks"})
	d := New(reg)

	args := map[string]any{"status": "open", "limit": 5.0}
	result, err := d.Dispatch(context.Background(), "list_tasks", args)
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if string(result) != `{"tasks":[]}` {
		t.Errorf("result = %s, want backend body", result)
	}

	if len(*requests) != 1 {
		t.Fatalf("backend saw %d requests, want 1", len(*requests))
	}
	req := (*requests)[0]
	if req.Method != http.MethodPost {
		t.Errorf("Method = %q, want POST", req.Method)
	}
	if req.Path != "/mcp/list_tasks" {
		t.Errorf("Path = %q, want /mcp/list_tasks", req.Path)
	}
	if !reflect.DeepEqual(req.Body, args) {
		t.Errorf("Body = %v, want %v", req.Body, args)
	}
}

func TestDispatchGetQueryRoundTrip(t *testing.T) {
	srv, requests := newBackend(t, http.StatusOK, `[]`)
	reg := newRegistry(t, srv.URL, registry.ManifestTool{
		Name: "list_tasks", Method: "GET", Path: "/tasks",
	})
	d := New(reg)

	_, err := d.Dispatch(context.Background(), "list_tasks", map[string]any{
		"status": "open",
		"limit":  3,
	})
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}

	req := (*requests)[0]
	if req.Method != http.MethodGet {
		t.Errorf("Method = %q, want GET", req.Method)
	}
	if req.Path != "/tasks" {
		t.Errorf("Path = %q, want /tasks", req.Path)
	}
	if req.Query["status"] != "open" || req.Query["limit"] != "3" {
		t.Errorf("Query = %v, want status=open limit=3", req.Query)
	}
}

func TestDispatchNormalizesNames(t *testing.T) {
	srv, requests := newBackend(t, http.StatusOK, `{}`)
	reg := newRegistry(t, srv.URL, registry.ManifestTool{Name: "list_tasks"})
	d := New(reg)

	spellings := []string{"list_tasks", "listTasks", "List-Tasks!"}
	for _, spelling := range spellings {
		if _, err := d.Dispatch(context.Background(), spelling, nil); err != nil {
			t.Fatalf("Dispatch(%q) error = %v", spelling, err)
		}
	}

	if len(*requests) != len(spellings) {
		t.Fatalf("backend saw %d requests, want %d", len(*requests), len(spellings))
	}
	for i, req := range *requests {
		if req.Path != "/mcp/list_tasks" {
			t.Errorf("request %d hit %q, want /mcp/list_tasks", i, req.Path)
		}
		if req.Method != http.MethodPost {
			t.Errorf("request %d used %q, want POST", i, req.Method)
		}
	}
}

func TestDispatchUnknownTool(t *testing.T) {
	reg := newRegistry(t, "http://localhost:8000",
		registry.ManifestTool{Name: "list_tasks"},
		registry.ManifestTool{Name: "add_task"},
	)
	d := New(reg)

	_, err := d.Dispatch(context.Background(), "frobulate", nil)
	var unknown *UnknownToolError
	if !errors.As(err, &unknown) {
		t.Fatalf("Dispatch() error = %v, want *UnknownToolError", err)
	}
	msg := err.Error()
	if !strings.Contains(msg, "list_tasks") || !strings.Contains(msg, "add_task") {
		t.Errorf("error %q should enumerate valid tool names", msg)
	}
	if llm.IsFatal(err) {
		t.Error("unknown tool should not be a fatal error")
	}
}

func TestDispatchSuggestsCloseName(t *testing.T) {
	reg := newRegistry(t, "http://localhost:8000",
		registry.ManifestTool{Name: "list_tasks"},
		registry.ManifestTool{Name: "add_task"},
	)
	d := New(reg)

	_, err := d.Dispatch(context.Background(), "list_task", nil)
	var unknown *UnknownToolError
	if !errors.As(err, &unknown) {
		t.Fatalf("Dispatch() error = %v, want *UnknownToolError", err)
	}
	if unknown.Suggestion != "list_tasks" {
		t.Errorf("Suggestion = %q, want list_tasks", unknown.Suggestion)
	}
}

func TestDispatchInvalidArguments(t *testing.T) {
	reg := newRegistry(t, "http://localhost:8000", registry.ManifestTool{Name: "list_tasks"})
	d := New(reg)

	_, err := d.Dispatch(context.Background(), "list_tasks", []any{"not", "a", "mapping"})
	var invalid *InvalidArgumentsError
	if !errors.As(err, &invalid) {
		t.Fatalf("Dispatch() error = %v, want *InvalidArgumentsError", err)
	}
	if invalid.Tool != "list_tasks" {
		t.Errorf("Tool = %q, want list_tasks", invalid.Tool)
	}
}

func TestDispatchBackendStatusError(t *testing.T) {
	srv, _ := newBackend(t, http.StatusInternalServerError, `{"error":"boom"}`)
	reg := newRegistry(t, srv.URL, registry.ManifestTool{Name: "list_tasks"})
	d := New(reg)

	_, err := d.Dispatch(context.Background(), "list_tasks", nil)
	var backend *BackendError
	if !errors.As(err, &backend) {
		t.Fatalf("Dispatch() error = %v, want *BackendError", err)
	}
	if backend.StatusCode != http.StatusInternalServerError {
		t.Errorf("StatusCode = %d, want 500", backend.StatusCode)
	}
	if !strings.Contains(backend.Detail, "boom") {
		t.Errorf("Detail = %q, want backend error detail", backend.Detail)
	}
	if llm.IsFatal(err) {
		t.Error("backend status error should not be fatal")
	}
}

func TestDispatchBackendUnreachableIsFatal(t *testing.T) {
	srv, _ := newBackend(t, http.StatusOK, `{}`)
	baseURL := srv.URL
	srv.Close()

	reg := newRegistry(t, baseURL, registry.ManifestTool{Name: "list_tasks"})
	d := New(reg)

	_, err := d.Dispatch(context.Background(), "list_tasks", nil)
	if err == nil {
		t.Fatal("Dispatch() against closed backend should fail")
	}
	if !llm.IsFatal(err) {
		t.Errorf("Dispatch() error = %v, want transport error per IsFatal", err)
	}
}

func TestDispatchNonJSONResponse(t *testing.T) {
	srv, _ := newBackend(t, http.StatusOK, "<html>nope</html>")
	reg := newRegistry(t, srv.URL, registry.ManifestTool{Name: "list_tasks"})
	d := New(reg)

	_, err := d.Dispatch(context.Background(), "list_tasks", nil)
	var backend *BackendError
	if !errors.As(err, &backend) {
		t.Fatalf("Dispatch() error = %v, want *BackendError", err)
	}
}

type mcpStub struct {
	server string
	tool   string
	args   map[string]any
	result json.RawMessage
	err    error
}

func (m *mcpStub) CallTool(_ context.Context, server, tool string, args map[string]any) (json.RawMessage, error) {
	m.server, m.tool, m.args = server, tool, args
	return m.result, m.err
}

func TestDispatchMCPTool(t *testing.T) {
	reg := newRegistry(t, "http://localhost:8000")
	if err := reg.Register(registry.Tool{
		Name:   "search_docs",
		Origin: registry.OriginMCP,
		Server: "docs",
	}); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	stub := &mcpStub{result: json.RawMessage(`{"hits":1}`)}
	d := New(reg, WithMCP(stub))

	result, err := d.Dispatch(context.Background(), "searchDocs", map[string]any{"q": "timeout"})
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if string(result) != `{"hits":1}` {
		t.Errorf("result = %s, want MCP result", result)
	}
	if stub.server != "docs" || stub.tool != "search_docs" {
		t.Errorf("invoked %s/%s, want docs/search_docs", stub.server, stub.tool)
	}
	if stub.args["q"] != "timeout" {
		t.Errorf("args = %v, want q=timeout", stub.args)
	}
}

func TestDispatchMCPWithoutSession(t *testing.T) {
	reg := newRegistry(t, "http://localhost:8000")
	if err := reg.Register(registry.Tool{Name: "search_docs", Origin: registry.OriginMCP, Server: "docs"}); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	d := New(reg)

	_, err := d.Dispatch(context.Background(), "search_docs", nil)
	var backend *BackendError
	if !errors.As(err, &backend) {
		t.Fatalf("Dispatch() error = %v, want *BackendError", err)
	}
}
