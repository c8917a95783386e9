package registry

import (
	"strings"
	"testing"

	"github.com/taskrelay/taskrelay/pkg/provider/llm"
)

func TestLoadManifestFromReader(t *testing.T) {
	manifest := `{
		"base_url": "http://tools.internal:9000/",
		"tools": [
			{
				"name": "list_tasks",
				"description": "List tasks, optionally filtered.",
				"input_schema": {
					"type": "object",
					"properties": {"status": {"type": "string"}}
				},
				"method": "GET",
				"path": "/tasks"
			},
			{"name": "create_task"}
		]
	}`

	m, err := LoadManifestFromReader(strings.NewReader(manifest))
	if err != nil {
		t.Fatalf("LoadManifestFromReader() error = %v", err)
	}
	if m.BaseURL != "http://tools.internal:9000/" {
		t.Errorf("BaseURL = %q, want %q", m.BaseURL, "http://tools.internal:9000/")
	}
	if len(m.Tools) != 2 {
		t.Fatalf("len(Tools) = %d, want 2", len(m.Tools))
	}
	if m.Tools[0].Method != "GET" || m.Tools[0].Path != "/tasks" {
		t.Errorf("tools[0] = %+v, want GET /tasks", m.Tools[0])
	}
	if m.Tools[1].InputSchema != nil {
		t.Errorf("tools[1].InputSchema = %v, want nil", m.Tools[1].InputSchema)
	}
}

func TestLoadManifestFromReaderInvalid(t *testing.T) {
	if _, err := LoadManifestFromReader(strings.NewReader("{not json")); err == nil {
		t.Fatal("LoadManifestFromReader() with malformed JSON should fail")
	}
}

func TestBuildDefaults(t *testing.T) {
	m := &Manifest{
		Tools: []ManifestTool{
			{Name: "summarize_tasks", Description: "Summarize open work."},
		},
	}

	r, err := Build(m)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if r.BaseURL() != DefaultBaseURL {
		t.Errorf("BaseURL() = %q, want %q", r.BaseURL(), DefaultBaseURL)
	}

	tool, ok := r.Resolve("summarize_tasks")
	if !ok {
		t.Fatal("Resolve(summarize_tasks) reported no tool")
	}
	if tool.Method != "POST" {
		t.Errorf("Method = %q, want POST", tool.Method)
	}
	if tool.Path != "/mcp/summarize_tasks" {
		t.Errorf("Path = %q, want /mcp/summarize_tasks", tool.Path)
	}
	if tool.Origin != OriginHTTP {
		t.Errorf("Origin = %q, want %q", tool.Origin, OriginHTTP)
	}
	if got := tool.Parameters["type"]; got != "object" {
		t.Errorf("default schema type = %v, want object", got)
	}
}

func TestBuildTrimsBaseURL(t *testing.T) {
	r, err := Build(&Manifest{BaseURL: "http://localhost:8000///"})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if r.BaseURL() != "http://localhost:8000" {
		t.Errorf("BaseURL() = %q, want trailing slashes stripped", r.BaseURL())
	}
}

func TestBuildAmbiguousNames(t *testing.T) {
	m := &Manifest{
		Tools: []ManifestTool{
			{Name: "list_tasks"},
			{Name: "List_Tasks!"},
		},
	}
	if _, err := Build(m); err == nil {
		t.Fatal("Build() with ambiguous names should fail")
	} else if !strings.Contains(err.Error(), "ambiguous") {
		t.Errorf("Build() error = %v, want mention of ambiguity", err)
	}
}

func TestBuildUnnamedTool(t *testing.T) {
	if _, err := Build(&Manifest{Tools: []ManifestTool{{}}}); err == nil {
		t.Fatal("Build() with unnamed tool should fail")
	}
}

func TestResolveNormalizedSpellings(t *testing.T) {
	r, err := Build(&Manifest{Tools: []ManifestTool{{Name: "create_task"}}})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	for _, spelling := range []string{
		"create_task",
		"CREATE_TASK",
		"createTask",
		"create-task!",
		" create_task ",
		"create_task()",
	} {
		tool, ok := r.Resolve(spelling)
		if !ok {
			t.Errorf("Resolve(%q) reported no tool", spelling)
			continue
		}
		if tool.Name != "create_task" {
			t.Errorf("Resolve(%q).Name = %q, want create_task", spelling, tool.Name)
		}
	}

	if _, ok := r.Resolve("delete_task"); ok {
		t.Error("Resolve(delete_task) resolved an unregistered tool")
	}
}

func TestRegisterMCPTool(t *testing.T) {
	r, err := Build(&Manifest{})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	err = r.Register(Tool{
		Name:       "search_docs",
		Parameters: map[string]any{"type": "object"},
		Origin:     OriginMCP,
		Server:     "docs",
	})
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	tool, ok := r.Resolve("searchDocs")
	if !ok {
		t.Fatal("Resolve(searchDocs) reported no tool")
	}
	if tool.Origin != OriginMCP || tool.Server != "docs" {
		t.Errorf("tool = %+v, want MCP origin from server docs", tool)
	}
}

func TestNamesSorted(t *testing.T) {
	m := &Manifest{
		Tools: []ManifestTool{
			{Name: "update_task"},
			{Name: "create_task"},
			{Name: "list_tasks"},
		},
	}
	r, err := Build(m)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	want := []string{"create_task", "list_tasks", "update_task"}
	got := r.Names()
	if len(got) != len(want) {
		t.Fatalf("Names() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Names() = %v, want %v", got, want)
		}
	}
}

func TestModelToolsConventions(t *testing.T) {
	m := &Manifest{
		Tools: []ManifestTool{
			{
				Name:        "list_tasks",
				Description: "List tasks.",
				InputSchema: map[string]any{"type": "object"},
			},
		},
	}
	r, err := Build(m)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	flat := r.ModelTools(llm.ConventionFlat)
	if len(flat) != 1 {
		t.Fatalf("len(flat) = %d, want 1", len(flat))
	}
	if flat[0]["name"] != "list_tasks" {
		t.Errorf("flat[0][name] = %v, want list_tasks", flat[0]["name"])
	}
	if _, ok := flat[0]["function"]; ok {
		t.Error("flat convention should not contain a function wrapper")
	}

	wrapped := r.ModelTools(llm.ConventionWrapped)
	if wrapped[0]["type"] != "function" {
		t.Errorf("wrapped[0][type] = %v, want function", wrapped[0]["type"])
	}
	fn, ok := wrapped[0]["function"].(map[string]any)
	if !ok {
		t.Fatalf("wrapped[0][function] = %T, want map", wrapped[0]["function"])
	}
	if fn["name"] != "list_tasks" {
		t.Errorf("function name = %v, want list_tasks", fn["name"])
	}
}

func TestNormalize(t *testing.T) {
	cases := map[string]string{
		"list_tasks":     "listtasks",
		"listTasks":      "listtasks",
		"List-Tasks":     "listtasks",
		"create_task()":  "createtask",
		"  UPDATE_TASK ": "updatetask",
		"!!!":            "",
		"task2":          "task2",
	}
	for in, want := range cases {
		if got := Normalize(in); got != want {
			t.Errorf("Normalize(%q) = %q, want %q", in, got, want)
		}
	}
}
