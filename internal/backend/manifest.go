package backend

import "github.com/taskrelay/taskrelay/internal/registry"

// Manifest describes the tools this backend serves. Agents fetch it at
// startup (or load an identical copy from disk) to build their tool
// registry; the schemas below are what the model sees.
func Manifest() *registry.Manifest {
	return &registry.Manifest{
		Tools: []registry.ManifestTool{
			{
				Name:        "list_tasks",
				Description: "List tasks, optionally filtered. Supported filters: due_soon, flagged, inbox, all, completed, deferred. Omit the filter to list available tasks.",
				InputSchema: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"filter": map[string]any{
							"type":        "string",
							"description": "Which tasks to include.",
							"enum":        []any{"due_soon", "flagged", "inbox", "all", "completed", "deferred"},
						},
					},
					"required": []any{},
				},
			},
			{
				Name:        "summarize_tasks",
				Description: "Summarize tasks per project: active, flagged, due today, and overdue counts.",
				InputSchema: map[string]any{
					"type":       "object",
					"properties": map[string]any{},
					"required":   []any{},
				},
			},
			{
				Name:        "add_task",
				Description: "Create a new task. Requires a title; project, due, defer, note, and flagged are optional.",
				InputSchema: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"title": map[string]any{
							"type":        "string",
							"description": "Task name.",
						},
						"project": map[string]any{
							"type":        "string",
							"description": "Project to file the task under. Empty means inbox.",
						},
						"due": map[string]any{
							"type":        "string",
							"description": "Due date, ISO 8601.",
						},
						"defer": map[string]any{
							"type":        "string",
							"description": "Defer date, ISO 8601.",
						},
						"note": map[string]any{
							"type": "string",
						},
						"flagged": map[string]any{
							"type": "boolean",
						},
					},
					"required": []any{"title"},
				},
			},
			{
				Name:        "get_projects",
				Description: "List all projects that currently contain tasks.",
				InputSchema: map[string]any{
					"type":       "object",
					"properties": map[string]any{},
					"required":   []any{},
				},
			},
			{
				Name:        "complete_task",
				Description: "Mark a task as completed by its id.",
				InputSchema: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"task_id": map[string]any{
							"type":        "string",
							"description": "Identifier of the task to complete.",
						},
					},
					"required": []any{"task_id"},
				},
			},
		},
	}
}
