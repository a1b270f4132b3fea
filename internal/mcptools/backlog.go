package mcptools

import (
	"context"
	"encoding/json"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/linnemanlabs/sift/internal/triage"
)

func processBacklogTool() mcp.Tool {
	return mcp.NewTool("process_backlog_with_dedup",
		mcp.WithDescription("Triage free-text backlog items against the task list. Each item is classified as a DUPLICATE of an existing task, AMBIGUOUS (with clarifying questions) or NEW (with a suggested category and priority). Returns a pending run; nothing is created unless auto_create is set or the run is confirmed with confirm_backlog_run."),
		mcp.WithArray("items",
			mcp.Required(),
			mcp.Description("Backlog items, one note per entry"),
			mcp.Items(map[string]any{"type": "string"}),
		),
		mcp.WithBoolean("auto_create",
			mcp.Description("Immediately create every NEW item with its suggested category and priority"),
		),
	)
}

func confirmRunTool() mcp.Tool {
	return mcp.NewTool("confirm_backlog_run",
		mcp.WithDescription("Create tasks from the NEW decisions of a pending run. Without accept, every NEW decision is created as suggested; an empty accept array closes the run without creating tasks. P0 is only assigned when an acceptance sets priority P0 and allow_p0 true after the user confirmed it."),
		mcp.WithString("run_id",
			mcp.Required(),
			mcp.Description("Run ID returned by process_backlog_with_dedup"),
		),
		mcp.WithArray("accept",
			mcp.Description("Decisions to accept, with optional overrides"),
			mcp.Items(map[string]any{
				"type": "object",
				"properties": map[string]any{
					"index":    map[string]any{"type": "integer", "description": "Decision index in the run"},
					"title":    map[string]any{"type": "string", "description": "Task title override"},
					"category": map[string]any{"type": "string", "description": "Category override"},
					"priority": map[string]any{"type": "string", "description": "Priority override"},
					"allow_p0": map[string]any{"type": "boolean", "description": "User explicitly confirmed P0"},
				},
				"required": []string{"index"},
			}),
		),
	)
}

func (t *Tools) handleProcessBacklog(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()

	items, bad := itemsArg(args)
	if bad != nil {
		return bad, nil
	}
	autoCreate, bad := boolArg(args, "auto_create")
	if bad != nil {
		return bad, nil
	}

	run, err := t.svc.Submit(ctx, items)
	if err != nil {
		return t.result(ctx, "process_backlog_with_dedup", nil, err)
	}
	if autoCreate && run.Report.Summary.New > 0 {
		run, err = t.svc.Confirm(ctx, run.ID, nil)
	}
	return t.result(ctx, "process_backlog_with_dedup", run, err)
}

func (t *Tools) handleConfirmRun(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()

	id, ok, bad := stringArg(args, "run_id")
	if bad != nil {
		return bad, nil
	}
	if !ok || id == "" {
		return argError("run_id", -1, "required"), nil
	}

	var acc []triage.Acceptance
	if raw, ok := args["accept"]; ok && raw != nil {
		// args arrive as generic JSON; round-trip into the typed form
		data, err := json.Marshal(raw)
		if err != nil {
			return argError("accept", -1, err.Error()), nil
		}
		if err := json.Unmarshal(data, &acc); err != nil {
			return argError("accept", -1, "must be an array of {index, title, category, priority, allow_p0}"), nil
		}
		if acc == nil {
			// an explicit empty list accepts nothing
			acc = []triage.Acceptance{}
		}
	}

	run, err := t.svc.Confirm(ctx, id, acc)
	return t.result(ctx, "confirm_backlog_run", run, err)
}

func itemsArg(args map[string]any) ([]string, *mcp.CallToolResult) {
	raw, ok := args["items"]
	if !ok || raw == nil {
		return nil, argError("items", -1, "required")
	}
	list, ok := raw.([]any)
	if !ok {
		return nil, argError("items", -1, "not an array")
	}
	items := make([]string, 0, len(list))
	for i, e := range list {
		s, ok := e.(string)
		if !ok {
			return nil, argError("items", i, "not a string")
		}
		items = append(items, s)
	}
	return items, nil
}
