package mcptools

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/linnemanlabs/sift/internal/triage"
)

func checkLimitsTool() mcp.Tool {
	return mcp.NewTool("check_priority_limits",
		mcp.WithDescription("Report per-priority task counts against the configured limits, with alerts for levels at or over their limit."),
	)
}

func listTasksTool() mcp.Tool {
	return mcp.NewTool("list_tasks",
		mcp.WithDescription("List tracked tasks, most urgent first. Done tasks are hidden unless include_done is set or status asks for them."),
		mcp.WithString("category", mcp.Description("Filter by category (comma-separated)")),
		mcp.WithString("priority", mcp.Description("Filter by priority (comma-separated, e.g. P0,P1)")),
		mcp.WithString("status", mcp.Description("Filter by status (comma-separated; todo, active, blocked, done or n, s, b, d)")),
		mcp.WithBoolean("include_done", mcp.Description("Include completed tasks")),
	)
}

func createTaskTool() mcp.Tool {
	return mcp.NewTool("create_task",
		mcp.WithDescription("Create a single todo task without triage. P0 requires allow_p0 after explicit user confirmation."),
		mcp.WithString("title", mcp.Required(), mcp.Description("Task title")),
		mcp.WithString("category", mcp.Description("Task category (default: fallback category)")),
		mcp.WithString("priority", mcp.Description("Priority level (default: P2)")),
		mcp.WithBoolean("allow_p0", mcp.Description("User explicitly confirmed P0")),
	)
}

func updateStatusTool() mcp.Tool {
	return mcp.NewTool("update_task_status",
		mcp.WithDescription("Move a task to a new status."),
		mcp.WithString("task_id", mcp.Required(), mcp.Description("Task ID")),
		mcp.WithString("status", mcp.Required(), mcp.Description("New status (todo, active, blocked, done or n, s, b, d)")),
	)
}

func taskSummaryTool() mcp.Tool {
	return mcp.NewTool("get_task_summary",
		mcp.WithDescription("Summarize the task list: totals and counts by priority, category and status."),
	)
}

func pruneTool() mcp.Tool {
	return mcp.NewTool("prune_completed_tasks",
		mcp.WithDescription("Delete done tasks that have not changed for the given number of days. Returns the deleted tasks."),
		mcp.WithNumber("days",
			mcp.Description("Minimum age in days since the task last changed (default: 30, 0 deletes every done task)"),
			mcp.DefaultNumber(30),
		),
	)
}

func (t *Tools) handleCheckLimits(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	b, err := t.svc.Budget(ctx)
	return t.result(ctx, "check_priority_limits", b, err)
}

type taskList struct {
	Tasks []triage.ExistingTask `json:"tasks"`
	Count int                   `json:"count"`
}

func (t *Tools) handleListTasks(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()

	var f triage.TaskFilter
	var bad *mcp.CallToolResult
	if f.Categories, bad = listArg(args, "category"); bad != nil {
		return bad, nil
	}
	if f.Priorities, bad = listArg(args, "priority"); bad != nil {
		return bad, nil
	}
	statuses, bad := listArg(args, "status")
	if bad != nil {
		return bad, nil
	}
	for _, s := range statuses {
		st, err := triage.ParseStatus(s)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		f.Statuses = append(f.Statuses, st)
	}
	if f.IncludeDone, bad = boolArg(args, "include_done"); bad != nil {
		return bad, nil
	}

	tasks, err := t.svc.ListTasks(ctx, f)
	if tasks == nil {
		tasks = []triage.ExistingTask{}
	}
	return t.result(ctx, "list_tasks", taskList{Tasks: tasks, Count: len(tasks)}, err)
}

func (t *Tools) handleCreateTask(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()

	var in triage.TaskInput
	var bad *mcp.CallToolResult
	if in.Title, _, bad = stringArg(args, "title"); bad != nil {
		return bad, nil
	}
	if in.Category, _, bad = stringArg(args, "category"); bad != nil {
		return bad, nil
	}
	if in.Priority, _, bad = stringArg(args, "priority"); bad != nil {
		return bad, nil
	}
	if in.AllowP0, bad = boolArg(args, "allow_p0"); bad != nil {
		return bad, nil
	}

	task, err := t.svc.CreateTask(ctx, in)
	return t.result(ctx, "create_task", task, err)
}

type statusResult struct {
	ID     string        `json:"id"`
	Status triage.Status `json:"status"`
}

func (t *Tools) handleUpdateStatus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()

	id, ok, bad := stringArg(args, "task_id")
	if bad != nil {
		return bad, nil
	}
	if !ok || id == "" {
		return argError("task_id", -1, "required"), nil
	}
	raw, ok, bad := stringArg(args, "status")
	if bad != nil {
		return bad, nil
	}
	if !ok || raw == "" {
		return argError("status", -1, "required"), nil
	}
	status, err := triage.ParseStatus(raw)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	err = t.svc.SetTaskStatus(ctx, id, status)
	return t.result(ctx, "update_task_status", statusResult{ID: id, Status: status}, err)
}

func (t *Tools) handleTaskSummary(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	st, err := t.svc.Stats(ctx)
	return t.result(ctx, "get_task_summary", st, err)
}

func (t *Tools) handlePrune(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	age := triage.DefaultPruneAge
	days, ok, bad := intArg(req.GetArguments(), "days")
	if bad != nil {
		return bad, nil
	}
	if ok {
		var err error
		if age, err = triage.PruneAgeDays(days); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
	}
	res, err := t.svc.PruneDone(ctx, age)
	return t.result(ctx, "prune_completed_tasks", res, err)
}
