// Package mcptools exposes backlog triage and task management as MCP tools.
package mcptools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/go-core/xerrors"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/linnemanlabs/sift/internal/triage"
)

// BacklogService defines the business operations the tools need.
type BacklogService interface {
	Submit(ctx context.Context, items []string) (*triage.Run, error)
	Confirm(ctx context.Context, id string, acc []triage.Acceptance) (*triage.Run, error)
	CreateTask(ctx context.Context, in triage.TaskInput) (*triage.ExistingTask, error)
	SetTaskStatus(ctx context.Context, id string, status triage.Status) error
	ListTasks(ctx context.Context, f triage.TaskFilter) ([]triage.ExistingTask, error)
	Budget(ctx context.Context) (*triage.Budget, error)
	Stats(ctx context.Context) (*triage.Stats, error)
	PruneDone(ctx context.Context, olderThan time.Duration) (*triage.PruneResult, error)
}

// Tools holds the tool handlers and their dependencies.
type Tools struct {
	logger log.Logger
	svc    BacklogService
}

// New creates the tool set.
func New(logger log.Logger, svc BacklogService) *Tools {
	if logger == nil {
		logger = log.Nop()
	}
	if svc == nil {
		panic(xerrors.New("backlog service is required"))
	}
	return &Tools{logger: logger, svc: svc}
}

// ServerTools returns every tool definition paired with its handler.
func (t *Tools) ServerTools() []server.ServerTool {
	return []server.ServerTool{
		{Tool: processBacklogTool(), Handler: t.handleProcessBacklog},
		{Tool: confirmRunTool(), Handler: t.handleConfirmRun},
		{Tool: checkLimitsTool(), Handler: t.handleCheckLimits},
		{Tool: listTasksTool(), Handler: t.handleListTasks},
		{Tool: createTaskTool(), Handler: t.handleCreateTask},
		{Tool: updateStatusTool(), Handler: t.handleUpdateStatus},
		{Tool: taskSummaryTool(), Handler: t.handleTaskSummary},
		{Tool: pruneTool(), Handler: t.handlePrune},
	}
}

// Register adds every tool to s.
func (t *Tools) Register(s *server.MCPServer) {
	s.AddTools(t.ServerTools()...)
}

// result renders v as indented JSON text. Service errors that describe bad
// caller input become tool errors so the model can correct itself; anything
// else is logged and hidden behind a generic message.
func (t *Tools) result(ctx context.Context, tool string, v any, err error) (*mcp.CallToolResult, error) {
	if err != nil {
		if msg, ok := callerError(err); ok {
			return mcp.NewToolResultError(msg), nil
		}
		t.logger.Error(ctx, err, "tool call failed", "tool", tool)
		return mcp.NewToolResultError("internal error"), nil
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal %s result: %w", tool, err)
	}
	return mcp.NewToolResultText(string(data)), nil
}

func callerError(err error) (string, bool) {
	switch {
	case errors.Is(err, triage.ErrInvalidInput),
		errors.Is(err, triage.ErrNotConfirmable),
		errors.Is(err, triage.ErrP0NeedsConfirmation),
		errors.Is(err, triage.ErrRunNotFound),
		errors.Is(err, triage.ErrTaskNotFound),
		errors.Is(err, triage.ErrAlreadyConfirmed):
		return err.Error(), true
	}
	return "", false
}

// argError reports a malformed argument the same way the service reports
// malformed input.
func argError(field string, index int, reason string) *mcp.CallToolResult {
	return mcp.NewToolResultError((&triage.InvalidInputError{Field: field, Index: index, Reason: reason}).Error())
}

func stringArg(args map[string]any, name string) (string, bool, *mcp.CallToolResult) {
	raw, ok := args[name]
	if !ok || raw == nil {
		return "", false, nil
	}
	s, ok := raw.(string)
	if !ok {
		return "", false, argError(name, -1, "not a string")
	}
	return strings.TrimSpace(s), true, nil
}

func boolArg(args map[string]any, name string) (bool, *mcp.CallToolResult) {
	raw, ok := args[name]
	if !ok || raw == nil {
		return false, nil
	}
	b, ok := raw.(bool)
	if !ok {
		return false, argError(name, -1, "not a boolean")
	}
	return b, nil
}

// intArg accepts a whole JSON number.
func intArg(args map[string]any, name string) (int, bool, *mcp.CallToolResult) {
	raw, ok := args[name]
	if !ok || raw == nil {
		return 0, false, nil
	}
	switch v := raw.(type) {
	case int:
		return v, true, nil
	case float64:
		if v != math.Trunc(v) || math.Abs(v) > math.MaxInt32 {
			return 0, false, argError(name, -1, "not a whole number")
		}
		return int(v), true, nil
	}
	return 0, false, argError(name, -1, "not a number")
}

// listArg accepts either a JSON array of strings or a comma-separated string.
func listArg(args map[string]any, name string) ([]string, *mcp.CallToolResult) {
	raw, ok := args[name]
	if !ok || raw == nil {
		return nil, nil
	}
	var parts []string
	switch v := raw.(type) {
	case string:
		parts = strings.Split(v, ",")
	case []any:
		for i, e := range v {
			s, ok := e.(string)
			if !ok {
				return nil, argError(name, i, "not a string")
			}
			parts = append(parts, s)
		}
	default:
		return nil, argError(name, -1, "must be a string or an array of strings")
	}
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out, nil
}
