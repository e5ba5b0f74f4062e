package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/formzs/poe-to-gpt/internal/cli"
	"github.com/formzs/poe-to-gpt/internal/roster"
	"github.com/formzs/poe-to-gpt/internal/session"
	"github.com/formzs/poe-to-gpt/pkg/logging"
)

func (s *Server) handleListUsers(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	var (
		vs  roster.ViewState
		err error
	)
	vs.Search = argString(args, "search")
	if vs.Status, err = roster.ParseStatusFilter(argString(args, "status")); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if vs.Admin, err = roster.ParseAdminFilter(argString(args, "role")); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if vs.SortField, err = roster.ParseSortField(argString(args, "sort_by")); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if vs.SortDirection, err = roster.ParseSortDirection(argString(args, "sort_dir")); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if page, ok, err := argInt(args, "page"); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	} else if ok {
		vs.Page = int(page)
	}
	if size, ok, err := argInt(args, "page_size"); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	} else if ok {
		vs.PageSize = int(size)
	}

	page, err := s.roster.Refresh(ctx, vs)
	if err != nil {
		return s.failure("list users", err), nil
	}
	return jsonResult(page)
}

func (s *Server) handleGetUser(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := requireID(request)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	account, ok := s.roster.Account(id)
	if !ok {
		if _, err := s.roster.Refresh(ctx, roster.ViewState{}); err != nil {
			return s.failure("load users", err), nil
		}
		if account, ok = s.roster.Account(id); !ok {
			return mcp.NewToolResultError(fmt.Sprintf("%v: %d", roster.ErrUnknownAccount, id)), nil
		}
	}
	return jsonResult(account)
}

func (s *Server) handleEnableUser(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := requireID(request)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	result, err := s.roster.SetEnabled(ctx, id, true, "")
	return s.mutation("enable user", result, err)
}

func (s *Server) handleDisableUser(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := requireID(request)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	reason, err := request.RequireString("reason")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	result, err := s.roster.SetEnabled(ctx, id, false, reason)
	return s.mutation("disable user", result, err)
}

func (s *Server) handleSetAdmin(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := requireID(request)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	admin, ok := request.GetArguments()["admin"].(bool)
	if !ok {
		return mcp.NewToolResultError("admin must be true or false"), nil
	}
	result, err := s.roster.SetAdminFlag(ctx, id, admin)
	return s.mutation("set admin", result, err)
}

func (s *Server) handleResetKey(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := requireID(request)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	result, err := s.roster.ResetKey(ctx, id)
	return s.mutation("reset key", result, err)
}

func (s *Server) handleSessionStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	state := s.session.State()
	status := cli.SessionStatus{
		Endpoint: s.endpoint,
		State:    state.String(),
		LoggedIn: state == session.StateAuthenticated,
	}
	if err := s.session.LastError(); err != nil {
		status.LastError = err.Error()
	}
	return jsonResult(status)
}

func (s *Server) mutation(action string, result roster.Result, err error) (*mcp.CallToolResult, error) {
	if err != nil {
		return s.failure(action, err), nil
	}
	return jsonResult(result)
}

// failure converts err into a tool error with CLI guidance.
func (s *Server) failure(action string, err error) *mcp.CallToolResult {
	logging.Debug("MCP", "%s failed: %v", action, err)
	return mcp.NewToolResultError(fmt.Sprintf("Failed to %s: %v", action, cli.Translate(err, s.endpoint)))
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to format result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

func argString(args map[string]any, key string) string {
	if v, ok := args[key].(string); ok {
		return strings.TrimSpace(v)
	}
	return ""
}

// argInt reads an integer argument sent as a JSON number or a string.
func argInt(args map[string]any, key string) (int64, bool, error) {
	raw, present := args[key]
	if !present || raw == nil {
		return 0, false, nil
	}
	switch v := raw.(type) {
	case float64:
		if v != math.Trunc(v) || v < 0 || v > 1<<53 {
			return 0, false, fmt.Errorf("%s must be a non-negative integer", key)
		}
		return int64(v), true, nil
	case int:
		return int64(v), true, nil
	case int64:
		return v, true, nil
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil || n < 0 {
			return 0, false, fmt.Errorf("%s must be a non-negative integer", key)
		}
		return n, true, nil
	}
	return 0, false, fmt.Errorf("%s must be a non-negative integer", key)
}

func requireID(request mcp.CallToolRequest) (int64, error) {
	id, ok, err := argInt(request.GetArguments(), "user_id")
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, fmt.Errorf("user_id is required")
	}
	return id, nil
}
