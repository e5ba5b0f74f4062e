// Package mcpserver exposes the roster and session as MCP tools over stdio,
// so AI assistants can administer a poe-to-gpt deployment.
//
// Exposed tools: list_users, get_user, enable_user, disable_user,
// set_admin, reset_key and session_status. Results are JSON documents using
// the API's field names. Failures are returned as tool errors, never as
// protocol errors.
//
// The server never logs in by itself. Without a session every roster tool
// fails with guidance to run `poeadmin login`.
package mcpserver

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/formzs/poe-to-gpt/internal/roster"
	"github.com/formzs/poe-to-gpt/internal/session"
)

// Roster is the part of the roster controller the tools use.
type Roster interface {
	Refresh(ctx context.Context, vs roster.ViewState) (roster.Page, error)
	Account(id int64) (roster.Account, bool)
	SetAdminFlag(ctx context.Context, id int64, desired bool) (roster.Result, error)
	SetEnabled(ctx context.Context, id int64, desired bool, reason string) (roster.Result, error)
	ResetKey(ctx context.Context, id int64) (roster.Result, error)
}

// Session reports the session state.
type Session interface {
	State() session.State
	LastError() error
}

// Server wraps an MCP server whose tools act on the roster.
type Server struct {
	roster    Roster
	session   Session
	endpoint  string
	mcpServer *server.MCPServer
}

// New creates the MCP server and registers its tools.
func New(r Roster, s Session, endpoint, version string) *Server {
	srv := &Server{
		roster:   r,
		session:  s,
		endpoint: endpoint,
		mcpServer: server.NewMCPServer(
			"poeadmin",
			version,
			server.WithToolCapabilities(false),
		),
	}
	srv.registerTools()
	return srv
}

// Serve serves the MCP protocol over stdin and stdout until the client
// disconnects.
func (s *Server) Serve(ctx context.Context) error {
	return server.ServeStdio(s.mcpServer)
}

func (s *Server) registerTools() {
	listUsers := mcp.NewTool("list_users",
		mcp.WithDescription("List user accounts. Supports search, status and role filters, sorting and paging."),
		mcp.WithString("search",
			mcp.Description("Case-insensitive substring of the username or the decimal user id"),
		),
		mcp.WithString("status",
			mcp.Description("Account status filter"),
			mcp.Enum("all", "enabled", "disabled"),
		),
		mcp.WithString("role",
			mcp.Description("Admin flag filter"),
			mcp.Enum("all", "admin", "nonAdmin"),
		),
		mcp.WithString("sort_by",
			mcp.Description("Field to sort by"),
			mcp.Enum("username", "user_id", "created_at", "last_used_at"),
		),
		mcp.WithString("sort_dir",
			mcp.Description("Sort direction"),
			mcp.Enum("asc", "desc"),
		),
		mcp.WithNumber("page",
			mcp.Description("1-based page number, clamped to the last page"),
		),
		mcp.WithNumber("page_size",
			mcp.Description("Accounts per page"),
		),
	)
	s.mcpServer.AddTool(listUsers, s.handleListUsers)

	getUser := mcp.NewTool("get_user",
		mcp.WithDescription("Show one user account"),
		mcp.WithNumber("user_id",
			mcp.Required(),
			mcp.Description("Account id"),
		),
	)
	s.mcpServer.AddTool(getUser, s.handleGetUser)

	enableUser := mcp.NewTool("enable_user",
		mcp.WithDescription("Enable a user account and clear its disable reason"),
		mcp.WithNumber("user_id",
			mcp.Required(),
			mcp.Description("Account id"),
		),
	)
	s.mcpServer.AddTool(enableUser, s.handleEnableUser)

	disableUser := mcp.NewTool("disable_user",
		mcp.WithDescription("Disable a user account. The reason is shown to the user."),
		mcp.WithNumber("user_id",
			mcp.Required(),
			mcp.Description("Account id"),
		),
		mcp.WithString("reason",
			mcp.Required(),
			mcp.Description("Why the account is disabled, must not be empty"),
		),
	)
	s.mcpServer.AddTool(disableUser, s.handleDisableUser)

	setAdmin := mcp.NewTool("set_admin",
		mcp.WithDescription("Grant or revoke administrator rights"),
		mcp.WithNumber("user_id",
			mcp.Required(),
			mcp.Description("Account id"),
		),
		mcp.WithBoolean("admin",
			mcp.Required(),
			mcp.Description("true to grant, false to revoke"),
		),
	)
	s.mcpServer.AddTool(setAdmin, s.handleSetAdmin)

	resetKey := mcp.NewTool("reset_key",
		mcp.WithDescription("Issue a new API key for a user. The old key stops working."),
		mcp.WithNumber("user_id",
			mcp.Required(),
			mcp.Description("Account id"),
		),
	)
	s.mcpServer.AddTool(resetKey, s.handleResetKey)

	sessionStatus := mcp.NewTool("session_status",
		mcp.WithDescription("Show whether poeadmin has an authenticated session"),
	)
	s.mcpServer.AddTool(sessionStatus, s.handleSessionStatus)
}
