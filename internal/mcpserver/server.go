// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes dagaz planning tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/dagaz/internal/freebusy"
	"github.com/starford/dagaz/internal/models"
	"github.com/starford/dagaz/internal/planner"
	"github.com/starford/dagaz/internal/session"
	"github.com/starford/dagaz/internal/storage"
)

// Server wraps the MCP server with dagaz tools.
type Server struct {
	mcp         *server.MCPServer
	planner     *planner.Planner
	sessions    *session.Manager
	freebusy    freebusy.Options
	defaultUser string
	now         func() time.Time
}

// Config carries the settings New needs besides the services.
type Config struct {
	DefaultUser string
	FreeBusy    freebusy.Options
	Now         func() time.Time
}

// New creates a new MCP server with all dagaz tools registered.
func New(p *planner.Planner, sessions *session.Manager, cfg Config) *Server {
	s := &Server{
		planner:     p,
		sessions:    sessions,
		freebusy:    cfg.FreeBusy,
		defaultUser: cfg.DefaultUser,
		now:         cfg.Now,
	}
	if s.now == nil {
		s.now = time.Now
	}

	s.mcp = server.NewMCPServer(
		"Dagaz",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	userArg := mcp.WithString("user", mcp.Description("User whose collection to use (defaults to the configured user)"))

	s.mcp.AddTool(mcp.NewTool("plan_changes",
		mcp.WithDescription("Turn a natural-language request into a plan of create/update/delete "+
			"operations against the user's stored calendar. Nothing is changed; pass the "+
			"result to apply_plan once approved."),
		mcp.WithString("message", mcp.Required(), mcp.Description("What the user wants changed")),
		mcp.WithString("today", mcp.Description("Reference date YYYY-MM-DD (defaults to today)")),
		userArg,
	), s.planChanges)

	s.mcp.AddTool(mcp.NewTool("apply_plan",
		mcp.WithDescription("Apply an approved plan to the user's calendar and persist it. "+
			"The plan MUST follow the format from get_plan_schema or the dagaz://plan-schema resource."),
		mcp.WithString("plan", mcp.Required(), mcp.Description("Plan JSON object")),
		userArg,
	), s.applyPlan)

	s.mcp.AddTool(mcp.NewTool("list_entities",
		mcp.WithDescription("List the events and tasks in the user's calendar."),
		userArg,
	), s.listEntities)

	s.mcp.AddTool(mcp.NewTool("find_free_slot",
		mcp.WithDescription("Find the earliest free slot inside working hours."),
		mcp.WithNumber("duration_minutes", mcp.Description("Slot length in minutes (default 60)")),
		mcp.WithString("from", mcp.Description("Search start, YYYY-MM-DD (defaults to now)")),
		userArg,
	), s.findFreeSlot)

	s.mcp.AddTool(mcp.NewTool("get_plan_schema",
		mcp.WithDescription("Returns the plan format contract. Call this before building a plan by hand."),
	), s.getPlanSchema)

	s.mcp.AddResource(
		mcp.NewResource(PlanSchemaURI, "Plan Format Contract",
			mcp.WithResourceDescription("JSON format of plans accepted by apply_plan."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readPlanSchemaResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func (s *Server) user(req mcp.CallToolRequest) (string, error) {
	user := req.GetString("user", s.defaultUser)
	if err := storage.ValidUser(user); err != nil {
		return "", err
	}
	return user, nil
}

func (s *Server) location() *time.Location {
	if s.freebusy.Location != nil {
		return s.freebusy.Location
	}
	return time.Local
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) planChanges(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	message, err := req.RequireString("message")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	user, err := s.user(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	today := s.now().In(s.location())
	if v := req.GetString("today", ""); v != "" {
		if today, err = time.ParseInLocation(models.DateLayout, v, s.location()); err != nil {
			return mcp.NewToolResultError("today must be a date in YYYY-MM-DD format"), nil
		}
	}

	col, err := s.sessions.Snapshot(ctx, user)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	plan, err := s.planner.Plan(ctx, planner.Request{Message: message, Snapshot: col.Entities, Today: today})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(plan)
}

func (s *Server) applyPlan(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, err := req.RequireString("plan")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	user, err := s.user(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	plan, err := planner.ParsePlan(raw)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	col, err := s.sessions.ApplyPlan(ctx, user, plan.Operations)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(col)
}

func (s *Server) listEntities(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	user, err := s.user(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	col, err := s.sessions.Snapshot(ctx, user)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(col)
}

func (s *Server) findFreeSlot(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	user, err := s.user(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	minutes := req.GetFloat("duration_minutes", 60)
	if minutes <= 0 {
		return mcp.NewToolResultError("duration_minutes must be positive"), nil
	}
	from := s.now().In(s.location())
	if v := req.GetString("from", ""); v != "" {
		if from, err = time.ParseInLocation(models.DateLayout, v, s.location()); err != nil {
			return mcp.NewToolResultError("from must be a date in YYYY-MM-DD format"), nil
		}
	}

	col, err := s.sessions.Snapshot(ctx, user)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	slot, ok, err := freebusy.EarliestSlot(col.Entities, from, time.Duration(minutes*float64(time.Minute)), s.freebusy)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if !ok {
		return mcp.NewToolResultText("no free slot within horizon"), nil
	}
	return jsonResult(slot)
}

func (s *Server) getPlanSchema(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(PlanSchemaContract), nil
}

func (s *Server) readPlanSchemaResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      PlanSchemaURI,
			MIMEType: "text/markdown",
			Text:     PlanSchemaContract,
		},
	}, nil
}
