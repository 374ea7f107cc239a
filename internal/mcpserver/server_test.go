package mcpserver

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/starford/dagaz/internal/applier"
	"github.com/starford/dagaz/internal/freebusy"
	"github.com/starford/dagaz/internal/models"
	"github.com/starford/dagaz/internal/planner"
	"github.com/starford/dagaz/internal/session"
	"github.com/starford/dagaz/internal/testutil"
)

func testServer(t *testing.T) (*Server, *testutil.Generator, *session.Manager) {
	t.Helper()
	gen := testutil.StaticGenerator(`{"operations":[]}`)
	p := planner.New(gen, planner.WithClock(testutil.Clock()))
	sessions := session.NewManager(testutil.TestStore(t),
		session.WithApplier(applier.New(applier.WithClock(testutil.Clock()), applier.WithIDGenerator(testutil.SequentialIDs()))),
	)
	srv := New(p, sessions, Config{
		DefaultUser: "local",
		FreeBusy:    freebusy.Options{Location: time.UTC},
		Now:         testutil.Clock(),
	})
	return srv, gen, sessions
}

func callTool(t *testing.T, srv *Server, name string, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	ctx := context.Background()
	req := mcp.CallToolRequest{}
	req.Method = "tools/call"
	req.Params.Name = name
	req.Params.Arguments = args

	// mcp-go has no in-process call helper, so dispatch to the handlers directly.
	var result *mcp.CallToolResult
	var err error

	switch name {
	case "plan_changes":
		result, err = srv.planChanges(ctx, req)
	case "apply_plan":
		result, err = srv.applyPlan(ctx, req)
	case "list_entities":
		result, err = srv.listEntities(ctx, req)
	case "find_free_slot":
		result, err = srv.findFreeSlot(ctx, req)
	case "get_plan_schema":
		result, err = srv.getPlanSchema(ctx, req)
	default:
		t.Fatalf("unknown tool: %s", name)
	}

	if err != nil {
		t.Fatalf("tool %s error: %v", name, err)
	}
	return result
}

func resultText(r *mcp.CallToolResult) string {
	if len(r.Content) > 0 {
		if tc, ok := r.Content[0].(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

func TestPlanChanges_UsesStoredCollection(t *testing.T) {
	srv, gen, sessions := testServer(t)
	stored := []models.Entity{{ID: "e1", Type: models.TypeEvent, Title: "Standup", Date: "2026-10-19"}}
	if _, err := sessions.Replace(context.Background(), "alice", stored, ""); err != nil {
		t.Fatal(err)
	}
	gen.Set(`{"operations":[{"action":"delete","id":"e1","type":"event"}],"naturalLanguageSummary":"Cancelled standup"}`, nil)

	r := callTool(t, srv, "plan_changes", map[string]any{"message": "cancel standup", "user": "alice"})
	if r.IsError {
		t.Fatalf("plan_changes failed: %s", resultText(r))
	}
	var plan models.Plan
	if err := json.Unmarshal([]byte(resultText(r)), &plan); err != nil {
		t.Fatal(err)
	}
	if len(plan.Operations) != 1 || len(plan.Ambiguities) != 0 {
		t.Errorf("plan = %+v", plan)
	}
	if p := gen.Prompts(); !strings.Contains(p[0].Context, `"id": "e1"`) {
		t.Errorf("stored snapshot missing from prompt")
	}
}

func TestPlanChanges_Errors(t *testing.T) {
	srv, gen, _ := testServer(t)
	if r := callTool(t, srv, "plan_changes", map[string]any{}); !r.IsError {
		t.Error("missing message should be an error")
	}
	if r := callTool(t, srv, "plan_changes", map[string]any{"message": "x", "user": "../x"}); !r.IsError {
		t.Error("invalid user should be an error")
	}
	gen.Set("not json", nil)
	r := callTool(t, srv, "plan_changes", map[string]any{"message": "x"})
	if !r.IsError || !strings.Contains(resultText(r), "malformed") {
		t.Errorf("result = %q", resultText(r))
	}
}

func TestApplyPlanAndList(t *testing.T) {
	srv, _, _ := testServer(t)

	r := callTool(t, srv, "apply_plan", map[string]any{
		"plan": `{"operations":[{"action":"create","type":"task","title":"Taxes","dueDate":"2026-10-30"}]}`,
	})
	if r.IsError {
		t.Fatalf("apply_plan failed: %s", resultText(r))
	}

	r = callTool(t, srv, "list_entities", map[string]any{})
	var col session.Collection
	if err := json.Unmarshal([]byte(resultText(r)), &col); err != nil {
		t.Fatal(err)
	}
	if len(col.Entities) != 1 || col.Entities[0].ID != "ai_1" || col.Entities[0].Status != models.StatusTodo {
		t.Errorf("entities = %+v", col.Entities)
	}
}

func TestApplyPlan_InvalidPlan(t *testing.T) {
	srv, _, _ := testServer(t)
	r := callTool(t, srv, "apply_plan", map[string]any{
		"plan": `{"operations":[{"action":"create","type":"event","recurrence":"daily"}]}`,
	})
	if !r.IsError || !strings.Contains(resultText(r), "recurrenceEndDate") {
		t.Errorf("result = %q", resultText(r))
	}
}

func TestFindFreeSlot(t *testing.T) {
	srv, _, sessions := testServer(t)
	stored := []models.Entity{{ID: "a", Type: models.TypeEvent, Date: "2026-10-19", StartTime: "09:00", EndTime: "12:00"}}
	if _, err := sessions.Replace(context.Background(), "local", stored, ""); err != nil {
		t.Fatal(err)
	}
	r := callTool(t, srv, "find_free_slot", map[string]any{"duration_minutes": 30.0, "from": "2026-10-19"})
	if r.IsError {
		t.Fatalf("find_free_slot failed: %s", resultText(r))
	}
	var slot freebusy.Slot
	if err := json.Unmarshal([]byte(resultText(r)), &slot); err != nil {
		t.Fatal(err)
	}
	if want := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC); !slot.Start.Equal(want) {
		t.Errorf("start = %v, want %v", slot.Start, want)
	}

	if r := callTool(t, srv, "find_free_slot", map[string]any{"duration_minutes": 900.0}); resultText(r) != "no free slot within horizon" {
		t.Errorf("oversized result = %q", resultText(r))
	}
}

func TestPlanSchema(t *testing.T) {
	srv, _, _ := testServer(t)
	r := callTool(t, srv, "get_plan_schema", nil)
	if resultText(r) != PlanSchemaContract {
		t.Error("get_plan_schema should return the contract")
	}

	contents, err := srv.readPlanSchemaResource(context.Background(), mcp.ReadResourceRequest{})
	if err != nil {
		t.Fatal(err)
	}
	tc, ok := contents[0].(mcp.TextResourceContents)
	if !ok || tc.URI != PlanSchemaURI || !strings.Contains(tc.Text, "recurrenceEndDate") {
		t.Errorf("resource = %+v", contents)
	}
}
