package planner

import (
	"errors"
	"strings"
	"testing"

	"github.com/starford/dagaz/internal/apperr"
	"github.com/starford/dagaz/internal/models"
)

func TestParsePlan_MalformedJSON(t *testing.T) {
	plan, err := ParsePlan("not json")
	if plan != nil {
		t.Fatal("no plan should be returned")
	}
	if !errors.Is(err, apperr.ErrMalformedOutput) {
		t.Fatalf("err = %v, want malformed output", err)
	}
}

func TestParsePlan_MissingType(t *testing.T) {
	_, err := ParsePlan(`{"operations":[{"action":"create"}]}`)
	if !errors.Is(err, apperr.ErrSchemaViolation) {
		t.Fatalf("err = %v, want schema violation", err)
	}
	reasons := apperr.Reasons(err)
	if len(reasons) != 1 || !strings.HasPrefix(reasons[0], "operations[0].type:") {
		t.Errorf("reasons = %v", reasons)
	}
}

func TestParsePlan_TypeOptionalForUpdateAndDelete(t *testing.T) {
	plan, err := ParsePlan(`{"operations":[
		{"action":"update","id":"e1","title":"Daily sync"},
		{"action":"delete","id":"e2"}
	]}`)
	if err != nil {
		t.Fatalf("ParsePlan: %v", err)
	}
	up := plan.Operations[0]
	if up.Type != "" {
		t.Errorf("type = %q, want empty", up.Type)
	}
	if v, ok := up.Title.Get(); !ok || v != "Daily sync" {
		t.Errorf("title = %v", up.Title)
	}
	if up.Notes.IsSet() || up.Date.IsSet() || up.StartTime.IsSet() {
		t.Errorf("update should carry only the title: %+v", up)
	}
	if plan.Operations[1].Type != "" || plan.Operations[1].ID != "e2" {
		t.Errorf("delete = %+v", plan.Operations[1])
	}
}

func TestParsePlan_TypeStillChecked(t *testing.T) {
	_, err := ParsePlan(`{"operations":[{"action":"update","id":"e1","type":"meeting"}]}`)
	reasons := apperr.Reasons(err)
	if len(reasons) != 1 || !strings.HasPrefix(reasons[0], "operations[0].type:") {
		t.Errorf("reasons = %v", reasons)
	}
}

func TestParsePlan_Valid(t *testing.T) {
	raw := `{
		"operations": [
			{"action":"create","type":"event","title":"Vacation","startDate":"2026-10-19","endDate":"2026-10-23"},
			{"action":"update","id":"e1","type":"task","priority":"high","notes":""},
			{"action":"delete","id":"e2","type":"event"}
		],
		"naturalLanguageSummary": "Planned vacation.",
		"ambiguities": ["which meeting?"]
	}`
	plan, err := ParsePlan(raw)
	if err != nil {
		t.Fatalf("ParsePlan: %v", err)
	}
	if len(plan.Operations) != 3 {
		t.Fatalf("operations = %d", len(plan.Operations))
	}
	if plan.Operations[0].Date.IsSet() {
		t.Error("multi-day create must not carry date")
	}
	if v, ok := plan.Operations[1].Notes.Get(); !ok || v != "" {
		t.Error("empty notes should stay present")
	}
	if plan.NaturalLanguageSummary != "Planned vacation." || len(plan.Ambiguities) != 1 {
		t.Errorf("metadata = %+v", plan)
	}
}

func TestParsePlan_EmptyOperationsAllowed(t *testing.T) {
	plan, err := ParsePlan(`{"operations":[],"naturalLanguageSummary":"You are free at 14:00."}`)
	if err != nil {
		t.Fatalf("ParsePlan: %v", err)
	}
	if plan.Operations == nil || len(plan.Operations) != 0 {
		t.Errorf("operations = %v", plan.Operations)
	}
}

func TestParsePlan_Violations(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"missing operations", `{}`, "operations: is required"},
		{"null document", `null`, "operations: is required"},
		{"array document", `[]`, "must be an object"},
		{"unknown action", `{"operations":[{"action":"upsert","type":"event"}]}`, "operations[0].action: must be one of create, update, delete"},
		{"unknown type", `{"operations":[{"action":"create","type":"note"}]}`, "operations[0].type: must be one of event, task"},
		{"update without id", `{"operations":[{"action":"update","type":"event"}]}`, "operations[0].id: is required for update and delete"},
		{"delete without id", `{"operations":[{"action":"delete","type":"task"}]}`, "operations[0].id:"},
		{"bad date", `{"operations":[{"action":"create","type":"event","date":"10/19/2026"}]}`, "operations[0].date: must be a date in YYYY-MM-DD format"},
		{"impossible date", `{"operations":[{"action":"create","type":"event","date":"2026-13-45"}]}`, "operations[0].date: must be a valid calendar date"},
		{"empty date", `{"operations":[{"action":"create","type":"event","date":""}]}`, "operations[0].date: cannot be blank"},
		{"bad time", `{"operations":[{"action":"create","type":"event","startTime":"9am"}]}`, "operations[0].startTime: must be a time in HH:MM format"},
		{"impossible time", `{"operations":[{"action":"create","type":"event","endTime":"25:00"}]}`, "operations[0].endTime: must be a valid 24-hour time"},
		{"bad priority", `{"operations":[{"action":"create","type":"task","priority":"urgent"}]}`, "operations[0].priority: must be one of high, medium, low"},
		{"bad status", `{"operations":[{"action":"create","type":"task","status":"blocked"}]}`, "operations[0].status:"},
		{"bad recurrence", `{"operations":[{"action":"create","type":"event","recurrence":"hourly","recurrenceEndDate":"2026-11-01"}]}`, "operations[0].recurrence:"},
		{"recurrence without end", `{"operations":[{"action":"create","type":"event","recurrence":"weekly"}]}`, "operations[0].recurrenceEndDate: is required when recurrence is set"},
		{"end without start", `{"operations":[{"action":"create","type":"event","endDate":"2026-10-23"}]}`, "operations[0].startDate: is required when endDate is set"},
		{"end before start", `{"operations":[{"action":"create","type":"event","startDate":"2026-10-23","endDate":"2026-10-19"}]}`, "operations[0].endDate: must not be before startDate"},
		{"date and span", `{"operations":[{"action":"create","type":"event","date":"2026-10-19","startDate":"2026-10-19","endDate":"2026-10-20"}]}`, "operations[0].date: must be omitted when startDate is set"},
		{"null title", `{"operations":[{"action":"create","type":"event","title":null}]}`, "operations[0].title: must not be null"},
		{"wrong title type", `{"operations":[{"action":"create","type":"event","title":5}]}`, "must be a string"},
		{"wrong ambiguities type", `{"operations":[],"ambiguities":"none"}`, "must be an array"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan, err := ParsePlan(tt.raw)
			if plan != nil {
				t.Fatal("no plan should be returned")
			}
			if !errors.Is(err, apperr.ErrSchemaViolation) {
				t.Fatalf("err = %v, want schema violation", err)
			}
			joined := strings.Join(apperr.Reasons(err), "\n")
			if !strings.Contains(joined, tt.want) {
				t.Errorf("reasons %q do not contain %q", joined, tt.want)
			}
		})
	}
}

func TestParsePlan_ReportsAllViolationsInOrder(t *testing.T) {
	raw := `{"operations":[
		{"action":"create","type":"event","date":"x","startTime":"y"},
		{"action":"bogus"}
	]}`
	_, err := ParsePlan(raw)
	reasons := apperr.Reasons(err)
	want := []string{
		"operations[0].date: must be a date in YYYY-MM-DD format",
		"operations[0].startTime: must be a time in HH:MM format",
		"operations[1].action: must be one of create, update, delete",
		"operations[1].type: cannot be blank",
	}
	if len(reasons) != len(want) {
		t.Fatalf("reasons = %v", reasons)
	}
	for i := range want {
		if reasons[i] != want[i] {
			t.Errorf("reasons[%d] = %q, want %q", i, reasons[i], want[i])
		}
	}
}

func TestValidatePlan_EveryValidPlanHasTargetIDs(t *testing.T) {
	plan := &models.Plan{Operations: []models.Operation{
		{Action: models.ActionCreate, Type: models.TypeTask},
		{Action: models.ActionUpdate, Type: models.TypeTask, ID: "t1"},
		{Action: models.ActionDelete, Type: models.TypeEvent, ID: "e1"},
	}}
	if reasons := ValidatePlan(plan); len(reasons) != 0 {
		t.Fatalf("reasons = %v", reasons)
	}
	for _, op := range plan.Operations {
		if op.Targets() && op.ID == "" {
			t.Errorf("%s without id passed validation", op.Action)
		}
	}
}
