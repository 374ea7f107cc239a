package planner

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/starford/dagaz/internal/apperr"
	"github.com/starford/dagaz/internal/models"
)

var fixedNow = time.Date(2026, 10, 17, 8, 30, 0, 0, time.UTC)

func staticGenerator(raw string) GeneratorFunc {
	return func(context.Context, Prompt) (string, error) { return raw, nil }
}

func TestPlan_EmptyMessageSkipsPipeline(t *testing.T) {
	called := false
	p := New(GeneratorFunc(func(context.Context, Prompt) (string, error) {
		called = true
		return "{}", nil
	}))
	_, err := p.Plan(context.Background(), Request{Message: "   "})
	if !errors.Is(err, apperr.ErrInvalidInput) {
		t.Fatalf("err = %v, want input error", err)
	}
	if called {
		t.Error("generator must not be invoked for empty input")
	}
}

func TestPlan_UsesClockForCurrentDate(t *testing.T) {
	var seen Prompt
	p := New(GeneratorFunc(func(_ context.Context, pr Prompt) (string, error) {
		seen = pr
		return `{"operations":[]}`, nil
	}), WithClock(func() time.Time { return fixedNow }))

	if _, err := p.Plan(context.Background(), Request{Message: "hi"}); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(seen.Context, "Current Date: 2026-10-17") {
		t.Errorf("context = %s", seen.Context)
	}
}

func TestPlan_UnknownIDBecomesAmbiguity(t *testing.T) {
	p := New(staticGenerator(`{"operations":[{"action":"delete","id":"e2","type":"event"}]}`))
	plan, err := p.Plan(context.Background(), Request{
		Message:  "delete the dentist",
		Snapshot: []models.Entity{{ID: "e1", Title: "Standup"}},
	})
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if len(plan.Operations) != 1 {
		t.Fatalf("operations = %d", len(plan.Operations))
	}
	if len(plan.Ambiguities) != 1 || !strings.Contains(plan.Ambiguities[0], `e2`) {
		t.Errorf("ambiguities = %v", plan.Ambiguities)
	}
}

func TestPlan_TypelessDeleteOfUnknownID(t *testing.T) {
	p := New(staticGenerator(`{"operations":[{"action":"delete","id":"e2"}]}`))
	plan, err := p.Plan(context.Background(), Request{
		Message:  "delete the dentist",
		Snapshot: []models.Entity{{ID: "e1", Title: "Standup"}},
	})
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if len(plan.Operations) != 1 || plan.Operations[0].Type != "" {
		t.Fatalf("operations = %+v", plan.Operations)
	}
	if len(plan.Ambiguities) != 1 || !strings.Contains(plan.Ambiguities[0], `e2`) {
		t.Errorf("ambiguities = %v", plan.Ambiguities)
	}
}

func TestPlan_TypelessUpdatePassesThrough(t *testing.T) {
	p := New(staticGenerator(`{"operations":[{"action":"update","id":"e1","title":"Daily sync"}]}`))
	plan, err := p.Plan(context.Background(), Request{
		Message:  "rename standup to daily sync",
		Snapshot: []models.Entity{{ID: "e1", Title: "Standup"}},
	})
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if plan.Ambiguities != nil {
		t.Errorf("ambiguities = %v, want nil", plan.Ambiguities)
	}
	if v, _ := plan.Operations[0].Title.Get(); v != "Daily sync" {
		t.Errorf("title = %q", v)
	}
}

func TestPlan_MultiDayRequestIsSingleSpan(t *testing.T) {
	raw := `{"operations":[{"action":"create","type":"event","title":"Vacation","startDate":"2026-10-19","endDate":"2026-10-23"}],
		"naturalLanguageSummary":"Vacation Monday to Friday."}`
	p := New(staticGenerator(raw))
	plan, err := p.Plan(context.Background(), Request{Message: "vacation Monday to Friday", Today: fixedNow})
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if len(plan.Operations) != 1 {
		t.Fatalf("operations = %d, want 1", len(plan.Operations))
	}
	op := plan.Operations[0]
	if op.Date.IsSet() || !op.StartDate.IsSet() || !op.EndDate.IsSet() {
		t.Errorf("op = %+v, want startDate/endDate and no date", op)
	}
}

func TestPlan_FailureKinds(t *testing.T) {
	tests := []struct {
		name string
		gen  GeneratorFunc
		want error
	}{
		{
			name: "remote failure",
			gen: func(context.Context, Prompt) (string, error) {
				return "", errors.New("quota exceeded")
			},
			want: apperr.ErrGeneration,
		},
		{
			name: "malformed output",
			gen:  staticGenerator("not json"),
			want: apperr.ErrMalformedOutput,
		},
		{
			name: "schema violation",
			gen:  staticGenerator(`{"operations":[{"action":"create"}]}`),
			want: apperr.ErrSchemaViolation,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := New(tt.gen)
			plan, err := p.Plan(context.Background(), Request{Message: "do it"})
			if plan != nil {
				t.Error("no plan should be returned")
			}
			if !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestPlan_TimeoutIsDistinct(t *testing.T) {
	p := New(GeneratorFunc(func(ctx context.Context, _ Prompt) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	}), WithTimeout(20*time.Millisecond))

	_, err := p.Plan(context.Background(), Request{Message: "slow"})
	if !errors.Is(err, apperr.ErrGenerationTimeout) {
		t.Fatalf("err = %v, want timeout", err)
	}
	if errors.Is(err, apperr.ErrGeneration) {
		t.Error("timeout must not also match remote failure")
	}
}

func TestPlan_CallerCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p := New(GeneratorFunc(func(ctx context.Context, _ Prompt) (string, error) {
		return "", ctx.Err()
	}))
	plan, err := p.Plan(ctx, Request{Message: "x"})
	if plan != nil || !errors.Is(err, apperr.ErrGeneration) {
		t.Errorf("plan = %v, err = %v", plan, err)
	}
}
