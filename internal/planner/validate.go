package planner

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/dagaz/internal/apperr"
	"github.com/starford/dagaz/internal/models"
)

var (
	dateRe = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	timeRe = regexp.MustCompile(`^\d{2}:\d{2}$`)
)

// ParsePlan parses raw model text and validates it against the plan schema.
// The returned plan is structurally valid but not yet reconciled.
func ParsePlan(raw string) (*models.Plan, error) {
	var probe any
	if err := json.Unmarshal([]byte(raw), &probe); err != nil {
		return nil, apperr.MalformedOutput(err)
	}

	var plan models.Plan
	if err := json.Unmarshal([]byte(raw), &plan); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return nil, apperr.SchemaViolation([]string{typeReason(typeErr)})
		}
		return nil, apperr.SchemaViolation([]string{err.Error()})
	}

	if reasons := ValidatePlan(&plan); len(reasons) > 0 {
		return nil, apperr.SchemaViolation(reasons)
	}
	return &plan, nil
}

// ValidatePlan returns every schema and cross-field violation in plan, in a
// stable order. An empty result means the plan is valid.
func ValidatePlan(plan *models.Plan) []string {
	var reasons []string
	if plan.Operations == nil {
		reasons = append(reasons, "operations: is required")
	}
	for i := range plan.Operations {
		errs := validateOperation(&plan.Operations[i])
		keys := make([]string, 0, len(errs))
		for k := range errs {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			reasons = append(reasons, fmt.Sprintf("operations[%d].%s: %s", i, k, errs[k].Error()))
		}
	}
	return reasons
}

func validateOperation(op *models.Operation) validation.Errors {
	err := validation.ValidateStruct(op,
		validation.Field(&op.Action, validation.Required,
			validation.In(models.ActionCreate, models.ActionUpdate, models.ActionDelete).Error("must be one of create, update, delete")),
		validation.Field(&op.ID, validation.When(op.Targets(), validation.Required.Error("is required for update and delete"))),
		validation.Field(&op.Type, validation.When(op.Action == models.ActionCreate, validation.Required),
			validation.In(models.TypeEvent, models.TypeTask).Error("must be one of event, task")),

		validation.Field(&op.Title, notNull),
		validation.Field(&op.Notes, notNull),

		validation.Field(&op.Date, dateRules(op.Date,
			validation.When(op.StartDate.IsSet(), validation.Nil.Error("must be omitted when startDate is set")))...),
		validation.Field(&op.StartDate, dateRules(op.StartDate,
			validation.When(op.EndDate.IsSet(), validation.Required.Error("is required when endDate is set")))...),
		validation.Field(&op.EndDate, dateRules(op.EndDate,
			validation.When(op.StartDate.IsSet(), validation.By(notBefore(op.StartDate, "startDate"))))...),
		validation.Field(&op.StartTime, timeRules(op.StartTime)...),
		validation.Field(&op.EndTime, timeRules(op.EndTime)...),
		validation.Field(&op.Recurrence, enumRules(op.Recurrence,
			models.RecurrenceDaily, models.RecurrenceWeekly, models.RecurrenceMonthly, models.RecurrenceYearly)...),
		validation.Field(&op.RecurrenceEndDate, dateRules(op.RecurrenceEndDate,
			validation.When(op.Recurrence.IsSet(), validation.Required.Error("is required when recurrence is set")))...),

		validation.Field(&op.DueDate, dateRules(op.DueDate)...),
		validation.Field(&op.Priority, enumRules(op.Priority, models.PriorityHigh, models.PriorityMedium, models.PriorityLow)...),
		validation.Field(&op.Status, enumRules(op.Status, models.StatusTodo, models.StatusDoing, models.StatusDone)...),
	)
	if err == nil {
		return nil
	}
	var errs validation.Errors
	if errors.As(err, &errs) {
		return errs
	}
	return validation.Errors{"operation": err}
}

var notNull = validation.By(func(value any) error {
	if o, ok := value.(models.Optional[string]); ok && o.IsNull() {
		return errors.New("must not be null")
	}
	return nil
})

// present rejects a field that appears with an empty value; absent fields pass.
func present(o models.Optional[string]) validation.Rule {
	return validation.When(o.IsSet() && !o.IsNull(), validation.Required)
}

func dateRules(o models.Optional[string], extra ...validation.Rule) []validation.Rule {
	rules := []validation.Rule{
		notNull,
		present(o),
		validation.Match(dateRe).Error("must be a date in YYYY-MM-DD format"),
		validation.Date(models.DateLayout).Error("must be a valid calendar date"),
	}
	return append(rules, extra...)
}

func timeRules(o models.Optional[string]) []validation.Rule {
	return []validation.Rule{
		notNull,
		present(o),
		validation.Match(timeRe).Error("must be a time in HH:MM format"),
		validation.Date(models.TimeLayout).Error("must be a valid 24-hour time"),
	}
}

func enumRules(o models.Optional[string], allowed ...string) []validation.Rule {
	in := make([]any, len(allowed))
	for i, a := range allowed {
		in[i] = a
	}
	return []validation.Rule{
		notNull,
		present(o),
		validation.In(in...).Error("must be one of " + strings.Join(allowed, ", ")),
	}
}

// notBefore compares YYYY-MM-DD strings, which order lexically.
func notBefore(start models.Optional[string], name string) validation.RuleFunc {
	return func(value any) error {
		o, ok := value.(models.Optional[string])
		if !ok {
			return nil
		}
		end, ok := o.Get()
		if !ok {
			return nil
		}
		from, ok := start.Get()
		if !ok || !dateRe.MatchString(from) {
			return nil
		}
		if end < from {
			return fmt.Errorf("must not be before %s", name)
		}
		return nil
	}
}

func typeReason(err *json.UnmarshalTypeError) string {
	field := err.Field
	if field == "" {
		field = "plan"
	}
	return fmt.Sprintf("%s: must be %s, got %s", field, jsonKind(err.Type.Kind().String()), err.Value)
}

func jsonKind(goKind string) string {
	switch goKind {
	case "slice", "array":
		return "an array"
	case "struct", "map":
		return "an object"
	case "bool":
		return "a boolean"
	case "string":
		return "a string"
	default:
		return "a " + goKind
	}
}
