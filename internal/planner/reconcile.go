package planner

import (
	"slices"
	"strings"

	"github.com/starford/dagaz/internal/models"
)

const unknownIDsPrefix = "Some operations reference unknown ids: "

// Reconcile checks every update and delete in plan against the known
// identifiers. Operations are never dropped; unknown ids are collated into a
// single ambiguity appended after those the model reported.
func Reconcile(plan *models.Plan, known map[string]struct{}) *models.Plan {
	var unknown []string
	for _, op := range plan.Operations {
		if !op.Targets() {
			continue
		}
		if _, ok := known[op.ID]; ok {
			continue
		}
		if !slices.Contains(unknown, op.ID) {
			unknown = append(unknown, op.ID)
		}
	}
	if len(unknown) == 0 {
		return plan
	}

	note := unknownIDsPrefix + strings.Join(unknown, ", ")
	if !slices.Contains(plan.Ambiguities, note) {
		plan.Ambiguities = append(plan.Ambiguities, note)
	}
	return plan
}
