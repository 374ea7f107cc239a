package models

// Operation actions.
const (
	ActionCreate = "create"
	ActionUpdate = "update"
	ActionDelete = "delete"
)

// Operation is a single create/update/delete instruction targeting one entity.
// Every field except Action, ID and Type is optional; absent fields are never
// applied by an update.
type Operation struct {
	Action string `json:"action"`
	ID     string `json:"id,omitempty"`
	Type   string `json:"type,omitempty"`

	Title Optional[string] `json:"title,omitzero"`
	Notes Optional[string] `json:"notes,omitzero"`

	Date              Optional[string] `json:"date,omitzero"`
	StartDate         Optional[string] `json:"startDate,omitzero"`
	EndDate           Optional[string] `json:"endDate,omitzero"`
	StartTime         Optional[string] `json:"startTime,omitzero"`
	EndTime           Optional[string] `json:"endTime,omitzero"`
	Recurrence        Optional[string] `json:"recurrence,omitzero"`
	RecurrenceEndDate Optional[string] `json:"recurrenceEndDate,omitzero"`

	DueDate  Optional[string] `json:"dueDate,omitzero"`
	Priority Optional[string] `json:"priority,omitzero"`
	Status   Optional[string] `json:"status,omitzero"`
}

// Targets reports whether the operation addresses an existing entity by id.
func (op *Operation) Targets() bool {
	return op.Action == ActionUpdate || op.Action == ActionDelete
}

// Plan is the validated output of one planning request. Operations are in
// application order.
type Plan struct {
	Operations             []Operation `json:"operations"`
	NaturalLanguageSummary string      `json:"naturalLanguageSummary,omitempty"`
	Ambiguities            []string    `json:"ambiguities,omitempty"`
}
