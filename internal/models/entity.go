// Package models defines the domain types for dagaz.
package models

import (
	"encoding/json"
	"maps"
)

// Entity types.
const (
	TypeEvent = "event"
	TypeTask  = "task"
)

// Recurrence frequencies.
const (
	RecurrenceDaily   = "daily"
	RecurrenceWeekly  = "weekly"
	RecurrenceMonthly = "monthly"
	RecurrenceYearly  = "yearly"
)

// Task priorities.
const (
	PriorityHigh   = "high"
	PriorityMedium = "medium"
	PriorityLow    = "low"
)

// Task statuses.
const (
	StatusTodo  = "todo"
	StatusDoing = "doing"
	StatusDone  = "done"
)

// Wire formats for dates and times.
const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04"
)

// Entity is a calendar event or task in a user's collection.
//
// Fields the server does not know about (for example those a UI adds for
// rendering) are kept in Extra and written back unchanged.
type Entity struct {
	ID    string `json:"id"`
	Type  string `json:"type,omitempty"`
	Title string `json:"title,omitempty"`
	Notes string `json:"notes,omitempty"`

	// Event fields.
	Date              string `json:"date,omitempty"`
	StartDate         string `json:"startDate,omitempty"`
	EndDate           string `json:"endDate,omitempty"`
	StartTime         string `json:"startTime,omitempty"`
	EndTime           string `json:"endTime,omitempty"`
	Recurrence        string `json:"recurrence,omitempty"`
	RecurrenceEndDate string `json:"recurrenceEndDate,omitempty"`

	// Task fields.
	DueDate  string `json:"dueDate,omitempty"`
	Priority string `json:"priority,omitempty"`
	Status   string `json:"status,omitempty"`

	Extra map[string]json.RawMessage `json:"-"`
}

var entityKeys = []string{
	"id", "type", "title", "notes",
	"date", "startDate", "endDate", "startTime", "endTime", "recurrence", "recurrenceEndDate",
	"dueDate", "priority", "status",
}

type entityAlias Entity

// UnmarshalJSON implements json.Unmarshaler.
func (e *Entity) UnmarshalJSON(data []byte) error {
	var a entityAlias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	for _, k := range entityKeys {
		delete(raw, k)
	}
	if len(raw) > 0 {
		a.Extra = raw
	} else {
		a.Extra = nil
	}
	*e = Entity(a)
	return nil
}

// MarshalJSON implements json.Marshaler.
func (e Entity) MarshalJSON() ([]byte, error) {
	known, err := json.Marshal(entityAlias(e))
	if err != nil {
		return nil, err
	}
	if len(e.Extra) == 0 {
		return known, nil
	}
	out := make(map[string]json.RawMessage, len(e.Extra)+len(entityKeys))
	maps.Copy(out, e.Extra)
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(known, &fields); err != nil {
		return nil, err
	}
	maps.Copy(out, fields)
	return json.Marshal(out)
}

// IsEvent reports whether the entity is an event. Entities without a type are
// treated as events, matching collections written before tasks existed.
func (e *Entity) IsEvent() bool {
	return e.Type == TypeEvent || e.Type == ""
}

// IDSet returns the identifiers present in entities.
func IDSet(entities []Entity) map[string]struct{} {
	out := make(map[string]struct{}, len(entities))
	for _, e := range entities {
		if e.ID != "" {
			out[e.ID] = struct{}{}
		}
	}
	return out
}
