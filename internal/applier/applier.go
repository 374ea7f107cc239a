// Package applier merges approved plan operations into an entity collection.
package applier

import (
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/starford/dagaz/internal/models"
)

// Defaults for created events with no time of day.
const (
	DefaultStartTime = "09:00"
	DefaultEndTime   = "10:00"
	defaultTitle     = "Untitled"
	idPrefix         = "ai_"
)

// Applier applies operations in order. It is stateless apart from its clock
// and id source.
type Applier struct {
	now   func() time.Time
	newID func() string
}

// Option configures an Applier.
type Option func(*Applier)

// WithClock overrides the clock used for date defaults.
func WithClock(now func() time.Time) Option {
	return func(a *Applier) { a.now = now }
}

// WithIDGenerator overrides identifier synthesis for created entities.
func WithIDGenerator(gen func() string) Option {
	return func(a *Applier) { a.newID = gen }
}

// New creates an Applier.
func New(opts ...Option) *Applier {
	a := &Applier{
		now:   time.Now,
		newID: func() string { return idPrefix + uuid.NewString() },
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Apply returns the collection that results from applying ops to entities.
// The input slice is not modified. Updates and deletes whose target is
// missing are no-ops.
func (a *Applier) Apply(entities []models.Entity, ops []models.Operation) []models.Entity {
	out := slices.Clone(entities)
	if out == nil {
		out = []models.Entity{}
	}
	taken := models.IDSet(out)

	for _, op := range ops {
		switch op.Action {
		case models.ActionCreate:
			e := a.create(op, taken)
			taken[e.ID] = struct{}{}
			out = append(out, e)
		case models.ActionUpdate:
			if i := indexOf(out, op.ID); i >= 0 {
				patch(&out[i], op)
			}
		case models.ActionDelete:
			out = slices.DeleteFunc(out, func(e models.Entity) bool {
				return op.ID != "" && e.ID == op.ID
			})
		}
	}
	return out
}

func (a *Applier) create(op models.Operation, taken map[string]struct{}) models.Entity {
	e := models.Entity{ID: a.uniqueID(taken), Type: op.Type}
	patch(&e, op)
	if e.Title == "" {
		e.Title = defaultTitle
	}

	if e.Type == models.TypeTask {
		if e.Priority == "" {
			e.Priority = models.PriorityMedium
		}
		if e.Status == "" {
			e.Status = models.StatusTodo
		}
		return e
	}

	if e.Date == "" && e.StartDate == "" {
		e.Date = a.now().Format(models.DateLayout)
	}
	// Multi-day spans stay all-day unless the plan gave times.
	if e.Date != "" {
		e.StartTime, e.EndTime = defaultTimes(e.StartTime, e.EndTime)
	}
	return e
}

func (a *Applier) uniqueID(taken map[string]struct{}) string {
	for {
		id := a.newID()
		if _, ok := taken[id]; !ok && id != "" {
			return id
		}
	}
}

// patch copies every field present in op onto e.
func patch(e *models.Entity, op models.Operation) {
	if op.Type != "" {
		e.Type = op.Type
	}
	fields := []struct {
		dst *string
		src models.Optional[string]
	}{
		{&e.Title, op.Title},
		{&e.Notes, op.Notes},
		{&e.Date, op.Date},
		{&e.StartDate, op.StartDate},
		{&e.EndDate, op.EndDate},
		{&e.StartTime, op.StartTime},
		{&e.EndTime, op.EndTime},
		{&e.Recurrence, op.Recurrence},
		{&e.RecurrenceEndDate, op.RecurrenceEndDate},
		{&e.DueDate, op.DueDate},
		{&e.Priority, op.Priority},
		{&e.Status, op.Status},
	}
	for _, f := range fields {
		if v, ok := f.src.Get(); ok {
			*f.dst = v
		}
	}
}

// defaultTimes fills a missing start or end so that the event lasts one hour,
// falling back to 09:00-10:00.
func defaultTimes(start, end string) (string, string) {
	switch {
	case start == "" && end == "":
		return DefaultStartTime, DefaultEndTime
	case end == "":
		if t, err := time.Parse(models.TimeLayout, start); err == nil {
			return start, clampDay(t, t.Add(time.Hour)).Format(models.TimeLayout)
		}
	case start == "":
		if t, err := time.Parse(models.TimeLayout, end); err == nil {
			return clampDay(t, t.Add(-time.Hour)).Format(models.TimeLayout), end
		}
	}
	return start, end
}

// clampDay keeps shifted within the calendar day of base.
func clampDay(base, shifted time.Time) time.Time {
	startOfDay := time.Date(base.Year(), base.Month(), base.Day(), 0, 0, 0, 0, base.Location())
	endOfDay := startOfDay.Add(24*time.Hour - time.Minute)
	if shifted.Before(startOfDay) {
		return startOfDay
	}
	if shifted.After(endOfDay) {
		return endOfDay
	}
	return shifted
}

func indexOf(entities []models.Entity, id string) int {
	if id == "" {
		return -1
	}
	return slices.IndexFunc(entities, func(e models.Entity) bool { return e.ID == id })
}
