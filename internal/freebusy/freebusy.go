// Package freebusy finds open time inside working hours given a user's
// events.
package freebusy

import (
	"fmt"
	"slices"
	"time"

	"github.com/teambition/rrule-go"

	"github.com/starford/dagaz/internal/models"
)

// Defaults applied by Options.withDefaults.
const (
	DefaultDayStart    = "09:00"
	DefaultDayEnd      = "18:00"
	DefaultHorizonDays = 14
)

// Options bounds the search.
type Options struct {
	DayStart    string // HH:MM
	DayEnd      string // HH:MM
	HorizonDays int
	Location    *time.Location
}

// Slot is a half-open interval [Start, End).
type Slot struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

func (o Options) withDefaults() Options {
	if o.DayStart == "" {
		o.DayStart = DefaultDayStart
	}
	if o.DayEnd == "" {
		o.DayEnd = DefaultDayEnd
	}
	if o.HorizonDays <= 0 {
		o.HorizonDays = DefaultHorizonDays
	}
	if o.Location == nil {
		o.Location = time.Local
	}
	return o
}

// EarliestSlot returns the first interval of length d at or after from that
// lies inside working hours and overlaps no event. Tasks never block.
func EarliestSlot(entities []models.Entity, from time.Time, d time.Duration, opts Options) (Slot, bool, error) {
	opts = opts.withDefaults()
	dayStart, err := clock(opts.DayStart)
	if err != nil {
		return Slot{}, false, fmt.Errorf("freebusy: day start: %w", err)
	}
	dayEnd, err := clock(opts.DayEnd)
	if err != nil {
		return Slot{}, false, fmt.Errorf("freebusy: day end: %w", err)
	}
	if dayEnd <= dayStart {
		return Slot{}, false, fmt.Errorf("freebusy: day end %s is not after day start %s", opts.DayEnd, opts.DayStart)
	}
	if d <= 0 || d > dayEnd-dayStart {
		return Slot{}, false, nil
	}

	from = from.In(opts.Location)
	first := midnight(from)
	last := first.AddDate(0, 0, opts.HorizonDays)
	busy := Busy(entities, first, last, opts.Location)

	for day := first; day.Before(last); day = day.AddDate(0, 0, 1) {
		winStart := wallClock(day, dayStart)
		winEnd := wallClock(day, dayEnd)
		cursor := winStart
		if from.After(cursor) {
			cursor = from
		}
		for _, b := range busy {
			if !b.End.After(cursor) || !b.Start.Before(winEnd) {
				continue
			}
			if b.Start.Sub(cursor) >= d {
				break
			}
			if b.End.After(cursor) {
				cursor = b.End
			}
		}
		if winEnd.Sub(cursor) >= d {
			return Slot{Start: cursor, End: cursor.Add(d)}, true, nil
		}
	}
	return Slot{}, false, nil
}

// Busy expands events into busy intervals overlapping [rangeStart, rangeEnd),
// sorted by start. Entities with unparseable dates are ignored.
func Busy(entities []models.Entity, rangeStart, rangeEnd time.Time, loc *time.Location) []Slot {
	var out []Slot
	for _, e := range entities {
		if !e.IsEvent() {
			continue
		}
		for _, s := range occurrences(e, rangeStart, rangeEnd, loc) {
			if s.End.After(rangeStart) && s.Start.Before(rangeEnd) {
				out = append(out, s)
			}
		}
	}
	slices.SortFunc(out, func(a, b Slot) int { return a.Start.Compare(b.Start) })
	return out
}

func occurrences(e models.Entity, rangeStart, rangeEnd time.Time, loc *time.Location) []Slot {
	first := e.Date
	lastDay := e.Date
	if first == "" {
		first, lastDay = e.StartDate, e.EndDate
	}
	if lastDay == "" {
		lastDay = first
	}
	base, err := time.ParseInLocation(models.DateLayout, first, loc)
	if err != nil {
		return nil
	}
	end, err := time.ParseInLocation(models.DateLayout, lastDay, loc)
	if err != nil || end.Before(base) {
		end = base
	}
	spanDays := int(end.Sub(base).Hours()/24 + 0.5)

	starts := []time.Time{base}
	if freq, ok := frequency(e.Recurrence); ok {
		until := rangeEnd
		if e.RecurrenceEndDate != "" {
			if u, err := time.ParseInLocation(models.DateLayout, e.RecurrenceEndDate, loc); err == nil {
				until = u.AddDate(0, 0, 1).Add(-time.Second)
			}
		}
		r, err := rrule.NewRRule(rrule.ROption{Freq: freq, Dtstart: base, Until: until})
		if err != nil {
			return nil
		}
		starts = r.Between(rangeStart.AddDate(0, 0, -spanDays-1), rangeEnd, true)
	}

	out := make([]Slot, 0, len(starts))
	for _, day := range starts {
		day = midnight(day.In(loc))
		out = append(out, block(e, day, spanDays))
	}
	return out
}

// block is the busy interval of one occurrence starting on day. Spans and
// events without a start time take whole days.
func block(e models.Entity, day time.Time, spanDays int) Slot {
	if spanDays > 0 || e.StartTime == "" {
		return Slot{Start: day, End: day.AddDate(0, 0, spanDays+1)}
	}
	start, err := clock(e.StartTime)
	if err != nil {
		return Slot{Start: day, End: day.AddDate(0, 0, 1)}
	}
	end := start + time.Hour
	if e.EndTime != "" {
		if v, err := clock(e.EndTime); err == nil && v > start {
			end = v
		}
	}
	if end > 24*time.Hour {
		end = 24 * time.Hour
	}
	return Slot{Start: wallClock(day, start), End: wallClock(day, end)}
}

func frequency(rec string) (rrule.Frequency, bool) {
	switch rec {
	case models.RecurrenceDaily:
		return rrule.DAILY, true
	case models.RecurrenceWeekly:
		return rrule.WEEKLY, true
	case models.RecurrenceMonthly:
		return rrule.MONTHLY, true
	case models.RecurrenceYearly:
		return rrule.YEARLY, true
	}
	return 0, false
}

// clock parses HH:MM into an offset from midnight.
func clock(s string) (time.Duration, error) {
	t, err := time.Parse(models.TimeLayout, s)
	if err != nil {
		return 0, err
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}

// wallClock is the instant at offset past midnight on day's calendar date,
// read as a wall clock in day's location.
func wallClock(day time.Time, offset time.Duration) time.Time {
	h := int(offset / time.Hour)
	m := int(offset % time.Hour / time.Minute)
	return time.Date(day.Year(), day.Month(), day.Day(), h, m, 0, 0, day.Location())
}

func midnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
