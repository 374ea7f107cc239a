// Package icsexport renders an entity collection as an iCalendar feed.
package icsexport

import (
	"fmt"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	"github.com/starford/dagaz/internal/models"
)

const (
	productID  = "-//dagaz//planner//EN"
	taskPrefix = "[task] "
	uidDomain  = "@dagaz"
)

// Encode returns the VCALENDAR for entities. Times are interpreted in loc.
// Tasks without a due date and entities with unparseable dates are skipped.
func Encode(entities []models.Entity, now time.Time, loc *time.Location) (string, error) {
	if loc == nil {
		loc = time.Local
	}
	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId(productID)

	for _, e := range entities {
		var err error
		if e.IsEvent() {
			err = addEvent(cal, e, now, loc)
		} else {
			err = addTask(cal, e, now, loc)
		}
		if err != nil {
			return "", fmt.Errorf("icsexport: %s: %w", e.ID, err)
		}
	}
	return cal.Serialize(), nil
}

func addEvent(cal *ical.Calendar, e models.Entity, now time.Time, loc *time.Location) error {
	first, last := e.Date, e.Date
	if first == "" {
		first, last = e.StartDate, e.EndDate
	}
	if last == "" {
		last = first
	}
	startDay, err := time.ParseInLocation(models.DateLayout, first, loc)
	if err != nil {
		return nil
	}
	endDay, err := time.ParseInLocation(models.DateLayout, last, loc)
	if err != nil || endDay.Before(startDay) {
		endDay = startDay
	}

	ev := cal.AddEvent(e.ID + uidDomain)
	ev.SetDtStampTime(now)
	ev.SetSummary(e.Title)
	if e.Notes != "" {
		ev.SetDescription(e.Notes)
	}

	allDay := e.StartTime == "" || endDay.After(startDay)
	if allDay {
		ev.SetAllDayStartAt(startDay)
		ev.SetAllDayEndAt(endDay.AddDate(0, 0, 1))
	} else {
		start, err := at(startDay, e.StartTime)
		if err != nil {
			return err
		}
		end := start.Add(time.Hour)
		if e.EndTime != "" {
			if v, err := at(startDay, e.EndTime); err == nil && v.After(start) {
				end = v
			}
		}
		ev.SetStartAt(start)
		ev.SetEndAt(end)
	}

	if rule := rrule(e, allDay, loc); rule != "" {
		ev.AddRrule(rule)
	}
	return nil
}

func addTask(cal *ical.Calendar, e models.Entity, now time.Time, loc *time.Location) error {
	if e.DueDate == "" {
		return nil
	}
	due, err := time.ParseInLocation(models.DateLayout, e.DueDate, loc)
	if err != nil {
		return nil
	}
	ev := cal.AddEvent(e.ID + uidDomain)
	ev.SetDtStampTime(now)
	ev.SetSummary(taskPrefix + e.Title)
	var desc []string
	if e.Priority != "" {
		desc = append(desc, "Priority: "+e.Priority)
	}
	if e.Status != "" {
		desc = append(desc, "Status: "+e.Status)
	}
	if e.Notes != "" {
		desc = append(desc, e.Notes)
	}
	if len(desc) > 0 {
		ev.SetDescription(strings.Join(desc, "\n"))
	}
	ev.SetAllDayStartAt(due)
	ev.SetAllDayEndAt(due.AddDate(0, 0, 1))
	return nil
}

// rrule returns the RRULE value for e, or "" when it does not recur.
func rrule(e models.Entity, allDay bool, loc *time.Location) string {
	if e.Recurrence == "" {
		return ""
	}
	rule := "FREQ=" + strings.ToUpper(e.Recurrence)
	if e.RecurrenceEndDate == "" {
		return rule
	}
	until, err := time.ParseInLocation(models.DateLayout, e.RecurrenceEndDate, loc)
	if err != nil {
		return rule
	}
	if allDay {
		return rule + ";UNTIL=" + until.Format("20060102")
	}
	endOfDay := until.AddDate(0, 0, 1).Add(-time.Second)
	return rule + ";UNTIL=" + endOfDay.UTC().Format("20060102T150405Z")
}

func at(day time.Time, hm string) (time.Time, error) {
	t, err := time.Parse(models.TimeLayout, hm)
	if err != nil {
		return time.Time{}, err
	}
	return time.Date(day.Year(), day.Month(), day.Day(), t.Hour(), t.Minute(), 0, 0, day.Location()), nil
}
