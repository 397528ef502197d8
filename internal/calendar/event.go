// Package calendar renders outage periods as ICS calendars and writes them
// to disk.
package calendar

import (
	"fmt"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	"power-outage-monitor/internal/model"
	"power-outage-monitor/internal/period"
)

const productID = "-//Power Monitor//Power Outage Monitor//EN"

const (
	CategoryOutage    = "POWER OUTAGE"
	CategoryAvailable = "POWER AVAILABLE"
	CategoryUtility   = "UTILITY"
)

var statusLabels = map[model.Status]string{
	model.StatusOutage:    "Електроенергії немає",
	model.StatusAvailable: "Електроенергія є",
}

// Window resolves the instants a period covers in loc. allDay is true when
// the period has no clock window; start is then local midnight and end the
// following midnight. A window whose end is not after its start ends on the
// next day.
func Window(p model.OutagePeriod, loc *time.Location) (start, end time.Time, allDay bool, err error) {
	day, err := time.ParseInLocation(period.DateLayout, p.Date, loc)
	if err != nil {
		return time.Time{}, time.Time{}, false, fmt.Errorf("parse date %q: %w", p.Date, err)
	}
	if !p.HasWindow() {
		return day, day.AddDate(0, 0, 1), true, nil
	}

	fromMin := period.TimeToMinutes(p.WindowFrom)
	toMin := period.TimeToMinutes(p.WindowTo)
	start = atMinute(day, fromMin)
	end = atMinute(day, toMin)
	if toMin <= fromMin {
		end = atMinute(day.AddDate(0, 0, 1), toMin)
	}
	return start, end, false, nil
}

func atMinute(day time.Time, minute int) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), minute/60, minute%60, 0, 0, day.Location())
}

func newCalendar(name string, method ical.Method) *ical.Calendar {
	cal := ical.NewCalendar()
	cal.SetProductId(productID)
	cal.SetCalscale("GREGORIAN")
	cal.SetMethod(method)
	if name != "" {
		cal.SetXWRCalName(name)
	}
	return cal
}

// addEvent appends p to cal as a confirmed event.
func addEvent(cal *ical.Calendar, p model.OutagePeriod, loc *time.Location, now time.Time) error {
	start, end, allDay, err := Window(p, loc)
	if err != nil {
		return err
	}

	ev := cal.AddEvent(p.EventUID)
	ev.SetDtStampTime(now)
	ev.SetCreatedTime(now)
	if allDay {
		ev.SetAllDayStartAt(start)
		ev.SetAllDayEndAt(end)
	} else {
		ev.SetStartAt(start)
		ev.SetEndAt(end)
	}
	ev.SetSummary(p.EventID)
	ev.SetDescription(description(p, loc))

	category := CategoryAvailable
	if p.Status == model.StatusOutage {
		category = CategoryOutage
	}
	ev.AddProperty(ical.ComponentPropertyCategories, category)
	ev.AddProperty(ical.ComponentPropertyCategories, CategoryUtility)
	ev.SetStatus(ical.ObjectStatusConfirmed)
	ev.SetTimeTransparency(ical.TransparencyOpaque)
	return nil
}

// addCancellation appends a cancellation of p's earlier event to cal.
func addCancellation(cal *ical.Calendar, p model.OutagePeriod, now time.Time) {
	ev := cal.AddEvent(p.EventUID)
	ev.SetDtStampTime(now)
	ev.SetSummary(p.EventID)
	ev.SetStatus(ical.ObjectStatusCancelled)
}

func description(p model.OutagePeriod, loc *time.Location) string {
	date := p.Date
	if d, err := time.Parse(period.DateLayout, p.Date); err == nil {
		date = d.Format(period.DisplayDateLayout)
	}
	status, ok := statusLabels[p.Status]
	if !ok {
		status = string(p.Status)
	}
	parts := []string{
		"Дата: " + date,
		"Група: " + p.GroupName,
		"Статус: " + status,
		"Останнє оновлення: " + p.LastUpdate.In(loc).Format("02.01.2006 15:04"),
	}
	if p.HasWindow() {
		parts = append(parts, fmt.Sprintf("Період: %s - %s", p.WindowFrom, p.WindowTo))
	}
	return strings.Join(parts, " | ")
}

// Publish renders periods as a single PUBLISH calendar.
func Publish(name string, periods []model.OutagePeriod, loc *time.Location, now time.Time) (string, error) {
	cal := newCalendar(name, ical.MethodPublish)
	for _, p := range periods {
		if err := addEvent(cal, p, loc, now); err != nil {
			return "", fmt.Errorf("event %s: %w", p.EventID, err)
		}
	}
	return cal.Serialize(), nil
}

// Cancel renders a CANCEL calendar targeting the events of periods.
func Cancel(name string, periods []model.OutagePeriod, now time.Time) string {
	cal := newCalendar(name, ical.MethodCancel)
	for _, p := range periods {
		addCancellation(cal, p, now)
	}
	return cal.Serialize()
}
