// Package parse turns the text of the utility's schedule page into a
// structured schedule.
package parse

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"power-outage-monitor/internal/model"
	"power-outage-monitor/internal/period"
)

var (
	dateRe       = regexp.MustCompile(`^Графік погодинних відключень на (\d{2}\.\d{2}\.\d{4})`)
	lastUpdateRe = regexp.MustCompile(`^Інформація станом на (\d{2}:\d{2} \d{2}\.\d{2}\.\d{4})`)
	groupRe      = regexp.MustCompile(`^(Група \d+\.\d+)\. (Електроенергії немає|Електроенергія є)(?: з (\d{2}:\d{2}) до (\d{2}:\d{2}))?\.`)
)

// Status labels as the page prints them.
const (
	LabelOutage    = "Електроенергії немає"
	LabelAvailable = "Електроенергія є"
)

const lastUpdateLayout = "15:04 02.01.2006"

// Schedule is the raw content of one schedule page. Date and LastUpdate are
// kept as printed; validation happens in the scraper.
type Schedule struct {
	Date       string             `json:"date"`
	LastUpdate string             `json:"last_update"`
	Groups     []model.GroupEntry `json:"groups"`
}

// StatusFromLabel maps a printed status to a model status.
func StatusFromLabel(label string) (model.Status, bool) {
	switch strings.TrimSpace(label) {
	case LabelOutage:
		return model.StatusOutage, true
	case LabelAvailable:
		return model.StatusAvailable, true
	}
	return "", false
}

// ParseSchedule extracts the date line, the "as of" line and every group
// line from text. Lines that match nothing are ignored; only the first date
// and "as of" lines count.
func ParseSchedule(text string) Schedule {
	var s Schedule
	for _, raw := range strings.Split(text, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}
		if s.Date == "" {
			if m := dateRe.FindStringSubmatch(line); m != nil {
				s.Date = m[1]
				continue
			}
		}
		if s.LastUpdate == "" {
			if m := lastUpdateRe.FindStringSubmatch(line); m != nil {
				s.LastUpdate = m[1]
				continue
			}
		}
		m := groupRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		status, _ := StatusFromLabel(m[2])
		entry := model.GroupEntry{Name: m[1], Status: status}
		if m[3] != "" && m[4] != "" {
			entry.WindowFrom = period.NormalizeTime(m[3])
			entry.WindowTo = period.NormalizeTime(m[4])
		}
		s.Groups = append(s.Groups, entry)
	}
	return s
}

// ParseLastUpdate reads an "as of" stamp printed as "HH:MM DD.MM.YYYY" or in
// ISO 8601. Stamps without an offset are read in loc.
func ParseLastUpdate(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.ParseInLocation(lastUpdateLayout, s, loc); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	for _, layout := range []string{"2006-01-02T15:04:05", "2006-01-02T15:04", "2006-01-02 15:04:05", "2006-01-02 15:04"} {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised last update %q", s)
}
