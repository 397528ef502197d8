// Package period holds the pure clock, overlap and identity helpers used by
// the reconciler. Nothing here touches storage or returns errors.
package period

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const minutesPerDay = 24 * 60

// DateLayout is the storage layout of a schedule date.
const DateLayout = "2006-01-02"

// DisplayDateLayout is the layout the utility publishes dates in.
const DisplayDateLayout = "02.01.2006"

// TimeToMinutes converts "HH:MM" into minutes since midnight. Empty or
// malformed input yields 0.
func TimeToMinutes(hhmm string) int {
	h, m, ok := strings.Cut(strings.TrimSpace(hhmm), ":")
	if !ok {
		return 0
	}
	hours, err := strconv.Atoi(h)
	if err != nil || hours < 0 || hours > 24 {
		return 0
	}
	minutes, err := strconv.Atoi(m)
	if err != nil || minutes < 0 || minutes > 59 {
		return 0
	}
	return hours*60 + minutes
}

// NormalizeTime converts variants like "9.05" or " 09:05 " into "09:05".
// "24:00" becomes "23:59". Input that cannot be parsed is returned trimmed.
func NormalizeTime(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	s = strings.ReplaceAll(s, ".", ":")
	if s == "24:00" {
		return "23:59"
	}
	h, m, ok := strings.Cut(s, ":")
	if !ok {
		return s
	}
	hours, errH := strconv.Atoi(h)
	minutes, errM := strconv.Atoi(m)
	if errH != nil || errM != nil {
		return s
	}
	return fmt.Sprintf("%02d:%02d", hours, minutes)
}

// span returns [start, end) in minutes, pushing end past midnight when the
// window wraps (end <= start).
func span(from, to string) (int, int) {
	start := TimeToMinutes(from)
	end := TimeToMinutes(to)
	if end <= start {
		end += minutesPerDay
	}
	return start, end
}

// IntervalsOverlap reports whether two clock windows intersect on a 24h
// wrapping clock.
func IntervalsOverlap(aFrom, aTo, bFrom, bTo string) bool {
	aStart, aEnd := span(aFrom, aTo)
	bStart, bEnd := span(bFrom, bTo)
	// b is also tried one day earlier and later so a window crossing
	// midnight meets the windows of the following morning.
	for _, shift := range [...]int{0, minutesPerDay, -minutesPerDay} {
		if !(aEnd <= bStart+shift || bEnd+shift <= aStart) {
			return true
		}
	}
	return false
}

// ContentHash identifies the semantic content of a period, independent of
// when it was observed.
func ContentHash(date, groupName, status, from, to string) string {
	sum := sha256.Sum256([]byte(strings.Join([]string{date, groupName, status, from, to}, "|")))
	return hex.EncodeToString(sum[:16])
}

// EventID is the human-readable key used as the calendar summary line.
// The date is rendered the way the utility publishes it.
func EventID(date, groupName, status, from, to string) string {
	display := date
	if d, err := time.Parse(DateLayout, date); err == nil {
		display = d.Format(DisplayDateLayout)
	}
	return fmt.Sprintf("%s_%s-%s-%s-%s", display, groupName, status, from, to)
}

// GroupCode strips the group prefix: "Група 1.1" -> "1.1".
func GroupCode(groupName string) string {
	if _, code, ok := strings.Cut(strings.TrimSpace(groupName), " "); ok {
		if code = strings.TrimSpace(code); code != "" {
			return code
		}
	}
	return groupName
}

// FormatDate renders t as a storage date in its own location.
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

// Today returns the current storage date in loc.
func Today(now time.Time, loc *time.Location) string {
	return FormatDate(now.In(loc))
}
