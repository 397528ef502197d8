package scraper

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"power-outage-monitor/internal/model"
	"power-outage-monitor/internal/parse"
	"power-outage-monitor/internal/period"
)

var (
	// ErrSourceUnavailable means the schedule page could not be loaded.
	ErrSourceUnavailable = errors.New("schedule source unavailable")
	// ErrNoSchedule means the page carries no schedule date or no groups.
	ErrNoSchedule = errors.New("no schedule published")
	// ErrStaleSchedule means the published date is before today.
	ErrStaleSchedule = errors.New("schedule is stale")
	// ErrInvalidSchedule means the published date cannot be read.
	ErrInvalidSchedule = errors.New("schedule date is invalid")
)

// Freshness tells a valid schedule for today from one published ahead.
type Freshness string

const (
	FreshnessCurrent Freshness = "current"
	FreshnessFuture  Freshness = "future"
)

// Fetcher returns the visible text of the schedule page.
type Fetcher interface {
	FetchText(ctx context.Context) (string, error)
}

// Result is one successful read of the source.
type Result struct {
	Schedule    parse.Schedule
	Observation model.Observation
	Freshness   Freshness
}

// Scraper reads the schedule page and validates what it finds.
type Scraper struct {
	fetcher Fetcher
	loc     *time.Location
	log     zerolog.Logger
	now     func() time.Time
}

// New creates a scraper validating dates against the calendar in loc.
func New(fetcher Fetcher, loc *time.Location, log zerolog.Logger) *Scraper {
	return &Scraper{fetcher: fetcher, loc: loc, log: log, now: time.Now}
}

// Fetch loads, parses and validates the current schedule.
func (s *Scraper) Fetch(ctx context.Context) (Result, error) {
	text, err := s.fetcher.FetchText(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrSourceUnavailable, err)
	}
	if strings.TrimSpace(text) == "" {
		return Result{}, ErrNoSchedule
	}

	sched := parse.ParseSchedule(text)
	s.log.Debug().
		Str("date", sched.Date).
		Str("last_update", sched.LastUpdate).
		Int("groups", len(sched.Groups)).
		Msg("schedule page parsed")

	obs, fresh, err := Validate(sched, s.now(), s.loc)
	if err != nil {
		return Result{Schedule: sched}, err
	}
	if sched.LastUpdate == "" {
		s.log.Warn().Msg("schedule carries no update stamp, using fetch time")
	}
	return Result{Schedule: sched, Observation: obs, Freshness: fresh}, nil
}

// Validate checks a parsed schedule against today's date in loc and turns it
// into an observation. A missing or unreadable update stamp falls back to now.
func Validate(sched parse.Schedule, now time.Time, loc *time.Location) (model.Observation, Freshness, error) {
	if sched.Date == "" || len(sched.Groups) == 0 {
		return model.Observation{}, "", ErrNoSchedule
	}

	date, err := time.ParseInLocation(period.DisplayDateLayout, sched.Date, loc)
	if err != nil {
		return model.Observation{}, "", fmt.Errorf("%w: %q", ErrInvalidSchedule, sched.Date)
	}

	today := period.Today(now, loc)
	dateKey := period.FormatDate(date)
	fresh := FreshnessCurrent
	switch {
	case dateKey < today:
		return model.Observation{}, "", fmt.Errorf("%w: schedule for %s, today is %s", ErrStaleSchedule, sched.Date, today)
	case dateKey > today:
		fresh = FreshnessFuture
	}

	lastUpdate := now
	if sched.LastUpdate != "" {
		if t, err := parse.ParseLastUpdate(sched.LastUpdate, loc); err == nil {
			lastUpdate = t
		}
	}

	return model.Observation{Date: date, LastUpdate: lastUpdate, Groups: sched.Groups}, fresh, nil
}
