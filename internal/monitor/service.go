// Package monitor runs the scrape, reconcile and emit cycle.
package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"power-outage-monitor/internal/calendar"
	"power-outage-monitor/internal/model"
	"power-outage-monitor/internal/notification"
	"power-outage-monitor/internal/period"
	"power-outage-monitor/internal/reconcile"
	"power-outage-monitor/internal/scraper"
	"power-outage-monitor/internal/store"
)

// CycleStatus is the outcome of one cycle.
type CycleStatus string

const (
	StatusSuccess     CycleStatus = "success"
	StatusNoData      CycleStatus = "no_data"
	StatusOldData     CycleStatus = "old_data"
	StatusInvalidDate CycleStatus = "invalid_date"
	StatusError       CycleStatus = "error"
)

// ErrEmission marks artifacts that could not be written. The periods behind
// them stay unmarked and are emitted again next cycle.
var ErrEmission = errors.New("artifact emission failed")

// Source yields validated schedules.
type Source interface {
	Fetch(ctx context.Context) (scraper.Result, error)
}

// Notifier receives push jobs for emitted events.
type Notifier interface {
	Dispatch(job notification.Job)
}

// Options tune a Service.
type Options struct {
	Location      *time.Location
	UIDDomain     string
	Groups        []string
	RetentionDays int
	RawDataDir    string
	Combined      bool
}

// Report summarises one cycle.
type Report struct {
	Status    CycleStatus
	Freshness scraper.Freshness
	Inserted  int
	Resumed   int // pending periods left behind by an interrupted cycle
	Reconcile reconcile.Result
	Created   int
	Cancelled int
	Purged    int64
	Artifacts []string
	// Err is set for StatusError and for partial emission failures.
	Err error
}

// Service owns one cycle's collaborators.
type Service struct {
	opts       Options
	source     Source
	store      store.Store
	writer     calendar.Writer
	notifier   Notifier
	reconciler *reconcile.Reconciler
	generator  *reconcile.Generator
	filter     reconcile.GroupFilter
	log        zerolog.Logger
	now        func() time.Time
}

// NewService wires a cycle runner. notifier may be nil.
func NewService(opts Options, source Source, st store.Store, writer calendar.Writer, notifier Notifier, log zerolog.Logger) *Service {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	return &Service{
		opts:       opts,
		source:     source,
		store:      st,
		writer:     writer,
		notifier:   notifier,
		reconciler: reconcile.NewReconciler(st, log.With().Str("component", "reconcile").Logger()),
		generator:  reconcile.NewGenerator(st),
		filter:     reconcile.NewGroupFilter(opts.Groups),
		log:        log,
		now:        time.Now,
	}
}

// Classify maps a fetch error onto a cycle status.
func Classify(err error) CycleStatus {
	switch {
	case err == nil:
		return StatusSuccess
	case errors.Is(err, scraper.ErrSourceUnavailable), errors.Is(err, scraper.ErrNoSchedule):
		return StatusNoData
	case errors.Is(err, scraper.ErrStaleSchedule):
		return StatusOldData
	case errors.Is(err, scraper.ErrInvalidSchedule):
		return StatusInvalidDate
	}
	return StatusError
}

// RunOnce performs one full cycle. Only StatusError aborts before emission
// completes; the other non-success statuses stop before anything is stored.
func (s *Service) RunOnce(ctx context.Context) Report {
	now := s.now()
	s.log.Info().Msg("cycle started")

	res, err := s.source.Fetch(ctx)
	if err != nil {
		rep := Report{Status: Classify(err)}
		if rep.Status == StatusError {
			rep.Err = err
			s.log.Error().Err(err).Msg("fetch failed")
		} else {
			s.log.Info().Str("status", string(rep.Status)).Str("reason", err.Error()).Msg("no usable schedule, nothing written")
		}
		return rep
	}

	rep := Report{Status: StatusSuccess, Freshness: res.Freshness}
	fail := func(err error) Report {
		rep.Status = StatusError
		rep.Err = err
		s.log.Error().Err(err).Msg("cycle aborted")
		return rep
	}

	s.log.Info().
		Str("date", res.Schedule.Date).
		Str("freshness", string(res.Freshness)).
		Int("groups", len(res.Observation.Groups)).
		Msg("schedule fetched")

	if s.opts.RawDataDir != "" {
		path, err := s.saveSnapshot(res, now)
		if err != nil {
			return fail(err)
		}
		rep.Artifacts = append(rep.Artifacts, path)
	}

	leftover, err := s.store.FindForEmission(ctx, store.EmissionQuery{
		State:      model.StatePending,
		GroupCodes: s.filter.Codes(),
	})
	if err != nil {
		return fail(err)
	}
	if rep.Resumed = len(leftover); rep.Resumed > 0 {
		s.log.Warn().Int("periods", rep.Resumed).Msg("resuming periods left pending by an earlier cycle")
	}

	batch := s.filter.Apply(reconcile.PeriodsFromObservation(res.Observation, now, s.opts.UIDDomain))
	for i := range batch {
		if err := s.store.Insert(ctx, &batch[i]); err != nil {
			return fail(err)
		}
	}
	rep.Inserted = len(batch)

	rep.Reconcile, err = s.reconciler.Reconcile(ctx, append(leftover, batch...))
	if err != nil {
		return fail(err)
	}
	s.log.Info().
		Int("generated", rep.Reconcile.Generated).
		Int("discarded", rep.Reconcile.Discarded).
		Int("cancelled", rep.Reconcile.Cancelled).
		Int("unsent", rep.Reconcile.Unsent).
		Msg("batch reconciled")

	set, err := s.generator.Generate(ctx, period.Today(now, s.opts.Location), s.filter.Codes())
	if err != nil {
		return fail(err)
	}

	var emitErrs []error
	created, paths, errs := s.emitCreate(set.Create)
	rep.Artifacts = append(rep.Artifacts, paths...)
	emitErrs = append(emitErrs, errs...)
	if err := s.store.MarkSent(ctx, ids(created)); err != nil {
		return fail(err)
	}
	rep.Created = len(created)

	cancelled, paths, errs := s.emitCancel(set.Cancel)
	rep.Artifacts = append(rep.Artifacts, paths...)
	emitErrs = append(emitErrs, errs...)
	for _, p := range cancelled {
		if err := s.store.UpdateState(ctx, p.RecordID, model.StateDiscarded, now); err != nil {
			return fail(err)
		}
	}
	rep.Cancelled = len(cancelled)

	if len(emitErrs) > 0 {
		rep.Err = fmt.Errorf("%w: %w", ErrEmission, errors.Join(emitErrs...))
		s.log.Warn().Err(rep.Err).Msg("some artifacts were not written, retrying next cycle")
	}

	s.notify(created, notification.KindCreated)
	s.notify(cancelled, notification.KindCancelled)

	if s.opts.RetentionDays > 0 {
		rep.Purged, err = s.Purge(ctx, now)
		if err != nil {
			return fail(err)
		}
	}

	s.log.Info().
		Int("created", rep.Created).
		Int("cancelled", rep.Cancelled).
		Int("artifacts", len(rep.Artifacts)).
		Msg("cycle finished")
	s.LogStats(ctx)
	return rep
}

func (s *Service) emitCreate(periods []model.OutagePeriod) (done []model.OutagePeriod, paths []string, errs []error) {
	for _, p := range periods {
		path, err := s.writer.WriteCreateArtifact(p)
		if err != nil {
			errs = append(errs, fmt.Errorf("create %s: %w", p.EventID, err))
			continue
		}
		done = append(done, p)
		paths = append(paths, path)
	}
	if s.opts.Combined && len(done) > 0 {
		path, err := s.writer.WriteCombinedArtifact(done)
		if err != nil {
			errs = append(errs, fmt.Errorf("combined calendar: %w", err))
		} else {
			paths = append(paths, path)
		}
	}
	return done, paths, errs
}

func (s *Service) emitCancel(periods []model.OutagePeriod) (done []model.OutagePeriod, paths []string, errs []error) {
	if len(periods) == 0 {
		return nil, nil, nil
	}
	path, err := s.writer.WriteCancelArtifact(periods)
	if err != nil {
		return nil, nil, []error{fmt.Errorf("cancel calendar: %w", err)}
	}
	paths = append(paths, path)
	if path, err := s.writer.WriteDeletionSummary(periods); err != nil {
		errs = append(errs, fmt.Errorf("deletion summary: %w", err))
	} else {
		paths = append(paths, path)
	}
	return periods, paths, errs
}

func (s *Service) notify(periods []model.OutagePeriod, kind notification.Kind) {
	if s.notifier == nil {
		return
	}
	for _, p := range periods {
		s.notifier.Dispatch(notification.JobFor(p, kind))
	}
}

// Purge deletes periods inserted before the retention horizon.
func (s *Service) Purge(ctx context.Context, now time.Time) (int64, error) {
	cutoff := now.AddDate(0, 0, -s.opts.RetentionDays)
	n, err := s.store.PurgeOlderThan(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.log.Info().Int64("rows", n).Int("days", s.opts.RetentionDays).Msg("old periods purged")
	}
	return n, nil
}

// LogStats logs repository statistics. Failures are logged and dropped.
func (s *Service) LogStats(ctx context.Context) {
	st, err := s.store.Stats(ctx, s.now())
	if err != nil {
		s.log.Warn().Err(err).Msg("load stats")
		return
	}
	s.log.Info().
		Int64("total", st.Total).
		Int64("unique_dates", st.UniqueDates).
		Int64("unique_groups", st.UniqueGroups).
		Int64("last_24h", st.Last24h).
		Int64("sent", st.Sent).
		Int64("unsent", st.Unsent).
		Msg("database stats")
}

// snapshot is the raw-data file layout.
type snapshot struct {
	FetchedAt time.Time          `json:"fetched_at"`
	Freshness scraper.Freshness  `json:"freshness"`
	Date      string             `json:"date"`
	Update    string             `json:"last_update"`
	Groups    []model.GroupEntry `json:"groups"`
}

func (s *Service) saveSnapshot(res scraper.Result, now time.Time) (string, error) {
	if err := os.MkdirAll(s.opts.RawDataDir, 0o755); err != nil {
		return "", fmt.Errorf("create raw data dir: %w", err)
	}
	data, err := json.MarshalIndent(snapshot{
		FetchedAt: now,
		Freshness: res.Freshness,
		Date:      res.Schedule.Date,
		Update:    res.Schedule.LastUpdate,
		Groups:    res.Schedule.Groups,
	}, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode snapshot: %w", err)
	}
	path := filepath.Join(s.opts.RawDataDir, now.In(s.opts.Location).Format("20060102_150405")+"_power_outages.json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write snapshot: %w", err)
	}
	s.log.Debug().Str("file", filepath.Base(path)).Msg("raw schedule saved")
	return path, nil
}

func ids(periods []model.OutagePeriod) []string {
	out := make([]string, 0, len(periods))
	for _, p := range periods {
		out = append(out, p.RecordID)
	}
	return out
}
