// Package reconcile decides which observed periods become calendar events
// and which recorded events they replace.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"power-outage-monitor/internal/model"
	"power-outage-monitor/internal/store"
)

// Repository is the part of the store the reconciler reads and mutates.
type Repository interface {
	FindByHashAndState(ctx context.Context, hash string, state model.State, sentOnly bool) (*model.OutagePeriod, error)
	FindOverlapCandidates(ctx context.Context, groupName, date string, state model.State, excludeID string) ([]model.OutagePeriod, error)
	UpdateState(ctx context.Context, recordID string, state model.State, at time.Time) error
	Supersede(ctx context.Context, winnerID string, losers []model.OutagePeriod, at time.Time) error
}

// Reason explains a reconciliation decision.
type Reason string

const (
	ReasonDuplicate  Reason = "duplicate of emitted event"
	ReasonNew        Reason = "no overlapping event"
	ReasonSupersedes Reason = "newer than every overlapping event"
	ReasonOutdated   Reason = "overlapping event is as recent or newer"
)

// Decision records the outcome for one period.
type Decision struct {
	RecordID   string
	EventID    string
	State      model.State
	Reason     Reason
	Superseded []model.OutagePeriod
}

// Result collects the decisions applied so far in a batch.
type Result struct {
	Decisions []Decision
	Generated int
	Discarded int
	Cancelled int // superseded events
	Unsent    int // superseded events that were never emitted
}

func (r *Result) add(d Decision) {
	r.Decisions = append(r.Decisions, d)
	switch d.State {
	case model.StateGenerated:
		r.Generated++
	case model.StateDiscarded:
		r.Discarded++
	}
	r.Cancelled += len(d.Superseded)
	for _, p := range d.Superseded {
		if !p.Sent {
			r.Unsent++
		}
	}
}

// Reconciler assigns a terminal state to each pending period.
type Reconciler struct {
	repo Repository
	log  zerolog.Logger
	now  func() time.Time
}

// NewReconciler creates a reconciler over repo.
func NewReconciler(repo Repository, log zerolog.Logger) *Reconciler {
	return &Reconciler{repo: repo, log: log, now: time.Now}
}

// Reconcile decides every period of batch one at a time, oldest insertion
// first. Each decision reads state written by the previous ones, so the loop
// must stay sequential.
//
// A repository failure stops the batch. Decisions applied before the failure
// stay applied and are returned with the error. Cancellation is honoured
// between periods only.
func (r *Reconciler) Reconcile(ctx context.Context, batch []model.OutagePeriod) (Result, error) {
	ordered := make([]model.OutagePeriod, len(batch))
	copy(ordered, batch)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].InsertedAt.Before(ordered[j].InsertedAt)
	})

	var res Result
	for _, p := range ordered {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		d, err := r.decide(ctx, p)
		if err != nil {
			if !errors.Is(err, store.ErrRepository) {
				err = fmt.Errorf("%w: %w", store.ErrRepository, err)
			}
			return res, fmt.Errorf("reconcile %s: %w", p.EventID, err)
		}
		res.add(d)

		ev := r.log.Debug().
			Str("event_id", d.EventID).
			Str("state", string(d.State)).
			Str("reason", string(d.Reason))
		if len(d.Superseded) > 0 {
			ev = ev.Int("superseded", len(d.Superseded))
		}
		ev.Msg("period reconciled")
	}
	return res, nil
}

func (r *Reconciler) decide(ctx context.Context, p model.OutagePeriod) (Decision, error) {
	d := Decision{RecordID: p.RecordID, EventID: p.EventID}

	dup, err := r.repo.FindByHashAndState(ctx, p.ContentHash, model.StateGenerated, true)
	if err != nil {
		return d, err
	}
	if dup != nil {
		return r.settle(ctx, d, model.StateDiscarded, ReasonDuplicate)
	}

	candidates, err := r.repo.FindOverlapCandidates(ctx, p.GroupName, p.Date, model.StateGenerated, p.RecordID)
	if err != nil {
		return d, err
	}
	var overlapping []model.OutagePeriod
	for _, c := range candidates {
		if p.Overlaps(c) {
			overlapping = append(overlapping, c)
		}
	}

	if len(overlapping) == 0 {
		return r.settle(ctx, d, model.StateGenerated, ReasonNew)
	}

	for _, c := range overlapping {
		// ties go to the incumbent
		if !p.LastUpdate.After(c.LastUpdate) {
			return r.settle(ctx, d, model.StateDiscarded, ReasonOutdated)
		}
	}

	if err := r.repo.Supersede(ctx, p.RecordID, overlapping, r.now()); err != nil {
		return d, err
	}
	d.State = model.StateGenerated
	d.Reason = ReasonSupersedes
	d.Superseded = overlapping
	return d, nil
}

func (r *Reconciler) settle(ctx context.Context, d Decision, state model.State, reason Reason) (Decision, error) {
	if err := r.repo.UpdateState(ctx, d.RecordID, state, r.now()); err != nil {
		return d, err
	}
	d.State = state
	d.Reason = reason
	return d, nil
}
