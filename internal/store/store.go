package store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"gorm.io/gorm"

	"power-outage-monitor/internal/model"
)

// ErrRepository wraps every persistence failure surfaced by the store.
var ErrRepository = errors.New("repository failure")

// Store defines the interface for all period persistence operations.
type Store interface {
	Insert(ctx context.Context, p *model.OutagePeriod) error
	UpdateState(ctx context.Context, recordID string, state model.State, at time.Time) error
	Supersede(ctx context.Context, winnerID string, losers []model.OutagePeriod, at time.Time) error
	FindByHashAndState(ctx context.Context, hash string, state model.State, sentOnly bool) (*model.OutagePeriod, error)
	FindOverlapCandidates(ctx context.Context, groupName, date string, state model.State, excludeID string) ([]model.OutagePeriod, error)
	FindForEmission(ctx context.Context, q EmissionQuery) ([]model.OutagePeriod, error)
	MarkSent(ctx context.Context, recordIDs []string) error
	PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
	PeriodsByDate(ctx context.Context, date string) ([]model.OutagePeriod, error)
	Stats(ctx context.Context, now time.Time) (Stats, error)
	ExportCSV(ctx context.Context, w io.Writer) (int, error)
	DB() *gorm.DB
}

// EmissionQuery selects periods for artifact generation.
type EmissionQuery struct {
	State      model.State
	Sent       bool
	MinDate    string   // inclusive, empty for no bound
	GroupCodes []string // nil selects every group
}

// gormStore implements the Store interface using GORM.
type gormStore struct {
	db *gorm.DB
}

// NewGormStore creates a new GORM-backed store.
func NewGormStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

func (s *gormStore) DB() *gorm.DB {
	return s.db
}

func repoErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrRepository, op, err)
}

// Insert stores a new period. RecordID and EventUID must already be set.
func (s *gormStore) Insert(ctx context.Context, p *model.OutagePeriod) error {
	if err := s.db.WithContext(ctx).Create(p).Error; err != nil {
		return repoErr(fmt.Sprintf("insert period %s", p.RecordID), err)
	}
	return nil
}

// UpdateState moves a single period to state.
func (s *gormStore) UpdateState(ctx context.Context, recordID string, state model.State, at time.Time) error {
	if err := setState(s.db.WithContext(ctx), recordID, state, at); err != nil {
		return repoErr(fmt.Sprintf("update state of %s", recordID), err)
	}
	return nil
}

// Supersede marks the winner GENERATED and cancels every loser in a single
// transaction, so a reader never observes two overlapping generated periods.
// Only losers that were sent end up in a cancel artifact.
func (s *gormStore) Supersede(ctx context.Context, winnerID string, losers []model.OutagePeriod, at time.Time) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := setState(tx, winnerID, model.StateGenerated, at); err != nil {
			return fmt.Errorf("promote %s: %w", winnerID, err)
		}
		for _, loser := range losers {
			if err := setState(tx, loser.RecordID, model.StateCancelled, at); err != nil {
				return fmt.Errorf("retire %s: %w", loser.RecordID, err)
			}
		}
		return nil
	})
	if err != nil {
		return repoErr("supersede", err)
	}
	return nil
}

func setState(tx *gorm.DB, recordID string, state model.State, at time.Time) error {
	res := tx.Model(&model.OutagePeriod{}).
		Where("record_id = ?", recordID).
		Updates(map[string]any{"state": state, "state_changed_at": at})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// FindByHashAndState returns the most recently inserted period with the
// given content hash and state, or nil when there is none.
func (s *gormStore) FindByHashAndState(ctx context.Context, hash string, state model.State, sentOnly bool) (*model.OutagePeriod, error) {
	q := s.db.WithContext(ctx).Where("content_hash = ? AND state = ?", hash, state)
	if sentOnly {
		q = q.Where("sent = ?", true)
	}
	var found []model.OutagePeriod
	if err := q.Order("inserted_at DESC").Limit(1).Find(&found).Error; err != nil {
		return nil, repoErr("find by hash", err)
	}
	if len(found) == 0 {
		return nil, nil
	}
	return &found[0], nil
}

// FindOverlapCandidates lists periods of the same group and date in state,
// excluding the period under evaluation. Window overlap is decided by the
// caller.
func (s *gormStore) FindOverlapCandidates(ctx context.Context, groupName, date string, state model.State, excludeID string) ([]model.OutagePeriod, error) {
	var periods []model.OutagePeriod
	err := s.db.WithContext(ctx).
		Where("group_name = ? AND date = ? AND state = ? AND record_id <> ?", groupName, date, state, excludeID).
		Order("inserted_at").
		Find(&periods).Error
	if err != nil {
		return nil, repoErr("find overlap candidates", err)
	}
	return periods, nil
}

// FindForEmission lists periods matching q. Generated periods come ordered
// for deduplication (newest observation first within identical windows),
// cancelled ones by most recent state change.
func (s *gormStore) FindForEmission(ctx context.Context, q EmissionQuery) ([]model.OutagePeriod, error) {
	tx := s.db.WithContext(ctx).Where("state = ? AND sent = ?", q.State, q.Sent)
	if q.MinDate != "" {
		tx = tx.Where("date >= ?", q.MinDate)
	}
	if q.GroupCodes != nil {
		tx = tx.Where("group_code IN ?", q.GroupCodes)
	}
	if q.State == model.StateCancelled {
		tx = tx.Order("state_changed_at DESC")
	} else {
		tx = tx.Order("group_name, date, window_from, window_to, last_update DESC, inserted_at DESC")
	}

	var periods []model.OutagePeriod
	if err := tx.Find(&periods).Error; err != nil {
		return nil, repoErr("find for emission", err)
	}
	return periods, nil
}

// MarkSent flags the given periods as emitted.
func (s *gormStore) MarkSent(ctx context.Context, recordIDs []string) error {
	if len(recordIDs) == 0 {
		return nil
	}
	err := s.db.WithContext(ctx).Model(&model.OutagePeriod{}).
		Where("record_id IN ?", recordIDs).
		Update("sent", true).Error
	if err != nil {
		return repoErr("mark sent", err)
	}
	return nil
}

// PurgeOlderThan deletes every period inserted before cutoff, whatever its
// state, and returns the number of rows removed.
func (s *gormStore) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res := s.db.WithContext(ctx).Where("inserted_at < ?", cutoff).Delete(&model.OutagePeriod{})
	if res.Error != nil {
		return 0, repoErr("purge", res.Error)
	}
	return res.RowsAffected, nil
}

// PeriodsByDate lists every recorded period of a date.
func (s *gormStore) PeriodsByDate(ctx context.Context, date string) ([]model.OutagePeriod, error) {
	var periods []model.OutagePeriod
	err := s.db.WithContext(ctx).
		Where("date = ?", date).
		Order("group_name, window_from, inserted_at").
		Find(&periods).Error
	if err != nil {
		return nil, repoErr("periods by date", err)
	}
	return periods, nil
}
