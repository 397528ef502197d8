package reconcile

import (
	"context"
	"errors"
	"sort"
	"time"

	"power-outage-monitor/internal/model"
	"power-outage-monitor/internal/period"
	"power-outage-monitor/internal/store"
)

// memRepo is an in-memory stand-in for the GORM store with the same query
// semantics.
type memRepo struct {
	rows     []*model.OutagePeriod
	failHash string // FindByHashAndState fails for this hash
}

func (m *memRepo) insert(ps ...model.OutagePeriod) {
	for i := range ps {
		p := ps[i]
		m.rows = append(m.rows, &p)
	}
}

func (m *memRepo) get(id string) *model.OutagePeriod {
	for _, r := range m.rows {
		if r.RecordID == id {
			return r
		}
	}
	return nil
}

func (m *memRepo) FindByHashAndState(_ context.Context, hash string, state model.State, sentOnly bool) (*model.OutagePeriod, error) {
	if hash == m.failHash {
		return nil, errors.New("connection lost")
	}
	for _, r := range m.rows {
		if r.ContentHash == hash && r.State == state && (!sentOnly || r.Sent) {
			p := *r
			return &p, nil
		}
	}
	return nil, nil
}

func (m *memRepo) FindOverlapCandidates(_ context.Context, groupName, date string, state model.State, excludeID string) ([]model.OutagePeriod, error) {
	var out []model.OutagePeriod
	for _, r := range m.rows {
		if r.GroupName == groupName && r.Date == date && r.State == state && r.RecordID != excludeID {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (m *memRepo) UpdateState(_ context.Context, recordID string, state model.State, at time.Time) error {
	r := m.get(recordID)
	if r == nil {
		return store.ErrRepository
	}
	r.State = state
	r.StateChangedAt = at
	return nil
}

func (m *memRepo) Supersede(ctx context.Context, winnerID string, losers []model.OutagePeriod, at time.Time) error {
	if err := m.UpdateState(ctx, winnerID, model.StateGenerated, at); err != nil {
		return err
	}
	for _, l := range losers {
		if err := m.UpdateState(ctx, l.RecordID, model.StateCancelled, at); err != nil {
			return err
		}
	}
	return nil
}

func (m *memRepo) FindForEmission(_ context.Context, q store.EmissionQuery) ([]model.OutagePeriod, error) {
	allowed := NewGroupFilter(q.GroupCodes)
	var out []model.OutagePeriod
	for _, r := range m.rows {
		if r.State != q.State || r.Sent != q.Sent {
			continue
		}
		if q.MinDate != "" && r.Date < q.MinDate {
			continue
		}
		if q.GroupCodes != nil && !allowed.Allows(r.GroupName) {
			continue
		}
		out = append(out, *r)
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if q.State == model.StateCancelled {
			return a.StateChangedAt.After(b.StateChangedAt)
		}
		if a.GroupName != b.GroupName {
			return a.GroupName < b.GroupName
		}
		if a.Date != b.Date {
			return a.Date < b.Date
		}
		if a.WindowFrom != b.WindowFrom {
			return a.WindowFrom < b.WindowFrom
		}
		if a.WindowTo != b.WindowTo {
			return a.WindowTo < b.WindowTo
		}
		if !a.LastUpdate.Equal(b.LastUpdate) {
			return a.LastUpdate.After(b.LastUpdate)
		}
		return a.InsertedAt.After(b.InsertedAt)
	})
	return out, nil
}

func (m *memRepo) markSent(ids ...string) {
	for _, id := range ids {
		m.get(id).Sent = true
	}
}

var t0 = time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)

// observed builds a pending period for group code on 2024-01-15.
func observed(id, code string, status model.Status, from, to string, lastUpdate time.Time) model.OutagePeriod {
	group := "Група " + code
	date := "2024-01-15"
	return model.OutagePeriod{
		RecordID:       id,
		Date:           date,
		GroupName:      group,
		GroupCode:      code,
		Status:         status,
		WindowFrom:     from,
		WindowTo:       to,
		LastUpdate:     lastUpdate,
		InsertedAt:     lastUpdate,
		EventID:        period.EventID(date, group, string(status), from, to),
		EventUID:       id + "@test",
		ContentHash:    period.ContentHash(date, group, string(status), from, to),
		State:          model.StatePending,
		StateChangedAt: lastUpdate,
	}
}
