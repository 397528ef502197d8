package store

import (
	"context"
	"encoding/csv"
	"io"
	"strconv"
	"time"

	"gorm.io/gorm"

	"power-outage-monitor/internal/model"
)

// Stats summarises the period table.
type Stats struct {
	Total        int64            `json:"total"`
	UniqueDates  int64            `json:"unique_dates"`
	UniqueGroups int64            `json:"unique_groups"`
	ByState      map[string]int64 `json:"by_state"`
	ByStatus     map[string]int64 `json:"by_status"`
	Last24h      int64            `json:"last_24h"`
	Sent         int64            `json:"sent"`
	Unsent       int64            `json:"unsent"` // generated but not yet emitted
}

type countRow struct {
	Label string
	Count int64
}

// Stats computes table statistics relative to now.
func (s *gormStore) Stats(ctx context.Context, now time.Time) (Stats, error) {
	stats := Stats{
		ByState:  make(map[string]int64),
		ByStatus: make(map[string]int64),
	}
	periods := func() *gorm.DB { return s.db.WithContext(ctx).Model(&model.OutagePeriod{}) }

	counts := []struct {
		name string
		dst  *int64
		q    *gorm.DB
	}{
		{"total", &stats.Total, periods()},
		{"unique dates", &stats.UniqueDates, periods().Distinct("date")},
		{"unique groups", &stats.UniqueGroups, periods().Distinct("group_name")},
		{"last 24h", &stats.Last24h, periods().Where("inserted_at >= ?", now.Add(-24*time.Hour))},
		{"sent", &stats.Sent, periods().Where("sent = ?", true)},
		{"unsent", &stats.Unsent, periods().Where("state = ?", model.StateGenerated).Where("sent = ?", false)},
	}
	for _, c := range counts {
		if err := c.q.Count(c.dst).Error; err != nil {
			return Stats{}, repoErr("stats "+c.name, err)
		}
	}

	groupings := []struct {
		column string
		dst    map[string]int64
	}{
		{"state", stats.ByState},
		{"status", stats.ByStatus},
	}
	for _, g := range groupings {
		var rows []countRow
		err := periods().
			Select(g.column + " AS label, COUNT(*) AS count").
			Group(g.column).
			Scan(&rows).Error
		if err != nil {
			return Stats{}, repoErr("stats by "+g.column, err)
		}
		for _, r := range rows {
			g.dst[r.Label] = r.Count
		}
	}
	return stats, nil
}

var csvHeader = []string{
	"record_id", "date", "group_name", "status", "from", "to", "last_update",
	"inserted_at", "event_id", "event_uid", "content_hash", "state", "sent",
}

// ExportCSV writes every period, newest insertion first, and returns the
// number of data rows written.
func (s *gormStore) ExportCSV(ctx context.Context, w io.Writer) (int, error) {
	var periods []model.OutagePeriod
	if err := s.db.WithContext(ctx).Order("inserted_at DESC").Find(&periods).Error; err != nil {
		return 0, repoErr("export", err)
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return 0, err
	}
	for _, p := range periods {
		record := []string{
			p.RecordID, p.Date, p.GroupName, string(p.Status), p.WindowFrom, p.WindowTo,
			p.LastUpdate.Format(time.RFC3339), p.InsertedAt.Format(time.RFC3339),
			p.EventID, p.EventUID, p.ContentHash, string(p.State), strconv.FormatBool(p.Sent),
		}
		if err := cw.Write(record); err != nil {
			return 0, err
		}
	}
	cw.Flush()
	return len(periods), cw.Error()
}
