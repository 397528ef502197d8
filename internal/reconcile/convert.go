package reconcile

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"power-outage-monitor/internal/model"
	"power-outage-monitor/internal/period"
)

// PeriodsFromObservation turns every group entry of obs into a PENDING
// period stamped with insertedAt. Identifiers are freshly generated.
func PeriodsFromObservation(obs model.Observation, insertedAt time.Time, uidDomain string) []model.OutagePeriod {
	date := period.FormatDate(obs.Date)
	insertedAt = insertedAt.UTC()

	periods := make([]model.OutagePeriod, 0, len(obs.Groups))
	for _, g := range obs.Groups {
		from := period.NormalizeTime(g.WindowFrom)
		to := period.NormalizeTime(g.WindowTo)
		status := string(g.Status)
		periods = append(periods, model.OutagePeriod{
			RecordID:       uuid.NewString(),
			Date:           date,
			GroupName:      g.Name,
			GroupCode:      period.GroupCode(g.Name),
			Status:         g.Status,
			WindowFrom:     from,
			WindowTo:       to,
			LastUpdate:     obs.LastUpdate.UTC(),
			InsertedAt:     insertedAt,
			EventID:        period.EventID(date, g.Name, status, from, to),
			EventUID:       fmt.Sprintf("%s@%s", uuid.NewString(), uidDomain),
			ContentHash:    period.ContentHash(date, g.Name, status, from, to),
			State:          model.StatePending,
			StateChangedAt: insertedAt,
		})
	}
	return periods
}

// GroupFilter keeps periods whose group code is in an allow-list. The zero
// value allows every group.
type GroupFilter struct {
	codes map[string]struct{}
}

// NewGroupFilter builds a filter from group codes such as "1.1". An empty
// list allows every group.
func NewGroupFilter(codes []string) GroupFilter {
	if len(codes) == 0 {
		return GroupFilter{}
	}
	set := make(map[string]struct{}, len(codes))
	for _, c := range codes {
		set[c] = struct{}{}
	}
	return GroupFilter{codes: set}
}

// Active reports whether the filter restricts anything.
func (f GroupFilter) Active() bool {
	return f.codes != nil
}

// Allows reports whether a group name passes the filter.
func (f GroupFilter) Allows(groupName string) bool {
	if f.codes == nil {
		return true
	}
	_, ok := f.codes[period.GroupCode(groupName)]
	return ok
}

// Apply returns the periods that pass the filter, preserving order.
func (f GroupFilter) Apply(periods []model.OutagePeriod) []model.OutagePeriod {
	if f.codes == nil {
		return periods
	}
	out := make([]model.OutagePeriod, 0, len(periods))
	for _, p := range periods {
		if f.Allows(p.GroupName) {
			out = append(out, p)
		}
	}
	return out
}

// Codes returns the sorted allow-list, or nil when every group passes.
func (f GroupFilter) Codes() []string {
	if f.codes == nil {
		return nil
	}
	codes := make([]string, 0, len(f.codes))
	for c := range f.codes {
		codes = append(codes, c)
	}
	sort.Strings(codes)
	return codes
}
