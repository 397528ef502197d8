package reconcile

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"power-outage-monitor/internal/model"
	"power-outage-monitor/internal/period"
)

func TestPeriodsFromObservation(t *testing.T) {
	kyiv := time.FixedZone("EET", 2*60*60)
	obs := model.Observation{
		Date:       time.Date(2024, 1, 15, 0, 0, 0, 0, kyiv),
		LastUpdate: time.Date(2024, 1, 15, 10, 0, 0, 0, kyiv),
		Groups: []model.GroupEntry{
			{Name: "Група 1.1", Status: model.StatusOutage, WindowFrom: "09:00", WindowTo: "24:00"},
			{Name: "Група 2.1", Status: model.StatusAvailable},
		},
	}
	insertedAt := time.Date(2024, 1, 15, 10, 5, 0, 0, kyiv)

	periods := PeriodsFromObservation(obs, insertedAt, "power-monitor")
	require.Len(t, periods, 2)

	p := periods[0]
	assert.Equal(t, "2024-01-15", p.Date)
	assert.Equal(t, "1.1", p.GroupCode)
	assert.Equal(t, "23:59", p.WindowTo)
	assert.Equal(t, model.StatePending, p.State)
	assert.False(t, p.Sent)
	assert.Equal(t, "15.01.2024_Група 1.1-outage-09:00-23:59", p.EventID)
	assert.Equal(t, period.ContentHash("2024-01-15", "Група 1.1", "outage", "09:00", "23:59"), p.ContentHash)
	assert.True(t, strings.HasSuffix(p.EventUID, "@power-monitor"))
	assert.Len(t, p.RecordID, 36)
	assert.True(t, p.LastUpdate.Equal(obs.LastUpdate))
	assert.Equal(t, time.UTC, p.InsertedAt.Location())

	assert.Empty(t, periods[1].WindowFrom)
	assert.NotEqual(t, periods[0].RecordID, periods[1].RecordID)
	assert.NotEqual(t, periods[0].EventUID, periods[1].EventUID)
}

func TestGroupFilter(t *testing.T) {
	periods := []model.OutagePeriod{
		{GroupName: "Група 1.1"},
		{GroupName: "Група 2.1"},
		{GroupName: "Група 3.1"},
	}

	all := NewGroupFilter(nil)
	assert.False(t, all.Active())
	assert.Nil(t, all.Codes())
	assert.Len(t, all.Apply(periods), 3)

	f := NewGroupFilter([]string{"3.1", "1.1"})
	assert.True(t, f.Active())
	assert.Equal(t, []string{"1.1", "3.1"}, f.Codes())
	assert.True(t, f.Allows("Група 1.1"))
	assert.False(t, f.Allows("Група 2.1"))

	kept := f.Apply(periods)
	require.Len(t, kept, 2)
	assert.Equal(t, "Група 1.1", kept[0].GroupName)
	assert.Equal(t, "Група 3.1", kept[1].GroupName)
}
