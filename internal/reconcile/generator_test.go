package reconcile

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"power-outage-monitor/internal/model"
)

func ids(ps []model.OutagePeriod) []string {
	out := make([]string, 0, len(ps))
	for _, p := range ps {
		out = append(out, p.RecordID)
	}
	return out
}

func TestGenerate_DedupAndOrdering(t *testing.T) {
	repo := &memRepo{}

	dupOld := observed("dup-old", "1.1", model.StatusOutage, "09:00", "12:00", t0)
	dupNew := observed("dup-new", "1.1", model.StatusOutage, "09:00", "12:00", t0.Add(time.Hour))
	other := observed("other", "2.1", model.StatusOutage, "18:00", "20:00", t0)
	past := observed("past", "1.1", model.StatusOutage, "09:00", "12:00", t0)
	past.Date = "2024-01-14"
	for _, p := range []*model.OutagePeriod{&dupOld, &dupNew, &other, &past} {
		p.State = model.StateGenerated
	}
	repo.insert(dupOld, dupNew, other, past)

	set, err := NewGenerator(repo).Generate(context.Background(), "2024-01-15", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"dup-new", "other"}, ids(set.Create))
	assert.Empty(t, set.Cancel)
	assert.False(t, set.Empty())
}

func TestGenerate_GroupRestriction(t *testing.T) {
	repo := &memRepo{}
	a := observed("a", "1.1", model.StatusOutage, "09:00", "12:00", t0)
	b := observed("b", "2.1", model.StatusOutage, "09:00", "12:00", t0)
	c := observed("c", "2.1", model.StatusOutage, "15:00", "16:00", t0)
	a.State, b.State = model.StateGenerated, model.StateGenerated
	c.State, c.Sent = model.StateCancelled, true
	repo.insert(a, b, c)

	set, err := NewGenerator(repo).Generate(context.Background(), "2024-01-15", []string{"2.1"})
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, ids(set.Create))
	assert.Equal(t, []string{"c"}, ids(set.Cancel))

	set, err = NewGenerator(repo).Generate(context.Background(), "2024-01-15", []string{"9.9"})
	require.NoError(t, err)
	assert.True(t, set.Empty())
}

func TestGenerate_Idempotent(t *testing.T) {
	repo := &memRepo{}
	reconcileNew(t, repo, observed("old", "2.1", model.StatusOutage, "14:00", "18:00", t0))
	repo.markSent("old")
	reconcileNew(t, repo,
		observed("new", "2.1", model.StatusOutage, "13:00", "16:00", t0.Add(time.Hour)),
		observed("extra", "3.1", model.StatusOutage, "01:00", "02:00", t0.Add(time.Hour)),
	)

	gen := NewGenerator(repo)
	first, err := gen.Generate(context.Background(), "2024-01-15", nil)
	require.NoError(t, err)
	second, err := gen.Generate(context.Background(), "2024-01-15", nil)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, []string{"new", "extra"}, ids(first.Create))
	assert.Equal(t, []string{"old"}, ids(first.Cancel))
}

func TestGenerate_CancelOrder(t *testing.T) {
	repo := &memRepo{}
	for i, id := range []string{"first", "second", "third"} {
		p := observed(id, "1.1", model.StatusOutage, "09:00", "12:00", t0)
		p.State, p.Sent = model.StateCancelled, true
		p.StateChangedAt = t0.Add(time.Duration(i) * time.Minute)
		repo.insert(p)
	}

	set, err := NewGenerator(repo).Generate(context.Background(), "2024-01-15", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"third", "second", "first"}, ids(set.Cancel))
}

func TestEndToEnd_CorrectionScenario(t *testing.T) {
	repo := &memRepo{}
	rec := NewReconciler(repo, zerolog.Nop())
	gen := NewGenerator(repo)
	ctx := context.Background()

	first := observed("c1", "2.1", model.StatusOutage, "14:00", "18:00", t0.Add(time.Hour))
	repo.insert(first)
	_, err := rec.Reconcile(ctx, []model.OutagePeriod{first})
	require.NoError(t, err)

	set, err := gen.Generate(ctx, "2024-01-15", nil)
	require.NoError(t, err)
	require.Equal(t, []string{"c1"}, ids(set.Create))
	repo.markSent("c1")

	second := observed("c2", "2.1", model.StatusOutage, "13:00", "16:00", t0.Add(2*time.Hour))
	repo.insert(second)
	res, err := rec.Reconcile(ctx, []model.OutagePeriod{second})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Cancelled)

	set, err = gen.Generate(ctx, "2024-01-15", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"c2"}, ids(set.Create))
	require.Len(t, set.Cancel, 1)
	assert.Equal(t, "c1@test", set.Cancel[0].EventUID)
}
