package reconcile

import (
	"context"
	"fmt"

	"power-outage-monitor/internal/model"
	"power-outage-monitor/internal/store"
)

// EmissionSource lists periods for artifact generation.
type EmissionSource interface {
	FindForEmission(ctx context.Context, q store.EmissionQuery) ([]model.OutagePeriod, error)
}

// EventSet is what the calendar writer must emit in one pass.
type EventSet struct {
	Create []model.OutagePeriod
	Cancel []model.OutagePeriod
}

// Empty reports whether there is nothing to emit.
func (s EventSet) Empty() bool {
	return len(s.Create) == 0 && len(s.Cancel) == 0
}

// Generator derives the event set from persisted state. It never writes, so
// running it again before emission yields the same set.
type Generator struct {
	src EmissionSource
}

// NewGenerator creates a generator over src.
func NewGenerator(src EmissionSource) *Generator {
	return &Generator{src: src}
}

// Generate returns unsent generated periods dated today or later, one per
// content hash, and every emitted period that has since been cancelled.
// groupCodes restricts both sets; nil means every group.
func (g *Generator) Generate(ctx context.Context, today string, groupCodes []string) (EventSet, error) {
	pending, err := g.src.FindForEmission(ctx, store.EmissionQuery{
		State:      model.StateGenerated,
		Sent:       false,
		MinDate:    today,
		GroupCodes: groupCodes,
	})
	if err != nil {
		return EventSet{}, fmt.Errorf("load create set: %w", err)
	}

	var set EventSet
	seen := make(map[string]struct{}, len(pending))
	for _, p := range pending {
		if _, dup := seen[p.ContentHash]; dup {
			continue
		}
		seen[p.ContentHash] = struct{}{}
		set.Create = append(set.Create, p)
	}

	set.Cancel, err = g.src.FindForEmission(ctx, store.EmissionQuery{
		State:      model.StateCancelled,
		Sent:       true,
		GroupCodes: groupCodes,
	})
	if err != nil {
		return EventSet{}, fmt.Errorf("load cancel set: %w", err)
	}
	return set, nil
}
