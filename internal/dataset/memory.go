package dataset

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/address-helper/internal/model"
)

// Memory is an in-memory Store. Primitives keep insertion order.
type Memory struct {
	mu         sync.RWMutex
	order      []string
	prims      map[string]*model.Primitive
	changesets []*model.Changeset
}

// NewMemory returns a Memory seeded with prims.
func NewMemory(prims ...*model.Primitive) *Memory {
	m := &Memory{prims: make(map[string]*model.Primitive, len(prims))}
	m.put(prims)
	return m
}

func (m *Memory) put(prims []*model.Primitive) int {
	n := 0
	for _, p := range prims {
		if p == nil || p.ID == "" {
			continue
		}
		if _, ok := m.prims[p.ID]; !ok {
			m.order = append(m.order, p.ID)
		}
		cp := *p
		cp.Tags = p.Tags.Clone()
		m.prims[p.ID] = &cp
		n++
	}
	return n
}

// Primitives returns copies of all primitives in insertion order.
func (m *Memory) Primitives(_ context.Context) ([]*model.Primitive, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*model.Primitive, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, clone(m.prims[id]))
	}
	return out, nil
}

// PutPrimitives inserts or replaces primitives by id.
func (m *Memory) PutPrimitives(_ context.Context, prims []*model.Primitive) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.put(prims), nil
}

// GetPrimitives returns copies of the requested primitives, skipping unknown ids.
func (m *Memory) GetPrimitives(_ context.Context, ids []string) ([]*model.Primitive, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*model.Primitive, 0, len(ids))
	for _, id := range ids {
		if p, ok := m.prims[id]; ok {
			out = append(out, clone(p))
		}
	}
	return out, nil
}

// ApplyChangeset writes every change or none.
func (m *Memory) ApplyChangeset(_ context.Context, cs *model.Changeset) error {
	if err := Prepare(cs); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, ch := range cs.Changes {
		if _, ok := m.prims[ch.PrimitiveID]; !ok {
			return eris.Wrapf(ErrNotFound, "primitive %s", ch.PrimitiveID)
		}
	}
	for i := range cs.Changes {
		p := m.prims[cs.Changes[i].PrimitiveID]
		if p.Tags == nil {
			p.Tags = model.Tags{}
		}
		Apply(p.Tags, &cs.Changes[i])
	}

	stored := *cs
	stored.Changes = append([]model.TagChange(nil), cs.Changes...)
	m.changesets = append(m.changesets, &stored)
	return nil
}

// GetChangeset returns a copy of the changeset.
func (m *Memory) GetChangeset(_ context.Context, id string) (*model.Changeset, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, cs := range m.changesets {
		if cs.ID == id {
			cp := *cs
			return &cp, nil
		}
	}
	return nil, eris.Wrapf(ErrNotFound, "changeset %s", id)
}

// ListChangesets returns changesets newest first.
func (m *Memory) ListChangesets(_ context.Context, filter ChangesetFilter) ([]model.Changeset, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]model.Changeset, 0, len(m.changesets))
	for _, cs := range m.changesets {
		if cs.UndoneAt != nil && !filter.IncludeUndone {
			continue
		}
		out = append(out, *cs)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return paginate(out, filter), nil
}

// UndoChangeset restores every value the changeset replaced, newest change first.
func (m *Memory) UndoChangeset(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var cs *model.Changeset
	for _, c := range m.changesets {
		if c.ID == id {
			cs = c
			break
		}
	}
	if cs == nil {
		return eris.Wrapf(ErrNotFound, "changeset %s", id)
	}
	if cs.UndoneAt != nil {
		return eris.Wrapf(ErrAlreadyUndone, "changeset %s", id)
	}

	for i := len(cs.Changes) - 1; i >= 0; i-- {
		ch := cs.Changes[i]
		if p, ok := m.prims[ch.PrimitiveID]; ok && p.Tags != nil {
			Revert(p.Tags, ch)
		}
	}
	now := time.Now().UTC()
	cs.UndoneAt = &now
	return nil
}

// Migrate is a no-op.
func (m *Memory) Migrate(context.Context) error { return nil }

// Close is a no-op.
func (m *Memory) Close() error { return nil }

func clone(p *model.Primitive) *model.Primitive {
	cp := *p
	cp.Tags = p.Tags.Clone()
	return &cp
}

func paginate(in []model.Changeset, filter ChangesetFilter) []model.Changeset {
	if filter.Offset > 0 {
		if filter.Offset >= len(in) {
			return []model.Changeset{}
		}
		in = in[filter.Offset:]
	}
	if filter.Limit > 0 && filter.Limit < len(in) {
		in = in[:filter.Limit]
	}
	return in
}
