// Package dataset defines how the enrichment pipeline reads map primitives and
// writes tag changes back, and provides an in-memory implementation plus
// GeoJSON and shapefile loaders.
package dataset

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/address-helper/internal/model"
)

var (
	// ErrNotFound is returned for unknown primitive or changeset ids.
	ErrNotFound = eris.New("dataset: not found")
	// ErrAlreadyUndone is returned when undoing a changeset twice.
	ErrAlreadyUndone = eris.New("dataset: changeset already undone")
)

// Dataset is the read side: every primitive of the active data layer.
type Dataset interface {
	Primitives(ctx context.Context) ([]*model.Primitive, error)
}

// TagWriter applies a changeset as one unit. Implementations fill in
// TagChange.Previous from the current state, assign an ID when empty and
// stamp CreatedAt.
type TagWriter interface {
	ApplyChangeset(ctx context.Context, cs *model.Changeset) error
}

// ChangesetFilter narrows ListChangesets.
type ChangesetFilter struct {
	IncludeUndone bool `json:"include_undone,omitempty"`
	Limit         int  `json:"limit,omitempty"`
	Offset        int  `json:"offset,omitempty"`
}

// Store is a persistent dataset with changeset history.
type Store interface {
	Dataset
	TagWriter

	PutPrimitives(ctx context.Context, prims []*model.Primitive) (int, error)
	GetPrimitives(ctx context.Context, ids []string) ([]*model.Primitive, error)

	GetChangeset(ctx context.Context, id string) (*model.Changeset, error)
	ListChangesets(ctx context.Context, filter ChangesetFilter) ([]model.Changeset, error)
	UndoChangeset(ctx context.Context, id string) error

	Migrate(ctx context.Context) error
	Close() error
}
