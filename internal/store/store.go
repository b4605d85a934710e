// Package store persists primitives and changesets in SQLite or Postgres.
// Both backends implement dataset.Store.
package store

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/wkb"

	"github.com/sells-group/address-helper/internal/dataset"
	"github.com/sells-group/address-helper/internal/model"
)

// Supported drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Open connects to the configured backend.
func Open(ctx context.Context, driver, dsn string, poolCfg *PoolConfig) (dataset.Store, error) {
	switch strings.ToLower(driver) {
	case DriverSQLite, "":
		return NewSQLite(dsn)
	case DriverPostgres:
		return NewPostgres(ctx, dsn, poolCfg)
	default:
		return nil, eris.Errorf("store: unknown driver %q", driver)
	}
}

func encodeTags(tags model.Tags) (string, error) {
	if tags == nil {
		tags = model.Tags{}
	}
	b, err := json.Marshal(tags)
	if err != nil {
		return "", eris.Wrap(err, "store: encode tags")
	}
	return string(b), nil
}

func decodeTags(data []byte) (model.Tags, error) {
	tags := model.Tags{}
	if len(data) == 0 {
		return tags, nil
	}
	if err := json.Unmarshal(data, &tags); err != nil {
		return nil, eris.Wrap(err, "store: decode tags")
	}
	return tags, nil
}

func encodeGeometry(g geom.T) ([]byte, error) {
	if g == nil {
		return nil, nil
	}
	data, err := wkb.Marshal(g, wkb.NDR)
	if err != nil {
		return nil, eris.Wrap(err, "store: encode geometry")
	}
	return data, nil
}

func decodeGeometry(data []byte) (geom.T, error) {
	if len(data) == 0 {
		return nil, nil
	}
	g, err := wkb.Unmarshal(data)
	if err != nil {
		return nil, eris.Wrap(err, "store: decode geometry")
	}
	return g, nil
}

// changeRows flattens a changeset for insertion, in order.
func changeRows(cs *model.Changeset) [][]any {
	rows := make([][]any, 0, len(cs.Changes))
	for i, ch := range cs.Changes {
		var prev any
		if ch.Previous != nil {
			prev = *ch.Previous
		}
		rows = append(rows, []any{cs.ID, i, ch.PrimitiveID, ch.Key, ch.Value, prev})
	}
	return rows
}

var changeColumns = []string{"changeset_id", "seq", "primitive_id", "key", "value", "previous"}

func limitOffset(filter dataset.ChangesetFilter) (int, int) {
	limit := filter.Limit
	if limit <= 0 {
		limit = -1
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
