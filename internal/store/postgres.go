package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/address-helper/internal/dataset"
	"github.com/sells-group/address-helper/internal/db"
	"github.com/sells-group/address-helper/internal/model"
)

// PostgresStore implements dataset.Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS primitives (
	seq        BIGSERIAL,
	id         TEXT PRIMARY KEY,
	tags       JSONB NOT NULL DEFAULT '{}'::jsonb,
	geometry   BYTEA,
	deleted    BOOLEAN NOT NULL DEFAULT false,
	incomplete BOOLEAN NOT NULL DEFAULT false,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS changesets (
	id         TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	comment    TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	undone_at  TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS changeset_changes (
	changeset_id TEXT NOT NULL REFERENCES changesets(id),
	seq          INTEGER NOT NULL,
	primitive_id TEXT NOT NULL,
	key          TEXT NOT NULL,
	value        TEXT NOT NULL,
	previous     TEXT,
	PRIMARY KEY (changeset_id, seq)
);

CREATE INDEX IF NOT EXISTS idx_primitives_seq ON primitives(seq);
CREATE INDEX IF NOT EXISTS idx_changesets_created_at ON changesets(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_changeset_changes_primitive ON changeset_changes(primitive_id);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.pool.Ping(ctx), "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

var primitiveColumns = []string{"id", "tags", "geometry", "deleted", "incomplete"}

// PutPrimitives upserts through a COPY-loaded temp table.
func (s *PostgresStore) PutPrimitives(ctx context.Context, prims []*model.Primitive) (int, error) {
	rows := make([][]any, 0, len(prims))
	for _, p := range prims {
		if p == nil || p.ID == "" {
			continue
		}
		tags, err := encodeTags(p.Tags)
		if err != nil {
			return 0, err
		}
		geomBytes, err := encodeGeometry(p.Geometry)
		if err != nil {
			return 0, eris.Wrapf(err, "postgres: primitive %s", p.ID)
		}
		rows = append(rows, []any{p.ID, tags, geomBytes, p.Deleted, p.Incomplete})
	}

	n, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "primitives",
		Columns:      primitiveColumns,
		ConflictKeys: []string{"id"},
	}, rows)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: put primitives")
	}
	return int(n), nil
}

func (s *PostgresStore) Primitives(ctx context.Context) ([]*model.Primitive, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, tags, geometry, deleted, incomplete FROM primitives ORDER BY seq`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list primitives")
	}
	defer rows.Close()
	return scanPgPrimitives(rows)
}

func (s *PostgresStore) GetPrimitives(ctx context.Context, ids []string) ([]*model.Primitive, error) {
	if len(ids) == 0 {
		return []*model.Primitive{}, nil
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, tags, geometry, deleted, incomplete FROM primitives WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get primitives")
	}
	defer rows.Close()

	prims, err := scanPgPrimitives(rows)
	if err != nil {
		return nil, err
	}
	return orderByIDs(prims, ids), nil
}

func (s *PostgresStore) ApplyChangeset(ctx context.Context, cs *model.Changeset) error {
	if err := dataset.Prepare(cs); err != nil {
		return err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin apply")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	ids := cs.PrimitiveIDs()
	tags, err := lockTags(ctx, tx, ids)
	if err != nil {
		return err
	}
	for _, id := range ids {
		if _, ok := tags[id]; !ok {
			return eris.Wrapf(dataset.ErrNotFound, "primitive %s", id)
		}
	}
	for i := range cs.Changes {
		dataset.Apply(tags[cs.Changes[i].PrimitiveID], &cs.Changes[i])
	}
	if err := saveTagsPg(ctx, tx, ids, tags); err != nil {
		return err
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO changesets (id, comment, created_at) VALUES ($1, $2, $3)`,
		cs.ID, cs.Comment, cs.CreatedAt,
	); err != nil {
		return eris.Wrap(err, "postgres: insert changeset")
	}
	if _, err := db.CopyFrom(ctx, tx, "changeset_changes", changeColumns, changeRows(cs)); err != nil {
		return eris.Wrap(err, "postgres: insert changeset changes")
	}

	return eris.Wrap(tx.Commit(ctx), "postgres: commit apply")
}

func (s *PostgresStore) UndoChangeset(ctx context.Context, id string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin undo")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	var undone *time.Time
	err = tx.QueryRow(ctx, `SELECT undone_at FROM changesets WHERE id = $1 FOR UPDATE`, id).Scan(&undone)
	if errors.Is(err, pgx.ErrNoRows) {
		return eris.Wrapf(dataset.ErrNotFound, "changeset %s", id)
	}
	if err != nil {
		return eris.Wrapf(err, "postgres: get changeset %s", id)
	}
	if undone != nil {
		return eris.Wrapf(dataset.ErrAlreadyUndone, "changeset %s", id)
	}

	changes, err := pgChanges(ctx, tx, []string{id})
	if err != nil {
		return err
	}
	cs := &model.Changeset{ID: id, Changes: changes[id]}
	ids := cs.PrimitiveIDs()

	tags, err := lockTags(ctx, tx, ids)
	if err != nil {
		return err
	}
	for i := len(cs.Changes) - 1; i >= 0; i-- {
		if t, ok := tags[cs.Changes[i].PrimitiveID]; ok {
			dataset.Revert(t, cs.Changes[i])
		}
	}
	if err := saveTagsPg(ctx, tx, ids, tags); err != nil {
		return err
	}

	if _, err := tx.Exec(ctx,
		`UPDATE changesets SET undone_at = $1 WHERE id = $2`, time.Now().UTC(), id,
	); err != nil {
		return eris.Wrapf(err, "postgres: mark changeset %s undone", id)
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: commit undo")
}

func (s *PostgresStore) GetChangeset(ctx context.Context, id string) (*model.Changeset, error) {
	var cs model.Changeset
	err := s.pool.QueryRow(ctx,
		`SELECT id, comment, created_at, undone_at FROM changesets WHERE id = $1`, id,
	).Scan(&cs.ID, &cs.Comment, &cs.CreatedAt, &cs.UndoneAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(dataset.ErrNotFound, "changeset %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get changeset %s", id)
	}

	changes, err := pgChanges(ctx, s.pool, []string{id})
	if err != nil {
		return nil, err
	}
	cs.Changes = changes[id]
	return &cs, nil
}

func (s *PostgresStore) ListChangesets(ctx context.Context, filter dataset.ChangesetFilter) ([]model.Changeset, error) {
	query := `SELECT id, comment, created_at, undone_at FROM changesets`
	if !filter.IncludeUndone {
		query += ` WHERE undone_at IS NULL`
	}
	query += ` ORDER BY created_at DESC LIMIT $1 OFFSET $2`

	l, offset := limitOffset(filter)
	var limit any // NULL means no limit
	if l > 0 {
		limit = l
	}

	rows, err := s.pool.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list changesets")
	}
	defer rows.Close()

	out := []model.Changeset{}
	var ids []string
	for rows.Next() {
		var cs model.Changeset
		if err := rows.Scan(&cs.ID, &cs.Comment, &cs.CreatedAt, &cs.UndoneAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan changeset")
		}
		out = append(out, cs)
		ids = append(ids, cs.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: iterate changesets")
	}
	rows.Close()

	changes, err := pgChanges(ctx, s.pool, ids)
	if err != nil {
		return nil, err
	}
	for i := range out {
		out[i].Changes = changes[out[i].ID]
	}
	return out, nil
}

type pgQuerier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func pgChanges(ctx context.Context, q pgQuerier, ids []string) (map[string][]model.TagChange, error) {
	out := make(map[string][]model.TagChange, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := q.Query(ctx,
		`SELECT changeset_id, primitive_id, key, value, previous FROM changeset_changes WHERE changeset_id = ANY($1) ORDER BY changeset_id, seq`,
		ids,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list changeset changes")
	}
	defer rows.Close()

	for rows.Next() {
		var csID string
		var ch model.TagChange
		if err := rows.Scan(&csID, &ch.PrimitiveID, &ch.Key, &ch.Value, &ch.Previous); err != nil {
			return nil, eris.Wrap(err, "postgres: scan changeset change")
		}
		out[csID] = append(out[csID], ch)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate changeset changes")
}

// lockTags loads and row-locks the tags of ids. Unknown ids are absent from
// the result.
func lockTags(ctx context.Context, tx pgx.Tx, ids []string) (map[string]model.Tags, error) {
	out := make(map[string]model.Tags, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := tx.Query(ctx, `SELECT id, tags FROM primitives WHERE id = ANY($1) FOR UPDATE`, ids)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: lock primitives")
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		var raw []byte
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, eris.Wrap(err, "postgres: scan tags")
		}
		tags, err := decodeTags(raw)
		if err != nil {
			return nil, eris.Wrapf(err, "primitive %s", id)
		}
		out[id] = tags
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate tags")
}

func saveTagsPg(ctx context.Context, tx pgx.Tx, ids []string, tags map[string]model.Tags) error {
	for _, id := range ids {
		t, ok := tags[id]
		if !ok {
			continue
		}
		raw, err := encodeTags(t)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx,
			`UPDATE primitives SET tags = $1, updated_at = now() WHERE id = $2`, raw, id,
		); err != nil {
			return eris.Wrapf(err, "postgres: update tags %s", id)
		}
	}
	return nil
}

func scanPgPrimitives(rows pgx.Rows) ([]*model.Primitive, error) {
	prims := []*model.Primitive{}
	for rows.Next() {
		var p model.Primitive
		var rawTags, rawGeom []byte
		if err := rows.Scan(&p.ID, &rawTags, &rawGeom, &p.Deleted, &p.Incomplete); err != nil {
			return nil, eris.Wrap(err, "postgres: scan primitive")
		}
		tags, err := decodeTags(rawTags)
		if err != nil {
			return nil, eris.Wrapf(err, "primitive %s", p.ID)
		}
		p.Tags = tags
		if p.Geometry, err = decodeGeometry(rawGeom); err != nil {
			return nil, eris.Wrapf(err, "primitive %s", p.ID)
		}
		prims = append(prims, &p)
	}
	return prims, eris.Wrap(rows.Err(), "postgres: iterate primitives")
}
