package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/address-helper/internal/dataset"
	"github.com/sells-group/address-helper/internal/model"
)

// SQLiteStore implements dataset.Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS primitives (
	id         TEXT PRIMARY KEY,
	tags       TEXT NOT NULL DEFAULT '{}',
	geometry   BLOB,
	deleted    INTEGER NOT NULL DEFAULT 0,
	incomplete INTEGER NOT NULL DEFAULT 0,
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS changesets (
	id         TEXT PRIMARY KEY,
	comment    TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL,
	undone_at  DATETIME
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

CREATE INDEX IF NOT EXISTS idx_changesets_created_at ON changesets(created_at);
CREATE INDEX IF NOT EXISTS idx_changeset_changes_primitive ON changeset_changes(primitive_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) PutPrimitives(ctx context.Context, prims []*model.Primitive) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin put primitives")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO primitives (id, tags, geometry, deleted, incomplete, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			tags = excluded.tags,
			geometry = excluded.geometry,
			deleted = excluded.deleted,
			incomplete = excluded.incomplete,
			updated_at = excluded.updated_at`)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: prepare put primitive")
	}
	defer stmt.Close() //nolint:errcheck

	now := time.Now().UTC()
	n := 0
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
			return 0, eris.Wrapf(err, "sqlite: primitive %s", p.ID)
		}
		if _, err := stmt.ExecContext(ctx, p.ID, tags, geomBytes, p.Deleted, p.Incomplete, now); err != nil {
			return 0, eris.Wrapf(err, "sqlite: put primitive %s", p.ID)
		}
		n++
	}

	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit put primitives")
	}
	return n, nil
}

func (s *SQLiteStore) Primitives(ctx context.Context) ([]*model.Primitive, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, tags, geometry, deleted, incomplete FROM primitives ORDER BY rowid`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list primitives")
	}
	defer rows.Close() //nolint:errcheck
	return scanPrimitives(rows)
}

func (s *SQLiteStore) GetPrimitives(ctx context.Context, ids []string) ([]*model.Primitive, error) {
	if len(ids) == 0 {
		return []*model.Primitive{}, nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, tags, geometry, deleted, incomplete FROM primitives WHERE id IN (`+placeholders(len(ids))+`)`,
		args...,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get primitives")
	}
	defer rows.Close() //nolint:errcheck

	prims, err := scanPrimitives(rows)
	if err != nil {
		return nil, err
	}
	return orderByIDs(prims, ids), nil
}

func (s *SQLiteStore) ApplyChangeset(ctx context.Context, cs *model.Changeset) error {
	if err := dataset.Prepare(cs); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin apply")
	}
	defer tx.Rollback() //nolint:errcheck

	tags := make(map[string]model.Tags)
	for i := range cs.Changes {
		id := cs.Changes[i].PrimitiveID
		t, ok := tags[id]
		if !ok {
			if t, err = loadTagsTx(ctx, tx, id); err != nil {
				return err
			}
			tags[id] = t
		}
		dataset.Apply(t, &cs.Changes[i])
	}
	if err := saveTagsTx(ctx, tx, cs.PrimitiveIDs(), tags); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO changesets (id, comment, created_at) VALUES (?, ?, ?)`,
		cs.ID, cs.Comment, cs.CreatedAt,
	); err != nil {
		return eris.Wrap(err, "sqlite: insert changeset")
	}
	for _, row := range changeRows(cs) {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO changeset_changes (changeset_id, seq, primitive_id, key, value, previous) VALUES (?, ?, ?, ?, ?, ?)`,
			row...,
		); err != nil {
			return eris.Wrap(err, "sqlite: insert changeset change")
		}
	}

	return eris.Wrap(tx.Commit(), "sqlite: commit apply")
}

func (s *SQLiteStore) UndoChangeset(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin undo")
	}
	defer tx.Rollback() //nolint:errcheck

	var undone sql.NullTime
	err = tx.QueryRowContext(ctx, `SELECT undone_at FROM changesets WHERE id = ?`, id).Scan(&undone)
	if errors.Is(err, sql.ErrNoRows) {
		return eris.Wrapf(dataset.ErrNotFound, "changeset %s", id)
	}
	if err != nil {
		return eris.Wrapf(err, "sqlite: get changeset %s", id)
	}
	if undone.Valid {
		return eris.Wrapf(dataset.ErrAlreadyUndone, "changeset %s", id)
	}

	changes, err := s.changes(ctx, tx, []string{id})
	if err != nil {
		return err
	}
	cs := &model.Changeset{ID: id, Changes: changes[id]}

	tags := make(map[string]model.Tags)
	for _, pid := range cs.PrimitiveIDs() {
		t, err := loadTagsTx(ctx, tx, pid)
		if errors.Is(err, dataset.ErrNotFound) {
			continue
		}
		if err != nil {
			return err
		}
		tags[pid] = t
	}
	for i := len(cs.Changes) - 1; i >= 0; i-- {
		if t, ok := tags[cs.Changes[i].PrimitiveID]; ok {
			dataset.Revert(t, cs.Changes[i])
		}
	}
	if err := saveTagsTx(ctx, tx, cs.PrimitiveIDs(), tags); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE changesets SET undone_at = ? WHERE id = ?`, time.Now().UTC(), id,
	); err != nil {
		return eris.Wrapf(err, "sqlite: mark changeset %s undone", id)
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit undo")
}

func (s *SQLiteStore) GetChangeset(ctx context.Context, id string) (*model.Changeset, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, comment, created_at, undone_at FROM changesets WHERE id = ?`, id)
	cs, err := scanChangeset(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(dataset.ErrNotFound, "changeset %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get changeset %s", id)
	}

	changes, err := s.changes(ctx, s.db, []string{id})
	if err != nil {
		return nil, err
	}
	cs.Changes = changes[id]
	return cs, nil
}

func (s *SQLiteStore) ListChangesets(ctx context.Context, filter dataset.ChangesetFilter) ([]model.Changeset, error) {
	query := `SELECT id, comment, created_at, undone_at FROM changesets`
	if !filter.IncludeUndone {
		query += ` WHERE undone_at IS NULL`
	}
	query += ` ORDER BY created_at DESC LIMIT ? OFFSET ?`
	limit, offset := limitOffset(filter)

	rows, err := s.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list changesets")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.Changeset
	var ids []string
	for rows.Next() {
		cs, err := scanChangeset(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan changeset")
		}
		out = append(out, *cs)
		ids = append(ids, cs.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: iterate changesets")
	}

	changes, err := s.changes(ctx, s.db, ids)
	if err != nil {
		return nil, err
	}
	for i := range out {
		out[i].Changes = changes[out[i].ID]
	}
	if out == nil {
		out = []model.Changeset{}
	}
	return out, nil
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (s *SQLiteStore) changes(ctx context.Context, q querier, ids []string) (map[string][]model.TagChange, error) {
	out := make(map[string][]model.TagChange, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	rows, err := q.QueryContext(ctx,
		`SELECT changeset_id, primitive_id, key, value, previous FROM changeset_changes
		 WHERE changeset_id IN (`+placeholders(len(ids))+`) ORDER BY changeset_id, seq`,
		args...,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list changeset changes")
	}
	defer rows.Close() //nolint:errcheck

	for rows.Next() {
		var csID string
		var ch model.TagChange
		var prev sql.NullString
		if err := rows.Scan(&csID, &ch.PrimitiveID, &ch.Key, &ch.Value, &prev); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan changeset change")
		}
		if prev.Valid {
			v := prev.String
			ch.Previous = &v
		}
		out[csID] = append(out[csID], ch)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate changeset changes")
}

func loadTagsTx(ctx context.Context, tx *sql.Tx, id string) (model.Tags, error) {
	var raw string
	err := tx.QueryRowContext(ctx, `SELECT tags FROM primitives WHERE id = ?`, id).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(dataset.ErrNotFound, "primitive %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: load tags %s", id)
	}
	return decodeTags([]byte(raw))
}

func saveTagsTx(ctx context.Context, tx *sql.Tx, ids []string, tags map[string]model.Tags) error {
	now := time.Now().UTC()
	for _, id := range ids {
		t, ok := tags[id]
		if !ok {
			continue
		}
		raw, err := encodeTags(t)
		if err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx,
			`UPDATE primitives SET tags = ?, updated_at = ? WHERE id = ?`, raw, now, id)
		if err != nil {
			return eris.Wrapf(err, "sqlite: update tags %s", id)
		}
		if err := checkRowsAffected(res, "primitive", id); err != nil {
			return err
		}
	}
	return nil
}

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Wrapf(dataset.ErrNotFound, "%s %s", entity, id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanPrimitives(rows *sql.Rows) ([]*model.Primitive, error) {
	prims := []*model.Primitive{}
	for rows.Next() {
		p, err := scanPrimitive(rows)
		if err != nil {
			return nil, err
		}
		prims = append(prims, p)
	}
	return prims, eris.Wrap(rows.Err(), "sqlite: iterate primitives")
}

func scanPrimitive(row scannable) (*model.Primitive, error) {
	var p model.Primitive
	var rawTags string
	var rawGeom []byte
	if err := row.Scan(&p.ID, &rawTags, &rawGeom, &p.Deleted, &p.Incomplete); err != nil {
		return nil, eris.Wrap(err, "sqlite: scan primitive")
	}
	tags, err := decodeTags([]byte(rawTags))
	if err != nil {
		return nil, eris.Wrapf(err, "primitive %s", p.ID)
	}
	p.Tags = tags
	if p.Geometry, err = decodeGeometry(rawGeom); err != nil {
		return nil, eris.Wrapf(err, "primitive %s", p.ID)
	}
	return &p, nil
}

func scanChangeset(row scannable) (*model.Changeset, error) {
	var cs model.Changeset
	var undone sql.NullTime
	if err := row.Scan(&cs.ID, &cs.Comment, &cs.CreatedAt, &undone); err != nil {
		return nil, err
	}
	cs.CreatedAt = cs.CreatedAt.UTC()
	if undone.Valid {
		t := undone.Time.UTC()
		cs.UndoneAt = &t
	}
	return &cs, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

// orderByIDs returns prims in the order of ids, skipping missing ones.
func orderByIDs(prims []*model.Primitive, ids []string) []*model.Primitive {
	byID := make(map[string]*model.Primitive, len(prims))
	for _, p := range prims {
		byID[p.ID] = p
	}
	out := make([]*model.Primitive, 0, len(ids))
	for _, id := range ids {
		if p, ok := byID[id]; ok {
			out = append(out, p)
			delete(byID, id)
		}
	}
	return out
}
