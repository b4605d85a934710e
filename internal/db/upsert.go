package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
)

// UpsertConfig names the target table and its columns. Every column that is
// not a conflict key is overwritten on conflict.
type UpsertConfig struct {
	Table        string // optionally schema-qualified
	Columns      []string
	ConflictKeys []string
}

// BulkUpsert COPYs rows into a transaction-scoped temp table shaped like the
// target, then merges them with INSERT ... ON CONFLICT DO UPDATE.
func BulkUpsert(ctx context.Context, pool Pool, cfg UpsertConfig, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	if len(cfg.Columns) == 0 {
		return 0, eris.New("db: upsert: no columns specified")
	}
	if len(cfg.ConflictKeys) == 0 {
		return 0, eris.New("db: upsert: no conflict keys specified")
	}

	keys := make(map[string]bool, len(cfg.ConflictKeys))
	for _, k := range cfg.ConflictKeys {
		keys[k] = true
	}
	var set []string
	for _, c := range cfg.Columns {
		if !keys[c] {
			col := pgx.Identifier{c}.Sanitize()
			set = append(set, col+" = EXCLUDED."+col)
		}
	}
	if len(set) == 0 {
		return 0, eris.New("db: upsert: no columns to update")
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "db: upsert: begin tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	temp := "_tmp_upsert_" + strings.ReplaceAll(cfg.Table, ".", "_")
	tempIdent := pgx.Identifier{temp}.Sanitize()
	target := sanitizeTable(cfg.Table)

	if _, err := tx.Exec(ctx, fmt.Sprintf(
		"CREATE TEMP TABLE %s (LIKE %s INCLUDING DEFAULTS) ON COMMIT DROP", tempIdent, target,
	)); err != nil {
		return 0, eris.Wrapf(err, "db: upsert: create temp table for %s", cfg.Table)
	}

	if _, err := CopyFrom(ctx, tx, temp, cfg.Columns, rows); err != nil {
		return 0, eris.Wrapf(err, "db: upsert: load %s", cfg.Table)
	}

	cols := quoteAndJoin(cfg.Columns)
	tag, err := tx.Exec(ctx, fmt.Sprintf(
		"INSERT INTO %s (%s) SELECT %s FROM %s ON CONFLICT (%s) DO UPDATE SET %s",
		target, cols, cols, tempIdent, quoteAndJoin(cfg.ConflictKeys), strings.Join(set, ", "),
	))
	if err != nil {
		return 0, eris.Wrapf(err, "db: upsert: merge into %s", cfg.Table)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, eris.Wrap(err, "db: upsert: commit tx")
	}
	return tag.RowsAffected(), nil
}

// identifier splits schema-qualified names like "public.primitives".
func identifier(table string) pgx.Identifier {
	return pgx.Identifier(strings.SplitN(table, ".", 2))
}

func sanitizeTable(table string) string {
	return identifier(table).Sanitize()
}

func quoteAndJoin(cols []string) string {
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = pgx.Identifier{c}.Sanitize()
	}
	return strings.Join(quoted, ", ")
}
