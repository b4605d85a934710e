package db

import (
	"context"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBulkUpsert_EmptyRows(t *testing.T) {
	n, err := BulkUpsert(context.TODO(), nil, UpsertConfig{
		Table:        "primitives",
		Columns:      []string{"id", "tags"},
		ConflictKeys: []string{"id"},
	}, nil)
	assert.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestBulkUpsert_NoColumns(t *testing.T) {
	_, err := BulkUpsert(context.TODO(), nil, UpsertConfig{
		Table:        "primitives",
		ConflictKeys: []string{"id"},
	}, [][]any{{1, "a"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no columns specified")
}

func TestBulkUpsert_NoConflictKeys(t *testing.T) {
	_, err := BulkUpsert(context.TODO(), nil, UpsertConfig{
		Table:   "primitives",
		Columns: []string{"id", "tags"},
	}, [][]any{{1, "a"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no conflict keys specified")
}

func TestBulkUpsert_Success(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TEMP TABLE "_tmp_upsert_primitives" \(LIKE "primitives" INCLUDING DEFAULTS\)`).
		WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_upsert_primitives"}, []string{"id", "tags"}).WillReturnResult(2)
	mock.ExpectExec(`INSERT INTO "primitives" \("id", "tags"\) SELECT "id", "tags" FROM "_tmp_upsert_primitives" ON CONFLICT \("id"\) DO UPDATE SET "tags" = EXCLUDED."tags"`).
		WillReturnResult(pgxmock.NewResult("INSERT", 2))
	mock.ExpectCommit()

	n, err := BulkUpsert(context.Background(), mock, UpsertConfig{
		Table:        "primitives",
		Columns:      []string{"id", "tags"},
		ConflictKeys: []string{"id"},
	}, [][]any{{"way/1", "{}"}, {"way/2", "{}"}})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBulkUpsert_OnlyKeyColumns(t *testing.T) {
	_, err := BulkUpsert(context.TODO(), nil, UpsertConfig{
		Table:        "primitives",
		Columns:      []string{"id"},
		ConflictKeys: []string{"id"},
	}, [][]any{{"way/1"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no columns to update")
}

func TestBulkUpsert_CopyFails(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TEMP TABLE`).WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_upsert_primitives"}, []string{"id", "tags"}).WillReturnError(fmt.Errorf("boom"))
	mock.ExpectRollback()

	_, err = BulkUpsert(context.Background(), mock, UpsertConfig{
		Table:        "primitives",
		Columns:      []string{"id", "tags"},
		ConflictKeys: []string{"id"},
	}, [][]any{{"way/1", "{}"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "upsert: load primitives")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBulkUpsert_MergeFails(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TEMP TABLE`).WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_upsert_addr_primitives"}, []string{"id", "tags"}).WillReturnResult(1)
	mock.ExpectExec(`INSERT INTO "addr"."primitives"`).WillReturnError(fmt.Errorf("conflict"))
	mock.ExpectRollback()

	_, err = BulkUpsert(context.Background(), mock, UpsertConfig{
		Table:        "addr.primitives",
		Columns:      []string{"id", "tags"},
		ConflictKeys: []string{"id"},
	}, [][]any{{"way/1", "{}"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "merge into addr.primitives")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSanitizeTable(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"primitives", `"primitives"`},
		{"addr.primitives", `"addr"."primitives"`},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := sanitizeTable(tt.input)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestQuoteAndJoin(t *testing.T) {
	result := quoteAndJoin([]string{"id", "tags", "geometry"})
	assert.Equal(t, `"id", "tags", "geometry"`, result)
}
