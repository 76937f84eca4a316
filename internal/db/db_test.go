package db

import (
	"context"
	"fmt"
	"testing"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValuesUpsert_EmptyRows(t *testing.T) {
	n, err := ValuesUpsert(context.TODO(), nil, UpsertConfig{
		Table:        "t",
		Columns:      []string{"a"},
		ConflictKeys: []string{"a"},
	}, nil)
	assert.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestValuesUpsert_Validation(t *testing.T) {
	_, err := ValuesUpsert(context.TODO(), nil, UpsertConfig{Table: "t"}, [][]any{{1}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no columns")

	_, err = ValuesUpsert(context.TODO(), nil, UpsertConfig{Table: "t", Columns: []string{"a"}}, [][]any{{1}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no conflict keys")

	_, err = ValuesUpsert(context.TODO(), nil, UpsertConfig{
		Table: "t", Columns: []string{"a", "b"}, ConflictKeys: []string{"a"},
	}, [][]any{{1}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "row 0 has 1 values, want 2")
}

func TestValuesUpsert_Success(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec(`INSERT INTO buildings \(id, name\) VALUES \(\$1, \$2\), \(\$3, \$4\) ON CONFLICT \(id\) DO UPDATE SET name = EXCLUDED\.name`).
		WithArgs("b1", "Library", "b2", "Hall").
		WillReturnResult(pgxmock.NewResult("INSERT", 2))

	n, err := ValuesUpsert(context.Background(), mock, UpsertConfig{
		Table:        "buildings",
		Columns:      []string{"id", "name"},
		ConflictKeys: []string{"id"},
	}, [][]any{{"b1", "Library"}, {"b2", "Hall"}})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestValuesUpsert_GeometryExpression(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec(`INSERT INTO buildings \(id, geometry\) VALUES \(\$1, ST_SetSRID\(ST_GeomFromEWKB\(\$2\), 4326\)\) ON CONFLICT \(id\) DO UPDATE SET geometry = EXCLUDED\.geometry`).
		WithArgs("b1", []byte{0x01}).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	n, err := ValuesUpsert(context.Background(), mock, UpsertConfig{
		Table:        "buildings",
		Columns:      []string{"id", "geometry"},
		ConflictKeys: []string{"id"},
		Exprs:        map[string]string{"geometry": "ST_SetSRID(ST_GeomFromEWKB(%s), 4326)"},
	}, [][]any{{"b1", []byte{0x01}}})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestValuesUpsert_ExecError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec(`INSERT INTO buildings`).
		WithArgs("b1", "Library").
		WillReturnError(fmt.Errorf("permission denied"))

	_, err = ValuesUpsert(context.Background(), mock, UpsertConfig{
		Table:        "buildings",
		Columns:      []string{"id", "name"},
		ConflictKeys: []string{"id"},
	}, [][]any{{"b1", "Library"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "upsert into buildings")
	assert.NoError(t, mock.ExpectationsWereMet())
}
