// Package db provides the shared Postgres pool interface and a batched
// upsert helper used by the buildings store.
package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rotisserie/eris"
)

// Pool is the subset of pgxpool.Pool the stores depend on. pgxmock pools
// satisfy it too, which keeps store tests off a live database.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)
	Begin(ctx context.Context) (pgx.Tx, error)
}

// UpsertConfig defines the parameters for a batched multi-row upsert.
type UpsertConfig struct {
	Table        string            // target table
	Columns      []string          // all columns being inserted
	ConflictKeys []string          // columns forming the unique constraint
	Exprs        map[string]string // optional per-column value expression wrapping the placeholder, e.g. "ST_GeomFromEWKB(%s)"
}

// ValuesUpsert inserts rows with a single multi-row INSERT ... ON CONFLICT
// DO UPDATE statement. Exprs lets a column's placeholder pass through a SQL
// expression, which plain COPY cannot do (PostGIS geometry conversion needs
// this). Returns the number of rows affected.
func ValuesUpsert(ctx context.Context, pool Pool, cfg UpsertConfig, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	if len(cfg.Columns) == 0 {
		return 0, eris.New("db: upsert: no columns specified")
	}
	if len(cfg.ConflictKeys) == 0 {
		return 0, eris.New("db: upsert: no conflict keys specified")
	}

	conflictSet := make(map[string]bool, len(cfg.ConflictKeys))
	for _, k := range cfg.ConflictKeys {
		conflictSet[k] = true
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "INSERT INTO %s (%s) VALUES ", cfg.Table, strings.Join(cfg.Columns, ", "))

	args := make([]any, 0, len(rows)*len(cfg.Columns))
	for i, row := range rows {
		if len(row) != len(cfg.Columns) {
			return 0, eris.Errorf("db: upsert: row %d has %d values, want %d", i, len(row), len(cfg.Columns))
		}
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString("(")
		for j, col := range cfg.Columns {
			if j > 0 {
				sb.WriteString(", ")
			}
			placeholder := fmt.Sprintf("$%d", len(args)+1)
			if expr, ok := cfg.Exprs[col]; ok {
				fmt.Fprintf(&sb, expr, placeholder)
			} else {
				sb.WriteString(placeholder)
			}
			args = append(args, row[j])
		}
		sb.WriteString(")")
	}

	fmt.Fprintf(&sb, " ON CONFLICT (%s) DO UPDATE SET ", strings.Join(cfg.ConflictKeys, ", "))

	var sets []string
	for _, col := range cfg.Columns {
		if conflictSet[col] {
			continue
		}
		sets = append(sets, fmt.Sprintf("%s = EXCLUDED.%s", col, col))
	}
	if len(sets) == 0 {
		return 0, eris.New("db: upsert: no updatable columns")
	}
	sb.WriteString(strings.Join(sets, ", "))

	tag, err := pool.Exec(ctx, sb.String(), args...)
	if err != nil {
		return 0, eris.Wrapf(err, "db: upsert into %s", cfg.Table)
	}
	return tag.RowsAffected(), nil
}
