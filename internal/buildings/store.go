package buildings

import (
	"context"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom/encoding/ewkb"
	"go.uber.org/zap"

	"github.com/nest-urban/anchor-cli/internal/db"
)

// DefaultBatchSize is the number of buildings per upsert statement.
const DefaultBatchSize = 500

const (
	createTableSQL = `CREATE TABLE IF NOT EXISTS overture_buildings (
		id TEXT PRIMARY KEY,
		name TEXT,
		height DOUBLE PRECISION,
		render_height DOUBLE PRECISION,
		geometry GEOMETRY(Geometry, 4326)
	)`
	createIndexSQL = `CREATE INDEX IF NOT EXISTS overture_buildings_geom_idx ON overture_buildings USING GIST (geometry)`
	dropTableSQL   = `DROP TABLE IF EXISTS overture_buildings`
)

// Store persists buildings into the overture_buildings PostGIS table.
type Store struct {
	pool      db.Pool
	batchSize int
}

// NewStore creates a Store with the given pool and batch size.
func NewStore(pool db.Pool, batchSize int) *Store {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Store{pool: pool, batchSize: batchSize}
}

// EnsureSchema creates the buildings table and its spatial index. With
// fresh set, the existing table is dropped first; otherwise the load
// appends into whatever is already there.
func (s *Store) EnsureSchema(ctx context.Context, fresh bool) error {
	if fresh {
		if _, err := s.pool.Exec(ctx, dropTableSQL); err != nil {
			return eris.Wrap(err, "buildings: drop table")
		}
	}
	if _, err := s.pool.Exec(ctx, createTableSQL); err != nil {
		return eris.Wrap(err, "buildings: create table")
	}
	if _, err := s.pool.Exec(ctx, createIndexSQL); err != nil {
		return eris.Wrap(err, "buildings: create spatial index")
	}
	return nil
}

// UpsertAll loads buildings in batches, updating existing rows on id
// conflict. Returns the number of rows written.
func (s *Store) UpsertAll(ctx context.Context, all []Building) (int64, error) {
	log := zap.L().With(zap.String("component", "buildings.store"))

	var total int64
	for start := 0; start < len(all); start += s.batchSize {
		end := start + s.batchSize
		if end > len(all) {
			end = len(all)
		}

		n, err := s.upsertBatch(ctx, all[start:end])
		if err != nil {
			return total, eris.Wrapf(err, "buildings: batch starting at %d", start)
		}
		total += n

		log.Info("buildings batch loaded",
			zap.Int("done", end),
			zap.Int("total", len(all)),
		)
	}
	return total, nil
}

// upsertBatch writes one batch with a single multi-row upsert. Geometry
// travels as EWKB bytes converted server-side.
func (s *Store) upsertBatch(ctx context.Context, batch []Building) (int64, error) {
	rows := make([][]any, 0, len(batch))
	for _, b := range batch {
		wkb, err := ewkb.Marshal(b.Geometry, ewkb.NDR)
		if err != nil {
			return 0, eris.Wrapf(err, "buildings: encode geometry for %s", b.ID)
		}
		rows = append(rows, []any{b.ID, b.Name, b.Height, b.RenderHeight, wkb})
	}

	return db.ValuesUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "overture_buildings",
		Columns:      []string{"id", "name", "height", "render_height", "geometry"},
		ConflictKeys: []string{"id"},
		Exprs: map[string]string{
			"geometry": "ST_SetSRID(ST_GeomFromEWKB(%s), 4326)",
		},
	}, rows)
}
