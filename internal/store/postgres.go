package store

import (
	"context"
	"math"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/hdb-research/resale-cli/internal/dataset"
	"github.com/hdb-research/resale-cli/internal/spatial"
)

// Pool is the subset of pgxpool.Pool the store uses. pgxmock satisfies it,
// so the Postgres store can be tested without a live database.
type Pool interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    Pool
	closeFn func()
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}
	pgxCfg.MaxConns = 10
	pgxCfg.MinConns = 2
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

// NewPostgresFromPool wraps an existing pool. Used by tests.
func NewPostgresFromPool(pool Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS transactions (
	id              BIGSERIAL PRIMARY KEY,
	kind            TEXT NOT NULL,
	address         TEXT NOT NULL,
	latitude        DOUBLE PRECISION,
	longitude       DOUBLE PRECISION,
	year            INTEGER NOT NULL,
	month           INTEGER NOT NULL,
	storey_range    DOUBLE PRECISION,
	floor_area_sqm  DOUBLE PRECISION,
	flat_type       TEXT NOT NULL,
	lease_commence  INTEGER,
	remaining_lease DOUBLE PRECISION,
	price           DOUBLE PRECISION NOT NULL
);

CREATE TABLE IF NOT EXISTS amenities (
	id        BIGSERIAL PRIMARY KEY,
	kind      TEXT NOT NULL,
	name      TEXT NOT NULL,
	latitude  DOUBLE PRECISION NOT NULL,
	longitude DOUBLE PRECISION NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_transactions_kind ON transactions(kind);
CREATE INDEX IF NOT EXISTS idx_transactions_address ON transactions(address);
CREATE INDEX IF NOT EXISTS idx_amenities_kind ON amenities(kind);
`

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

func (s *PostgresStore) CountRecords(ctx context.Context, kind dataset.Kind) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM transactions WHERE kind = $1`, string(kind),
	).Scan(&n)
	return n, eris.Wrap(err, "postgres: count records")
}

func (s *PostgresStore) LoadRecords(ctx context.Context, kind dataset.Kind) ([]dataset.Record, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+recordColumns+` FROM transactions WHERE kind = $1 ORDER BY id`,
		string(kind),
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: load records")
	}
	defer rows.Close()
	return scanPgxRecords(rows)
}

func (s *PostgresStore) RecentRecords(ctx context.Context, kind dataset.Kind, n int) ([]dataset.Record, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+recordColumns+` FROM transactions WHERE kind = $1
		 ORDER BY id DESC LIMIT $2`,
		string(kind), n,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: recent records")
	}
	defer rows.Close()

	records, err := scanPgxRecords(rows)
	if err != nil {
		return nil, err
	}
	reverse(records)
	return records, nil
}

func (s *PostgresStore) AppendRecords(ctx context.Context, records []dataset.Record) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin append")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	for _, r := range records {
		_, err := tx.Exec(ctx, `
			INSERT INTO transactions (`+recordColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
			r.Address, nullIfNaN(r.Latitude), nullIfNaN(r.Longitude),
			r.Year, r.Month, nullIfNaN(r.StoreyRange), nullIfNaN(r.FloorArea),
			r.FlatType, nullIfZero(r.LeaseCommence), nullIfNaN(r.RemainingLease),
			r.Price, string(r.Kind),
		)
		if err != nil {
			return eris.Wrapf(err, "postgres: insert record %q", r.Address)
		}
	}

	return eris.Wrap(tx.Commit(ctx), "postgres: commit append")
}

func (s *PostgresStore) LoadAmenities(ctx context.Context, kind string) ([]spatial.Amenity, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT name, latitude, longitude FROM amenities WHERE kind = $1 ORDER BY id`,
		kind,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: load amenities")
	}
	defer rows.Close()

	var amenities []spatial.Amenity
	for rows.Next() {
		var a spatial.Amenity
		if err := rows.Scan(&a.Name, &a.Lat, &a.Lon); err != nil {
			return nil, eris.Wrap(err, "postgres: scan amenity")
		}
		amenities = append(amenities, a)
	}
	return amenities, eris.Wrap(rows.Err(), "postgres: iterate amenities")
}

func (s *PostgresStore) CountAmenities(ctx context.Context, kind string) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM amenities WHERE kind = $1`, kind,
	).Scan(&n)
	return n, eris.Wrap(err, "postgres: count amenities")
}

func (s *PostgresStore) ReplaceAmenities(ctx context.Context, kind string, amenities []spatial.Amenity) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin replace amenities")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, `DELETE FROM amenities WHERE kind = $1`, kind); err != nil {
		return eris.Wrap(err, "postgres: clear amenities")
	}
	for _, a := range amenities {
		_, err := tx.Exec(ctx,
			`INSERT INTO amenities (kind, name, latitude, longitude) VALUES ($1, $2, $3, $4)`,
			kind, a.Name, a.Lat, a.Lon,
		)
		if err != nil {
			return eris.Wrapf(err, "postgres: insert amenity %q", a.Name)
		}
	}

	return eris.Wrap(tx.Commit(ctx), "postgres: commit replace amenities")
}

func scanPgxRecords(rows pgx.Rows) ([]dataset.Record, error) {
	var records []dataset.Record
	for rows.Next() {
		var r dataset.Record
		var lat, lon, storey, area, lease *float64
		var leaseCommence *int
		var kind string
		err := rows.Scan(
			&r.Address, &lat, &lon, &r.Year, &r.Month, &storey,
			&area, &r.FlatType, &leaseCommence, &lease, &r.Price, &kind,
		)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan record")
		}
		r.Latitude = derefOrNaN(lat)
		r.Longitude = derefOrNaN(lon)
		r.StoreyRange = derefOrNaN(storey)
		r.FloorArea = derefOrNaN(area)
		r.RemainingLease = derefOrNaN(lease)
		if leaseCommence != nil {
			r.LeaseCommence = *leaseCommence
		}
		r.Kind = dataset.Kind(kind)
		records = append(records, r)
	}
	return records, eris.Wrap(rows.Err(), "postgres: iterate records")
}

func derefOrNaN(p *float64) float64 {
	if p == nil {
		return math.NaN()
	}
	return *p
}
