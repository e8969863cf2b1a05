package store

import (
	"context"
	"database/sql"
	"math"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/hdb-research/resale-cli/internal/dataset"
	"github.com/hdb-research/resale-cli/internal/spatial"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	// Single connection: sqlite has one writer, and a shared pool would give
	// each :memory: connection its own empty database.
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS transactions (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	kind            TEXT NOT NULL,
	address         TEXT NOT NULL,
	latitude        REAL,
	longitude       REAL,
	year            INTEGER NOT NULL,
	month           INTEGER NOT NULL,
	storey_range    REAL,
	floor_area_sqm  REAL,
	flat_type       TEXT NOT NULL,
	lease_commence  INTEGER,
	remaining_lease REAL,
	price           REAL NOT NULL
);

CREATE TABLE IF NOT EXISTS amenities (
	id        INTEGER PRIMARY KEY AUTOINCREMENT,
	kind      TEXT NOT NULL,
	name      TEXT NOT NULL,
	latitude  REAL NOT NULL,
	longitude REAL NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_transactions_kind ON transactions(kind);
CREATE INDEX IF NOT EXISTS idx_transactions_address ON transactions(address);
CREATE INDEX IF NOT EXISTS idx_amenities_kind ON amenities(kind);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CountRecords(ctx context.Context, kind dataset.Kind) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM transactions WHERE kind = ?`, string(kind),
	).Scan(&n)
	return n, eris.Wrap(err, "sqlite: count records")
}

const recordColumns = `address, latitude, longitude, year, month, storey_range,
	floor_area_sqm, flat_type, lease_commence, remaining_lease, price, kind`

func (s *SQLiteStore) LoadRecords(ctx context.Context, kind dataset.Kind) ([]dataset.Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+recordColumns+` FROM transactions WHERE kind = ? ORDER BY id`,
		string(kind),
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: load records")
	}
	defer rows.Close()
	return scanRecords(rows)
}

func (s *SQLiteStore) RecentRecords(ctx context.Context, kind dataset.Kind, n int) ([]dataset.Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+recordColumns+` FROM transactions WHERE kind = ?
		 ORDER BY id DESC LIMIT ?`,
		string(kind), n,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: recent records")
	}
	defer rows.Close()

	records, err := scanRecords(rows)
	if err != nil {
		return nil, err
	}
	reverse(records)
	return records, nil
}

func (s *SQLiteStore) AppendRecords(ctx context.Context, records []dataset.Record) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin append")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO transactions (`+recordColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare append")
	}
	defer stmt.Close()

	for _, r := range records {
		_, err := stmt.ExecContext(ctx,
			r.Address, nullIfNaN(r.Latitude), nullIfNaN(r.Longitude),
			r.Year, r.Month, nullIfNaN(r.StoreyRange), nullIfNaN(r.FloorArea),
			r.FlatType, nullIfZero(r.LeaseCommence), nullIfNaN(r.RemainingLease),
			r.Price, string(r.Kind),
		)
		if err != nil {
			return eris.Wrapf(err, "sqlite: insert record %q", r.Address)
		}
	}

	return eris.Wrap(tx.Commit(), "sqlite: commit append")
}

func (s *SQLiteStore) LoadAmenities(ctx context.Context, kind string) ([]spatial.Amenity, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name, latitude, longitude FROM amenities WHERE kind = ? ORDER BY id`,
		kind,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: load amenities")
	}
	defer rows.Close()

	var amenities []spatial.Amenity
	for rows.Next() {
		var a spatial.Amenity
		if err := rows.Scan(&a.Name, &a.Lat, &a.Lon); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan amenity")
		}
		amenities = append(amenities, a)
	}
	return amenities, eris.Wrap(rows.Err(), "sqlite: iterate amenities")
}

func (s *SQLiteStore) CountAmenities(ctx context.Context, kind string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM amenities WHERE kind = ?`, kind,
	).Scan(&n)
	return n, eris.Wrap(err, "sqlite: count amenities")
}

func (s *SQLiteStore) ReplaceAmenities(ctx context.Context, kind string, amenities []spatial.Amenity) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin replace amenities")
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `DELETE FROM amenities WHERE kind = ?`, kind); err != nil {
		return eris.Wrap(err, "sqlite: clear amenities")
	}
	for _, a := range amenities {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO amenities (kind, name, latitude, longitude) VALUES (?, ?, ?, ?)`,
			kind, a.Name, a.Lat, a.Lon,
		)
		if err != nil {
			return eris.Wrapf(err, "sqlite: insert amenity %q", a.Name)
		}
	}

	return eris.Wrap(tx.Commit(), "sqlite: commit replace amenities")
}

// helpers

// nullIfNaN maps NaN to NULL so the schema round-trips absent values.
func nullIfNaN(f float64) any {
	if math.IsNaN(f) {
		return nil
	}
	return f
}

func nullIfZero(n int) any {
	if n == 0 {
		return nil
	}
	return n
}

func reverse(records []dataset.Record) {
	for i, j := 0, len(records)-1; i < j; i, j = i+1, j-1 {
		records[i], records[j] = records[j], records[i]
	}
}

type rowScanner interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func scanRecords(rows rowScanner) ([]dataset.Record, error) {
	var records []dataset.Record
	for rows.Next() {
		var r dataset.Record
		var lat, lon, storey, area, lease sql.NullFloat64
		var leaseCommence sql.NullInt64
		var kind string
		err := rows.Scan(
			&r.Address, &lat, &lon, &r.Year, &r.Month, &storey,
			&area, &r.FlatType, &leaseCommence, &lease, &r.Price, &kind,
		)
		if err != nil {
			return nil, eris.Wrap(err, "store: scan record")
		}
		r.Latitude = floatOrNaN(lat)
		r.Longitude = floatOrNaN(lon)
		r.StoreyRange = floatOrNaN(storey)
		r.FloorArea = floatOrNaN(area)
		r.RemainingLease = floatOrNaN(lease)
		if leaseCommence.Valid {
			r.LeaseCommence = int(leaseCommence.Int64)
		}
		r.Kind = dataset.Kind(kind)
		records = append(records, r)
	}
	return records, eris.Wrap(rows.Err(), "store: iterate records")
}

func floatOrNaN(v sql.NullFloat64) float64 {
	if !v.Valid {
		return math.NaN()
	}
	return v.Float64
}
