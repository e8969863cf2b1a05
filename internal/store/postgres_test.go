package store

import (
	"context"
	"testing"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hdb-research/resale-cli/internal/dataset"
	"github.com/hdb-research/resale-cli/internal/spatial"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })
	return NewPostgresFromPool(mock), mock
}

func TestPostgresStore_CountRecords(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM transactions WHERE kind = \$1`).
		WithArgs("resale").
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(12345))

	n, err := s.CountRecords(context.Background(), dataset.KindResale)
	require.NoError(t, err)
	assert.Equal(t, 12345, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_AppendRecords_Transactional(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO transactions`).
		WithArgs(
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	err := s.AppendRecords(context.Background(), []dataset.Record{
		sampleRecord("406 ANG MO KIO AVE 10", 280000),
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_AppendRecords_EmptyBatchSkipsTx(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	require.NoError(t, s.AppendRecords(context.Background(), nil))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_LoadAmenities(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT name, latitude, longitude FROM amenities WHERE kind = \$1`).
		WithArgs(AmenityMRT).
		WillReturnRows(pgxmock.NewRows([]string{"name", "latitude", "longitude"}).
			AddRow("JURONG EAST MRT", 1.3331, 103.7422).
			AddRow("CLEMENTI MRT", 1.3152, 103.7652))

	out, err := s.LoadAmenities(context.Background(), AmenityMRT)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "JURONG EAST MRT", out[0].Name)
	assert.InDelta(t, 103.7652, out[1].Lon, 1e-9)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ReplaceAmenities_DeleteThenInsert(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM amenities WHERE kind = \$1`).
		WithArgs(AmenityMall).
		WillReturnResult(pgxmock.NewResult("DELETE", 2))
	mock.ExpectExec(`INSERT INTO amenities`).
		WithArgs(AmenityMall, "313 SOMERSET", 1.3009, 103.8384).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	err := s.ReplaceAmenities(context.Background(), AmenityMall, []spatial.Amenity{
		{Name: "313 SOMERSET", Lat: 1.3009, Lon: 103.8384},
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ReplaceAmenities_RollsBackOnInsertError(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM amenities`).
		WithArgs(pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectExec(`INSERT INTO amenities`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(assert.AnError)
	mock.ExpectRollback()

	err := s.ReplaceAmenities(context.Background(), AmenityMall, []spatial.Amenity{
		{Name: "313 SOMERSET", Lat: 1.3009, Lon: 103.8384},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insert amenity")
	assert.NoError(t, mock.ExpectationsWereMet())
}
