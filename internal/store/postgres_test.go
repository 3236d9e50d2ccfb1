package store

import (
	"context"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clubops/registry-cli/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	return NewPostgresWithPool(mock), mock
}

func TestPostgresStore_UnprocessedRawRecords(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	dob := time.Date(1990, time.May, 1, 0, 0, 0, 0, time.UTC)
	registered := time.Date(2023, time.January, 10, 9, 30, 0, 0, time.UTC)
	rows := pgxmock.NewRows([]string{
		"id", "first_name", "last_name", "date_of_birth", "sex", "category",
		"city", "country", "postal_code", "email", "phone", "registered_at", "source_id",
	}).
		AddRow(int64(1), "John", "Smith", &dob, "M", "U18",
			"Ottawa", "CA", "K1A0B1", "john.smith@x.com", "6135551234", registered, "season-import").
		AddRow(int64(2), "Jane", "Doe", (*time.Time)(nil), "F", "",
			"", "", "", "", "", registered, "season-import")

	mock.ExpectQuery(`FROM raw_records\s+WHERE canonical_id IS NULL`).
		WillReturnRows(rows)

	recs, err := s.UnprocessedRawRecords(context.Background())
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, int64(1), recs[0].ID)
	assert.Equal(t, "John", recs[0].FirstName)
	assert.True(t, dob.Equal(recs[0].DateOfBirth))
	// NULL birth date scans to the zero time.
	assert.True(t, recs[1].DateOfBirth.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CanonicalEntities(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	dob := time.Date(1990, time.May, 1, 0, 0, 0, 0, time.UTC)
	cohort := time.Date(2023, time.January, 1, 0, 0, 0, 0, time.UTC)
	lastPeriod := time.Date(2023, time.September, 1, 0, 0, 0, 0, time.UTC)
	lastAt := time.Date(2023, time.September, 5, 12, 0, 0, 0, time.UTC)
	rows := pgxmock.NewRows([]string{
		"id", "first_name", "last_name", "date_of_birth", "sex",
		"city", "country", "postal_code", "email", "phone",
		"cohort", "last_registration_period", "last_registered_at",
	}).AddRow(int64(5), "John", "Smith", &dob, "M",
		"Ottawa", "CA", "K1A0B1", "john.smith@x.com", "6135551234",
		cohort, lastPeriod, lastAt)

	mock.ExpectQuery(`FROM canonical_entities\s+ORDER BY id`).
		WillReturnRows(rows)

	ents, err := s.CanonicalEntities(context.Background())
	require.NoError(t, err)
	require.Len(t, ents, 1)
	assert.Equal(t, int64(5), ents[0].ID)
	assert.Equal(t, model.Period{Year: 2023, Month: time.January}, ents[0].Cohort)
	assert.Equal(t, model.Period{Year: 2023, Month: time.September}, ents[0].LastRegistrationPeriod)
	assert.True(t, lastAt.Equal(ents[0].LastRegisteredAt))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Counts(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`count\(\*\) FROM raw_records WHERE canonical_id IS NULL`).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(3)))
	mock.ExpectQuery(`count\(\*\) FROM raw_records WHERE canonical_id IS NOT NULL`).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(7)))
	mock.ExpectQuery(`count\(\*\) FROM canonical_entities`).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(4)))

	counts, err := s.Counts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Counts{Unprocessed: 3, Linked: 7, Canonical: 4}, counts)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListRuns_DefaultLimit(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	started := time.Date(2023, time.January, 1, 10, 0, 0, 0, time.UTC)
	rows := pgxmock.NewRows([]string{"id", "kind", "dry_run", "started_at", "finished_at", "summary"}).
		AddRow("run-1", "match", false, started, started.Add(5*time.Second), []byte(`{"created":1}`))

	mock.ExpectQuery(`FROM match_runs\s+ORDER BY started_at DESC`).
		WithArgs(20).
		WillReturnRows(rows)

	runs, err := s.ListRuns(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "run-1", runs[0].ID)
	assert.Equal(t, model.RunKindMatch, runs[0].Kind)
	assert.JSONEq(t, `{"created":1}`, string(runs[0].Summary))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_RunTx_CommitsOnSuccess(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO canonical_entities`).
		WithArgs(
			"John", "Smith", pgxmock.AnyArg(), "M",
			"Ottawa", "CA", "K1A0B1", "john.smith@x.com", "6135551234",
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
		).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(42)))
	mock.ExpectExec(`UPDATE raw_records SET canonical_id = \$1`).
		WithArgs(int64(42), []int64{1, 2}).
		WillReturnResult(pgxmock.NewResult("UPDATE", 2))
	mock.ExpectExec(`INSERT INTO match_runs`).
		WithArgs("run-1", "match", false, pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	ctx := context.Background()
	err := s.RunTx(ctx, func(tx Tx) error {
		id, txErr := tx.CreateCanonical(ctx, sampleEntity())
		if txErr != nil {
			return txErr
		}
		require.Equal(t, int64(42), id)
		if txErr := tx.LinkRawRecords(ctx, []int64{1, 2}, id); txErr != nil {
			return txErr
		}
		return tx.InsertRun(ctx, RunRecord{
			ID:         "run-1",
			Kind:       model.RunKindMatch,
			StartedAt:  time.Now().UTC(),
			FinishedAt: time.Now().UTC(),
			Summary:    []byte(`{}`),
		})
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_RunTx_RollsBackOnError(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO canonical_entities`).
		WillReturnError(eris.New("constraint violation"))
	mock.ExpectRollback()

	ctx := context.Background()
	err := s.RunTx(ctx, func(tx Tx) error {
		_, txErr := tx.CreateCanonical(ctx, sampleEntity())
		return txErr
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "create canonical entity")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpdateCanonical_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE canonical_entities SET`).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectRollback()

	ctx := context.Background()
	ent := sampleEntity()
	ent.ID = 99
	err := s.RunTx(ctx, func(tx Tx) error {
		return tx.UpdateCanonical(ctx, ent)
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UnlinkAndDelete(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE raw_records SET canonical_id = NULL`).
		WithArgs(int64(9)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 3))
	mock.ExpectExec(`DELETE FROM canonical_entities`).
		WithArgs(int64(9)).
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectCommit()

	ctx := context.Background()
	err := s.RunTx(ctx, func(tx Tx) error {
		n, txErr := tx.UnlinkByCanonical(ctx, 9)
		if txErr != nil {
			return txErr
		}
		assert.Equal(t, int64(3), n)
		return tx.DeleteCanonical(ctx, 9)
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
