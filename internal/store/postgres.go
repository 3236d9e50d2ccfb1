package store

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/clubops/registry-cli/internal/db"
	"github.com/clubops/registry-cli/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
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

// NewPostgresWithPool wraps an existing pool. Used by tests to inject pgxmock.
func NewPostgresWithPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool, closeFn: pool.Close}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS canonical_entities (
	id                       BIGSERIAL PRIMARY KEY,
	first_name               TEXT NOT NULL DEFAULT '',
	last_name                TEXT NOT NULL DEFAULT '',
	date_of_birth            DATE,
	sex                      TEXT NOT NULL DEFAULT '',
	city                     TEXT NOT NULL DEFAULT '',
	country                  TEXT NOT NULL DEFAULT '',
	postal_code              TEXT NOT NULL DEFAULT '',
	email                    TEXT NOT NULL DEFAULT '',
	phone                    TEXT NOT NULL DEFAULT '',
	cohort                   DATE NOT NULL,
	last_registration_period DATE NOT NULL,
	last_registered_at       TIMESTAMPTZ NOT NULL,
	created_at               TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at               TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS raw_records (
	id            BIGSERIAL PRIMARY KEY,
	first_name    TEXT NOT NULL DEFAULT '',
	last_name     TEXT NOT NULL DEFAULT '',
	date_of_birth DATE,
	sex           TEXT NOT NULL DEFAULT '',
	category      TEXT NOT NULL DEFAULT '',
	city          TEXT NOT NULL DEFAULT '',
	country       TEXT NOT NULL DEFAULT '',
	postal_code   TEXT NOT NULL DEFAULT '',
	email         TEXT NOT NULL DEFAULT '',
	phone         TEXT NOT NULL DEFAULT '',
	registered_at TIMESTAMPTZ NOT NULL,
	source_id     TEXT NOT NULL DEFAULT '',
	canonical_id  BIGINT REFERENCES canonical_entities(id)
);

CREATE TABLE IF NOT EXISTS match_runs (
	id          TEXT PRIMARY KEY,
	kind        TEXT NOT NULL,
	dry_run     BOOLEAN NOT NULL DEFAULT false,
	started_at  TIMESTAMPTZ NOT NULL,
	finished_at TIMESTAMPTZ NOT NULL,
	summary     JSONB
);

CREATE INDEX IF NOT EXISTS idx_raw_records_canonical_id ON raw_records(canonical_id);
CREATE INDEX IF NOT EXISTS idx_raw_records_unprocessed ON raw_records(id) WHERE canonical_id IS NULL;
CREATE INDEX IF NOT EXISTS idx_match_runs_started_at ON match_runs(started_at);
`

// Migrate applies the schema.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, postgresMigration); err != nil {
		return eris.Wrap(err, "postgres: migrate")
	}
	return nil
}

// Close releases the connection pool.
func (s *PostgresStore) Close() error {
	s.closeFn()
	return nil
}

const selectUnprocessedSQL = `
SELECT id, first_name, last_name, date_of_birth, sex, category, city, country,
       postal_code, email, phone, registered_at, source_id
FROM raw_records
WHERE canonical_id IS NULL
ORDER BY id`

// UnprocessedRawRecords returns raw records with no linked canonical entity.
func (s *PostgresStore) UnprocessedRawRecords(ctx context.Context) ([]model.RawRecord, error) {
	rows, err := s.pool.Query(ctx, selectUnprocessedSQL)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: query unprocessed raw records")
	}
	defer rows.Close()

	var recs []model.RawRecord
	for rows.Next() {
		var r model.RawRecord
		var dob *time.Time
		if err := rows.Scan(
			&r.ID, &r.FirstName, &r.LastName, &dob, &r.Sex, &r.Category,
			&r.City, &r.Country, &r.PostalCode, &r.Email, &r.Phone,
			&r.RegisteredAt, &r.SourceID,
		); err != nil {
			return nil, eris.Wrap(err, "postgres: scan raw record")
		}
		if dob != nil {
			r.DateOfBirth = *dob
		}
		recs = append(recs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: iterate raw records")
	}
	return recs, nil
}

const selectCanonicalSQL = `
SELECT id, first_name, last_name, date_of_birth, sex, city, country,
       postal_code, email, phone, cohort, last_registration_period, last_registered_at
FROM canonical_entities
ORDER BY id`

// CanonicalEntities returns the full canonical population.
func (s *PostgresStore) CanonicalEntities(ctx context.Context) ([]model.CanonicalEntity, error) {
	rows, err := s.pool.Query(ctx, selectCanonicalSQL)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: query canonical entities")
	}
	defer rows.Close()

	var ents []model.CanonicalEntity
	for rows.Next() {
		e, err := scanCanonicalPg(rows)
		if err != nil {
			return nil, err
		}
		ents = append(ents, e)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: iterate canonical entities")
	}
	return ents, nil
}

func scanCanonicalPg(row pgx.Row) (model.CanonicalEntity, error) {
	var e model.CanonicalEntity
	var dob *time.Time
	var cohort, lastPeriod time.Time
	if err := row.Scan(
		&e.ID, &e.FirstName, &e.LastName, &dob, &e.Sex,
		&e.City, &e.Country, &e.PostalCode, &e.Email, &e.Phone,
		&cohort, &lastPeriod, &e.LastRegisteredAt,
	); err != nil {
		return model.CanonicalEntity{}, eris.Wrap(err, "postgres: scan canonical entity")
	}
	if dob != nil {
		e.DateOfBirth = *dob
	}
	e.Cohort = model.PeriodOf(cohort)
	e.LastRegistrationPeriod = model.PeriodOf(lastPeriod)
	return e, nil
}

// Counts reports store population totals.
func (s *PostgresStore) Counts(ctx context.Context) (Counts, error) {
	var c Counts
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM raw_records WHERE canonical_id IS NULL`).Scan(&c.Unprocessed); err != nil {
		return c, eris.Wrap(err, "postgres: count unprocessed")
	}
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM raw_records WHERE canonical_id IS NOT NULL`).Scan(&c.Linked); err != nil {
		return c, eris.Wrap(err, "postgres: count linked")
	}
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM canonical_entities`).Scan(&c.Canonical); err != nil {
		return c, eris.Wrap(err, "postgres: count canonical")
	}
	return c, nil
}

const listRunsSQL = `
SELECT id, kind, dry_run, started_at, finished_at, summary
FROM match_runs
ORDER BY started_at DESC
LIMIT $1`

// ListRuns returns the most recent recorded runs.
func (s *PostgresStore) ListRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.pool.Query(ctx, listRunsSQL, limit)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: query runs")
	}
	defer rows.Close()

	var runs []RunRecord
	for rows.Next() {
		var r RunRecord
		if err := rows.Scan(&r.ID, &r.Kind, &r.DryRun, &r.StartedAt, &r.FinishedAt, &r.Summary); err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: iterate runs")
	}
	return runs, nil
}

// RunTx runs fn inside one transaction.
func (s *PostgresStore) RunTx(ctx context.Context, fn func(tx Tx) error) error {
	pgtx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin tx")
	}
	defer pgtx.Rollback(ctx) //nolint:errcheck

	if err := fn(&postgresTx{tx: pgtx}); err != nil {
		return err
	}
	if err := pgtx.Commit(ctx); err != nil {
		return eris.Wrap(err, "postgres: commit tx")
	}
	return nil
}

type postgresTx struct {
	tx pgx.Tx
}

const insertCanonicalSQL = `
INSERT INTO canonical_entities (
	first_name, last_name, date_of_birth, sex, city, country, postal_code,
	email, phone, cohort, last_registration_period, last_registered_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
RETURNING id`

func (t *postgresTx) CreateCanonical(ctx context.Context, e model.CanonicalEntity) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, insertCanonicalSQL,
		e.FirstName, e.LastName, nullDate(e.DateOfBirth), e.Sex,
		e.City, e.Country, e.PostalCode, e.Email, e.Phone,
		e.Cohort.Time(), e.LastRegistrationPeriod.Time(), e.LastRegisteredAt,
	).Scan(&id)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: create canonical entity")
	}
	return id, nil
}

const updateCanonicalSQL = `
UPDATE canonical_entities SET
	first_name = $1, last_name = $2, date_of_birth = $3, sex = $4,
	city = $5, country = $6, postal_code = $7, email = $8, phone = $9,
	cohort = $10, last_registration_period = $11, last_registered_at = $12,
	updated_at = now()
WHERE id = $13`

func (t *postgresTx) UpdateCanonical(ctx context.Context, e model.CanonicalEntity) error {
	tag, err := t.tx.Exec(ctx, updateCanonicalSQL,
		e.FirstName, e.LastName, nullDate(e.DateOfBirth), e.Sex,
		e.City, e.Country, e.PostalCode, e.Email, e.Phone,
		e.Cohort.Time(), e.LastRegistrationPeriod.Time(), e.LastRegisteredAt,
		e.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update canonical entity %d", e.ID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("postgres: canonical entity %d not found", e.ID)
	}
	return nil
}

func (t *postgresTx) LinkRawRecords(ctx context.Context, recordIDs []int64, canonicalID int64) error {
	if len(recordIDs) == 0 {
		return nil
	}
	_, err := t.tx.Exec(ctx,
		`UPDATE raw_records SET canonical_id = $1 WHERE id = ANY($2)`,
		canonicalID, recordIDs,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: link raw records to %d", canonicalID)
	}
	return nil
}

func (t *postgresTx) UnlinkByCanonical(ctx context.Context, canonicalID int64) (int64, error) {
	tag, err := t.tx.Exec(ctx,
		`UPDATE raw_records SET canonical_id = NULL WHERE canonical_id = $1`,
		canonicalID,
	)
	if err != nil {
		return 0, eris.Wrapf(err, "postgres: unlink raw records of %d", canonicalID)
	}
	return tag.RowsAffected(), nil
}

func (t *postgresTx) DeleteCanonical(ctx context.Context, id int64) error {
	_, err := t.tx.Exec(ctx, `DELETE FROM canonical_entities WHERE id = $1`, id)
	if err != nil {
		return eris.Wrapf(err, "postgres: delete canonical entity %d", id)
	}
	return nil
}

func (t *postgresTx) InsertRun(ctx context.Context, r RunRecord) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO match_runs (id, kind, dry_run, started_at, finished_at, summary) VALUES ($1, $2, $3, $4, $5, $6)`,
		r.ID, string(r.Kind), r.DryRun, r.StartedAt, r.FinishedAt, r.Summary,
	)
	if err != nil {
		return eris.Wrap(err, "postgres: insert run")
	}
	return nil
}

// nullDate maps a zero time to NULL for nullable DATE columns.
func nullDate(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
