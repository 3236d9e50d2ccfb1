package store

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/clubops/registry-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite. Dates are stored as
// "2006-01-02" text, timestamps as RFC 3339 text.
type SQLiteStore struct {
	db *sql.DB
}

const (
	sqliteDateLayout = "2006-01-02"
	sqliteTimeLayout = time.RFC3339Nano
)

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS canonical_entities (
	id                       INTEGER PRIMARY KEY AUTOINCREMENT,
	first_name               TEXT NOT NULL DEFAULT '',
	last_name                TEXT NOT NULL DEFAULT '',
	date_of_birth            TEXT,
	sex                      TEXT NOT NULL DEFAULT '',
	city                     TEXT NOT NULL DEFAULT '',
	country                  TEXT NOT NULL DEFAULT '',
	postal_code              TEXT NOT NULL DEFAULT '',
	email                    TEXT NOT NULL DEFAULT '',
	phone                    TEXT NOT NULL DEFAULT '',
	cohort                   TEXT NOT NULL,
	last_registration_period TEXT NOT NULL,
	last_registered_at       TEXT NOT NULL,
	created_at               TEXT NOT NULL DEFAULT (datetime('now')),
	updated_at               TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS raw_records (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	first_name    TEXT NOT NULL DEFAULT '',
	last_name     TEXT NOT NULL DEFAULT '',
	date_of_birth TEXT,
	sex           TEXT NOT NULL DEFAULT '',
	category      TEXT NOT NULL DEFAULT '',
	city          TEXT NOT NULL DEFAULT '',
	country       TEXT NOT NULL DEFAULT '',
	postal_code   TEXT NOT NULL DEFAULT '',
	email         TEXT NOT NULL DEFAULT '',
	phone         TEXT NOT NULL DEFAULT '',
	registered_at TEXT NOT NULL,
	source_id     TEXT NOT NULL DEFAULT '',
	canonical_id  INTEGER REFERENCES canonical_entities(id)
);

CREATE TABLE IF NOT EXISTS match_runs (
	id          TEXT PRIMARY KEY,
	kind        TEXT NOT NULL,
	dry_run     INTEGER NOT NULL DEFAULT 0,
	started_at  TEXT NOT NULL,
	finished_at TEXT NOT NULL,
	summary     TEXT
);

CREATE INDEX IF NOT EXISTS idx_raw_records_canonical_id ON raw_records(canonical_id);
CREATE INDEX IF NOT EXISTS idx_match_runs_started_at ON match_runs(started_at);
`

// Migrate applies the schema.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// InsertRawRecord inserts a raw record. Exposed for local fixture loading
// and tests; production ingestion writes the table directly.
func (s *SQLiteStore) InsertRawRecord(ctx context.Context, r model.RawRecord) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO raw_records (
			first_name, last_name, date_of_birth, sex, category, city, country,
			postal_code, email, phone, registered_at, source_id, canonical_id
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.FirstName, r.LastName, sqliteDate(r.DateOfBirth), r.Sex, r.Category,
		r.City, r.Country, r.PostalCode, r.Email, r.Phone,
		r.RegisteredAt.UTC().Format(sqliteTimeLayout), r.SourceID, r.CanonicalID,
	)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: insert raw record")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: raw record id")
	}
	return id, nil
}

// UnprocessedRawRecords returns raw records with no linked canonical entity.
func (s *SQLiteStore) UnprocessedRawRecords(ctx context.Context) ([]model.RawRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, first_name, last_name, date_of_birth, sex, category, city,
		       country, postal_code, email, phone, registered_at, source_id
		FROM raw_records
		WHERE canonical_id IS NULL
		ORDER BY id`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: query unprocessed raw records")
	}
	defer rows.Close()

	var recs []model.RawRecord
	for rows.Next() {
		var r model.RawRecord
		var dob sql.NullString
		var registered string
		if err := rows.Scan(
			&r.ID, &r.FirstName, &r.LastName, &dob, &r.Sex, &r.Category,
			&r.City, &r.Country, &r.PostalCode, &r.Email, &r.Phone,
			&registered, &r.SourceID,
		); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan raw record")
		}
		if r.DateOfBirth, err = parseSQLiteDate(dob); err != nil {
			return nil, err
		}
		if r.RegisteredAt, err = parseSQLiteTime(registered); err != nil {
			return nil, err
		}
		recs = append(recs, r)
	}
	return recs, eris.Wrap(rows.Err(), "sqlite: iterate raw records")
}

// CanonicalEntities returns the full canonical population.
func (s *SQLiteStore) CanonicalEntities(ctx context.Context) ([]model.CanonicalEntity, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, first_name, last_name, date_of_birth, sex, city, country,
		       postal_code, email, phone, cohort, last_registration_period, last_registered_at
		FROM canonical_entities
		ORDER BY id`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: query canonical entities")
	}
	defer rows.Close()

	var ents []model.CanonicalEntity
	for rows.Next() {
		var e model.CanonicalEntity
		var dob sql.NullString
		var cohort, lastPeriod, lastAt string
		if err := rows.Scan(
			&e.ID, &e.FirstName, &e.LastName, &dob, &e.Sex,
			&e.City, &e.Country, &e.PostalCode, &e.Email, &e.Phone,
			&cohort, &lastPeriod, &lastAt,
		); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan canonical entity")
		}
		if e.DateOfBirth, err = parseSQLiteDate(dob); err != nil {
			return nil, err
		}
		cohortT, err := time.Parse(sqliteDateLayout, cohort)
		if err != nil {
			return nil, eris.Wrapf(err, "sqlite: parse cohort %q", cohort)
		}
		lastPeriodT, err := time.Parse(sqliteDateLayout, lastPeriod)
		if err != nil {
			return nil, eris.Wrapf(err, "sqlite: parse last period %q", lastPeriod)
		}
		if e.LastRegisteredAt, err = parseSQLiteTime(lastAt); err != nil {
			return nil, err
		}
		e.Cohort = model.PeriodOf(cohortT)
		e.LastRegistrationPeriod = model.PeriodOf(lastPeriodT)
		ents = append(ents, e)
	}
	return ents, eris.Wrap(rows.Err(), "sqlite: iterate canonical entities")
}

// Counts reports store population totals.
func (s *SQLiteStore) Counts(ctx context.Context) (Counts, error) {
	var c Counts
	row := s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT count(*) FROM raw_records WHERE canonical_id IS NULL),
			(SELECT count(*) FROM raw_records WHERE canonical_id IS NOT NULL),
			(SELECT count(*) FROM canonical_entities)`)
	if err := row.Scan(&c.Unprocessed, &c.Linked, &c.Canonical); err != nil {
		return c, eris.Wrap(err, "sqlite: counts")
	}
	return c, nil
}

// ListRuns returns the most recent recorded runs.
func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, kind, dry_run, started_at, finished_at, summary
		FROM match_runs
		ORDER BY started_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: query runs")
	}
	defer rows.Close()

	var runs []RunRecord
	for rows.Next() {
		var r RunRecord
		var started, finished string
		var summary sql.NullString
		if err := rows.Scan(&r.ID, &r.Kind, &r.DryRun, &started, &finished, &summary); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan run")
		}
		if r.StartedAt, err = parseSQLiteTime(started); err != nil {
			return nil, err
		}
		if r.FinishedAt, err = parseSQLiteTime(finished); err != nil {
			return nil, err
		}
		if summary.Valid {
			r.Summary = []byte(summary.String)
		}
		runs = append(runs, r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: iterate runs")
}

// RunTx runs fn inside one transaction.
func (s *SQLiteStore) RunTx(ctx context.Context, fn func(tx Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin tx")
	}
	defer sqlTx.Rollback() //nolint:errcheck

	if err := fn(&sqliteTx{tx: sqlTx}); err != nil {
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return eris.Wrap(err, "sqlite: commit tx")
	}
	return nil
}

type sqliteTx struct {
	tx *sql.Tx
}

func (t *sqliteTx) CreateCanonical(ctx context.Context, e model.CanonicalEntity) (int64, error) {
	res, err := t.tx.ExecContext(ctx, `
		INSERT INTO canonical_entities (
			first_name, last_name, date_of_birth, sex, city, country, postal_code,
			email, phone, cohort, last_registration_period, last_registered_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.FirstName, e.LastName, sqliteDate(e.DateOfBirth), e.Sex,
		e.City, e.Country, e.PostalCode, e.Email, e.Phone,
		e.Cohort.Time().Format(sqliteDateLayout),
		e.LastRegistrationPeriod.Time().Format(sqliteDateLayout),
		e.LastRegisteredAt.UTC().Format(sqliteTimeLayout),
	)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: create canonical entity")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: canonical entity id")
	}
	return id, nil
}

func (t *sqliteTx) UpdateCanonical(ctx context.Context, e model.CanonicalEntity) error {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE canonical_entities SET
			first_name = ?, last_name = ?, date_of_birth = ?, sex = ?,
			city = ?, country = ?, postal_code = ?, email = ?, phone = ?,
			cohort = ?, last_registration_period = ?, last_registered_at = ?,
			updated_at = datetime('now')
		WHERE id = ?`,
		e.FirstName, e.LastName, sqliteDate(e.DateOfBirth), e.Sex,
		e.City, e.Country, e.PostalCode, e.Email, e.Phone,
		e.Cohort.Time().Format(sqliteDateLayout),
		e.LastRegistrationPeriod.Time().Format(sqliteDateLayout),
		e.LastRegisteredAt.UTC().Format(sqliteTimeLayout),
		e.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update canonical entity %d", e.ID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: update rows affected")
	}
	if n == 0 {
		return eris.Errorf("sqlite: canonical entity %d not found", e.ID)
	}
	return nil
}

func (t *sqliteTx) LinkRawRecords(ctx context.Context, recordIDs []int64, canonicalID int64) error {
	if len(recordIDs) == 0 {
		return nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(recordIDs)), ",")
	args := make([]any, 0, len(recordIDs)+1)
	args = append(args, canonicalID)
	for _, id := range recordIDs {
		args = append(args, id)
	}
	_, err := t.tx.ExecContext(ctx,
		`UPDATE raw_records SET canonical_id = ? WHERE id IN (`+placeholders+`)`, args...)
	if err != nil {
		return eris.Wrapf(err, "sqlite: link raw records to %d", canonicalID)
	}
	return nil
}

func (t *sqliteTx) UnlinkByCanonical(ctx context.Context, canonicalID int64) (int64, error) {
	res, err := t.tx.ExecContext(ctx,
		`UPDATE raw_records SET canonical_id = NULL WHERE canonical_id = ?`, canonicalID)
	if err != nil {
		return 0, eris.Wrapf(err, "sqlite: unlink raw records of %d", canonicalID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: unlink rows affected")
	}
	return n, nil
}

func (t *sqliteTx) DeleteCanonical(ctx context.Context, id int64) error {
	_, err := t.tx.ExecContext(ctx, `DELETE FROM canonical_entities WHERE id = ?`, id)
	return eris.Wrapf(err, "sqlite: delete canonical entity %d", id)
}

func (t *sqliteTx) InsertRun(ctx context.Context, r RunRecord) error {
	var summary any
	if len(r.Summary) > 0 {
		summary = string(r.Summary)
	}
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO match_runs (id, kind, dry_run, started_at, finished_at, summary)
		VALUES (?, ?, ?, ?, ?, ?)`,
		r.ID, string(r.Kind), r.DryRun,
		r.StartedAt.UTC().Format(sqliteTimeLayout),
		r.FinishedAt.UTC().Format(sqliteTimeLayout),
		summary,
	)
	return eris.Wrap(err, "sqlite: insert run")
}

func sqliteDate(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.Format(sqliteDateLayout)
}

func parseSQLiteDate(v sql.NullString) (time.Time, error) {
	if !v.Valid || v.String == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(sqliteDateLayout, v.String)
	if err != nil {
		return time.Time{}, eris.Wrapf(err, "sqlite: parse date %q", v.String)
	}
	return t, nil
}

func parseSQLiteTime(v string) (time.Time, error) {
	t, err := time.Parse(sqliteTimeLayout, v)
	if err != nil {
		return time.Time{}, eris.Wrapf(err, "sqlite: parse timestamp %q", v)
	}
	return t, nil
}
