package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/adscout/adscout-cli/internal/model"
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
CREATE TABLE IF NOT EXISTS adverts (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	url         TEXT NOT NULL,
	image_url   TEXT NOT NULL DEFAULT '',
	description TEXT NOT NULL,
	type        TEXT NOT NULL,
	year        TEXT NOT NULL,
	price       TEXT NOT NULL DEFAULT '',
	status      TEXT NOT NULL DEFAULT 'active',
	created_at  DATETIME NOT NULL DEFAULT (datetime('now')),
	expired_at  DATETIME
);

CREATE INDEX IF NOT EXISTS idx_adverts_natural_key
	ON adverts (description, type, year) WHERE status = 'active';
CREATE INDEX IF NOT EXISTS idx_adverts_status ON adverts (status);

CREATE TABLE IF NOT EXISTS scrape_runs (
	id           TEXT PRIMARY KEY,
	status       TEXT NOT NULL DEFAULT 'running',
	rows_seen    INTEGER NOT NULL DEFAULT 0,
	rows_skipped INTEGER NOT NULL DEFAULT 0,
	inserted     INTEGER NOT NULL DEFAULT 0,
	reaffirmed   INTEGER NOT NULL DEFAULT 0,
	expired      INTEGER NOT NULL DEFAULT 0,
	error        TEXT,
	started_at   DATETIME NOT NULL DEFAULT (datetime('now')),
	completed_at DATETIME
);

CREATE INDEX IF NOT EXISTS idx_scrape_runs_started_at ON scrape_runs (started_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, sqliteMigration); err != nil {
		return eris.Wrap(err, "sqlite: migrate")
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) FindActiveID(ctx context.Context, description, typ, year string) (int64, bool, error) {
	var id int64
	err := s.db.QueryRowContext(ctx,
		`SELECT id FROM adverts
		 WHERE description = ? AND type = ? AND year = ? AND status = 'active'
		 ORDER BY id LIMIT 1`,
		description, typ, year,
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, eris.Wrap(err, "sqlite: find active advert")
	}
	return id, true, nil
}

func (s *SQLiteStore) InsertAdvert(ctx context.Context, c model.Candidate) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO adverts (url, image_url, description, type, year, price, status)
		 VALUES (?, ?, ?, ?, ?, ?, 'active')`,
		c.URL, c.ImageURL, c.Description, c.Type, c.Year, c.Price,
	)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: insert advert")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: insert advert id")
	}
	return id, nil
}

func (s *SQLiteStore) ExpireAllExcept(ctx context.Context, survivorIDs []int64) (int64, error) {
	if len(survivorIDs) == 0 {
		return 0, eris.New("sqlite: refusing to expire with empty survivor set")
	}

	placeholders := make([]string, len(survivorIDs))
	args := make([]any, len(survivorIDs))
	for i, id := range survivorIDs {
		placeholders[i] = "?"
		args[i] = id
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE adverts SET status = 'expired', expired_at = datetime('now')
		 WHERE status = 'active' AND id NOT IN (`+strings.Join(placeholders, ", ")+`)`,
		args...,
	)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: expire adverts")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: expire rows affected")
	}
	return n, nil
}

func (s *SQLiteStore) CountByStatus(ctx context.Context) (map[model.AdvertStatus]int64, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM adverts GROUP BY status`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: count by status")
	}
	defer rows.Close()

	counts := make(map[model.AdvertStatus]int64)
	for rows.Next() {
		var status string
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan status count")
		}
		counts[model.AdvertStatus(status)] = n
	}
	return counts, rows.Err()
}

func (s *SQLiteStore) ListRecent(ctx context.Context, limit int) ([]model.Advert, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, url, image_url, description, type, year, price, status, created_at, expired_at
		 FROM adverts ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list recent adverts")
	}
	defer rows.Close()

	var adverts []model.Advert
	for rows.Next() {
		var a model.Advert
		var createdAt string
		var expiredAt *string
		if err := rows.Scan(&a.ID, &a.URL, &a.ImageURL, &a.Description,
			&a.Type, &a.Year, &a.Price, &a.Status, &createdAt, &expiredAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan advert")
		}
		if a.CreatedAt, err = parseSQLiteTime(createdAt); err != nil {
			return nil, eris.Wrapf(err, "sqlite: advert %d created_at", a.ID)
		}
		if expiredAt != nil {
			t, err := parseSQLiteTime(*expiredAt)
			if err != nil {
				return nil, eris.Wrapf(err, "sqlite: advert %d expired_at", a.ID)
			}
			a.ExpiredAt = &t
		}
		adverts = append(adverts, a)
	}
	return adverts, rows.Err()
}

func (s *SQLiteStore) CreateScrapeRun(ctx context.Context) (string, error) {
	id := uuid.New().String()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO scrape_runs (id, status) VALUES (?, 'running')`, id)
	if err != nil {
		return "", eris.Wrap(err, "sqlite: create scrape run")
	}
	return id, nil
}

func (s *SQLiteStore) CompleteScrapeRun(ctx context.Context, runID string, c model.Counters) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE scrape_runs SET
			status = 'completed',
			rows_seen = ?,
			rows_skipped = ?,
			inserted = ?,
			reaffirmed = ?,
			expired = ?,
			completed_at = datetime('now')
		WHERE id = ?`,
		c.RowsSeen, c.RowsSkipped, c.Inserted, c.Reaffirmed, c.Expired, runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: complete scrape run %s", runID)
	}
	return nil
}

func (s *SQLiteStore) FailScrapeRun(ctx context.Context, runID string, errMsg string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE scrape_runs SET status = 'failed', error = ?, completed_at = datetime('now') WHERE id = ?`,
		errMsg, runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: fail scrape run %s", runID)
	}
	return nil
}

func (s *SQLiteStore) ListScrapeRuns(ctx context.Context, limit int) ([]model.ScrapeRun, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, status, rows_seen, rows_skipped, inserted, reaffirmed, expired, error, started_at, completed_at
		 FROM scrape_runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list scrape runs")
	}
	defer rows.Close()

	var runs []model.ScrapeRun
	for rows.Next() {
		var r model.ScrapeRun
		var errMsg *string
		var startedAt string
		var completedAt *string
		if err := rows.Scan(&r.ID, &r.Status, &r.RowsSeen, &r.RowsSkipped,
			&r.Inserted, &r.Reaffirmed, &r.Expired, &errMsg, &startedAt, &completedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan scrape run")
		}
		if errMsg != nil {
			r.Error = *errMsg
		}
		if r.StartedAt, err = parseSQLiteTime(startedAt); err != nil {
			return nil, eris.Wrapf(err, "sqlite: run %s started_at", r.ID)
		}
		if completedAt != nil {
			t, err := parseSQLiteTime(*completedAt)
			if err != nil {
				return nil, eris.Wrapf(err, "sqlite: run %s completed_at", r.ID)
			}
			r.CompletedAt = &t
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// parseSQLiteTime handles the datetime('now') text format.
func parseSQLiteTime(s string) (time.Time, error) {
	for _, layout := range []string{"2006-01-02 15:04:05", time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, eris.Errorf("sqlite: unparseable timestamp %q", s)
}
