package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/adscout/adscout-cli/internal/db"
	"github.com/adscout/adscout-cli/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool db.Pool
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}
	pgxCfg.MaxConns = 4
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
	return &PostgresStore{pool: pool}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS adverts (
	id          BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
	url         TEXT NOT NULL,
	image_url   TEXT NOT NULL DEFAULT '',
	description TEXT NOT NULL,
	type        TEXT NOT NULL,
	year        TEXT NOT NULL,
	price       TEXT NOT NULL DEFAULT '',
	status      TEXT NOT NULL DEFAULT 'active',
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	expired_at  TIMESTAMPTZ
);

-- Non-unique on purpose: the natural key is a heuristic identity and
-- duplicates are resolved at read time (lowest id wins).
CREATE INDEX IF NOT EXISTS idx_adverts_natural_key
	ON adverts (description, type, year) WHERE status = 'active';
CREATE INDEX IF NOT EXISTS idx_adverts_status ON adverts (status);

CREATE TABLE IF NOT EXISTS scrape_runs (
	id           TEXT PRIMARY KEY,
	status       TEXT NOT NULL DEFAULT 'running',
	rows_seen    INT NOT NULL DEFAULT 0,
	rows_skipped INT NOT NULL DEFAULT 0,
	inserted     INT NOT NULL DEFAULT 0,
	reaffirmed   INT NOT NULL DEFAULT 0,
	expired      BIGINT NOT NULL DEFAULT 0,
	error        TEXT,
	started_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	completed_at TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_scrape_runs_started_at ON scrape_runs (started_at);
`

// Migrate applies the embedded schema migration.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, postgresMigration); err != nil {
		return eris.Wrap(err, "postgres: migrate")
	}
	return nil
}

// Close releases the connection pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// FindActiveID returns the id of the active advert matching the natural key.
// With duplicate matches the lowest id wins, keeping resolution deterministic.
func (s *PostgresStore) FindActiveID(ctx context.Context, description, typ, year string) (int64, bool, error) {
	var id int64
	err := s.pool.QueryRow(ctx,
		`SELECT id FROM adverts
		 WHERE description = $1 AND type = $2 AND year = $3 AND status = 'active'
		 ORDER BY id LIMIT 1`,
		description, typ, year,
	).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, eris.Wrap(err, "postgres: find active advert")
	}
	return id, true, nil
}

// InsertAdvert persists a new active advert and returns the assigned id.
func (s *PostgresStore) InsertAdvert(ctx context.Context, c model.Candidate) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx,
		`INSERT INTO adverts (url, image_url, description, type, year, price, status)
		 VALUES ($1, $2, $3, $4, $5, $6, 'active')
		 RETURNING id`,
		c.URL, c.ImageURL, c.Description, c.Type, c.Year, c.Price,
	).Scan(&id)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: insert advert")
	}
	return id, nil
}

// ExpireAllExcept flips every active advert whose id is not in survivorIDs
// to expired, in one statement. It refuses an empty survivor set: expiring
// everything because a scrape matched nothing is treated as a transient
// failure, not business truth.
func (s *PostgresStore) ExpireAllExcept(ctx context.Context, survivorIDs []int64) (int64, error) {
	if len(survivorIDs) == 0 {
		return 0, eris.New("postgres: refusing to expire with empty survivor set")
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE adverts SET status = 'expired', expired_at = now()
		 WHERE status = 'active' AND NOT (id = ANY($1))`,
		survivorIDs,
	)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: expire adverts")
	}
	return tag.RowsAffected(), nil
}

// CountByStatus returns the number of adverts per lifecycle status.
func (s *PostgresStore) CountByStatus(ctx context.Context) (map[model.AdvertStatus]int64, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT status, COUNT(*) FROM adverts GROUP BY status`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: count by status")
	}
	defer rows.Close()

	counts := make(map[model.AdvertStatus]int64)
	for rows.Next() {
		var status string
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return nil, eris.Wrap(err, "postgres: scan status count")
		}
		counts[model.AdvertStatus(status)] = n
	}
	return counts, rows.Err()
}

// ListRecent returns the most recently created adverts.
func (s *PostgresStore) ListRecent(ctx context.Context, limit int) ([]model.Advert, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, url, image_url, description, type, year, price, status, created_at, expired_at
		 FROM adverts ORDER BY created_at DESC, id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list recent adverts")
	}
	defer rows.Close()

	return scanAdverts(rows)
}

// CreateScrapeRun inserts a new scrape run record and returns its id.
func (s *PostgresStore) CreateScrapeRun(ctx context.Context) (string, error) {
	id := uuid.New().String()
	_, err := s.pool.Exec(ctx,
		`INSERT INTO scrape_runs (id, status) VALUES ($1, 'running')`, id)
	if err != nil {
		return "", eris.Wrap(err, "postgres: create scrape run")
	}
	return id, nil
}

// CompleteScrapeRun marks a scrape run as completed with its counters.
func (s *PostgresStore) CompleteScrapeRun(ctx context.Context, runID string, c model.Counters) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE scrape_runs SET
			status = 'completed',
			rows_seen = $2,
			rows_skipped = $3,
			inserted = $4,
			reaffirmed = $5,
			expired = $6,
			completed_at = now()
		WHERE id = $1`,
		runID, c.RowsSeen, c.RowsSkipped, c.Inserted, c.Reaffirmed, c.Expired,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: complete scrape run %s", runID)
	}
	return nil
}

// FailScrapeRun marks a scrape run as failed with an error message.
func (s *PostgresStore) FailScrapeRun(ctx context.Context, runID string, errMsg string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE scrape_runs SET status = 'failed', error = $2, completed_at = now() WHERE id = $1`,
		runID, errMsg,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: fail scrape run %s", runID)
	}
	return nil
}

// ListScrapeRuns returns the most recent scrape runs, newest first.
func (s *PostgresStore) ListScrapeRuns(ctx context.Context, limit int) ([]model.ScrapeRun, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, status, rows_seen, rows_skipped, inserted, reaffirmed, expired, error, started_at, completed_at
		 FROM scrape_runs ORDER BY started_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list scrape runs")
	}
	defer rows.Close()

	var runs []model.ScrapeRun
	for rows.Next() {
		var r model.ScrapeRun
		var errMsg *string
		if err := rows.Scan(&r.ID, &r.Status, &r.RowsSeen, &r.RowsSkipped,
			&r.Inserted, &r.Reaffirmed, &r.Expired, &errMsg, &r.StartedAt, &r.CompletedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan scrape run")
		}
		if errMsg != nil {
			r.Error = *errMsg
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

func scanAdverts(rows pgx.Rows) ([]model.Advert, error) {
	var adverts []model.Advert
	for rows.Next() {
		var a model.Advert
		if err := rows.Scan(&a.ID, &a.URL, &a.ImageURL, &a.Description,
			&a.Type, &a.Year, &a.Price, &a.Status, &a.CreatedAt, &a.ExpiredAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan advert")
		}
		adverts = append(adverts, a)
	}
	return adverts, rows.Err()
}
