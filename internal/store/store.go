package store

import (
	"context"

	"github.com/adscout/adscout-cli/internal/model"
)

// Store defines the persistence interface for the reconciliation pipeline.
//
// Advert identity is the natural key (description, type, year) scoped to
// active status. The key is heuristic: the site exposes no stable listing
// id, so two genuinely distinct adverts could in principle collide. No
// uniqueness constraint backs it; the at-most-one-active invariant is
// maintained only by lookup-before-insert in a single-threaded run.
type Store interface {
	// Adverts
	FindActiveID(ctx context.Context, description, typ, year string) (int64, bool, error)
	InsertAdvert(ctx context.Context, c model.Candidate) (int64, error)
	ExpireAllExcept(ctx context.Context, survivorIDs []int64) (int64, error)
	CountByStatus(ctx context.Context) (map[model.AdvertStatus]int64, error)
	ListRecent(ctx context.Context, limit int) ([]model.Advert, error)

	// Scrape runs
	CreateScrapeRun(ctx context.Context) (string, error)
	CompleteScrapeRun(ctx context.Context, runID string, counters model.Counters) error
	FailScrapeRun(ctx context.Context, runID string, errMsg string) error
	ListScrapeRuns(ctx context.Context, limit int) ([]model.ScrapeRun, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
