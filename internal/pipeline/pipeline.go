// Package pipeline orchestrates the scrape-and-reconcile pass.
package pipeline

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/adscout/adscout-cli/internal/model"
	"github.com/adscout/adscout-cli/internal/notify"
	"github.com/adscout/adscout-cli/internal/scrape"
	"github.com/adscout/adscout-cli/internal/store"
	"github.com/adscout/adscout-cli/pkg/sscom"
)

// Reconciler runs one fetch-parse-reconcile pass. Passes must not run
// concurrently: the natural-key dedupe has no uniqueness constraint behind
// it, so overlapping passes could insert duplicates.
type Reconciler struct {
	store    store.Store
	site     sscom.Client
	parser   *scrape.Parser
	notifier notify.Notifier
	filters  sscom.Filters
}

// New creates a Reconciler with all dependencies.
func New(
	st store.Store,
	site sscom.Client,
	parser *scrape.Parser,
	notifier notify.Notifier,
	filters sscom.Filters,
) *Reconciler {
	return &Reconciler{
		store:    st,
		site:     site,
		parser:   parser,
		notifier: notifier,
		filters:  filters,
	}
}

// Result summarizes one completed pass.
type Result struct {
	RunID      string `json:"run_id"`
	RowsSeen   int    `json:"rows_seen"`
	Skipped    int    `json:"rows_skipped"`
	Inserted   int    `json:"inserted"`
	Reaffirmed int    `json:"reaffirmed"`
	Expired    int64  `json:"expired"`
}

// Run executes a single pass: fetch the filtered listings page, parse it,
// upsert-or-reaffirm each candidate, then expire every active advert the
// pass did not reaffirm. Fetch and persistence errors abort the run; the
// expire step never executes on an empty survivor set.
func (r *Reconciler) Run(ctx context.Context) (*Result, error) {
	log := zap.L().With(zap.String("component", "pipeline"))

	runID, err := r.store.CreateScrapeRun(ctx)
	if err != nil {
		// Bookkeeping only; the pass itself can proceed without it.
		log.Warn("failed to create scrape run record", zap.Error(err))
	}

	result, runErr := r.reconcile(ctx, log)
	result.RunID = runID

	if runID != "" {
		if runErr != nil {
			if failErr := r.store.FailScrapeRun(ctx, runID, runErr.Error()); failErr != nil {
				log.Warn("failed to record run failure", zap.Error(failErr))
			}
		} else {
			counters := model.Counters{
				RowsSeen:    result.RowsSeen,
				RowsSkipped: result.Skipped,
				Inserted:    result.Inserted,
				Reaffirmed:  result.Reaffirmed,
				Expired:     result.Expired,
			}
			if completeErr := r.store.CompleteScrapeRun(ctx, runID, counters); completeErr != nil {
				log.Warn("failed to record run completion", zap.Error(completeErr))
			}
		}
	}

	if runErr != nil {
		return result, runErr
	}
	return result, nil
}

func (r *Reconciler) reconcile(ctx context.Context, log *zap.Logger) (*Result, error) {
	result := &Result{}

	html, err := r.site.FetchFiltered(ctx, r.filters)
	if err != nil {
		return result, eris.Wrap(err, "pipeline: fetch listings")
	}

	candidates, stats, err := r.parser.Parse(html)
	if err != nil {
		return result, eris.Wrap(err, "pipeline: parse listings")
	}
	result.RowsSeen = stats.RowsSeen
	result.Skipped = stats.RowsSkipped

	if stats.RowsSkipped > 0 {
		log.Info("skipped rows not matching advert shape",
			zap.Int("rows_skipped", stats.RowsSkipped),
			zap.Int("rows_seen", stats.RowsSeen),
		)
	}

	// Survivor set: ids reaffirmed or newly created this pass.
	survivorIDs := make([]int64, 0, len(candidates))

	for _, c := range candidates {
		description, typ, year := c.NaturalKey()

		id, found, err := r.store.FindActiveID(ctx, description, typ, year)
		if err != nil {
			return result, eris.Wrap(err, "pipeline: dedupe lookup")
		}

		if found {
			// Reaffirmed: keep the original insert's data untouched.
			survivorIDs = append(survivorIDs, id)
			result.Reaffirmed++
			continue
		}

		newID, err := r.store.InsertAdvert(ctx, c)
		if err != nil {
			return result, eris.Wrap(err, "pipeline: insert advert")
		}
		survivorIDs = append(survivorIDs, newID)
		result.Inserted++

		log.Info("new advert",
			zap.Int64("id", newID),
			zap.String("description", c.Description),
			zap.String("price", c.Price),
		)
		r.notifier.NotifyNewAdvert(ctx, c)
	}

	// An empty survivor set usually means a transient empty scrape, not a
	// market that genuinely went dark. Leave existing adverts untouched.
	if len(survivorIDs) == 0 {
		log.Warn("no surviving adverts this pass, skipping expiry",
			zap.Int("rows_seen", result.RowsSeen),
		)
		return result, nil
	}

	expired, err := r.store.ExpireAllExcept(ctx, survivorIDs)
	if err != nil {
		return result, eris.Wrap(err, "pipeline: expire adverts")
	}
	result.Expired = expired

	log.Info("reconcile complete",
		zap.Int("inserted", result.Inserted),
		zap.Int("reaffirmed", result.Reaffirmed),
		zap.Int64("expired", expired),
	)
	return result, nil
}
