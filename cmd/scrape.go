package main

import (
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/adscout/adscout-cli/internal/notify"
	"github.com/adscout/adscout-cli/internal/pipeline"
	"github.com/adscout/adscout-cli/internal/scrape"
	"github.com/adscout/adscout-cli/pkg/slack"
	"github.com/adscout/adscout-cli/pkg/sscom"
)

var scrapeCmd = &cobra.Command{
	Use:   "scrape",
	Short: "Run one scrape-and-reconcile pass",
	Long: `Fetches the filtered listings page, extracts advert rows, inserts
unseen adverts, reaffirms known ones, and expires adverts absent from the
current page. New adverts are announced on the configured Slack webhook.

Intended to run once per invocation, e.g. from cron. Concurrent runs are
unsupported.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("site"); err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "scrape: migrate store")
		}

		site := sscom.NewClient(
			sscom.WithBaseURL(cfg.Site.BaseURL),
			sscom.WithTimeout(time.Duration(cfg.Site.TimeoutSecs)*time.Second),
		)

		var slackClient slack.Client
		if cfg.Slack.WebhookURL != "" {
			slackClient = slack.NewClient(cfg.Slack.WebhookURL)
		}
		notifier := notify.NewSlackNotifier(slackClient, cfg.Site.BaseURL)

		rec := pipeline.New(st, site, scrape.NewParser(), notifier, siteFilters())

		zap.L().Info("starting scrape", zap.String("base_url", cfg.Site.BaseURL))

		result, err := rec.Run(ctx)
		if err != nil {
			return eris.Wrap(err, "scrape")
		}

		zap.L().Info("scrape complete",
			zap.String("run_id", result.RunID),
			zap.Int("inserted", result.Inserted),
			zap.Int("reaffirmed", result.Reaffirmed),
			zap.Int64("expired", result.Expired),
			zap.Int("rows_skipped", result.Skipped),
		)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(scrapeCmd)
}

// siteFilters maps the configured filter bounds onto the site's form fields.
func siteFilters() sscom.Filters {
	return sscom.Filters{
		Price:    sscom.RangeFilter{Min: cfg.Filters.PriceMin, Max: cfg.Filters.PriceMax},
		Year:     sscom.RangeFilter{Min: cfg.Filters.YearFrom, Max: cfg.Filters.YearTo},
		Engine:   sscom.RangeFilter{Min: cfg.Filters.EngineFrom, Max: cfg.Filters.EngineTo},
		Color:    cfg.Filters.Color,
		BodyType: cfg.Filters.BodyType,
		FuelType: cfg.Filters.FuelType,
		Gearbox:  cfg.Filters.Gearbox,
	}
}
