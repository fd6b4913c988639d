package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sarcastic555/politylink-crawler/internal/clock/system"
	"github.com/sarcastic555/politylink-crawler/internal/crawler"
	"github.com/sarcastic555/politylink-crawler/internal/source/feed"
	"github.com/sarcastic555/politylink-crawler/internal/source/manual"
	"github.com/sarcastic555/politylink-crawler/internal/source/minutes"
	"github.com/sarcastic555/politylink-crawler/internal/source/reuters"
	"github.com/sarcastic555/politylink-crawler/internal/source/sangiintv"
	"github.com/sarcastic555/politylink-crawler/internal/source/table"
)

func newCrawlCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Run one source, or every scheduled source with `crawl all`",
	}
	cmd.AddCommand(
		newMinutesCmd(c),
		newSangiinTVCmd(c),
		newReutersCmd(c),
		newFeedCmd(c),
		newTableCmd(c),
		newManualCmd(c),
		newAllCmd(c),
	)
	return cmd
}

func newMinutesCmd(c *cli) *cobra.Command {
	var cfg minutes.Config
	cmd := &cobra.Command{
		Use:   "minutes",
		Short: "Crawl Diet minutes from the NDL API for a date range",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := c.requireApp()
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("speech") {
				cfg.CollectSpeech = a.Config.Sources.Minutes.CollectSpeech
			}
			src, err := a.MinutesSource(cfg)
			if err != nil {
				return err
			}
			return c.run(cmd.Context(), src)
		},
	}
	cmd.Flags().StringVar(&cfg.StartDate, "start-date", "", "first meeting date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&cfg.EndDate, "end-date", "", "last meeting date (YYYY-MM-DD)")
	cmd.Flags().BoolVar(&cfg.CollectSpeech, "speech", false, "also store one Speech per remark")
	_ = cmd.MarkFlagRequired("start-date")
	_ = cmd.MarkFlagRequired("end-date")
	return cmd
}

func newSangiinTVCmd(c *cli) *cobra.Command {
	var cfg sangiintv.Config
	cmd := &cobra.Command{
		Use:   "sangiin-tv",
		Short: "Probe Sangiin internet TV pages by increasing sid",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := c.requireApp()
			if err != nil {
				return err
			}
			src, err := a.SangiinTVSource(cfg)
			if err != nil {
				return err
			}
			return c.run(cmd.Context(), src)
		},
	}
	cmd.Flags().IntVar(&cfg.NextID, "next-id", -1, "last known sid; negative resumes from the checkpoint or the graph")
	cmd.Flags().IntVar(&cfg.FailureLimit, "failure-limit", 0, "stop after this many missing pages in a row (default from config)")
	return cmd
}

func newReutersCmd(c *cli) *cobra.Command {
	var cfg reuters.Config
	cmd := &cobra.Command{
		Use:   "reuters",
		Short: "Crawl the Reuters politics archive",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := c.requireApp()
			if err != nil {
				return err
			}
			src, err := a.ReutersSource(cfg)
			if err != nil {
				return err
			}
			return c.run(cmd.Context(), src)
		},
	}
	cmd.Flags().IntVar(&cfg.Limit, "limit", 0, "stop after this many article links (default from config)")
	return cmd
}

func newFeedCmd(c *cli) *cobra.Command {
	var cfg feed.Config
	cmd := &cobra.Command{
		Use:   "feed",
		Short: "Crawl the articles of an RSS or Atom feed",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := c.requireApp()
			if err != nil {
				return err
			}
			src, err := a.FeedSource(cfg)
			if err != nil {
				return err
			}
			return c.run(cmd.Context(), src)
		},
	}
	cmd.Flags().StringVar(&cfg.URL, "url", "", "feed URL")
	cmd.Flags().StringVar(&cfg.Publisher, "publisher", "", "publisher stored on each News")
	cmd.Flags().IntVar(&cfg.Limit, "limit", 0, "maximum items to save; 0 saves all")
	cmd.Flags().BoolVar(&cfg.IsPaid, "paid", false, "mark articles as paywalled")
	_ = cmd.MarkFlagRequired("url")
	_ = cmd.MarkFlagRequired("publisher")
	return cmd
}

func newTableCmd(c *cli) *cobra.Command {
	var cfg table.Config
	cmd := &cobra.Command{
		Use:   "table",
		Short: "Attach 概要 and 新旧 PDF links from a bill table page",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := c.requireApp()
			if err != nil {
				return err
			}
			src, err := a.TableSource(cfg)
			if err != nil {
				return err
			}
			return c.run(cmd.Context(), src)
		},
	}
	cmd.Flags().StringVar(&cfg.URL, "url", "", "page holding the table")
	cmd.Flags().IntVar(&cfg.TableIdx, "table-idx", 0, "index of the table on the page")
	cmd.Flags().IntVar(&cfg.BillCol, "bill-col", 0, "column holding the bill title")
	cmd.Flags().IntVar(&cfg.URLCol, "url-col", 1, "column holding the links")
	cmd.Flags().BoolVar(&cfg.ReplaceStale, "replace-stale", false, "delete existing references with the same title first")
	_ = cmd.MarkFlagRequired("url")
	return cmd
}

func newManualCmd(c *cli) *cobra.Command {
	var cfg manual.Config
	cmd := &cobra.Command{
		Use:   "manual",
		Short: "Attach hand-curated links listed in a YAML file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := c.requireApp()
			if err != nil {
				return err
			}
			src, err := a.ManualSource(cfg)
			if err != nil {
				return err
			}
			return c.run(cmd.Context(), src)
		},
	}
	cmd.Flags().StringVar(&cfg.File, "file", "", "YAML list of bills and urls")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func newAllCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "all",
		Short: "Run every scheduled source concurrently",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := c.requireApp()
			if err != nil {
				return err
			}
			srcs, err := a.ScheduledSources(system.New().Now())
			if err != nil {
				return err
			}
			// Plain Group: one source failing must not cancel the others.
			var g errgroup.Group
			for _, src := range srcs {
				g.Go(func() error { return c.run(cmd.Context(), src) })
			}
			return g.Wait()
		},
	}
}

// run drives src to completion. Hitting the retry limit and cancellation are
// normal ends of a crawl; anything else is returned.
func (c *cli) run(ctx context.Context, src crawler.Source) error {
	a, err := c.requireApp()
	if err != nil {
		return err
	}
	logger := a.Logger.With(zap.String("source", src.Name()))
	state, err := a.Runner().Run(ctx, src)
	switch {
	case err == nil:
		logger.Info("crawl finished", zap.Int("cursor", state.Cursor), zap.Int("emitted", state.Emitted))
		return nil
	case errors.Is(err, crawler.ErrRetryLimitExceeded):
		logger.Info("crawl reached failure limit", zap.Int("cursor", state.Cursor), zap.Int("emitted", state.Emitted))
		return nil
	case errors.Is(err, context.Canceled):
		logger.Info("crawl interrupted", zap.Int("cursor", state.Cursor))
		return nil
	default:
		return fmt.Errorf("crawl %s: %w", src.Name(), err)
	}
}
