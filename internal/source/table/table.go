// Package table reads bill summary and comparison-table links from a bill
// tracking table.
package table

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/sarcastic555/politylink-crawler/internal/crawler"
	"github.com/sarcastic555/politylink-crawler/internal/entity"
	"github.com/sarcastic555/politylink-crawler/internal/source"
)

// Name identifies the source in checkpoints and metrics.
const Name = "table"

// Config locates the table and its columns (0-based).
type Config struct {
	URL      string
	TableIdx int
	BillCol  int
	URLCol   int
	// ReplaceStale deletes a bill's existing references of the same title
	// before storing the new ones.
	ReplaceStale bool
}

// Source implements crawler.Source. It handles a single page.
type Source struct {
	cfg    Config
	deps   source.Deps
	domain string
	logger *zap.Logger
}

var _ crawler.Source = (*Source)(nil)

// New validates cfg and returns a Source.
func New(cfg Config, deps source.Deps) (*Source, error) {
	if err := deps.Validate(); err != nil {
		return nil, err
	}
	u, err := url.Parse(strings.TrimSpace(cfg.URL))
	if err != nil || u.Host == "" {
		return nil, fmt.Errorf("table url %q is not absolute", cfg.URL)
	}
	if cfg.TableIdx < 0 || cfg.BillCol < 0 || cfg.URLCol < 0 {
		return nil, fmt.Errorf("table indexes must not be negative")
	}
	return &Source{cfg: cfg, deps: deps, domain: u.Hostname(), logger: deps.Named(Name)}, nil
}

// Name implements crawler.Source.
func (s *Source) Name() string { return Name }

// Start always begins at the page; there is nothing to resume.
func (s *Source) Start(context.Context, *crawler.State) (crawler.State, error) {
	return crawler.State{}, nil
}

// Row is one bill and its reference links.
type Row struct {
	Bill string
	URLs []entity.URL
}

// Step reads every row of the table. Row failures skip the row.
func (s *Source) Step(ctx context.Context, state crawler.State) (crawler.StepResult, error) {
	resp, err := s.deps.Fetch(ctx, Name, s.cfg.URL)
	if err != nil {
		return crawler.StepResult{Next: state}, fmt.Errorf("fetch %s: %w", s.cfg.URL, err)
	}
	doc, err := source.Document(resp)
	if err != nil {
		return crawler.StepResult{Next: state}, err
	}
	rows, err := s.Rows(doc, resp.URL)
	if err != nil {
		return crawler.StepResult{Next: state}, err
	}

	var stats crawler.Stats
	for _, row := range rows {
		n, err := s.storeRow(ctx, row)
		if err != nil {
			if ctx.Err() != nil {
				return crawler.StepResult{Next: state, Stats: stats}, ctx.Err()
			}
			s.logger.Warn("skipping row", zap.String("bill", row.Bill), zap.Error(err))
			stats.Skipped++
			continue
		}
		if n == 0 {
			stats.Skipped++
			continue
		}
		stats.Merged += len(row.URLs)
		stats.Linked += n
	}
	s.logger.Info("processed table", zap.Int("rows", len(rows)), zap.Int("linked", stats.Linked))
	return crawler.StepResult{Next: crawler.State{Cursor: 1, Emitted: len(rows)}, Done: true, Stats: stats}, nil
}

// Rows extracts the bills that carry at least one recognized link.
func (s *Source) Rows(doc *goquery.Document, pageURL string) ([]Row, error) {
	tables := doc.Find("table")
	if s.cfg.TableIdx >= tables.Length() {
		return nil, fmt.Errorf("%w: table %d not found (page has %d)", entity.ErrMalformedInput, s.cfg.TableIdx, tables.Length())
	}
	var rows []Row
	tables.Eq(s.cfg.TableIdx).Find("tr").Each(func(i int, tr *goquery.Selection) {
		cells := tr.Find("td")
		if cells.Length() <= max(s.cfg.BillCol, s.cfg.URLCol) {
			return
		}
		bill := strings.TrimSpace(cells.Eq(s.cfg.BillCol).Text())
		if bill == "" {
			return
		}
		row := Row{Bill: bill}
		cells.Eq(s.cfg.URLCol).Find("a[href]").Each(func(_ int, a *goquery.Selection) {
			title, ok := linkTitle(a.Text())
			if !ok {
				return
			}
			href, _ := a.Attr("href")
			abs, err := crawler.ResolveURL(pageURL, href)
			if err != nil {
				s.logger.Debug("bad link", zap.Int("row", i), zap.String("href", href))
				return
			}
			u, err := entity.BuildURL(abs, title, s.domain)
			if err != nil {
				return
			}
			row.URLs = append(row.URLs, u)
		})
		if len(row.URLs) > 0 {
			rows = append(rows, row)
		}
	})
	return rows, nil
}

func linkTitle(text string) (entity.URLTitle, bool) {
	switch {
	case strings.Contains(text, "概要"):
		return entity.URLTitleGaiyouPDF, true
	case strings.Contains(text, "新旧"):
		return entity.URLTitleSinkyuPDF, true
	default:
		return "", false
	}
}

// storeRow attaches the row's urls to its bill. With ReplaceStale, older
// references carrying the same titles are pruned only after the new ones
// are linked, so a failed write never leaves the bill without them.
func (s *Source) storeRow(ctx context.Context, row Row) (int, error) {
	n, err := s.deps.Linker.StoreURLsForBill(ctx, row.URLs, row.Bill)
	if err != nil || n == 0 || !s.cfg.ReplaceStale {
		return n, err
	}
	billID, err := s.deps.Linker.ResolveBill(ctx, row.Bill)
	if err != nil || billID == "" {
		return n, err
	}
	keep := make(map[entity.URLTitle][]string)
	for _, u := range row.URLs {
		title := entity.URLTitle(u.Title)
		keep[title] = append(keep[title], u.ID)
	}
	for title, ids := range keep {
		if _, err := s.deps.Linker.ReplaceStaleReferences(ctx, billID, title, ids...); err != nil {
			return n, err
		}
	}
	return n, nil
}
