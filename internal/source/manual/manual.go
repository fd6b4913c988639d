// Package manual stores hand-curated bill and session references listed in
// a YAML file.
package manual

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/sarcastic555/politylink-crawler/internal/crawler"
	"github.com/sarcastic555/politylink-crawler/internal/entity"
	"github.com/sarcastic555/politylink-crawler/internal/source"
)

// Name identifies the source in checkpoints and metrics.
const Name = "manual"

// Item is one bill, or one session, and the references to attach to it.
// Bill wins when both are set.
//
//	# links.yaml
//	- bill: 地方自治法の一部を改正する法律案
//	  urls:
//	    - url: https://example.go.jp/gaiyou.pdf
//	      title: 概要PDF
//	- minutes: 参議院予算委員会
//	  urls:
//	    - url: https://example.go.jp/shiryo.pdf
//	      title: 配付資料
type Item struct {
	Bill    string `yaml:"bill"`
	Minutes string `yaml:"minutes"`
	URLs    []Ref  `yaml:"urls"`
}

func (i Item) target() string {
	if i.Bill != "" {
		return i.Bill
	}
	return i.Minutes
}

// Ref is a reference document. Title may be free text.
type Ref struct {
	URL   string `yaml:"url"`
	Title string `yaml:"title"`
}

// Config names the list file.
type Config struct {
	File string
}

// Source implements crawler.Source. It handles the whole file in one step.
type Source struct {
	cfg    Config
	deps   source.Deps
	logger *zap.Logger
}

var _ crawler.Source = (*Source)(nil)

// New returns a Source. Only the Linker of deps is used.
func New(cfg Config, deps source.Deps) (*Source, error) {
	if deps.Linker == nil {
		return nil, fmt.Errorf("linker is required")
	}
	if strings.TrimSpace(cfg.File) == "" {
		return nil, fmt.Errorf("manual list file is required")
	}
	return &Source{cfg: cfg, deps: deps, logger: deps.Named(Name)}, nil
}

// Name implements crawler.Source.
func (s *Source) Name() string { return Name }

// Start always begins at the top of the file.
func (s *Source) Start(context.Context, *crawler.State) (crawler.State, error) {
	return crawler.State{}, nil
}

// Load parses a list file.
func Load(path string) ([]Item, error) {
	raw, err := os.ReadFile(path) // #nosec G304 -- operator-supplied list file.
	if err != nil {
		return nil, fmt.Errorf("read manual list: %w", err)
	}
	var items []Item
	if err := yaml.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("%w: decode manual list %s: %v", entity.ErrMalformedInput, path, err)
	}
	return items, nil
}

// Step stores every item. Items whose bill or session is not resolved, or
// whose urls are all invalid, are skipped.
func (s *Source) Step(ctx context.Context, state crawler.State) (crawler.StepResult, error) {
	items, err := Load(s.cfg.File)
	if err != nil {
		return crawler.StepResult{Next: state}, err
	}
	var stats crawler.Stats
	for _, item := range items {
		urls := s.buildURLs(item)
		if len(urls) == 0 {
			stats.Skipped++
			continue
		}
		store := s.deps.Linker.StoreURLsForBill
		if item.Bill == "" {
			store = s.deps.Linker.StoreURLsForMinutes
		}
		n, err := store(ctx, urls, item.target())
		if err != nil {
			return crawler.StepResult{Next: state, Stats: stats}, fmt.Errorf("store urls for %q: %w", item.target(), err)
		}
		if n == 0 {
			stats.Skipped++
			continue
		}
		stats.Merged += len(urls)
		stats.Linked += n
	}
	return crawler.StepResult{Next: crawler.State{Cursor: 1, Emitted: len(items)}, Done: true, Stats: stats}, nil
}

func (s *Source) buildURLs(item Item) []entity.URL {
	var out []entity.URL
	for _, ref := range item.URLs {
		u, err := entity.BuildURL(ref.URL, entity.URLTitle(ref.Title), hostOf(ref.URL))
		if err != nil {
			s.logger.Warn("skipping manual url", zap.String("target", item.target()), zap.Error(err))
			continue
		}
		out = append(out, u)
	}
	return out
}

func hostOf(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return ""
	}
	return u.Hostname()
}
