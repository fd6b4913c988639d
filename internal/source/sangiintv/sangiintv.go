// Package sangiintv probes House of Councillors internet TV pages by
// increasing sid.
package sangiintv

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/sarcastic555/politylink-crawler/internal/crawler"
	"github.com/sarcastic555/politylink-crawler/internal/entity"
	"github.com/sarcastic555/politylink-crawler/internal/graph"
	"github.com/sarcastic555/politylink-crawler/internal/source"
)

// Name identifies the source in checkpoints and metrics.
const Name = "sangiin_tv"

const (
	// HouseName prefixes every meeting name scraped from the site.
	HouseName = "参議院"
	// DefaultBaseURL is the detail page; the sid goes in the query.
	DefaultBaseURL      = "https://www.webtv.sangiin.go.jp/webtv/detail.php"
	DefaultFailureLimit = 10
	domain              = "sangiin.go.jp"
	dateLayout          = "2006年1月2日"
)

var sidPattern = regexp.MustCompile(`sid=(\d+)`)

// LatestMinutes finds the references of the newest Minutes.
type LatestMinutes interface {
	LatestMinutesURLs(ctx context.Context, nameContains string) ([]graph.Reference, error)
}

// Config controls where probing starts and when it gives up.
type Config struct {
	// NextID is the last sid known to exist; probing starts at NextID+1.
	// A negative value asks Start to use the checkpoint or bootstrap.
	NextID       int
	FailureLimit int
	BaseURL      string
}

// Source implements crawler.Source.
type Source struct {
	cfg    Config
	deps   source.Deps
	latest LatestMinutes
	logger *zap.Logger
}

var _ crawler.Source = (*Source)(nil)

// New returns a Source. latest is used only to bootstrap.
func New(cfg Config, deps source.Deps, latest LatestMinutes) (*Source, error) {
	if err := deps.Validate(); err != nil {
		return nil, err
	}
	if cfg.FailureLimit <= 0 {
		cfg.FailureLimit = DefaultFailureLimit
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	return &Source{cfg: cfg, deps: deps, latest: latest, logger: deps.Named(Name)}, nil
}

// Name implements crawler.Source.
func (s *Source) Name() string { return Name }

// Start picks the cursor: an explicit NextID, else the checkpoint, else the
// newest 審議中継 sid in the graph minus the failure limit.
func (s *Source) Start(ctx context.Context, saved *crawler.State) (crawler.State, error) {
	if s.cfg.NextID >= 0 {
		return crawler.State{Cursor: s.cfg.NextID}, nil
	}
	if saved != nil {
		return crawler.State{Cursor: crawler.ProbeResumeCursor(*saved), Emitted: saved.Emitted}, nil
	}
	sid, err := s.lastSID(ctx)
	if err != nil {
		return crawler.State{}, fmt.Errorf("%w: %v; pass an explicit next id", crawler.ErrBootstrap, err)
	}
	cursor := sid - s.cfg.FailureLimit
	if cursor < 0 {
		cursor = 0
	}
	s.logger.Info("bootstrapped cursor", zap.Int("last_sid", sid), zap.Int("cursor", cursor))
	return crawler.State{Cursor: cursor}, nil
}

func (s *Source) lastSID(ctx context.Context) (int, error) {
	if s.latest == nil {
		return 0, errors.New("no graph store to bootstrap from")
	}
	refs, err := s.latest.LatestMinutesURLs(ctx, HouseName)
	if err != nil {
		return 0, fmt.Errorf("query latest minutes: %w", err)
	}
	for _, ref := range refs {
		if ref.Title != string(entity.URLTitleShingiTyukei) {
			continue
		}
		if m := sidPattern.FindStringSubmatch(ref.URL); m != nil {
			return strconv.Atoi(m[1])
		}
	}
	return 0, fmt.Errorf("latest %s minutes has no %s url with a sid", HouseName, entity.URLTitleShingiTyukei)
}

// PageURL returns the detail page for sid.
func (s *Source) PageURL(sid int) string {
	return s.cfg.BaseURL + "?sid=" + strconv.Itoa(sid)
}

// Step probes state.Cursor+1. Missing or malformed pages count toward the
// failure limit; anything else stops the crawl.
func (s *Source) Step(ctx context.Context, state crawler.State) (crawler.StepResult, error) {
	sid := state.Cursor + 1
	pageURL := s.PageURL(sid)
	logger := s.logger.With(zap.Int("sid", sid))

	p, err := s.probe(ctx, pageURL)
	switch {
	case err == nil:
	case errors.Is(err, crawler.ErrTransientFetch), errors.Is(err, entity.ErrMalformedInput):
		logger.Warn("probe failed", zap.Int("failure_in_row", state.FailureInRow+1), zap.Error(err))
		next, limitErr := crawler.AdvanceProbe(state, false, s.cfg.FailureLimit)
		return crawler.StepResult{Next: next, Stats: crawler.Stats{Skipped: 1}}, limitErr
	default:
		return crawler.StepResult{Next: state}, err
	}

	stats, err := s.write(ctx, p)
	if err != nil {
		return crawler.StepResult{Next: state, Stats: stats}, err
	}
	next, _ := crawler.AdvanceProbe(state, true, s.cfg.FailureLimit)
	return crawler.StepResult{Next: next, Stats: stats}, nil
}

type page struct {
	minutes    entity.Minutes
	activities []entity.Activity
	urls       []entity.URL
}

func (s *Source) probe(ctx context.Context, pageURL string) (page, error) {
	resp, err := s.deps.Fetch(ctx, Name, pageURL)
	if err != nil {
		return page{}, fmt.Errorf("fetch %s: %w", pageURL, err)
	}
	doc, err := source.Document(resp)
	if err != nil {
		return page{}, err
	}
	return s.scrape(ctx, doc, pageURL)
}

type speakerLink struct {
	name string
	href string
}

// Detail is the meeting information on one TV page.
type Detail struct {
	Name     string
	Date     time.Time
	Summary  string
	Topics   []string
	Speakers []string
	links    []speakerLink
}

// ParseDetail extracts the meeting information from a TV page.
func ParseDetail(doc *goquery.Document) (Detail, error) {
	content := doc.Find("#detail-contents-inner")
	if content.Length() == 0 {
		content = doc.Find("#detail-contents-inner2")
	}
	if content.Length() == 0 {
		return Detail{}, fmt.Errorf("%w: detail contents not found", entity.ErrMalformedInput)
	}

	var d Detail
	content.Find("dl").Each(func(_ int, dl *goquery.Selection) {
		term := strings.TrimSpace(dl.Find("dt").First().Text())
		desc := strings.TrimSpace(dl.Find("dd").First().Text())
		switch term {
		case "開会日":
			if t, err := entity.ParseDate(dateLayout, desc); err == nil {
				d.Date = t
			}
		case "会議名":
			d.Name = desc
		}
	})
	if d.Date.IsZero() || d.Name == "" {
		return Detail{}, fmt.Errorf("%w: meeting detail incomplete (date=%v name=%q)", entity.ErrMalformedInput, d.Date, d.Name)
	}

	var summary strings.Builder
	content.ChildrenFiltered("span").Each(func(_ int, sp *goquery.Selection) {
		summary.WriteString(strings.TrimSpace(sp.Text()))
	})
	d.Summary = summary.String()

	items := content.ChildrenFiltered("ul").ChildrenFiltered("li")
	items.Each(func(_ int, li *goquery.Selection) {
		li.Contents().Each(func(_ int, n *goquery.Selection) {
			if goquery.NodeName(n) != "#text" {
				return
			}
			if text := strings.TrimSpace(n.Text()); text != "" {
				d.Topics = append(d.Topics, text)
			}
		})
	})
	items.ChildrenFiltered("a").Each(func(_ int, a *goquery.Selection) {
		name := strings.TrimSpace(a.Text())
		if name == "" {
			return
		}
		href, _ := a.Attr("href")
		d.Speakers = append(d.Speakers, name)
		d.links = append(d.links, speakerLink{name: name, href: href})
	})
	return d, nil
}

func (s *Source) scrape(ctx context.Context, doc *goquery.Document, pageURL string) (page, error) {
	d, err := ParseDetail(doc)
	if err != nil {
		return page{}, err
	}
	m, err := entity.BuildMinutes(HouseName+d.Name, d.Date)
	if err != nil {
		return page{}, err
	}
	if d.Summary != "" {
		summary := d.Summary
		m.Summary = &summary
	}
	if len(d.Topics) > 0 {
		m.Topics = d.Topics
		s.logger.Debug("scraped topics", zap.Strings("topics", d.Topics))
	}
	if len(d.Speakers) > 0 {
		m.Speakers = d.Speakers
		s.logger.Debug("scraped speakers", zap.Strings("speakers", d.Speakers))
	}

	p := page{minutes: m}
	for _, l := range d.links {
		memberID, err := s.deps.Linker.ResolveMember(ctx, l.name)
		if err != nil {
			return page{}, err
		}
		if memberID == "" {
			continue
		}
		a, err := entity.BuildActivity(memberID, m.ID, m.StartDateTime)
		if err != nil {
			continue
		}
		p.activities = append(p.activities, a)
		href, ok := speakerURL(pageURL, l.href)
		if !ok {
			continue
		}
		if u, err := entity.BuildURL(href, entity.URLTitleShingiTyukei, domain); err == nil {
			u.LinkTo = a.ID
			p.urls = append(p.urls, u)
		}
	}

	u, err := entity.BuildURL(pageURL, entity.URLTitleShingiTyukei, domain)
	if err != nil {
		return page{}, err
	}
	u.LinkTo = m.ID
	p.urls = append(p.urls, u)
	return p, nil
}

// speakerURL resolves a speaker anchor, keeping the fragment that seeks the
// stream. Anchors that point back at the page itself are dropped.
func speakerURL(pageURL, href string) (string, bool) {
	href = strings.TrimSpace(href)
	if href == "" {
		return "", false
	}
	base, err := url.Parse(pageURL)
	if err != nil {
		return "", false
	}
	ref, err := url.Parse(href)
	if err != nil {
		return "", false
	}
	resolved := base.ResolveReference(ref).String()
	return resolved, resolved != pageURL
}

func (s *Source) write(ctx context.Context, p page) (crawler.Stats, error) {
	var stats crawler.Stats
	entities := append([]entity.Entity{p.minutes}, source.Entities(p.activities)...)
	entities = append(entities, source.Entities(p.urls)...)
	merged, err := s.deps.Linker.Merge(ctx, entities...)
	if err != nil {
		return stats, fmt.Errorf("merge tv page: %w", err)
	}
	stats.Merged = merged
	s.logger.Info("merged tv page",
		zap.String("minutes", p.minutes.Name),
		zap.Int("activities", len(p.activities)),
		zap.Int("urls", len(p.urls)),
	)

	for _, fn := range []func() (int, error){
		func() (int, error) { return s.deps.Linker.LinkMinutes(ctx, p.minutes) },
		func() (int, error) { return s.deps.Linker.LinkActivities(ctx, p.activities) },
		func() (int, error) { return s.deps.Linker.LinkURLs(ctx, p.urls) },
	} {
		n, err := fn()
		stats.Linked += n
		if err != nil {
			return stats, err
		}
	}
	return stats, nil
}
