// Package minutes crawls the NDL Diet minutes API with an offset cursor.
package minutes

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/sarcastic555/politylink-crawler/internal/crawler"
	"github.com/sarcastic555/politylink-crawler/internal/entity"
	"github.com/sarcastic555/politylink-crawler/internal/source"
)

// Name labels the source in logs and fetch metrics. Checkpoints use the
// range-scoped key returned by (*Source).Name.
const Name = "minutes"

const (
	// DefaultBaseURL is the NDL meeting API.
	DefaultBaseURL  = "https://kokkai.ndl.go.jp/api/meeting"
	defaultPageSize = 5
	domain          = "ndl.go.jp"
	dateLayout      = "2006-01-02"
)

// Config selects the date range to crawl.
type Config struct {
	StartDate string
	EndDate   string
	// CollectSpeech also merges one Speech per remark.
	CollectSpeech bool
	PageSize      int
	BaseURL       string
}

// Source implements crawler.Source.
type Source struct {
	cfg    Config
	deps   source.Deps
	logger *zap.Logger
}

var _ crawler.Source = (*Source)(nil)

// New validates cfg and returns a Source.
func New(cfg Config, deps source.Deps) (*Source, error) {
	if err := deps.Validate(); err != nil {
		return nil, err
	}
	for _, d := range []string{cfg.StartDate, cfg.EndDate} {
		if _, err := entity.ParseDate(dateLayout, d); err != nil {
			return nil, fmt.Errorf("minutes date range: %w", err)
		}
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = defaultPageSize
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	return &Source{cfg: cfg, deps: deps, logger: deps.Named(Name)}, nil
}

// Name implements crawler.Source. The date range is part of the name so a
// cursor saved for one range never resumes a crawl over another.
func (s *Source) Name() string {
	return Name + ":" + s.cfg.StartDate + ":" + s.cfg.EndDate
}

// Start resumes from saved, or begins at the first record.
func (s *Source) Start(_ context.Context, saved *crawler.State) (crawler.State, error) {
	if saved != nil && saved.Cursor > 0 {
		return *saved, nil
	}
	return crawler.State{Cursor: 1}, nil
}

// Step fetches one page of meeting records at state.Cursor.
func (s *Source) Step(ctx context.Context, state crawler.State) (crawler.StepResult, error) {
	pageURL := s.pageURL(state.Cursor)
	resp, err := s.deps.Fetch(ctx, Name, pageURL)
	if err != nil {
		return crawler.StepResult{Next: state}, fmt.Errorf("fetch %s: %w", pageURL, err)
	}
	var page response
	if err := json.Unmarshal(resp.Body, &page); err != nil {
		return crawler.StepResult{Next: state}, fmt.Errorf("%w: decode %s: %v", entity.ErrMalformedInput, pageURL, err)
	}

	b, err := s.scrape(ctx, page.MeetingRecord)
	if err != nil {
		return crawler.StepResult{Next: state}, err
	}
	stats, err := s.write(ctx, b)
	if err != nil {
		return crawler.StepResult{Next: state, Stats: stats}, err
	}

	next, done := crawler.AdvanceOffset(state, page.NextRecordPosition, len(b.minutes))
	return crawler.StepResult{Next: next, Done: done, Stats: stats}, nil
}

func (s *Source) pageURL(start int) string {
	q := url.Values{}
	q.Set("from", s.cfg.StartDate)
	q.Set("until", s.cfg.EndDate)
	q.Set("startRecord", strconv.Itoa(start))
	q.Set("maximumRecords", strconv.Itoa(s.cfg.PageSize))
	q.Set("recordPacking", "json")
	return s.cfg.BaseURL + "?" + q.Encode()
}

type response struct {
	NumberOfRecords    int             `json:"numberOfRecords"`
	NextRecordPosition *int            `json:"nextRecordPosition"`
	MeetingRecord      []meetingRecord `json:"meetingRecord"`
}

type meetingRecord struct {
	IssueID       string         `json:"issueID"`
	NameOfHouse   string         `json:"nameOfHouse"`
	NameOfMeeting string         `json:"nameOfMeeting"`
	Date          string         `json:"date"`
	MeetingURL    string         `json:"meetingURL"`
	SpeechRecord  []speechRecord `json:"speechRecord"`
}

type speechRecord struct {
	SpeechOrder int    `json:"speechOrder"`
	Speaker     string `json:"speaker"`
	Speech      string `json:"speech"`
	SpeechURL   string `json:"speechURL"`
}

type batch struct {
	minutes    []entity.Minutes
	activities []entity.Activity
	speeches   []entity.Speech
	urls       []entity.URL
	skipped    int
}

func (s *Source) scrape(ctx context.Context, records []meetingRecord) (batch, error) {
	var b batch
	for _, rec := range records {
		m, err := buildMinutes(rec)
		if err != nil {
			s.logger.Warn("skipping meeting record", zap.String("issue_id", rec.IssueID), zap.Error(err))
			b.skipped++
			continue
		}
		b.minutes = append(b.minutes, m)

		if u, err := entity.BuildURL(rec.MeetingURL, entity.URLTitleHonbun, domain); err == nil {
			u.LinkTo = m.ID
			b.urls = append(b.urls, u)
		} else {
			s.logger.Warn("skipping minutes url", zap.String("minutes_id", m.ID), zap.Error(err))
		}

		if err := s.scrapeSpeeches(ctx, rec, m, &b); err != nil {
			return b, err
		}
	}
	return b, nil
}

// scrapeSpeeches builds speeches and, for the first remark of each speaker
// that resolves to a member, an Activity plus its 本文 Url.
func (s *Source) scrapeSpeeches(ctx context.Context, rec meetingRecord, m entity.Minutes, b *batch) error {
	seen := make(map[string]struct{})
	for _, sr := range rec.SpeechRecord {
		if s.cfg.CollectSpeech {
			sp, err := entity.BuildSpeech(m.ID, sr.SpeechOrder)
			if err != nil {
				s.logger.Warn("skipping speech", zap.String("minutes_id", m.ID), zap.Error(err))
				continue
			}
			sp.SpeakerName = sr.Speaker
			b.speeches = append(b.speeches, sp)
		}

		speaker := strings.TrimSpace(sr.Speaker)
		if speaker == "" {
			continue
		}
		if _, ok := seen[speaker]; ok {
			continue
		}
		seen[speaker] = struct{}{}

		memberID, err := s.deps.Linker.ResolveMember(ctx, speaker)
		if err != nil {
			return err
		}
		if memberID == "" {
			continue
		}
		a, err := entity.BuildActivity(memberID, m.ID, m.StartDateTime)
		if err != nil {
			s.logger.Warn("skipping activity", zap.String("speaker", speaker), zap.Error(err))
			continue
		}
		b.activities = append(b.activities, a)
		if u, err := entity.BuildURL(sr.SpeechURL, entity.URLTitleHonbun, domain); err == nil {
			u.LinkTo = a.ID
			b.urls = append(b.urls, u)
		}
	}
	return nil
}

func buildMinutes(rec meetingRecord) (entity.Minutes, error) {
	date, err := entity.ParseDate(dateLayout, rec.Date)
	if err != nil {
		return entity.Minutes{}, err
	}
	m, err := entity.BuildMinutes(rec.NameOfHouse+rec.NameOfMeeting, date)
	if err != nil {
		return entity.Minutes{}, err
	}
	if rec.IssueID != "" {
		issue := rec.IssueID
		m.NDLMinID = &issue
	}
	if len(rec.SpeechRecord) > 0 {
		if topics := entity.ExtractTopics(rec.SpeechRecord[0].Speech); len(topics) > 0 {
			m.Topics = topics
		}
	}
	return m, nil
}

func (s *Source) write(ctx context.Context, b batch) (crawler.Stats, error) {
	stats := crawler.Stats{Skipped: b.skipped}
	entities := source.Entities(b.minutes)
	entities = append(entities, source.Entities(b.activities)...)
	entities = append(entities, source.Entities(b.speeches)...)
	entities = append(entities, source.Entities(b.urls)...)
	merged, err := s.deps.Linker.Merge(ctx, entities...)
	if err != nil {
		return stats, fmt.Errorf("merge minutes batch: %w", err)
	}
	stats.Merged = merged
	s.logger.Info("merged batch",
		zap.Int("minutes", len(b.minutes)),
		zap.Int("activities", len(b.activities)),
		zap.Int("speeches", len(b.speeches)),
		zap.Int("urls", len(b.urls)),
	)

	for _, m := range b.minutes {
		n, err := s.deps.Linker.LinkMinutes(ctx, m)
		stats.Linked += n
		if err != nil {
			return stats, fmt.Errorf("link minutes %s: %w", m.ID, err)
		}
	}
	for _, fn := range []func() (int, error){
		func() (int, error) { return s.deps.Linker.LinkActivities(ctx, b.activities) },
		func() (int, error) { return s.deps.Linker.LinkSpeeches(ctx, b.speeches) },
		func() (int, error) { return s.deps.Linker.LinkURLs(ctx, b.urls) },
	} {
		n, err := fn()
		stats.Linked += n
		if err != nil {
			return stats, err
		}
	}
	return stats, nil
}
