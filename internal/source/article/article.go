// Package article extracts news fields from an article page.
package article

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"

	"github.com/sarcastic555/politylink-crawler/internal/entity"
)

// Selectors locate the title and body paragraphs on a known layout. Empty
// selectors fall back to readability extraction.
type Selectors struct {
	Title string
	Body  string
}

// Article is what a page yields.
type Article struct {
	URL            string
	Title          string
	Body           string
	Thumbnail      *string
	PublishedAt    *time.Time
	LastModifiedAt *time.Time
}

// Parse reads body, which was fetched from pageURL.
func Parse(pageURL string, body []byte, sel Selectors) (Article, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return Article{}, fmt.Errorf("%w: parse html %s: %v", entity.ErrMalformedInput, pageURL, err)
	}
	a := Article{URL: pageURL}
	if sel.Title != "" {
		a.Title = strings.TrimSpace(doc.Find(sel.Title).First().Text())
	}
	if sel.Body != "" {
		a.Body = StripJoin(doc.Find(sel.Body))
	}
	if a.Title == "" || a.Body == "" {
		if err := fillFromReadability(&a, pageURL, body); err != nil && a.Body == "" {
			return Article{}, err
		}
	}
	if ld, ok := JSONLD(doc); ok {
		a.Thumbnail = Thumbnail(ld)
		a.PublishedAt = ldTime(ld, "datePublished")
		a.LastModifiedAt = ldTime(ld, "dateModified")
	}
	return a, nil
}

// StripJoin trims the text of every node and concatenates it.
func StripJoin(sel *goquery.Selection) string {
	var b strings.Builder
	sel.Each(func(_ int, s *goquery.Selection) {
		b.WriteString(strings.TrimSpace(s.Text()))
	})
	return b.String()
}

func fillFromReadability(a *Article, pageURL string, body []byte) error {
	u, err := url.Parse(pageURL)
	if err != nil {
		return fmt.Errorf("%w: parse url %q: %v", entity.ErrMalformedInput, pageURL, err)
	}
	extracted, err := readability.FromReader(bytes.NewReader(body), u)
	if err != nil {
		return fmt.Errorf("%w: readability %s: %v", entity.ErrMalformedInput, pageURL, err)
	}
	if a.Title == "" {
		a.Title = strings.TrimSpace(extracted.Title)
	}
	if a.Body == "" {
		a.Body = strings.TrimSpace(extracted.TextContent)
	}
	return nil
}

// JSONLD returns the first JSON-LD object on the page. A list-valued block
// yields its first object.
func JSONLD(doc *goquery.Document) (map[string]any, bool) {
	var out map[string]any
	doc.Find(`script[type="application/ld+json"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		raw := []byte(strings.TrimSpace(s.Text()))
		var obj map[string]any
		if err := json.Unmarshal(raw, &obj); err == nil {
			out = obj
			return false
		}
		var list []map[string]any
		if err := json.Unmarshal(raw, &list); err == nil && len(list) > 0 {
			out = list[0]
			return false
		}
		return true
	})
	return out, out != nil
}

// Thumbnail reads "image", which may be a string, an ImageObject or a list
// of either.
func Thumbnail(ld map[string]any) *string {
	return imageURL(ld["image"])
}

func imageURL(v any) *string {
	switch img := v.(type) {
	case string:
		if img != "" {
			return &img
		}
	case map[string]any:
		if u, ok := img["url"].(string); ok && u != "" {
			return &u
		}
	case []any:
		for _, item := range img {
			if u := imageURL(item); u != nil {
				return u
			}
		}
	}
	return nil
}

var ldLayouts = []string{time.RFC3339, "2006-01-02T15:04:05Z", "2006-01-02T15:04:05", "2006-01-02"}

func ldTime(ld map[string]any, key string) *time.Time {
	raw, ok := ld[key].(string)
	if !ok || raw == "" {
		return nil
	}
	for _, layout := range ldLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}
