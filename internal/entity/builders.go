package entity

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sarcastic555/politylink-crawler/internal/id/uuid"
)

// ErrMalformedInput marks source data that cannot be turned into an entity.
var ErrMalformedInput = errors.New("malformed input")

// JST is the timezone every Diet source reports dates in.
var JST = time.FixedZone("JST", 9*60*60)

const dateKeyLayout = "2006-01-02"

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformedInput, fmt.Sprintf(format, args...))
}

// ParseDate parses value with layout in JST.
func ParseDate(layout, value string) (time.Time, error) {
	t, err := time.ParseInLocation(layout, strings.TrimSpace(value), JST)
	if err != nil {
		return time.Time{}, malformed("parse date %q: %v", value, err)
	}
	return t, nil
}

// BuildMinutes returns the Minutes identified by name and calendar date.
func BuildMinutes(name string, date time.Time) (Minutes, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Minutes{}, malformed("minutes name is empty")
	}
	if date.IsZero() {
		return Minutes{}, malformed("minutes date is missing for %q", name)
	}
	date = date.In(JST)
	day := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, JST)
	return Minutes{
		ID:            uuid.Derive(string(KindMinutes), name, day.Format(dateKeyLayout)),
		Name:          name,
		StartDateTime: day,
	}, nil
}

// BuildActivity returns the Activity of memberID in minutesID at the given time.
func BuildActivity(memberID, minutesID string, at time.Time) (Activity, error) {
	if memberID == "" || minutesID == "" {
		return Activity{}, malformed("activity requires member and minutes ids (member=%q minutes=%q)", memberID, minutesID)
	}
	if at.IsZero() {
		return Activity{}, malformed("activity datetime is missing")
	}
	return Activity{
		ID:        uuid.Derive(string(KindActivity), memberID, minutesID, at.UTC().Format(time.RFC3339)),
		MemberID:  memberID,
		MinutesID: minutesID,
		DateTime:  at,
	}, nil
}

// BuildSpeech returns the order-th Speech of minutesID.
func BuildSpeech(minutesID string, order int) (Speech, error) {
	if minutesID == "" {
		return Speech{}, malformed("speech requires minutes id")
	}
	if order < 0 {
		return Speech{}, malformed("speech order %d is negative", order)
	}
	return Speech{
		ID:        uuid.Derive(string(KindSpeech), minutesID, strconv.Itoa(order)),
		MinutesID: minutesID,
		Order:     order,
	}, nil
}

// BuildURL returns the reference for rawURL under title.
func BuildURL(rawURL string, title URLTitle, domain string) (URL, error) {
	rawURL = strings.TrimSpace(rawURL)
	if err := requireAbsoluteURL(rawURL); err != nil {
		return URL{}, err
	}
	if strings.TrimSpace(string(title)) == "" {
		return URL{}, malformed("url title is empty for %q", rawURL)
	}
	return URL{
		ID:     uuid.Derive(string(KindURL), rawURL, string(title)),
		URL:    rawURL,
		Title:  string(title),
		Domain: domain,
	}, nil
}

// BuildNews returns the News article published at rawURL.
func BuildNews(rawURL, publisher string) (News, error) {
	rawURL = strings.TrimSpace(rawURL)
	if err := requireAbsoluteURL(rawURL); err != nil {
		return News{}, err
	}
	if strings.TrimSpace(publisher) == "" {
		return News{}, malformed("news publisher is empty for %q", rawURL)
	}
	return News{
		ID:        uuid.Derive(string(KindNews), rawURL),
		URL:       rawURL,
		Publisher: publisher,
	}, nil
}

// BuildNewsText returns the searchable body sharing the article's id.
func BuildNewsText(news News, title, body string) NewsText {
	return NewsText{
		ID:    news.ID,
		Title: strings.TrimSpace(title),
		Body:  strings.TrimSpace(body),
	}
}

func requireAbsoluteURL(raw string) error {
	if raw == "" {
		return malformed("url is empty")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return malformed("parse url %q: %v", raw, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return malformed("url %q is not absolute http(s)", raw)
	}
	return nil
}
