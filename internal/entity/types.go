// Package entity defines the canonical graph entities and their builders.
package entity

import (
	"time"
)

// Kind names an entity label in the graph store.
type Kind string

// Entity kinds written or read by the pipeline.
const (
	KindMinutes   Kind = "Minutes"
	KindActivity  Kind = "Activity"
	KindSpeech    Kind = "Speech"
	KindURL       Kind = "Url"
	KindNews      Kind = "News"
	KindBill      Kind = "Bill"
	KindCommittee Kind = "Committee"
	KindMember    Kind = "Member"
)

// Entity is anything the graph store can merge by id.
type Entity interface {
	EntityID() string
	EntityKind() Kind
	// Properties returns the scalar fields to merge. Absent optional fields
	// are omitted so a merge never clears a value set by another source.
	Properties() map[string]any
}

// URLTitle categorizes a reference document.
type URLTitle string

// Known reference titles.
const (
	URLTitleHonbun       URLTitle = "本文"
	URLTitleShingiTyukei URLTitle = "審議中継"
	URLTitleGaiyouPDF    URLTitle = "概要PDF"
	URLTitleSinkyuPDF    URLTitle = "新旧対照表PDF"
)

// Minutes is a single meeting of a house or committee on a given day.
type Minutes struct {
	ID            string
	Name          string
	StartDateTime time.Time
	Summary       *string
	Topics        []string
	Speakers      []string
	NDLMinID      *string
}

// EntityID implements Entity.
func (m Minutes) EntityID() string { return m.ID }

// EntityKind implements Entity.
func (Minutes) EntityKind() Kind { return KindMinutes }

// Properties implements Entity.
func (m Minutes) Properties() map[string]any {
	props := map[string]any{
		"id":              m.ID,
		"name":            m.Name,
		"start_date_time": m.StartDateTime,
	}
	if m.Summary != nil {
		props["summary"] = *m.Summary
	}
	if m.Topics != nil {
		props["topics"] = append([]string(nil), m.Topics...)
	}
	if m.Speakers != nil {
		props["speakers"] = append([]string(nil), m.Speakers...)
	}
	if m.NDLMinID != nil {
		props["ndl_min_id"] = *m.NDLMinID
	}
	return props
}

// Activity records a member taking part in a meeting at a point in time.
// Empty id fields mean the counterpart was not known when it was built.
type Activity struct {
	ID        string
	MemberID  string
	MinutesID string
	BillID    string
	DateTime  time.Time
}

// EntityID implements Entity.
func (a Activity) EntityID() string { return a.ID }

// EntityKind implements Entity.
func (Activity) EntityKind() Kind { return KindActivity }

// Properties implements Entity.
func (a Activity) Properties() map[string]any {
	return map[string]any{
		"id":       a.ID,
		"datetime": a.DateTime,
	}
}

// Speech is one remark within a meeting, ordered by Order.
type Speech struct {
	ID          string
	MinutesID   string
	Order       int
	SpeakerName string
}

// EntityID implements Entity.
func (s Speech) EntityID() string { return s.ID }

// EntityKind implements Entity.
func (Speech) EntityKind() Kind { return KindSpeech }

// Properties implements Entity.
func (s Speech) Properties() map[string]any {
	props := map[string]any{
		"id":    s.ID,
		"order": int64(s.Order),
	}
	if s.SpeakerName != "" {
		props["speaker_name"] = s.SpeakerName
	}
	return props
}

// URL is a reference document. LinkTo, when set, names the entity it documents.
type URL struct {
	ID     string
	URL    string
	Title  string
	Domain string
	LinkTo string
}

// EntityID implements Entity.
func (u URL) EntityID() string { return u.ID }

// EntityKind implements Entity.
func (URL) EntityKind() Kind { return KindURL }

// Properties implements Entity.
func (u URL) Properties() map[string]any {
	return map[string]any{
		"id":     u.ID,
		"url":    u.URL,
		"title":  u.Title,
		"domain": u.Domain,
	}
}

// News is a published article stored in the graph.
type News struct {
	ID             string
	URL            string
	Publisher      string
	Title          string
	IsPaid         bool
	Thumbnail      *string
	PublishedAt    *time.Time
	LastModifiedAt *time.Time
}

// EntityID implements Entity.
func (n News) EntityID() string { return n.ID }

// EntityKind implements Entity.
func (News) EntityKind() Kind { return KindNews }

// Properties implements Entity.
func (n News) Properties() map[string]any {
	props := map[string]any{
		"id":        n.ID,
		"url":       n.URL,
		"publisher": n.Publisher,
		"title":     n.Title,
		"is_paid":   n.IsPaid,
	}
	if n.Thumbnail != nil {
		props["thumbnail"] = *n.Thumbnail
	}
	if n.PublishedAt != nil {
		props["published_at"] = *n.PublishedAt
	}
	if n.LastModifiedAt != nil {
		props["last_modified_at"] = *n.LastModifiedAt
	}
	return props
}

// NewsText is the searchable body of a News article. It shares the News id.
type NewsText struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Body  string `json:"body"`
}

// Canonical is a read-only registry entry (bill, committee, member, minutes).
type Canonical struct {
	ID      string   `json:"id"`
	Kind    Kind     `json:"kind"`
	Name    string   `json:"name"`
	Aliases []string `json:"aliases,omitempty"`
}

// EntityID implements Entity.
func (c Canonical) EntityID() string { return c.ID }

// EntityKind implements Entity.
func (c Canonical) EntityKind() Kind { return c.Kind }

// Properties implements Entity.
func (c Canonical) Properties() map[string]any {
	props := map[string]any{
		"id":   c.ID,
		"name": c.Name,
	}
	if len(c.Aliases) > 0 {
		props["aliases"] = append([]string(nil), c.Aliases...)
	}
	return props
}
