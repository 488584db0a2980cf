// Package knowledge defines the typed knowledge items and the Store that
// persists them.
//
// Four item kinds exist: Decision, Incident, MeetingRecord and Snapshot. Each
// carries a type-prefixed ID (ADR-001, FAIL-042, MEET-007, SNAP-013), a tag
// set, a lifecycle status and a 384-dimension embedding of its title and body
// text.
package knowledge

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// ErrValidation indicates a malformed item payload at creation or update
// time. It never reaches the search or bundling path.
var ErrValidation = errors.New("validation error")

// ItemType identifies one of the four knowledge item kinds.
type ItemType string

const (
	TypeDecision      ItemType = "Decision"
	TypeIncident      ItemType = "Incident"
	TypeMeetingRecord ItemType = "MeetingRecord"
	TypeSnapshot      ItemType = "Snapshot"
)

// AllTypes lists every item type in canonical order.
var AllTypes = []ItemType{TypeDecision, TypeIncident, TypeMeetingRecord, TypeSnapshot}

// idPrefixes maps each type to its ID prefix.
var idPrefixes = map[ItemType]string{
	TypeDecision:      "ADR",
	TypeIncident:      "FAIL",
	TypeMeetingRecord: "MEET",
	TypeSnapshot:      "SNAP",
}

// IDPattern matches any knowledge item ID embedded in free text. Used by
// auto-linking to discover references.
var IDPattern = regexp.MustCompile(`\b(ADR|FAIL|MEET|SNAP)-\d+\b`)

// Prefix returns the ID prefix for the type ("ADR" for Decision).
func (t ItemType) Prefix() string {
	return idPrefixes[t]
}

// Valid reports whether t is one of the four known types.
func (t ItemType) Valid() bool {
	_, ok := idPrefixes[t]
	return ok
}

// TypeFromID resolves an item ID back to its type by prefix.
func TypeFromID(id string) (ItemType, bool) {
	prefix, _, found := strings.Cut(id, "-")
	if !found {
		return "", false
	}
	for t, p := range idPrefixes {
		if p == prefix {
			return t, true
		}
	}
	return "", false
}

// StatusArchived is shared by all types; the decay worker sets it and search
// excludes it.
const StatusArchived = "archived"

// statusVocab lists the valid lifecycle statuses per type. StatusArchived is
// valid for every type.
var statusVocab = map[ItemType][]string{
	TypeDecision:      {"proposed", "active", "superseded", StatusArchived},
	TypeIncident:      {"investigating", "resolved", "recurring", StatusArchived},
	TypeMeetingRecord: {"recorded", StatusArchived},
	TypeSnapshot:      {"captured", StatusArchived},
}

// DefaultStatus returns the initial status for a newly created item.
func (t ItemType) DefaultStatus() string {
	vocab := statusVocab[t]
	if len(vocab) == 0 {
		return ""
	}
	return vocab[0]
}

// ValidStatus reports whether status is in the type's vocabulary.
func (t ItemType) ValidStatus(status string) bool {
	for _, s := range statusVocab[t] {
		if s == status {
			return true
		}
	}
	return false
}

// Meta holds the fields common to every item kind.
type Meta struct {
	ID     string    `json:"id"`
	Title  string    `json:"title"`
	Tags   []string  `json:"tags"`
	Status string    `json:"status"`
	Date   time.Time `json:"date"`

	// Ranking and decay counters. Mutated by the bundler (on retrieval)
	// and the graph (on new inbound edge), read by the decay worker.
	AccessCount30d int64 `json:"access_count_30d"`
	ReferenceCount int64 `json:"reference_count"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Item is implemented by all four knowledge item kinds.
type Item interface {
	Type() ItemType

	// Common gives access to the shared metadata fields.
	Common() *Meta

	// Body returns the type-specific body text. Together with the title
	// it forms the text that gets embedded and auto-linked.
	Body() string
}

// Content returns the full embeddable text of an item: title plus body.
func Content(item Item) string {
	meta := item.Common()
	body := item.Body()
	if body == "" {
		return meta.Title
	}
	return meta.Title + "\n\n" + body
}

// Decision is an architecture decision record.
type Decision struct {
	Meta
	Decision string `json:"decision"`
	Context  string `json:"context"`
}

func (d *Decision) Type() ItemType { return TypeDecision }
func (d *Decision) Common() *Meta  { return &d.Meta }
func (d *Decision) Body() string {
	return joinSections(d.Decision, d.Context)
}

// Incident is a recorded failure with its analysis.
type Incident struct {
	Meta
	RootCause  string `json:"root_cause"`
	Symptoms   string `json:"symptoms"`
	Resolution string `json:"resolution"`
}

func (i *Incident) Type() ItemType { return TypeIncident }
func (i *Incident) Common() *Meta  { return &i.Meta }
func (i *Incident) Body() string {
	return joinSections(i.Symptoms, i.RootCause, i.Resolution)
}

// MeetingRecord captures the decisions made in a meeting.
type MeetingRecord struct {
	Meta
	Decisions []string `json:"decisions"`
}

func (m *MeetingRecord) Type() ItemType { return TypeMeetingRecord }
func (m *MeetingRecord) Common() *Meta  { return &m.Meta }
func (m *MeetingRecord) Body() string {
	return strings.Join(m.Decisions, "\n")
}

// Snapshot records a code change.
type Snapshot struct {
	Meta
	CommitMessage string `json:"commit_message"`
}

func (s *Snapshot) Type() ItemType { return TypeSnapshot }
func (s *Snapshot) Common() *Meta  { return &s.Meta }
func (s *Snapshot) Body() string {
	return s.CommitMessage
}

// joinSections concatenates non-empty sections with blank lines.
func joinSections(sections ...string) string {
	parts := make([]string, 0, len(sections))
	for _, s := range sections {
		if s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, "\n\n")
}

// Validate checks an item payload before it is persisted.
func Validate(item Item) error {
	if item == nil {
		return fmt.Errorf("%w: nil item", ErrValidation)
	}
	if !item.Type().Valid() {
		return fmt.Errorf("%w: unknown item type %q", ErrValidation, item.Type())
	}

	meta := item.Common()
	if strings.TrimSpace(meta.Title) == "" {
		return fmt.Errorf("%w: title is required", ErrValidation)
	}
	if meta.Status != "" && !item.Type().ValidStatus(meta.Status) {
		return fmt.Errorf("%w: invalid status %q for %s", ErrValidation, meta.Status, item.Type())
	}

	return nil
}
