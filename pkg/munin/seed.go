package munin

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/muninhq/munin/pkg/knowledge"
)

// seedFile is the YAML layout accepted by ImportSeed. Items may carry a
// "ref" alias so relationships can point at them before IDs are assigned.
type seedFile struct {
	Decisions []struct {
		seedMeta `yaml:",inline"`
		Decision string `yaml:"decision"`
		Context  string `yaml:"context"`
	} `yaml:"decisions"`

	Incidents []struct {
		seedMeta   `yaml:",inline"`
		RootCause  string `yaml:"root_cause"`
		Symptoms   string `yaml:"symptoms"`
		Resolution string `yaml:"resolution"`
	} `yaml:"incidents"`

	Meetings []struct {
		seedMeta  `yaml:",inline"`
		Decisions []string `yaml:"decisions"`
	} `yaml:"meetings"`

	Snapshots []struct {
		seedMeta      `yaml:",inline"`
		CommitMessage string `yaml:"commit_message"`
	} `yaml:"snapshots"`

	Relationships []struct {
		From string `yaml:"from"`
		To   string `yaml:"to"`
		Type string `yaml:"type"`
	} `yaml:"relationships"`
}

type seedMeta struct {
	Ref    string   `yaml:"ref"`
	Title  string   `yaml:"title"`
	Tags   []string `yaml:"tags"`
	Status string   `yaml:"status"`
	Date   string   `yaml:"date"`
}

func (m *seedMeta) toMeta() (knowledge.Meta, error) {
	meta := knowledge.Meta{
		Title:  m.Title,
		Tags:   m.Tags,
		Status: m.Status,
	}
	if m.Date != "" {
		date, err := time.Parse("2006-01-02", m.Date)
		if err != nil {
			return meta, fmt.Errorf("parsing date %q: %w", m.Date, err)
		}
		meta.Date = date
	}
	return meta, nil
}

// SeedResult summarizes an import.
type SeedResult struct {
	Items         int
	Relationships int
}

// ImportSeed loads items and relationships from a YAML seed file. Items are
// created through the normal path (embedding plus auto-linking); explicit
// relationships may reference items by their "ref" alias or by literal ID.
func (db *DB) ImportSeed(ctx context.Context, path string) (*SeedResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading seed file: %w", err)
	}

	var seed seedFile
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("parsing seed file: %w", err)
	}

	result := &SeedResult{}
	refs := map[string]string{}

	create := func(ref string, item knowledge.Item) error {
		id, err := db.CreateItem(ctx, item)
		if err != nil {
			return fmt.Errorf("seeding %q: %w", item.Common().Title, err)
		}
		if ref != "" {
			refs[ref] = id
		}
		result.Items++
		return nil
	}

	for _, d := range seed.Decisions {
		meta, err := d.toMeta()
		if err != nil {
			return nil, err
		}
		if err := create(d.Ref, &knowledge.Decision{Meta: meta, Decision: d.Decision, Context: d.Context}); err != nil {
			return nil, err
		}
	}
	for _, i := range seed.Incidents {
		meta, err := i.toMeta()
		if err != nil {
			return nil, err
		}
		if err := create(i.Ref, &knowledge.Incident{
			Meta: meta, RootCause: i.RootCause, Symptoms: i.Symptoms, Resolution: i.Resolution,
		}); err != nil {
			return nil, err
		}
	}
	for _, m := range seed.Meetings {
		meta, err := m.toMeta()
		if err != nil {
			return nil, err
		}
		if err := create(m.Ref, &knowledge.MeetingRecord{Meta: meta, Decisions: m.Decisions}); err != nil {
			return nil, err
		}
	}
	for _, s := range seed.Snapshots {
		meta, err := s.toMeta()
		if err != nil {
			return nil, err
		}
		if err := create(s.Ref, &knowledge.Snapshot{Meta: meta, CommitMessage: s.CommitMessage}); err != nil {
			return nil, err
		}
	}

	for _, rel := range seed.Relationships {
		from := rel.From
		if id, ok := refs[from]; ok {
			from = id
		}
		to := rel.To
		if id, ok := refs[to]; ok {
			to = id
		}
		if err := db.CreateRelationship(from, to, rel.Type); err != nil {
			return nil, fmt.Errorf("seeding relationship %s -> %s: %w", rel.From, rel.To, err)
		}
		result.Relationships++
	}

	log.Printf("🌱 Seeded %d items and %d relationships from %s", result.Items, result.Relationships, path)
	return result, nil
}
