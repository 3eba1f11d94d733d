// Package catalog defines the content pack: the read-only set of duas,
// categories and journeys the app serves. Packs are authored in YAML,
// validated here, and loaded into the store at boot. User state never
// writes back into the catalog.
package catalog

import (
	"fmt"
	"os"

	"duahabit/internal/models"

	"gopkg.in/yaml.v3"
)

type Pack struct {
	Categories []Category `yaml:"categories"`
	Duas       []Dua      `yaml:"duas"`
	Journeys   []Journey  `yaml:"journeys"`
}

type Category struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

type Dua struct {
	ID              string `yaml:"id"`
	Category        string `yaml:"category"`
	Title           string `yaml:"title"`
	Arabic          string `yaml:"arabic"`
	Transliteration string `yaml:"transliteration"`
	Translation     string `yaml:"translation"`
	Source          string `yaml:"source"`
	Repetitions     int    `yaml:"repetitions"`
	Slot            string `yaml:"slot"`
	Difficulty      string `yaml:"difficulty"`
	XP              int    `yaml:"xp"`
}

type Journey struct {
	Slug             string       `yaml:"slug"`
	Name             string       `yaml:"name"`
	Description      string       `yaml:"description"`
	EstimatedMinutes int          `yaml:"estimated_minutes"`
	Premium          bool         `yaml:"premium"`
	Featured         bool         `yaml:"featured"`
	Duas             []JourneyDua `yaml:"duas"`
}

type JourneyDua struct {
	Dua  string `yaml:"dua"`
	Slot string `yaml:"slot"`
}

func Load(path string) (*Pack, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(b)
}

func Parse(b []byte) (*Pack, error) {
	var p Pack
	if err := yaml.Unmarshal(b, &p); err != nil {
		return nil, fmt.Errorf("parse content pack: %w", err)
	}
	p.applyDefaults()
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

func (p *Pack) applyDefaults() {
	for i := range p.Duas {
		if p.Duas[i].Repetitions == 0 {
			p.Duas[i].Repetitions = 1
		}
		if p.Duas[i].Slot == "" {
			p.Duas[i].Slot = string(models.SlotAnytime)
		}
		if p.Duas[i].Difficulty == "" {
			p.Duas[i].Difficulty = "beginner"
		}
	}
	slots := make(map[string]string, len(p.Duas))
	for _, d := range p.Duas {
		slots[d.ID] = d.Slot
	}
	for i := range p.Journeys {
		for k := range p.Journeys[i].Duas {
			e := &p.Journeys[i].Duas[k]
			if e.Slot == "" {
				e.Slot = slots[e.Dua]
			}
			if e.Slot == "" {
				e.Slot = string(models.SlotAnytime)
			}
		}
	}
}

// Validate checks referential integrity and the invariants the rest of the
// app relies on: unique ids and slugs, known slot names, non-negative XP,
// and no dua listed twice within one journey.
func (p *Pack) Validate() error {
	cats := make(map[string]bool, len(p.Categories))
	for _, c := range p.Categories {
		if c.ID == "" || c.Name == "" {
			return fmt.Errorf("category needs id and name (got id=%q)", c.ID)
		}
		if cats[c.ID] {
			return fmt.Errorf("duplicate category id %q", c.ID)
		}
		cats[c.ID] = true
	}

	duas := make(map[string]bool, len(p.Duas))
	for _, d := range p.Duas {
		if d.ID == "" || d.Title == "" {
			return fmt.Errorf("dua needs id and title (got id=%q)", d.ID)
		}
		if duas[d.ID] {
			return fmt.Errorf("duplicate dua id %q", d.ID)
		}
		duas[d.ID] = true
		if !cats[d.Category] {
			return fmt.Errorf("dua %q references unknown category %q", d.ID, d.Category)
		}
		if !models.TimeSlot(d.Slot).Valid() {
			return fmt.Errorf("dua %q has invalid slot %q", d.ID, d.Slot)
		}
		if d.XP < 0 {
			return fmt.Errorf("dua %q has negative xp", d.ID)
		}
		if d.Repetitions < 1 {
			return fmt.Errorf("dua %q has repetitions < 1", d.ID)
		}
	}

	slugs := make(map[string]bool, len(p.Journeys))
	for _, j := range p.Journeys {
		if j.Slug == "" || j.Name == "" {
			return fmt.Errorf("journey needs slug and name (got slug=%q)", j.Slug)
		}
		if slugs[j.Slug] {
			return fmt.Errorf("duplicate journey slug %q", j.Slug)
		}
		slugs[j.Slug] = true
		seen := make(map[string]bool, len(j.Duas))
		for _, e := range j.Duas {
			if !duas[e.Dua] {
				return fmt.Errorf("journey %q references unknown dua %q", j.Slug, e.Dua)
			}
			if seen[e.Dua] {
				return fmt.Errorf("journey %q lists dua %q twice", j.Slug, e.Dua)
			}
			seen[e.Dua] = true
			if !models.TimeSlot(e.Slot).Valid() {
				return fmt.Errorf("journey %q entry %q has invalid slot %q", j.Slug, e.Dua, e.Slot)
			}
		}
	}
	return nil
}

// DailyXP sums the XP of a journey's entries, the amount a subscriber earns
// by finishing the whole journey on one day.
func (p *Pack) DailyXP(slug string) int {
	byID := make(map[string]int, len(p.Duas))
	for _, d := range p.Duas {
		byID[d.ID] = d.XP
	}
	total := 0
	for _, j := range p.Journeys {
		if j.Slug != slug {
			continue
		}
		for _, e := range j.Duas {
			total += byID[e.Dua]
		}
	}
	return total
}
