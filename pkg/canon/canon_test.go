package canon

import (
	"testing"

	"momentum/pkg/common"
)

func TestNormalize(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"Acme Inc.", "Acme"},
		{"ACME, Inc", "Acme"},
		{"acme", "Acme"},
		{"  acme   labs ", "Acme Labs"},
		{"Müller GmbH", "Müller"},
		{"A&B Ventures", "A&B Ventures"},
		{"co", "Co"},
		{"...", ""},
		{"", ""},
	}
	for _, c := range cases {
		if got := Normalize(c.in); got != c.want {
			t.Fatalf("Normalize(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestDisplayName(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"Acme Inc.", "Acme Inc"},
		{"ACME, Inc", "Acme Inc"},
		{"Müller GmbH", "Müller Gmbh"},
		{"acme", "Acme"},
		{"...", ""},
	}
	for _, c := range cases {
		if got := DisplayName(c.in); got != c.want {
			t.Fatalf("DisplayName(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestSimilarity(t *testing.T) {
	if s := Similarity("Acme", "Acme"); s != 1 {
		t.Fatalf("identical strings should score 1, got %f", s)
	}
	if s := Similarity("Acme", "Acmee"); s < 0.79 || s > 0.81 {
		t.Fatalf("one edit over five runes should score 0.8, got %f", s)
	}
	if s := Similarity("", ""); s != 1 {
		t.Fatalf("empty strings should score 1, got %f", s)
	}
}

func TestResolveFuzzyMerge(t *testing.T) {
	r := NewResolver(0.90, nil)

	e1, created := r.Resolve("Acme Inc.", common.KindStartup, false)
	if !created {
		t.Fatalf("first mention should create the entity")
	}
	if e1.Name != "Acme Inc" {
		t.Fatalf("expected canonical name Acme Inc, got %q", e1.Name)
	}

	e2, created := r.Resolve("ACME, Inc", common.KindStartup, false)
	if created {
		t.Fatalf("suffix variant should merge into the existing record")
	}
	if e2.Key() != e1.Key() {
		t.Fatalf("variants resolved to different keys: %q vs %q", e1.Key(), e2.Key())
	}
	if e2.Name != "Acme Inc" {
		t.Fatalf("merge must never overwrite the canonical name, got %q", e2.Name)
	}
}

func TestResolveFuzzySpelling(t *testing.T) {
	// "Acme" vs "Acmee" is one edit over five runes, ratio 0.8
	r := NewResolver(0.80, nil)

	e1, _ := r.Resolve("Acme", common.KindStartup, false)
	e2, created := r.Resolve("Acmee", common.KindStartup, false)
	if created || e2.Key() != e1.Key() {
		t.Fatalf("Acmee should fuzzy-merge into Acme, created=%v key=%q", created, e2.Key())
	}
	found := false
	for _, a := range e2.Aliases {
		if a == "Acmee" {
			found = true
		}
	}
	if !found {
		t.Fatalf("merge should record the raw form as alias, got %v", e2.Aliases)
	}
}

func TestResolveKindIsolation(t *testing.T) {
	r := NewResolver(0.90, nil)

	startup, _ := r.Resolve("Acme", common.KindStartup, false)
	investor, created := r.Resolve("Acme Capital", common.KindInvestor, false)
	if !created {
		t.Fatalf("investor should be a new record")
	}
	if investor.Key() == startup.Key() {
		t.Fatalf("entities of different kinds must never merge")
	}

	// exact name collision across kinds stays separate but is flagged
	sector, created := r.Resolve("Acme", common.KindSector, false)
	if !created {
		t.Fatalf("cross-kind name should create a separate record")
	}
	if !sector.NeedsReview {
		t.Fatalf("cross-kind collision should be flagged for review")
	}
}

func TestResolveDeterministicTieBreak(t *testing.T) {
	existing := []common.Entity{
		{Kind: common.KindStartup, Name: "Acmea"},
		{Kind: common.KindStartup, Name: "Acmeb"},
	}
	// both candidates are one edit away from the query; the
	// lexicographically first must win, on every run
	for i := 0; i < 5; i++ {
		r := NewResolver(0.80, existing)
		e, created := r.Resolve("Acmec", common.KindStartup, false)
		if created {
			t.Fatalf("query should merge into an existing record")
		}
		if e.Name != "Acmea" {
			t.Fatalf("run %d: tie broke to %q, want Acmea", i, e.Name)
		}
	}
}

func TestResolveSeedFromStore(t *testing.T) {
	existing := []common.Entity{
		{Kind: common.KindStartup, Name: "Acme Inc", Aliases: []string{"Acme Inc."}},
	}
	r := NewResolver(0.90, existing)
	e, created := r.Resolve("acme", common.KindStartup, true)
	if created {
		t.Fatalf("stored entity should be found under its suffix-stripped key")
	}
	if e.Name != "Acme Inc" {
		t.Fatalf("stored canonical name should survive, got %q", e.Name)
	}
	if !e.AI {
		t.Fatalf("AI flag should stick after an AI-sourced mention")
	}
}
