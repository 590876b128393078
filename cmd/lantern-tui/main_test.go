package main

import (
	"reflect"
	"testing"

	"lantern/internal/api"
)

func TestAnalysisRowsOrdering(t *testing.T) {
	report := api.Report{
		Temperaments: map[string]map[string]float64{
			"zoe":   {"rational": 9, "artisan": 2},
			"alice": {"guardian": 5},
		},
		EmotionalAspects: map[string]float64{
			"empathy":      3,
			"toxicity":     8,
			"positiveness": 1,
		},
	}

	rows := analysisRows(report)
	got := make([]string, 0, len(rows))
	for _, row := range rows {
		got = append(got, row.Subject+"/"+row.Trait)
	}
	want := []string{
		"alice/guardian",
		"zoe/artisan",
		"zoe/rational",
		"conversation/positiveness",
		"conversation/toxicity",
		"conversation/empathy",
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("rows = %v, want %v", got, want)
	}
}

func TestAnalysisRowsAggregateSubjectFirst(t *testing.T) {
	report := api.Report{
		Temperaments: map[string]map[string]float64{
			"bob":                {"artisan": 1},
			api.AggregateSubject: {"artisan": 4, "guardian": 2},
		},
	}
	rows := analysisRows(report)
	if len(rows) != 3 || rows[0].Subject != api.AggregateSubject {
		t.Fatalf("rows = %+v", rows)
	}
}

func TestOrderedTraitsUnknownTrailAlphabetically(t *testing.T) {
	scores := map[string]float64{"guardian": 1, "zeal": 2, "artisan": 3, "calm": 4}
	got := orderedTraits(scores, temperamentOrder)
	want := []string{"artisan", "guardian", "calm", "zeal"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("orderedTraits = %v, want %v", got, want)
	}
}

func TestDisplayTrait(t *testing.T) {
	cases := map[string]string{
		"emotional_depth": "Emotional Depth",
		"toxicity":        "Toxicity",
		"artisan":         "Artisan",
	}
	for in, want := range cases {
		if got := displayTrait(in); got != want {
			t.Fatalf("displayTrait(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestWrapText(t *testing.T) {
	got := wrapText("one two three four", 9)
	want := "one two\nthree\nfour"
	if got != want {
		t.Fatalf("wrapText = %q, want %q", got, want)
	}
	if got := wrapText("short", 0); got != "short" {
		t.Fatalf("wrapText with zero width = %q", got)
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("abcdefgh", 6); got != "abc..." {
		t.Fatalf("truncate = %q", got)
	}
	if got := truncate("abc", 6); got != "abc" {
		t.Fatalf("truncate short = %q", got)
	}
	if got := truncate("abcdef", 2); got != "ab" {
		t.Fatalf("truncate tiny = %q", got)
	}
}

func TestCompactSingleLine(t *testing.T) {
	if got := compactSingleLine("  a\n\n b\tc  ", 40); got != "a b c" {
		t.Fatalf("compactSingleLine = %q", got)
	}
}

func TestClampInt(t *testing.T) {
	if got := clampInt(5, 0, 3); got != 3 {
		t.Fatalf("clampInt high = %d", got)
	}
	if got := clampInt(-1, 0, 3); got != 0 {
		t.Fatalf("clampInt low = %d", got)
	}
	if got := clampInt(2, 0, 3); got != 2 {
		t.Fatalf("clampInt mid = %d", got)
	}
}

func TestNullCoalesce(t *testing.T) {
	if got := nullCoalesce("  ", "fallback"); got != "fallback" {
		t.Fatalf("nullCoalesce blank = %q", got)
	}
	if got := nullCoalesce("value", "fallback"); got != "value" {
		t.Fatalf("nullCoalesce = %q", got)
	}
}
