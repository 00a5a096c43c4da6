package report

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/FranksOps/leadgen/internal/pipeline"
)

func sampleSummary() *pipeline.Summary {
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	return &pipeline.Summary{
		RunID:         "run-1",
		StartedAt:     start,
		FinishedAt:    start.Add(3 * time.Second),
		Attempted:     2,
		Succeeded:     1,
		Failed:        1,
		Skipped:       1,
		LeadsInserted: 2,
		Outcomes: []pipeline.Outcome{
			{TargetID: 7, Name: "Target7", Query: "SaaS companies Ohio", Leads: 2, Status: pipeline.StatusProcessed},
			{TargetID: 8, Name: "<b>Evil</b>", Query: "x", Status: pipeline.StatusFailed, Kind: pipeline.KindSearchProvider, Error: "search (serper): timeout"},
			{TargetID: 9, Name: "Stuck", Status: pipeline.StatusSkipped},
		},
	}
}

func TestWriteText(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteText(&buf, sampleSummary()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	out := buf.String()

	for _, want := range []string{
		"Lead Generation Run run-1",
		"2026-03-01 09:00:00 - 2026-03-01 09:00:03 (3s)",
		"Succeeded:  1",
		"[processed] #7 Target7",
		"query: SaaS companies Ohio",
		"SearchProviderError: search (serper): timeout",
		"[skipped] #9 Stuck",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in text report:\n%s", want, out)
		}
	}
}

func TestWriteText_Empty(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteText(&buf, &pipeline.Summary{RunID: "r"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(buf.String(), "None pending") {
		t.Errorf("expected 'None pending', got:\n%s", buf.String())
	}
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteJSON(&buf, sampleSummary()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var decoded pipeline.Summary
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("failed to decode json: %v", err)
	}
	if decoded.RunID != "run-1" || len(decoded.Outcomes) != 3 {
		t.Errorf("unexpected decoded summary %+v", decoded)
	}
	if decoded.Outcomes[1].Kind != pipeline.KindSearchProvider {
		t.Errorf("Expected kind to round trip, got %q", decoded.Outcomes[1].Kind)
	}
}

func TestWriteHTML(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteHTML(&buf, sampleSummary()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	out := buf.String()

	if !strings.Contains(out, "<title>Lead Generation Run run-1</title>") {
		t.Errorf("expected title in html")
	}
	if strings.Contains(out, "<b>Evil</b>") {
		t.Errorf("expected target name to be escaped")
	}
	if !strings.Contains(out, "&lt;b&gt;Evil&lt;/b&gt;") {
		t.Errorf("expected escaped name in html")
	}
	if !strings.Contains(out, `class="stat-val failed"`) {
		t.Errorf("expected failed highlight")
	}
}

func TestParseFormat(t *testing.T) {
	for in, want := range map[string]Format{"": FormatText, "JSON": FormatJSON, "html": FormatHTML} {
		got, err := ParseFormat(in)
		if err != nil || got != want {
			t.Errorf("ParseFormat(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParseFormat("pdf"); err == nil {
		t.Errorf("expected error for pdf")
	}
}

func TestWrite_Dispatch(t *testing.T) {
	var buf bytes.Buffer
	if err := Write(&buf, FormatJSON, sampleSummary()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasPrefix(buf.String(), "{") {
		t.Errorf("expected json output, got %q", buf.String()[:20])
	}
}
