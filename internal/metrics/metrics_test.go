package metrics

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordTarget(t *testing.T) {
	before := testutil.ToFloat64(TargetsTotal.WithLabelValues("failed"))
	beforeKind := testutil.ToFloat64(TargetFailures.WithLabelValues("SearchError"))

	RecordTarget("failed", "SearchError")
	RecordTarget("processed", "")

	if got := testutil.ToFloat64(TargetsTotal.WithLabelValues("failed")); got != before+1 {
		t.Errorf("Expected failed count %v, got %v", before+1, got)
	}
	if got := testutil.ToFloat64(TargetFailures.WithLabelValues("SearchError")); got != beforeKind+1 {
		t.Errorf("Expected SearchError count %v, got %v", beforeKind+1, got)
	}
}

func TestMetricsServer(t *testing.T) {
	srv := Start(8889, nil)
	time.Sleep(100 * time.Millisecond)
	defer srv.Stop(context.Background())

	LeadsInserted.Add(3)
	ObserveStep("search", 250*time.Millisecond)
	RecordFetch("html.duckduckgo.com", 200, false, "", time.Second)
	RecordFetch("html.duckduckgo.com", -1, false, "", time.Second)

	resp, err := http.Get("http://localhost:8889/metrics")
	if err != nil {
		t.Fatalf("failed to fetch metrics: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read body: %v", err)
	}
	output := string(body)

	for _, want := range []string{
		"leadgen_leads_inserted_total",
		`leadgen_step_duration_seconds_bucket{step="search"`,
		`leadgen_fetch_requests_total{block_src="",blocked="false",host="html.duckduckgo.com",status="200"}`,
		`status="error"`,
	} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %s in metrics output", want)
		}
	}
}

func TestStopNil(t *testing.T) {
	var s *Server
	if err := s.Stop(context.Background()); err != nil {
		t.Errorf("Expected nil error, got %v", err)
	}
}
