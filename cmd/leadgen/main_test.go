package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/FranksOps/leadgen/internal/config"
	"github.com/FranksOps/leadgen/internal/pipeline"
	"github.com/FranksOps/leadgen/internal/querygen"
	"github.com/FranksOps/leadgen/internal/storage"
	"github.com/FranksOps/leadgen/internal/storage/sqlite"
)

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, 0},
		{"config", &config.Error{Problems: []string{"OPENAI_API_KEY is required"}}, 2},
		{"wrapped config", fmt.Errorf("load: %w", &config.Error{}), 2},
		{"explicit", &exitError{code: 3, err: errors.New("x")}, 3},
		{"read", &storage.ReadError{Op: "fetch_pending", Err: errors.New("down")}, 1},
	}
	for _, tt := range tests {
		if got := exitCode(tt.err); got != tt.want {
			t.Errorf("%s: Expected exit code %d, got %d", tt.name, tt.want, got)
		}
	}
}

func TestRunChecks(t *testing.T) {
	var buf bytes.Buffer
	checks := []healthCheck{
		{name: "store", fn: func(context.Context) (string, error) { return "3 pending targets", nil }},
		{name: "model", fn: func(context.Context) (string, error) {
			return "", errors.New("401 for key sk-live-abcdef123456")
		}},
	}

	err := runChecks(context.Background(), &buf, checks, []string{"sk-live-abcdef123456"})
	if exitCode(err) != 1 {
		t.Fatalf("Expected exit code 1, got %v", err)
	}

	out := buf.String()
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 2 {
		t.Fatalf("Expected 2 lines, got %q", out)
	}
	if !strings.HasPrefix(lines[0], "OK") || !strings.Contains(lines[0], "3 pending targets") {
		t.Errorf("Expected store OK first, got %q", lines[0])
	}
	if !strings.HasPrefix(lines[1], "FAIL") || strings.Contains(out, "abcdef123456") {
		t.Errorf("Expected redacted model failure, got %q", lines[1])
	}
}

type captureGen struct{ in querygen.Input }

func (g *captureGen) Generate(_ context.Context, in querygen.Input) (string, error) {
	g.in = in
	return "software companies Berlin", nil
}

func TestModelCheck(t *testing.T) {
	gen := &captureGen{}
	detail, err := modelCheck("model (fake)", gen).fn(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(detail, "software companies Berlin") {
		t.Errorf("Expected generated query in detail, got %q", detail)
	}
	if gen.in.Criteria["industry"] != "software" || gen.in.Criteria["location"] != "Berlin" {
		t.Errorf("Expected structured criteria, got %v", gen.in.Criteria)
	}
	if gen.in.Target == nil || gen.in.Target.Criteria == "" {
		t.Errorf("Expected target with criteria text, got %+v", gen.in.Target)
	}
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	root := newRootCmd(&stdout, &stderr)
	root.SetArgs(append([]string{"--env-file="}, args...))
	err := root.ExecuteContext(context.Background())
	return stdout.String(), err
}

func sqliteEnv(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "leadgen.db")
	t.Setenv("STORE_BACKEND", "sqlite")
	t.Setenv("SQLITE_PATH", path)
	t.Setenv("LOG_LEVEL", "error")
	return path
}

func TestTargetsAddAndList(t *testing.T) {
	sqliteEnv(t)

	out, err := execute(t, "targets", "add", "--name", "Acme", "--criteria", `{"industry":"SaaS"}`)
	if err != nil {
		t.Fatalf("targets add: %v", err)
	}
	if strings.TrimSpace(out) != "1" {
		t.Errorf("Expected id 1, got %q", out)
	}

	if _, err := execute(t, "targets", "add", "--name", "Bad", "--criteria", "[1, 2]"); exitCode(err) != 2 {
		t.Errorf("Expected exit code 2 for list criteria, got %v", err)
	}

	out, err = execute(t, "targets", "list", "--pending", "--json")
	if err != nil {
		t.Fatalf("targets list: %v", err)
	}
	var targets []storage.Target
	if err := json.Unmarshal([]byte(out), &targets); err != nil {
		t.Fatalf("Expected JSON output, got %q", out)
	}
	if len(targets) != 1 || targets[0].Name != "Acme" || targets[0].Processed {
		t.Errorf("Unexpected targets %+v", targets)
	}
}

func TestRun_MissingKeysIsConfigError(t *testing.T) {
	sqliteEnv(t)
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("SERPER_API_KEY", "")

	_, err := execute(t, "run")
	if exitCode(err) != 2 {
		t.Fatalf("Expected exit code 2, got %v", err)
	}
	if !strings.Contains(err.Error(), "OPENAI_API_KEY") || !strings.Contains(err.Error(), "SERPER_API_KEY") {
		t.Errorf("Expected both missing keys named, got %v", err)
	}
}

func TestRun_AttemptCapNeedsRedis(t *testing.T) {
	sqliteEnv(t)
	t.Setenv("OPENAI_API_KEY", "sk-test-0000")
	t.Setenv("SERPER_API_KEY", "serper-test-key")
	t.Setenv("REDIS_ADDR", "")

	_, err := execute(t, "run", "--max-attempts", "3")
	if exitCode(err) != 2 {
		t.Fatalf("Expected exit code 2, got %v", err)
	}
	if !strings.Contains(err.Error(), "REDIS_ADDR") {
		t.Errorf("Expected REDIS_ADDR named, got %v", err)
	}
}

func TestRun_EndToEnd(t *testing.T) {
	dbPath := sqliteEnv(t)

	model := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"choices":[{"message":{"tool_calls":[{"id":"c1","type":"function",
			"function":{"name":"emit_search_query","arguments":"{\"query\":\"SaaS companies in Ohio\"}"}}]},
			"finish_reason":"tool_calls"}]}`)
	}))
	defer model.Close()

	var searches int32
	serper := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&searches, 1)
		if r.Header.Get("X-API-KEY") != "serper-test-key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"organic":[
			{"title":"Acme Corp","link":"https://acme.example","snippet":"SaaS in Ohio","position":1},
			{"title":"Initech","link":"https://initech.example","position":2}]}`)
	}))
	defer serper.Close()

	t.Setenv("OPENAI_API_KEY", "sk-test-0000")
	t.Setenv("OPENAI_BASE_URL", model.URL)
	t.Setenv("SERPER_API_KEY", "serper-test-key")
	t.Setenv("SEARCH_BASE_URL", serper.URL)

	if _, err := execute(t, "targets", "add", "--name", "Acme", "--criteria", `{"industry":"SaaS","region":"Ohio"}`); err != nil {
		t.Fatalf("targets add: %v", err)
	}

	out, err := execute(t, "run", "--format", "json", "--search-provider", "serper")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	var summary pipeline.Summary
	if err := json.Unmarshal([]byte(out), &summary); err != nil {
		t.Fatalf("Expected JSON summary, got %q", out)
	}
	if summary.Attempted != 1 || summary.Succeeded != 1 || summary.LeadsInserted != 2 {
		t.Errorf("Unexpected summary %+v", summary)
	}
	if got := atomic.LoadInt32(&searches); got != 1 {
		t.Errorf("Expected 1 search call, got %d", got)
	}

	store, err := sqlite.New(sqlite.DSN(dbPath))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	defer store.Close()

	pending, err := store.FetchPending(context.Background())
	if err != nil || len(pending) != 0 {
		t.Errorf("Expected no pending targets after run, got %d (%v)", len(pending), err)
	}
	leads, err := store.QueryLeads(context.Background(), storage.LeadFilter{TargetID: 1})
	if err != nil || len(leads) != 2 {
		t.Fatalf("Expected 2 leads, got %d (%v)", len(leads), err)
	}
	if leads[0].Data["link"] != "https://acme.example" {
		t.Errorf("Expected leads in provider order, got %v", leads[0].Data)
	}
}
