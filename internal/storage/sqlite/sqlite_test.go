package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/FranksOps/leadgen/internal/storage"
)

func newTestBackend(t *testing.T) storage.Backend {
	t.Helper()
	b, err := New(DSN(filepath.Join(t.TempDir(), "leadgen.db")))
	if err != nil {
		t.Fatalf("Failed to create SQLite backend: %v", err)
	}
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func TestSQLiteBackend(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()

	acme := &storage.Target{Name: "Acme", Criteria: `{"industry":"SaaS","region":"Ohio"}`}
	if _, err := b.AddTarget(ctx, acme); err != nil {
		t.Fatalf("Failed to add target: %v", err)
	}
	globex := &storage.Target{Name: "Globex", Criteria: "fintech in NYC"}
	if _, err := b.AddTarget(ctx, globex); err != nil {
		t.Fatalf("Failed to add target: %v", err)
	}
	if acme.ID == 0 || globex.ID <= acme.ID {
		t.Fatalf("Expected increasing ids, got %d and %d", acme.ID, globex.ID)
	}

	pending, err := b.FetchPending(ctx)
	if err != nil {
		t.Fatalf("Failed to fetch pending: %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("Expected 2 pending targets, got %d", len(pending))
	}
	if pending[0].Name != "Acme" || pending[0].Criteria != acme.Criteria {
		t.Errorf("Expected Acme first with raw criteria, got %+v", pending[0])
	}

	lead := &storage.Lead{
		TargetID: acme.ID,
		Data:     map[string]any{"title": "Acme Corp", "link": "https://acme.example"},
	}
	id, err := b.InsertLead(ctx, lead)
	if err != nil {
		t.Fatalf("Failed to insert lead: %v", err)
	}
	if id == 0 || lead.ID != id {
		t.Errorf("Expected lead id to be set, got %d / %d", id, lead.ID)
	}

	if err := b.MarkProcessed(ctx, acme.ID); err != nil {
		t.Fatalf("Failed to mark processed: %v", err)
	}
	// Second mark is a no-op.
	if err := b.MarkProcessed(ctx, acme.ID); err != nil {
		t.Fatalf("Expected idempotent mark, got %v", err)
	}

	pending, err = b.FetchPending(ctx)
	if err != nil {
		t.Fatalf("Failed to fetch pending: %v", err)
	}
	if len(pending) != 1 || pending[0].ID != globex.ID {
		t.Fatalf("Expected only Globex pending, got %+v", pending)
	}

	leads, err := b.QueryLeads(ctx, storage.LeadFilter{TargetID: acme.ID})
	if err != nil {
		t.Fatalf("Failed to query leads: %v", err)
	}
	if len(leads) != 1 {
		t.Fatalf("Expected 1 lead, got %d", len(leads))
	}
	if leads[0].Data["title"] != "Acme Corp" {
		t.Errorf("Expected title Acme Corp, got %v", leads[0].Data["title"])
	}

	past := time.Now().Add(-time.Hour)
	leads, err = b.QueryLeads(ctx, storage.LeadFilter{Since: &past})
	if err != nil {
		t.Fatalf("Failed to query leads with Since: %v", err)
	}
	if len(leads) != 1 {
		t.Fatalf("Expected 1 lead, got %d", len(leads))
	}

	processed := true
	done, err := b.QueryTargets(ctx, storage.TargetFilter{Processed: &processed})
	if err != nil {
		t.Fatalf("Failed to query targets: %v", err)
	}
	if len(done) != 1 || !done[0].Processed {
		t.Fatalf("Expected 1 processed target, got %+v", done)
	}

	page, err := b.QueryTargets(ctx, storage.TargetFilter{Offset: 1})
	if err != nil {
		t.Fatalf("Failed to query targets with offset: %v", err)
	}
	if len(page) != 1 || page[0].ID != globex.ID {
		t.Fatalf("Expected Globex on second page, got %+v", page)
	}
}

func TestSQLiteMarkUnknown(t *testing.T) {
	b := newTestBackend(t)

	err := b.MarkProcessed(context.Background(), 999)
	var we *storage.WriteError
	if !errors.As(err, &we) {
		t.Fatalf("Expected *storage.WriteError, got %v", err)
	}
	if !errors.Is(err, storage.ErrTargetNotFound) {
		t.Errorf("Expected ErrTargetNotFound, got %v", err)
	}
}

func TestSQLiteEmpty(t *testing.T) {
	b := newTestBackend(t)

	pending, err := b.FetchPending(context.Background())
	if err != nil {
		t.Fatalf("Failed to fetch pending: %v", err)
	}
	if len(pending) != 0 {
		t.Errorf("Expected no pending targets, got %d", len(pending))
	}
}

func TestDSN(t *testing.T) {
	if got := DSN("/tmp/x.db"); got != "file:/tmp/x.db?_pragma=busy_timeout(5000)" {
		t.Errorf("unexpected dsn %q", got)
	}
	if got := DSN("file::memory:"); got != "file::memory:" {
		t.Errorf("Expected file DSN passthrough, got %q", got)
	}
}
