package postgres

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/FranksOps/leadgen/internal/storage"
)

func TestMigrateURL(t *testing.T) {
	tests := map[string]string{
		"postgres://u:p@localhost:5432/db":   "pgx5://u:p@localhost:5432/db",
		"postgresql://u:p@localhost:5432/db": "pgx5://u:p@localhost:5432/db",
		"pgx5://u:p@localhost/db":            "pgx5://u:p@localhost/db",
	}
	for in, want := range tests {
		if got := migrateURL(in); got != want {
			t.Errorf("migrateURL(%q): expected %q, got %q", in, want, got)
		}
	}
}

func TestEmbeddedMigrations(t *testing.T) {
	entries, err := migrationFS.ReadDir("migrations")
	if err != nil {
		t.Fatalf("Failed to read embedded migrations: %v", err)
	}
	if len(entries) < 2 {
		t.Fatalf("Expected up and down migrations, got %d files", len(entries))
	}
}

func TestPaginate(t *testing.T) {
	q, args := paginate("SELECT 1 WHERE a = $1", []any{"x"}, 2, 10, 5)
	if q != "SELECT 1 WHERE a = $1 LIMIT $2 OFFSET $3" {
		t.Errorf("unexpected query %q", q)
	}
	if len(args) != 3 {
		t.Errorf("Expected 3 args, got %d", len(args))
	}
}

func TestPostgresBackend(t *testing.T) {
	// Only run this test if LEADGEN_TEST_PG_DSN is set
	dsn := os.Getenv("LEADGEN_TEST_PG_DSN")
	if dsn == "" {
		t.Skip("Skipping Postgres backend test: LEADGEN_TEST_PG_DSN not set")
	}

	ctx := context.Background()
	b, err := New(ctx, dsn)
	if err != nil {
		t.Fatalf("Failed to create Postgres backend: %v", err)
	}
	defer b.Close()

	target := &storage.Target{
		Name:     "pg-test-" + time.Now().Format("150405.000"),
		Criteria: `{"industry":"logistics"}`,
	}
	if _, err := b.AddTarget(ctx, target); err != nil {
		t.Fatalf("Failed to add target: %v", err)
	}

	// Can contain rows from earlier runs, so look for ours.
	pending, err := b.FetchPending(ctx)
	if err != nil {
		t.Fatalf("Failed to fetch pending: %v", err)
	}
	found := false
	for _, p := range pending {
		if p.ID == target.ID {
			found = true
			if p.Name != target.Name {
				t.Errorf("Expected Name %s, got %s", target.Name, p.Name)
			}
		}
	}
	if !found {
		t.Fatalf("Expected target %d in pending set", target.ID)
	}

	lead := &storage.Lead{TargetID: target.ID, Data: map[string]any{"title": "Freight Co"}}
	if _, err := b.InsertLead(ctx, lead); err != nil {
		t.Fatalf("Failed to insert lead: %v", err)
	}

	if err := b.MarkProcessed(ctx, target.ID); err != nil {
		t.Fatalf("Failed to mark processed: %v", err)
	}
	if err := b.MarkProcessed(ctx, target.ID); err != nil {
		t.Fatalf("Expected idempotent mark, got %v", err)
	}

	leads, err := b.QueryLeads(ctx, storage.LeadFilter{TargetID: target.ID})
	if err != nil {
		t.Fatalf("Failed to query leads: %v", err)
	}
	if len(leads) != 1 || leads[0].Data["title"] != "Freight Co" {
		t.Fatalf("Expected 1 lead for target, got %+v", leads)
	}

	err = b.MarkProcessed(ctx, -1)
	if !errors.Is(err, storage.ErrTargetNotFound) {
		t.Errorf("Expected ErrTargetNotFound, got %v", err)
	}
}
