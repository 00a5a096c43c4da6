package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/FranksOps/leadgen/internal/storage"
	_ "modernc.org/sqlite"
)

// ensure sqliteBackend implements storage.Backend
var _ storage.Backend = (*sqliteBackend)(nil)

type sqliteBackend struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS targets (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL,
	criteria TEXT NOT NULL,
	processed BOOLEAN NOT NULL DEFAULT 0,
	created_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_targets_processed ON targets(processed);

CREATE TABLE IF NOT EXISTS leads (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	target_id INTEGER NOT NULL REFERENCES targets(id),
	data TEXT NOT NULL,
	created_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_leads_target ON leads(target_id);
`

// DSN builds a file DSN with a busy timeout so concurrent CLI invocations
// wait on the write lock instead of failing.
func DSN(path string) string {
	if strings.HasPrefix(path, "file:") {
		return path
	}
	return fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)", path)
}

// New creates a new SQLite-backed storage.Backend.
func New(dsn string) (storage.Backend, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("bootstrap sqlite schema: %w", err)
	}

	return &sqliteBackend{db: db}, nil
}

func (b *sqliteBackend) AddTarget(ctx context.Context, t *storage.Target) (int64, error) {
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}

	res, err := b.db.ExecContext(ctx,
		`INSERT INTO targets (name, criteria, processed, created_at) VALUES (?, ?, ?, ?)`,
		t.Name, t.Criteria, t.Processed, t.CreatedAt,
	)
	if err != nil {
		return 0, storage.WriteErr("add_target", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, storage.WriteErr("add_target", err)
	}
	t.ID = id
	return id, nil
}

func (b *sqliteBackend) FetchPending(ctx context.Context) ([]*storage.Target, error) {
	pending := false
	targets, err := b.queryTargets(ctx, storage.TargetFilter{Processed: &pending})
	return targets, storage.ReadErr("fetch_pending", err)
}

func (b *sqliteBackend) MarkProcessed(ctx context.Context, id int64) error {
	res, err := b.db.ExecContext(ctx, `UPDATE targets SET processed = 1 WHERE id = ?`, id)
	if err != nil {
		return storage.WriteErr("mark_processed", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return storage.WriteErr("mark_processed", err)
	}
	if n == 0 {
		return storage.WriteErr("mark_processed", fmt.Errorf("id %d: %w", id, storage.ErrTargetNotFound))
	}
	return nil
}

func (b *sqliteBackend) InsertLead(ctx context.Context, lead *storage.Lead) (int64, error) {
	dataJSON, err := json.Marshal(lead.Data)
	if err != nil {
		return 0, storage.WriteErr("insert_lead", fmt.Errorf("encode lead data: %w", err))
	}
	if lead.CreatedAt.IsZero() {
		lead.CreatedAt = time.Now().UTC()
	}

	res, err := b.db.ExecContext(ctx,
		`INSERT INTO leads (target_id, data, created_at) VALUES (?, ?, ?)`,
		lead.TargetID, string(dataJSON), lead.CreatedAt,
	)
	if err != nil {
		return 0, storage.WriteErr("insert_lead", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, storage.WriteErr("insert_lead", err)
	}
	lead.ID = id
	return id, nil
}

func (b *sqliteBackend) QueryTargets(ctx context.Context, filter storage.TargetFilter) ([]*storage.Target, error) {
	targets, err := b.queryTargets(ctx, filter)
	return targets, storage.ReadErr("query_targets", err)
}

func (b *sqliteBackend) queryTargets(ctx context.Context, filter storage.TargetFilter) ([]*storage.Target, error) {
	query := `SELECT id, name, criteria, processed, created_at FROM targets WHERE 1=1`
	args := []any{}

	if filter.Processed != nil {
		query += ` AND processed = ?`
		args = append(args, *filter.Processed)
	}

	query += ` ORDER BY id ASC`
	query, args = paginate(query, args, filter.Limit, filter.Offset)

	rows, err := b.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var targets []*storage.Target
	for rows.Next() {
		var t storage.Target
		if err := rows.Scan(&t.ID, &t.Name, &t.Criteria, &t.Processed, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan target: %w", err)
		}
		targets = append(targets, &t)
	}
	return targets, rows.Err()
}

func (b *sqliteBackend) QueryLeads(ctx context.Context, filter storage.LeadFilter) ([]*storage.Lead, error) {
	query := `SELECT id, target_id, data, created_at FROM leads WHERE 1=1`
	args := []any{}

	if filter.TargetID != 0 {
		query += ` AND target_id = ?`
		args = append(args, filter.TargetID)
	}
	if filter.Since != nil {
		query += ` AND created_at >= ?`
		args = append(args, *filter.Since)
	}

	query += ` ORDER BY id ASC`
	query, args = paginate(query, args, filter.Limit, filter.Offset)

	rows, err := b.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storage.ReadErr("query_leads", err)
	}
	defer rows.Close()

	var leads []*storage.Lead
	for rows.Next() {
		var l storage.Lead
		var dataJSON string
		if err := rows.Scan(&l.ID, &l.TargetID, &dataJSON, &l.CreatedAt); err != nil {
			return nil, storage.ReadErr("query_leads", err)
		}
		if err := json.Unmarshal([]byte(dataJSON), &l.Data); err != nil {
			return nil, storage.ReadErr("query_leads", fmt.Errorf("decode lead %d: %w", l.ID, err))
		}
		leads = append(leads, &l)
	}
	if err := rows.Err(); err != nil {
		return nil, storage.ReadErr("query_leads", err)
	}
	return leads, nil
}

func paginate(query string, args []any, limit, offset int) (string, []any) {
	// SQLite only accepts OFFSET after a LIMIT clause.
	if limit > 0 || offset > 0 {
		if limit <= 0 {
			limit = -1
		}
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	if offset > 0 {
		query += ` OFFSET ?`
		args = append(args, offset)
	}
	return query, args
}

func (b *sqliteBackend) Close() error {
	return b.db.Close()
}
