package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/FranksOps/leadgen/internal/storage"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ensure postgresBackend implements storage.Backend
var _ storage.Backend = (*postgresBackend)(nil)

type postgresBackend struct {
	pool *pgxpool.Pool
}

// New creates a new Postgres-backed storage.Backend, applying any pending
// migrations first.
func New(ctx context.Context, dsn string) (storage.Backend, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	if err := Migrate(dsn, "up", 0); err != nil {
		pool.Close()
		return nil, err
	}

	return &postgresBackend{pool: pool}, nil
}

func (b *postgresBackend) AddTarget(ctx context.Context, t *storage.Target) (int64, error) {
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}

	err := b.pool.QueryRow(ctx,
		`INSERT INTO targets (name, criteria, processed, created_at) VALUES ($1, $2, $3, $4) RETURNING id`,
		t.Name, t.Criteria, t.Processed, t.CreatedAt,
	).Scan(&t.ID)
	if err != nil {
		return 0, storage.WriteErr("add_target", err)
	}
	return t.ID, nil
}

func (b *postgresBackend) FetchPending(ctx context.Context) ([]*storage.Target, error) {
	pending := false
	targets, err := b.queryTargets(ctx, storage.TargetFilter{Processed: &pending})
	return targets, storage.ReadErr("fetch_pending", err)
}

func (b *postgresBackend) MarkProcessed(ctx context.Context, id int64) error {
	tag, err := b.pool.Exec(ctx, `UPDATE targets SET processed = TRUE WHERE id = $1`, id)
	if err != nil {
		return storage.WriteErr("mark_processed", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.WriteErr("mark_processed", fmt.Errorf("id %d: %w", id, storage.ErrTargetNotFound))
	}
	return nil
}

func (b *postgresBackend) InsertLead(ctx context.Context, lead *storage.Lead) (int64, error) {
	dataJSON, err := json.Marshal(lead.Data)
	if err != nil {
		return 0, storage.WriteErr("insert_lead", fmt.Errorf("encode lead data: %w", err))
	}
	if lead.CreatedAt.IsZero() {
		lead.CreatedAt = time.Now().UTC()
	}

	err = b.pool.QueryRow(ctx,
		`INSERT INTO leads (target_id, data, created_at) VALUES ($1, $2, $3) RETURNING id`,
		lead.TargetID, dataJSON, lead.CreatedAt,
	).Scan(&lead.ID)
	if err != nil {
		return 0, storage.WriteErr("insert_lead", err)
	}
	return lead.ID, nil
}

func (b *postgresBackend) QueryTargets(ctx context.Context, filter storage.TargetFilter) ([]*storage.Target, error) {
	targets, err := b.queryTargets(ctx, filter)
	return targets, storage.ReadErr("query_targets", err)
}

func (b *postgresBackend) queryTargets(ctx context.Context, filter storage.TargetFilter) ([]*storage.Target, error) {
	// criteria::text keeps databases that declared the column as jsonb readable.
	query := `SELECT id, name, criteria::text, processed, created_at FROM targets WHERE 1=1`
	args := []any{}
	paramCount := 1

	if filter.Processed != nil {
		query += fmt.Sprintf(` AND processed = $%d`, paramCount)
		args = append(args, *filter.Processed)
		paramCount++
	}

	query += ` ORDER BY id ASC`
	query, args = paginate(query, args, paramCount, filter.Limit, filter.Offset)

	rows, err := b.pool.Query(ctx, query, args...)
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

func (b *postgresBackend) QueryLeads(ctx context.Context, filter storage.LeadFilter) ([]*storage.Lead, error) {
	query := `SELECT id, target_id, data, created_at FROM leads WHERE 1=1`
	args := []any{}
	paramCount := 1

	if filter.TargetID != 0 {
		query += fmt.Sprintf(` AND target_id = $%d`, paramCount)
		args = append(args, filter.TargetID)
		paramCount++
	}
	if filter.Since != nil {
		query += fmt.Sprintf(` AND created_at >= $%d`, paramCount)
		args = append(args, *filter.Since)
		paramCount++
	}

	query += ` ORDER BY id ASC`
	query, args = paginate(query, args, paramCount, filter.Limit, filter.Offset)

	rows, err := b.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, storage.ReadErr("query_leads", err)
	}
	defer rows.Close()

	var leads []*storage.Lead
	for rows.Next() {
		var l storage.Lead
		var dataJSON []byte
		if err := rows.Scan(&l.ID, &l.TargetID, &dataJSON, &l.CreatedAt); err != nil {
			return nil, storage.ReadErr("query_leads", err)
		}
		if err := json.Unmarshal(dataJSON, &l.Data); err != nil {
			return nil, storage.ReadErr("query_leads", fmt.Errorf("decode lead %d: %w", l.ID, err))
		}
		leads = append(leads, &l)
	}
	if err := rows.Err(); err != nil {
		return nil, storage.ReadErr("query_leads", err)
	}
	return leads, nil
}

func paginate(query string, args []any, paramCount, limit, offset int) (string, []any) {
	if limit > 0 {
		query += fmt.Sprintf(` LIMIT $%d`, paramCount)
		args = append(args, limit)
		paramCount++
	}
	if offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, paramCount)
		args = append(args, offset)
	}
	return query, args
}

func (b *postgresBackend) Close() error {
	b.pool.Close()
	return nil
}
