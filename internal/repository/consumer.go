package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/apilens-io/apilens/internal/model"
)

// ConsumerRepository persists and reads consumers discovered during
// ingestion.
type ConsumerRepository struct {
	pool *pgxpool.Pool
}

// NewConsumerRepository returns a ConsumerRepository using the given pool.
func NewConsumerRepository(pool *pgxpool.Pool) *ConsumerRepository {
	return &ConsumerRepository{pool: pool}
}

// FindAllByIdentifiers returns the app's consumers matching any of the given
// identifiers.
func (r *ConsumerRepository) FindAllByIdentifiers(ctx context.Context, appID int64, identifiers []string) ([]model.Consumer, error) {
	if len(identifiers) == 0 {
		return nil, nil
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, app_id, identifier, name, group_id, hidden, created_at
		FROM consumers
		WHERE app_id = $1 AND identifier = ANY($2)`, appID, identifiers)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []model.Consumer
	for rows.Next() {
		var c model.Consumer
		if err := rows.Scan(
			&c.ID,
			&c.AppID,
			&c.Identifier,
			&c.Name,
			&c.GroupID,
			&c.Hidden,
			&c.CreatedAt,
		); err != nil {
			return nil, err
		}
		list = append(list, c)
	}
	return list, rows.Err()
}

// FindGroupIDs reports which of the given consumer group ids exist for the
// app, so callers can null out dangling group references before insert.
func (r *ConsumerRepository) FindGroupIDs(ctx context.Context, appID int64, ids []int64) (map[int64]bool, error) {
	if len(ids) == 0 {
		return map[int64]bool{}, nil
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id FROM consumer_groups
		WHERE app_id = $1 AND id = ANY($2)`, appID, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	known := make(map[int64]bool, len(ids))
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		known[id] = true
	}
	return known, rows.Err()
}

// CreateConsumers inserts the given specs for an app in one statement and
// returns the rows actually created. A concurrent worker may create the same
// (app_id, identifier) first; such conflicts are skipped here and the caller
// re-reads to pick up the winner's row.
func (r *ConsumerRepository) CreateConsumers(ctx context.Context, appID int64, specs []model.ConsumerSpec) ([]model.Consumer, error) {
	if len(specs) == 0 {
		return nil, nil
	}
	var sb strings.Builder
	sb.WriteString(`INSERT INTO consumers (app_id, identifier, name, group_id, hidden) VALUES `)
	args := make([]any, 0, len(specs)*5)
	for i, spec := range specs {
		if i > 0 {
			sb.WriteString(", ")
		}
		base := i * 5
		fmt.Fprintf(&sb, "($%d, $%d, $%d, $%d, $%d)", base+1, base+2, base+3, base+4, base+5)
		args = append(args, appID, spec.Identifier, spec.Name, spec.GroupID, spec.Hidden)
	}
	sb.WriteString(` ON CONFLICT (app_id, identifier) DO NOTHING
		RETURNING id, app_id, identifier, name, group_id, hidden, created_at`)

	rows, err := r.pool.Query(ctx, sb.String(), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var created []model.Consumer
	for rows.Next() {
		var c model.Consumer
		if err := rows.Scan(
			&c.ID,
			&c.AppID,
			&c.Identifier,
			&c.Name,
			&c.GroupID,
			&c.Hidden,
			&c.CreatedAt,
		); err != nil {
			return nil, err
		}
		created = append(created, c)
	}
	return created, rows.Err()
}
