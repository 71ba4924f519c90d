package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/apilens-io/apilens/internal/model"
)

// AppRepository reads registered apps. Ingestion only needs the lookup used
// to authenticate client middleware; app management lives elsewhere.
type AppRepository struct {
	pool *pgxpool.Pool
}

// NewAppRepository returns an AppRepository using the given pool.
func NewAppRepository(pool *pgxpool.Pool) *AppRepository {
	return &AppRepository{pool: pool}
}

// FindByClientID returns the app owning the given client credential, or nil
// if no such app exists.
func (r *AppRepository) FindByClientID(ctx context.Context, clientID uuid.UUID) (*model.App, error) {
	var app model.App
	err := r.pool.QueryRow(ctx, `
		SELECT id, name, client_id, active
		FROM apps WHERE client_id = $1`, clientID).Scan(
		&app.ID,
		&app.Name,
		&app.ClientID,
		&app.Active,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &app, nil
}
