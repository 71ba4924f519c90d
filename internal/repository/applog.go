package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/apilens-io/apilens/internal/model"
)

const appLogColumns = 8

// ApplicationLogRepository bulk-persists application log lines.
type ApplicationLogRepository struct {
	pool *pgxpool.Pool
}

// NewApplicationLogRepository returns an ApplicationLogRepository using the
// given pool.
func NewApplicationLogRepository(pool *pgxpool.Pool) *ApplicationLogRepository {
	return &ApplicationLogRepository{pool: pool}
}

// CreateMany inserts logs in chunks of 500 and returns the inserted count.
func (r *ApplicationLogRepository) CreateMany(ctx context.Context, logs []model.ApplicationLog) (int64, error) {
	var inserted int64
	for i, chunk := range Chunks(logs, insertChunkSize) {
		n, err := r.insertChunk(ctx, chunk)
		if err != nil {
			return inserted, fmt.Errorf("insert application log chunk %d: %w", i, err)
		}
		inserted += n
	}
	return inserted, nil
}

func (r *ApplicationLogRepository) insertChunk(ctx context.Context, chunk []model.ApplicationLog) (int64, error) {
	var sb strings.Builder
	sb.WriteString(`INSERT INTO application_logs (
		app_id, request_uuid, message, level, logger, file, line, timestamp
	) VALUES `)

	args := make([]any, 0, len(chunk)*appLogColumns)
	for i, row := range chunk {
		if i > 0 {
			sb.WriteString(", ")
		}
		base := i * appLogColumns
		fmt.Fprintf(&sb, "($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7, base+8)
		args = append(args,
			row.AppID,
			row.RequestUUID,
			row.Message,
			row.Level,
			row.Logger,
			row.File,
			row.Line,
			row.Timestamp,
		)
	}

	tag, err := r.pool.Exec(ctx, sb.String(), args...)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
