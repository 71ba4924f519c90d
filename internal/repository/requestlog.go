package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/apilens-io/apilens/internal/model"
)

// insertChunkSize bounds rows per INSERT so one statement never exceeds the
// parameter limit and partial progress survives a later chunk failing.
const insertChunkSize = 500

const requestLogColumns = 20

// RequestLogRepository bulk-persists enriched request logs.
type RequestLogRepository struct {
	pool *pgxpool.Pool
}

// NewRequestLogRepository returns a RequestLogRepository using the given
// pool.
func NewRequestLogRepository(pool *pgxpool.Pool) *RequestLogRepository {
	return &RequestLogRepository{pool: pool}
}

// CreateMany inserts logs in chunks of 500 and returns the number of rows
// actually inserted. Rows whose request_uuid already exists are skipped, so
// re-running a partially committed batch after a retry cannot duplicate them;
// a result lower than len(logs) is the duplicate signal. Chunks already
// committed before a failing chunk stay committed.
func (r *RequestLogRepository) CreateMany(ctx context.Context, logs []model.RequestLog) (int64, error) {
	var inserted int64
	for i, chunk := range Chunks(logs, insertChunkSize) {
		n, err := r.insertChunk(ctx, chunk)
		if err != nil {
			return inserted, fmt.Errorf("insert request log chunk %d: %w", i, err)
		}
		inserted += n
	}
	return inserted, nil
}

func (r *RequestLogRepository) insertChunk(ctx context.Context, chunk []model.RequestLog) (int64, error) {
	var sb strings.Builder
	sb.WriteString(`INSERT INTO request_logs (
		app_id, consumer_id, request_uuid, method, path, url,
		status_code, response_time, request_size, response_size,
		request_headers, response_headers, request_body, response_body,
		client_ip, client_country_code,
		exception_type, exception_message, exception_stacktrace, timestamp
	) VALUES `)

	args := make([]any, 0, len(chunk)*requestLogColumns)
	for i, row := range chunk {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString("(")
		base := i * requestLogColumns
		for j := 1; j <= requestLogColumns; j++ {
			if j > 1 {
				sb.WriteString(", ")
			}
			fmt.Fprintf(&sb, "$%d", base+j)
		}
		sb.WriteString(")")
		args = append(args,
			row.AppID,
			row.ConsumerID,
			row.RequestUUID,
			row.Method,
			row.Path,
			row.URL,
			row.StatusCode,
			row.ResponseTime,
			row.RequestSize,
			row.ResponseSize,
			row.RequestHeaders,
			row.ResponseHeaders,
			row.RequestBody,
			row.ResponseBody,
			row.ClientIP,
			row.ClientCountryCode,
			row.ExceptionType,
			row.ExceptionMessage,
			row.ExceptionStack,
			row.Timestamp,
		)
	}
	sb.WriteString(` ON CONFLICT (request_uuid) DO NOTHING`)

	tag, err := r.pool.Exec(ctx, sb.String(), args...)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
