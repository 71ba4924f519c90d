package model

import (
	"time"

	"github.com/google/uuid"
)

// RequestLog is the enriched, durable form of a RawRequestRecord. The
// request_uuid unique constraint makes re-inserts from job retries detectable
// instead of silently duplicating rows.
type RequestLog struct {
	ID                int64             `db:"id"`
	AppID             int64             `db:"app_id"`
	ConsumerID        *int64            `db:"consumer_id"`
	RequestUUID       uuid.UUID         `db:"request_uuid"`
	Method            string            `db:"method"`
	Path              string            `db:"path"`
	URL               string            `db:"url"`
	StatusCode        int               `db:"status_code"`
	ResponseTime      int               `db:"response_time"`
	RequestSize       int64             `db:"request_size"`
	ResponseSize      int64             `db:"response_size"`
	RequestHeaders    map[string]string `db:"request_headers"`
	ResponseHeaders   map[string]string `db:"response_headers"`
	RequestBody       string            `db:"request_body"`
	ResponseBody      string            `db:"response_body"`
	ClientIP          *string           `db:"client_ip"`
	ClientCountryCode *string           `db:"client_country_code"`
	ExceptionType     *string           `db:"exception_type"`
	ExceptionMessage  *string           `db:"exception_message"`
	ExceptionStack    *string           `db:"exception_stacktrace"`
	Timestamp         time.Time         `db:"timestamp"`
	CreatedAt         time.Time         `db:"created_at"`
}

// ApplicationLog is one persisted log line, joined to its request by
// request_uuid (many-to-one, not a primary key relation).
type ApplicationLog struct {
	ID          int64     `db:"id"`
	AppID       int64     `db:"app_id"`
	RequestUUID uuid.UUID `db:"request_uuid"`
	Message     string    `db:"message"`
	Level       *string   `db:"level"`
	Logger      *string   `db:"logger"`
	File        *string   `db:"file"`
	Line        *int      `db:"line"`
	Timestamp   time.Time `db:"timestamp"`
	CreatedAt   time.Time `db:"created_at"`
}
