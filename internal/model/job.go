package model

import "time"

// Job types dispatched by the ingestion worker. Each type has its own queue
// so a slow enrichment step on one cannot starve the other.
const (
	JobTypeIngestRequestLogs     = "INGEST_REQUEST_LOGS"
	JobTypeIngestApplicationLogs = "INGEST_APPLICATION_LOGS"
)

// RequestLogJobPayload is the payload of one INGEST_REQUEST_LOGS job: an
// entire accepted batch, never split across jobs.
type RequestLogJobPayload struct {
	AppID      int64              `json:"appId"`
	BatchID    string             `json:"batchId"`
	ReceivedAt time.Time          `json:"receivedAt"`
	Records    []RawRequestRecord `json:"records"`
}

// ApplicationLogJobPayload is the payload of one INGEST_APPLICATION_LOGS job.
type ApplicationLogJobPayload struct {
	AppID      int64                     `json:"appId"`
	BatchID    string                    `json:"batchId"`
	ReceivedAt time.Time                 `json:"receivedAt"`
	Records    []RawApplicationLogRecord `json:"records"`
}
