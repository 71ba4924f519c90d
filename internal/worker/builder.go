package worker

import (
	"github.com/google/uuid"

	"github.com/apilens-io/apilens/internal/model"
)

// BuildRequestLogs assembles durable rows from raw records plus the resolver
// outputs. Pure: records with an unparseable uuid are skipped (gateway
// validation makes that rare), consumers absent from consumerIDs stay nil,
// and addresses absent from countries stay nil.
func BuildRequestLogs(appID int64, records []model.RawRequestRecord, consumerIDs map[string]int64, countries map[string]*string) []model.RequestLog {
	rows := make([]model.RequestLog, 0, len(records))
	for _, rec := range records {
		id, err := uuid.Parse(rec.RequestUUID)
		if err != nil {
			continue
		}
		row := model.RequestLog{
			AppID:           appID,
			RequestUUID:     id,
			Method:          rec.Method,
			Path:            rec.Path,
			URL:             rec.URL,
			StatusCode:      rec.StatusCode,
			ResponseTime:    rec.ResponseTime,
			RequestSize:     rec.RequestSize,
			ResponseSize:    rec.ResponseSize,
			RequestHeaders:  rec.RequestHeaders,
			ResponseHeaders: rec.ResponseHeaders,
			RequestBody:     rec.RequestBody,
			ResponseBody:    rec.ResponseBody,
			Timestamp:       rec.Timestamp,
		}
		if rec.Consumer != nil && rec.Consumer.Identifier != "" {
			if cid, ok := consumerIDs[rec.Consumer.Identifier]; ok {
				row.ConsumerID = &cid
			}
		}
		if rec.ClientIP != "" {
			ip := rec.ClientIP
			row.ClientIP = &ip
			row.ClientCountryCode = countries[ip]
		}
		if rec.Exception != nil {
			row.ExceptionType = &rec.Exception.Type
			row.ExceptionMessage = &rec.Exception.Message
			row.ExceptionStack = &rec.Exception.Stacktrace
		}
		rows = append(rows, row)
	}
	return rows
}

// BuildApplicationLogs assembles durable log rows from raw records. Records
// with an unparseable request uuid are skipped rather than failing the batch.
func BuildApplicationLogs(appID int64, records []model.RawApplicationLogRecord) []model.ApplicationLog {
	rows := make([]model.ApplicationLog, 0, len(records))
	for _, rec := range records {
		id, err := uuid.Parse(rec.RequestUUID)
		if err != nil {
			continue
		}
		row := model.ApplicationLog{
			AppID:       appID,
			RequestUUID: id,
			Message:     rec.Message,
			Timestamp:   rec.Timestamp,
		}
		if rec.Level != "" {
			row.Level = &rec.Level
		}
		if rec.Logger != "" {
			row.Logger = &rec.Logger
		}
		if rec.File != "" {
			row.File = &rec.File
		}
		if rec.Line > 0 {
			line := rec.Line
			row.Line = &line
		}
		rows = append(rows, row)
	}
	return rows
}
