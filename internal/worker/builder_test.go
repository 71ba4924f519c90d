package worker

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/apilens-io/apilens/internal/model"
)

func rawRecord(requestUUID, consumerID, clientIP string) model.RawRequestRecord {
	rec := model.RawRequestRecord{
		RequestUUID:  requestUUID,
		Method:       "GET",
		Path:         "/x",
		URL:          "http://a/x",
		StatusCode:   200,
		ResponseTime: 12,
		ResponseSize: 100,
		ClientIP:     clientIP,
		Timestamp:    time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	if consumerID != "" {
		rec.Consumer = &model.ConsumerDescriptor{Identifier: consumerID}
	}
	return rec
}

func TestBuildRequestLogsAttachesResolverOutputs(t *testing.T) {
	u := uuid.New().String()
	us := "US"
	records := []model.RawRequestRecord{rawRecord(u, "c1", "8.8.8.8")}

	rows := BuildRequestLogs(7, records, map[string]int64{"c1": 42}, map[string]*string{"8.8.8.8": &us})
	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}
	row := rows[0]
	if row.AppID != 7 {
		t.Errorf("expected app id 7, got %d", row.AppID)
	}
	if row.RequestUUID.String() != u {
		t.Errorf("expected request uuid %s, got %s", u, row.RequestUUID)
	}
	if row.ConsumerID == nil || *row.ConsumerID != 42 {
		t.Errorf("expected consumer id 42, got %v", row.ConsumerID)
	}
	if row.ClientCountryCode == nil || *row.ClientCountryCode != "US" {
		t.Errorf("expected country US, got %v", row.ClientCountryCode)
	}
	if row.ClientIP == nil || *row.ClientIP != "8.8.8.8" {
		t.Errorf("expected client ip kept, got %v", row.ClientIP)
	}
}

func TestBuildRequestLogsLeavesUnresolvedFieldsNil(t *testing.T) {
	records := []model.RawRequestRecord{
		rawRecord(uuid.New().String(), "", ""),
		rawRecord(uuid.New().String(), "unknown", "10.0.0.1"),
	}

	rows := BuildRequestLogs(1, records, map[string]int64{}, map[string]*string{"10.0.0.1": nil})
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	for i, row := range rows {
		if row.ConsumerID != nil {
			t.Errorf("row %d: expected nil consumer id, got %v", i, *row.ConsumerID)
		}
		if row.ClientCountryCode != nil {
			t.Errorf("row %d: expected nil country, got %v", i, *row.ClientCountryCode)
		}
	}
	if rows[0].ClientIP != nil {
		t.Errorf("expected nil client ip for empty input, got %v", *rows[0].ClientIP)
	}
}

func TestBuildRequestLogsSkipsUnparseableUUID(t *testing.T) {
	records := []model.RawRequestRecord{
		rawRecord("not-a-uuid", "", ""),
		rawRecord(uuid.New().String(), "", ""),
	}
	rows := BuildRequestLogs(1, records, nil, nil)
	if len(rows) != 1 {
		t.Fatalf("expected bad uuid to be skipped, got %d rows", len(rows))
	}
}

func TestBuildRequestLogsKeepsException(t *testing.T) {
	rec := rawRecord(uuid.New().String(), "", "")
	rec.Exception = &model.ExceptionInfo{Type: "ValueError", Message: "boom", Stacktrace: "trace"}
	rows := BuildRequestLogs(1, []model.RawRequestRecord{rec}, nil, nil)
	if rows[0].ExceptionType == nil || *rows[0].ExceptionType != "ValueError" {
		t.Fatalf("expected exception type kept, got %v", rows[0].ExceptionType)
	}
	if rows[0].ExceptionMessage == nil || *rows[0].ExceptionMessage != "boom" {
		t.Fatalf("expected exception message kept, got %v", rows[0].ExceptionMessage)
	}
}

func TestBuildApplicationLogs(t *testing.T) {
	u := uuid.New().String()
	records := []model.RawApplicationLogRecord{
		{RequestUUID: u, Message: "started", Level: "info", Line: 14, Timestamp: time.Now()},
		{RequestUUID: "nope", Message: "dropped", Timestamp: time.Now()},
		{RequestUUID: u, Message: "bare", Timestamp: time.Now()},
	}

	rows := BuildApplicationLogs(3, records)
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows (bad uuid skipped), got %d", len(rows))
	}
	if rows[0].Level == nil || *rows[0].Level != "info" {
		t.Errorf("expected level info, got %v", rows[0].Level)
	}
	if rows[0].Line == nil || *rows[0].Line != 14 {
		t.Errorf("expected line 14, got %v", rows[0].Line)
	}
	if rows[1].Level != nil || rows[1].Line != nil {
		t.Errorf("expected optional fields nil when absent")
	}
}
