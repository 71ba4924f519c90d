package worker

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/apilens-io/apilens/internal/model"
	"github.com/apilens-io/apilens/internal/queue"
)

type fakeRequestLogStore struct {
	rows []model.RequestLog
	err  error
	// duplicates is subtracted from the reported insert count, mimicking
	// rows skipped by the unique constraint on request_uuid.
	duplicates int64
}

func (s *fakeRequestLogStore) CreateMany(_ context.Context, logs []model.RequestLog) (int64, error) {
	if s.err != nil {
		return 0, s.err
	}
	s.rows = append(s.rows, logs...)
	return int64(len(logs)) - s.duplicates, nil
}

type fakeAppLogStore struct {
	rows []model.ApplicationLog
}

func (s *fakeAppLogStore) CreateMany(_ context.Context, logs []model.ApplicationLog) (int64, error) {
	s.rows = append(s.rows, logs...)
	return int64(len(logs)), nil
}

// fakeGeo answers from a fixed table; unknown addresses resolve to nil.
type fakeGeo struct {
	table map[string]string
}

func (g *fakeGeo) ResolveCountries(_ context.Context, ips []string) map[string]*string {
	out := make(map[string]*string)
	for _, ip := range ips {
		if code, ok := g.table[ip]; ok {
			out[ip] = &code
		} else {
			out[ip] = nil
		}
	}
	return out
}

func requestLogJob(t *testing.T, payload model.RequestLogJobPayload) *queue.Job {
	t.Helper()
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return &queue.Job{ID: "j1", Type: model.JobTypeIngestRequestLogs, Payload: data}
}

func TestProcessorHandlesRequestLogBatch(t *testing.T) {
	consumers := newFakeConsumerStore()
	requests := &fakeRequestLogStore{}
	geo := &fakeGeo{table: map[string]string{"8.8.8.8": "US"}}
	p := NewProcessor(consumers, requests, &fakeAppLogStore{}, geo, nil, zerolog.Nop())

	job := requestLogJob(t, model.RequestLogJobPayload{
		AppID:      7,
		BatchID:    "batch_test",
		ReceivedAt: time.Now(),
		Records:    []model.RawRequestRecord{rawRecord(uuid.New().String(), "c1", "8.8.8.8")},
	})
	if err := p.Handle(context.Background(), job); err != nil {
		t.Fatalf("handle: %v", err)
	}

	if len(requests.rows) != 1 {
		t.Fatalf("expected 1 inserted row, got %d", len(requests.rows))
	}
	row := requests.rows[0]
	if row.ConsumerID == nil {
		t.Fatal("expected consumer resolved")
	}
	if row.ClientCountryCode == nil || *row.ClientCountryCode != "US" {
		t.Fatalf("expected country US, got %v", row.ClientCountryCode)
	}
	if len(consumers.consumers) != 1 {
		t.Fatalf("expected consumer created, have %d", len(consumers.consumers))
	}
}

func TestProcessorPersistsWhenGeoUnresolved(t *testing.T) {
	// A degraded geo resolver answers nil for everything; persistence and
	// consumer resolution must still complete.
	requests := &fakeRequestLogStore{}
	p := NewProcessor(newFakeConsumerStore(), requests, &fakeAppLogStore{}, &fakeGeo{}, nil, zerolog.Nop())

	job := requestLogJob(t, model.RequestLogJobPayload{
		AppID:   1,
		Records: []model.RawRequestRecord{rawRecord(uuid.New().String(), "c1", "8.8.8.8")},
	})
	if err := p.Handle(context.Background(), job); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(requests.rows) != 1 {
		t.Fatalf("expected row inserted, got %d", len(requests.rows))
	}
	if requests.rows[0].ClientCountryCode != nil {
		t.Fatalf("expected nil country, got %v", *requests.rows[0].ClientCountryCode)
	}
	if requests.rows[0].ConsumerID == nil {
		t.Fatal("expected consumer still resolved")
	}
}

func TestProcessorTreatsDuplicateRowsAsSuccess(t *testing.T) {
	// A retried job re-inserts rows an earlier attempt already committed;
	// the store reports fewer rows inserted than sent. The conflict is a
	// signal, not a failure: the job must complete, not re-enter retry.
	requests := &fakeRequestLogStore{duplicates: 1}
	p := NewProcessor(newFakeConsumerStore(), requests, &fakeAppLogStore{}, &fakeGeo{}, nil, zerolog.Nop())

	job := requestLogJob(t, model.RequestLogJobPayload{
		AppID:   3,
		BatchID: "batch_retry",
		Records: []model.RawRequestRecord{
			rawRecord(uuid.New().String(), "c1", ""),
			rawRecord(uuid.New().String(), "c1", ""),
		},
	})
	if err := p.Handle(context.Background(), job); err != nil {
		t.Fatalf("expected duplicate-skipping batch to succeed, got %v", err)
	}
	if len(requests.rows) != 2 {
		t.Fatalf("expected 2 rows sent to store, got %d", len(requests.rows))
	}
}

func TestProcessorHandlesApplicationLogBatch(t *testing.T) {
	appLogs := &fakeAppLogStore{}
	p := NewProcessor(newFakeConsumerStore(), &fakeRequestLogStore{}, appLogs, &fakeGeo{}, nil, zerolog.Nop())

	payload := model.ApplicationLogJobPayload{
		AppID: 2,
		Records: []model.RawApplicationLogRecord{
			{RequestUUID: uuid.New().String(), Message: "hello", Timestamp: time.Now()},
		},
	}
	data, _ := json.Marshal(payload)
	job := &queue.Job{ID: "j2", Type: model.JobTypeIngestApplicationLogs, Payload: data}

	if err := p.Handle(context.Background(), job); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(appLogs.rows) != 1 || appLogs.rows[0].Message != "hello" {
		t.Fatalf("expected app log row, got %v", appLogs.rows)
	}
}

func TestProcessorRejectsUnknownJobType(t *testing.T) {
	p := NewProcessor(newFakeConsumerStore(), &fakeRequestLogStore{}, &fakeAppLogStore{}, &fakeGeo{}, nil, zerolog.Nop())
	err := p.Handle(context.Background(), &queue.Job{ID: "j3", Type: "SOMETHING_ELSE", Payload: []byte("{}")})
	if err == nil {
		t.Fatal("expected error for unknown job type")
	}
}
