// Package ingest implements the synchronous-facing ingestion gateway: it
// authenticates the calling app, validates and size-caps a batch, consults
// the rate limiter, and enqueues exactly one job per accepted call. Callers
// get a receipt as soon as the job is durable; enrichment and persistence
// happen in the worker.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/apilens-io/apilens/internal/model"
	"github.com/apilens-io/apilens/internal/ratelimit"
)

// Gateway auth errors, mapped to 401/403 by the handler.
var (
	ErrUnknownClient = errors.New("unknown client id")
	ErrInactiveApp   = errors.New("app is not active")
)

// ValidationError rejects a batch synchronously with field-level detail.
// Nothing is enqueued; a batch is never partially accepted.
type ValidationError struct {
	Fields []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid batch: %d field error(s)", len(e.Fields))
}

// Receipt acknowledges an accepted batch. It means queued, not stored.
type Receipt struct {
	Queued  int    `json:"queued"`
	BatchID string `json:"batchId"`
}

// AppLookup authenticates API-client credentials. Implemented by
// repository.AppRepository.
type AppLookup interface {
	FindByClientID(ctx context.Context, clientID uuid.UUID) (*model.App, error)
}

// RateLimiter guards the gateway per (app, limit type). Implemented by
// ratelimit.Limiter.
type RateLimiter interface {
	Check(ctx context.Context, appID int64, limitType ratelimit.LimitType) error
}

// Enqueuer records a durable job. Implemented by queue.Queue.
type Enqueuer interface {
	Enqueue(ctx context.Context, jobType string, payload any) (string, error)
}

// Limits caps batch sizes per call.
type Limits struct {
	MaxRequestsPerBatch int
	MaxLogsPerBatch     int
}

// Service is the ingestion gateway.
type Service struct {
	apps         AppLookup
	limiter      RateLimiter
	requestQueue Enqueuer
	appLogQueue  Enqueuer
	limits       Limits
	validate     *validator.Validate
	log          zerolog.Logger
}

// NewService wires the gateway. requestQueue and appLogQueue are independent
// so one slow pipeline cannot starve the other.
func NewService(apps AppLookup, limiter RateLimiter, requestQueue, appLogQueue Enqueuer, limits Limits, logger zerolog.Logger) *Service {
	return &Service{
		apps:         apps,
		limiter:      limiter,
		requestQueue: requestQueue,
		appLogQueue:  appLogQueue,
		limits:       limits,
		validate:     validator.New(),
		log:          logger.With().Str("component", "ingest").Logger(),
	}
}

// authenticate resolves the X-Client-ID header value to an active app.
func (s *Service) authenticate(ctx context.Context, clientID string) (*model.App, error) {
	id, err := uuid.Parse(clientID)
	if err != nil {
		return nil, ErrUnknownClient
	}
	app, err := s.apps.FindByClientID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("app lookup: %w", err)
	}
	if app == nil {
		return nil, ErrUnknownClient
	}
	if !app.Active {
		return nil, ErrInactiveApp
	}
	return app, nil
}

// AcceptRequestBatch validates a batch of raw request records and enqueues
// one INGEST_REQUEST_LOGS job carrying the entire batch. The returned receipt
// means the job is durable, not that rows are stored yet.
func (s *Service) AcceptRequestBatch(ctx context.Context, clientID string, records []model.RawRequestRecord) (*Receipt, error) {
	app, err := s.authenticate(ctx, clientID)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, &ValidationError{Fields: []string{"requests: must contain at least 1 item"}}
	}
	if len(records) > s.limits.MaxRequestsPerBatch {
		return nil, &ValidationError{Fields: []string{
			fmt.Sprintf("requests: batch of %d exceeds limit of %d", len(records), s.limits.MaxRequestsPerBatch),
		}}
	}
	if err := s.limiter.Check(ctx, app.ID, ratelimit.LimitTypeAPICall); err != nil {
		return nil, err
	}

	var fields []string
	for i, rec := range records {
		fields = append(fields, s.validateRecord(fmt.Sprintf("requests[%d]", i), rec)...)
	}
	if len(fields) > 0 {
		return nil, &ValidationError{Fields: fields}
	}

	payload := model.RequestLogJobPayload{
		AppID:      app.ID,
		BatchID:    newBatchID(),
		ReceivedAt: time.Now().UTC(),
		Records:    records,
	}
	if _, err := s.requestQueue.Enqueue(ctx, model.JobTypeIngestRequestLogs, payload); err != nil {
		return nil, fmt.Errorf("enqueue request batch: %w", err)
	}
	s.log.Debug().Int64("app_id", app.ID).Str("batch_id", payload.BatchID).
		Int("records", len(records)).Msg("request batch accepted")
	return &Receipt{Queued: len(records), BatchID: payload.BatchID}, nil
}

// AcceptApplicationLogBatch is the application-log analogue of
// AcceptRequestBatch, feeding the second queue.
func (s *Service) AcceptApplicationLogBatch(ctx context.Context, clientID string, records []model.RawApplicationLogRecord) (*Receipt, error) {
	app, err := s.authenticate(ctx, clientID)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, &ValidationError{Fields: []string{"logs: must contain at least 1 item"}}
	}
	if len(records) > s.limits.MaxLogsPerBatch {
		return nil, &ValidationError{Fields: []string{
			fmt.Sprintf("logs: batch of %d exceeds limit of %d", len(records), s.limits.MaxLogsPerBatch),
		}}
	}
	if err := s.limiter.Check(ctx, app.ID, ratelimit.LimitTypeAPICall); err != nil {
		return nil, err
	}

	var fields []string
	for i, rec := range records {
		fields = append(fields, s.validateRecord(fmt.Sprintf("logs[%d]", i), rec)...)
	}
	if len(fields) > 0 {
		return nil, &ValidationError{Fields: fields}
	}

	payload := model.ApplicationLogJobPayload{
		AppID:      app.ID,
		BatchID:    newBatchID(),
		ReceivedAt: time.Now().UTC(),
		Records:    records,
	}
	if _, err := s.appLogQueue.Enqueue(ctx, model.JobTypeIngestApplicationLogs, payload); err != nil {
		return nil, fmt.Errorf("enqueue log batch: %w", err)
	}
	s.log.Debug().Int64("app_id", app.ID).Str("batch_id", payload.BatchID).
		Int("records", len(records)).Msg("application log batch accepted")
	return &Receipt{Queued: len(records), BatchID: payload.BatchID}, nil
}

// validateRecord runs struct validation and renders field errors under the
// given prefix.
func (s *Service) validateRecord(prefix string, rec any) []string {
	err := s.validate.Struct(rec)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []string{prefix + ": " + err.Error()}
	}
	out := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		out = append(out, fmt.Sprintf("%s.%s: failed %q validation", prefix, fe.Field(), fe.Tag()))
	}
	return out
}

func newBatchID() string {
	return "batch_" + uuid.New().String()
}
