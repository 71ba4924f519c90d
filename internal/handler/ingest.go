package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/apilens-io/apilens/internal/ingest"
	"github.com/apilens-io/apilens/internal/model"
	"github.com/apilens-io/apilens/internal/queue"
	"github.com/apilens-io/apilens/internal/ratelimit"
	"github.com/apilens-io/apilens/internal/response"
)

// clientIDHeader carries the API-client credential of the posting middleware.
const clientIDHeader = "X-Client-ID"

// IngestService is the gateway consumed by the HTTP layer.
type IngestService interface {
	AcceptRequestBatch(ctx context.Context, clientID string, records []model.RawRequestRecord) (*ingest.Receipt, error)
	AcceptApplicationLogBatch(ctx context.Context, clientID string, records []model.RawApplicationLogRecord) (*ingest.Receipt, error)
}

// QueueInspector reports queue depths for the operator status route.
type QueueInspector interface {
	Name() string
	Stats(ctx context.Context) (queue.Stats, error)
}

// IngestHandler exposes the ingestion endpoints consumed by client-side
// middleware libraries.
type IngestHandler struct {
	Service IngestService
	Queues  []QueueInspector
	Log     zerolog.Logger
}

type requestBatchBody struct {
	Requests []model.RawRequestRecord `json:"requests"`
}

type logBatchBody struct {
	Logs []model.RawApplicationLogRecord `json:"logs"`
}

// PostRequests accepts a batch of request records (POST /ingestion/requests)
// and answers 202 once the batch is queued.
func (h *IngestHandler) PostRequests(c echo.Context) error {
	var body requestBatchBody
	if err := c.Bind(&body); err != nil {
		return response.BadRequest(c, "invalid JSON body", err.Error())
	}
	receipt, err := h.Service.AcceptRequestBatch(c.Request().Context(), c.Request().Header.Get(clientIDHeader), body.Requests)
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(http.StatusAccepted, receipt)
}

// PostLogs accepts a batch of application log lines (POST /ingestion/logs).
func (h *IngestHandler) PostLogs(c echo.Context) error {
	var body logBatchBody
	if err := c.Bind(&body); err != nil {
		return response.BadRequest(c, "invalid JSON body", err.Error())
	}
	receipt, err := h.Service.AcceptApplicationLogBatch(c.Request().Context(), c.Request().Header.Get(clientIDHeader), body.Logs)
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(http.StatusAccepted, receipt)
}

// GetStatus reports per-queue depths (GET /ingestion/status). Failed counts
// are terminally failed jobs retained for inspection.
func (h *IngestHandler) GetStatus(c echo.Context) error {
	out := make(map[string]queue.Stats, len(h.Queues))
	for _, q := range h.Queues {
		stats, err := q.Stats(c.Request().Context())
		if err != nil {
			return response.InternalError(c, "queue stats failed", err.Error())
		}
		out[q.Name()] = stats
	}
	return response.OK(c, map[string]any{"queues": out}, "")
}

// writeError maps gateway errors onto the response taxonomy. Downstream
// processing failures never reach here; the caller already got its 202.
func (h *IngestHandler) writeError(c echo.Context, err error) error {
	var verr *ingest.ValidationError
	switch {
	case errors.As(err, &verr):
		return response.ValidationFailed(c, "batch rejected", verr.Fields)
	case errors.Is(err, ingest.ErrUnknownClient):
		return response.Unauthorized(c, "unknown client", "missing or unknown "+clientIDHeader+" header")
	case errors.Is(err, ingest.ErrInactiveApp):
		return response.Forbidden(c, "app inactive", "the app for this client id is not active")
	case errors.Is(err, ratelimit.ErrRateLimited):
		return response.TooManyRequests(c, "rate limit exceeded", "too many ingestion calls, retry later")
	default:
		h.Log.Error().Err(err).Str("path", c.Request().URL.Path).Msg("ingestion request failed")
		return response.InternalError(c, "ingestion failed", "internal error")
	}
}
