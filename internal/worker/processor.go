package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/rs/zerolog"

	"github.com/apilens-io/apilens/internal/model"
	"github.com/apilens-io/apilens/internal/queue"
)

// Processor handles ingestion jobs: it resolves consumer identities, enriches
// client addresses with country codes, and bulk-inserts the durable rows.
type Processor struct {
	resolver *ConsumerResolver
	requests RequestLogStore
	appLogs  ApplicationLogStore
	geo      GeoResolver
	nr       *newrelic.Application
	log      zerolog.Logger
}

// NewProcessor wires a Processor. nrApp may be nil when observability is
// disabled.
func NewProcessor(consumers ConsumerStore, requests RequestLogStore, appLogs ApplicationLogStore, geo GeoResolver, nrApp *newrelic.Application, logger zerolog.Logger) *Processor {
	return &Processor{
		resolver: NewConsumerResolver(consumers, logger),
		requests: requests,
		appLogs:  appLogs,
		geo:      geo,
		nr:       nrApp,
		log:      logger.With().Str("component", "processor").Logger(),
	}
}

// Handle dispatches one job by type. Returning an error hands the job to the
// queue's retry policy.
func (p *Processor) Handle(ctx context.Context, job *queue.Job) error {
	if p.nr != nil {
		txn := p.nr.StartTransaction("queue/" + job.Type)
		defer txn.End()
		ctx = newrelic.NewContext(ctx, txn)
	}

	switch job.Type {
	case model.JobTypeIngestRequestLogs:
		var payload model.RequestLogJobPayload
		if err := json.Unmarshal(job.Payload, &payload); err != nil {
			return fmt.Errorf("decode request log payload: %w", err)
		}
		return p.processRequestLogs(ctx, &payload)
	case model.JobTypeIngestApplicationLogs:
		var payload model.ApplicationLogJobPayload
		if err := json.Unmarshal(job.Payload, &payload); err != nil {
			return fmt.Errorf("decode application log payload: %w", err)
		}
		return p.processApplicationLogs(ctx, &payload)
	default:
		return fmt.Errorf("unknown job type %q", job.Type)
	}
}

func (p *Processor) processRequestLogs(ctx context.Context, payload *model.RequestLogJobPayload) error {
	consumerIDs, err := p.resolver.Resolve(ctx, payload.AppID, payload.Records)
	if err != nil {
		return fmt.Errorf("resolve consumers: %w", err)
	}

	ips := make([]string, 0, len(payload.Records))
	for _, rec := range payload.Records {
		if rec.ClientIP != "" {
			ips = append(ips, rec.ClientIP)
		}
	}
	countries := p.geo.ResolveCountries(ctx, ips)

	rows := BuildRequestLogs(payload.AppID, payload.Records, consumerIDs, countries)
	inserted, err := p.requests.CreateMany(ctx, rows)
	if err != nil {
		return fmt.Errorf("insert request logs: %w", err)
	}

	evt := p.log.Info()
	if skipped := int64(len(rows)) - inserted; skipped > 0 {
		// Duplicates mean this batch (or part of it) was seen before,
		// typically a retried job re-inserting already-committed chunks.
		evt = p.log.Warn().Int64("duplicates_skipped", skipped)
	}
	evt.Int64("app_id", payload.AppID).
		Str("batch_id", payload.BatchID).
		Int("records", len(payload.Records)).
		Int64("inserted", inserted).
		Int("consumers", len(consumerIDs)).
		Msg("request log batch processed")
	return nil
}

func (p *Processor) processApplicationLogs(ctx context.Context, payload *model.ApplicationLogJobPayload) error {
	rows := BuildApplicationLogs(payload.AppID, payload.Records)
	inserted, err := p.appLogs.CreateMany(ctx, rows)
	if err != nil {
		return fmt.Errorf("insert application logs: %w", err)
	}
	p.log.Info().
		Int64("app_id", payload.AppID).
		Str("batch_id", payload.BatchID).
		Int("records", len(payload.Records)).
		Int64("inserted", inserted).
		Msg("application log batch processed")
	return nil
}
