package worker

import (
	"context"

	"github.com/apilens-io/apilens/internal/model"
)

// ConsumerStore provides find-or-create access to consumer rows. Implemented
// by repository.ConsumerRepository.
type ConsumerStore interface {
	FindAllByIdentifiers(ctx context.Context, appID int64, identifiers []string) ([]model.Consumer, error)
	CreateConsumers(ctx context.Context, appID int64, specs []model.ConsumerSpec) ([]model.Consumer, error)
	FindGroupIDs(ctx context.Context, appID int64, ids []int64) (map[int64]bool, error)
}

// RequestLogStore bulk-inserts enriched request logs, returning the number
// of rows actually inserted.
type RequestLogStore interface {
	CreateMany(ctx context.Context, logs []model.RequestLog) (int64, error)
}

// ApplicationLogStore bulk-inserts application log lines.
type ApplicationLogStore interface {
	CreateMany(ctx context.Context, logs []model.ApplicationLog) (int64, error)
}

// GeoResolver maps client addresses to ISO country codes; nil means
// unresolved. Implemented by geoip.Resolver.
type GeoResolver interface {
	ResolveCountries(ctx context.Context, ips []string) map[string]*string
}
