package worker

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/apilens-io/apilens/internal/model"
)

// ConsumerResolver maps the consumer identifiers referenced in a batch to
// internal ids, creating missing consumers on first sighting.
type ConsumerResolver struct {
	store ConsumerStore
	log   zerolog.Logger
}

// NewConsumerResolver returns a resolver over the given store.
func NewConsumerResolver(store ConsumerStore, logger zerolog.Logger) *ConsumerResolver {
	return &ConsumerResolver{
		store: store,
		log:   logger.With().Str("component", "consumer_resolver").Logger(),
	}
}

// Resolve returns an identifier -> id map covering every consumer referenced
// in records. When the same identifier appears with different metadata, the
// first occurrence's metadata is used for creation. A concurrent worker may
// create an identifier between our read and insert; the insert skips the
// conflict and a re-read picks up the winner's id.
func (r *ConsumerResolver) Resolve(ctx context.Context, appID int64, records []model.RawRequestRecord) (map[string]int64, error) {
	specs := make([]model.ConsumerSpec, 0)
	order := make(map[string]int)
	for _, rec := range records {
		if rec.Consumer == nil || rec.Consumer.Identifier == "" {
			continue
		}
		if _, seen := order[rec.Consumer.Identifier]; seen {
			continue
		}
		order[rec.Consumer.Identifier] = len(specs)
		hidden := false
		if rec.Consumer.Hidden != nil {
			hidden = *rec.Consumer.Hidden
		}
		specs = append(specs, model.ConsumerSpec{
			Identifier: rec.Consumer.Identifier,
			Name:       rec.Consumer.Name,
			GroupID:    rec.Consumer.GroupID,
			Hidden:     hidden,
		})
	}
	if len(specs) == 0 {
		return map[string]int64{}, nil
	}
	if err := r.pruneDanglingGroups(ctx, appID, specs); err != nil {
		return nil, err
	}

	identifiers := make([]string, len(specs))
	for i, s := range specs {
		identifiers[i] = s.Identifier
	}

	existing, err := r.store.FindAllByIdentifiers(ctx, appID, identifiers)
	if err != nil {
		return nil, fmt.Errorf("find consumers: %w", err)
	}
	result := make(map[string]int64, len(specs))
	for _, c := range existing {
		result[c.Identifier] = c.ID
	}

	missing := make([]model.ConsumerSpec, 0)
	for _, s := range specs {
		if _, ok := result[s.Identifier]; !ok {
			missing = append(missing, s)
		}
	}
	if len(missing) == 0 {
		return result, nil
	}

	created, err := r.store.CreateConsumers(ctx, appID, missing)
	if err != nil {
		return nil, fmt.Errorf("create consumers: %w", err)
	}
	for _, c := range created {
		result[c.Identifier] = c.ID
	}

	// Identifiers still unmapped lost a creation race; read the winners.
	var lost []string
	for _, s := range missing {
		if _, ok := result[s.Identifier]; !ok {
			lost = append(lost, s.Identifier)
		}
	}
	if len(lost) > 0 {
		winners, err := r.store.FindAllByIdentifiers(ctx, appID, lost)
		if err != nil {
			return nil, fmt.Errorf("re-read consumers: %w", err)
		}
		for _, c := range winners {
			result[c.Identifier] = c.ID
		}
	}
	return result, nil
}

// pruneDanglingGroups nulls group references that do not exist for the app.
// consumers.group_id is a foreign key, and one record's bad group id must
// not fail the whole batch; the consumer is still created, just ungrouped.
func (r *ConsumerResolver) pruneDanglingGroups(ctx context.Context, appID int64, specs []model.ConsumerSpec) error {
	var ids []int64
	seen := make(map[int64]bool)
	for _, s := range specs {
		if s.GroupID != nil && !seen[*s.GroupID] {
			seen[*s.GroupID] = true
			ids = append(ids, *s.GroupID)
		}
	}
	if len(ids) == 0 {
		return nil
	}
	known, err := r.store.FindGroupIDs(ctx, appID, ids)
	if err != nil {
		return fmt.Errorf("find consumer groups: %w", err)
	}
	for i := range specs {
		if specs[i].GroupID != nil && !known[*specs[i].GroupID] {
			r.log.Warn().
				Int64("app_id", appID).
				Int64("group_id", *specs[i].GroupID).
				Str("identifier", specs[i].Identifier).
				Msg("unknown consumer group dropped")
			specs[i].GroupID = nil
		}
	}
	return nil
}
