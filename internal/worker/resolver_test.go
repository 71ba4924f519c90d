package worker

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/apilens-io/apilens/internal/model"
)

// fakeConsumerStore backs the resolver with an in-memory unique index on
// (app, identifier), mirroring the database constraint.
type fakeConsumerStore struct {
	nextID    int64
	consumers map[string]model.Consumer
	groups    map[int64]bool
	creates   int
}

func newFakeConsumerStore() *fakeConsumerStore {
	return &fakeConsumerStore{
		nextID:    1,
		consumers: make(map[string]model.Consumer),
		groups:    make(map[int64]bool),
	}
}

func (s *fakeConsumerStore) FindAllByIdentifiers(_ context.Context, appID int64, identifiers []string) ([]model.Consumer, error) {
	var out []model.Consumer
	for _, id := range identifiers {
		if c, ok := s.consumers[id]; ok && c.AppID == appID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *fakeConsumerStore) FindGroupIDs(_ context.Context, _ int64, ids []int64) (map[int64]bool, error) {
	known := make(map[int64]bool)
	for _, id := range ids {
		if s.groups[id] {
			known[id] = true
		}
	}
	return known, nil
}

func (s *fakeConsumerStore) CreateConsumers(_ context.Context, appID int64, specs []model.ConsumerSpec) ([]model.Consumer, error) {
	s.creates++
	var created []model.Consumer
	for _, spec := range specs {
		if _, exists := s.consumers[spec.Identifier]; exists {
			continue // conflict skipped, as ON CONFLICT DO NOTHING would
		}
		c := model.Consumer{
			ID:         s.nextID,
			AppID:      appID,
			Identifier: spec.Identifier,
			Name:       spec.Name,
			GroupID:    spec.GroupID,
			Hidden:     spec.Hidden,
		}
		s.nextID++
		s.consumers[spec.Identifier] = c
		created = append(created, c)
	}
	return created, nil
}

func consumerRecord(identifier, name string) model.RawRequestRecord {
	return model.RawRequestRecord{
		RequestUUID: uuid.New().String(),
		Consumer:    &model.ConsumerDescriptor{Identifier: identifier, Name: name},
	}
}

func TestResolveCreatesMissingConsumers(t *testing.T) {
	store := newFakeConsumerStore()
	r := NewConsumerResolver(store, zerolog.Nop())

	records := []model.RawRequestRecord{
		consumerRecord("c1", "Alpha"),
		consumerRecord("c2", ""),
		{RequestUUID: uuid.New().String()}, // no consumer block
	}
	got, err := r.Resolve(context.Background(), 1, records)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 resolved consumers, got %d", len(got))
	}
	if got["c1"] == 0 || got["c2"] == 0 {
		t.Fatalf("expected ids assigned, got %v", got)
	}
	if store.consumers["c1"].Name != "Alpha" {
		t.Errorf("expected creation metadata kept, got %q", store.consumers["c1"].Name)
	}
}

func TestResolveIsIdempotent(t *testing.T) {
	store := newFakeConsumerStore()
	r := NewConsumerResolver(store, zerolog.Nop())
	records := []model.RawRequestRecord{consumerRecord("c1", ""), consumerRecord("c2", "")}

	first, err := r.Resolve(context.Background(), 1, records)
	if err != nil {
		t.Fatalf("first resolve: %v", err)
	}
	second, err := r.Resolve(context.Background(), 1, records)
	if err != nil {
		t.Fatalf("second resolve: %v", err)
	}
	if len(store.consumers) != 2 {
		t.Fatalf("expected 2 consumer rows after two resolves, got %d", len(store.consumers))
	}
	for id, want := range first {
		if second[id] != want {
			t.Errorf("identifier %s: mapping changed %d -> %d", id, want, second[id])
		}
	}
	if store.creates != 1 {
		t.Errorf("expected no create call on second resolve, got %d creates", store.creates)
	}
}

func TestResolveFirstOccurrenceMetadataWins(t *testing.T) {
	store := newFakeConsumerStore()
	r := NewConsumerResolver(store, zerolog.Nop())
	records := []model.RawRequestRecord{
		consumerRecord("c1", "First"),
		consumerRecord("c1", "Second"),
	}
	if _, err := r.Resolve(context.Background(), 1, records); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got := store.consumers["c1"].Name; got != "First" {
		t.Fatalf("expected first occurrence's name, got %q", got)
	}
}

func TestResolveDropsUnknownGroupID(t *testing.T) {
	store := newFakeConsumerStore()
	store.groups[10] = true
	r := NewConsumerResolver(store, zerolog.Nop())

	known, dangling := int64(10), int64(99)
	records := []model.RawRequestRecord{
		{RequestUUID: uuid.New().String(), Consumer: &model.ConsumerDescriptor{Identifier: "c1", GroupID: &known}},
		{RequestUUID: uuid.New().String(), Consumer: &model.ConsumerDescriptor{Identifier: "c2", GroupID: &dangling}},
	}
	got, err := r.Resolve(context.Background(), 1, records)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected both consumers resolved, got %v", got)
	}
	if g := store.consumers["c1"].GroupID; g == nil || *g != known {
		t.Errorf("expected known group kept, got %v", g)
	}
	if g := store.consumers["c2"].GroupID; g != nil {
		t.Errorf("expected dangling group dropped to nil, got %d", *g)
	}
}

func TestResolvePicksUpRaceWinner(t *testing.T) {
	store := newFakeConsumerStore()
	// Another worker created c1 already; CreateConsumers will skip it.
	_, _ = store.CreateConsumers(context.Background(), 1, []model.ConsumerSpec{{Identifier: "c1"}})
	store.creates = 0

	// Hide the row from the first read so the resolver treats it as missing.
	winner := store.consumers["c1"]
	delete(store.consumers, "c1")
	r := NewConsumerResolver(&racingStore{fakeConsumerStore: store, winner: winner}, zerolog.Nop())

	got, err := r.Resolve(context.Background(), 1, []model.RawRequestRecord{consumerRecord("c1", "")})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got["c1"] != winner.ID {
		t.Fatalf("expected winner's id %d, got %d", winner.ID, got["c1"])
	}
}

// racingStore simulates a concurrent worker winning the insert between the
// resolver's read and create.
type racingStore struct {
	*fakeConsumerStore
	winner model.Consumer
}

func (s *racingStore) CreateConsumers(ctx context.Context, appID int64, specs []model.ConsumerSpec) ([]model.Consumer, error) {
	s.consumers[s.winner.Identifier] = s.winner
	return s.fakeConsumerStore.CreateConsumers(ctx, appID, specs)
}
