package store

import (
	"context"
	"sort"
	"sync"

	"github.com/cargoroute/tracker/core/model"
)

// MemoryStore is an in-memory Store used by the simulator and tests.
type MemoryStore struct {
	mu         sync.RWMutex
	vehicles   map[int64]model.Vehicle
	deliveries map[int64]model.Delivery
	alerts     map[int64]model.Alert
	nextID     int64

	// FailSaves forces every write to fail, for exercising commit-failure
	// paths in tests.
	FailSaves error
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		vehicles:   map[int64]model.Vehicle{},
		deliveries: map[int64]model.Delivery{},
		alerts:     map[int64]model.Alert{},
	}
}

func (s *MemoryStore) nextSeq() int64 {
	s.nextID++
	return s.nextID
}

func (s *MemoryStore) GetVehicle(_ context.Context, id int64) (model.Vehicle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.vehicles[id]
	if !ok {
		return model.Vehicle{}, ErrNotFound
	}
	return v, nil
}

func (s *MemoryStore) SaveVehicle(_ context.Context, v model.Vehicle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailSaves != nil {
		return s.FailSaves
	}
	if _, ok := s.vehicles[v.ID]; !ok {
		return ErrNotFound
	}
	s.vehicles[v.ID] = v
	return nil
}

func (s *MemoryStore) CreateVehicle(_ context.Context, v *model.Vehicle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailSaves != nil {
		return s.FailSaves
	}
	v.ID = s.nextSeq()
	s.vehicles[v.ID] = *v
	return nil
}

func (s *MemoryStore) ListVehicles(_ context.Context) ([]model.Vehicle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	res := make([]model.Vehicle, 0, len(s.vehicles))
	for _, v := range s.vehicles {
		res = append(res, v)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res, nil
}

func (s *MemoryStore) ListAvailableVehicles(ctx context.Context) ([]model.Vehicle, error) {
	all, err := s.ListVehicles(ctx)
	if err != nil {
		return nil, err
	}
	res := all[:0]
	for _, v := range all {
		if v.Dispatchable() {
			res = append(res, v)
		}
	}
	return res, nil
}

func (s *MemoryStore) GetDelivery(_ context.Context, id int64) (model.Delivery, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.deliveries[id]
	if !ok {
		return model.Delivery{}, ErrNotFound
	}
	return d, nil
}

func (s *MemoryStore) GetDeliveryByTracking(_ context.Context, trackingNumber string) (model.Delivery, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, d := range s.deliveries {
		if d.TrackingNumber == trackingNumber {
			return d, nil
		}
	}
	return model.Delivery{}, ErrNotFound
}

func (s *MemoryStore) SaveDelivery(_ context.Context, d model.Delivery) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailSaves != nil {
		return s.FailSaves
	}
	if _, ok := s.deliveries[d.ID]; !ok {
		return ErrNotFound
	}
	s.deliveries[d.ID] = d
	return nil
}

func (s *MemoryStore) CreateDelivery(_ context.Context, d *model.Delivery) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailSaves != nil {
		return s.FailSaves
	}
	d.ID = s.nextSeq()
	s.deliveries[d.ID] = *d
	return nil
}

func (s *MemoryStore) ListDeliveries(_ context.Context) ([]model.Delivery, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	res := make([]model.Delivery, 0, len(s.deliveries))
	for _, d := range s.deliveries {
		res = append(res, d)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res, nil
}

func (s *MemoryStore) AssignDelivery(_ context.Context, d model.Delivery, v model.Vehicle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailSaves != nil {
		return s.FailSaves
	}
	if _, ok := s.deliveries[d.ID]; !ok {
		return ErrNotFound
	}
	if _, ok := s.vehicles[v.ID]; !ok {
		return ErrNotFound
	}
	s.deliveries[d.ID] = d
	s.vehicles[v.ID] = v
	return nil
}

func (s *MemoryStore) GetAlert(_ context.Context, id int64) (model.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.alerts[id]
	if !ok {
		return model.Alert{}, ErrNotFound
	}
	return a, nil
}

func (s *MemoryStore) SaveAlert(_ context.Context, a model.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailSaves != nil {
		return s.FailSaves
	}
	if _, ok := s.alerts[a.ID]; !ok {
		return ErrNotFound
	}
	s.alerts[a.ID] = a
	return nil
}

func (s *MemoryStore) CreateAlert(_ context.Context, a *model.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailSaves != nil {
		return s.FailSaves
	}
	a.ID = s.nextSeq()
	s.alerts[a.ID] = *a
	return nil
}

func (s *MemoryStore) ListOpenAlerts(_ context.Context) ([]model.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	res := make([]model.Alert, 0, len(s.alerts))
	for _, a := range s.alerts {
		if !a.IsResolved {
			res = append(res, a)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res, nil
}
