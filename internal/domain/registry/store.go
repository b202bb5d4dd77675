package registry

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/dkourtesis/fusion-semantic-registry-sub001/internal/shared/fault"
	"github.com/dkourtesis/fusion-semantic-registry-sub001/internal/shared/types"
)

// Store holds provider and service records
type Store struct {
	mu          sync.RWMutex
	providers   map[string]*types.BusinessProvider
	services    map[string]*types.BusinessService
	byProvider  map[string]map[string]struct{}
	lastUpdated time.Time
}

// NewStore creates an empty store
func NewStore() *Store {
	return &Store{
		providers:  make(map[string]*types.BusinessProvider),
		services:   make(map[string]*types.BusinessService),
		byProvider: make(map[string]map[string]struct{}),
	}
}

// PutProvider inserts or replaces a provider
func (s *Store) PutProvider(p types.BusinessProvider) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.providers[p.Key] = &p
	if _, ok := s.byProvider[p.Key]; !ok {
		s.byProvider[p.Key] = make(map[string]struct{})
	}
	s.lastUpdated = p.UpdatedAt
}

// GetProvider returns a copy of a provider
func (s *Store) GetProvider(key string) (types.BusinessProvider, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.providers[key]
	if !ok {
		return types.BusinessProvider{}, false
	}
	return *p, true
}

// DeleteProvider removes a provider and its services, returning the removed
// service keys in ascending order
func (s *Store) DeleteProvider(key string) ([]string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.providers[key]; !ok {
		return nil, false
	}

	removed := make([]string, 0, len(s.byProvider[key]))
	for svc := range s.byProvider[key] {
		delete(s.services, svc)
		removed = append(removed, svc)
	}
	delete(s.byProvider, key)
	delete(s.providers, key)
	s.lastUpdated = time.Now()

	sort.Strings(removed)
	return removed, true
}

// ListProviders returns every provider ordered by name, then key
func (s *Store) ListProviders() []types.BusinessProvider {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]types.BusinessProvider, 0, len(s.providers))
	for _, p := range s.providers {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].Key < out[j].Key
	})
	return out
}

// PutService inserts or replaces a service. The owning provider must exist.
func (s *Store) PutService(svc types.BusinessService) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	set, ok := s.byProvider[svc.ProviderKey]
	if !ok {
		return fault.New(fault.NoMatchFound, "registry.PutService", "provider %s not found", svc.ProviderKey)
	}

	if prev, ok := s.services[svc.Key]; ok && prev.ProviderKey != svc.ProviderKey {
		delete(s.byProvider[prev.ProviderKey], svc.Key)
	}

	svc.InputURIs = types.SortedSet(svc.InputURIs)
	svc.OutputURIs = types.SortedSet(svc.OutputURIs)
	s.services[svc.Key] = &svc
	set[svc.Key] = struct{}{}
	s.lastUpdated = svc.UpdatedAt
	return nil
}

// GetService returns a copy of a service
func (s *Store) GetService(key string) (types.BusinessService, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	svc, ok := s.services[key]
	if !ok {
		return types.BusinessService{}, false
	}
	return copyService(svc), true
}

// DeleteService removes a service
func (s *Store) DeleteService(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	svc, ok := s.services[key]
	if !ok {
		return false
	}
	delete(s.byProvider[svc.ProviderKey], key)
	delete(s.services, key)
	s.lastUpdated = time.Now()
	return true
}

// ListServices returns the services of one provider, or every service when
// providerKey is empty, ordered by key
func (s *Store) ListServices(providerKey string) []types.BusinessService {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]types.BusinessService, 0)
	if providerKey == "" {
		for _, svc := range s.services {
			out = append(out, copyService(svc))
		}
	} else {
		for key := range s.byProvider[providerKey] {
			out = append(out, copyService(s.services[key]))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// ListServiceKeys returns every service key in ascending order
func (s *Store) ListServiceKeys(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, fault.Wrap(fault.Communication, "registry.ListServiceKeys", err, "listing services")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0, len(s.services))
	for key := range s.services {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys, nil
}

// ServiceProfile returns the semantic profile of a service
func (s *Store) ServiceProfile(ctx context.Context, serviceKey string) (types.ServiceProfile, error) {
	const op = "registry.ServiceProfile"
	if err := ctx.Err(); err != nil {
		return types.ServiceProfile{}, fault.Wrap(fault.Communication, op, err, "fetching %s", serviceKey)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	svc, ok := s.services[serviceKey]
	if !ok {
		return types.ServiceProfile{}, fault.New(fault.NoMatchFound, op, "service %s not found", serviceKey)
	}
	return svc.Profile(), nil
}

// Stats returns registry statistics
func (s *Store) Stats() types.RegistryStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := types.RegistryStats{
		TotalProviders: len(s.providers),
		TotalServices:  len(s.services),
		Categories:     make(map[string]int),
	}
	for _, svc := range s.services {
		if svc.CategoryURI == "" {
			stats.Unannotated++
			continue
		}
		stats.Categories[svc.CategoryURI]++
	}
	if !s.lastUpdated.IsZero() {
		t := s.lastUpdated
		stats.LastUpdated = &t
	}
	return stats
}

func copyService(svc *types.BusinessService) types.BusinessService {
	out := *svc
	out.InputURIs = append([]string{}, svc.InputURIs...)
	out.OutputURIs = append([]string{}, svc.OutputURIs...)
	return out
}
