// Package testutil provides testing utilities and helpers shared by package tests.
package testutil

import (
	"context"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/mock"

	"github.com/dkourtesis/fusion-semantic-registry-sub001/internal/shared/fault"
	"github.com/dkourtesis/fusion-semantic-registry-sub001/internal/shared/types"
)

// MockProfileSource is a mock implementation of index.ProfileSource for testing.
type MockProfileSource struct {
	mock.Mock
}

// ListServiceKeys mocks the ListServiceKeys method.
func (m *MockProfileSource) ListServiceKeys(ctx context.Context) ([]string, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

// ServiceProfile mocks the ServiceProfile method.
func (m *MockProfileSource) ServiceProfile(ctx context.Context, serviceKey string) (types.ServiceProfile, error) {
	args := m.Called(ctx, serviceKey)
	return args.Get(0).(types.ServiceProfile), args.Error(1)
}

// MockAuthenticator is a mock implementation of session.Authenticator for testing.
type MockAuthenticator struct {
	mock.Mock
}

// Authenticate mocks the Authenticate method.
func (m *MockAuthenticator) Authenticate(ctx context.Context, username, password string) (types.Identity, error) {
	args := m.Called(ctx, username, password)
	return args.Get(0).(types.Identity), args.Error(1)
}

// NewMockAuthenticator accepts exactly one username/password pair.
func NewMockAuthenticator(t *testing.T, username, password string) *MockAuthenticator {
	t.Helper()
	m := new(MockAuthenticator)

	m.On("Authenticate", mock.Anything, username, password).
		Return(types.Identity{UserID: "user-" + username, Username: username}, nil).
		Maybe()

	m.On("Authenticate", mock.Anything, mock.Anything, mock.Anything).
		Return(types.Identity{}, fault.New(fault.Auth, "authenticate", "invalid credentials")).
		Maybe()

	return m
}

// StaticProfileSource is an in-memory profile source whose contents can
// be changed between index operations.
type StaticProfileSource struct {
	mu       sync.RWMutex
	profiles map[string]types.ServiceProfile
	listErr  error
	fetchErr map[string]error
	vanished map[string]bool
	fetches  int
}

// NewStaticProfileSource creates a source holding profiles.
func NewStaticProfileSource(profiles ...types.ServiceProfile) *StaticProfileSource {
	s := &StaticProfileSource{
		profiles: make(map[string]types.ServiceProfile),
		fetchErr: make(map[string]error),
		vanished: make(map[string]bool),
	}
	for _, p := range profiles {
		s.profiles[p.ServiceKey] = p
	}
	return s
}

// Put adds or replaces a profile.
func (s *StaticProfileSource) Put(p types.ServiceProfile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[p.ServiceKey] = p
}

// Delete removes a profile.
func (s *StaticProfileSource) Delete(serviceKey string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.profiles, serviceKey)
}

// FailList makes ListServiceKeys fail with err until cleared with nil.
func (s *StaticProfileSource) FailList(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listErr = err
}

// FailFetch makes ServiceProfile fail for serviceKey until cleared with nil.
func (s *StaticProfileSource) FailFetch(serviceKey string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.fetchErr, serviceKey)
		return
	}
	s.fetchErr[serviceKey] = err
}

// Vanish keeps serviceKey listed while its profile lookup reports NoMatchFound.
func (s *StaticProfileSource) Vanish(serviceKey string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vanished[serviceKey] = true
}

// Fetches returns how many profile lookups were served.
func (s *StaticProfileSource) Fetches() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.fetches
}

// ListServiceKeys returns every known key in ascending order.
func (s *StaticProfileSource) ListServiceKeys(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.listErr != nil {
		return nil, s.listErr
	}
	keys := make([]string, 0, len(s.profiles)+len(s.vanished))
	for k := range s.profiles {
		keys = append(keys, k)
	}
	for k := range s.vanished {
		if _, ok := s.profiles[k]; !ok {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// ServiceProfile returns the stored profile for serviceKey.
func (s *StaticProfileSource) ServiceProfile(ctx context.Context, serviceKey string) (types.ServiceProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fetches++

	if err := ctx.Err(); err != nil {
		return types.ServiceProfile{}, err
	}
	if err, ok := s.fetchErr[serviceKey]; ok {
		return types.ServiceProfile{}, err
	}
	p, ok := s.profiles[serviceKey]
	if !ok || s.vanished[serviceKey] {
		return types.ServiceProfile{}, fault.New(fault.NoMatchFound, "profile", "service %s not found", serviceKey)
	}
	return p, nil
}

// CreateTestProfile creates a service profile.
func CreateTestProfile(key, category string, inputs, outputs []string) types.ServiceProfile {
	return types.ServiceProfile{
		ServiceKey:  key,
		ProviderKey: "provider-1",
		CategoryURI: category,
		InputURIs:   inputs,
		OutputURIs:  outputs,
	}
}

// CreateTestRFP creates a request functional profile.
func CreateTestRFP(uri, category string, inputs, outputs []string) types.RFPProfile {
	return types.RFPProfile{
		URI:                uri,
		CategoryURI:        category,
		RequiredInputURIs:  inputs,
		RequiredOutputURIs: outputs,
	}
}

// AssertFault fails the test unless err carries kind.
func AssertFault(t *testing.T, err error, kind fault.Kind) {
	t.Helper()
	if err == nil {
		t.Fatalf("Expected %s error, got nil", kind)
	}
	if got := fault.KindOf(err); got != kind {
		t.Fatalf("Expected %s error, got %s: %v", kind, got, err)
	}
}
