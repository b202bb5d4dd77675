package registry

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/dkourtesis/fusion-semantic-registry-sub001/internal/infrastructure/logging"
	"github.com/dkourtesis/fusion-semantic-registry-sub001/internal/shared/fault"
	"github.com/dkourtesis/fusion-semantic-registry-sub001/internal/shared/id"
	"github.com/dkourtesis/fusion-semantic-registry-sub001/internal/shared/types"
	"github.com/dkourtesis/fusion-semantic-registry-sub001/internal/shared/utils"
)

// SessionValidator resolves a token to the identity that holds it
type SessionValidator interface {
	Validate(token string) (types.Identity, error)
}

// MatchIndex is the part of the match index the facade drives
type MatchIndex interface {
	AddRFP(ctx context.Context, rfp types.RFPProfile) ([]string, error)
	RemoveRFP(ctx context.Context, rfpURI string) ([]string, error)
	Refresh(ctx context.Context) ([]string, error)
	PurgeServices(ctx context.Context, serviceKeys []string) (map[string][]string, error)
	Query(rfpURI, providerKey string) ([]string, error)
	RFPsFor(serviceKey string) []string
}

// SystemOwner owns records loaded by the seeder
const SystemOwner = "system"

// Manager is the registry facade
type Manager struct {
	store    *Store
	sessions SessionValidator
	index    MatchIndex
	logger   *zap.Logger
	now      func() time.Time
}

// Option configures a Manager
type Option func(*Manager)

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithClock overrides time.Now, for tests
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// NewManager wires the facade. Every collaborator is required.
func NewManager(store *Store, sessions SessionValidator, index MatchIndex, opts ...Option) (*Manager, error) {
	const op = "registry.NewManager"
	switch {
	case store == nil:
		return nil, fault.New(fault.Configuration, op, "store is required")
	case sessions == nil:
		return nil, fault.New(fault.Configuration, op, "session authority is required")
	case index == nil:
		return nil, fault.New(fault.Configuration, op, "match index is required")
	}

	m := &Manager{
		store:    store,
		sessions: sessions,
		index:    index,
		logger:   zap.NewNop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Store returns the underlying record store
func (m *Manager) Store() *Store {
	return m.store
}

func (m *Manager) authorize(op, token string) (types.Identity, error) {
	identity, err := m.sessions.Validate(token)
	if err != nil {
		return types.Identity{}, fault.Wrap(fault.Auth, op, err, "unauthorized")
	}
	return identity, nil
}

func (m *Manager) ownedProvider(op string, identity types.Identity, key string) (types.BusinessProvider, error) {
	p, ok := m.store.GetProvider(key)
	if !ok {
		return types.BusinessProvider{}, fault.New(fault.NoMatchFound, op, "provider %s not found", key)
	}
	if p.Owner != identity.Username {
		return types.BusinessProvider{}, fault.New(fault.Auth, op, "provider %s belongs to another publisher", key)
	}
	return p, nil
}

// SaveProvider creates a provider, or updates one when req.Key is set
func (m *Manager) SaveProvider(ctx context.Context, token string, req types.ProviderRequest) (types.BusinessProvider, error) {
	const op = "registry.SaveProvider"

	identity, err := m.authorize(op, token)
	if err != nil {
		return types.BusinessProvider{}, err
	}
	return m.saveProvider(op, identity, req, false)
}

// saveProvider upserts a provider. With create set, an unknown req.Key is
// created under that key instead of being rejected.
func (m *Manager) saveProvider(op string, identity types.Identity, req types.ProviderRequest, create bool) (types.BusinessProvider, error) {
	req.Name = sanitizeText(req.Name)
	req.Description = sanitizeText(req.Description)
	if err := utils.ValidateName(req.Name, "name"); err != nil {
		return types.BusinessProvider{}, fault.Wrap(fault.MalformedInput, op, err, "invalid provider")
	}
	if err := utils.ValidateDescription(req.Description, "description", false); err != nil {
		return types.BusinessProvider{}, fault.Wrap(fault.MalformedInput, op, err, "invalid provider")
	}

	now := m.now()
	existing, exists := m.store.GetProvider(req.Key)
	var p types.BusinessProvider
	switch {
	case req.Key == "":
		p = types.BusinessProvider{Key: id.NewProviderKey().String(), Owner: identity.Username, CreatedAt: now}
	case exists:
		if existing.Owner != identity.Username {
			return types.BusinessProvider{}, fault.New(fault.Auth, op, "provider %s belongs to another publisher", req.Key)
		}
		p = existing
	case !create:
		return types.BusinessProvider{}, fault.New(fault.NoMatchFound, op, "provider %s not found", req.Key)
	default:
		if err := utils.ValidateKey(req.Key, "key", true); err != nil {
			return types.BusinessProvider{}, fault.Wrap(fault.MalformedInput, op, err, "invalid provider")
		}
		p = types.BusinessProvider{Key: req.Key, Owner: identity.Username, CreatedAt: now}
	}
	p.Name = req.Name
	p.Description = req.Description
	p.UpdatedAt = now

	m.store.PutProvider(p)
	m.logger.Info("Provider saved", zap.String("provider", p.Key), zap.String("owner", p.Owner))
	return p, nil
}

// DeleteProvider removes a provider with all its services and purges those
// services from the match index. It returns the removed service keys.
func (m *Manager) DeleteProvider(ctx context.Context, token, key string) ([]string, error) {
	const op = "registry.DeleteProvider"

	identity, err := m.authorize(op, token)
	if err != nil {
		return nil, err
	}
	if _, err := m.ownedProvider(op, identity, key); err != nil {
		return nil, err
	}

	removed, ok := m.store.DeleteProvider(key)
	if !ok {
		return nil, fault.New(fault.NoMatchFound, op, "provider %s not found", key)
	}
	if err := m.purge(ctx, op, removed); err != nil {
		return nil, err
	}

	m.logger.Info("Provider deleted", zap.String("provider", key), zap.Int("services", len(removed)))
	return removed, nil
}

// GetProvider returns a provider
func (m *Manager) GetProvider(key string) (types.BusinessProvider, error) {
	p, ok := m.store.GetProvider(key)
	if !ok {
		return types.BusinessProvider{}, fault.New(fault.NoMatchFound, "registry.GetProvider", "provider %s not found", key)
	}
	return p, nil
}

// ListProviders returns every provider
func (m *Manager) ListProviders() []types.BusinessProvider {
	return m.store.ListProviders()
}

// SaveService creates a service, or updates one when req.Key is set. The
// match index is not touched.
func (m *Manager) SaveService(ctx context.Context, token string, req types.ServiceRequest) (types.BusinessService, error) {
	const op = "registry.SaveService"

	identity, err := m.authorize(op, token)
	if err != nil {
		return types.BusinessService{}, err
	}
	return m.saveService(op, identity, req, false)
}

// saveService upserts a service; create works as in saveProvider
func (m *Manager) saveService(op string, identity types.Identity, req types.ServiceRequest, create bool) (types.BusinessService, error) {
	req.Name = sanitizeText(req.Name)
	req.Description = sanitizeText(req.Description)
	if err := validateServiceRequest(req); err != nil {
		return types.BusinessService{}, fault.Wrap(fault.MalformedInput, op, err, "invalid service")
	}
	if _, err := m.ownedProvider(op, identity, req.ProviderKey); err != nil {
		return types.BusinessService{}, err
	}

	now := m.now()
	svc := types.BusinessService{
		Key:         req.Key,
		ProviderKey: req.ProviderKey,
		CreatedAt:   now,
	}
	existing, exists := m.store.GetService(req.Key)
	switch {
	case req.Key == "":
		svc.Key = id.NewServiceKey().String()
	case exists:
		if existing.ProviderKey != req.ProviderKey {
			return types.BusinessService{}, fault.New(fault.MalformedInput, op, "service %s belongs to provider %s", req.Key, existing.ProviderKey)
		}
		svc = existing
	case !create:
		return types.BusinessService{}, fault.New(fault.NoMatchFound, op, "service %s not found", req.Key)
	default:
		if err := utils.ValidateKey(req.Key, "key", true); err != nil {
			return types.BusinessService{}, fault.Wrap(fault.MalformedInput, op, err, "invalid service")
		}
	}
	svc.Name = req.Name
	svc.Description = req.Description
	svc.CategoryURI = req.CategoryURI
	svc.InputURIs = req.InputURIs
	svc.OutputURIs = req.OutputURIs
	svc.UpdatedAt = now

	if err := m.store.PutService(svc); err != nil {
		return types.BusinessService{}, err
	}
	saved, _ := m.store.GetService(svc.Key)

	m.logger.Info("Service saved", zap.String("service", svc.Key), zap.String("provider", svc.ProviderKey))
	return saved, nil
}

// DeleteService removes a service and purges it from the match index. It
// returns the RFP URIs the service was removed from.
func (m *Manager) DeleteService(ctx context.Context, token, key string) ([]string, error) {
	const op = "registry.DeleteService"

	identity, err := m.authorize(op, token)
	if err != nil {
		return nil, err
	}

	svc, ok := m.store.GetService(key)
	if !ok {
		return nil, fault.New(fault.NoMatchFound, op, "service %s not found", key)
	}
	if _, err := m.ownedProvider(op, identity, svc.ProviderKey); err != nil {
		return nil, err
	}

	if !m.store.DeleteService(key) {
		return nil, fault.New(fault.NoMatchFound, op, "service %s not found", key)
	}

	rfps := m.index.RFPsFor(key)
	if err := m.purge(ctx, op, []string{key}); err != nil {
		return nil, err
	}

	m.logger.Info("Service deleted", zap.String("service", key), zap.Int("rfps", len(rfps)))
	return rfps, nil
}

// purge runs after the records are gone, so it must not be abandoned when
// the caller's context ends.
func (m *Manager) purge(ctx context.Context, op string, serviceKeys []string) error {
	if len(serviceKeys) == 0 {
		return nil
	}
	if _, err := m.index.PurgeServices(context.WithoutCancel(ctx), serviceKeys); err != nil {
		m.logger.Error("Index purge failed", zap.Strings("services", serviceKeys), logging.Fault(err))
		return fault.Wrap(fault.KindOf(err), op, err, "purging index")
	}
	return nil
}

// GetService returns a service
func (m *Manager) GetService(key string) (types.BusinessService, error) {
	svc, ok := m.store.GetService(key)
	if !ok {
		return types.BusinessService{}, fault.New(fault.NoMatchFound, "registry.GetService", "service %s not found", key)
	}
	return svc, nil
}

// ListServices returns the services of a provider
func (m *Manager) ListServices(providerKey string) ([]types.BusinessService, error) {
	if _, ok := m.store.GetProvider(providerKey); !ok {
		return nil, fault.New(fault.NoMatchFound, "registry.ListServices", "provider %s not found", providerKey)
	}
	return m.store.ListServices(providerKey), nil
}

// RFPsForService returns the RFPs a service currently satisfies
func (m *Manager) RFPsForService(key string) ([]string, error) {
	if _, ok := m.store.GetService(key); !ok {
		return nil, fault.New(fault.NoMatchFound, "registry.RFPsForService", "service %s not found", key)
	}
	return m.index.RFPsFor(key), nil
}

// FindSemanticMatches returns the service records matching an indexed RFP,
// optionally restricted to one provider
func (m *Manager) FindSemanticMatches(rfpURI, providerKey string) ([]types.BusinessService, error) {
	keys, err := m.index.Query(rfpURI, providerKey)
	if err != nil {
		return nil, err
	}

	out := make([]types.BusinessService, 0, len(keys))
	for _, key := range keys {
		// a service deleted since the query is simply not reported
		if svc, ok := m.store.GetService(key); ok {
			out = append(out, svc)
		}
	}
	return out, nil
}

// AddRFP indexes an RFP on behalf of the token holder
func (m *Manager) AddRFP(ctx context.Context, token string, rfp types.RFPProfile) ([]string, error) {
	identity, err := m.authorize("registry.AddRFP", token)
	if err != nil {
		return nil, err
	}

	affected, err := m.index.AddRFP(ctx, rfp)
	if err != nil {
		return nil, err
	}
	m.logger.Debug("RFP added", zap.String("rfp", rfp.URI), zap.String("by", identity.Username))
	return affected, nil
}

// RemoveRFP drops an RFP from the index on behalf of the token holder
func (m *Manager) RemoveRFP(ctx context.Context, token, rfpURI string) ([]string, error) {
	identity, err := m.authorize("registry.RemoveRFP", token)
	if err != nil {
		return nil, err
	}

	affected, err := m.index.RemoveRFP(ctx, rfpURI)
	if err != nil {
		return nil, err
	}
	m.logger.Debug("RFP removed", zap.String("rfp", rfpURI), zap.String("by", identity.Username))
	return affected, nil
}

// RefreshIndex recomputes the whole index on behalf of the token holder
func (m *Manager) RefreshIndex(ctx context.Context, token string) ([]string, error) {
	identity, err := m.authorize("registry.RefreshIndex", token)
	if err != nil {
		return nil, err
	}

	affected, err := m.index.Refresh(ctx)
	if err != nil {
		return nil, err
	}
	m.logger.Debug("Index refreshed", zap.Int("affected", len(affected)), zap.String("by", identity.Username))
	return affected, nil
}

// Stats returns registry statistics
func (m *Manager) Stats() types.RegistryStats {
	return m.store.Stats()
}

func validateServiceRequest(req types.ServiceRequest) error {
	if err := utils.ValidateKey(req.ProviderKey, "provider_key", true); err != nil {
		return err
	}
	if err := utils.ValidateName(req.Name, "name"); err != nil {
		return err
	}
	if err := utils.ValidateDescription(req.Description, "description", false); err != nil {
		return err
	}
	if err := utils.ValidateURI(req.CategoryURI, "category_uri", false); err != nil {
		return err
	}
	if err := utils.ValidateURISet(req.InputURIs, "input_uris"); err != nil {
		return err
	}
	return utils.ValidateURISet(req.OutputURIs, "output_uris")
}
