package index

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dkourtesis/fusion-semantic-registry-sub001/internal/domain/semantic"
	"github.com/dkourtesis/fusion-semantic-registry-sub001/internal/shared/fault"
	"github.com/dkourtesis/fusion-semantic-registry-sub001/internal/shared/id"
	"github.com/dkourtesis/fusion-semantic-registry-sub001/internal/shared/types"
	"github.com/dkourtesis/fusion-semantic-registry-sub001/internal/shared/utils"
)

// ProfileSource supplies the service universe and semantic profiles
type ProfileSource interface {
	ListServiceKeys(ctx context.Context) ([]string, error)
	ServiceProfile(ctx context.Context, serviceKey string) (types.ServiceProfile, error)
}

// Publisher receives an event after every committed write
type Publisher interface {
	Publish(event types.IndexEvent)
}

// Recorder receives operation metrics
type Recorder interface {
	ObserveIndexOp(op, status string, duration time.Duration, affected int)
	SetIndexSize(rfps, pairs int)
}

// DefaultScanWorkers bounds concurrent profile fetches during a scan
const DefaultScanWorkers = 8

type entry struct {
	profile  types.RFPProfile
	services map[string]string // service key -> provider key
}

// Index is the RFP <-> service match relation
type Index struct {
	source  ProfileSource
	matcher semantic.Matcher // nil uses the compiled subset policy
	logger  *zap.Logger
	pub     Publisher
	rec     Recorder
	now     func() time.Time

	opTimeout   time.Duration
	scanWorkers int

	writeMu sync.Mutex // serializes writers

	mu          sync.RWMutex // guards the fields below
	forward     map[string]*entry
	reverse     map[string]map[string]struct{}
	lastWrite   time.Time
	lastRefresh time.Time
}

// Option configures an Index
type Option func(*Index)

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(i *Index) {
		if l != nil {
			i.logger = l
		}
	}
}

// WithMatcher replaces the default subset policy. Candidates are still
// restricted to services sharing the RFP's category.
func WithMatcher(m semantic.Matcher) Option {
	return func(i *Index) {
		if m != nil {
			i.matcher = m
		}
	}
}

// WithPublisher sets the event sink
func WithPublisher(p Publisher) Option {
	return func(i *Index) { i.pub = p }
}

// WithRecorder sets the metrics sink
func WithRecorder(r Recorder) Option {
	return func(i *Index) { i.rec = r }
}

// WithOpTimeout bounds every write. Zero means only the caller's context applies.
func WithOpTimeout(d time.Duration) Option {
	return func(i *Index) { i.opTimeout = d }
}

// WithScanWorkers sets the number of concurrent profile fetches
func WithScanWorkers(n int) Option {
	return func(i *Index) {
		if n > 0 {
			i.scanWorkers = n
		}
	}
}

// WithClock overrides time.Now, for tests
func WithClock(now func() time.Time) Option {
	return func(i *Index) { i.now = now }
}

// New creates an empty index. It fails with a Configuration error when no
// profile source is supplied.
func New(source ProfileSource, opts ...Option) (*Index, error) {
	if source == nil {
		return nil, fault.New(fault.Configuration, "index.New", "profile source is required")
	}

	i := &Index{
		source:      source,
		logger:      zap.NewNop(),
		now:         time.Now,
		scanWorkers: DefaultScanWorkers,
		forward:     make(map[string]*entry),
		reverse:     make(map[string]map[string]struct{}),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i, nil
}

// AddRFP evaluates rfp against every service and records the matches. An
// RFP with the same URI is replaced. The returned list holds the matching
// service keys in ascending order.
func (i *Index) AddRFP(ctx context.Context, rfp types.RFPProfile) ([]string, error) {
	const op = "index.AddRFP"
	start := i.now()

	if err := validateRFP(rfp); err != nil {
		return nil, fault.Wrap(fault.MalformedInput, op, err, "invalid rfp")
	}
	rfp = rfp.Clone()

	i.writeMu.Lock()
	defer i.writeMu.Unlock()

	ctx, cancel := i.withTimeout(ctx)
	defer cancel()

	matches, err := i.scan(ctx, []types.RFPProfile{rfp})
	if err != nil {
		i.observe(types.IndexOpAdd, start, 0, err)
		return nil, fault.Wrap(fault.KindOf(err), op, err, "evaluating %s", rfp.URI)
	}
	if err := ctx.Err(); err != nil {
		i.observe(types.IndexOpAdd, start, 0, err)
		return nil, fault.Wrap(fault.Communication, op, err, "evaluating %s", rfp.URI)
	}

	services := matches[rfp.URI]

	i.mu.Lock()
	replaced := i.removeLocked(rfp.URI) != nil
	i.insertLocked(rfp, services)
	i.lastWrite = i.now()
	i.mu.Unlock()

	affected := sortedKeys(services)
	i.logger.Info("RFP indexed",
		zap.String("rfp", rfp.URI),
		zap.Bool("replaced", replaced),
		zap.Int("matches", len(affected)),
	)
	i.observe(types.IndexOpAdd, start, len(affected), nil)
	i.publish(types.IndexOpAdd, rfp.URI, "", affected)
	return affected, nil
}

// RemoveRFP deletes rfpURI and returns the services it matched. Removing
// an unknown URI returns an empty list.
func (i *Index) RemoveRFP(ctx context.Context, rfpURI string) ([]string, error) {
	const op = "index.RemoveRFP"
	start := i.now()

	if err := utils.ValidateURI(rfpURI, "rfp_uri", true); err != nil {
		return nil, fault.Wrap(fault.MalformedInput, op, err, "invalid rfp uri")
	}

	i.writeMu.Lock()
	defer i.writeMu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, fault.Wrap(fault.Communication, op, err, "removing %s", rfpURI)
	}

	i.mu.Lock()
	removed := i.removeLocked(rfpURI)
	if removed != nil {
		i.lastWrite = i.now()
	}
	i.mu.Unlock()

	if removed == nil {
		i.observe(types.IndexOpRemove, start, 0, nil)
		return []string{}, nil
	}

	affected := sortedKeys(removed.services)
	i.logger.Info("RFP removed", zap.String("rfp", rfpURI), zap.Int("affected", len(affected)))
	i.observe(types.IndexOpRemove, start, len(affected), nil)
	i.publish(types.IndexOpRemove, rfpURI, "", affected)
	return affected, nil
}

// Refresh recomputes every indexed RFP against the current profile
// snapshot and atomically replaces the relation. It returns the services
// whose set of satisfied RFPs changed.
func (i *Index) Refresh(ctx context.Context) ([]string, error) {
	const op = "index.Refresh"
	start := i.now()

	i.writeMu.Lock()
	defer i.writeMu.Unlock()

	ctx, cancel := i.withTimeout(ctx)
	defer cancel()

	i.mu.RLock()
	rfps := make([]types.RFPProfile, 0, len(i.forward))
	for _, e := range i.forward {
		rfps = append(rfps, e.profile)
	}
	i.mu.RUnlock()

	var matches map[string]map[string]string
	if len(rfps) > 0 {
		var err error
		matches, err = i.scan(ctx, rfps)
		if err != nil {
			i.observe(types.IndexOpRefresh, start, 0, err)
			return nil, fault.Wrap(fault.KindOf(err), op, err, "refreshing %d rfps", len(rfps))
		}
		if err := ctx.Err(); err != nil {
			i.observe(types.IndexOpRefresh, start, 0, err)
			return nil, fault.Wrap(fault.Communication, op, err, "refreshing %d rfps", len(rfps))
		}
	}

	forward := make(map[string]*entry, len(rfps))
	reverse := make(map[string]map[string]struct{})
	for _, rfp := range rfps {
		services := matches[rfp.URI]
		if services == nil {
			services = make(map[string]string)
		}
		forward[rfp.URI] = &entry{profile: rfp, services: services}
		for svc := range services {
			addReverse(reverse, svc, rfp.URI)
		}
	}

	i.mu.Lock()
	affected := diffReverse(i.reverse, reverse)
	i.forward = forward
	i.reverse = reverse
	now := i.now()
	i.lastWrite = now
	i.lastRefresh = now
	i.mu.Unlock()

	i.logger.Info("Index refreshed",
		zap.Int("rfps", len(rfps)),
		zap.Int("affected", len(affected)),
		zap.Duration("took", time.Since(start)),
	)
	i.observe(types.IndexOpRefresh, start, len(affected), nil)
	i.publish(types.IndexOpRefresh, "", "", affected)
	return affected, nil
}

// PurgeService eagerly removes a deleted service from every forward set
// and drops its reverse entry. It returns the RFP URIs it was removed from.
func (i *Index) PurgeService(ctx context.Context, serviceKey string) ([]string, error) {
	purged, err := i.PurgeServices(ctx, []string{serviceKey})
	if err != nil {
		return nil, err
	}
	return purged[serviceKey], nil
}

// PurgeServices purges several services under a single write, as done when
// a provider and all its services are deleted.
func (i *Index) PurgeServices(ctx context.Context, serviceKeys []string) (map[string][]string, error) {
	const op = "index.PurgeServices"
	start := i.now()

	for _, key := range serviceKeys {
		if err := utils.ValidateString(key, "service_key", 1, utils.MaxKeyLength, true); err != nil {
			return nil, fault.Wrap(fault.MalformedInput, op, err, "invalid service key")
		}
	}

	i.writeMu.Lock()
	defer i.writeMu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, fault.Wrap(fault.Communication, op, err, "purging services")
	}

	out := make(map[string][]string, len(serviceKeys))
	i.mu.Lock()
	for _, key := range serviceKeys {
		rfps := i.reverse[key]
		for uri := range rfps {
			if e, ok := i.forward[uri]; ok {
				delete(e.services, key)
			}
		}
		delete(i.reverse, key)
		out[key] = sortedSet(rfps)
	}
	if len(serviceKeys) > 0 {
		i.lastWrite = i.now()
	}
	i.mu.Unlock()

	for _, key := range serviceKeys {
		if len(out[key]) == 0 {
			continue
		}
		i.logger.Info("Service purged from index", zap.String("service", key), zap.Int("rfps", len(out[key])))
		i.publish(types.IndexOpPurge, "", key, []string{key})
	}
	i.observe(types.IndexOpPurge, start, len(serviceKeys), nil)
	return out, nil
}

// Query returns the services matching rfpURI, optionally restricted to one
// provider. It fails with NoMatchFound when the RFP is not indexed.
func (i *Index) Query(rfpURI, providerKey string) ([]string, error) {
	const op = "index.Query"
	if err := utils.ValidateURI(rfpURI, "rfp_uri", true); err != nil {
		return nil, fault.Wrap(fault.MalformedInput, op, err, "invalid rfp uri")
	}

	i.mu.RLock()
	defer i.mu.RUnlock()

	e, ok := i.forward[rfpURI]
	if !ok {
		return nil, fault.New(fault.NoMatchFound, op, "rfp %s is not indexed", rfpURI)
	}

	out := make([]string, 0, len(e.services))
	for svc, provider := range e.services {
		if providerKey == "" || provider == providerKey {
			out = append(out, svc)
		}
	}
	sort.Strings(out)
	return out, nil
}

// RFPsFor returns the RFP URIs that serviceKey currently satisfies
func (i *Index) RFPsFor(serviceKey string) []string {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return sortedSet(i.reverse[serviceKey])
}

// RFP returns the indexed profile for rfpURI
func (i *Index) RFP(rfpURI string) (types.RFPProfile, bool) {
	i.mu.RLock()
	defer i.mu.RUnlock()

	e, ok := i.forward[rfpURI]
	if !ok {
		return types.RFPProfile{}, false
	}
	return e.profile.Clone(), true
}

// RFPs lists every indexed RFP ordered by URI
func (i *Index) RFPs() []types.RFPProfile {
	i.mu.RLock()
	defer i.mu.RUnlock()

	out := make([]types.RFPProfile, 0, len(i.forward))
	for _, e := range i.forward {
		out = append(out, e.profile.Clone())
	}
	sort.Slice(out, func(a, b int) bool { return out[a].URI < out[b].URI })
	return out
}

// Stats returns the size of the relation
func (i *Index) Stats() types.IndexStats {
	i.mu.RLock()
	defer i.mu.RUnlock()

	pairs := 0
	for _, e := range i.forward {
		pairs += len(e.services)
	}
	stats := types.IndexStats{
		RFPs:     len(i.forward),
		Services: len(i.reverse),
		Pairs:    pairs,
	}
	if !i.lastWrite.IsZero() {
		t := i.lastWrite
		stats.LastWrite = &t
	}
	if !i.lastRefresh.IsZero() {
		t := i.lastRefresh
		stats.LastRefresh = &t
	}
	return stats
}

// CheckInvariant verifies that forward and reverse are mutual inverses
func (i *Index) CheckInvariant() error {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return checkInverse(i.forward, i.reverse)
}

// scan fetches every profile once and evaluates all rfps against the
// category buckets. Services that vanish between listing and fetching are
// skipped; any other source failure aborts the scan.
func (i *Index) scan(ctx context.Context, rfps []types.RFPProfile) (map[string]map[string]string, error) {
	keys, err := i.source.ListServiceKeys(ctx)
	if err != nil {
		return nil, sourceError("listing services", err)
	}

	profiles := make([]types.ServiceProfile, len(keys))
	found := make([]bool, len(keys))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(i.scanWorkers)
	for n, key := range keys {
		n, key := n, key
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			p, err := i.source.ServiceProfile(gctx, key)
			if err != nil {
				if fault.Is(err, fault.NoMatchFound) {
					i.logger.Debug("Service vanished during scan", zap.String("service", key))
					return nil
				}
				return sourceError("fetching profile of "+key, err)
			}
			if p.ServiceKey == "" {
				p.ServiceKey = key
			}
			profiles[n] = p
			found[n] = true
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	live := make([]types.ServiceProfile, 0, len(profiles))
	for n, p := range profiles {
		if found[n] {
			live = append(live, p)
		}
	}

	buckets := semantic.BucketByCategory(live)
	out := make(map[string]map[string]string, len(rfps))
	for _, rfp := range rfps {
		services := make(map[string]string)
		for _, c := range buckets.Candidates(rfp) {
			if i.satisfies(c, rfp) {
				services[c.Profile.ServiceKey] = c.Profile.ProviderKey
			}
		}
		out[rfp.URI] = services
	}
	return out, nil
}

func (i *Index) satisfies(c semantic.Compiled, rfp types.RFPProfile) bool {
	if i.matcher != nil {
		return i.matcher.Matches(c.Profile, rfp)
	}
	return c.Satisfies(rfp)
}

func (i *Index) insertLocked(rfp types.RFPProfile, services map[string]string) {
	copied := make(map[string]string, len(services))
	for svc, provider := range services {
		copied[svc] = provider
		addReverse(i.reverse, svc, rfp.URI)
	}
	i.forward[rfp.URI] = &entry{profile: rfp, services: copied}
}

func (i *Index) removeLocked(rfpURI string) *entry {
	e, ok := i.forward[rfpURI]
	if !ok {
		return nil
	}
	for svc := range e.services {
		if rfps, ok := i.reverse[svc]; ok {
			delete(rfps, rfpURI)
			if len(rfps) == 0 {
				delete(i.reverse, svc)
			}
		}
	}
	delete(i.forward, rfpURI)
	return e
}

func (i *Index) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if i.opTimeout > 0 {
		return context.WithTimeout(ctx, i.opTimeout)
	}
	return context.WithCancel(ctx)
}

func (i *Index) observe(op types.IndexOp, start time.Time, affected int, err error) {
	if i.rec == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = fault.KindOf(err).String()
	}
	i.rec.ObserveIndexOp(string(op), status, i.now().Sub(start), affected)

	stats := i.Stats()
	i.rec.SetIndexSize(stats.RFPs, stats.Pairs)
}

func (i *Index) publish(op types.IndexOp, rfpURI, serviceKey string, affected []string) {
	if i.pub == nil {
		return
	}
	i.pub.Publish(types.IndexEvent{
		ID:       id.NewEventID().String(),
		Op:       op,
		RFP:      rfpURI,
		Service:  serviceKey,
		Affected: append([]string(nil), affected...),
		At:       i.now(),
	})
}

func validateRFP(rfp types.RFPProfile) error {
	if err := utils.ValidateURI(rfp.URI, "rfp_uri", true); err != nil {
		return err
	}
	if err := utils.ValidateURI(rfp.CategoryURI, "category_uri", true); err != nil {
		return err
	}
	if err := utils.ValidateURISet(rfp.RequiredInputURIs, "required_input_uris"); err != nil {
		return err
	}
	return utils.ValidateURISet(rfp.RequiredOutputURIs, "required_output_uris")
}

// sourceError keeps the kind reported by the source. Untagged failures
// mean the source misbehaved and are reported as Communication.
func sourceError(what string, err error) error {
	kind := fault.KindOf(err)
	if kind == fault.Internal {
		kind = fault.Communication
	}
	return fault.Wrap(kind, "index.scan", err, "%s", what)
}

func addReverse(reverse map[string]map[string]struct{}, svc, rfpURI string) {
	set, ok := reverse[svc]
	if !ok {
		set = make(map[string]struct{})
		reverse[svc] = set
	}
	set[rfpURI] = struct{}{}
}

func diffReverse(before, after map[string]map[string]struct{}) []string {
	changed := make([]string, 0)
	for svc, old := range before {
		if !sameSet(old, after[svc]) {
			changed = append(changed, svc)
		}
	}
	for svc, cur := range after {
		if _, seen := before[svc]; !seen && len(cur) > 0 {
			changed = append(changed, svc)
		}
	}
	sort.Strings(changed)
	return changed
}

func sameSet(a, b map[string]struct{}) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if _, ok := b[k]; !ok {
			return false
		}
	}
	return true
}

func checkInverse(forward map[string]*entry, reverse map[string]map[string]struct{}) error {
	for uri, e := range forward {
		for svc := range e.services {
			if _, ok := reverse[svc][uri]; !ok {
				return fault.New(fault.Internal, "index.CheckInvariant", "%s -> %s missing from reverse map", uri, svc)
			}
		}
	}
	for svc, rfps := range reverse {
		if len(rfps) == 0 {
			return fault.New(fault.Internal, "index.CheckInvariant", "empty reverse entry for %s", svc)
		}
		for uri := range rfps {
			e, ok := forward[uri]
			if !ok {
				return fault.New(fault.Internal, "index.CheckInvariant", "reverse entry %s -> %s has no rfp", svc, uri)
			}
			if _, ok := e.services[svc]; !ok {
				return fault.New(fault.Internal, "index.CheckInvariant", "%s -> %s missing from forward map", svc, uri)
			}
		}
	}
	return nil
}

func sortedKeys(m map[string]string) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func sortedSet(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
