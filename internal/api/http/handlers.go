package http

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/dkourtesis/fusion-semantic-registry-sub001/internal/api/middleware"
	"github.com/dkourtesis/fusion-semantic-registry-sub001/internal/domain/registry"
	"github.com/dkourtesis/fusion-semantic-registry-sub001/internal/domain/session"
	"github.com/dkourtesis/fusion-semantic-registry-sub001/internal/infrastructure/monitoring"
	"github.com/dkourtesis/fusion-semantic-registry-sub001/internal/shared/fault"
	"github.com/dkourtesis/fusion-semantic-registry-sub001/internal/shared/types"
)

// Version is reported by the root and health endpoints
const Version = "1.0.0"

// IndexView is the read side of the match index used for listing
type IndexView interface {
	RFPs() []types.RFPProfile
	Stats() types.IndexStats
}

// Handlers contains all HTTP handlers
type Handlers struct {
	registry *registry.Manager
	sessions *session.Manager
	index    IndexView
	metrics  *monitoring.Metrics
	logger   *zap.Logger
	started  time.Time
	ops      map[string]opFunc
}

// NewHandlers creates a new handler set. metrics and logger may be nil.
func NewHandlers(reg *registry.Manager, sessions *session.Manager, index IndexView, metrics *monitoring.Metrics, logger *zap.Logger) *Handlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Handlers{
		registry: reg,
		sessions: sessions,
		index:    index,
		metrics:  metrics,
		logger:   logger,
		started:  time.Now(),
	}
	h.ops = h.operations()
	return h
}

// Root reports service identity
func (h *Handlers) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "online",
		"service": "semantic-registry",
		"version": Version,
	})
}

// Health reports component statistics
func (h *Handlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":   "healthy",
		"version":  Version,
		"uptime":   time.Since(h.started).Round(time.Second).String(),
		"registry": h.registry.Stats(),
		"index":    h.index.Stats(),
		"sessions": h.sessions.Stats(),
	})
}

// MetricsSummary reports request and index counters as JSON
func (h *Handlers) MetricsSummary(c *gin.Context) {
	if h.metrics == nil {
		respondError(c, fault.New(fault.NoMatchFound, "http.MetricsSummary", "metrics disabled"))
		return
	}
	c.JSON(http.StatusOK, h.metrics.Snapshot())
}

// Login issues a session token
func (h *Handlers) Login(c *gin.Context) {
	var req types.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, badRequest("http.Login", err))
		return
	}
	resp, err := h.login(c, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

func (h *Handlers) login(c *gin.Context, req types.LoginRequest) (types.LoginResponse, error) {
	token, grant, err := h.sessions.Issue(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		return types.LoginResponse{}, err
	}
	resp := types.LoginResponse{Token: token, SessionID: grant.ID}
	if !grant.ExpiresAt.IsZero() {
		resp.ExpiresAt = grant.ExpiresAt.Unix()
	}
	return resp, nil
}

// Logout revokes the presented token
func (h *Handlers) Logout(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"revoked": h.sessions.Revoke(middleware.GetToken(c))})
}

// Self describes the session behind the presented token
func (h *Handlers) Self(c *gin.Context) {
	grant, err := h.sessions.Lookup(middleware.GetToken(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, grant)
}

// ListProviders lists every provider
func (h *Handlers) ListProviders(c *gin.Context) {
	providers := h.registry.ListProviders()
	c.JSON(http.StatusOK, gin.H{"providers": providers, "count": len(providers)})
}

// SaveProvider creates or updates a provider
func (h *Handlers) SaveProvider(c *gin.Context) {
	var req types.ProviderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, badRequest("http.SaveProvider", err))
		return
	}
	p, err := h.registry.SaveProvider(c.Request.Context(), middleware.GetToken(c), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// GetProvider returns one provider
func (h *Handlers) GetProvider(c *gin.Context) {
	p, err := h.registry.GetProvider(c.Param("key"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// DeleteProvider removes a provider and its services
func (h *Handlers) DeleteProvider(c *gin.Context) {
	key := c.Param("key")
	removed, err := h.registry.DeleteProvider(c.Request.Context(), middleware.GetToken(c), key)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"key": key, "removed_services": nonNil(removed)})
}

// ListProviderServices lists the services of one provider
func (h *Handlers) ListProviderServices(c *gin.Context) {
	services, err := h.registry.ListServices(c.Param("key"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"services": services, "count": len(services)})
}

// SaveService creates or updates a service
func (h *Handlers) SaveService(c *gin.Context) {
	var req types.ServiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, badRequest("http.SaveService", err))
		return
	}
	svc, err := h.registry.SaveService(c.Request.Context(), middleware.GetToken(c), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, svc)
}

// GetService returns one service
func (h *Handlers) GetService(c *gin.Context) {
	svc, err := h.registry.GetService(c.Param("key"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, svc)
}

// DeleteService removes a service and purges it from the index
func (h *Handlers) DeleteService(c *gin.Context) {
	key := c.Param("key")
	rfps, err := h.registry.DeleteService(c.Request.Context(), middleware.GetToken(c), key)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"key": key, "affected_rfps": nonNil(rfps)})
}

// SearchServices runs a keyword search, or lists every service when q is empty
func (h *Handlers) SearchServices(c *gin.Context) {
	q := c.Query("q")
	if q == "" {
		services := h.registry.Store().ListServices("")
		c.JSON(http.StatusOK, gin.H{"services": services, "count": len(services)})
		return
	}

	limit, err := parseLimit(c.Query("limit"))
	if err != nil {
		respondError(c, err)
		return
	}
	matches, err := h.registry.FindServices(q, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"query": q, "matches": matches, "count": len(matches)})
}

// ServiceRFPs lists the RFPs a service satisfies
func (h *Handlers) ServiceRFPs(c *gin.Context) {
	key := c.Param("key")
	rfps, err := h.registry.RFPsForService(key)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"service_key": key, "rfps": nonNil(rfps)})
}

// AddRFP indexes an RFP
func (h *Handlers) AddRFP(c *gin.Context) {
	var req types.RFPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, badRequest("http.AddRFP", err))
		return
	}
	affected, err := h.registry.AddRFP(c.Request.Context(), middleware.GetToken(c), req.Profile())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, types.NewAffectedResponse(affected))
}

// RemoveRFP removes an RFP from the index
func (h *Handlers) RemoveRFP(c *gin.Context) {
	affected, err := h.registry.RemoveRFP(c.Request.Context(), middleware.GetToken(c), c.Query("uri"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, types.NewAffectedResponse(affected))
}

// RefreshIndex recomputes the index
func (h *Handlers) RefreshIndex(c *gin.Context) {
	affected, err := h.registry.RefreshIndex(c.Request.Context(), middleware.GetToken(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, types.NewAffectedResponse(affected))
}

// QueryRFP returns the services matching an indexed RFP
func (h *Handlers) QueryRFP(c *gin.Context) {
	uri := c.Query("uri")
	if uri == "" {
		respondError(c, fault.New(fault.MalformedInput, "http.QueryRFP", "uri is required"))
		return
	}
	services, err := h.registry.FindSemanticMatches(uri, c.Query("provider"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"rfp_uri": uri, "services": services, "count": len(services)})
}

// ListRFPs lists every indexed RFP
func (h *Handlers) ListRFPs(c *gin.Context) {
	rfps := h.index.RFPs()
	c.JSON(http.StatusOK, gin.H{"rfps": rfps, "count": len(rfps), "stats": h.index.Stats()})
}

func parseLimit(s string) (int, error) {
	if s == "" {
		return registry.DefaultSearchLimit, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, fault.New(fault.MalformedInput, "http.parseLimit", "limit must be a positive integer")
	}
	return n, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
