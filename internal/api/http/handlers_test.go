package http

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"sort"
	"testing"

	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/dkourtesis/fusion-semantic-registry-sub001/internal/domain/index"
	"github.com/dkourtesis/fusion-semantic-registry-sub001/internal/domain/registry"
	"github.com/dkourtesis/fusion-semantic-registry-sub001/internal/domain/session"
	"github.com/dkourtesis/fusion-semantic-registry-sub001/internal/infrastructure/monitoring"
	"github.com/dkourtesis/fusion-semantic-registry-sub001/internal/providers/identity"
	"github.com/dkourtesis/fusion-semantic-registry-sub001/internal/shared/fault"
	"github.com/dkourtesis/fusion-semantic-registry-sub001/internal/shared/types"
)

type apiFixture struct {
	router *gin.Engine
	index  *index.Index
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	users := identity.NewStore(bcrypt.MinCost, nil)
	_, err := users.Register("alice", "alice-password")
	require.NoError(t, err)
	_, err = users.Register("bob", "bob-password")
	require.NoError(t, err)

	sessions, err := session.NewManager(users)
	require.NoError(t, err)

	store := registry.NewStore()
	idx, err := index.New(store)
	require.NoError(t, err)
	reg, err := registry.NewManager(store, sessions, idx)
	require.NoError(t, err)

	router := gin.New()
	RegisterRoutes(router, NewHandlers(reg, sessions, idx, monitoring.NewMetrics(), nil), nil)
	return &apiFixture{router: router, index: idx}
}

func (f *apiFixture) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		data, err := sonic.Marshal(body)
		require.NoError(t, err)
		buf.Write(data)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, sonic.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func (f *apiFixture) login(t *testing.T, user, pass string) string {
	t.Helper()
	w := f.do(t, http.MethodPost, "/sessions", "", types.LoginRequest{Username: user, Password: pass})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	resp := decode[types.LoginResponse](t, w)
	require.NotEmpty(t, resp.Token)
	return resp.Token
}

func (f *apiFixture) saveService(t *testing.T, token string, req types.ServiceRequest) types.BusinessService {
	t.Helper()
	w := f.do(t, http.MethodPost, "/services", token, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	return decode[types.BusinessService](t, w)
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, StatusFor(fault.MalformedInput))
	assert.Equal(t, http.StatusUnauthorized, StatusFor(fault.Auth))
	assert.Equal(t, http.StatusNotFound, StatusFor(fault.NoMatchFound))
	assert.Equal(t, http.StatusBadGateway, StatusFor(fault.Communication))
	assert.Equal(t, http.StatusInternalServerError, StatusFor(fault.Configuration))
	assert.Equal(t, http.StatusInternalServerError, StatusFor(fault.Internal))
}

func TestSessionLifecycle(t *testing.T) {
	f := newAPIFixture(t)

	w := f.do(t, http.MethodPost, "/sessions", "", types.LoginRequest{Username: "alice", Password: "wrong-password"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "auth", decode[types.ErrorResponse](t, w).Kind)

	w = f.do(t, http.MethodPost, "/sessions", "", types.LoginRequest{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	token := f.login(t, "alice", "alice-password")

	w = f.do(t, http.MethodGet, "/sessions/self", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "alice", decode[types.Grant](t, w).Identity.Username)

	w = f.do(t, http.MethodDelete, "/sessions", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"revoked":true}`, w.Body.String())

	w = f.do(t, http.MethodGet, "/sessions/self", token, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestPublishAndMatchEndToEnd(t *testing.T) {
	f := newAPIFixture(t)
	alice := f.login(t, "alice", "alice-password")

	// writes without a valid token are rejected
	w := f.do(t, http.MethodPost, "/providers", "", types.ProviderRequest{Name: "Acme"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = f.do(t, http.MethodPost, "/providers", alice, types.ProviderRequest{Name: "Acme"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	provider := decode[types.BusinessProvider](t, w)
	assert.Equal(t, "alice", provider.Owner)

	s1 := f.saveService(t, alice, types.ServiceRequest{
		ProviderKey: provider.Key,
		Name:        "Orders",
		CategoryURI: "urn:cat:orders",
		InputURIs:   []string{"urn:in:a", "urn:in:b"},
		OutputURIs:  []string{"urn:out:x"},
	})
	s2 := f.saveService(t, alice, types.ServiceRequest{
		ProviderKey: provider.Key,
		Name:        "Invoices",
		CategoryURI: "urn:cat:orders",
		InputURIs:   []string{"urn:in:a"},
	})

	w = f.do(t, http.MethodPost, "/index/rfps", alice, types.RFPRequest{
		URI:               "urn:rfp:1",
		CategoryURI:       "urn:cat:orders",
		RequiredInputURIs: []string{"urn:in:a"},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	added := decode[types.AffectedResponse](t, w)
	want := []string{s1.Key, s2.Key}
	sort.Strings(want)
	assert.Equal(t, want, added.Affected)
	assert.Equal(t, 2, added.Count)

	w = f.do(t, http.MethodGet, "/index/rfps?uri=urn:rfp:1", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	query := decode[struct {
		Services []types.BusinessService `json:"services"`
		Count    int                     `json:"count"`
	}](t, w)
	assert.Equal(t, 2, query.Count)

	w = f.do(t, http.MethodGet, "/services/"+s1.Key+"/rfps", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"service_key":"`+s1.Key+`","rfps":["urn:rfp:1"]}`, w.Body.String())

	// deleting a service purges it from the index
	w = f.do(t, http.MethodDelete, "/services/"+s2.Key, alice, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"key":"`+s2.Key+`","affected_rfps":["urn:rfp:1"]}`, w.Body.String())

	keys, err := f.index.Query("urn:rfp:1", "")
	require.NoError(t, err)
	assert.Equal(t, []string{s1.Key}, keys)
	require.NoError(t, f.index.CheckInvariant())

	w = f.do(t, http.MethodDelete, "/index/rfps?uri=urn:rfp:1", alice, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"affected":["`+s1.Key+`"],"count":1}`, w.Body.String())

	w = f.do(t, http.MethodGet, "/index/rfps?uri=urn:rfp:1", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "no_match_found", decode[types.ErrorResponse](t, w).Kind)
}

func TestOwnershipEnforced(t *testing.T) {
	f := newAPIFixture(t)
	alice := f.login(t, "alice", "alice-password")
	bob := f.login(t, "bob", "bob-password")

	w := f.do(t, http.MethodPost, "/providers", alice, types.ProviderRequest{Name: "Acme"})
	require.Equal(t, http.StatusOK, w.Code)
	provider := decode[types.BusinessProvider](t, w)

	w = f.do(t, http.MethodDelete, "/providers/"+provider.Key, bob, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = f.do(t, http.MethodDelete, "/providers/"+provider.Key, alice, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = f.do(t, http.MethodGet, "/providers/"+provider.Key, "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSearchAndListing(t *testing.T) {
	f := newAPIFixture(t)
	alice := f.login(t, "alice", "alice-password")

	w := f.do(t, http.MethodPost, "/providers", alice, types.ProviderRequest{Name: "Acme"})
	provider := decode[types.BusinessProvider](t, w)
	f.saveService(t, alice, types.ServiceRequest{ProviderKey: provider.Key, Name: "Weather", Description: "weather forecasts"})
	f.saveService(t, alice, types.ServiceRequest{ProviderKey: provider.Key, Name: "Stocks"})

	w = f.do(t, http.MethodGet, "/services?q=weather", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	search := decode[struct {
		Matches []types.ServiceMatch `json:"matches"`
	}](t, w)
	require.Len(t, search.Matches, 1)
	assert.Equal(t, "Weather", search.Matches[0].Service.Name)

	w = f.do(t, http.MethodGet, "/services?q=weather&limit=zero", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, http.MethodGet, "/services", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 2, decode[struct {
		Count int `json:"count"`
	}](t, w).Count)

	w = f.do(t, http.MethodGet, "/providers/"+provider.Key+"/services", "", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = f.do(t, http.MethodGet, "/providers/unknown/services", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = f.do(t, http.MethodGet, "/providers", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, decode[struct {
		Count int `json:"count"`
	}](t, w).Count)
}

func TestIndexValidationAndListing(t *testing.T) {
	f := newAPIFixture(t)
	alice := f.login(t, "alice", "alice-password")

	w := f.do(t, http.MethodPost, "/index/rfps", alice, types.RFPRequest{URI: "urn:rfp:x"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, http.MethodGet, "/index/rfps", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, http.MethodPost, "/index/rfps", alice, types.RFPRequest{URI: "urn:rfp:x", CategoryURI: "urn:cat"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"affected":[],"count":0}`, w.Body.String())

	w = f.do(t, http.MethodPost, "/index/refresh", alice, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"affected":[],"count":0}`, w.Body.String())

	w = f.do(t, http.MethodGet, "/index/rfps/list", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	list := decode[struct {
		RFPs  []types.RFPProfile `json:"rfps"`
		Stats types.IndexStats   `json:"stats"`
	}](t, w)
	require.Len(t, list.RFPs, 1)
	assert.Equal(t, "urn:rfp:x", list.RFPs[0].URI)
	assert.Equal(t, 1, list.Stats.RFPs)
}

func TestDispatch(t *testing.T) {
	f := newAPIFixture(t)

	w := f.do(t, http.MethodPost, "/ops/login", "", OpParams{Username: "alice", Password: "alice-password"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	login := decode[struct {
		Result types.LoginResponse `json:"result"`
	}](t, w)
	token := login.Result.Token
	require.NotEmpty(t, token)

	w = f.do(t, http.MethodPost, "/ops/save_provider", token, OpParams{Name: "Acme"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	provider := decode[struct {
		Result types.BusinessProvider `json:"result"`
	}](t, w).Result

	w = f.do(t, http.MethodPost, "/ops/save_service", token, OpParams{
		ProviderKey: provider.Key,
		Name:        "Orders",
		CategoryURI: "urn:cat",
		OutputURIs:  []string{"urn:out"},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	svc := decode[struct {
		Result types.BusinessService `json:"result"`
	}](t, w).Result

	w = f.do(t, http.MethodPost, "/ops/add_rfp", token, OpParams{RFPURI: "urn:rfp", CategoryURI: "urn:cat"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.JSONEq(t, `{"op":"add_rfp","result":{"affected":["`+svc.Key+`"],"count":1}}`, w.Body.String())

	w = f.do(t, http.MethodPost, "/ops/query", "", OpParams{RFPURI: "urn:rfp", ProviderKey: "someone-else"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"op":"query","result":[]}`, w.Body.String())

	w = f.do(t, http.MethodPost, "/ops/refresh_index", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = f.do(t, http.MethodPost, "/ops/does_not_exist", token, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	req := httptest.NewRequest(http.MethodPost, "/ops/login", bytes.NewBufferString("{not json"))
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthAndMetricsSummary(t *testing.T) {
	f := newAPIFixture(t)

	w := f.do(t, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"healthy"`)

	w = f.do(t, http.MethodGet, "/metrics/json", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = f.do(t, http.MethodGet, "/", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}
