package http

import (
	"io"
	"net/http"

	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"

	"github.com/dkourtesis/fusion-semantic-registry-sub001/internal/api/middleware"
	"github.com/dkourtesis/fusion-semantic-registry-sub001/internal/shared/fault"
	"github.com/dkourtesis/fusion-semantic-registry-sub001/internal/shared/types"
)

// maxOpBody bounds the parameter object of a dispatched operation
const maxOpBody = 1 << 20

// OpParams is the flat parameter object accepted by POST /ops/:name
type OpParams struct {
	Key                string   `json:"key,omitempty"`
	ProviderKey        string   `json:"provider_key,omitempty"`
	Name               string   `json:"name,omitempty"`
	Description        string   `json:"description,omitempty"`
	CategoryURI        string   `json:"category_uri,omitempty"`
	InputURIs          []string `json:"input_uris,omitempty"`
	OutputURIs         []string `json:"output_uris,omitempty"`
	RFPURI             string   `json:"rfp_uri,omitempty"`
	RequiredInputURIs  []string `json:"required_input_uris,omitempty"`
	RequiredOutputURIs []string `json:"required_output_uris,omitempty"`
	Username           string   `json:"username,omitempty"`
	Password           string   `json:"password,omitempty"`
	Query              string   `json:"q,omitempty"`
	Limit              int      `json:"limit,omitempty"`
}

type opFunc func(c *gin.Context, token string, p OpParams) (any, error)

func (h *Handlers) operations() map[string]opFunc {
	return map[string]opFunc{
		"login": func(c *gin.Context, _ string, p OpParams) (any, error) {
			return h.login(c, types.LoginRequest{Username: p.Username, Password: p.Password})
		},
		"logout": func(_ *gin.Context, token string, _ OpParams) (any, error) {
			return gin.H{"revoked": h.sessions.Revoke(token)}, nil
		},
		"whoami": func(_ *gin.Context, token string, _ OpParams) (any, error) {
			return h.sessions.Lookup(token)
		},
		"save_provider": func(c *gin.Context, token string, p OpParams) (any, error) {
			return h.registry.SaveProvider(c.Request.Context(), token, types.ProviderRequest{
				Key:         p.Key,
				Name:        p.Name,
				Description: p.Description,
			})
		},
		"get_provider": func(_ *gin.Context, _ string, p OpParams) (any, error) {
			return h.registry.GetProvider(p.Key)
		},
		"list_providers": func(_ *gin.Context, _ string, _ OpParams) (any, error) {
			return h.registry.ListProviders(), nil
		},
		"delete_provider": func(c *gin.Context, token string, p OpParams) (any, error) {
			removed, err := h.registry.DeleteProvider(c.Request.Context(), token, p.Key)
			return nonNil(removed), err
		},
		"save_service": func(c *gin.Context, token string, p OpParams) (any, error) {
			return h.registry.SaveService(c.Request.Context(), token, types.ServiceRequest{
				Key:         p.Key,
				ProviderKey: p.ProviderKey,
				Name:        p.Name,
				Description: p.Description,
				CategoryURI: p.CategoryURI,
				InputURIs:   p.InputURIs,
				OutputURIs:  p.OutputURIs,
			})
		},
		"get_service": func(_ *gin.Context, _ string, p OpParams) (any, error) {
			return h.registry.GetService(p.Key)
		},
		"list_services": func(_ *gin.Context, _ string, p OpParams) (any, error) {
			if p.ProviderKey == "" {
				return h.registry.Store().ListServices(""), nil
			}
			return h.registry.ListServices(p.ProviderKey)
		},
		"delete_service": func(c *gin.Context, token string, p OpParams) (any, error) {
			rfps, err := h.registry.DeleteService(c.Request.Context(), token, p.Key)
			return nonNil(rfps), err
		},
		"find_services": func(_ *gin.Context, _ string, p OpParams) (any, error) {
			return h.registry.FindServices(p.Query, p.Limit)
		},
		"rfps_for_service": func(_ *gin.Context, _ string, p OpParams) (any, error) {
			rfps, err := h.registry.RFPsForService(p.Key)
			return nonNil(rfps), err
		},
		"add_rfp": func(c *gin.Context, token string, p OpParams) (any, error) {
			affected, err := h.registry.AddRFP(c.Request.Context(), token, types.RFPProfile{
				URI:                p.RFPURI,
				CategoryURI:        p.CategoryURI,
				RequiredInputURIs:  p.RequiredInputURIs,
				RequiredOutputURIs: p.RequiredOutputURIs,
			})
			return types.NewAffectedResponse(affected), err
		},
		"remove_rfp": func(c *gin.Context, token string, p OpParams) (any, error) {
			affected, err := h.registry.RemoveRFP(c.Request.Context(), token, p.RFPURI)
			return types.NewAffectedResponse(affected), err
		},
		"refresh_index": func(c *gin.Context, token string, _ OpParams) (any, error) {
			affected, err := h.registry.RefreshIndex(c.Request.Context(), token)
			return types.NewAffectedResponse(affected), err
		},
		"query": func(_ *gin.Context, _ string, p OpParams) (any, error) {
			return h.registry.FindSemanticMatches(p.RFPURI, p.ProviderKey)
		},
		"list_rfps": func(_ *gin.Context, _ string, _ OpParams) (any, error) {
			return h.index.RFPs(), nil
		},
	}
}

// OpNames returns the names accepted by Dispatch
func (h *Handlers) OpNames() []string {
	names := make([]string, 0, len(h.ops))
	for name := range h.ops {
		names = append(names, name)
	}
	return names
}

// Dispatch runs a named operation with parameters from the request body
func (h *Handlers) Dispatch(c *gin.Context) {
	const op = "http.Dispatch"

	name := c.Param("name")
	fn, ok := h.ops[name]
	if !ok {
		respondError(c, fault.New(fault.NoMatchFound, op, "unknown operation %q", name))
		return
	}

	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxOpBody+1))
	if err != nil {
		respondError(c, badRequest(op, err))
		return
	}
	if len(body) > maxOpBody {
		respondError(c, fault.New(fault.MalformedInput, op, "parameters exceed %d bytes", maxOpBody))
		return
	}

	var params OpParams
	if len(body) > 0 {
		if err := sonic.Unmarshal(body, &params); err != nil {
			respondError(c, badRequest(op, err))
			return
		}
	}

	result, err := fn(c, middleware.GetToken(c), params)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"op": name, "result": result})
}
