package main

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/go-resty/resty/v2"

	"github.com/dkourtesis/fusion-semantic-registry-sub001/internal/shared/types"
)

// apiError is a non-2xx registry response
type apiError struct {
	Status  int
	Kind    string
	Message string
}

func (e *apiError) Error() string {
	if e.Kind == "" {
		return fmt.Sprintf("registry returned HTTP %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("%s: %s (HTTP %d)", e.Kind, e.Message, e.Status)
}

// client talks to the registry HTTP API
type client struct {
	resty *resty.Client
}

func newClient(server, token string, timeout time.Duration) *client {
	r := resty.New().
		SetBaseURL(strings.TrimRight(server, "/")).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", "regctl/1.0").
		SetJSONMarshaler(sonic.Marshal).
		SetJSONUnmarshaler(sonic.Unmarshal)
	if token != "" {
		r.SetAuthToken(token)
	}
	return &client{resty: r}
}

// do sends a request and decodes a 2xx body into out when out is non-nil
func (c *client) do(ctx context.Context, method, path string, query map[string]string, body, out any) error {
	req := c.resty.R().SetContext(ctx).SetQueryParams(query)
	if body != nil {
		req.SetHeader("Content-Type", "application/json").SetBody(body)
	}

	resp, err := req.Execute(method, path)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	if resp.IsError() {
		apiErr := &apiError{Status: resp.StatusCode(), Message: strings.TrimSpace(resp.String())}
		var er types.ErrorResponse
		if sonic.Unmarshal(resp.Body(), &er) == nil && er.Error != "" {
			apiErr.Kind = er.Kind
			apiErr.Message = er.Error
		}
		return apiErr
	}
	if out == nil {
		return nil
	}
	if err := sonic.Unmarshal(resp.Body(), out); err != nil {
		return fmt.Errorf("%s %s: decoding response: %w", method, path, err)
	}
	return nil
}

func (c *client) login(ctx context.Context, username, password string) (types.LoginResponse, error) {
	var resp types.LoginResponse
	err := c.do(ctx, http.MethodPost, "/sessions", nil, types.LoginRequest{Username: username, Password: password}, &resp)
	return resp, err
}

func (c *client) logout(ctx context.Context) (bool, error) {
	var resp struct {
		Revoked bool `json:"revoked"`
	}
	err := c.do(ctx, http.MethodDelete, "/sessions", nil, nil, &resp)
	return resp.Revoked, err
}

func (c *client) addRFP(ctx context.Context, req types.RFPRequest) (types.AffectedResponse, error) {
	var resp types.AffectedResponse
	err := c.do(ctx, http.MethodPost, "/index/rfps", nil, req, &resp)
	return resp, err
}

func (c *client) removeRFP(ctx context.Context, uri string) (types.AffectedResponse, error) {
	var resp types.AffectedResponse
	err := c.do(ctx, http.MethodDelete, "/index/rfps", map[string]string{"uri": uri}, nil, &resp)
	return resp, err
}

func (c *client) refresh(ctx context.Context) (types.AffectedResponse, error) {
	var resp types.AffectedResponse
	err := c.do(ctx, http.MethodPost, "/index/refresh", nil, nil, &resp)
	return resp, err
}

func (c *client) query(ctx context.Context, uri, provider string) ([]types.BusinessService, error) {
	params := map[string]string{"uri": uri}
	if provider != "" {
		params["provider"] = provider
	}
	var resp struct {
		Services []types.BusinessService `json:"services"`
	}
	err := c.do(ctx, http.MethodGet, "/index/rfps", params, nil, &resp)
	return resp.Services, err
}

func (c *client) listRFPs(ctx context.Context) ([]types.RFPProfile, error) {
	var resp struct {
		RFPs []types.RFPProfile `json:"rfps"`
	}
	err := c.do(ctx, http.MethodGet, "/index/rfps/list", nil, nil, &resp)
	return resp.RFPs, err
}

func (c *client) serviceRFPs(ctx context.Context, key string) ([]string, error) {
	var resp struct {
		RFPs []string `json:"rfps"`
	}
	err := c.do(ctx, http.MethodGet, "/services/"+key+"/rfps", nil, nil, &resp)
	return resp.RFPs, err
}

func (c *client) search(ctx context.Context, keyword string, limit int) ([]types.ServiceMatch, error) {
	params := map[string]string{"q": keyword}
	if limit > 0 {
		params["limit"] = fmt.Sprint(limit)
	}
	var resp struct {
		Matches []types.ServiceMatch `json:"matches"`
	}
	err := c.do(ctx, http.MethodGet, "/services", params, nil, &resp)
	return resp.Matches, err
}
