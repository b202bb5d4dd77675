package types

// LoginRequest carries publisher credentials
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResponse returns a freshly minted token
type LoginResponse struct {
	Token     string `json:"token"`
	SessionID string `json:"session_id"`
	ExpiresAt int64  `json:"expires_at,omitempty"`
}

// ProviderRequest creates or updates a provider
type ProviderRequest struct {
	Key         string `json:"key,omitempty"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// ServiceRequest creates or updates a service
type ServiceRequest struct {
	Key         string   `json:"key,omitempty"`
	ProviderKey string   `json:"provider_key"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	CategoryURI string   `json:"category_uri,omitempty"`
	InputURIs   []string `json:"input_uris,omitempty"`
	OutputURIs  []string `json:"output_uris,omitempty"`
}

// RFPRequest adds an RFP to the match index
type RFPRequest struct {
	URI                string   `json:"rfp_uri"`
	CategoryURI        string   `json:"category_uri"`
	RequiredInputURIs  []string `json:"required_input_uris,omitempty"`
	RequiredOutputURIs []string `json:"required_output_uris,omitempty"`
}

// Profile converts the request into an RFP profile
func (r RFPRequest) Profile() RFPProfile {
	return RFPProfile{
		URI:                r.URI,
		CategoryURI:        r.CategoryURI,
		RequiredInputURIs:  r.RequiredInputURIs,
		RequiredOutputURIs: r.RequiredOutputURIs,
	}
}

// AffectedResponse reports the services touched by an index write
type AffectedResponse struct {
	Affected []string `json:"affected"`
	Count    int      `json:"count"`
}

// NewAffectedResponse builds a response that never encodes a null list
func NewAffectedResponse(affected []string) AffectedResponse {
	if affected == nil {
		affected = []string{}
	}
	return AffectedResponse{Affected: affected, Count: len(affected)}
}

// ErrorResponse is the JSON body of every failed request
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}
