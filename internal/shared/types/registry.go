package types

import "time"

// BusinessProvider is a provider system published in the registry
type BusinessProvider struct {
	Key         string    `json:"key"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Owner       string    `json:"owner"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// BusinessService is a service exposed by a provider, with its semantic annotations
type BusinessService struct {
	Key         string    `json:"key"`
	ProviderKey string    `json:"provider_key"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CategoryURI string    `json:"category_uri,omitempty"`
	InputURIs   []string  `json:"input_uris"`
	OutputURIs  []string  `json:"output_uris"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Profile extracts the semantic profile of the service
func (s *BusinessService) Profile() ServiceProfile {
	return ServiceProfile{
		ServiceKey:  s.Key,
		ProviderKey: s.ProviderKey,
		CategoryURI: s.CategoryURI,
		InputURIs:   append([]string(nil), s.InputURIs...),
		OutputURIs:  append([]string(nil), s.OutputURIs...),
	}
}

// ServiceMatch is a keyword search hit
type ServiceMatch struct {
	Service BusinessService `json:"service"`
	Score   float64         `json:"score"`
}

// RegistryStats contains registry statistics
type RegistryStats struct {
	TotalProviders int            `json:"total_providers"`
	TotalServices  int            `json:"total_services"`
	Categories     map[string]int `json:"categories"`
	Unannotated    int            `json:"unannotated"`
	LastUpdated    *time.Time     `json:"last_updated,omitempty"`
}

// IndexStats describes the current match relation
type IndexStats struct {
	RFPs        int        `json:"rfps"`
	Services    int        `json:"services"`
	Pairs       int        `json:"pairs"`
	LastWrite   *time.Time `json:"last_write,omitempty"`
	LastRefresh *time.Time `json:"last_refresh,omitempty"`
}

// IndexOp names a committed index write
type IndexOp string

const (
	IndexOpAdd     IndexOp = "add_rfp"
	IndexOpRemove  IndexOp = "remove_rfp"
	IndexOpRefresh IndexOp = "refresh"
	IndexOpPurge   IndexOp = "purge_service"
)

// IndexEvent is published after every committed index write
type IndexEvent struct {
	ID       string    `json:"id"`
	Op       IndexOp   `json:"op"`
	RFP      string    `json:"rfp_uri,omitempty"`
	Service  string    `json:"service_key,omitempty"`
	Affected []string  `json:"affected"`
	At       time.Time `json:"at"`
}
