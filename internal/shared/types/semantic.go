package types

import "sort"

// ServiceProfile is the semantic capability description of one service
type ServiceProfile struct {
	ServiceKey  string   `json:"service_key"`
	ProviderKey string   `json:"provider_key,omitempty"`
	CategoryURI string   `json:"category_uri"`
	InputURIs   []string `json:"input_uris"`
	OutputURIs  []string `json:"output_uris"`
}

// RFPProfile is a Request Functional Profile: a named capability request
type RFPProfile struct {
	URI                string   `json:"rfp_uri"`
	CategoryURI        string   `json:"category_uri"`
	RequiredInputURIs  []string `json:"required_input_uris"`
	RequiredOutputURIs []string `json:"required_output_uris"`
}

// Clone returns a deep copy with sorted, de-duplicated URI sets
func (p RFPProfile) Clone() RFPProfile {
	return RFPProfile{
		URI:                p.URI,
		CategoryURI:        p.CategoryURI,
		RequiredInputURIs:  SortedSet(p.RequiredInputURIs),
		RequiredOutputURIs: SortedSet(p.RequiredOutputURIs),
	}
}

// URISet is a set of annotation URIs compared by string identity
type URISet map[string]struct{}

// NewURISet builds a set from a slice
func NewURISet(uris []string) URISet {
	s := make(URISet, len(uris))
	for _, u := range uris {
		s[u] = struct{}{}
	}
	return s
}

// Contains reports whether uri is a member of s
func (s URISet) Contains(uri string) bool {
	_, ok := s[uri]
	return ok
}

// ContainsAll reports whether every element of uris is in s. An empty
// uris is contained vacuously.
func (s URISet) ContainsAll(uris []string) bool {
	for _, u := range uris {
		if _, ok := s[u]; !ok {
			return false
		}
	}
	return true
}

// SortedSet returns the sorted, de-duplicated copy of uris (never nil)
func SortedSet(uris []string) []string {
	out := make([]string, 0, len(uris))
	seen := make(map[string]struct{}, len(uris))
	for _, u := range uris {
		if _, dup := seen[u]; dup {
			continue
		}
		seen[u] = struct{}{}
		out = append(out, u)
	}
	sort.Strings(out)
	return out
}
