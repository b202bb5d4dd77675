// Package types provides shared data structures for the semantic registry.
//
// Core Types:
//   - ServiceProfile: semantic annotations of a published service
//   - RFPProfile: a Request Functional Profile held by the match index
//   - BusinessProvider, BusinessService: registry records
//   - Identity, Grant: publication session data
//   - IndexEvent: a committed change of the match index
//
// Request Types:
//   - LoginRequest, RFPRequest, ProviderRequest, ServiceRequest: HTTP bodies
//
// Example Usage:
//
//	profile := types.ServiceProfile{
//	    ServiceKey:  "6ba7b810-9dad-11d1-80b4-00c04fd430c8",
//	    CategoryURI: "http://example.org/onto#Weather",
//	    InputURIs:   []string{"http://example.org/onto#City"},
//	    OutputURIs:  []string{"http://example.org/onto#Forecast"},
//	}
package types
