package semantic

import "github.com/dkourtesis/fusion-semantic-registry-sub001/internal/shared/types"

// Matcher is a stateless predicate over a service profile and an RFP
type Matcher interface {
	Matches(service types.ServiceProfile, rfp types.RFPProfile) bool
}

// MatcherFunc adapts a function to Matcher
type MatcherFunc func(service types.ServiceProfile, rfp types.RFPProfile) bool

// Matches calls f
func (f MatcherFunc) Matches(service types.ServiceProfile, rfp types.RFPProfile) bool {
	return f(service, rfp)
}

// Engine implements category-equality plus input/output subset containment
type Engine struct{}

// NewEngine creates the default matcher
func NewEngine() *Engine {
	return &Engine{}
}

// Matches reports whether service satisfies rfp
func (Engine) Matches(service types.ServiceProfile, rfp types.RFPProfile) bool {
	if service.CategoryURI == "" || service.CategoryURI != rfp.CategoryURI {
		return false
	}
	if !types.NewURISet(service.InputURIs).ContainsAll(rfp.RequiredInputURIs) {
		return false
	}
	return types.NewURISet(service.OutputURIs).ContainsAll(rfp.RequiredOutputURIs)
}

// Compiled is a service profile with its URI sets pre-built, for evaluating
// many RFPs against the same service without rebuilding sets each time.
type Compiled struct {
	Profile types.ServiceProfile
	inputs  types.URISet
	outputs types.URISet
}

// Compile prepares a profile for repeated evaluation
func Compile(p types.ServiceProfile) Compiled {
	return Compiled{
		Profile: p,
		inputs:  types.NewURISet(p.InputURIs),
		outputs: types.NewURISet(p.OutputURIs),
	}
}

// Satisfies applies the same policy as Engine.Matches
func (c Compiled) Satisfies(rfp types.RFPProfile) bool {
	if c.Profile.CategoryURI == "" || c.Profile.CategoryURI != rfp.CategoryURI {
		return false
	}
	return c.inputs.ContainsAll(rfp.RequiredInputURIs) && c.outputs.ContainsAll(rfp.RequiredOutputURIs)
}

// Buckets groups compiled profiles by category URI. Services without a
// category are dropped since they can never match.
type Buckets map[string][]Compiled

// BucketByCategory builds category buckets preserving input order
func BucketByCategory(profiles []types.ServiceProfile) Buckets {
	b := make(Buckets)
	for _, p := range profiles {
		if p.CategoryURI == "" {
			continue
		}
		b[p.CategoryURI] = append(b[p.CategoryURI], Compile(p))
	}
	return b
}

// Candidates returns the services that share rfp's category
func (b Buckets) Candidates(rfp types.RFPProfile) []Compiled {
	return b[rfp.CategoryURI]
}
