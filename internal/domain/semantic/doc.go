// Package semantic decides whether a published service satisfies a Request
// Functional Profile.
//
// The adopted policy compares annotation URIs by string identity:
//   - category: exact match (closed taxonomy, no subsumption)
//   - inputs: every required input is among the service's inputs
//   - outputs: every required output is among the service's outputs
//
// Empty required sets match vacuously. A service without a category never
// matches; it is not an error, so one partially annotated service cannot
// break a bulk evaluation.
//
// ScriptMatcher lets an operator replace the policy with a JavaScript
// match(service, rfp) function.
package semantic
