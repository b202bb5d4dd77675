// Package registry provides the business registry facade: provider and
// service records, keyword search, and the token-gated entry points to the
// semantic match index.
//
// Components:
//   - Store: in-memory provider/service records; also the local ProfileSource
//   - Manager: the facade that authorizes every mutation and keeps the match
//     index consistent with deletions
//   - Seeder: loads providers and services from YAML files on startup
//
// Mutation Rules:
//   - Every mutating call validates its token before any side effect
//   - A provider may only be changed by the identity that published it
//   - Deleting a service, or a provider with its services, purges them from
//     the match index immediately
//   - Saving a service never re-matches it; AddRFP or RefreshIndex does that
//
// Example Usage:
//
//	store := registry.NewStore()
//	idx, _ := index.New(store)
//	manager, _ := registry.NewManager(store, sessions, idx)
//	provider, err := manager.SaveProvider(ctx, token, types.ProviderRequest{Name: "Acme"})
//	matches, err := manager.FindSemanticMatches(rfpURI, "")
package registry
