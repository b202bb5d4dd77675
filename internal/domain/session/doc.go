// Package session provides the session authority that gates every
// mutating registry operation.
//
// A publisher exchanges username and password for an opaque token. The
// token is checked on every write and can be revoked at any time.
//
// Components:
//   - Manager: issue, validate and revoke tokens
//   - Authenticator: the identity backend consulted by Issue
//   - Sweeper: periodic eviction of expired grants (Run)
//
// Token Table:
//   - Tokens are 32 random bytes, base64url encoded
//   - Only a keyed BLAKE3 digest of each token is stored
//   - The table is split into shards, each with its own lock, so distinct
//     tokens never contend on the same lock
//   - All operations on one token go through one shard lock, so a revoked
//     token is never accepted afterwards
//
// Example Usage:
//
//	manager, err := session.NewManager(store, session.WithTTL(time.Hour))
//	token, grant, err := manager.Issue(ctx, "alice", "secret-pass")
//	identity, err := manager.Validate(token)
//	revoked := manager.Revoke(token)
package session
