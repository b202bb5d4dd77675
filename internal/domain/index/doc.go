// Package index maintains the authoritative relation between Request
// Functional Profiles (RFPs) and the services known to satisfy them.
//
// The relation is held as two maps that are always mutual inverses:
//   - forward: rfp URI -> (RFP profile, matching service keys)
//   - reverse: service key -> rfp URIs it satisfies
//
// Writers (AddRFP, RemoveRFP, Refresh, PurgeService) are serialized by a
// dedicated writer mutex. Profile fetching happens while only the writer
// mutex is held; the relation itself is mutated under a short exclusive
// lock, so readers (Query, RFPsFor) always see one consistent state and are
// never blocked for the duration of a scan.
//
// Writes are all-or-nothing: a profile source failure or a timeout during a
// scan returns an error and leaves the relation exactly as it was.
//
// The relation is correct as of the last evaluation of each RFP. Edits to
// service annotations are not re-matched until AddRFP or Refresh runs;
// deleted services are purged eagerly through PurgeService.
//
// Example Usage:
//
//	idx := index.New(source, index.WithLogger(logger))
//	affected, err := idx.AddRFP(ctx, rfp)
//	services, err := idx.Query(rfp.URI, "")
//	affected, err = idx.Refresh(ctx)
package index
