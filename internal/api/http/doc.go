// Package http exposes the registry over a JSON API built on gin.
//
// Every failed request is answered with {"error", "kind"} and a status
// derived from the error kind: malformed_input 400, auth 401,
// no_match_found 404, communication 502, anything else 500. Protected
// operations read the session token from "Authorization: Bearer <token>"
// or X-Auth-Token.
//
// POST /ops/:name dispatches the same operations by name, taking their
// parameters from a flat JSON object.
package http
