// Package api implements the HTTP REST API for errprop-server.
//
// New(opts) returns an http.Handler that serves:
//
//	GET    /api/v1/health                          status and live session count
//	POST   /api/v1/sessions                        new session seeded with the initial term
//	GET    /api/v1/sessions/{id}                   terms, result and diagnostics
//	DELETE /api/v1/sessions/{id}                   drop a session
//	GET    /api/v1/sessions/{id}/result            result only
//	POST   /api/v1/sessions/{id}/terms             append a term (JSON or form body)
//	PATCH  /api/v1/sessions/{id}/terms/{termID}    change a term's operation
//	DELETE /api/v1/sessions/{id}/terms/{termID}    remove a term; the last one is kept
//	POST   /api/v1/evaluate                        aggregate a term list without a session
//	GET    /api/v1/slides                          the explanatory deck
//
// All endpoints respond with Content-Type: application/json. Validation
// failures are 422, unknown sessions or terms 404, malformed bodies 400, a
// full session 409 and a full store 429.
// Every mutation is reported to the Notifier so WebSocket clients refresh.
//
// JSON types are defined in types.go; Presenter renders store snapshots.
// Routing uses chi. AccessLog is the slog request logger the server wraps
// around every handler.
package api
