// Package config loads the errprop-server configuration.
//
// Config fields:
//   - Server.HTTPPort             port for UI, REST API, WebSocket hub and /metrics (default 8080)
//   - Server.Auth.Mode            "apikey" or "none"
//   - Server.Auth.KeyEnv          environment variable holding the expected API key
//   - Server.Auth.Header          HTTP header name (default "X-API-Key")
//   - Server.CORS.AllowedOrigins  browser origins allowed on /api/
//   - Session.TTL                 idle time before a session is evicted (default 30m)
//   - Session.MaxSessions         live session cap (default 1000)
//   - Session.MaxTerms            terms per session cap (default 64)
//   - Calculator.*                form default unit, seed term, append policy
//   - Display.*                   decimals for headline, detail and relative error
//   - WS.BroadcastInterval        periodic WebSocket refresh (default 5s)
//   - Log.Level                   slog level (default info)
//
// Load(path) applies defaults before decoding (YAML, or TOML for *.toml), then
// validates. Watch(ctx, path, fn) hot-reloads on file writes; the server
// applies the calculator policy, the default unit, the display precision and
// the log level without a restart. Everything else needs one.
package config
