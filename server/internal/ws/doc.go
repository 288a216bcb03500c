// Package ws implements the WebSocket hub for errprop-server.
//
// Every client follows one calculator session. The hub pushes the session's
// full state when the client connects, whenever the session changes
// (Hub.Notify, called by the API and the web UI after each mutation) and on
// a periodic tick so that late joiners and missed frames converge.
//
// New(store, presenter, interval) creates a Hub.
// Hub.Run(ctx) starts the broadcast ticker and blocks until ctx is
// cancelled, then closes all active connections.
// Hub.ServeHTTP upgrades GET /ws/sessions/{id}; unknown sessions get 404
// before the upgrade.
//
// Message format sent to clients:
//
//	{
//	  "event": "session",
//	  "data":  { /* same schema as GET /api/v1/sessions/{id} */ }
//	}
//
// When the session is deleted or expires the client receives
// {"event":"expired"} and the connection is closed.
package ws
