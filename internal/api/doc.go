// Package api exposes a ptyhost over HTTP.
//
// REST endpoints manage sessions:
//
//	POST   /sessions                 create a session
//	GET    /sessions                 list sessions
//	GET    /sessions/:id             session details
//	GET    /sessions/:id/active      liveness check
//	GET    /sessions/:id/scrollback  recent output, gzip when accepted
//	POST   /sessions/:id/input       write bytes
//	POST   /sessions/:id/resize      change geometry
//	DELETE /sessions/:id             kill a session
//
// GET /stream upgrades to a websocket carrying wire.Frame messages. Every
// connection receives the output and exit events of all sessions and may
// send write, resize and ping frames.
package api
