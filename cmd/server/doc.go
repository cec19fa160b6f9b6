// Package main runs the termdeck session server.
//
// The server owns the shells. It spawns them on pseudo-terminals, keeps
// their scrollback, and serves them over REST and a websocket stream so
// display clients can detach and reattach without losing the process.
//
// Configuration comes from environment variables (see the config package),
// with flags taking precedence:
//
//	./server -port 8000 -shell /bin/zsh
//
//	# Development mode (colored logs, debug level)
//	./server -dev
//
// Signals:
//   - SIGINT, SIGTERM: graceful shutdown, which kills all sessions
package main
