// Package hostclient implements terminal.ProcessHost against a remote
// termdeck server.
//
// Control calls (create, resize, close, liveness) go over REST with resty.
// Creation and liveness pass through a circuit breaker so a dead server
// fails fast; the health monitor reads an open breaker as a dead session.
// Output, exit events and keystrokes travel over the /stream websocket,
// which reconnects with exponential backoff.
//
//	c := hostclient.New(hostclient.Config{BaseURL: "http://127.0.0.1:8000"})
//	c.Start()
//	defer c.Close()
//	ctrl := terminal.NewController(terminal.Config{Host: c, Engines: vt.NewStdoutFactory("", nil)})
package hostclient
