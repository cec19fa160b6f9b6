/*
Package tracing follows a request from the termdeck client to the server.

Each HTTP request carries an X-Trace-ID header. The server middleware
accepts the caller's id or makes a new one, echoes it in the response, and
logs one span per request with its duration and status. The client side
copies the id from the request context into outgoing headers so a slow
attach can be matched to the server's log lines.

	tracer := tracing.New("termdeck-server", logger)
	defer tracer.Close()
	router.Use(tracing.HTTPMiddleware(tracer))

	ctx := tracing.WithTraceID(ctx, tracing.NewTraceID())
	client.OnBeforeRequest(tracing.RestyPropagator())
*/
package tracing
