/*
Package resilience provides a circuit breaker for calls to a remote PTY host.

The breaker has three states. Closed passes every call and counts
failures; when ReadyToTrip accepts the counts it opens. Open rejects calls
with ErrCircuitOpen until Timeout elapses, then half-opens and lets
MaxRequests trial calls through. A trial success closes it again; a trial
failure reopens it.

A rejected call is a transport error to the caller. The terminal health
monitor treats that the same as a dead session.

# Usage

	breaker := resilience.New("pty-host", resilience.Settings{
		Timeout: 10 * time.Second,
		ReadyToTrip: func(c resilience.Counts) bool {
			return c.ConsecutiveFailures >= 3
		},
	})

	alive, err := resilience.Do(breaker, func() (bool, error) {
		return client.IsSessionActive(ctx, id)
	})
*/
package resilience
