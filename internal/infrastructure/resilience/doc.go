/*
Package resilience provides a circuit breaker for calls that can fail
repeatedly, such as session writes to a full disk or requests to an
unreachable server.

# States

- Closed: Normal operation, calls pass through
- Open: Calls fail immediately with ErrCircuitOpen
- Half-Open: A limited number of trial calls decide whether to close again

	Closed --[failures]-> Open --[timeout]-> Half-Open --[successes]-> Closed
	                                           |
	                                    [failure]
	                                           |
	                                           v
	                                         Open

# Usage

	breaker := resilience.New("storage", resilience.Settings{
		Timeout:     30 * time.Second,
		ReadyToTrip: resilience.ConsecutiveFailures(3),
	})

	err := breaker.Do(func() error {
		return kv.Put(ctx, key, value)
	})

	health, err := resilience.Execute(breaker, func() (Health, error) {
		return client.Health(ctx)
	})

Time is read from an injectable clock so transitions can be tested without
sleeping.
*/
package resilience
