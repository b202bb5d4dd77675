/*
Package resilience provides a circuit breaker for calls to remote collaborators.

# Overview

The breaker fails fast while a collaborator is known to be down so that a
dead remote profile source does not hold every index write until its
timeout. It never retries: a rejected or failed call is reported to the
caller, who decides what to do.

# Usage

	breaker := resilience.New("profiles", resilience.Settings{
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts resilience.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})

	err := breaker.Execute(ctx, func(ctx context.Context) error {
		return client.Call(ctx)
	})

# States

	Closed --[failures]-> Open --[timeout]-> Half-Open --[successes]-> Closed
	                                           |
	                                    [failure]
	                                           |
	                                           v
	                                         Open

A call whose context is already done is rejected without being counted.
Rejections carry fault.Communication. By default a NoMatchFound,
MalformedInput or Auth answer counts as a success, since the collaborator
did respond.
*/
package resilience
