// Package ratelimit paces calls to the remote panel service.
//
// Bulk enforcement toggles hundreds of users one request at a time. A
// Throttle backed by a TokenBucket keeps those requests at a fixed spacing
// (100ms by default) instead of scattering ad hoc sleeps through the code:
//
//	th := ratelimit.NewThrottle(100*time.Millisecond, clock)
//	for _, u := range users {
//	    if err := th.Wait(ctx); err != nil {
//	        return err
//	    }
//	    client.SetUserStatus(ctx, u.Username, panels.UserDisabled)
//	}
//
// Both types take a quartz.Clock so tests can drive time with a mock.
package ratelimit
