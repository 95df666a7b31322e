// Package ratelimit implements a sliding window rate limiter backed by a
// pluggable store.
//
// The sliding window algorithm tracks individual event timestamps within a
// moving time window, which gives accurate limiting at the cost of storing
// one timestamp per event. The transport layer uses two limiters (per-minute
// and per-hour) to cap outbound mail volume at the client side, before the
// relay ever sees a message.
//
// # Usage
//
//	store := ratelimit.NewMemoryStore()
//	defer store.Close()
//
//	perMinute, err := ratelimit.NewSlidingWindow(store, 60, time.Minute)
//	if err != nil {
//	    // handle error
//	}
//
//	res, err := perMinute.Allow(ctx, "smtp-sends")
//	if err == nil && !res.Allowed {
//	    time.Sleep(res.RetryAfter())
//	}
package ratelimit
