package domain

import (
	"sync/atomic"
	"time"
)

var lastEventNanos int64

// NextEventTime returns a strictly increasing timestamp for event
// occurrence times, so that two commands landing in the same wall-clock
// tick still order deterministically within this process.
func NextEventTime() time.Time {
	for {
		now := time.Now().UTC().UnixNano()
		last := atomic.LoadInt64(&lastEventNanos)
		if now <= last {
			now = last + 1
		}
		if atomic.CompareAndSwapInt64(&lastEventNanos, last, now) {
			return time.Unix(0, now).UTC()
		}
	}
}
