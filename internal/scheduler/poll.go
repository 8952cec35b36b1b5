package scheduler

import "time"

// Poll evaluates check up to attempts times, delay apart, using s for the
// waits. done receives true as soon as check succeeds, or false after the
// last failed attempt. The first check runs synchronously.
func Poll(s Scheduler, attempts int, delay time.Duration, check func(attempt int) bool, done func(ok bool)) {
	if attempts < 1 {
		attempts = 1
	}
	var try func(attempt int)
	try = func(attempt int) {
		if check(attempt) {
			done(true)
			return
		}
		if attempt >= attempts {
			done(false)
			return
		}
		s.After(delay, func() { try(attempt + 1) })
	}
	try(1)
}
