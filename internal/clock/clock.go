// ABOUTME: Time source abstraction so timestamps and simulated latency are testable
// ABOUTME: Production code uses Real(); tests use Fake() with explicit time control

package clock

import "time"

// Clock supplies the current time and the artificial suspension used to
// model network latency.
type Clock interface {
	// Now returns the current time in UTC without a monotonic reading,
	// so values compare equal after a serialize/parse round trip.
	Now() time.Time

	// Sleep pauses the calling goroutine for at least d. Sleep is not
	// cancellable: once started it always runs to completion.
	Sleep(d time.Duration)
}

// Real returns a Clock backed by the standard time package.
func Real() Clock { return realClock{} }

type realClock struct{}

func (realClock) Now() time.Time { return time.Now().UTC() }

func (realClock) Sleep(d time.Duration) {
	if d > 0 {
		time.Sleep(d)
	}
}
