// Package clock helps clients line their local clock up with the server's
// so countdowns agree on both ends of a call.
package clock

import "time"

// Offset estimates server minus local time from one round trip: the server
// stamped serverTime somewhere between sent and received, assumed halfway.
func Offset(serverTime, sent, received time.Time) time.Duration {
	midpoint := sent.Add(received.Sub(sent) / 2)
	return serverTime.Sub(midpoint)
}

// OffsetMillis is Offset on Unix millisecond timestamps
func OffsetMillis(serverMs, sentMs, receivedMs int64) int64 {
	return serverMs - (sentMs+receivedMs)/2
}

// RemainingSeconds returns whole seconds until endsAt, never negative
func RemainingSeconds(endsAt, now time.Time) int64 {
	remaining := endsAt.Sub(now)
	if remaining <= 0 {
		return 0
	}
	return int64((remaining + time.Second - 1) / time.Second)
}

// NowMillis returns the current Unix time in milliseconds
func NowMillis() int64 {
	return time.Now().UnixMilli()
}
