package codec

import "time"

// A tick is 100ns. DateTime ticks count from 0001-01-01T00:00:00Z.
const (
	TicksPerSecond = 10_000_000
	nanosPerTick   = 100

	// unixEpochTicks is the tick value of 1970-01-01T00:00:00Z.
	unixEpochTicks int64 = 621_355_968_000_000_000
)

// TicksFromTime converts t to UTC ticks. Precision below 100ns is dropped.
func TicksFromTime(t time.Time) int64 {
	t = t.UTC()
	return t.Unix()*TicksPerSecond + int64(t.Nanosecond())/nanosPerTick + unixEpochTicks
}

// TimeFromTicks is the inverse of TicksFromTime. The result is in UTC.
func TimeFromTicks(ticks int64) time.Time {
	rel := ticks - unixEpochTicks
	sec := rel / TicksPerSecond
	rem := rel % TicksPerSecond
	return time.Unix(sec, rem*nanosPerTick).UTC()
}

func TicksFromDuration(d time.Duration) int64 { return int64(d) / nanosPerTick }

func DurationFromTicks(ticks int64) time.Duration { return time.Duration(ticks) * nanosPerTick }
