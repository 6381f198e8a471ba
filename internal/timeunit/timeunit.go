package timeunit

import (
	"strconv"
	"time"
)

// maxDateMillis is the largest millisecond offset from the epoch that earlier
// writers could represent (1e8 days).
const maxDateMillis = 8.64e15

// Clock turns wall-clock time into coarse expiration units.
type Clock struct {
	Resolution time.Duration
	Radix      int
	Now        func() time.Time
}

// Current returns floor(now in ms / resolution in ms).
func (c Clock) Current() int64 {
	ms := c.Resolution.Milliseconds()
	if ms <= 0 {
		ms = 1
	}
	now := c.Now().UnixMilli()
	u := now / ms
	if now < 0 && now%ms != 0 {
		u-- // floor, not truncate
	}
	return u
}

func (c Clock) Format(unit int64) string { return strconv.FormatInt(unit, c.Radix) }

// Parse reads a stored marker. ok is false when s is not a number in the radix.
func (c Clock) Parse(s string) (int64, bool) {
	v, err := strconv.ParseInt(s, c.Radix, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// FarFuture is the expiration assumed for entries without a marker.
func FarFuture(resolution time.Duration) int64 {
	ms := resolution.Milliseconds()
	if ms <= 0 {
		ms = 1
	}
	return int64(maxDateMillis) / ms
}
