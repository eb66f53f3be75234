package service

import "time"

// Clock returns the current time. Services compare against it in UTC.
type Clock func() time.Time

func SystemClock() time.Time {
	return time.Now().UTC()
}
