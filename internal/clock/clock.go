// Package clock abstracts time so deadline logic is deterministic in tests.
package clock

import "time"

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

// System is the wall clock. All timestamps are UTC.
type System struct{}

func (System) Now() time.Time {
	return time.Now().UTC()
}
