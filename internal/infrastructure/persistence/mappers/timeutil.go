package mappers

import "time"

// utcPtr normalizes a nullable column; drivers may hand back local times.
func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
