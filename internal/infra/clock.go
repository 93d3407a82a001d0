package infra

import "time"

// Clock derives local calendar boundaries in the deployment time zone.
type Clock struct {
	loc *time.Location
	now func() time.Time
}

// NewClock returns a Clock for loc backed by time.Now.
func NewClock(loc *time.Location) *Clock {
	if loc == nil {
		loc = time.UTC
	}
	return &Clock{loc: loc, now: time.Now}
}

// NewFixedClock returns a Clock that always reports t. Used by tests.
func NewFixedClock(loc *time.Location, t time.Time) *Clock {
	c := NewClock(loc)
	c.now = func() time.Time { return t }
	return c
}

// Now returns the current instant in the local zone.
func (c *Clock) Now() time.Time {
	return c.now().In(c.loc)
}

// Location returns the clock's zone.
func (c *Clock) Location() *time.Location {
	return c.loc
}

// DayBounds returns [start, end) of the local calendar day containing t.
func (c *Clock) DayBounds(t time.Time) (time.Time, time.Time) {
	lt := t.In(c.loc)
	start := time.Date(lt.Year(), lt.Month(), lt.Day(), 0, 0, 0, 0, c.loc)
	return start, start.AddDate(0, 0, 1)
}

// Today returns the bounds of the current local day.
func (c *Clock) Today() (time.Time, time.Time) {
	return c.DayBounds(c.now())
}

// DayKey formats the local day of t as YYYYMMDD.
func (c *Clock) DayKey(t time.Time) string {
	return t.In(c.loc).Format("20060102")
}
