package models

import (
	"fmt"
	"time"
)

const dayLayout = "2006-01-02"

// Day is a calendar date in YYYY-MM-DD form. Daily views and completion
// records are keyed by the user's local date as supplied by the client,
// never by a server-side timezone. The format sorts lexicographically in
// chronological order.
type Day string

func NewDay(t time.Time) Day {
	return Day(t.Format(dayLayout))
}

func ParseDay(s string) (Day, error) {
	t, err := time.Parse(dayLayout, s)
	if err != nil {
		return "", fmt.Errorf("invalid day %q: want YYYY-MM-DD", s)
	}
	return NewDay(t), nil
}

func (d Day) Time() time.Time {
	t, _ := time.Parse(dayLayout, string(d))
	return t
}

func (d Day) AddDays(n int) Day {
	return NewDay(d.Time().AddDate(0, 0, n))
}

func (d Day) Prev() Day {
	return d.AddDays(-1)
}

func (d Day) Before(other Day) bool {
	return string(d) < string(other)
}

func (d Day) String() string {
	return string(d)
}
