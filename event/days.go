package event

import (
	"fmt"
	"time"
)

// DefaultSingleDayLabel labels the only day of a one-day event.
const DefaultSingleDayLabel = "Livestream"

// Day is one calendar day of an event.
type Day struct {
	Date  time.Time `json:"date"`
	Label string    `json:"label"`
	Index int       `json:"dayIndex"`
}

// Partitioner splits an event date range into day slots.
type Partitioner struct {
	// SingleDayLabel replaces the "Day N" label when the event spans one day.
	SingleDayLabel string
}

// Partition uses the default single-day label.
func Partition(start, end time.Time) []Day {
	return Partitioner{}.Partition(start, end)
}

// Partition returns one Day per calendar day between start and end inclusive.
// Calendar days are taken in start's location. At least one day is returned.
func (p Partitioner) Partition(start, end time.Time) []Day {
	n := DayCount(start, end)
	single := p.SingleDayLabel
	if single == "" {
		single = DefaultSingleDayLabel
	}
	loc := start.Location()
	y, m, d := start.Date()
	days := make([]Day, 0, n)
	for i := 0; i < n; i++ {
		date := time.Date(y, m, d+i, 0, 0, 0, 0, loc)
		label := single
		if n > 1 {
			label = fmt.Sprintf("Day %d – %s", i+1, date.Format("Jan 2"))
		}
		days = append(days, Day{Index: i, Label: label, Date: date})
	}
	return days
}

// DayCount is the inclusive whole calendar-day span, minimum 1.
func DayCount(start, end time.Time) int {
	n := DayIndex(end, start) + 1
	if n < 1 {
		return 1
	}
	return n
}

// DayIndex returns the number of calendar days between start's date and t's
// date, both read in start's location. Elapsed hours do not matter: 23:59 and
// 00:01 the next morning are one day apart. The result is negative when t
// falls before the event.
func DayIndex(t, start time.Time) int {
	loc := start.Location()
	return int(civil(t.In(loc)).Sub(civil(start)).Hours()) / 24
}

// civil drops the clock and zone so that DST shifts cannot skew day math.
func civil(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
