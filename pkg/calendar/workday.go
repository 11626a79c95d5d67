// Package calendar decides whether a timestamp falls on a workday. The
// loaders use it to build the holiday external feature, so only the
// countries with shipped datasets are covered.
package calendar

import (
	"time"
)

// WorkdayParser reports whether t is a workday in some locale.
type WorkdayParser func(t time.Time) bool

// IsWorkdayAmerica reports whether t is a US workday: a weekday that is not
// a federal holiday.
func IsWorkdayAmerica(t time.Time) bool {
	if isWeekend(t) {
		return false
	}
	return !isUSHoliday(t)
}

// IsWorkdayChina reports whether t is a workday in mainland China. Weekends
// are rest days unless listed as make-up workdays around a holiday week;
// statutory holiday dates are rest days even when they land on a weekday.
func IsWorkdayChina(t time.Time) bool {
	date := t.Format("2006-01-02")
	if chinaMakeupWorkdays[date] {
		return true
	}
	if chinaHolidays[date] {
		return false
	}
	return !isWeekend(t)
}

func isWeekend(t time.Time) bool {
	wd := t.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

func isUSHoliday(t time.Time) bool {
	month, day := t.Month(), t.Day()
	switch {
	case month == time.January && day == 1: // New Year's Day
		return true
	case month == time.July && day == 4: // Independence Day
		return true
	case month == time.November && day == 11: // Veterans Day
		return true
	case month == time.December && day == 25: // Christmas Day
		return true
	}
	switch {
	case month == time.January && isNthWeekday(t, 3, time.Monday): // MLK Day
		return true
	case month == time.February && isNthWeekday(t, 3, time.Monday): // Washington's Birthday
		return true
	case month == time.May && isLastWeekday(t, time.Monday): // Memorial Day
		return true
	case month == time.September && isNthWeekday(t, 1, time.Monday): // Labor Day
		return true
	case month == time.October && isNthWeekday(t, 2, time.Monday): // Columbus Day
		return true
	case month == time.November && isNthWeekday(t, 4, time.Thursday): // Thanksgiving
		return true
	}
	return false
}

func isNthWeekday(t time.Time, n int, wd time.Weekday) bool {
	return t.Weekday() == wd && (t.Day()-1)/7 == n-1
}

func isLastWeekday(t time.Time, wd time.Weekday) bool {
	return t.Weekday() == wd && t.AddDate(0, 0, 7).Month() != t.Month()
}

// Statutory holiday dates for the years covered by the shipped datasets.
// Source: State Council general office holiday arrangement notices.
var chinaHolidays = mkDateSet(
	// 2016
	"2016-01-01",
	"2016-02-07", "2016-02-08", "2016-02-09", "2016-02-10", "2016-02-11", "2016-02-12", "2016-02-13",
	"2016-04-04",
	"2016-05-01", "2016-05-02",
	"2016-06-09", "2016-06-10", "2016-06-11",
	"2016-09-15", "2016-09-16", "2016-09-17",
	"2016-10-01", "2016-10-02", "2016-10-03", "2016-10-04", "2016-10-05", "2016-10-06", "2016-10-07",
	// 2017
	"2017-01-01", "2017-01-02",
	"2017-01-27", "2017-01-28", "2017-01-29", "2017-01-30", "2017-01-31", "2017-02-01", "2017-02-02",
	"2017-04-02", "2017-04-03", "2017-04-04",
	"2017-05-01",
	"2017-05-28", "2017-05-29", "2017-05-30",
	"2017-10-01", "2017-10-02", "2017-10-03", "2017-10-04", "2017-10-05", "2017-10-06", "2017-10-07", "2017-10-08",
	// 2018
	"2018-01-01",
	"2018-02-15", "2018-02-16", "2018-02-17", "2018-02-18", "2018-02-19", "2018-02-20", "2018-02-21",
	"2018-04-05", "2018-04-06", "2018-04-07",
	"2018-04-29", "2018-04-30", "2018-05-01",
	"2018-06-16", "2018-06-17", "2018-06-18",
	"2018-09-22", "2018-09-23", "2018-09-24",
	"2018-10-01", "2018-10-02", "2018-10-03", "2018-10-04", "2018-10-05", "2018-10-06", "2018-10-07",
)

// Weekend dates worked to compensate for holiday weeks.
var chinaMakeupWorkdays = mkDateSet(
	"2016-02-06", "2016-02-14",
	"2016-06-12",
	"2016-09-18",
	"2016-10-08", "2016-10-09",
	"2017-01-22", "2017-02-04",
	"2017-04-01",
	"2017-05-27",
	"2017-09-30",
	"2018-02-11", "2018-02-24",
	"2018-04-08",
	"2018-04-28",
	"2018-09-29", "2018-09-30",
)

func mkDateSet(dates ...string) map[string]bool {
	set := make(map[string]bool, len(dates))
	for _, d := range dates {
		if _, err := time.Parse("2006-01-02", d); err != nil {
			panic("bad holiday table date: " + d)
		}
		set[d] = true
	}
	return set
}
