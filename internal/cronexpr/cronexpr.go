// Package cronexpr parses cron expressions and computes next occurrences.
//
// Both the classic five-field form (minute precision) and the six-field form
// with a leading seconds field are accepted, so "0/15 * * * * *" fires at
// seconds 0, 15, 30 and 45 of every minute. Descriptors such as "@hourly" and
// "@every 15s" are accepted too.
package cronexpr

import (
	"fmt"
	"time"

	"github.com/RezaEskandarii/hostfire/custom_errors"
	"github.com/robfig/cron/v3"
)

const (
	Minutely = "* * * * *"
	Hourly   = "0 * * * *"
	Daily    = "0 0 * * *"
	Weekly   = "0 0 * * 0"
	Monthly  = "0 0 1 * *"
	Yearly   = "0 0 1 1 *"
)

var parser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// EverySeconds returns an expression firing every n seconds, aligned to the
// start of the minute. n must be between 1 and 59.
func EverySeconds(n int) string {
	return fmt.Sprintf("0/%d * * * * *", n)
}

// Parse validates expr and returns its schedule evaluated in timeZone.
// An empty timeZone means UTC.
func Parse(expr string, timeZone string) (cron.Schedule, error) {
	line := expr
	if timeZone != "" && timeZone != "UTC" {
		loc, err := time.LoadLocation(timeZone)
		if err != nil {
			return nil, fmt.Errorf("%w: unknown time zone %q: %v", custom_errors.ErrInvalidCronExpression, timeZone, err)
		}
		line = "CRON_TZ=" + loc.String() + " " + expr
	}

	schedule, err := parser.Parse(line)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", custom_errors.ErrInvalidCronExpression, expr, err)
	}
	return schedule, nil
}

// Next returns the first occurrence of expr strictly after from, in UTC.
func Next(expr string, timeZone string, from time.Time) (time.Time, error) {
	schedule, err := Parse(expr, timeZone)
	if err != nil {
		return time.Time{}, err
	}
	if timeZone == "" || timeZone == "UTC" {
		from = from.UTC()
	}
	next := schedule.Next(from)
	if next.IsZero() {
		return time.Time{}, fmt.Errorf("%w: %q never fires", custom_errors.ErrInvalidCronExpression, expr)
	}
	return next.UTC(), nil
}
