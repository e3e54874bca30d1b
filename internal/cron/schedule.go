package cron

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// parser accepts six-field cron expressions: sec min hour day month
// weekday. Seconds are always required, unlike the optional-seconds
// convention some cron libraries default to.
var parser = cron.NewParser(
	cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow,
)

// Schedule is a validated cron expression plus its resolved timezone.
type Schedule struct {
	Expr     string
	Timezone string

	parsed cron.Schedule
	loc    *time.Location
}

// NewSchedule parses expr (six fields: sec min hour day month weekday)
// and resolves timezone (IANA name, or "" for UTC).
func NewSchedule(expr, timezone string) (Schedule, error) {
	parsed, err := parser.Parse(expr)
	if err != nil {
		return Schedule{}, fmt.Errorf("cron: invalid expression %q: %w", expr, err)
	}
	loc := time.UTC
	if timezone != "" {
		tz, err := time.LoadLocation(timezone)
		if err != nil {
			return Schedule{}, fmt.Errorf("cron: invalid timezone %q: %w", timezone, err)
		}
		loc = tz
	}
	return Schedule{Expr: expr, Timezone: timezone, parsed: parsed, loc: loc}, nil
}

// Next returns the next fire time strictly after now, in the schedule's
// configured timezone.
func (s Schedule) Next(now time.Time) time.Time {
	return s.parsed.Next(now.In(s.loc))
}
