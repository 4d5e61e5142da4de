// Package schedule turns recurrence templates into concrete start instants.
// The recurrence evaluator itself is an external component behind Expander.
package schedule

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// Expander evaluates recurrence expressions.
type Expander interface {
	// Validate reports whether expr can be evaluated.
	Validate(expr string) error
	// Expand returns the starts of expr, evaluated in loc, that fall in [from, to],
	// ascending and at most limit of them (limit <= 0 means no cap).
	Expand(expr string, loc *time.Location, from, to time.Time, limit int) ([]time.Time, error)
}

// CronExpander evaluates standard five-field cron expressions and descriptors
// such as "@weekly".
type CronExpander struct {
	parser cron.Parser
}

func NewCronExpander() *CronExpander {
	return &CronExpander{
		parser: cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
	}
}

func (e *CronExpander) Validate(expr string) error {
	if _, err := e.parser.Parse(expr); err != nil {
		return fmt.Errorf("invalid recurrence expression %q: %w", expr, err)
	}
	return nil
}

func (e *CronExpander) Expand(expr string, loc *time.Location, from, to time.Time, limit int) ([]time.Time, error) {
	sched, err := e.parser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid recurrence expression %q: %w", expr, err)
	}
	if loc == nil {
		loc = time.UTC
	}
	if to.Before(from) {
		return nil, nil
	}

	var starts []time.Time
	// Next is strictly-after, so step back 1ns to include from itself
	next := sched.Next(from.In(loc).Add(-time.Nanosecond))
	for !next.IsZero() && !next.After(to) {
		starts = append(starts, next)
		if limit > 0 && len(starts) >= limit {
			break
		}
		next = sched.Next(next)
	}
	return starts, nil
}
