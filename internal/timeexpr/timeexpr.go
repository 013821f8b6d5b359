// Package timeexpr turns user supplied send times into absolute instants.
package timeexpr

import (
	"fmt"
	"strings"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"

	"github.com/LeventeLantos/tweet-scheduler/internal/model"
)

// DisplayLayout is how send times are printed back to the user.
const DisplayLayout = "2006-01-02 15:04:05 -0700"

var layouts = []string{
	"2006-01-02 15:04",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02T15:04:05",
}

var natural = func() *when.Parser {
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	return w
}()

// clockOnly recognises bare clock times such as "11am" or "9:30".
var clockOnly = func() *when.Parser {
	w := when.New(nil)
	w.Add(en.Hour(rules.Override), en.HourMinute(rules.Override))
	return w
}()

// Parse accepts "now", RFC3339, "YYYY-MM-DD HH:MM[:SS]" in now's location,
// Go durations with an optional "in " prefix ("90m", "in 2h30m") and English
// phrases such as "in 1 hour" or "tomorrow 9am". A bare clock time that has
// already passed today means the same time tomorrow.
func Parse(expr string, now time.Time) (time.Time, error) {
	s := strings.TrimSpace(expr)
	if s == "" {
		return time.Time{}, fmt.Errorf("%w: empty time expression", model.ErrValidation)
	}
	if strings.EqualFold(s, "now") {
		return now, nil
	}

	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	for _, layout := range layouts {
		if t, err := time.ParseInLocation(layout, s, now.Location()); err == nil {
			return t, nil
		}
	}

	rel := strings.TrimSpace(strings.TrimPrefix(strings.ToLower(s), "in "))
	if d, err := time.ParseDuration(rel); err == nil {
		return now.Add(d), nil
	}

	r, err := natural.Parse(s, now)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: time expression %q: %v", model.ErrValidation, expr, err)
	}
	if r == nil {
		return time.Time{}, fmt.Errorf("%w: could not understand time expression %q", model.ErrValidation, expr)
	}
	if !r.Time.After(now) && isClockTime(s, now, r.Time) {
		return r.Time.AddDate(0, 0, 1), nil
	}
	return r.Time, nil
}

// isClockTime reports whether t is fully explained by a time of day in expr,
// with no date part moving it off now's day.
func isClockTime(expr string, now, t time.Time) bool {
	c, err := clockOnly.Parse(expr, now)
	if err != nil || c == nil {
		return false
	}
	return c.Time.Equal(t)
}

func Format(t time.Time) string {
	return t.Local().Format(DisplayLayout)
}
