package automation

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// CronMode selects how schedule expressions are matched.
type CronMode string

const (
	// CronModeExact matches each of the five fields as '*' or a bare
	// integer. Ranges, lists and steps never match.
	CronModeExact CronMode = "exact"

	// CronModeStandard accepts full standard cron syntax.
	CronModeStandard CronMode = "standard"
)

const cronFieldCount = 5

var standardParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// ShouldRunNow reports whether expr matches now to the minute using the
// exact matcher: fields are minute, hour, day of month, month and weekday
// with Monday = 0. Each field is '*' or an integer equal to the
// corresponding component of now. Anything else never matches.
func ShouldRunNow(expr string, now time.Time) bool {
	fields := strings.Fields(expr)
	if len(fields) != cronFieldCount {
		return false
	}

	components := [cronFieldCount]int{
		now.Minute(),
		now.Hour(),
		now.Day(),
		int(now.Month()),
		mondayZeroWeekday(now),
	}

	for i, field := range fields {
		if field == "*" {
			continue
		}
		n, err := strconv.Atoi(field)
		if err != nil || n != components[i] {
			return false
		}
	}
	return true
}

// mondayZeroWeekday numbers days Monday = 0 through Sunday = 6.
func mondayZeroWeekday(t time.Time) int {
	return (int(t.Weekday()) + 6) % 7
}

// MatchesCron reports whether expr fires in the minute containing now.
func MatchesCron(expr string, now time.Time, mode CronMode) bool {
	if mode != CronModeStandard {
		return ShouldRunNow(expr, now)
	}
	sched, err := standardParser.Parse(expr)
	if err != nil {
		return false
	}
	minute := now.Truncate(time.Minute)
	return sched.Next(minute.Add(-time.Second)).Equal(minute)
}

// CronWarnings explains why expr may never fire under mode.
func CronWarnings(expr string, mode CronMode) []string {
	fields := strings.Fields(expr)
	if len(fields) != cronFieldCount {
		return []string{fmt.Sprintf("cron expression %q must have %d fields", expr, cronFieldCount)}
	}

	_, stdErr := standardParser.Parse(expr)
	if mode == CronModeStandard {
		if stdErr != nil {
			return []string{fmt.Sprintf("cron expression %q is invalid: %v", expr, stdErr)}
		}
		return nil
	}

	names := [cronFieldCount]string{"minute", "hour", "day", "month", "weekday"}
	var warnings []string
	for i, field := range fields {
		if field == "*" {
			continue
		}
		if _, err := strconv.Atoi(field); err != nil {
			msg := fmt.Sprintf("%s field %q is not '*' or an integer; the schedule will never fire in exact mode", names[i], field)
			if stdErr == nil {
				msg += " (valid in standard mode)"
			}
			warnings = append(warnings, msg)
		}
	}
	if weekday := fields[4]; weekday != "*" && stdErr == nil && len(warnings) == 0 {
		warnings = append(warnings, fmt.Sprintf("weekday %s counts from Monday = 0 in exact mode, Sunday = 0 in standard cron", weekday))
	}
	return warnings
}
