package watcher

import (
	"time"

	"github.com/robfig/cron/v3"
)

// cronParser uses standard 5-field cron expressions (minute, hour, dom, month, dow).
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// nextCronTime parses a 5-field cron expression and returns the next fire
// time after now. Returns the zero time on parse error or empty expression.
func nextCronTime(expr string, now time.Time) time.Time {
	if expr == "" {
		return time.Time{}
	}
	sched, err := cronParser.Parse(expr)
	if err != nil {
		return time.Time{}
	}
	return sched.Next(now)
}
