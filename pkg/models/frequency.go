package models

import (
	"fmt"

	"github.com/robfig/cron/v3"
)

// Frequency is the cadence on which a strategy generates predictions.
type Frequency string

const (
	FrequencyDaily       Frequency = "DAILY"
	FrequencyTwiceWeekly Frequency = "TWICE_WEEKLY"
	FrequencyWeekly      Frequency = "WEEKLY"
	FrequencyBiweekly    Frequency = "BIWEEKLY"
	FrequencyMonthly     Frequency = "MONTHLY"
)

// Runs happen at 09:00 UTC so that predictions land before US market open.
var frequencyCrons = map[Frequency]string{
	FrequencyDaily:       "0 9 * * *",
	FrequencyTwiceWeekly: "0 9 * * 1,4",
	FrequencyWeekly:      "0 9 * * 1",
	FrequencyBiweekly:    "0 9 1,15 * *",
	FrequencyMonthly:     "0 9 1 * *",
}

var cronParser = cron.NewParser(
	cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow,
)

// Valid reports whether f is a known cadence.
func (f Frequency) Valid() bool {
	_, ok := frequencyCrons[f]

	return ok
}

// CronExpression returns the standard 5-field cron expression that drives
// the remote schedule (and the local scheduler) for this cadence.
func (f Frequency) CronExpression() (string, error) {
	expr, ok := frequencyCrons[f]
	if !ok {
		return "", fmt.Errorf("unknown frequency %q", string(f))
	}

	if _, err := cronParser.Parse(expr); err != nil {
		return "", fmt.Errorf("invalid cron expression %q for frequency %q: %w", expr, string(f), err)
	}

	return expr, nil
}
