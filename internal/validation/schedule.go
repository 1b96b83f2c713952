package validation

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/rendis/canvasflow/pkg/schema"
)

// scheduleParser accepts standard 5-field cron expressions plus descriptors
// such as @hourly.
var scheduleParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ValidateSchedule checks the cron expression of a scheduled trigger.
func ValidateSchedule(expr string) error {
	if strings.TrimSpace(expr) == "" {
		return schema.NewError(schema.ErrCodeValidation, "Schedule expression is required")
	}
	if _, err := scheduleParser.Parse(expr); err != nil {
		return schema.NewErrorf(schema.ErrCodeValidation, "Schedule expression is invalid: %v", err).WithCause(err)
	}
	return nil
}

// NextRun computes the next activation of a cron expression after from.
func NextRun(expr string, from time.Time) (time.Time, error) {
	sched, err := scheduleParser.Parse(expr)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse cron expression %q: %w", expr, err)
	}
	return sched.Next(from), nil
}
