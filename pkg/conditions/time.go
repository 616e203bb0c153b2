package conditions

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/dukex/ruleflow/pkg/models"
	"github.com/dukex/ruleflow/pkg/protocol"
)

const clockLayout = "15:04"

var weekdays = map[string]time.Weekday{
	"sunday": time.Sunday, "sun": time.Sunday,
	"monday": time.Monday, "mon": time.Monday,
	"tuesday": time.Tuesday, "tue": time.Tuesday,
	"wednesday": time.Wednesday, "wed": time.Wednesday,
	"thursday": time.Thursday, "thu": time.Thursday,
	"friday": time.Friday, "fri": time.Friday,
	"saturday": time.Saturday, "sat": time.Saturday,
}

var defaultBusinessDays = []time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday}

// TimeEvaluator evaluates calendar conditions against the injected current time.
//
// Patterns:
//   - day_of_week: params.days is a list of weekday names or numbers (0 = Sunday)
//   - time_range: params.start and params.end as HH:MM; end before start wraps midnight
//   - business_hours: optional start, end and days, defaulting to Mon-Fri 09:00-17:00
//
// Every pattern accepts params.timezone as an IANA zone name.
type TimeEvaluator struct{}

func (TimeEvaluator) Evaluate(_ context.Context, input protocol.ConditionInput) (bool, error) {
	cond := input.Condition

	now, err := inZone(input.Now, cond.Params)
	if err != nil {
		return false, err
	}

	switch cond.Pattern {
	case models.TimePatternDayOfWeek:
		days, err := parseDays(cond.Params["days"])
		if err != nil {
			return false, err
		}

		if len(days) == 0 {
			return false, fmt.Errorf("%w: day_of_week requires days", models.ErrConditionEvaluation)
		}

		return slices.Contains(days, now.Weekday()), nil
	case models.TimePatternTimeRange:
		start, end, err := parseRange(cond.Params, "", "")
		if err != nil {
			return false, err
		}

		return inRange(now, start, end), nil
	case models.TimePatternBusinessHours:
		start, end, err := parseRange(cond.Params, "09:00", "17:00")
		if err != nil {
			return false, err
		}

		days := defaultBusinessDays

		if raw, ok := cond.Params["days"]; ok {
			if days, err = parseDays(raw); err != nil {
				return false, err
			}
		}

		return slices.Contains(days, now.Weekday()) && inRange(now, start, end), nil
	default:
		return false, fmt.Errorf("%w: unknown time pattern %q", models.ErrConditionEvaluation, cond.Pattern)
	}
}

func inZone(now time.Time, params map[string]any) (time.Time, error) {
	name, _ := params["timezone"].(string)
	if name == "" {
		return now, nil
	}

	loc, err := time.LoadLocation(name)
	if err != nil {
		return now, fmt.Errorf("%w: invalid timezone %q: %w", models.ErrConditionEvaluation, name, err)
	}

	return now.In(loc), nil
}

// parseRange returns start and end as minutes since midnight.
func parseRange(params map[string]any, defaultStart, defaultEnd string) (int, int, error) {
	start, err := parseClock(params["start"], defaultStart)
	if err != nil {
		return 0, 0, err
	}

	end, err := parseClock(params["end"], defaultEnd)
	if err != nil {
		return 0, 0, err
	}

	return start, end, nil
}

func parseClock(raw any, fallback string) (int, error) {
	value, _ := raw.(string)
	if value == "" {
		value = fallback
	}

	if value == "" {
		return 0, fmt.Errorf("%w: time range requires start and end", models.ErrConditionEvaluation)
	}

	t, err := time.Parse(clockLayout, value)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid clock time %q", models.ErrConditionEvaluation, value)
	}

	return t.Hour()*60 + t.Minute(), nil
}

func inRange(now time.Time, start, end int) bool {
	minute := now.Hour()*60 + now.Minute()

	if start <= end {
		return minute >= start && minute < end
	}

	return minute >= start || minute < end
}

func parseDays(raw any) ([]time.Weekday, error) {
	if raw == nil {
		return nil, nil
	}

	items, ok := asList(raw)
	if !ok {
		return nil, fmt.Errorf("%w: days must be a list", models.ErrConditionEvaluation)
	}

	days := make([]time.Weekday, 0, len(items))

	for _, item := range items {
		if n, ok := toFloat(item); ok {
			if n < 0 || n > 6 {
				return nil, fmt.Errorf("%w: invalid weekday %v", models.ErrConditionEvaluation, item)
			}

			days = append(days, time.Weekday(int(n)))

			continue
		}

		day, ok := weekdays[strings.ToLower(stringify(item))]
		if !ok {
			return nil, fmt.Errorf("%w: invalid weekday %v", models.ErrConditionEvaluation, item)
		}

		days = append(days, day)
	}

	return days, nil
}
