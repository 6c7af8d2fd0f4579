// Package maintenance implements the device-local maintenance window
// predicate gating when a caller's scheduler may invoke
// check_and_perform_ota. It sits entirely outside the Orchestrator's own
// recovery preflight so an interrupted install is always recovered
// regardless of window state.
package maintenance

import "time"

// Window configures a recurring allowed time-of-day range, optionally
// restricted to specific days of the week.
type Window struct {
	Enabled    bool
	StartHour  int // 0-23
	EndHour    int // 0-23, exclusive; EndHour < StartHour means an overnight window, EndHour == StartHour allows no hour
	DaysOfWeek []time.Weekday // empty means every day
	Timezone   string         // IANA zone name; "" means UTC
}

// Allows reports whether now falls inside the window. A disabled window
// always allows.
func (w Window) Allows(now time.Time) bool {
	if !w.Enabled {
		return true
	}

	loc := time.UTC
	if w.Timezone != "" {
		if tz, err := time.LoadLocation(w.Timezone); err == nil {
			loc = tz
		}
	}
	local := now.In(loc)

	if len(w.DaysOfWeek) > 0 {
		allowed := false
		for _, d := range w.DaysOfWeek {
			if d == local.Weekday() {
				allowed = true
				break
			}
		}
		if !allowed {
			return false
		}
	}

	hour := local.Hour()
	if w.StartHour <= w.EndHour {
		return hour >= w.StartHour && hour < w.EndHour
	}
	// Overnight window, e.g. 22 -> 6.
	return hour >= w.StartHour || hour < w.EndHour
}
