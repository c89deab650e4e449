package alert

import "time"

// BacktestResult is the output of Run: counts and the full would-be-alert
// list, for A/B comparison of rule versions.
type BacktestResult struct {
	WindowStart      time.Time
	WindowEnd        time.Time
	CountsBySeverity map[string]int
	CountsByRule     map[string]int
	TotalFired       int
	TotalSuppressed  int
	SuppressionRate  float64
	WouldBeAlerts    []Fired
}

// Run replays candidates within [windowStart, windowEnd) against rules
// without dispatching anything - a fresh Engine is used internally so a
// backtest never shares suppression state with a live engine. Candidates
// outside the window are skipped; callers are expected to have already
// filtered, but Run re-checks so a backtest window is authoritative over
// whatever was passed in.
func Run(candidates []Candidate, windowStart, windowEnd time.Time, rules []*Rule) BacktestResult {
	engine := NewEngine(rules)

	result := BacktestResult{
		WindowStart:      windowStart,
		WindowEnd:        windowEnd,
		CountsBySeverity: make(map[string]int),
		CountsByRule:     make(map[string]int),
	}

	for _, c := range candidates {
		if c.Timestamp.Before(windowStart) || !c.Timestamp.Before(windowEnd) {
			continue
		}
		for _, f := range engine.Evaluate(c) {
			result.WouldBeAlerts = append(result.WouldBeAlerts, f)
			result.TotalFired++
			result.CountsBySeverity[f.Severity]++
			result.CountsByRule[f.RuleID]++
			if f.Status == StatusSuppressed {
				result.TotalSuppressed++
			}
		}
	}

	if result.TotalFired > 0 {
		result.SuppressionRate = float64(result.TotalSuppressed) / float64(result.TotalFired)
	}

	return result
}
