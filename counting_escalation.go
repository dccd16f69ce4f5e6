package main

import "time"

// escalator applies the mistakes → warnings → ban progression. The
// rolling window measures silence since the participant's last mistake,
// not wall-clock buckets: a participant who stays clean for the whole
// window starts over from zero.
type escalator struct {
	window           time.Duration
	mistakeThreshold int
	maxWarnings      int
}

type escalationResult struct {
	Warning  bool
	Ban      bool
	Warnings int
}

func newEscalator(cfg Config) *escalator {
	return &escalator{
		window:           cfg.MistakeWindow,
		mistakeThreshold: cfg.MistakeThreshold,
		maxWarnings:      cfg.MaxWarnings,
	}
}

// recordMistake books one mistake for the participant and reports
// whether it crossed the warning or ban threshold. Must be invoked at
// most once per offending message; the caller persists the state.
func (e *escalator) recordMistake(st *CountingState, userID string, now time.Time) escalationResult {
	info := st.MistakeTracker[userID]
	if info == nil {
		info = &mistakeInfo{}
		st.MistakeTracker[userID] = info
	}
	if e.window > 0 && !info.LastUpdated.IsZero() && now.Sub(info.LastUpdated) > e.window {
		info.Mistakes = 0
		info.Warnings = 0
	}
	info.LastUpdated = now
	info.Mistakes++

	res := escalationResult{Warnings: info.Warnings}
	if info.Mistakes < e.mistakeThreshold {
		return res
	}
	info.Mistakes = 0
	info.Warnings++
	res.Warning = true
	res.Warnings = info.Warnings
	if info.Warnings >= e.maxWarnings {
		// Ban supersedes further accumulation; the slate is wiped so a
		// later unban starts the participant fresh.
		info.Mistakes = 0
		info.Warnings = 0
		res.Ban = true
	}
	return res
}
