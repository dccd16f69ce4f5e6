package main

type countOutcome int

const (
	countAccepted countOutcome = iota
	countNotANumber
	countTooHigh
	countTooLow
	countSameUser
)

func (o countOutcome) String() string {
	switch o {
	case countAccepted:
		return "accepted"
	case countNotANumber:
		return "not_a_number"
	case countTooHigh:
		return "too_high"
	case countTooLow:
		return "too_low"
	case countSameUser:
		return "same_user"
	}
	return "unknown"
}

// Milestone tiers drive which reaction the bot attaches to an accepted
// count.
const (
	milestoneNormal = "normal"
	milestone25     = "multiples25"
	milestone50     = "multiples50"
	milestone100    = "multiples100"
)

type countResult struct {
	Outcome   countOutcome
	Value     int64  // evaluated value when the text parsed
	Milestone string // set on acceptance
	Count     int64  // counter value after the decision was applied
}

// validateCount decides a candidate message against the current state
// and applies the state mutation for the accepted and not_a_number
// outcomes. Wrong-number and same-user mistakes leave the counter
// untouched here; their consequences are the escalation policy's call.
func validateCount(text, authorID string, st *CountingState) countResult {
	value, err := evaluateCountExpr(text)
	if err != nil {
		// The message could not even be read as an attempt; the counter
		// resets outright.
		st.resetCount()
		return countResult{Outcome: countNotANumber, Count: st.CurrentCount}
	}
	expected := st.CurrentCount + 1
	if value > expected {
		return countResult{Outcome: countTooHigh, Value: value, Count: st.CurrentCount}
	}
	if value < expected {
		return countResult{Outcome: countTooLow, Value: value, Count: st.CurrentCount}
	}
	if authorID != "" && authorID == st.LastUserID {
		return countResult{Outcome: countSameUser, Value: value, Count: st.CurrentCount}
	}

	st.CurrentCount = value
	if st.CurrentCount > st.HighestCount {
		st.HighestCount = st.CurrentCount
	}
	st.TotalCorrect++
	st.LastUserID = authorID
	return countResult{
		Outcome:   countAccepted,
		Value:     value,
		Milestone: milestoneFor(value),
		Count:     st.CurrentCount,
	}
}

func milestoneFor(value int64) string {
	if value <= 0 {
		return milestoneNormal
	}
	switch {
	case value%100 == 0:
		return milestone100
	case value%50 == 0:
		return milestone50
	case value%25 == 0:
		return milestone25
	}
	return milestoneNormal
}
