package domain

// Thresholds are the minimum effort an activity must show to be accepted.
// The zero value accepts everything.
type Thresholds struct {
	MinActiveMinutes uint32
	MinSteps         uint32
}

// Check classifies an activity. The minutes check runs first, so an activity failing both
// thresholds reports ErrTooLittleMinutes.
func (t Thresholds) Check(minutes, steps uint32) error {
	if minutes < t.MinActiveMinutes {
		return ErrTooLittleMinutes
	}
	if steps < t.MinSteps {
		return ErrTooLittleSteps
	}
	return nil
}

// Accepts reports whether the activity meets both thresholds.
func (t Thresholds) Accepts(minutes, steps uint32) bool {
	return t.Check(minutes, steps) == nil
}
