package learner

import (
	"fmt"
	"math"
)

// BetaSchedule anneals the importance-sampling exponent linearly from Start
// to End over Steps training steps, then holds End. Steps <= 0 keeps beta
// fixed at Start.
type BetaSchedule struct {
	Start float64
	End   float64
	Steps int
}

// At returns beta after step completed training steps
func (s BetaSchedule) At(step int) float64 {
	if s.Steps <= 0 || step <= 0 {
		return s.Start
	}
	frac := math.Min(float64(step)/float64(s.Steps), 1)
	return s.Start + (s.End-s.Start)*frac
}

// Validate checks if the schedule is valid
func (s BetaSchedule) Validate() error {
	if s.Start < 0 || s.End < 0 || math.IsNaN(s.Start) || math.IsNaN(s.End) {
		return fmt.Errorf("beta schedule must be non-negative, got %v -> %v", s.Start, s.End)
	}
	return nil
}
