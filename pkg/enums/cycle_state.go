package enums

import "fmt"

// CycleState tracks the current cycle of a group through its state machine:
// open (collecting) -> complete (all active members paid) -> drawn (payout
// recorded), after which AdvanceCycle reopens the next cycle.
type CycleState string

const (
	CycleStateOpen     CycleState = "open"
	CycleStateComplete CycleState = "complete"
	CycleStateDrawn    CycleState = "drawn"
)

var validCycleStates = []CycleState{
	CycleStateOpen,
	CycleStateComplete,
	CycleStateDrawn,
}

// String implements fmt.Stringer.
func (c CycleState) String() string {
	return string(c)
}

// IsValid reports whether the value matches a known CycleState.
func (c CycleState) IsValid() bool {
	for _, candidate := range validCycleStates {
		if candidate == c {
			return true
		}
	}
	return false
}

// ParseCycleState converts raw input into a CycleState.
func ParseCycleState(value string) (CycleState, error) {
	for _, candidate := range validCycleStates {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid cycle state %q", value)
}
