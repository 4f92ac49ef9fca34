package enums

import "fmt"

// GroupType determines how a group's payout recipient is selected each cycle.
type GroupType string

const (
	GroupTypeLottery GroupType = "lottery"
	GroupTypeOrdered GroupType = "ordered"
)

var validGroupTypes = []GroupType{
	GroupTypeLottery,
	GroupTypeOrdered,
}

// String implements fmt.Stringer.
func (g GroupType) String() string {
	return string(g)
}

// IsValid reports whether the value matches a known GroupType.
func (g GroupType) IsValid() bool {
	for _, candidate := range validGroupTypes {
		if candidate == g {
			return true
		}
	}
	return false
}

// ParseGroupType converts raw input into a GroupType.
func ParseGroupType(value string) (GroupType, error) {
	for _, candidate := range validGroupTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid group type %q", value)
}
