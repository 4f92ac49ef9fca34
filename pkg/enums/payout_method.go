package enums

import "fmt"

// PayoutMethod records how a payout recipient was selected.
type PayoutMethod string

const (
	PayoutMethodLottery PayoutMethod = "lottery"
	PayoutMethodOrder   PayoutMethod = "order"
)

var validPayoutMethods = []PayoutMethod{
	PayoutMethodLottery,
	PayoutMethodOrder,
}

// String implements fmt.Stringer.
func (p PayoutMethod) String() string {
	return string(p)
}

// IsValid reports whether the value matches a known PayoutMethod.
func (p PayoutMethod) IsValid() bool {
	for _, candidate := range validPayoutMethods {
		if candidate == p {
			return true
		}
	}
	return false
}

// ParsePayoutMethod converts raw input into a PayoutMethod.
func ParsePayoutMethod(value string) (PayoutMethod, error) {
	for _, candidate := range validPayoutMethods {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid payout method %q", value)
}

// PayoutMethodForGroupType maps the group's selection mode to the method
// stamped on payout events.
func PayoutMethodForGroupType(groupType GroupType) PayoutMethod {
	if groupType == GroupTypeOrdered {
		return PayoutMethodOrder
	}
	return PayoutMethodLottery
}
