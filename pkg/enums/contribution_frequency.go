package enums

import (
	"fmt"
	"time"
)

// ContributionFrequency is the interval between contribution cycles.
type ContributionFrequency string

const (
	FrequencyWeekly   ContributionFrequency = "weekly"
	FrequencyBiweekly ContributionFrequency = "biweekly"
	FrequencyMonthly  ContributionFrequency = "monthly"
)

var validContributionFrequencies = []ContributionFrequency{
	FrequencyWeekly,
	FrequencyBiweekly,
	FrequencyMonthly,
}

// String implements fmt.Stringer.
func (f ContributionFrequency) String() string {
	return string(f)
}

// IsValid reports whether the value matches a known ContributionFrequency.
func (f ContributionFrequency) IsValid() bool {
	for _, candidate := range validContributionFrequencies {
		if candidate == f {
			return true
		}
	}
	return false
}

// Next returns the payout date one frequency interval after the given time.
// Monthly uses calendar months so the 31st clamps per time.AddDate semantics.
func (f ContributionFrequency) Next(from time.Time) time.Time {
	switch f {
	case FrequencyWeekly:
		return from.AddDate(0, 0, 7)
	case FrequencyBiweekly:
		return from.AddDate(0, 0, 14)
	case FrequencyMonthly:
		return from.AddDate(0, 1, 0)
	}
	return from
}

// ParseContributionFrequency converts raw input into a ContributionFrequency.
func ParseContributionFrequency(value string) (ContributionFrequency, error) {
	for _, candidate := range validContributionFrequencies {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid contribution frequency %q", value)
}
