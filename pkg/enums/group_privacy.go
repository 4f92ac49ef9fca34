package enums

import "fmt"

// GroupPrivacy controls whether a group is joinable without an invite.
type GroupPrivacy string

const (
	GroupPrivacyPublic  GroupPrivacy = "public"
	GroupPrivacyPrivate GroupPrivacy = "private"
)

var validGroupPrivacies = []GroupPrivacy{
	GroupPrivacyPublic,
	GroupPrivacyPrivate,
}

// String implements fmt.Stringer.
func (g GroupPrivacy) String() string {
	return string(g)
}

// IsValid reports whether the value matches a known GroupPrivacy.
func (g GroupPrivacy) IsValid() bool {
	for _, candidate := range validGroupPrivacies {
		if candidate == g {
			return true
		}
	}
	return false
}

// ParseGroupPrivacy converts raw input into a GroupPrivacy.
func ParseGroupPrivacy(value string) (GroupPrivacy, error) {
	for _, candidate := range validGroupPrivacies {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid group privacy %q", value)
}
