package enums

import "fmt"

// EntityState marks whether a record is live or soft deleted.
type EntityState string

const (
	EntityStateActive   EntityState = "active"
	EntityStateInactive EntityState = "inactive"
)

var validEntityStates = []EntityState{
	EntityStateActive,
	EntityStateInactive,
}

// String implements fmt.Stringer.
func (e EntityState) String() string {
	return string(e)
}

// IsValid reports whether the value is a known EntityState.
func (e EntityState) IsValid() bool {
	for _, candidate := range validEntityStates {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseEntityState converts raw input into an EntityState.
func ParseEntityState(value string) (EntityState, error) {
	for _, candidate := range validEntityStates {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid entity state %q", value)
}
