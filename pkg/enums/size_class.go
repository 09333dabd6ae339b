package enums

import "fmt"

// SizeClass buckets a parcel for shipping fee calculation.
type SizeClass string

const (
	SizeClassSmall  SizeClass = "small"
	SizeClassMedium SizeClass = "medium"
	SizeClassLarge  SizeClass = "large"
)

var validSizeClasses = []SizeClass{
	SizeClassSmall,
	SizeClassMedium,
	SizeClassLarge,
}

// String implements fmt.Stringer.
func (s SizeClass) String() string {
	return string(s)
}

// IsValid reports whether the value is a known SizeClass.
func (s SizeClass) IsValid() bool {
	for _, candidate := range validSizeClasses {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseSizeClass converts raw input into a SizeClass.
func ParseSizeClass(value string) (SizeClass, error) {
	for _, candidate := range validSizeClasses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid size class %q", value)
}
