package enums

import "fmt"

// OrderCategory selects the fulfillment payload variant for a product order.
type OrderCategory string

const (
	OrderCategoryESIM    OrderCategory = "esim"
	OrderCategoryVPN     OrderCategory = "vpn"
	OrderCategoryProxy   OrderCategory = "proxy"
	OrderCategoryRDP     OrderCategory = "rdp"
	OrderCategoryGift    OrderCategory = "gift"
	OrderCategoryGeneric OrderCategory = "generic"
)

var validOrderCategories = []OrderCategory{
	OrderCategoryESIM,
	OrderCategoryVPN,
	OrderCategoryProxy,
	OrderCategoryRDP,
	OrderCategoryGift,
	OrderCategoryGeneric,
}

// String implements fmt.Stringer.
func (o OrderCategory) String() string {
	return string(o)
}

// IsValid reports whether the value is a known OrderCategory.
func (o OrderCategory) IsValid() bool {
	for _, candidate := range validOrderCategories {
		if candidate == o {
			return true
		}
	}
	return false
}

// ParseOrderCategory converts raw input into an OrderCategory.
func ParseOrderCategory(value string) (OrderCategory, error) {
	for _, candidate := range validOrderCategories {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid order category %q", value)
}
