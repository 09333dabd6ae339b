package types

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
)

// Address is a recipient address snapshot stored as jsonb on gift orders.
type Address struct {
	Line1      string  `json:"line1" validate:"required"`
	Line2      *string `json:"line2,omitempty"`
	City       string  `json:"city" validate:"required"`
	State      string  `json:"state,omitempty"`
	PostalCode string  `json:"postal_code" validate:"required"`
	Country    string  `json:"country" validate:"required,iso3166_1_alpha2"`
	Phone      *string `json:"phone,omitempty"`
}

// Validate checks the minimal required fields.
func (a Address) Validate() error {
	if strings.TrimSpace(a.Line1) == "" {
		return fmt.Errorf("address: missing line1")
	}
	if strings.TrimSpace(a.City) == "" {
		return fmt.Errorf("address: missing city")
	}
	if strings.TrimSpace(a.PostalCode) == "" {
		return fmt.Errorf("address: missing postal_code")
	}
	if strings.TrimSpace(a.Country) == "" {
		return fmt.Errorf("address: missing country")
	}
	return nil
}

// Value marshals Address into jsonb.
func (a Address) Value() (driver.Value, error) {
	if err := a.Validate(); err != nil {
		return nil, err
	}
	raw, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("address: marshal %w", err)
	}
	return string(raw), nil
}

// Scan decodes the jsonb column.
func (a *Address) Scan(value interface{}) error {
	if value == nil {
		*a = Address{}
		return nil
	}

	var raw []byte
	switch v := value.(type) {
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		return fmt.Errorf("address: unsupported scan type %T", value)
	}

	return json.Unmarshal(raw, a)
}
