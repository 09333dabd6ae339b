package types

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"

	"github.com/giftmarket/giftmarket-backend/pkg/enums"
)

// Fulfillment is the delivery payload attached to a completed product order.
// Exactly one variant is set, and it must match the order category.
type Fulfillment struct {
	Category enums.OrderCategory `json:"category"`

	ESIM    *ESIMFulfillment    `json:"esim,omitempty"`
	VPN     *VPNFulfillment     `json:"vpn,omitempty"`
	Proxy   *ProxyFulfillment   `json:"proxy,omitempty"`
	RDP     *RDPFulfillment     `json:"rdp,omitempty"`
	Gift    *GiftFulfillment    `json:"gift,omitempty"`
	Generic *GenericFulfillment `json:"generic,omitempty"`
}

type ESIMFulfillment struct {
	ActivationCode string  `json:"activation_code" validate:"required"`
	SMDPAddress    string  `json:"smdp_address" validate:"required"`
	QRCodeURL      *string `json:"qr_code_url,omitempty"`
}

type VPNFulfillment struct {
	Username  string  `json:"username" validate:"required"`
	Password  string  `json:"password" validate:"required"`
	Server    string  `json:"server" validate:"required"`
	ConfigURL *string `json:"config_url,omitempty"`
}

type ProxyFulfillment struct {
	Host     string `json:"host" validate:"required"`
	Port     int    `json:"port" validate:"required,min=1,max=65535"`
	Username string `json:"username"`
	Password string `json:"password"`
	Protocol string `json:"protocol" validate:"required,oneof=http https socks5"`
}

type RDPFulfillment struct {
	Host     string `json:"host" validate:"required"`
	Port     int    `json:"port" validate:"required,min=1,max=65535"`
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type GiftFulfillment struct {
	RedemptionCode string  `json:"redemption_code" validate:"required"`
	Instructions   *string `json:"instructions,omitempty"`
}

type GenericFulfillment struct {
	Note  string   `json:"note"`
	Codes []string `json:"codes,omitempty"`
}

// Validate enforces that exactly one variant is set and matches the category.
func (f Fulfillment) Validate() error {
	if !f.Category.IsValid() {
		return fmt.Errorf("fulfillment: invalid category %q", f.Category)
	}

	set := 0
	var match bool
	if f.ESIM != nil {
		set++
		match = f.Category == enums.OrderCategoryESIM
	}
	if f.VPN != nil {
		set++
		match = f.Category == enums.OrderCategoryVPN
	}
	if f.Proxy != nil {
		set++
		match = f.Category == enums.OrderCategoryProxy
	}
	if f.RDP != nil {
		set++
		match = f.Category == enums.OrderCategoryRDP
	}
	if f.Gift != nil {
		set++
		match = f.Category == enums.OrderCategoryGift
	}
	if f.Generic != nil {
		set++
		match = f.Category == enums.OrderCategoryGeneric
	}

	if set != 1 {
		return fmt.Errorf("fulfillment: expected exactly one payload variant, got %d", set)
	}
	if !match {
		return fmt.Errorf("fulfillment: payload variant does not match category %q", f.Category)
	}
	return nil
}

// Value marshals Fulfillment into jsonb.
func (f Fulfillment) Value() (driver.Value, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	raw, err := json.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("fulfillment: marshal %w", err)
	}
	return string(raw), nil
}

// Scan decodes the jsonb column.
func (f *Fulfillment) Scan(value interface{}) error {
	if value == nil {
		*f = Fulfillment{}
		return nil
	}

	var raw []byte
	switch v := value.(type) {
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		return fmt.Errorf("fulfillment: unsupported scan type %T", value)
	}

	return json.Unmarshal(raw, f)
}
