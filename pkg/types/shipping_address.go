package types

import (
	"database/sql/driver"
	"strings"
)

const defaultCountry = "US"

// ShippingAddress is the delivery destination captured at checkout.
type ShippingAddress struct {
	FirstName string `json:"firstName" validate:"required,max=100"`
	LastName  string `json:"lastName" validate:"required,max=100"`
	Email     string `json:"email" validate:"required,email"`
	Phone     string `json:"phone" validate:"required,max=30"`
	Address   string `json:"address" validate:"required,max=200"`
	City      string `json:"city" validate:"required,max=100"`
	State     string `json:"state" validate:"required,max=100"`
	ZipCode   string `json:"zipCode" validate:"required,max=20"`
	Country   string `json:"country,omitempty" validate:"omitempty,max=2"`
}

// Normalize trims every field and defaults the country.
func (a ShippingAddress) Normalize() ShippingAddress {
	out := ShippingAddress{
		FirstName: strings.TrimSpace(a.FirstName),
		LastName:  strings.TrimSpace(a.LastName),
		Email:     strings.ToLower(strings.TrimSpace(a.Email)),
		Phone:     strings.TrimSpace(a.Phone),
		Address:   strings.TrimSpace(a.Address),
		City:      strings.TrimSpace(a.City),
		State:     strings.TrimSpace(a.State),
		ZipCode:   strings.TrimSpace(a.ZipCode),
		Country:   strings.ToUpper(strings.TrimSpace(a.Country)),
	}
	if out.Country == "" {
		out.Country = defaultCountry
	}
	return out
}

// FullName joins first and last name.
func (a ShippingAddress) FullName() string {
	return strings.TrimSpace(a.FirstName + " " + a.LastName)
}

func (a ShippingAddress) Value() (driver.Value, error) {
	return jsonValue(a)
}

func (a *ShippingAddress) Scan(value interface{}) error {
	if value == nil {
		*a = ShippingAddress{}
		return nil
	}
	var out ShippingAddress
	if err := scanJSON("shipping address", value, &out); err != nil {
		return err
	}
	*a = out
	return nil
}
