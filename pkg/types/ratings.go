package types

import (
	"database/sql/driver"
)

// Ratings is the aggregate review score of a product.
type Ratings struct {
	Average float64 `json:"average"`
	Count   int     `json:"count"`
}

func (r Ratings) Value() (driver.Value, error) {
	return jsonValue(r)
}

func (r *Ratings) Scan(value interface{}) error {
	if value == nil {
		*r = Ratings{}
		return nil
	}
	var out Ratings
	if err := scanJSON("ratings", value, &out); err != nil {
		return err
	}
	*r = out
	return nil
}

// ProductImage is a catalog image reference.
type ProductImage struct {
	URL string `json:"url" validate:"required,max=500"`
	Alt string `json:"alt,omitempty" validate:"omitempty,max=200"`
}

type ProductImages []ProductImage

func (p ProductImages) Value() (driver.Value, error) {
	if p == nil {
		return "[]", nil
	}
	return jsonValue([]ProductImage(p))
}

func (p *ProductImages) Scan(value interface{}) error {
	if value == nil {
		*p = ProductImages{}
		return nil
	}
	out := ProductImages{}
	if err := scanJSON("product images", value, &out); err != nil {
		return err
	}
	*p = out
	return nil
}

// First returns the first image url or an empty string.
func (p ProductImages) First() string {
	if len(p) == 0 {
		return ""
	}
	return p[0].URL
}

// Specifications is a free-form attribute map shown on the product page.
type Specifications map[string]string

func (s Specifications) Value() (driver.Value, error) {
	if s == nil {
		return "{}", nil
	}
	return jsonValue(map[string]string(s))
}

func (s *Specifications) Scan(value interface{}) error {
	if value == nil {
		*s = Specifications{}
		return nil
	}
	out := Specifications{}
	if err := scanJSON("specifications", value, &out); err != nil {
		return err
	}
	*s = out
	return nil
}
