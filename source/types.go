package source

import "slices"

// Drop is an entry of the latest season's drop list.
type Drop struct {
	URL  string `json:"url"`
	Name string `json:"name"`
	Slug string `json:"slug"`
}

// DropProduct is a product announced for a drop.
type DropProduct struct {
	ImageURL string   `json:"imageUrl"`
	Name     string   `json:"name"`
	Price    string   `json:"price"`
	Keywords []string `json:"keywords"`
	Category string   `json:"category"`
}

// Clone returns a copy of p that shares no memory with it.
func (p DropProduct) Clone() DropProduct {
	p.Keywords = slices.Clone(p.Keywords)
	return p
}

// Category is a shop category.
type Category struct {
	Label string `json:"label"`
	Name  string `json:"name"`
}

// Product is an item of a shop category.
type Product struct {
	URL      string `json:"url"`
	Name     string `json:"name"`
	Color    string `json:"color"`
	SoldOut  bool   `json:"soldOut"`
	Category string `json:"category"`
	ImageURL string `json:"imageUrl"`
}

// UnknownPrice is the price of a drop product whose card shows none.
const UnknownPrice = "unknown"
