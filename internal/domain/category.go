package domain

import "fmt"

// Category selects which content pipeline a run operates on. Each category
// owns its own persisted schedule/feed documents and merge behavior.
type Category string

const (
	CategoryDub    Category = "dub"
	CategorySub    Category = "sub"
	CategoryHentai Category = "hentai"
)

// ParseCategory maps a CLI/category argument to a Category.
func ParseCategory(s string) (Category, error) {
	switch Category(s) {
	case CategoryDub, CategorySub, CategoryHentai:
		return Category(s), nil
	}
	return "", fmt.Errorf("unknown category %q", s)
}

func (c Category) String() string { return string(c) }

// Tag is the prefix used on change-log lines, e.g. "(Dub)".
func (c Category) Tag() string {
	switch c {
	case CategoryDub:
		return "(Dub)"
	case CategorySub:
		return "(Sub)"
	case CategoryHentai:
		return "(Hentai)"
	}
	return "(?)"
}
