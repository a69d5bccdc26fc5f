package menu

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"
)

const DefaultCategory = "Uncategorized"

var ErrNotFound = errors.New("menu item not found")

const (
	MaxNameLen     = 200
	MaxCategoryLen = 100
	MaxImageRefLen = 2048
)

type Item struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	PricePaise int64     `json:"pricePaise"`
	Category   string    `json:"category"`
	ImageRef   string    `json:"imageRef,omitempty"`
	ImageURL   string    `json:"imageUrl,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Input is the admin form for create and update. ImageBase64, when set,
// is uploaded and replaces ImageRef.
type Input struct {
	Name        string `json:"name"`
	PricePaise  *int64 `json:"pricePaise"`
	Category    string `json:"category"`
	ImageRef    string `json:"imageRef,omitempty"`
	ImageBase64 string `json:"imageBase64,omitempty"`
}

type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

func (in *Input) Normalize() {
	in.Name = strings.TrimSpace(in.Name)
	in.Category = strings.TrimSpace(in.Category)
	if in.Category == "" {
		in.Category = DefaultCategory
	}
	in.ImageRef = strings.TrimSpace(in.ImageRef)
}

func (in Input) Validate() error {
	switch {
	case in.Name == "":
		return &ValidationError{Field: "name", Reason: "required"}
	case in.PricePaise == nil:
		return &ValidationError{Field: "pricePaise", Reason: "required"}
	case *in.PricePaise < 0:
		return &ValidationError{Field: "pricePaise", Reason: "must not be negative"}
	case utf8.RuneCountInString(in.Name) > MaxNameLen:
		return &ValidationError{Field: "name", Reason: fmt.Sprintf("must be at most %d characters", MaxNameLen)}
	case utf8.RuneCountInString(in.Category) > MaxCategoryLen:
		return &ValidationError{Field: "category", Reason: fmt.Sprintf("must be at most %d characters", MaxCategoryLen)}
	case len(in.ImageRef) > MaxImageRefLen:
		return &ValidationError{Field: "imageRef", Reason: fmt.Sprintf("must be at most %d bytes", MaxImageRefLen)}
	}
	return nil
}

type Category struct {
	Name  string `json:"name"`
	Items []Item `json:"items"`
}

// Group buckets items by category, categories sorted by name and items
// keeping their input order.
func Group(items []Item) []Category {
	idx := map[string]int{}
	var out []Category
	for _, it := range items {
		c := it.Category
		if c == "" {
			c = DefaultCategory
		}
		i, ok := idx[c]
		if !ok {
			i = len(out)
			idx[c] = i
			out = append(out, Category{Name: c})
		}
		out[i].Items = append(out[i].Items, it)
	}
	sort.SliceStable(out, func(a, b int) bool { return out[a].Name < out[b].Name })
	return out
}
