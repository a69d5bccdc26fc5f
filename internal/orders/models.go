package orders

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	MaxQuantity          = 10
	PaymentCOD           = "COD"
	PaymentOnline        = "Online"
	DefaultPaymentMethod = PaymentCOD

	MaxNameLen     = 100
	MaxPhoneLen    = 20
	MaxAddressLen  = 500
	MaxItemNameLen = 200
	MaxImageRefLen = 2048
)

// LineItem is the menu item as it looked when the order was placed.
type LineItem struct {
	Name       string `json:"name"`
	PricePaise int64  `json:"pricePaise"`
	ImageRef   string `json:"imageRef,omitempty"`
}

type Order struct {
	ID            string    `json:"id"`
	CustomerName  string    `json:"customerName"`
	Phone         string    `json:"phone"`
	Address       string    `json:"address"`
	PaymentMethod string    `json:"paymentMethod"`
	LineItem      LineItem  `json:"lineItem"`
	Quantity      int       `json:"quantity"`
	TotalPaise    int64     `json:"totalPaise"`
	Status        Status    `json:"status"`
	Version       int64     `json:"version"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// NewOrder is the checkout input. Total is never accepted from the caller.
type NewOrder struct {
	CustomerName  string   `json:"customerName"`
	Phone         string   `json:"phone"`
	Address       string   `json:"address"`
	PaymentMethod string   `json:"paymentMethod"`
	Item          LineItem `json:"item"`
	Quantity      int      `json:"quantity"`
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

// Normalize trims free-text fields and fills defaults.
func (n *NewOrder) Normalize() {
	n.CustomerName = strings.TrimSpace(n.CustomerName)
	n.Phone = strings.TrimSpace(n.Phone)
	n.Address = strings.TrimSpace(n.Address)
	n.PaymentMethod = strings.TrimSpace(n.PaymentMethod)
	if n.PaymentMethod == "" {
		n.PaymentMethod = DefaultPaymentMethod
	}
	n.Item.Name = strings.TrimSpace(n.Item.Name)
}

func (n NewOrder) Validate() error {
	switch {
	case n.CustomerName == "":
		return &ValidationError{Field: "customerName", Reason: "required"}
	case n.Phone == "":
		return &ValidationError{Field: "phone", Reason: "required"}
	case n.Address == "":
		return &ValidationError{Field: "address", Reason: "required"}
	case n.PaymentMethod != PaymentCOD && n.PaymentMethod != PaymentOnline:
		return &ValidationError{Field: "paymentMethod", Reason: "must be COD or Online"}
	case n.Item.Name == "":
		return &ValidationError{Field: "item.name", Reason: "required"}
	case n.Item.PricePaise < 0:
		return &ValidationError{Field: "item.pricePaise", Reason: "must not be negative"}
	case n.Quantity <= 0:
		return &ValidationError{Field: "quantity", Reason: "must be positive"}
	case n.Quantity > MaxQuantity:
		return &ValidationError{Field: "quantity", Reason: fmt.Sprintf("must be at most %d", MaxQuantity)}
	}
	return n.validateLengths()
}

func (n NewOrder) validateLengths() error {
	for _, f := range []struct {
		field, value string
		max          int
	}{
		{"customerName", n.CustomerName, MaxNameLen},
		{"phone", n.Phone, MaxPhoneLen},
		{"address", n.Address, MaxAddressLen},
		{"item.name", n.Item.Name, MaxItemNameLen},
		{"item.imageRef", n.Item.ImageRef, MaxImageRefLen},
	} {
		if utf8.RuneCountInString(f.value) > f.max {
			return &ValidationError{Field: f.field, Reason: fmt.Sprintf("must be at most %d characters", f.max)}
		}
	}
	return nil
}

// TotalPaise is computed once at creation and stored; it is never recomputed.
func (n NewOrder) TotalPaise() int64 {
	return n.Item.PricePaise * int64(n.Quantity)
}

// Rupees formats an amount in paise, leaving off the decimals when whole.
func Rupees(paise int64) string {
	if paise%100 == 0 {
		return strconv.FormatInt(paise/100, 10)
	}
	sign := ""
	if paise < 0 {
		sign, paise = "-", -paise
	}
	return fmt.Sprintf("%s%d.%02d", sign, paise/100, paise%100)
}
