package models

import (
	"fmt"
	"time"
)

// DateLayout is the calendar date format used for booking dates. Dates carry no timezone.
const DateLayout = "2006-01-02"

type MenuItem struct {
	Name           string `json:"name" yaml:"name"`
	UnitPriceCents int64  `json:"unit_price_cents" yaml:"unit_price_cents"`
	Quantity       int    `json:"quantity" yaml:"quantity"`
}

func (m MenuItem) Validate() error {
	if m.Name == "" {
		return fmt.Errorf("%w: menu item name is required", ErrValidation)
	}
	if m.UnitPriceCents < 0 {
		return fmt.Errorf("%w: menu item %q has negative price", ErrValidation, m.Name)
	}
	if m.Quantity <= 0 {
		return fmt.Errorf("%w: menu item %q quantity must be positive", ErrValidation, m.Name)
	}
	return nil
}

func (m MenuItem) LineTotalCents() int64 {
	return m.UnitPriceCents * int64(m.Quantity)
}

// MenuTotalCents sums line totals of the pre-ordered items.
func MenuTotalCents(items []MenuItem) int64 {
	var total int64
	for _, it := range items {
		total += it.LineTotalCents()
	}
	return total
}

type Booking struct {
	ID                int64          `json:"id"`
	Reference         string         `json:"reference"`
	RestaurantID      int64          `json:"restaurant_id"`
	RestaurantName    string         `json:"restaurant_name,omitempty"`
	CustomerID        int64          `json:"customer_id"`
	BookingDate       string         `json:"booking_date"`
	TimeSlot          string         `json:"time_slot"`
	Pax               int            `json:"pax"`
	AssignedTableSize TableSizeClass `json:"assigned_table_size,omitempty"`
	MenuItems         []MenuItem     `json:"menu_items,omitempty"`
	Status            Status         `json:"status"`
	DepositCents      int64          `json:"deposit_cents"`
	TotalCostCents    int64          `json:"total_cost_cents"`
	PaymentMethod     string         `json:"payment_method,omitempty"`
	PaymentRef        string         `json:"payment_ref,omitempty"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
	Version           int64          `json:"version"`
}

// AmountDue is what the customer pays up front: the pre-order total when there is one,
// the flat deposit otherwise.
func (b Booking) AmountDue() int64 {
	if b.TotalCostCents > 0 {
		return b.TotalCostCents
	}
	return b.DepositCents
}

// Date parses BookingDate.
func (b Booking) Date() (time.Time, error) {
	return time.Parse(DateLayout, b.BookingDate)
}

// Clone returns a copy that shares no slices with b.
func (b Booking) Clone() Booking {
	out := b
	if b.MenuItems != nil {
		out.MenuItems = append([]MenuItem(nil), b.MenuItems...)
	}
	return out
}

// ParseDate validates a YYYY-MM-DD calendar date.
func ParseDate(s string) (time.Time, error) {
	d, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: invalid date %q, want YYYY-MM-DD", ErrValidation, s)
	}
	return d, nil
}

// SlotAvailability is the allocation preview for one slot of a date.
type SlotAvailability struct {
	Slot      string         `json:"slot"`
	Available bool           `json:"available"`
	Class     TableSizeClass `json:"class,omitempty"`
	Remaining int            `json:"remaining"`
	Reason    string         `json:"reason,omitempty"`
}
