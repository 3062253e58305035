package models

import (
	"fmt"
	"time"
)

// DraftBooking is the per-user booking session the UI fills in before a booking is persisted.
// Abandoning a draft has no effect on availability.
type DraftBooking struct {
	UserID       int64      `json:"user_id"`
	RestaurantID int64      `json:"restaurant_id,omitempty"`
	Date         string     `json:"date,omitempty"`
	Slot         string     `json:"slot,omitempty"`
	Pax          int        `json:"pax,omitempty"`
	Cart         []MenuItem `json:"cart,omitempty"`
	PaymentRef   string     `json:"payment_ref,omitempty"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// CartTotalCents sums the pre-order cart.
func (d *DraftBooking) CartTotalCents() int64 {
	if d == nil {
		return 0
	}
	return MenuTotalCents(d.Cart)
}

// Validate checks the fields that are set. A partially filled draft is valid.
func (d *DraftBooking) Validate() error {
	if d.UserID == 0 {
		return fmt.Errorf("%w: draft without user", ErrValidation)
	}
	if d.Pax < 0 {
		return fmt.Errorf("%w: pax must be positive", ErrValidation)
	}
	if d.Date != "" {
		if _, err := ParseDate(d.Date); err != nil {
			return err
		}
	}
	for _, it := range d.Cart {
		if err := it.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Complete reports whether the draft carries everything needed to create a booking.
func (d *DraftBooking) Complete() bool {
	return d != nil && d.RestaurantID != 0 && d.Date != "" && d.Slot != "" && d.Pax > 0
}
