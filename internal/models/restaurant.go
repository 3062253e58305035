package models

import (
	"fmt"
	"strings"
	"time"
)

type Restaurant struct {
	ID             int64  `json:"id" yaml:"id"`
	OwnerID        int64  `json:"owner_id" yaml:"owner_id"`
	Name           string `json:"name" yaml:"name"`
	Address        string `json:"address" yaml:"address"`
	OperatingHours string `json:"operating_hours" yaml:"operating_hours"`
	// Capacity is the legacy flat seat count. It is shown to customers and never used for availability.
	Capacity  int            `json:"capacity" yaml:"capacity"`
	Inventory TableInventory `json:"table_inventory" yaml:"-"`
	// Menu is the priced catalog customers pre-order from. Quantity is unused here.
	Menu      []MenuItem `json:"menu" yaml:"menu"`
	CreatedAt time.Time  `json:"created_at" yaml:"-"`
	UpdatedAt time.Time  `json:"updated_at" yaml:"-"`
}

// IsOwnedBy reports whether the user operates this restaurant.
func (r *Restaurant) IsOwnedBy(userID int64) bool {
	return r != nil && r.OwnerID != 0 && r.OwnerID == userID
}

// ValidateMenu checks a catalog: every item is named, priced non-negative and listed once.
func ValidateMenu(menu []MenuItem) error {
	seen := make(map[string]struct{}, len(menu))
	for _, it := range menu {
		key := menuKey(it.Name)
		if key == "" {
			return fmt.Errorf("%w: menu item name is required", ErrValidation)
		}
		if it.UnitPriceCents < 0 {
			return fmt.Errorf("%w: menu item %q has negative price", ErrValidation, it.Name)
		}
		if _, dup := seen[key]; dup {
			return fmt.Errorf("%w: menu item %q is listed twice", ErrValidation, it.Name)
		}
		seen[key] = struct{}{}
	}
	return nil
}

// PriceOrder replaces the requested items' names and prices with the catalog entries.
// Items are matched by name ignoring case and surrounding spaces; an item missing from the
// menu is a validation error.
func (r *Restaurant) PriceOrder(items []MenuItem) ([]MenuItem, error) {
	if len(items) == 0 {
		return nil, nil
	}
	catalog := make(map[string]MenuItem, len(r.Menu))
	for _, it := range r.Menu {
		catalog[menuKey(it.Name)] = it
	}
	priced := make([]MenuItem, 0, len(items))
	for _, it := range items {
		if it.Quantity <= 0 {
			return nil, fmt.Errorf("%w: menu item %q quantity must be positive", ErrValidation, it.Name)
		}
		entry, ok := catalog[menuKey(it.Name)]
		if !ok {
			return nil, fmt.Errorf("%w: %q is not on the menu of %s", ErrValidation, it.Name, r.Name)
		}
		priced = append(priced, MenuItem{Name: entry.Name, UnitPriceCents: entry.UnitPriceCents, Quantity: it.Quantity})
	}
	return priced, nil
}

func menuKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
