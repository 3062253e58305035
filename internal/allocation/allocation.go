// Package allocation decides whether a party can be seated in a slot and at which table size.
package allocation

import (
	"fmt"

	"github.com/afiqaffendi/rbs/internal/models"
)

// ReasonNoSuitableTable is the rejection reason reported to customers.
const ReasonNoSuitableTable = "NoSuitableTable"

// Result is the outcome of Allocate.
type Result struct {
	Accepted bool                  `json:"accepted"`
	Class    models.TableSizeClass `json:"assigned_class,omitempty"`
	// Remaining is the free count of Class before this booking takes a table.
	Remaining int    `json:"remaining"`
	Reason    string `json:"reason,omitempty"`
}

// Err converts a rejection into models.ErrNoSuitableTable. Accepted results yield nil.
func (r Result) Err() error {
	if r.Accepted {
		return nil
	}
	return fmt.Errorf("%w: %s", models.ErrNoSuitableTable, r.Reason)
}

func rejected() Result {
	return Result{Accepted: false, Reason: ReasonNoSuitableTable}
}

// Occupancy counts the tables each size class has committed for one restaurant, date and slot.
// Date and slot are compared as exact strings. Bookings without an assigned class or in a
// status that does not hold a table are skipped.
func Occupancy(restaurantID int64, date, slot string, bookings []models.Booking) models.Occupancy {
	occ := make(models.Occupancy, len(models.AllSizeClasses))
	for _, c := range models.AllSizeClasses {
		occ[c] = 0
	}
	for _, b := range bookings {
		if b.RestaurantID != restaurantID || b.BookingDate != date || b.TimeSlot != slot {
			continue
		}
		if !b.AssignedTableSize.Valid() || !b.Status.IsOccupying() {
			continue
		}
		occ[b.AssignedTableSize]++
	}
	return occ
}

// Allocate picks the smallest size class that seats the party and still has a free table.
// It is a greedy best fit: a party of 3 takes a 4-seat table even if a later party of 4 then
// finds none. Party sizes below 1 are a validation error; parties above the largest class
// and fully booked slots are rejected results, not errors.
func Allocate(partySize int, inventory models.TableInventory, occupancy models.Occupancy) (Result, error) {
	if partySize <= 0 {
		return Result{}, fmt.Errorf("%w: party size must be at least 1, got %d", models.ErrValidation, partySize)
	}
	if partySize > models.MaxTableCapacity {
		return rejected(), nil
	}

	for _, c := range models.AllSizeClasses {
		if c.Capacity() < partySize {
			continue
		}
		free := inventory.OwnedCount(c) - occupancy.Occupied(c)
		if free > 0 {
			return Result{Accepted: true, Class: c, Remaining: free}, nil
		}
	}
	return rejected(), nil
}

// Free returns the unoccupied table count per class, never below zero.
func Free(inventory models.TableInventory, occupancy models.Occupancy) map[models.TableSizeClass]int {
	out := make(map[models.TableSizeClass]int, len(models.AllSizeClasses))
	for _, c := range models.AllSizeClasses {
		out[c] = max(inventory.OwnedCount(c)-occupancy.Occupied(c), 0)
	}
	return out
}
