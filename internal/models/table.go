package models

import (
	"fmt"
	"strconv"
	"strings"
)

// TableSizeClass is the seat count of a table. The set is closed: 2, 4, 6, 8 and 10.
// The zero value means "not assigned".
type TableSizeClass int

const (
	Table2pax  TableSizeClass = 2
	Table4pax  TableSizeClass = 4
	Table6pax  TableSizeClass = 6
	Table8pax  TableSizeClass = 8
	Table10pax TableSizeClass = 10
)

// AllSizeClasses is the fixed ascending order the allocation policy walks.
var AllSizeClasses = []TableSizeClass{Table2pax, Table4pax, Table6pax, Table8pax, Table10pax}

// MaxTableCapacity is the seat count of the largest class.
const MaxTableCapacity = int(Table10pax)

func (c TableSizeClass) Valid() bool {
	switch c {
	case Table2pax, Table4pax, Table6pax, Table8pax, Table10pax:
		return true
	default:
		return false
	}
}

func (c TableSizeClass) Capacity() int {
	return int(c)
}

// String returns the storage label, e.g. "4pax". Unassigned or unknown classes yield "".
func (c TableSizeClass) String() string {
	if !c.Valid() {
		return ""
	}
	return strconv.Itoa(int(c)) + "pax"
}

// ParseSizeClass accepts "4pax", "4 pax" or "4".
func ParseSizeClass(label string) (TableSizeClass, error) {
	s := strings.ToLower(strings.TrimSpace(label))
	s = strings.TrimSpace(strings.TrimSuffix(s, "pax"))
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%w: unknown table size %q", ErrValidation, label)
	}
	c := TableSizeClass(n)
	if !c.Valid() {
		return 0, fmt.Errorf("%w: unknown table size %q", ErrValidation, label)
	}
	return c, nil
}

func (c TableSizeClass) MarshalText() ([]byte, error) {
	if !c.Valid() {
		return nil, fmt.Errorf("invalid table size class %d", int(c))
	}
	return []byte(c.String()), nil
}

func (c *TableSizeClass) UnmarshalText(text []byte) error {
	parsed, err := ParseSizeClass(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// TableInventory maps each size class to the number of tables of that size a restaurant owns.
type TableInventory map[TableSizeClass]int

// EmptyInventory returns an inventory with every class present and set to zero.
func EmptyInventory() TableInventory {
	inv := make(TableInventory, len(AllSizeClasses))
	for _, c := range AllSizeClasses {
		inv[c] = 0
	}
	return inv
}

// NewTableInventory builds an inventory from label keyed counts ("2pax": 3).
// Missing classes default to zero.
func NewTableInventory(counts map[string]int) (TableInventory, error) {
	inv := EmptyInventory()
	for label, n := range counts {
		c, err := ParseSizeClass(label)
		if err != nil {
			return nil, err
		}
		if err := inv.Set(c, n); err != nil {
			return nil, err
		}
	}
	return inv, nil
}

// OwnedCount returns how many tables of the class are owned, 0 when unset.
func (inv TableInventory) OwnedCount(c TableSizeClass) int {
	if inv == nil {
		return 0
	}
	return inv[c]
}

// Set changes the owned count of one class. Negative counts are rejected.
func (inv TableInventory) Set(c TableSizeClass, n int) error {
	if !c.Valid() {
		return fmt.Errorf("%w: unknown table size class %d", ErrValidation, int(c))
	}
	if n < 0 {
		return fmt.Errorf("%w: table count for %s must be >= 0, got %d", ErrValidation, c, n)
	}
	inv[c] = n
	return nil
}

// Validate checks that all five classes are present with non-negative counts.
func (inv TableInventory) Validate() error {
	for c, n := range inv {
		if !c.Valid() {
			return fmt.Errorf("%w: unknown table size class %d", ErrValidation, int(c))
		}
		if n < 0 {
			return fmt.Errorf("%w: table count for %s must be >= 0, got %d", ErrValidation, c, n)
		}
	}
	for _, c := range AllSizeClasses {
		if _, ok := inv[c]; !ok {
			return fmt.Errorf("%w: table size %s missing from inventory", ErrValidation, c)
		}
	}
	return nil
}

func (inv TableInventory) Clone() TableInventory {
	out := make(TableInventory, len(inv))
	for c, n := range inv {
		out[c] = n
	}
	return out
}

// TotalTables sums owned tables across classes.
func (inv TableInventory) TotalTables() int {
	total := 0
	for _, n := range inv {
		total += n
	}
	return total
}

// Occupancy maps each size class to the number of tables committed for one date and slot.
type Occupancy map[TableSizeClass]int

func (o Occupancy) Occupied(c TableSizeClass) int {
	if o == nil {
		return 0
	}
	return o[c]
}
