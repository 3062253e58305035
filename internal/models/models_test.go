package models

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTableSizeClass(t *testing.T) {
	t.Run("Labels", func(t *testing.T) {
		assert.Equal(t, "2pax", Table2pax.String())
		assert.Equal(t, "10pax", Table10pax.String())
		assert.Equal(t, "", TableSizeClass(3).String())
		assert.Equal(t, "", TableSizeClass(0).String())
	})

	t.Run("Parse", func(t *testing.T) {
		for _, in := range []string{"4pax", "4", " 4 PAX ", "4 pax"} {
			c, err := ParseSizeClass(in)
			require.NoError(t, err, in)
			assert.Equal(t, Table4pax, c)
		}
		for _, in := range []string{"", "3pax", "12", "pax", "four"} {
			_, err := ParseSizeClass(in)
			assert.True(t, errors.Is(err, ErrValidation), in)
		}
	})

	t.Run("AscendingOrder", func(t *testing.T) {
		for i := 1; i < len(AllSizeClasses); i++ {
			assert.Less(t, AllSizeClasses[i-1].Capacity(), AllSizeClasses[i].Capacity())
		}
		assert.Equal(t, MaxTableCapacity, AllSizeClasses[len(AllSizeClasses)-1].Capacity())
	})

	t.Run("JSONMapKeys", func(t *testing.T) {
		inv := TableInventory{Table2pax: 3, Table4pax: 1}
		data, err := json.Marshal(inv)
		require.NoError(t, err)
		assert.JSONEq(t, `{"2pax":3,"4pax":1}`, string(data))

		var back TableInventory
		require.NoError(t, json.Unmarshal([]byte(`{"6pax":2,"10pax":1}`), &back))
		assert.Equal(t, 2, back.OwnedCount(Table6pax))
		assert.Equal(t, 1, back.OwnedCount(Table10pax))
	})
}

func TestTableInventory(t *testing.T) {
	t.Run("NewKeepsAllClasses", func(t *testing.T) {
		inv, err := NewTableInventory(map[string]int{"2pax": 3})
		require.NoError(t, err)
		require.NoError(t, inv.Validate())
		assert.Len(t, inv, len(AllSizeClasses))
		assert.Equal(t, 3, inv.OwnedCount(Table2pax))
		assert.Equal(t, 0, inv.OwnedCount(Table8pax))
	})

	t.Run("NegativeRejected", func(t *testing.T) {
		_, err := NewTableInventory(map[string]int{"2pax": -1})
		assert.ErrorIs(t, err, ErrValidation)

		inv := EmptyInventory()
		assert.ErrorIs(t, inv.Set(Table4pax, -2), ErrValidation)
		assert.Equal(t, 0, inv.OwnedCount(Table4pax))
	})

	t.Run("UnknownLabel", func(t *testing.T) {
		_, err := NewTableInventory(map[string]int{"3pax": 1})
		assert.ErrorIs(t, err, ErrValidation)
	})

	t.Run("NilOwnedCount", func(t *testing.T) {
		var inv TableInventory
		assert.Equal(t, 0, inv.OwnedCount(Table2pax))
	})

	t.Run("ValidateMissingClass", func(t *testing.T) {
		inv := TableInventory{Table2pax: 1}
		assert.ErrorIs(t, inv.Validate(), ErrValidation)
	})

	t.Run("CloneIsIndependent", func(t *testing.T) {
		inv := EmptyInventory()
		c := inv.Clone()
		require.NoError(t, c.Set(Table2pax, 5))
		assert.Equal(t, 0, inv.OwnedCount(Table2pax))
		assert.Equal(t, 5, c.TotalTables())
	})
}

func TestStatus(t *testing.T) {
	tests := []struct {
		in   string
		want Status
	}{
		{"pending_payment", StatusPendingPayment},
		{"pending", StatusPendingPayment},
		{"payment_rejected", StatusRejected},
		{"canceled", StatusCancelled},
		{" Confirmed ", StatusConfirmed},
		{"pending_verification", StatusPendingVerification},
	}
	for _, tt := range tests {
		got, err := ParseStatus(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	_, err := ParseStatus("archived")
	assert.ErrorIs(t, err, ErrValidation)

	assert.True(t, StatusPendingVerification.IsOccupying())
	assert.False(t, StatusCompleted.IsOccupying())
	assert.True(t, StatusRejected.IsTerminal())
	assert.False(t, StatusConfirmed.IsTerminal())
}

func TestBookingAmountDue(t *testing.T) {
	b := Booking{DepositCents: 5000}
	assert.Equal(t, int64(5000), b.AmountDue())

	b.MenuItems = []MenuItem{{Name: "Nasi Lemak", UnitPriceCents: 1250, Quantity: 2}, {Name: "Teh Tarik", UnitPriceCents: 350, Quantity: 3}}
	b.TotalCostCents = MenuTotalCents(b.MenuItems)
	assert.Equal(t, int64(3550), b.AmountDue())

	c := b.Clone()
	c.MenuItems[0].Quantity = 9
	assert.Equal(t, 2, b.MenuItems[0].Quantity)
}

func TestRestaurantPriceOrder(t *testing.T) {
	r := &Restaurant{Name: "Kedai Makan", Menu: []MenuItem{
		{Name: "Nasi Lemak", UnitPriceCents: 1200},
		{Name: "Teh Tarik", UnitPriceCents: 350},
	}}
	require.NoError(t, ValidateMenu(r.Menu))

	priced, err := r.PriceOrder([]MenuItem{{Name: " nasi lemak ", UnitPriceCents: 1, Quantity: 2}})
	require.NoError(t, err)
	assert.Equal(t, []MenuItem{{Name: "Nasi Lemak", UnitPriceCents: 1200, Quantity: 2}}, priced)
	assert.Equal(t, int64(2400), MenuTotalCents(priced))

	_, err = r.PriceOrder([]MenuItem{{Name: "Roti Canai", Quantity: 1}})
	assert.ErrorIs(t, err, ErrValidation)
	_, err = r.PriceOrder([]MenuItem{{Name: "Teh Tarik", Quantity: 0}})
	assert.ErrorIs(t, err, ErrValidation)

	priced, err = r.PriceOrder(nil)
	require.NoError(t, err)
	assert.Nil(t, priced)

	assert.ErrorIs(t, ValidateMenu([]MenuItem{{Name: "Teh"}, {Name: "TEH "}}), ErrValidation)
	assert.ErrorIs(t, ValidateMenu([]MenuItem{{Name: "  "}}), ErrValidation)
	assert.ErrorIs(t, ValidateMenu([]MenuItem{{Name: "Teh", UnitPriceCents: -1}}), ErrValidation)
}

func TestDraftBooking(t *testing.T) {
	d := &DraftBooking{UserID: 7}
	require.NoError(t, d.Validate())
	assert.False(t, d.Complete())

	d.RestaurantID, d.Date, d.Slot, d.Pax = 1, "2026-11-02", "7:00 PM", 4
	assert.True(t, d.Complete())

	d.Date = "02/11/2026"
	assert.ErrorIs(t, d.Validate(), ErrValidation)

	d.Date = "2026-11-02"
	d.Cart = []MenuItem{{Name: "Satay", UnitPriceCents: 100, Quantity: 0}}
	assert.ErrorIs(t, d.Validate(), ErrValidation)

	assert.ErrorIs(t, (&DraftBooking{}).Validate(), ErrValidation)
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(errors.Join(errors.New("insert"), ErrConcurrencyConflict)))
	assert.False(t, IsRetryable(ErrNoSuitableTable))
}
