package lifecycle

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/afiqaffendi/rbs/internal/models"
)

func TestTransition_ScenarioD(t *testing.T) {
	b := models.Booking{ID: 1, Status: models.StatusCompleted, AssignedTableSize: models.Table4pax}

	got, err := Transition(b, models.StatusCancelled, ActorOwner)
	assert.ErrorIs(t, err, models.ErrInvalidTransition)
	assert.Equal(t, models.StatusCompleted, got.Status)
	assert.Equal(t, models.StatusCompleted, b.Status)
}

func TestTransition_Table(t *testing.T) {
	tests := []struct {
		from  models.Status
		to    models.Status
		actor Actor
		ok    bool
	}{
		{models.StatusPendingPayment, models.StatusConfirmed, ActorPayment, true},
		{models.StatusPendingPayment, models.StatusConfirmed, ActorOwner, true},
		{models.StatusPendingPayment, models.StatusConfirmed, ActorCustomer, false},
		{models.StatusPendingVerification, models.StatusConfirmed, ActorOwner, true},
		{models.StatusPendingVerification, models.StatusConfirmed, ActorCustomer, false},
		{models.StatusPendingPayment, models.StatusRejected, ActorPayment, true},
		{models.StatusPendingVerification, models.StatusRejected, ActorOwner, true},
		{models.StatusPendingVerification, models.StatusRejected, ActorCustomer, false},
		{models.StatusConfirmed, models.StatusRejected, ActorOwner, false},
		{models.StatusConfirmed, models.StatusCompleted, ActorOwner, true},
		{models.StatusConfirmed, models.StatusCompleted, ActorCustomer, false},
		{models.StatusConfirmed, models.StatusCompleted, ActorPayment, false},
		{models.StatusPendingPayment, models.StatusCompleted, ActorOwner, false},
		{models.StatusConfirmed, models.StatusCancelled, ActorCustomer, true},
		{models.StatusConfirmed, models.StatusCancelled, ActorOwner, true},
		{models.StatusPendingPayment, models.StatusCancelled, ActorCustomer, true},
		{models.StatusPendingVerification, models.StatusCancelled, ActorOwner, true},
		{models.StatusConfirmed, models.StatusCancelled, ActorPayment, false},
		{models.StatusConfirmed, models.StatusPendingPayment, ActorOwner, false},
		{models.StatusConfirmed, models.StatusConfirmed, ActorOwner, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to)+"/"+string(tt.actor), func(t *testing.T) {
			b := models.Booking{ID: 9, Status: tt.from, Version: 3}
			got, err := Transition(b, tt.to, tt.actor)
			if !tt.ok {
				assert.ErrorIs(t, err, models.ErrInvalidTransition)
				assert.Equal(t, tt.from, got.Status)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.to, got.Status)
			assert.Equal(t, tt.from, b.Status, "input must not change")
			assert.Equal(t, int64(3), got.Version)
		})
	}
}

func TestTransition_NoExitFromTerminal(t *testing.T) {
	terminal := []models.Status{models.StatusCompleted, models.StatusRejected, models.StatusCancelled}
	actors := []Actor{ActorCustomer, ActorOwner, ActorPayment}
	for _, from := range terminal {
		for _, to := range models.AllStatuses {
			for _, a := range actors {
				_, err := Transition(models.Booking{Status: from}, to, a)
				assert.ErrorIs(t, err, models.ErrInvalidTransition, "%s -> %s by %s", from, to, a)
			}
		}
		assert.Empty(t, Targets(from, ActorOwner))
	}
}

func TestTransition_UnknownTarget(t *testing.T) {
	_, err := Transition(models.Booking{Status: models.StatusConfirmed}, models.Status("archived"), ActorOwner)
	assert.ErrorIs(t, err, models.ErrInvalidTransition)
}

func TestTransition_CopyDoesNotShareMenu(t *testing.T) {
	b := models.Booking{Status: models.StatusPendingPayment, MenuItems: []models.MenuItem{{Name: "Roti", UnitPriceCents: 200, Quantity: 1}}}
	got, err := Transition(b, models.StatusConfirmed, ActorPayment)
	require.NoError(t, err)
	got.MenuItems[0].Quantity = 5
	assert.Equal(t, 1, b.MenuItems[0].Quantity)
}

func TestTargets(t *testing.T) {
	assert.ElementsMatch(t,
		[]models.Status{models.StatusCompleted, models.StatusCancelled},
		Targets(models.StatusConfirmed, ActorOwner))
	assert.ElementsMatch(t,
		[]models.Status{models.StatusCancelled},
		Targets(models.StatusPendingVerification, ActorCustomer))
}

func TestParseActor(t *testing.T) {
	a, err := ParseActor(" Owner ")
	require.NoError(t, err)
	assert.Equal(t, ActorOwner, a)

	a, err = ParseActor("PAYMENT")
	require.NoError(t, err)
	assert.Equal(t, ActorPayment, a)

	_, err = ParseActor("admin")
	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestPaymentEvent_TargetStatus(t *testing.T) {
	tests := []struct {
		name string
		ev   PaymentEvent
		want models.Status
		ok   bool
	}{
		{"StatusIDSuccess", PaymentEvent{StatusID: 1}, models.StatusConfirmed, true},
		{"StatusIDPending", PaymentEvent{StatusID: 2, Status: "success"}, "", false},
		{"StatusIDFailed", PaymentEvent{StatusID: 3}, models.StatusRejected, true},
		{"StatusWord", PaymentEvent{Status: "Success"}, models.StatusConfirmed, true},
		{"StatusNumeric", PaymentEvent{Status: "3"}, models.StatusRejected, true},
		{"Unknown", PaymentEvent{Status: "weird"}, "", false},
		{"Empty", PaymentEvent{}, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := tt.ev.TargetStatus()
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}
