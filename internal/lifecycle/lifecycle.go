// Package lifecycle is the single place where a booking's status may change.
package lifecycle

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/afiqaffendi/rbs/internal/models"
)

// Actor is the role that asks for a transition.
type Actor string

const (
	ActorCustomer Actor = "customer"
	ActorOwner    Actor = "owner"
	ActorPayment  Actor = "payment"
)

// ParseActor maps a role name, ignoring case and surrounding spaces, to an Actor.
func ParseActor(s string) (Actor, error) {
	switch a := Actor(strings.ToLower(strings.TrimSpace(s))); a {
	case ActorCustomer, ActorOwner, ActorPayment:
		return a, nil
	default:
		return "", fmt.Errorf("%w: unknown actor %q", models.ErrValidation, s)
	}
}

type edge struct {
	from models.Status
	to   models.Status
}

// transitions lists every legal move and the actors allowed to make it.
// Terminal statuses have no outgoing edges.
var transitions = map[edge][]Actor{
	{models.StatusPendingPayment, models.StatusConfirmed}:      {ActorPayment, ActorOwner},
	{models.StatusPendingVerification, models.StatusConfirmed}: {ActorOwner, ActorPayment},

	{models.StatusPendingPayment, models.StatusRejected}:      {ActorOwner, ActorPayment},
	{models.StatusPendingVerification, models.StatusRejected}: {ActorOwner, ActorPayment},

	{models.StatusConfirmed, models.StatusCompleted}: {ActorOwner},

	{models.StatusConfirmed, models.StatusCancelled}:           {ActorCustomer, ActorOwner},
	{models.StatusPendingPayment, models.StatusCancelled}:      {ActorCustomer, ActorOwner},
	{models.StatusPendingVerification, models.StatusCancelled}: {ActorCustomer, ActorOwner},
}

// Allowed reports whether actor may move a booking from one status to another.
func Allowed(from, to models.Status, actor Actor) bool {
	for _, a := range transitions[edge{from, to}] {
		if a == actor {
			return true
		}
	}
	return false
}

// Targets returns the statuses actor may move a booking in status from to.
func Targets(from models.Status, actor Actor) []models.Status {
	var out []models.Status
	for _, to := range models.AllStatuses {
		if Allowed(from, to, actor) {
			out = append(out, to)
		}
	}
	return out
}

// Transition returns a copy of b moved to status to. b itself is never modified.
// Illegal moves, including any move out of a terminal status, fail with models.ErrInvalidTransition.
func Transition(b models.Booking, to models.Status, actor Actor) (models.Booking, error) {
	if !to.Valid() {
		return b, fmt.Errorf("%w: unknown target status %q", models.ErrInvalidTransition, to)
	}
	if b.Status.IsTerminal() {
		return b, fmt.Errorf("%w: booking %d is %s", models.ErrInvalidTransition, b.ID, b.Status)
	}
	if !Allowed(b.Status, to, actor) {
		return b, fmt.Errorf("%w: %s may not move booking %d from %s to %s",
			models.ErrInvalidTransition, actor, b.ID, b.Status, to)
	}
	next := b.Clone()
	next.Status = to
	next.UpdatedAt = time.Now()
	return next, nil
}

// Payment gateway status codes.
const (
	PaymentStatusSuccess = 1
	PaymentStatusPending = 2
	PaymentStatusFailed  = 3
)

// PaymentEvent is the gateway's asynchronous verdict on a pending booking.
type PaymentEvent struct {
	BookingID int64  `json:"booking_id"`
	Status    string `json:"status,omitempty"`
	StatusID  int    `json:"status_id,omitempty"`
	Reference string `json:"reference,omitempty"`
}

// TargetStatus maps the event to the status it should produce. ok is false for pending
// or unrecognised results, which leave the booking as it is.
func (e PaymentEvent) TargetStatus() (models.Status, bool) {
	switch e.StatusID {
	case PaymentStatusSuccess:
		return models.StatusConfirmed, true
	case PaymentStatusFailed:
		return models.StatusRejected, true
	case PaymentStatusPending:
		return "", false
	}

	switch strings.ToLower(strings.TrimSpace(e.Status)) {
	case "success", "successful", "paid", "confirmed", strconv.Itoa(PaymentStatusSuccess):
		return models.StatusConfirmed, true
	case "failed", "failure", "rejected", "declined", strconv.Itoa(PaymentStatusFailed):
		return models.StatusRejected, true
	default:
		return "", false
	}
}
