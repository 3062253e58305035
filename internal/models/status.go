package models

import (
	"fmt"
	"strings"
)

// Status is the canonical booking status.
type Status string

const (
	StatusPendingPayment      Status = "pending_payment"
	StatusPendingVerification Status = "pending_verification"
	StatusConfirmed           Status = "confirmed"
	StatusRejected            Status = "rejected"
	StatusCancelled           Status = "cancelled"
	StatusCompleted           Status = "completed"
)

// AllStatuses lists every canonical status.
var AllStatuses = []Status{
	StatusPendingPayment,
	StatusPendingVerification,
	StatusConfirmed,
	StatusRejected,
	StatusCancelled,
	StatusCompleted,
}

// statusSynonyms maps legacy spellings found in older records and clients.
var statusSynonyms = map[string]Status{
	"pending":          StatusPendingPayment,
	"payment_pending":  StatusPendingPayment,
	"payment_rejected": StatusRejected,
	"canceled":         StatusCancelled,
	"verification":     StatusPendingVerification,
}

// ParseStatus normalizes a status string, accepting legacy synonyms.
func ParseStatus(s string) (Status, error) {
	v := strings.ToLower(strings.TrimSpace(s))
	for _, st := range AllStatuses {
		if string(st) == v {
			return st, nil
		}
	}
	if st, ok := statusSynonyms[v]; ok {
		return st, nil
	}
	return "", fmt.Errorf("%w: unknown booking status %q", ErrValidation, s)
}

func (s Status) Valid() bool {
	for _, st := range AllStatuses {
		if st == s {
			return true
		}
	}
	return false
}

// IsOccupying reports whether a booking in this status holds a table for its slot.
func (s Status) IsOccupying() bool {
	switch s {
	case StatusPendingPayment, StatusPendingVerification, StatusConfirmed:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether no transition leaves this status.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusRejected, StatusCancelled:
		return true
	default:
		return false
	}
}

func (s Status) String() string {
	return string(s)
}
