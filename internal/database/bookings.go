package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/afiqaffendi/rbs/internal/models"
)

const bookingColumns = `b.id, b.reference, b.restaurant_id, COALESCE(r.name, ''), b.customer_id, b.booking_date,
        b.time_slot, b.pax, b.assigned_table_size, b.status, b.deposit_cents, b.total_cost_cents,
        b.payment_method, b.payment_ref, b.created_at, b.updated_at, b.version`

const bookingFrom = ` FROM bookings b LEFT JOIN restaurants r ON r.id = b.restaurant_id `

// occupyingStatuses are the statuses that hold a table for their slot.
var occupyingStatuses = []any{
	string(models.StatusPendingPayment),
	string(models.StatusPendingVerification),
	string(models.StatusConfirmed),
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBooking(s rowScanner) (models.Booking, error) {
	var b models.Booking
	var class int
	var status string
	err := s.Scan(
		&b.ID, &b.Reference, &b.RestaurantID, &b.RestaurantName, &b.CustomerID, &b.BookingDate,
		&b.TimeSlot, &b.Pax, &class, &status, &b.DepositCents, &b.TotalCostCents,
		&b.PaymentMethod, &b.PaymentRef, &b.CreatedAt, &b.UpdatedAt, &b.Version,
	)
	if err != nil {
		return b, err
	}
	b.AssignedTableSize = models.TableSizeClass(class)
	st, err := models.ParseStatus(status)
	if err != nil {
		return b, fmt.Errorf("booking %d: %w", b.ID, err)
	}
	b.Status = st
	return b, nil
}

// CreateBookingWithLock persists a booking whose table class was chosen by the allocator.
// Inside one immediate transaction it re-reads the owned count and the occupancy of that
// class for the slot and refuses the insert with ErrCapacityExceeded when the class is full.
// The booking.created outbox event is written in the same transaction.
func (db *DB) CreateBookingWithLock(ctx context.Context, booking *models.Booking) error {
	if !booking.AssignedTableSize.Valid() {
		return fmt.Errorf("%w: booking has no assigned table size", models.ErrValidation)
	}
	if !booking.Status.IsOccupying() {
		return fmt.Errorf("%w: new booking cannot start as %s", models.ErrValidation, booking.Status)
	}
	if booking.Pax < 1 {
		return fmt.Errorf("%w: pax must be at least 1", models.ErrValidation)
	}

	return db.withTx(ctx, func(tx *sql.Tx) error {
		owned, err := ownedCount(ctx, tx, booking.RestaurantID, booking.AssignedTableSize)
		if err != nil {
			return err
		}

		var occupied int
		args := append([]any{booking.RestaurantID, booking.BookingDate, booking.TimeSlot, int(booking.AssignedTableSize)}, occupyingStatuses...)
		err = tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM bookings
            WHERE restaurant_id = ? AND booking_date = ? AND time_slot = ? AND assigned_table_size = ?
              AND status IN (?, ?, ?)`, args...).Scan(&occupied)
		if err != nil {
			return fmt.Errorf("failed to check occupancy in tx: %w", err)
		}

		if occupied >= owned {
			db.logger.Debug().
				Int64("restaurant_id", booking.RestaurantID).
				Str("date", booking.BookingDate).
				Str("slot", booking.TimeSlot).
				Str("class", booking.AssignedTableSize.String()).
				Int("owned", owned).
				Int("occupied", occupied).
				Msg("Booking insert refused, class full")
			return ErrCapacityExceeded
		}

		if booking.Reference == "" {
			booking.Reference = uuid.NewString()
		}
		now := time.Now()
		result, err := tx.ExecContext(ctx, `INSERT INTO bookings (
                reference, restaurant_id, customer_id, booking_date, time_slot, pax, assigned_table_size,
                status, deposit_cents, total_cost_cents, payment_method, payment_ref, created_at, updated_at, version
            ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			booking.Reference,
			booking.RestaurantID,
			booking.CustomerID,
			booking.BookingDate,
			booking.TimeSlot,
			booking.Pax,
			int(booking.AssignedTableSize),
			string(booking.Status),
			booking.DepositCents,
			booking.TotalCostCents,
			booking.PaymentMethod,
			booking.PaymentRef,
			now,
			now,
			1,
		)
		if err != nil {
			return fmt.Errorf("failed to insert booking in tx: %w", err)
		}

		id, err := result.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to get last insert id in tx: %w", err)
		}

		for i, it := range booking.MenuItems {
			_, err := tx.ExecContext(ctx, `INSERT INTO booking_menu_items (booking_id, position, name, unit_price_cents, quantity)
                VALUES (?, ?, ?, ?, ?)`, id, i, it.Name, it.UnitPriceCents, it.Quantity)
			if err != nil {
				return fmt.Errorf("failed to insert menu item: %w", err)
			}
		}

		booking.ID = id
		booking.CreatedAt = now
		booking.UpdatedAt = now
		booking.Version = 1

		return enqueueOutbox(ctx, tx, models.EventBookingCreated, booking)
	})
}

// UpdateBookingStatusWithVersion writes a status produced by the lifecycle state machine.
// The update only applies when the row still has the version and status the caller read;
// otherwise ErrConcurrentModification is returned and nothing changes.
func (db *DB) UpdateBookingStatusWithVersion(ctx context.Context, booking *models.Booking, from models.Status) error {
	return db.withTx(ctx, func(tx *sql.Tx) error {
		now := time.Now()
		result, err := tx.ExecContext(ctx, `UPDATE bookings
            SET status = ?, payment_ref = ?, version = version + 1, updated_at = ?
            WHERE id = ? AND version = ? AND status = ?`,
			string(booking.Status), booking.PaymentRef, now, booking.ID, booking.Version, string(from))
		if err != nil {
			return fmt.Errorf("failed to update booking status: %w", err)
		}
		rows, _ := result.RowsAffected()
		if rows == 0 {
			return ErrConcurrentModification
		}
		booking.Version++
		booking.UpdatedAt = now
		return enqueueOutbox(ctx, tx, models.EventForStatus(booking.Status), booking)
	})
}

func (db *DB) GetBooking(ctx context.Context, id int64) (*models.Booking, error) {
	b, err := scanBooking(db.QueryRowContext(ctx, `SELECT `+bookingColumns+bookingFrom+`WHERE b.id = ?`, id))
	if err != nil {
		return nil, notFound(err, "booking", id)
	}
	if err := db.loadMenuItems(ctx, []*models.Booking{&b}); err != nil {
		return nil, err
	}
	return &b, nil
}

func (db *DB) GetBookingByReference(ctx context.Context, reference string) (*models.Booking, error) {
	b, err := scanBooking(db.QueryRowContext(ctx, `SELECT `+bookingColumns+bookingFrom+`WHERE b.reference = ?`, reference))
	if err != nil {
		return nil, notFound(err, "booking", reference)
	}
	if err := db.loadMenuItems(ctx, []*models.Booking{&b}); err != nil {
		return nil, err
	}
	return &b, nil
}

// ListSlotBookings returns every booking of a restaurant for one date and slot, in any status.
func (db *DB) ListSlotBookings(ctx context.Context, restaurantID int64, date, slot string) ([]models.Booking, error) {
	return db.queryBookings(ctx, false,
		`WHERE b.restaurant_id = ? AND b.booking_date = ? AND b.time_slot = ? ORDER BY b.created_at ASC, b.id ASC`,
		restaurantID, date, slot)
}

// ListRestaurantBookingsByDate returns the bookings of a restaurant for one date with menu items.
func (db *DB) ListRestaurantBookingsByDate(ctx context.Context, restaurantID int64, date string) ([]models.Booking, error) {
	return db.queryBookings(ctx, true,
		`WHERE b.restaurant_id = ? AND b.booking_date = ? ORDER BY b.created_at ASC, b.id ASC`,
		restaurantID, date)
}

// ListCustomerBookings returns a customer's bookings, newest first.
func (db *DB) ListCustomerBookings(ctx context.Context, customerID int64) ([]models.Booking, error) {
	return db.queryBookings(ctx, true,
		`WHERE b.customer_id = ? ORDER BY b.created_at DESC, b.id DESC`,
		customerID)
}

func (db *DB) queryBookings(ctx context.Context, withMenu bool, where string, args ...any) ([]models.Booking, error) {
	rows, err := db.QueryContext(ctx, `SELECT `+bookingColumns+bookingFrom+where, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query bookings: %w", err)
	}
	defer rows.Close()

	var bookings []models.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan booking: %w", err)
		}
		bookings = append(bookings, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	rows.Close()

	if withMenu && len(bookings) > 0 {
		ptrs := make([]*models.Booking, len(bookings))
		for i := range bookings {
			ptrs[i] = &bookings[i]
		}
		if err := db.loadMenuItems(ctx, ptrs); err != nil {
			return nil, err
		}
	}
	return bookings, nil
}

func (db *DB) loadMenuItems(ctx context.Context, bookings []*models.Booking) error {
	byID := make(map[int64]*models.Booking, len(bookings))
	args := make([]any, 0, len(bookings))
	for _, b := range bookings {
		byID[b.ID] = b
		args = append(args, b.ID)
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(args)), ",")

	rows, err := db.QueryContext(ctx, `SELECT booking_id, name, unit_price_cents, quantity FROM booking_menu_items
        WHERE booking_id IN (`+placeholders+`) ORDER BY booking_id, position`, args...)
	if err != nil {
		return fmt.Errorf("failed to load menu items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id int64
		var it models.MenuItem
		if err := rows.Scan(&id, &it.Name, &it.UnitPriceCents, &it.Quantity); err != nil {
			return fmt.Errorf("failed to scan menu item: %w", err)
		}
		if b, ok := byID[id]; ok {
			b.MenuItems = append(b.MenuItems, it)
		}
	}
	return rows.Err()
}

// bookingEvent is the outbox payload for booking events.
type bookingEvent struct {
	Type       string         `json:"type"`
	Booking    models.Booking `json:"booking"`
	AmountDue  int64          `json:"amount_due_cents"`
	OccurredAt time.Time      `json:"occurred_at"`
}

func enqueueOutbox(ctx context.Context, q querier, eventType string, booking *models.Booking) error {
	payload, err := json.Marshal(bookingEvent{
		Type:       eventType,
		Booking:    *booking,
		AmountDue:  booking.AmountDue(),
		OccurredAt: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("encode outbox payload: %w", err)
	}
	task := models.OutboxTask{
		EventType: eventType,
		BookingID: booking.ID,
		Payload:   string(payload),
		Status:    models.OutboxStatusPending,
	}
	return createOutboxTask(ctx, q, &task)
}
