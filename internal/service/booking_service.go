package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/rs/zerolog"

	"github.com/afiqaffendi/rbs/internal/allocation"
	"github.com/afiqaffendi/rbs/internal/config"
	"github.com/afiqaffendi/rbs/internal/domain"
	"github.com/afiqaffendi/rbs/internal/events"
	"github.com/afiqaffendi/rbs/internal/lifecycle"
	"github.com/afiqaffendi/rbs/internal/logging"
	"github.com/afiqaffendi/rbs/internal/metrics"
	"github.com/afiqaffendi/rbs/internal/models"
	"github.com/afiqaffendi/rbs/internal/repository"
	"github.com/afiqaffendi/rbs/internal/slots"
)

// Payment methods recorded on a booking.
const (
	PaymentMethodGateway  = "gateway"
	PaymentMethodTransfer = "manual_transfer"
)

// ReasonSlotPassed marks slots of today that have already started.
const ReasonSlotPassed = "SlotPassed"

type BookingService struct {
	repo     domain.Repository
	drafts   domain.DraftRepository
	locker   domain.SlotLocker
	eventBus domain.EventPublisher
	outbox   domain.OutboxNotifier
	cfg      config.BookingConfig
	now      func() time.Time
	loc      *time.Location
	logger   *zerolog.Logger
}

// NewBookingService wires the booking flow. drafts, locker, eventBus and outbox may be nil.
func NewBookingService(
	repo domain.Repository,
	drafts domain.DraftRepository,
	locker domain.SlotLocker,
	eventBus domain.EventPublisher,
	outbox domain.OutboxNotifier,
	cfg config.BookingConfig,
	logger *zerolog.Logger,
) *BookingService {
	if cfg.StepMinutes <= 0 {
		cfg.StepMinutes = models.DefaultStepMinutes
	}
	if cfg.WindowMinutes <= 0 {
		cfg.WindowMinutes = models.DefaultWindowMinutes
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = models.DefaultMaxAttempts
	}
	if cfg.MaxBookingDays <= 0 {
		cfg.MaxBookingDays = models.DefaultMaxBookingDays
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 10 * time.Second
	}
	if cfg.RateLimitRequests <= 0 {
		cfg.RateLimitRequests = models.RateLimitBookings
	}
	if cfg.RateLimitWindow <= 0 {
		cfg.RateLimitWindow = models.RateLimitWindow
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	loc, err := config.Location(cfg.Timezone)
	if err != nil {
		logger.Warn().Err(err).Str("timezone", cfg.Timezone).Msg("Unknown booking timezone, using local time")
		loc = time.Local
	}
	return &BookingService{
		repo:     repo,
		drafts:   drafts,
		locker:   locker,
		eventBus: eventBus,
		outbox:   outbox,
		cfg:      cfg,
		now:      time.Now,
		loc:      loc,
		logger:   logger,
	}
}

func (s *BookingService) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.cfg.OperationTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.cfg.OperationTimeout)
}

// localNow is the wall clock of the restaurants. Booking dates and slot labels are
// both read against it.
func (s *BookingService) localNow() time.Time {
	return s.now().In(s.loc)
}

// today is the local calendar date at UTC midnight, the form models.ParseDate returns.
func (s *BookingService) today() time.Time {
	n := s.localNow()
	return time.Date(n.Year(), n.Month(), n.Day(), 0, 0, 0, 0, time.UTC)
}

// slotStarted reports whether slot on date has already begun. Slots on other dates never have.
func (s *BookingService) slotStarted(h slots.Hours, date, slot string) bool {
	n := s.localNow()
	if date != n.Format(models.DateLayout) {
		return false
	}
	start, err := h.Offset(slot)
	if err != nil {
		return false
	}
	return start <= n.Hour()*60+n.Minute()
}

// ValidateBookingDate accepts dates from today up to max_booking_days ahead.
func (s *BookingService) ValidateBookingDate(date string) (time.Time, error) {
	d, err := models.ParseDate(date)
	if err != nil {
		return time.Time{}, err
	}
	today := s.today()
	if d.Before(today) {
		return time.Time{}, fmt.Errorf("%w: date %s is in the past", models.ErrValidation, date)
	}
	if d.After(today.AddDate(0, 0, s.cfg.MaxBookingDays)) {
		return time.Time{}, fmt.Errorf("%w: date %s is more than %d days ahead", models.ErrValidation, date, s.cfg.MaxBookingDays)
	}
	return d, nil
}

func (s *BookingService) hours(r *models.Restaurant) (slots.Hours, error) {
	h, err := slots.ParseHours(r.OperatingHours)
	if err != nil {
		return slots.Hours{}, fmt.Errorf("restaurant %d: %w", r.ID, err)
	}
	return h, nil
}

// resolveSlot canonicalizes label and checks that the restaurant offers it on date
// and that it has not started yet.
func (s *BookingService) resolveSlot(r *models.Restaurant, date, label string) (string, error) {
	h, err := s.hours(r)
	if err != nil {
		return "", err
	}
	slot, err := slots.Canonical(label)
	if err != nil {
		return "", err
	}
	if !h.Contains(slot, s.cfg.StepMinutes, s.cfg.WindowMinutes) {
		return "", fmt.Errorf("%w: %s is not a bookable slot for %s", models.ErrValidation, slot, h)
	}
	if s.slotStarted(h, date, slot) {
		return "", fmt.Errorf("%w: slot %s on %s has already started", models.ErrValidation, slot, date)
	}
	return slot, nil
}

func (s *BookingService) ListSlots(ctx context.Context, restaurantID int64) ([]string, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	r, err := s.repo.GetRestaurant(ctx, restaurantID)
	if err != nil {
		return nil, err
	}
	seq, err := slots.Generate(r.OperatingHours, s.cfg.StepMinutes, s.cfg.WindowMinutes)
	if err != nil {
		return nil, fmt.Errorf("restaurant %d: %w", r.ID, err)
	}
	return slices.Collect(seq), nil
}

// SlotAvailability previews the allocation of a party in every slot of a date.
// A pax of 0 asks whether any table at all is free.
func (s *BookingService) SlotAvailability(ctx context.Context, restaurantID int64, date string, pax int) ([]models.SlotAvailability, error) {
	if pax < 0 {
		return nil, fmt.Errorf("%w: pax must be positive", models.ErrValidation)
	}
	if pax == 0 {
		pax = 1
	}
	if _, err := s.ValidateBookingDate(date); err != nil {
		return nil, err
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	r, err := s.repo.GetRestaurant(ctx, restaurantID)
	if err != nil {
		return nil, err
	}
	h, err := s.hours(r)
	if err != nil {
		return nil, err
	}
	bookings, err := s.repo.ListRestaurantBookingsByDate(ctx, restaurantID, date)
	if err != nil {
		return nil, err
	}

	var out []models.SlotAvailability
	for slot := range h.Slots(s.cfg.StepMinutes, s.cfg.WindowMinutes) {
		if s.slotStarted(h, date, slot) {
			out = append(out, models.SlotAvailability{Slot: slot, Reason: ReasonSlotPassed})
			continue
		}
		occ := allocation.Occupancy(restaurantID, date, slot, bookings)
		res, err := allocation.Allocate(pax, r.Inventory, occ)
		if err != nil {
			return nil, err
		}
		out = append(out, models.SlotAvailability{
			Slot:      slot,
			Available: res.Accepted,
			Class:     res.Class,
			Remaining: res.Remaining,
			Reason:    res.Reason,
		})
	}
	return out, nil
}

// CheckAvailability runs the allocator for one slot without booking anything.
func (s *BookingService) CheckAvailability(ctx context.Context, restaurantID int64, date, slot string, pax int) (allocation.Result, error) {
	if _, err := s.ValidateBookingDate(date); err != nil {
		return allocation.Result{}, err
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	r, err := s.repo.GetRestaurant(ctx, restaurantID)
	if err != nil {
		return allocation.Result{}, err
	}
	slot, err = s.resolveSlot(r, date, slot)
	if err != nil {
		return allocation.Result{}, err
	}
	bookings, err := s.repo.ListSlotBookings(ctx, restaurantID, date, slot)
	if err != nil {
		return allocation.Result{}, err
	}
	return allocation.Allocate(pax, r.Inventory, allocation.Occupancy(restaurantID, date, slot, bookings))
}

func validateCreateRequest(req domain.CreateBookingRequest) error {
	if req.RestaurantID <= 0 {
		return fmt.Errorf("%w: restaurant_id is required", models.ErrValidation)
	}
	if req.CustomerID <= 0 {
		return fmt.Errorf("%w: customer is required", models.ErrValidation)
	}
	if req.Pax <= 0 {
		return fmt.Errorf("%w: pax must be at least 1, got %d", models.ErrValidation, req.Pax)
	}
	return nil
}

// CreateBooking allocates a table and persists the booking.
// Attempts for the same slot are serialized by the slot lock; the store re-checks capacity
// inside its transaction and a conflict there restarts allocation from a fresh read.
func (s *BookingService) CreateBooking(ctx context.Context, req domain.CreateBookingRequest) (*models.Booking, error) {
	booking, err := s.createBooking(ctx, req)
	switch {
	case err == nil:
		metrics.IncBookingAttempt("created")
	case errors.Is(err, models.ErrNoSuitableTable):
		metrics.IncBookingAttempt("no_table")
	case errors.Is(err, models.ErrRateLimited):
		metrics.IncBookingAttempt("rate_limited")
	case errors.Is(err, models.ErrConcurrencyConflict):
		metrics.IncBookingAttempt("conflict")
	default:
		metrics.IncBookingAttempt("error")
	}
	return booking, err
}

func (s *BookingService) createBooking(ctx context.Context, req domain.CreateBookingRequest) (*models.Booking, error) {
	if err := validateCreateRequest(req); err != nil {
		return nil, err
	}
	if _, err := s.ValidateBookingDate(req.Date); err != nil {
		return nil, err
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	r, err := s.repo.GetRestaurant(ctx, req.RestaurantID)
	if err != nil {
		return nil, err
	}
	slot, err := s.resolveSlot(r, req.Date, req.Slot)
	if err != nil {
		return nil, err
	}
	order, err := r.PriceOrder(req.MenuItems)
	if err != nil {
		return nil, err
	}

	if err := s.checkRateLimit(ctx, req.CustomerID); err != nil {
		return nil, err
	}

	if s.locker != nil {
		key := repository.SlotLockKey(req.RestaurantID, req.Date, slot)
		token, err := s.locker.Lock(ctx, key, s.cfg.LockTTL)
		if err != nil {
			return nil, err
		}
		defer func() {
			if err := s.locker.Unlock(context.WithoutCancel(ctx), key, token); err != nil {
				s.logger.Warn().Err(err).Str("key", key).Msg("failed to release slot lock")
			}
		}()
	}

	booking := &models.Booking{
		RestaurantID:   req.RestaurantID,
		RestaurantName: r.Name,
		CustomerID:     req.CustomerID,
		BookingDate:    req.Date,
		TimeSlot:       slot,
		Pax:            req.Pax,
		MenuItems:      order,
		Status:         models.StatusPendingPayment,
		DepositCents:   s.cfg.DepositCents,
		TotalCostCents: models.MenuTotalCents(order),
		PaymentMethod:  req.PaymentMethod,
		PaymentRef:     req.PaymentRef,
	}
	if req.PaymentRef != "" {
		booking.Status = models.StatusPendingVerification
		if booking.PaymentMethod == "" {
			booking.PaymentMethod = PaymentMethodTransfer
		}
	}
	if booking.PaymentMethod == "" {
		booking.PaymentMethod = PaymentMethodGateway
	}

	for attempt := 1; ; attempt++ {
		if attempt > 1 {
			// Inventory may have changed too.
			if r, err = s.repo.GetRestaurant(ctx, req.RestaurantID); err != nil {
				return nil, err
			}
		}
		existing, err := s.repo.ListSlotBookings(ctx, req.RestaurantID, req.Date, slot)
		if err != nil {
			return nil, err
		}
		res, err := allocation.Allocate(req.Pax, r.Inventory, allocation.Occupancy(req.RestaurantID, req.Date, slot, existing))
		if err != nil {
			return nil, err
		}
		if !res.Accepted {
			s.logger.Info().
				Int64("restaurant_id", req.RestaurantID).
				Str("date", req.Date).
				Str("slot", slot).
				Int("pax", req.Pax).
				Msg("No suitable table")
			return nil, res.Err()
		}

		booking.AssignedTableSize = res.Class
		err = s.repo.CreateBookingWithLock(ctx, booking)
		if err == nil {
			break
		}
		if !models.IsRetryable(err) || attempt >= s.cfg.MaxAttempts {
			return nil, err
		}
		metrics.IncAllocationRetry()
		s.logger.Debug().Err(err).Int("attempt", attempt).Int64("restaurant_id", req.RestaurantID).Msg("Allocation conflict, retrying")
	}

	logging.Booking(s.logger.Info(), booking).
		Str("table", booking.AssignedTableSize.String()).
		Msg("Booking created")

	s.publishEvent(models.EventBookingCreated, booking, "", string(lifecycle.ActorCustomer), booking.CustomerID)
	s.wakeOutbox()
	s.clearDraft(ctx, booking.CustomerID)
	return booking, nil
}

func (s *BookingService) checkRateLimit(ctx context.Context, userID int64) error {
	if s.drafts == nil {
		return nil
	}
	allowed, err := s.drafts.CheckRateLimit(ctx, userID, s.cfg.RateLimitRequests, time.Duration(s.cfg.RateLimitWindow)*time.Second)
	if err != nil {
		s.logger.Warn().Err(err).Int64("user_id", userID).Msg("rate limit check failed")
		return nil
	}
	if !allowed {
		return fmt.Errorf("%w: too many booking attempts, try again later", models.ErrRateLimited)
	}
	return nil
}

func (s *BookingService) clearDraft(ctx context.Context, userID int64) {
	if s.drafts == nil {
		return
	}
	if err := s.drafts.ClearDraft(ctx, userID); err != nil {
		s.logger.Warn().Err(err).Int64("user_id", userID).Msg("failed to clear draft")
	}
}

// GetBooking returns a booking to its customer or to the owner of its restaurant.
func (s *BookingService) GetBooking(ctx context.Context, caller domain.Identity, id int64) (*models.Booking, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	b, err := s.repo.GetBooking(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := s.actorFor(ctx, caller, b); err != nil {
		return nil, err
	}
	return b, nil
}

// actorFor decides in which role caller acts on b.
func (s *BookingService) actorFor(ctx context.Context, caller domain.Identity, b *models.Booking) (lifecycle.Actor, error) {
	switch caller.Role {
	case lifecycle.ActorCustomer:
		if b.CustomerID == caller.UserID {
			return lifecycle.ActorCustomer, nil
		}
	case lifecycle.ActorOwner:
		r, err := s.repo.GetRestaurant(ctx, b.RestaurantID)
		if err != nil {
			return "", err
		}
		if r.IsOwnedBy(caller.UserID) {
			return lifecycle.ActorOwner, nil
		}
	case lifecycle.ActorPayment:
		return lifecycle.ActorPayment, nil
	}
	return "", fmt.Errorf("%w: booking %d", models.ErrForbidden, b.ID)
}

func (s *BookingService) CancelBooking(ctx context.Context, caller domain.Identity, id int64) (*models.Booking, error) {
	return s.changeStatus(ctx, caller, id, func(*models.Booking) (models.Status, error) {
		return models.StatusCancelled, nil
	})
}

func (s *BookingService) CompleteBooking(ctx context.Context, caller domain.Identity, id int64) (*models.Booking, error) {
	if caller.Role != lifecycle.ActorOwner {
		return nil, fmt.Errorf("%w: only the restaurant owner completes bookings", models.ErrForbidden)
	}
	return s.changeStatus(ctx, caller, id, func(*models.Booking) (models.Status, error) {
		return models.StatusCompleted, nil
	})
}

// VerifyPayment is the owner's verdict on a manually submitted payment reference.
func (s *BookingService) VerifyPayment(ctx context.Context, caller domain.Identity, id int64, approve bool) (*models.Booking, error) {
	if caller.Role != lifecycle.ActorOwner {
		return nil, fmt.Errorf("%w: only the restaurant owner verifies payments", models.ErrForbidden)
	}
	to := models.StatusRejected
	if approve {
		to = models.StatusConfirmed
	}
	return s.changeStatus(ctx, caller, id, func(*models.Booking) (models.Status, error) {
		return to, nil
	})
}

// HandlePaymentEvent applies a gateway callback. Pending results change nothing and a
// repeated callback for a booking already in the target status is a no-op.
func (s *BookingService) HandlePaymentEvent(ctx context.Context, ev lifecycle.PaymentEvent) (*models.Booking, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var b *models.Booking
	var err error
	switch {
	case ev.BookingID > 0:
		b, err = s.repo.GetBooking(ctx, ev.BookingID)
	case ev.Reference != "":
		b, err = s.repo.GetBookingByReference(ctx, ev.Reference)
	default:
		return nil, fmt.Errorf("%w: payment event without booking id or reference", models.ErrValidation)
	}
	if err != nil {
		return nil, err
	}

	to, ok := ev.TargetStatus()
	if !ok || b.Status == to {
		s.logger.Info().
			Int64("booking_id", b.ID).
			Str("status", string(b.Status)).
			Str("gateway_status", ev.Status).
			Int("gateway_status_id", ev.StatusID).
			Msg("Payment event ignored")
		return b, nil
	}

	return s.changeStatus(ctx, domain.Identity{Role: lifecycle.ActorPayment}, b.ID, func(cur *models.Booking) (models.Status, error) {
		if ev.Reference != "" && cur.PaymentRef == "" {
			cur.PaymentRef = ev.Reference
		}
		return to, nil
	})
}

// changeStatus reads the booking, runs the state machine and writes the result with an
// optimistic version check, re-reading on a concurrent modification.
func (s *BookingService) changeStatus(ctx context.Context, caller domain.Identity, id int64, target func(*models.Booking) (models.Status, error)) (*models.Booking, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	for attempt := 1; ; attempt++ {
		cur, err := s.repo.GetBooking(ctx, id)
		if err != nil {
			return nil, err
		}
		actor, err := s.actorFor(ctx, caller, cur)
		if err != nil {
			return nil, err
		}
		to, err := target(cur)
		if err != nil {
			return nil, err
		}
		next, err := lifecycle.Transition(*cur, to, actor)
		if err != nil {
			return nil, err
		}

		err = s.repo.UpdateBookingStatusWithVersion(ctx, &next, cur.Status)
		if err == nil {
			metrics.IncTransition(string(next.Status), string(actor))
			logging.Booking(s.logger.Info(), &next).
				Str("from", string(cur.Status)).
				Str("to", string(next.Status)).
				Str("actor", string(actor)).
				Msg("Booking status changed")
			s.publishEvent(models.EventForStatus(next.Status), &next, cur.Status, string(actor), caller.UserID)
			s.wakeOutbox()
			return &next, nil
		}
		if !models.IsRetryable(err) || attempt >= s.cfg.MaxAttempts {
			return nil, err
		}
	}
}

func (s *BookingService) customerBookings(ctx context.Context, customerID int64, upcoming bool) ([]models.Booking, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	all, err := s.repo.ListCustomerBookings(ctx, customerID)
	if err != nil {
		return nil, err
	}
	today := s.today().Format(models.DateLayout)
	out := make([]models.Booking, 0, len(all))
	for _, b := range all {
		isUpcoming := b.BookingDate >= today && b.Status.IsOccupying()
		if isUpcoming == upcoming {
			out = append(out, b)
		}
	}
	return out, nil
}

// UpcomingBookings returns bookings from today on that still hold a table, newest first.
func (s *BookingService) UpcomingBookings(ctx context.Context, customerID int64) ([]models.Booking, error) {
	return s.customerBookings(ctx, customerID, true)
}

// BookingHistory returns past and finished bookings, newest first.
func (s *BookingService) BookingHistory(ctx context.Context, customerID int64) ([]models.Booking, error) {
	return s.customerBookings(ctx, customerID, false)
}

// DailyBookings is the owner's view of one date, ordered by slot then creation time.
func (s *BookingService) DailyBookings(ctx context.Context, caller domain.Identity, restaurantID int64, date string) ([]models.Booking, error) {
	if _, err := models.ParseDate(date); err != nil {
		return nil, err
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	r, err := s.repo.GetRestaurant(ctx, restaurantID)
	if err != nil {
		return nil, err
	}
	if caller.Role != lifecycle.ActorOwner || !r.IsOwnedBy(caller.UserID) {
		return nil, fmt.Errorf("%w: restaurant %d", models.ErrForbidden, restaurantID)
	}

	bookings, err := s.repo.ListRestaurantBookingsByDate(ctx, restaurantID, date)
	if err != nil {
		return nil, err
	}
	// Hours that fail to parse still sort by clock time.
	h, _ := slots.ParseHours(r.OperatingHours)
	slices.SortStableFunc(bookings, func(a, b models.Booking) int {
		if c := slotOffset(h, a.TimeSlot) - slotOffset(h, b.TimeSlot); c != 0 {
			return c
		}
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return bookings, nil
}

// slotOffset orders slots after midnight behind the evening ones and unparsable labels last.
func slotOffset(h slots.Hours, label string) int {
	m, err := h.Offset(label)
	if err != nil {
		return 1 << 30
	}
	return m
}

func (s *BookingService) publishEvent(eventType string, b *models.Booking, prev models.Status, changedBy string, changedByID int64) {
	if s.eventBus == nil {
		return
	}
	payload := events.NewBookingPayload(b, prev, changedBy, changedByID)
	if err := s.eventBus.PublishJSON(eventType, payload); err != nil {
		s.logger.Error().Err(err).Str("event_type", eventType).Int64("booking_id", b.ID).Msg("publish event error")
	}
}

func (s *BookingService) wakeOutbox() {
	if s.outbox != nil {
		s.outbox.Wake()
	}
}
