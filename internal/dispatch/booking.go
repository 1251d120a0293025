package dispatch

import (
	"context"
	"fmt"
	"time"
)

// Repository is the persistence contract the booking core transacts
// against. Implementations (internal/storage) must provide the atomicity
// §4.6 step 2-3 requires: ReadForAccept runs its read, fn, and writes
// inside one multi-statement transaction.
type Repository interface {
	GetBooking(ctx context.Context, bookingID string) (*Booking, error)
	CreateBooking(ctx context.Context, b *Booking) error
	GetDriver(ctx context.Context, driverID string) (*User, error)
	SaveDriver(ctx context.Context, u *User) error

	// ReadForAccept re-reads booking and driver inside a transaction and
	// hands them to fn. If fn returns nil, the implementation persists
	// both b and d and commits; a non-nil error aborts the transaction
	// with nothing written.
	ReadForAccept(ctx context.Context, bookingID, driverID string, fn func(b *Booking, d *User) error) error

	SaveBooking(ctx context.Context, b *Booking) error
	RecordRejection(ctx context.Context, r RejectionRecord) error
	RecordStatusUpdate(ctx context.Context, r StatusUpdateRecord) error
}

// AssignmentRadiusMeters is the §4.3 outer bound, equal to the dispatch
// notification radius. Nothing in this module reads it; booking creation
// does not check the distance against it.
const AssignmentRadiusMeters = DefaultNotificationRadiusMeters

// BookingCore implements C6: booking creation, the atomic accept barrier
// (I1), rejection, status transitions, and cancellation with refund.
type BookingCore struct {
	repo        Repository
	lock        LockService
	serviceArea *ServiceArea
	fare        *FareEngine
	clock       func() time.Time
}

func NewBookingCore(repo Repository, lock LockService, serviceArea *ServiceArea, fare *FareEngine) *BookingCore {
	return &BookingCore{repo: repo, lock: lock, serviceArea: serviceArea, fare: fare, clock: time.Now}
}

// CreateInput is everything a caller must supply to create a booking.
type CreateInput struct {
	ID          string
	CustomerID  string
	Pickup      Address
	Dropoff     Address
	Package     Package
	VehicleType VehicleType
	Payment     Payment
}

// Create validates the request, checks the service area, prices the trip,
// and persists a new pending booking (§4.6).
func (c *BookingCore) Create(ctx context.Context, in CreateInput) (*Booking, error) {
	if in.CustomerID == "" {
		return nil, fmt.Errorf("%w: customerId is required", ErrValidation)
	}
	if in.Pickup.Address == "" || in.Dropoff.Address == "" {
		return nil, fmt.Errorf("%w: pickup and dropoff addresses are required", ErrValidation)
	}
	if in.VehicleType == "" {
		in.VehicleType = TwoWheeler
	}

	if err := c.serviceArea.ValidateBooking(in.Pickup.Location, in.Dropoff.Location); err != nil {
		return nil, err
	}

	now := c.clock()
	distanceKM := c.fare.DistanceKM(ctx, in.Pickup.Location, in.Dropoff.Location)
	breakdown := c.fare.Compute(distanceKM, in.Package, now)

	b := &Booking{
		ID:          in.ID,
		CustomerID:  in.CustomerID,
		Status:      StatusPending,
		Pickup:      in.Pickup,
		Dropoff:     in.Dropoff,
		Package:     in.Package,
		VehicleType: in.VehicleType,
		Fare:        breakdown,
		Payment:     in.Payment,
		Timing:      Timing{CreatedAt: now},
		DistanceKM:  distanceKM,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if b.Payment.Method == "" {
		b.Payment.Method = PaymentCash
	}
	b.Payment.Status = PaymentPending

	if err := c.repo.CreateBooking(ctx, b); err != nil {
		return nil, err
	}
	if err := c.repo.RecordStatusUpdate(ctx, StatusUpdateRecord{
		BookingID: b.ID, Status: b.Status, At: now,
	}); err != nil {
		return nil, err
	}
	return b, nil
}

// Accept is the sole path to driver_assigned (I1). It runs the §4.1/§4.6
// lock-then-transaction protocol and always releases the lock, even when
// the transaction fails.
func (c *BookingCore) Accept(ctx context.Context, bookingID, driverID string) (*Booking, error) {
	acquired, err := c.lock.Acquire(ctx, bookingID, driverID, DefaultLockTTL)
	if err != nil {
		return nil, err
	}
	if !acquired {
		// Held by someone else (or a stale entry). Re-read the booking:
		// if it is still genuinely up for grabs, treat this as a stale
		// lock and proceed anyway — the transaction below is the real
		// barrier, so a caller spinning past a dead holder can't cause
		// a double-assignment.
		existing, rerr := c.repo.GetBooking(ctx, bookingID)
		if rerr != nil {
			return nil, rerr
		}
		if existing.Status != StatusPending || existing.HasDriver() {
			return nil, ErrBookingAlreadyAssigned
		}
	} else {
		defer func() {
			_ = c.lock.Release(ctx, bookingID, driverID)
		}()
	}

	var result *Booking
	err = c.repo.ReadForAccept(ctx, bookingID, driverID, func(b *Booking, d *User) error {
		if b.Status != StatusPending {
			if b.Status == StatusDriverAssigned && NormalizeDriverID(b.DriverID) == driverID {
				result = b
				return nil
			}
			return ErrBookingAlreadyAssigned
		}
		if existing := NormalizeDriverID(b.DriverID); existing != "" && existing != driverID {
			return ErrBookingAlreadyAssigned
		}
		if d == nil {
			return ErrDriverNotFound
		}
		if !d.IsOnline || !d.IsAvailable {
			return ErrDriverNotAvailable
		}

		now := c.clock()
		b.DriverID = driverID
		b.Status = StatusDriverAssigned
		b.Timing.AssignedAt = &now
		b.UpdatedAt = now
		b.Driver = &DriverSummary{
			DriverID:      d.UserID,
			Name:          d.Name,
			Phone:         d.Phone,
			VehicleNumber: d.VehicleNumber,
			Rating:        d.Rating,
		}

		d.IsAvailable = false
		d.CurrentBookingID = b.ID

		result = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Reject records a rejection, returns the booking to pending with no
// assigned driver, and populates a cancellation-style reason so the
// history reads cleanly (§4.6). Rejected drivers are excluded from
// rediscovery by the dispatch engine's RejectedDrivers read.
func (c *BookingCore) Reject(ctx context.Context, bookingID, driverID, reason string) (*Booking, error) {
	if err := c.repo.RecordRejection(ctx, RejectionRecord{
		BookingID: bookingID, DriverID: driverID, Reason: reason, RejectedAt: c.clock(),
	}); err != nil {
		return nil, err
	}

	b, err := c.repo.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	b.DriverID = ""
	b.Status = StatusPending
	b.Driver = nil
	b.Cancellation = CancellationRecord{CancelledBy: driverID, Reason: reason, CancelledAt: c.clock()}
	b.UpdatedAt = c.clock()
	if err := c.repo.SaveBooking(ctx, b); err != nil {
		return nil, err
	}

	if d, derr := c.repo.GetDriver(ctx, driverID); derr == nil && d != nil {
		d.IsAvailable = true
		d.CurrentBookingID = ""
		if err := c.repo.SaveDriver(ctx, d); err != nil {
			return nil, err
		}
	}

	return b, nil
}

// UpdateStatus validates and applies a single forward lifecycle step,
// stamping the matching Timing field and mirroring it into the tracking
// collection.
func (c *BookingCore) UpdateStatus(ctx context.Context, bookingID string, to BookingStatus, actorID string, actorRole IdentityRole) (*Booking, error) {
	b, err := c.repo.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if !CanTransition(b.Status, to) {
		return nil, ErrInvalidTransition
	}

	now := c.clock()
	switch to {
	case StatusConfirmed:
		b.Timing.ConfirmedAt = &now
	case StatusDriverEnroute:
		b.Timing.EnrouteAt = &now
	case StatusDriverArrived:
		b.Timing.ArrivedAt = &now
	case StatusPickedUp:
		b.Timing.PickedUpAt = &now
	case StatusInTransit:
		b.Timing.InTransitAt = &now
	case StatusAtDropoff:
		b.Timing.AtDropoffAt = &now
	case StatusDelivered:
		b.Timing.DeliveredAt = &now
	}
	b.Status = to
	b.UpdatedAt = now

	if err := c.repo.SaveBooking(ctx, b); err != nil {
		return nil, err
	}
	if err := c.repo.RecordStatusUpdate(ctx, StatusUpdateRecord{
		BookingID: bookingID, Status: to, At: now, ActorID: actorID, ActorRole: actorRole,
	}); err != nil {
		return nil, err
	}
	return b, nil
}

// cancellableStatuses is exactly the pre-pickup set §4.6 allows Cancel from.
var cancellableStatuses = map[BookingStatus]bool{
	StatusPending:        true,
	StatusConfirmed:      true,
	StatusDriverAssigned: true,
}

// assignedCancelPenaltyRate and assignedCancelPenaltyCap implement the
// §4.6 refund policy for a cancellation after assignment: deduct
// min(50, 10% of total).
const (
	assignedCancelPenaltyRate = 0.10
	assignedCancelPenaltyCap  = 50.0
)

// Cancel cancels a booking, computing the refund per §4.6's policy (full
// refund before assignment; a capped 10% deduction once a driver is
// assigned) and freeing the driver.
func (c *BookingCore) Cancel(ctx context.Context, bookingID, cancelledBy, reason string) (*Booking, error) {
	b, err := c.repo.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if !cancellableStatuses[b.Status] {
		return nil, ErrNotCancellable
	}

	refund := b.Fare.Total
	wasAssigned := b.Status == StatusDriverAssigned
	if wasAssigned {
		penalty := b.Fare.Total * assignedCancelPenaltyRate
		if penalty > assignedCancelPenaltyCap {
			penalty = assignedCancelPenaltyCap
		}
		refund = round2(b.Fare.Total - penalty)
	}

	now := c.clock()
	driverID := NormalizeDriverID(b.DriverID)
	b.Status = StatusCancelled
	b.Cancellation = CancellationRecord{
		CancelledBy: cancelledBy, Reason: reason, CancelledAt: now, RefundAmount: refund,
	}
	b.Payment.Status = PaymentRefunded
	b.UpdatedAt = now

	if err := c.repo.SaveBooking(ctx, b); err != nil {
		return nil, err
	}
	if err := c.repo.RecordStatusUpdate(ctx, StatusUpdateRecord{
		BookingID: bookingID, Status: StatusCancelled, At: now, ActorID: cancelledBy,
	}); err != nil {
		return nil, err
	}

	if wasAssigned && driverID != "" {
		if d, derr := c.repo.GetDriver(ctx, driverID); derr == nil && d != nil {
			d.IsAvailable = true
			d.CurrentBookingID = ""
			if err := c.repo.SaveDriver(ctx, d); err != nil {
				return nil, err
			}
		}
	}

	return b, nil
}
