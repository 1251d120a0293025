package dispatch

import (
	"context"
	"sync"
)

// fakeRepository is an in-memory Repository double used across the
// dispatch package's tests. It keeps just enough state to exercise the
// booking core's transitions and does not attempt to model real
// transaction isolation beyond a single mutex.
type fakeRepository struct {
	mu         sync.Mutex
	bookings   map[string]*Booking
	drivers    map[string]*User
	rejections []RejectionRecord
	updates    []StatusUpdateRecord
}

func newFakeRepository() *fakeRepository {
	return &fakeRepository{
		bookings: make(map[string]*Booking),
		drivers:  make(map[string]*User),
	}
}

func cloneBooking(b *Booking) *Booking {
	cp := *b
	return &cp
}

func cloneUser(u *User) *User {
	cp := *u
	return &cp
}

func (r *fakeRepository) GetBooking(ctx context.Context, bookingID string) (*Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.bookings[bookingID]
	if !ok {
		return nil, ErrBookingNotFound
	}
	return cloneBooking(b), nil
}

func (r *fakeRepository) CreateBooking(ctx context.Context, b *Booking) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bookings[b.ID] = cloneBooking(b)
	return nil
}

func (r *fakeRepository) GetDriver(ctx context.Context, driverID string) (*User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.drivers[driverID]
	if !ok {
		return nil, ErrDriverNotFound
	}
	return cloneUser(d), nil
}

func (r *fakeRepository) SaveDriver(ctx context.Context, u *User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.drivers[u.UserID] = cloneUser(u)
	return nil
}

func (r *fakeRepository) ReadForAccept(ctx context.Context, bookingID, driverID string, fn func(b *Booking, d *User) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.bookings[bookingID]
	if !ok {
		return ErrBookingNotFound
	}
	bCopy := cloneBooking(b)
	var dCopy *User
	if d, ok := r.drivers[driverID]; ok {
		dCopy = cloneUser(d)
	}
	if err := fn(bCopy, dCopy); err != nil {
		return err
	}
	r.bookings[bookingID] = bCopy
	if dCopy != nil {
		r.drivers[driverID] = dCopy
	}
	return nil
}

func (r *fakeRepository) SaveBooking(ctx context.Context, b *Booking) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bookings[b.ID] = cloneBooking(b)
	return nil
}

func (r *fakeRepository) RecordRejection(ctx context.Context, rec RejectionRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rejections = append(r.rejections, rec)
	return nil
}

func (r *fakeRepository) RecordStatusUpdate(ctx context.Context, rec StatusUpdateRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates = append(r.updates, rec)
	return nil
}

func (r *fakeRepository) rejectedFor(bookingID string) map[string]bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]bool)
	for _, rec := range r.rejections {
		if rec.BookingID == bookingID {
			out[rec.DriverID] = true
		}
	}
	return out
}

func (r *fakeRepository) onlineAvailableVerifiedDrivers() []*User {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*User
	for _, d := range r.drivers {
		if d.IsOnline && d.IsAvailable && d.IsVerified {
			out = append(out, cloneUser(d))
		}
	}
	return out
}

// fakeDriverPool adapts fakeRepository to DriverPool for dispatcher tests.
type fakeDriverPool struct {
	repo      *fakeRepository
	rejectErr error
}

func (p *fakeDriverPool) OnlineAvailableVerifiedDrivers() []*User {
	return p.repo.onlineAvailableVerifiedDrivers()
}

func (p *fakeDriverPool) RejectedDrivers(bookingID string) (map[string]bool, error) {
	if p.rejectErr != nil {
		return nil, p.rejectErr
	}
	return p.repo.rejectedFor(bookingID), nil
}
