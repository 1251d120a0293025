package session

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dispatchcore/internal/dispatch"
)

// fakeStore is a minimal in-memory dispatch.Repository plus BookingAccess
// double for exercising the session plane without a real database.
type fakeStore struct {
	mu       sync.Mutex
	bookings map[string]*dispatch.Booking
	drivers  map[string]*dispatch.User
}

func newFakeStore() *fakeStore {
	return &fakeStore{bookings: map[string]*dispatch.Booking{}, drivers: map[string]*dispatch.User{}}
}

func (s *fakeStore) GetBooking(ctx context.Context, id string) (*dispatch.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bookings[id]
	if !ok {
		return nil, dispatch.ErrBookingNotFound
	}
	cp := *b
	return &cp, nil
}

func (s *fakeStore) CreateBooking(ctx context.Context, b *dispatch.Booking) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *b
	s.bookings[b.ID] = &cp
	return nil
}

func (s *fakeStore) GetDriver(ctx context.Context, id string) (*dispatch.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.drivers[id]
	if !ok {
		return nil, dispatch.ErrDriverNotFound
	}
	cp := *d
	return &cp, nil
}

func (s *fakeStore) SaveDriver(ctx context.Context, u *dispatch.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *u
	s.drivers[u.UserID] = &cp
	return nil
}

func (s *fakeStore) ReadForAccept(ctx context.Context, bookingID, driverID string, fn func(b *dispatch.Booking, d *dispatch.User) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bookings[bookingID]
	if !ok {
		return dispatch.ErrBookingNotFound
	}
	bCopy := *b
	var dCopy *dispatch.User
	if d, ok := s.drivers[driverID]; ok {
		cp := *d
		dCopy = &cp
	}
	if err := fn(&bCopy, dCopy); err != nil {
		return err
	}
	s.bookings[bookingID] = &bCopy
	if dCopy != nil {
		s.drivers[driverID] = dCopy
	}
	return nil
}

func (s *fakeStore) SaveBooking(ctx context.Context, b *dispatch.Booking) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *b
	s.bookings[b.ID] = &cp
	return nil
}

func (s *fakeStore) RecordRejection(ctx context.Context, r dispatch.RejectionRecord) error {
	return nil
}

func (s *fakeStore) RecordStatusUpdate(ctx context.Context, r dispatch.StatusUpdateRecord) error {
	return nil
}

func (s *fakeStore) ActiveBookingsFor(ctx context.Context, userID string, role dispatch.IdentityRole) ([]*dispatch.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*dispatch.Booking
	for _, b := range s.bookings {
		if dispatch.OccupiedStatuses[b.Status] {
			if (role == dispatch.RoleCustomer && b.CustomerID == userID) ||
				(role == dispatch.RoleDriver && dispatch.NormalizeDriverID(b.DriverID) == userID) {
				cp := *b
				out = append(out, &cp)
			}
		}
	}
	return out, nil
}

func (s *fakeStore) OnlineAvailableVerifiedDrivers() []*dispatch.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*dispatch.User
	for _, d := range s.drivers {
		if d.IsOnline && d.IsAvailable && d.IsVerified {
			cp := *d
			out = append(out, &cp)
		}
	}
	return out
}

func (s *fakeStore) RejectedDrivers(bookingID string) (map[string]bool, error) {
	return map[string]bool{}, nil
}

func testPlane(t *testing.T) (*Plane, *fakeStore, *Hub) {
	store := newFakeStore()
	hub := NewHub()
	go hub.Run()

	serviceArea := dispatch.NewServiceArea(dispatch.ServiceAreaConfig{
		CenterLat: 12.9716, CenterLng: 77.5946, RadiusMaxMeters: 50000, CenterName: "HQ",
	})
	fare := dispatch.NewFareEngine(dispatch.DefaultFareConfig(), nil)
	core := dispatch.NewBookingCore(store, dispatch.NewInMemoryLockService(), serviceArea, fare)
	engine := dispatch.NewDispatchEngine(store, dispatch.NewGeoIndex())

	plane := NewPlane(hub, core, store, engine, nil)
	return plane, store, hub
}

func recvFrame(t *testing.T, c *Conn) Frame {
	t.Helper()
	select {
	case raw := <-c.send:
		var f Frame
		require.NoError(t, json.Unmarshal(raw, &f))
		return f
	case <-time.After(time.Second):
		t.Fatal("expected a frame on the connection's send channel")
		return Frame{}
	}
}

func TestPlaneConnectJoinsIdentityRoomsAndSendsActiveTrips(t *testing.T) {
	plane, store, _ := testPlane(t)
	store.bookings["b1"] = &dispatch.Booking{ID: "b1", CustomerID: "cust1", Status: dispatch.StatusDriverAssigned, DriverID: "drv1"}

	c := newConn(nil, "cust1", "customer", "customer")
	plane.Connect(context.Background(), c)

	frame := recvFrame(t, c)
	assert.Equal(t, "active_trips", frame.Event)
}

func TestPlaneHandleSubscribeRequiresParticipant(t *testing.T) {
	plane, store, _ := testPlane(t)
	store.bookings["b1"] = &dispatch.Booking{ID: "b1", CustomerID: "cust1", Status: dispatch.StatusPending}

	c := newConn(nil, "someone-else", "customer", "customer")
	resp := plane.HandleInbound(context.Background(), c, Frame{
		Event:   "subscribe_tracking",
		Payload: json.RawMessage(`{"bookingId":"b1"}`),
	})
	assert.Equal(t, "error", resp.Event)
	assert.Equal(t, "FORBIDDEN", resp.Error.Code)
}

func TestPlaneHandleSubscribeAdmitsParticipant(t *testing.T) {
	plane, store, _ := testPlane(t)
	store.bookings["b1"] = &dispatch.Booking{ID: "b1", CustomerID: "cust1", Status: dispatch.StatusPending}

	c := newConn(nil, "cust1", "customer", "customer")
	resp := plane.HandleInbound(context.Background(), c, Frame{
		Event:   "subscribe_tracking",
		Payload: json.RawMessage(`{"bookingId":"b1"}`),
		Ack:     "ack1",
	})
	assert.Equal(t, "ack", resp.Event)
	assert.Equal(t, "ack1", resp.Ack)

	statusFrame := recvFrame(t, c)
	assert.Equal(t, "booking_status_update", statusFrame.Event)
}

func TestPlaneHandleUpdateLocationRejectsNonDriver(t *testing.T) {
	plane, _, _ := testPlane(t)
	c := newConn(nil, "cust1", "customer", "customer")
	resp := plane.HandleInbound(context.Background(), c, Frame{
		Event:   "update_location",
		Payload: json.RawMessage(`{"bookingId":"b1","location":{"latitude":1,"longitude":2}}`),
	})
	assert.Equal(t, "error", resp.Event)
	assert.Equal(t, "FORBIDDEN", resp.Error.Code)
}

func TestPlaneHandleUpdateLocationBroadcastsToTripRoom(t *testing.T) {
	plane, store, hub := testPlane(t)
	store.bookings["b1"] = &dispatch.Booking{ID: "b1", CustomerID: "cust1", DriverID: "drv1", Status: dispatch.StatusDriverAssigned}

	watcher := newConn(nil, "cust1", "customer", "customer")
	hub.Join(watcher, "trip:b1")

	driver := newConn(nil, "drv1", "driver", "driver")
	resp := plane.HandleInbound(context.Background(), driver, Frame{
		Event:   "update_location",
		Payload: json.RawMessage(`{"bookingId":"b1","location":{"latitude":1,"longitude":2}}`),
		Ack:     "a1",
	})
	assert.Equal(t, "ack", resp.Event)

	frame := recvFrame(t, watcher)
	assert.Equal(t, "location_updated", frame.Event)
}

func TestPlaneHandleSendMessageValidatesLength(t *testing.T) {
	plane, store, _ := testPlane(t)
	store.bookings["b1"] = &dispatch.Booking{ID: "b1", CustomerID: "cust1", Status: dispatch.StatusPending}
	c := newConn(nil, "cust1", "customer", "customer")

	resp := plane.HandleInbound(context.Background(), c, Frame{
		Event:   "send_message",
		Payload: json.RawMessage(`{"bookingId":"b1","text":""}`),
	})
	assert.Equal(t, "error", resp.Event)
	assert.Equal(t, "VALIDATION_ERROR", resp.Error.Code)
}

func TestPlaneHandleAcceptBroadcastsDriverAssigned(t *testing.T) {
	plane, store, hub := testPlane(t)
	store.bookings["b1"] = &dispatch.Booking{ID: "b1", CustomerID: "cust1", Status: dispatch.StatusPending}
	store.drivers["drv1"] = &dispatch.User{UserID: "drv1", IsOnline: true, IsAvailable: true, IsVerified: true}

	customerConn := newConn(nil, "cust1", "customer", "customer")
	hub.Join(customerConn, "user:cust1")

	driverConn := newConn(nil, "drv1", "driver", "driver")
	resp := plane.HandleInbound(context.Background(), driverConn, Frame{
		Event:   "accept_booking",
		Payload: json.RawMessage(`{"bookingId":"b1"}`),
	})
	assert.Equal(t, "ack", resp.Event)

	frame := recvFrame(t, customerConn)
	assert.Equal(t, "driver_assigned", frame.Event)
}

func TestPlaneHandleInboundUnknownEvent(t *testing.T) {
	plane, _, _ := testPlane(t)
	c := newConn(nil, "u1", "customer", "customer")
	resp := plane.HandleInbound(context.Background(), c, Frame{Event: "not_a_real_event"})
	assert.Equal(t, "error", resp.Event)
	assert.Equal(t, "UNKNOWN_EVENT", resp.Error.Code)
}

func TestPlaneDisconnectKeepsOnlineWhenDriverHasActiveTrip(t *testing.T) {
	plane, store, _ := testPlane(t)
	store.bookings["b1"] = &dispatch.Booking{ID: "b1", CustomerID: "cust1", DriverID: "drv1", Status: dispatch.StatusDriverAssigned}

	c := newConn(nil, "drv1", "driver", "driver")
	outcome := plane.Disconnect(context.Background(), c)
	assert.True(t, outcome.ForceOnline)
	assert.False(t, outcome.TouchOnly)
}

func TestPlaneDisconnectTouchOnlyWhenNoActiveTrip(t *testing.T) {
	plane, _, _ := testPlane(t)
	c := newConn(nil, "drv1", "driver", "driver")
	outcome := plane.Disconnect(context.Background(), c)
	assert.True(t, outcome.TouchOnly)
	assert.False(t, outcome.ForceOnline)
}

func TestPlaneDisconnectCustomerIsAlwaysZeroOutcome(t *testing.T) {
	plane, _, _ := testPlane(t)
	c := newConn(nil, "cust1", "customer", "customer")
	outcome := plane.Disconnect(context.Background(), c)
	assert.False(t, outcome.ForceOnline)
	assert.False(t, outcome.TouchOnly)
}
