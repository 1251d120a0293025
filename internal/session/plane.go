package session

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"dispatchcore/internal/dispatch"
)

// Frame is the envelope every inbound/outbound message uses.
type Frame struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Ack     string          `json:"ack,omitempty"`
	Error   *ErrorPayload   `json:"error,omitempty"`
}

// ErrorPayload is the typed error frame §4.8 requires for rejected actions.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// BookingAccess answers the trip-access question the plane must check
// before admitting a caller to a trip room or location update (§4.8).
type BookingAccess interface {
	GetBooking(ctx context.Context, bookingID string) (*dispatch.Booking, error)
	ActiveBookingsFor(ctx context.Context, userID string, role dispatch.IdentityRole) ([]*dispatch.Booking, error)
}

// Plane is the C8 session plane: room management, inbound-event
// dispatch, and the outbound fan-out rules §4.8 specifies.
type Plane struct {
	hub     *Hub
	core    *dispatch.BookingCore
	access  BookingAccess
	engine  *dispatch.DispatchEngine
	log     *zap.Logger
}

func NewPlane(hub *Hub, core *dispatch.BookingCore, access BookingAccess, engine *dispatch.DispatchEngine, log *zap.Logger) *Plane {
	return &Plane{hub: hub, core: core, access: access, engine: engine, log: log}
}

// Connect admits a freshly authenticated session: joins its identity
// rooms and replays active trips.
func (p *Plane) Connect(ctx context.Context, c *Conn) {
	p.hub.Join(c, "user:"+c.UserID)
	p.hub.Join(c, "role:"+c.Role)
	p.hub.Join(c, "type:"+c.Type)

	role := dispatch.IdentityRole(c.Type)
	active, err := p.access.ActiveBookingsFor(ctx, c.UserID, role)
	if err != nil {
		return
	}
	p.send(c, "active_trips", active)
}

// Disconnect applies the I4 disconnect rule: a driver's isOnline flag is
// never mutated by a transport drop. Callers are expected to look up the
// driver's occupancy state via hasActiveBooking and persist accordingly;
// this method only describes which branch applies.
type DisconnectOutcome struct {
	ForceOnline bool // true: driver has an active trip, keep/force isOnline=true, isAvailable=false
	TouchOnly   bool // true: only lastSeen changes
}

// Disconnect computes the I4 outcome for a driver session drop and
// leaves every room the connection held.
func (p *Plane) Disconnect(ctx context.Context, c *Conn) DisconnectOutcome {
	p.hub.Unregister(c)

	if c.Type != string(dispatch.RoleDriver) {
		return DisconnectOutcome{}
	}
	active, err := p.access.ActiveBookingsFor(ctx, c.UserID, dispatch.RoleDriver)
	if err == nil && len(active) > 0 {
		return DisconnectOutcome{ForceOnline: true}
	}
	return DisconnectOutcome{TouchOnly: true}
}

// HandleInbound dispatches one inbound frame per the §4.8 event table.
func (p *Plane) HandleInbound(ctx context.Context, c *Conn, frame Frame) Frame {
	switch frame.Event {
	case "subscribe_tracking":
		return p.handleSubscribe(ctx, c, frame, true)
	case "unsubscribe_tracking":
		return p.handleSubscribe(ctx, c, frame, false)
	case "update_location":
		return p.handleUpdateLocation(ctx, c, frame)
	case "send_message":
		return p.handleSendMessage(ctx, c, frame)
	case "typing_start", "typing_stop":
		return p.handleTyping(c, frame)
	case "presence_update":
		return p.handlePresence(c, frame)
	case "emergency_alert":
		return p.handleEmergency(ctx, c, frame)
	case "trip_status_update":
		return p.handleStatusUpdate(ctx, c, frame)
	case "accept_booking":
		return p.handleAccept(ctx, c, frame)
	case "reject_booking":
		return p.handleReject(ctx, c, frame)
	case "driver_status_update":
		return p.handleDriverStatus(c, frame)
	default:
		return errFrame(frame.Ack, "UNKNOWN_EVENT", "unrecognized event type")
	}
}

func (p *Plane) tripAccess(ctx context.Context, c *Conn, bookingID string) (*dispatch.Booking, bool) {
	b, err := p.access.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, false
	}
	if b.CustomerID == c.UserID {
		return b, true
	}
	if dispatch.NormalizeDriverID(b.DriverID) == c.UserID {
		return b, true
	}
	return b, false
}

type subscribePayload struct {
	BookingID string `json:"bookingId"`
}

func (p *Plane) handleSubscribe(ctx context.Context, c *Conn, frame Frame, subscribe bool) Frame {
	var in subscribePayload
	if err := json.Unmarshal(frame.Payload, &in); err != nil {
		return errFrame(frame.Ack, "VALIDATION_ERROR", "bookingId is required")
	}
	b, ok := p.tripAccess(ctx, c, in.BookingID)
	if !ok {
		return errFrame(frame.Ack, "FORBIDDEN", "not a participant on this booking")
	}
	if subscribe {
		p.hub.Join(c, "trip:"+in.BookingID)
		p.hub.Join(c, "booking:"+in.BookingID)
		p.send(c, "booking_status_update", b)
	} else {
		p.hub.Leave(c, "trip:"+in.BookingID)
		p.hub.Leave(c, "booking:"+in.BookingID)
	}
	return ackFrame(frame.Ack)
}

type locationPayload struct {
	BookingID string             `json:"bookingId"`
	Location  dispatch.Coordinate `json:"location"`
}

func (p *Plane) handleUpdateLocation(ctx context.Context, c *Conn, frame Frame) Frame {
	if c.Type != string(dispatch.RoleDriver) {
		return errFrame(frame.Ack, "FORBIDDEN", "only drivers report location")
	}
	var in locationPayload
	if err := json.Unmarshal(frame.Payload, &in); err != nil {
		return errFrame(frame.Ack, "VALIDATION_ERROR", "invalid location payload")
	}
	if _, ok := p.tripAccess(ctx, c, in.BookingID); !ok {
		return errFrame(frame.Ack, "FORBIDDEN", "not assigned to this booking")
	}
	p.hub.Broadcast("trip:"+in.BookingID, mustFrame("location_updated", map[string]any{
		"bookingId": in.BookingID,
		"driverId":  c.UserID,
		"location":  in.Location,
		"at":        time.Now(),
	}))
	return ackFrame(frame.Ack)
}

type messagePayload struct {
	BookingID string `json:"bookingId"`
	Text      string `json:"text"`
}

func (p *Plane) handleSendMessage(ctx context.Context, c *Conn, frame Frame) Frame {
	var in messagePayload
	if err := json.Unmarshal(frame.Payload, &in); err != nil {
		return errFrame(frame.Ack, "VALIDATION_ERROR", "invalid message payload")
	}
	if len(in.Text) < 1 || len(in.Text) > 500 {
		return errFrame(frame.Ack, "VALIDATION_ERROR", "message must be 1-500 characters")
	}
	if _, ok := p.tripAccess(ctx, c, in.BookingID); !ok {
		return errFrame(frame.Ack, "FORBIDDEN", "not a participant on this booking")
	}
	p.hub.Broadcast("trip:"+in.BookingID, mustFrame("chat_message", map[string]any{
		"bookingId": in.BookingID,
		"senderId":  c.UserID,
		"text":      in.Text,
		"at":        time.Now(),
	}))
	return ackFrame(frame.Ack)
}

func (p *Plane) handleTyping(c *Conn, frame Frame) Frame {
	var in subscribePayload
	if err := json.Unmarshal(frame.Payload, &in); err != nil {
		return errFrame(frame.Ack, "VALIDATION_ERROR", "bookingId is required")
	}
	p.hub.Broadcast("trip:"+in.BookingID, mustFrame("typing_indicator", map[string]any{
		"bookingId": in.BookingID,
		"userId":    c.UserID,
		"state":     frame.Event,
	}))
	return ackFrame(frame.Ack)
}

type presencePayload struct {
	BookingID string `json:"bookingId,omitempty"`
	Status    string `json:"status"`
}

func (p *Plane) handlePresence(c *Conn, frame Frame) Frame {
	var in presencePayload
	if err := json.Unmarshal(frame.Payload, &in); err != nil {
		return errFrame(frame.Ack, "VALIDATION_ERROR", "invalid presence payload")
	}
	evt := mustFrame("presence_updated", map[string]any{
		"userId": c.UserID,
		"status": in.Status,
		"at":     time.Now(),
	})
	p.hub.Broadcast("type:"+c.Type, evt)
	if in.BookingID != "" {
		p.hub.Broadcast("trip:"+in.BookingID, evt)
	}
	return ackFrame(frame.Ack)
}

type emergencyPayload struct {
	BookingID string `json:"bookingId"`
	Details   string `json:"details"`
}

func (p *Plane) handleEmergency(ctx context.Context, c *Conn, frame Frame) Frame {
	var in emergencyPayload
	if err := json.Unmarshal(frame.Payload, &in); err != nil {
		return errFrame(frame.Ack, "VALIDATION_ERROR", "invalid emergency payload")
	}
	if _, ok := p.tripAccess(ctx, c, in.BookingID); !ok {
		return errFrame(frame.Ack, "FORBIDDEN", "not a participant on this booking")
	}
	evt := mustFrame("emergency_alert", map[string]any{
		"bookingId": in.BookingID,
		"reporter":  c.UserID,
		"details":   in.Details,
		"at":        time.Now(),
	})
	p.hub.Broadcast("trip:"+in.BookingID, evt)
	p.hub.Broadcast("type:"+string(dispatch.RoleAdmin), evt)
	if p.log != nil {
		p.log.Warn("emergency_alert", zap.String("bookingId", in.BookingID), zap.String("reporter", c.UserID))
	}
	return ackFrame(frame.Ack)
}

type statusUpdatePayload struct {
	BookingID string               `json:"bookingId"`
	Status    dispatch.BookingStatus `json:"status"`
}

func (p *Plane) handleStatusUpdate(ctx context.Context, c *Conn, frame Frame) Frame {
	var in statusUpdatePayload
	if err := json.Unmarshal(frame.Payload, &in); err != nil {
		return errFrame(frame.Ack, "VALIDATION_ERROR", "invalid status payload")
	}
	b, err := p.core.UpdateStatus(ctx, in.BookingID, in.Status, c.UserID, dispatch.IdentityRole(c.Type))
	if err != nil {
		return errFrame(frame.Ack, string(dispatch.ToCoded(err).ErrCode), err.Error())
	}
	p.BroadcastBookingUpdate(b)
	return ackFrame(frame.Ack)
}

type bookingIDPayload struct {
	BookingID string `json:"bookingId"`
	Reason    string `json:"reason,omitempty"`
}

func (p *Plane) handleAccept(ctx context.Context, c *Conn, frame Frame) Frame {
	var in bookingIDPayload
	if err := json.Unmarshal(frame.Payload, &in); err != nil {
		return errFrame(frame.Ack, "VALIDATION_ERROR", "bookingId is required")
	}
	b, err := p.core.Accept(ctx, in.BookingID, c.UserID)
	if err != nil {
		return errFrame(frame.Ack, string(dispatch.ToCoded(err).ErrCode), err.Error())
	}
	p.BroadcastDriverAssigned(b)
	return ackFrame(frame.Ack)
}

func (p *Plane) handleReject(ctx context.Context, c *Conn, frame Frame) Frame {
	var in bookingIDPayload
	if err := json.Unmarshal(frame.Payload, &in); err != nil {
		return errFrame(frame.Ack, "VALIDATION_ERROR", "bookingId is required")
	}
	b, err := p.core.Reject(ctx, in.BookingID, c.UserID, in.Reason)
	if err != nil {
		return errFrame(frame.Ack, string(dispatch.ToCoded(err).ErrCode), err.Error())
	}
	if p.engine != nil {
		if candidates, cerr := p.engine.Candidates(b.ID, b.Pickup.Location); cerr == nil {
			notif := dispatch.BuildNotification(b)
			for _, cand := range candidates {
				p.hub.Broadcast("user:"+cand.Driver.UserID, mustFrame("new_booking_available", notif))
			}
		}
	}
	return ackFrame(frame.Ack)
}

type driverStatusPayload struct {
	IsOnline    *bool `json:"isOnline,omitempty"`
	IsAvailable *bool `json:"isAvailable,omitempty"`
}

func (p *Plane) handleDriverStatus(c *Conn, frame Frame) Frame {
	var in driverStatusPayload
	if err := json.Unmarshal(frame.Payload, &in); err != nil {
		return errFrame(frame.Ack, "VALIDATION_ERROR", "invalid status payload")
	}
	p.hub.Broadcast("type:"+string(dispatch.RoleAdmin), mustFrame("driver_status_update", map[string]any{
		"driverId":    c.UserID,
		"isOnline":    in.IsOnline,
		"isAvailable": in.IsAvailable,
		"at":          time.Now(),
	}))
	return ackFrame(frame.Ack)
}

// BroadcastNewBooking notifies one candidate driver of a bookable trip.
func (p *Plane) BroadcastNewBooking(driverID string, notification dispatch.NotificationPayload) {
	p.hub.Broadcast("user:"+driverID, mustFrame("new_booking_available", notification))
}

// BroadcastDriverAssigned fans out driver_assigned to the three rooms
// §4.8 names: user:{customerId}, booking:{bookingId}, and the customer
// type room.
func (p *Plane) BroadcastDriverAssigned(b *dispatch.Booking) {
	evt := mustFrame("driver_assigned", b)
	p.hub.Broadcast("user:"+b.CustomerID, evt)
	p.hub.Broadcast("booking:"+b.ID, evt)
	p.hub.Broadcast("type:"+string(dispatch.RoleCustomer), evt)
}

// BroadcastBookingUpdate fans out booking_status_update to the same
// three-room set.
func (p *Plane) BroadcastBookingUpdate(b *dispatch.Booking) {
	evt := mustFrame("booking_status_update", b)
	p.hub.Broadcast("user:"+b.CustomerID, evt)
	p.hub.Broadcast("booking:"+b.ID, evt)
	p.hub.Broadcast("type:"+string(dispatch.RoleCustomer), evt)
}

func (p *Plane) send(c *Conn, event string, payload any) {
	select {
	case c.send <- mustFrame(event, payload):
	default:
	}
}

func mustFrame(event string, payload any) []byte {
	raw, err := json.Marshal(payload)
	if err != nil {
		raw = json.RawMessage("null")
	}
	out, _ := json.Marshal(Frame{Event: event, Payload: raw})
	return out
}

func ackFrame(ack string) Frame {
	return Frame{Event: "ack", Ack: ack}
}

func errFrame(ack, code, message string) Frame {
	return Frame{Event: "error", Ack: ack, Error: &ErrorPayload{Code: code, Message: message}}
}
