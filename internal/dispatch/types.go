// Package dispatch implements the booking state machine, driver
// eligibility pipeline, work-slot scheduler, and fare engine at the
// heart of the delivery-dispatch core.
package dispatch

import (
	"encoding/json"
	"time"
)

// IdentityRole distinguishes the three user types the platform serves.
type IdentityRole string

const (
	RoleCustomer IdentityRole = "customer"
	RoleDriver   IdentityRole = "driver"
	RoleAdmin    IdentityRole = "admin"
)

// AdminPermission gates specific admin actions beyond role membership.
type AdminPermission string

const (
	PermissionVerifyDocuments AdminPermission = "verify_documents"
	PermissionManageBookings  AdminPermission = "manage_bookings"
	PermissionSuperAdmin      AdminPermission = "super_admin"
)

// Identity is the resolved subject of an authenticated request or session.
type Identity struct {
	UserID      string            `json:"userId"`
	UserType    IdentityRole      `json:"userType"`
	Phone       string            `json:"phone,omitempty"`
	Permissions []AdminPermission `json:"permissions,omitempty"`
}

// Coordinate is a WGS-84 point.
type Coordinate struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Address is a delivery endpoint: a named contact at a located address.
type Address struct {
	Name         string     `json:"name"`
	Phone        string     `json:"phone"`
	Address      string     `json:"address"`
	Location     Coordinate `json:"location"`
	Instructions string     `json:"instructions,omitempty"`
}

// DocumentKind enumerates the required driver document kinds (I3).
type DocumentKind string

const (
	DocDrivingLicense DocumentKind = "drivingLicense"
	DocAadhaarCard    DocumentKind = "aadhaarCard"
	DocBikeInsurance  DocumentKind = "bikeInsurance"
	DocRCBook         DocumentKind = "rcBook"
	DocProfilePhoto   DocumentKind = "profilePhoto"
)

// RequiredDocumentKinds is the fixed set of documents I3 requires.
var RequiredDocumentKinds = []DocumentKind{
	DocDrivingLicense, DocAadhaarCard, DocBikeInsurance, DocRCBook, DocProfilePhoto,
}

// DocumentStatus is the per-document verification state.
type DocumentStatus string

const (
	DocStatusPending  DocumentStatus = "pending"
	DocStatusVerified DocumentStatus = "verified"
	DocStatusRejected DocumentStatus = "rejected"
)

// DocumentRecord is one driver document: a storage URL, an upload
// timestamp, and an admin-assigned verification status.
type DocumentRecord struct {
	URL        string         `json:"url"`
	UploadedAt time.Time      `json:"uploadedAt"`
	Status     DocumentStatus `json:"status"`
}

// VerificationStatus is the derived, overall driver eligibility state (C3).
type VerificationStatus string

const (
	VerificationNotUploaded VerificationStatus = "not_uploaded"
	VerificationPending     VerificationStatus = "pending_verification"
	VerificationRejected    VerificationStatus = "rejected"
	VerificationVerified    VerificationStatus = "verified"
	VerificationApproved    VerificationStatus = "approved"
)

// IsEligible reports whether a status counts as verified for dispatch
// eligibility purposes (verified and admin-approved are equivalent — see
// the Open Questions resolution in SPEC_FULL.md §9).
func (v VerificationStatus) IsEligible() bool {
	return v == VerificationVerified || v == VerificationApproved
}

// User is a platform account. Identity is keyed by (phone, userType);
// see DeriveUserID. Drivers carry the additional fields below;
// customers/admins leave them zero-valued.
type User struct {
	UserID   string       `json:"userId"`
	Phone    string       `json:"phone"`
	UserType IdentityRole `json:"userType"`
	Name     string       `json:"name,omitempty"`
	Active   bool         `json:"active"`

	// Driver-only fields.
	Documents          map[DocumentKind]DocumentRecord `json:"documents,omitempty"`
	VerificationStatus VerificationStatus               `json:"verificationStatus,omitempty"`
	IsVerified         bool                              `json:"isVerified"`
	IsOnline           bool                              `json:"isOnline"`
	IsAvailable        bool                              `json:"isAvailable"`
	CurrentLocation    *Coordinate                       `json:"currentLocation,omitempty"`
	CurrentBookingID   string                            `json:"currentBookingId,omitempty"`
	Rating             float64                           `json:"rating,omitempty"`
	TripCount          int64                             `json:"tripCount,omitempty"`
	VehicleNumber      string                            `json:"vehicleNumber,omitempty"`
	LastSeen           time.Time                         `json:"lastSeen,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// DriverSummary is the denormalized driver block embedded in
// booking-related wire events (§4.8): name, phone, vehicle number, rating.
type DriverSummary struct {
	DriverID      string  `json:"driverId"`
	Name          string  `json:"name"`
	Phone         string  `json:"phone"`
	VehicleNumber string  `json:"vehicleNumber"`
	Rating        float64 `json:"rating"`
}

// BookingStatus is the lifecycle state machine (§4.6).
type BookingStatus string

const (
	StatusPending        BookingStatus = "pending"
	StatusConfirmed      BookingStatus = "confirmed"
	StatusDriverAssigned BookingStatus = "driver_assigned"
	StatusDriverEnroute  BookingStatus = "driver_enroute"
	StatusDriverArrived  BookingStatus = "driver_arrived"
	StatusPickedUp       BookingStatus = "picked_up"
	StatusInTransit      BookingStatus = "in_transit"
	StatusAtDropoff      BookingStatus = "at_dropoff"
	StatusDelivered      BookingStatus = "delivered"
	StatusCancelled      BookingStatus = "cancelled"
)

// OccupiedStatuses is the set of booking states that occupy a driver (glossary).
var OccupiedStatuses = map[BookingStatus]bool{
	StatusDriverAssigned: true,
	StatusDriverEnroute:  true,
	StatusDriverArrived:  true,
	StatusPickedUp:       true,
	StatusInTransit:      true,
	StatusAtDropoff:      true,
}

// statusOrder gives each pre-delivery state a position so transitions
// can be checked for forward-only movement in the booking core's status update.
var statusOrder = map[BookingStatus]int{
	StatusPending:        0,
	StatusConfirmed:      1,
	StatusDriverAssigned: 2,
	StatusDriverEnroute:  3,
	StatusDriverArrived:  4,
	StatusPickedUp:       5,
	StatusInTransit:      6,
	StatusAtDropoff:      7,
	StatusDelivered:      8,
}

// CanTransition reports whether from -> to is a legal forward step or a
// cancellation from a pre-pickup state.
func CanTransition(from, to BookingStatus) bool {
	if to == StatusCancelled {
		return from == StatusPending || from == StatusConfirmed || from == StatusDriverAssigned
	}
	fo, fok := statusOrder[from]
	toPos, tok := statusOrder[to]
	if !fok || !tok {
		return false
	}
	return toPos == fo+1
}

// VehicleType enumerates supported delivery vehicles (§4.5: only 2_wheeler).
type VehicleType string

const TwoWheeler VehicleType = "2_wheeler"

// Package describes the parcel being carried.
type Package struct {
	WeightKG    float64 `json:"weightKg"`
	Description string  `json:"description,omitempty"`
	Fragile     bool    `json:"fragile,omitempty"`
}

// FareBreakdown is the persisted, auditable fare computation (§4.5).
type FareBreakdown struct {
	BaseFare         float64 `json:"baseFare"`
	DistanceKM       float64 `json:"distanceKm"`
	PerKMRate        float64 `json:"perKmRate"`
	Subtotal         float64 `json:"subtotal"`
	WeightMultiplier float64 `json:"weightMultiplier"`
	SurgeMultiplier  float64 `json:"surgeMultiplier"`
	Total            float64 `json:"total"`
	Currency         string  `json:"currency"`
}

// PaymentMethod enumerates supported payment rails (external gateway out of scope).
type PaymentMethod string

const (
	PaymentCash   PaymentMethod = "cash"
	PaymentOnline PaymentMethod = "online"
)

// PaymentStatus tracks the payment lifecycle, owned by the out-of-scope gateway.
type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentPaid     PaymentStatus = "paid"
	PaymentRefunded PaymentStatus = "refunded"
)

// Payment is the payment method/status pair attached to a booking.
type Payment struct {
	Method PaymentMethod `json:"method"`
	Status PaymentStatus `json:"status"`
}

// Timing carries the stamped lifecycle timestamps for a booking.
type Timing struct {
	CreatedAt   time.Time  `json:"createdAt"`
	ConfirmedAt *time.Time `json:"confirmedAt,omitempty"`
	AssignedAt  *time.Time `json:"assignedAt,omitempty"`
	EnrouteAt   *time.Time `json:"enrouteAt,omitempty"`
	ArrivedAt   *time.Time `json:"arrivedAt,omitempty"`
	PickedUpAt  *time.Time `json:"pickedUpAt,omitempty"`
	InTransitAt *time.Time `json:"inTransitAt,omitempty"`
	AtDropoffAt *time.Time `json:"atDropoffAt,omitempty"`
	DeliveredAt *time.Time `json:"deliveredAt,omitempty"`
}

// CancellationRecord captures who/why/when a booking was cancelled and
// the refund that resulted (§4.6).
type CancellationRecord struct {
	CancelledBy  string    `json:"cancelledBy,omitempty"`
	Reason       string    `json:"reason,omitempty"`
	CancelledAt  time.Time `json:"cancelledAt,omitempty"`
	RefundAmount float64   `json:"refundAmount,omitempty"`
}

// RatingRecord is the post-trip rating attached to a booking.
type RatingRecord struct {
	Stars             int          `json:"stars,omitempty"`
	Comment           string       `json:"comment,omitempty"`
	RaterRole         IdentityRole `json:"raterRole,omitempty"`
	RequiresAttention bool         `json:"requiresAttention,omitempty"`
}

// Booking is the central entity the whole core protects (I1/I2).
type Booking struct {
	ID           string             `json:"id"`
	CustomerID   string             `json:"customerId"`
	DriverID     string             `json:"driverId,omitempty"`
	Status       BookingStatus      `json:"status"`
	Pickup       Address            `json:"pickup"`
	Dropoff      Address            `json:"dropoff"`
	Package      Package            `json:"package"`
	VehicleType  VehicleType        `json:"vehicleType"`
	Fare         FareBreakdown      `json:"fare"`
	Payment      Payment            `json:"payment"`
	Timing       Timing             `json:"timing"`
	DistanceKM   float64            `json:"distanceKm"`
	Cancellation CancellationRecord `json:"cancellation,omitempty"`
	Rating       RatingRecord       `json:"rating,omitempty"`
	Driver       *DriverSummary     `json:"driver,omitempty"`
	CreatedAt    time.Time          `json:"createdAt"`
	UpdatedAt    time.Time          `json:"updatedAt"`
}

// HasDriver normalizes driverId per §9: nil/empty/whitespace/"0"/"false"
// all mean "no driver assigned".
func (b *Booking) HasDriver() bool {
	return NormalizeDriverID(b.DriverID) != ""
}

// BookingLock is the advisory exclusive lease described in §4.1.
type BookingLock struct {
	BookingID  string    `json:"bookingId"`
	DriverID   string    `json:"driverId"`
	AcquiredAt time.Time `json:"acquiredAt"`
}

// WorkSlotStatus is the lifecycle of a single 2-hour driver work block.
type WorkSlotStatus string

const (
	SlotAvailable WorkSlotStatus = "available"
	SlotBooked    WorkSlotStatus = "booked"
	SlotCompleted WorkSlotStatus = "completed"
)

// WorkSlot is one of the eight fixed daily blocks a driver may select (C5).
type WorkSlot struct {
	ID         string         `json:"id"`
	DriverID   string         `json:"driverId"`
	Date       string         `json:"date"` // YYYY-MM-DD
	StartHour  int            `json:"startHour"`
	Label      string         `json:"label"`
	StartTime  time.Time      `json:"startTime"`
	EndTime    time.Time      `json:"endTime"`
	Status     WorkSlotStatus `json:"status"`
	IsSelected bool           `json:"isSelected"`
	CustomerID string         `json:"customerId,omitempty"`
}

// SlotHours are the fixed start hours §4.4 specifies (local time).
var SlotHours = []int{7, 9, 11, 13, 15, 17, 19, 21}

// DriverLocation is the latest known position of an online driver (C1).
type DriverLocation struct {
	DriverID      string     `json:"driverId"`
	Coordinate    Coordinate `json:"coordinate"`
	Timestamp     time.Time  `json:"timestamp"`
	Accuracy      float64    `json:"accuracy,omitempty"`
	Speed         float64    `json:"speed,omitempty"`
	Bearing       float64    `json:"bearing,omitempty"`
	CurrentTripID string     `json:"currentTripId,omitempty"`
}

// RejectionRecord excludes a driver from rediscovery of a booking (§4.7, P2).
type RejectionRecord struct {
	BookingID  string    `json:"bookingId"`
	DriverID   string    `json:"driverId"`
	Reason     string    `json:"reason,omitempty"`
	RejectedAt time.Time `json:"rejectedAt"`
}

// StatusUpdateRecord mirrors a booking status transition into the
// parallel tracking collection (`booking_status_updates`).
type StatusUpdateRecord struct {
	BookingID string        `json:"bookingId"`
	Status    BookingStatus `json:"status"`
	At        time.Time     `json:"at"`
	ActorID   string        `json:"actorId,omitempty"`
	ActorRole IdentityRole  `json:"actorRole,omitempty"`
}

// NormalizeDriverID applies the §9 normalization: nil/""/whitespace/"0"/
// "false" all mean "no driver assigned". Writers must never persist an
// empty string: they either write a trimmed non-empty id or clear the field.
func NormalizeDriverID(raw string) string {
	trimmed := trimSpace(raw)
	switch trimmed {
	case "", "0", "false", "null", "undefined":
		return ""
	default:
		return trimmed
	}
}

func trimSpace(s string) string {
	start, end := 0, len(s)
	for start < end && isSpace(s[start]) {
		start++
	}
	for end > start && isSpace(s[end-1]) {
		end--
	}
	return s[start:end]
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r'
}

// MarshalDocuments snake_cases document keys for persistence, per §9's
// "writers standardize on snake_case going forward" rule.
func MarshalDocuments(docs map[DocumentKind]DocumentRecord) (json.RawMessage, error) {
	out := make(map[string]DocumentRecord, len(docs))
	for k, v := range docs {
		out[toSnakeCase(string(k))] = v
	}
	return json.Marshal(out)
}

func toSnakeCase(camel string) string {
	var out []byte
	for i := 0; i < len(camel); i++ {
		c := camel[i]
		if c >= 'A' && c <= 'Z' {
			if i > 0 {
				out = append(out, '_')
			}
			out = append(out, c-'A'+'a')
		} else {
			out = append(out, c)
		}
	}
	return string(out)
}
