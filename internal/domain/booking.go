package domain

import "time"

type BookingStatus string

const (
	BookingStatusPending             BookingStatus = "pending"
	BookingStatusLicenseRequired     BookingStatus = "license_required"
	BookingStatusVerificationPending BookingStatus = "verification_pending"
	BookingStatusPaymentPending      BookingStatus = "payment_pending"
	BookingStatusConfirmed           BookingStatus = "confirmed"
	BookingStatusActive              BookingStatus = "active"
	BookingStatusCompleted           BookingStatus = "completed"
	BookingStatusCancelled           BookingStatus = "cancelled"
)

// bookingTransitions is the single authority on which status may follow which.
var bookingTransitions = map[BookingStatus]map[BookingStatus]bool{
	BookingStatusPending: {
		BookingStatusConfirmed: true,
		BookingStatusCancelled: true,
	},
	BookingStatusLicenseRequired: {
		BookingStatusVerificationPending: true,
		BookingStatusCancelled:           true,
	},
	BookingStatusVerificationPending: {
		BookingStatusPaymentPending: true,
		BookingStatusCancelled:      true,
	},
	BookingStatusPaymentPending: {
		BookingStatusConfirmed: true,
		BookingStatusCancelled: true,
	},
	BookingStatusConfirmed: {
		BookingStatusActive:    true,
		BookingStatusCancelled: true,
	},
	BookingStatusActive: {
		BookingStatusCompleted: true,
	},
	BookingStatusCompleted: {},
	BookingStatusCancelled: {},
}

func ParseBookingStatus(s string) (BookingStatus, error) {
	st := BookingStatus(s)
	if _, ok := bookingTransitions[st]; !ok {
		return "", &ValidationError{Fields: []FieldError{{Field: "status", Message: "unknown booking status " + s}}}
	}
	return st, nil
}

func (s BookingStatus) CanTransitionTo(next BookingStatus) bool {
	return bookingTransitions[s][next]
}

func (s BookingStatus) IsTerminal() bool {
	return len(bookingTransitions[s]) == 0
}

func (s BookingStatus) IsCancellable() bool {
	return s.CanTransitionTo(BookingStatusCancelled)
}

// PreConfirmationStatuses are the statuses a booking sits in before money has changed hands.
var PreConfirmationStatuses = []BookingStatus{
	BookingStatusPending,
	BookingStatusLicenseRequired,
	BookingStatusVerificationPending,
	BookingStatusPaymentPending,
}

type PaymentStatus string

const (
	PaymentStatusUnpaid PaymentStatus = "unpaid"
	PaymentStatusPaid   PaymentStatus = "paid"
)

type ExtraCharges struct {
	CleaningFeeCents int32 `json:"cleaning_fee_cents"`
	DamageFeeCents   int32 `json:"damage_fee_cents"`
	MileageFeeCents  int32 `json:"mileage_fee_cents"`
	FuelFeeCents     int32 `json:"fuel_fee_cents"`
}

func (e ExtraCharges) TotalCents() int32 {
	return e.CleaningFeeCents + e.DamageFeeCents + e.MileageFeeCents + e.FuelFeeCents
}

type Booking struct {
	ID             int32     `json:"id"`
	CustomerID     int32     `json:"customer_id"`
	VehicleID      int32     `json:"vehicle_id"`
	DriverID       *int32    `json:"driver_id,omitempty"`
	PickupAt       time.Time `json:"pickup_at"`
	ReturnAt       time.Time `json:"return_at"`
	PickupLocation string    `json:"pickup_location"`
	ReturnLocation string    `json:"return_location"`

	BasePriceCents  int32         `json:"base_price_cents"`
	TaxCents        int32         `json:"tax_cents"`
	DepositCents    int32         `json:"deposit_cents"`
	TotalPriceCents int32         `json:"total_price_cents"`
	ExtraCharges    ExtraCharges  `json:"extra_charges"`
	PaymentStatus   PaymentStatus `json:"payment_status"`
	PaymentMethod   string        `json:"payment_method"`
	ChargeID        string        `json:"charge_id,omitempty"`

	Status BookingStatus `json:"status"`

	// Verification snapshot, copied from the driver whenever the booking consults the ledger.
	LicenseVerified   bool `json:"license_verified"`
	InsuranceVerified bool `json:"insurance_verified"`

	CheckIn      *CheckInRecord      `json:"check_in,omitempty"`
	CheckOut     *CheckOutRecord     `json:"check_out,omitempty"`
	Review       *Review             `json:"review,omitempty"`
	Cancellation *CancellationRecord `json:"cancellation,omitempty"`

	Version   int32     `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Clone returns a deep copy so callers can mutate a booking without touching a shared instance.
func (b *Booking) Clone() *Booking {
	if b == nil {
		return nil
	}
	c := *b
	if b.DriverID != nil {
		id := *b.DriverID
		c.DriverID = &id
	}
	if b.CheckIn != nil {
		ci := *b.CheckIn
		ci.PhotoRefs = append([]string(nil), b.CheckIn.PhotoRefs...)
		c.CheckIn = &ci
	}
	if b.CheckOut != nil {
		co := *b.CheckOut
		c.CheckOut = &co
	}
	if b.Review != nil {
		r := *b.Review
		c.Review = &r
	}
	if b.Cancellation != nil {
		cr := *b.Cancellation
		c.Cancellation = &cr
	}
	return &c
}

type Review struct {
	Rating    int32     `json:"rating"`
	Comment   string    `json:"comment"`
	CreatedAt time.Time `json:"created_at"`
}

type CancellationRecord struct {
	Reason        string     `json:"reason"`
	Tier          RefundTier `json:"tier"`
	RefundPercent int32      `json:"refund_percent"`
	RefundCents   int32      `json:"refund_cents"`
	PolicyNote    string     `json:"policy_note"`
	CancelledBy   int32      `json:"cancelled_by"`
	CancelledAt   time.Time  `json:"cancelled_at"`
}
