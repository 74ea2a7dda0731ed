package service

import (
	"context"
	"time"

	"vehicle-rental-backend/internal/domain"
)

// Every mutating operation takes the acting identity explicitly and returns the
// booking or driver as stored after the write.

type BookingService interface {
	CreateBooking(ctx context.Context, actor domain.Actor, in NewBooking) (*domain.Booking, error)
	GetBooking(ctx context.Context, actor domain.Actor, bookingID int32) (*domain.Booking, error)
	ListMyBookings(ctx context.Context, actor domain.Actor, status string, page, pageSize int32) ([]domain.Booking, int32, error)
	AttachDriver(ctx context.Context, actor domain.Actor, bookingID, driverID int32) (*domain.Booking, error)
	AdvanceOnDocuments(ctx context.Context, bookingID int32) (*domain.Booking, error)
	AdvanceOnVerification(ctx context.Context, bookingID int32) (*domain.Booking, error)
	RecordPayment(ctx context.Context, actor domain.Actor, bookingID int32, in PaymentInput) (*domain.Booking, error)
	CollectPayment(ctx context.Context, actor domain.Actor, bookingID int32, method string) (*domain.Booking, error)
	QuoteCancellation(ctx context.Context, actor domain.Actor, bookingID int32) (*domain.CancellationDecision, error)
	RequestCancellation(ctx context.Context, actor domain.Actor, bookingID int32, reason string) (*domain.Booking, error)
	CheckIn(ctx context.Context, actor domain.Actor, bookingID int32, in CheckInInput) (*domain.Booking, error)
	CheckOut(ctx context.Context, actor domain.Actor, bookingID int32, in CheckOutInput) (*domain.Booking, error)
	LeaveReview(ctx context.Context, actor domain.Actor, bookingID int32, in ReviewInput) (*domain.Booking, error)
	DocumentObserver
}

type VerificationService interface {
	RegisterDriver(ctx context.Context, actor domain.Actor, name string) (*domain.Driver, error)
	GetDriver(ctx context.Context, actor domain.Actor, driverID int32) (*domain.Driver, error)
	SubmitDocument(ctx context.Context, actor domain.Actor, driverID int32, docType domain.DocumentType, fields domain.DocumentFields) (*domain.Driver, error)
	Verify(ctx context.Context, actor domain.Actor, driverID int32, docType domain.DocumentType) (*domain.Driver, error)
	Reject(ctx context.Context, actor domain.Actor, driverID int32, docType domain.DocumentType, reason string) (*domain.Driver, error)
	IsFullyVerified(ctx context.Context, driverID int32) (bool, error)
}

// DocumentObserver is told whenever a driver's documents change so dependent bookings can advance.
type DocumentObserver interface {
	DriverDocumentsChanged(ctx context.Context, driverID int32)
}

// PaymentGateway is the payment processor seen from the core: an opaque charge that
// either succeeded or did not.
type PaymentGateway interface {
	ChargeCustomer(ctx context.Context, req ChargeRequest) (*ChargeResult, error)
}

type ChargeRequest struct {
	BookingID      int32
	CustomerID     int32
	AmountCents    int32
	Method         string
	IdempotencyKey string
}

type ChargeResult struct {
	ChargeID      string
	AmountCents   int32
	Succeeded     bool
	DeclineReason string
}

// EventPublisher receives lifecycle events after the state change is committed.
// Implementations must not block the caller on delivery.
type EventPublisher interface {
	Publish(ctx context.Context, event domain.BookingEvent) error
}

type NewBooking struct {
	CustomerID     int32     `json:"customer_id"`
	VehicleID      int32     `json:"vehicle_id" validate:"required,gt=0"`
	DriverID       *int32    `json:"driver_id,omitempty" validate:"omitempty,gt=0"`
	PickupAt       time.Time `json:"pickup_at" validate:"required"`
	ReturnAt       time.Time `json:"return_at" validate:"required,gtfield=PickupAt"`
	PickupLocation string    `json:"pickup_location" validate:"required,max=255"`
	ReturnLocation string    `json:"return_location" validate:"omitempty,max=255"`
}

type PaymentInput struct {
	AmountCents int32  `json:"amount_cents" validate:"gte=0"`
	ChargeID    string `json:"charge_id" validate:"required,max=128"`
	Method      string `json:"method" validate:"omitempty,max=32"`
}

type CheckInInput struct {
	Mileage   int32    `json:"mileage"`
	FuelLevel string   `json:"fuel_level"`
	Notes     string   `json:"notes" validate:"max=2000"`
	PhotoRefs []string `json:"photo_refs" validate:"max=20,dive,required,max=512"`
}

type CheckOutInput struct {
	Mileage   int32  `json:"mileage"`
	FuelLevel string `json:"fuel_level"`
}

type ReviewInput struct {
	Rating  int32  `json:"rating" validate:"gte=1,lte=5"`
	Comment string `json:"comment" validate:"max=2000"`
}

type options struct {
	now func() time.Time
}

// Option customises a service at construction.
type Option func(*options)

// WithClock replaces time.Now, mainly for tests around time windows.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

func buildOptions(opts []Option) options {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
