package repository

import (
	"context"
	"time"

	"vehicle-rental-backend/internal/domain"
)

// Guard describes the row a write was computed from. A guarded write succeeds only if the
// stored row still matches; otherwise it fails with *domain.ConcurrentModificationError.
type Guard struct {
	Status  domain.BookingStatus
	Version int32
	// DriverVersion, when set, additionally pins the driver record the decision was based on.
	DriverID      *int32
	DriverVersion int32
}

// GuardOf captures the state of a booking as it was read.
func GuardOf(b *domain.Booking) Guard {
	return Guard{Status: b.Status, Version: b.Version}
}

// DefaultPageSize applies to list calls made with a page size below one.
const DefaultPageSize int32 = 20

type BookingRepository interface {
	Create(ctx context.Context, b *domain.Booking) error
	GetByID(ctx context.Context, id int32) (*domain.Booking, error)
	// Update persists every mutable column of b and bumps its version.
	Update(ctx context.Context, b *domain.Booking, g Guard) error
	// SaveCheckIn updates the booking, inserts its check-in record and advances the
	// vehicle's mileage in one unit of work.
	SaveCheckIn(ctx context.Context, b *domain.Booking, g Guard) error
	// SaveCheckOut is the check-out counterpart of SaveCheckIn.
	SaveCheckOut(ctx context.Context, b *domain.Booking, g Guard) error
	ListByDriver(ctx context.Context, driverID int32) ([]domain.Booking, error)
	ListByCustomer(ctx context.Context, customerID int32, status string, page, pageSize int32) ([]domain.Booking, int32, error)
	ListPickupBefore(ctx context.Context, statuses []domain.BookingStatus, before time.Time) ([]domain.Booking, error)
}

type DriverRepository interface {
	Create(ctx context.Context, d *domain.Driver) error
	GetByID(ctx context.Context, id int32) (*domain.Driver, error)
	// Update persists both document sub-records if the stored version equals expectedVersion.
	Update(ctx context.Context, d *domain.Driver, expectedVersion int32) error
	ListVerifiedExpiringBefore(ctx context.Context, t time.Time) ([]domain.Driver, error)
}

type VehicleRepository interface {
	GetByID(ctx context.Context, id int32) (*domain.Vehicle, error)
}
