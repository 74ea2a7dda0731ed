package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"vehicle-rental-backend/internal/domain"
	"vehicle-rental-backend/internal/repository"
)

// Store keeps bookings, drivers and vehicles in process memory.
// This is for local runs and tests without PostgreSQL; it applies the same
// guarded-write rules as the postgres store.
type Store struct {
	mu          sync.Mutex
	bookings    map[int32]*domain.Booking
	drivers     map[int32]*domain.Driver
	vehicles    map[int32]*domain.Vehicle
	nextBooking int32
	nextDriver  int32

	BookingRepo repository.BookingRepository
	DriverRepo  repository.DriverRepository
	VehicleRepo repository.VehicleRepository
}

// NewStore creates an empty in-memory store
func NewStore() *Store {
	s := &Store{
		bookings: make(map[int32]*domain.Booking),
		drivers:  make(map[int32]*domain.Driver),
		vehicles: make(map[int32]*domain.Vehicle),
	}
	s.BookingRepo = &bookingRepository{s: s}
	s.DriverRepo = &driverRepository{s: s}
	s.VehicleRepo = &vehicleRepository{s: s}
	return s
}

// NewSeededStore creates a store whose vehicle registry holds vehicles.
func NewSeededStore(vehicles []domain.Vehicle) *Store {
	s := NewStore()
	for i := range vehicles {
		s.PutVehicle(&vehicles[i])
	}
	return s
}

// PutVehicle registers or replaces a vehicle. The vehicle registry is owned elsewhere,
// so this is how it is seeded.
func (s *Store) PutVehicle(v *domain.Vehicle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *v
	s.vehicles[v.ID] = &c
}

func (s *Store) checkGuard(b *domain.Booking, g repository.Guard) error {
	cur, ok := s.bookings[b.ID]
	if !ok {
		return fmt.Errorf("booking %d: %w", b.ID, domain.ErrNotFound)
	}
	if cur.Status != g.Status || cur.Version != g.Version {
		return &domain.ConcurrentModificationError{Resource: "booking", ID: b.ID}
	}
	if g.DriverID != nil {
		d, ok := s.drivers[*g.DriverID]
		if !ok || d.Version != g.DriverVersion {
			return &domain.ConcurrentModificationError{Resource: "driver", ID: *g.DriverID}
		}
	}
	return nil
}

func (s *Store) commit(b *domain.Booking) {
	b.Version++
	b.UpdatedAt = time.Now()
	s.bookings[b.ID] = b.Clone()
}

type bookingRepository struct {
	s *Store
}

func (r *bookingRepository) Create(ctx context.Context, b *domain.Booking) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	r.s.nextBooking++
	b.ID = r.s.nextBooking
	b.Version = 1
	now := time.Now()
	b.CreatedAt, b.UpdatedAt = now, now
	r.s.bookings[b.ID] = b.Clone()
	return nil
}

func (r *bookingRepository) GetByID(ctx context.Context, id int32) (*domain.Booking, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	b, ok := r.s.bookings[id]
	if !ok {
		return nil, fmt.Errorf("booking %d: %w", id, domain.ErrNotFound)
	}
	return b.Clone(), nil
}

func (r *bookingRepository) Update(ctx context.Context, b *domain.Booking, g repository.Guard) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if err := r.s.checkGuard(b, g); err != nil {
		return err
	}
	r.s.commit(b)
	return nil
}

func (r *bookingRepository) SaveCheckIn(ctx context.Context, b *domain.Booking, g repository.Guard) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if err := r.s.checkGuard(b, g); err != nil {
		return err
	}
	if r.s.bookings[b.ID].CheckIn != nil {
		return &domain.AlreadyCheckedInError{BookingID: b.ID, Status: r.s.bookings[b.ID].Status}
	}
	if b.CheckIn == nil {
		return fmt.Errorf("booking %d: check-in record missing", b.ID)
	}
	if err := r.s.advanceMileage(b.VehicleID, b.CheckIn.Mileage); err != nil {
		return err
	}
	r.s.commit(b)
	return nil
}

func (r *bookingRepository) SaveCheckOut(ctx context.Context, b *domain.Booking, g repository.Guard) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if err := r.s.checkGuard(b, g); err != nil {
		return err
	}
	if r.s.bookings[b.ID].CheckOut != nil {
		return &domain.AlreadyCheckedOutError{BookingID: b.ID, Status: r.s.bookings[b.ID].Status}
	}
	if b.CheckOut == nil {
		return fmt.Errorf("booking %d: check-out record missing", b.ID)
	}
	if err := r.s.advanceMileage(b.VehicleID, b.CheckOut.Mileage); err != nil {
		return err
	}
	r.s.commit(b)
	return nil
}

func (r *bookingRepository) ListByDriver(ctx context.Context, driverID int32) ([]domain.Booking, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var out []domain.Booking
	for _, b := range r.s.bookings {
		if b.DriverID != nil && *b.DriverID == driverID {
			out = append(out, *b.Clone())
		}
	}
	sortBookings(out)
	return out, nil
}

func (r *bookingRepository) ListByCustomer(ctx context.Context, customerID int32, status string, page, pageSize int32) ([]domain.Booking, int32, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var all []domain.Booking
	for _, b := range r.s.bookings {
		if b.CustomerID != customerID {
			continue
		}
		if status != "" && string(b.Status) != status {
			continue
		}
		all = append(all, *b.Clone())
	}
	sortBookings(all)

	total := int32(len(all))
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = repository.DefaultPageSize
	}
	start := (page - 1) * pageSize
	if start >= total {
		return nil, total, nil
	}
	end := start + pageSize
	if end > total {
		end = total
	}
	return all[start:end], total, nil
}

func (r *bookingRepository) ListPickupBefore(ctx context.Context, statuses []domain.BookingStatus, before time.Time) ([]domain.Booking, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	wanted := make(map[domain.BookingStatus]bool, len(statuses))
	for _, st := range statuses {
		wanted[st] = true
	}
	var out []domain.Booking
	for _, b := range r.s.bookings {
		if wanted[b.Status] && b.PickupAt.Before(before) {
			out = append(out, *b.Clone())
		}
	}
	sortBookings(out)
	return out, nil
}

func sortBookings(bs []domain.Booking) {
	sort.Slice(bs, func(i, j int) bool { return bs[i].ID < bs[j].ID })
}

type driverRepository struct {
	s *Store
}

func (r *driverRepository) Create(ctx context.Context, d *domain.Driver) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	r.s.nextDriver++
	d.ID = r.s.nextDriver
	d.Version = 1
	now := time.Now()
	d.CreatedAt, d.UpdatedAt = now, now
	r.s.drivers[d.ID] = d.Clone()
	return nil
}

func (r *driverRepository) GetByID(ctx context.Context, id int32) (*domain.Driver, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	d, ok := r.s.drivers[id]
	if !ok {
		return nil, fmt.Errorf("driver %d: %w", id, domain.ErrNotFound)
	}
	return d.Clone(), nil
}

func (r *driverRepository) Update(ctx context.Context, d *domain.Driver, expectedVersion int32) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	cur, ok := r.s.drivers[d.ID]
	if !ok {
		return fmt.Errorf("driver %d: %w", d.ID, domain.ErrNotFound)
	}
	if cur.Version != expectedVersion {
		return &domain.ConcurrentModificationError{Resource: "driver", ID: d.ID}
	}
	d.Version = expectedVersion + 1
	d.UpdatedAt = time.Now()
	r.s.drivers[d.ID] = d.Clone()
	return nil
}

func (r *driverRepository) ListVerifiedExpiringBefore(ctx context.Context, t time.Time) ([]domain.Driver, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var out []domain.Driver
	for _, d := range r.s.drivers {
		lic := d.License.Verified && d.License.ExpiresOn != nil && d.License.ExpiresOn.Before(t)
		ins := d.Insurance.Verified && d.Insurance.ExpiresOn != nil && d.Insurance.ExpiresOn.Before(t)
		if lic || ins {
			out = append(out, *d.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

type vehicleRepository struct {
	s *Store
}

func (r *vehicleRepository) GetByID(ctx context.Context, id int32) (*domain.Vehicle, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	v, ok := r.s.vehicles[id]
	if !ok {
		return nil, fmt.Errorf("vehicle %d: %w", id, domain.ErrNotFound)
	}
	c := *v
	return &c, nil
}

// advanceMileage must be called with mu held.
func (s *Store) advanceMileage(vehicleID, mileage int32) error {
	v, ok := s.vehicles[vehicleID]
	if !ok {
		return fmt.Errorf("vehicle %d: %w", vehicleID, domain.ErrNotFound)
	}
	if mileage < v.CurrentMileage {
		return &domain.InvalidMileageError{Mileage: mileage, Minimum: v.CurrentMileage}
	}
	v.CurrentMileage = mileage
	return nil
}
