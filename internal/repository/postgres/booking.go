package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"vehicle-rental-backend/internal/domain"
	"vehicle-rental-backend/internal/logger"
	"vehicle-rental-backend/internal/repository"
)

const bookingColumns = `id, customer_id, vehicle_id, driver_id, pickup_at, return_at, pickup_location, return_location,
	base_price_cents, tax_cents, deposit_cents, total_price_cents,
	cleaning_fee_cents, damage_fee_cents, mileage_fee_cents, fuel_fee_cents,
	payment_status, payment_method, charge_id, status, license_verified, insurance_verified,
	review_rating, review_comment, reviewed_on,
	cancel_reason, refund_tier, refund_percent, refund_cents, policy_note, cancelled_by, cancelled_on,
	version, created_on, updated_on`

// The guard clause pins status and version, and optionally the driver row the decision was read from.
const guardedBookingUpdate = `UPDATE bookings SET
	driver_id=$1, status=$2, payment_status=$3, payment_method=$4, charge_id=$5,
	license_verified=$6, insurance_verified=$7, total_price_cents=$8,
	cleaning_fee_cents=$9, damage_fee_cents=$10, mileage_fee_cents=$11, fuel_fee_cents=$12,
	review_rating=$13, review_comment=$14, reviewed_on=$15,
	cancel_reason=$16, refund_tier=$17, refund_percent=$18, refund_cents=$19, policy_note=$20,
	cancelled_by=$21, cancelled_on=$22,
	version=version+1, updated_on=$23
	WHERE id=$24 AND status=$25 AND version=$26
	AND ($27::integer IS NULL OR EXISTS (SELECT 1 FROM drivers WHERE id=$27 AND version=$28))`

type bookingRepository struct {
	db *sql.DB
}

func NewBookingRepository(db *sql.DB) repository.BookingRepository {
	return &bookingRepository{db: db}
}

func (r *bookingRepository) Create(ctx context.Context, b *domain.Booking) error {
	query := `INSERT INTO bookings (customer_id, vehicle_id, driver_id, pickup_at, return_at, pickup_location, return_location,
	          base_price_cents, tax_cents, deposit_cents, total_price_cents, payment_status, payment_method, status,
	          license_verified, insurance_verified, version, created_on, updated_on)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, 1, $17, $17) RETURNING id`
	now := time.Now()
	logger.DatabaseCall("INSERT", "bookings", "customerID", b.CustomerID, "vehicleID", b.VehicleID)
	err := r.db.QueryRowContext(ctx, query,
		b.CustomerID, b.VehicleID, nullInt32(b.DriverID), b.PickupAt, b.ReturnAt, b.PickupLocation, b.ReturnLocation,
		b.BasePriceCents, b.TaxCents, b.DepositCents, b.TotalPriceCents, b.PaymentStatus, b.PaymentMethod, b.Status,
		b.LicenseVerified, b.InsuranceVerified, now,
	).Scan(&b.ID)
	logger.DatabaseResult("INSERT", 1, err, "bookingID", b.ID)
	if err != nil {
		return err
	}
	b.Version = 1
	b.CreatedAt, b.UpdatedAt = now, now
	return nil
}

func (r *bookingRepository) GetByID(ctx context.Context, id int32) (*domain.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = $1`
	b, err := scanBooking(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("booking %d: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	if b.CheckIn, err = r.loadCheckIn(ctx, id); err != nil {
		return nil, err
	}
	if b.CheckOut, err = r.loadCheckOut(ctx, id); err != nil {
		return nil, err
	}
	return b, nil
}

func (r *bookingRepository) loadCheckIn(ctx context.Context, bookingID int32) (*domain.CheckInRecord, error) {
	query := `SELECT mileage, fuel_level, notes, photo_refs, agent_id, checked_in_on FROM booking_check_ins WHERE booking_id = $1`
	ci := &domain.CheckInRecord{}
	err := r.db.QueryRowContext(ctx, query, bookingID).Scan(&ci.Mileage, &ci.FuelLevel, &ci.Notes, pq.Array(&ci.PhotoRefs), &ci.AgentID, &ci.CheckedInAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return ci, nil
}

func (r *bookingRepository) loadCheckOut(ctx context.Context, bookingID int32) (*domain.CheckOutRecord, error) {
	query := `SELECT mileage, fuel_level, miles_driven, unlimited_mileage, allowed_miles, overage_miles,
	          mileage_fee_cents, fuel_fee_cents, agent_id, checked_out_on FROM booking_check_outs WHERE booking_id = $1`
	co := &domain.CheckOutRecord{}
	err := r.db.QueryRowContext(ctx, query, bookingID).Scan(&co.Mileage, &co.FuelLevel, &co.MilesDriven, &co.UnlimitedMileage,
		&co.AllowedMiles, &co.OverageMiles, &co.MileageFeeCents, &co.FuelFeeCents, &co.AgentID, &co.CheckedOutAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return co, nil
}

func (r *bookingRepository) Update(ctx context.Context, b *domain.Booking, g repository.Guard) error {
	return guardedUpdate(ctx, r.db, b, g)
}

func (r *bookingRepository) SaveCheckIn(ctx context.Context, b *domain.Booking, g repository.Guard) error {
	if b.CheckIn == nil {
		return fmt.Errorf("booking %d: check-in record missing", b.ID)
	}
	ci := b.CheckIn

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := guardedUpdate(ctx, tx, b, g); err != nil {
		return err
	}

	logger.DatabaseCall("INSERT", "booking_check_ins", "bookingID", b.ID)
	_, err = tx.ExecContext(ctx,
		`INSERT INTO booking_check_ins (booking_id, mileage, fuel_level, notes, photo_refs, agent_id, checked_in_on)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		b.ID, ci.Mileage, ci.FuelLevel, ci.Notes, pq.Array(ci.PhotoRefs), ci.AgentID, ci.CheckedInAt)
	logger.DatabaseResult("INSERT", 1, err, "bookingID", b.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return &domain.AlreadyCheckedInError{BookingID: b.ID, Status: g.Status}
		}
		return err
	}

	if err := advanceVehicleMileage(ctx, tx, b.VehicleID, ci.Mileage); err != nil {
		return err
	}
	return tx.Commit()
}

func (r *bookingRepository) SaveCheckOut(ctx context.Context, b *domain.Booking, g repository.Guard) error {
	if b.CheckOut == nil {
		return fmt.Errorf("booking %d: check-out record missing", b.ID)
	}
	co := b.CheckOut

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := guardedUpdate(ctx, tx, b, g); err != nil {
		return err
	}

	logger.DatabaseCall("INSERT", "booking_check_outs", "bookingID", b.ID)
	_, err = tx.ExecContext(ctx,
		`INSERT INTO booking_check_outs (booking_id, mileage, fuel_level, miles_driven, unlimited_mileage, allowed_miles,
		 overage_miles, mileage_fee_cents, fuel_fee_cents, agent_id, checked_out_on)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		b.ID, co.Mileage, co.FuelLevel, co.MilesDriven, co.UnlimitedMileage, co.AllowedMiles,
		co.OverageMiles, co.MileageFeeCents, co.FuelFeeCents, co.AgentID, co.CheckedOutAt)
	logger.DatabaseResult("INSERT", 1, err, "bookingID", b.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return &domain.AlreadyCheckedOutError{BookingID: b.ID, Status: g.Status}
		}
		return err
	}

	if err := advanceVehicleMileage(ctx, tx, b.VehicleID, co.Mileage); err != nil {
		return err
	}
	return tx.Commit()
}

func (r *bookingRepository) ListByDriver(ctx context.Context, driverID int32) ([]domain.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE driver_id = $1 ORDER BY id`
	return r.list(ctx, query, driverID)
}

func (r *bookingRepository) ListByCustomer(ctx context.Context, customerID int32, status string, page, pageSize int32) ([]domain.Booking, int32, error) {
	where := ` FROM bookings WHERE customer_id = $1`
	args := []any{customerID}
	argIdx := 2
	if status != "" {
		where += " AND status = $2"
		args = append(args, status)
		argIdx++
	}

	var count int32
	if err := r.db.QueryRowContext(ctx, "SELECT count(*)"+where, args...).Scan(&count); err != nil {
		return nil, 0, err
	}

	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = repository.DefaultPageSize
	}
	query := "SELECT " + bookingColumns + where + fmt.Sprintf(" ORDER BY id LIMIT $%d OFFSET $%d", argIdx, argIdx+1)
	args = append(args, pageSize, (page-1)*pageSize)

	bookings, err := r.list(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	return bookings, count, nil
}

func (r *bookingRepository) ListPickupBefore(ctx context.Context, statuses []domain.BookingStatus, before time.Time) ([]domain.Booking, error) {
	names := make([]string, len(statuses))
	for i, s := range statuses {
		names[i] = string(s)
	}
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE status = ANY($1) AND pickup_at < $2 ORDER BY id`
	return r.list(ctx, query, pq.Array(names), before)
}

// list returns booking rows only; check-in and check-out records are loaded by GetByID.
func (r *bookingRepository) list(ctx context.Context, query string, args ...any) ([]domain.Booking, error) {
	logger.DatabaseCall("SELECT", "bookings")
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		logger.DatabaseResult("SELECT", 0, err)
		return nil, err
	}
	defer rows.Close()

	var bookings []domain.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		bookings = append(bookings, *b)
	}
	logger.DatabaseResult("SELECT", int64(len(bookings)), rows.Err())
	return bookings, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBooking(row rowScanner) (*domain.Booking, error) {
	var (
		b             domain.Booking
		driverID      sql.NullInt32
		reviewRating  sql.NullInt32
		reviewComment sql.NullString
		reviewedOn    sql.NullTime
		cancelReason  sql.NullString
		refundTier    sql.NullString
		refundPercent sql.NullInt32
		refundCents   sql.NullInt32
		policyNote    sql.NullString
		cancelledBy   sql.NullInt32
		cancelledOn   sql.NullTime
	)
	err := row.Scan(&b.ID, &b.CustomerID, &b.VehicleID, &driverID, &b.PickupAt, &b.ReturnAt, &b.PickupLocation, &b.ReturnLocation,
		&b.BasePriceCents, &b.TaxCents, &b.DepositCents, &b.TotalPriceCents,
		&b.ExtraCharges.CleaningFeeCents, &b.ExtraCharges.DamageFeeCents, &b.ExtraCharges.MileageFeeCents, &b.ExtraCharges.FuelFeeCents,
		&b.PaymentStatus, &b.PaymentMethod, &b.ChargeID, &b.Status, &b.LicenseVerified, &b.InsuranceVerified,
		&reviewRating, &reviewComment, &reviewedOn,
		&cancelReason, &refundTier, &refundPercent, &refundCents, &policyNote, &cancelledBy, &cancelledOn,
		&b.Version, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return nil, err
	}

	b.DriverID = int32Ptr(driverID)
	if reviewRating.Valid {
		b.Review = &domain.Review{Rating: reviewRating.Int32, Comment: reviewComment.String, CreatedAt: reviewedOn.Time}
	}
	if cancelledOn.Valid {
		b.Cancellation = &domain.CancellationRecord{
			Reason:        cancelReason.String,
			Tier:          domain.RefundTier(refundTier.String),
			RefundPercent: refundPercent.Int32,
			RefundCents:   refundCents.Int32,
			PolicyNote:    policyNote.String,
			CancelledBy:   cancelledBy.Int32,
			CancelledAt:   cancelledOn.Time,
		}
	}
	return &b, nil
}

func guardedUpdate(ctx context.Context, q querier, b *domain.Booking, g repository.Guard) error {
	var reviewRating, reviewComment, reviewedOn any
	if b.Review != nil {
		reviewRating, reviewComment, reviewedOn = b.Review.Rating, b.Review.Comment, b.Review.CreatedAt
	}
	var cancelReason, refundTier, refundPercent, refundCents, policyNote, cancelledBy, cancelledOn any
	if c := b.Cancellation; c != nil {
		cancelReason, refundTier, refundPercent, refundCents = c.Reason, string(c.Tier), c.RefundPercent, c.RefundCents
		policyNote, cancelledBy, cancelledOn = c.PolicyNote, c.CancelledBy, c.CancelledAt
	}

	now := time.Now()
	logger.DatabaseCall("UPDATE", "bookings", "bookingID", b.ID, "expectedStatus", g.Status, "expectedVersion", g.Version)
	res, err := q.ExecContext(ctx, guardedBookingUpdate,
		nullInt32(b.DriverID), b.Status, b.PaymentStatus, b.PaymentMethod, b.ChargeID,
		b.LicenseVerified, b.InsuranceVerified, b.TotalPriceCents,
		b.ExtraCharges.CleaningFeeCents, b.ExtraCharges.DamageFeeCents, b.ExtraCharges.MileageFeeCents, b.ExtraCharges.FuelFeeCents,
		reviewRating, reviewComment, reviewedOn,
		cancelReason, refundTier, refundPercent, refundCents, policyNote, cancelledBy, cancelledOn,
		now,
		b.ID, g.Status, g.Version,
		nullInt32(g.DriverID), g.DriverVersion,
	)
	if err != nil {
		logger.DatabaseResult("UPDATE", 0, err, "bookingID", b.ID)
		return err
	}
	n, err := res.RowsAffected()
	logger.DatabaseResult("UPDATE", n, err, "bookingID", b.ID)
	if err != nil {
		return err
	}
	if n == 0 {
		return &domain.ConcurrentModificationError{Resource: "booking", ID: b.ID}
	}

	b.Version = g.Version + 1
	b.UpdatedAt = now
	return nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
