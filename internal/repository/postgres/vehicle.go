package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"vehicle-rental-backend/internal/domain"
	"vehicle-rental-backend/internal/logger"
	"vehicle-rental-backend/internal/repository"
)

type vehicleRepository struct {
	db *sql.DB
}

func NewVehicleRepository(db *sql.DB) repository.VehicleRepository {
	return &vehicleRepository{db: db}
}

func (r *vehicleRepository) GetByID(ctx context.Context, id int32) (*domain.Vehicle, error) {
	v := &domain.Vehicle{}
	query := `SELECT id, current_mileage, daily_rate_cents, deposit_cents, unlimited_mileage, daily_mileage_allowance, extra_mile_rate_cents
	          FROM vehicles WHERE id = $1`
	err := r.db.QueryRowContext(ctx, query, id).Scan(&v.ID, &v.CurrentMileage, &v.DailyRateCents, &v.DepositCents,
		&v.UnlimitedMileage, &v.DailyMileageAllowance, &v.ExtraMileRateCents)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("vehicle %d: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return v, nil
}

// advanceVehicleMileage locks the vehicle row and moves its odometer forward, never back.
func advanceVehicleMileage(ctx context.Context, q querier, vehicleID, mileage int32) error {
	var current int32
	err := q.QueryRowContext(ctx, `SELECT current_mileage FROM vehicles WHERE id = $1 FOR UPDATE`, vehicleID).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("vehicle %d: %w", vehicleID, domain.ErrNotFound)
	}
	if err != nil {
		return err
	}
	if mileage < current {
		return &domain.InvalidMileageError{Mileage: mileage, Minimum: current}
	}

	logger.DatabaseCall("UPDATE", "vehicles", "vehicleID", vehicleID, "mileage", mileage)
	_, err = q.ExecContext(ctx, `UPDATE vehicles SET current_mileage = $1, updated_on = now() WHERE id = $2`, mileage, vehicleID)
	logger.DatabaseResult("UPDATE", 1, err, "vehicleID", vehicleID)
	return err
}
