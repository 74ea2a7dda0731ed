package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"vehicle-rental-backend/internal/domain"
	"vehicle-rental-backend/internal/logger"
	"vehicle-rental-backend/internal/repository"
)

const driverColumns = `id, user_id, name,
	license_number, license_authority, license_expires_on, license_file_ref,
	license_verified, license_verified_by, license_verified_on, license_rejection_reason,
	insurance_provider, insurance_policy_number, insurance_expires_on, insurance_file_ref,
	insurance_verified, insurance_verified_by, insurance_verified_on, insurance_rejection_reason,
	version, created_on, updated_on`

type driverRepository struct {
	db *sql.DB
}

func NewDriverRepository(db *sql.DB) repository.DriverRepository {
	return &driverRepository{db: db}
}

func (r *driverRepository) Create(ctx context.Context, d *domain.Driver) error {
	now := time.Now()
	query := `INSERT INTO drivers (user_id, name, version, created_on, updated_on) VALUES ($1, $2, 1, $3, $3) RETURNING id`
	logger.DatabaseCall("INSERT", "drivers", "userID", d.UserID)
	err := r.db.QueryRowContext(ctx, query, d.UserID, d.Name, now).Scan(&d.ID)
	logger.DatabaseResult("INSERT", 1, err, "driverID", d.ID)
	if err != nil {
		return err
	}
	d.Version = 1
	d.CreatedAt, d.UpdatedAt = now, now
	return nil
}

func (r *driverRepository) GetByID(ctx context.Context, id int32) (*domain.Driver, error) {
	d, err := scanDriver(r.db.QueryRowContext(ctx, `SELECT `+driverColumns+` FROM drivers WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("driver %d: %w", id, domain.ErrNotFound)
	}
	return d, err
}

func (r *driverRepository) Update(ctx context.Context, d *domain.Driver, expectedVersion int32) error {
	query := `UPDATE drivers SET
	          license_number=$1, license_authority=$2, license_expires_on=$3, license_file_ref=$4,
	          license_verified=$5, license_verified_by=$6, license_verified_on=$7, license_rejection_reason=$8,
	          insurance_provider=$9, insurance_policy_number=$10, insurance_expires_on=$11, insurance_file_ref=$12,
	          insurance_verified=$13, insurance_verified_by=$14, insurance_verified_on=$15, insurance_rejection_reason=$16,
	          version=version+1, updated_on=$17
	          WHERE id=$18 AND version=$19`
	lic, ins := d.License, d.Insurance
	now := time.Now()

	logger.DatabaseCall("UPDATE", "drivers", "driverID", d.ID, "expectedVersion", expectedVersion)
	res, err := r.db.ExecContext(ctx, query,
		lic.Number, lic.IssuingAuthority, nullTime(lic.ExpiresOn), lic.FileRef,
		lic.Verified, nullInt32(lic.VerifiedBy), nullTime(lic.VerifiedAt), lic.RejectionReason,
		ins.Provider, ins.PolicyNumber, nullTime(ins.ExpiresOn), ins.FileRef,
		ins.Verified, nullInt32(ins.VerifiedBy), nullTime(ins.VerifiedAt), ins.RejectionReason,
		now, d.ID, expectedVersion)
	if err != nil {
		logger.DatabaseResult("UPDATE", 0, err, "driverID", d.ID)
		return err
	}
	n, err := res.RowsAffected()
	logger.DatabaseResult("UPDATE", n, err, "driverID", d.ID)
	if err != nil {
		return err
	}
	if n == 0 {
		return &domain.ConcurrentModificationError{Resource: "driver", ID: d.ID}
	}
	d.Version = expectedVersion + 1
	d.UpdatedAt = now
	return nil
}

func (r *driverRepository) ListVerifiedExpiringBefore(ctx context.Context, t time.Time) ([]domain.Driver, error) {
	query := `SELECT ` + driverColumns + ` FROM drivers
	          WHERE (license_verified AND license_expires_on < $1) OR (insurance_verified AND insurance_expires_on < $1)
	          ORDER BY id`
	logger.DatabaseCall("SELECT", "drivers", "before", t)
	rows, err := r.db.QueryContext(ctx, query, t)
	if err != nil {
		logger.DatabaseResult("SELECT", 0, err)
		return nil, err
	}
	defer rows.Close()

	var drivers []domain.Driver
	for rows.Next() {
		d, err := scanDriver(rows)
		if err != nil {
			return nil, err
		}
		drivers = append(drivers, *d)
	}
	logger.DatabaseResult("SELECT", int64(len(drivers)), rows.Err())
	return drivers, rows.Err()
}

func scanDriver(row rowScanner) (*domain.Driver, error) {
	var (
		d                          domain.Driver
		licExpires, insExpires     sql.NullTime
		licVerifiedOn, insVerified sql.NullTime
		licVerifiedBy, insBy       sql.NullInt32
	)
	err := row.Scan(&d.ID, &d.UserID, &d.Name,
		&d.License.Number, &d.License.IssuingAuthority, &licExpires, &d.License.FileRef,
		&d.License.Verified, &licVerifiedBy, &licVerifiedOn, &d.License.RejectionReason,
		&d.Insurance.Provider, &d.Insurance.PolicyNumber, &insExpires, &d.Insurance.FileRef,
		&d.Insurance.Verified, &insBy, &insVerified, &d.Insurance.RejectionReason,
		&d.Version, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return nil, err
	}
	d.License.ExpiresOn = timePtr(licExpires)
	d.License.VerifiedBy = int32Ptr(licVerifiedBy)
	d.License.VerifiedAt = timePtr(licVerifiedOn)
	d.Insurance.ExpiresOn = timePtr(insExpires)
	d.Insurance.VerifiedBy = int32Ptr(insBy)
	d.Insurance.VerifiedAt = timePtr(insVerified)
	return &d, nil
}
