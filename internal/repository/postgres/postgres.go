package postgres

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/lib/pq"

	"vehicle-rental-backend/internal/repository"
)

// Store groups the PostgreSQL-backed repositories over one connection pool.
type Store struct {
	db *sql.DB
	repository.BookingRepository
	repository.DriverRepository
	repository.VehicleRepository
}

func NewStore(db *sql.DB) *Store {
	return &Store{
		db:                db,
		BookingRepository: NewBookingRepository(db),
		DriverRepository:  NewDriverRepository(db),
		VehicleRepository: NewVehicleRepository(db),
	}
}

// Open connects with the lib/pq driver and checks the connection.
func Open(ctx context.Context, dsn string, maxOpen, maxIdle int) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if maxOpen > 0 {
		db.SetMaxOpenConns(maxOpen)
	}
	if maxIdle > 0 {
		db.SetMaxIdleConns(maxIdle)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// Ping backs the gRPC health status.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Close() error {
	return s.db.Close()
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func nullInt32(p *int32) any {
	if p == nil {
		return nil
	}
	return *p
}

func int32Ptr(n sql.NullInt32) *int32 {
	if !n.Valid {
		return nil
	}
	v := n.Int32
	return &v
}

func timePtr(n sql.NullTime) *time.Time {
	if !n.Valid {
		return nil
	}
	v := n.Time
	return &v
}

func nullTime(p *time.Time) any {
	if p == nil {
		return nil
	}
	return *p
}
