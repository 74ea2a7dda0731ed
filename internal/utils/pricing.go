package utils

import (
	"errors"
	"fmt"
	"math"
	"time"

	"vehicle-rental-backend/internal/domain"
)

const hoursPerDay = 24

// ErrAmountOverflow is returned when a charge does not fit the int32 cents columns.
var ErrAmountOverflow = errors.New("amount exceeds the maximum billable cents")

// BookingPrice is the commercial snapshot taken when a booking is created.
// All later calculations use these figures, not live vehicle rates.
type BookingPrice struct {
	Days         int32
	BaseCents    int32
	TaxCents     int32
	DepositCents int32
	TotalCents   int32
}

// MileagePolicy is the part of a vehicle's terms that governs overage billing.
type MileagePolicy struct {
	Unlimited          bool
	DailyAllowance     int32
	ExtraMileRateCents int32
}

func MileagePolicyOf(v *domain.Vehicle) MileagePolicy {
	return MileagePolicy{
		Unlimited:          v.UnlimitedMileage,
		DailyAllowance:     v.DailyMileageAllowance,
		ExtraMileRateCents: v.ExtraMileRateCents,
	}
}

// CheckoutCharges is the fee breakdown produced at vehicle return.
type CheckoutCharges struct {
	MilesDriven     int32
	Unlimited       bool
	AllowedMiles    int32
	OverageMiles    int32
	MileageFeeCents int32
	ShortfallLevels int32
	FuelFeeCents    int32
}

func (c CheckoutCharges) TotalCents() int32 {
	return c.MileageFeeCents + c.FuelFeeCents
}

// RentalDays counts started 24 hour periods between pickup and return, minimum one.
func RentalDays(pickup, ret time.Time) (int32, error) {
	if !ret.After(pickup) {
		return 0, fmt.Errorf("return date must be after pickup date")
	}
	d := ret.Sub(pickup)
	days := int32(d / (hoursPerDay * time.Hour))
	if d%(hoursPerDay*time.Hour) > 0 {
		days++
	}
	if days < 1 {
		days = 1
	}
	return days, nil
}

// CalculateBookingPrice prices a rental from the vehicle's daily rate. Tax is expressed in
// basis points of the base price and is rounded half up to the cent.
func CalculateBookingPrice(pickup, ret time.Time, v *domain.Vehicle, taxBasisPoints int32) (BookingPrice, error) {
	days, err := RentalDays(pickup, ret)
	if err != nil {
		return BookingPrice{}, err
	}
	if v.DailyRateCents < 0 || taxBasisPoints < 0 {
		return BookingPrice{}, fmt.Errorf("rates must not be negative")
	}

	base := int64(days) * int64(v.DailyRateCents)
	tax := (base*int64(taxBasisPoints) + 5000) / 10000
	total := base + tax
	if total > math.MaxInt32 {
		return BookingPrice{}, fmt.Errorf("booking total: %w", ErrAmountOverflow)
	}

	return BookingPrice{
		Days:         days,
		BaseCents:    int32(base),
		TaxCents:     int32(tax),
		DepositCents: v.DepositCents,
		TotalCents:   int32(total),
	}, nil
}

// CalculateCheckoutCharges computes mileage overage and refuel fees. Fuel is billed
// independently of the mileage policy, so unlimited-mileage rentals still pay for a low tank.
func CalculateCheckoutCharges(startMileage, endMileage int32, checkInFuel, checkOutFuel domain.FuelLevel, rentalDays int32, policy MileagePolicy, refuelPerLevelCents int32) (CheckoutCharges, error) {
	if endMileage < startMileage {
		return CheckoutCharges{}, &domain.InvalidMileageError{Mileage: endMileage, Minimum: startMileage}
	}

	c := CheckoutCharges{
		MilesDriven: endMileage - startMileage,
		Unlimited:   policy.Unlimited,
	}

	if !policy.Unlimited {
		// An allowance beyond the int32 range can never be exceeded.
		c.AllowedMiles = int32(min(int64(policy.DailyAllowance)*int64(rentalDays), math.MaxInt32))
		if c.MilesDriven > c.AllowedMiles {
			c.OverageMiles = c.MilesDriven - c.AllowedMiles
		}
		fee := int64(c.OverageMiles) * int64(policy.ExtraMileRateCents)
		if fee > math.MaxInt32 {
			return CheckoutCharges{}, fmt.Errorf("mileage fee: %w", ErrAmountOverflow)
		}
		c.MileageFeeCents = int32(fee)
	}

	c.ShortfallLevels = domain.ShortfallLevels(checkInFuel, checkOutFuel)
	fuel := int64(c.ShortfallLevels) * int64(refuelPerLevelCents)
	if fuel > math.MaxInt32 {
		return CheckoutCharges{}, fmt.Errorf("fuel fee: %w", ErrAmountOverflow)
	}
	c.FuelFeeCents = int32(fuel)

	if _, err := AddCents(c.MileageFeeCents, c.FuelFeeCents); err != nil {
		return CheckoutCharges{}, fmt.Errorf("checkout charges: %w", err)
	}

	return c, nil
}

// AddCents adds two non-negative amounts, failing instead of wrapping.
func AddCents(a, b int32) (int32, error) {
	sum := int64(a) + int64(b)
	if sum > math.MaxInt32 || sum < math.MinInt32 {
		return 0, ErrAmountOverflow
	}
	return int32(sum), nil
}
