package service

import (
	"context"
	"errors"

	"vehicle-rental-backend/internal/domain"
	"vehicle-rental-backend/internal/logger"
	"vehicle-rental-backend/internal/repository"
	"vehicle-rental-backend/internal/utils"
)

// CheckIn records the hand-off of the vehicle. The booking record, the check-in
// record and the vehicle odometer are written together.
func (s *bookingService) CheckIn(ctx context.Context, actor domain.Actor, bookingID int32, in CheckInInput) (*domain.Booking, error) {
	logger.EnterMethod("bookingService.CheckIn", "bookingID", bookingID, "agentID", actor.ID)

	if !actor.Is(domain.RoleAgent, domain.RoleAdmin) {
		return nil, domain.ErrUnauthorized
	}

	b, err := s.bookingRepo.GetByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if b.CheckIn != nil {
		return nil, &domain.AlreadyCheckedInError{BookingID: b.ID, Status: b.Status}
	}
	if b.Status != domain.BookingStatusConfirmed {
		return nil, &domain.InvalidStateError{Operation: "check in", Status: b.Status}
	}

	now := s.now()
	opens := b.PickupAt.Add(-s.policy.CheckInLead)
	if now.Before(opens) || now.After(b.ReturnAt) {
		return nil, &domain.OutOfWindowError{Now: now, Opens: opens, Closes: b.ReturnAt, Status: b.Status}
	}

	fuel, err := domain.ParseFuelLevel(in.FuelLevel)
	if err != nil {
		return nil, err
	}
	if err := validateStruct(in); err != nil {
		return nil, err
	}

	vehicle, err := s.vehicleRepo.GetByID(ctx, b.VehicleID)
	if err != nil {
		return nil, err
	}
	minimum := vehicle.CurrentMileage
	if minimum < 0 {
		minimum = 0
	}
	if in.Mileage < minimum {
		return nil, &domain.InvalidMileageError{Mileage: in.Mileage, Minimum: minimum}
	}

	g := repository.GuardOf(b)
	b.CheckIn = &domain.CheckInRecord{
		Mileage:     in.Mileage,
		FuelLevel:   fuel,
		Notes:       in.Notes,
		PhotoRefs:   append([]string(nil), in.PhotoRefs...),
		AgentID:     actor.ID,
		CheckedInAt: now,
	}
	if err := s.transition(b, domain.BookingStatusActive); err != nil {
		return nil, err
	}
	if err := s.bookingRepo.SaveCheckIn(ctx, b, g); err != nil {
		logger.ExitMethodWithError("bookingService.CheckIn", err, "bookingID", bookingID)
		return nil, err
	}
	s.publish(ctx, b, g.Status, actor, "vehicle handed over")

	logger.ExitMethod("bookingService.CheckIn", "bookingID", bookingID, "mileage", in.Mileage)
	return b, nil
}

// CheckOut records the return of the vehicle, bills mileage overage and refuelling,
// and completes the booking.
func (s *bookingService) CheckOut(ctx context.Context, actor domain.Actor, bookingID int32, in CheckOutInput) (*domain.Booking, error) {
	logger.EnterMethod("bookingService.CheckOut", "bookingID", bookingID, "agentID", actor.ID)

	if !actor.Is(domain.RoleAgent, domain.RoleAdmin) {
		return nil, domain.ErrUnauthorized
	}

	b, err := s.bookingRepo.GetByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if b.CheckOut != nil {
		return nil, &domain.AlreadyCheckedOutError{BookingID: b.ID, Status: b.Status}
	}
	if b.CheckIn == nil {
		return nil, &domain.NoCheckInRecordError{BookingID: b.ID, Status: b.Status}
	}
	if b.Status != domain.BookingStatusActive {
		return nil, &domain.InvalidStateError{Operation: "check out", Status: b.Status}
	}

	fuel, err := domain.ParseFuelLevel(in.FuelLevel)
	if err != nil {
		return nil, err
	}

	vehicle, err := s.vehicleRepo.GetByID(ctx, b.VehicleID)
	if err != nil {
		return nil, err
	}
	minimum := b.CheckIn.Mileage
	if vehicle.CurrentMileage > minimum {
		minimum = vehicle.CurrentMileage
	}
	if in.Mileage < minimum {
		return nil, &domain.InvalidMileageError{Mileage: in.Mileage, Minimum: minimum}
	}

	days, err := utils.RentalDays(b.PickupAt, b.ReturnAt)
	if err != nil {
		return nil, err
	}
	charges, err := utils.CalculateCheckoutCharges(b.CheckIn.Mileage, in.Mileage, b.CheckIn.FuelLevel, fuel, days,
		utils.MileagePolicyOf(vehicle), s.policy.RefuelChargePerLevelCents)
	if err != nil {
		return nil, chargeError(err)
	}
	mileageFee, err := utils.AddCents(b.ExtraCharges.MileageFeeCents, charges.MileageFeeCents)
	if err != nil {
		return nil, chargeError(err)
	}
	fuelFee, err := utils.AddCents(b.ExtraCharges.FuelFeeCents, charges.FuelFeeCents)
	if err != nil {
		return nil, chargeError(err)
	}
	total, err := utils.AddCents(b.TotalPriceCents, charges.TotalCents())
	if err != nil {
		return nil, chargeError(err)
	}

	now := s.now()
	g := repository.GuardOf(b)
	b.CheckOut = &domain.CheckOutRecord{
		Mileage:          in.Mileage,
		FuelLevel:        fuel,
		MilesDriven:      charges.MilesDriven,
		UnlimitedMileage: charges.Unlimited,
		AllowedMiles:     charges.AllowedMiles,
		OverageMiles:     charges.OverageMiles,
		MileageFeeCents:  charges.MileageFeeCents,
		FuelFeeCents:     charges.FuelFeeCents,
		AgentID:          actor.ID,
		CheckedOutAt:     now,
	}
	b.ExtraCharges.MileageFeeCents = mileageFee
	b.ExtraCharges.FuelFeeCents = fuelFee
	b.TotalPriceCents = total
	if err := s.transition(b, domain.BookingStatusCompleted); err != nil {
		return nil, err
	}
	if err := s.bookingRepo.SaveCheckOut(ctx, b, g); err != nil {
		logger.ExitMethodWithError("bookingService.CheckOut", err, "bookingID", bookingID)
		return nil, err
	}
	s.publish(ctx, b, g.Status, actor, "vehicle returned")

	logger.ExitMethod("bookingService.CheckOut", "bookingID", bookingID,
		"mileageFeeCents", charges.MileageFeeCents, "fuelFeeCents", charges.FuelFeeCents)
	return b, nil
}

// chargeError reports an unbillable amount against the mileage the agent entered.
func chargeError(err error) error {
	if errors.Is(err, utils.ErrAmountOverflow) {
		return &domain.ValidationError{Fields: []domain.FieldError{{Field: "mileage", Message: err.Error()}}}
	}
	return err
}
