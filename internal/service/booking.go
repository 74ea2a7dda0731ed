package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"vehicle-rental-backend/internal/config"
	"vehicle-rental-backend/internal/domain"
	"vehicle-rental-backend/internal/logger"
	"vehicle-rental-backend/internal/repository"
	"vehicle-rental-backend/internal/utils"
)

// BookingPolicy holds the commercial rules the booking service applies.
type BookingPolicy struct {
	PaymentToleranceCents     int32
	CheckInLead               time.Duration
	RefuelChargePerLevelCents int32
	TaxBasisPoints            int32
	Cancellation              utils.CancellationPolicy
}

func DefaultBookingPolicy() BookingPolicy {
	return BookingPolicy{
		PaymentToleranceCents:     1,
		CheckInLead:               time.Hour,
		RefuelChargePerLevelCents: 1500,
		Cancellation:              utils.DefaultCancellationPolicy(),
	}
}

// PolicyFromConfig converts the validated booking section of the config file.
func PolicyFromConfig(c config.BookingConfig) BookingPolicy {
	return BookingPolicy{
		PaymentToleranceCents:     c.PaymentToleranceCents,
		CheckInLead:               c.CheckInLead(),
		RefuelChargePerLevelCents: c.RefuelChargePerLevelCents,
		TaxBasisPoints:            c.TaxBasisPoints,
		Cancellation: utils.CancellationPolicy{
			FullRefundAfter:      time.Duration(c.FullRefundHours) * time.Hour,
			PartialRefundAfter:   time.Duration(c.PartialRefundHours) * time.Hour,
			PartialRefundPercent: c.PartialRefundPercent,
		},
	}
}

type bookingService struct {
	bookingRepo repository.BookingRepository
	driverRepo  repository.DriverRepository
	vehicleRepo repository.VehicleRepository
	payments    PaymentGateway
	events      EventPublisher
	policy      BookingPolicy
	now         func() time.Time
}

// NewBookingService wires the booking state machine. payments and events may be nil:
// without a gateway CollectPayment is unavailable, without a publisher no events are sent.
func NewBookingService(
	bookingRepo repository.BookingRepository,
	driverRepo repository.DriverRepository,
	vehicleRepo repository.VehicleRepository,
	payments PaymentGateway,
	events EventPublisher,
	policy BookingPolicy,
	opts ...Option,
) BookingService {
	o := buildOptions(opts)
	return &bookingService{
		bookingRepo: bookingRepo,
		driverRepo:  driverRepo,
		vehicleRepo: vehicleRepo,
		payments:    payments,
		events:      events,
		policy:      policy,
		now:         o.now,
	}
}

func (s *bookingService) CreateBooking(ctx context.Context, actor domain.Actor, in NewBooking) (*domain.Booking, error) {
	logger.EnterMethod("bookingService.CreateBooking", "actorID", actor.ID, "vehicleID", in.VehicleID)

	if actor.Is(domain.RoleCustomer) {
		in.CustomerID = actor.ID
	} else if !actor.Is(domain.RoleAdmin) {
		return nil, domain.ErrUnauthorized
	}
	if err := validateStruct(in); err != nil {
		return nil, err
	}
	if in.CustomerID <= 0 {
		return nil, &domain.ValidationError{Fields: []domain.FieldError{{Field: "customer_id", Message: "is required"}}}
	}
	if !in.PickupAt.After(s.now()) {
		return nil, &domain.ValidationError{Fields: []domain.FieldError{{Field: "pickup_at", Message: "must be in the future"}}}
	}
	if in.ReturnLocation == "" {
		in.ReturnLocation = in.PickupLocation
	}

	vehicle, err := s.vehicleRepo.GetByID(ctx, in.VehicleID)
	if err != nil {
		logger.ExitMethodWithError("bookingService.CreateBooking", err)
		return nil, err
	}
	price, err := utils.CalculateBookingPrice(in.PickupAt, in.ReturnAt, vehicle, s.policy.TaxBasisPoints)
	if err != nil {
		return nil, &domain.ValidationError{Fields: []domain.FieldError{{Field: "return_at", Message: err.Error()}}}
	}

	b := &domain.Booking{
		CustomerID:      in.CustomerID,
		VehicleID:       in.VehicleID,
		PickupAt:        in.PickupAt,
		ReturnAt:        in.ReturnAt,
		PickupLocation:  in.PickupLocation,
		ReturnLocation:  in.ReturnLocation,
		BasePriceCents:  price.BaseCents,
		TaxCents:        price.TaxCents,
		DepositCents:    price.DepositCents,
		TotalPriceCents: price.TotalCents,
		PaymentStatus:   domain.PaymentStatusUnpaid,
		Status:          domain.BookingStatusLicenseRequired,
	}

	if in.DriverID != nil {
		driver, err := s.ownedDriver(ctx, actor, in.CustomerID, *in.DriverID)
		if err != nil {
			return nil, err
		}
		id := driver.ID
		b.DriverID = &id
		b.LicenseVerified = driver.License.Verified
		b.InsuranceVerified = driver.Insurance.Verified
		// A driver named up front goes straight to payment; documents are only chased
		// for bookings that start without one.
		b.Status = domain.BookingStatusPending
	}

	if err := s.bookingRepo.Create(ctx, b); err != nil {
		logger.ExitMethodWithError("bookingService.CreateBooking", err)
		return nil, err
	}
	s.publish(ctx, b, "", actor, "booking created")

	logger.ExitMethod("bookingService.CreateBooking", "bookingID", b.ID, "status", b.Status)
	return b, nil
}

func (s *bookingService) GetBooking(ctx context.Context, actor domain.Actor, bookingID int32) (*domain.Booking, error) {
	b, err := s.bookingRepo.GetByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if actor.Is(domain.RoleCustomer) && b.CustomerID != actor.ID {
		return nil, domain.ErrUnauthorized
	}
	return b, nil
}

func (s *bookingService) ListMyBookings(ctx context.Context, actor domain.Actor, status string, page, pageSize int32) ([]domain.Booking, int32, error) {
	if status != "" {
		if _, err := domain.ParseBookingStatus(status); err != nil {
			return nil, 0, err
		}
	}
	return s.bookingRepo.ListByCustomer(ctx, actor.ID, status, page, pageSize)
}

func (s *bookingService) AttachDriver(ctx context.Context, actor domain.Actor, bookingID, driverID int32) (*domain.Booking, error) {
	logger.EnterMethod("bookingService.AttachDriver", "bookingID", bookingID, "driverID", driverID)

	b, err := s.bookingRepo.GetByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if err := authorizeOwnerOrStaff(actor, b); err != nil {
		return nil, err
	}
	if b.Status != domain.BookingStatusLicenseRequired || b.DriverID != nil {
		return nil, &domain.InvalidStateError{Operation: "attach a driver to", Status: b.Status}
	}
	driver, err := s.ownedDriver(ctx, actor, b.CustomerID, driverID)
	if err != nil {
		return nil, err
	}

	g := repository.GuardOf(b)
	b.DriverID = &driver.ID
	b.LicenseVerified = driver.License.Verified
	b.InsuranceVerified = driver.Insurance.Verified
	if err := s.bookingRepo.Update(ctx, b, g); err != nil {
		logger.ExitMethodWithError("bookingService.AttachDriver", err)
		return nil, err
	}

	logger.ExitMethod("bookingService.AttachDriver")
	return s.AdvanceOnDocuments(ctx, b.ID)
}

// AdvanceOnDocuments moves a license_required booking forward once its driver has
// submitted both documents, then lets AdvanceOnVerification take over. Safe to repeat.
func (s *bookingService) AdvanceOnDocuments(ctx context.Context, bookingID int32) (*domain.Booking, error) {
	b, err := s.bookingRepo.GetByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	switch b.Status {
	case domain.BookingStatusVerificationPending:
		return s.AdvanceOnVerification(ctx, bookingID)
	case domain.BookingStatusLicenseRequired:
	default:
		return b, nil
	}
	if b.DriverID == nil {
		return b, nil
	}

	driver, err := s.driverRepo.GetByID(ctx, *b.DriverID)
	if err != nil {
		return nil, err
	}
	if !driver.FullySubmitted() {
		return b, nil
	}

	g := driverGuard(b, driver)
	b.LicenseVerified = driver.License.Verified
	b.InsuranceVerified = driver.Insurance.Verified
	if err := s.transition(b, domain.BookingStatusVerificationPending); err != nil {
		return nil, err
	}
	if err := s.bookingRepo.Update(ctx, b, g); err != nil {
		logger.WithBooking(b.ID).Warn("advance on documents failed", "error", err)
		return nil, err
	}
	s.publish(ctx, b, g.Status, domain.SystemActor, "driver documents submitted")

	return s.AdvanceOnVerification(ctx, bookingID)
}

// AdvanceOnVerification refreshes the verification snapshot and moves a
// verification_pending booking to payment_pending when both documents are verified.
// The write is pinned to the driver version it read, so a concurrent rejection
// fails it instead of letting it advance on stale flags.
func (s *bookingService) AdvanceOnVerification(ctx context.Context, bookingID int32) (*domain.Booking, error) {
	b, err := s.bookingRepo.GetByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if b.Status != domain.BookingStatusVerificationPending || b.DriverID == nil {
		return b, nil
	}

	driver, err := s.driverRepo.GetByID(ctx, *b.DriverID)
	if err != nil {
		return nil, err
	}

	lic, ins := driver.License.Verified, driver.Insurance.Verified
	advance := driver.FullyVerified()
	if !advance && b.LicenseVerified == lic && b.InsuranceVerified == ins {
		return b, nil
	}

	g := driverGuard(b, driver)
	b.LicenseVerified, b.InsuranceVerified = lic, ins
	if advance {
		if err := s.transition(b, domain.BookingStatusPaymentPending); err != nil {
			return nil, err
		}
	}
	if err := s.bookingRepo.Update(ctx, b, g); err != nil {
		logger.WithBooking(b.ID).Warn("advance on verification failed", "error", err)
		return nil, err
	}
	if advance {
		s.publish(ctx, b, g.Status, domain.SystemActor, "driver documents verified")
	}
	return b, nil
}

// DriverDocumentsChanged re-evaluates every open booking of the driver.
func (s *bookingService) DriverDocumentsChanged(ctx context.Context, driverID int32) {
	bookings, err := s.bookingRepo.ListByDriver(ctx, driverID)
	if err != nil {
		logger.Error("failed to list bookings for driver", "driverID", driverID, "error", err)
		return
	}
	for _, b := range bookings {
		if b.Status != domain.BookingStatusLicenseRequired && b.Status != domain.BookingStatusVerificationPending {
			continue
		}
		if _, err := s.AdvanceOnDocuments(ctx, b.ID); err != nil {
			logger.WithBooking(b.ID).Warn("failed to advance booking after document change", "driverID", driverID, "error", err)
		}
	}
}

func (s *bookingService) RecordPayment(ctx context.Context, actor domain.Actor, bookingID int32, in PaymentInput) (*domain.Booking, error) {
	if !actor.IsStaff() {
		return nil, domain.ErrUnauthorized
	}
	if err := validateStruct(in); err != nil {
		return nil, err
	}
	return s.recordPayment(ctx, actor, bookingID, in)
}

func (s *bookingService) recordPayment(ctx context.Context, actor domain.Actor, bookingID int32, in PaymentInput) (*domain.Booking, error) {
	logger.EnterMethod("bookingService.recordPayment", "bookingID", bookingID, "amountCents", in.AmountCents)

	b, err := s.bookingRepo.GetByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if !payable(b) {
		return nil, &domain.InvalidStateError{Operation: "record payment for", Status: b.Status}
	}
	if diff := int64(in.AmountCents) - int64(b.TotalPriceCents); diff > int64(s.policy.PaymentToleranceCents) || -diff > int64(s.policy.PaymentToleranceCents) {
		return nil, &domain.PaymentMismatchError{ExpectedCents: b.TotalPriceCents, ChargedCents: in.AmountCents}
	}

	g := repository.GuardOf(b)
	b.PaymentStatus = domain.PaymentStatusPaid
	b.ChargeID = in.ChargeID
	b.PaymentMethod = in.Method
	if err := s.transition(b, domain.BookingStatusConfirmed); err != nil {
		return nil, err
	}
	if err := s.bookingRepo.Update(ctx, b, g); err != nil {
		logger.ExitMethodWithError("bookingService.recordPayment", err, "bookingID", bookingID)
		return nil, err
	}
	s.publish(ctx, b, g.Status, actor, "payment received")

	logger.ExitMethod("bookingService.recordPayment", "bookingID", bookingID)
	return b, nil
}

// CollectPayment charges the customer through the gateway, then records the payment.
// The charge runs before any write; a decline leaves the booking untouched.
func (s *bookingService) CollectPayment(ctx context.Context, actor domain.Actor, bookingID int32, method string) (*domain.Booking, error) {
	if s.payments == nil {
		return nil, errors.New("payment gateway not configured")
	}

	b, err := s.bookingRepo.GetByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if err := authorizeOwnerOrStaff(actor, b); err != nil {
		return nil, err
	}
	if !payable(b) {
		return nil, &domain.InvalidStateError{Operation: "pay for", Status: b.Status}
	}

	req := ChargeRequest{
		BookingID:      b.ID,
		CustomerID:     b.CustomerID,
		AmountCents:    b.TotalPriceCents,
		Method:         method,
		IdempotencyKey: fmt.Sprintf("booking-%d-v%d-%s", b.ID, b.Version, uuid.NewString()),
	}
	logger.ExternalServiceCall("payments", "ChargeCustomer", "bookingID", b.ID, "amountCents", req.AmountCents)
	res, err := s.payments.ChargeCustomer(ctx, req)
	logger.ExternalServiceResult("payments", "ChargeCustomer", err, "bookingID", b.ID)
	if err != nil {
		return nil, fmt.Errorf("charge booking %d: %w", b.ID, err)
	}
	if !res.Succeeded {
		return nil, &domain.PaymentDeclinedError{Reason: res.DeclineReason}
	}

	paid, err := s.recordPayment(ctx, actor, b.ID, PaymentInput{AmountCents: res.AmountCents, ChargeID: res.ChargeID, Method: method})
	if err != nil {
		// TODO: refund the captured charge once PaymentGateway exposes refunds.
		logger.WithBooking(b.ID).Error("charge captured but payment not recorded", "chargeID", res.ChargeID, "error", err)
		return nil, err
	}
	return paid, nil
}

func (s *bookingService) QuoteCancellation(ctx context.Context, actor domain.Actor, bookingID int32) (*domain.CancellationDecision, error) {
	b, err := s.bookingRepo.GetByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if err := authorizeOwnerOrStaff(actor, b); err != nil {
		return nil, err
	}
	if !b.Status.IsCancellable() {
		return nil, &domain.InvalidStateError{Operation: "cancel", Status: b.Status}
	}
	d := s.policy.Cancellation.Evaluate(s.now(), b.PickupAt)
	return &d, nil
}

func (s *bookingService) RequestCancellation(ctx context.Context, actor domain.Actor, bookingID int32, reason string) (*domain.Booking, error) {
	logger.EnterMethod("bookingService.RequestCancellation", "bookingID", bookingID, "actorID", actor.ID)

	b, err := s.bookingRepo.GetByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if err := authorizeOwnerOrStaff(actor, b); err != nil {
		return nil, err
	}
	if !b.Status.IsCancellable() {
		return nil, &domain.InvalidStateError{Operation: "cancel", Status: b.Status}
	}

	now := s.now()
	decision := s.policy.Cancellation.Evaluate(now, b.PickupAt)
	var refund int32
	if b.PaymentStatus == domain.PaymentStatusPaid {
		refund = decision.RefundCents(b.TotalPriceCents)
	}

	g := repository.GuardOf(b)
	b.Cancellation = &domain.CancellationRecord{
		Reason:        reason,
		Tier:          decision.Tier,
		RefundPercent: decision.RefundPercent,
		RefundCents:   refund,
		PolicyNote:    decision.PolicyNote,
		CancelledBy:   actor.ID,
		CancelledAt:   now,
	}
	if err := s.transition(b, domain.BookingStatusCancelled); err != nil {
		return nil, err
	}
	if err := s.bookingRepo.Update(ctx, b, g); err != nil {
		logger.ExitMethodWithError("bookingService.RequestCancellation", err, "bookingID", bookingID)
		return nil, err
	}
	s.publish(ctx, b, g.Status, actor, decision.PolicyNote)

	logger.ExitMethod("bookingService.RequestCancellation", "bookingID", bookingID, "tier", decision.Tier)
	return b, nil
}

func (s *bookingService) LeaveReview(ctx context.Context, actor domain.Actor, bookingID int32, in ReviewInput) (*domain.Booking, error) {
	b, err := s.bookingRepo.GetByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if !actor.Is(domain.RoleCustomer) || b.CustomerID != actor.ID {
		return nil, domain.ErrUnauthorized
	}
	if b.Status != domain.BookingStatusCompleted {
		return nil, &domain.InvalidStateError{Operation: "review", Status: b.Status}
	}
	if b.Review != nil {
		return nil, &domain.InvalidStateError{Operation: "re-review", Status: b.Status}
	}
	if err := validateStruct(in); err != nil {
		return nil, err
	}

	g := repository.GuardOf(b)
	b.Review = &domain.Review{Rating: in.Rating, Comment: in.Comment, CreatedAt: s.now()}
	if err := s.bookingRepo.Update(ctx, b, g); err != nil {
		return nil, err
	}
	return b, nil
}

// transition applies a status change after checking it against the transition table.
func (s *bookingService) transition(b *domain.Booking, to domain.BookingStatus) error {
	if !b.Status.CanTransitionTo(to) {
		return &domain.InvalidStateError{Operation: "move to " + string(to) + " from", Status: b.Status}
	}
	b.Status = to
	return nil
}

func (s *bookingService) publish(ctx context.Context, b *domain.Booking, from domain.BookingStatus, actor domain.Actor, note string) {
	if s.events == nil {
		return
	}
	event := domain.BookingEvent{
		ID:         uuid.NewString(),
		BookingID:  b.ID,
		CustomerID: b.CustomerID,
		From:       from,
		To:         b.Status,
		ActorID:    actor.ID,
		Note:       note,
		OccurredAt: s.now(),
	}
	if err := s.events.Publish(ctx, event); err != nil {
		logger.WithBooking(b.ID).Warn("failed to publish booking event", "to", b.Status, "error", err)
	}
}

// ownedDriver loads a driver and checks it belongs to the booking's customer.
func (s *bookingService) ownedDriver(ctx context.Context, actor domain.Actor, customerID, driverID int32) (*domain.Driver, error) {
	driver, err := s.driverRepo.GetByID(ctx, driverID)
	if err != nil {
		return nil, err
	}
	if driver.UserID != customerID && !actor.IsStaff() {
		return nil, domain.ErrUnauthorized
	}
	return driver, nil
}

func driverGuard(b *domain.Booking, d *domain.Driver) repository.Guard {
	g := repository.GuardOf(b)
	id := d.ID
	g.DriverID = &id
	g.DriverVersion = d.Version
	return g
}

func payable(b *domain.Booking) bool {
	if b.PaymentStatus == domain.PaymentStatusPaid {
		return false
	}
	return b.Status == domain.BookingStatusPending || b.Status == domain.BookingStatusPaymentPending
}

func authorizeOwnerOrStaff(actor domain.Actor, b *domain.Booking) error {
	if actor.IsStaff() || (actor.Is(domain.RoleCustomer) && actor.ID == b.CustomerID) {
		return nil
	}
	return domain.ErrUnauthorized
}
