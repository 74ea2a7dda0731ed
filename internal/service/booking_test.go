package service_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"vehicle-rental-backend/internal/domain"
	"vehicle-rental-backend/internal/service"
)

func TestBookingLifecycle_UnlimitedMileage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.store.PutVehicle(&domain.Vehicle{ID: 7, CurrentMileage: 5000, DailyRateCents: 20000, UnlimitedMileage: true})

	b := f.newBooking(t, 7, nil)
	assert.Equal(t, domain.BookingStatusLicenseRequired, b.Status)
	assert.Equal(t, int32(60000), b.BasePriceCents)

	d, err := f.drivers.RegisterDriver(ctx, customer, "Alex Driver")
	require.NoError(t, err)
	b, err = f.bookings.AttachDriver(ctx, customer, b.ID, d.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.BookingStatusLicenseRequired, b.Status)

	_, err = f.drivers.SubmitDocument(ctx, customer, d.ID, domain.DocumentTypeLicense, documentFields("L-1"))
	require.NoError(t, err)
	b, _ = f.bookings.GetBooking(ctx, customer, b.ID)
	assert.Equal(t, domain.BookingStatusLicenseRequired, b.Status)

	_, err = f.drivers.SubmitDocument(ctx, customer, d.ID, domain.DocumentTypeInsurance, documentFields("P-1"))
	require.NoError(t, err)
	b, _ = f.bookings.GetBooking(ctx, customer, b.ID)
	assert.Equal(t, domain.BookingStatusVerificationPending, b.Status)

	_, err = f.drivers.Verify(ctx, verifier, d.ID, domain.DocumentTypeLicense)
	require.NoError(t, err)
	b, _ = f.bookings.GetBooking(ctx, customer, b.ID)
	assert.Equal(t, domain.BookingStatusVerificationPending, b.Status)
	assert.True(t, b.LicenseVerified)
	assert.False(t, b.InsuranceVerified)

	_, err = f.drivers.Verify(ctx, verifier, d.ID, domain.DocumentTypeInsurance)
	require.NoError(t, err)
	b, _ = f.bookings.GetBooking(ctx, customer, b.ID)
	assert.Equal(t, domain.BookingStatusPaymentPending, b.Status)

	b, err = f.bookings.RecordPayment(ctx, domain.SystemActor, b.ID, service.PaymentInput{AmountCents: b.TotalPriceCents, ChargeID: "ch_1", Method: "card"})
	require.NoError(t, err)
	assert.Equal(t, domain.BookingStatusConfirmed, b.Status)
	assert.Equal(t, domain.PaymentStatusPaid, b.PaymentStatus)

	f.clock.Set(pickupAt.Add(-15 * time.Minute))
	b, err = f.bookings.CheckIn(ctx, agent, b.ID, service.CheckInInput{Mileage: 5000, FuelLevel: "full", PhotoRefs: []string{"front.jpg"}})
	require.NoError(t, err)
	assert.Equal(t, domain.BookingStatusActive, b.Status)

	f.clock.Set(returnAt)
	b, err = f.bookings.CheckOut(ctx, agent, b.ID, service.CheckOutInput{Mileage: 5300, FuelLevel: "half"})
	require.NoError(t, err)
	assert.Equal(t, domain.BookingStatusCompleted, b.Status)
	assert.True(t, b.CheckOut.UnlimitedMileage)
	assert.Equal(t, int32(300), b.CheckOut.MilesDriven)
	assert.Equal(t, int32(0), b.CheckOut.MileageFeeCents)
	assert.Equal(t, int32(3000), b.CheckOut.FuelFeeCents)
	assert.Equal(t, int32(3000), b.ExtraCharges.FuelFeeCents)
	assert.Equal(t, int32(63000), b.TotalPriceCents)

	v, err := f.store.VehicleRepo.GetByID(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, int32(5300), v.CurrentMileage)

	assert.Equal(t, []domain.BookingStatus{
		domain.BookingStatusLicenseRequired,
		domain.BookingStatusVerificationPending,
		domain.BookingStatusPaymentPending,
		domain.BookingStatusConfirmed,
		domain.BookingStatusActive,
		domain.BookingStatusCompleted,
	}, f.events.published())
}

func TestCheckOut_MileageOverage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b := f.activeBooking(t, standardVehicle(), domain.FuelLevelFull)

	f.clock.Set(returnAt.Add(-time.Hour))
	b, err := f.bookings.CheckOut(ctx, agent, b.ID, service.CheckOutInput{Mileage: 10700, FuelLevel: "full"})
	require.NoError(t, err)

	assert.Equal(t, int32(700), b.CheckOut.MilesDriven)
	assert.Equal(t, int32(600), b.CheckOut.AllowedMiles)
	assert.Equal(t, int32(100), b.CheckOut.OverageMiles)
	assert.Equal(t, int32(5000), b.CheckOut.MileageFeeCents)
	assert.Equal(t, int32(0), b.CheckOut.FuelFeeCents)
	assert.Equal(t, int32(5000), b.ExtraCharges.MileageFeeCents)
	assert.Equal(t, int32(65000), b.TotalPriceCents)
	assert.Equal(t, agent.ID, b.CheckOut.AgentID)
}

func TestCheckIn_Errors(t *testing.T) {
	ctx := context.Background()
	valid := service.CheckInInput{Mileage: 10000, FuelLevel: "full"}

	t.Run("Too Early", func(t *testing.T) {
		f := newFixture(t)
		b := f.confirmedBooking(t, standardVehicle())
		f.clock.Set(pickupAt.Add(-2 * time.Hour))

		_, err := f.bookings.CheckIn(ctx, agent, b.ID, valid)
		var ow *domain.OutOfWindowError
		require.ErrorAs(t, err, &ow)
		assert.Equal(t, pickupAt.Add(-time.Hour), ow.Opens)
		assert.Contains(t, err.Error(), "check-in opens")
	})

	t.Run("After Return", func(t *testing.T) {
		f := newFixture(t)
		b := f.confirmedBooking(t, standardVehicle())
		f.clock.Set(returnAt.Add(time.Minute))

		_, err := f.bookings.CheckIn(ctx, agent, b.ID, valid)
		var ow *domain.OutOfWindowError
		assert.ErrorAs(t, err, &ow)
	})

	t.Run("Invalid Fuel Level", func(t *testing.T) {
		f := newFixture(t)
		b := f.confirmedBooking(t, standardVehicle())
		f.clock.Set(pickupAt)

		_, err := f.bookings.CheckIn(ctx, agent, b.ID, service.CheckInInput{Mileage: 10000, FuelLevel: "brimming"})
		var fl *domain.InvalidFuelLevelError
		assert.ErrorAs(t, err, &fl)
	})

	t.Run("Mileage Below Odometer", func(t *testing.T) {
		f := newFixture(t)
		b := f.confirmedBooking(t, standardVehicle())
		f.clock.Set(pickupAt)

		_, err := f.bookings.CheckIn(ctx, agent, b.ID, service.CheckInInput{Mileage: 9999, FuelLevel: "full"})
		var im *domain.InvalidMileageError
		require.ErrorAs(t, err, &im)
		assert.Equal(t, int32(10000), im.Minimum)
	})

	t.Run("Too Many Photos", func(t *testing.T) {
		f := newFixture(t)
		b := f.confirmedBooking(t, standardVehicle())
		f.clock.Set(pickupAt)

		in := valid
		in.PhotoRefs = make([]string, 21)
		for i := range in.PhotoRefs {
			in.PhotoRefs[i] = "p.jpg"
		}
		_, err := f.bookings.CheckIn(ctx, agent, b.ID, in)
		assert.True(t, domain.IsValidation(err))
	})

	t.Run("Customer Cannot Check In", func(t *testing.T) {
		f := newFixture(t)
		b := f.confirmedBooking(t, standardVehicle())
		f.clock.Set(pickupAt)

		_, err := f.bookings.CheckIn(ctx, customer, b.ID, valid)
		assert.ErrorIs(t, err, domain.ErrUnauthorized)
	})

	t.Run("Not Confirmed", func(t *testing.T) {
		f := newFixture(t)
		f.store.PutVehicle(standardVehicle())
		d := f.verifiedDriver(t, customer)
		b := f.newBooking(t, 1, &d.ID)
		f.clock.Set(pickupAt)

		_, err := f.bookings.CheckIn(ctx, agent, b.ID, valid)
		var is *domain.InvalidStateError
		require.ErrorAs(t, err, &is)
		assert.Equal(t, domain.BookingStatusPending, is.Status)
	})

	t.Run("Twice", func(t *testing.T) {
		f := newFixture(t)
		b := f.activeBooking(t, standardVehicle(), domain.FuelLevelFull)

		_, err := f.bookings.CheckIn(ctx, agent, b.ID, valid)
		var ci *domain.AlreadyCheckedInError
		require.ErrorAs(t, err, &ci)
		assert.Equal(t, domain.BookingStatusActive, ci.Status)
	})
}

func TestCheckOut_Errors(t *testing.T) {
	ctx := context.Background()

	t.Run("No Check-In", func(t *testing.T) {
		f := newFixture(t)
		b := f.confirmedBooking(t, standardVehicle())

		_, err := f.bookings.CheckOut(ctx, agent, b.ID, service.CheckOutInput{Mileage: 10100, FuelLevel: "full"})
		var nci *domain.NoCheckInRecordError
		require.ErrorAs(t, err, &nci)
		assert.Equal(t, domain.BookingStatusConfirmed, nci.Status)
	})

	t.Run("Mileage Below Check-In", func(t *testing.T) {
		f := newFixture(t)
		b := f.activeBooking(t, standardVehicle(), domain.FuelLevelFull)

		_, err := f.bookings.CheckOut(ctx, agent, b.ID, service.CheckOutInput{Mileage: 9000, FuelLevel: "full"})
		var im *domain.InvalidMileageError
		require.ErrorAs(t, err, &im)
		assert.Equal(t, int32(10000), im.Minimum)

		stored, _ := f.bookings.GetBooking(ctx, admin, b.ID)
		assert.Equal(t, domain.BookingStatusActive, stored.Status)
	})

	t.Run("Fee Too Large To Bill", func(t *testing.T) {
		f := newFixture(t)
		v := standardVehicle()
		v.ExtraMileRateCents = 5000
		b := f.activeBooking(t, v, domain.FuelLevelFull)

		_, err := f.bookings.CheckOut(ctx, agent, b.ID, service.CheckOutInput{Mileage: 1000000, FuelLevel: "full"})
		var ve *domain.ValidationError
		require.ErrorAs(t, err, &ve)
		assert.Equal(t, "mileage", ve.Fields[0].Field)

		stored, _ := f.bookings.GetBooking(ctx, admin, b.ID)
		assert.Equal(t, domain.BookingStatusActive, stored.Status)
		assert.Nil(t, stored.CheckOut)
		assert.Equal(t, b.TotalPriceCents, stored.TotalPriceCents)
	})

	t.Run("Twice", func(t *testing.T) {
		f := newFixture(t)
		b := f.activeBooking(t, standardVehicle(), domain.FuelLevelFull)

		_, err := f.bookings.CheckOut(ctx, agent, b.ID, service.CheckOutInput{Mileage: 10100, FuelLevel: "full"})
		require.NoError(t, err)
		_, err = f.bookings.CheckOut(ctx, agent, b.ID, service.CheckOutInput{Mileage: 10200, FuelLevel: "full"})
		var co *domain.AlreadyCheckedOutError
		require.ErrorAs(t, err, &co)
		assert.Equal(t, domain.BookingStatusCompleted, co.Status)

		v, _ := f.store.VehicleRepo.GetByID(ctx, 1)
		assert.Equal(t, int32(10100), v.CurrentMileage)
	})
}

func TestCheckIn_ConcurrentAgents(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b := f.confirmedBooking(t, standardVehicle())
	f.clock.Set(pickupAt)

	const workers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.bookings.CheckIn(ctx, agent, b.ID, service.CheckInInput{Mileage: 10000, FuelLevel: "full"})
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				succeeded++
				return
			}
			assert.True(t, domain.IsState(err) || domain.IsConcurrency(err), "unexpected error: %v", err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)
	stored, err := f.bookings.GetBooking(ctx, admin, b.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.BookingStatusActive, stored.Status)
	require.NotNil(t, stored.CheckIn)

	v, _ := f.store.VehicleRepo.GetByID(ctx, 1)
	assert.Equal(t, stored.CheckIn.Mileage, v.CurrentMileage)
}

func TestAdvanceOnVerification_RejectedMeanwhile(t *testing.T) {
	ctx := context.Background()
	clock := &testClock{now: t0}
	f := newFixture(t)
	hooked := &hookedDriverRepo{DriverRepository: f.store.DriverRepo}
	bookings := service.NewBookingService(f.store.BookingRepo, hooked, f.store.VehicleRepo,
		nil, nil, service.DefaultBookingPolicy(), service.WithClock(clock.Now))
	drivers := service.NewVerificationService(f.store.DriverRepo, nil, service.WithClock(clock.Now))

	f.store.PutVehicle(standardVehicle())
	d, err := drivers.RegisterDriver(ctx, customer, "Alex Driver")
	require.NoError(t, err)
	_, err = drivers.SubmitDocument(ctx, customer, d.ID, domain.DocumentTypeLicense, documentFields("L-1"))
	require.NoError(t, err)
	_, err = drivers.SubmitDocument(ctx, customer, d.ID, domain.DocumentTypeInsurance, documentFields("P-1"))
	require.NoError(t, err)

	b, err := bookings.CreateBooking(ctx, customer, service.NewBooking{
		VehicleID: 1, PickupAt: pickupAt, ReturnAt: returnAt, PickupLocation: "Airport",
	})
	require.NoError(t, err)
	b, err = bookings.AttachDriver(ctx, customer, b.ID, d.ID)
	require.NoError(t, err)
	require.Equal(t, domain.BookingStatusVerificationPending, b.Status)

	_, err = drivers.Verify(ctx, verifier, d.ID, domain.DocumentTypeLicense)
	require.NoError(t, err)
	_, err = drivers.Verify(ctx, verifier, d.ID, domain.DocumentTypeInsurance)
	require.NoError(t, err)

	// The license is rejected between the driver read and the booking write.
	hooked.afterGet = func() {
		_, err := drivers.Reject(ctx, verifier, d.ID, domain.DocumentTypeLicense, "photo unreadable")
		require.NoError(t, err)
	}
	_, err = bookings.AdvanceOnVerification(ctx, b.ID)
	require.True(t, domain.IsConcurrency(err), "expected concurrent modification, got %v", err)

	stored, _ := bookings.GetBooking(ctx, admin, b.ID)
	assert.Equal(t, domain.BookingStatusVerificationPending, stored.Status)

	// Re-running picks up the rejection and stays put.
	b, err = bookings.AdvanceOnVerification(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.BookingStatusVerificationPending, b.Status)
	assert.False(t, b.LicenseVerified)
	assert.True(t, b.InsuranceVerified)
}

func TestAdvanceOnVerification_Idempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.store.PutVehicle(standardVehicle())
	d := f.submittedDriver(t, customer)
	b := f.awaitingVerification(t, d)

	again, err := f.bookings.AdvanceOnVerification(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, b.Version, again.Version)

	again, err = f.bookings.AdvanceOnDocuments(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, b.Version, again.Version)
}

func TestCreateBooking(t *testing.T) {
	ctx := context.Background()

	t.Run("Without Driver", func(t *testing.T) {
		f := newFixture(t)
		f.store.PutVehicle(standardVehicle())
		b := f.newBooking(t, 1, nil)

		assert.Equal(t, domain.BookingStatusLicenseRequired, b.Status)
		assert.Equal(t, customer.ID, b.CustomerID)
		assert.Equal(t, "Airport", b.ReturnLocation)
		assert.Equal(t, int32(60000), b.TotalPriceCents)
		assert.Equal(t, int32(50000), b.DepositCents)
		assert.Equal(t, domain.PaymentStatusUnpaid, b.PaymentStatus)
	})

	t.Run("Driver Named Up Front", func(t *testing.T) {
		f := newFixture(t)
		f.store.PutVehicle(standardVehicle())

		bare, err := f.drivers.RegisterDriver(ctx, customer, "No Papers")
		require.NoError(t, err)
		b := f.newBooking(t, 1, &bare.ID)
		assert.Equal(t, domain.BookingStatusPending, b.Status)
		assert.False(t, b.LicenseVerified || b.InsuranceVerified)

		submitted := f.submittedDriver(t, customer)
		b = f.newBooking(t, 1, &submitted.ID)
		assert.Equal(t, domain.BookingStatusPending, b.Status)

		// Later document changes leave a pending booking alone.
		_, err = f.drivers.Verify(ctx, verifier, submitted.ID, domain.DocumentTypeLicense)
		require.NoError(t, err)
		b, _ = f.bookings.GetBooking(ctx, customer, b.ID)
		assert.Equal(t, domain.BookingStatusPending, b.Status)

		b, err = f.bookings.RecordPayment(ctx, domain.SystemActor, b.ID, service.PaymentInput{AmountCents: b.TotalPriceCents, ChargeID: "ch_1"})
		require.NoError(t, err)
		assert.Equal(t, domain.BookingStatusConfirmed, b.Status)
	})

	t.Run("Attach Verified Driver", func(t *testing.T) {
		f := newFixture(t)
		f.store.PutVehicle(standardVehicle())
		b := f.newBooking(t, 1, nil)
		d := f.verifiedDriver(t, customer)

		b, err := f.bookings.AttachDriver(ctx, customer, b.ID, d.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.BookingStatusPaymentPending, b.Status)
		assert.True(t, b.LicenseVerified && b.InsuranceVerified)

		_, err = f.bookings.AttachDriver(ctx, customer, b.ID, d.ID)
		var is *domain.InvalidStateError
		assert.ErrorAs(t, err, &is)
	})

	t.Run("Pickup In Past", func(t *testing.T) {
		f := newFixture(t)
		f.store.PutVehicle(standardVehicle())
		_, err := f.bookings.CreateBooking(ctx, customer, service.NewBooking{
			VehicleID: 1, PickupAt: t0.Add(-time.Hour), ReturnAt: t0.Add(time.Hour), PickupLocation: "Airport",
		})
		assert.True(t, domain.IsValidation(err))
	})

	t.Run("Return Before Pickup", func(t *testing.T) {
		f := newFixture(t)
		f.store.PutVehicle(standardVehicle())
		_, err := f.bookings.CreateBooking(ctx, customer, service.NewBooking{
			VehicleID: 1, PickupAt: pickupAt, ReturnAt: pickupAt.Add(-time.Hour), PickupLocation: "Airport",
		})
		var ve *domain.ValidationError
		require.ErrorAs(t, err, &ve)
		assert.Equal(t, "return_at", ve.Fields[0].Field)
	})

	t.Run("Someone Else's Driver", func(t *testing.T) {
		f := newFixture(t)
		f.store.PutVehicle(standardVehicle())
		d := f.verifiedDriver(t, stranger)
		_, err := f.bookings.CreateBooking(ctx, customer, service.NewBooking{
			VehicleID: 1, DriverID: &d.ID, PickupAt: pickupAt, ReturnAt: returnAt, PickupLocation: "Airport",
		})
		assert.ErrorIs(t, err, domain.ErrUnauthorized)
	})

	t.Run("Unknown Vehicle", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.bookings.CreateBooking(ctx, customer, service.NewBooking{
			VehicleID: 99, PickupAt: pickupAt, ReturnAt: returnAt, PickupLocation: "Airport",
		})
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})
}

func TestRecordPayment(t *testing.T) {
	ctx := context.Background()
	setup := func(t *testing.T) (*fixture, *domain.Booking) {
		f := newFixture(t)
		f.store.PutVehicle(standardVehicle())
		d := f.verifiedDriver(t, customer)
		return f, f.newBooking(t, 1, &d.ID)
	}

	t.Run("Within Tolerance", func(t *testing.T) {
		f, b := setup(t)
		b, err := f.bookings.RecordPayment(ctx, domain.SystemActor, b.ID, service.PaymentInput{AmountCents: b.TotalPriceCents - 1, ChargeID: "ch_1"})
		require.NoError(t, err)
		assert.Equal(t, domain.BookingStatusConfirmed, b.Status)
		assert.Equal(t, "ch_1", b.ChargeID)
	})

	t.Run("Mismatch", func(t *testing.T) {
		f, b := setup(t)
		_, err := f.bookings.RecordPayment(ctx, domain.SystemActor, b.ID, service.PaymentInput{AmountCents: b.TotalPriceCents + 2, ChargeID: "ch_1"})
		var pm *domain.PaymentMismatchError
		require.ErrorAs(t, err, &pm)
		assert.Equal(t, b.TotalPriceCents, pm.ExpectedCents)

		stored, _ := f.bookings.GetBooking(ctx, customer, b.ID)
		assert.Equal(t, domain.PaymentStatusUnpaid, stored.PaymentStatus)
	})

	t.Run("Customer Cannot Record", func(t *testing.T) {
		f, b := setup(t)
		_, err := f.bookings.RecordPayment(ctx, customer, b.ID, service.PaymentInput{AmountCents: b.TotalPriceCents, ChargeID: "ch_1"})
		assert.ErrorIs(t, err, domain.ErrUnauthorized)
	})

	t.Run("Already Paid", func(t *testing.T) {
		f, b := setup(t)
		in := service.PaymentInput{AmountCents: b.TotalPriceCents, ChargeID: "ch_1"}
		_, err := f.bookings.RecordPayment(ctx, domain.SystemActor, b.ID, in)
		require.NoError(t, err)
		_, err = f.bookings.RecordPayment(ctx, domain.SystemActor, b.ID, in)
		assert.True(t, domain.IsState(err))
	})

	t.Run("Before Verification", func(t *testing.T) {
		f := newFixture(t)
		f.store.PutVehicle(standardVehicle())
		b := f.newBooking(t, 1, nil)
		_, err := f.bookings.RecordPayment(ctx, domain.SystemActor, b.ID, service.PaymentInput{AmountCents: b.TotalPriceCents, ChargeID: "ch_1"})
		var is *domain.InvalidStateError
		require.ErrorAs(t, err, &is)
		assert.Equal(t, domain.BookingStatusLicenseRequired, is.Status)
	})
}

func TestCollectPayment(t *testing.T) {
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		f := newFixture(t)
		f.store.PutVehicle(standardVehicle())
		d := f.verifiedDriver(t, customer)
		b := f.newBooking(t, 1, &d.ID)

		f.payments.On("ChargeCustomer", mock.Anything, mock.MatchedBy(func(r service.ChargeRequest) bool {
			return r.BookingID == b.ID && r.AmountCents == b.TotalPriceCents && r.IdempotencyKey != ""
		})).Return(&service.ChargeResult{ChargeID: "ch_ok", AmountCents: b.TotalPriceCents, Succeeded: true}, nil).Once()

		b, err := f.bookings.CollectPayment(ctx, customer, b.ID, "card")
		require.NoError(t, err)
		assert.Equal(t, domain.BookingStatusConfirmed, b.Status)
		assert.Equal(t, "ch_ok", b.ChargeID)
		assert.Equal(t, "card", b.PaymentMethod)
		f.payments.AssertExpectations(t)
	})

	t.Run("Declined", func(t *testing.T) {
		f := newFixture(t)
		f.store.PutVehicle(standardVehicle())
		d := f.verifiedDriver(t, customer)
		b := f.newBooking(t, 1, &d.ID)

		f.payments.On("ChargeCustomer", mock.Anything, mock.Anything).
			Return(&service.ChargeResult{Succeeded: false, DeclineReason: "insufficient funds"}, nil).Once()

		_, err := f.bookings.CollectPayment(ctx, customer, b.ID, "card")
		require.True(t, domain.IsPaymentDeclined(err))
		assert.Contains(t, err.Error(), "insufficient funds")

		stored, _ := f.bookings.GetBooking(ctx, customer, b.ID)
		assert.Equal(t, domain.BookingStatusPending, stored.Status)
		assert.Equal(t, b.Version, stored.Version)
	})

	t.Run("Gateway Error", func(t *testing.T) {
		f := newFixture(t)
		f.store.PutVehicle(standardVehicle())
		d := f.verifiedDriver(t, customer)
		b := f.newBooking(t, 1, &d.ID)

		f.payments.On("ChargeCustomer", mock.Anything, mock.Anything).Return(nil, errors.New("timeout")).Once()

		_, err := f.bookings.CollectPayment(ctx, customer, b.ID, "card")
		assert.ErrorContains(t, err, "timeout")
	})

	t.Run("Stranger", func(t *testing.T) {
		f := newFixture(t)
		f.store.PutVehicle(standardVehicle())
		d := f.verifiedDriver(t, customer)
		b := f.newBooking(t, 1, &d.ID)

		_, err := f.bookings.CollectPayment(ctx, stranger, b.ID, "card")
		assert.ErrorIs(t, err, domain.ErrUnauthorized)
		f.payments.AssertNotCalled(t, "ChargeCustomer", mock.Anything, mock.Anything)
	})
}

func TestRequestCancellation_RefundTiers(t *testing.T) {
	tests := []struct {
		name        string
		hoursBefore time.Duration
		tier        domain.RefundTier
		percent     int32
		refund      int32
	}{
		{"30 hours", 30, domain.RefundTierFull, 100, 60000},
		{"24 hours", 24, domain.RefundTierPartial, 50, 30000},
		{"12 hours", 12, domain.RefundTierPartial, 50, 30000},
		{"6 hours", 6, domain.RefundTierNone, 0, 0},
		{"3 hours", 3, domain.RefundTierNone, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()
			b := f.confirmedBooking(t, standardVehicle())
			f.clock.Set(pickupAt.Add(-tt.hoursBefore * time.Hour))

			quote, err := f.bookings.QuoteCancellation(ctx, customer, b.ID)
			require.NoError(t, err)
			assert.Equal(t, tt.tier, quote.Tier)

			b, err = f.bookings.RequestCancellation(ctx, customer, b.ID, "plans changed")
			require.NoError(t, err)
			assert.Equal(t, domain.BookingStatusCancelled, b.Status)
			require.NotNil(t, b.Cancellation)
			assert.Equal(t, tt.tier, b.Cancellation.Tier)
			assert.Equal(t, tt.percent, b.Cancellation.RefundPercent)
			assert.Equal(t, tt.refund, b.Cancellation.RefundCents)
			assert.Equal(t, "plans changed", b.Cancellation.Reason)
			assert.NotEmpty(t, b.Cancellation.PolicyNote)
		})
	}
}

func TestRequestCancellation_States(t *testing.T) {
	ctx := context.Background()

	t.Run("Unpaid Booking Refunds Nothing", func(t *testing.T) {
		f := newFixture(t)
		f.store.PutVehicle(standardVehicle())
		b := f.newBooking(t, 1, nil)

		b, err := f.bookings.RequestCancellation(ctx, customer, b.ID, "")
		require.NoError(t, err)
		assert.Equal(t, domain.RefundTierFull, b.Cancellation.Tier)
		assert.Equal(t, int32(0), b.Cancellation.RefundCents)
	})

	t.Run("Active", func(t *testing.T) {
		f := newFixture(t)
		b := f.activeBooking(t, standardVehicle(), domain.FuelLevelFull)

		_, err := f.bookings.RequestCancellation(ctx, customer, b.ID, "")
		var is *domain.InvalidStateError
		require.ErrorAs(t, err, &is)
		assert.Equal(t, domain.BookingStatusActive, is.Status)
	})

	t.Run("Twice", func(t *testing.T) {
		f := newFixture(t)
		b := f.confirmedBooking(t, standardVehicle())
		_, err := f.bookings.RequestCancellation(ctx, admin, b.ID, "fleet issue")
		require.NoError(t, err)
		_, err = f.bookings.RequestCancellation(ctx, customer, b.ID, "")
		assert.True(t, domain.IsState(err))
	})

	t.Run("Stranger", func(t *testing.T) {
		f := newFixture(t)
		b := f.confirmedBooking(t, standardVehicle())
		_, err := f.bookings.RequestCancellation(ctx, stranger, b.ID, "")
		assert.ErrorIs(t, err, domain.ErrUnauthorized)
	})
}

func TestLeaveReview(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b := f.activeBooking(t, standardVehicle(), domain.FuelLevelFull)

	_, err := f.bookings.LeaveReview(ctx, customer, b.ID, service.ReviewInput{Rating: 5})
	assert.True(t, domain.IsState(err), "active bookings cannot be reviewed")

	_, err = f.bookings.CheckOut(ctx, agent, b.ID, service.CheckOutInput{Mileage: 10100, FuelLevel: "full"})
	require.NoError(t, err)

	_, err = f.bookings.LeaveReview(ctx, customer, b.ID, service.ReviewInput{Rating: 6})
	assert.True(t, domain.IsValidation(err))

	_, err = f.bookings.LeaveReview(ctx, stranger, b.ID, service.ReviewInput{Rating: 4})
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	b, err = f.bookings.LeaveReview(ctx, customer, b.ID, service.ReviewInput{Rating: 4, Comment: "clean car"})
	require.NoError(t, err)
	require.NotNil(t, b.Review)
	assert.Equal(t, int32(4), b.Review.Rating)

	_, err = f.bookings.LeaveReview(ctx, customer, b.ID, service.ReviewInput{Rating: 5})
	assert.True(t, domain.IsState(err))
}

func TestListMyBookings(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.store.PutVehicle(standardVehicle())
	f.newBooking(t, 1, nil)
	f.newBooking(t, 1, nil)

	list, total, err := f.bookings.ListMyBookings(ctx, customer, "", 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int32(2), total)
	assert.Len(t, list, 2)

	list, _, err = f.bookings.ListMyBookings(ctx, stranger, "", 1, 10)
	require.NoError(t, err)
	assert.Empty(t, list)

	_, _, err = f.bookings.ListMyBookings(ctx, customer, "parked", 1, 10)
	assert.True(t, domain.IsValidation(err))
}
