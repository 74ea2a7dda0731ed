package service

import (
	"context"
	"errors"
	"time"

	"vehicle-rental-backend/internal/domain"
	"vehicle-rental-backend/internal/logger"
	"vehicle-rental-backend/internal/repository"
)

type verificationService struct {
	driverRepo repository.DriverRepository
	observer   DocumentObserver
	now        func() time.Time
}

// NewVerificationService creates the document ledger. observer is told about every
// committed document change and may be nil.
func NewVerificationService(driverRepo repository.DriverRepository, observer DocumentObserver, opts ...Option) VerificationService {
	o := buildOptions(opts)
	return &verificationService{
		driverRepo: driverRepo,
		observer:   observer,
		now:        o.now,
	}
}

func (s *verificationService) RegisterDriver(ctx context.Context, actor domain.Actor, name string) (*domain.Driver, error) {
	if !actor.Is(domain.RoleCustomer, domain.RoleAdmin) {
		return nil, domain.ErrUnauthorized
	}
	if len(name) > 255 {
		return nil, &domain.ValidationError{Fields: []domain.FieldError{{Field: "name", Message: "must be at most 255 characters"}}}
	}
	d := &domain.Driver{UserID: actor.ID, Name: name}
	if err := s.driverRepo.Create(ctx, d); err != nil {
		return nil, err
	}
	logger.Info("driver registered", "driverID", d.ID, "userID", d.UserID)
	return d, nil
}

func (s *verificationService) GetDriver(ctx context.Context, actor domain.Actor, driverID int32) (*domain.Driver, error) {
	d, err := s.driverRepo.GetByID(ctx, driverID)
	if err != nil {
		return nil, err
	}
	if actor.Is(domain.RoleCustomer) && d.UserID != actor.ID {
		return nil, domain.ErrUnauthorized
	}
	return d, nil
}

// SubmitDocument stores a new version of one document, always unverified.
func (s *verificationService) SubmitDocument(ctx context.Context, actor domain.Actor, driverID int32, docType domain.DocumentType, fields domain.DocumentFields) (*domain.Driver, error) {
	logger.EnterMethod("verificationService.SubmitDocument", "driverID", driverID, "docType", docType)

	d, err := s.driverRepo.GetByID(ctx, driverID)
	if err != nil {
		return nil, err
	}
	if !actor.IsStaff() && !(actor.Is(domain.RoleCustomer) && d.UserID == actor.ID) {
		return nil, domain.ErrUnauthorized
	}
	if err := s.checkFields(fields); err != nil {
		return nil, err
	}

	expected := d.Version
	expires := fields.ExpiresOn
	switch docType {
	case domain.DocumentTypeLicense:
		d.License = domain.LicenseRecord{
			Number:           fields.Identifier,
			IssuingAuthority: fields.Issuer,
			ExpiresOn:        &expires,
			FileRef:          fields.FileRef,
		}
	case domain.DocumentTypeInsurance:
		d.Insurance = domain.InsuranceRecord{
			Provider:     fields.Issuer,
			PolicyNumber: fields.Identifier,
			ExpiresOn:    &expires,
			FileRef:      fields.FileRef,
		}
	default:
		return nil, &domain.ValidationError{Fields: []domain.FieldError{{Field: "doc_type", Message: "must be license or insurance"}}}
	}

	if err := s.driverRepo.Update(ctx, d, expected); err != nil {
		logger.ExitMethodWithError("verificationService.SubmitDocument", err, "driverID", driverID)
		return nil, err
	}
	s.notify(ctx, d.ID)

	logger.ExitMethod("verificationService.SubmitDocument", "driverID", driverID, "docType", docType)
	return d, nil
}

// Verify marks a submitted document verified after checking it again against the clock.
func (s *verificationService) Verify(ctx context.Context, actor domain.Actor, driverID int32, docType domain.DocumentType) (*domain.Driver, error) {
	logger.EnterMethod("verificationService.Verify", "driverID", driverID, "docType", docType, "verifierID", actor.ID)

	if !actor.Is(domain.RoleVerifier, domain.RoleAdmin) {
		return nil, domain.ErrUnauthorized
	}
	d, err := s.driverRepo.GetByID(ctx, driverID)
	if err != nil {
		return nil, err
	}
	if !d.Submitted(docType) {
		return nil, &domain.ValidationError{Fields: []domain.FieldError{{Field: string(docType), Message: "has not been submitted"}}}
	}
	fields := d.Fields(docType)
	if err := validateStruct(fields); err != nil {
		return nil, err
	}
	now := s.now()
	if !fields.ExpiresOn.After(now) {
		return nil, &domain.StaleDocumentError{DocType: docType, ExpiresOn: fields.ExpiresOn}
	}
	if d.IsVerified(docType) {
		return d, nil
	}

	expected := d.Version
	verifier := actor.ID
	switch docType {
	case domain.DocumentTypeLicense:
		d.License.Verified = true
		d.License.VerifiedBy = &verifier
		d.License.VerifiedAt = &now
		d.License.RejectionReason = ""
	case domain.DocumentTypeInsurance:
		d.Insurance.Verified = true
		d.Insurance.VerifiedBy = &verifier
		d.Insurance.VerifiedAt = &now
		d.Insurance.RejectionReason = ""
	}
	if err := s.driverRepo.Update(ctx, d, expected); err != nil {
		logger.ExitMethodWithError("verificationService.Verify", err, "driverID", driverID)
		return nil, err
	}
	s.notify(ctx, d.ID)

	logger.ExitMethod("verificationService.Verify", "driverID", driverID, "docType", docType)
	return d, nil
}

// Reject clears the verified flag. The submitted values are kept for the audit trail.
func (s *verificationService) Reject(ctx context.Context, actor domain.Actor, driverID int32, docType domain.DocumentType, reason string) (*domain.Driver, error) {
	logger.EnterMethod("verificationService.Reject", "driverID", driverID, "docType", docType, "actorID", actor.ID)

	if !actor.Is(domain.RoleVerifier, domain.RoleAdmin, domain.RoleSystem) {
		return nil, domain.ErrUnauthorized
	}
	d, err := s.driverRepo.GetByID(ctx, driverID)
	if err != nil {
		return nil, err
	}

	expected := d.Version
	switch docType {
	case domain.DocumentTypeLicense:
		d.License.Verified = false
		d.License.VerifiedBy = nil
		d.License.VerifiedAt = nil
		d.License.RejectionReason = reason
	case domain.DocumentTypeInsurance:
		d.Insurance.Verified = false
		d.Insurance.VerifiedBy = nil
		d.Insurance.VerifiedAt = nil
		d.Insurance.RejectionReason = reason
	default:
		return nil, &domain.ValidationError{Fields: []domain.FieldError{{Field: "doc_type", Message: "must be license or insurance"}}}
	}
	if err := s.driverRepo.Update(ctx, d, expected); err != nil {
		logger.ExitMethodWithError("verificationService.Reject", err, "driverID", driverID)
		return nil, err
	}
	s.notify(ctx, d.ID)

	logger.ExitMethod("verificationService.Reject", "driverID", driverID, "docType", docType)
	return d, nil
}

func (s *verificationService) IsFullyVerified(ctx context.Context, driverID int32) (bool, error) {
	d, err := s.driverRepo.GetByID(ctx, driverID)
	if err != nil {
		return false, err
	}
	return d.FullyVerified(), nil
}

// checkFields reports every problem with the submitted fields in one error.
func (s *verificationService) checkFields(fields domain.DocumentFields) error {
	ve := &domain.ValidationError{}
	if err := validateStruct(fields); err != nil {
		if !errors.As(err, &ve) {
			return err
		}
	}
	// A zero expiry is already reported as required.
	if !fields.ExpiresOn.IsZero() && !fields.ExpiresOn.After(s.now()) {
		ve.Add("expires_on", "must be in the future")
	}
	return ve.OrNil()
}

func (s *verificationService) notify(ctx context.Context, driverID int32) {
	if s.observer != nil {
		s.observer.DriverDocumentsChanged(ctx, driverID)
	}
}
