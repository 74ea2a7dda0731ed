package domain

import "time"

type DocumentType string

const (
	DocumentTypeLicense   DocumentType = "license"
	DocumentTypeInsurance DocumentType = "insurance"
)

func ParseDocumentType(s string) (DocumentType, error) {
	switch DocumentType(s) {
	case DocumentTypeLicense, DocumentTypeInsurance:
		return DocumentType(s), nil
	default:
		return "", &ValidationError{Fields: []FieldError{{Field: "doc_type", Message: "must be license or insurance"}}}
	}
}

// DocumentFields is what a driver submits for either document type. Identifier is the
// license number or the policy number; Issuer is the issuing authority or the provider.
type DocumentFields struct {
	Identifier string    `json:"identifier" validate:"required,max=64"`
	Issuer     string    `json:"issuer" validate:"required,max=128"`
	ExpiresOn  time.Time `json:"expires_on" validate:"required"`
	FileRef    string    `json:"file_ref" validate:"omitempty,max=512"`
}

type LicenseRecord struct {
	Number           string     `json:"number"`
	IssuingAuthority string     `json:"issuing_authority"`
	ExpiresOn        *time.Time `json:"expires_on,omitempty"`
	FileRef          string     `json:"file_ref"`
	Verified         bool       `json:"verified"`
	VerifiedBy       *int32     `json:"verified_by,omitempty"`
	VerifiedAt       *time.Time `json:"verified_at,omitempty"`
	RejectionReason  string     `json:"rejection_reason,omitempty"`
}

type InsuranceRecord struct {
	Provider        string     `json:"provider"`
	PolicyNumber    string     `json:"policy_number"`
	ExpiresOn       *time.Time `json:"expires_on,omitempty"`
	FileRef         string     `json:"file_ref"`
	Verified        bool       `json:"verified"`
	VerifiedBy      *int32     `json:"verified_by,omitempty"`
	VerifiedAt      *time.Time `json:"verified_at,omitempty"`
	RejectionReason string     `json:"rejection_reason,omitempty"`
}

type Driver struct {
	ID        int32           `json:"id"`
	UserID    int32           `json:"user_id"`
	Name      string          `json:"name"`
	License   LicenseRecord   `json:"license"`
	Insurance InsuranceRecord `json:"insurance"`
	Version   int32           `json:"version"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

func (d *Driver) Clone() *Driver {
	if d == nil {
		return nil
	}
	c := *d
	c.License.ExpiresOn = cloneTime(d.License.ExpiresOn)
	c.License.VerifiedAt = cloneTime(d.License.VerifiedAt)
	c.License.VerifiedBy = cloneInt32(d.License.VerifiedBy)
	c.Insurance.ExpiresOn = cloneTime(d.Insurance.ExpiresOn)
	c.Insurance.VerifiedAt = cloneTime(d.Insurance.VerifiedAt)
	c.Insurance.VerifiedBy = cloneInt32(d.Insurance.VerifiedBy)
	return &c
}

// Fields returns the submitted values of one document in the shared shape.
func (d *Driver) Fields(docType DocumentType) DocumentFields {
	var f DocumentFields
	switch docType {
	case DocumentTypeLicense:
		f = DocumentFields{Identifier: d.License.Number, Issuer: d.License.IssuingAuthority, FileRef: d.License.FileRef}
		if d.License.ExpiresOn != nil {
			f.ExpiresOn = *d.License.ExpiresOn
		}
	case DocumentTypeInsurance:
		f = DocumentFields{Identifier: d.Insurance.PolicyNumber, Issuer: d.Insurance.Provider, FileRef: d.Insurance.FileRef}
		if d.Insurance.ExpiresOn != nil {
			f.ExpiresOn = *d.Insurance.ExpiresOn
		}
	}
	return f
}

func (d *Driver) Submitted(docType DocumentType) bool {
	switch docType {
	case DocumentTypeLicense:
		return d.License.Number != "" && d.License.ExpiresOn != nil
	case DocumentTypeInsurance:
		return d.Insurance.PolicyNumber != "" && d.Insurance.ExpiresOn != nil
	}
	return false
}

func (d *Driver) IsVerified(docType DocumentType) bool {
	switch docType {
	case DocumentTypeLicense:
		return d.License.Verified
	case DocumentTypeInsurance:
		return d.Insurance.Verified
	}
	return false
}

func (d *Driver) FullySubmitted() bool {
	return d.Submitted(DocumentTypeLicense) && d.Submitted(DocumentTypeInsurance)
}

func (d *Driver) FullyVerified() bool {
	return d.License.Verified && d.Insurance.Verified
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func cloneInt32(i *int32) *int32 {
	if i == nil {
		return nil
	}
	v := *i
	return &v
}
