package jobs

import (
	"context"

	"vehicle-rental-backend/internal/domain"
	"vehicle-rental-backend/internal/logger"
)

const revokeReason = "document expired"

// RevokeExpiredDocuments withdraws verification from documents that have expired. Bookings
// awaiting verification for that driver keep their status; only their verification flags are cleared.
func (jr *JobRunner) RevokeExpiredDocuments() {
	jr.runWithRecovery("RevokeExpiredDocuments", func() {
		n, err := jr.revokeExpired(context.Background())
		if err != nil {
			logger.Error("Failed to revoke expired documents", "error", err)
			return
		}
		logger.Info("Revoked expired documents", "count", n)
	})
}

func (jr *JobRunner) revokeExpired(ctx context.Context) (int, error) {
	now := jr.now()
	drivers, err := jr.driverRepo.ListVerifiedExpiringBefore(ctx, now)
	if err != nil {
		return 0, err
	}

	count := 0
	for i := range drivers {
		d := &drivers[i]
		for _, doc := range []domain.DocumentType{domain.DocumentTypeLicense, domain.DocumentTypeInsurance} {
			if !d.IsVerified(doc) || !d.Fields(doc).ExpiresOn.Before(now) {
				continue
			}
			if _, err := jr.services.Verification.Reject(ctx, domain.SystemActor, d.ID, doc, revokeReason); err != nil {
				logger.Error("Failed to revoke document", "driverID", d.ID, "docType", doc, "error", err)
				continue
			}
			count++
		}
	}
	return count, nil
}
