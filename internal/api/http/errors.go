package http

import (
	"errors"
	"net/http"

	"vehicle-rental-backend/internal/domain"
	"vehicle-rental-backend/internal/logger"
)

type errorResponse struct {
	Error   string               `json:"error"`
	Message string               `json:"message"`
	Status  domain.BookingStatus `json:"status,omitempty"`
	Fields  []domain.FieldError  `json:"fields,omitempty"`
}

// writeError maps a service error onto an HTTP status and a stable error code.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	code, resp := classify(err)
	if code == http.StatusInternalServerError {
		logger.ErrorContext(r.Context(), "request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		resp.Message = "internal error"
	}
	writeJSON(w, code, resp)
}

func classify(err error) (int, errorResponse) {
	resp := errorResponse{Message: err.Error(), Status: currentStatus(err)}

	var (
		ve *domain.ValidationError
		cm *domain.ConcurrentModificationError
	)
	switch {
	case errors.As(err, &ve):
		resp.Error = "validation_failed"
		resp.Fields = ve.Fields
		return http.StatusBadRequest, resp
	case domain.IsValidation(err):
		resp.Error = "unprocessable"
		return http.StatusUnprocessableEntity, resp
	case errors.Is(err, domain.ErrNotFound):
		resp.Error = "not_found"
		return http.StatusNotFound, resp
	case errors.Is(err, domain.ErrUnauthorized):
		resp.Error = "forbidden"
		return http.StatusForbidden, resp
	case errors.As(err, &cm):
		resp.Error = "concurrent_modification"
		return http.StatusConflict, resp
	case domain.IsState(err):
		resp.Error = "invalid_state"
		return http.StatusConflict, resp
	case domain.IsPaymentDeclined(err):
		resp.Error = "payment_declined"
		return http.StatusPaymentRequired, resp
	default:
		resp.Error = "internal"
		return http.StatusInternalServerError, resp
	}
}

func currentStatus(err error) domain.BookingStatus {
	var (
		is  *domain.InvalidStateError
		ci  *domain.AlreadyCheckedInError
		co  *domain.AlreadyCheckedOutError
		nci *domain.NoCheckInRecordError
		ow  *domain.OutOfWindowError
	)
	switch {
	case errors.As(err, &is):
		return is.Status
	case errors.As(err, &ci):
		return ci.Status
	case errors.As(err, &co):
		return co.Status
	case errors.As(err, &nci):
		return nci.Status
	case errors.As(err, &ow):
		return ow.Status
	}
	return ""
}
