package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"vehicle-rental-backend/internal/domain"
	"vehicle-rental-backend/internal/service"
)

const maxBodyBytes = 1 << 20

type Handler struct {
	bookings service.BookingService
	drivers  service.VerificationService
}

type listResponse struct {
	Bookings []domain.Booking `json:"bookings"`
	Total    int32            `json:"total"`
	Page     int32            `json:"page"`
	PageSize int32            `json:"page_size"`
}

type attachDriverRequest struct {
	DriverID int32 `json:"driver_id"`
}

type payRequest struct {
	Method string `json:"method"`
}

type webhookRequest struct {
	BookingID   int32  `json:"booking_id"`
	AmountCents int32  `json:"amount_cents"`
	ChargeID    string `json:"charge_id"`
	Method      string `json:"method"`
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

type registerDriverRequest struct {
	Name string `json:"name"`
}

type rejectRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) CreateBooking(w http.ResponseWriter, r *http.Request) {
	var in service.NewBooking
	if !decode(w, r, &in) {
		return
	}
	actor, _ := actorFrom(r.Context())
	b, err := h.bookings.CreateBooking(r.Context(), actor, in)
	respond(w, r, http.StatusCreated, b, err)
}

func (h *Handler) ListMyBookings(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page := queryInt32(q.Get("page"), 1)
	pageSize := queryInt32(q.Get("page_size"), 20)

	actor, _ := actorFrom(r.Context())
	list, total, err := h.bookings.ListMyBookings(r.Context(), actor, q.Get("status"), page, pageSize)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if list == nil {
		list = []domain.Booking{}
	}
	writeJSON(w, http.StatusOK, listResponse{Bookings: list, Total: total, Page: page, PageSize: pageSize})
}

func (h *Handler) GetBooking(w http.ResponseWriter, r *http.Request) {
	actor, _ := actorFrom(r.Context())
	b, err := h.bookings.GetBooking(r.Context(), actor, pathID(r))
	respond(w, r, http.StatusOK, b, err)
}

func (h *Handler) AttachDriver(w http.ResponseWriter, r *http.Request) {
	var in attachDriverRequest
	if !decode(w, r, &in) {
		return
	}
	actor, _ := actorFrom(r.Context())
	b, err := h.bookings.AttachDriver(r.Context(), actor, pathID(r), in.DriverID)
	respond(w, r, http.StatusOK, b, err)
}

func (h *Handler) PayBooking(w http.ResponseWriter, r *http.Request) {
	var in payRequest
	if !decode(w, r, &in) {
		return
	}
	actor, _ := actorFrom(r.Context())
	b, err := h.bookings.CollectPayment(r.Context(), actor, pathID(r), in.Method)
	respond(w, r, http.StatusOK, b, err)
}

// PaymentWebhook is called by the payment processor once a charge settles.
func (h *Handler) PaymentWebhook(w http.ResponseWriter, r *http.Request) {
	var in webhookRequest
	if !decode(w, r, &in) {
		return
	}
	actor, _ := actorFrom(r.Context())
	b, err := h.bookings.RecordPayment(r.Context(), actor, in.BookingID, service.PaymentInput{
		AmountCents: in.AmountCents,
		ChargeID:    in.ChargeID,
		Method:      in.Method,
	})
	respond(w, r, http.StatusOK, b, err)
}

func (h *Handler) QuoteCancellation(w http.ResponseWriter, r *http.Request) {
	actor, _ := actorFrom(r.Context())
	d, err := h.bookings.QuoteCancellation(r.Context(), actor, pathID(r))
	respond(w, r, http.StatusOK, d, err)
}

func (h *Handler) CancelBooking(w http.ResponseWriter, r *http.Request) {
	var in cancelRequest
	if !decode(w, r, &in) {
		return
	}
	actor, _ := actorFrom(r.Context())
	b, err := h.bookings.RequestCancellation(r.Context(), actor, pathID(r), in.Reason)
	respond(w, r, http.StatusOK, b, err)
}

func (h *Handler) CheckIn(w http.ResponseWriter, r *http.Request) {
	var in service.CheckInInput
	if !decode(w, r, &in) {
		return
	}
	actor, _ := actorFrom(r.Context())
	b, err := h.bookings.CheckIn(r.Context(), actor, pathID(r), in)
	respond(w, r, http.StatusOK, b, err)
}

func (h *Handler) CheckOut(w http.ResponseWriter, r *http.Request) {
	var in service.CheckOutInput
	if !decode(w, r, &in) {
		return
	}
	actor, _ := actorFrom(r.Context())
	b, err := h.bookings.CheckOut(r.Context(), actor, pathID(r), in)
	respond(w, r, http.StatusOK, b, err)
}

func (h *Handler) LeaveReview(w http.ResponseWriter, r *http.Request) {
	var in service.ReviewInput
	if !decode(w, r, &in) {
		return
	}
	actor, _ := actorFrom(r.Context())
	b, err := h.bookings.LeaveReview(r.Context(), actor, pathID(r), in)
	respond(w, r, http.StatusOK, b, err)
}

func (h *Handler) RegisterDriver(w http.ResponseWriter, r *http.Request) {
	var in registerDriverRequest
	if !decode(w, r, &in) {
		return
	}
	actor, _ := actorFrom(r.Context())
	d, err := h.drivers.RegisterDriver(r.Context(), actor, in.Name)
	respond(w, r, http.StatusCreated, d, err)
}

func (h *Handler) GetDriver(w http.ResponseWriter, r *http.Request) {
	actor, _ := actorFrom(r.Context())
	d, err := h.drivers.GetDriver(r.Context(), actor, pathID(r))
	respond(w, r, http.StatusOK, d, err)
}

// GetDriverVerification reports whether both documents are currently verified.
func (h *Handler) GetDriverVerification(w http.ResponseWriter, r *http.Request) {
	actor, _ := actorFrom(r.Context())
	id := pathID(r)
	if _, err := h.drivers.GetDriver(r.Context(), actor, id); err != nil {
		writeError(w, r, err)
		return
	}
	ok, err := h.drivers.IsFullyVerified(r.Context(), id)
	respond(w, r, http.StatusOK, map[string]any{"driver_id": id, "fully_verified": ok}, err)
}

func (h *Handler) SubmitDocument(w http.ResponseWriter, r *http.Request) {
	docType, err := domain.ParseDocumentType(mux.Vars(r)["type"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	var in domain.DocumentFields
	if !decode(w, r, &in) {
		return
	}
	actor, _ := actorFrom(r.Context())
	d, err := h.drivers.SubmitDocument(r.Context(), actor, pathID(r), docType, in)
	respond(w, r, http.StatusOK, d, err)
}

func (h *Handler) VerifyDocument(w http.ResponseWriter, r *http.Request) {
	docType, err := domain.ParseDocumentType(mux.Vars(r)["type"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	actor, _ := actorFrom(r.Context())
	d, err := h.drivers.Verify(r.Context(), actor, pathID(r), docType)
	respond(w, r, http.StatusOK, d, err)
}

func (h *Handler) RejectDocument(w http.ResponseWriter, r *http.Request) {
	docType, err := domain.ParseDocumentType(mux.Vars(r)["type"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	var in rejectRequest
	if !decode(w, r, &in) {
		return
	}
	actor, _ := actorFrom(r.Context())
	d, err := h.drivers.Reject(r.Context(), actor, pathID(r), docType, in.Reason)
	respond(w, r, http.StatusOK, d, err)
}

func respond(w http.ResponseWriter, r *http.Request, code int, v any, err error) {
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, code, v)
}

// decode reads a JSON body, answering 400 itself when the body is malformed.
func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "bad_request", Message: fmt.Sprintf("invalid request body: %v", err)})
		return false
	}
	return true
}

// pathID reads {id}; the route pattern guarantees digits.
func pathID(r *http.Request) int32 {
	id, _ := strconv.ParseInt(mux.Vars(r)["id"], 10, 32)
	return int32(id)
}

func queryInt32(s string, def int32) int32 {
	if s == "" {
		return def
	}
	v, err := strconv.ParseInt(s, 10, 32)
	if err != nil || v < 1 {
		return def
	}
	return int32(v)
}
