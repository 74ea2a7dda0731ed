package http

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"vehicle-rental-backend/internal/security"
	"vehicle-rental-backend/internal/service"
)

// NewRouter builds the booking API. Route names key into config.EndpointSecurityConfig.
func NewRouter(bookings service.BookingService, drivers service.VerificationService, tokens security.TokenManager, webhookSecret string) *mux.Router {
	h := &Handler{bookings: bookings, drivers: drivers}
	auth := &authMiddleware{tokens: tokens, webhookSecret: webhookSecret}

	router := mux.NewRouter()
	router.Use(loggingMiddleware, auth.Middleware)

	router.HandleFunc("/healthz", h.Health).Methods(http.MethodGet).Name("Health")

	api := router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/payments/webhook", h.PaymentWebhook).Methods(http.MethodPost).Name("PaymentWebhook")

	api.HandleFunc("/bookings", h.CreateBooking).Methods(http.MethodPost).Name("CreateBooking")
	api.HandleFunc("/bookings", h.ListMyBookings).Methods(http.MethodGet).Name("ListMyBookings")
	api.HandleFunc("/bookings/{id:[0-9]+}", h.GetBooking).Methods(http.MethodGet).Name("GetBooking")
	api.HandleFunc("/bookings/{id:[0-9]+}/driver", h.AttachDriver).Methods(http.MethodPost).Name("AttachDriver")
	api.HandleFunc("/bookings/{id:[0-9]+}/payment", h.PayBooking).Methods(http.MethodPost).Name("PayBooking")
	api.HandleFunc("/bookings/{id:[0-9]+}/cancellation", h.QuoteCancellation).Methods(http.MethodGet).Name("QuoteCancellation")
	api.HandleFunc("/bookings/{id:[0-9]+}/cancellation", h.CancelBooking).Methods(http.MethodPost).Name("CancelBooking")
	api.HandleFunc("/bookings/{id:[0-9]+}/check-in", h.CheckIn).Methods(http.MethodPost).Name("CheckIn")
	api.HandleFunc("/bookings/{id:[0-9]+}/check-out", h.CheckOut).Methods(http.MethodPost).Name("CheckOut")
	api.HandleFunc("/bookings/{id:[0-9]+}/review", h.LeaveReview).Methods(http.MethodPost).Name("LeaveReview")

	api.HandleFunc("/drivers", h.RegisterDriver).Methods(http.MethodPost).Name("RegisterDriver")
	api.HandleFunc("/drivers/{id:[0-9]+}", h.GetDriver).Methods(http.MethodGet).Name("GetDriver")
	api.HandleFunc("/drivers/{id:[0-9]+}/verification", h.GetDriverVerification).Methods(http.MethodGet).Name("GetDriverVerification")
	api.HandleFunc("/drivers/{id:[0-9]+}/documents/{type}", h.SubmitDocument).Methods(http.MethodPut).Name("SubmitDocument")
	api.HandleFunc("/drivers/{id:[0-9]+}/documents/{type}/verify", h.VerifyDocument).Methods(http.MethodPost).Name("VerifyDocument")
	api.HandleFunc("/drivers/{id:[0-9]+}/documents/{type}/reject", h.RejectDocument).Methods(http.MethodPost).Name("RejectDocument")

	return router
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
