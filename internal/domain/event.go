package domain

import "time"

// BookingEvent announces that a booking moved from one status to another.
type BookingEvent struct {
	ID         string        `json:"id"`
	BookingID  int32         `json:"booking_id"`
	CustomerID int32         `json:"customer_id"`
	From       BookingStatus `json:"from"`
	To         BookingStatus `json:"to"`
	ActorID    int32         `json:"actor_id"`
	Note       string        `json:"note,omitempty"`
	OccurredAt time.Time     `json:"occurred_at"`
}

func (e BookingEvent) RoutingKey() string {
	return "booking." + string(e.To)
}
