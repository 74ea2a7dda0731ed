package notify

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"vehicle-rental-backend/internal/domain"
	"vehicle-rental-backend/internal/logger"
)

// ErrQueueFull is returned by Publish when the dispatcher cannot accept more events.
var ErrQueueFull = errors.New("notification queue full")

// ErrClosed is returned by Publish after Close.
var ErrClosed = errors.New("notification dispatcher closed")

// Sink delivers one lifecycle event to an external channel.
type Sink interface {
	Name() string
	Deliver(ctx context.Context, event domain.BookingEvent) error
}

// Dispatcher fans booking events out to every sink on background workers.
// Publish never waits for delivery, and a failing sink does not affect the others.
type Dispatcher struct {
	sinks   []Sink
	queue   chan domain.BookingEvent
	timeout time.Duration

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

func NewDispatcher(sinks []Sink, workers, queueSize int, timeout time.Duration) *Dispatcher {
	if workers < 1 {
		workers = 1
	}
	if queueSize < 1 {
		queueSize = 100
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	d := &Dispatcher{
		sinks:   sinks,
		queue:   make(chan domain.BookingEvent, queueSize),
		timeout: timeout,
	}
	for i := 0; i < workers; i++ {
		d.wg.Add(1)
		go d.run()
	}
	return d
}

func (d *Dispatcher) Publish(ctx context.Context, event domain.BookingEvent) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrClosed
	}
	select {
	case d.queue <- event:
		return nil
	default:
		logger.Warn("dropping booking event", "eventID", event.ID, "bookingID", event.BookingID, "to", event.To)
		return ErrQueueFull
	}
}

// Close stops accepting events and waits for queued ones to be delivered.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()
	d.wg.Wait()
}

func (d *Dispatcher) run() {
	defer d.wg.Done()
	for event := range d.queue {
		for _, sink := range d.sinks {
			d.deliver(sink, event)
		}
	}
}

func (d *Dispatcher) deliver(sink Sink, event domain.BookingEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			logger.Error("notification sink panicked", "sink", sink.Name(), "eventID", event.ID, "panic", fmt.Sprint(r))
		}
	}()

	logger.ExternalServiceCall(sink.Name(), "Deliver", "eventID", event.ID, "bookingID", event.BookingID)
	err := sink.Deliver(ctx, event)
	logger.ExternalServiceResult(sink.Name(), "Deliver", err, "eventID", event.ID, "bookingID", event.BookingID)
}

// describe renders the human-readable title and body used by the e-mail and push sinks.
func describe(event domain.BookingEvent) (string, string) {
	var title string
	switch event.To {
	case domain.BookingStatusLicenseRequired:
		title = "Driver documents needed"
	case domain.BookingStatusVerificationPending:
		title = "Documents under review"
	case domain.BookingStatusPaymentPending:
		title = "Documents verified, payment due"
	case domain.BookingStatusPending:
		title = "Booking received"
	case domain.BookingStatusConfirmed:
		title = "Booking confirmed"
	case domain.BookingStatusActive:
		title = "Enjoy your trip"
	case domain.BookingStatusCompleted:
		title = "Vehicle returned"
	case domain.BookingStatusCancelled:
		title = "Booking cancelled"
	default:
		title = "Booking updated"
	}
	body := fmt.Sprintf("Booking #%d is now %s.", event.BookingID, event.To)
	if event.Note != "" {
		body += " " + event.Note
	}
	return title, body
}
