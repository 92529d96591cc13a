// Package events carries order lifecycle events from the lifecycle manager to
// whoever reacts to them (notifications, stock, reviews).
package events

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/01moynul/taptosell-orders/internal/models"
)

// Type names an event. It doubles as the Kafka topic.
type Type string

const (
	OrderConfirmed         Type = "order.confirmed"
	OrderDispatched        Type = "order.dispatched"
	OrderDelivered         Type = "order.delivered"
	OrderCancelled         Type = "order.cancelled"
	PaymentFailed          Type = "payment.failed"
	PaymentRefundInitiated Type = "payment.refund_initiated"
)

// AllTypes lists every event type, in topic-creation order.
var AllTypes = []Type{OrderConfirmed, OrderDispatched, OrderDelivered, OrderCancelled, PaymentFailed, PaymentRefundInitiated}

// Event is one lifecycle fact. Order is a private snapshot that no one else mutates.
type Event struct {
	ID         string        `json:"id"`
	Type       Type          `json:"type"`
	OccurredAt time.Time     `json:"occurredAt"`
	Order      *models.Order `json:"order"`
	Reason     string        `json:"reason,omitempty"`
}

// New stamps an event with a fresh id and a deep copy of order.
func New(t Type, order *models.Order, reason string) Event {
	return Event{
		ID:         uuid.NewString(),
		Type:       t,
		OccurredAt: time.Now().UTC(),
		Order:      order.Clone(),
		Reason:     reason,
	}
}

// Dispatcher delivers events. Implementations must be safe for concurrent use.
type Dispatcher interface {
	Dispatch(ctx context.Context, e Event) error
}

// Handler reacts to one event.
type Handler func(ctx context.Context, e Event) error

// Local fans events out to in-process handlers, synchronously and in
// subscription order.
type Local struct {
	mu       sync.RWMutex
	handlers map[Type][]Handler
}

func NewLocal() *Local {
	return &Local{handlers: make(map[Type][]Handler)}
}

// Subscribe registers h for the given types, or for every type when none are given.
func (l *Local) Subscribe(h Handler, types ...Type) {
	if len(types) == 0 {
		types = AllTypes
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, t := range types {
		l.handlers[t] = append(l.handlers[t], h)
	}
}

// Dispatch runs every handler for e.Type. All handlers run even if one fails;
// the first error is returned.
func (l *Local) Dispatch(ctx context.Context, e Event) error {
	l.mu.RLock()
	hs := append([]Handler(nil), l.handlers[e.Type]...)
	l.mu.RUnlock()

	var first error
	for _, h := range hs {
		if err := h(ctx, e); err != nil {
			log.WithError(err).WithFields(log.Fields{"event": e.Type, "event_id": e.ID}).Error("event handler failed")
			if first == nil {
				first = errors.Wrapf(err, "handle %s", e.Type)
			}
		}
	}
	return first
}

// Fanout dispatches to several dispatchers in order.
type Fanout []Dispatcher

func (f Fanout) Dispatch(ctx context.Context, e Event) error {
	var first error
	for _, d := range f {
		if err := d.Dispatch(ctx, e); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Recorder keeps every dispatched event. Used in tests and dry runs.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Dispatch(_ context.Context, e Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

// Events returns a copy of what has been recorded so far.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// OfType returns the recorded events of type t.
func (r *Recorder) OfType(t Type) []Event {
	var out []Event
	for _, e := range r.Events() {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}
