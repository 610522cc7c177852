package notify

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/rickgao/tradeline/internal/model"
)

// Kind is the visual severity of a notification.
type Kind string

const (
	KindSuccess Kind = "success"
	KindInfo    Kind = "info"
	KindWarning Kind = "warning"
	KindError   Kind = "error"
)

// DefaultTTL applies when a Draft leaves TTL unset.
const DefaultTTL = 5 * time.Second

// Notification is one entry in the active set.
type Notification struct {
	ID        uuid.UUID
	Kind      Kind
	Title     string
	Message   string
	Sound     bool
	CreatedAt time.Time
	TTL       time.Duration
	Dismissed bool
	Source    model.EventKind // Empty for notifications not built from an event
}

// ExpiresAt returns when the notification's timer fires.
func (n Notification) ExpiresAt() time.Time {
	return n.CreatedAt.Add(n.TTL)
}

// Draft is a notification before it is given an ID and a timestamp.
type Draft struct {
	Kind    Kind
	Title   string
	Message string
	Sound   bool
	TTL     time.Duration
	Source  model.EventKind
}

// FromEvent maps a domain event to its notification.
func FromEvent(ev model.Event) Draft {
	switch e := ev.(type) {
	case model.OrderExecuted:
		return Draft{
			Kind:    KindSuccess,
			Title:   "Order Executed",
			Message: fmt.Sprintf("%s order for %s executed (Order ID: %s)", e.Action, e.Symbol, e.OrderID),
			Sound:   true,
			TTL:     5000 * time.Millisecond,
			Source:  e.Kind(),
		}

	case model.PositionsClosed:
		return Draft{
			Kind:    KindInfo,
			Title:   "Positions Closed",
			Message: e.Message,
			Sound:   true,
			TTL:     5000 * time.Millisecond,
			Source:  e.Kind(),
		}

	case model.OrderCancelled:
		if e.Succeeded() {
			return Draft{
				Kind:    KindWarning,
				Title:   "Order Cancelled",
				Message: orDefault(e.Message, fmt.Sprintf("Order %s cancelled", e.OrderID)),
				Sound:   true,
				TTL:     4000 * time.Millisecond,
				Source:  e.Kind(),
			}
		}
		return Draft{
			Kind:    KindError,
			Title:   "Cancel Failed",
			Message: orDefault(e.Message, fmt.Sprintf("Could not cancel order %s", e.OrderID)),
			Sound:   true,
			TTL:     5000 * time.Millisecond,
			Source:  e.Kind(),
		}

	case model.OrderModified:
		if e.Succeeded() {
			return Draft{
				Kind:    KindInfo,
				Title:   "Order Modified",
				Message: orDefault(e.Message, fmt.Sprintf("Order %s modified", e.OrderID)),
				Sound:   true,
				TTL:     4000 * time.Millisecond,
				Source:  e.Kind(),
			}
		}
		return Draft{
			Kind:    KindError,
			Title:   "Modify Failed",
			Message: orDefault(e.Message, fmt.Sprintf("Could not modify order %s", e.OrderID)),
			Sound:   true,
			TTL:     5000 * time.Millisecond,
			Source:  e.Kind(),
		}

	case model.ReferenceDataRefresh:
		if e.Succeeded() {
			return Draft{
				Kind:    KindSuccess,
				Title:   "Master Contract Downloaded",
				Message: e.Message,
				Sound:   false,
				TTL:     6000 * time.Millisecond,
				Source:  e.Kind(),
			}
		}
		return Draft{
			Kind:    KindError,
			Title:   "Master Contract Download Failed",
			Message: e.Message,
			Sound:   true,
			TTL:     6000 * time.Millisecond,
			Source:  e.Kind(),
		}
	}

	return Draft{
		Kind:    KindInfo,
		Title:   string(ev.Kind()),
		Message: "",
		TTL:     DefaultTTL,
		Source:  ev.Kind(),
	}
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
