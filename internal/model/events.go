package model

import "time"

// EventKind names a server-pushed event category.
// Values match the event names on the wire.
type EventKind string

const (
	KindOrderExecuted        EventKind = "order_event"
	KindPositionsClosed      EventKind = "close_position"
	KindOrderCancelled       EventKind = "cancel_order_event"
	KindOrderModified        EventKind = "modify_order_event"
	KindReferenceDataRefresh EventKind = "master_contract_download"
)

// EventKinds lists every supported kind in a stable order.
var EventKinds = []EventKind{
	KindOrderExecuted,
	KindPositionsClosed,
	KindOrderCancelled,
	KindOrderModified,
	KindReferenceDataRefresh,
}

// Valid reports whether k is one of the supported kinds.
func (k EventKind) Valid() bool {
	for _, known := range EventKinds {
		if k == known {
			return true
		}
	}
	return false
}

// StatusSuccess is the status value the server uses for a successful outcome.
const StatusSuccess = "success"

// Event is a typed, validated server-pushed occurrence.
// The set of implementations is closed to this package.
type Event interface {
	Kind() EventKind
	Received() time.Time
	event()
}

// OrderExecuted reports an order that was placed and executed.
type OrderExecuted struct {
	Symbol     string
	OrderID    string
	Action     string // "BUY" or "SELL"
	ReceivedAt time.Time
}

// PositionsClosed reports a close-all-positions outcome.
type PositionsClosed struct {
	Status     string
	Message    string
	ReceivedAt time.Time
}

// OrderCancelled reports the outcome of a cancel request.
type OrderCancelled struct {
	OrderID    string
	Status     string
	Message    string // Optional
	ReceivedAt time.Time
}

// OrderModified reports the outcome of a modify request.
type OrderModified struct {
	OrderID    string
	Status     string
	Message    string // Optional
	ReceivedAt time.Time
}

// ReferenceDataRefresh reports a master contract download result.
type ReferenceDataRefresh struct {
	Status     string
	Message    string
	ReceivedAt time.Time
}

func (OrderExecuted) Kind() EventKind        { return KindOrderExecuted }
func (PositionsClosed) Kind() EventKind      { return KindPositionsClosed }
func (OrderCancelled) Kind() EventKind       { return KindOrderCancelled }
func (OrderModified) Kind() EventKind        { return KindOrderModified }
func (ReferenceDataRefresh) Kind() EventKind { return KindReferenceDataRefresh }

func (e OrderExecuted) Received() time.Time        { return e.ReceivedAt }
func (e PositionsClosed) Received() time.Time      { return e.ReceivedAt }
func (e OrderCancelled) Received() time.Time       { return e.ReceivedAt }
func (e OrderModified) Received() time.Time        { return e.ReceivedAt }
func (e ReferenceDataRefresh) Received() time.Time { return e.ReceivedAt }

func (OrderExecuted) event()        {}
func (PositionsClosed) event()      {}
func (OrderCancelled) event()       {}
func (OrderModified) event()        {}
func (ReferenceDataRefresh) event() {}

// Succeeded reports whether the cancel request went through.
func (e OrderCancelled) Succeeded() bool { return e.Status == StatusSuccess }

// Succeeded reports whether the modify request went through.
func (e OrderModified) Succeeded() bool { return e.Status == StatusSuccess }

// Succeeded reports whether the download completed.
func (e ReferenceDataRefresh) Succeeded() bool { return e.Status == StatusSuccess }
