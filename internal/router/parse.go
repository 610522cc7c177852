package router

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rickgao/tradeline/internal/model"
)

// Errors
var (
	ErrMalformed    = errors.New("malformed frame")
	ErrUnknownEvent = errors.New("unknown event")
	ErrMissingField = errors.New("missing required field")
)

// envelope is the outer frame shape.
type envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// flexID accepts an order ID sent as a JSON string or number.
type flexID string

func (f *flexID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("order id: %w", err)
	}
	*f = flexID(n.String())
	return nil
}

// Wire payloads, one per event name.
type (
	orderEventData struct {
		Symbol  string `json:"symbol"`
		Action  string `json:"action"`
		OrderID flexID `json:"orderid"`
	}

	closePositionData struct {
		Status  string `json:"status"`
		Message string `json:"message"`
	}

	orderStatusData struct {
		Status  string `json:"status"`
		OrderID flexID `json:"orderid"`
		Message string `json:"message"`
	}

	masterContractData struct {
		Status  string `json:"status"`
		Message string `json:"message"`
	}
)

// Parse decodes and validates one frame.
func Parse(data []byte, receivedAt time.Time) (model.Event, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if env.Event == "" {
		return nil, fmt.Errorf("%w: no event name", ErrMalformed)
	}

	kind := model.EventKind(env.Event)
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, env.Event)
	}

	payload := bytes.TrimSpace(env.Data)
	if len(payload) == 0 || bytes.Equal(payload, []byte("null")) {
		return nil, fmt.Errorf("%w: data", ErrMissingField)
	}
	if payload[0] != '{' {
		return nil, fmt.Errorf("%w: data is not an object", ErrMalformed)
	}

	switch kind {
	case model.KindOrderExecuted:
		var d orderEventData
		if err := decode(payload, &d); err != nil {
			return nil, err
		}
		if err := require("symbol", d.Symbol, "action", d.Action, "orderid", string(d.OrderID)); err != nil {
			return nil, err
		}
		return model.OrderExecuted{
			Symbol:     strings.TrimSpace(d.Symbol),
			OrderID:    strings.TrimSpace(string(d.OrderID)),
			Action:     strings.ToUpper(strings.TrimSpace(d.Action)),
			ReceivedAt: receivedAt,
		}, nil

	case model.KindPositionsClosed:
		var d closePositionData
		if err := decode(payload, &d); err != nil {
			return nil, err
		}
		if err := require("message", d.Message); err != nil {
			return nil, err
		}
		return model.PositionsClosed{
			Status:     d.Status,
			Message:    d.Message,
			ReceivedAt: receivedAt,
		}, nil

	case model.KindOrderCancelled:
		var d orderStatusData
		if err := decode(payload, &d); err != nil {
			return nil, err
		}
		if err := require("status", d.Status, "orderid", string(d.OrderID)); err != nil {
			return nil, err
		}
		return model.OrderCancelled{
			OrderID:    strings.TrimSpace(string(d.OrderID)),
			Status:     d.Status,
			Message:    d.Message,
			ReceivedAt: receivedAt,
		}, nil

	case model.KindOrderModified:
		var d orderStatusData
		if err := decode(payload, &d); err != nil {
			return nil, err
		}
		if err := require("status", d.Status, "orderid", string(d.OrderID)); err != nil {
			return nil, err
		}
		return model.OrderModified{
			OrderID:    strings.TrimSpace(string(d.OrderID)),
			Status:     d.Status,
			Message:    d.Message,
			ReceivedAt: receivedAt,
		}, nil

	case model.KindReferenceDataRefresh:
		var d masterContractData
		if err := decode(payload, &d); err != nil {
			return nil, err
		}
		if err := require("status", d.Status, "message", d.Message); err != nil {
			return nil, err
		}
		return model.ReferenceDataRefresh{
			Status:     d.Status,
			Message:    d.Message,
			ReceivedAt: receivedAt,
		}, nil
	}

	return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, env.Event)
}

func decode(payload []byte, v any) error {
	if err := json.Unmarshal(payload, v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return nil
}

// require takes name/value pairs and fails on the first blank value.
func require(pairs ...string) error {
	for i := 0; i+1 < len(pairs); i += 2 {
		if strings.TrimSpace(pairs[i+1]) == "" {
			return fmt.Errorf("%w: %s", ErrMissingField, pairs[i])
		}
	}
	return nil
}

// dropReason labels a parse error for metrics.
func dropReason(err error) string {
	switch {
	case errors.Is(err, ErrMissingField):
		return "missing_field"
	case errors.Is(err, ErrUnknownEvent):
		return "unknown_event"
	default:
		return "malformed"
	}
}
