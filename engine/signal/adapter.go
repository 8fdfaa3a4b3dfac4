// Package signal turns raw environment events into bounded state events:
// validate, map to consequence signals, normalize, translate.
package signal

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/nathoo/npcmind/types"
)

// SchemaVersion is the boundary event schema this adapter accepts.
const SchemaVersion = 1

// RawEvent is an undecoded boundary event.
type RawEvent map[string]any

// ValidationError rejects a boundary event before it touches any state.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "invalid event: " + e.Reason
	}
	return fmt.Sprintf("invalid event: %s: %s", e.Field, e.Reason)
}

// Adapter validates and normalizes boundary events.
type Adapter struct {
	// Clock supplies the timestamp for events that carry none.
	Clock func() float64
}

// NewAdapter creates an adapter stamping missing timestamps with wall time.
func NewAdapter() *Adapter {
	return &Adapter{Clock: func() float64 {
		return float64(time.Now().UnixNano()) / 1e9
	}}
}

// Decode parses a JSON boundary event and validates it.
func (a *Adapter) Decode(data []byte) (types.EnvironmentEvent, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw RawEvent
	if err := dec.Decode(&raw); err != nil {
		return types.EnvironmentEvent{}, &ValidationError{Reason: fmt.Sprintf("malformed json: %v", err)}
	}
	return a.Validate(raw)
}

// Validate checks a raw event against the boundary schema.
func (a *Adapter) Validate(raw RawEvent) (types.EnvironmentEvent, error) {
	var ev types.EnvironmentEvent
	if raw == nil {
		return ev, &ValidationError{Reason: "event is empty"}
	}

	typ, ok := raw["event_type"].(string)
	if !ok || typ == "" {
		return ev, &ValidationError{Field: "event_type", Reason: "required string"}
	}
	if !Known(typ) {
		return ev, &ValidationError{Field: "event_type", Reason: fmt.Sprintf("unknown event type %q", typ)}
	}
	ev.Type = typ

	if ev.NPCID, ok = raw["npc_id"].(string); !ok || ev.NPCID == "" {
		return ev, &ValidationError{Field: "npc_id", Reason: "required string"}
	}
	if ev.PlayerID, ok = raw["player_id"].(string); !ok || ev.PlayerID == "" {
		return ev, &ValidationError{Field: "player_id", Reason: "required string"}
	}

	if v, present := raw["magnitude"]; present && v != nil {
		m, ok := number(v)
		if !ok || m < 0 || m > 1 {
			return ev, &ValidationError{Field: "magnitude", Reason: "must be a number in [0, 1]"}
		}
		ev.Magnitude = m
		ev.HasMagnitude = true
	}

	ev.Payload = map[string]any{}
	if v, present := raw["payload"]; present && v != nil {
		p, ok := v.(map[string]any)
		if !ok {
			return ev, &ValidationError{Field: "payload", Reason: "must be an object"}
		}
		for k, val := range p {
			ev.Payload[k] = val
		}
	}

	if v, present := raw["timestamp"]; present && v != nil {
		ts, ok := number(v)
		if !ok || ts < 0 {
			return ev, &ValidationError{Field: "timestamp", Reason: "must be a non-negative number"}
		}
		ev.Timestamp = ts
	} else {
		ev.Timestamp = a.Clock()
	}

	v, present := raw["version"]
	if !present || v == nil {
		return ev, &ValidationError{Field: "version", Reason: "required"}
	}
	ver, ok := number(v)
	if !ok || ver != math.Trunc(ver) {
		return ev, &ValidationError{Field: "version", Reason: "must be an integer"}
	}
	if int(ver) != SchemaVersion {
		return ev, &ValidationError{Field: "version", Reason: fmt.Sprintf("unsupported version %d", int(ver))}
	}
	ev.Version = int(ver)

	if err := checkPayload(ev); err != nil {
		return ev, err
	}
	return ev, nil
}

// checkPayload enforces the payload fields some event types depend on.
func checkPayload(ev types.EnvironmentEvent) error {
	switch ev.Type {
	case "player_sentiment":
		v, ok := ev.Payload["sentiment"]
		if !ok {
			return &ValidationError{Field: "payload.sentiment", Reason: "required for player_sentiment"}
		}
		s, ok := number(v)
		if !ok || s < -1 || s > 1 {
			return &ValidationError{Field: "payload.sentiment", Reason: "must be a number in [-1, 1]"}
		}
	case "time_passed":
		if v, ok := ev.Payload["hours"]; ok {
			h, ok := number(v)
			if !ok || h < 0 {
				return &ValidationError{Field: "payload.hours", Reason: "must be a non-negative number"}
			}
		}
	}
	return nil
}

// number coerces JSON and Go numerics to a finite float64.
func number(v any) (float64, bool) {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int64:
		f = float64(n)
	case json.Number:
		var err error
		if f, err = n.Float64(); err != nil {
			return 0, false
		}
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}
