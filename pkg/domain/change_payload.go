package domain

import (
	"time"

	json "github.com/goccy/go-json"
)

// ChangePayload wraps a JSON snapshot of a change's before/after state.
// Callers should unmarshal the raw bytes into typed structures as needed.
type ChangePayload struct {
	defined bool
	raw     []byte
}

// NewChangePayload builds a payload wrapper from raw JSON. The bytes are cloned
// to prevent callers from mutating shared state. Passing a nil slice yields a
// defined but empty payload; use UndefinedChangePayload for "not set".
func NewChangePayload(raw []byte) ChangePayload {
	payload := ChangePayload{defined: true}
	if raw != nil {
		payload.raw = cloneRawMessage(raw)
	}
	return payload
}

// NewChangePayloadFromValue marshals a typed value into a ChangePayload.
func NewChangePayloadFromValue[T any](value T) (ChangePayload, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return ChangePayload{}, err
	}
	return NewChangePayload(raw), nil
}

// UndefinedChangePayload returns an uninitialized payload wrapper.
func UndefinedChangePayload() ChangePayload {
	return ChangePayload{}
}

// Defined reports whether the payload has been initialized.
func (p ChangePayload) Defined() bool {
	return p.defined
}

// IsEmpty reports whether the payload contains no bytes.
func (p ChangePayload) IsEmpty() bool {
	if !p.defined {
		return true
	}
	return len(p.raw) == 0
}

// Raw returns a cloned copy of the underlying JSON bytes. Nil is returned when
// the payload is undefined or empty.
func (p ChangePayload) Raw() []byte {
	if !p.defined || len(p.raw) == 0 {
		return nil
	}
	return cloneRawMessage(p.raw)
}

// MarshalJSON emits the raw payload, or null when undefined.
func (p ChangePayload) MarshalJSON() ([]byte, error) {
	if !p.defined || len(p.raw) == 0 {
		return []byte("null"), nil
	}
	return cloneRawMessage(p.raw), nil
}

// ChangeEvent is the serialized form of a committed Change published on the
// change feed.
type ChangeEvent struct {
	Revision  uint64        `json:"revision"`
	Entity    EntityType    `json:"entity"`
	Action    Action        `json:"action"`
	Before    ChangePayload `json:"before"`
	After     ChangePayload `json:"after"`
	Committed time.Time     `json:"committed"`
}

// NewChangeEvent encodes a change captured at the given store revision.
func NewChangeEvent(revision uint64, change Change, committed time.Time) (ChangeEvent, error) {
	event := ChangeEvent{
		Revision:  revision,
		Entity:    change.Entity,
		Action:    change.Action,
		Before:    UndefinedChangePayload(),
		After:     UndefinedChangePayload(),
		Committed: committed,
	}
	if change.Before != nil {
		payload, err := NewChangePayloadFromValue(change.Before)
		if err != nil {
			return ChangeEvent{}, err
		}
		event.Before = payload
	}
	if change.After != nil {
		payload, err := NewChangePayloadFromValue(change.After)
		if err != nil {
			return ChangeEvent{}, err
		}
		event.After = payload
	}
	return event, nil
}

func cloneRawMessage(raw []byte) []byte {
	if raw == nil {
		return nil
	}
	cloned := make([]byte, len(raw))
	copy(cloned, raw)
	return cloned
}
