package domain

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
)

type failingPayload struct{}

func (failingPayload) MarshalJSON() ([]byte, error) {
	return nil, errors.New("marshal failure")
}

func TestChangePayloadDefinedAndEmpty(t *testing.T) {
	undefined := UndefinedChangePayload()
	if undefined.Defined() {
		t.Fatalf("expected undefined payload to be not defined")
	}
	if !undefined.IsEmpty() {
		t.Fatalf("expected undefined payload to be empty")
	}
	if undefined.Raw() != nil {
		t.Fatalf("expected undefined payload to return nil raw bytes")
	}

	empty := NewChangePayload(nil)
	if !empty.Defined() {
		t.Fatalf("expected empty payload to be defined")
	}
	if !empty.IsEmpty() {
		t.Fatalf("expected empty payload to be empty")
	}
	if empty.Raw() != nil {
		t.Fatalf("expected empty payload to return nil raw bytes")
	}

	raw := json.RawMessage(`{"id":"123"}`)
	defined := NewChangePayload(raw)
	if !defined.Defined() {
		t.Fatalf("expected raw payload to be defined")
	}
	if defined.IsEmpty() {
		t.Fatalf("expected raw payload to be non-empty")
	}
	if got := defined.Raw(); string(got) != string(raw) {
		t.Fatalf("expected raw payload %s, got %s", raw, got)
	}
}

func TestChangePayloadRawIsCloned(t *testing.T) {
	raw := json.RawMessage(`{"id":"cloned"}`)
	payload := NewChangePayload(raw)
	raw[2] = 'X'

	first := payload.Raw()
	first[2] = 'Y'
	second := payload.Raw()
	if string(first) == string(second) {
		t.Fatalf("expected raw payload to be cloned per call")
	}
	if string(second) != `{"id":"cloned"}` {
		t.Fatalf("expected stored payload to remain unchanged, got %s", second)
	}
}

func TestNewChangePayloadFromValue(t *testing.T) {
	payload, err := NewChangePayloadFromValue(map[string]string{"id": "123"})
	if err != nil {
		t.Fatalf("build payload: %v", err)
	}
	if !payload.Defined() {
		t.Fatalf("expected payload to be defined")
	}
	if payload.IsEmpty() {
		t.Fatalf("expected payload to be non-empty")
	}
	var out map[string]string
	if err := json.Unmarshal(payload.Raw(), &out); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if out["id"] != "123" {
		t.Fatalf("expected id 123, got %s", out["id"])
	}

	if _, err := NewChangePayloadFromValue(failingPayload{}); err == nil {
		t.Fatalf("expected marshal error for failing payload")
	}
}

func TestNewChangeEventEncodesBeforeAndAfter(t *testing.T) {
	before := Category{CategoryID: 3, Description: "Boissons", Order: 1}
	after := before
	after.Order = 2
	committed := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	event, err := NewChangeEvent(7, Change{Entity: EntityCategory, Action: ActionMove, Before: before, After: after}, committed)
	if err != nil {
		t.Fatalf("encode change: %v", err)
	}
	if event.Revision != 7 || event.Entity != EntityCategory || event.Action != ActionMove {
		t.Fatalf("unexpected event header %+v", event)
	}
	var decoded Category
	if err := json.Unmarshal(event.After.Raw(), &decoded); err != nil {
		t.Fatalf("decode after: %v", err)
	}
	if decoded.Order != 2 || decoded.Description != "Boissons" {
		t.Fatalf("unexpected after payload %+v", decoded)
	}

	out, err := json.Marshal(event)
	if err != nil {
		t.Fatalf("marshal event: %v", err)
	}
	if !strings.Contains(string(out), `"before":{"categoryId":3`) {
		t.Fatalf("expected inline before payload, got %s", out)
	}
}

func TestNewChangeEventLeavesMissingSidesUndefined(t *testing.T) {
	event, err := NewChangeEvent(1, Change{Entity: EntityProduct, Action: ActionDelete, Before: Product{ProductID: 9}}, time.Time{})
	if err != nil {
		t.Fatalf("encode change: %v", err)
	}
	if event.After.Defined() {
		t.Fatalf("expected undefined after payload for delete")
	}
	raw, err := event.After.MarshalJSON()
	if err != nil || string(raw) != "null" {
		t.Fatalf("expected null payload, got %s (%v)", raw, err)
	}
	if _, err := NewChangeEvent(1, Change{After: failingPayload{}}, time.Time{}); err == nil {
		t.Fatalf("expected marshal error for failing payload")
	}
}
