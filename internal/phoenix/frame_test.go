package phoenix

import (
	"encoding/json"
	"testing"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	ref := "7"
	f, err := NewFrame("sensocto:sensor:s1", "measurement", map[string]any{"attribute_id": "temp"}, &ref)
	if err != nil {
		t.Fatalf("NewFrame: %v", err)
	}

	wire, err := Encode(f)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	got, err := Decode(wire)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	if got.Topic != f.Topic || got.Event != f.Event {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, f)
	}
	if got.Ref == nil || *got.Ref != ref {
		t.Fatalf("ref not preserved: got %v", got.Ref)
	}

	var payload map[string]any
	if err := json.Unmarshal(got.Payload, &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if payload["attribute_id"] != "temp" {
		t.Fatalf("payload not preserved: %+v", payload)
	}
}

func TestDecodeMalformedIsError(t *testing.T) {
	if _, err := Decode([]byte(`{not json`)); err == nil {
		t.Fatal("expected error decoding malformed JSON")
	}
}

func TestDecodeAbsentKeysDefault(t *testing.T) {
	f, err := Decode([]byte(`{}`))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if f.Topic != "" || f.Event != "" || f.Ref != nil {
		t.Fatalf("expected zero-value defaults, got %+v", f)
	}
}

func TestNewFrameNilPayloadIsEmptyObject(t *testing.T) {
	f, err := NewFrame(ReservedTopic, EventHeartbeat, nil, nil)
	if err != nil {
		t.Fatalf("NewFrame: %v", err)
	}
	if string(f.Payload) != "{}" {
		t.Fatalf("expected empty object payload, got %s", f.Payload)
	}
}

func TestDecodeReply(t *testing.T) {
	f := Frame{Topic: "sensocto:sensor:s1", Event: EventReply, Payload: json.RawMessage(`{"status":"ok","response":{}}`)}
	r, err := DecodeReply(f)
	if err != nil {
		t.Fatalf("DecodeReply: %v", err)
	}
	if r.Status != StatusOK {
		t.Fatalf("expected ok status, got %s", r.Status)
	}
}
