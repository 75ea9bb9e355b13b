// Package phoenix implements the channel-multiplexed WebSocket messaging
// substrate that the sensocto client is built on: frames, reference
// correlation, transport, heartbeats, reply awaiting, channel dispatch, and
// reconnection. It has no knowledge of sensors, batching, or calls.
package phoenix

import (
	"encoding/json"
	"fmt"
)

// ReservedTopic is the topic the protocol reserves for connection-level
// traffic such as heartbeats.
const ReservedTopic = "phoenix"

// Reserved event names.
const (
	EventJoin      = "phx_join"
	EventLeave     = "phx_leave"
	EventReply     = "phx_reply"
	EventError     = "phx_error"
	EventClose     = "phx_close"
	EventHeartbeat = "heartbeat"
)

// Frame is a single channel-multiplexed message: a topic, an event name, an
// arbitrary JSON payload, and an optional correlation ref.
type Frame struct {
	Topic   string          `json:"topic"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
	Ref     *string         `json:"ref"`
}

// ReplyStatus is the status field of a Reply payload.
type ReplyStatus string

const (
	StatusOK    ReplyStatus = "ok"
	StatusError ReplyStatus = "error"
)

// Reply is the payload shape carried by a phx_reply frame.
type Reply struct {
	Status   ReplyStatus     `json:"status"`
	Response json.RawMessage `json:"response"`
}

// NewFrame builds a Frame with payload marshaled from v. A nil v encodes as
// an empty JSON object, matching what the server expects for payload-less
// one-way frames such as heartbeat.
func NewFrame(topic, event string, v any, ref *string) (Frame, error) {
	var raw json.RawMessage
	if v == nil {
		raw = json.RawMessage(`{}`)
	} else {
		b, err := json.Marshal(v)
		if err != nil {
			return Frame{}, fmt.Errorf("marshal payload for %s:%s: %w", topic, event, err)
		}
		raw = b
	}
	return Frame{Topic: topic, Event: event, Payload: raw, Ref: ref}, nil
}

// Encode serializes f to the wire JSON text form.
func Encode(f Frame) ([]byte, error) {
	if f.Payload == nil {
		f.Payload = json.RawMessage(`null`)
	}
	b, err := json.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}
	return b, nil
}

// Decode parses the wire JSON text form into a Frame. Absent keys default to
// their zero value rather than failing — only malformed JSON is an error.
func Decode(data []byte) (Frame, error) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return Frame{}, fmt.Errorf("decode frame: %w", err)
	}
	return f, nil
}

// DecodeReply parses a frame's payload as a Reply. Callers should only call
// this for frames whose Event is EventReply.
func DecodeReply(f Frame) (Reply, error) {
	var r Reply
	if err := json.Unmarshal(f.Payload, &r); err != nil {
		return Reply{}, fmt.Errorf("decode reply payload: %w", err)
	}
	return r, nil
}
