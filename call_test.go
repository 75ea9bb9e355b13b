package sensocto

import (
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"sensocto/internal/phoenix"
)

func newTestCall(mux *phoenix.Multiplexer, roomID, userID string) *Call {
	logger := slog.New(slog.NewTextHandler(discardWriter{}, nil))
	return newCall(logger, mux, roomID, userID)
}

func TestCallLifecycleJoinChannelThenJoinCall(t *testing.T) {
	mux, w := newTestMux()
	w.replyFor = func(f phoenix.Frame) phoenix.Reply {
		switch f.Event {
		case phoenix.EventJoin:
			resp, _ := json.Marshal(map[string]any{
				"ice_servers": []IceServer{{URLs: []string{"stun:stun.example:3478"}}},
			})
			return phoenix.Reply{Status: phoenix.StatusOK, Response: resp}
		case "join_call":
			resp, _ := json.Marshal(map[string]any{"endpoint_id": "ep-123"})
			return phoenix.Reply{Status: phoenix.StatusOK, Response: resp}
		default:
			return phoenix.Reply{Status: phoenix.StatusOK, Response: json.RawMessage(`{}`)}
		}
	}

	call := newTestCall(mux, "room-1", "user-1")

	if err := call.JoinChannel(context.Background(), nil, 1000); err != nil {
		t.Fatalf("JoinChannel: %v", err)
	}
	if call.State() != JoinedChannel {
		t.Fatalf("state = %v, want JoinedChannel", call.State())
	}
	if len(call.IceServers()) != 1 {
		t.Fatalf("expected 1 ice server recorded from join reply, got %d", len(call.IceServers()))
	}

	endpointID, err := call.JoinCall(context.Background(), 1000)
	if err != nil {
		t.Fatalf("JoinCall: %v", err)
	}
	if endpointID != "ep-123" {
		t.Errorf("endpoint_id = %q, want ep-123", endpointID)
	}
	if call.State() != InCall {
		t.Fatalf("state = %v, want InCall", call.State())
	}
}

func TestCallEndedForcesStateBackToJoinedChannel(t *testing.T) {
	mux, w := newTestMux()
	w.replyFor = func(f phoenix.Frame) phoenix.Reply {
		switch f.Event {
		case "join_call":
			resp, _ := json.Marshal(map[string]any{"endpoint_id": "ep-999"})
			return phoenix.Reply{Status: phoenix.StatusOK, Response: resp}
		default:
			return phoenix.Reply{Status: phoenix.StatusOK, Response: json.RawMessage(`{}`)}
		}
	}

	call := newTestCall(mux, "room-2", "user-2")
	if err := call.JoinChannel(context.Background(), nil, 1000); err != nil {
		t.Fatalf("JoinChannel: %v", err)
	}
	if _, err := call.JoinCall(context.Background(), 1000); err != nil {
		t.Fatalf("JoinCall: %v", err)
	}
	if call.State() != InCall {
		t.Fatalf("precondition: expected InCall")
	}

	events := make(chan CallEvent, 1)
	call.OnEvent(func(evt CallEvent) { events <- evt })

	mux.Dispatch(phoenix.Frame{Topic: call.topic, Event: "call_ended", Payload: json.RawMessage(`{}`)})

	select {
	case evt := <-events:
		if evt.Kind != CallEventEnded {
			t.Errorf("event kind = %v, want CallEventEnded", evt.Kind)
		}
	case <-time.After(time.Second):
		t.Fatal("call_ended event was not dispatched")
	}

	if call.State() != JoinedChannel {
		t.Fatalf("state after call_ended = %v, want JoinedChannel", call.State())
	}
	if call.EndpointID() != "" {
		t.Errorf("endpoint_id after call_ended = %q, want empty", call.EndpointID())
	}
}

func TestToggleAudioRequiresInCall(t *testing.T) {
	mux, _ := newTestMux()
	call := newTestCall(mux, "room-3", "user-3")

	if err := call.ToggleAudio(context.Background(), true, 1000); err == nil {
		t.Fatal("expected error toggling audio outside a call")
	}
}

func TestParticipantJoinedDispatch(t *testing.T) {
	mux, _ := newTestMux()
	call := newTestCall(mux, "room-4", "user-4")

	events := make(chan CallEvent, 1)
	call.OnEvent(func(evt CallEvent) { events <- evt })

	payload, _ := json.Marshal(CallParticipant{UserID: "user-5", AudioEnabled: true})
	mux.Dispatch(phoenix.Frame{Topic: call.topic, Event: "participant_joined", Payload: payload})

	select {
	case evt := <-events:
		if evt.Kind != CallEventParticipantJoined {
			t.Fatalf("kind = %v, want CallEventParticipantJoined", evt.Kind)
		}
		if evt.Participant == nil || evt.Participant.UserID != "user-5" {
			t.Fatalf("participant = %+v, want user_id=user-5", evt.Participant)
		}
	case <-time.After(time.Second):
		t.Fatal("participant_joined event was not dispatched")
	}
}

func TestLeaveChannelCascadesFromInCall(t *testing.T) {
	mux, w := newTestMux()
	w.replyFor = func(f phoenix.Frame) phoenix.Reply {
		switch f.Event {
		case "join_call":
			resp, _ := json.Marshal(map[string]any{"endpoint_id": "ep-1"})
			return phoenix.Reply{Status: phoenix.StatusOK, Response: resp}
		default:
			return phoenix.Reply{Status: phoenix.StatusOK, Response: json.RawMessage(`{}`)}
		}
	}

	call := newTestCall(mux, "room-6", "user-6")
	if err := call.JoinChannel(context.Background(), nil, 1000); err != nil {
		t.Fatalf("JoinChannel: %v", err)
	}
	if _, err := call.JoinCall(context.Background(), 1000); err != nil {
		t.Fatalf("JoinCall: %v", err)
	}

	if err := call.LeaveChannel(context.Background(), 1000); err != nil {
		t.Fatalf("LeaveChannel: %v", err)
	}
	if call.State() != OutsideChannel {
		t.Fatalf("state = %v, want OutsideChannel", call.State())
	}
}
