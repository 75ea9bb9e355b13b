package sensocto

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"sensocto/internal/phoenix"
)

// CallChannelState is the Call Session's channel-level lifecycle state,
// independent of whether the user is actually in the call.
type CallChannelState int

const (
	OutsideChannel CallChannelState = iota
	JoinedChannel
	InCall
)

// CallEventHandler receives typed call dispatch records.
type CallEventHandler func(CallEvent)

// Call is the per-room facade: join channel, join call, toggle audio/video,
// pass media events through, dispatch participant events.
type Call struct {
	logger *slog.Logger
	mux    *phoenix.Multiplexer

	topic  string
	roomID string
	userID string

	mu         sync.Mutex
	state      CallChannelState
	endpointID string
	iceServers []IceServer

	handlersMu sync.Mutex
	handlers   []CallEventHandler
}

func newCall(logger *slog.Logger, mux *phoenix.Multiplexer, roomID, userID string) *Call {
	if logger == nil {
		logger = slog.Default()
	}
	topic := fmt.Sprintf("call:%s", roomID)
	c := &Call{
		logger: logger,
		mux:    mux,
		topic:  topic,
		roomID: roomID,
		userID: userID,
		state:  OutsideChannel,
	}
	c.setupEventHandlers()
	return c
}

// RoomID returns the room this session is bound to.
func (c *Call) RoomID() string { return c.roomID }

// UserID returns the local user id this session joined as.
func (c *Call) UserID() string { return c.userID }

// State reports the current channel/call lifecycle state.
func (c *Call) State() CallChannelState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// EndpointID returns the server-assigned media peer id, set after
// JoinCall's ok reply and cleared on leave or call_ended.
func (c *Call) EndpointID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.endpointID
}

// IceServers returns the ICE servers recorded from JoinChannel's ok reply.
func (c *Call) IceServers() []IceServer {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]IceServer, len(c.iceServers))
	copy(out, c.iceServers)
	return out
}

// OnEvent registers an observer invoked, in registration order, for every
// typed call event. Handler panics are isolated per observer.
func (c *Call) OnEvent(handler CallEventHandler) {
	c.handlersMu.Lock()
	c.handlers = append(c.handlers, handler)
	c.handlersMu.Unlock()
}

func (c *Call) dispatch(evt CallEvent) {
	c.handlersMu.Lock()
	handlers := make([]CallEventHandler, len(c.handlers))
	copy(handlers, c.handlers)
	c.handlersMu.Unlock()

	for _, h := range handlers {
		c.invoke(h, evt)
	}
}

func (c *Call) invoke(h CallEventHandler, evt CallEvent) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("call event handler panicked", "topic", c.topic, "recover", r)
		}
	}()
	h(evt)
}

// joinChannelPayload is the phx_join payload shape for call:<room_id>.
type joinChannelPayload struct {
	UserID   string         `json:"user_id"`
	UserInfo map[string]any `json:"user_info,omitempty"`
}

// JoinChannel sends phx_join on call:<room_id>; on ok, records the
// server-supplied ice_servers.
func (c *Call) JoinChannel(ctx context.Context, userInfo map[string]any, timeoutMs int64) error {
	c.mux.Subscribe(c.topic, joinChannelPayload{UserID: c.userID, UserInfo: userInfo})

	reply, err := c.mux.JoinWithReply(ctx, c.topic, timeoutMs)
	if err != nil {
		return translatePhoenixError(err)
	}

	var resp struct {
		IceServers []IceServer `json:"ice_servers"`
	}
	if err := json.Unmarshal(reply.Response, &resp); err == nil && resp.IceServers != nil {
		c.mu.Lock()
		c.iceServers = resp.IceServers
		c.mu.Unlock()
	}

	c.mu.Lock()
	c.state = JoinedChannel
	c.mu.Unlock()
	c.logger.Info("joined call channel", "topic", c.topic)
	return nil
}

// JoinCall requires JoinedChannel; on ok, records endpoint_id.
func (c *Call) JoinCall(ctx context.Context, timeoutMs int64) (string, error) {
	if c.State() != JoinedChannel {
		return "", &SensoctoError{Message: "channel not joined"}
	}

	reply, err := c.request(ctx, "join_call", nil, timeoutMs)
	if err != nil {
		return "", err
	}

	var resp struct {
		EndpointID string `json:"endpoint_id"`
	}
	_ = json.Unmarshal(reply.Response, &resp)

	c.mu.Lock()
	c.state = InCall
	c.endpointID = resp.EndpointID
	c.mu.Unlock()
	c.logger.Info("joined call", "topic", c.topic, "endpoint_id", resp.EndpointID)
	return resp.EndpointID, nil
}

// SendMediaEvent requires InCall; one-way frame wrapping {data}. Arrival
// order is preserved by the Transport's serialized-write invariant.
func (c *Call) SendMediaEvent(data any) error {
	if c.State() != InCall {
		return &SensoctoError{Message: "not in call"}
	}
	if err := c.mux.Emit(c.topic, "media_event", map[string]any{"data": data}); err != nil {
		return translatePhoenixError(err)
	}
	return nil
}

// ToggleAudio requires InCall; server-replied.
func (c *Call) ToggleAudio(ctx context.Context, enabled bool, timeoutMs int64) error {
	if c.State() != InCall {
		return &SensoctoError{Message: "not in call"}
	}
	_, err := c.request(ctx, "toggle_audio", map[string]any{"enabled": enabled}, timeoutMs)
	return err
}

// ToggleVideo requires InCall; server-replied.
func (c *Call) ToggleVideo(ctx context.Context, enabled bool, timeoutMs int64) error {
	if c.State() != InCall {
		return &SensoctoError{Message: "not in call"}
	}
	_, err := c.request(ctx, "toggle_video", map[string]any{"enabled": enabled}, timeoutMs)
	return err
}

// SetQuality requires InCall; server-replied.
func (c *Call) SetQuality(ctx context.Context, quality CallQuality, timeoutMs int64) error {
	if c.State() != InCall {
		return &SensoctoError{Message: "not in call"}
	}
	_, err := c.request(ctx, "set_quality", map[string]any{"quality": string(quality)}, timeoutMs)
	return err
}

// GetParticipants is a request/reply returning user_id -> CallParticipant.
func (c *Call) GetParticipants(ctx context.Context, timeoutMs int64) (map[string]CallParticipant, error) {
	reply, err := c.request(ctx, "get_participants", nil, timeoutMs)
	if err != nil {
		return nil, err
	}
	var resp struct {
		Participants map[string]CallParticipant `json:"participants"`
	}
	if err := json.Unmarshal(reply.Response, &resp); err != nil {
		return map[string]CallParticipant{}, nil
	}
	if resp.Participants == nil {
		resp.Participants = map[string]CallParticipant{}
	}
	return resp.Participants, nil
}

// LeaveCall leaves the call but keeps the channel joined. Idempotent.
func (c *Call) LeaveCall(ctx context.Context, timeoutMs int64) error {
	if c.State() != InCall {
		return nil
	}
	_, err := c.request(ctx, "leave_call", nil, timeoutMs)
	c.mu.Lock()
	c.state = JoinedChannel
	c.endpointID = ""
	c.mu.Unlock()
	if err != nil {
		return err
	}
	c.logger.Info("left call", "topic", c.topic)
	return nil
}

// LeaveChannel cascades: leaving while InCall implicitly leaves the call
// first, then leaves call:<room_id> itself. Idempotent.
func (c *Call) LeaveChannel(ctx context.Context, timeoutMs int64) error {
	if c.State() == OutsideChannel {
		return nil
	}
	if c.State() == InCall {
		if err := c.LeaveCall(ctx, timeoutMs); err != nil {
			c.logger.Warn("leave_call during leave_channel failed", "topic", c.topic, "err", err)
		}
	}

	err := c.mux.Leave(ctx, c.topic, timeoutMs)
	c.mu.Lock()
	c.state = OutsideChannel
	c.mu.Unlock()
	if err != nil {
		return translatePhoenixError(err)
	}
	c.logger.Info("left call channel", "topic", c.topic)
	return nil
}

// Close is an alias for LeaveChannel.
func (c *Call) Close(ctx context.Context, timeoutMs int64) error {
	return c.LeaveChannel(ctx, timeoutMs)
}

func (c *Call) request(ctx context.Context, event string, payload any, timeoutMs int64) (phoenix.Reply, error) {
	reply, err := c.mux.Request(ctx, c.topic, event, payload, timeoutMs)
	if err != nil {
		return phoenix.Reply{}, translatePhoenixError(err)
	}
	if reply.Status != phoenix.StatusOK {
		return phoenix.Reply{}, &SensoctoError{Message: fmt.Sprintf("%s failed: %s", event, string(reply.Response))}
	}
	return reply, nil
}

func (c *Call) setupEventHandlers() {
	c.mux.On(c.topic, "participant_joined", func(topic, event string, payload json.RawMessage) {
		var p CallParticipant
		_ = json.Unmarshal(payload, &p)
		c.dispatch(CallEvent{Kind: CallEventParticipantJoined, Participant: &p})
	})
	c.mux.On(c.topic, "participant_left", func(topic, event string, payload json.RawMessage) {
		var body struct {
			UserID  string `json:"user_id"`
			Crashed bool   `json:"crashed"`
		}
		_ = json.Unmarshal(payload, &body)
		c.dispatch(CallEvent{Kind: CallEventParticipantLeft, UserID: body.UserID, Crashed: body.Crashed})
	})
	c.mux.On(c.topic, "media_event", func(topic, event string, payload json.RawMessage) {
		var body struct {
			Data json.RawMessage `json:"data"`
		}
		_ = json.Unmarshal(payload, &body)
		c.dispatch(CallEvent{Kind: CallEventMedia, Data: body.Data})
	})
	c.mux.On(c.topic, "participant_audio_changed", func(topic, event string, payload json.RawMessage) {
		var body struct {
			UserID       string `json:"user_id"`
			AudioEnabled bool   `json:"audio_enabled"`
		}
		_ = json.Unmarshal(payload, &body)
		c.dispatch(CallEvent{Kind: CallEventParticipantAudioChanged, UserID: body.UserID, Enabled: body.AudioEnabled})
	})
	c.mux.On(c.topic, "participant_video_changed", func(topic, event string, payload json.RawMessage) {
		var body struct {
			UserID       string `json:"user_id"`
			VideoEnabled bool   `json:"video_enabled"`
		}
		_ = json.Unmarshal(payload, &body)
		c.dispatch(CallEvent{Kind: CallEventParticipantVideoChanged, UserID: body.UserID, Enabled: body.VideoEnabled})
	})
	c.mux.On(c.topic, "quality_changed", func(topic, event string, payload json.RawMessage) {
		var body struct {
			Quality string `json:"quality"`
		}
		_ = json.Unmarshal(payload, &body)
		c.dispatch(CallEvent{Kind: CallEventQualityChanged, Quality: CallQuality(body.Quality)})
	})
	c.mux.On(c.topic, "call_ended", func(topic, event string, payload json.RawMessage) {
		// call_ended forces InCall -> JoinedChannel regardless of prior
		// state and invalidates endpoint_id.
		c.mu.Lock()
		c.state = JoinedChannel
		c.endpointID = ""
		c.mu.Unlock()
		c.dispatch(CallEvent{Kind: CallEventEnded})
	})
}
