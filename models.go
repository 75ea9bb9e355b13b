package sensocto

import "encoding/json"

// ConnectionState is the facade's connection lifecycle state.
type ConnectionState string

const (
	StateDisconnected ConnectionState = "disconnected"
	StateConnecting   ConnectionState = "connecting"
	StateConnected    ConnectionState = "connected"
	StateReconnecting ConnectionState = "reconnecting"
	StateError        ConnectionState = "error"
)

// AttentionLevel is the server-reported load signal driving client batching.
type AttentionLevel string

const (
	AttentionNone   AttentionLevel = "none"
	AttentionLow    AttentionLevel = "low"
	AttentionMedium AttentionLevel = "medium"
	AttentionHigh   AttentionLevel = "high"
)

// RecommendedBatchWindowMs returns the canonical batch window for a, used
// when the server sends only an attention level with no explicit numbers.
func (a AttentionLevel) RecommendedBatchWindowMs() int64 {
	switch a {
	case AttentionHigh:
		return 100
	case AttentionMedium:
		return 500
	case AttentionLow:
		return 2000
	default:
		return 5000
	}
}

// RecommendedBatchSize returns the canonical batch size for a.
func (a AttentionLevel) RecommendedBatchSize() int {
	switch a {
	case AttentionHigh:
		return 1
	case AttentionMedium:
		return 5
	case AttentionLow:
		return 10
	default:
		return 20
	}
}

// normalizeAttentionLevel maps an unrecognized value to AttentionNone, per
// "unknown attention levels default to none".
func normalizeAttentionLevel(s string) AttentionLevel {
	switch AttentionLevel(s) {
	case AttentionLow, AttentionMedium, AttentionHigh, AttentionNone:
		return AttentionLevel(s)
	default:
		return AttentionNone
	}
}

// RoomRole is a room membership role.
type RoomRole string

const (
	RoomRoleOwner  RoomRole = "owner"
	RoomRoleAdmin  RoomRole = "admin"
	RoomRoleMember RoomRole = "member"
)

// Measurement is a single sensor measurement.
type Measurement struct {
	AttributeID string          `json:"attribute_id"`
	Payload     json.RawMessage `json:"payload"`
	TimestampMs int64           `json:"timestamp"`
}

// BackpressureState is the per-sensor-topic batching configuration derived
// from server-advertised attention.
type BackpressureState struct {
	AttentionLevel AttentionLevel `json:"attention_level"`
	BatchWindowMs  int64          `json:"recommended_batch_window"`
	BatchSize      int            `json:"recommended_batch_size"`
	AsOfMs         int64          `json:"timestamp"`
}

// defaultBackpressureState is used for every sensor topic the server hasn't
// spoken to yet.
func defaultBackpressureState() BackpressureState {
	return BackpressureState{
		AttentionLevel: AttentionNone,
		BatchWindowMs:  5000,
		BatchSize:      20,
	}
}

// backpressureConfigPayload is the wire shape of a backpressure_config frame.
type backpressureConfigPayload struct {
	AttentionLevel         string `json:"attention_level"`
	RecommendedBatchWindow *int64 `json:"recommended_batch_window"`
	RecommendedBatchSize   *int   `json:"recommended_batch_size"`
	Timestamp              int64  `json:"timestamp"`
}

// stateFromPayload builds a BackpressureState from a server payload, falling
// back to the canonical attention-level mapping for any field the server
// omitted.
func stateFromPayload(p backpressureConfigPayload) BackpressureState {
	level := normalizeAttentionLevel(p.AttentionLevel)
	s := BackpressureState{
		AttentionLevel: level,
		BatchWindowMs:  level.RecommendedBatchWindowMs(),
		BatchSize:      level.RecommendedBatchSize(),
		AsOfMs:         p.Timestamp,
	}
	if p.RecommendedBatchWindow != nil {
		s.BatchWindowMs = *p.RecommendedBatchWindow
	}
	if p.RecommendedBatchSize != nil {
		s.BatchSize = *p.RecommendedBatchSize
	}
	return s
}

// Room describes a Sensocto room.
type Room struct {
	ID            string         `json:"id"`
	Name          string         `json:"name"`
	Description   string         `json:"description,omitempty"`
	JoinCode      string         `json:"join_code,omitempty"`
	IsPublic      bool           `json:"is_public"`
	CallsEnabled  bool           `json:"calls_enabled"`
	OwnerID       string         `json:"owner_id"`
	Configuration map[string]any `json:"configuration,omitempty"`
}

// User describes a Sensocto user.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email,omitempty"`
}

// CallParticipant describes one participant in a call.
type CallParticipant struct {
	UserID       string         `json:"user_id"`
	EndpointID   string         `json:"endpoint_id"`
	UserInfo     map[string]any `json:"user_info,omitempty"`
	JoinedAt     string         `json:"joined_at,omitempty"`
	AudioEnabled bool           `json:"audio_enabled"`
	VideoEnabled bool           `json:"video_enabled"`
}

// IceServer is one STUN/TURN server entry handed back by join_channel.
type IceServer struct {
	URLs       []string `json:"urls"`
	Username   string   `json:"username,omitempty"`
	Credential string   `json:"credential,omitempty"`
}

// CallQuality is the set of values accepted by Call.SetQuality.
type CallQuality string

const (
	QualityHigh   CallQuality = "high"
	QualityMedium CallQuality = "medium"
	QualityLow    CallQuality = "low"
	QualityAuto   CallQuality = "auto"
)

// SensorEventKind names the kinds of server->client events on a sensor
// topic. Stream does not tag anything it delivers with these values.
type SensorEventKind string

const (
	SensorEventBackpressureConfig SensorEventKind = "backpressure_config"
	SensorEventGeneric            SensorEventKind = "generic"
)

// BackpressureConfigEvent pairs a sensor topic with a BackpressureState.
// Stream's backpressure observers receive the BackpressureState alone, not
// this type.
type BackpressureConfigEvent struct {
	Topic  string
	Config BackpressureState
}

// GenericSensorEvent wraps any other server->client event for a sensor topic
// as its event name and raw payload. Stream has no method that delivers it.
type GenericSensorEvent struct {
	Event   string
	Payload json.RawMessage
}

// CallEventKind discriminates typed call-session dispatch records.
type CallEventKind string

const (
	CallEventParticipantJoined       CallEventKind = "participant_joined"
	CallEventParticipantLeft         CallEventKind = "participant_left"
	CallEventMedia                   CallEventKind = "media_event"
	CallEventParticipantAudioChanged CallEventKind = "participant_audio_changed"
	CallEventParticipantVideoChanged CallEventKind = "participant_video_changed"
	CallEventQualityChanged          CallEventKind = "quality_changed"
	CallEventEnded                   CallEventKind = "call_ended"
)

// CallEvent is the typed dispatch record delivered to Call.OnEvent observers.
type CallEvent struct {
	Kind CallEventKind

	Participant *CallParticipant // CallEventParticipantJoined
	UserID      string           // ParticipantLeft / AudioChanged / VideoChanged
	Crashed     bool             // CallEventParticipantLeft
	Enabled     bool             // AudioChanged / VideoChanged
	Data        json.RawMessage  // CallEventMedia
	Quality     CallQuality      // CallEventQualityChanged
}
