package sensocto

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"sensocto/internal/phoenix"
)

// Client is the facade composing Transport, Reconnect Supervisor, Reply
// Registry, Multiplexer, and Backpressure Controller. It exclusively owns
// those resources; Streams and Call sessions hold weak references to them
// and are owned by the caller. Closing a Stream/Call leaves the Client
// intact; closing the Client invalidates all Streams/Calls.
type Client struct {
	logger *slog.Logger
	config Config

	transport *phoenix.Transport
	refs      *phoenix.RefAllocator
	registry  *phoenix.Registry
	mux       *phoenix.Multiplexer
	heartbeat *phoenix.Heartbeat
	reconnect *phoenix.Reconnect
	bp        *backpressureController

	metrics *metricsCollector

	mu              sync.Mutex
	state           ConnectionState
	connectorJoined bool
	hostSnapshot    *hostSnapshot

	readLoopDone chan struct{}
}

// New constructs a Client from cfg, validating it first.
func New(cfg Config) (*Client, error) {
	if cfg.Logger == nil {
		cfg.Logger = setupLogger(LogLevelInfo)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	c := &Client{
		logger: cfg.Logger,
		config: cfg,
		state:  StateDisconnected,
	}
	c.refs = phoenix.NewRefAllocator()
	c.registry = phoenix.NewRegistry()
	c.transport = phoenix.NewTransport(c.logger, phoenix.WithHandshakeTimeout(cfg.ConnectionTimeout))
	c.mux = phoenix.NewMultiplexer(c.logger, c.transport, c.refs, c.registry)
	c.metrics = newMetricsCollector()
	c.bp = newBackpressureController(c.logger, c.metrics)
	c.reconnect = phoenix.NewReconnect(c.logger, c.dial, 2*time.Second, cfg.MaxReconnectAttempts, c.onSupervisorState)
	return c, nil
}

// FromConfig is an alias for New, matching the Python SDK's
// SensoctoClient.from_config constructor name.
func FromConfig(cfg Config) (*Client, error) { return New(cfg) }

// ConnectionState reports the facade's current lifecycle state.
func (c *Client) ConnectionState() ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// IsConnected reports whether the facade is in the Connected state.
func (c *Client) IsConnected() bool {
	return c.ConnectionState() == StateConnected
}

// ConnectorID returns the connector identity configured (or auto-generated)
// for this client.
func (c *Client) ConnectorID() string { return c.config.ConnectorID }

// Connect dials the transport, starts the heartbeat driver, and — when
// auto_join_connector is set — joins the connector presence channel.
// Concurrently with the dial it prefetches a local host snapshot (CPU/
// memory/uptime) so that snapshot is ready by the time the connector join
// payload is built, without adding dial latency.
func (c *Client) Connect(ctx context.Context) error {
	c.setState(StateConnecting)
	c.logger.Info("connecting", "server_url", c.config.ServerURL)

	endpoint, err := phoenix.Endpoint(c.config.ServerURL)
	if err != nil {
		c.setState(StateError)
		return newInvalidConfigError(err.Error())
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return c.dial(gctx)
	})
	g.Go(func() error {
		c.mu.Lock()
		c.hostSnapshot = captureHostSnapshot(c.logger)
		c.mu.Unlock()
		return nil
	})

	if err := g.Wait(); err != nil {
		c.setState(StateError)
		return newConnectError(err)
	}

	c.setState(StateConnected)
	c.logger.Info("connected", "endpoint", endpoint)
	c.metrics.setConnected(true)

	if c.config.AutoJoinConnector {
		if err := c.joinConnectorChannel(ctx); err != nil {
			c.logger.Warn("failed to join connector channel", "err", err)
		}
	}
	return nil
}

// dial is the Dialer the Reconnect Supervisor (and the initial Connect)
// uses to (re-)establish the transport. On success it resets the ref
// counter, starts a fresh inbound read loop and heartbeat driver, and
// rejoins every remembered topic.
func (c *Client) dial(ctx context.Context) error {
	endpoint, err := phoenix.Endpoint(c.config.ServerURL)
	if err != nil {
		return err
	}

	var header http.Header
	if c.config.BearerToken != "" {
		header = http.Header{"Authorization": []string{"Bearer " + c.config.BearerToken}}
	}

	if err := c.transport.Open(ctx, endpoint, header); err != nil {
		return err
	}

	c.refs.Reset()

	done := make(chan struct{})
	c.mu.Lock()
	c.readLoopDone = done
	c.mu.Unlock()

	go func() {
		defer close(done)
		c.transport.ReadLoop(c.onMessage, c.onTransportClosed)
	}()

	if c.heartbeat != nil {
		c.heartbeat.Stop()
	}
	c.heartbeat = phoenix.NewHeartbeat(c.logger, c.mux, c.config.HeartbeatInterval, c.onTransportLost)
	c.heartbeat.Start(context.Background(), c.refs, c.registry)

	failures := c.mux.RejoinAll(context.Background(), c.config.ConnectionTimeout.Milliseconds())
	for topic, ferr := range failures {
		c.logger.Warn("rejoin failed after reconnect", "topic", topic, "err", ferr)
	}
	c.metrics.incReconnectAttempt()
	return nil
}

func (c *Client) onMessage(data []byte) {
	frame, err := phoenix.Decode(data)
	if err != nil {
		c.logger.Warn("discarding malformed frame", "err", err)
		return
	}
	c.mux.Dispatch(frame)
}

func (c *Client) onTransportClosed(err error) {
	c.logger.Warn("transport read loop ended", "err", err)
	c.onTransportLost()
}

func (c *Client) onTransportLost() {
	c.mu.Lock()
	already := c.state == StateReconnecting || c.state == StateDisconnected
	c.mu.Unlock()
	if already {
		return
	}

	c.registry.FailAll(phoenix.ErrDisconnected)
	c.metrics.setConnected(false)

	if !c.config.AutoReconnect {
		c.setState(StateDisconnected)
		return
	}

	c.setState(StateReconnecting)
	go func() {
		if err := c.reconnect.Recover(context.Background()); err != nil {
			c.logger.Error("reconnect exhausted", "err", err)
			c.setState(StateError)
			return
		}
		c.setState(StateConnected)
	}()
}

func (c *Client) onSupervisorState(s phoenix.SupervisorState) {
	c.logger.Debug("reconnect supervisor state", "state", s.String())
}

// connectorJoinPayload is the join payload for sensocto:connector:<id>,
// enriched with an optional host snapshot beyond the exact required keys.
type connectorJoinPayload struct {
	ConnectorID   string     `json:"connector_id"`
	ConnectorName string     `json:"connector_name"`
	ConnectorType string     `json:"connector_type"`
	Features      []string   `json:"features"`
	BearerToken   string     `json:"bearer_token"`
	SystemInfo    *hostSnapshot `json:"system_info,omitempty"`
}

func (c *Client) joinConnectorChannel(ctx context.Context) error {
	topic := fmt.Sprintf("sensocto:connector:%s", c.config.ConnectorID)

	c.mu.Lock()
	snapshot := c.hostSnapshot
	c.mu.Unlock()

	payload := connectorJoinPayload{
		ConnectorID:   c.config.ConnectorID,
		ConnectorName: c.config.ConnectorName,
		ConnectorType: c.config.ConnectorType,
		Features:      c.config.Features,
		BearerToken:   c.config.BearerToken,
		SystemInfo:    snapshot,
	}

	c.mux.Subscribe(topic, payload)
	if err := c.mux.Join(ctx, topic, c.config.ConnectionTimeout.Milliseconds()); err != nil {
		return translatePhoenixError(err)
	}
	c.mu.Lock()
	c.connectorJoined = true
	c.mu.Unlock()
	c.logger.Info("joined connector channel", "topic", topic)
	return nil
}

// RegisterSensor joins a sensor channel and returns a Stream for sending
// measurements.
func (c *Client) RegisterSensor(ctx context.Context, cfg SensorConfig) (*Stream, error) {
	if !c.IsConnected() {
		return nil, ErrDisconnected
	}

	stream := newStream(c.logger, c.mux, c.bp, c.metrics, cfg.SensorID, cfg, c.IsConnected)

	joinParams := map[string]any{
		"connector_id":   c.config.ConnectorID,
		"connector_name": c.config.ConnectorName,
		"sensor_id":      cfg.SensorID,
		"sensor_name":    cfg.SensorName,
		"sensor_type":    cfg.SensorType,
		"attributes":     cfg.Attributes,
		"sampling_rate":  cfg.SamplingRateHz,
		"batch_size":     cfg.BatchSize,
		"bearer_token":   c.config.BearerToken,
	}

	if err := stream.Join(ctx, joinParams, c.config.ConnectionTimeout.Milliseconds()); err != nil {
		return nil, err
	}
	c.logger.Info("registered sensor", "sensor_id", cfg.SensorID)
	return stream, nil
}

// JoinCall joins a video/voice call channel in room_id as user_id, returning
// a Call for managing the session.
func (c *Client) JoinCall(ctx context.Context, roomID, userID string, userInfo map[string]any) (*Call, error) {
	if !c.IsConnected() {
		return nil, ErrDisconnected
	}

	call := newCall(c.logger, c.mux, roomID, userID)
	if err := call.JoinChannel(ctx, userInfo, c.config.ConnectionTimeout.Milliseconds()); err != nil {
		return nil, err
	}
	c.logger.Info("joined call channel", "room_id", roomID)
	return call, nil
}

// Disconnect tears down the transport and every in-flight awaiter, and
// returns the facade to Disconnected. Subsequent operations on any Stream
// or Call obtained from this Client fail with ErrDisconnected.
func (c *Client) Disconnect() error {
	if c.heartbeat != nil {
		c.heartbeat.Stop()
	}
	c.registry.FailAll(phoenix.ErrDisconnected)
	err := c.transport.Close()

	c.mu.Lock()
	c.connectorJoined = false
	c.mu.Unlock()

	c.setState(StateDisconnected)
	c.metrics.setConnected(false)
	c.logger.Info("disconnected")
	return err
}

func (c *Client) setState(s ConnectionState) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}
