package sensocto

import (
	"log/slog"
	"net/url"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Config is the facade's configuration surface.
type Config struct {
	ServerURL string

	BearerToken string

	ConnectorID       string
	ConnectorName     string
	ConnectorType     string
	AutoJoinConnector bool

	HeartbeatInterval    time.Duration
	ConnectionTimeout    time.Duration
	AutoReconnect        bool
	MaxReconnectAttempts int

	Features []string

	// Logger is optional; Client falls back to setupLogger(LogLevelInfo).
	Logger *slog.Logger
}

// DefaultConfig returns a Config with every field the library defaults when
// the caller omits it, per the configuration surface in the external
// interfaces section of the requirements.
func DefaultConfig(serverURL string) Config {
	return Config{
		ServerURL:            serverURL,
		ConnectorID:          uuid.NewString(),
		ConnectorName:        "Go Connector",
		ConnectorType:        "go",
		AutoJoinConnector:    true,
		HeartbeatInterval:    30 * time.Second,
		ConnectionTimeout:    10 * time.Second,
		AutoReconnect:        true,
		MaxReconnectAttempts: 5,
	}
}

// Validate checks the configuration before Connect is attempted, failing
// fast with InvalidConfigError.
func (c *Config) Validate() error {
	if c.ServerURL == "" {
		return newInvalidConfigError("server_url is required")
	}

	u, err := url.Parse(c.ServerURL)
	if err != nil {
		return newInvalidConfigError("server_url is not a valid URL: " + err.Error())
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return newInvalidConfigError("server_url must use http or https scheme")
	}
	if u.Host == "" {
		return newInvalidConfigError("server_url must have a host")
	}

	if c.HeartbeatInterval < time.Second {
		return newInvalidConfigError("heartbeat_interval_seconds must be at least 1 second")
	}

	if c.ConnectorID == "" {
		c.ConnectorID = uuid.NewString()
	}

	warnIfTokenExpired(c)

	return nil
}

// warnIfTokenExpired parses the bearer token's claims, without verifying its
// signature (the issuing authority is an external collaborator), purely to
// log a warning if it's already expired before dialing. The warning does not
// fail validation, and the connect attempt still proceeds. A token that
// doesn't parse as a JWT is left untouched; not every deployment issues JWTs.
func warnIfTokenExpired(c *Config) {
	if c.BearerToken == "" {
		return
	}
	parser := jwt.NewParser()
	claims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(c.BearerToken, claims); err != nil {
		return
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return
	}
	if exp.Before(time.Now()) {
		logger := c.Logger
		if logger == nil {
			return
		}
		logger.Warn("bearer_token already expired", "exp", exp.Time)
	}
}

// SensorConfig is the configuration for one Sensor Stream.
type SensorConfig struct {
	SensorName     string
	SensorID       string
	SensorType     string
	Attributes     []string
	SamplingRateHz int
	BatchSize      int
}

// NewSensorConfig returns defaults matching the external interfaces
// section: auto-UUID sensor_id, generic sensor_type, 10Hz sampling, batch
// size 5.
func NewSensorConfig(sensorName string) SensorConfig {
	return SensorConfig{
		SensorName:     sensorName,
		SensorID:       uuid.NewString(),
		SensorType:     "generic",
		SamplingRateHz: 10,
		BatchSize:      5,
	}
}

// WithSensorID returns a copy of c with SensorID set.
func (c SensorConfig) WithSensorID(id string) SensorConfig { c.SensorID = id; return c }

// WithSensorType returns a copy of c with SensorType set.
func (c SensorConfig) WithSensorType(t string) SensorConfig { c.SensorType = t; return c }

// WithAttributes returns a copy of c with Attributes set.
func (c SensorConfig) WithAttributes(attrs []string) SensorConfig { c.Attributes = attrs; return c }

// WithSamplingRate returns a copy of c with SamplingRateHz set.
func (c SensorConfig) WithSamplingRate(hz int) SensorConfig { c.SamplingRateHz = hz; return c }

// WithBatchSize returns a copy of c with BatchSize set.
func (c SensorConfig) WithBatchSize(size int) SensorConfig { c.BatchSize = size; return c }
