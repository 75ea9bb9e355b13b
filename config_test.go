package sensocto

import (
	"log/slog"
	"testing"
	"time"

	"sensocto/internal/phoenix"
)

func TestEndpointDerivation(t *testing.T) {
	cases := []struct {
		serverURL string
		want      string
	}{
		{"http://localhost:4000", "ws://localhost:4000/socket/websocket"},
		{"https://sensocto.example", "wss://sensocto.example/socket/websocket"},
		{"https://sensocto.example:8443", "wss://sensocto.example:8443/socket/websocket"},
		{"https://sensocto.example:8443/ignored?query=1#frag", "wss://sensocto.example:8443/socket/websocket"},
	}
	for _, tc := range cases {
		got, err := phoenix.Endpoint(tc.serverURL)
		if err != nil {
			t.Fatalf("Endpoint(%q): %v", tc.serverURL, err)
		}
		if got != tc.want {
			t.Errorf("Endpoint(%q) = %q, want %q", tc.serverURL, got, tc.want)
		}
	}
}

func TestConfigValidateRejectsEmptyServerURL(t *testing.T) {
	cfg := Config{}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for empty server_url")
	} else if _, ok := err.(*InvalidConfigError); !ok {
		t.Errorf("error type = %T, want *InvalidConfigError", err)
	}
}

func TestConfigValidateRejectsUnsupportedScheme(t *testing.T) {
	cfg := DefaultConfig("ftp://sensocto.example")
	cfg.HeartbeatInterval = time.Second
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for ftp scheme")
	}
}

func TestConfigValidateRejectsSubSecondHeartbeat(t *testing.T) {
	cfg := DefaultConfig("https://sensocto.example")
	cfg.HeartbeatInterval = 100 * time.Millisecond
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for sub-second heartbeat interval")
	}
}

func TestConfigValidateAutoGeneratesConnectorID(t *testing.T) {
	cfg := DefaultConfig("https://sensocto.example")
	cfg.HeartbeatInterval = time.Second
	cfg.ConnectorID = ""
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if cfg.ConnectorID == "" {
		t.Error("expected ConnectorID to be auto-generated")
	}
}

func TestWarnIfTokenExpiredDoesNotFailValidation(t *testing.T) {
	// An already-expired JWT should only log a warning, never fail Validate.
	expired := "eyJhbGciOiJub25lIn0.eyJleHAiOjF9."
	cfg := DefaultConfig("https://sensocto.example")
	cfg.HeartbeatInterval = time.Second
	cfg.BearerToken = expired
	cfg.Logger = slog.New(slog.NewTextHandler(discardWriter{}, nil))
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate with expired token: %v", err)
	}
}

func TestSensorConfigBuildersAreCopySemantics(t *testing.T) {
	base := NewSensorConfig("demo")
	withAttrs := base.WithAttributes([]string{"temperature_c"}).WithSamplingRate(5).WithBatchSize(10)

	if len(base.Attributes) != 0 {
		t.Errorf("base.Attributes mutated by builder chain: %v", base.Attributes)
	}
	if len(withAttrs.Attributes) != 1 || withAttrs.Attributes[0] != "temperature_c" {
		t.Errorf("withAttrs.Attributes = %v", withAttrs.Attributes)
	}
	if withAttrs.SamplingRateHz != 5 || withAttrs.BatchSize != 10 {
		t.Errorf("withAttrs sampling/batch = %d/%d, want 5/10", withAttrs.SamplingRateHz, withAttrs.BatchSize)
	}
	if base.SamplingRateHz != 10 || base.BatchSize != 5 {
		t.Errorf("base defaults mutated: sampling=%d batch=%d", base.SamplingRateHz, base.BatchSize)
	}
}
