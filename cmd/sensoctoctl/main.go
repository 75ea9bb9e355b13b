package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"sensocto"
)

func main() {
	var (
		serverURL  = flag.String("server", "http://127.0.0.1:4000", "Sensocto server URL")
		token      = flag.String("token", "", "Bearer token for authentication")
		configPath = flag.String("config", "", "Optional YAML config file (overrides flag defaults)")
		sensorName = flag.String("sensor", "", "If set, register a demo sensor with this name and stream a heartbeat measurement")
		attribute  = flag.String("attribute", "temperature_c", "Attribute id to stream when -sensor is set")
		roomID     = flag.String("room", "", "If set, join this call room as a demo participant")
		userID     = flag.String("user", "sensoctoctl", "User id to use when joining a call room")
		logLevel   = flag.String("log-level", "info", "Log level: debug, info, warn, error")
	)
	flag.Parse()

	cfg := sensocto.DefaultConfig(*serverURL)
	cfg.BearerToken = *token
	cfg.ConnectorName = "sensoctoctl"
	cfg.ConnectorType = "cli"

	if *configPath != "" {
		fc, err := loadFileConfig(*configPath)
		if err != nil {
			log.Fatalf("config: %v", err)
		}
		applyFileConfig(&cfg, fc)
		if fc.LogLevel != "" {
			*logLevel = fc.LogLevel
		}
	}

	level, err := sensocto.ParseLogLevel(*logLevel)
	if err != nil {
		log.Fatalf("%v", err)
	}
	cfg.Logger = sensocto.NewLogger(level)

	client, err := sensocto.FromConfig(cfg)
	if err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ConnectionTimeout)
	defer cancel()

	log.Printf("connecting to %s...", cfg.ServerURL)
	if err := client.Connect(ctx); err != nil {
		log.Fatalf("connect failed: %v", err)
	}
	log.Printf("connected (connector_id=%s)", client.ConnectorID())

	done := make(chan struct{})

	if *sensorName != "" {
		go runSensorDemo(client, *sensorName, *attribute, done)
	}
	if *roomID != "" {
		go runCallDemo(client, *roomID, *userID, done)
	}
	if *sensorName == "" && *roomID == "" {
		close(done)
	}

	select {
	case <-sigc:
		log.Printf("shutting down...")
	case <-done:
		log.Printf("demo finished, press Ctrl+C to exit")
		<-sigc
	}

	if err := client.Disconnect(); err != nil {
		log.Printf("disconnect: %v", err)
	}
}

func applyFileConfig(cfg *sensocto.Config, fc *fileConfig) {
	if fc.ServerURL != "" {
		cfg.ServerURL = fc.ServerURL
	}
	if fc.BearerToken != "" {
		cfg.BearerToken = fc.BearerToken
	}
	if fc.ConnectorName != "" {
		cfg.ConnectorName = fc.ConnectorName
	}
	if fc.ConnectorType != "" {
		cfg.ConnectorType = fc.ConnectorType
	}
	if fc.AutoJoinConnector != nil {
		cfg.AutoJoinConnector = *fc.AutoJoinConnector
	}
	if fc.HeartbeatSeconds > 0 {
		cfg.HeartbeatInterval = time.Duration(fc.HeartbeatSeconds * float64(time.Second))
	}
	if len(fc.Features) > 0 {
		cfg.Features = fc.Features
	}
}

func runSensorDemo(client *sensocto.Client, sensorName, attribute string, done chan struct{}) {
	sc := sensocto.NewSensorConfig(sensorName).
		WithAttributes([]string{attribute}).
		WithSamplingRate(1)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	stream, err := client.RegisterSensor(ctx, sc)
	if err != nil {
		log.Printf("register sensor failed: %v", err)
		close(done)
		return
	}

	stream.OnBackpressure(func(state sensocto.BackpressureState) {
		log.Printf("backpressure: level=%s window_ms=%d batch_size=%d",
			state.AttentionLevel, state.BatchWindowMs, state.BatchSize)
	})

	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for i := 0; i < 5; i++ {
		<-ticker.C
		payload := map[string]any{"value": 20.0 + float64(i)*0.3}
		if err := stream.SendMeasurement(attribute, payload, nil); err != nil {
			log.Printf("send measurement failed: %v", err)
		} else {
			log.Printf("sent measurement %s=%v", attribute, payload["value"])
		}
	}

	leaveCtx, leaveCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer leaveCancel()
	if err := stream.Close(leaveCtx, 5000); err != nil {
		log.Printf("leave sensor failed: %v", err)
	}
	close(done)
}

func runCallDemo(client *sensocto.Client, roomID, userID string, done chan struct{}) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	call, err := client.JoinCall(ctx, roomID, userID, nil)
	if err != nil {
		log.Printf("join call channel failed: %v", err)
		close(done)
		return
	}

	call.OnEvent(func(evt sensocto.CallEvent) {
		b, _ := json.Marshal(evt)
		fmt.Printf("[call-event] %s\n", string(b))
	})

	endpointID, err := call.JoinCall(ctx, 5000)
	if err != nil {
		log.Printf("join call failed: %v", err)
	} else {
		log.Printf("in call, endpoint_id=%s", endpointID)
	}

	time.Sleep(5 * time.Second)

	leaveCtx, leaveCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer leaveCancel()
	if err := call.Close(leaveCtx, 5000); err != nil {
		log.Printf("leave call channel failed: %v", err)
	}
	close(done)
}
