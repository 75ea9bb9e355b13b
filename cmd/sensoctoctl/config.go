package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// fileConfig is the on-disk YAML shape sensoctoctl accepts as an alternative
// to flags. Only a subset of Config's fields are exposed here; anything
// else keeps its library default.
type fileConfig struct {
	ServerURL         string   `yaml:"server_url"`
	BearerToken       string   `yaml:"bearer_token,omitempty"`
	ConnectorName     string   `yaml:"connector_name,omitempty"`
	ConnectorType     string   `yaml:"connector_type,omitempty"`
	AutoJoinConnector *bool    `yaml:"auto_join_connector,omitempty"`
	HeartbeatSeconds  float64  `yaml:"heartbeat_interval_seconds,omitempty"`
	Features          []string `yaml:"features,omitempty"`
	LogLevel          string   `yaml:"log_level,omitempty"`
}

func loadFileConfig(path string) (*fileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file %s: %w", path, err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parse config file %s: %w", path, err)
	}
	return &fc, nil
}
