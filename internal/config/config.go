// Package config loads the daemon configuration from a YAML file with
// environment variable overrides.
package config

import (
	"fmt"
	"time"
)

// Config is the full daemon configuration.
type Config struct {
	Server        ServerConfig        `koanf:"server"`
	Log           LogConfig           `koanf:"log"`
	NATS          NATSConfig          `koanf:"nats"`
	NLU           NLUConfig           `koanf:"nlu"`
	Insights      InsightsConfig      `koanf:"insights"`
	Orchestrator  OrchestratorConfig  `koanf:"orchestrator"`
	Observability ObservabilityConfig `koanf:"observability"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port            int           `koanf:"port"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// LogConfig configures logging output.
type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"` // json or console
}

// NATSConfig configures the checkpoint backend. With Enabled false the
// daemon runs on the in-memory store.
type NATSConfig struct {
	Enabled bool   `koanf:"enabled"`
	URL     string `koanf:"url"`
	Bucket  string `koanf:"bucket"`
}

// NLUConfig configures the message classifier. Provider "rules" runs the
// keyword classifier; "openai" uses a chat model endpoint.
type NLUConfig struct {
	Provider          string        `koanf:"provider"`
	BaseURL           string        `koanf:"base_url"`
	Model             string        `koanf:"model"`
	APIKey            string        `koanf:"api_key"`
	Timeout           time.Duration `koanf:"timeout"`
	RequestsPerSecond float64       `koanf:"requests_per_second"`
}

// InsightsConfig configures the observation store. An empty Path keeps
// observations in memory.
type InsightsConfig struct {
	Path       string `koanf:"path"`
	Collection string `koanf:"collection"`
}

// OrchestratorConfig bounds turn execution.
type OrchestratorConfig struct {
	MaxHops       int `koanf:"max_hops"`
	HistoryWindow int `koanf:"history_window"`
}

// ObservabilityConfig configures telemetry export. An empty OTLP endpoint
// disables export.
type ObservabilityConfig struct {
	ServiceName  string  `koanf:"service_name"`
	OTLPEndpoint string  `koanf:"otlp_endpoint"`
	OTLPProtocol string  `koanf:"otlp_protocol"` // grpc or http
	SampleRate   float64 `koanf:"sample_rate"`
}

// applyDefaults sets default values for missing configuration fields.
func applyDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8420
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 10 * time.Second
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}

	if cfg.NATS.URL == "" {
		cfg.NATS.URL = "nats://localhost:4222"
	}
	if cfg.NATS.Bucket == "" {
		cfg.NATS.Bucket = "lume_threads"
	}

	if cfg.NLU.Provider == "" {
		cfg.NLU.Provider = "rules"
	}
	if cfg.NLU.BaseURL == "" {
		cfg.NLU.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.NLU.Model == "" {
		cfg.NLU.Model = "gpt-4o-mini"
	}
	if cfg.NLU.Timeout == 0 {
		cfg.NLU.Timeout = 10 * time.Second
	}
	if cfg.NLU.RequestsPerSecond == 0 {
		cfg.NLU.RequestsPerSecond = 5
	}

	if cfg.Insights.Collection == "" {
		cfg.Insights.Collection = "lume_insights"
	}

	if cfg.Orchestrator.MaxHops == 0 {
		cfg.Orchestrator.MaxHops = 8
	}
	if cfg.Orchestrator.HistoryWindow == 0 {
		cfg.Orchestrator.HistoryWindow = 40
	}

	if cfg.Observability.ServiceName == "" {
		cfg.Observability.ServiceName = "lumed"
	}
	if cfg.Observability.OTLPProtocol == "" {
		cfg.Observability.OTLPProtocol = "grpc"
	}
	if cfg.Observability.SampleRate == 0 {
		cfg.Observability.SampleRate = 1.0
	}
}

// Validate checks the configuration for values the daemon cannot run with.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server port out of range: %d", c.Server.Port)
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		return fmt.Errorf("unknown log format: %s", c.Log.Format)
	}
	switch c.NLU.Provider {
	case "rules", "openai":
	default:
		return fmt.Errorf("unknown nlu provider: %s", c.NLU.Provider)
	}
	if c.NLU.Provider == "openai" && c.NLU.APIKey == "" {
		return fmt.Errorf("nlu provider openai requires an api key")
	}
	switch c.Observability.OTLPProtocol {
	case "grpc", "http":
	default:
		return fmt.Errorf("unknown otlp protocol: %s", c.Observability.OTLPProtocol)
	}
	if c.Observability.SampleRate < 0 || c.Observability.SampleRate > 1 {
		return fmt.Errorf("sample rate out of range: %f", c.Observability.SampleRate)
	}
	if c.Orchestrator.MaxHops < 1 {
		return fmt.Errorf("orchestrator max hops must be positive")
	}
	return nil
}
