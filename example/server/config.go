package main

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/joeshaw/envdecode"
)

const (
	transportStdIO = "stdio"
	transportSSE   = "sse"
)

type config struct {
	// Transport is "stdio" or "sse". ENV: MCP_TRANSPORT
	Transport string `env:"MCP_TRANSPORT,default=stdio"`
	// Addr is the listen address for the sse transport. ENV: MCP_ADDR
	Addr string `env:"MCP_ADDR,default=:8080"`
	// BaseURL is the externally visible origin the endpoint event points clients at. ENV: MCP_BASE_URL
	BaseURL string `env:"MCP_BASE_URL,default=http://localhost:8080"`
	// FSRoot enables the filesystem server for this directory. ENV: MCP_FS_ROOT
	FSRoot string `env:"MCP_FS_ROOT"`
	// MemoryFile enables the knowledge graph server backed by this file. ENV: MCP_MEMORY_FILE
	MemoryFile string `env:"MCP_MEMORY_FILE"`
	// LogLevel is one of debug, info, warn or error. ENV: MCP_LOG_LEVEL
	LogLevel string `env:"MCP_LOG_LEVEL,default=info"`
	// SSEKeepAlive is the interval between keep-alive comments on idle streams. ENV: MCP_SSE_KEEPALIVE
	SSEKeepAlive time.Duration `env:"MCP_SSE_KEEPALIVE,default=30s"`
	// RateLimit caps POSTed messages per second and session; zero disables it. ENV: MCP_RATE_LIMIT
	RateLimit float64 `env:"MCP_RATE_LIMIT,default=0"`
	// RateBurst is the burst allowed above RateLimit. ENV: MCP_RATE_BURST
	RateBurst int `env:"MCP_RATE_BURST,default=20"`
	// UpdateInterval is how often the everything server touches its resources. ENV: MCP_UPDATE_INTERVAL
	UpdateInterval time.Duration `env:"MCP_UPDATE_INTERVAL,default=30s"`
}

func loadConfig() (config, error) {
	var cfg config
	if err := envdecode.Decode(&cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return config{}, fmt.Errorf("failed to decode environment: %w", err)
	}

	switch cfg.Transport {
	case transportStdIO, transportSSE:
	default:
		return config{}, fmt.Errorf("unknown transport %q", cfg.Transport)
	}
	return cfg, nil
}

func (c config) level() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return level
}
