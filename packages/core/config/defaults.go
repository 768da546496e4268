package config

import (
	"github.com/abdul-hamid-achik/testforge/packages/core/execution"
	"github.com/abdul-hamid-achik/testforge/packages/http"
	"github.com/abdul-hamid-achik/testforge/packages/store"
)

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	return &Config{
		Timeout:           30000, // 30 seconds
		MaxRedirects:      http.DefaultMaxRedirects,
		ValidateSSL:       BoolPtr(true),
		Workers:           execution.DefaultWorkers,
		QueueSize:         execution.DefaultQueueSize,
		RedactCredentials: BoolPtr(true),
		LogLevel:          "info",
		Database:          store.MemoryDSN,
	}
}
