package config

import (
	"fmt"
	"time"
)

const defaultPollInterval = 3 * time.Second

type Config struct {
	ServerAddr     string
	DatabaseDSN    string
	AllowedOrigins []string
	PollInterval   time.Duration
}

func NewConfig(serverAddr, databaseDSN string, allowedOrigins []string, pollInterval time.Duration) (*Config, error) {
	if serverAddr == "" {
		return nil, fmt.Errorf("server address cannot be empty")
	}
	if databaseDSN == "" {
		return nil, fmt.Errorf("database DSN cannot be empty")
	}
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}

	return &Config{
		ServerAddr:     serverAddr,
		DatabaseDSN:    databaseDSN,
		AllowedOrigins: allowedOrigins,
		PollInterval:   pollInterval,
	}, nil
}
