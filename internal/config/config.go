package config

import (
	"fmt"
	"net/url"
)

type Config struct {
	ServerAddr     string
	DatabaseDSN    string
	BridgeURL      string
	AllowedOrigins []string
}

func NewConfig(serverAddr, databaseDSN, bridgeURL string, allowedOrigins []string) (*Config, error) {
	if serverAddr == "" {
		return nil, fmt.Errorf("server address cannot be empty")
	}
	if databaseDSN == "" {
		return nil, fmt.Errorf("database DSN cannot be empty")
	}
	if bridgeURL == "" {
		return nil, fmt.Errorf("bridge URL cannot be empty")
	}

	u, err := url.Parse(bridgeURL)
	if err != nil {
		return nil, fmt.Errorf("parse bridge URL: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return nil, fmt.Errorf("bridge URL scheme must be ws or wss, got %q", u.Scheme)
	}

	return &Config{
		ServerAddr:     serverAddr,
		DatabaseDSN:    databaseDSN,
		BridgeURL:      bridgeURL,
		AllowedOrigins: allowedOrigins,
	}, nil
}
