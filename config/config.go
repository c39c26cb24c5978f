package config

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/jestadalan-dotcom/Jes-Bingo/utils/logger"
)

// Config carries every runtime knob for the host process. Values come from
// flags or BINGO_* environment variables; a .env file is read first when
// present.
type Config struct {
	Bind string
	Port int

	// PublicURL overrides the advertised base URL in join links and QR
	// codes, for hosts behind a reverse proxy.
	PublicURL string

	AllowedOrigins []string

	// CallInterval paces the auto-caller when a room enables it.
	CallInterval time.Duration

	ThemeEndpoint string
	ThemeAPIKey   string

	Verbose bool
}

// LoadEnv reads a .env file when one exists, falling back to the process
// environment.
func LoadEnv() {
	if err := godotenv.Load(); err != nil {
		logger.Debugf("no .env file found, reading environment variables")
	}
}

// Validate rejects unusable configurations before the server starts.
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid port (must be between 1-65535 inclusive): %d", c.Port)
	}
	if c.CallInterval <= 0 {
		return fmt.Errorf("call interval must be positive: %s", c.CallInterval)
	}
	return nil
}

// Addr is the listen address for the HTTP server.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Bind, strconv.Itoa(c.Port))
}

// BaseURL resolves the externally visible base URL, preferring PublicURL and
// falling back to the request host.
func (c *Config) BaseURL(requestHost string) string {
	if c.PublicURL != "" {
		return strings.TrimSuffix(c.PublicURL, "/")
	}
	return "http://" + requestHost
}
