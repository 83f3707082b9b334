// Package signal wires the signaling server together.
package signal

import (
	"errors"
	"fmt"
	"os"
)

const (
	// DefaultPort is the default port number for the server.
	DefaultPort = 7070

	// DefaultRate is the default number of messages per second a connection may send.
	DefaultRate = 50

	// DefaultBurst is the default burst of messages a connection may send.
	DefaultBurst = 100
)

// Below is the Error message for the server.
var (
	ErrInvalidPort     = errors.New("invalid port")
	ErrInvalidCertFile = errors.New("invalid cert file")
	ErrInvalidKeyFile  = errors.New("invalid key file")
	ErrInvalidRate     = errors.New("invalid rate limit")
)

// Config is the configuration for creating a Server instance.
type Config struct {
	Port          int
	Debug         bool
	CertFile      string
	KeyFile       string
	MetricsPort   int
	MetricsPath   string
	Rate          float64
	Burst         int
	AllowedOrigin string
}

// IsSame checks if the given config is the same as the current one.
func (c Config) IsSame(config Config) bool {
	return c.Port == config.Port && c.CertFile == config.CertFile && c.KeyFile == config.KeyFile
}

// Validate validates the ports, the rate limit and the files for certification.
func (c Config) Validate() error {
	if err := validatePort(c.Port); err != nil {
		return err
	}
	if c.MetricsPort != 0 {
		if err := validatePort(c.MetricsPort); err != nil {
			return fmt.Errorf("metrics: %w", err)
		}
		if c.MetricsPort == c.Port {
			return fmt.Errorf("metrics port %d is also the server port: %w", c.MetricsPort, ErrInvalidPort)
		}
	}
	if c.Rate <= 0 || c.Burst < 1 {
		return fmt.Errorf("rate %v burst %d: %w", c.Rate, c.Burst, ErrInvalidRate)
	}

	if c.CertFile == "" && c.KeyFile == "" {
		return nil
	}

	if _, err := os.Stat(c.CertFile); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%s does not exist: %w", c.CertFile, ErrInvalidCertFile)
		}
		return fmt.Errorf("unable to access %s: %w", c.CertFile, ErrInvalidCertFile)
	}

	if _, err := os.Stat(c.KeyFile); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%s does not exist: %w", c.KeyFile, ErrInvalidKeyFile)
		}
		return fmt.Errorf("unable to access %s: %w", c.KeyFile, ErrInvalidKeyFile)
	}

	return nil
}

func validatePort(port int) error {
	if port < 1 || port > 65535 {
		return fmt.Errorf("must be between 1 and 65535, given %d: %w", port, ErrInvalidPort)
	}
	return nil
}
