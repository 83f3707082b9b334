package media

import (
	"fmt"
	"strconv"

	"github.com/pion/webrtc/v4"
)

// Config defines the configuration of peer connections.
type Config struct {
	// STUN or TURN urls
	ICEServers   []string
	TURNUsername string
	TURNPassword string
	MinUdpPort   string // Minimum UDP port for WebRTC
	MaxUdpPort   string // Maximum UDP port for WebRTC
}

// DefaultICEServer is used when no ICE server is configured.
const DefaultICEServer = "stun:stun.l.google.com:19302"

// WebRTCConfiguration returns the peer connection configuration.
func (med *Config) WebRTCConfiguration() webrtc.Configuration {
	urls := med.ICEServers
	if len(urls) == 0 {
		urls = []string{DefaultICEServer}
	}
	servers := make([]webrtc.ICEServer, 0, len(urls))
	for _, u := range urls {
		server := webrtc.ICEServer{URLs: []string{u}}
		if med.TURNUsername != "" {
			server.Username = med.TURNUsername
			server.Credential = med.TURNPassword
		}
		servers = append(servers, server)
	}
	return webrtc.Configuration{ICEServers: servers}
}

// SetPortRange sets the ephemeral UDP port range for WebRTC. An empty range
// leaves the default.
func (med *Config) SetPortRange(s *webrtc.SettingEngine) error {
	if med.MinUdpPort == "" && med.MaxUdpPort == "" {
		return nil
	}

	minPort, err := strconv.Atoi(med.MinUdpPort)
	if err != nil || minPort < 0 || minPort > 65535 {
		return fmt.Errorf("invalid MinUdpPort: %s, error: %v", med.MinUdpPort, err)
	}

	maxPort, err := strconv.Atoi(med.MaxUdpPort)
	if err != nil || maxPort < 0 || maxPort > 65535 {
		return fmt.Errorf("invalid MaxUdpPort: %s, error: %v", med.MaxUdpPort, err)
	}

	// Check if the range is valid
	if minPort > maxPort {
		return fmt.Errorf("invalid port range: MinUdpPort (%d) > MaxUdpPort (%d)", minPort, maxPort)
	}

	// Apply the port range to the setting engine
	err = s.SetEphemeralUDPPortRange(uint16(minPort), uint16(maxPort))
	if err != nil {
		return fmt.Errorf("failed to set ephemeral UDP port range: %w", err)
	}

	return nil
}
