package uplink

import (
	"fmt"
	"math"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/haivivi/pcmlink/pkg/audio/pcm"
)

const (
	// DefaultHost and DefaultPort are used when a config carries no endpoint.
	DefaultHost        = "127.0.0.1"
	DefaultPort uint16 = 7700

	// DefaultConnectTimeout bounds each connection attempt.
	DefaultConnectTimeout = 1500 * time.Millisecond
	// DefaultRetryBackoff is the fixed delay between failed attempts.
	DefaultRetryBackoff = 500 * time.Millisecond
	// DefaultTelemetryInterval is the throughput reporting window.
	DefaultTelemetryInterval = 2 * time.Second
	// DefaultWriteTimeout bounds a single buffer write.
	DefaultWriteTimeout = 5 * time.Second
	// DefaultBufferDuration is the capture cadence.
	DefaultBufferDuration = 10 * time.Millisecond
)

// Format is the wire format: raw interleaved little-endian PCM16 stereo at
// 48kHz, no header and no framing.
const Format = pcm.L16Stereo48K

// StreamConfig is supplied when a session starts and does not change for
// the lifetime of that session.
type StreamConfig struct {
	Host         string  `json:"host" yaml:"host"`
	Port         uint16  `json:"port" yaml:"port"`
	InitialGain  float32 `json:"gain" yaml:"gain"`
	InitialMuted bool    `json:"muted" yaml:"muted"`
}

// Addr returns the host:port endpoint.
func (c StreamConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(int(c.Port)))
}

// Validate reports whether the config can be used as-is.
func (c StreamConfig) Validate() error {
	if strings.TrimSpace(c.Host) == "" {
		return fmt.Errorf("%w: empty host", ErrConfigInvalid)
	}
	if c.Port == 0 {
		return fmt.Errorf("%w: port must be in 1..65535", ErrConfigInvalid)
	}
	if math.IsNaN(float64(c.InitialGain)) || c.InitialGain < 0 || c.InitialGain > 1 {
		return fmt.Errorf("%w: gain %v outside [0, 1]", ErrConfigInvalid, c.InitialGain)
	}
	return nil
}

// Normalize replaces an empty host or zero port with the defaults and
// clamps the gain.
func (c StreamConfig) Normalize() StreamConfig {
	c.Host = strings.TrimSpace(c.Host)
	if c.Host == "" {
		c.Host = DefaultHost
	}
	if c.Port == 0 {
		c.Port = DefaultPort
	}
	c.InitialGain = pcm.Clamp01(c.InitialGain)
	return c
}

// ParsePort converts user input to a port, returning DefaultPort for
// anything outside 1..65535.
func ParsePort(s string) uint16 {
	p, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || p < 1 || p > 65535 {
		return DefaultPort
	}
	return uint16(p)
}
