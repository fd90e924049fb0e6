// Copyright 2026 The Ariana Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"net/netip"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// EnvVar names the environment variable Load reads.
const EnvVar = "STREAMER_CONFIG"

// Environment represents the deployment environment.
type Environment string

const (
	Development Environment = "development"
	Staging     Environment = "staging"
	Production  Environment = "production"
)

// Config is the streamer configuration.
type Config struct {
	Environment Environment `yaml:"environment"`

	WebRTC      WebRTCConfig      `yaml:"webrtc"`
	Media       MediaConfig       `yaml:"media"`
	Signaling   SignalingConfig   `yaml:"signaling"`
	Termination TerminationConfig `yaml:"termination"`
	Events      EventsConfig      `yaml:"events"`
	Bridge      BridgeConfig      `yaml:"bridge"`
	Metrics     MetricsConfig     `yaml:"metrics"`

	Development *Overrides `yaml:"development,omitempty"`
	Staging     *Overrides `yaml:"staging,omitempty"`
	Production  *Overrides `yaml:"production,omitempty"`
}

// Overrides holds the blocks an environment section may replace.
type Overrides struct {
	WebRTC *WebRTCConfig `yaml:"webrtc,omitempty"`
	Media  *MediaConfig  `yaml:"media,omitempty"`
}

// WebRTCConfig configures the peer connection's network behavior.
type WebRTCConfig struct {
	// ICEServers are the STUN and TURN servers used for gathering.
	ICEServers []ICEServer `yaml:"ice_servers"`

	// PortRange restricts host candidates to a UDP port range. Zero
	// values leave the choice to the operating system.
	PortRange PortRange `yaml:"port_range"`

	// NAT1To1 advertises fixed public addresses in place of the
	// gathered ones, for hosts behind a static NAT.
	NAT1To1 *NAT1To1 `yaml:"nat_1to1,omitempty"`

	// NetworkTypes limits candidate gathering: udp4, udp6, tcp4, tcp6.
	// Empty means pion's default.
	NetworkTypes []string `yaml:"network_types"`

	// IncludeLoopbackCandidates gathers 127.0.0.1 and ::1 candidates.
	// Useful when the browser runs on the same machine.
	IncludeLoopbackCandidates bool `yaml:"include_loopback_candidates"`

	ICETimeouts ICETimeouts `yaml:"ice_timeouts"`
}

// ICEServer is one STUN or TURN server entry.
type ICEServer struct {
	URLs       []string `yaml:"urls"`
	Username   string   `yaml:"username,omitempty"`
	Credential string   `yaml:"credential,omitempty"`
}

// PortRange is an inclusive UDP port range.
type PortRange struct {
	Min uint16 `yaml:"min"`
	Max uint16 `yaml:"max"`
}

// NAT1To1 maps gathered candidates to fixed addresses.
type NAT1To1 struct {
	IPs []string `yaml:"ips"`

	// CandidateType is "host" (replace host candidates) or "srflx"
	// (add server-reflexive candidates).
	CandidateType string `yaml:"ice_candidate_type"`
}

// ICETimeouts are pion's ICE agent timeouts.
type ICETimeouts struct {
	Disconnected time.Duration `yaml:"disconnected"`
	Failed       time.Duration `yaml:"failed"`
	KeepAlive    time.Duration `yaml:"keep_alive"`
}

// MediaConfig sizes the outbound media queues.
type MediaConfig struct {
	// VideoFrameQueueSize is the soft capacity of the video queue, in
	// frames. Key frames are admitted beyond it.
	VideoFrameQueueSize int `yaml:"video_frame_queue_size"`

	// AudioSampleQueueSize is the soft capacity of the audio queue.
	AudioSampleQueueSize int `yaml:"audio_sample_queue_size"`
}

// SignalingConfig bounds renegotiation.
type SignalingConfig struct {
	// AnswerTimeout is how long an offer waits for the remote answer.
	AnswerTimeout time.Duration `yaml:"answer_timeout"`
}

// TerminationConfig sets the grace period before a connection that
// may be dead is closed.
type TerminationConfig struct {
	Timeout time.Duration `yaml:"timeout"`
	Slack   time.Duration `yaml:"slack"`
}

// EventsConfig sizes the transport event bus.
type EventsConfig struct {
	Capacity int `yaml:"capacity"`
}

// BridgeConfig configures the standalone WebSocket signaling listener.
type BridgeConfig struct {
	Listen string `yaml:"listen"`
	Path   string `yaml:"path"`
}

// MetricsConfig configures the Prometheus endpoint. Empty Listen
// disables it.
type MetricsConfig struct {
	Listen string `yaml:"listen"`
}

// Default returns the configuration used when no file is given and the
// base every file is merged onto.
func Default() *Config {
	return &Config{
		Environment: Development,
		WebRTC: WebRTCConfig{
			ICEServers: []ICEServer{{URLs: []string{"stun:stun.l.google.com:19302"}}},
			ICETimeouts: ICETimeouts{
				Disconnected: 30 * time.Second,
				Failed:       60 * time.Second,
				KeepAlive:    2 * time.Second,
			},
		},
		Media: MediaConfig{
			VideoFrameQueueSize:  3,
			AudioSampleQueueSize: 20,
		},
		Signaling:   SignalingConfig{AnswerTimeout: 30 * time.Second},
		Termination: TerminationConfig{Timeout: 10 * time.Second, Slack: 200 * time.Millisecond},
		Events:      EventsConfig{Capacity: 20},
		Bridge:      BridgeConfig{Path: "/stream"},
	}
}

// Load loads the file named by STREAMER_CONFIG, or returns Default when
// the variable is unset.
func Load() (*Config, error) {
	path := os.Getenv(EnvVar)
	if path == "" {
		return Default(), nil
	}
	return LoadFile(path)
}

// LoadFile loads and validates the configuration at path.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".jsonc":
		data = jsonc.ToJSON(data)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	cfg.applyEnvironmentOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) applyEnvironmentOverrides() {
	var overrides *Overrides
	switch c.Environment {
	case Development:
		overrides = c.Development
	case Staging:
		overrides = c.Staging
	case Production:
		overrides = c.Production
	}
	if overrides == nil {
		return
	}

	if webrtc := overrides.WebRTC; webrtc != nil {
		if len(webrtc.ICEServers) > 0 {
			c.WebRTC.ICEServers = webrtc.ICEServers
		}
		if webrtc.PortRange != (PortRange{}) {
			c.WebRTC.PortRange = webrtc.PortRange
		}
		if webrtc.NAT1To1 != nil {
			c.WebRTC.NAT1To1 = webrtc.NAT1To1
		}
		if len(webrtc.NetworkTypes) > 0 {
			c.WebRTC.NetworkTypes = webrtc.NetworkTypes
		}
		// Booleans cannot be told apart from unset, so the override
		// always wins.
		c.WebRTC.IncludeLoopbackCandidates = webrtc.IncludeLoopbackCandidates
		if webrtc.ICETimeouts.Disconnected > 0 {
			c.WebRTC.ICETimeouts.Disconnected = webrtc.ICETimeouts.Disconnected
		}
		if webrtc.ICETimeouts.Failed > 0 {
			c.WebRTC.ICETimeouts.Failed = webrtc.ICETimeouts.Failed
		}
		if webrtc.ICETimeouts.KeepAlive > 0 {
			c.WebRTC.ICETimeouts.KeepAlive = webrtc.ICETimeouts.KeepAlive
		}
	}

	if media := overrides.Media; media != nil {
		if media.VideoFrameQueueSize > 0 {
			c.Media.VideoFrameQueueSize = media.VideoFrameQueueSize
		}
		if media.AudioSampleQueueSize > 0 {
			c.Media.AudioSampleQueueSize = media.AudioSampleQueueSize
		}
	}
}

var (
	networkTypes   = []string{"udp4", "udp6", "tcp4", "tcp6"}
	candidateTypes = []string{"host", "srflx"}
)

// Validate checks the configuration for errors. All problems are
// reported together.
func (c *Config) Validate() error {
	var errs []error

	if c.Environment != Development && c.Environment != Staging && c.Environment != Production {
		errs = append(errs, fmt.Errorf("invalid environment: %q", c.Environment))
	}

	for i, server := range c.WebRTC.ICEServers {
		if len(server.URLs) == 0 {
			errs = append(errs, fmt.Errorf("webrtc.ice_servers[%d]: urls is required", i))
		}
	}
	if portRange := c.WebRTC.PortRange; portRange.Min > portRange.Max {
		errs = append(errs, fmt.Errorf("webrtc.port_range: min %d is above max %d", portRange.Min, portRange.Max))
	} else if (portRange.Min == 0) != (portRange.Max == 0) {
		errs = append(errs, errors.New("webrtc.port_range: set both min and max or neither"))
	}
	if nat := c.WebRTC.NAT1To1; nat != nil {
		if len(nat.IPs) == 0 {
			errs = append(errs, errors.New("webrtc.nat_1to1.ips is required"))
		}
		for _, ip := range nat.IPs {
			if _, err := netip.ParseAddr(ip); err != nil {
				errs = append(errs, fmt.Errorf("webrtc.nat_1to1.ips: %w", err))
			}
		}
		if !slices.Contains(candidateTypes, nat.CandidateType) {
			errs = append(errs, fmt.Errorf("webrtc.nat_1to1.ice_candidate_type must be one of %v", candidateTypes))
		}
	}
	for _, networkType := range c.WebRTC.NetworkTypes {
		if !slices.Contains(networkTypes, networkType) {
			errs = append(errs, fmt.Errorf("webrtc.network_types: unknown type %q", networkType))
		}
	}
	timeouts := c.WebRTC.ICETimeouts
	if timeouts.Disconnected <= 0 || timeouts.Failed <= 0 || timeouts.KeepAlive <= 0 {
		errs = append(errs, errors.New("webrtc.ice_timeouts must all be positive"))
	}

	if c.Media.VideoFrameQueueSize <= 0 {
		errs = append(errs, errors.New("media.video_frame_queue_size must be positive"))
	}
	if c.Media.AudioSampleQueueSize <= 0 {
		errs = append(errs, errors.New("media.audio_sample_queue_size must be positive"))
	}
	if c.Signaling.AnswerTimeout <= 0 {
		errs = append(errs, errors.New("signaling.answer_timeout must be positive"))
	}
	if c.Termination.Timeout <= 0 || c.Termination.Slack < 0 {
		errs = append(errs, errors.New("termination.timeout must be positive and slack not negative"))
	}
	if c.Events.Capacity <= 0 {
		errs = append(errs, errors.New("events.capacity must be positive"))
	}

	return errors.Join(errs...)
}
