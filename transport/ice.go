// Copyright 2026 The Ariana Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"fmt"

	"github.com/pion/webrtc/v4"

	"github.com/ariana-dot-dev/ariana/lib/config"
)

// iceServers converts configured STUN and TURN servers for pion. Order
// is kept: pion tries them in sequence.
func iceServers(servers []config.ICEServer) []webrtc.ICEServer {
	converted := make([]webrtc.ICEServer, 0, len(servers))
	for _, server := range servers {
		converted = append(converted, webrtc.ICEServer{
			URLs:       server.URLs,
			Username:   server.Username,
			Credential: server.Credential,
		})
	}
	return converted
}

var networkTypes = map[string]webrtc.NetworkType{
	"udp4": webrtc.NetworkTypeUDP4,
	"udp6": webrtc.NetworkTypeUDP6,
	"tcp4": webrtc.NetworkTypeTCP4,
	"tcp6": webrtc.NetworkTypeTCP6,
}

// settingEngine applies the network section of the configuration.
func settingEngine(cfg config.WebRTCConfig) (webrtc.SettingEngine, error) {
	var engine webrtc.SettingEngine

	if cfg.PortRange.Min != 0 || cfg.PortRange.Max != 0 {
		if err := engine.SetEphemeralUDPPortRange(cfg.PortRange.Min, cfg.PortRange.Max); err != nil {
			return engine, fmt.Errorf("setting port range %d-%d: %w", cfg.PortRange.Min, cfg.PortRange.Max, err)
		}
	}

	if nat := cfg.NAT1To1; nat != nil {
		candidateType := webrtc.ICECandidateTypeHost
		if nat.CandidateType == "srflx" {
			candidateType = webrtc.ICECandidateTypeSrflx
		}
		engine.SetNAT1To1IPs(nat.IPs, candidateType)
	}

	if len(cfg.NetworkTypes) > 0 {
		types := make([]webrtc.NetworkType, 0, len(cfg.NetworkTypes))
		for _, name := range cfg.NetworkTypes {
			networkType, ok := networkTypes[name]
			if !ok {
				return engine, fmt.Errorf("unknown network type %q", name)
			}
			types = append(types, networkType)
		}
		engine.SetNetworkTypes(types)
	}

	engine.SetIncludeLoopbackCandidate(cfg.IncludeLoopbackCandidates)

	timeouts := cfg.ICETimeouts
	engine.SetICETimeouts(timeouts.Disconnected, timeouts.Failed, timeouts.KeepAlive)
	return engine, nil
}
