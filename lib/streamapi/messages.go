// Copyright 2026 The Ariana Authors
// SPDX-License-Identifier: Apache-2.0

package streamapi

import (
	"errors"
	"fmt"
)

// ClientMessage is a message from the browser to the streamer.
type ClientMessage struct {
	StartStream *StartStream      `json:"StartStream,omitempty"`
	WebRTC      *SignalingMessage `json:"WebRtc,omitempty"`
}

// ServerMessage is a message from the streamer to the browser.
type ServerMessage struct {
	WebRTC *SignalingMessage `json:"WebRtc,omitempty"`
}

// SignalingMessage carries one WebRTC signaling step in either
// direction.
type SignalingMessage struct {
	Description     *SessionDescription `json:"Description,omitempty"`
	AddIceCandidate *IceCandidate       `json:"AddIceCandidate,omitempty"`
}

// DescriptionType is the SDP type of a SessionDescription.
type DescriptionType string

const (
	DescriptionOffer    DescriptionType = "offer"
	DescriptionAnswer   DescriptionType = "answer"
	DescriptionPranswer DescriptionType = "pranswer"
)

// SessionDescription is an SDP offer or answer.
type SessionDescription struct {
	Type DescriptionType `json:"ty"`
	SDP  string          `json:"sdp"`
}

// IceCandidate mirrors the browser's RTCIceCandidateInit.
type IceCandidate struct {
	Candidate        string  `json:"candidate"`
	SDPMid           *string `json:"sdp_mid"`
	SDPMLineIndex    *uint16 `json:"sdp_mline_index"`
	UsernameFragment *string `json:"username_fragment"`
}

// Colorspace is the video colorspace the client asked for.
type Colorspace string

const (
	ColorspaceRec601  Colorspace = "Rec601"
	ColorspaceRec709  Colorspace = "Rec709"
	ColorspaceRec2020 Colorspace = "Rec2020"
)

// StartStream asks the streamer to start the host stream with these
// parameters.
type StartStream struct {
	Bitrate               uint32       `json:"bitrate"`
	PacketSize            uint32       `json:"packet_size"`
	FPS                   uint32       `json:"fps"`
	Width                 uint32       `json:"width"`
	Height                uint32       `json:"height"`
	PlayAudioLocal        bool         `json:"play_audio_local"`
	VideoSupportedFormats VideoFormats `json:"video_supported_formats"`
	VideoColorspace       Colorspace   `json:"video_colorspace"`
	VideoColorRangeFull   bool         `json:"video_color_range_full"`
	HDR                   bool         `json:"hdr"`
}

var errVariantCount = errors.New("exactly one variant must be set")

// Validate reports whether exactly one variant is set at every level.
func (m ClientMessage) Validate() error {
	switch {
	case m.StartStream != nil && m.WebRTC == nil:
		return nil
	case m.WebRTC != nil && m.StartStream == nil:
		return m.WebRTC.Validate()
	}
	return fmt.Errorf("client message: %w", errVariantCount)
}

// Validate reports whether exactly one variant is set.
func (m SignalingMessage) Validate() error {
	if (m.Description == nil) == (m.AddIceCandidate == nil) {
		return fmt.Errorf("signaling message: %w", errVariantCount)
	}
	return nil
}

// DescriptionMessage wraps an SDP description for the browser.
func DescriptionMessage(descriptionType DescriptionType, sdp string) ServerMessage {
	return ServerMessage{WebRTC: &SignalingMessage{
		Description: &SessionDescription{Type: descriptionType, SDP: sdp},
	}}
}

// CandidateMessage wraps a local ICE candidate for the browser.
func CandidateMessage(candidate IceCandidate) ServerMessage {
	return ServerMessage{WebRTC: &SignalingMessage{AddIceCandidate: &candidate}}
}
