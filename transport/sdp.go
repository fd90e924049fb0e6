// Copyright 2026 The Ariana Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"github.com/pion/sdp/v3"
	"github.com/pion/webrtc/v4"

	"github.com/ariana-dot-dev/ariana/lib/streamapi"
)

// iceUfrag returns the ICE username fragment of an SDP blob, checking
// the session level first and then each media section. Empty when the
// SDP does not parse or carries none.
func iceUfrag(raw string) string {
	var description sdp.SessionDescription
	if err := description.UnmarshalString(raw); err != nil {
		return ""
	}
	if ufrag, ok := description.Attribute("ice-ufrag"); ok {
		return ufrag
	}
	for _, media := range description.MediaDescriptions {
		if ufrag, ok := media.Attribute("ice-ufrag"); ok {
			return ufrag
		}
	}
	return ""
}

// toWebRTCDescription converts a wire description. Unknown types map to
// webrtc.SDPTypeUnknown.
func toWebRTCDescription(description streamapi.SessionDescription) webrtc.SessionDescription {
	return webrtc.SessionDescription{
		Type: webrtc.NewSDPType(string(description.Type)),
		SDP:  description.SDP,
	}
}

func toCandidateInit(candidate streamapi.IceCandidate) webrtc.ICECandidateInit {
	return webrtc.ICECandidateInit{
		Candidate:        candidate.Candidate,
		SDPMid:           candidate.SDPMid,
		SDPMLineIndex:    candidate.SDPMLineIndex,
		UsernameFragment: candidate.UsernameFragment,
	}
}

func fromCandidateInit(candidate webrtc.ICECandidateInit) streamapi.IceCandidate {
	return streamapi.IceCandidate{
		Candidate:        candidate.Candidate,
		SDPMid:           candidate.SDPMid,
		SDPMLineIndex:    candidate.SDPMLineIndex,
		UsernameFragment: candidate.UsernameFragment,
	}
}
