// Copyright 2026 The Ariana Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"testing"

	"github.com/pion/webrtc/v4"

	"github.com/ariana-dot-dev/ariana/lib/streamapi"
)

func TestICEUfrag(t *testing.T) {
	mediaLevel := "v=0\r\n" +
		"o=- 1 1 IN IP4 0.0.0.0\r\n" +
		"s=-\r\n" +
		"t=0 0\r\n" +
		"m=video 9 UDP/TLS/RTP/SAVPF 96\r\n" +
		"c=IN IP4 0.0.0.0\r\n" +
		"a=ice-ufrag:media\r\n"

	tests := []struct {
		name string
		sdp  string
		want string
	}{
		{"session level", testSDP("abcd"), "abcd"},
		{"media level", mediaLevel, "media"},
		{"unparseable", "not sdp", ""},
	}
	for _, test := range tests {
		if got := iceUfrag(test.sdp); got != test.want {
			t.Errorf("%s: iceUfrag() = %q, want %q", test.name, got, test.want)
		}
	}
}

func TestToWebRTCDescription(t *testing.T) {
	tests := map[streamapi.DescriptionType]webrtc.SDPType{
		streamapi.DescriptionOffer:    webrtc.SDPTypeOffer,
		streamapi.DescriptionAnswer:   webrtc.SDPTypeAnswer,
		streamapi.DescriptionPranswer: webrtc.SDPTypePranswer,
		"bogus":                       webrtc.SDPTypeUnknown,
	}
	for wire, want := range tests {
		got := toWebRTCDescription(streamapi.SessionDescription{Type: wire, SDP: "x"})
		if got.Type != want || got.SDP != "x" {
			t.Errorf("%q converted to %v", wire, got)
		}
	}
}
