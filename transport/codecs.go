// Copyright 2026 The Ariana Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"fmt"

	"github.com/pion/interceptor"
	"github.com/pion/rtp"
	"github.com/pion/rtp/codecs"
	"github.com/pion/sdp/v3"
	"github.com/pion/webrtc/v4"

	"github.com/ariana-dot-dev/ariana/lib/streamapi"
)

const (
	// rtpMTU leaves room for SRTP, UDP, IP, and TURN overhead.
	rtpMTU = 1200

	videoClockRate = 90000

	absSendTimeURI  = sdp.ABSSendTimeURI
	playoutDelayURI = "http://www.webrtc.org/experiments/rtp-hdrext/playout-delay"
)

var videoFeedback = []webrtc.RTCPFeedback{
	{Type: webrtc.TypeRTCPFBNACK},
	{Type: webrtc.TypeRTCPFBNACK, Parameter: "pli"},
	{Type: webrtc.TypeRTCPFBCCM, Parameter: "fir"},
}

// videoCodec ties a family of VideoFormats to its RTP codec and
// payloader.
type videoCodec struct {
	name       string
	formats    streamapi.VideoFormats
	parameters webrtc.RTPCodecParameters
	payloader  func() rtp.Payloader
}

var videoCodecs = []videoCodec{
	{
		name:    "h264",
		formats: streamapi.FormatMaskH264,
		parameters: webrtc.RTPCodecParameters{
			RTPCodecCapability: webrtc.RTPCodecCapability{
				MimeType:     webrtc.MimeTypeH264,
				ClockRate:    videoClockRate,
				SDPFmtpLine:  "level-asymmetry-allowed=1;packetization-mode=1;profile-level-id=42e01f",
				RTCPFeedback: videoFeedback,
			},
			PayloadType: 96,
		},
		payloader: func() rtp.Payloader { return &codecs.H264Payloader{} },
	},
	{
		name:    "h265",
		formats: streamapi.FormatMaskH265,
		parameters: webrtc.RTPCodecParameters{
			RTPCodecCapability: webrtc.RTPCodecCapability{
				MimeType:     webrtc.MimeTypeH265,
				ClockRate:    videoClockRate,
				RTCPFeedback: videoFeedback,
			},
			PayloadType: 98,
		},
		payloader: func() rtp.Payloader { return &codecs.H265Payloader{} },
	},
	{
		name:    "av1",
		formats: streamapi.FormatMaskAV1,
		parameters: webrtc.RTPCodecParameters{
			RTPCodecCapability: webrtc.RTPCodecCapability{
				MimeType:     webrtc.MimeTypeAV1,
				ClockRate:    videoClockRate,
				RTCPFeedback: videoFeedback,
			},
			PayloadType: 100,
		},
		payloader: func() rtp.Payloader { return &codecs.AV1Payloader{} },
	},
}

// videoCodecFor returns the codec that carries format.
func videoCodecFor(format streamapi.VideoFormats) (videoCodec, bool) {
	for _, codec := range videoCodecs {
		if codec.formats.Any(format) {
			return codec, true
		}
	}
	return videoCodec{}, false
}

var opusCodec = webrtc.RTPCodecParameters{
	RTPCodecCapability: webrtc.RTPCodecCapability{
		MimeType:    webrtc.MimeTypeOpus,
		ClockRate:   48000,
		Channels:    2,
		SDPFmtpLine: "minptime=10;useinbandfec=1",
	},
	PayloadType: 111,
}

// newMediaEngine registers the codecs and header extensions the
// streamer sends, and the default interceptors (NACK responder, RTCP
// reports, TWCC).
func newMediaEngine() (*webrtc.MediaEngine, *interceptor.Registry, error) {
	engine := &webrtc.MediaEngine{}
	for _, codec := range videoCodecs {
		if err := engine.RegisterCodec(codec.parameters, webrtc.RTPCodecTypeVideo); err != nil {
			return nil, nil, fmt.Errorf("registering %s: %w", codec.name, err)
		}
	}
	if err := engine.RegisterCodec(opusCodec, webrtc.RTPCodecTypeAudio); err != nil {
		return nil, nil, fmt.Errorf("registering opus: %w", err)
	}

	for _, kind := range []webrtc.RTPCodecType{webrtc.RTPCodecTypeVideo, webrtc.RTPCodecTypeAudio} {
		for _, uri := range []string{absSendTimeURI, playoutDelayURI} {
			if err := engine.RegisterHeaderExtension(webrtc.RTPHeaderExtensionCapability{URI: uri}, kind); err != nil {
				return nil, nil, fmt.Errorf("registering header extension %s: %w", uri, err)
			}
		}
	}

	registry := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(engine, registry); err != nil {
		return nil, nil, fmt.Errorf("registering interceptors: %w", err)
	}
	return engine, registry, nil
}
