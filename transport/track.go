// Copyright 2026 The Ariana Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"fmt"
	"sync"
	"time"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
)

var (
	_ Track[*rtp.Packet]  = (*rtpTrack)(nil)
	_ Track[media.Sample] = (*sampleTrack)(nil)
	_ webrtc.TrackLocal   = (*rtpTrack)(nil)
	_ webrtc.TrackLocal   = (*sampleTrack)(nil)
)

// HeaderExtension is an RTP header extension to attach to every packet
// of a sample. The extension ID is resolved per track from what was
// negotiated for URI; extensions the browser did not accept are left
// out.
type HeaderExtension struct {
	URI     string
	Payload []byte
}

// Track is an outbound track a SampleQueue delivers to. S is the unit
// the queue carries: an RTP packet for video, an encoded sample for
// audio.
type Track[S any] interface {
	WriteWithExtensions(sample S, extensions []HeaderExtension) error
}

// deliveryExtensions are attached to every packet at send time: the
// absolute send time, and a zero playout delay telling the browser to
// render immediately.
func deliveryExtensions(now time.Time) []HeaderExtension {
	absSendTime, err := rtp.NewAbsSendTimeExtension(now).Marshal()
	if err != nil {
		return nil
	}
	playout := rtp.PlayoutDelayExtension{MinDelay: 0, MaxDelay: 0}
	playoutDelay, err := playout.Marshal()
	if err != nil {
		return []HeaderExtension{{URI: absSendTimeURI, Payload: absSendTime}}
	}
	return []HeaderExtension{
		{URI: absSendTimeURI, Payload: absSendTime},
		{URI: playoutDelayURI, Payload: playoutDelay},
	}
}

// extensionTrack is a TrackLocalStaticRTP that records the header
// extension IDs negotiated when it is bound to a sender.
type extensionTrack struct {
	*webrtc.TrackLocalStaticRTP

	mu  sync.RWMutex
	ids map[string]uint8
}

func newExtensionTrack(capability webrtc.RTPCodecCapability, id, streamID string) (*extensionTrack, error) {
	local, err := webrtc.NewTrackLocalStaticRTP(capability, id, streamID)
	if err != nil {
		return nil, fmt.Errorf("creating %s track: %w", capability.MimeType, err)
	}
	return &extensionTrack{TrackLocalStaticRTP: local, ids: make(map[string]uint8)}, nil
}

// Bind is called by pion when the track is attached to a negotiated
// sender.
func (t *extensionTrack) Bind(ctx webrtc.TrackLocalContext) (webrtc.RTPCodecParameters, error) {
	parameters, err := t.TrackLocalStaticRTP.Bind(ctx)
	if err != nil {
		return parameters, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	for _, extension := range ctx.HeaderExtensions() {
		t.ids[extension.URI] = uint8(extension.ID)
	}
	return parameters, nil
}

func (t *extensionTrack) applyExtensions(header *rtp.Header, extensions []HeaderExtension) error {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, extension := range extensions {
		id, ok := t.ids[extension.URI]
		if !ok {
			continue
		}
		if err := header.SetExtension(id, extension.Payload); err != nil {
			return fmt.Errorf("setting extension %s: %w", extension.URI, err)
		}
	}
	return nil
}

// rtpTrack carries packets that were payloaded ahead of time. Sequence
// numbers are assigned at write so that frames dropped from the queue
// leave no gaps the browser would report as loss.
type rtpTrack struct {
	*extensionTrack
	sequencer rtp.Sequencer
}

func newRTPTrack(capability webrtc.RTPCodecCapability, id, streamID string) (*rtpTrack, error) {
	track, err := newExtensionTrack(capability, id, streamID)
	if err != nil {
		return nil, err
	}
	return &rtpTrack{extensionTrack: track, sequencer: rtp.NewRandomSequencer()}, nil
}

func (t *rtpTrack) WriteWithExtensions(packet *rtp.Packet, extensions []HeaderExtension) error {
	if err := t.applyExtensions(&packet.Header, extensions); err != nil {
		return err
	}
	packet.SequenceNumber = t.sequencer.NextSequenceNumber()
	return t.WriteRTP(packet)
}

// sampleTrack payloads whole samples at write time.
type sampleTrack struct {
	*extensionTrack
	clockRate uint32

	mu         sync.Mutex
	packetizer rtp.Packetizer
}

func newSampleTrack(parameters webrtc.RTPCodecParameters, payloader rtp.Payloader, id, streamID string) (*sampleTrack, error) {
	track, err := newExtensionTrack(parameters.RTPCodecCapability, id, streamID)
	if err != nil {
		return nil, err
	}
	clockRate := parameters.ClockRate
	return &sampleTrack{
		extensionTrack: track,
		clockRate:      clockRate,
		// SSRC and payload type are rewritten per binding by WriteRTP.
		packetizer: rtp.NewPacketizer(rtpMTU, uint8(parameters.PayloadType), 0, payloader, rtp.NewRandomSequencer(), clockRate),
	}, nil
}

func (t *sampleTrack) WriteWithExtensions(sample media.Sample, extensions []HeaderExtension) error {
	samples := uint32(sample.Duration.Seconds() * float64(t.clockRate))

	t.mu.Lock()
	packets := t.packetizer.Packetize(sample.Data, samples)
	t.mu.Unlock()

	for _, packet := range packets {
		if err := t.applyExtensions(&packet.Header, extensions); err != nil {
			return err
		}
		if err := t.WriteRTP(packet); err != nil {
			return err
		}
	}
	return nil
}
