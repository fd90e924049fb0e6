// Copyright 2026 The Ariana Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/pion/rtp"

	"github.com/ariana-dot-dev/ariana/lib/clock"
	"github.com/ariana-dot-dev/ariana/lib/streamapi"
)

// ErrUnsupportedFormat is returned by VideoPipeline.Setup for a format
// no registered codec carries.
var ErrUnsupportedFormat = errors.New("unsupported video format")

// rtpHeaderSize is the fixed RTP header the payloader must leave room
// for.
const rtpHeaderSize = 12

// VideoSetup is the stream the host encoder produces.
type VideoSetup struct {
	Format streamapi.VideoFormats
	Width  uint32
	Height uint32
	FPS    uint32
}

// FrameType distinguishes key frames from the rest.
type FrameType int

const (
	FrameTypePFrame FrameType = iota
	FrameTypeIDR
)

func (t FrameType) String() string {
	if t == FrameTypeIDR {
		return "idr"
	}
	return "p"
}

// VideoUnit is one encoded frame. Data holds the frame's buffers in
// order; they are concatenated before payloading.
type VideoUnit struct {
	Type FrameType
	PTS  time.Duration
	Data [][]byte
}

// DecodeResult is returned to the host for each video unit.
type DecodeResult int

const (
	DecodeOK DecodeResult = 0

	// DecodeNeedIDR asks the host encoder for a key frame: a frame was
	// dropped, so the frames after it cannot be decoded.
	DecodeNeedIDR DecodeResult = -1
)

// videoState exists once the pipeline is set up.
type videoState struct {
	setup     VideoSetup
	codec     videoCodec
	payloader rtp.Payloader
	queue     *SampleQueue[*rtp.Packet]
}

// VideoPipeline turns encoded video units into RTP packets and queues
// them on the video track. Key frames are never dropped; other frames
// are dropped under backpressure.
type VideoPipeline struct {
	ctx       context.Context
	session   *SignalingSession
	bus       *EventBus
	clock     clock.Clock
	queueSize int
	metrics   *Metrics
	logger    *slog.Logger

	mu        sync.Mutex
	supported streamapi.VideoFormats
	state     *videoState
}

// NewVideoPipeline returns a pipeline that is not yet set up. Its
// goroutines stop when ctx is cancelled.
func NewVideoPipeline(ctx context.Context, session *SignalingSession, bus *EventBus, clk clock.Clock, queueSize int, metrics *Metrics, logger *slog.Logger) *VideoPipeline {
	return &VideoPipeline{
		ctx:       ctx,
		session:   session,
		bus:       bus,
		clock:     clk,
		queueSize: queueSize,
		metrics:   metrics,
		logger:    logger.With("media", "video"),
		supported: streamapi.FormatH264,
	}
}

// SetSupportedFormats records the formats the browser can decode.
func (v *VideoPipeline) SetSupportedFormats(formats streamapi.VideoFormats) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.supported = formats.Sanitized()
}

// Setup creates the video track for setup.Format, attaches it, and
// renegotiates in the background. A format the browser did not list
// is used anyway with a warning: the host cannot change what it
// encodes. Renegotiation failures do not fail Setup.
func (v *VideoPipeline) Setup(setup VideoSetup) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.state != nil {
		return ErrAlreadySetUp
	}
	if !v.supported.Any(setup.Format) {
		v.logger.Warn("host format not supported by the client",
			"format", setup.Format, "supported", v.supported)
	}
	codec, ok := videoCodecFor(setup.Format)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnsupportedFormat, setup.Format)
	}

	track, err := newRTPTrack(codec.parameters.RTPCodecCapability, "video", "streamer")
	if err != nil {
		return err
	}
	feedback, err := v.session.AddTrack(track)
	if err != nil {
		return err
	}

	queue := NewSampleQueue[*rtp.Packet]("video", v.queueSize, v.metrics)
	v.state = &videoState{
		setup:     setup,
		codec:     codec,
		payloader: codec.payloader(),
		queue:     queue,
	}
	v.logger.Info("video set up",
		"codec", codec.name, "width", setup.Width, "height", setup.Height, "fps", setup.FPS)

	go queue.Run(v.ctx, track, v.clock, v.logger)
	if feedback != nil {
		go readFeedback(v.ctx, feedback, v.bus, true, v.logger)
	}
	go renegotiate(v.ctx, v.session, "video", v.logger)
	return nil
}

// SendUnit packetizes unit and queues it. Units sent before Setup are
// dropped. An IDR frame flushes the queued regular frames first, since
// nothing before a key frame is needed once it arrives. A regular frame
// that does not fit returns DecodeNeedIDR after flushing the backlog.
func (v *VideoPipeline) SendUnit(unit VideoUnit) DecodeResult {
	v.mu.Lock()
	state := v.state
	var packets []*rtp.Packet
	if state != nil {
		packets = state.packetize(unit)
	}
	v.mu.Unlock()

	if state == nil {
		return DecodeOK
	}

	if unit.Type == FrameTypeIDR {
		state.queue.Clear(false)
		state.queue.Enqueue(packets, true)
		return DecodeOK
	}
	if !state.queue.Enqueue(packets, false) {
		state.queue.Clear(false)
		v.logger.Debug("video frame dropped", "pts", unit.PTS)
		return DecodeNeedIDR
	}
	return DecodeOK
}

// rtpTimestamp converts pts to clockRate ticks, wrapping at 32 bits
// like the RTP timestamp field.
func rtpTimestamp(pts time.Duration, clockRate int64) uint32 {
	seconds := int64(pts / time.Second)
	fraction := int64(pts % time.Second)
	return uint32(seconds*clockRate + fraction*clockRate/int64(time.Second))
}

// packetize splits a unit into RTP packets sharing one timestamp, the
// last carrying the marker bit. Sequence numbers are assigned at
// write. Callers hold the pipeline lock: payloaders keep state.
func (s *videoState) packetize(unit VideoUnit) []*rtp.Packet {
	frame := bytes.Join(unit.Data, nil)
	payloads := s.payloader.Payload(rtpMTU-rtpHeaderSize, frame)
	timestamp := rtpTimestamp(unit.PTS, videoClockRate)

	packets := make([]*rtp.Packet, len(payloads))
	for i, payload := range payloads {
		packets[i] = &rtp.Packet{
			Header: rtp.Header{
				Version:     2,
				PayloadType: uint8(s.codec.parameters.PayloadType),
				Timestamp:   timestamp,
				Marker:      i == len(payloads)-1,
			},
			Payload: payload,
		}
	}
	return packets
}
