// Copyright 2026 The Ariana Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/pion/rtp/codecs"
	"github.com/pion/webrtc/v4/pkg/media"

	"github.com/ariana-dot-dev/ariana/lib/clock"
)

// ErrInvalidOpusConfig is returned by AudioPipeline.Setup when the
// sample rate or frame size is zero.
var ErrInvalidOpusConfig = errors.New("invalid opus configuration")

// opusSampleRates are the rates an Opus encoder accepts.
var opusSampleRates = []uint32{8000, 12000, 16000, 24000, 48000}

// AudioConfig is the host's speaker layout.
type AudioConfig struct {
	Channels int
}

// OpusConfig describes the host's Opus multistream encoder.
type OpusConfig struct {
	SampleRate      uint32
	Channels        uint8
	Streams         uint8
	CoupledStreams  uint8
	SamplesPerFrame uint32
}

// frameDuration is the playback time of one encoded frame.
func (c OpusConfig) frameDuration() time.Duration {
	return time.Duration(c.SamplesPerFrame) * time.Second / time.Duration(c.SampleRate)
}

type audioState struct {
	duration time.Duration
	queue    *SampleQueue[media.Sample]
}

// AudioPipeline queues encoded Opus frames on the audio track. Every
// audio frame may be dropped under backpressure.
type AudioPipeline struct {
	ctx       context.Context
	session   *SignalingSession
	bus       *EventBus
	clock     clock.Clock
	queueSize int
	metrics   *Metrics
	logger    *slog.Logger

	mu    sync.Mutex
	state *audioState
}

// NewAudioPipeline returns a pipeline that is not yet set up.
func NewAudioPipeline(ctx context.Context, session *SignalingSession, bus *EventBus, clk clock.Clock, queueSize int, metrics *Metrics, logger *slog.Logger) *AudioPipeline {
	return &AudioPipeline{
		ctx:       ctx,
		session:   session,
		bus:       bus,
		clock:     clk,
		queueSize: queueSize,
		metrics:   metrics,
		logger:    logger.With("media", "audio"),
	}
}

// Setup creates the Opus track and renegotiates in the background.
// Layouts the browser may not play well (non-stereo, unusual rates)
// are logged and used as given.
func (a *AudioPipeline) Setup(audio AudioConfig, opus OpusConfig) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.state != nil {
		return ErrAlreadySetUp
	}
	if opus.SampleRate == 0 || opus.SamplesPerFrame == 0 {
		return ErrInvalidOpusConfig
	}
	if !slices.Contains(opusSampleRates, opus.SampleRate) {
		a.logger.Warn("unusual opus sample rate", "sample_rate", opus.SampleRate)
	}
	if audio.Channels != 2 || opus.Channels != 2 {
		a.logger.Warn("audio is not stereo, the browser may downmix",
			"channels", audio.Channels, "opus_channels", opus.Channels,
			"streams", opus.Streams, "coupled_streams", opus.CoupledStreams)
	}

	track, err := newSampleTrack(opusCodec, &codecs.OpusPayloader{}, "audio", "streamer")
	if err != nil {
		return err
	}
	feedback, err := a.session.AddTrack(track)
	if err != nil {
		return err
	}

	queue := NewSampleQueue[media.Sample]("audio", a.queueSize, a.metrics)
	a.state = &audioState{duration: opus.frameDuration(), queue: queue}
	a.logger.Info("audio set up",
		"sample_rate", opus.SampleRate, "samples_per_frame", opus.SamplesPerFrame)

	go queue.Run(a.ctx, track, a.clock, a.logger)
	if feedback != nil {
		go readFeedback(a.ctx, feedback, a.bus, false, a.logger)
	}
	go renegotiate(a.ctx, a.session, "audio", a.logger)
	return nil
}

// SendSample queues one encoded Opus frame and reports whether it was
// admitted. Samples sent before Setup are dropped.
func (a *AudioPipeline) SendSample(data []byte) bool {
	a.mu.Lock()
	state := a.state
	a.mu.Unlock()
	if state == nil {
		return false
	}
	sample := media.Sample{Data: data, Duration: state.duration}
	return state.queue.Enqueue([]media.Sample{sample}, false)
}
