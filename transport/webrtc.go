// Copyright 2026 The Ariana Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"weak"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"

	"github.com/ariana-dot-dev/ariana/lib/clock"
	"github.com/ariana-dot-dev/ariana/lib/config"
	"github.com/ariana-dot-dev/ariana/lib/ipc"
	"github.com/ariana-dot-dev/ariana/lib/streamapi"
)

// generalChannelLabel is the data channel the streamer opens itself,
// so every offer carries an SCTP section.
const generalChannelLabel = "general"

// Options configures a Transport.
type Options struct {
	Config *config.Config

	// Clock defaults to the wall clock.
	Clock clock.Clock

	Logger *slog.Logger

	// Metrics may be nil.
	Metrics *Metrics
}

// Transport is one stream's WebRTC peer connection and everything
// attached to it. The orchestrator feeds it inbound IPC messages and
// host media, and polls it for events.
type Transport struct {
	ctx    context.Context
	cancel context.CancelFunc
	logger *slog.Logger

	peer    *webrtc.PeerConnection
	general *webrtc.DataChannel

	bus         *EventBus
	session     *SignalingSession
	router      *ChannelRouter
	termination *TerminationTimer
	video       *VideoPipeline
	audio       *AudioPipeline

	closeOnce sync.Once
	closeErr  error
}

// New creates the peer connection and its general data channel. The
// transport lives until Close or until ctx is cancelled.
func New(ctx context.Context, options Options) (*Transport, error) {
	cfg := options.Config
	if cfg == nil {
		cfg = config.Default()
	}
	clk := options.Clock
	if clk == nil {
		clk = clock.Real()
	}
	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("session", uuid.NewString())

	mediaEngine, registry, err := newMediaEngine()
	if err != nil {
		return nil, err
	}
	settings, err := settingEngine(cfg.WebRTC)
	if err != nil {
		return nil, err
	}
	api := webrtc.NewAPI(
		webrtc.WithMediaEngine(mediaEngine),
		webrtc.WithInterceptorRegistry(registry),
		webrtc.WithSettingEngine(settings),
	)

	peer, err := api.NewPeerConnection(webrtc.Configuration{
		ICEServers: iceServers(cfg.WebRTC.ICEServers),
	})
	if err != nil {
		return nil, fmt.Errorf("creating peer connection: %w", err)
	}
	general, err := peer.CreateDataChannel(generalChannelLabel, nil)
	if err != nil {
		peer.Close()
		return nil, fmt.Errorf("creating %s data channel: %w", generalChannelLabel, err)
	}

	ctx, cancel := context.WithCancel(ctx)
	bus := NewEventBus(cfg.Events.Capacity)
	termination := NewTerminationTimer(clk, cfg.Termination.Timeout, cfg.Termination.Slack, func() {
		logger.Warn("termination grace period elapsed, closing stream")
		if err := bus.Send(ctx, ClosedEvent{}); err != nil {
			logger.Debug("close event not delivered", "error", err)
		}
	})
	session := NewSignalingSession(peer, bus, termination, SessionOptions{
		AnswerTimeout: cfg.Signaling.AnswerTimeout,
		Clock:         clk,
		Logger:        logger,
		Metrics:       options.Metrics,
	})

	t := &Transport{
		ctx:         ctx,
		cancel:      cancel,
		logger:      logger,
		peer:        peer,
		general:     general,
		bus:         bus,
		session:     session,
		router:      NewChannelRouter(bus, options.Metrics, logger),
		termination: termination,
		video:       NewVideoPipeline(ctx, session, bus, clk, cfg.Media.VideoFrameQueueSize, options.Metrics, logger),
		audio:       NewAudioPipeline(ctx, session, bus, clk, cfg.Media.AudioSampleQueueSize, options.Metrics, logger),
	}
	t.registerCallbacks()

	logger.Info("transport created",
		"ice_servers", len(cfg.WebRTC.ICEServers),
		"video_queue", cfg.Media.VideoFrameQueueSize,
		"audio_queue", cfg.Media.AudioSampleQueueSize,
	)
	return t, nil
}

// registerCallbacks wires pion's callbacks to the transport through a
// weak pointer. Callbacks that fire after the transport is gone or
// closed do nothing.
func (t *Transport) registerCallbacks() {
	self := weak.Make(t)
	live := func() *Transport {
		transport := self.Value()
		if transport == nil || transport.ctx.Err() != nil {
			return nil
		}
		return transport
	}

	t.peer.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		if transport := live(); transport != nil {
			transport.session.HandleConnectionState(transport.ctx, state)
		}
	})
	t.peer.OnICEConnectionStateChange(func(state webrtc.ICEConnectionState) {
		if transport := live(); transport != nil {
			transport.logger.Info("ice connection state changed",
				"state", state, "t_plus", transport.session.tPlus())
		}
	})
	t.peer.OnSignalingStateChange(func(state webrtc.SignalingState) {
		if transport := live(); transport != nil {
			transport.logger.Debug("signaling state changed", "state", state)
		}
	})
	t.peer.OnICECandidate(func(candidate *webrtc.ICECandidate) {
		transport := live()
		if transport == nil {
			return
		}
		if err := transport.session.HandleLocalCandidate(transport.ctx, candidate); err != nil {
			transport.logger.Warn("publishing local candidate failed", "error", err)
		}
	})
	t.peer.OnDataChannel(func(channel *webrtc.DataChannel) {
		if transport := live(); transport != nil {
			transport.router.OnChannelOpened(channel)
		}
	})
}

// HandleIPCMessage applies one message from the web server. Signaling
// failures are logged by the session and not returned; only a closed
// transport or a cancelled ctx is an error.
func (t *Transport) HandleIPCMessage(ctx context.Context, message ipc.ServerIPCMessage) error {
	if t.ctx.Err() != nil {
		return ErrClosed
	}

	if message.WebSocketTransport != nil {
		t.router.HandleBinary(message.WebSocketTransport)
	}
	client := message.WebSocket
	if client == nil {
		return nil
	}
	if err := client.Validate(); err != nil {
		t.logger.Warn("ignoring malformed client message", "error", err)
		return nil
	}

	if settings := client.StartStream; settings != nil {
		return t.startStream(ctx, *settings)
	}
	signaling := client.WebRTC
	switch {
	case signaling.Description != nil:
		t.session.HandleRemoteDescription(ctx, *signaling.Description)
	case signaling.AddIceCandidate != nil:
		t.session.AddRemoteCandidate(*signaling.AddIceCandidate)
	}
	return nil
}

func (t *Transport) startStream(ctx context.Context, settings streamapi.StartStream) error {
	formats := settings.VideoSupportedFormats.Sanitized()
	if formats != settings.VideoSupportedFormats {
		t.logger.Warn("client sent no usable video formats, falling back to H264",
			"formats", settings.VideoSupportedFormats)
	}
	settings.VideoSupportedFormats = formats
	t.video.SetSupportedFormats(formats)

	t.logger.Info("stream requested",
		"width", settings.Width, "height", settings.Height, "fps", settings.FPS,
		"bitrate", settings.Bitrate, "formats", formats)
	return t.bus.Send(ctx, StartStreamEvent{Settings: settings})
}

// PollEvent returns the next event for the orchestrator. After Close it
// drains what was queued and then returns ErrClosed.
func (t *Transport) PollEvent(ctx context.Context) (Event, error) {
	return t.bus.Poll(ctx)
}

// SetupVideo creates the video track. See VideoPipeline.Setup.
func (t *Transport) SetupVideo(setup VideoSetup) error {
	return t.video.Setup(setup)
}

// SendVideoUnit queues one encoded video frame.
func (t *Transport) SendVideoUnit(unit VideoUnit) DecodeResult {
	return t.video.SendUnit(unit)
}

// SetupAudio creates the audio track. See AudioPipeline.Setup.
func (t *Transport) SetupAudio(audio AudioConfig, opus OpusConfig) error {
	return t.audio.Setup(audio, opus)
}

// SendAudioSample queues one encoded Opus frame.
func (t *Transport) SendAudioSample(data []byte) bool {
	return t.audio.SendSample(data)
}

// Send delivers an outbound packet on its data channel.
func (t *Transport) Send(packet OutboundPacket) error {
	channel, data, err := EncodeOutbound(packet)
	if err != nil {
		return err
	}

	var target DataChannel
	switch channel {
	case ChannelGeneral:
		if t.general.ReadyState() == webrtc.DataChannelStateOpen {
			target = t.general
		}
	case ChannelStats:
		target = t.router.Stats()
	}
	if target == nil {
		return fmt.Errorf("%w: %s", ErrChannelClosed, channel)
	}
	if err := target.Send(data); err != nil {
		return fmt.Errorf("sending on %s: %w", channel, err)
	}
	return nil
}

// Close tears down the peer connection. Events already queued can
// still be polled. Safe to call more than once.
func (t *Transport) Close() error {
	t.closeOnce.Do(func() {
		t.cancel()
		t.termination.Clear()
		t.bus.Close()
		if err := t.peer.Close(); err != nil {
			t.closeErr = fmt.Errorf("closing peer connection: %w", err)
		}
		t.logger.Info("transport closed", "t_plus", t.session.tPlus())
	})
	return t.closeErr
}
