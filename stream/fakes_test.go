// Copyright 2026 The Ariana Authors
// SPDX-License-Identifier: Apache-2.0

package stream

import (
	"context"
	"io"
	"log/slog"
	"sync"

	"github.com/ariana-dot-dev/ariana/lib/ipc"
	"github.com/ariana-dot-dev/ariana/lib/streamapi"
	"github.com/ariana-dot-dev/ariana/transport"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeSink records what a host delivers.
type fakeSink struct {
	setups  chan transport.VideoSetup
	units   chan transport.VideoUnit
	packets chan transport.OutboundPacket

	mu       sync.Mutex
	setupErr error
	sendErr  error
	// results are returned by SendVideoUnit in order, then DecodeOK.
	results []transport.DecodeResult
}

func newFakeSink() *fakeSink {
	return &fakeSink{
		setups:  make(chan transport.VideoSetup, 4),
		units:   make(chan transport.VideoUnit, 64),
		packets: make(chan transport.OutboundPacket, 64),
	}
}

func (s *fakeSink) SetupVideo(setup transport.VideoSetup) error {
	s.mu.Lock()
	err := s.setupErr
	s.mu.Unlock()
	if err != nil {
		return err
	}
	s.setups <- setup
	return nil
}

func (s *fakeSink) SendVideoUnit(unit transport.VideoUnit) transport.DecodeResult {
	s.units <- unit
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.results) == 0 {
		return transport.DecodeOK
	}
	result := s.results[0]
	s.results = s.results[1:]
	return result
}

func (s *fakeSink) SetupAudio(transport.AudioConfig, transport.OpusConfig) error { return nil }

func (s *fakeSink) SendAudioSample([]byte) bool { return true }

func (s *fakeSink) Send(packet transport.OutboundPacket) error {
	s.mu.Lock()
	err := s.sendErr
	s.mu.Unlock()
	if err != nil {
		return err
	}
	s.packets <- packet
	return nil
}

// fakeTransport is a Transport whose events the test injects.
type fakeTransport struct {
	*fakeSink

	handled chan ipc.ServerIPCMessage
	events  chan transport.Event
	closed  chan struct{}

	closeOnce  sync.Once
	closeMu    sync.Mutex
	closeCalls int
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		fakeSink: newFakeSink(),
		handled:  make(chan ipc.ServerIPCMessage, 16),
		events:   make(chan transport.Event),
		closed:   make(chan struct{}),
	}
}

func (f *fakeTransport) HandleIPCMessage(ctx context.Context, message ipc.ServerIPCMessage) error {
	select {
	case <-f.closed:
		return transport.ErrClosed
	default:
	}
	f.handled <- message
	return nil
}

func (f *fakeTransport) PollEvent(ctx context.Context) (transport.Event, error) {
	select {
	case event := <-f.events:
		return event, nil
	case <-f.closed:
		return nil, transport.ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (f *fakeTransport) Close() error {
	f.closeMu.Lock()
	f.closeCalls++
	f.closeMu.Unlock()
	f.closeOnce.Do(func() { close(f.closed) })
	return nil
}

func (f *fakeTransport) closeCount() int {
	f.closeMu.Lock()
	defer f.closeMu.Unlock()
	return f.closeCalls
}

// fakeChannel is an in-memory IPC channel. Closing incoming makes
// Receive return io.EOF.
type fakeChannel struct {
	incoming chan ipc.ServerIPCMessage
	sent     chan ipc.StreamerIPCMessage
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{
		incoming: make(chan ipc.ServerIPCMessage),
		sent:     make(chan ipc.StreamerIPCMessage, 16),
	}
}

func (c *fakeChannel) Receive() (ipc.ServerIPCMessage, error) {
	message, ok := <-c.incoming
	if !ok {
		return ipc.ServerIPCMessage{}, io.EOF
	}
	return message, nil
}

func (c *fakeChannel) Send(message ipc.StreamerIPCMessage) error {
	c.sent <- message
	return nil
}

// fakeHost records what the session asks of it. Start blocks until
// ctx is done unless startErr is set.
type fakeHost struct {
	started chan streamapi.StartStream
	inputs  chan transport.InboundPacket
	idr     chan struct{}

	startErr error
}

func newFakeHost() *fakeHost {
	return &fakeHost{
		started: make(chan streamapi.StartStream, 4),
		inputs:  make(chan transport.InboundPacket, 16),
		idr:     make(chan struct{}, 16),
	}
}

func (h *fakeHost) Start(ctx context.Context, settings streamapi.StartStream, sink MediaSink) error {
	h.started <- settings
	if h.startErr != nil {
		return h.startErr
	}
	<-ctx.Done()
	return nil
}

func (h *fakeHost) SendInput(channel transport.ChannelID, packet transport.InboundPacket) {
	h.inputs <- packet
}

func (h *fakeHost) RequestIDR() {
	h.idr <- struct{}{}
}
