// Copyright 2026 The Ariana Authors
// SPDX-License-Identifier: Apache-2.0

package stream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/ariana-dot-dev/ariana/lib/ipc"
	"github.com/ariana-dot-dev/ariana/lib/netutil"
	"github.com/ariana-dot-dev/ariana/transport"
)

// Channel carries IPC messages between the web server (or the
// WebSocket bridge) and the streamer. Receive blocks and cannot be
// cancelled; closing the underlying connection unblocks it.
type Channel interface {
	Receive() (ipc.ServerIPCMessage, error)
	Send(message ipc.StreamerIPCMessage) error
}

var _ Channel = (*ipc.StreamerConn)(nil)

// Transport is the part of transport.Transport the session drives.
type Transport interface {
	MediaSink
	HandleIPCMessage(ctx context.Context, message ipc.ServerIPCMessage) error
	PollEvent(ctx context.Context) (transport.Event, error)
	Close() error
}

var _ Transport = (*transport.Transport)(nil)

// errStopped ends the session's goroutine group without being an
// error to the caller.
var errStopped = errors.New("session stopped")

// Session connects a transport to its IPC channel and host for the
// lifetime of one stream.
type Session struct {
	transport Transport
	channel   Channel
	host      Host
	logger    *slog.Logger

	// sendMu serializes writes to channel.
	sendMu sync.Mutex
	// started is set once the host has been started; later StartStream
	// events are ignored.
	started bool
}

// NewSession returns a session. Run drives it.
func NewSession(transport Transport, channel Channel, host Host, logger *slog.Logger) *Session {
	return &Session{
		transport: transport,
		channel:   channel,
		host:      host,
		logger:    logger,
	}
}

// Run relays IPC messages into the transport and transport events out
// to the channel and host. It returns nil when the stream ends
// normally: a Stop message, the channel closing, or the transport
// reporting Closed. The transport is closed before Run returns.
func (s *Session) Run(ctx context.Context) error {
	group, ctx := errgroup.WithContext(ctx)

	// Receive cannot observe ctx, so the pump lives outside the group
	// and is abandoned once the session ends.
	inbound := make(chan ipc.ServerIPCMessage)
	receiveErr := make(chan error, 1)
	go s.pump(ctx, inbound, receiveErr)

	group.Go(func() error { return s.receiveLoop(ctx, inbound, receiveErr) })
	group.Go(func() error { return s.eventLoop(ctx, group) })

	err := group.Wait()
	if closeErr := s.transport.Close(); closeErr != nil {
		s.logger.Warn("closing transport failed", "error", closeErr)
	}
	if errors.Is(err, errStopped) {
		return nil
	}
	return err
}

func (s *Session) pump(ctx context.Context, inbound chan<- ipc.ServerIPCMessage, receiveErr chan<- error) {
	for {
		message, err := s.channel.Receive()
		if err != nil {
			receiveErr <- err
			return
		}
		select {
		case inbound <- message:
		case <-ctx.Done():
			return
		}
	}
}

func (s *Session) receiveLoop(ctx context.Context, inbound <-chan ipc.ServerIPCMessage, receiveErr <-chan error) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-receiveErr:
			if netutil.IsExpectedCloseError(err) {
				s.logger.Info("ipc channel closed")
				return errStopped
			}
			return fmt.Errorf("receiving ipc message: %w", err)
		case message := <-inbound:
			if message.Stop {
				s.logger.Info("stop requested")
				return errStopped
			}
			if err := s.transport.HandleIPCMessage(ctx, message); err != nil {
				if errors.Is(err, transport.ErrClosed) {
					return errStopped
				}
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("handling ipc message: %w", err)
			}
		}
	}
}

func (s *Session) eventLoop(ctx context.Context, group *errgroup.Group) error {
	for {
		event, err := s.transport.PollEvent(ctx)
		if err != nil {
			if errors.Is(err, transport.ErrClosed) {
				return errStopped
			}
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("polling transport events: %w", err)
		}

		switch event := event.(type) {
		case transport.SendSignalingEvent:
			message := event.Message
			if err := s.send(ipc.StreamerIPCMessage{WebSocket: &message}); err != nil {
				return fmt.Errorf("sending signaling message: %w", err)
			}
		case transport.StartStreamEvent:
			if s.started {
				s.logger.Warn("ignoring repeated start stream request")
				continue
			}
			s.started = true
			settings := event.Settings
			group.Go(func() error {
				if err := s.host.Start(ctx, settings, s.transport); err != nil {
					s.logger.Error("host stopped", "error", err)
					s.sendStop()
					return fmt.Errorf("running host: %w", err)
				}
				return nil
			})
		case transport.RecvPacketEvent:
			s.host.SendInput(event.Channel, event.Packet)
		case transport.RequestIDREvent:
			s.host.RequestIDR()
		case transport.ClosedEvent:
			s.logger.Info("transport closed, stopping stream")
			s.sendStop()
			return errStopped
		}
	}
}

func (s *Session) send(message ipc.StreamerIPCMessage) error {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	return s.channel.Send(message)
}

func (s *Session) sendStop() {
	if err := s.send(ipc.StreamerIPCMessage{Stop: true}); err != nil && !netutil.IsExpectedCloseError(err) {
		s.logger.Warn("sending stop failed", "error", err)
	}
}
