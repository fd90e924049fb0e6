// Copyright 2026 The Ariana Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/pion/interceptor"
	"github.com/pion/rtcp"
	"github.com/pion/webrtc/v4"

	"github.com/ariana-dot-dev/ariana/lib/clock"
	"github.com/ariana-dot-dev/ariana/lib/streamapi"
)

var (
	// ErrAnswerTimeout is returned by SendOffer when the browser does
	// not answer within the answer timeout. The connection stays open.
	ErrAnswerTimeout = errors.New("timed out waiting for answer")

	// ErrUnknownDescriptionType is returned for a remote description
	// that is not an offer, answer, or pranswer.
	ErrUnknownDescriptionType = errors.New("unknown description type")
)

// peerConnection is the part of *webrtc.PeerConnection the signaling
// session drives.
type peerConnection interface {
	CreateOffer(*webrtc.OfferOptions) (webrtc.SessionDescription, error)
	CreateAnswer(*webrtc.AnswerOptions) (webrtc.SessionDescription, error)
	SetLocalDescription(webrtc.SessionDescription) error
	SetRemoteDescription(webrtc.SessionDescription) error
	AddICECandidate(webrtc.ICECandidateInit) error
	AddTrack(webrtc.TrackLocal) (*webrtc.RTPSender, error)
	SignalingState() webrtc.SignalingState
	ConnectionState() webrtc.PeerConnectionState
}

var _ peerConnection = (*webrtc.PeerConnection)(nil)

// rtcpReader reads the feedback the browser sends for one track.
type rtcpReader interface {
	ReadRTCP() ([]rtcp.Packet, interceptor.Attributes, error)
}

// SessionOptions configures a SignalingSession.
type SessionOptions struct {
	// AnswerTimeout bounds how long SendOffer waits for the answer.
	AnswerTimeout time.Duration

	Clock   clock.Clock
	Logger  *slog.Logger
	Metrics *Metrics
}

// SignalingSession owns SDP and ICE signaling for one peer connection.
//
// Every mutation of the peer connection (descriptions, candidates,
// tracks) goes through the session and is serialized by peerMu.
// Renegotiations are serialized separately: at most one local offer is
// outstanding at any time, and a second SendOffer waits until the
// first has been answered or has timed out.
type SignalingSession struct {
	peer        peerConnection
	bus         *EventBus
	termination *TerminationTimer

	clock         clock.Clock
	answerTimeout time.Duration
	logger        *slog.Logger
	metrics       *Metrics
	started       time.Time

	peerMu sync.Mutex

	// renegotiation is held (one buffered token) for a whole
	// offer/answer round.
	renegotiation chan struct{}

	// answered is closed when the remote answer for the outstanding
	// offer has been applied. Nil when no offer is outstanding.
	waiterMu sync.Mutex
	answered chan struct{}
}

// NewSignalingSession returns a session driving peer. Outbound
// signaling is published on bus; connection state changes arm and
// clear termination.
func NewSignalingSession(peer peerConnection, bus *EventBus, termination *TerminationTimer, options SessionOptions) *SignalingSession {
	return &SignalingSession{
		peer:          peer,
		bus:           bus,
		termination:   termination,
		clock:         options.Clock,
		answerTimeout: options.AnswerTimeout,
		logger:        options.Logger,
		metrics:       options.Metrics,
		started:       options.Clock.Now(),
		renegotiation: make(chan struct{}, 1),
	}
}

// tPlus is the time since the session was created, attached to
// connection timeline log lines.
func (s *SignalingSession) tPlus() time.Duration {
	return s.clock.Now().Sub(s.started)
}

// HandleRemoteDescription applies a description from the browser. An
// offer is answered immediately. An answer completes the outstanding
// SendOffer, if any. Failures are logged and returned; they never
// close the session.
func (s *SignalingSession) HandleRemoteDescription(ctx context.Context, description streamapi.SessionDescription) error {
	remote := toWebRTCDescription(description)
	s.logger.Info("remote description received",
		"type", description.Type,
		"ice_ufrag", iceUfrag(description.SDP),
		"t_plus", s.tPlus(),
	)

	var err error
	switch remote.Type {
	case webrtc.SDPTypeOffer:
		err = s.answerOffer(ctx, remote)
	case webrtc.SDPTypeAnswer:
		err = s.applyAnswer(remote)
	case webrtc.SDPTypePranswer:
		err = s.setRemoteDescription(remote)
	default:
		err = fmt.Errorf("%w: %q", ErrUnknownDescriptionType, description.Type)
	}
	if err != nil {
		s.logger.Warn("handling remote description failed",
			"type", description.Type,
			"signaling_state", s.peer.SignalingState(),
			"connection_state", s.peer.ConnectionState(),
			"error", err,
		)
	}
	return err
}

func (s *SignalingSession) setRemoteDescription(remote webrtc.SessionDescription) error {
	s.peerMu.Lock()
	defer s.peerMu.Unlock()
	if err := s.peer.SetRemoteDescription(remote); err != nil {
		return fmt.Errorf("setting remote %s: %w", remote.Type, err)
	}
	return nil
}

// answerOffer applies a remote offer and sends the answer. The answer
// is produced while peerMu is still held so no local change can slip
// in between.
func (s *SignalingSession) answerOffer(ctx context.Context, offer webrtc.SessionDescription) error {
	s.peerMu.Lock()
	if err := s.peer.SetRemoteDescription(offer); err != nil {
		s.peerMu.Unlock()
		return fmt.Errorf("setting remote offer: %w", err)
	}
	answer, err := s.peer.CreateAnswer(nil)
	if err != nil {
		s.peerMu.Unlock()
		return fmt.Errorf("creating answer: %w", err)
	}
	if err := s.peer.SetLocalDescription(answer); err != nil {
		s.peerMu.Unlock()
		return fmt.Errorf("setting local answer: %w", err)
	}
	s.peerMu.Unlock()

	s.logger.Info("sending answer", "ice_ufrag", iceUfrag(answer.SDP), "t_plus", s.tPlus())
	message := streamapi.DescriptionMessage(streamapi.DescriptionAnswer, answer.SDP)
	if err := s.bus.Send(ctx, SendSignalingEvent{Message: message}); err != nil {
		return fmt.Errorf("sending answer: %w", err)
	}
	return nil
}

func (s *SignalingSession) applyAnswer(answer webrtc.SessionDescription) error {
	if err := s.setRemoteDescription(answer); err != nil {
		return err
	}

	s.waiterMu.Lock()
	waiting := s.answered != nil
	if waiting {
		close(s.answered)
		s.answered = nil
	}
	s.waiterMu.Unlock()
	if !waiting {
		s.logger.Warn("answer applied with no offer waiting", "t_plus", s.tPlus())
	}
	return nil
}

// SendOffer renegotiates: it creates a local offer, sends it, and waits
// for the answer. Concurrent calls are linearized. A timeout is
// reported as ErrAnswerTimeout and leaves the connection as it is; the
// caller decides whether to retry.
//
// Offers are created with pion's defaults. ICE credentials are not
// pinned across re-offers, so a renegotiation may restart ICE briefly.
func (s *SignalingSession) SendOffer(ctx context.Context) error {
	select {
	case s.renegotiation <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-s.renegotiation }()

	err := s.offerAndWait(ctx)
	switch {
	case err == nil:
		s.metrics.renegotiated("ok")
	case errors.Is(err, ErrAnswerTimeout):
		s.metrics.renegotiated("timeout")
	default:
		s.metrics.renegotiated("error")
	}
	return err
}

func (s *SignalingSession) offerAndWait(ctx context.Context) error {
	// The waiter must exist before the offer leaves, or an answer that
	// beats us back would be lost.
	answered := make(chan struct{})
	s.waiterMu.Lock()
	s.answered = answered
	s.waiterMu.Unlock()
	defer func() {
		s.waiterMu.Lock()
		if s.answered == answered {
			s.answered = nil
		}
		s.waiterMu.Unlock()
	}()

	s.peerMu.Lock()
	offer, err := s.peer.CreateOffer(nil)
	if err != nil {
		s.peerMu.Unlock()
		return fmt.Errorf("creating offer: %w", err)
	}
	if err := s.peer.SetLocalDescription(offer); err != nil {
		s.peerMu.Unlock()
		return fmt.Errorf("setting local offer: %w", err)
	}
	s.peerMu.Unlock()

	s.logger.Info("sending offer", "ice_ufrag", iceUfrag(offer.SDP), "t_plus", s.tPlus())
	message := streamapi.DescriptionMessage(streamapi.DescriptionOffer, offer.SDP)
	if err := s.bus.Send(ctx, SendSignalingEvent{Message: message}); err != nil {
		return fmt.Errorf("sending offer: %w", err)
	}

	select {
	case <-answered:
		s.logger.Info("renegotiation complete", "t_plus", s.tPlus())
		return nil
	case <-s.clock.After(s.answerTimeout):
		s.rollbackOffer(offer)
		return fmt.Errorf("%w after %s", ErrAnswerTimeout, s.answerTimeout)
	case <-ctx.Done():
		s.rollbackOffer(offer)
		return ctx.Err()
	}
}

// rollbackOffer returns the peer to stable after an offer went
// unanswered. The next offer can only be set from stable, and an
// answer to the abandoned offer that shows up later is rejected
// instead of being applied.
func (s *SignalingSession) rollbackOffer(offer webrtc.SessionDescription) {
	s.peerMu.Lock()
	defer s.peerMu.Unlock()
	if s.peer.SignalingState() != webrtc.SignalingStateHaveLocalOffer {
		return
	}
	// pion parses the SDP of every local description, rollbacks included.
	rollback := webrtc.SessionDescription{Type: webrtc.SDPTypeRollback, SDP: offer.SDP}
	if err := s.peer.SetLocalDescription(rollback); err != nil {
		s.logger.Warn("rolling back unanswered offer failed", "error", err)
		return
	}
	s.logger.Info("rolled back unanswered offer", "ice_ufrag", iceUfrag(offer.SDP), "t_plus", s.tPlus())
}

// HandleLocalCandidate publishes a locally gathered candidate. A nil
// candidate marks the end of gathering and publishes nothing.
func (s *SignalingSession) HandleLocalCandidate(ctx context.Context, candidate *webrtc.ICECandidate) error {
	if candidate == nil {
		s.logger.Debug("candidate gathering complete", "t_plus", s.tPlus())
		return nil
	}
	message := streamapi.CandidateMessage(fromCandidateInit(candidate.ToJSON()))
	if err := s.bus.Send(ctx, SendSignalingEvent{Message: message}); err != nil {
		return fmt.Errorf("sending candidate: %w", err)
	}
	return nil
}

// AddRemoteCandidate applies a candidate from the browser. Candidates
// may arrive before the description they belong to; pion buffers or
// rejects them and a rejection is only logged.
func (s *SignalingSession) AddRemoteCandidate(candidate streamapi.IceCandidate) error {
	s.peerMu.Lock()
	err := s.peer.AddICECandidate(toCandidateInit(candidate))
	s.peerMu.Unlock()
	if err != nil {
		s.logger.Warn("adding remote candidate failed", "candidate", candidate.Candidate, "error", err)
		return fmt.Errorf("adding remote candidate: %w", err)
	}
	return nil
}

// AddTrack attaches track to the peer connection and returns its RTCP
// feedback reader, which is nil if the connection returned no sender.
func (s *SignalingSession) AddTrack(track webrtc.TrackLocal) (rtcpReader, error) {
	s.peerMu.Lock()
	sender, err := s.peer.AddTrack(track)
	s.peerMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("adding track %s: %w", track.ID(), err)
	}
	if sender == nil {
		return nil, nil
	}
	return sender, nil
}

// HandleConnectionState applies the termination policy. Only Closed
// ends the stream: Failed and Disconnected are left for ICE to recover
// from, and every other state clears a pending termination. If the
// Closed event cannot be delivered the termination timer is armed
// instead.
func (s *SignalingSession) HandleConnectionState(ctx context.Context, state webrtc.PeerConnectionState) {
	s.logger.Info("connection state changed", "state", state, "t_plus", s.tPlus())

	switch state {
	case webrtc.PeerConnectionStateClosed:
		if err := s.bus.Send(ctx, ClosedEvent{}); err != nil {
			s.logger.Warn("delivering close event failed, arming termination", "error", err)
			s.termination.Request()
		}
	case webrtc.PeerConnectionStateFailed, webrtc.PeerConnectionStateDisconnected:
		s.logger.Warn("connection degraded, waiting for ICE to recover", "state", state)
	default:
		s.termination.Clear()
	}
}
