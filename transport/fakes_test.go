// Copyright 2026 The Ariana Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/ariana-dot-dev/ariana/lib/clock"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// testSDP is the smallest description pion's SDP parser accepts.
func testSDP(ufrag string) string {
	return "v=0\r\n" +
		"o=- 1 1 IN IP4 0.0.0.0\r\n" +
		"s=-\r\n" +
		"t=0 0\r\n" +
		"a=ice-ufrag:" + ufrag + "\r\n"
}

// fakePeer records what the session does to the peer connection and
// tracks how many local offers are awaiting an answer.
type fakePeer struct {
	mu sync.Mutex

	offers      int
	answers     int
	inFlight    int
	maxInFlight int
	// localOffer is set while a local offer awaits its answer. Like
	// pion, the fake rejects answers and rollbacks without one.
	localOffer  bool
	remote      []webrtc.SessionDescription
	local       []webrtc.SessionDescription
	candidates  []webrtc.ICECandidateInit
	tracks      []webrtc.TrackLocal

	offerErr     error
	remoteErr    error
	candidateErr error

	// localSet, when non-nil, receives every local description as it
	// is set.
	localSet chan webrtc.SessionDescription
}

var _ peerConnection = (*fakePeer)(nil)

func (p *fakePeer) CreateOffer(*webrtc.OfferOptions) (webrtc.SessionDescription, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.offerErr != nil {
		return webrtc.SessionDescription{}, p.offerErr
	}
	p.offers++
	p.inFlight++
	p.maxInFlight = max(p.maxInFlight, p.inFlight)
	return webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: testSDP(fmt.Sprintf("offer%d", p.offers))}, nil
}

func (p *fakePeer) CreateAnswer(*webrtc.AnswerOptions) (webrtc.SessionDescription, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.answers++
	return webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: testSDP(fmt.Sprintf("answer%d", p.answers))}, nil
}

func (p *fakePeer) SetLocalDescription(description webrtc.SessionDescription) error {
	p.mu.Lock()
	switch description.Type {
	case webrtc.SDPTypeOffer:
		p.localOffer = true
	case webrtc.SDPTypeRollback:
		if !p.localOffer {
			p.mu.Unlock()
			return errors.New("rollback in stable state")
		}
		p.localOffer = false
		p.inFlight--
	}
	p.local = append(p.local, description)
	localSet := p.localSet
	p.mu.Unlock()
	if localSet != nil {
		localSet <- description
	}
	return nil
}

func (p *fakePeer) SetRemoteDescription(description webrtc.SessionDescription) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.remoteErr != nil {
		return p.remoteErr
	}
	if description.Type == webrtc.SDPTypeAnswer {
		if !p.localOffer {
			return errors.New("answer in stable state")
		}
		p.localOffer = false
		p.inFlight--
	}
	p.remote = append(p.remote, description)
	return nil
}

func (p *fakePeer) AddICECandidate(candidate webrtc.ICECandidateInit) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.candidateErr != nil {
		return p.candidateErr
	}
	p.candidates = append(p.candidates, candidate)
	return nil
}

func (p *fakePeer) AddTrack(track webrtc.TrackLocal) (*webrtc.RTPSender, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tracks = append(p.tracks, track)
	return nil, nil
}

func (p *fakePeer) SignalingState() webrtc.SignalingState {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.localOffer {
		return webrtc.SignalingStateHaveLocalOffer
	}
	return webrtc.SignalingStateStable
}

func (p *fakePeer) ConnectionState() webrtc.PeerConnectionState {
	return webrtc.PeerConnectionStateConnected
}

// peerRecord is a copy of what a fakePeer has seen.
type peerRecord struct {
	offers      int
	answers     int
	maxInFlight int
	remote      []webrtc.SessionDescription
	local       []webrtc.SessionDescription
	candidates  []webrtc.ICECandidateInit
	tracks      []webrtc.TrackLocal
}

func (p *fakePeer) record() peerRecord {
	p.mu.Lock()
	defer p.mu.Unlock()
	return peerRecord{
		offers:      p.offers,
		answers:     p.answers,
		maxInFlight: p.maxInFlight,
		remote:      append([]webrtc.SessionDescription(nil), p.remote...),
		local:       append([]webrtc.SessionDescription(nil), p.local...),
		candidates:  append([]webrtc.ICECandidateInit(nil), p.candidates...),
		tracks:      append([]webrtc.TrackLocal(nil), p.tracks...),
	}
}

// fakeDataChannel is a DataChannel whose callbacks the test invokes.
type fakeDataChannel struct {
	label string

	mu        sync.Mutex
	onMessage func(webrtc.DataChannelMessage)
	onClose   func()
	sent      [][]byte
	sendErr   error
}

var _ DataChannel = (*fakeDataChannel)(nil)

func (c *fakeDataChannel) Label() string { return c.label }

func (c *fakeDataChannel) OnMessage(f func(webrtc.DataChannelMessage)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onMessage = f
}

func (c *fakeDataChannel) OnClose(f func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onClose = f
}

func (c *fakeDataChannel) Send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sendErr != nil {
		return c.sendErr
	}
	c.sent = append(c.sent, data)
	return nil
}

func (c *fakeDataChannel) receive(data []byte) {
	c.mu.Lock()
	onMessage := c.onMessage
	c.mu.Unlock()
	if onMessage != nil {
		onMessage(webrtc.DataChannelMessage{Data: data})
	}
}

func (c *fakeDataChannel) close() {
	c.mu.Lock()
	onClose := c.onClose
	c.mu.Unlock()
	if onClose != nil {
		onClose()
	}
}

// recordedWrite is one call to a recordingTrack.
type recordedWrite[S any] struct {
	sample     S
	extensions []HeaderExtension
}

// recordingTrack publishes every write. Writes listed in fail return
// an error but are still published.
type recordingTrack[S any] struct {
	writes chan recordedWrite[S]

	mu    sync.Mutex
	calls int
	fail  map[int]bool
}

func newRecordingTrack[S any]() *recordingTrack[S] {
	return &recordingTrack[S]{writes: make(chan recordedWrite[S], 64), fail: make(map[int]bool)}
}

var errTrackWrite = errors.New("track write failed")

func (r *recordingTrack[S]) WriteWithExtensions(sample S, extensions []HeaderExtension) error {
	r.mu.Lock()
	call := r.calls
	r.calls++
	fail := r.fail[call]
	r.mu.Unlock()

	r.writes <- recordedWrite[S]{sample: sample, extensions: extensions}
	if fail {
		return errTrackWrite
	}
	return nil
}

var testEpoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

// newTestSession returns a session on a fake peer with a fake clock.
// The termination timer's expiry publishes ClosedEvent on the bus.
func newTestSession(t *testing.T, busCapacity int) (*SignalingSession, *fakePeer, *EventBus, *clock.FakeClock) {
	t.Helper()
	fakeClock := clock.Fake(testEpoch)
	peer := &fakePeer{}
	bus := NewEventBus(busCapacity)
	t.Cleanup(bus.Close)
	termination := NewTerminationTimer(fakeClock, 10*time.Second, 200*time.Millisecond, func() {
		bus.Send(t.Context(), ClosedEvent{})
	})
	session := NewSignalingSession(peer, bus, termination, SessionOptions{
		AnswerTimeout: 30 * time.Second,
		Clock:         fakeClock,
		Logger:        discardLogger(),
	})
	return session, peer, bus, fakeClock
}
