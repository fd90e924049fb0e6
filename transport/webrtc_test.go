// Copyright 2026 The Ariana Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/ariana-dot-dev/ariana/lib/config"
	"github.com/ariana-dot-dev/ariana/lib/ipc"
	"github.com/ariana-dot-dev/ariana/lib/streamapi"
	"github.com/ariana-dot-dev/ariana/lib/testutil"
)

// loopbackConfig gathers only loopback UDP candidates, so the test
// needs no network beyond lo.
func loopbackConfig() *config.Config {
	cfg := config.Default()
	cfg.WebRTC.ICEServers = nil
	cfg.WebRTC.NetworkTypes = []string{"udp4"}
	cfg.WebRTC.IncludeLoopbackCandidates = true
	return cfg
}

// browser is a pion peer playing the web client.
type browser struct {
	t    *testing.T
	peer *webrtc.PeerConnection

	mu      sync.Mutex
	pending []webrtc.ICECandidateInit
}

func newBrowser(t *testing.T) *browser {
	t.Helper()
	engine := &webrtc.MediaEngine{}
	if err := engine.RegisterDefaultCodecs(); err != nil {
		t.Fatalf("RegisterDefaultCodecs: %v", err)
	}
	var settings webrtc.SettingEngine
	settings.SetNetworkTypes([]webrtc.NetworkType{webrtc.NetworkTypeUDP4})
	settings.SetIncludeLoopbackCandidate(true)

	api := webrtc.NewAPI(webrtc.WithMediaEngine(engine), webrtc.WithSettingEngine(settings))
	peer, err := api.NewPeerConnection(webrtc.Configuration{})
	if err != nil {
		t.Fatalf("NewPeerConnection: %v", err)
	}
	t.Cleanup(func() { peer.Close() })
	return &browser{t: t, peer: peer}
}

// localDescription sets description locally and returns it with every
// candidate gathered, so the streamer needs no trickled candidates.
func (b *browser) localDescription(description webrtc.SessionDescription) streamapi.SessionDescription {
	b.t.Helper()
	gathered := webrtc.GatheringCompletePromise(b.peer)
	if err := b.peer.SetLocalDescription(description); err != nil {
		b.t.Errorf("SetLocalDescription: %v", err)
	}
	<-gathered
	local := b.peer.LocalDescription()
	return streamapi.SessionDescription{Type: streamapi.DescriptionType(local.Type.String()), SDP: local.SDP}
}

// signal applies a message from the streamer. Candidates that arrive
// before the description they belong to are held back.
func (b *browser) signal(ctx context.Context, transport *Transport, message *streamapi.SignalingMessage) {
	if candidate := message.AddIceCandidate; candidate != nil {
		b.mu.Lock()
		defer b.mu.Unlock()
		if b.peer.RemoteDescription() == nil {
			b.pending = append(b.pending, toCandidateInit(*candidate))
			return
		}
		if err := b.peer.AddICECandidate(toCandidateInit(*candidate)); err != nil {
			b.t.Errorf("AddICECandidate: %v", err)
		}
		return
	}

	description := message.Description
	b.mu.Lock()
	err := b.peer.SetRemoteDescription(toWebRTCDescription(*description))
	pending := b.pending
	b.pending = nil
	b.mu.Unlock()
	if err != nil {
		b.t.Errorf("SetRemoteDescription(%s): %v", description.Type, err)
		return
	}
	for _, candidate := range pending {
		if err := b.peer.AddICECandidate(candidate); err != nil {
			b.t.Errorf("AddICECandidate: %v", err)
		}
	}

	if description.Type != streamapi.DescriptionOffer {
		return
	}
	answer, err := b.peer.CreateAnswer(nil)
	if err != nil {
		b.t.Errorf("CreateAnswer: %v", err)
		return
	}
	sendDescription(ctx, b.t, transport, b.localDescription(answer))
}

func sendDescription(ctx context.Context, t *testing.T, transport *Transport, description streamapi.SessionDescription) {
	err := transport.HandleIPCMessage(ctx, ipc.ServerIPCMessage{
		WebSocket: &streamapi.ClientMessage{WebRTC: &streamapi.SignalingMessage{Description: &description}},
	})
	if err != nil {
		t.Errorf("HandleIPCMessage(%s): %v", description.Type, err)
	}
}

func TestTransport_Loopback(t *testing.T) {
	if testing.Short() {
		t.Skip("opens real UDP sockets")
	}
	ctx, cancel := context.WithTimeout(t.Context(), 30*time.Second)
	defer cancel()

	transport, err := New(ctx, Options{Config: loopbackConfig(), Logger: discardLogger()})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer transport.Close()

	client := newBrowser(t)
	keyboard, err := client.peer.CreateDataChannel("keyboard", nil)
	if err != nil {
		t.Fatalf("CreateDataChannel: %v", err)
	}
	keyboardOpen := make(chan struct{})
	keyboard.OnOpen(func() { close(keyboardOpen) })

	general := make(chan []byte, 4)
	client.peer.OnDataChannel(func(channel *webrtc.DataChannel) {
		if channel.Label() == generalChannelLabel {
			channel.OnMessage(func(message webrtc.DataChannelMessage) { general <- message.Data })
		}
	})
	videoPackets := make(chan string, 1)
	client.peer.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		if _, _, err := track.ReadRTP(); err == nil {
			select {
			case videoPackets <- track.Codec().MimeType:
			default:
			}
		}
	})

	inputs := make(chan RecvPacketEvent, 4)
	starts := make(chan StartStreamEvent, 1)
	go func() {
		for {
			event, err := transport.PollEvent(ctx)
			if err != nil {
				return
			}
			switch event := event.(type) {
			case SendSignalingEvent:
				client.signal(ctx, transport, event.Message.WebRTC)
			case RecvPacketEvent:
				inputs <- event
			case StartStreamEvent:
				starts <- event
			}
		}
	}()

	offer, err := client.peer.CreateOffer(nil)
	if err != nil {
		t.Fatalf("CreateOffer: %v", err)
	}
	sendDescription(ctx, t, transport, client.localDescription(offer))

	err = transport.HandleIPCMessage(ctx, ipc.ServerIPCMessage{
		WebSocket: &streamapi.ClientMessage{StartStream: &streamapi.StartStream{Width: 1280, Height: 720, FPS: 30}},
	})
	if err != nil {
		t.Fatalf("StartStream: %v", err)
	}
	start := testutil.RequireReceive(t, starts, 10*time.Second, "waiting for StartStreamEvent")
	if start.Settings.VideoSupportedFormats != streamapi.FormatH264 {
		t.Errorf("formats = %s, want the H264 fallback", start.Settings.VideoSupportedFormats)
	}

	// Input from the browser.
	testutil.RequireClosed(t, keyboardOpen, 20*time.Second, "waiting for the keyboard channel")
	if err := keyboard.Send([]byte{2, 'h', 'i'}); err != nil {
		t.Fatalf("keyboard send: %v", err)
	}
	input := testutil.RequireReceive(t, inputs, 10*time.Second, "waiting for keyboard input")
	if input.Channel != ChannelKeyboard || input.Packet != (KeyText{Text: "hi"}) {
		t.Errorf("input = %+v", input)
	}

	// Output to the browser on the general channel.
	deadline := time.Now().Add(10 * time.Second)
	for {
		err := transport.Send(ConnectionStatus{Quality: ConnectionPoor})
		if err == nil {
			break
		}
		if !errors.Is(err, ErrChannelClosed) || time.Now().After(deadline) {
			t.Fatalf("Send: %v", err)
		}
		time.Sleep(20 * time.Millisecond)
	}
	status := testutil.RequireReceive(t, general, 10*time.Second, "waiting for connection status")
	if !bytes.Equal(status, []byte{0, byte(ConnectionPoor)}) {
		t.Errorf("status = %v", status)
	}
	if err := transport.Send(StatsReport{FPS: 30}); !errors.Is(err, ErrChannelClosed) {
		t.Errorf("stats without a stats channel = %v, want ErrChannelClosed", err)
	}

	// Video setup renegotiates; frames flow once the browser answers.
	if err := transport.SetupVideo(VideoSetup{Format: streamapi.FormatH264, Width: 1280, Height: 720, FPS: 30}); err != nil {
		t.Fatalf("SetupVideo: %v", err)
	}
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
	var pts time.Duration
	for received := false; !received; {
		select {
		case mime := <-videoPackets:
			if mime != webrtc.MimeTypeH264 {
				t.Errorf("browser received %s", mime)
			}
			received = true
		case <-ticker.C:
			pts += 33 * time.Millisecond
			transport.SendVideoUnit(idrFrame(pts))
		case <-ctx.Done():
			t.Fatal("no video reached the browser")
		}
	}

	if err := transport.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
	if err := transport.HandleIPCMessage(ctx, ipc.ServerIPCMessage{}); !errors.Is(err, ErrClosed) {
		t.Errorf("HandleIPCMessage after Close = %v, want ErrClosed", err)
	}
}
