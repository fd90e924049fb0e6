// Copyright 2026 The Ariana Authors
// SPDX-License-Identifier: Apache-2.0

package stream

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ariana-dot-dev/ariana/lib/clock"
	"github.com/ariana-dot-dev/ariana/lib/streamapi"
	"github.com/ariana-dot-dev/ariana/lib/testutil"
	"github.com/ariana-dot-dev/ariana/transport"
)

var testEpoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// writeVideoFile writes one keyframe followed by two P-frames.
func writeVideoFile(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "clip.h264")
	data := annexB(testSPS, testPPS, testIDR, testPSlice, testPSlice)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

type fileHostRun struct {
	host   *FileHost
	sink   *fakeSink
	clock  *clock.FakeClock
	cancel context.CancelFunc
	done   chan error
}

// startFileHost runs a FileHost and waits for its frame ticker.
func startFileHost(t *testing.T, sink *fakeSink, settings streamapi.StartStream) *fileHostRun {
	t.Helper()
	fakeClock := clock.Fake(testEpoch)
	host := NewFileHost(writeVideoFile(t), fakeClock, discardLogger())
	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() { done <- host.Start(ctx, settings, sink) }()
	fakeClock.WaitForTimers(1)
	run := &fileHostRun{host: host, sink: sink, clock: fakeClock, cancel: cancel, done: done}
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return run
}

// next advances one frame interval and returns the unit sent.
func (r *fileHostRun) next(t *testing.T, interval time.Duration) transport.VideoUnit {
	t.Helper()
	r.clock.Advance(interval)
	return testutil.RequireReceive(t, r.sink.units, 5*time.Second, "waiting for video unit")
}

func TestFileHost_ReplaysInLoop(t *testing.T) {
	sink := newFakeSink()
	run := startFileHost(t, sink, streamapi.StartStream{Width: 1280, Height: 720, FPS: 10})

	setup := testutil.RequireReceive(t, sink.setups, time.Second, "waiting for video setup")
	want := transport.VideoSetup{Format: streamapi.FormatH264, Width: 1280, Height: 720, FPS: 10}
	if setup != want {
		t.Errorf("setup = %+v, want %+v", setup, want)
	}

	wantTypes := []transport.FrameType{
		transport.FrameTypeIDR, transport.FrameTypePFrame, transport.FrameTypePFrame, transport.FrameTypeIDR,
	}
	for i, wantType := range wantTypes {
		unit := run.next(t, 100*time.Millisecond)
		if unit.Type != wantType {
			t.Errorf("unit %d type = %v, want %v", i, unit.Type, wantType)
		}
		if wantPTS := time.Duration(i) * 100 * time.Millisecond; unit.PTS != wantPTS {
			t.Errorf("unit %d PTS = %v, want %v", i, unit.PTS, wantPTS)
		}
	}
}

func TestFileHost_KeyframeCarriesParameterSets(t *testing.T) {
	sink := newFakeSink()
	run := startFileHost(t, sink, streamapi.StartStream{FPS: 10})

	unit := run.next(t, 100*time.Millisecond)
	got := bytes.Join(unit.Data, nil)
	if want := annexB(testSPS, testPPS, testIDR); !bytes.Equal(got, want) {
		t.Errorf("keyframe data = %x, want %x", got, want)
	}
}

func TestFileHost_DefaultFPS(t *testing.T) {
	sink := newFakeSink()
	startFileHost(t, sink, streamapi.StartStream{})

	setup := testutil.RequireReceive(t, sink.setups, time.Second, "waiting for video setup")
	if setup.FPS != defaultFPS {
		t.Errorf("FPS = %d, want %d", setup.FPS, defaultFPS)
	}
}

func TestFileHost_RequestIDRSkipsToKeyframe(t *testing.T) {
	sink := newFakeSink()
	run := startFileHost(t, sink, streamapi.StartStream{FPS: 10})

	run.next(t, 100*time.Millisecond)
	run.host.RequestIDR()
	run.host.RequestIDR()
	if unit := run.next(t, 100*time.Millisecond); unit.Type != transport.FrameTypeIDR {
		t.Errorf("unit after RequestIDR = %v, want IDR", unit.Type)
	}
	if unit := run.next(t, 100*time.Millisecond); unit.Type != transport.FrameTypePFrame {
		t.Errorf("second request was not coalesced: got %v, want P", unit.Type)
	}
}

func TestFileHost_NeedIDRSkipsToKeyframe(t *testing.T) {
	sink := newFakeSink()
	sink.results = []transport.DecodeResult{transport.DecodeOK, transport.DecodeNeedIDR}
	run := startFileHost(t, sink, streamapi.StartStream{FPS: 2})

	run.next(t, 500*time.Millisecond)
	run.next(t, 500*time.Millisecond)

	report := testutil.RequireReceive(t, sink.packets, 5*time.Second, "waiting for stats report")
	stats, ok := report.(transport.StatsReport)
	if !ok {
		t.Fatalf("packet = %T, want StatsReport", report)
	}
	if stats.DroppedFrames != 1 || stats.FPS != 2 {
		t.Errorf("stats = %+v, want 1 dropped frame at 2 fps", stats)
	}

	if unit := run.next(t, 500*time.Millisecond); unit.Type != transport.FrameTypeIDR {
		t.Errorf("unit after dropped frame = %v, want IDR", unit.Type)
	}
}

func TestFileHost_StopsOnCancel(t *testing.T) {
	sink := newFakeSink()
	run := startFileHost(t, sink, streamapi.StartStream{FPS: 10})

	run.cancel()
	if err := testutil.RequireReceive(t, run.done, 5*time.Second, "waiting for Start to return"); err != nil {
		t.Errorf("Start = %v, want nil", err)
	}
	run.done <- nil
}

func TestFileHost_StartErrors(t *testing.T) {
	empty := filepath.Join(t.TempDir(), "empty.h264")
	if err := os.WriteFile(empty, []byte{1, 2, 3}, 0o644); err != nil {
		t.Fatal(err)
	}
	setupErr := errors.New("no codec")

	tests := []struct {
		name     string
		path     string
		setupErr error
	}{
		{"missing file", filepath.Join(t.TempDir(), "missing.h264"), nil},
		{"no pictures", empty, nil},
		{"setup fails", writeVideoFile(t), setupErr},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			sink := newFakeSink()
			sink.setupErr = test.setupErr
			host := NewFileHost(test.path, clock.Fake(testEpoch), discardLogger())
			err := host.Start(t.Context(), streamapi.StartStream{FPS: 30}, sink)
			if err == nil {
				t.Fatal("Start succeeded, want error")
			}
			if test.setupErr != nil && !errors.Is(err, test.setupErr) {
				t.Errorf("Start = %v, want wrapped %v", err, test.setupErr)
			}
		})
	}
}

func TestFileHost_StatsChannelClosedIgnored(t *testing.T) {
	sink := newFakeSink()
	sink.sendErr = transport.ErrChannelClosed
	run := startFileHost(t, sink, streamapi.StartStream{FPS: 1})

	for range 3 {
		run.next(t, time.Second)
	}
	select {
	case err := <-run.done:
		run.done <- err
		t.Fatalf("Start returned %v while the stats channel was closed", err)
	default:
	}
}
