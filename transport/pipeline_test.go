// Copyright 2026 The Ariana Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/pion/interceptor"
	"github.com/pion/rtcp"
)

// fakeRTCPReader returns queued batches, then io.EOF once batches is
// closed.
type fakeRTCPReader struct {
	batches chan []rtcp.Packet
}

func (r *fakeRTCPReader) ReadRTCP() ([]rtcp.Packet, interceptor.Attributes, error) {
	batch, ok := <-r.batches
	if !ok {
		return nil, nil, io.EOF
	}
	return batch, nil, nil
}

func feedback(batches ...[]rtcp.Packet) *fakeRTCPReader {
	reader := &fakeRTCPReader{batches: make(chan []rtcp.Packet, len(batches))}
	for _, batch := range batches {
		reader.batches <- batch
	}
	close(reader.batches)
	return reader
}

func TestReadFeedback_KeyframeRequests(t *testing.T) {
	bus := NewEventBus(8)
	reader := feedback(
		[]rtcp.Packet{&rtcp.PictureLossIndication{MediaSSRC: 1}},
		[]rtcp.Packet{&rtcp.ReceiverReport{SSRC: 2}},
		[]rtcp.Packet{&rtcp.FullIntraRequest{MediaSSRC: 1}, &rtcp.TransportLayerNack{MediaSSRC: 1}},
	)

	readFeedback(t.Context(), reader, bus, true, discardLogger())

	if got := bus.Len(); got != 2 {
		t.Fatalf("bus holds %d events, want 2", got)
	}
	for range 2 {
		event, err := bus.Poll(t.Context())
		if err != nil {
			t.Fatal(err)
		}
		if _, ok := event.(RequestIDREvent); !ok {
			t.Errorf("event = %T, want RequestIDREvent", event)
		}
	}
}

func TestReadFeedback_AudioIgnoresPictureLoss(t *testing.T) {
	bus := NewEventBus(8)
	reader := feedback([]rtcp.Packet{&rtcp.PictureLossIndication{MediaSSRC: 1}})

	readFeedback(t.Context(), reader, bus, false, discardLogger())

	if got := bus.Len(); got != 0 {
		t.Errorf("bus holds %d events, want 0", got)
	}
}

func TestReadFeedback_StopsWhenBusCloses(t *testing.T) {
	bus := NewEventBus(8)
	bus.Close()
	// Never closed: readFeedback must return on the failed send.
	reader := &fakeRTCPReader{batches: make(chan []rtcp.Packet, 1)}
	reader.batches <- []rtcp.Packet{&rtcp.PictureLossIndication{MediaSSRC: 1}}

	readFeedback(t.Context(), reader, bus, true, discardLogger())
}

func TestStatusCode(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{nil, StatusOK},
		{ErrAlreadySetUp, StatusFailed},
		{fmt.Errorf("wrapped: %w", errors.New("boom")), StatusFailed},
	}
	for _, test := range tests {
		if got := StatusCode(test.err); got != test.want {
			t.Errorf("StatusCode(%v) = %d, want %d", test.err, got, test.want)
		}
	}
}
