// Copyright 2026 The Ariana Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"bytes"
	"testing"

	"github.com/pion/rtp"
)

func TestDeliveryExtensions(t *testing.T) {
	extensions := deliveryExtensions(testEpoch)
	if len(extensions) != 2 {
		t.Fatalf("got %d extensions, want 2", len(extensions))
	}
	if extensions[0].URI != absSendTimeURI || len(extensions[0].Payload) != 3 {
		t.Errorf("abs-send-time = %+v", extensions[0])
	}
	if extensions[1].URI != playoutDelayURI || !bytes.Equal(extensions[1].Payload, []byte{0, 0, 0}) {
		t.Errorf("playout-delay = %+v", extensions[1])
	}
}

func TestExtensionTrack_AppliesNegotiatedExtensionsOnly(t *testing.T) {
	codec, _ := videoCodecFor(1)
	track, err := newRTPTrack(codec.parameters.RTPCodecCapability, "video", "test")
	if err != nil {
		t.Fatalf("newRTPTrack: %v", err)
	}
	// Only abs-send-time was negotiated.
	track.ids[absSendTimeURI] = 3

	var header rtp.Header
	if err := track.applyExtensions(&header, deliveryExtensions(testEpoch)); err != nil {
		t.Fatalf("applyExtensions: %v", err)
	}
	if payload := header.GetExtension(3); len(payload) != 3 {
		t.Errorf("abs-send-time extension = %x", payload)
	}
	if ids := header.GetExtensionIDs(); len(ids) != 1 {
		t.Errorf("extension IDs = %v, want only the negotiated one", ids)
	}
}

func TestRTPTrack_AssignsConsecutiveSequenceNumbers(t *testing.T) {
	codec, _ := videoCodecFor(1)
	track, err := newRTPTrack(codec.parameters.RTPCodecCapability, "video", "test")
	if err != nil {
		t.Fatalf("newRTPTrack: %v", err)
	}

	first := &rtp.Packet{Header: rtp.Header{Version: 2, SequenceNumber: 500}}
	second := &rtp.Packet{Header: rtp.Header{Version: 2, SequenceNumber: 7}}
	// An unbound track accepts writes and sends nothing.
	if err := track.WriteWithExtensions(first, nil); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := track.WriteWithExtensions(second, nil); err != nil {
		t.Fatalf("write: %v", err)
	}
	if second.SequenceNumber != first.SequenceNumber+1 {
		t.Errorf("sequence numbers %d, %d are not consecutive", first.SequenceNumber, second.SequenceNumber)
	}
}
