// Copyright 2026 The Ariana Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"weak"

	"github.com/pion/webrtc/v4"
)

// ChannelID identifies a logical channel. The values are shared with
// the browser client and appear on the wire as the first byte of a
// binary WebSocket frame.
type ChannelID uint8

const (
	ChannelGeneral ChannelID = iota
	ChannelStats
	ChannelMouseAbsolute
	ChannelTouch
	ChannelKeyboard
	ChannelControllers
	// ChannelController0 is the first of ControllerChannels consecutive
	// per-controller channels.
	ChannelController0
)

// ControllerChannels is the number of per-controller channels.
const ControllerChannels = 16

// ErrChannelClosed is returned when sending on a channel that is not
// open.
var ErrChannelClosed = errors.New("channel not open")

// ControllerChannel returns the channel of controller index, or false
// when index is out of range.
func ControllerChannel(index int) (ChannelID, bool) {
	if index < 0 || index >= ControllerChannels {
		return 0, false
	}
	return ChannelController0 + ChannelID(index), true
}

// ControllerIndex is the inverse of ControllerChannel.
func (c ChannelID) ControllerIndex() (int, bool) {
	if c < ChannelController0 || c >= ChannelController0+ControllerChannels {
		return 0, false
	}
	return int(c - ChannelController0), true
}

// Valid reports whether c is a known channel.
func (c ChannelID) Valid() bool {
	return c < ChannelController0+ControllerChannels
}

func (c ChannelID) String() string {
	switch c {
	case ChannelGeneral:
		return "general"
	case ChannelStats:
		return "stats"
	case ChannelMouseAbsolute:
		return "mouse"
	case ChannelTouch:
		return "touch"
	case ChannelKeyboard:
		return "keyboard"
	case ChannelControllers:
		return "controllers"
	}
	if index, ok := c.ControllerIndex(); ok {
		return "controller" + strconv.Itoa(index)
	}
	return fmt.Sprintf("channel(%d)", uint8(c))
}

// LookupChannel maps a data channel label to its channel. The three
// mouse labels share one channel.
func LookupChannel(label string) (ChannelID, bool) {
	switch label {
	case "general":
		return ChannelGeneral, true
	case "stats":
		return ChannelStats, true
	case "mouse_reliable", "mouse_absolute", "mouse_relative":
		return ChannelMouseAbsolute, true
	case "touch":
		return ChannelTouch, true
	case "keyboard":
		return ChannelKeyboard, true
	case "controllers":
		return ChannelControllers, true
	}
	digits, ok := strings.CutPrefix(label, "controller")
	if !ok || digits == "" {
		return 0, false
	}
	index, err := strconv.Atoi(digits)
	if err != nil || strconv.Itoa(index) != digits {
		return 0, false
	}
	return ControllerChannel(index)
}

// DataChannel is the part of *webrtc.DataChannel the router uses.
type DataChannel interface {
	Label() string
	OnMessage(func(webrtc.DataChannelMessage))
	OnClose(func())
	Send([]byte) error
}

var _ DataChannel = (*webrtc.DataChannel)(nil)

// ChannelRouter registers data channels opened by the browser. Input
// channels have their messages decoded and published as
// RecvPacketEvents; the stats channel is kept for outbound reports.
type ChannelRouter struct {
	bus     *EventBus
	logger  *slog.Logger
	metrics *Metrics

	mu    sync.Mutex
	stats DataChannel
}

// NewChannelRouter returns a router publishing to bus.
func NewChannelRouter(bus *EventBus, metrics *Metrics, logger *slog.Logger) *ChannelRouter {
	return &ChannelRouter{bus: bus, metrics: metrics, logger: logger}
}

// OnChannelOpened registers channel by its label and returns the
// channel it was routed to. Unknown labels, including controller
// indices past the last controller, are ignored.
func (r *ChannelRouter) OnChannelOpened(channel DataChannel) (ChannelID, bool) {
	label := channel.Label()
	id, ok := LookupChannel(label)
	if !ok || id == ChannelGeneral {
		r.logger.Debug("ignoring data channel", "label", label)
		return 0, false
	}

	self := weak.Make(r)
	if id == ChannelStats {
		r.mu.Lock()
		r.stats = channel
		r.mu.Unlock()

		channel.OnClose(func() {
			if router := self.Value(); router != nil {
				router.closeStats(channel)
			}
		})
		r.logger.Info("stats channel opened")
		return id, true
	}

	channel.OnMessage(func(message webrtc.DataChannelMessage) {
		if router := self.Value(); router != nil {
			router.deliver(id, message.Data)
		}
	})
	r.logger.Info("input channel opened", "label", label, "channel", id)
	return id, true
}

// HandleBinary decodes a binary WebSocket frame: one channel byte
// followed by the packet. Frames shorter than two bytes are dropped.
func (r *ChannelRouter) HandleBinary(frame []byte) {
	if len(frame) < 2 {
		r.logger.Warn("binary frame too short", "length", len(frame))
		return
	}
	r.deliver(ChannelID(frame[0]), frame[1:])
}

// deliver decodes payload and publishes it. Malformed packets are
// dropped.
func (r *ChannelRouter) deliver(channel ChannelID, payload []byte) {
	packet, ok := DecodeInbound(channel, payload)
	if !ok {
		r.logger.Debug("dropping malformed packet", "channel", channel, "length", len(payload))
		r.metrics.inputPacket(channel, false)
		return
	}
	r.metrics.inputPacket(channel, true)

	err := r.bus.Send(context.Background(), RecvPacketEvent{Channel: channel, Packet: packet})
	if err != nil {
		r.logger.Warn("dropping input packet", "channel", channel, "error", err)
	}
}

// Stats returns the open stats channel, or nil.
func (r *ChannelRouter) Stats() DataChannel {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats
}

// closeStats forgets channel if it is still the registered stats
// channel. A reopened stats channel is left alone.
func (r *ChannelRouter) closeStats(channel DataChannel) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stats == channel {
		r.stats = nil
		r.logger.Info("stats channel closed")
	}
}
