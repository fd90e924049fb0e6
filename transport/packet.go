// Copyright 2026 The Ariana Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"encoding/binary"
	"encoding/json"
	"math"
	"unicode/utf8"
)

// Input packets are big-endian. Every channel except the per-controller
// channels starts its packets with a kind byte.
//
//	mouse        0 move      dx i16, dy i16
//	             1 position  x i16, y i16, reference width i16, reference height i16
//	             2 button    action u8, button u8
//	             3 scroll    amount i16
//	             4 hscroll   amount i16
//	keyboard     0 key down  key code u16, modifiers u8
//	             1 key up    key code u16, modifiers u8
//	             2 text      utf-8 bytes
//	touch        event u8, pointer u32, x f32, y f32, pressure f32
//	controllers  0 connect    id u8, type u8, capabilities u16
//	             1 disconnect id u8
//	controllerN  buttons u32, triggers u8 u8, sticks i16 x4

// InboundPacket is a decoded input packet. The concrete types are the
// Mouse*, Key*, Touch, and Controller* structs in this file.
type InboundPacket interface {
	isInbound()
}

// ButtonAction is a press or a release.
type ButtonAction uint8

const (
	ActionPress ButtonAction = iota
	ActionRelease
)

type MouseMove struct {
	DX, DY int16
}

type MousePosition struct {
	X, Y                            int16
	ReferenceWidth, ReferenceHeight int16
}

type MouseButton struct {
	Action ButtonAction
	Button uint8
}

type MouseScroll struct {
	Amount     int16
	Horizontal bool
}

// KeyPress is a key down (ActionPress) or key up (ActionRelease).
type KeyPress struct {
	Action    ButtonAction
	Key       uint16
	Modifiers uint8
}

type KeyText struct {
	Text string
}

// TouchEventType follows the browser's pointer event phases.
type TouchEventType uint8

const (
	TouchHover TouchEventType = iota
	TouchDown
	TouchUp
	TouchMove
	TouchCancel
	TouchHoverLeave
)

type Touch struct {
	Event    TouchEventType
	Pointer  uint32
	X, Y     float32
	Pressure float32
}

type ControllerConnect struct {
	ID           uint8
	Type         uint8
	Capabilities uint16
}

type ControllerDisconnect struct {
	ID uint8
}

// ControllerState is the full state of one controller, sent on that
// controller's own channel.
type ControllerState struct {
	Index                     int
	Buttons                   uint32
	LeftTrigger, RightTrigger uint8
	LeftStickX, LeftStickY    int16
	RightStickX, RightStickY  int16
}

func (MouseMove) isInbound()            {}
func (MousePosition) isInbound()        {}
func (MouseButton) isInbound()          {}
func (MouseScroll) isInbound()          {}
func (KeyPress) isInbound()             {}
func (KeyText) isInbound()              {}
func (Touch) isInbound()                {}
func (ControllerConnect) isInbound()    {}
func (ControllerDisconnect) isInbound() {}
func (ControllerState) isInbound()      {}

// DecodeInbound decodes payload as a packet on channel. It reports
// false for unknown channels, unknown kinds, and wrong lengths.
func DecodeInbound(channel ChannelID, payload []byte) (InboundPacket, bool) {
	switch channel {
	case ChannelMouseAbsolute:
		return decodeMouse(payload)
	case ChannelKeyboard:
		return decodeKeyboard(payload)
	case ChannelTouch:
		return decodeTouch(payload)
	case ChannelControllers:
		return decodeControllers(payload)
	}
	if index, ok := channel.ControllerIndex(); ok {
		return decodeControllerState(index, payload)
	}
	return nil, false
}

func i16(b []byte) int16 { return int16(binary.BigEndian.Uint16(b)) }

func decodeAction(b byte) (ButtonAction, bool) {
	action := ButtonAction(b)
	return action, action == ActionPress || action == ActionRelease
}

func decodeMouse(payload []byte) (InboundPacket, bool) {
	if len(payload) == 0 {
		return nil, false
	}
	body := payload[1:]
	switch payload[0] {
	case 0:
		if len(body) != 4 {
			return nil, false
		}
		return MouseMove{DX: i16(body), DY: i16(body[2:])}, true
	case 1:
		if len(body) != 8 {
			return nil, false
		}
		return MousePosition{
			X:               i16(body),
			Y:               i16(body[2:]),
			ReferenceWidth:  i16(body[4:]),
			ReferenceHeight: i16(body[6:]),
		}, true
	case 2:
		if len(body) != 2 {
			return nil, false
		}
		action, ok := decodeAction(body[0])
		if !ok {
			return nil, false
		}
		return MouseButton{Action: action, Button: body[1]}, true
	case 3, 4:
		if len(body) != 2 {
			return nil, false
		}
		return MouseScroll{Amount: i16(body), Horizontal: payload[0] == 4}, true
	}
	return nil, false
}

func decodeKeyboard(payload []byte) (InboundPacket, bool) {
	if len(payload) == 0 {
		return nil, false
	}
	body := payload[1:]
	switch payload[0] {
	case 0, 1:
		if len(body) != 3 {
			return nil, false
		}
		return KeyPress{
			Action:    ButtonAction(payload[0]),
			Key:       binary.BigEndian.Uint16(body),
			Modifiers: body[2],
		}, true
	case 2:
		if len(body) == 0 || !utf8.Valid(body) {
			return nil, false
		}
		return KeyText{Text: string(body)}, true
	}
	return nil, false
}

func f32(b []byte) (float32, bool) {
	value := math.Float32frombits(binary.BigEndian.Uint32(b))
	return value, !math.IsNaN(float64(value)) && !math.IsInf(float64(value), 0)
}

func decodeTouch(payload []byte) (InboundPacket, bool) {
	if len(payload) != 17 || TouchEventType(payload[0]) > TouchHoverLeave {
		return nil, false
	}
	x, okX := f32(payload[5:])
	y, okY := f32(payload[9:])
	pressure, okPressure := f32(payload[13:])
	if !okX || !okY || !okPressure {
		return nil, false
	}
	return Touch{
		Event:    TouchEventType(payload[0]),
		Pointer:  binary.BigEndian.Uint32(payload[1:]),
		X:        x,
		Y:        y,
		Pressure: pressure,
	}, true
}

func decodeControllers(payload []byte) (InboundPacket, bool) {
	if len(payload) < 2 || int(payload[1]) >= ControllerChannels {
		return nil, false
	}
	switch payload[0] {
	case 0:
		if len(payload) != 5 {
			return nil, false
		}
		return ControllerConnect{
			ID:           payload[1],
			Type:         payload[2],
			Capabilities: binary.BigEndian.Uint16(payload[3:]),
		}, true
	case 1:
		if len(payload) != 2 {
			return nil, false
		}
		return ControllerDisconnect{ID: payload[1]}, true
	}
	return nil, false
}

func decodeControllerState(index int, payload []byte) (InboundPacket, bool) {
	if len(payload) != 14 {
		return nil, false
	}
	return ControllerState{
		Index:        index,
		Buttons:      binary.BigEndian.Uint32(payload),
		LeftTrigger:  payload[4],
		RightTrigger: payload[5],
		LeftStickX:   i16(payload[6:]),
		LeftStickY:   i16(payload[8:]),
		RightStickX:  i16(payload[10:]),
		RightStickY:  i16(payload[12:]),
	}, true
}

// OutboundPacket is a packet the host sends to the browser. The
// concrete types are ConnectionStatus, ControllerRumble, and
// StatsReport.
type OutboundPacket interface {
	encode() (ChannelID, []byte, error)
}

// ConnectionQuality is the host's view of the stream's network health.
type ConnectionQuality uint8

const (
	ConnectionOK ConnectionQuality = iota
	ConnectionPoor
)

// ConnectionStatus goes out on the general channel.
type ConnectionStatus struct {
	Quality ConnectionQuality
}

// ControllerRumble goes out on the general channel.
type ControllerRumble struct {
	ID                          uint8
	LowFrequency, HighFrequency uint16
}

// StatsReport goes out as JSON on the stats channel.
type StatsReport struct {
	FPS            float64 `json:"fps"`
	BitrateKbps    uint32  `json:"bitrate_kbps"`
	QueuedFrames   int     `json:"queued_frames"`
	DroppedFrames  uint64  `json:"dropped_frames"`
	HostLatencyMs  float64 `json:"host_latency_ms"`
	DecoderMessage string  `json:"message,omitempty"`
}

func (p ConnectionStatus) encode() (ChannelID, []byte, error) {
	return ChannelGeneral, []byte{0, byte(p.Quality)}, nil
}

func (p ControllerRumble) encode() (ChannelID, []byte, error) {
	buffer := []byte{1, p.ID}
	buffer = binary.BigEndian.AppendUint16(buffer, p.LowFrequency)
	buffer = binary.BigEndian.AppendUint16(buffer, p.HighFrequency)
	return ChannelGeneral, buffer, nil
}

func (p StatsReport) encode() (ChannelID, []byte, error) {
	data, err := json.Marshal(p)
	return ChannelStats, data, err
}

// EncodeOutbound returns the channel packet goes out on and its bytes.
func EncodeOutbound(packet OutboundPacket) (ChannelID, []byte, error) {
	return packet.encode()
}
