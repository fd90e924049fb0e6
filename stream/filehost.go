// Copyright 2026 The Ariana Authors
// SPDX-License-Identifier: Apache-2.0

package stream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/ariana-dot-dev/ariana/lib/clock"
	"github.com/ariana-dot-dev/ariana/lib/streamapi"
	"github.com/ariana-dot-dev/ariana/transport"
)

// defaultFPS is used when the client asks for zero frames per second.
const defaultFPS = 30

// FileHost is a Host that replays an H.264 Annex B file in a loop at
// the client's frame rate. Input is logged and otherwise ignored.
type FileHost struct {
	path   string
	clock  clock.Clock
	logger *slog.Logger

	// idr holds at most one pending key frame request.
	idr chan struct{}
}

// NewFileHost returns a host replaying the file at path.
func NewFileHost(path string, clk clock.Clock, logger *slog.Logger) *FileHost {
	return &FileHost{
		path:   path,
		clock:  clk,
		logger: logger,
		idr:    make(chan struct{}, 1),
	}
}

var _ Host = (*FileHost)(nil)

func (h *FileHost) Start(ctx context.Context, settings streamapi.StartStream, sink MediaSink) error {
	data, err := os.ReadFile(h.path)
	if err != nil {
		return fmt.Errorf("reading video file: %w", err)
	}
	units := accessUnits(data)
	if len(units) == 0 {
		return fmt.Errorf("video file %s holds no H.264 pictures", h.path)
	}
	if !units[0].keyframe {
		h.logger.Warn("video file does not start with a key frame", "path", h.path)
	}

	fps := settings.FPS
	if fps == 0 {
		fps = defaultFPS
	}
	setup := transport.VideoSetup{
		Format: streamapi.FormatH264,
		Width:  settings.Width,
		Height: settings.Height,
		FPS:    fps,
	}
	if err := sink.SetupVideo(setup); err != nil {
		return fmt.Errorf("setting up video: %w", err)
	}
	h.logger.Info("replaying video file", "path", h.path, "pictures", len(units), "fps", fps)

	return h.replay(ctx, units, fps, sink)
}

func (h *FileHost) replay(ctx context.Context, units []accessUnit, fps uint32, sink MediaSink) error {
	interval := time.Second / time.Duration(fps)
	ticker := h.clock.NewTicker(interval)
	defer ticker.Stop()

	var (
		index   int
		sent    uint64
		dropped uint64
		pts     time.Duration
	)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		select {
		case <-h.idr:
			index = nextKeyframe(units, index)
		default:
		}

		unit := units[index]
		frameType := transport.FrameTypePFrame
		if unit.keyframe {
			frameType = transport.FrameTypeIDR
		}
		result := sink.SendVideoUnit(transport.VideoUnit{Type: frameType, PTS: pts, Data: unit.data()})
		if result == transport.DecodeNeedIDR {
			dropped++
			h.RequestIDR()
		}
		sent++
		pts += interval
		index = (index + 1) % len(units)

		if sent%uint64(fps) == 0 {
			report := transport.StatsReport{
				FPS:           float64(fps),
				DroppedFrames: dropped,
			}
			if err := sink.Send(report); err != nil && !errors.Is(err, transport.ErrChannelClosed) {
				h.logger.Debug("sending stats failed", "error", err)
			}
		}
	}
}

// nextKeyframe returns the index of the first key frame at or after
// from, wrapping around. If there is none it returns from.
func nextKeyframe(units []accessUnit, from int) int {
	for offset := range len(units) {
		index := (from + offset) % len(units)
		if units[index].keyframe {
			return index
		}
	}
	return from
}

func (h *FileHost) SendInput(channel transport.ChannelID, packet transport.InboundPacket) {
	h.logger.Debug("input", "channel", channel, "packet", fmt.Sprintf("%+v", packet))
}

func (h *FileHost) RequestIDR() {
	select {
	case h.idr <- struct{}{}:
	default:
	}
}
