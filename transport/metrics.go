// Copyright 2026 The Ariana Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts what the transport absorbs silently: dropped frames,
// failed writes, failed renegotiations, malformed input. A nil
// *Metrics records nothing.
type Metrics struct {
	frames         *prometheus.CounterVec
	writeErrors    *prometheus.CounterVec
	queueLength    *prometheus.GaugeVec
	renegotiations *prometheus.CounterVec
	inputPackets   *prometheus.CounterVec
}

// NewMetrics creates the transport's collectors and registers them with
// registerer, which may be nil to leave them unregistered.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	m := &Metrics{
		frames: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "streamer_media_frames_total",
			Help: "Frames offered to a media queue, by media kind and result (queued or dropped).",
		}, []string{"media", "result"}),
		writeErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "streamer_media_write_errors_total",
			Help: "Failed RTP writes to an outbound track.",
		}, []string{"media"}),
		queueLength: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "streamer_media_queue_length",
			Help: "Frames waiting in a media queue.",
		}, []string{"media"}),
		renegotiations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "streamer_renegotiations_total",
			Help: "Local offers sent, by result (ok, timeout, error).",
		}, []string{"result"}),
		inputPackets: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "streamer_input_packets_total",
			Help: "Input packets received, by channel and whether they decoded.",
		}, []string{"channel", "valid"}),
	}
	if registerer != nil {
		registerer.MustRegister(m.frames, m.writeErrors, m.queueLength, m.renegotiations, m.inputPackets)
	}
	return m
}

func (m *Metrics) frameOffered(media string, queued bool) {
	if m == nil {
		return
	}
	result := "queued"
	if !queued {
		result = "dropped"
	}
	m.frames.WithLabelValues(media, result).Inc()
}

func (m *Metrics) writeFailed(media string) {
	if m == nil {
		return
	}
	m.writeErrors.WithLabelValues(media).Inc()
}

func (m *Metrics) setQueueLength(media string, length int) {
	if m == nil {
		return
	}
	m.queueLength.WithLabelValues(media).Set(float64(length))
}

func (m *Metrics) renegotiated(result string) {
	if m == nil {
		return
	}
	m.renegotiations.WithLabelValues(result).Inc()
}

func (m *Metrics) inputPacket(channel ChannelID, valid bool) {
	if m == nil {
		return
	}
	m.inputPackets.WithLabelValues(channel.String(), strconv.FormatBool(valid)).Inc()
}
