// Copyright 2026 The Ariana Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pion/rtcp"

	"github.com/ariana-dot-dev/ariana/lib/netutil"
)

var (
	// ErrAlreadySetUp is returned by a second Setup of a pipeline.
	ErrAlreadySetUp = errors.New("media pipeline already set up")

	// ErrNotSetUp is returned when media arrives before Setup.
	ErrNotSetUp = errors.New("media pipeline not set up")
)

// Status codes returned across the media setup contract.
const (
	StatusOK     = 0
	StatusFailed = -1
)

// StatusCode maps a setup error to the host's status code.
func StatusCode(err error) int {
	if err != nil {
		return StatusFailed
	}
	return StatusOK
}

// renegotiationAttempts bounds the retries after a pipeline adds its
// track.
const renegotiationAttempts = 3

// renegotiate tells the browser about a newly added track. Transient
// failures are retried with exponential backoff. An answer timeout is
// not retried: the browser is alive but did not answer, and a later
// renegotiation will carry the track anyway. Failures are only logged;
// the track stays attached.
func renegotiate(ctx context.Context, session *SignalingSession, media string, logger *slog.Logger) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 250 * time.Millisecond

	attempt := 0
	err := backoff.Retry(func() error {
		attempt++
		err := session.SendOffer(ctx)
		if err == nil {
			return nil
		}
		if errors.Is(err, ErrAnswerTimeout) || errors.Is(err, ErrClosed) || ctx.Err() != nil {
			return backoff.Permanent(err)
		}
		logger.Debug("renegotiation attempt failed", "media", media, "attempt", attempt, "error", err)
		return err
	}, backoff.WithContext(backoff.WithMaxRetries(policy, renegotiationAttempts-1), ctx))
	if err != nil {
		logger.Warn("renegotiation after track setup failed", "media", media, "attempts", attempt, "error", err)
	}
}

// readFeedback drains a sender's RTCP until the sender stops. Reading
// is required for pion's interceptors to see receiver reports. When
// keyframes is set, PLI and FIR publish a RequestIDREvent.
func readFeedback(ctx context.Context, reader rtcpReader, bus *EventBus, keyframes bool, logger *slog.Logger) {
	for {
		packets, _, err := reader.ReadRTCP()
		if err != nil {
			if !netutil.IsExpectedCloseError(err) {
				logger.Warn("reading RTCP failed", "error", err)
			}
			return
		}
		if !keyframes {
			continue
		}
		for _, packet := range packets {
			switch packet.(type) {
			case *rtcp.PictureLossIndication, *rtcp.FullIntraRequest:
				if err := bus.Send(ctx, RequestIDREvent{}); err != nil {
					return
				}
			}
		}
	}
}
