// Copyright 2026 The Ariana Authors
// SPDX-License-Identifier: Apache-2.0

package streamapi

import "strings"

// VideoFormats is a bit set of video codec profiles, using the
// moonlight protocol's bit assignments.
type VideoFormats uint32

const (
	FormatH264          VideoFormats = 0x0001
	FormatH264High8444  VideoFormats = 0x0004
	FormatH265          VideoFormats = 0x0100
	FormatH265Main10    VideoFormats = 0x0200
	FormatH265Rext8444  VideoFormats = 0x0400
	FormatH265Rext10444 VideoFormats = 0x0800
	FormatAV1Main8      VideoFormats = 0x1000
	FormatAV1Main10     VideoFormats = 0x2000
	FormatAV1High8444   VideoFormats = 0x4000
	FormatAV1High10444  VideoFormats = 0x8000

	FormatMaskH264 = FormatH264 | FormatH264High8444
	FormatMaskH265 = FormatH265 | FormatH265Main10 | FormatH265Rext8444 | FormatH265Rext10444
	FormatMaskAV1  = FormatAV1Main8 | FormatAV1Main10 | FormatAV1High8444 | FormatAV1High10444
	FormatMaskAll  = FormatMaskH264 | FormatMaskH265 | FormatMaskAV1
)

var formatNames = []struct {
	format VideoFormats
	name   string
}{
	{FormatH264, "H264"},
	{FormatH264High8444, "H264_HIGH8_444"},
	{FormatH265, "H265"},
	{FormatH265Main10, "H265_MAIN10"},
	{FormatH265Rext8444, "H265_REXT8_444"},
	{FormatH265Rext10444, "H265_REXT10_444"},
	{FormatAV1Main8, "AV1_MAIN8"},
	{FormatAV1Main10, "AV1_MAIN10"},
	{FormatAV1High8444, "AV1_HIGH8_444"},
	{FormatAV1High10444, "AV1_HIGH10_444"},
}

// Has reports whether every bit of other is set in f.
func (f VideoFormats) Has(other VideoFormats) bool {
	return other != 0 && f&other == other
}

// Any reports whether any bit of other is set in f.
func (f VideoFormats) Any(other VideoFormats) bool {
	return f&other != 0
}

// Sanitized drops bits that name no known format. A set with no known
// format falls back to plain H.264, which every client decodes.
func (f VideoFormats) Sanitized() VideoFormats {
	known := f & FormatMaskAll
	if known == 0 {
		return FormatH264
	}
	return known
}

func (f VideoFormats) String() string {
	var names []string
	for _, entry := range formatNames {
		if f&entry.format != 0 {
			names = append(names, entry.name)
		}
	}
	if len(names) == 0 {
		return "none"
	}
	return strings.Join(names, "|")
}
