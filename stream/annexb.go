// Copyright 2026 The Ariana Authors
// SPDX-License-Identifier: Apache-2.0

package stream

// H.264 NAL unit types used to group access units.
const (
	nalSlice = 1
	nalIDR   = 5
	nalAUD   = 9
)

// annexBStartCode is prepended to every NAL unit handed to the
// transport; its payloader splits on start codes.
var annexBStartCode = []byte{0, 0, 0, 1}

// splitNALUnits returns the NAL units of an Annex B byte stream
// without their start codes. Both 3-byte and 4-byte start codes are
// recognized.
func splitNALUnits(data []byte) [][]byte {
	type span struct{ codeStart, dataStart int }

	var spans []span
	for i := 0; i+2 < len(data); {
		if data[i] == 0 && data[i+1] == 0 {
			if i+3 < len(data) && data[i+2] == 0 && data[i+3] == 1 {
				spans = append(spans, span{i, i + 4})
				i += 4
				continue
			}
			if data[i+2] == 1 {
				spans = append(spans, span{i, i + 3})
				i += 3
				continue
			}
		}
		i++
	}

	var units [][]byte
	for index, s := range spans {
		end := len(data)
		if index+1 < len(spans) {
			end = spans[index+1].codeStart
		}
		if s.dataStart < end {
			units = append(units, data[s.dataStart:end])
		}
	}
	return units
}

// accessUnit is one coded picture and the parameter sets and SEI that
// precede it.
type accessUnit struct {
	nals     [][]byte
	keyframe bool
}

// data returns the unit's NAL units, each with a start code.
func (u accessUnit) data() [][]byte {
	buffers := make([][]byte, 0, 2*len(u.nals))
	for _, nal := range u.nals {
		buffers = append(buffers, annexBStartCode, nal)
	}
	return buffers
}

// accessUnits groups an H.264 stream into pictures. A slice whose
// first_mb_in_slice is zero, or an access unit delimiter, starts a new
// picture. Non-VCL units attach to the picture that follows them.
func accessUnits(stream []byte) []accessUnit {
	var (
		units   []accessUnit
		current accessUnit
		pending [][]byte
	)
	flush := func() {
		if len(current.nals) > 0 {
			units = append(units, current)
		}
		current = accessUnit{}
	}

	for _, nal := range splitNALUnits(stream) {
		switch nalType := nal[0] & 0x1f; nalType {
		case nalSlice, nalIDR:
			// first_mb_in_slice is ue(v); a leading 1 bit encodes zero.
			if len(nal) > 1 && nal[1]&0x80 != 0 {
				flush()
			}
			current.nals = append(current.nals, pending...)
			current.nals = append(current.nals, nal)
			pending = nil
			if nalType == nalIDR {
				current.keyframe = true
			}
		case nalAUD:
			flush()
			pending = append(pending, nal)
		default:
			pending = append(pending, nal)
		}
	}
	flush()
	return units
}
