// Package eventstream implements the binary framing of the AWS-style
// event-stream protocol: a 12 byte prelude, a typed header block, the
// payload and a trailing checksum.
//
// Checksums are carried on the wire but never validated here.
package eventstream

import (
	"encoding/binary"
)

const (
	// PreludeLength covers total length, headers length and prelude CRC.
	PreludeLength = 12
	// MessageCRCLength is the trailing checksum size.
	MessageCRCLength = 4
	// MaxMessageBytes bounds total_length for a plausible frame.
	MaxMessageBytes = 1_000_000

	// ResyncSkip is where resynchronization starts probing, relative to the
	// rejected offset.
	ResyncSkip = 4

	// lengthProbe is how many prelude bytes a resync candidate must expose.
	lengthProbe = 8
)

// FrameStatus classifies the outcome of ScanFrame.
type FrameStatus int

const (
	// FrameOK means a complete frame was found.
	FrameOK FrameStatus = iota
	// FrameIncomplete means fewer than PreludeLength bytes remain.
	FrameIncomplete
	// FramePartial means the prelude is plausible but the frame runs past
	// the end of the buffer; more bytes are needed.
	FramePartial
	// FrameResync means the data at offset is not a frame; scanning
	// should continue at Next.
	FrameResync
)

func (s FrameStatus) String() string {
	switch s {
	case FrameOK:
		return "ok"
	case FrameIncomplete:
		return "incomplete"
	case FramePartial:
		return "partial"
	case FrameResync:
		return "resync"
	default:
		return "unknown"
	}
}

// Prelude holds the two length fields at the start of every frame.
type Prelude struct {
	TotalLength   uint32
	HeadersLength uint32
}

// Valid reports whether the lengths satisfy the framing rules:
// 0 < total <= MaxMessageBytes and 0 < headers < total.
func (p Prelude) Valid() bool {
	return p.TotalLength > 0 &&
		p.TotalLength <= MaxMessageBytes &&
		p.HeadersLength > 0 &&
		p.HeadersLength < p.TotalLength
}

func readPrelude(b []byte) Prelude {
	return Prelude{
		TotalLength:   binary.BigEndian.Uint32(b[0:4]),
		HeadersLength: binary.BigEndian.Uint32(b[4:8]),
	}
}

// FrameResult is the outcome of scanning one position of a buffer.
// Headers and Payload alias the scanned buffer and are only set for FrameOK.
type FrameResult struct {
	Status  FrameStatus
	Prelude Prelude
	Headers []byte
	Payload []byte
	// Next is the offset to continue from. For FrameIncomplete and
	// FramePartial it is the offset that was scanned.
	Next int
}

// ScanFrame tries to read one frame from buf at offset.
func ScanFrame(buf []byte, offset int) FrameResult {
	if len(buf)-offset < PreludeLength {
		return FrameResult{Status: FrameIncomplete, Next: offset}
	}

	prelude := readPrelude(buf[offset:])
	if !prelude.Valid() {
		return FrameResult{Status: FrameResync, Next: Resync(buf, offset)}
	}

	total := int(prelude.TotalLength)
	headersEnd := offset + PreludeLength + int(prelude.HeadersLength)
	payloadEnd := offset + total - MessageCRCLength
	if headersEnd >= payloadEnd {
		return FrameResult{Status: FrameResync, Next: Resync(buf, offset)}
	}

	if offset+total > len(buf) {
		return FrameResult{Status: FramePartial, Prelude: prelude, Next: offset}
	}

	return FrameResult{
		Status:  FrameOK,
		Prelude: prelude,
		Headers: buf[offset+PreludeLength : headersEnd],
		Payload: buf[headersEnd:payloadEnd],
		Next:    offset + total,
	}
}

// Resync probes every position from offset+4 up to len(buf)-8 for eight
// bytes that look like a valid prelude and returns the first one, or
// len(buf) when nothing plausible is left in the buffer. The match is a
// heuristic and may land on a false positive.
func Resync(buf []byte, offset int) int {
	return NextPrelude(buf, offset+ResyncSkip)
}

// NextPrelude returns the first position p >= from whose eight bytes form a
// valid prelude, or len(buf) when there is none.
func NextPrelude(buf []byte, from int) int {
	for p := max(from, 0); p <= len(buf)-lengthProbe; p++ {
		if readPrelude(buf[p:]).Valid() {
			return p
		}
	}
	return len(buf)
}

// UnprobedTail returns where the bytes start that a probe beginning at from
// could not examine because fewer than eight bytes follow them. A prelude
// may still begin there once more data arrives.
func UnprobedTail(buf []byte, from int) int {
	return min(len(buf), max(from, len(buf)-lengthProbe+1, 0))
}
