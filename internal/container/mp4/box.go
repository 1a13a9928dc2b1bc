// Package mp4 implements the ISO BMFF (MP4) parser of spec.md §4.4, and the
// QuickTime MOV extension of §4.5/§4.4's "Dimensions override", grounded on
// the teacher's mp4.go/mp4_codec.go/mp4_timing.go box walkers.
package mp4

import (
	"encoding/binary"
)

// box is a decoded box header plus the offsets of its payload within the
// buffer it was read from.
type box struct {
	Type         string
	PayloadStart int
	PayloadEnd   int
}

func (b box) payload(buf []byte) []byte {
	if b.PayloadStart < 0 || b.PayloadEnd > len(buf) || b.PayloadStart > b.PayloadEnd {
		return nil
	}
	return buf[b.PayloadStart:b.PayloadEnd]
}

// readBoxHeader decodes a (size, type) header at offset within buf. size=1
// means an 8-byte extended size follows (16-byte header); size=0 means the
// box runs to the end of buf. Returns ok=false when the header itself, or a
// size smaller than its own header, would run past buf (spec.md §4.4).
func readBoxHeader(buf []byte, offset int) (b box, ok bool) {
	if offset+8 > len(buf) {
		return box{}, false
	}
	size32 := binary.BigEndian.Uint32(buf[offset : offset+4])
	typ := string(buf[offset+4 : offset+8])
	headerLen := 8
	var size int64
	switch {
	case size32 == 0:
		size = int64(len(buf) - offset)
	case size32 == 1:
		if offset+16 > len(buf) {
			return box{}, false
		}
		size64 := binary.BigEndian.Uint64(buf[offset+8 : offset+16])
		if size64 < 16 {
			return box{}, false
		}
		size = int64(size64)
		headerLen = 16
	default:
		if size32 < 8 {
			return box{}, false
		}
		size = int64(size32)
	}
	end := offset + int(size)
	if size < int64(headerLen) || end > len(buf) || end < offset {
		return box{}, false
	}
	return box{Type: typ, PayloadStart: offset + headerLen, PayloadEnd: end}, true
}

// walkBoxes returns the flat list of top-level boxes in buf, stopping at
// the first malformed header (spec.md §4.4 "Any size smaller than the
// header length truncates the walk").
func walkBoxes(buf []byte) []box {
	var boxes []box
	offset := 0
	for offset+8 <= len(buf) {
		b, ok := readBoxHeader(buf, offset)
		if !ok {
			break
		}
		boxes = append(boxes, b)
		offset = b.PayloadEnd
	}
	return boxes
}

func findBox(boxes []box, typ string) (box, bool) {
	for _, b := range boxes {
		if b.Type == typ {
			return b, true
		}
	}
	return box{}, false
}

// stsdChildren recurses into an stsd box: 4 bytes version+flags + 4 bytes
// entry count precede the first sample-entry box (spec.md §4.4
// "Sample-description header skip").
func stsdChildren(stsdPayload []byte) []box {
	if len(stsdPayload) < 8 {
		return nil
	}
	return walkBoxes(stsdPayload[8:])
}

// sampleEntryExtensionBoxes returns the child boxes following a sample
// entry's fixed prefix: 78 bytes for a video entry (avc1/hev1/hvc1/mp4v/
// vp08/vp09/av01), 28 bytes for an audio entry (mp4a, ac-3, ec-3, ...)
// (spec.md §4.4).
func sampleEntryExtensionBoxes(entryPayload []byte, video bool) []box {
	prefix := 28
	if video {
		prefix = 78
	}
	if len(entryPayload) <= prefix {
		return nil
	}
	return walkBoxes(entryPayload[prefix:])
}

func isVideoSampleEntry(typ string) bool {
	switch typ {
	case "avc1", "avc3", "hev1", "hvc1", "mp4v", "vp08", "vp09", "av01":
		return true
	default:
		return false
	}
}

func isAudioSampleEntry(typ string) bool {
	switch typ {
	case "mp4a", "ac-3", "ec-3", "alac", "flac", "Opus", "opus", "dtsc", "dtsh", "dtse":
		return true
	default:
		return false
	}
}
