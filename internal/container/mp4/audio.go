package mp4

// mapAudioFourCC maps a stsd sample-entry FourCC to the codec name
// spec.md §4.4 reports when no more specific descriptor (esds) refines it.
func mapAudioFourCC(fourcc string) string {
	switch fourcc {
	case "mp4a":
		return "aac"
	case "ac-3":
		return "ac-3"
	case "ec-3":
		return "ec-3"
	case "alac":
		return "alac"
	case "flac":
		return "flac"
	case "Opus", "opus":
		return "opus"
	case "dtsc", "dtsh":
		return "dts"
	case "dtse":
		return "dts-express"
	default:
		return lowerFourCC(fourcc)
	}
}

// esds object type indications relevant to spec.md's supplemented audio
// codec refinement (SPEC_FULL.md §5): the MPEG-4 registration authority's
// OTI byte inside the DecoderConfigDescriptor.
var esdsObjectTypes = map[byte]string{
	0x40: "aac",
	0x66: "aac", // MPEG-2 AAC Main
	0x67: "aac", // MPEG-2 AAC LC
	0x68: "aac", // MPEG-2 AAC SSR
	0x69: "mp3", // MPEG-2 Audio Part 3
	0x6B: "mp3", // MPEG-1 Audio
	0xA9: "dts",
	0xAC: "dts-hd",
}

// parseEsdsOTI walks an esds box payload looking for the DecoderConfig
// descriptor's object type indication (spec.md supplemented audio codec,
// SPEC_FULL.md §5). esds descriptors use MPEG-4 "expandable class tags":
// a tag byte, then a length encoded as up to 4 bytes each carrying 7 bits
// with the continuation bit in the MSB.
func parseEsdsOTI(payload []byte) (string, bool) {
	if len(payload) < 4 {
		return "", false
	}
	return parseDescriptors(payload[4:]) // skip the box's version+flags
}

// parseDescriptors walks a run of MPEG-4 descriptors (no version+flags
// header of its own, unlike the top-level esds box), recursing into
// ES_Descriptor (tag 0x03) to reach the nested DecoderConfigDescriptor.
func parseDescriptors(payload []byte) (string, bool) {
	offset := 0
	for offset < len(payload) {
		tag := payload[offset]
		offset++
		length, newOffset, ok := readDescriptorLength(payload, offset)
		if !ok {
			return "", false
		}
		offset = newOffset
		if offset+length > len(payload) {
			return "", false
		}
		body := payload[offset : offset+length]
		switch tag {
		case 0x03: // ES_Descriptor, contains a nested DecoderConfigDescriptor
			if sub, ok := parseDescriptors(body); ok {
				return sub, true
			}
		case 0x04: // DecoderConfigDescriptor: objectTypeIndication is the first byte
			if len(body) >= 1 {
				if name, ok := esdsObjectTypes[body[0]]; ok {
					return name, true
				}
			}
		}
		offset += length
	}
	return "", false
}

func readDescriptorLength(payload []byte, offset int) (length, newOffset int, ok bool) {
	for i := 0; i < 4; i++ {
		if offset >= len(payload) {
			return 0, 0, false
		}
		b := payload[offset]
		offset++
		length = (length << 7) | int(b&0x7F)
		if b&0x80 == 0 {
			return length, offset, true
		}
	}
	return 0, 0, false
}
