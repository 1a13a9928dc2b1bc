package mp4

import (
	"encoding/binary"
	"math"

	"github.com/hirbod/expo-video-metadata-go/internal/colorinfo"
	"github.com/hirbod/expo-video-metadata-go/internal/container"
	"github.com/hirbod/expo-video-metadata-go/internal/fpsdetect"
)

// Dialect selects MOV-only behavior (clap/tapt/clef aperture handling) on
// top of the shared MP4 box walk — the composition hook spec.md §9
// describes in place of the source's MOV-extends-MP4 inheritance.
type Dialect int

const (
	DialectMP4 Dialect = iota
	DialectMOV
)

// trackResult is everything one trak box yields, before the container
// dispatcher decides which track (if any) becomes the result's video/audio
// source.
type trackResult struct {
	handlerType string // "vide", "soun", or other
	video       container.VideoTrackMetadata
	audioChans  int
	audioRate   int
	audioCodec  string
	durationSec float64
	hasDuration bool
}

// parseTrak decodes one trak box's payload (spec.md §4.4 "Track
// selection", "Track header (tkhd)", codec/color/audio sections).
func parseTrak(trakPayload []byte, dialect Dialect) (trackResult, bool) {
	children := walkBoxes(trakPayload)
	var result trackResult

	tkhdBox, hasTkhd := findBox(children, "tkhd")
	var dispW, dispH int
	var rotation int
	if hasTkhd {
		dispW, dispH, rotation, _ = parseTkhd(tkhdBox.payload(trakPayload))
	}

	tapt, hasTapt := findBox(children, "tapt")
	var taptW, taptH int
	var hasTaptDims bool
	if dialect == DialectMOV && hasTapt {
		taptW, taptH, hasTaptDims = parseTaptClef(tapt.payload(trakPayload))
	}

	mdiaBox, hasMdia := findBox(children, "mdia")
	if !hasMdia {
		return trackResult{}, false
	}
	mdiaChildren := walkBoxes(mdiaBox.payload(trakPayload))

	hdlrBox, hasHdlr := findBox(mdiaChildren, "hdlr")
	if !hasHdlr {
		return trackResult{}, false
	}
	handlerType := parseHdlr(hdlrBox.payload(mdiaBox.payload(trakPayload)))
	result.handlerType = handlerType

	mdhdBox, hasMdhd := findBox(mdiaChildren, "mdhd")
	var timescale uint32
	var durationTicks uint64
	if hasMdhd {
		durSec, ts, durTicks, ok := parseMdhd(mdhdBox.payload(mdiaBox.payload(trakPayload)))
		if ok {
			result.durationSec = durSec
			result.hasDuration = true
			timescale = ts
			durationTicks = durTicks
		}
	}

	minfBox, hasMinf := findBox(mdiaChildren, "minf")
	if !hasMinf {
		return result, true
	}
	minfChildren := walkBoxes(minfBox.payload(mdiaBox.payload(trakPayload)))
	stblBox, hasStbl := findBox(minfChildren, "stbl")
	if !hasStbl {
		return result, true
	}
	stblBuf := stblBox.payload(minfBox.payload(mdiaBox.payload(trakPayload)))
	stblChildren := walkBoxes(stblBuf)

	stsdBox, hasStsd := findBox(stblChildren, "stsd")
	if !hasStsd {
		return result, true
	}
	stsdBuf := stsdBox.payload(stblBuf)
	entries := stsdChildren(stsdBuf)

	switch handlerType {
	case "vide":
		for _, entry := range entries {
			if !isVideoSampleEntry(entry.Type) {
				continue
			}
			entryPayload := entry.payload(stsdBuf)
			pw, ph := parseVisualSampleEntryDims(entryPayload)
			extBoxes := sampleEntryExtensionBoxes(entryPayload, true)
			extPayloadBase := 78
			colorBoxes, pasp, clap, btrt := collectVideoExtBoxes(entryPayload, extBoxes, extPayloadBase)

			codec := resolveVideoCodec(entry.Type, colorBoxes)
			color := colorinfo.ParseMP4SampleEntryColor(colorBoxes)

			dispAspectW, dispAspectH := pw, ph
			if pasp != nil {
				dispAspectW, dispAspectH = applyPasp(pw, ph, pasp)
			}
			if dialect == DialectMOV {
				if clap != nil {
					dispAspectW, dispAspectH = applyClap(pw, ph, clap)
				}
				if hasTaptDims && taptW > 0 && taptH > 0 {
					dispAspectW, dispAspectH = taptW, taptH
				}
			}

			result.video = container.VideoTrackMetadata{
				PixelWidth:          pw,
				PixelHeight:         ph,
				Rotation:            rotation,
				DisplayAspectWidth:  dispAspectW,
				DisplayAspectHeight: dispAspectH,
				Codec:               codec,
				Color:               color,
			}
			if dispW > 0 && dispH > 0 && (pw == 0 || ph == 0) {
				result.video.PixelWidth, result.video.PixelHeight = dispW, dispH
			}
			if btrt > 0 {
				result.video.VideoBitrate, result.video.HasVideoBitrate = btrt, true
			}

			if hasMdhd && timescale > 0 {
				sttsBox, ok := findStbtBox(stblChildren, "stts")
				if ok {
					sttsPayload := sttsBox.payload(stblBuf)
					if timing, ok := fpsdetect.ParseMP4TimingInfo(sttsPayload, timescale, durationTicks); ok {
						if fps, ok := fpsdetect.CalculateFps(timing); ok {
							result.video.FPS, result.video.HasFPS = fps, true
						}
					}
				}
			}
			break
		}
	case "soun":
		for _, entry := range entries {
			if !isAudioSampleEntry(entry.Type) {
				continue
			}
			entryPayload := entry.payload(stsdBuf)
			chans, rate := parseAudioSampleEntry(entryPayload)
			result.audioChans = chans
			result.audioRate = rate
			result.audioCodec = mapAudioFourCC(entry.Type)
			extBoxes := sampleEntryExtensionBoxes(entryPayload, false)
			if esdsBox, ok := findBox(extBoxes, "esds"); ok {
				esdsPayload := esdsBox.payload(entryPayload[28:])
				if oti, ok := parseEsdsOTI(esdsPayload); ok {
					result.audioCodec = oti
				}
			}
			break
		}
	}

	return result, true
}

func findStbtBox(children []box, typ string) (box, bool) {
	return findBox(children, typ)
}

// collectVideoExtBoxes gathers the color/HDR-relevant boxes plus pasp/clap/
// btrt from a video sample entry's extension region. extPayloadBase is the
// fixed-prefix length (78) the extBoxes' offsets are relative to.
func collectVideoExtBoxes(entryPayload []byte, extBoxes []box, extPayloadBase int) (colorBoxes []colorinfo.Box, pasp, clap []byte, btrt int64) {
	for _, b := range extBoxes {
		payload := entryPayload[extPayloadBase:]
		p := b.payload(payload)
		switch b.Type {
		case "colr", "mdcv", "clli", "dvcC", "dvvC", "avcC", "hvcC", "av1C", "vpcC", "dovi":
			colorBoxes = append(colorBoxes, colorinfo.Box{Type: b.Type, Payload: p})
		case "pasp":
			pasp = p
		case "clap":
			clap = p
		case "btrt":
			if len(p) >= 12 {
				btrt = int64(binary.BigEndian.Uint32(p[8:12]))
			}
		}
	}
	return
}

func resolveVideoCodec(sampleType string, colorBoxes []colorinfo.Box) string {
	switch sampleType {
	case "avc1", "avc3":
		for _, b := range colorBoxes {
			if b.Type == "avcC" && len(b.Payload) >= 4 {
				profile := b.Payload[1]
				level := b.Payload[3]
				return "avc1." + hexByte(profile) + hexByte(level)
			}
		}
		return "avc1"
	case "hev1", "hvc1":
		for _, b := range colorBoxes {
			if b.Type == "hvcC" && len(b.Payload) >= 13 {
				profile := b.Payload[1] & 0x1F
				level := b.Payload[12]
				return sampleType + "." + hexNibble(profile) + hexNibble(level)
			}
		}
		return sampleType
	case "vp09":
		return "vp9"
	case "vp08":
		return "vp08"
	case "av01":
		return "av01"
	case "mp4v":
		return "mp4v"
	default:
		return lowerFourCC(sampleType)
	}
}

const hexDigits = "0123456789abcdef"

func hexByte(b byte) string {
	return string([]byte{hexDigits[b>>4], hexDigits[b&0xF]})
}

func hexNibble(v byte) string {
	s := ""
	if v == 0 {
		return "0"
	}
	for v > 0 {
		s = string(hexDigits[v&0xF]) + s
		v >>= 4
	}
	return s
}

func lowerFourCC(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + 32
		}
	}
	return string(b)
}

// parseTkhd reads the track header per spec.md §4.4: version+flags(4),
// creation/modification/track_id/reserved/duration/reserved(8)/
// layer+alternate_group(4)/volume+reserved(4), the 9-entry 16.16
// transformation matrix, then display width/height.
func parseTkhd(payload []byte) (dispW, dispH, rotation int, ok bool) {
	if len(payload) < 4 {
		return 0, 0, 0, false
	}
	version := payload[0]
	timesLen := 16 // creation(4)+modification(4)+trackID(4)+reserved(4)
	durLen := 4
	if version == 1 {
		timesLen = 24 // creation(8)+modification(8)+trackID(4)+reserved(4)
		durLen = 8
	}
	offset := 4 + timesLen + durLen
	offset += 8  // reserved(8)
	offset += 4  // layer+alternate_group
	offset += 4  // volume+reserved
	if offset+36+8 > len(payload) {
		return 0, 0, 0, false
	}
	matrix := make([]int32, 9)
	for i := range 9 {
		matrix[i] = int32(binary.BigEndian.Uint32(payload[offset+i*4 : offset+i*4+4]))
	}
	offset += 36
	w := binary.BigEndian.Uint32(payload[offset : offset+4])
	h := binary.BigEndian.Uint32(payload[offset+4 : offset+8])
	dispW = int(math.Round(float64(w) / 65536))
	dispH = int(math.Round(float64(h) / 65536))
	rotation = rotationFromMatrix(matrix)
	return dispW, dispH, rotation, true
}

const fixed1616One = 0x00010000

// rotationFromMatrix derives rotation from the tkhd transform matrix
// (spec.md §4.4): {a=0,d=0,b=+1,c=-1} => 90; {a=0,d=0,b=-1,c=+1} => 270;
// {a=-1,d=-1} => 180; else 0. Matrix layout is [a,b,u, c,d,v, x,y,w].
func rotationFromMatrix(m []int32) int {
	if len(m) < 9 {
		return 0
	}
	a, b, c, d := m[0], m[1], m[3], m[4]
	switch {
	case a == 0 && d == 0 && b == fixed1616One && c == -fixed1616One:
		return 90
	case a == 0 && d == 0 && b == -fixed1616One && c == fixed1616One:
		return 270
	case a == -fixed1616One && d == -fixed1616One:
		return 180
	default:
		return 0
	}
}

// parseMdhd reads the media header per spec.md §4.4: version, 3 flag
// bytes, then 16 (v1) or 8 (v0) bytes of times, a 32-bit timescale, then a
// 64- (v1) or 32-bit (v0) duration.
func parseMdhd(payload []byte) (durationSec float64, timescale uint32, durationTicks uint64, ok bool) {
	if len(payload) < 4 {
		return 0, 0, 0, false
	}
	version := payload[0]
	offset := 4
	switch version {
	case 0:
		offset += 8 // creation(4) + modification(4)
		if offset+8 > len(payload) {
			return 0, 0, 0, false
		}
		timescale = binary.BigEndian.Uint32(payload[offset : offset+4])
		duration := binary.BigEndian.Uint32(payload[offset+4 : offset+8])
		durationTicks = uint64(duration)
	case 1:
		offset += 16 // creation(8) + modification(8)
		if offset+12 > len(payload) {
			return 0, 0, 0, false
		}
		timescale = binary.BigEndian.Uint32(payload[offset : offset+4])
		durationTicks = binary.BigEndian.Uint64(payload[offset+4 : offset+12])
	default:
		return 0, 0, 0, false
	}
	if timescale == 0 {
		return 0, 0, 0, false
	}
	return float64(durationTicks) / float64(timescale), timescale, durationTicks, true
}

// parseHdlr returns the 4-character handler_type ("vide", "soun", ...).
func parseHdlr(payload []byte) string {
	if len(payload) < 12 {
		return ""
	}
	return string(payload[8:12])
}

// parseVisualSampleEntryDims reads width/height from a VisualSampleEntry
// payload (after the 8-byte box header): offset 24 in the base-class+fixed
// fields region (spec.md §4.4).
func parseVisualSampleEntryDims(entryPayload []byte) (w, h int) {
	if len(entryPayload) < 28 {
		return 0, 0
	}
	return int(binary.BigEndian.Uint16(entryPayload[24:26])), int(binary.BigEndian.Uint16(entryPayload[26:28]))
}

// parseAudioSampleEntry reads channel count (offset 16) and sample rate
// (offset 24, 16.16 fixed point, upper 16 bits are Hz) per spec.md §4.4.
func parseAudioSampleEntry(entryPayload []byte) (channels, sampleRate int) {
	if len(entryPayload) < 28 {
		return 0, 0
	}
	channels = int(binary.BigEndian.Uint16(entryPayload[16:18]))
	rateFixed := binary.BigEndian.Uint32(entryPayload[24:28])
	sampleRate = int(rateFixed >> 16)
	return
}

// applyPasp adjusts display width per spec.md §4.4: displayWidth =
// round(width*hSpacing/vSpacing).
func applyPasp(w, h int, pasp []byte) (int, int) {
	if len(pasp) < 8 {
		return w, h
	}
	hSpacing := binary.BigEndian.Uint32(pasp[0:4])
	vSpacing := binary.BigEndian.Uint32(pasp[4:8])
	if vSpacing == 0 {
		return w, h
	}
	newW := int(math.Round(float64(w) * float64(hSpacing) / float64(vSpacing)))
	return newW, h
}

// applyClap reads a QuickTime clean-aperture box: four 32.32 fixed-point
// rationals (width, height, horizOffset, vertOffset) as pairs of
// (numerator, denominator) int32 values; only width/height are needed here.
func applyClap(w, h int, clap []byte) (int, int) {
	if len(clap) < 16 {
		return w, h
	}
	widthNum := int32(binary.BigEndian.Uint32(clap[0:4]))
	widthDen := int32(binary.BigEndian.Uint32(clap[4:8]))
	heightNum := int32(binary.BigEndian.Uint32(clap[8:12]))
	heightDen := int32(binary.BigEndian.Uint32(clap[12:16]))
	if widthDen == 0 || heightDen == 0 {
		return w, h
	}
	return int(widthNum / widthDen), int(heightNum / heightDen)
}

// parseTaptClef reads the track-aperture-mode-dimensions box's "clef" child
// (clean aperture dimensions): version+flags(4), width(32-bit 16.16),
// height(32-bit 16.16) (spec.md §4.4 "tapt/clef takes precedence over clap").
func parseTaptClef(taptPayload []byte) (w, h int, ok bool) {
	children := walkBoxes(taptPayload)
	clef, found := findBox(children, "clef")
	if !found {
		return 0, 0, false
	}
	payload := clef.payload(taptPayload)
	if len(payload) < 12 {
		return 0, 0, false
	}
	wFixed := binary.BigEndian.Uint32(payload[4:8])
	hFixed := binary.BigEndian.Uint32(payload[8:12])
	return int(math.Round(float64(wFixed) / 65536)), int(math.Round(float64(hFixed) / 65536)), true
}
