package mp4

import (
	"encoding/binary"
	"math"
	"strings"

	"golang.org/x/text/encoding/unicode"

	"github.com/hirbod/expo-video-metadata-go/internal/container"
)

// qtBrands are ftyp major/compatible brands that select the MOV dialect
// (clap/tapt/clef aperture precedence) over plain MP4 (spec.md §4.5).
var qtBrands = map[string]bool{
	"qt  ": true,
}

// Sniff inspects an ftyp box (or its absence) to decide MP4 vs MOV dialect,
// per spec.md §4.5 "container sniffing". Buffers without an ftyp box at all
// (legacy QuickTime movies predate ftyp) are treated as MOV.
func Sniff(buf []byte) Dialect {
	boxes := walkBoxes(buf)
	ftyp, ok := findBox(boxes, "ftyp")
	if !ok {
		return DialectMOV
	}
	payload := ftyp.payload(buf)
	if len(payload) < 4 {
		return DialectMP4
	}
	major := string(payload[0:4])
	if qtBrands[major] {
		return DialectMOV
	}
	for offset := 8; offset+4 <= len(payload); offset += 4 {
		if qtBrands[string(payload[offset:offset+4])] {
			return DialectMOV
		}
	}
	return DialectMP4
}

// Parse decodes a full MP4/MOV buffer into the shared intermediate record
// (spec.md §4.4, §4.5). tag is container.MP4 or container.MOV as decided by
// the caller (typically from Sniff).
func Parse(buf []byte, tag container.Tag) (container.ParsedVideoMetadata, error) {
	dialect := DialectMP4
	if tag == container.MOV {
		dialect = DialectMOV
	}

	boxes := walkBoxes(buf)
	moovBox, ok := findBox(boxes, "moov")
	if !ok {
		return container.ParsedVideoMetadata{}, container.NewError(
			container.KindMalformedStructure, tag, "moov", 0, "no moov box found")
	}
	moovBuf := moovBox.payload(buf)
	moovChildren := walkBoxes(moovBuf)

	var movieTimescale uint32
	var movieDurationSec float64
	var hasMovieDuration bool
	if mvhdBox, ok := findBox(moovChildren, "mvhd"); ok {
		if ts, dur, ok := parseMvhd(mvhdBox.payload(moovBuf)); ok {
			movieTimescale = ts
			movieDurationSec = dur
			hasMovieDuration = true
		}
	}

	var videoTrack *trackResult
	var audioTrack *trackResult
	for _, trakBox := range moovChildren {
		if trakBox.Type != "trak" {
			continue
		}
		result, ok := parseTrak(trakBox.payload(moovBuf), dialect)
		if !ok {
			continue
		}
		switch result.handlerType {
		case "vide":
			if videoTrack == nil {
				t := result
				videoTrack = &t
			}
		case "soun":
			if audioTrack == nil {
				t := result
				audioTrack = &t
			}
		}
	}

	if videoTrack == nil {
		kind := container.KindNoVideoTrack
		return container.ParsedVideoMetadata{}, container.NewError(
			kind, tag, "trak", 0, "no video track present")
	}

	out := container.ParsedVideoMetadata{
		VideoTrackMetadata: videoTrack.video,
		Container:          tag,
	}

	switch {
	case videoTrack.hasDuration:
		out.Duration = videoTrack.durationSec
	case hasMovieDuration:
		out.Duration = movieDurationSec
	default:
		if dur, ok := mvexFallbackDuration(moovChildren, moovBuf, movieTimescale); ok {
			out.Duration = dur
		}
	}

	if audioTrack != nil {
		out.HasAudio = true
		out.AudioChannels = audioTrack.audioChans
		out.AudioSampleRate = audioTrack.audioRate
		out.AudioCodec = audioTrack.audioCodec
		out.AudioChannelLayout = channelLayoutName(audioTrack.audioChans)
	}

	out.FileSize = int64(len(buf))
	if out.Duration > 0 {
		out.Bitrate = int64(math.Round(float64(out.FileSize*8) / out.Duration))
		out.HasBitrate = true
	}

	if udtaBox, ok := findBox(moovChildren, "udta"); ok {
		loc, app, chapters := parseUdta(udtaBox.payload(moovBuf))
		out.Location = loc
		out.WritingApplication = app
		out.Chapters = chapters
	}

	return out, nil
}

// parseMvhd reads the movie header: same version/timescale/duration layout
// as mdhd but without a language/track-specific prefix (spec.md §4.4).
func parseMvhd(payload []byte) (timescale uint32, durationSec float64, ok bool) {
	if len(payload) < 4 {
		return 0, 0, false
	}
	version := payload[0]
	offset := 4
	var duration uint64
	switch version {
	case 0:
		offset += 8
		if offset+8 > len(payload) {
			return 0, 0, false
		}
		timescale = binary.BigEndian.Uint32(payload[offset : offset+4])
		duration = uint64(binary.BigEndian.Uint32(payload[offset+4 : offset+8]))
	case 1:
		offset += 16
		if offset+12 > len(payload) {
			return 0, 0, false
		}
		timescale = binary.BigEndian.Uint32(payload[offset : offset+4])
		duration = binary.BigEndian.Uint64(payload[offset+4 : offset+12])
	default:
		return 0, 0, false
	}
	if timescale == 0 {
		return 0, 0, false
	}
	return timescale, float64(duration) / float64(timescale), true
}

// mvexFallbackDuration covers fragmented MP4 (spec.md §4.4 "fragmented
// movies omit mdhd/mvhd duration"). It always returns (0, false): the
// trex and tfhd default sample durations are not read and moof fragments
// are not walked, so a fragmented file with no mdhd/mvhd duration reports
// no duration. Kept as an explicit named hook so the fragmented case is
// visible rather than silently falling through.
func mvexFallbackDuration(moovChildren []box, moovBuf []byte, movieTimescale uint32) (float64, bool) {
	_, ok := findBox(moovChildren, "mvex")
	if !ok {
		return 0, false
	}
	return 0, false
}

var channelLayouts = map[int]string{
	1: "mono",
	2: "stereo",
	6: "5.1",
	8: "7.1",
}

func channelLayoutName(channels int) string {
	if name, ok := channelLayouts[channels]; ok {
		return name
	}
	return ""
}

// parseUdta reads the moov-level user-data box for location (©xyz / loci),
// writing application (©too), and chapters (chpl), per SPEC_FULL.md §5's
// supplemented udta features.
func parseUdta(udtaPayload []byte) (*container.Location, string, []container.Chapter) {
	children := walkBoxes(udtaPayload)

	var loc *container.Location
	if xyz, ok := findBox(children, "\xa9xyz"); ok {
		if parsed, ok := parseISO6709(decodeQuotedString(xyz.payload(udtaPayload))); ok {
			loc = parsed
		}
	}
	if loc == nil {
		if lociBox, ok := findBox(children, "loci"); ok {
			if parsed, ok := parseLoci(lociBox.payload(udtaPayload)); ok {
				loc = parsed
			}
		}
	}

	var app string
	if tooBox, ok := findBox(children, "\xa9too"); ok {
		app = decodeQuotedString(tooBox.payload(udtaPayload))
	}

	var chapters []container.Chapter
	if chplBox, ok := findBox(children, "chpl"); ok {
		chapters = parseChpl(chplBox.payload(udtaPayload))
	}

	return loc, app, chapters
}

// decodeQuotedString strips the 2-byte length + 2-byte language prefix QuickTime
// "© " metadata atoms use ahead of the text. Most files carry plain UTF-8
// here, but some authoring tools emit a UTF-16BE run with a leading BOM
// (the QTFF "extended language tag" convention); that case is decoded via
// golang.org/x/text rather than assumed away.
func decodeQuotedString(payload []byte) string {
	if len(payload) < 4 {
		return strings.TrimSpace(string(payload))
	}
	textLen := int(binary.BigEndian.Uint16(payload[0:2]))
	if 4+textLen > len(payload) {
		return ""
	}
	text := payload[4 : 4+textLen]
	if len(text) >= 2 && text[0] == 0xFE && text[1] == 0xFF {
		decoded, err := unicode.UTF16(unicode.BigEndian, unicode.ExpectBOM).NewDecoder().Bytes(text)
		if err == nil {
			return string(decoded)
		}
	}
	return string(text)
}

// parseISO6709 parses a string like "+27.5916+086.5640+8850/" into a
// Location (spec.md §6).
func parseISO6709(s string) (*container.Location, bool) {
	s = strings.TrimSuffix(strings.TrimSpace(s), "/")
	if s == "" {
		return nil, false
	}
	latEnd := 0
	for i := 1; i < len(s); i++ {
		if s[i] == '+' || s[i] == '-' {
			latEnd = i
			break
		}
	}
	if latEnd == 0 {
		return nil, false
	}
	rest := s[latEnd:]
	lonEnd := len(rest)
	for i := 1; i < len(rest); i++ {
		if rest[i] == '+' || rest[i] == '-' {
			lonEnd = i
			break
		}
	}
	latStr := s[:latEnd]
	lonStr := rest[:lonEnd]
	altStr := rest[lonEnd:]

	lat, ok := parseFloatStrict(latStr)
	if !ok {
		return nil, false
	}
	lon, ok := parseFloatStrict(lonStr)
	if !ok {
		return nil, false
	}
	loc := &container.Location{Latitude: lat, Longitude: lon}
	if altStr != "" {
		if alt, ok := parseFloatStrict(altStr); ok {
			loc.Altitude = &alt
		}
	}
	return loc, true
}

func parseFloatStrict(s string) (float64, bool) {
	if s == "" {
		return 0, false
	}
	neg := false
	i := 0
	if s[0] == '+' || s[0] == '-' {
		neg = s[0] == '-'
		i = 1
	}
	var intPart, fracPart float64
	var fracDiv float64 = 1
	seenDot := false
	any := false
	for ; i < len(s); i++ {
		c := s[i]
		if c == '.' {
			seenDot = true
			continue
		}
		if c < '0' || c > '9' {
			return 0, false
		}
		any = true
		if seenDot {
			fracDiv *= 10
			fracPart = fracPart*10 + float64(c-'0')
		} else {
			intPart = intPart*10 + float64(c-'0')
		}
	}
	if !any {
		return 0, false
	}
	v := intPart + fracPart/fracDiv
	if neg {
		v = -v
	}
	return v, true
}

// parseLoci reads the 3GPP loci box (version+flags, language(2),
// name(cstring), role(1), longitude(32-bit fixed), latitude(32-bit fixed),
// altitude(32-bit fixed), ...).
func parseLoci(payload []byte) (*container.Location, bool) {
	if len(payload) < 6 {
		return nil, false
	}
	offset := 6
	nameEnd := offset
	for nameEnd < len(payload) && payload[nameEnd] != 0 {
		nameEnd++
	}
	if nameEnd >= len(payload) {
		return nil, false
	}
	offset = nameEnd + 1
	if offset+1 > len(payload) {
		return nil, false
	}
	offset++ // role
	if offset+12 > len(payload) {
		return nil, false
	}
	lon := fixed1616ToFloat(binary.BigEndian.Uint32(payload[offset : offset+4]))
	lat := fixed1616ToFloat(binary.BigEndian.Uint32(payload[offset+4 : offset+8]))
	alt := fixed1616ToFloat(binary.BigEndian.Uint32(payload[offset+8 : offset+12]))
	loc := &container.Location{Latitude: lat, Longitude: lon, Altitude: &alt}
	return loc, true
}

func fixed1616ToFloat(v uint32) float64 {
	return float64(int32(v)) / 65536
}

// parseChpl reads the Nero chapter list box: version+flags(4), reserved(4),
// entry count(1), then per entry: 8-byte timestamp (100ns units), 1-byte
// title length, title bytes.
func parseChpl(payload []byte) []container.Chapter {
	if len(payload) < 9 {
		return nil
	}
	count := int(payload[8])
	offset := 9
	chapters := make([]container.Chapter, 0, count)
	for i := 0; i < count; i++ {
		if offset+9 > len(payload) {
			break
		}
		ts := binary.BigEndian.Uint64(payload[offset : offset+8])
		titleLen := int(payload[offset+8])
		offset += 9
		if offset+titleLen > len(payload) {
			break
		}
		title := string(payload[offset : offset+titleLen])
		offset += titleLen
		chapters = append(chapters, container.Chapter{
			OffsetSeconds: float64(ts) / 10_000_000,
			Title:         title,
		})
	}
	return chapters
}
