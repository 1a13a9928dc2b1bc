// Package avi implements the RIFF/AVI parser of spec.md §4.8, grounded on
// the teacher's avi.go chunk walker and avih/strh/strf field layouts.
package avi

import (
	"encoding/binary"
	"strings"

	"github.com/hirbod/expo-video-metadata-go/internal/container"
)

// Looks reports whether buf starts with a RIFF....AVI  header (spec.md
// §4.8 "container sniffing").
func Looks(buf []byte) bool {
	return len(buf) >= 12 && string(buf[0:4]) == "RIFF" && string(buf[8:12]) == "AVI "
}

type chunk struct {
	ID      string
	Payload []byte
}

// walkChunks walks a RIFF list's children (each a 4-byte ID, 4-byte
// little-endian size, then payload padded to an even boundary).
func walkChunks(data []byte) []chunk {
	var chunks []chunk
	pos := 0
	for pos+8 <= len(data) {
		id := string(data[pos : pos+4])
		size := int(binary.LittleEndian.Uint32(data[pos+4 : pos+8]))
		start := pos + 8
		end := start + size
		if size < 0 || end > len(data) {
			break
		}
		chunks = append(chunks, chunk{ID: id, Payload: data[start:end]})
		if size%2 == 1 {
			end++
		}
		pos = end
	}
	return chunks
}

// listPayload splits a RIFF container's outer header: 4-byte "RIFF", 4-byte
// size (already consumed by the caller), 4-byte form type, then the body
// holding child chunks.
func listPayload(data []byte) (formType string, body []byte, ok bool) {
	if len(data) < 12 {
		return "", nil, false
	}
	return string(data[8:12]), data[12:], true
}

type videoStream struct {
	width, height int
	codec         string
	fps           float64
	hasFPS        bool
}

type audioStream struct {
	channels, sampleRate int
	codec                string
}

// Parse decodes a full AVI buffer into the shared intermediate record
// (spec.md §4.8).
func Parse(buf []byte, tag container.Tag) (container.ParsedVideoMetadata, error) {
	if !Looks(buf) {
		return container.ParsedVideoMetadata{}, container.NewError(
			container.KindMalformedStructure, tag, "RIFF", 0, "not a RIFF/AVI file")
	}
	_, body, ok := listPayload(buf)
	if !ok {
		return container.ParsedVideoMetadata{}, container.NewError(
			container.KindTruncatedInput, tag, "RIFF", 0, "truncated RIFF header")
	}
	topChunks := walkChunks(body)

	var mainHeader aviMainHeader
	var hasMainHeader bool
	var video *videoStream
	var audio *audioStream
	var writingApp string

	for _, c := range topChunks {
		if c.ID != "LIST" || len(c.Payload) < 4 {
			continue
		}
		formType := string(c.Payload[0:4])
		listBody := c.Payload[4:]
		switch formType {
		case "hdrl":
			mh, v, a, ok := parseHdrl(listBody)
			if ok {
				mainHeader, hasMainHeader = mh, true
			}
			if v != nil {
				video = v
			}
			if a != nil {
				audio = a
			}
		case "INFO":
			writingApp = parseInfo(listBody)
		}
	}

	if video == nil {
		return container.ParsedVideoMetadata{}, container.NewError(
			container.KindNoVideoTrack, tag, "strl", 0, "no video stream header found")
	}

	out := container.ParsedVideoMetadata{Container: tag}
	out.PixelWidth, out.PixelHeight = video.width, video.height
	out.DisplayAspectWidth, out.DisplayAspectHeight = video.width, video.height
	out.Codec = video.codec
	if video.hasFPS {
		out.FPS, out.HasFPS = video.fps, true
	}
	out.WritingApplication = writingApp

	if audio != nil {
		out.HasAudio = true
		out.AudioChannels = audio.channels
		out.AudioSampleRate = audio.sampleRate
		out.AudioCodec = audio.codec
		out.AudioChannelLayout = channelLayoutName(audio.channels)
	}

	out.FileSize = int64(len(buf))
	if hasMainHeader && mainHeader.microSecPerFrame > 0 && mainHeader.totalFrames > 0 {
		out.Duration = float64(mainHeader.totalFrames) * float64(mainHeader.microSecPerFrame) / 1_000_000
	}
	if out.Duration > 0 {
		out.Bitrate = int64(float64(out.FileSize*8) / out.Duration)
		out.HasBitrate = true
	}

	return out, nil
}

type aviMainHeader struct {
	microSecPerFrame uint32
	totalFrames      uint32
	width            uint32
	height           uint32
}

// parseHdrl walks the hdrl list body: avih (main header) and strl
// sub-lists (one per stream: strh + strf).
func parseHdrl(body []byte) (aviMainHeader, *videoStream, *audioStream, bool) {
	children := walkChunks(body)
	var main aviMainHeader
	var hasMain bool
	var video *videoStream
	var audio *audioStream

	for _, c := range children {
		switch {
		case c.ID == "avih":
			if m, ok := parseAvih(c.Payload); ok {
				main, hasMain = m, true
			}
		case c.ID == "LIST" && len(c.Payload) >= 4 && string(c.Payload[0:4]) == "strl":
			v, a := parseStrl(c.Payload[4:])
			if v != nil && video == nil {
				video = v
			}
			if a != nil && audio == nil {
				audio = a
			}
		}
	}
	return main, video, audio, hasMain
}

// parseAvih decodes the AVIMAINHEADER: dwMicroSecPerFrame(4),
// dwMaxBytesPerSec(4), dwPaddingGranularity(4), dwFlags(4),
// dwTotalFrames(4), dwInitialFrames(4), dwStreams(4), dwSuggestedBufferSize
// (4), dwWidth(4), dwHeight(4), ... (spec.md §4.8).
func parseAvih(payload []byte) (aviMainHeader, bool) {
	if len(payload) < 40 {
		return aviMainHeader{}, false
	}
	return aviMainHeader{
		microSecPerFrame: binary.LittleEndian.Uint32(payload[0:4]),
		totalFrames:      binary.LittleEndian.Uint32(payload[16:20]),
		width:            binary.LittleEndian.Uint32(payload[32:36]),
		height:           binary.LittleEndian.Uint32(payload[36:40]),
	}, true
}

func parseStrl(body []byte) (*videoStream, *audioStream) {
	children := walkChunks(body)
	strhChunk, hasStrh := findChunk(children, "strh")
	if !hasStrh || len(strhChunk.Payload) < 56 {
		return nil, nil
	}
	fccType := string(strhChunk.Payload[0:4])
	fccHandler := string(strhChunk.Payload[4:8])
	scale := binary.LittleEndian.Uint32(strhChunk.Payload[20:24])
	rate := binary.LittleEndian.Uint32(strhChunk.Payload[24:28])

	strfChunk, hasStrf := findChunk(children, "strf")

	switch fccType {
	case "vids":
		v := &videoStream{codec: mapFourCC(fccHandler)}
		if scale > 0 && rate > 0 {
			v.fps, v.hasFPS = float64(rate)/float64(scale), true
		}
		if hasStrf {
			parseStrfVideo(strfChunk.Payload, v)
		}
		return v, nil
	case "auds":
		a := &audioStream{}
		if hasStrf {
			parseStrfAudio(strfChunk.Payload, a)
		}
		return nil, a
	default:
		return nil, nil
	}
}

func findChunk(chunks []chunk, id string) (chunk, bool) {
	for _, c := range chunks {
		if c.ID == id {
			return c, true
		}
	}
	return chunk{}, false
}

// parseStrfVideo decodes a BITMAPINFOHEADER: biSize(4), biWidth(4),
// biHeight(4), biPlanes(2), biBitCount(2), biCompression(4,FourCC), ...
// (spec.md §4.8).
func parseStrfVideo(payload []byte, v *videoStream) {
	if len(payload) < 20 {
		return
	}
	v.width = int(binary.LittleEndian.Uint32(payload[4:8]))
	v.height = int(int32(binary.LittleEndian.Uint32(payload[8:12])))
	if v.height < 0 {
		v.height = -v.height
	}
	compression := binary.LittleEndian.Uint32(payload[16:20])
	if v.codec == "" {
		v.codec = mapFourCC(fourCC(compression))
	}
}

// parseStrfAudio decodes a WAVEFORMATEX: wFormatTag(2), nChannels(2),
// nSamplesPerSec(4), nAvgBytesPerSec(4), nBlockAlign(2), wBitsPerSample(2).
func parseStrfAudio(payload []byte, a *audioStream) {
	if len(payload) < 16 {
		return
	}
	formatTag := binary.LittleEndian.Uint16(payload[0:2])
	a.channels = int(binary.LittleEndian.Uint16(payload[2:4]))
	a.sampleRate = int(binary.LittleEndian.Uint32(payload[4:8]))
	a.codec = mapAudioFormatTag(formatTag)
}

func parseInfo(body []byte) string {
	children := walkChunks(body)
	for _, c := range children {
		if c.ID == "ISFT" {
			return trimNullString(c.Payload)
		}
	}
	return ""
}

func trimNullString(data []byte) string {
	for i, b := range data {
		if b == 0 {
			return string(data[:i])
		}
	}
	return string(data)
}

func fourCC(value uint32) string {
	b := []byte{byte(value), byte(value >> 8), byte(value >> 16), byte(value >> 24)}
	return string(b)
}

// mapFourCC maps a video FourCC handler/compression code to the codec name
// spec.md §4.7 reports: DIV3→divx3, DIVX→divx, DX50→divx5, XVID→xvid,
// MP42/MP43, H264/X264/DAVC→avc1, HEVC→hev1, MPG1→mpeg1, MPG2→mpeg2.
func mapFourCC(code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	switch code {
	case "DIV3":
		return "divx3"
	case "DIVX":
		return "divx"
	case "DX50":
		return "divx5"
	case "XVID":
		return "xvid"
	case "MP42":
		return "mp42"
	case "MP43":
		return "mp43"
	case "FMP4", "MP4V":
		return "mp4v"
	case "H264", "AVC1", "X264", "DAVC":
		return "avc1"
	case "HEVC", "H265", "HVC1":
		return "hev1"
	case "MPG1":
		return "mpeg1"
	case "MPG2":
		return "mpeg2"
	case "MJPG":
		return "mjpeg"
	case "VP80":
		return "vp8"
	case "VP90":
		return "vp9"
	default:
		return strings.ToLower(code)
	}
}

func mapAudioFormatTag(tag uint16) string {
	switch tag {
	case 0x0001:
		return "pcm"
	case 0x0055:
		return "mp3"
	case 0x2000:
		return "ac-3"
	case 0x00FF:
		return "aac"
	default:
		return ""
	}
}

var channelLayouts = map[int]string{1: "mono", 2: "stereo", 6: "5.1", 8: "7.1"}

func channelLayoutName(channels int) string {
	if name, ok := channelLayouts[channels]; ok {
		return name
	}
	return ""
}
