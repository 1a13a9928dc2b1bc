// Package videometa is the public surface of this module (spec.md §6): a
// single ParseVideoMetadata entry point over an in-memory byte buffer,
// returning the VideoInfoResult record or a typed error. Grounded on the
// teacher's pkg/mediainfo wrapper, re-scoped to this spec's result shape.
package videometa

import (
	"context"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/hirbod/expo-video-metadata-go/internal/colorinfo"
	"github.com/hirbod/expo-video-metadata-go/internal/container"
	"github.com/hirbod/expo-video-metadata-go/internal/container/avi"
	"github.com/hirbod/expo-video-metadata-go/internal/container/ebml"
	"github.com/hirbod/expo-video-metadata-go/internal/container/mp4"
	"github.com/hirbod/expo-video-metadata-go/internal/container/ts"
	"github.com/hirbod/expo-video-metadata-go/internal/debuglog"
	"github.com/hirbod/expo-video-metadata-go/internal/metricsserver"
)

// Orientation is the display orientation enum of spec.md §3.
type Orientation string

const (
	OrientationPortrait            Orientation = "Portrait"
	OrientationPortraitUpsideDown  Orientation = "PortraitUpsideDown"
	OrientationLandscape           Orientation = "Landscape"
	OrientationLandscapeRight      Orientation = "LandscapeRight"
	OrientationLandscapeLeft       Orientation = "LandscapeLeft"
)

// Location mirrors container.Location in the public surface.
type Location struct {
	Latitude  float64
	Longitude float64
	Altitude  *float64
}

// Chapter mirrors container.Chapter in the public surface.
type Chapter struct {
	OffsetSeconds float64
	Title         string
}

// VideoInfoResult is the public result record of spec.md §3.
type VideoInfoResult struct {
	Container  container.Tag `json:"container"`
	Duration   float64       `json:"duration"`
	HasAudio   bool          `json:"hasAudio"`
	HasHDR     bool          `json:"isHDR"`
	IsHDRKnown bool          `json:"-"` // tri-state: false+false means "unknown", not "SDR"

	Width  int     `json:"width"`
	Height int     `json:"height"`
	FPS    float64 `json:"fps,omitempty"`
	HasFPS bool    `json:"-"`

	BitRate  int64  `json:"bitRate"`
	FileSize int64  `json:"fileSize"`
	Codec    string `json:"codec"`

	Orientation        Orientation `json:"orientation"`
	NaturalOrientation Orientation `json:"naturalOrientation"`
	AspectRatio        float64     `json:"aspectRatio"`
	Is16x9             bool        `json:"is16_9"`

	AudioSampleRate int    `json:"audioSampleRate,omitempty"`
	AudioChannels   int    `json:"audioChannels,omitempty"`
	AudioCodec      string `json:"audioCodec,omitempty"`

	Location *Location `json:"location,omitempty"`

	// Supplemented (SPEC_FULL.md §5), beyond spec.md's VideoInfoResult.
	WritingApplication string    `json:"writingApplication,omitempty"`
	Chapters           []Chapter `json:"chapters,omitempty"`
	AudioChannelLayout string    `json:"audioChannelLayout,omitempty"`
}

// ParseVideoMetadataWithContext behaves like ParseVideoMetadata but stamps
// a request ID onto the call for correlating it across log lines, the way
// a long-running ingest pipeline would tie one file's parse attempt to the
// rest of its processing trace. ctx is otherwise unused: this module never
// blocks, so there is nothing to cancel.
func ParseVideoMetadataWithContext(ctx context.Context, buf []byte) (VideoInfoResult, error) {
	requestID := uuid.New().String()
	debuglog.Debug("parse started", debuglog.F("requestID", requestID), debuglog.F("bytes", len(buf)))
	result, err := ParseVideoMetadata(buf)
	if err != nil {
		debuglog.Debug("parse failed", debuglog.F("requestID", requestID), debuglog.F("error", err.Error()))
		return result, err
	}
	debuglog.Debug("parse finished", debuglog.F("requestID", requestID), debuglog.F("container", string(result.Container)))
	return result, nil
}

// ParseVideoMetadata sniffs buf's container format and extracts its video
// metadata, per spec.md §6's primary API and §4.1's dispatcher.
func ParseVideoMetadata(buf []byte) (VideoInfoResult, error) {
	start := time.Now()
	tag, err := sniff(buf)
	if err != nil {
		metricsserver.RecordParse("unknown", time.Since(start), "error")
		return VideoInfoResult{}, err
	}

	var parsed container.ParsedVideoMetadata
	switch tag {
	case container.MP4, container.MOV:
		parsed, err = mp4.Parse(buf, tag)
	case container.WebM, container.MKV:
		parsed, err = ebml.Parse(buf, tag)
	case container.TS:
		parsed, err = ts.Parse(buf, tag)
	case container.AVI:
		parsed, err = avi.Parse(buf, tag)
	default:
		metricsserver.RecordParse("unknown", time.Since(start), "error")
		return VideoInfoResult{}, container.NewError(
			container.KindUnsupportedContainer, container.Unknown, "", 0, "unrecognized container format")
	}
	if err != nil {
		metricsserver.RecordParse(string(tag), time.Since(start), "error")
		return VideoInfoResult{}, err
	}

	result := assemble(parsed)
	metricsserver.RecordParse(string(tag), time.Since(start), "ok")
	metricsserver.RecordHDR(result.IsHDRKnown, result.HasHDR)
	return result, nil
}

// sniff identifies a container format from its leading bytes (spec.md
// §4.1): EBML header before RIFF/ftyp/TS since WebM and MKV share the
// ftyp-less magic with nothing else, then ftyp/moov for MP4/MOV, RIFF for
// AVI, and a recurring 0x47 sync byte for MPEG-2 TS.
func sniff(buf []byte) (container.Tag, error) {
	if len(buf) < 12 {
		return container.Unknown, container.NewError(
			container.KindTruncatedInput, container.Unknown, "", 0, "input too short to sniff")
	}

	if len(buf) >= 4 && buf[0] == 0x1A && buf[1] == 0x45 && buf[2] == 0xDF && buf[3] == 0xA3 {
		tag := ebml.DocType(buf)
		if tag != container.Unknown {
			return tag, nil
		}
	}

	if avi.Looks(buf) {
		return container.AVI, nil
	}

	window := buf
	if len(window) > 32 {
		window = window[:32]
	}
	if containsASCII(window, "ftyp") {
		if mp4.Sniff(buf) == mp4.DialectMOV {
			return container.MOV, nil
		}
		return container.MP4, nil
	}
	if containsASCII(window, "moov") {
		return container.MOV, nil
	}

	if ts.Looks(buf) {
		return container.TS, nil
	}

	return container.Unknown, container.NewError(
		container.KindUnsupportedContainer, container.Unknown, "", 0, "no recognized container signature")
}

func containsASCII(buf []byte, needle string) bool {
	n := len(needle)
	for i := 0; i+n <= len(buf); i++ {
		if string(buf[i:i+n]) == needle {
			return true
		}
	}
	return false
}

// assemble builds the public VideoInfoResult from the intermediate record,
// applying spec.md §4.1's orientation/aspect-ratio/bitrate-precedence
// rules.
func assemble(p container.ParsedVideoMetadata) VideoInfoResult {
	width, height := p.PixelWidth, p.PixelHeight
	if p.DisplayAspectWidth > 0 && p.DisplayAspectHeight > 0 {
		width, height = p.DisplayAspectWidth, p.DisplayAspectHeight
	}

	natural := OrientationLandscape
	if height > width {
		natural = OrientationPortrait
	}
	orientation := orientationFor(p.Rotation, natural)

	var aspectRatio float64
	if width > 0 && height > 0 {
		aspectRatio = float64(width) / float64(height)
	}
	is16x9 := math.Abs(aspectRatio-16.0/9.0) < 0.01

	bitRate := p.Bitrate
	hasBitRate := p.HasBitrate
	if p.HasVideoBitrate {
		bitRate, hasBitRate = p.VideoBitrate, true
	}
	if !hasBitRate && p.Duration > 0 && p.FileSize > 0 {
		bitRate = int64(math.Round(float64(p.FileSize*8) / p.Duration))
	}

	out := VideoInfoResult{
		Container:          p.Container,
		Duration:           p.Duration,
		HasAudio:           p.HasAudio,
		Width:              width,
		Height:             height,
		FPS:                p.FPS,
		HasFPS:             p.HasFPS,
		BitRate:            bitRate,
		FileSize:           p.FileSize,
		Codec:              p.Codec,
		Orientation:        orientation,
		NaturalOrientation: natural,
		AspectRatio:        aspectRatio,
		Is16x9:             is16x9,
		AudioSampleRate:    p.AudioSampleRate,
		AudioChannels:      p.AudioChannels,
		AudioCodec:         p.AudioCodec,
		WritingApplication: p.WritingApplication,
		AudioChannelLayout: p.AudioChannelLayout,
	}

	if p.Color.HasMatrix || p.Color.HasTransfer || p.Color.HasPrimaries {
		out.IsHDRKnown = true
		out.HasHDR = colorinfo.IsHDR(p.Color)
	}

	if p.Location != nil {
		out.Location = &Location{
			Latitude:  p.Location.Latitude,
			Longitude: p.Location.Longitude,
			Altitude:  p.Location.Altitude,
		}
	}

	for _, c := range p.Chapters {
		out.Chapters = append(out.Chapters, Chapter{OffsetSeconds: c.OffsetSeconds, Title: c.Title})
	}

	return out
}

// orientationFor implements spec.md §4.1's rotation → orientation table.
func orientationFor(rotation int, natural Orientation) Orientation {
	switch rotation {
	case 90:
		return OrientationPortrait
	case 270:
		return OrientationPortraitUpsideDown
	case 180:
		if natural == OrientationPortrait {
			return OrientationPortraitUpsideDown
		}
		return OrientationLandscapeLeft
	default: // 0
		if natural == OrientationPortrait {
			return OrientationPortrait
		}
		return OrientationLandscapeRight
	}
}
