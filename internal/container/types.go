// Package container holds the types shared by every container-specific
// parser (mp4, ebml, ts, avi): the intermediate VideoTrackMetadata and
// ParsedVideoMetadata records of spec.md §3, and the error taxonomy of
// spec.md §7.
package container

import (
	"strconv"

	"github.com/hirbod/expo-video-metadata-go/internal/colorinfo"
)

// Tag identifies the recognized container kinds of spec.md §3/§6.
type Tag string

const (
	MP4     Tag = "mp4"
	MOV     Tag = "mov"
	WebM    Tag = "webm"
	MKV     Tag = "mkv"
	AVI     Tag = "avi"
	TS      Tag = "ts"
	Unknown Tag = "unknown"
)

// VideoTrackMetadata is the per-track intermediate record of spec.md §3.
//
// PixelWidth/PixelHeight are the raw encoded sample dimensions.
// DisplayAspectWidth/DisplayAspectHeight start equal to the pixel
// dimensions and are overridden by pasp/clap/tapt-clef/crop adjustments
// (spec.md §4.4, §4.5); callers that need the "as displayed" size use
// these rather than the pixel dimensions.
type VideoTrackMetadata struct {
	PixelWidth          int
	PixelHeight         int
	Rotation            int // one of 0, 90, 180, 270
	DisplayAspectWidth  int
	DisplayAspectHeight int
	Codec               string
	FPS                 float64
	HasFPS              bool
	Color               colorinfo.Info
	VideoBitrate        int64
	HasVideoBitrate     bool
	AudioBitrate        int64
	HasAudioBitrate     bool
}

// ParsedVideoMetadata extends VideoTrackMetadata with container-level
// fields (spec.md §3).
type ParsedVideoMetadata struct {
	VideoTrackMetadata

	Container Tag

	HasAudio            bool
	AudioChannels       int
	AudioSampleRate     int
	AudioCodec          string
	AudioChannelLayout  string

	Duration float64 // seconds, finite, >= 0
	FileSize int64
	Bitrate  int64
	HasBitrate bool

	// Location is set when the container exposed an ISO 6709 location tag
	// (spec.md §6). Altitude is optional even when Location is present.
	Location          *Location
	WritingApplication string
	Chapters           []Chapter
}

// Location is the optional recording-location tag of spec.md §3.
type Location struct {
	Latitude  float64
	Longitude float64
	Altitude  *float64
}

// Chapter is a supplemented (non-spec, additive) field — see SPEC_FULL.md
// §5 — carried from MP4 udta/chpl.
type Chapter struct {
	OffsetSeconds float64
	Title         string
}

// ErrorKind is the error taxonomy of spec.md §7.
type ErrorKind string

const (
	KindUnsupportedContainer ErrorKind = "UnsupportedContainer"
	KindTruncatedInput       ErrorKind = "TruncatedInput"
	KindMalformedStructure   ErrorKind = "MalformedStructure"
	KindNoVideoTrack         ErrorKind = "NoVideoTrack"
	KindReadError            ErrorKind = "ReadError"
)

// ParseError is the single exported error type the core reports fatal
// failures through (spec.md §7): it names the container, the offending
// element, and the byte offset when known.
type ParseError struct {
	Kind      ErrorKind
	Container Tag
	Element   string
	Offset    int64
	Message   string
}

func (e *ParseError) Error() string {
	msg := string(e.Kind)
	if e.Container != "" {
		msg += " in " + string(e.Container)
	}
	if e.Element != "" {
		msg += " at " + e.Element
	}
	if e.Offset != 0 {
		msg += " (offset " + strconv.FormatInt(e.Offset, 10) + ")"
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	return msg
}

// NewError builds a ParseError.
func NewError(kind ErrorKind, container Tag, element string, offset int64, message string) *ParseError {
	return &ParseError{Kind: kind, Container: container, Element: element, Offset: offset, Message: message}
}
