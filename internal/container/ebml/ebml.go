package ebml

import (
	"strings"

	"github.com/hirbod/expo-video-metadata-go/internal/colorinfo"
	"github.com/hirbod/expo-video-metadata-go/internal/container"
	"github.com/hirbod/expo-video-metadata-go/internal/fpsdetect"
)

// headerScanWindow bounds how far into the buffer the EBML header + DocType
// are looked for before giving up (spec.md §4.6): real files put DocType
// within the first kilobyte.
const headerScanWindow = 1024

// DocType inspects the leading EBML header to discriminate webm from mkv
// (spec.md §4.6 "container sniffing"). Returns container.Unknown if no
// EBML header is found within headerScanWindow.
func DocType(buf []byte) container.Tag {
	window := buf
	if len(window) > headerScanWindow {
		window = window[:headerScanWindow]
	}
	top := walkElements(window)
	ebmlEl, ok := findElement(top, idEBML)
	if !ok {
		return container.Unknown
	}
	children := walkElements(ebmlEl.payload(window))
	docTypeEl, ok := findElement(children, idDocType)
	if !ok {
		return container.Unknown
	}
	docType := strings.TrimRight(string(docTypeEl.payload(window)), "\x00")
	switch docType {
	case "webm":
		return container.WebM
	case "matroska":
		return container.MKV
	default:
		return container.Unknown
	}
}

// Parse decodes a full WebM/MKV buffer into the shared intermediate record
// (spec.md §4.6).
func Parse(buf []byte, tag container.Tag) (container.ParsedVideoMetadata, error) {
	top := walkElements(buf)
	segEl, ok := findElement(top, idSegment)
	if !ok {
		return container.ParsedVideoMetadata{}, container.NewError(
			container.KindMalformedStructure, tag, "Segment", 0, "no Segment element found")
	}
	segBuf := segEl.payload(buf)
	segChildren := walkElements(segBuf)

	var timecodeScale uint64 = 1_000_000 // default per Matroska spec
	var durationSec float64
	var hasDuration bool
	if infoEl, ok := findElement(segChildren, idInfo); ok {
		infoChildren := walkElements(infoEl.payload(segBuf))
		if tsEl, ok := findElement(infoChildren, idTimecodeScale); ok {
			if v := readUint(tsEl.payload(infoEl.payload(segBuf))); v > 0 {
				timecodeScale = v
			}
		}
		if durEl, ok := findElement(infoChildren, idDuration); ok {
			durationTicks := readFloatElement(durEl.payload(infoEl.payload(segBuf)))
			if durationTicks > 0 {
				durationSec = durationTicks * float64(timecodeScale) / 1e9
				hasDuration = true
			}
		}
	}

	tracksEl, ok := findElement(segChildren, idTracks)
	if !ok {
		return container.ParsedVideoMetadata{}, container.NewError(
			container.KindNoVideoTrack, tag, "Tracks", 0, "no Tracks element found")
	}
	trackEntries := findAllElements(walkElements(tracksEl.payload(segBuf)), idTrackEntry)

	var videoTrack, audioTrack *container.VideoTrackMetadata
	var audioChans, audioRate int
	var audioCodec string
	for _, entry := range trackEntries {
		entryBuf := entry.payload(segBuf)
		children := walkElements(entryBuf)
		typeEl, ok := findElement(children, idTrackType)
		if !ok {
			continue
		}
		trackType := readUint(typeEl.payload(entryBuf))

		codecIDStr := ""
		if codecEl, ok := findElement(children, idCodecID); ok {
			codecIDStr = strings.TrimRight(string(codecEl.payload(entryBuf)), "\x00")
		}

		switch trackType {
		case trackTypeVideo:
			if videoTrack != nil {
				continue
			}
			videoEl, ok := findElement(children, idTrackVideo)
			if !ok {
				continue
			}
			videoBuf := videoEl.payload(entryBuf)
			videoChildren := walkElements(videoBuf)
			v := parseVideoTrack(videoChildren, videoBuf, tag)
			v.Codec = mapCodecID(codecIDStr)
			// DefaultDuration is a TrackEntry child (nanoseconds per frame),
			// not a TrackVideo child, so it's read from entryBuf (spec.md §4.6).
			if ddEl, ok := findElement(children, idDefaultDuration); ok {
				if defaultDuration := readUint(ddEl.payload(entryBuf)); defaultDuration > 0 {
					if fps, ok := fpsdetect.Snap(1e9 / float64(defaultDuration)); ok {
						v.FPS = fps
						v.HasFPS = true
					}
				}
			}
			videoTrack = &v
		case trackTypeAudio:
			if audioTrack != nil {
				continue
			}
			audioEl, ok := findElement(children, idTrackAudio)
			if !ok {
				continue
			}
			audioBuf := audioEl.payload(entryBuf)
			audioChildren := walkElements(audioBuf)
			if rateEl, ok := findElement(audioChildren, idSamplingRate); ok {
				audioRate = int(readFloatElement(rateEl.payload(audioBuf)))
			}
			if chanEl, ok := findElement(audioChildren, idChannels); ok {
				audioChans = int(readUint(chanEl.payload(audioBuf)))
			}
			audioCodec = mapCodecID(codecIDStr)
		}
	}

	if videoTrack == nil {
		return container.ParsedVideoMetadata{}, container.NewError(
			container.KindNoVideoTrack, tag, "TrackEntry", 0, "no video track present")
	}

	out := container.ParsedVideoMetadata{
		VideoTrackMetadata: *videoTrack,
		Container:          tag,
	}
	if hasDuration {
		out.Duration = durationSec
	}
	if audioRate > 0 || audioChans > 0 {
		out.HasAudio = true
		out.AudioChannels = audioChans
		out.AudioSampleRate = audioRate
		out.AudioCodec = audioCodec
		out.AudioChannelLayout = channelLayoutName(audioChans)
	}

	out.FileSize = int64(len(buf))
	if out.Duration > 0 {
		out.Bitrate = int64(float64(out.FileSize*8) / out.Duration)
		out.HasBitrate = true
	}

	if infoEl, ok := findElement(segChildren, idInfo); ok {
		infoChildren := walkElements(infoEl.payload(segBuf))
		if writingEl, ok := findElement(infoChildren, idWritingApp); ok {
			out.WritingApplication = decodeUTF8(writingEl.payload(infoEl.payload(segBuf)))
		}
	}

	if chaptersEl, ok := findElement(segChildren, idChapters); ok {
		out.Chapters = parseChapters(chaptersEl.payload(segBuf))
	}

	return out, nil
}

var channelLayouts = map[int]string{1: "mono", 2: "stereo", 6: "5.1", 8: "7.1"}

func channelLayoutName(channels int) string {
	if name, ok := channelLayouts[channels]; ok {
		return name
	}
	return ""
}

func decodeUTF8(b []byte) string {
	return strings.TrimRight(string(b), "\x00")
}

// mapCodecID maps a Matroska CodecID string to the short codec name
// spec.md §4.6 reports, mirroring the MP4 side's codec-string convention.
func mapCodecID(codecID string) string {
	switch codecID {
	case "V_MPEG4/ISO/AVC":
		return "avc1"
	case "V_MPEGH/ISO/HEVC":
		return "hev1"
	case "V_VP8":
		return "vp8"
	case "V_VP9":
		return "vp9"
	case "V_AV1":
		return "av01"
	case "V_MPEG4/ISO/ASP", "V_MPEG4/ISO/SP":
		return "mp4v"
	case "A_OPUS":
		return "opus"
	case "A_VORBIS":
		return "vorbis"
	case "A_AAC":
		return "aac"
	case "A_AC3":
		return "ac-3"
	case "A_EAC3":
		return "ec-3"
	case "A_DTS":
		return "dts"
	case "A_FLAC":
		return "flac"
	case "A_PCM/INT/LIT", "A_PCM/INT/BIG":
		return "pcm"
	default:
		return strings.ToLower(strings.TrimPrefix(strings.TrimPrefix(codecID, "V_"), "A_"))
	}
}

// parseVideoTrack decodes the TrackVideo element: PixelWidth/Height,
// DisplayWidth/Height (only honored when DisplayUnit is pixels or absent),
// crop, and Colour (spec.md §4.6).
func parseVideoTrack(children []element, buf []byte, tag container.Tag) container.VideoTrackMetadata {
	var v container.VideoTrackMetadata
	if wEl, ok := findElement(children, idPixelWidth); ok {
		v.PixelWidth = int(readUint(wEl.payload(buf)))
	}
	if hEl, ok := findElement(children, idPixelHeight); ok {
		v.PixelHeight = int(readUint(hEl.payload(buf)))
	}
	v.DisplayAspectWidth = v.PixelWidth
	v.DisplayAspectHeight = v.PixelHeight

	var cropLeft, cropRight, cropTop, cropBottom int
	if el, ok := findElement(children, idPixelCropLeft); ok {
		cropLeft = int(readUint(el.payload(buf)))
	}
	if el, ok := findElement(children, idPixelCropRight); ok {
		cropRight = int(readUint(el.payload(buf)))
	}
	if el, ok := findElement(children, idPixelCropTop); ok {
		cropTop = int(readUint(el.payload(buf)))
	}
	if el, ok := findElement(children, idPixelCropBottom); ok {
		cropBottom = int(readUint(el.payload(buf)))
	}
	if cropLeft > 0 || cropRight > 0 || cropTop > 0 || cropBottom > 0 {
		if w := v.PixelWidth - cropLeft - cropRight; w > 0 {
			v.DisplayAspectWidth = w
		}
		if h := v.PixelHeight - cropTop - cropBottom; h > 0 {
			v.DisplayAspectHeight = h
		}
	}

	unit := displayUnitPixels
	if el, ok := findElement(children, idDisplayUnit); ok {
		unit = int(readUint(el.payload(buf)))
	}
	if unit == displayUnitPixels {
		dw, hasDW := findElement(children, idDisplayWidth)
		dh, hasDH := findElement(children, idDisplayHeight)
		if hasDW && hasDH {
			w := int(readUint(dw.payload(buf)))
			h := int(readUint(dh.payload(buf)))
			if w > 0 && h > 0 {
				v.DisplayAspectWidth, v.DisplayAspectHeight = w, h
			}
		}
	}

	if colourEl, ok := findElement(children, idColour); ok {
		v.Color = colorinfo.ParseWebMColorInfo(toEBMLElements(walkElements(colourEl.payload(buf)), colourEl.payload(buf)))
	}

	return v
}

func toEBMLElements(elements []element, buf []byte) []colorinfo.EBMLElement {
	out := make([]colorinfo.EBMLElement, 0, len(elements))
	for _, e := range elements {
		out = append(out, colorinfo.EBMLElement{ID: e.ID, Payload: e.payload(buf)})
	}
	return out
}

// parseChapters reads the first EditionEntry's ChapterAtoms (spec.md §5
// supplemented chapters, mirroring the MP4 chpl support).
func parseChapters(chaptersBuf []byte) []container.Chapter {
	children := walkElements(chaptersBuf)
	editionEl, ok := findElement(children, idEditionEntry)
	if !ok {
		return nil
	}
	editionBuf := editionEl.payload(chaptersBuf)
	atoms := findAllElements(walkElements(editionBuf), idChapterAtom)
	chapters := make([]container.Chapter, 0, len(atoms))
	for _, atom := range atoms {
		atomBuf := atom.payload(editionBuf)
		atomChildren := walkElements(atomBuf)
		var offsetSec float64
		if tsEl, ok := findElement(atomChildren, idChapterTimeStart); ok {
			offsetSec = float64(readUint(tsEl.payload(atomBuf))) / 1e9
		}
		title := ""
		if dispEl, ok := findElement(atomChildren, idChapterDisplay); ok {
			dispBuf := dispEl.payload(atomBuf)
			if strEl, ok := findElement(walkElements(dispBuf), idChapString); ok {
				title = decodeUTF8(strEl.payload(dispBuf))
			}
		}
		chapters = append(chapters, container.Chapter{OffsetSeconds: offsetSec, Title: title})
	}
	return chapters
}
