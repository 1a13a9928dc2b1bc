package ts

import "github.com/hirbod/expo-video-metadata-go/internal/bitreader"

// h264SPS is the subset of a decoded SPS that spec.md's supplemented TS
// dimension recovery needs (SPEC_FULL.md §5): MPEG-2 TS carries no
// container-level width/height the way MP4/EBML do, so the only way to
// learn a TS video track's frame size is to decode its first SPS NAL.
type h264SPS struct {
	Width, Height int
	ProfileIDC    byte
}

func isHighProfile(profileIDC byte) bool {
	switch profileIDC {
	case 100, 110, 122, 244, 44, 83, 86, 118, 128, 138, 139, 134, 135:
		return true
	default:
		return false
	}
}

// parseH264SPS decodes width/height from an Annex-B SPS NAL (start code
// stripped, 1-byte NAL header still present; NALToRBSP drops it) following the teacher's h264.go bit layout,
// generalized onto internal/bitreader. Returns ok=false on any read past
// the end of the RBSP rather than panicking.
func parseH264SPS(nal []byte) (h264SPS, bool) {
	rbsp := bitreader.NALToRBSP(nal, 1)
	if rbsp == nil {
		return h264SPS{}, false
	}
	br := bitreader.New(rbsp)

	profileIDC := byte(br.ReadBits(8))
	br.ReadBits(8) // constraint flags + reserved
	br.ReadBits(8) // level_idc
	br.ReadUE()    // seq_parameter_set_id

	chromaFormat := 1
	separateColourPlane := 0
	if isHighProfile(profileIDC) {
		chromaFormat = br.ReadUE()
		if chromaFormat == 3 {
			separateColourPlane = int(br.ReadBits(1))
		}
		br.ReadUE() // bit_depth_luma_minus8
		br.ReadUE() // bit_depth_chroma_minus8
		br.ReadBits(1)
		if br.ReadBits(1) == 1 {
			for range 8 {
				if br.ReadBits(1) == 1 {
					br.SkipScalingList(16)
				}
			}
		}
	}

	br.ReadUE() // log2_max_frame_num_minus4
	pocType := br.ReadUE()
	switch pocType {
	case 0:
		br.ReadUE()
	case 1:
		br.ReadBits(1)
		br.ReadSE()
		br.ReadSE()
		numRef := br.ReadUE()
		for i := 0; i < numRef; i++ {
			br.ReadSE()
		}
	}

	br.ReadUE() // max_num_ref_frames
	br.ReadBits(1)
	picWidthMbsMinus1 := br.ReadUE()
	picHeightMapUnitsMinus1 := br.ReadUE()
	frameMbsOnly := br.ReadBits(1)
	frameMbsOnlyInt := 0
	if frameMbsOnly != 0 {
		frameMbsOnlyInt = 1
	}
	if frameMbsOnly == 0 {
		br.ReadBits(1)
	}
	br.ReadBits(1)
	cropFlag := br.ReadBits(1)
	var cropLeft, cropRight, cropTop, cropBottom int
	if cropFlag == 1 {
		cropLeft = br.ReadUE()
		cropRight = br.ReadUE()
		cropTop = br.ReadUE()
		cropBottom = br.ReadUE()
	}

	codedWidth := (picWidthMbsMinus1 + 1) * 16
	codedHeight := (picHeightMapUnitsMinus1 + 1) * 16
	if frameMbsOnly == 0 {
		codedHeight *= 2
	}
	width := codedWidth
	height := codedHeight
	if cropFlag == 1 {
		subWidthC, subHeightC := 1, 1
		switch chromaFormat {
		case 1:
			subWidthC, subHeightC = 2, 2
		case 2:
			subWidthC, subHeightC = 2, 1
		case 0:
			subWidthC, subHeightC = 1, 2-frameMbsOnlyInt
		case 3:
			if separateColourPlane == 0 {
				subWidthC, subHeightC = 1, 1
			}
		}
		cropUnitX := subWidthC
		cropUnitY := subHeightC
		if frameMbsOnlyInt == 0 {
			cropUnitY *= 2
		}
		if width > (cropLeft+cropRight)*cropUnitX {
			width -= (cropLeft + cropRight) * cropUnitX
		}
		if height > (cropTop+cropBottom)*cropUnitY {
			height -= (cropTop + cropBottom) * cropUnitY
		}
	}

	return h264SPS{Width: width, Height: height, ProfileIDC: profileIDC}, true
}

// scanAnnexBNALs splits an Annex-B byte stream (001 or 0001 start codes) and
// invokes fn with each NAL's payload (start code stripped, header retained).
func scanAnnexBNALs(data []byte, fn func(nal []byte)) {
	starts := findStartCodes(data)
	for i, start := range starts {
		end := len(data)
		if i+1 < len(starts) {
			end = starts[i+1].codeStart
		}
		nal := data[start.nalStart:end]
		if len(nal) > 0 {
			fn(nal)
		}
	}
}

type startCode struct {
	codeStart int
	nalStart  int
}

func findStartCodes(data []byte) []startCode {
	var out []startCode
	for i := 0; i+2 < len(data); i++ {
		if data[i] == 0 && data[i+1] == 0 && data[i+2] == 1 {
			out = append(out, startCode{codeStart: i, nalStart: i + 3})
			i += 2
		}
	}
	return out
}

// findFirstSPS scans an Annex-B elementary stream for the first H.264 SPS
// NAL (nal_unit_type 7) and decodes it.
func findFirstSPS(data []byte) (h264SPS, bool) {
	var result h264SPS
	var found bool
	scanAnnexBNALs(data, func(nal []byte) {
		if found || len(nal) == 0 {
			return
		}
		if nal[0]&0x80 != 0 {
			return
		}
		if nal[0]&0x1F != 7 {
			return
		}
		if sps, ok := parseH264SPS(nal); ok {
			result, found = sps, true
		}
	})
	return result, found
}
