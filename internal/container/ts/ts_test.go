package ts

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hirbod/expo-video-metadata-go/internal/container"
)

func padPacket(body []byte) []byte {
	out := make([]byte, packetSize)
	copy(out, body)
	for i := len(body); i < packetSize; i++ {
		out[i] = 0xFF
	}
	return out
}

func TestLooksRequiresFourSyncBytes(t *testing.T) {
	buf := bytes.Repeat([]byte{0x47}, 1)
	buf = append(buf, make([]byte, packetSize-1)...)
	buf = append(buf, padPacket([]byte{0x47})...)
	buf = append(buf, padPacket([]byte{0x47})...)
	buf = append(buf, padPacket([]byte{0x47})...)
	assert.True(t, Looks(buf))

	buf[packetSize] = 0x00
	assert.False(t, Looks(buf))
}

func TestLooksTooShort(t *testing.T) {
	assert.False(t, Looks(make([]byte, packetSize*2)))
}

func TestParsePCRReadsBaseAndExtension(t *testing.T) {
	pkt := make([]byte, packetSize)
	pkt[3] = 0x30 // adaptation field present, no payload
	pkt[4] = 7    // adaptation field length
	pkt[5] = 0x10 // PCR_flag set
	// base=900000, ext=0
	base := uint64(900000)
	pkt[6] = byte(base >> 25)
	pkt[7] = byte(base >> 17)
	pkt[8] = byte(base >> 9)
	pkt[9] = byte(base >> 1)
	pkt[10] = byte(base<<7) | 0x7E // low bit of base plus reserved bits, ext high bit 0
	pkt[11] = 0x00

	pcr, ok := parsePCR(pkt)
	require.True(t, ok)
	assert.Equal(t, base*300, pcr)
}

func TestParsePCRNoPCRFlagFails(t *testing.T) {
	pkt := make([]byte, packetSize)
	pkt[3] = 0x30
	pkt[4] = 7
	pkt[5] = 0x00 // PCR_flag clear
	_, ok := parsePCR(pkt)
	assert.False(t, ok)
}

func TestStripPESHeaderRemovesHeaderOnFirstPacket(t *testing.T) {
	payload := append([]byte{0x00, 0x00, 0x01, 0xE0, 0x00, 0x00, 0x80, 0x00, 0x00}, []byte("payload")...)
	out := stripPESHeader(payload, true)
	assert.Equal(t, []byte("payload"), out)
}

func TestStripPESHeaderPassesThroughContinuation(t *testing.T) {
	payload := []byte("continuation-bytes")
	out := stripPESHeader(payload, false)
	assert.Equal(t, payload, out)
}

func TestStreamTypeClassification(t *testing.T) {
	assert.True(t, isVideoStreamType(0x1B))
	assert.False(t, isVideoStreamType(0x03))
	assert.True(t, isAudioStreamType(0x0F))
	assert.False(t, isAudioStreamType(0x1B))
	assert.Equal(t, "avc1", mapVideoStreamType(0x1B))
	assert.Equal(t, "hev1", mapVideoStreamType(0x24))
	assert.Equal(t, "aac", mapAudioStreamType(0x0F))
	assert.Equal(t, "ac-3", mapAudioStreamType(0x81))
}

func TestParsePAT(t *testing.T) {
	section := []byte{
		0x00,       // table_id
		0xB0, 0x0D, // section_length flags = 13
		0x00, 0x01, // transport_stream_id
		0xC1,       // reserved/version/current_next
		0x00,       // section_number
		0x00,       // last_section_number
		0x00, 0x01, // program_number = 1
		0xE1, 0x00, // PMT PID = 0x0100
		0x00, 0x00, 0x00, 0x00, // CRC (unchecked)
	}
	payload := append([]byte{0x00}, section...) // pointer field
	programs := parsePAT(payload)
	require.Len(t, programs, 1)
	assert.Equal(t, uint16(1), programs[0].ProgramNumber)
	assert.Equal(t, uint16(0x0100), programs[0].PMTPID)
}

func TestParsePMT(t *testing.T) {
	section := []byte{
		0x02,       // table_id (PMT)
		0xB0, 0x12, // section_length flags = 18
		0x00, 0x01, // program_number
		0xC1, // reserved/version/current_next
		0x00, // section_number
		0x00, // last_section_number
		0xE1, 0x01, // PCR_PID = 0x0101
		0xF0, 0x00, // program_info_length = 0
		0x1B,       // stream_type (H.264)
		0xE1, 0x01, // elementary PID = 0x0101
		0xF0, 0x00, // ES_info_length = 0
		0x00, 0x00, 0x00, 0x00, // CRC (unchecked)
	}
	payload := append([]byte{0x00}, section...)
	streams, pcrPID := parsePMT(payload)
	require.Len(t, streams, 1)
	assert.Equal(t, uint16(0x0101), streams[0].PID)
	assert.Equal(t, byte(0x1B), streams[0].StreamType)
	assert.Equal(t, uint16(0x0101), pcrPID)
}

// buildMinimalTSStream assembles PAT, PMT, and a single video packet carrying
// a PES-wrapped H.264 SPS alongside two PCR samples ten seconds apart,
// grounded on the teacher's mpeg_ts_test.go packet-building approach.
func buildMinimalTSStream(t *testing.T) []byte {
	t.Helper()

	patSection := []byte{
		0x00, 0xB0, 0x0D,
		0x00, 0x01,
		0xC1, 0x00, 0x00,
		0x00, 0x01, 0xE1, 0x00,
		0x00, 0x00, 0x00, 0x00,
	}
	patPayload := append([]byte{0x00}, patSection...)
	patHeader := []byte{0x47, 0x40, 0x00, 0x10}
	patPacket := padPacket(append(patHeader, patPayload...))

	pmtSection := []byte{
		0x02, 0xB0, 0x12,
		0x00, 0x01,
		0xC1, 0x00, 0x00,
		0xE1, 0x01,
		0xF0, 0x00,
		0x1B, 0xE1, 0x01, 0xF0, 0x00,
		0x00, 0x00, 0x00, 0x00,
	}
	pmtPayload := append([]byte{0x00}, pmtSection...)
	pmtHeader := []byte{0x47, 0x41, 0x00, 0x10}
	pmtPacket := padPacket(append(pmtHeader, pmtPayload...))

	// adaptation field: length=7, PCR_flag set, base=0, ext=0 -> PCR=0.
	adaptation := []byte{7, 0x10, 0, 0, 0, 0, 0, 0}
	pesHeader := []byte{0x00, 0x00, 0x01, 0xE0, 0x00, 0x00, 0x80, 0x00, 0x00}
	nal := append([]byte{0x00, 0x00, 0x01, 0x67}, baselineSPSRBSP...)
	videoHeader := []byte{0x47, 0x41, 0x01, 0x30} // PID 0x0101, adaptation+payload
	videoBody := append(append(append([]byte{}, videoHeader...), adaptation...), pesHeader...)
	videoBody = append(videoBody, nal...)
	videoPacket := padPacket(videoBody)

	// second video-PID packet: adaptation field only, PCR ten seconds later.
	base := uint64(900_000) // base*300 == 270,000,000 -> 10s at 27MHz
	pcrAdaptation := make([]byte, 7)
	pcrAdaptation[0] = 0x10
	pcrAdaptation[1] = byte(base >> 25)
	pcrAdaptation[2] = byte(base >> 17)
	pcrAdaptation[3] = byte(base >> 9)
	pcrAdaptation[4] = byte(base >> 1)
	pcrAdaptation[5] = byte(base<<7) | 0x7E
	pcrAdaptation[6] = 0x00
	pcrHeader := []byte{0x47, 0x01, 0x01, 0x20} // adaptation field only, no payload
	pcrBody := append(append([]byte{}, pcrHeader...), byte(7))
	pcrBody = append(pcrBody, pcrAdaptation...)
	pcrPacket := padPacket(pcrBody)

	var out []byte
	out = append(out, patPacket...)
	out = append(out, pmtPacket...)
	out = append(out, videoPacket...)
	out = append(out, pcrPacket...)
	return out
}

func TestParseTSHappyPath(t *testing.T) {
	buf := buildMinimalTSStream(t)
	out, err := Parse(buf, container.TS)
	require.NoError(t, err)
	assert.Equal(t, "avc1", out.Codec)
	assert.Equal(t, 1280, out.PixelWidth)
	assert.Equal(t, 720, out.PixelHeight)
	assert.InDelta(t, 10.0, out.Duration, 0.01)
}

func TestParseTSNoVideoStreamFails(t *testing.T) {
	patSection := []byte{
		0x00, 0xB0, 0x0D,
		0x00, 0x01,
		0xC1, 0x00, 0x00,
		0x00, 0x01, 0xE1, 0x00,
		0x00, 0x00, 0x00, 0x00,
	}
	patPayload := append([]byte{0x00}, patSection...)
	patHeader := []byte{0x47, 0x40, 0x00, 0x10}
	patPacket := padPacket(append(patHeader, patPayload...))

	var buf []byte
	for i := 0; i < 4; i++ {
		buf = append(buf, patPacket...)
	}
	_, err := Parse(buf, container.TS)
	assert.Error(t, err)
}
