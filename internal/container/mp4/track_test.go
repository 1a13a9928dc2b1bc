package mp4

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hirbod/expo-video-metadata-go/internal/colorinfo"
)

func fixed1616(v float64) uint32 {
	return uint32(v * 65536)
}

func identityMatrix() []int32 {
	return []int32{fixed1616One, 0, 0, 0, fixed1616One, 0, 0, 0, 1 << 30}
}

func buildTkhd(version byte, w, h uint32, matrix []int32) []byte {
	var buf bytes.Buffer
	buf.WriteByte(version)
	buf.Write([]byte{0, 0, 0}) // flags
	if version == 1 {
		buf.Write(make([]byte, 8+8+4+4)) // creation/modification/trackID/reserved
		buf.Write(make([]byte, 8))        // duration
	} else {
		buf.Write(make([]byte, 4+4+4+4))
		buf.Write(make([]byte, 4))
	}
	buf.Write(make([]byte, 8))  // reserved
	buf.Write(make([]byte, 4))  // layer+alternate_group
	buf.Write(make([]byte, 4))  // volume+reserved
	for _, v := range matrix {
		var b [4]byte
		binary.BigEndian.PutUint32(b[:], uint32(v))
		buf.Write(b[:])
	}
	var wb, hb [4]byte
	binary.BigEndian.PutUint32(wb[:], w)
	binary.BigEndian.PutUint32(hb[:], h)
	buf.Write(wb[:])
	buf.Write(hb[:])
	return buf.Bytes()
}

func TestParseTkhdIdentityMatrixNoRotation(t *testing.T) {
	payload := buildTkhd(0, fixed1616(1920), fixed1616(1080), identityMatrix())
	w, h, rot, ok := parseTkhd(payload)
	require.True(t, ok)
	assert.Equal(t, 1920, w)
	assert.Equal(t, 1080, h)
	assert.Equal(t, 0, rot)
}

func TestParseTkhd90DegreeRotation(t *testing.T) {
	matrix := []int32{0, fixed1616One, 0, -fixed1616One, 0, 0, 0, 0, 1 << 30}
	payload := buildTkhd(0, fixed1616(1080), fixed1616(1920), matrix)
	_, _, rot, ok := parseTkhd(payload)
	require.True(t, ok)
	assert.Equal(t, 90, rot)
}

func TestParseTkhd180DegreeRotation(t *testing.T) {
	matrix := []int32{-fixed1616One, 0, 0, 0, -fixed1616One, 0, 0, 0, 1 << 30}
	payload := buildTkhd(0, fixed1616(1920), fixed1616(1080), matrix)
	_, _, rot, ok := parseTkhd(payload)
	require.True(t, ok)
	assert.Equal(t, 180, rot)
}

func TestParseTkhdVersion1(t *testing.T) {
	payload := buildTkhd(1, fixed1616(3840), fixed1616(2160), identityMatrix())
	w, h, _, ok := parseTkhd(payload)
	require.True(t, ok)
	assert.Equal(t, 3840, w)
	assert.Equal(t, 2160, h)
}

func buildMdhd(version byte, timescale uint32, duration uint64) []byte {
	var buf bytes.Buffer
	buf.WriteByte(version)
	buf.Write([]byte{0, 0, 0})
	if version == 1 {
		buf.Write(make([]byte, 16))
		var tsb [4]byte
		binary.BigEndian.PutUint32(tsb[:], timescale)
		buf.Write(tsb[:])
		var db [8]byte
		binary.BigEndian.PutUint64(db[:], duration)
		buf.Write(db[:])
	} else {
		buf.Write(make([]byte, 8))
		var tsb [4]byte
		binary.BigEndian.PutUint32(tsb[:], timescale)
		buf.Write(tsb[:])
		var db [4]byte
		binary.BigEndian.PutUint32(db[:], uint32(duration))
		buf.Write(db[:])
	}
	return buf.Bytes()
}

func TestParseMdhdVersion0(t *testing.T) {
	payload := buildMdhd(0, 90000, 900000)
	dur, ts, ticks, ok := parseMdhd(payload)
	require.True(t, ok)
	assert.Equal(t, uint32(90000), ts)
	assert.Equal(t, uint64(900000), ticks)
	assert.InDelta(t, 10.0, dur, 0.001)
}

func TestParseMdhdVersion1(t *testing.T) {
	payload := buildMdhd(1, 90000, 1_800_000)
	dur, ts, _, ok := parseMdhd(payload)
	require.True(t, ok)
	assert.Equal(t, uint32(90000), ts)
	assert.InDelta(t, 20.0, dur, 0.001)
}

func TestParseMdhdZeroTimescaleRejected(t *testing.T) {
	payload := buildMdhd(0, 0, 1000)
	_, _, _, ok := parseMdhd(payload)
	assert.False(t, ok)
}

func TestParseHdlr(t *testing.T) {
	payload := make([]byte, 12)
	copy(payload[8:12], "vide")
	assert.Equal(t, "vide", parseHdlr(payload))
}

func buildVisualSampleEntry(codec string, w, h uint16) []byte {
	entry := make([]byte, 78)
	copy(entry[4:8], "    ") // reserved/ref_index region, unused here
	binary.BigEndian.PutUint16(entry[24:26], w)
	binary.BigEndian.PutUint16(entry[26:28], h)
	return entry
}

func TestParseVisualSampleEntryDims(t *testing.T) {
	entry := buildVisualSampleEntry("avc1", 1920, 1080)
	w, h := parseVisualSampleEntryDims(entry)
	assert.Equal(t, 1920, w)
	assert.Equal(t, 1080, h)
}

func TestParseAudioSampleEntry(t *testing.T) {
	entry := make([]byte, 28)
	binary.BigEndian.PutUint16(entry[16:18], 2)
	binary.BigEndian.PutUint32(entry[24:28], 48000<<16)
	chans, rate := parseAudioSampleEntry(entry)
	assert.Equal(t, 2, chans)
	assert.Equal(t, 48000, rate)
}

func TestApplyPasp(t *testing.T) {
	pasp := make([]byte, 8)
	binary.BigEndian.PutUint32(pasp[0:4], 4)
	binary.BigEndian.PutUint32(pasp[4:8], 3)
	w, h := applyPasp(720, 480, pasp)
	assert.Equal(t, 960, w)
	assert.Equal(t, 480, h)
}

func TestApplyClap(t *testing.T) {
	clap := make([]byte, 16)
	binary.BigEndian.PutUint32(clap[0:4], 1900)
	binary.BigEndian.PutUint32(clap[4:8], 1)
	binary.BigEndian.PutUint32(clap[8:12], 1060)
	binary.BigEndian.PutUint32(clap[12:16], 1)
	w, h := applyClap(1920, 1080, clap)
	assert.Equal(t, 1900, w)
	assert.Equal(t, 1060, h)
}

func TestParseTaptClef(t *testing.T) {
	var clef bytes.Buffer
	clef.Write(make([]byte, 4))
	var wb, hb [4]byte
	binary.BigEndian.PutUint32(wb[:], fixed1616(1920))
	binary.BigEndian.PutUint32(hb[:], fixed1616(1080))
	clef.Write(wb[:])
	clef.Write(hb[:])

	var tapt bytes.Buffer
	writeBox(&tapt, "clef", clef.Bytes())

	w, h, ok := parseTaptClef(tapt.Bytes())
	require.True(t, ok)
	assert.Equal(t, 1920, w)
	assert.Equal(t, 1080, h)
}

func TestResolveVideoCodecAVC(t *testing.T) {
	avcC := []byte{1, 0x64, 0x00, 0x28} // profile 0x64, level 0x28
	codec := resolveVideoCodec("avc1", []colorinfo.Box{{Type: "avcC", Payload: avcC}})
	assert.Equal(t, "avc1.6428", codec)
}

func TestResolveVideoCodecFallback(t *testing.T) {
	assert.Equal(t, "vp9", resolveVideoCodec("vp09", nil))
	assert.Equal(t, "mp4v", resolveVideoCodec("mp4v", nil))
}

func TestHexByteAndNibble(t *testing.T) {
	assert.Equal(t, "28", hexByte(0x28))
	assert.Equal(t, "1", hexNibble(1))
	assert.Equal(t, "0", hexNibble(0))
}
