package mp4

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hirbod/expo-video-metadata-go/internal/container"
)

func TestSniffMOVBrand(t *testing.T) {
	var buf bytes.Buffer
	writeBox(&buf, "ftyp", []byte("qt  \x00\x00\x00\x00"))
	assert.Equal(t, DialectMOV, Sniff(buf.Bytes()))
}

func TestSniffMP4Brand(t *testing.T) {
	var buf bytes.Buffer
	writeBox(&buf, "ftyp", []byte("isom\x00\x00\x00\x00isomiso2"))
	assert.Equal(t, DialectMP4, Sniff(buf.Bytes()))
}

func TestSniffNoFtypIsMOV(t *testing.T) {
	var buf bytes.Buffer
	writeBox(&buf, "moov", nil)
	assert.Equal(t, DialectMOV, Sniff(buf.Bytes()))
}

func buildStsdVideo(sampleType string, w, h uint16) []byte {
	entry := buildVisualSampleEntry(sampleType, w, h)
	var full bytes.Buffer
	full.Write(entry)
	var full2 bytes.Buffer
	writeBox(&full2, sampleType, full.Bytes())

	var stsd bytes.Buffer
	stsd.Write(make([]byte, 4)) // version+flags
	var countB [4]byte
	binary.BigEndian.PutUint32(countB[:], 1)
	stsd.Write(countB[:])
	stsd.Write(full2.Bytes())
	return stsd.Bytes()
}

// buildStts builds a one-entry stts payload: count samples of delta ticks.
func buildStts(count, delta uint32) []byte {
	buf := make([]byte, 16)
	binary.BigEndian.PutUint32(buf[4:8], 1)
	binary.BigEndian.PutUint32(buf[8:12], count)
	binary.BigEndian.PutUint32(buf[12:16], delta)
	return buf
}

// buildMinimalVideoMP4 assembles a full ftyp/moov/trak/mdia/minf/stbl/stsd
// tree with one avc1 video track, grounded on the teacher's mp4_codec_test.go
// box-building approach.
func buildMinimalVideoMP4(t *testing.T, width, height uint16) []byte {
	t.Helper()
	var stbl bytes.Buffer
	writeBox(&stbl, "stsd", buildStsdVideo("avc1", width, height))
	writeBox(&stbl, "stts", buildStts(300, 3000))

	var minf bytes.Buffer
	writeBox(&minf, "stbl", stbl.Bytes())

	var mdia bytes.Buffer
	writeBox(&mdia, "mdhd", buildMdhd(0, 90000, 900000))
	hdlr := make([]byte, 12)
	copy(hdlr[8:12], "vide")
	writeBox(&mdia, "hdlr", hdlr)
	writeBox(&mdia, "minf", minf.Bytes())

	var trak bytes.Buffer
	writeBox(&trak, "tkhd", buildTkhd(0, fixed1616(float64(width)), fixed1616(float64(height)), identityMatrix()))
	writeBox(&trak, "mdia", mdia.Bytes())

	var moov bytes.Buffer
	mvhd := make([]byte, 20)
	binary.BigEndian.PutUint32(mvhd[12:16], 1000)
	binary.BigEndian.PutUint32(mvhd[16:20], 10000)
	writeBox(&moov, "mvhd", mvhd)
	writeBox(&moov, "trak", trak.Bytes())

	var file bytes.Buffer
	writeBox(&file, "ftyp", []byte("isom\x00\x00\x00\x00"))
	writeBox(&file, "moov", moov.Bytes())
	return file.Bytes()
}

func TestParseMP4HappyPath(t *testing.T) {
	buf := buildMinimalVideoMP4(t, 1920, 1080)
	out, err := Parse(buf, container.MP4)
	require.NoError(t, err)
	assert.Equal(t, 1920, out.PixelWidth)
	assert.Equal(t, 1080, out.PixelHeight)
	assert.Equal(t, "avc1", out.Codec)
	assert.InDelta(t, 10.0, out.Duration, 0.001)
	assert.True(t, out.HasFPS)
	assert.InDelta(t, 30.0, out.FPS, 0.01)
}

func TestParseMP4NoMoovFails(t *testing.T) {
	var buf bytes.Buffer
	writeBox(&buf, "ftyp", []byte("isom"))
	_, err := Parse(buf.Bytes(), container.MP4)
	assert.Error(t, err)
}

func TestParseMP4NoVideoTrackFails(t *testing.T) {
	var moov bytes.Buffer
	mvhd := make([]byte, 20)
	writeBox(&moov, "mvhd", mvhd)
	var buf bytes.Buffer
	writeBox(&buf, "moov", moov.Bytes())
	_, err := Parse(buf.Bytes(), container.MP4)
	assert.Error(t, err)
}

func TestParseISO6709WithAltitude(t *testing.T) {
	loc, ok := parseISO6709("+27.5916+086.5640+8850/")
	require.True(t, ok)
	assert.InDelta(t, 27.5916, loc.Latitude, 0.0001)
	assert.InDelta(t, 86.5640, loc.Longitude, 0.0001)
	require.NotNil(t, loc.Altitude)
	assert.InDelta(t, 8850, *loc.Altitude, 0.1)
}

func TestParseISO6709NegativeNoAltitude(t *testing.T) {
	loc, ok := parseISO6709("-27.5916-086.5640/")
	require.True(t, ok)
	assert.InDelta(t, -27.5916, loc.Latitude, 0.0001)
	assert.InDelta(t, -86.5640, loc.Longitude, 0.0001)
	assert.Nil(t, loc.Altitude)
}

func TestParseISO6709Malformed(t *testing.T) {
	_, ok := parseISO6709("not a location")
	assert.False(t, ok)
}

func TestParseLoci(t *testing.T) {
	var buf bytes.Buffer
	buf.Write(make([]byte, 4)) // version+flags
	buf.Write([]byte{0, 0})    // language
	buf.WriteString("Everest\x00")
	buf.WriteByte(0) // role
	var lon, lat, alt [4]byte
	binary.BigEndian.PutUint32(lon[:], uint32(int32(86.5640*65536)))
	binary.BigEndian.PutUint32(lat[:], uint32(int32(27.5916*65536)))
	binary.BigEndian.PutUint32(alt[:], uint32(int32(8850*65536)))
	buf.Write(lon[:])
	buf.Write(lat[:])
	buf.Write(alt[:])

	loc, ok := parseLoci(buf.Bytes())
	require.True(t, ok)
	assert.InDelta(t, 27.5916, loc.Latitude, 0.001)
	assert.InDelta(t, 86.5640, loc.Longitude, 0.001)
}

func buildChpl(entries ...container.Chapter) []byte {
	var buf bytes.Buffer
	buf.Write(make([]byte, 8)) // version+flags+reserved
	buf.WriteByte(byte(len(entries)))
	for _, c := range entries {
		var ts [8]byte
		binary.BigEndian.PutUint64(ts[:], uint64(c.OffsetSeconds*10_000_000))
		buf.Write(ts[:])
		buf.WriteByte(byte(len(c.Title)))
		buf.WriteString(c.Title)
	}
	return buf.Bytes()
}

func TestParseChpl(t *testing.T) {
	payload := buildChpl(
		container.Chapter{OffsetSeconds: 0, Title: "Intro"},
		container.Chapter{OffsetSeconds: 90, Title: "Chapter 2"},
	)
	chapters := parseChpl(payload)
	require.Len(t, chapters, 2)
	assert.Equal(t, "Intro", chapters[0].Title)
	assert.Equal(t, "Chapter 2", chapters[1].Title)
	assert.InDelta(t, 90.0, chapters[1].OffsetSeconds, 0.001)
}

func TestDecodeQuotedStringPlainUTF8(t *testing.T) {
	var buf bytes.Buffer
	var lenB [2]byte
	binary.BigEndian.PutUint16(lenB[:], 5)
	buf.Write(lenB[:])
	buf.Write([]byte{0, 0}) // language
	buf.WriteString("Hello")
	assert.Equal(t, "Hello", decodeQuotedString(buf.Bytes()))
}

func TestParseUdtaWritingApplication(t *testing.T) {
	var tooPayload bytes.Buffer
	var lenB [2]byte
	binary.BigEndian.PutUint16(lenB[:], 6)
	tooPayload.Write(lenB[:])
	tooPayload.Write([]byte{0, 0})
	tooPayload.WriteString("HandBr")

	var udta bytes.Buffer
	writeBox(&udta, "\xa9too", tooPayload.Bytes())

	_, app, _ := parseUdta(udta.Bytes())
	assert.Equal(t, "HandBr", app)
}
