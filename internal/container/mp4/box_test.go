package mp4

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeBox appends a (size, type, payload) box to buf, grounded on the
// teacher's writeMP4Box test helper shape.
func writeBox(buf *bytes.Buffer, typ string, payload []byte) {
	var size [4]byte
	binary.BigEndian.PutUint32(size[:], uint32(8+len(payload)))
	buf.Write(size[:])
	buf.WriteString(typ)
	buf.Write(payload)
}

func TestWalkBoxesFlat(t *testing.T) {
	var buf bytes.Buffer
	writeBox(&buf, "ftyp", []byte("isom"))
	writeBox(&buf, "free", nil)
	writeBox(&buf, "moov", []byte{0x01, 0x02})

	boxes := walkBoxes(buf.Bytes())
	require.Len(t, boxes, 3)
	assert.Equal(t, "ftyp", boxes[0].Type)
	assert.Equal(t, "free", boxes[1].Type)
	assert.Equal(t, "moov", boxes[2].Type)
	assert.Equal(t, []byte{0x01, 0x02}, boxes[2].payload(buf.Bytes()))
}

func TestWalkBoxesStopsAtMalformedHeader(t *testing.T) {
	var buf bytes.Buffer
	writeBox(&buf, "ftyp", []byte("isom"))
	buf.Write([]byte{0x00, 0x00, 0x00, 0x02, 'b', 'a', 'd', '!'}) // size 2 < header len

	boxes := walkBoxes(buf.Bytes())
	assert.Len(t, boxes, 1)
}

func TestReadBoxHeaderZeroSizeRunsToEOF(t *testing.T) {
	var buf bytes.Buffer
	buf.Write([]byte{0x00, 0x00, 0x00, 0x00})
	buf.WriteString("mdat")
	buf.Write([]byte{0xAA, 0xBB, 0xCC})

	b, ok := readBoxHeader(buf.Bytes(), 0)
	require.True(t, ok)
	assert.Equal(t, "mdat", b.Type)
	assert.Equal(t, []byte{0xAA, 0xBB, 0xCC}, b.payload(buf.Bytes()))
}

func TestReadBoxHeaderExtendedSize(t *testing.T) {
	var buf bytes.Buffer
	buf.Write([]byte{0x00, 0x00, 0x00, 0x01})
	buf.WriteString("mdat")
	var sz [8]byte
	binary.BigEndian.PutUint64(sz[:], 20)
	buf.Write(sz[:])
	buf.Write(make([]byte, 4))

	b, ok := readBoxHeader(buf.Bytes(), 0)
	require.True(t, ok)
	assert.Equal(t, 16, b.PayloadStart)
	assert.Equal(t, 20, b.PayloadEnd)
}

func TestFindBox(t *testing.T) {
	var buf bytes.Buffer
	writeBox(&buf, "ftyp", []byte("isom"))
	writeBox(&buf, "moov", nil)
	boxes := walkBoxes(buf.Bytes())

	b, ok := findBox(boxes, "moov")
	assert.True(t, ok)
	assert.Equal(t, "moov", b.Type)

	_, ok = findBox(boxes, "free")
	assert.False(t, ok)
}

func TestIsVideoAndAudioSampleEntry(t *testing.T) {
	assert.True(t, isVideoSampleEntry("avc1"))
	assert.True(t, isVideoSampleEntry("hev1"))
	assert.False(t, isVideoSampleEntry("mp4a"))

	assert.True(t, isAudioSampleEntry("mp4a"))
	assert.True(t, isAudioSampleEntry("ac-3"))
	assert.False(t, isAudioSampleEntry("avc1"))
}
