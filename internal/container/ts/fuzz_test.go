package ts

import (
	"bytes"
	"testing"

	"github.com/hirbod/expo-video-metadata-go/internal/container"
)

func FuzzParseTS(f *testing.F) {
	f.Add([]byte{})
	f.Add(bytes.Repeat([]byte{0x47}, 188))
	f.Add(append([]byte{0x47, 0x40, 0x00, 0x10}, bytes.Repeat([]byte{0xFF}, 184)...))

	f.Fuzz(func(t *testing.T, data []byte) {
		_, _ = Parse(data, container.TS)
	})
}
