package cli

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"

	"github.com/hirbod/expo-video-metadata-go/videometa"
)

// Render formats a VideoInfoResult for the requested output mode,
// mirroring the teacher's RenderCSV/RenderJSON/RenderText family, narrowed
// to the formats this module supports.
func Render(result videometa.VideoInfoResult, output string) (string, error) {
	switch output {
	case "", "text":
		return renderText(result), nil
	case "json":
		return renderJSON(result)
	case "csv":
		return renderCSV(result), nil
	case "yaml":
		return renderYAML(result)
	default:
		return "", fmt.Errorf("unsupported output format %q", output)
	}
}

func renderText(r videometa.VideoInfoResult) string {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "Container        : %s\n", r.Container)
	fmt.Fprintf(&buf, "Duration         : %.3fs\n", r.Duration)
	fmt.Fprintf(&buf, "File size        : %s\n", humanize.Bytes(uint64(max64(r.FileSize, 0))))
	fmt.Fprintf(&buf, "Dimensions       : %dx%d (%s)\n", r.Width, r.Height, r.Orientation)
	if r.HasFPS {
		fmt.Fprintf(&buf, "Frame rate       : %.3f fps\n", r.FPS)
	}
	fmt.Fprintf(&buf, "Codec            : %s\n", r.Codec)
	fmt.Fprintf(&buf, "Aspect ratio     : %.4f (16:9: %v)\n", r.AspectRatio, r.Is16x9)
	if r.IsHDRKnown {
		fmt.Fprintf(&buf, "HDR              : %v\n", r.HasHDR)
	}
	if r.BitRate > 0 {
		fmt.Fprintf(&buf, "Bit rate         : %s/s\n", humanize.Bytes(uint64(r.BitRate/8)))
	}
	if r.HasAudio {
		fmt.Fprintf(&buf, "Audio            : %s, %dch, %dHz\n", r.AudioCodec, r.AudioChannels, r.AudioSampleRate)
	}
	if r.Location != nil {
		fmt.Fprintf(&buf, "Location         : %.6f, %.6f\n", r.Location.Latitude, r.Location.Longitude)
	}
	return buf.String()
}

func renderJSON(r videometa.VideoInfoResult) (string, error) {
	b, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func renderYAML(r videometa.VideoInfoResult) (string, error) {
	b, err := yaml.Marshal(r)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func renderCSV(r videometa.VideoInfoResult) string {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	_ = w.Write([]string{"field", "value"})
	rows := [][2]string{
		{"container", string(r.Container)},
		{"duration", fmt.Sprintf("%.3f", r.Duration)},
		{"width", fmt.Sprintf("%d", r.Width)},
		{"height", fmt.Sprintf("%d", r.Height)},
		{"codec", r.Codec},
		{"orientation", string(r.Orientation)},
		{"aspectRatio", fmt.Sprintf("%.4f", r.AspectRatio)},
		{"is16x9", fmt.Sprintf("%v", r.Is16x9)},
		{"bitRate", fmt.Sprintf("%d", r.BitRate)},
		{"fileSize", fmt.Sprintf("%d", r.FileSize)},
	}
	for _, row := range rows {
		_ = w.Write(row[:])
	}
	w.Flush()
	return buf.String()
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
