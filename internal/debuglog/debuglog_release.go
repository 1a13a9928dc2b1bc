//go:build !debug

package debuglog

// Debug is a no-op in release builds (no "debug" build tag).
func Debug(msg string, fields ...Field) {}
