// Package fpsdetect reconstructs frames-per-second from an ISO BMFF stts
// (time-to-sample) table, per spec.md §4.3. Grounded on the teacher's
// mp4_timing.go stts walker, generalized to keep the full entry table (the
// teacher only tracks first/last delta) and to snap to nominal rates.
package fpsdetect

import (
	"encoding/binary"
	"math"
)

// maxSttsEntries bounds the entry count against pathological inputs
// (spec.md §5, §8: "a stts entry count of 0 or > 10_000 yields absent fps").
const maxSttsEntries = 10_000

// Entry is one (sampleCount, sampleDuration) pair from stts.
type Entry struct {
	Count uint32
	Delta uint32
}

// TimingInfo is spec.md §3's TimingInfo: timescale, the stts entries in
// stream order, track duration in ticks, and total sample count.
type TimingInfo struct {
	Timescale    uint32
	Entries      []Entry
	DurationTick uint64
	SampleCount  uint64
}

// ParseMP4TimingInfo parses an stts box payload (version+flags already
// included) per spec.md §4.3: skip 4 bytes of version+flags, read a 32-bit
// entry count (reject 0 or >10_000), then that many (count, delta) pairs,
// dropping zero-count or zero-delta entries.
func ParseMP4TimingInfo(sttsPayload []byte, timescale uint32, durationTicks uint64) (TimingInfo, bool) {
	if len(sttsPayload) < 8 {
		return TimingInfo{}, false
	}
	entryCount := binary.BigEndian.Uint32(sttsPayload[4:8])
	if entryCount == 0 || entryCount > maxSttsEntries {
		return TimingInfo{}, false
	}
	offset := 8
	entries := make([]Entry, 0, entryCount)
	var totalSamples uint64
	for i := uint32(0); i < entryCount; i++ {
		if offset+8 > len(sttsPayload) {
			break
		}
		count := binary.BigEndian.Uint32(sttsPayload[offset : offset+4])
		delta := binary.BigEndian.Uint32(sttsPayload[offset+4 : offset+8])
		offset += 8
		if count == 0 || delta == 0 {
			continue
		}
		entries = append(entries, Entry{Count: count, Delta: delta})
		totalSamples += uint64(count)
	}
	if len(entries) == 0 {
		return TimingInfo{}, false
	}
	return TimingInfo{
		Timescale:    timescale,
		Entries:      entries,
		DurationTick: durationTicks,
		SampleCount:  totalSamples,
	}, true
}

// nominalRates are the common frame rates fps snaps to within tolerance
// (spec.md §4.3).
var nominalRates = []float64{23.976, 24, 25, 29.97, 30, 48, 50, 59.94, 60, 90, 120, 144, 165, 240}

const snapTolerance = 0.01

// CalculateFps computes the weighted average frame duration
// Σ(count·delta)/Σ(count), divides the timescale by it, then snaps to a
// nominal rate (or 2x/0.5x of one) within tolerance; otherwise rounds to 3
// decimal places within [10, 240], else returns absent (spec.md §4.3).
func CalculateFps(timing TimingInfo) (float64, bool) {
	if timing.Timescale == 0 || len(timing.Entries) == 0 {
		return 0, false
	}
	var weightedSum uint64
	var totalCount uint64
	for _, e := range timing.Entries {
		weightedSum += uint64(e.Count) * uint64(e.Delta)
		totalCount += uint64(e.Count)
	}
	if totalCount == 0 || weightedSum == 0 {
		return 0, false
	}
	avgDelta := float64(weightedSum) / float64(totalCount)
	if avgDelta == 0 {
		return 0, false
	}
	fps := float64(timing.Timescale) / avgDelta
	return Snap(fps)
}

// Snap maps fps to the nearest nominal rate (or its 2x/0.5x variant) within
// snapTolerance; otherwise rounds to 3 decimals within [10, 240]; otherwise
// reports absent. Snap is idempotent: Snap(Snap(x).value) == Snap(x)
// (spec.md §8).
func Snap(fps float64) (float64, bool) {
	for _, nominal := range nominalRates {
		if math.Abs(fps-nominal) <= snapTolerance {
			return nominal, true
		}
	}
	for _, nominal := range nominalRates {
		if math.Abs(fps-nominal*2) <= snapTolerance {
			return nominal * 2, true
		}
		if math.Abs(fps-nominal*0.5) <= snapTolerance {
			return nominal * 0.5, true
		}
	}
	if fps >= 10 && fps <= 240 {
		return math.Round(fps*1000) / 1000, true
	}
	return 0, false
}
