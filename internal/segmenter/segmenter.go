// Package segmenter stream-copies a source file into raw segment files
// at a planned set of boundaries, and validates the resulting segment
// set against duration and size invariants.
package segmenter

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"

	drerrors "github.com/five82/drapto/internal/errors"
	"github.com/five82/drapto/internal/logging"
	"github.com/five82/drapto/internal/probe"
	"github.com/five82/drapto/internal/runner"
)

const minBoundarySecs = 1.0      // boundaries earlier than this would cut a trivial leading segment
const minSegmentBytes = 1024     // a segment smaller than this is suspect
const finalSegmentFloorSecs = 0.1
const boundaryAlignTolerance = 0.5

// RawSegment is one stream-copied slice of the source.
type RawSegment struct {
	Path         string
	Index        int
	DurationSecs float64
}

// Cut stream-copies src into raw segment files under segmentsDir via a
// single ffmpeg segment-muxer invocation at the planned boundary
// timestamps, named with zero-padded ordinals. Boundaries at or before
// 1s are dropped so no trivial leading segment is produced.
func Cut(ctx context.Context, src, segmentsDir string, boundaries []float64) ([]RawSegment, error) {
	times := usableBoundaries(boundaries)
	if len(times) == 0 {
		return nil, drerrors.NewSegmentationError("no usable segment boundaries after dropping sub-1s cut points")
	}

	parts := make([]string, len(times))
	for i, t := range times {
		parts[i] = fmt.Sprintf("%.6f", t)
	}

	argv := []string{
		"ffmpeg", "-hide_banner", "-loglevel", "error", "-y",
		"-i", src,
		"-c:v", "copy", "-an", "-sn",
		"-f", "segment",
		"-segment_times", strings.Join(parts, ","),
		"-reset_timestamps", "1",
		filepath.Join(segmentsDir, "%04d.mkv"),
	}
	if _, err := runner.Run(ctx, argv); err != nil {
		return nil, drerrors.NewSegmentationError(fmt.Sprintf("ffmpeg segmentation failed: %v", err))
	}

	return collectSegments(ctx, segmentsDir)
}

// usableBoundaries drops any boundary inside the first second, which
// would otherwise cut a trivial leading segment.
func usableBoundaries(boundaries []float64) []float64 {
	var kept []float64
	for _, b := range boundaries {
		if b <= minBoundarySecs {
			continue
		}
		kept = append(kept, b)
	}
	return kept
}

func collectSegments(ctx context.Context, segmentsDir string) ([]RawSegment, error) {
	entries, err := filepath.Glob(filepath.Join(segmentsDir, "*.mkv"))
	if err != nil || len(entries) == 0 {
		return nil, drerrors.NewSegmentationError("segmentation produced no output files")
	}
	sort.Strings(entries)

	segments := make([]RawSegment, 0, len(entries))
	for i, path := range entries {
		session := probe.Open(path)
		duration, derr := session.GetDuration(ctx, "video", 0)
		session.Close()
		if derr != nil {
			return nil, drerrors.NewSegmentationError(fmt.Sprintf("segment %s is not decodable: %v", filepath.Base(path), derr))
		}
		segments = append(segments, RawSegment{Path: path, Index: i, DurationSecs: duration})
	}
	return segments, nil
}

// ValidateSet checks the cut segment set: at least one segment, each
// file nonempty, short segments flagged, and the sum of segment
// durations within tolerance of the source duration. Non-final segments
// shorter than a second are only a warning when they align with a
// planned boundary; the final segment has a hard 0.1s floor.
func ValidateSet(ctx context.Context, segments []RawSegment, boundaries []float64, totalDuration float64) error {
	if len(segments) == 0 {
		return drerrors.NewSegmentationError("segment set is empty")
	}

	var sum float64
	for i, s := range segments {
		info, err := os.Stat(s.Path)
		if err != nil {
			return drerrors.NewSegmentationError(fmt.Sprintf("segment %d is missing: %v", s.Index, err))
		}
		if info.Size() < minSegmentBytes {
			return drerrors.NewSegmentationError(fmt.Sprintf("segment %d is suspiciously small (%d bytes)", s.Index, info.Size()))
		}

		final := i == len(segments)-1
		if final {
			if s.DurationSecs < finalSegmentFloorSecs {
				return drerrors.NewSegmentationError(
					fmt.Sprintf("final segment is only %.3fs long (floor %.1fs)", s.DurationSecs, finalSegmentFloorSecs))
			}
		} else if s.DurationSecs < minBoundarySecs && !alignsWithBoundary(sum+s.DurationSecs, boundaries) {
			logging.Warn("short segment not aligned with a planned scene boundary",
				"segment", filepath.Base(s.Path), "duration_secs", s.DurationSecs)
		}

		sum += s.DurationSecs
	}

	tolerance := math.Max(1.0, totalDuration*0.02)
	if math.Abs(sum-totalDuration) > tolerance {
		return drerrors.NewSegmentationError(
			fmt.Sprintf("segment durations sum to %.3fs, expected %.3fs (tolerance %.3fs)", sum, totalDuration, tolerance))
	}

	return nil
}

func alignsWithBoundary(t float64, boundaries []float64) bool {
	for _, b := range boundaries {
		if math.Abs(t-b) <= boundaryAlignTolerance {
			return true
		}
	}
	return false
}
