// Package segment plans segment boundaries for a source file: detect
// scene cuts with the external content detector (internal/scd), filter
// them to respect a minimum gap, and insert synthetic boundaries so no
// segment exceeds the configured maximum length.
package segment

import (
	"context"
	"sort"

	drerrors "github.com/five82/drapto/internal/errors"
	"github.com/five82/drapto/internal/scd"
)

// Plan is an ordered list of segment boundary timestamps in seconds,
// strictly inside (0, duration); the endpoints are implicit.
type Plan struct {
	Boundaries []float64
}

// DetectorAvailable reports whether the external scene-change detector
// binary can be found on $PATH.
func DetectorAvailable() bool {
	return scd.IsAvailable()
}

// Build detects candidate scenes in path and turns them into a full
// segment plan via BuildPlan. A source that yields zero candidate
// scenes fails the job (SegmentationError) rather than falling back to
// fixed-interval cuts.
func Build(ctx context.Context, path string, fpsNum, fpsDen int, totalFrames uint64, duration, minSceneGap, maxSegmentLen float64) (*Plan, error) {
	candidates, err := scd.DetectScenes(ctx, path, fpsNum, fpsDen, totalFrames)
	if err != nil {
		return nil, err
	}
	return BuildPlan(candidates, duration, minSceneGap, maxSegmentLen)
}

// BuildPlan builds a segment boundary plan from raw candidate scene-cut
// timestamps: candidates are filtered so consecutive boundaries are at
// least minSceneGap apart, then the 0..duration timeline is swept and a
// synthetic boundary is inserted anywhere the gap between two adjacent
// (filtered) boundaries would exceed maxSegmentLen.
//
// A source that produces zero candidate scenes fails the job outright
// (SegmentationError) rather than falling back to fixed-interval cuts —
// that fallback is refused by design so every segment's boundary
// reflects the actual content, or nothing is produced at all.
func BuildPlan(candidates []float64, duration, minSceneGap, maxSegmentLen float64) (*Plan, error) {
	if len(candidates) == 0 {
		return nil, drerrors.NewSegmentationError("scene detection failed; no scenes detected")
	}

	filtered := filterByMinGap(candidates, minSceneGap)
	boundaries := insertSyntheticBoundaries(filtered, duration, maxSegmentLen)

	return &Plan{Boundaries: boundaries}, nil
}

func filterByMinGap(candidates []float64, minGap float64) []float64 {
	sorted := append([]float64{}, candidates...)
	sort.Float64s(sorted)

	var kept []float64
	last := -minGap // allow the first candidate through
	for _, c := range sorted {
		if c-last >= minGap {
			kept = append(kept, c)
			last = c
		}
	}
	return kept
}

// insertSyntheticBoundaries sweeps the timeline from 0 through duration
// and, wherever the gap between adjacent kept boundaries (including the
// implicit endpoints) exceeds maxSegmentLen, inserts boundaries at every
// maxSegmentLen stride across that gap.
func insertSyntheticBoundaries(sceneBoundaries []float64, duration, maxSegmentLen float64) []float64 {
	points := append([]float64{0}, sceneBoundaries...)
	points = append(points, duration)
	sort.Float64s(points)
	points = dedupe(points)

	var result []float64
	prev := points[0]
	for _, p := range points[1:] {
		for p-prev > maxSegmentLen {
			prev += maxSegmentLen
			result = append(result, prev)
		}
		if p < duration {
			result = append(result, p)
		}
		prev = p
	}
	return dedupe(result)
}

func dedupe(points []float64) []float64 {
	if len(points) == 0 {
		return points
	}
	out := []float64{points[0]}
	for _, p := range points[1:] {
		if p-out[len(out)-1] > 1e-6 {
			out = append(out, p)
		}
	}
	return out
}
