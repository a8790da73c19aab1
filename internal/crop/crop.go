// Package crop detects black-bar cropping by sampling frames with
// ffmpeg's cropdetect filter across the body of a source, skipping any
// trailing credits, and picking the modal (most common) crop height.
package crop

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"strconv"

	"github.com/five82/drapto/internal/classify"
	"github.com/five82/drapto/internal/logging"
	"github.com/five82/drapto/internal/runner"
)

const (
	sdrLumaThreshold = 16
	hdrLumaThreshold = 128
	minLumaThreshold = 16
	maxLumaThreshold = 256
	minSamples       = 20
	minCropHeight    = 100 // cropdetect heights below this are noise, not bars
)

var cropRegex = regexp.MustCompile(`crop=(\d+):(\d+):(\d+):(\d+)`)
var blackLevelRegex = regexp.MustCompile(`black_level:\s*([0-9.]+)`)

// Result is the outcome of crop detection for one source file.
type Result struct {
	Filter   string // e.g. "crop=1920:800:0:140", empty if no crop needed
	Required bool
	Samples  int
}

// Detect runs cropdetect over sample frames spread through the body of
// the source and selects the modal crop height. If disabled is true, it
// returns an empty, non-required result without running ffmpeg. Failures
// to sample or parse degrade to "no crop" with a warning; encoding
// continues uncropped.
func Detect(ctx context.Context, path string, c *classify.Classification, disabled bool) (Result, error) {
	if disabled {
		return Result{}, nil
	}
	if c.DurationSecs <= 0 || c.Width == 0 || c.Height == 0 {
		return Result{}, nil
	}

	threshold := sdrLumaThreshold
	if c.IsHDR {
		threshold = calibrateHDRThreshold(ctx, path)
	}

	effectiveDuration := c.DurationSecs - creditsSkip(c.DurationSecs)
	samples := sampleCount(effectiveDuration)

	crops, err := runCropdetect(ctx, path, threshold, samples)
	if err != nil {
		logging.Warn("crop detection failed; continuing without crop", "error", err)
		return Result{}, nil
	}

	modalHeight, ok := modalCropHeight(crops, c.Width)
	if !ok {
		return Result{Samples: samples}, nil
	}

	bar := (int(c.Height) - modalHeight) / 2
	if float64(bar)*100/float64(c.Height) <= 1 {
		return Result{Samples: samples}, nil
	}

	return Result{
		Filter:   fmt.Sprintf("crop=%d:%d:0:%d", c.Width, modalHeight, bar),
		Required: true,
		Samples:  samples,
	}, nil
}

// calibrateHDRThreshold samples a few evenly spaced frames through
// blackdetect and scales the measured black level by 1.5, clamped to
// the usable luma range. HDR blacks sit well above SDR's 16.
func calibrateHDRThreshold(ctx context.Context, path string) int {
	argv := []string{
		"ffmpeg", "-hide_banner", "-i", path,
		"-vf", "select='eq(n,0)+eq(n,100)+eq(n,200)',blackdetect=d=0:pic_th=0.1",
		"-f", "null", "-",
	}
	res, err := runner.Run(ctx, argv)
	if err != nil {
		return hdrLumaThreshold
	}

	matches := blackLevelRegex.FindAllStringSubmatch(res.Stderr, -1)
	if len(matches) == 0 {
		return hdrLumaThreshold
	}
	var sum float64
	for _, m := range matches {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil {
			sum += v
		}
	}
	threshold := int(math.Round(sum / float64(len(matches)) * 1.5))
	if threshold < minLumaThreshold {
		return minLumaThreshold
	}
	if threshold > maxLumaThreshold {
		return maxLumaThreshold
	}
	return threshold
}

// creditsSkip trims a fixed amount off the tail of longer sources so
// credits don't skew the sample, never more than half the runtime.
func creditsSkip(duration float64) float64 {
	var skip float64
	switch {
	case duration > 3600:
		skip = 180
	case duration > 1200:
		skip = 60
	case duration > 300:
		skip = 30
	}
	if skip > duration/2 {
		skip = duration / 2
	}
	return skip
}

// sampleCount spaces samples five seconds apart, tightening the
// interval on short sources so at least minSamples are taken.
func sampleCount(effectiveDuration float64) int {
	n := int(effectiveDuration / 5)
	if n < minSamples {
		n = minSamples
	}
	return n
}

type cropBox struct {
	w, h, x, y int
}

// runCropdetect makes a single ffmpeg pass selecting every 30th frame,
// capped at twice the sample count, and parses every crop box the
// filter prints.
func runCropdetect(ctx context.Context, path string, threshold, samples int) ([]cropBox, error) {
	argv := []string{
		"ffmpeg", "-hide_banner", "-i", path,
		"-vf", fmt.Sprintf("select='not(mod(n,30))',cropdetect=limit=%d:round=2:reset=1", threshold),
		"-frames:v", strconv.Itoa(samples * 2),
		"-f", "null", "-",
	}
	res, err := runner.Run(ctx, argv)
	if err != nil {
		return nil, err
	}

	matches := cropRegex.FindAllStringSubmatch(res.Stderr, -1)
	boxes := make([]cropBox, 0, len(matches))
	for _, m := range matches {
		w, _ := strconv.Atoi(m[1])
		h, _ := strconv.Atoi(m[2])
		x, _ := strconv.Atoi(m[3])
		y, _ := strconv.Atoi(m[4])
		boxes = append(boxes, cropBox{w, h, x, y})
	}
	return boxes, nil
}

// modalCropHeight keeps boxes that preserve the source width, drops
// heights too small to be real picture, and returns the most common
// height (first encountered wins a tie).
func modalCropHeight(boxes []cropBox, origWidth uint32) (int, bool) {
	counts := make(map[int]int)
	var order []int
	for _, b := range boxes {
		if uint32(b.w) != origWidth || b.h < minCropHeight {
			continue
		}
		if counts[b.h] == 0 {
			order = append(order, b.h)
		}
		counts[b.h]++
	}
	if len(order) == 0 {
		return 0, false
	}

	best := order[0]
	for _, h := range order[1:] {
		if counts[h] > counts[best] {
			best = h
		}
	}
	return best, true
}
