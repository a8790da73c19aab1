// Package encode drives ab-av1 over a single raw segment, parsing its
// reported VMAF score and escalating through a bounded retry ladder
// when the segment cannot be encoded at the requested quality target.
package encode

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"time"

	"github.com/five82/drapto/internal/classify"
	"github.com/five82/drapto/internal/config"
	drerrors "github.com/five82/drapto/internal/errors"
	"github.com/five82/drapto/internal/ffmpeg"
	"github.com/five82/drapto/internal/probe"
	"github.com/five82/drapto/internal/runner"
	"github.com/five82/drapto/internal/scheduler"
)

// keyintSeconds is the fixed GOP length ab-av1 is asked to target.
const keyintSeconds = "10s"

// retryStep is one rung of the segment-encode retry ladder.
type retryStep struct {
	samples        int
	sampleDuration string
	targetVMAF     float64
}

func ladder(cfg *config.Config, isHDR bool) []retryStep {
	target := cfg.MinVMAF
	if isHDR {
		target = cfg.MinVMAFHDR
	}
	return []retryStep{
		{samples: 3, sampleDuration: "1s", targetVMAF: target},
		{samples: 4, sampleDuration: "2s", targetVMAF: target},
		{samples: 4, sampleDuration: "2s", targetVMAF: config.FinalRetryVMAFFloor},
	}
}

// Stats summarizes one completed segment encode.
type Stats struct {
	SegmentName       string
	OutputPath        string
	InputDurationSecs float64
	DurationSecs      float64
	SizeBytes         uint64
	BitrateKbps       float64
	RealtimeFactor    float64
	EncodingTimeSecs  float64
	PeakRSSBytes      uint64
	Category          scheduler.Category
	VMAFScore         *float64 // nil when the encoder reported no score
	CropFilter        string
	Retries           int
}

// Params is the per-segment context the encoder needs: classification
// facts, the crop filter (if any), and scheduler-facing thread hints.
type Params struct {
	Config     *config.Config
	Class      *classify.Classification
	CropFilter string
	Threads    int
}

var vmafLineRegex = regexp.MustCompile(`(?i)VMAF[^0-9]*([0-9]+\.?[0-9]*)`)

// EncodeSegment runs the retry ladder against one raw segment, returning
// encoding stats plus the segment's buffered narrative log lines on
// success, or a SegmentEncodingError after the ladder is exhausted. A
// failed probe or encode attempt consumes one rung and the next rung
// re-enters with its own sample count, sample window and VMAF target
// (see ladder). The log lines
// are buffered rather than emitted here so the scheduler can print each
// segment's block contiguously regardless of completion interleaving.
func EncodeSegment(ctx context.Context, src, dst string, p Params) (Stats, []string, error) {
	if err := runner.LookPath("ab-av1"); err != nil {
		return Stats{}, nil, err
	}

	session := probe.Open(src)
	defer session.Close()
	duration, err := session.GetDuration(ctx, "video", 0)
	if err != nil {
		return Stats{}, nil, err
	}

	isHDR := p.Class != nil && p.Class.IsHDR
	steps := ladder(p.Config, isHDR)

	var lastErr error
	for attempt, step := range steps {
		stats, err := attemptEncode(ctx, src, dst, p, step, duration)
		if err == nil {
			stats.Retries = attempt
			return stats, segmentLogLines(stats), nil
		}
		if ctx.Err() != nil {
			return Stats{}, nil, err
		}
		lastErr = err
	}

	return Stats{}, nil, drerrors.NewSegmentEncodingError(src, len(steps), lastErr)
}

// segmentLogLines renders one segment's completion narrative. The lines
// travel with the stats and are printed as one block on completion.
func segmentLogLines(stats Stats) []string {
	lines := make([]string, 0, 6)
	if stats.VMAFScore != nil {
		lines = append(lines, fmt.Sprintf("Segment analysis complete: %s - VMAF %.2f", stats.SegmentName, *stats.VMAFScore))
	} else {
		lines = append(lines, fmt.Sprintf("Segment analysis complete: %s - no VMAF scores parsed", stats.SegmentName))
	}
	lines = append(lines,
		fmt.Sprintf("Segment encoding complete: %s", stats.SegmentName),
		fmt.Sprintf("  Duration: %.2fs", stats.DurationSecs),
		fmt.Sprintf("  Size: %.2f MB", float64(stats.SizeBytes)/(1024*1024)),
		fmt.Sprintf("  Bitrate: %.2f kbps", stats.BitrateKbps),
		fmt.Sprintf("  Encoding time: %.2fs (%.2fx realtime)", stats.EncodingTimeSecs, stats.RealtimeFactor),
	)
	return lines
}

func attemptEncode(ctx context.Context, src, dst string, p Params, step retryStep, duration float64) (Stats, error) {
	argv := buildArgv(src, dst, p, step)

	start := time.Now()
	res, err := runner.Run(ctx, argv)
	if err != nil {
		return Stats{}, err
	}
	elapsed := time.Since(start).Seconds()

	info, err := os.Stat(dst)
	if err != nil {
		return Stats{}, drerrors.NewSegmentEncodingError(src, 1, err)
	}

	outSession := probe.Open(dst)
	defer outSession.Close()
	outDuration, err := outSession.GetDuration(ctx, "video", 0)
	if err != nil {
		return Stats{}, err
	}
	if drift := math.Abs(outDuration - duration); drift > math.Max(0.2, 0.05*duration) {
		return Stats{}, drerrors.NewValidationError(
			"encoded segment drifted " + strconv.FormatFloat(drift, 'f', 3, 64) + "s from its source duration")
	}

	stats := Stats{
		SegmentName:       filepath.Base(src),
		OutputPath:        dst,
		InputDurationSecs: duration,
		DurationSecs:      outDuration,
		SizeBytes:         uint64(info.Size()),
		EncodingTimeSecs:  elapsed,
		PeakRSSBytes:      res.PeakRSSBytes,
		CropFilter:        p.CropFilter,
	}
	if p.Class != nil {
		stats.Category = scheduler.CategoryForWidth(p.Class.Width)
	}
	if outDuration > 0 {
		stats.BitrateKbps = float64(info.Size()) * 8 / outDuration / 1000
	}
	if elapsed > 0 {
		stats.RealtimeFactor = outDuration / elapsed
	}
	if vmaf, ok := parseVMAF(res.Stderr + res.Stdout); ok {
		stats.VMAFScore = &vmaf
	}
	return stats, nil
}

func buildArgv(src, dst string, p Params, step retryStep) []string {
	svt := ffmpeg.NewSvtAv1ParamsBuilder().
		WithTune(p.Config.SVTAV1Tune).
		WithACBias(p.Config.SVTAV1ACBias)
	if p.Config.SVTAV1EnableVarianceBoost {
		svt = svt.WithEnableVarianceBoost(true).
			WithVarianceBoostStrength(p.Config.SVTAV1VarianceBoostStrength).
			WithVarianceOctile(p.Config.SVTAV1VarianceOctile)
	}

	argv := []string{
		"ab-av1", "auto-encode",
		"-i", src,
		"-o", dst,
		"--encoder", "libsvtav1",
		"--min-vmaf", strconv.FormatFloat(step.targetVMAF, 'f', 2, 64),
		"--samples", strconv.Itoa(step.samples),
		"--sample-duration", step.sampleDuration,
		"--preset", strconv.Itoa(int(p.Config.SVTAV1Preset)),
		"--svt", svt.Build(),
		"--keyint", keyintSeconds,
		"--vmaf", "n_subsample=8:pool=perc5_min",
		"--pix-format", "yuv420p10le",
	}

	filters := ffmpeg.NewVideoFilterChain().AddCrop(p.CropFilter)
	if !filters.IsEmpty() {
		argv = append(argv, "--vfilter", filters.Build())
	}
	if p.Threads > 0 {
		argv = append(argv, "--threads", strconv.Itoa(p.Threads))
	}

	return argv
}

func parseVMAF(output string) (float64, bool) {
	matches := vmafLineRegex.FindAllStringSubmatch(output, -1)
	if len(matches) == 0 {
		return 0, false
	}
	last := matches[len(matches)-1]
	v, err := strconv.ParseFloat(last[1], 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
