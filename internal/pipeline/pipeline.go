// Package pipeline drives one source file through the full encode
// pipeline: classify, crop-detect, plan segments, cut, encode segments
// in parallel, concatenate, encode audio, mux, and validate the result.
package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/five82/drapto/internal/audio"
	"github.com/five82/drapto/internal/classify"
	"github.com/five82/drapto/internal/concat"
	"github.com/five82/drapto/internal/config"
	"github.com/five82/drapto/internal/crop"
	"github.com/five82/drapto/internal/dolbyvision"
	"github.com/five82/drapto/internal/encode"
	drerrors "github.com/five82/drapto/internal/errors"
	"github.com/five82/drapto/internal/logging"
	"github.com/five82/drapto/internal/mux"
	"github.com/five82/drapto/internal/probe"
	"github.com/five82/drapto/internal/reporter"
	"github.com/five82/drapto/internal/runner"
	"github.com/five82/drapto/internal/scheduler"
	"github.com/five82/drapto/internal/segment"
	"github.com/five82/drapto/internal/segmenter"
	"github.com/five82/drapto/internal/util"
	"github.com/five82/drapto/internal/validation"
)

// Result is the outcome of running one input file through the pipeline.
type Result struct {
	Filename         string
	InputFile        string
	OutputFile       string
	InputSize        uint64
	OutputSize       uint64
	ValidationPassed bool
	EncodingSpeed    float32
}

// ProcessVideos runs each input through the pipeline in turn, reporting
// batch-level progress alongside each file's own stage events. A single
// file's failure is reported as an error event and skipped rather than
// aborting the whole batch.
func ProcessVideos(ctx context.Context, cfg *config.Config, inputs []string, outputNameOverride string, rep reporter.Reporter) ([]Result, error) {
	if rep == nil {
		rep = reporter.NullReporter{}
	}

	rep.BatchStarted(reporter.BatchStartInfo{TotalFiles: len(inputs), FileList: inputs, OutputDir: cfg.OutputDir})

	var results []Result
	var totalIn, totalOut uint64
	var totalDuration time.Duration
	var speedSum float32
	validationPassed, validationFailed := 0, 0

	for i, input := range inputs {
		rep.FileProgress(reporter.FileProgressContext{CurrentFile: i + 1, TotalFiles: len(inputs)})

		start := time.Now()
		r, err := processOne(ctx, cfg, input, outputNameOverride, rep)
		if err != nil {
			rep.Error(reporter.ReporterError{
				Title:   "encoding failed",
				Message: err.Error(),
				Context: input,
			})
			continue
		}
		totalDuration += time.Since(start)

		results = append(results, r)
		totalIn += r.InputSize
		totalOut += r.OutputSize
		speedSum += r.EncodingSpeed
		if r.ValidationPassed {
			validationPassed++
		} else {
			validationFailed++
		}
	}

	avgSpeed := float32(0)
	if len(results) > 0 {
		avgSpeed = speedSum / float32(len(results))
	}

	rep.BatchComplete(reporter.BatchSummary{
		SuccessfulCount:       len(results),
		TotalFiles:            len(inputs),
		TotalOriginalSize:     totalIn,
		TotalEncodedSize:      totalOut,
		TotalDuration:         totalDuration,
		AverageSpeed:          avgSpeed,
		ValidationPassedCount: validationPassed,
		ValidationFailedCount: validationFailed,
	})

	if len(results) == 0 && len(inputs) > 0 {
		return nil, drerrors.NewOperationFailedError("all files failed to encode", nil)
	}

	return results, nil
}

func processOne(ctx context.Context, cfg *config.Config, input, outputNameOverride string, rep reporter.Reporter) (Result, error) {
	fileStart := time.Now()
	stem := util.GetFileStem(input)
	outputPath := util.ResolveOutputPath(input, cfg.OutputDir, outputNameOverride)

	inputSize, err := util.GetFileSize(input)
	if err != nil {
		return Result{}, drerrors.NewIOError("failed to stat input file", err)
	}

	workTemp, err := util.CreateTempDir(cfg.GetTempDir(), stem)
	if err != nil {
		return Result{}, drerrors.NewIOError("failed to create working directory", err)
	}
	// Scratch directories are removed only after a successful run;
	// on failure they stay behind for diagnosis.
	succeeded := false
	defer func() {
		if succeeded {
			_ = workTemp.Cleanup()
		}
	}()
	workDir := workTemp.Path()
	workingDir := filepath.Join(workDir, "working")
	if err := util.EnsureDirectory(workingDir); err != nil {
		return Result{}, drerrors.NewIOError("failed to create working directory", err)
	}

	class, err := classify.Classify(ctx, cfg, input)
	if err != nil {
		return Result{}, err
	}

	rep.Initialization(reporter.InitializationSummary{
		InputFile:        input,
		OutputFile:       outputPath,
		Duration:         util.FormatDuration(class.DurationSecs),
		Resolution:       fmt.Sprintf("%dx%d", class.Width, class.Height),
		DynamicRange:     dynamicRangeLabel(class),
		AudioDescription: "",
	})

	cropResult, err := crop.Detect(ctx, input, class, cfg.CropMode == "none")
	if err != nil {
		return Result{}, err
	}
	rep.CropResult(reporter.CropSummary{
		Message:  cropMessage(cropResult),
		Crop:     cropResult.Filter,
		Required: cropResult.Required,
		Disabled: cfg.CropMode == "none",
	})

	rep.EncodingConfig(reporter.EncodingConfigSummary{
		Encoder:      "libsvtav1",
		Preset:       strconv.Itoa(int(cfg.SVTAV1Preset)),
		Tune:         strconv.Itoa(int(cfg.SVTAV1Tune)),
		Quality:      strconv.Itoa(int(cfg.CRFForWidth(class.Width))),
		PixelFormat:  "yuv420p10le",
		AudioCodec:   "libopus",
		SVTAV1Params: fmt.Sprintf("tune=%d:ac-bias=%g", cfg.SVTAV1Tune, cfg.SVTAV1ACBias),
	})

	videoTrack := filepath.Join(workingDir, "video.mkv")
	var speeds []float32

	if class.IsDolbyVision {
		// Dolby Vision RPU metadata does not survive a segment/concat
		// round-trip reliably, so it gets one whole-file encode pass
		// instead of the scene-segmented pipeline below.
		_, _, totalFrames, err := probeFrameInfo(ctx, input)
		if err != nil {
			return Result{}, err
		}
		rep.EncodingStarted(totalFrames)

		err = dolbyvision.Encode(ctx, cfg, class, cropResult.Filter, input, videoTrack, func(p runner.Progress) {
			var percent float32
			if class.DurationSecs > 0 {
				percent = float32(p.OutTimeSecs/class.DurationSecs) * 100
			}
			speeds = append(speeds, p.Speed)
			rep.EncodingProgress(reporter.ProgressSnapshot{
				CurrentFrame: p.Frame,
				TotalFrames:  totalFrames,
				Percent:      percent,
				Speed:        p.Speed,
				FPS:          p.FPS,
				ETA:          p.ETA,
				Bitrate:      p.Bitrate,
			})
		})
		if err != nil {
			return Result{}, err
		}
	} else {
		fpsNum, fpsDen, totalFrames, err := probeFrameInfo(ctx, input)
		if err != nil {
			return Result{}, err
		}

		plan, err := segment.Build(ctx, input, fpsNum, fpsDen, totalFrames, class.DurationSecs, cfg.MinSceneGap, cfg.MaxSegmentLen)
		if err != nil {
			return Result{}, err
		}

		segmentsDir := filepath.Join(workDir, "segments")
		if err := util.EnsureDirectory(segmentsDir); err != nil {
			return Result{}, drerrors.NewIOError("failed to create segment directory", err)
		}
		rawSegments, err := segmenter.Cut(ctx, input, segmentsDir, plan.Boundaries)
		if err != nil {
			return Result{}, err
		}
		if err := segmenter.ValidateSet(ctx, rawSegments, plan.Boundaries, class.DurationSecs); err != nil {
			return Result{}, err
		}

		rep.EncodingStarted(totalFrames)

		encodedDir := filepath.Join(workDir, "encoded_segments")
		if err := util.EnsureDirectory(encodedDir); err != nil {
			return Result{}, drerrors.NewIOError("failed to create encoded-segment directory", err)
		}

		category := scheduler.CategoryForWidth(class.Width)
		encodedPaths := make([]string, len(rawSegments))
		segSpeeds := make([]float32, len(rawSegments))
		segStats := make([]encode.Stats, len(rawSegments))
		tasks := make([]scheduler.Task, len(rawSegments))
		for i, seg := range rawSegments {
			tasks[i] = scheduler.Task{Index: seg.Index, Category: category}
		}

		// Worker goroutines complete concurrently; progress bookkeeping
		// and the reporter are serialized behind one mutex.
		var progressMu sync.Mutex
		completed := 0

		runTask := func(ctx context.Context, task scheduler.Task) (scheduler.Measurement, error) {
			seg := rawSegments[task.Index]
			dst := filepath.Join(encodedDir, filepath.Base(seg.Path))
			stats, logLines, err := encode.EncodeSegment(ctx, seg.Path, dst, encode.Params{
				Config:     cfg,
				Class:      class,
				CropFilter: cropResult.Filter,
				Threads:    cfg.ThreadsPerWorker,
			})
			if err != nil {
				return scheduler.Measurement{}, err
			}
			encodedPaths[task.Index] = stats.OutputPath
			segStats[task.Index] = stats
			segSpeeds[task.Index] = float32(stats.RealtimeFactor)

			// Each segment's buffered narrative is emitted as one block
			// here, so completions never interleave their lines.
			progressMu.Lock()
			for _, line := range logLines {
				logging.Info(line)
			}
			completed++
			rep.EncodingProgress(reporter.ProgressSnapshot{
				ChunksComplete: completed,
				ChunksTotal:    len(rawSegments),
				Percent:        float32(completed) / float32(len(rawSegments)) * 100,
				Speed:          float32(stats.RealtimeFactor),
			})
			progressMu.Unlock()

			return scheduler.Measurement{Category: stats.Category, PeakRSSBytes: stats.PeakRSSBytes}, nil
		}

		if err := scheduler.Run(ctx, cfg, tasks, runTask); err != nil {
			return Result{}, err
		}
		logSegmentSummary(segStats)

		if err := concat.Concatenate(ctx, encodedPaths, filepath.Join(workingDir, "concat.txt"), videoTrack); err != nil {
			return Result{}, err
		}
		speeds = segSpeeds
	}

	audioTracks, err := audio.EncodeAll(ctx, input, workingDir, nil)
	if err != nil {
		return Result{}, err
	}
	audioPaths := make([]string, len(audioTracks))
	for i, t := range audioTracks {
		audioPaths[i] = t.Path
	}

	if err := util.EnsureDirectory(cfg.OutputDir); err != nil {
		return Result{}, drerrors.NewIOError("failed to create output directory", err)
	}
	if err := mux.Mux(ctx, videoTrack, audioPaths, outputPath); err != nil {
		return Result{}, err
	}

	expectedDuration := class.DurationSecs
	expectedHDR := class.IsHDR
	expectedTracks := len(audioTracks)
	vResult, err := validation.ValidateOutputVideo(input, outputPath, validation.Options{
		ExpectedDuration:    &expectedDuration,
		ExpectedHDR:         &expectedHDR,
		ExpectedAudioTracks: &expectedTracks,
	})
	passed := err == nil && vResult.IsValid()
	if vResult != nil {
		steps := make([]reporter.ValidationStep, 0, len(vResult.GetValidationSteps()))
		for _, s := range vResult.GetValidationSteps() {
			steps = append(steps, reporter.ValidationStep{Name: s.Name, Passed: s.Passed, Details: s.Details})
		}
		rep.ValidationComplete(reporter.ValidationSummary{Passed: passed, Steps: steps})
	}

	outputSize, err := util.GetFileSize(outputPath)
	if err != nil {
		return Result{}, drerrors.NewIOError("failed to stat output file", err)
	}

	avgSpeed := averageSpeed(speeds)
	rep.EncodingComplete(reporter.EncodingOutcome{
		InputFile:    input,
		OutputFile:   outputPath,
		OriginalSize: inputSize,
		EncodedSize:  outputSize,
		TotalTime:    time.Since(fileStart),
		AverageSpeed: avgSpeed,
		OutputPath:   outputPath,
	})

	succeeded = true
	return Result{
		Filename:         util.GetFilename(input),
		InputFile:        input,
		OutputFile:       outputPath,
		InputSize:        inputSize,
		OutputSize:       outputSize,
		ValidationPassed: passed,
		EncodingSpeed:    avgSpeed,
	}, nil
}

// logSegmentSummary aggregates per-segment encode stats after the
// parallel phase: totals for duration and size, mean bitrate and
// realtime factor, and VMAF spread over the segments that reported one.
func logSegmentSummary(stats []encode.Stats) {
	var totalDuration, bitrateSum, speedSum float64
	var totalSize uint64
	var vmafMin, vmafMax, vmafSum float64
	encoded, scored := 0, 0

	for _, s := range stats {
		if s.OutputPath == "" {
			continue
		}
		encoded++
		totalDuration += s.DurationSecs
		totalSize += s.SizeBytes
		bitrateSum += s.BitrateKbps
		speedSum += s.RealtimeFactor
		if s.VMAFScore == nil {
			continue
		}
		v := *s.VMAFScore
		if scored == 0 || v < vmafMin {
			vmafMin = v
		}
		if scored == 0 || v > vmafMax {
			vmafMax = v
		}
		vmafSum += v
		scored++
	}
	if encoded == 0 {
		return
	}

	args := []any{
		"segments", encoded,
		"total_duration_secs", totalDuration,
		"total_size_bytes", totalSize,
		"mean_bitrate_kbps", bitrateSum / float64(encoded),
		"mean_realtime_factor", speedSum / float64(encoded),
	}
	if scored > 0 {
		args = append(args,
			"vmaf_avg", vmafSum/float64(scored),
			"vmaf_min", vmafMin,
			"vmaf_max", vmafMax,
		)
	}
	logging.Info("segment encoding complete", args...)
}

func averageSpeed(speeds []float32) float32 {
	var sum float32
	n := 0
	for _, s := range speeds {
		if s > 0 {
			sum += s
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float32(n)
}

func dynamicRangeLabel(c *classify.Classification) string {
	if c.IsDolbyVision {
		return "Dolby Vision"
	}
	if c.IsHDR {
		return "HDR"
	}
	return "SDR"
}

func cropMessage(r crop.Result) string {
	if !r.Required {
		return "No cropping required"
	}
	return fmt.Sprintf("Detected crop %s from %d samples", r.Filter, r.Samples)
}

func probeFrameInfo(ctx context.Context, path string) (fpsNum, fpsDen int, totalFrames uint64, err error) {
	session := probe.Open(path)
	defer session.Close()

	rate, err := session.Get(ctx, "r_frame_rate", "video", 0)
	if err != nil {
		return 0, 0, 0, err
	}
	num, den, ok := splitRational(rate)
	if !ok {
		return 0, 0, 0, drerrors.NewMetadataError(fmt.Sprintf("unparseable frame rate %q", rate))
	}

	frames, err := session.GetInt(ctx, "nb_frames", "video", 0)
	if err != nil || frames <= 0 {
		duration, derr := session.GetDuration(ctx, "video", 0)
		if derr != nil {
			return 0, 0, 0, derr
		}
		frames = int64(duration * float64(num) / float64(den))
	}

	return num, den, uint64(frames), nil
}

func splitRational(s string) (int, int, bool) {
	parts := strings.SplitN(s, "/", 2)
	if len(parts) != 2 {
		return 0, 0, false
	}
	num, err1 := strconv.Atoi(parts[0])
	den, err2 := strconv.Atoi(parts[1])
	if err1 != nil || err2 != nil || den == 0 {
		return 0, 0, false
	}
	return num, den, true
}
