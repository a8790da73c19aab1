// Package scd wraps the drapto-scd external scene-change detector
// binary: run it against a source file and return candidate scene-cut
// timestamps for the segment planner to filter.
package scd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	drerrors "github.com/five82/drapto/internal/errors"
	"github.com/five82/drapto/internal/runner"
)

const scdBinaryName = "drapto-scd"

// IsAvailable reports whether drapto-scd is reachable on $PATH.
func IsAvailable() bool {
	return runner.LookPath(scdBinaryName) == nil
}

// DetectScenes runs the external detector against videoPath and returns
// the candidate scene-cut timestamps (in seconds) it reports.
func DetectScenes(ctx context.Context, videoPath string, fpsNum, fpsDen int, totalFrames uint64) ([]float64, error) {
	if err := runner.LookPath(scdBinaryName); err != nil {
		return nil, err
	}

	outFile, err := os.CreateTemp("", "drapto-scenes-*.txt")
	if err != nil {
		return nil, drerrors.NewIOError("failed to create scene output file", err)
	}
	outPath := outFile.Name()
	outFile.Close()
	defer os.Remove(outPath)

	argv := []string{
		scdBinaryName,
		"--input", videoPath,
		"--output", outPath,
		"--fps-num", strconv.Itoa(fpsNum),
		"--fps-den", strconv.Itoa(fpsDen),
		"--total-frames", strconv.FormatUint(totalFrames, 10),
	}

	if _, err := runner.Run(ctx, argv); err != nil {
		return nil, drerrors.NewSegmentationError(fmt.Sprintf("scene detection failed: %v", err))
	}

	return readTimestamps(outPath)
}

func readTimestamps(path string) ([]float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, drerrors.NewSegmentationError(fmt.Sprintf("failed to read scene output: %v", err))
	}
	defer f.Close()

	var timestamps []float64
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		v, err := strconv.ParseFloat(line, 64)
		if err != nil {
			continue
		}
		timestamps = append(timestamps, v)
	}
	return timestamps, nil
}
