// Package concat stream-copies encoded segments back into a single
// video track via ffmpeg's concat demuxer, then verifies the result.
package concat

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	drerrors "github.com/five82/drapto/internal/errors"
	"github.com/five82/drapto/internal/probe"
	"github.com/five82/drapto/internal/runner"
)

// durationTolerance is the largest discrepancy allowed between the
// concatenated output's duration and the sum of its inputs.
const durationTolerance = 1.0 // seconds

// Concatenate joins segments (in order) into dst using a concat-list
// file written at listPath and stream copy, then confirms the output
// exists, is non-empty, carries an av1 video stream, and matches the
// expected total duration.
func Concatenate(ctx context.Context, segments []string, listPath, dst string) error {
	if len(segments) == 0 {
		return drerrors.NewConcatenationError("no segments to concatenate", nil)
	}

	totalDuration, err := writeConcatList(ctx, listPath, segments)
	if err != nil {
		return err
	}

	argv := []string{
		"ffmpeg", "-hide_banner", "-loglevel", "error",
		"-f", "concat", "-safe", "0",
		"-i", listPath,
		"-c", "copy", "-y", dst,
	}
	if _, err := runner.Run(ctx, argv); err != nil {
		return drerrors.NewConcatenationError("ffmpeg concat failed", err)
	}

	return verify(ctx, dst, totalDuration)
}

func writeConcatList(ctx context.Context, listPath string, segments []string) (float64, error) {
	f, err := os.Create(listPath)
	if err != nil {
		return 0, drerrors.NewConcatenationError("failed to create concat list", err)
	}
	defer f.Close()

	var total float64
	for _, seg := range segments {
		abs, err := filepath.Abs(seg)
		if err != nil {
			return 0, drerrors.NewConcatenationError(fmt.Sprintf("failed to resolve %s", seg), err)
		}
		if _, err := fmt.Fprintf(f, "file '%s'\n", abs); err != nil {
			return 0, drerrors.NewConcatenationError("failed to write concat list", err)
		}

		session := probe.Open(abs)
		d, err := session.GetDuration(ctx, "video", 0)
		session.Close()
		if err != nil {
			return 0, drerrors.NewConcatenationError(fmt.Sprintf("failed to probe duration of %s", abs), err)
		}
		total += d
	}

	return total, nil
}

func verify(ctx context.Context, dst string, expectedDuration float64) error {
	info, err := os.Stat(dst)
	if err != nil || info.Size() == 0 {
		return drerrors.NewConcatenationError("concatenated output is missing or empty", err)
	}

	session := probe.Open(dst)
	defer session.Close()

	actual, err := session.GetDuration(ctx, "video", 0)
	if err != nil {
		return drerrors.NewConcatenationError("failed to probe concatenated output duration", err)
	}
	if diff := actual - expectedDuration; diff > durationTolerance || diff < -durationTolerance {
		return drerrors.NewConcatenationError(
			fmt.Sprintf("concatenated duration %.3fs differs from expected %.3fs", actual, expectedDuration), nil)
	}

	codec, err := session.Get(ctx, "codec_name", "video", 0)
	if err != nil {
		return drerrors.NewConcatenationError("failed to probe concatenated output codec", err)
	}
	if codec != "av1" {
		return drerrors.NewConcatenationError(fmt.Sprintf("concatenated output has wrong codec %q", codec), nil)
	}

	return nil
}
