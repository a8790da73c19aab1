// Package mux combines one encoded video track and zero or more
// encoded audio tracks into the final container via stream copy, and
// checks the result for audio/video sync drift.
package mux

import (
	"context"
	"fmt"
	"math"

	drerrors "github.com/five82/drapto/internal/errors"
	"github.com/five82/drapto/internal/probe"
	"github.com/five82/drapto/internal/runner"
)

// Sync drift tolerances, in seconds. The wider one applies when either
// side's duration had to come from a container-level fallback rather
// than the stream itself.
const (
	syncTolerance         = 0.2
	syncToleranceFallback = 0.5
)

// Mux stream-copies videoTrack and audioTracks (in order) into dst.
func Mux(ctx context.Context, videoTrack string, audioTracks []string, dst string) error {
	argv := []string{"ffmpeg", "-hide_banner", "-loglevel", "warning", "-y", "-i", videoTrack}
	for _, a := range audioTracks {
		argv = append(argv, "-i", a)
	}

	argv = append(argv, "-map", "0:v:0")
	for i := range audioTracks {
		argv = append(argv, "-map", fmt.Sprintf("%d:a:0", i+1))
	}
	argv = append(argv, "-c", "copy", dst)

	if _, err := runner.Run(ctx, argv); err != nil {
		return drerrors.NewMuxingError("ffmpeg mux failed", err)
	}

	if len(audioTracks) == 0 {
		return nil
	}
	return validateSync(ctx, dst)
}

// validateSync compares the muxed output's video stream against its
// first audio stream: both the start offsets and the durations must
// agree within tolerance.
func validateSync(ctx context.Context, dst string) error {
	session := probe.Open(dst)
	defer session.Close()

	videoDuration, videoFellBack, err := session.GetDurationWithFallback(ctx, "video", 0)
	if err != nil {
		return drerrors.NewMuxingError("failed to probe muxed video duration", err)
	}
	audioDuration, audioFellBack, err := session.GetDurationWithFallback(ctx, "audio", 0)
	if err != nil {
		return drerrors.NewMuxingError("failed to probe muxed audio duration", err)
	}

	tolerance := syncTolerance
	if videoFellBack || audioFellBack {
		tolerance = syncToleranceFallback
	}

	videoStart := startTime(ctx, session, "video")
	audioStart := startTime(ctx, session, "audio")
	if drift := math.Abs(videoStart - audioStart); drift > tolerance {
		return drerrors.NewMuxingError(
			fmt.Sprintf("audio/video start offsets differ by %.3fs (video=%.3fs, audio=%.3fs)",
				drift, videoStart, audioStart), nil)
	}

	if drift := math.Abs(videoDuration - audioDuration); drift > tolerance {
		return drerrors.NewMuxingError(
			fmt.Sprintf("audio/video durations differ by %.3fs (video=%.3fs, audio=%.3fs)",
				drift, videoDuration, audioDuration), nil)
	}

	return nil
}

// startTime reads a stream's start_time, treating a missing or
// unparseable value as zero rather than failing the mux.
func startTime(ctx context.Context, session *probe.Session, streamType string) float64 {
	v, err := session.GetFloat(ctx, "start_time", streamType, 0)
	if err != nil {
		return 0
	}
	return v
}
