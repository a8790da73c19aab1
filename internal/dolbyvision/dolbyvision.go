// Package dolbyvision encodes Dolby Vision sources as a single
// whole-file ffmpeg pass instead of the scene-segmented pipeline, since
// splitting and reassembling RPU metadata across segment boundaries is
// not reliable. It reuses the classifier, crop detector, muxer, and
// validator the segmented path also uses.
package dolbyvision

import (
	"context"
	"fmt"

	"github.com/five82/drapto/internal/classify"
	"github.com/five82/drapto/internal/config"
	drerrors "github.com/five82/drapto/internal/errors"
	"github.com/five82/drapto/internal/ffmpeg"
	"github.com/five82/drapto/internal/runner"
)

// Encode runs a single ffmpeg pass over src, preserving Dolby Vision
// RPU metadata via "-dolbyvision true", and writes the resulting
// AV1 10-bit video track to dst. cropFilter may be empty.
func Encode(ctx context.Context, cfg *config.Config, class *classify.Classification, cropFilter, src, dst string, progress runner.ProgressCallback) error {
	if err := runner.LookPath("ffmpeg"); err != nil {
		return err
	}

	crf := cfg.CRFForWidth(class.Width)
	svtParams := ffmpeg.NewSvtAv1ParamsBuilder().
		WithTune(cfg.SVTAV1Tune).
		WithACBias(cfg.SVTAV1ACBias)
	if cfg.SVTAV1EnableVarianceBoost {
		svtParams = svtParams.
			WithEnableVarianceBoost(true).
			WithVarianceBoostStrength(cfg.SVTAV1VarianceBoostStrength).
			WithVarianceOctile(cfg.SVTAV1VarianceOctile)
	}

	argv := []string{
		"ffmpeg", "-hide_banner", "-loglevel", "warning",
		"-hwaccel", "none",
		"-i", src,
	}
	if cropFilter != "" {
		argv = append(argv, "-vf", cropFilter)
	}
	argv = append(argv,
		"-map", "0:v:0",
		"-c:v", "libsvtav1",
		"-preset", fmt.Sprintf("%d", cfg.SVTAV1Preset),
		"-crf", fmt.Sprintf("%d", crf),
		"-svtav1-params", svtParams.Build(),
		"-pix_fmt", "yuv420p10le",
		"-dolbyvision", "true",
		"-y", dst,
	)

	if _, err := runner.RunWithProgress(ctx, argv, class.DurationSecs, 5, progress); err != nil {
		return drerrors.NewDolbyVisionEncodingError("ffmpeg dolby vision encode failed", err)
	}

	return nil
}
