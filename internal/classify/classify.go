// Package classify determines a source's resolution bucket, HDR status,
// and Dolby Vision presence, driving the CRF and filter choices made
// downstream by the crop detector and segment encoder.
package classify

import (
	"context"
	"os/exec"
	"strings"

	"github.com/five82/drapto/internal/config"
	"github.com/five82/drapto/internal/probe"
)

// ResolutionBucket is the CRF/chunk-duration bucket a source falls into.
type ResolutionBucket int

const (
	BucketSD ResolutionBucket = iota
	BucketHD
	BucketUHD
)

func (b ResolutionBucket) String() string {
	switch b {
	case BucketHD:
		return "HD"
	case BucketUHD:
		return "UHD"
	default:
		return "SD"
	}
}

// Classification is the resolved media facts about a source file.
type Classification struct {
	Width, Height           uint32
	DurationSecs            float64
	Bucket                  ResolutionBucket
	IsHDR                   bool
	IsDolbyVision           bool
	ColorPrimaries          string
	TransferCharacteristics string
	MatrixCoefficients      string
}

var hdrTransfers = []string{"smpte2084", "arib-std-b67", "smpte428", "bt2020-10", "bt2020-12"}
var hdrMatrices = []string{"bt2020nc", "bt2020c"}

// Classify probes path and derives its resolution bucket and HDR/DV
// status. The SD/HD/UHD width thresholds are config.HDWidthThreshold
// and config.UHDWidthThreshold.
func Classify(ctx context.Context, cfg *config.Config, path string) (*Classification, error) {
	session := probe.Open(path)
	defer session.Close()

	width, err := session.GetInt(ctx, "width", "video", 0)
	if err != nil {
		return nil, err
	}
	height, err := session.GetInt(ctx, "height", "video", 0)
	if err != nil {
		return nil, err
	}
	duration, err := session.GetDuration(ctx, "video", 0)
	if err != nil {
		return nil, err
	}

	primaries, _ := session.Get(ctx, "color_primaries", "video", 0)
	transfer, _ := session.Get(ctx, "color_transfer", "video", 0)
	matrix, _ := session.Get(ctx, "color_space", "video", 0)

	c := &Classification{
		Width:                   uint32(width),
		Height:                  uint32(height),
		DurationSecs:            duration,
		Bucket:                  bucketForWidth(cfg, uint32(width)),
		IsHDR:                   isHDR(primaries, transfer, matrix),
		ColorPrimaries:          primaries,
		TransferCharacteristics: transfer,
		MatrixCoefficients:      matrix,
	}

	c.IsDolbyVision = detectDolbyVision(ctx, path)
	return c, nil
}

func bucketForWidth(cfg *config.Config, width uint32) ResolutionBucket {
	if width >= config.UHDWidthThreshold {
		return BucketUHD
	}
	if width >= config.HDWidthThreshold {
		return BucketHD
	}
	return BucketSD
}

func isHDR(primaries, transfer, matrix string) bool {
	return equalsAnyFold(transfer, hdrTransfers) ||
		strings.EqualFold(primaries, "bt2020") ||
		equalsAnyFold(matrix, hdrMatrices)
}

func equalsAnyFold(s string, values []string) bool {
	for _, v := range values {
		if strings.EqualFold(s, v) {
			return true
		}
	}
	return false
}

// detectDolbyVision shells out to mediainfo and looks for the literal
// substring "Dolby Vision" in its text summary. Any failure to run
// mediainfo (not installed, unreadable file) is treated as "not DV"
// rather than a hard error, since DV detection is advisory.
func detectDolbyVision(ctx context.Context, path string) bool {
	cmd := exec.CommandContext(ctx, "mediainfo", path)
	out, err := cmd.Output()
	if err != nil {
		return false
	}
	return strings.Contains(string(out), "Dolby Vision")
}
