// Package audio encodes each audio track of a source file to Opus,
// sized by channel layout, independent of the video encode.
package audio

import (
	"context"
	"fmt"
	"path/filepath"

	drerrors "github.com/five82/drapto/internal/errors"
	"github.com/five82/drapto/internal/ffmpeg"
	"github.com/five82/drapto/internal/probe"
	"github.com/five82/drapto/internal/runner"
)

// Track describes one encoded audio track.
type Track struct {
	Index        int
	Path         string
	Channels     uint32
	BitrateKbps  uint32
	DurationSecs float64
}

// EncodeAll encodes every audio stream in src to Opus under workDir,
// returning one Track per input stream in stream order. A source with
// no audio streams returns an empty, non-error result.
func EncodeAll(ctx context.Context, src, workDir string, progress runner.ProgressCallback) ([]Track, error) {
	if err := runner.LookPath("ffmpeg"); err != nil {
		return nil, err
	}

	session := probe.Open(src)
	defer session.Close()

	var tracks []Track
	for idx := 0; ; idx++ {
		channels, err := session.GetInt(ctx, "channels", "audio", idx)
		if err != nil {
			break // no more audio streams
		}

		track, err := encodeTrack(ctx, session, src, workDir, idx, uint32(channels), progress)
		if err != nil {
			return nil, drerrors.NewAudioEncodingError(idx, err)
		}
		tracks = append(tracks, track)
	}

	return tracks, nil
}

func encodeTrack(ctx context.Context, session *probe.Session, src, workDir string, idx int, channels uint32, progress runner.ProgressCallback) (Track, error) {
	bitrate := ffmpeg.CalculateAudioBitrate(channels)
	dst := filepath.Join(workDir, fmt.Sprintf("audio-%d.mkv", idx))

	argv := []string{
		"ffmpeg", "-hide_banner", "-loglevel", "warning", "-y",
		"-i", src,
		"-map", fmt.Sprintf("0:a:%d", idx),
		"-c:a", "libopus",
		"-af", "aformat=channel_layouts=7.1|5.1|stereo|mono",
		"-b:a", fmt.Sprintf("%dk", bitrate),
		"-vbr", "on",
		"-compression_level", "10",
		"-frame_duration", "20",
		"-avoid_negative_ts", "make_zero",
		"-vn", "-sn",
		dst,
	}

	duration, err := session.GetDuration(ctx, "audio", idx)
	if err != nil {
		duration = 0
	}

	if _, err := runner.RunWithProgress(ctx, argv, duration, 5, progress); err != nil {
		return Track{}, err
	}

	return Track{
		Index:        idx,
		Path:         dst,
		Channels:     channels,
		BitrateKbps:  bitrate,
		DurationSecs: duration,
	}, nil
}
