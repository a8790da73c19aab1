// Package probe provides a file-scoped ffprobe session: one JSON probe
// per file, typed cached property access, and a duration fallback ladder
// for streams whose container omits a reliable duration field.
package probe

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"

	drerrors "github.com/five82/drapto/internal/errors"
	"github.com/five82/drapto/internal/runner"
)

// cacheKey mirrors the Python session's (property, stream_type,
// stream_index) cache key; "format" queries always use index 0.
type cacheKey struct {
	property    string
	streamType  string
	streamIndex int
}

// Session is a file-scoped, cached ffprobe query surface. Create with
// Open, release with Close (idempotent; safe to defer).
type Session struct {
	path string

	mu    sync.Mutex
	cache map[cacheKey]string

	doc     *probeDoc
	docErr  error
	docOnce sync.Once
}

type probeDoc struct {
	Format  map[string]any   `json:"format"`
	Streams []map[string]any `json:"streams"`
}

// Open creates a new probe Session for path. The underlying ffprobe call
// is deferred until the first Get.
func Open(path string) *Session {
	return &Session{path: path, cache: make(map[cacheKey]string)}
}

// Close releases the session's cache. Safe to call multiple times.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache = nil
	s.doc = nil
}

func (s *Session) load(ctx context.Context) (*probeDoc, error) {
	s.docOnce.Do(func() {
		argv := []string{
			"ffprobe", "-v", "quiet", "-print_format", "json",
			"-show_format", "-show_streams", s.path,
		}
		res, err := runner.Run(ctx, argv)
		if err != nil {
			s.docErr = drerrors.NewMetadataError(fmt.Sprintf("ffprobe failed for %s: %v", s.path, err))
			return
		}
		var doc probeDoc
		if err := json.Unmarshal([]byte(res.Stdout), &doc); err != nil {
			s.docErr = drerrors.NewJSONParseError("failed to parse ffprobe output", err)
			return
		}
		s.doc = &doc
	})
	return s.doc, s.docErr
}

// Get returns the raw string value of property for the given stream type
// ("video", "audio", "subtitle", or "format") and stream index (ignored
// for "format", which is always index 0). Results are cached per session.
func (s *Session) Get(ctx context.Context, property, streamType string, streamIndex int) (string, error) {
	if streamType == "format" {
		streamIndex = 0
	}
	key := cacheKey{property: property, streamType: streamType, streamIndex: streamIndex}

	s.mu.Lock()
	if s.cache == nil {
		s.mu.Unlock()
		return "", drerrors.NewMetadataError("probe session is closed")
	}
	if v, ok := s.cache[key]; ok {
		s.mu.Unlock()
		return v, nil
	}
	s.mu.Unlock()

	doc, err := s.load(ctx)
	if err != nil {
		return "", err
	}

	var value string
	if streamType == "format" {
		v, ok := doc.Format[property]
		if !ok {
			return "", drerrors.NewMetadataError(fmt.Sprintf("format property %q not present", property))
		}
		value = fmt.Sprintf("%v", v)
	} else {
		stream, ok := findStream(doc.Streams, streamType, streamIndex)
		if !ok {
			return "", drerrors.NewMetadataError(fmt.Sprintf("no %s stream at index %d", streamType, streamIndex))
		}
		v, ok := stream[property]
		if !ok {
			return "", drerrors.NewMetadataError(fmt.Sprintf("%s stream property %q not present", streamType, property))
		}
		value = fmt.Sprintf("%v", v)
	}

	if value == "" || strings.EqualFold(value, "n/a") || strings.EqualFold(value, "nan") {
		return "", drerrors.NewMetadataError(fmt.Sprintf("property %q is empty or N/A", property))
	}

	s.mu.Lock()
	if s.cache != nil {
		s.cache[key] = value
	}
	s.mu.Unlock()

	return value, nil
}

// GetFloat is Get followed by a float parse.
func (s *Session) GetFloat(ctx context.Context, property, streamType string, streamIndex int) (float64, error) {
	v, err := s.Get(ctx, property, streamType, streamIndex)
	if err != nil {
		return 0, err
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, drerrors.NewMetadataError(fmt.Sprintf("property %q is not numeric: %v", property, err))
	}
	return f, nil
}

// GetInt is Get followed by an integer parse.
func (s *Session) GetInt(ctx context.Context, property, streamType string, streamIndex int) (int64, error) {
	v, err := s.Get(ctx, property, streamType, streamIndex)
	if err != nil {
		return 0, err
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, drerrors.NewMetadataError(fmt.Sprintf("property %q is not an integer: %v", property, err))
	}
	return i, nil
}

func findStream(streams []map[string]any, streamType string, streamIndex int) (map[string]any, bool) {
	n := -1
	for _, st := range streams {
		codecType, _ := st["codec_type"].(string)
		if codecType != streamType {
			continue
		}
		n++
		if n == streamIndex {
			return st, true
		}
	}
	return nil, false
}

// GetDuration resolves a stream's duration through the fallback ladder:
// stream duration -> format duration -> nb_frames*time_base ->
// size_bytes*8/bit_rate -> sum of packet durations.
func (s *Session) GetDuration(ctx context.Context, streamType string, streamIndex int) (float64, error) {
	d, _, err := s.GetDurationWithFallback(ctx, streamType, streamIndex)
	return d, err
}

// GetDurationWithFallback is GetDuration plus a flag reporting whether
// the value came from anywhere below the stream's own duration field.
// Sync checks widen their tolerance when a fallback was involved.
func (s *Session) GetDurationWithFallback(ctx context.Context, streamType string, streamIndex int) (float64, bool, error) {
	if d, err := s.GetFloat(ctx, "duration", streamType, streamIndex); err == nil && d > 0 {
		return d, false, nil
	}

	if d, err := s.GetFloat(ctx, "duration", "format", 0); err == nil && d > 0 {
		return d, true, nil
	}

	if d, ok := s.durationFromFrameCount(ctx, streamType, streamIndex); ok {
		return d, true, nil
	}

	if d, ok := s.durationFromBitrate(ctx); ok {
		return d, true, nil
	}

	if d, ok := s.durationFromPackets(ctx, streamType, streamIndex); ok {
		return d, true, nil
	}

	return 0, false, drerrors.NewMetadataError(fmt.Sprintf("all duration methods failed for %s", s.path))
}

func (s *Session) durationFromFrameCount(ctx context.Context, streamType string, streamIndex int) (float64, bool) {
	nbFrames, err := s.GetFloat(ctx, "nb_frames", streamType, streamIndex)
	if err != nil || nbFrames <= 0 {
		return 0, false
	}
	rate, err := s.Get(ctx, "r_frame_rate", streamType, streamIndex)
	if err != nil {
		return 0, false
	}
	num, den, ok := parseRational(rate)
	if !ok || num <= 0 {
		return 0, false
	}
	timeBase := den / num
	d := nbFrames * timeBase
	if d <= 0 {
		return 0, false
	}
	return d, true
}

func (s *Session) durationFromBitrate(ctx context.Context) (float64, bool) {
	size, err := s.GetFloat(ctx, "size", "format", 0)
	if err != nil || size <= 0 {
		return 0, false
	}
	bitRate, err := s.GetFloat(ctx, "bit_rate", "format", 0)
	if err != nil || bitRate <= 0 {
		return 0, false
	}
	return size * 8 / bitRate, true
}

func (s *Session) durationFromPackets(ctx context.Context, streamType string, streamIndex int) (float64, bool) {
	selector := fmt.Sprintf("%c:%d", streamType[0], streamIndex)
	argv := []string{
		"ffprobe", "-v", "quiet", "-select_streams", selector,
		"-show_entries", "packet=duration_time", "-print_format", "json", s.path,
	}
	res, err := runner.Run(ctx, argv)
	if err != nil {
		return 0, false
	}
	var out struct {
		Packets []struct {
			DurationTime string `json:"duration_time"`
		} `json:"packets"`
	}
	if err := json.Unmarshal([]byte(res.Stdout), &out); err != nil {
		return 0, false
	}
	var total float64
	for _, p := range out.Packets {
		if v, err := strconv.ParseFloat(p.DurationTime, 64); err == nil {
			total += v
		}
	}
	if total <= 0 {
		return 0, false
	}
	return roundTo(total, 3), true
}

func parseRational(s string) (num, den float64, ok bool) {
	parts := strings.SplitN(s, "/", 2)
	if len(parts) != 2 {
		return 0, 0, false
	}
	n, err1 := strconv.ParseFloat(parts[0], 64)
	d, err2 := strconv.ParseFloat(parts[1], 64)
	if err1 != nil || err2 != nil || d == 0 {
		return 0, 0, false
	}
	return n, d, true
}

func roundTo(v float64, places int) float64 {
	mult := 1.0
	for i := 0; i < places; i++ {
		mult *= 10
	}
	return float64(int64(v*mult+0.5)) / mult
}
