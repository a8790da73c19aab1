// Package config provides configuration types and defaults for drapto.
package config

import (
	"fmt"
	"os"

	"github.com/five82/drapto/internal/util"
)

// Default constants
const (
	// DefaultCRFSD is the default CRF quality setting for SD content (<1920 width).
	DefaultCRFSD uint8 = 25

	// DefaultCRFHD is the default CRF quality setting for HD content (>=1920, <3840 width).
	DefaultCRFHD uint8 = 25

	// DefaultCRFUHD is the default CRF quality setting for UHD content (>=3840 width).
	DefaultCRFUHD uint8 = 29

	// HDWidthThreshold is the minimum width for HD resolution.
	HDWidthThreshold uint32 = 1920

	// UHDWidthThreshold is the minimum width for UHD resolution.
	UHDWidthThreshold uint32 = 3840

	// DefaultSVTAV1Preset is the SVT-AV1 preset (0-13, lower is slower/better).
	DefaultSVTAV1Preset uint8 = 6

	// DefaultSVTAV1Tune is the SVT-AV1 tune parameter.
	DefaultSVTAV1Tune uint8 = 0

	// DefaultSVTAV1ACBias is the SVT-AV1 ac-bias parameter.
	DefaultSVTAV1ACBias float32 = 0.1

	// DefaultSVTAV1EnableVarianceBoost is whether variance boost is enabled.
	DefaultSVTAV1EnableVarianceBoost bool = false

	// DefaultSVTAV1VarianceBoostStrength is the variance boost strength.
	DefaultSVTAV1VarianceBoostStrength uint8 = 0

	// DefaultSVTAV1VarianceOctile is the variance octile parameter.
	DefaultSVTAV1VarianceOctile uint8 = 0

	// DefaultCropMode is the crop mode for the main encode.
	DefaultCropMode string = "auto"

	// DefaultEncodeCooldownSecs seeds Config.EncodeCooldownSecs; the
	// pipeline does not pause between encodes.
	DefaultEncodeCooldownSecs uint64 = 3

	// ProgressLogIntervalPercent is the progress logging interval.
	ProgressLogIntervalPercent uint8 = 5

	// DefaultChunkDuration is the default chunk duration in seconds for non-4K content.
	DefaultChunkDuration float64 = 10.0

	// DefaultChunkDuration4K is the default chunk duration in seconds for 4K content.
	DefaultChunkDuration4K float64 = 20.0

	// DefaultThreadsPerWorker is the default number of threads per encoder worker.
	// 2 threads provides good balance: 16 workers Ã— 2 threads = 32 total on a typical CPU.
	// Can be increased (4-8) for fewer, more powerful workers.
	DefaultThreadsPerWorker int = 2

	// DefaultMinSceneGap is the minimum spacing, in seconds, enforced
	// between adjacent scene-cut boundaries during segment planning.
	DefaultMinSceneGap float64 = 5.0

	// DefaultMaxSegmentLen is the longest a planned segment may be before
	// a synthetic boundary is inserted.
	DefaultMaxSegmentLen float64 = 30.0

	// DefaultMaxTokens is the scheduler's token ceiling for concurrently
	// running segment encodes.
	DefaultMaxTokens int = 8

	// DefaultWarmupCount is the number of segments encoded sequentially
	// before the scheduler derives its per-category memory weights.
	DefaultWarmupCount int = 3

	// DefaultStaggerDelay is the pause after admitting a task, before the
	// scheduler is allowed to consider the next submission.
	DefaultStaggerDelay = 250 // milliseconds

	// DefaultMemoryPressurePercent is the global memory-utilization level
	// above which the scheduler pauses all new admissions.
	DefaultMemoryPressurePercent float64 = 90.0

	// DefaultMinVMAF is the VMAF target the first two retry-ladder steps
	// aim for; the final retry step targets a fixed floor instead.
	DefaultMinVMAF float64 = 93.0

	// DefaultMinVMAFHDR is the VMAF target used in place of DefaultMinVMAF
	// for HDR content, which needs a higher score to look equivalent.
	DefaultMinVMAFHDR float64 = 95.0

	// FinalRetryVMAFFloor is the fixed VMAF target used on the last retry
	// step of the segment-encode ladder.
	FinalRetryVMAFFloor float64 = 95.0
)

// DefaultExtensions seeds Config.Extensions. Directory discovery does not
// consult it; it recognizes the extensions in util.VideoExtensions.
var DefaultExtensions = []string{".mkv", ".mp4"}

// AutoParallelConfig returns default workers and buffer settings sized
// to the host's physical core count; the scheduler's token ceiling
// (MaxTokens) does the actual memory-aware admission control.
func AutoParallelConfig() (workers, buffer int) {
	workers = util.PhysicalCores()
	buffer = 4 // Prefetch buffer to keep workers fed
	return workers, buffer
}

// Config holds all configuration for video processing.
type Config struct {
	// Input/output paths
	InputDir  string
	OutputDir string
	LogDir    string
	TempDir   string // Optional, defaults to DefaultWorkDir

	// SVT-AV1 parameters
	SVTAV1Preset                uint8
	SVTAV1Tune                  uint8
	SVTAV1ACBias                float32
	SVTAV1EnableVarianceBoost   bool
	SVTAV1VarianceBoostStrength uint8
	SVTAV1VarianceOctile        uint8

	// Optional filters and film grain
	VideoDenoiseFilter     string // Optional denoise filter (e.g., "hqdn3d=1.5:1.5:3:3")
	SVTAV1FilmGrain        *uint8 // Optional film grain synthesis strength
	SVTAV1FilmGrainDenoise *bool  // Optional film grain denoise toggle

	// Quality settings (CRF value 0-63) by resolution
	CRFSD  uint8 // CRF for SD content (<1920 width)
	CRFHD  uint8 // CRF for HD content (>=1920, <3840 width)
	CRFUHD uint8 // CRF for UHD content (>=3840 width)

	// Processing options
	CropMode           string // "auto" or "none"
	ResponsiveEncoding bool   // Logged only; no CPU threads are reserved
	EncodeCooldownSecs uint64 // Recorded only; no pause is applied between batch encodes

	// Parallel encoding options
	Workers           int // Number of parallel encoder workers
	ChunkBuffer       int // Extra chunks to buffer in memory
	ThreadsPerWorker  int // Threads per encoder worker (SVT-AV1 --lp flag)

	// Chunk duration (set automatically based on resolution)
	ChunkDuration float64 // Chunk duration in seconds

	// Debug options
	Verbose bool // Enable verbose output

	// Segment planning
	MinSceneGap   float64 // minimum seconds between scene-cut boundaries
	MaxSegmentLen float64 // longest a segment may be before a synthetic split

	// Memory-aware scheduler
	MaxTokens             int     // scheduler token ceiling
	WarmupCount           int     // sequential warm-up segments before calibration
	StaggerDelayMillis    int     // pause between task submissions
	MemoryPressurePercent float64 // pause admissions above this global usage

	// Segment encoder retry ladder
	MinVMAF    float64 // target VMAF for the first two retry steps
	MinVMAFHDR float64 // target VMAF for the first two retry steps on HDR content

	// Input discovery
	Extensions []string // input file extensions; not consulted by discovery

	// DraptoPreset records which named preset (if any) was applied last.
	DraptoPreset *Preset
}

// NewConfig creates a new Config with default values. WorkDir and LogDir
// are overridden by $DRAPTO_WORKDIR / $DRAPTO_LOG_DIR when set and the
// corresponding constructor argument is empty.
func NewConfig(inputDir, outputDir, logDir string) *Config {
	workers, buffer := AutoParallelConfig()

	if logDir == "" {
		logDir = os.Getenv("DRAPTO_LOG_DIR")
	}
	tempDir := os.Getenv("DRAPTO_WORKDIR")

	return &Config{
		InputDir:                    inputDir,
		OutputDir:                   outputDir,
		LogDir:                      logDir,
		TempDir:                     tempDir,
		SVTAV1Preset:                DefaultSVTAV1Preset,
		SVTAV1Tune:                  DefaultSVTAV1Tune,
		SVTAV1ACBias:                DefaultSVTAV1ACBias,
		SVTAV1EnableVarianceBoost:   DefaultSVTAV1EnableVarianceBoost,
		SVTAV1VarianceBoostStrength: DefaultSVTAV1VarianceBoostStrength,
		SVTAV1VarianceOctile:        DefaultSVTAV1VarianceOctile,
		CRFSD:                       DefaultCRFSD,
		CRFHD:                       DefaultCRFHD,
		CRFUHD:                      DefaultCRFUHD,
		CropMode:                    DefaultCropMode,
		ResponsiveEncoding:          false,
		EncodeCooldownSecs:          DefaultEncodeCooldownSecs,
		Workers:                     workers,
		ChunkBuffer:                 buffer,
		ThreadsPerWorker:            DefaultThreadsPerWorker,
		ChunkDuration:               DefaultChunkDuration,
		MinSceneGap:                 DefaultMinSceneGap,
		MaxSegmentLen:               DefaultMaxSegmentLen,
		MaxTokens:                   DefaultMaxTokens,
		WarmupCount:                 DefaultWarmupCount,
		StaggerDelayMillis:          DefaultStaggerDelay,
		MemoryPressurePercent:       DefaultMemoryPressurePercent,
		MinVMAF:                     DefaultMinVMAF,
		MinVMAFHDR:                  DefaultMinVMAFHDR,
		Extensions:                  append([]string{}, DefaultExtensions...),
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.SVTAV1Preset > 13 {
		return fmt.Errorf("svt_av1_preset must be 0-13, got %d: %w", c.SVTAV1Preset, ErrInvalidSVTPreset)
	}

	if c.CRFSD > 63 {
		return fmt.Errorf("crf-sd must be 0-63, got %d: %w", c.CRFSD, ErrInvalidCRF)
	}
	if c.CRFHD > 63 {
		return fmt.Errorf("crf-hd must be 0-63, got %d: %w", c.CRFHD, ErrInvalidCRF)
	}
	if c.CRFUHD > 63 {
		return fmt.Errorf("crf-uhd must be 0-63, got %d: %w", c.CRFUHD, ErrInvalidCRF)
	}

	if c.SVTAV1FilmGrain == nil && c.SVTAV1FilmGrainDenoise != nil {
		return fmt.Errorf("svt_av1_film_grain_denoise set without svt_av1_film_grain: %w", ErrInvalidFilmGrain)
	}

	if c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", c.Workers)
	}

	if c.ChunkBuffer < 0 {
		return fmt.Errorf("chunk_buffer must be non-negative, got %d", c.ChunkBuffer)
	}

	if c.ChunkDuration < 1 || c.ChunkDuration > 120 {
		return fmt.Errorf("chunk_duration must be between 1 and 120 seconds, got %g", c.ChunkDuration)
	}

	if c.MinSceneGap <= 0 {
		return fmt.Errorf("min_scene_gap must be positive, got %g", c.MinSceneGap)
	}
	if c.MaxSegmentLen <= c.MinSceneGap {
		return fmt.Errorf("max_segment_len (%g) must exceed min_scene_gap (%g)", c.MaxSegmentLen, c.MinSceneGap)
	}
	if c.MaxTokens < 1 {
		return fmt.Errorf("max_tokens must be at least 1, got %d", c.MaxTokens)
	}
	if c.WarmupCount < 0 {
		return fmt.Errorf("warmup_count must be non-negative, got %d", c.WarmupCount)
	}
	if c.MemoryPressurePercent <= 0 || c.MemoryPressurePercent > 100 {
		return fmt.Errorf("memory_pressure_percent must be between 0 and 100, got %g", c.MemoryPressurePercent)
	}
	if c.MinVMAF <= 0 || c.MinVMAF > 100 {
		return fmt.Errorf("min_vmaf must be between 0 and 100, got %g", c.MinVMAF)
	}
	if c.MinVMAFHDR <= 0 || c.MinVMAFHDR > 100 {
		return fmt.Errorf("min_vmaf_hdr must be between 0 and 100, got %g", c.MinVMAFHDR)
	}

	return nil
}

// DefaultWorkDir is the scratch root used when neither --workdir nor
// $DRAPTO_WORKDIR is set.
const DefaultWorkDir = "/tmp/drapto"

// GetTempDir returns the scratch root: the configured TempDir when set,
// otherwise the default work directory.
func (c *Config) GetTempDir() string {
	if c.TempDir != "" {
		return c.TempDir
	}
	return DefaultWorkDir
}

// CRFForWidth returns the appropriate CRF value based on video width.
func (c *Config) CRFForWidth(width uint32) uint8 {
	if width >= UHDWidthThreshold {
		return c.CRFUHD
	}
	if width >= HDWidthThreshold {
		return c.CRFHD
	}
	return c.CRFSD
}
