// Package main provides the CLI entry point for Drapto.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/five82/drapto"
	"github.com/five82/drapto/internal/config"
	"github.com/five82/drapto/internal/discovery"
	"github.com/five82/drapto/internal/logging"
	"github.com/five82/drapto/internal/pipeline"
	"github.com/five82/drapto/internal/reporter"
	"github.com/five82/drapto/internal/runner"
	"github.com/five82/drapto/internal/util"
)

const (
	appName    = "drapto"
	appVersion = "0.3.0"
)

// requiredBinaries are the external tools drapto shells out to. Checked
// upfront so a missing dependency fails fast with a clear message rather
// than partway through a multi-hour encode.
var requiredBinaries = []string{"ffmpeg", "ffprobe", "mediainfo", "ab-av1"}

// cliFlags holds the parsed flag values for the encode command.
type cliFlags struct {
	logDir          string
	workDir         string
	verbose         bool
	crf             string
	preset          uint8
	draptoPreset    string
	disableCrop     bool
	responsive      bool
	noLog           bool
	minVMAF         float64
	maxTokens       int
	workers         int
	jsonOutput      bool
}

func main() {
	os.Exit(run())
}

func run() int {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	exitCode := 0
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		exitCode = 130
		cancel()
	}()

	root := newRootCmd(ctx)
	if err := root.Execute(); err != nil {
		if exitCode == 0 {
			exitCode = 1
		}
	}
	return exitCode
}

func newRootCmd(ctx context.Context) *cobra.Command {
	var flags cliFlags

	cmd := &cobra.Command{
		Use:     appName + " <input> <output>",
		Short:   "Chunked AV1 video encoding with SVT-AV1",
		Version: appVersion,
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return executeEncode(ctx, args[0], args[1], flags)
		},
	}
	cmd.SetVersionTemplate(fmt.Sprintf("%s version {{.Version}}\n", appName))

	cmd.Flags().StringVarP(&flags.logDir, "log-dir", "l", "", "log directory (defaults to $DRAPTO_LOG_DIR, else ~/.local/state/drapto/logs)")
	cmd.Flags().StringVar(&flags.workDir, "workdir", "", "scratch directory for segments and intermediates (defaults to $DRAPTO_WORKDIR, else /tmp/drapto)")
	cmd.Flags().BoolVarP(&flags.verbose, "verbose", "v", false, "enable verbose output for troubleshooting")
	cmd.Flags().StringVar(&flags.crf, "crf", "", fmt.Sprintf("CRF quality (0-63). Single value or SD,HD,UHD triple. Default: %d,%d,%d", config.DefaultCRFSD, config.DefaultCRFHD, config.DefaultCRFUHD))
	cmd.Flags().Uint8Var(&flags.preset, "preset", 0, fmt.Sprintf("SVT-AV1 encoder preset (0-13). Lower is slower/better. Default: %d", config.DefaultSVTAV1Preset))
	cmd.Flags().StringVar(&flags.draptoPreset, "drapto-preset", "", "grouped drapto defaults (grain, clean, quick)")
	cmd.Flags().BoolVar(&flags.disableCrop, "disable-crop", false, "disable automatic black-bar crop detection")
	cmd.Flags().BoolVar(&flags.responsive, "responsive", false, "record responsive-encoding mode in the log (no CPU threads are reserved)")
	cmd.Flags().BoolVar(&flags.noLog, "no-log", false, "disable drapto log file creation")
	cmd.Flags().Float64Var(&flags.minVMAF, "min-vmaf", 0, fmt.Sprintf("VMAF target for the segment retry ladder. Default: %.1f", config.DefaultMinVMAF))
	cmd.Flags().IntVar(&flags.maxTokens, "max-tokens", 0, fmt.Sprintf("scheduler token ceiling for concurrent segment encodes. Default: %d", config.DefaultMaxTokens))
	cmd.Flags().IntVar(&flags.workers, "workers", 0, "number of parallel encoder workers (defaults to an automatic, resolution-aware count)")
	cmd.Flags().BoolVar(&flags.jsonOutput, "json", false, "also emit NDJSON events to stdout, alongside the terminal report")

	return cmd
}

func executeEncode(ctx context.Context, inputArg, outputArg string, flags cliFlags) error {
	for _, bin := range requiredBinaries {
		if err := runner.LookPath(bin); err != nil {
			return fmt.Errorf("required dependency %q not found on PATH: %w", bin, err)
		}
	}

	inputPath, err := filepath.Abs(inputArg)
	if err != nil {
		return fmt.Errorf("invalid input path: %w", err)
	}

	inputInfo, err := os.Stat(inputPath)
	if err != nil {
		return fmt.Errorf("input path does not exist: %s", inputPath)
	}

	outputDir, targetFilename, err := resolveOutputPath(outputArg, inputInfo.IsDir())
	if err != nil {
		return err
	}

	if err := util.EnsureDirectory(outputDir); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	logDir := flags.logDir
	if logDir == "" {
		logDir = os.Getenv("DRAPTO_LOG_DIR")
	}
	if logDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("failed to get home directory: %w", err)
		}
		logDir = filepath.Join(homeDir, ".local", "state", "drapto", "logs")
	}

	logger, err := logging.Setup(logDir, flags.verbose, flags.noLog)
	if err != nil {
		return fmt.Errorf("failed to setup logging: %w", err)
	}
	if logger != nil {
		defer func() { _ = logger.Close() }()
	}

	var filesToProcess []string
	if inputInfo.IsDir() {
		filesToProcess, err = discovery.FindVideoFiles(inputPath)
		if err != nil {
			return fmt.Errorf("failed to discover video files: %w", err)
		}
		if len(filesToProcess) == 0 {
			return fmt.Errorf("no video files found in %s", inputPath)
		}
		if logger != nil {
			logger.Info("Discovered %d video files in %s", len(filesToProcess), inputPath)
			for i, f := range filesToProcess {
				logger.Debug("  %d. %s", i+1, f)
			}
		}
	} else {
		filesToProcess = []string{inputPath}
		if logger != nil {
			logger.Info("Processing single file: %s", inputPath)
		}
	}

	cfg := config.NewConfig(inputPath, outputDir, logDir)
	if flags.workDir != "" {
		cfg.TempDir = flags.workDir
	}

	if flags.draptoPreset != "" {
		preset, err := config.ParsePreset(flags.draptoPreset)
		if err != nil {
			return err
		}
		cfg.ApplyPreset(preset)
	}

	if flags.crf != "" {
		sd, hd, uhd, err := drapto.ParseCRF(flags.crf)
		if err != nil {
			return fmt.Errorf("invalid --crf value: %w", err)
		}
		cfg.CRFSD = sd
		cfg.CRFHD = hd
		cfg.CRFUHD = uhd
	}
	if flags.preset != 0 {
		cfg.SVTAV1Preset = flags.preset
	}
	if flags.disableCrop {
		cfg.CropMode = "none"
	}
	if flags.minVMAF != 0 {
		cfg.MinVMAF = flags.minVMAF
	}
	if flags.maxTokens != 0 {
		cfg.MaxTokens = flags.maxTokens
	}
	if flags.workers != 0 {
		cfg.Workers = flags.workers
	}
	cfg.ResponsiveEncoding = flags.responsive
	cfg.Verbose = flags.verbose

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if logger != nil {
		logger.Info("Output directory: %s", outputDir)
		logger.Info("CRF settings: SD=%d, HD=%d, UHD=%d", cfg.CRFSD, cfg.CRFHD, cfg.CRFUHD)
		logger.Info("SVT-AV1 preset: %d", cfg.SVTAV1Preset)
		logger.Info("Crop mode: %s", cfg.CropMode)
		logger.Info("Responsive encoding: %v", cfg.ResponsiveEncoding)
		if cfg.DraptoPreset != nil {
			logger.Info("Drapto preset: %s", *cfg.DraptoPreset)
		}
	}

	var rep reporter.Reporter = reporter.NewTerminalReporter()
	if flags.jsonOutput {
		rep = reporter.NewCompositeReporter(reporter.NewTerminalReporter(), reporter.NewJSONReporter())
	}
	rep.Hardware(reporter.HardwareSummary{Hostname: util.GetSystemInfo().Hostname})

	_, err = pipeline.ProcessVideos(ctx, cfg, filesToProcess, targetFilename, rep)
	return err
}

// resolveOutputPath determines the output directory and optional target
// filename. If input is a file and output has a video extension, output
// is treated as a target filename rather than a directory.
func resolveOutputPath(outputPath string, isInputDir bool) (outputDir, targetFilename string, err error) {
	outputPath, err = filepath.Abs(outputPath)
	if err != nil {
		return "", "", fmt.Errorf("invalid output path: %w", err)
	}

	if isInputDir {
		return outputPath, "", nil
	}

	ext := filepath.Ext(outputPath)
	videoExtensions := map[string]bool{
		".mkv": true, ".mp4": true, ".webm": true,
		".avi": true, ".mov": true, ".m4v": true,
	}

	if videoExtensions[ext] {
		return filepath.Dir(outputPath), filepath.Base(outputPath), nil
	}

	return outputPath, "", nil
}
