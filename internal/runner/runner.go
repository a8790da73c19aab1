// Package runner executes external processes (ffmpeg, ffprobe, ab-av1,
// mediainfo) and, where requested, parses ffmpeg's progress-pipe output.
package runner

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	drerrors "github.com/five82/drapto/internal/errors"
	"golang.org/x/sys/unix"
)

// Progress is one sample from an ffmpeg "-progress pipe:1" stream.
// Percent and ETA are derived from the caller's total duration and are
// zero when no total was supplied.
type Progress struct {
	OutTimeSecs float64
	Percent     float64
	ETA         time.Duration
	FPS         float32
	Speed       float32
	Bitrate     string
	Frame       uint64
	Done        bool
}

// ProgressCallback receives progress samples at most once per
// logIntervalPercent of completed duration.
type ProgressCallback func(Progress)

// Result is the outcome of a completed process.
type Result struct {
	Stdout       string
	Stderr       string
	ExitCode     int
	PeakRSSBytes uint64 // highest resident set observed while the child ran; 0 if unsampled
}

// rssSampleInterval is how often a running child's VmHWM is polled.
const rssSampleInterval = 200 * time.Millisecond

// Run executes argv[0] with argv[1:], failing with a ProcessError on a
// nonzero exit. The child is placed in its own process group so context
// cancellation can signal the whole group, not just the direct child.
// While the child runs its peak resident set is sampled into the result.
func Run(ctx context.Context, argv []string) (Result, error) {
	if len(argv) == 0 {
		return Result{}, drerrors.NewOperationFailedError("empty command", nil)
	}

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Env = sanitizedEnv()
	setProcessGroup(cmd)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return Result{}, drerrors.NewCommandStartError(argv[0], err)
	}

	sampleCtx, stopSampling := context.WithCancel(context.Background())
	peakCh := make(chan uint64, 1)
	go func() {
		peakCh <- samplePeakRSS(sampleCtx, cmd.Process.Pid, rssSampleInterval)
	}()

	err := cmd.Wait()
	stopSampling()
	result := Result{Stdout: stdout.String(), Stderr: stderr.String(), PeakRSSBytes: <-peakCh}
	if err != nil {
		if ctx.Err() != nil {
			return result, drerrors.NewCancelledError()
		}
		return result, drerrors.WrapExecError(argv[0], err, result.Stderr)
	}
	return result, nil
}

// RunWithProgress executes argv with "-progress pipe:1 -nostats" appended,
// invoking callback with a sample at most once per logIntervalPercent of
// totalDuration (0 disables throttling; every sample is delivered).
func RunWithProgress(ctx context.Context, argv []string, totalDuration float64, logIntervalPercent float64, callback ProgressCallback) (Result, error) {
	if len(argv) == 0 {
		return Result{}, drerrors.NewOperationFailedError("empty command", nil)
	}

	// Global options go ahead of the caller's arguments; ffmpeg ignores
	// options trailing the last output file.
	args := append([]string{"-progress", "pipe:1", "-nostats"}, argv[1:]...)
	cmd := exec.CommandContext(ctx, argv[0], args...)
	cmd.Env = sanitizedEnv()
	setProcessGroup(cmd)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return Result{}, drerrors.NewCommandStartError(argv[0], err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return Result{}, drerrors.NewCommandStartError(argv[0], err)
	}

	if err := cmd.Start(); err != nil {
		return Result{}, drerrors.NewCommandStartError(argv[0], err)
	}

	var stderrBuf bytes.Buffer
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		io.Copy(&stderrBuf, stderr)
	}()
	go func() {
		defer wg.Done()
		parseProgressStream(stdout, totalDuration, logIntervalPercent, callback)
	}()
	wg.Wait()

	err = cmd.Wait()
	result := Result{Stderr: stderrBuf.String()}
	if err != nil {
		if ctx.Err() != nil {
			return result, drerrors.NewCancelledError()
		}
		return result, drerrors.WrapExecError(argv[0], err, result.Stderr)
	}
	return result, nil
}

// parseProgressStream reads ffmpeg's "-progress pipe:1" key=value lines and
// assembles one Progress sample per blank-terminated block.
func parseProgressStream(r io.Reader, totalDuration, logIntervalPercent float64, callback ProgressCallback) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var cur Progress
	var lastReportedPercent float64 = -1

	flush := func() {
		if callback == nil {
			return
		}
		if totalDuration <= 0 {
			callback(cur)
			return
		}

		cur.Percent = cur.OutTimeSecs / totalDuration * 100
		if cur.Done {
			cur.Percent = 100
		}
		if cur.Speed > 0 {
			remaining := totalDuration - cur.OutTimeSecs
			if remaining > 0 {
				cur.ETA = time.Duration(remaining / float64(cur.Speed) * float64(time.Second))
			}
		}

		if logIntervalPercent <= 0 || cur.Done || cur.Percent-lastReportedPercent >= logIntervalPercent {
			lastReportedPercent = cur.Percent
			callback(cur)
		}
	}

	for scanner.Scan() {
		line := scanner.Text()
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)

		switch key {
		case "out_time_ms", "out_time_us":
			if us, err := strconv.ParseInt(value, 10, 64); err == nil {
				cur.OutTimeSecs = float64(us) / 1_000_000
			}
		case "out_time":
			if secs, ok := parseFFmpegClock(value); ok {
				cur.OutTimeSecs = secs
			}
		case "frame":
			if f, err := strconv.ParseUint(value, 10, 64); err == nil {
				cur.Frame = f
			}
		case "fps":
			if f, err := strconv.ParseFloat(value, 32); err == nil {
				cur.FPS = float32(f)
			}
		case "speed":
			v := strings.TrimSuffix(value, "x")
			if f, err := strconv.ParseFloat(v, 32); err == nil {
				cur.Speed = float32(f)
			}
		case "bitrate":
			cur.Bitrate = value
		case "progress":
			cur.Done = value == "end"
			flush()
			cur = Progress{}
		}
	}
}

// parseFFmpegClock parses "HH:MM:SS.micro" into seconds.
func parseFFmpegClock(s string) (float64, bool) {
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return 0, false
	}
	h, err1 := strconv.ParseFloat(parts[0], 64)
	m, err2 := strconv.ParseFloat(parts[1], 64)
	sec, err3 := strconv.ParseFloat(parts[2], 64)
	if err1 != nil || err2 != nil || err3 != nil {
		return 0, false
	}
	return h*3600 + m*60 + sec, true
}

// sanitizedEnv strips interpreter and loader path variables from the
// environment handed to children, so a caller's runtime configuration
// never changes how ffmpeg or ab-av1 resolve their own libraries.
func sanitizedEnv() []string {
	blocked := map[string]bool{
		"PYTHONPATH":      true,
		"PYTHONHOME":      true,
		"LD_PRELOAD":      true,
		"LD_LIBRARY_PATH": true,
	}
	env := os.Environ()
	kept := env[:0]
	for _, kv := range env {
		name, _, _ := strings.Cut(kv, "=")
		if !blocked[name] {
			kept = append(kept, kv)
		}
	}
	return kept
}

// setProcessGroup places the child in its own process group on platforms
// that support it, so cancellation can kill the whole tree.
func setProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		return unix.Kill(-cmd.Process.Pid, unix.SIGTERM)
	}
}

// samplePeakRSS polls /proc/<pid>/status for VmHWM at a fixed interval
// until ctx is done, returning the highest value observed. This gives a
// consistent upper bound on a child's resident set, not an exact peak.
func samplePeakRSS(ctx context.Context, pid int, interval time.Duration) uint64 {
	var peak uint64
	path := fmt.Sprintf("/proc/%d/status", pid)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	sample := func() bool {
		data, err := os.ReadFile(path)
		if err != nil {
			return false
		}
		for _, line := range strings.Split(string(data), "\n") {
			if !strings.HasPrefix(line, "VmHWM:") {
				continue
			}
			fields := strings.Fields(line)
			if len(fields) < 2 {
				continue
			}
			kb, err := strconv.ParseUint(fields[1], 10, 64)
			if err == nil && kb*1024 > peak {
				peak = kb * 1024
			}
		}
		return true
	}

	for {
		select {
		case <-ctx.Done():
			return peak
		case <-ticker.C:
			if !sample() {
				return peak
			}
		}
	}
}

// LookPath checks that a required external binary is reachable, wrapping
// the failure as a DependencyError naming the binary.
func LookPath(binary string) error {
	if _, err := exec.LookPath(binary); err != nil {
		return drerrors.NewDependencyError(binary, err)
	}
	return nil
}
