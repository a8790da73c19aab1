package runner

import (
	"strconv"
	"strings"
	"testing"
)

func TestParseFFmpegClock(t *testing.T) {
	tests := []struct {
		in     string
		want   float64
		wantOK bool
	}{
		{"00:00:30.000000", 30, true},
		{"01:02:03.500000", 3723.5, true},
		{"30.0", 0, false},
		{"aa:bb:cc", 0, false},
	}
	for _, tt := range tests {
		got, ok := parseFFmpegClock(tt.in)
		if ok != tt.wantOK {
			t.Fatalf("parseFFmpegClock(%q) ok = %v, want %v", tt.in, ok, tt.wantOK)
		}
		if ok && got != tt.want {
			t.Errorf("parseFFmpegClock(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestParseProgressStream(t *testing.T) {
	stream := strings.Join([]string{
		"frame=100",
		"fps=50.0",
		"out_time=00:00:10.000000",
		"speed=2.0x",
		"progress=continue",
		"frame=200",
		"fps=48.0",
		"out_time=00:00:20.000000",
		"speed=2.1x",
		"progress=end",
		"",
	}, "\n")

	var samples []Progress
	parseProgressStream(strings.NewReader(stream), 20, 5, func(p Progress) {
		samples = append(samples, p)
	})

	if len(samples) != 2 {
		t.Fatalf("got %d samples, want 2", len(samples))
	}
	if samples[0].OutTimeSecs != 10 || samples[0].Frame != 100 {
		t.Errorf("first sample = %+v", samples[0])
	}
	if samples[0].Percent != 50 {
		t.Errorf("first sample percent = %v, want 50", samples[0].Percent)
	}
	if !samples[1].Done {
		t.Errorf("final sample should be marked done: %+v", samples[1])
	}
	if samples[1].Percent != 100 {
		t.Errorf("final sample percent = %v, want 100", samples[1].Percent)
	}
}

func TestParseProgressStreamThrottles(t *testing.T) {
	// 100 one-percent steps with a 10-point interval: at most ~11
	// deliveries plus the terminal record.
	var lines []string
	for i := 1; i <= 100; i++ {
		lines = append(lines, "out_time_us="+strconv.Itoa(i*1_000_000), "progress=continue")
	}
	lines = append(lines, "progress=end", "")

	count := 0
	parseProgressStream(strings.NewReader(strings.Join(lines, "\n")), 100, 10, func(Progress) {
		count++
	})

	if count > 12 {
		t.Errorf("throttled parser delivered %d samples, want at most 12", count)
	}
	if count == 0 {
		t.Error("throttled parser delivered no samples")
	}
}

func TestSanitizedEnvStripsLoaderVariables(t *testing.T) {
	t.Setenv("PYTHONPATH", "/somewhere")
	t.Setenv("LD_PRELOAD", "/lib/evil.so")
	t.Setenv("DRAPTO_TEST_KEEP", "1")

	for _, kv := range sanitizedEnv() {
		if strings.HasPrefix(kv, "PYTHONPATH=") || strings.HasPrefix(kv, "LD_PRELOAD=") {
			t.Errorf("sanitized environment still contains %q", kv)
		}
	}

	found := false
	for _, kv := range sanitizedEnv() {
		if kv == "DRAPTO_TEST_KEEP=1" {
			found = true
		}
	}
	if !found {
		t.Error("sanitized environment dropped an unrelated variable")
	}
}
