package encode

import (
	"strings"
	"testing"

	"github.com/five82/drapto/internal/config"
)

func TestParseVMAF(t *testing.T) {
	tests := []struct {
		name    string
		output  string
		want    float64
		wantOK  bool
	}{
		{
			name:   "ab-av1 summary line",
			output: "sample 1/3 crf 24 VMAF 95.32 (0.96x)\n",
			want:   95.32,
			wantOK: true,
		},
		{
			name:   "lowercase vmaf",
			output: "encoded sample, vmaf 88.1",
			want:   88.1,
			wantOK: true,
		},
		{
			name:   "multiple lines keeps the last",
			output: "VMAF 90.0\nVMAF 93.5\n",
			want:   93.5,
			wantOK: true,
		},
		{
			name:   "no VMAF reported",
			output: "encoding failed: no samples produced",
			wantOK: false,
		},
		{
			name:   "empty output",
			output: "",
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := parseVMAF(tt.output)
			if ok != tt.wantOK {
				t.Fatalf("parseVMAF(%q) ok = %v, want %v", tt.output, ok, tt.wantOK)
			}
			if ok && got != tt.want {
				t.Errorf("parseVMAF(%q) = %v, want %v", tt.output, got, tt.want)
			}
		})
	}
}

func TestLadderShape(t *testing.T) {
	cfg := config.NewConfig(".", ".", ".")
	cfg.MinVMAF = 93.0

	steps := ladder(cfg, false)
	if len(steps) != 3 {
		t.Fatalf("ladder() has %d steps, want 3", len(steps))
	}
	if steps[0].targetVMAF != cfg.MinVMAF || steps[1].targetVMAF != cfg.MinVMAF {
		t.Errorf("first two rungs should target cfg.MinVMAF=%v, got %v and %v", cfg.MinVMAF, steps[0].targetVMAF, steps[1].targetVMAF)
	}
	if steps[2].targetVMAF != config.FinalRetryVMAFFloor {
		t.Errorf("final rung should target FinalRetryVMAFFloor=%v, got %v", config.FinalRetryVMAFFloor, steps[2].targetVMAF)
	}
	if steps[0].samples != 3 || steps[1].samples != 4 || steps[2].samples != 4 {
		t.Errorf("unexpected sample counts across the ladder: %+v", steps)
	}
}

func TestLadderUsesHDRTarget(t *testing.T) {
	cfg := config.NewConfig(".", ".", ".")
	cfg.MinVMAF = 93.0
	cfg.MinVMAFHDR = 95.0

	steps := ladder(cfg, true)
	if steps[0].targetVMAF != cfg.MinVMAFHDR || steps[1].targetVMAF != cfg.MinVMAFHDR {
		t.Errorf("first two rungs should target cfg.MinVMAFHDR=%v for HDR content, got %v and %v",
			cfg.MinVMAFHDR, steps[0].targetVMAF, steps[1].targetVMAF)
	}
	if steps[2].targetVMAF != config.FinalRetryVMAFFloor {
		t.Errorf("final rung should target FinalRetryVMAFFloor=%v regardless of HDR, got %v",
			config.FinalRetryVMAFFloor, steps[2].targetVMAF)
	}
}

func TestSegmentLogLines(t *testing.T) {
	vmaf := 94.5
	lines := segmentLogLines(Stats{
		SegmentName:      "0003.mkv",
		DurationSecs:     28.5,
		SizeBytes:        12 * 1024 * 1024,
		BitrateKbps:      3500.0,
		EncodingTimeSecs: 14.25,
		RealtimeFactor:   2.0,
		VMAFScore:        &vmaf,
	})

	if len(lines) != 6 {
		t.Fatalf("got %d log lines, want 6", len(lines))
	}
	if !strings.Contains(lines[0], "0003.mkv") || !strings.Contains(lines[0], "94.50") {
		t.Errorf("analysis line = %q, want segment name and VMAF score", lines[0])
	}
	if !strings.Contains(lines[3], "12.00 MB") {
		t.Errorf("size line = %q, want 12.00 MB", lines[3])
	}
	if !strings.Contains(lines[5], "2.00x realtime") {
		t.Errorf("timing line = %q, want realtime factor", lines[5])
	}
}

func TestSegmentLogLinesWithoutVMAF(t *testing.T) {
	lines := segmentLogLines(Stats{SegmentName: "0001.mkv"})
	if !strings.Contains(lines[0], "no VMAF scores parsed") {
		t.Errorf("analysis line = %q, want the no-scores wording", lines[0])
	}
}

func TestBuildArgvIncludesCropAndThreads(t *testing.T) {
	cfg := config.NewConfig(".", ".", ".")
	p := Params{Config: cfg, CropFilter: "crop=1920:800:0:140", Threads: 4}

	argv := buildArgv("in.mkv", "out.mkv", p, ladder(cfg, false)[0])
	joined := strings.Join(argv, " ")

	if !strings.Contains(joined, "--vfilter crop=1920:800:0:140") {
		t.Errorf("buildArgv() missing --vfilter for a non-empty crop filter: %s", joined)
	}
	if !strings.Contains(joined, "--threads 4") {
		t.Errorf("buildArgv() missing --threads: %s", joined)
	}
	if !strings.Contains(joined, "--keyint 10s") {
		t.Errorf("buildArgv() missing --keyint 10s: %s", joined)
	}
}

func TestBuildArgvOmitsEmptyCrop(t *testing.T) {
	cfg := config.NewConfig(".", ".", ".")
	p := Params{Config: cfg}

	argv := buildArgv("in.mkv", "out.mkv", p, ladder(cfg, false)[0])
	joined := strings.Join(argv, " ")

	if strings.Contains(joined, "--vfilter") {
		t.Errorf("buildArgv() should omit --vfilter with no crop filter: %s", joined)
	}
}
