package crop

import "testing"

func TestCreditsSkip(t *testing.T) {
	tests := []struct {
		duration float64
		want     float64
	}{
		{7200, 180}, // feature film: skip three minutes
		{1800, 60},  // TV episode: skip one minute
		{600, 30},   // short content: skip thirty seconds
		{200, 0},    // very short content: no skip
		{301, 30},
		{50, 0},
	}
	for _, tt := range tests {
		if got := creditsSkip(tt.duration); got != tt.want {
			t.Errorf("creditsSkip(%v) = %v, want %v", tt.duration, got, tt.want)
		}
	}
}

func TestSampleCount(t *testing.T) {
	if got := sampleCount(300); got != 60 {
		t.Errorf("sampleCount(300) = %d, want 60 (one per 5s)", got)
	}
	if got := sampleCount(50); got != minSamples {
		t.Errorf("sampleCount(50) = %d, want the %d floor", got, minSamples)
	}
}

func TestModalCropHeight(t *testing.T) {
	boxes := []cropBox{
		{1920, 800, 0, 140},
		{1920, 800, 0, 140},
		{1920, 804, 0, 138},
		{1280, 720, 0, 0}, // wrong width: ignored
		{1920, 60, 0, 510}, // too short to be picture: ignored
	}

	h, ok := modalCropHeight(boxes, 1920)
	if !ok {
		t.Fatal("expected a modal height")
	}
	if h != 800 {
		t.Errorf("modal height = %d, want 800", h)
	}
}

func TestModalCropHeightTieKeepsFirst(t *testing.T) {
	boxes := []cropBox{
		{1920, 800, 0, 140},
		{1920, 804, 0, 138},
	}
	h, ok := modalCropHeight(boxes, 1920)
	if !ok {
		t.Fatal("expected a modal height")
	}
	if h != 800 {
		t.Errorf("tie should keep the first height encountered, got %d", h)
	}
}

func TestModalCropHeightNoValidBoxes(t *testing.T) {
	boxes := []cropBox{
		{1280, 720, 0, 0},
		{1920, 40, 0, 520},
	}
	if _, ok := modalCropHeight(boxes, 1920); ok {
		t.Error("expected no modal height when every box is filtered out")
	}
}

func TestCropRegexParsesFFmpegStderr(t *testing.T) {
	stderr := "[Parsed_cropdetect_1 @ 0x55] x1:0 x2:1919 y1:140 y2:939 w:1920 h:800 x:0 y:140 pts:42 t:1.4 crop=1920:800:0:140\n"
	m := cropRegex.FindStringSubmatch(stderr)
	if m == nil {
		t.Fatal("crop regex did not match cropdetect output")
	}
	if m[1] != "1920" || m[2] != "800" || m[3] != "0" || m[4] != "140" {
		t.Errorf("crop regex captured %v", m[1:])
	}
}

func TestBlackLevelRegex(t *testing.T) {
	stderr := "[blackdetect @ 0x55] black_start:0 black_end:0.5 black_duration:0.5 black_level: 102\n"
	m := blackLevelRegex.FindStringSubmatch(stderr)
	if m == nil {
		t.Fatal("black level regex did not match blackdetect output")
	}
	if m[1] != "102" {
		t.Errorf("black level = %q, want 102", m[1])
	}
}
