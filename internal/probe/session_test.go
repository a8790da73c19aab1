package probe

import "testing"

func TestParseRational(t *testing.T) {
	tests := []struct {
		in      string
		wantNum float64
		wantDen float64
		wantOK  bool
	}{
		{"24000/1001", 24000, 1001, true},
		{"25/1", 25, 1, true},
		{"0/0", 0, 0, false},
		{"not-a-rate", 0, 0, false},
	}
	for _, tt := range tests {
		num, den, ok := parseRational(tt.in)
		if ok != tt.wantOK {
			t.Fatalf("parseRational(%q) ok = %v, want %v", tt.in, ok, tt.wantOK)
		}
		if ok && (num != tt.wantNum || den != tt.wantDen) {
			t.Errorf("parseRational(%q) = (%v, %v), want (%v, %v)", tt.in, num, den, tt.wantNum, tt.wantDen)
		}
	}
}

func TestRoundTo(t *testing.T) {
	if got := roundTo(1.23456, 3); got != 1.235 {
		t.Errorf("roundTo(1.23456, 3) = %v, want 1.235", got)
	}
	if got := roundTo(2.0, 3); got != 2.0 {
		t.Errorf("roundTo(2.0, 3) = %v, want 2.0", got)
	}
}

func TestFindStream(t *testing.T) {
	streams := []map[string]any{
		{"codec_type": "video"},
		{"codec_type": "audio", "channels": 2.0},
		{"codec_type": "audio", "channels": 6.0},
	}

	if _, ok := findStream(streams, "video", 1); ok {
		t.Errorf("expected no second video stream")
	}

	st, ok := findStream(streams, "audio", 1)
	if !ok {
		t.Fatalf("expected audio stream at index 1")
	}
	if st["channels"] != 6.0 {
		t.Errorf("channels = %v, want 6.0", st["channels"])
	}
}

func TestSessionGetOnClosedSession(t *testing.T) {
	s := Open("/nonexistent.mkv")
	s.Close()
	if _, err := s.Get(nil, "duration", "video", 0); err == nil {
		t.Errorf("expected error reading from a closed session")
	}
}
