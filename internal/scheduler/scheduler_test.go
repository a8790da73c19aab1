package scheduler

import (
	"testing"

	"github.com/five82/drapto/internal/config"
)

const mib = 1024 * 1024

func TestCategoryForWidth(t *testing.T) {
	tests := []struct {
		width uint32
		want  Category
	}{
		{720, CategorySDR},
		{1919, CategorySDR},
		{1920, Category1080p},
		{3839, Category1080p},
		{3840, Category4K},
		{4096, Category4K},
	}
	for _, tt := range tests {
		if got := CategoryForWidth(tt.width); got != tt.want {
			t.Errorf("CategoryForWidth(%d) = %v, want %v", tt.width, got, tt.want)
		}
	}
}

func TestDeriveProfileNoMeasurements(t *testing.T) {
	p := DeriveProfile(nil)
	if p.BaseBytesPerToken != defaultBaseMemPerToken {
		t.Errorf("base = %d, want the %d default when warm-up measured nothing", p.BaseBytesPerToken, uint64(defaultBaseMemPerToken))
	}
	if p.Weight(CategorySDR) != 1 || p.Weight(Category1080p) != 2 || p.Weight(Category4K) != 4 {
		t.Errorf("default weights = %d/%d/%d, want 1/2/4",
			p.Weight(CategorySDR), p.Weight(Category1080p), p.Weight(Category4K))
	}
}

func TestDeriveProfileZeroPeaksIgnored(t *testing.T) {
	p := DeriveProfile([]Measurement{
		{Category: CategorySDR, PeakRSSBytes: 0},
		{Category: Category4K, PeakRSSBytes: 0},
	})
	if p.BaseBytesPerToken != defaultBaseMemPerToken {
		t.Errorf("base = %d, want the default when every peak was zero", p.BaseBytesPerToken)
	}
}

func TestDeriveProfileSingleCategory(t *testing.T) {
	p := DeriveProfile([]Measurement{
		{Category: CategorySDR, PeakRSSBytes: 600 * mib},
		{Category: CategorySDR, PeakRSSBytes: 800 * mib},
	})
	// min category average is 700MiB, actual peak / 4 is 200MiB.
	if p.BaseBytesPerToken != 700*mib {
		t.Errorf("base = %d, want %d (the SDR mean peak)", p.BaseBytesPerToken, uint64(700*mib))
	}
	// unobserved categories keep their default weights
	if p.Weight(Category1080p) != 2 || p.Weight(Category4K) != 4 {
		t.Errorf("unobserved weights = %d/%d, want defaults 2/4", p.Weight(Category1080p), p.Weight(Category4K))
	}
}

func TestDeriveProfileWeightsScaleWithPeaks(t *testing.T) {
	p := DeriveProfile([]Measurement{
		{Category: CategorySDR, PeakRSSBytes: 500 * mib},
		{Category: Category1080p, PeakRSSBytes: 1500 * mib},
		{Category: Category4K, PeakRSSBytes: 3000 * mib},
	})
	// base = max(500MiB, 3000MiB/4) = 750MiB
	if p.BaseBytesPerToken != 750*mib {
		t.Fatalf("base = %d, want %d", p.BaseBytesPerToken, uint64(750*mib))
	}
	if p.Weight(CategorySDR) != 1 {
		t.Errorf("SDR weight = %d, want 1", p.Weight(CategorySDR))
	}
	// 1500/750 = 2, 3000/750 = 4
	if p.Weight(Category1080p) != 2 {
		t.Errorf("1080p weight = %d, want 2", p.Weight(Category1080p))
	}
	if p.Weight(Category4K) != 4 {
		t.Errorf("4k weight = %d, want 4", p.Weight(Category4K))
	}
}

func TestDeriveProfileWeightFloors(t *testing.T) {
	// 4k peaks barely above the base still cost at least two tokens.
	p := DeriveProfile([]Measurement{
		{Category: CategorySDR, PeakRSSBytes: 1000 * mib},
		{Category: Category4K, PeakRSSBytes: 1100 * mib},
	})
	if p.Weight(Category4K) < 2 {
		t.Errorf("4k weight = %d, want >= 2", p.Weight(Category4K))
	}
	if p.Weight(CategorySDR) != 1 {
		t.Errorf("SDR weight = %d, want 1", p.Weight(CategorySDR))
	}
}

func TestSchedulerAdmitComplete(t *testing.T) {
	cfg := config.NewConfig(".", ".", ".")
	cfg.MaxTokens = 4
	cfg.StaggerDelayMillis = 0

	profile := DefaultProfile()
	profile.BaseBytesPerToken = 1 // 1 byte per token so the memory check never binds
	s := New(cfg, profile)

	if s.Outstanding() != 0 {
		t.Fatalf("Outstanding() = %d, want 0 before anything is admitted", s.Outstanding())
	}

	if !s.CanSubmit(4) {
		t.Fatalf("CanSubmit(4) = false, want true when no tokens are in use and maxTokens=4")
	}

	s.Admit(1, 4)
	if s.Outstanding() != 1 {
		t.Errorf("Outstanding() = %d, want 1 after one admit", s.Outstanding())
	}
	if s.CanSubmit(1) {
		t.Errorf("CanSubmit(1) = true, want false once the token ceiling is saturated")
	}

	s.Complete(1)
	if s.Outstanding() != 0 {
		t.Errorf("Outstanding() = %d, want 0 after Complete", s.Outstanding())
	}
	if !s.CanSubmit(4) {
		t.Errorf("CanSubmit(4) = false, want true once the running task completed")
	}
}

func TestSchedulerRejectsOverTokenCeiling(t *testing.T) {
	cfg := config.NewConfig(".", ".", ".")
	cfg.MaxTokens = 2
	cfg.StaggerDelayMillis = 0

	profile := DefaultProfile()
	profile.BaseBytesPerToken = 1
	s := New(cfg, profile)
	if s.CanSubmit(3) {
		t.Errorf("CanSubmit(3) = true, want false when maxTokens=2")
	}
}
