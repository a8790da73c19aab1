// Package scheduler admits segment-encode tasks against a token budget
// calibrated from the peak resident memory of a short sequential
// warm-up, pausing admissions whenever system memory runs short.
package scheduler

import (
	"sync"
	"time"

	"github.com/shirou/gopsutil/v4/mem"

	"github.com/five82/drapto/internal/config"
)

// reservedMemoryFraction is the scheduler's fixed memory reserve: a task
// is only admitted if, after it starts, this much of total system memory
// would still be free.
const reservedMemoryFraction = 0.2

// defaultBaseMemPerToken is used when warm-up produced no usable peak
// measurements at all.
const defaultBaseMemPerToken = 512 * 1024 * 1024

// Category is the memory-model resolution class of a segment. It is
// distinct from the CRF bucket: the bucket picks quality settings, the
// category prices a segment's token weight.
type Category int

const (
	CategorySDR Category = iota
	Category1080p
	Category4K
)

func (c Category) String() string {
	switch c {
	case Category1080p:
		return "1080p"
	case Category4K:
		return "4k"
	default:
		return "SDR"
	}
}

// CategoryForWidth maps a source width to its memory category.
func CategoryForWidth(width uint32) Category {
	switch {
	case width >= 3840:
		return Category4K
	case width >= 1920:
		return Category1080p
	default:
		return CategorySDR
	}
}

// Measurement is what one completed encode contributes to calibration:
// its category and the peak resident set of the encoder process.
type Measurement struct {
	Category     Category
	PeakRSSBytes uint64
}

// Profile is the calibrated memory model: the byte cost of one token and
// the token weight of each category.
type Profile struct {
	BaseBytesPerToken uint64
	Weights           map[Category]int
}

// DefaultProfile prices categories by rough pixel-count ratios; it is
// used until warm-up measurements produce better figures, and fills in
// weights for categories the warm-up never observed.
func DefaultProfile() Profile {
	return Profile{
		BaseBytesPerToken: defaultBaseMemPerToken,
		Weights: map[Category]int{
			CategorySDR:   1,
			Category1080p: 2,
			Category4K:    4,
		},
	}
}

// DeriveProfile builds a memory profile from warm-up measurements. The
// per-token base is the larger of the cheapest category's mean peak and
// a quarter of the single highest peak. Category weights are each category's mean peak divided by the base,
// floored at 1 for 1080p and 2 for 4k.
func DeriveProfile(measurements []Measurement) Profile {
	profile := DefaultProfile()

	sums := make(map[Category]uint64)
	counts := make(map[Category]int)
	var actualPeak uint64
	for _, m := range measurements {
		if m.PeakRSSBytes == 0 {
			continue
		}
		sums[m.Category] += m.PeakRSSBytes
		counts[m.Category]++
		if m.PeakRSSBytes > actualPeak {
			actualPeak = m.PeakRSSBytes
		}
	}
	if actualPeak == 0 {
		return profile
	}

	avg := make(map[Category]uint64)
	var minCatAvg uint64
	for cat, sum := range sums {
		avg[cat] = sum / uint64(counts[cat])
		if minCatAvg == 0 || avg[cat] < minCatAvg {
			minCatAvg = avg[cat]
		}
	}
	if minCatAvg == 0 {
		minCatAvg = defaultBaseMemPerToken
	}

	base := minCatAvg
	if quarter := actualPeak / 4; quarter > base {
		base = quarter
	}
	profile.BaseBytesPerToken = base

	if a, ok := avg[Category1080p]; ok {
		if w := int(a / base); w > 1 {
			profile.Weights[Category1080p] = w
		} else {
			profile.Weights[Category1080p] = 1
		}
	}
	if a, ok := avg[Category4K]; ok {
		if w := int(a / base); w > 2 {
			profile.Weights[Category4K] = w
		} else {
			profile.Weights[Category4K] = 2
		}
	}
	return profile
}

// Weight returns the token cost of a category under this profile.
func (p Profile) Weight(cat Category) int {
	if w, ok := p.Weights[cat]; ok && w > 0 {
		return w
	}
	return 1
}

type tracked struct {
	weight int
}

// Scheduler tracks in-flight token usage and decides whether a new
// task of a given weight can be admitted right now.
type Scheduler struct {
	profile               Profile
	maxTokens             int
	staggerDelay          time.Duration
	memoryPressurePercent float64

	mu      sync.Mutex
	running map[int]tracked
}

// New builds a Scheduler from configuration and a calibrated profile.
func New(cfg *config.Config, profile Profile) *Scheduler {
	return &Scheduler{
		profile:               profile,
		maxTokens:             cfg.MaxTokens,
		staggerDelay:          time.Duration(cfg.StaggerDelayMillis) * time.Millisecond,
		memoryPressurePercent: cfg.MemoryPressurePercent,
		running:               make(map[int]tracked),
	}
}

func (s *Scheduler) currentTokenUsageLocked() int {
	total := 0
	for _, t := range s.running {
		total += t.weight
	}
	return total
}

// CanSubmit reports whether a task of the given token weight can start
// now, honoring both the token ceiling and the memory reserve.
func (s *Scheduler) CanSubmit(weight int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.currentTokenUsageLocked()+weight > s.maxTokens {
		return false
	}

	vm, err := mem.VirtualMemory()
	if err != nil {
		return true // can't observe memory; fall back to token accounting alone
	}

	base := s.profile.BaseBytesPerToken
	estimated := uint64(weight) * base
	currentUsage := uint64(s.currentTokenUsageLocked()) * base
	targetAvailable := uint64(float64(vm.Total) * reservedMemoryFraction)

	if vm.Available < currentUsage+estimated {
		return false
	}
	return vm.Available-(currentUsage+estimated) > targetAvailable
}

// MemoryPressureHigh reports whether global memory usage has crossed
// the configured pause threshold.
func (s *Scheduler) MemoryPressureHigh() bool {
	vm, err := mem.VirtualMemory()
	if err != nil {
		return false
	}
	return vm.UsedPercent >= s.memoryPressurePercent
}

// Admit records a task as running and applies the stagger delay before
// the next submission is considered.
func (s *Scheduler) Admit(taskID, weight int) {
	s.mu.Lock()
	s.running[taskID] = tracked{weight: weight}
	s.mu.Unlock()
	if s.staggerDelay > 0 {
		time.Sleep(s.staggerDelay)
	}
}

// Complete removes a finished task from the running set.
func (s *Scheduler) Complete(taskID int) {
	s.mu.Lock()
	delete(s.running, taskID)
	s.mu.Unlock()
}

// Outstanding reports how many tasks are currently running.
func (s *Scheduler) Outstanding() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.running)
}
