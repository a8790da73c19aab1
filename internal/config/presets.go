package config

import "strings"

// Preset is a named group of encoder defaults a user can apply in one
// step instead of setting individual CRF/SVT-AV1 flags by hand.
type Preset string

const (
	// PresetGrain favors fidelity on grainy/film sources: lower CRF,
	// slower SVT-AV1 preset.
	PresetGrain Preset = "grain"
	// PresetClean is the balanced default for typical clean-source content.
	PresetClean Preset = "clean"
	// PresetQuick trades quality for speed: higher CRF, faster preset.
	PresetQuick Preset = "quick"
)

// PresetValues holds the concrete settings a Preset expands to.
type PresetValues struct {
	CRFSD, CRFHD, CRFUHD uint8
	SVTAV1Preset         uint8
	SVTAV1Tune           uint8
	SVTAV1ACBias         float32
}

// GetPresetValues returns the concrete settings for a named preset.
func GetPresetValues(p Preset) PresetValues {
	switch p {
	case PresetGrain:
		return PresetValues{CRFSD: 22, CRFHD: 22, CRFUHD: 26, SVTAV1Preset: 4, SVTAV1Tune: 0, SVTAV1ACBias: 0.1}
	case PresetQuick:
		return PresetValues{CRFSD: 28, CRFHD: 28, CRFUHD: 32, SVTAV1Preset: 8, SVTAV1Tune: 0, SVTAV1ACBias: 0.1}
	default: // PresetClean
		return PresetValues{CRFSD: DefaultCRFSD, CRFHD: DefaultCRFHD, CRFUHD: DefaultCRFUHD, SVTAV1Preset: DefaultSVTAV1Preset, SVTAV1Tune: DefaultSVTAV1Tune, SVTAV1ACBias: DefaultSVTAV1ACBias}
	}
}

// ParsePreset converts a preset name to a Preset value, case-insensitively.
func ParsePreset(s string) (Preset, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "grain":
		return PresetGrain, nil
	case "clean":
		return PresetClean, nil
	case "quick":
		return PresetQuick, nil
	default:
		return "", ErrInvalidPreset
	}
}

// ApplyPreset overwrites the CRF and SVT-AV1 fields this preset governs
// and records the chosen preset on the config for later reporting.
func (c *Config) ApplyPreset(p Preset) {
	values := GetPresetValues(p)
	c.CRFSD = values.CRFSD
	c.CRFHD = values.CRFHD
	c.CRFUHD = values.CRFUHD
	c.SVTAV1Preset = values.SVTAV1Preset
	c.SVTAV1Tune = values.SVTAV1Tune
	c.SVTAV1ACBias = values.SVTAV1ACBias
	c.DraptoPreset = &p
}
