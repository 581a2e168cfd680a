package mmip

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/xiangrui/mmip/internal/quant"
)

// Params is the codec's immutable set of physics and stage-quantization
// constants. Build one with DefaultParams or LoadParams; once built it
// cannot be mutated,
// satisfying the spec's "forbid mutation after decoder construction"
// requirement.
type Params struct {
	tau, kappa, alpha, eps float64
	lambda, c              float64
	stages                 []quant.StageParams
	sbQScale               int
	boneThreshold          uint16
	strictDequant          bool
}

// Tau, Kappa, Alpha, Eps are the attenuation_scale constants.
func (p *Params) Tau() float64   { return p.tau }
func (p *Params) Kappa() float64 { return p.kappa }
func (p *Params) Alpha() float64 { return p.alpha }
func (p *Params) Eps() float64   { return p.eps }

// Lambda, C are the noise_scale constants.
func (p *Params) Lambda() float64 { return p.lambda }
func (p *Params) C() float64      { return p.c }

// Stages returns the per-stage frequency-matrix parameters, in stage order.
func (p *Params) Stages() []quant.StageParams {
	out := make([]quant.StageParams, len(p.stages))
	copy(out, p.stages)
	return out
}

// SBQScale is the block-scale quantization factor (sb_qscale).
func (p *Params) SBQScale() int { return p.sbQScale }

// BoneThreshold is the default ROI pixel threshold.
func (p *Params) BoneThreshold() uint16 { return p.boneThreshold }

// StrictDequant reports whether the decoder should additionally apply the
// stage frequency matrix during dequantization, correcting the reference
// implementation's encode/decode asymmetry. Defaults to false so the
// default round-trip matches the reference codec exactly.
func (p *Params) StrictDequant() bool { return p.strictDequant }

// Option mutates a Params during construction.
type Option func(*Params)

// WithSBQScale overrides the block-scale quantization factor.
func WithSBQScale(v int) Option { return func(p *Params) { p.sbQScale = v } }

// WithBoneThreshold overrides the default ROI pixel threshold.
func WithBoneThreshold(v uint16) Option { return func(p *Params) { p.boneThreshold = v } }

// WithStrictDequant enables the corrected dequantization mode.
func WithStrictDequant(v bool) Option { return func(p *Params) { p.strictDequant = v } }

// DefaultParams returns the compile-time physics constants from the
// reference codec.
func DefaultParams(opts ...Option) *Params {
	p := &Params{
		tau:           9000.0,
		kappa:         1200.0,
		alpha:         1.5,
		eps:           1e-3,
		lambda:        0.8,
		c:             300.0,
		stages:        append([]quant.StageParams(nil), quant.DefaultStageParams...),
		sbQScale:      16,
		boneThreshold: 9000,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// yamlParams mirrors the subset of Params a config file may override.
type yamlParams struct {
	Tau           *float64 `yaml:"tau"`
	Kappa         *float64 `yaml:"kappa"`
	Alpha         *float64 `yaml:"alpha"`
	Eps           *float64 `yaml:"eps"`
	Lambda        *float64 `yaml:"lambda"`
	C             *float64 `yaml:"c"`
	SBQScale      *int     `yaml:"sb_qscale"`
	BoneThreshold *uint16  `yaml:"bone_threshold"`
	StrictDequant *bool    `yaml:"strict_dequant"`
}

// LoadParams reads a YAML config file and returns Params with any present
// fields overriding the compile-time defaults.
func LoadParams(path string) (*Params, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "mmip: read config")
	}
	var y yamlParams
	if err := yaml.Unmarshal(data, &y); err != nil {
		return nil, errors.Wrap(err, "mmip: parse config")
	}
	p := DefaultParams()
	if y.Tau != nil {
		p.tau = *y.Tau
	}
	if y.Kappa != nil {
		p.kappa = *y.Kappa
	}
	if y.Alpha != nil {
		p.alpha = *y.Alpha
	}
	if y.Eps != nil {
		p.eps = *y.Eps
	}
	if y.Lambda != nil {
		p.lambda = *y.Lambda
	}
	if y.C != nil {
		p.c = *y.C
	}
	if y.SBQScale != nil {
		p.sbQScale = *y.SBQScale
	}
	if y.BoneThreshold != nil {
		p.boneThreshold = *y.BoneThreshold
	}
	if y.StrictDequant != nil {
		p.strictDequant = *y.StrictDequant
	}
	return p, nil
}
