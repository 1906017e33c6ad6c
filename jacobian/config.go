package jacobian

import (
	"strings"

	"github.com/pkg/errors"

	"go.viam.com/jacobik/utils"
)

// UpdateMode selects the algorithm CalcDeltaThetas uses to turn effector displacements into joint changes.
type UpdateMode int

const (
	// Undefined computes nothing; CalcDeltaThetas zeroes the joint changes and returns an error.
	Undefined UpdateMode = iota
	// JacobianTranspose uses the transpose of the Jacobian with an optimal step length.
	JacobianTranspose
	// PseudoInverse uses the Moore-Penrose pseudoinverse with small singular values dropped.
	PseudoInverse
	// DLS is damped least squares.
	DLS
	// SDLS is selectively damped least squares.
	SDLS
)

var modeNames = map[UpdateMode]string{
	Undefined:         "undefined",
	JacobianTranspose: "transpose",
	PseudoInverse:     "pseudoinverse",
	DLS:               "dls",
	SDLS:              "sdls",
}

// Modes lists every usable update mode.
var Modes = []UpdateMode{JacobianTranspose, PseudoInverse, DLS, SDLS}

func (m UpdateMode) String() string {
	if name, ok := modeNames[m]; ok {
		return name
	}
	return "unknown"
}

// ParseUpdateMode converts a mode name, as printed by String, back into an UpdateMode.
func ParseUpdateMode(name string) (UpdateMode, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	switch name {
	case "jacobian_transpose", "jt":
		return JacobianTranspose, nil
	case "pinv":
		return PseudoInverse, nil
	}
	for mode, modeName := range modeNames {
		if mode != Undefined && modeName == name {
			return mode, nil
		}
	}
	return Undefined, errors.Errorf("unknown update mode %q", name)
}

// MarshalText encodes the mode by name.
func (m UpdateMode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText decodes a mode name.
func (m *UpdateMode) UnmarshalText(text []byte) error {
	mode, err := ParseUpdateMode(string(text))
	if err != nil {
		return err
	}
	*m = mode
	return nil
}

// ClampMode selects how far a target may be from its effector before the displacement is shortened.
type ClampMode int

const (
	// ClampAdaptive grows the clamp by however much the effector moved away from its target on the last step.
	ClampAdaptive ClampMode = iota
	// ClampFixed always uses MaxTargetDist.
	ClampFixed
)

// Config holds the tuning parameters for a Jacobian. Angles are in radians.
type Config struct {
	DampingLambda                float64   `json:"damping_lambda"`
	PseudoInverseThresholdFactor float64   `json:"pseudoinverse_threshold_factor"`
	MaxAngleJtranspose           float64   `json:"max_angle_jtranspose"`
	MaxAnglePseudoinverse        float64   `json:"max_angle_pseudoinverse"`
	MaxAngleDLS                  float64   `json:"max_angle_dls"`
	MaxAngleSDLS                 float64   `json:"max_angle_sdls"`
	BaseMaxTargetDist            float64   `json:"base_max_target_dist"`
	MaxTargetDist                float64   `json:"max_target_dist"`
	Clamp                        ClampMode `json:"clamp"`
}

// NewDefaultConfig returns the standard tuning.
func NewDefaultConfig() Config {
	return Config{
		DampingLambda:                0.6,
		PseudoInverseThresholdFactor: 0.01,
		MaxAngleJtranspose:           utils.DegToRad(30),
		MaxAnglePseudoinverse:        utils.DegToRad(5),
		MaxAngleDLS:                  utils.DegToRad(45),
		MaxAngleSDLS:                 utils.DegToRad(45),
		BaseMaxTargetDist:            0.4,
		MaxTargetDist:                0.4,
		Clamp:                        ClampAdaptive,
	}
}

// Validate ensures all parts of the config are valid.
func (cfg *Config) Validate() error {
	if cfg.DampingLambda < 0 {
		return errors.Errorf("damping_lambda must be non-negative, got %v", cfg.DampingLambda)
	}
	if cfg.PseudoInverseThresholdFactor < 0 || cfg.PseudoInverseThresholdFactor >= 1 {
		return errors.Errorf("pseudoinverse_threshold_factor must be in [0, 1), got %v", cfg.PseudoInverseThresholdFactor)
	}
	for name, v := range map[string]float64{
		"max_angle_jtranspose":    cfg.MaxAngleJtranspose,
		"max_angle_pseudoinverse": cfg.MaxAnglePseudoinverse,
		"max_angle_dls":           cfg.MaxAngleDLS,
		"max_angle_sdls":          cfg.MaxAngleSDLS,
		"base_max_target_dist":    cfg.BaseMaxTargetDist,
		"max_target_dist":         cfg.MaxTargetDist,
	} {
		if v <= 0 {
			return errors.Errorf("%s must be positive, got %v", name, v)
		}
	}
	if cfg.Clamp != ClampAdaptive && cfg.Clamp != ClampFixed {
		return errors.Errorf("unknown clamp mode %d", cfg.Clamp)
	}
	return nil
}
