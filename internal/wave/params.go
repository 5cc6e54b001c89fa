package wave

import "fmt"

const (
	DefaultGravity         = 9.81 // m/s^2
	DefaultMinAcceleration = 0.4  // m/s^2 (empirical)
	DefaultMinWavelength   = 5    // m
	DefaultMaxWavelength   = 300  // m
	DefaultMinAccuracy     = 5.0  // m
)

// Params holds the tunable constants of the pipeline.
type Params struct {
	Gravity float64
	// MinAcceleration is the noise floor below which the buoy is considered
	// stationary.
	MinAcceleration float64
	MinWavelength   int
	MaxWavelength   int
	// MinAccuracy is the largest accepted |candidate-n| in the wavelength search.
	MinAccuracy float64
}

func DefaultParams() Params {
	return Params{
		Gravity:         DefaultGravity,
		MinAcceleration: DefaultMinAcceleration,
		MinWavelength:   DefaultMinWavelength,
		MaxWavelength:   DefaultMaxWavelength,
		MinAccuracy:     DefaultMinAccuracy,
	}
}

func (p Params) Validate() error {
	if p.Gravity <= 0 {
		return fmt.Errorf("gravity must be > 0")
	}
	if p.MinAcceleration < 0 {
		return fmt.Errorf("min acceleration must be >= 0")
	}
	if p.MinWavelength <= 0 {
		return fmt.Errorf("min wavelength must be > 0")
	}
	if p.MaxWavelength < p.MinWavelength {
		return fmt.Errorf("max wavelength must be >= min wavelength")
	}
	if p.MinAccuracy <= 0 {
		return fmt.Errorf("min accuracy must be > 0")
	}
	return nil
}
