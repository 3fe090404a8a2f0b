package simulation

import (
	"github.com/nvandessel/tendril/internal/graph"
	"github.com/nvandessel/tendril/internal/utils"
)

// Loop modes.
const (
	ModePhased = "phased"
	ModeWeight = "weight"
)

// Config holds the tunable parameters of a simulation loop. Defaults match
// the built-in sample programs.
type Config struct {
	// Mode selects the loop: "phased" runs PREDICT/SLOPE/LEARN/RESET,
	// "weight" only redistributes the direction attribute.
	Mode string `yaml:"mode" json:"mode" validate:"oneof=phased weight"`

	// PredictionDelay is the length in ticks of each of the four long
	// phases. The full period is 4·PredictionDelay+1 ticks. Default: 10.
	PredictionDelay int `yaml:"prediction_delay" json:"prediction_delay" validate:"gt=0"`

	// TransferRate is the fraction of weight moved per LEARN tick. Default: 0.5.
	TransferRate float64 `yaml:"transfer_rate" json:"transfer_rate" validate:"gte=0,lte=1"`

	// CycleAspect splits TransferRate between the slope-directed share
	// (1−aspect) and the weight-directed shares (aspect). Default: 0.1.
	CycleAspect float64 `yaml:"cycle_aspect" json:"cycle_aspect" validate:"gte=0,lte=1"`

	// CycleLeak is the part of the weight-directed share spread evenly. Default: 0.1.
	CycleLeak float64 `yaml:"cycle_leak" json:"cycle_leak" validate:"gte=0,lte=1"`

	// ValueDecay and SlopeDecay are the fractions lost per tick. Default: 0.2.
	ValueDecay float64 `yaml:"value_decay" json:"value_decay" validate:"gte=0,lte=1"`
	SlopeDecay float64 `yaml:"slope_decay" json:"slope_decay" validate:"gte=0,lte=1"`

	// Amplitude sets the amplifier range (1, 1+Amplitude]. Default: 0.1.
	Amplitude float64 `yaml:"amplitude" json:"amplitude" validate:"gt=0"`

	// Activate names the squashing function. Default: "tanh".
	Activate string `yaml:"activate" json:"activate" validate:"oneof=tanh sigmoid"`

	// Amplify names the error-to-multiplier function. Default: "mse".
	Amplify string `yaml:"amplify" json:"amplify" validate:"oneof=mse cosine"`

	// LeakRate is the evenly spread part of TransferRate in weight mode.
	// Default: 0.1.
	LeakRate float64 `yaml:"leak_rate" json:"leak_rate" validate:"gte=0,lte=1"`

	// SignGate makes the output correction favor outputs whose value agrees
	// in sign with their derivative.
	SignGate bool `yaml:"sign_gate" json:"sign_gate"`
}

// DefaultConfig returns the default simulation configuration.
func DefaultConfig() Config {
	return Config{
		Mode:            ModePhased,
		PredictionDelay: 10,
		TransferRate:    0.5,
		CycleAspect:     0.1,
		CycleLeak:       0.1,
		ValueDecay:      0.2,
		SlopeDecay:      0.2,
		Amplitude:       0.1,
		Activate:        "tanh",
		Amplify:         "mse",
		LeakRate:        0.1,
	}
}

// Validate checks every field. Any violation is a *graph.ConfigError.
func (c Config) Validate() error {
	if err := utils.ValidateStruct(c); err != nil {
		return graph.NewConfigError("validate simulation config", err)
	}
	return nil
}
