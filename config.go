package contactsim

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config carries every tuning knob of the contact pipeline. Persisted across
// runs as YAML; missing files fall back to defaults.
type Config struct {
	// MaxBoundingBoxDim caps cluster growth during mesh preprocessing.
	MaxBoundingBoxDim float64 `yaml:"max_bounding_box_dim"`
	// MinBoundingBoxDim is the minimum per-axis half-extent of a cluster box.
	MinBoundingBoxDim float64 `yaml:"min_bounding_box_dim"`
	// BoundingBoxFF inflates cluster boxes in the broad phase to tolerate
	// numerically tight passes.
	BoundingBoxFF float64 `yaml:"bounding_box_ff"`
	// MaxTimeStep is the advisory upper bound on the host's step.
	MaxTimeStep float64 `yaml:"max_time_step"`
	// TimeSynchTol matches cached responses against repeated calls.
	TimeSynchTol float64 `yaml:"time_synch_tol"`
	// MaxPosError is the largest acceptable feature penetration; beyond it the
	// coordinator rejects the step via the sentinel response.
	MaxPosError float64 `yaml:"max_pos_error"`
	// SlipTolerance is the tangential speed below which a contact is treated
	// as sticking and no friction impulse is pumped.
	SlipTolerance float64 `yaml:"slip_tolerance"`
	// CollisionIntegrationStep is the RK4 step of the impulse ODE.
	CollisionIntegrationStep float64 `yaml:"collision_integration_step"`
	// SolverIterationCap bounds the impulse integration; the partial impulse
	// is used on hit.
	SolverIterationCap int `yaml:"solver_iteration_cap"`
	// SimTimeStep is the host's macro integration step, used to extrapolate
	// end-of-step kinematics at ingestion.
	SimTimeStep float64 `yaml:"sim_time_step"`
}

// DefaultConfig returns the standard knob settings.
func DefaultConfig() Config {
	return Config{
		MaxBoundingBoxDim:        1.0,
		MinBoundingBoxDim:        0.005,
		BoundingBoxFF:            1.0,
		MaxTimeStep:              0.001,
		TimeSynchTol:             1e-9,
		MaxPosError:              0.005,
		SlipTolerance:            1e-6,
		CollisionIntegrationStep: 1e-5,
		SolverIterationCap:       20_000_000,
		SimTimeStep:              0.001,
	}
}

// Validate rejects settings the pipeline cannot run with.
func (c Config) Validate() error {
	if c.MaxBoundingBoxDim <= 0 {
		return fmt.Errorf("config: max_bounding_box_dim must be positive")
	}
	if c.MinBoundingBoxDim <= 0 {
		return fmt.Errorf("config: min_bounding_box_dim must be positive")
	}
	if c.CollisionIntegrationStep <= 0 {
		return fmt.Errorf("config: collision_integration_step must be positive")
	}
	if c.SolverIterationCap <= 0 {
		return fmt.Errorf("config: solver_iteration_cap must be positive")
	}
	if c.MaxPosError <= 0 {
		return fmt.Errorf("config: max_pos_error must be positive")
	}
	if c.SimTimeStep <= 0 {
		return fmt.Errorf("config: sim_time_step must be positive")
	}
	return nil
}

// LoadConfig reads a config file. A missing or unreadable file yields
// defaults without error; a malformed file is reported.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return DefaultConfig(), nil
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return DefaultConfig(), fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return DefaultConfig(), err
	}
	return cfg, nil
}

// SaveConfig writes the config as YAML, creating the directory if needed.
func SaveConfig(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
