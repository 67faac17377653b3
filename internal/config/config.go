// Package config provides configuration loading for mponc.
// It supports loading from YAML files and environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/mlim70/MPONC-Streamlined/internal/logging"
	"github.com/mlim70/MPONC-Streamlined/internal/world"
)

// Config contains all mponc settings.
type Config struct {
	Simulation SimulationConfig `yaml:"simulation"`
	Data       DataConfig       `yaml:"data"`
	Generator  GeneratorConfig  `yaml:"generator"`
	Storage    StorageConfig    `yaml:"storage"`
	API        APIConfig        `yaml:"api"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// SimulationConfig controls the parameter sweep.
type SimulationConfig struct {
	Rho               []int     `yaml:"rho"`
	Alpha             []float64 `yaml:"alpha"`
	Steps             int       `yaml:"steps"`
	Agents            int       `yaml:"agents"`
	BenchmarkInterval int       `yaml:"benchmark_interval"`
	Benchmarks        []int     `yaml:"benchmarks,omitempty"` // Overrides the interval when set
	LearningRate      float64   `yaml:"learning_rate"`
	CarOwnershipRate  float64   `yaml:"car_ownership_rate"`
	TransitFactor     float64   `yaml:"transit_factor"`
	SeedOffset        int64     `yaml:"seed_offset"`
	Workers           int       `yaml:"workers"` // 0 = one per CPU
}

// DataConfig locates the input bundle.
type DataConfig struct {
	Dir       string `yaml:"dir"`
	Synthetic bool   `yaml:"synthetic"` // Generate a city instead of loading Dir
	Normalize bool   `yaml:"normalize"` // Normalise raw distances on load
}

// GeneratorConfig controls the synthetic city and its trip model.
type GeneratorConfig struct {
	world.GenConfig `yaml:",inline"`
	BaseTrips       float64 `yaml:"base_trips"`
}

// StorageConfig controls snapshot output.
type StorageConfig struct {
	Path   string `yaml:"path"`
	CSVDir string `yaml:"csv_dir"`
	Key    string `yaml:"key"` // File name prefix for CSV exports
}

// APIConfig controls the read-only HTTP server.
type APIConfig struct {
	Port int `yaml:"port"`
}

// LoggingConfig sets log verbosity.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// Default returns a Config with the standard sweep.
func Default() *Config {
	return &Config{
		Simulation: SimulationConfig{
			Rho:               []int{1, 2, 3, 4, 5},
			Alpha:             []float64{0.25, 0.5, 0.75},
			Steps:             500,
			Agents:            1000,
			BenchmarkInterval: 100,
			LearningRate:      1e-3,
			CarOwnershipRate:  0.7,
			TransitFactor:     1.5,
		},
		Data: DataConfig{
			Dir:       "data",
			Normalize: true,
		},
		Generator: GeneratorConfig{
			GenConfig: world.DefaultGenConfig(),
			BaseTrips: 100,
		},
		Storage: StorageConfig{
			Path:   "data/mponc.db",
			CSVDir: "output",
			Key:    "mponc",
		},
		API: APIConfig{
			Port: 8080,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load builds the configuration: defaults, then path if non-empty, then
// environment variables.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		fileCfg, err := LoadFile(path)
		if err != nil {
			return nil, fmt.Errorf("loading config file: %w", err)
		}
		cfg = fileCfg
	}
	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile loads configuration from a YAML file over the defaults.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	return cfg, nil
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	var errs []error
	s := c.Simulation
	if len(s.Rho) == 0 || len(s.Alpha) == 0 {
		errs = append(errs, errors.New("simulation.rho and simulation.alpha must be non-empty"))
	}
	for _, r := range s.Rho {
		if r < 1 {
			errs = append(errs, fmt.Errorf("simulation.rho values must be >= 1, got %d", r))
		}
	}
	for _, a := range s.Alpha {
		if a < 0 || a > 1 {
			errs = append(errs, fmt.Errorf("simulation.alpha values must be in [0,1], got %g", a))
		}
	}
	if s.Steps < 1 {
		errs = append(errs, fmt.Errorf("simulation.steps must be positive, got %d", s.Steps))
	}
	if s.Agents < 1 {
		errs = append(errs, fmt.Errorf("simulation.agents must be positive, got %d", s.Agents))
	}
	if s.BenchmarkInterval < 0 {
		errs = append(errs, fmt.Errorf("simulation.benchmark_interval must be non-negative, got %d", s.BenchmarkInterval))
	}
	if s.LearningRate <= 0 {
		errs = append(errs, fmt.Errorf("simulation.learning_rate must be positive, got %g", s.LearningRate))
	}
	if s.CarOwnershipRate < 0 || s.CarOwnershipRate > 1 {
		errs = append(errs, fmt.Errorf("simulation.car_ownership_rate must be in [0,1], got %g", s.CarOwnershipRate))
	}
	if s.TransitFactor <= 0 {
		errs = append(errs, fmt.Errorf("simulation.transit_factor must be positive, got %g", s.TransitFactor))
	}
	if s.Workers < 0 {
		errs = append(errs, fmt.Errorf("simulation.workers must be non-negative, got %d", s.Workers))
	}
	if !c.Data.Synthetic && c.Data.Dir == "" {
		errs = append(errs, errors.New("data.dir is required unless data.synthetic is set"))
	}
	if c.Generator.Rows < 1 || c.Generator.Cols < 1 {
		errs = append(errs, fmt.Errorf("generator grid must be positive, got %dx%d", c.Generator.Rows, c.Generator.Cols))
	}
	if c.API.Port < 0 || c.API.Port > 65535 {
		errs = append(errs, fmt.Errorf("api.port out of range: %d", c.API.Port))
	}
	if !logging.ValidLevel(c.Logging.Level) {
		errs = append(errs, fmt.Errorf("invalid log level: %s (valid: trace, debug, info, warn, error)", c.Logging.Level))
	}
	return errors.Join(errs...)
}

// applyEnvOverrides applies environment variable overrides to the config.
func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv("MPONC_DB_PATH"); v != "" {
		cfg.Storage.Path = v
	}
	if v := os.Getenv("MPONC_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("MPONC_DATA_DIR"); v != "" {
		cfg.Data.Dir = v
	}
	if v := os.Getenv("MPONC_WORKERS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("MPONC_WORKERS: %w", err)
		}
		cfg.Simulation.Workers = n
	}
	return nil
}
