// Package config loads the YAML experiment configuration. Key names follow
// the conventional uppercase layout of segmentation training configs, so
// existing experiment files work unchanged.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is one experiment: dataset location, preprocessing, network size,
// and the optimization schedule.
type Config struct {
	Dataset string `yaml:"DATASET"`
	Root    string `yaml:"ROOT"`
	Split   struct {
		Train string `yaml:"TRAIN"`
	} `yaml:"SPLIT"`
	Image struct {
		Size struct {
			Train int `yaml:"TRAIN"`
		} `yaml:"SIZE"`
		Mean struct {
			R float32 `yaml:"R"`
			G float32 `yaml:"G"`
			B float32 `yaml:"B"`
		} `yaml:"MEAN"`
	} `yaml:"IMAGE"`
	WarpImage  bool      `yaml:"WARP_IMAGE"`
	Scales     []float64 `yaml:"SCALES"`
	RandomFlip bool      `yaml:"RANDOM_FLIP"`
	BatchSize  struct {
		Train int `yaml:"TRAIN"`
	} `yaml:"BATCH_SIZE"`
	NumWorkers int `yaml:"NUM_WORKERS"`

	NClasses    int    `yaml:"N_CLASSES"`
	IgnoreLabel int32  `yaml:"IGNORE_LABEL"`
	InitModel   string `yaml:"INIT_MODEL"`

	LR          float64 `yaml:"LR"`
	WeightDecay float64 `yaml:"WEIGHT_DECAY"`
	Momentum    float64 `yaml:"MOMENTUM"`
	PolyPower   float64 `yaml:"POLY_POWER"`
	LRDecay     int     `yaml:"LR_DECAY"`

	IterMax  int `yaml:"ITER_MAX"`
	IterSize int `yaml:"ITER_SIZE"`
	IterTB   int `yaml:"ITER_TB"`
	IterSave int `yaml:"ITER_SAVE"`

	LogDir  string `yaml:"LOG_DIR"`
	SaveDir string `yaml:"SAVE_DIR"`
}

// Load reads and validates a configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %v", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %v", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %v", path, err)
	}
	return &cfg, nil
}

// Validate rejects configurations the training loop cannot run. Every check
// fails fast at startup rather than mid-run.
func (c *Config) Validate() error {
	if c.Root == "" {
		return fmt.Errorf("ROOT is required")
	}
	if c.Split.Train == "" {
		return fmt.Errorf("SPLIT.TRAIN is required")
	}
	if c.Image.Size.Train <= 0 {
		return fmt.Errorf("IMAGE.SIZE.TRAIN must be positive, got %d", c.Image.Size.Train)
	}
	if c.BatchSize.Train <= 0 {
		return fmt.Errorf("BATCH_SIZE.TRAIN must be positive, got %d", c.BatchSize.Train)
	}
	if c.NClasses <= 0 {
		return fmt.Errorf("N_CLASSES must be positive, got %d", c.NClasses)
	}
	if c.LR < 0 {
		return fmt.Errorf("LR cannot be negative: %f", c.LR)
	}
	if c.WeightDecay < 0 {
		return fmt.Errorf("WEIGHT_DECAY cannot be negative: %f", c.WeightDecay)
	}
	if c.Momentum < 0 || c.Momentum > 1 {
		return fmt.Errorf("MOMENTUM must be in [0, 1], got %f", c.Momentum)
	}
	if c.IterMax <= 0 {
		return fmt.Errorf("ITER_MAX must be positive, got %d", c.IterMax)
	}
	if c.IterSize <= 0 {
		return fmt.Errorf("ITER_SIZE must be positive, got %d", c.IterSize)
	}
	if c.IterTB <= 0 {
		return fmt.Errorf("ITER_TB must be positive, got %d", c.IterTB)
	}
	if c.IterSave <= 0 {
		return fmt.Errorf("ITER_SAVE must be positive, got %d", c.IterSave)
	}
	if c.LRDecay <= 0 {
		return fmt.Errorf("LR_DECAY must be positive, got %d", c.LRDecay)
	}
	for _, s := range c.Scales {
		if s <= 0 {
			return fmt.Errorf("SCALES entries must be positive, got %f", s)
		}
	}
	if c.LogDir == "" {
		return fmt.Errorf("LOG_DIR is required")
	}
	if c.SaveDir == "" {
		return fmt.Errorf("SAVE_DIR is required")
	}
	return nil
}
