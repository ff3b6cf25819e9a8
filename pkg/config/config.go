// Package config loads training settings from the environment and
// accelerator overrides from YAML files.
package config

import (
	"github.com/kelseyhightower/envconfig"
)

// Settings are the environment-driven knobs for a training run. Callers
// translate them into trainer.Params alongside their model, optimizer and
// data loader.
type Settings struct {
	OutputDir       string `envconfig:"OUTPUT_DIR" default:"./output"`
	Epochs          int    `envconfig:"EPOCHS" default:"1"`
	MaxSteps        int    `envconfig:"MAX_STEPS" default:"0"` // 0 means unbounded
	GradAccum       int    `envconfig:"GRAD_ACCUM" default:"1"`
	CheckpointEvery int    `envconfig:"CHECKPOINT_EVERY" default:"1000"`
	LoadCheckpoint  bool   `envconfig:"LOAD_CHECKPOINT" default:"false"`
	Seed            uint64 `envconfig:"SEED" default:"0"` // 0 means unseeded
	UseScheduler    bool   `envconfig:"USE_SCHEDULER" default:"true"`
	LogLevel        string `envconfig:"LOG_LEVEL" default:"info"`
}

// LoadSettings reads Settings from DITTY_-prefixed environment variables.
func LoadSettings() (Settings, error) {
	var cfg Settings
	if err := envconfig.Process("ditty", &cfg); err != nil {
		return Settings{}, err
	}
	return cfg, nil
}
