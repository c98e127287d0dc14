package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"

	"github.com/samcharles93/bitdecode/internal/bitnet"
	"github.com/samcharles93/bitdecode/internal/inference"
)

// Config represents the bitdecode configuration file
// (~/.config/bitdecode/config.yaml). Scalar fields are pointers so "not set"
// differs from a zero value. Dims starts from bitnet.DefaultDims and only
// the keys present in the file override it.
type Config struct {
	ModelPath   *string  `yaml:"model_path"`
	PromptPath  *string  `yaml:"prompt_path"`
	OutputPath  *string  `yaml:"output_path"`
	MaxLength   *int     `yaml:"max_length"`
	Temperature *float64 `yaml:"temperature"`
	TopK        *int     `yaml:"top_k"`
	Seed        *int64   `yaml:"seed"`
	StopTokens  []int    `yaml:"stop_tokens"`

	Dims bitnet.Dims `yaml:"dims"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	ServerAddress string `yaml:"server_address"`
}

func configPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "bitdecode", "config.yaml")
}

// LoadConfig reads the config file at path, or the default location when
// path is empty. A missing default file yields the defaults; a missing
// explicit file is an error.
func LoadConfig(path string) (Config, error) {
	cfg := Config{Dims: bitnet.DefaultDims()}
	explicit := path != ""
	if !explicit {
		path = configPath()
		if path == "" {
			return cfg, nil
		}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Dims.Validate(); err != nil {
		return cfg, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// applyRunConfig applies config file values to run when the corresponding
// CLI flag was not explicitly set.
func applyRunConfig(c *cli.Command, cfg Config, run *inference.Config) {
	if cfg.ModelPath != nil && !c.IsSet("model") {
		run.ModelPath = *cfg.ModelPath
	}
	if cfg.PromptPath != nil && !c.IsSet("prompt") {
		run.PromptPath = *cfg.PromptPath
	}
	if cfg.OutputPath != nil && !c.IsSet("output") {
		run.OutputPath = *cfg.OutputPath
	}
	applyGenerationConfig(c, cfg, run)
}

func applyGenerationConfig(c *cli.Command, cfg Config, run *inference.Config) {
	if cfg.MaxLength != nil && !c.IsSet("max-length") {
		run.MaxLength = *cfg.MaxLength
	}
	if cfg.Temperature != nil && !c.IsSet("temperature") {
		run.Temperature = *cfg.Temperature
	}
	if cfg.TopK != nil && !c.IsSet("top-k") {
		run.TopK = *cfg.TopK
	}
	if cfg.Seed != nil && !c.IsSet("seed") {
		run.Seed = *cfg.Seed
	}
	if cfg.StopTokens != nil && !c.IsSet("stop-token") {
		run.StopTokens = cfg.StopTokens
	}
}

// applyServeConfig applies config file values to serve.
func applyServeConfig(c *cli.Command, cfg Config, run *inference.Config, addr *string) {
	if cfg.ModelPath != nil && !c.IsSet("model") {
		run.ModelPath = *cfg.ModelPath
	}
	applyGenerationConfig(c, cfg, run)
	if cfg.ServerAddress != "" && !c.IsSet("addr") {
		*addr = cfg.ServerAddress
	}
}

func applyLoggingConfig(c *cli.Command, cfg Config) {
	if cfg.LogLevel != "" && !c.IsSet("log-level") {
		logLevel = cfg.LogLevel
	}
	if cfg.LogFormat != "" && !c.IsSet("log-format") {
		logFormat = cfg.LogFormat
	}
}
