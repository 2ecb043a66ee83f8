// Package config loads the YAML configuration shared by both front-ends.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"

	"spacepredict/logger"
	"spacepredict/ml"
)

const envPrefix = "SPACEPREDICT_"

type Config struct {
	Model struct {
		Type  string `yaml:"type"`
		Path  string `yaml:"path"`
		Watch bool   `yaml:"watch"`
	} `yaml:"model"`
	Labels struct {
		// Path overrides the embedded label asset.
		Path string `yaml:"path"`
	} `yaml:"labels"`
	Http struct {
		Port           int           `yaml:"port"`
		Timeout        time.Duration `yaml:"timeout"`
		AllowedOrigins []string      `yaml:"allowed_origins"`
	} `yaml:"http"`
	Journal struct {
		Enabled bool   `yaml:"enabled"`
		Path    string `yaml:"path"`
	} `yaml:"journal"`
	Cache struct {
		Size int `yaml:"size"`
	} `yaml:"cache"`
	Feed struct {
		Enabled bool `yaml:"enabled"`
	} `yaml:"feed"`
	Log logger.Config `yaml:"log"`
}

func Default() *Config {
	cfg := &Config{}
	cfg.Model.Type = ml.ModelTypeCatBoostJSON
	cfg.Model.Path = "models/catboost_model.json"
	cfg.Http.Port = 8501
	cfg.Http.Timeout = 30 * time.Second
	cfg.Http.AllowedOrigins = []string{"*"}
	cfg.Journal.Path = "data/predictions.db"
	cfg.Cache.Size = 1024
	cfg.Log.Level = "info"
	cfg.Log.Format = "console"
	return cfg
}

// Load reads path (a missing file means defaults), an optional .env file
// next to the working directory, and SPACEPREDICT_* overrides.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := Default()
	if path != "" {
		file, err := os.Open(path)
		switch {
		case err == nil:
			defer file.Close()
			if err := yaml.NewDecoder(file).Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
				return nil, fmt.Errorf("decode %s: %w", path, err)
			}
		case errors.Is(err, os.ErrNotExist):
		default:
			return nil, err
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	applyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	if v, ok := lookup("MODEL_TYPE"); ok {
		cfg.Model.Type = v
	}
	if v, ok := lookup("MODEL_PATH"); ok {
		cfg.Model.Path = v
	}
	if v, ok := lookup("LABELS_PATH"); ok {
		cfg.Labels.Path = v
	}
	if v, ok := lookup("LOG_LEVEL"); ok {
		cfg.Log.Level = v
	}
	if v, ok := lookup("JOURNAL_PATH"); ok {
		cfg.Journal.Path = v
	}
	if v, ok := lookup("HTTP_PORT"); ok {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%sHTTP_PORT: %w", envPrefix, err)
		}
		cfg.Http.Port = port
	}
	if v, ok := lookup("JOURNAL_ENABLED"); ok {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%sJOURNAL_ENABLED: %w", envPrefix, err)
		}
		cfg.Journal.Enabled = enabled
	}
	return nil
}

func lookup(key string) (string, bool) {
	v, ok := os.LookupEnv(envPrefix + key)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

func applyDefaults(cfg *Config) {
	def := Default()
	if cfg.Model.Type == "" {
		cfg.Model.Type = def.Model.Type
	}
	if cfg.Http.Port == 0 {
		cfg.Http.Port = def.Http.Port
	}
	if cfg.Http.Timeout <= 0 {
		cfg.Http.Timeout = def.Http.Timeout
	}
	if len(cfg.Http.AllowedOrigins) == 0 {
		cfg.Http.AllowedOrigins = def.Http.AllowedOrigins
	}
	if cfg.Journal.Path == "" {
		cfg.Journal.Path = def.Journal.Path
	}
	if cfg.Cache.Size < 0 {
		cfg.Cache.Size = 0
	}
}

func (c *Config) Validate() error {
	if c.Model.Path == "" {
		return errors.New("model.path is required")
	}
	switch c.Model.Type {
	case ml.ModelTypeCatBoostJSON, ml.ModelTypeDecisionTree:
	default:
		return fmt.Errorf("model.type %q is not supported", c.Model.Type)
	}
	if c.Http.Port <= 0 || c.Http.Port > 65535 {
		return fmt.Errorf("http.port %d out of range", c.Http.Port)
	}
	return nil
}
