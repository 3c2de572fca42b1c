package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/lcsgmoraes-droid/Sistema-Pet-sub000/internal/scoring"
)

// Config holds the runtime settings of the server and the CLI.
type Config struct {
	Port         string             `yaml:"port"`
	DBPath       string             `yaml:"db_path"`
	TemplatesDir string             `yaml:"templates_dir"`
	SeedPath     string             `yaml:"seed_path"`
	LogLevel     string             `yaml:"log_level"`
	LogFormat    string             `yaml:"log_format"`
	Confidence   scoring.Thresholds `yaml:"confidence"`
}

// Load reads configuration in three layers: built-in defaults, the optional
// YAML file named by RECON_CONFIG, then environment variables. A .env file in
// the working directory is loaded first when present.
func Load() (Config, error) {
	if err := godotenv.Load(getenvDefault("ENV_FILE", ".env")); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load env file: %w", err)
	}

	cfg := Config{
		Port:         "8080",
		DBPath:       "./cardrecon.db",
		TemplatesDir: "./testdata/templates",
		LogLevel:     "info",
		LogFormat:    "json",
		Confidence:   scoring.DefaultThresholds(),
	}

	if path := os.Getenv("RECON_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.Port = getenvDefault("PORT", cfg.Port)
	cfg.DBPath = getenvDefault("DB_PATH", cfg.DBPath)
	cfg.TemplatesDir = getenvDefault("TEMPLATES_DIR", cfg.TemplatesDir)
	cfg.SeedPath = getenvDefault("SEED_PATH", cfg.SeedPath)
	cfg.LogLevel = getenvDefault("LOG_LEVEL", cfg.LogLevel)
	cfg.LogFormat = getenvDefault("LOG_FORMAT", cfg.LogFormat)

	var err error
	if cfg.Confidence.HighPct, err = getenvFloatDefault("CONFIDENCE_HIGH_PCT", cfg.Confidence.HighPct); err != nil {
		return cfg, err
	}
	if cfg.Confidence.MediumPct, err = getenvFloatDefault("CONFIDENCE_MEDIUM_PCT", cfg.Confidence.MediumPct); err != nil {
		return cfg, err
	}

	if _, err := scoring.NewScorer(cfg.Confidence); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func getenvDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvFloatDefault(key string, fallback float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback, fmt.Errorf("%s: %w", key, err)
	}
	return f, nil
}
