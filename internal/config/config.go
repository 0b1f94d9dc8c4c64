// Package config loads run settings for the catalog extractor.
//
// Settings are layered: built-in defaults, then an optional YAML file, then
// CATALOG_* environment variables (after loading an optional .env file).
// Command-line flags are applied on top by the cli package.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/pfrederiksen/course-catalog/internal/logger"
	"github.com/pfrederiksen/course-catalog/internal/scraper"
)

// EnvPrefix is prepended to every environment variable name.
const EnvPrefix = "CATALOG"

// DefaultDepartments are queried when no department list is configured.
var DefaultDepartments = []string{
	"ARTSTUDI", "ENGR", "SOC", "SBIO", "GENE", "BIOC", "PSYCH", "STATS",
	"CME", "MS&E", "ME", "COMM", "EE", "CS", "APPPHYS", "BIOE",
}

// Config holds the settings for one extraction run.
type Config struct {
	Departments []string      `yaml:"departments" split_words:"true"`
	Programs    string        `yaml:"programs" split_words:"true"`
	Output      string        `yaml:"output" split_words:"true"`
	DataDir     string        `yaml:"data_dir" split_words:"true"`
	BaseURL     string        `yaml:"base_url" split_words:"true"`
	Concurrency int           `yaml:"concurrency" split_words:"true"`
	SkipInvalid bool          `yaml:"skip_invalid" split_words:"true"`
	Interval    time.Duration `yaml:"interval" split_words:"true"`
	Robots      bool          `yaml:"robots" split_words:"true"`
	MetricsFile string        `yaml:"metrics_file" split_words:"true"`
	LogLevel    string        `yaml:"log_level" split_words:"true"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		Departments: append([]string(nil), DefaultDepartments...),
		Programs:    "allprograms.json",
		Output:      "allcourses.json",
		DataDir:     ".",
		BaseURL:     scraper.DefaultBaseURL,
		Concurrency: 1,
		Interval:    scraper.DefaultInterval,
		Robots:      true,
		LogLevel:    string(logger.LevelInfo),
	}
}

// Loader resolves a Config from a file and the environment.
type Loader struct {
	ConfigPath string // optional YAML file
	EnvFile    string // optional dotenv file; missing files are ignored
}

// NewLoader creates a loader reading configPath and ./.env.
func NewLoader(configPath string) *Loader {
	return &Loader{ConfigPath: configPath, EnvFile: ".env"}
}

// Load builds the configuration. It does not validate it; callers apply
// flag overrides first and then call Validate.
func (l *Loader) Load() (Config, error) {
	cfg := Default()

	if l.EnvFile != "" {
		if err := godotenv.Load(l.EnvFile); err != nil {
			if _, statErr := os.Stat(l.EnvFile); statErr == nil {
				return cfg, fmt.Errorf("loading %s: %w", l.EnvFile, err)
			}
		}
	}

	if l.ConfigPath != "" {
		if err := loadFile(l.ConfigPath, &cfg); err != nil {
			return cfg, fmt.Errorf("load config file: %w", err)
		}
	}

	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return cfg, fmt.Errorf("reading environment: %w", err)
	}

	cfg.Departments = NormalizeDepartments(cfg.Departments)

	return cfg, nil
}

// loadFile decodes a YAML file over cfg. Unknown keys are rejected.
func loadFile(path string, cfg *Config) error {
	path = filepath.Clean(path)

	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".yaml" && ext != ".yml" {
		return fmt.Errorf("unsupported config format: %s (only YAML supported)", ext)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read file: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	if err := dec.Decode(cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("parse %s: %w", path, err)
	}

	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return fmt.Errorf("%s contains multiple documents or trailing content", path)
	}

	return nil
}

// NormalizeDepartments trims and upper-cases codes and drops blanks and
// repeats, keeping the first occurrence.
func NormalizeDepartments(depts []string) []string {
	out := make([]string, 0, len(depts))
	seen := make(map[string]bool, len(depts))
	for _, d := range depts {
		d = strings.ToUpper(strings.TrimSpace(d))
		if d == "" || seen[d] {
			continue
		}
		seen[d] = true
		out = append(out, d)
	}
	return out
}

// Validate reports the first setting that cannot be used.
func (c Config) Validate() error {
	if len(c.Departments) == 0 {
		return errors.New("no departments configured")
	}
	if c.Programs == "" {
		return errors.New("programs file must be set")
	}
	if c.Output == "" {
		return errors.New("output file must be set")
	}
	if c.Concurrency < 1 {
		return fmt.Errorf("concurrency must be at least 1, got %d", c.Concurrency)
	}
	if c.Interval < 0 {
		return fmt.Errorf("interval must not be negative, got %s", c.Interval)
	}
	if !strings.HasPrefix(c.BaseURL, "http://") && !strings.HasPrefix(c.BaseURL, "https://") {
		return fmt.Errorf("base URL must be http or https, got %q", c.BaseURL)
	}
	if _, err := logger.ParseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}
