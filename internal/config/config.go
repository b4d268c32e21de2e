// Package config handles ecf configuration parsing and validation.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration accepts "90s"-style values in YAML, which yaml.v3 does not do
// for time.Duration itself.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return fmt.Errorf("duration must be a string like \"30s\": %w", err)
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Config represents the ecf.yaml configuration file.
type Config struct {
	Storage    StorageConfig    `yaml:"storage"`
	LLM        LLMConfig        `yaml:"llm"`
	Controller ControllerConfig `yaml:"controller"`
	Search     SearchConfig     `yaml:"search"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// StorageConfig locates the task files and the trace database.
type StorageConfig struct {
	TasksDir string `yaml:"tasks_dir"`
	TraceDB  string `yaml:"trace_db"`
}

// LLMConfig points at an OpenAI-compatible generator endpoint.
type LLMConfig struct {
	BaseURL string   `yaml:"base_url"`
	Model   string   `yaml:"model"`
	APIKey  string   `yaml:"api_key"`
	Timeout Duration `yaml:"timeout"`
}

// ControllerConfig bounds task runs.
type ControllerConfig struct {
	MaxPlannedSteps  int  `yaml:"max_planned_steps"`
	MaxExecutedSteps int  `yaml:"max_executed_steps"`
	PreResolveTools  bool `yaml:"pre_resolve_tools"`
}

// SearchConfig configures web-search providers. Tavily joins the provider
// list only when its key is set.
type SearchConfig struct {
	TavilyAPIKey string `yaml:"tavily_api_key"`
}

// LoggingConfig controls log verbosity and the optional log file.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
	File  string `yaml:"file"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Storage: StorageConfig{
			TasksDir: "data/tasks",
			TraceDB:  "data/trace.db",
		},
		LLM: LLMConfig{
			BaseURL: "http://localhost:11434/v1",
			Model:   "llama3.1",
			Timeout: Duration(2 * time.Minute),
		},
		Controller: ControllerConfig{
			MaxPlannedSteps:  20,
			MaxExecutedSteps: 25,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads and parses the ecf.yaml config file. A missing file yields the
// defaults; a present but malformed file is an error.
func Load(path string) (*Config, error) {
	if path == "" {
		path = "ecf.yaml"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	return cfg, nil
}

// Save writes the configuration to the specified path.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Storage.TasksDir == "" {
		return fmt.Errorf("storage.tasks_dir must be set")
	}
	if c.LLM.BaseURL == "" {
		return fmt.Errorf("llm.base_url must be set")
	}
	if c.LLM.Model == "" {
		return fmt.Errorf("llm.model must be set")
	}
	if c.Controller.MaxPlannedSteps < 1 {
		return fmt.Errorf("controller.max_planned_steps must be at least 1")
	}
	if c.Controller.MaxExecutedSteps < 1 {
		return fmt.Errorf("controller.max_executed_steps must be at least 1")
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid logging.level: %s (must be debug, info, warn, or error)", c.Logging.Level)
	}
	return nil
}

// FindConfigFile searches for ecf.yaml in current and parent directories.
func FindConfigFile() (string, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	for dir := cwd; ; dir = filepath.Dir(dir) {
		configPath := filepath.Join(dir, "ecf.yaml")
		if _, err := os.Stat(configPath); err == nil {
			return configPath, nil
		}
		if dir == filepath.Dir(dir) {
			break
		}
	}
	return "", fmt.Errorf("ecf.yaml not found in %s or parent directories", cwd)
}
