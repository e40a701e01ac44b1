package appconfig

import (
	"os"
	"path/filepath"

	"pkt.systems/shellm/internal/sysinfo"
	"pkt.systems/shellm/schema"
)

// Config is the top-level application configuration.
type Config struct {
	ConfigVersion int              `mapstructure:"config_version" yaml:"config_version"`
	LLM           LLMConfig        `mapstructure:"llm" yaml:"llm"`
	Prompt        PromptConfig     `mapstructure:"prompt" yaml:"prompt"`
	Shell         ShellConfig      `mapstructure:"shell" yaml:"shell"`
	Preference    PreferenceConfig `mapstructure:"preference" yaml:"preference"`
	UI            UIConfig         `mapstructure:"ui" yaml:"ui"`
	Inject        InjectConfig     `mapstructure:"inject" yaml:"inject"`
	Logging       LoggingConfig    `mapstructure:"logging" yaml:"logging"`
}

// CurrentConfigVersion marks the supported config version.
const CurrentConfigVersion = 1

// Provider names accepted in llm.provider.
const (
	ProviderOpenAI = "openai"
	ProviderMock   = "mock"
)

// LLMConfig selects and configures the assistant backend.
type LLMConfig struct {
	Provider       string `mapstructure:"provider" yaml:"provider"`
	APIKey         string `mapstructure:"api_key" yaml:"api_key"`
	Model          string `mapstructure:"model" yaml:"model"`
	BaseURL        string `mapstructure:"base_url" yaml:"base_url"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds" yaml:"timeout_seconds"`
}

// PromptConfig holds the system prompt template.
type PromptConfig struct {
	Template string `mapstructure:"template" yaml:"template"`
}

// ShellConfig selects the child shell.
type ShellConfig struct {
	Path string   `mapstructure:"path" yaml:"path"`
	Args []string `mapstructure:"args" yaml:"args"`
}

// PreferenceConfig holds user preferences.
type PreferenceConfig struct {
	Language string `mapstructure:"language" yaml:"language"`
}

// UIConfig controls the overlay.
type UIConfig struct {
	Theme        string `mapstructure:"theme" yaml:"theme"`
	MaxHeight    int    `mapstructure:"max_height" yaml:"max_height"`
	ClearOnStart bool   `mapstructure:"clear_on_start" yaml:"clear_on_start"`
	NoticeMillis int    `mapstructure:"notice_ms" yaml:"notice_ms"`
}

// InjectConfig controls how accepted commands reach the shell.
type InjectConfig struct {
	AutoExecute bool `mapstructure:"auto_execute" yaml:"auto_execute"`
}

// LoggingConfig controls the session log.
type LoggingConfig struct {
	File  string `mapstructure:"file" yaml:"file"`
	Level string `mapstructure:"level" yaml:"level"`
}

// DefaultConfig returns a config with built-in defaults, ignoring the environment.
func DefaultConfig() (Config, error) {
	logFile, err := defaultLogFile()
	if err != nil {
		return Config{}, err
	}
	return Config{
		ConfigVersion: CurrentConfigVersion,
		LLM: LLMConfig{
			Provider:       ProviderOpenAI,
			Model:          "gpt-4o-mini",
			BaseURL:        "https://api.openai.com/v1",
			TimeoutSeconds: 120,
		},
		Prompt: PromptConfig{Template: sysinfo.DefaultPromptTemplate},
		Shell:  ShellConfig{Path: "/bin/bash"},
		UI: UIConfig{
			Theme:        string(schema.DefaultTheme),
			MaxHeight:    12,
			ClearOnStart: true,
			NoticeMillis: 1500,
		},
		Logging: LoggingConfig{
			File:  logFile,
			Level: "info",
		},
	}, nil
}

// DefaultConfigPath returns SHELLM_CONFIG when set, else the per-user config location.
func DefaultConfigPath() (string, error) {
	if path := os.Getenv("SHELLM_CONFIG"); path != "" {
		return path, nil
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "shellm", "config.yaml"), nil
}

func defaultLogFile() (string, error) {
	if state := os.Getenv("XDG_STATE_HOME"); state != "" {
		return filepath.Join(state, "shellm", "shellm.log"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".local", "state", "shellm", "shellm.log"), nil
}
