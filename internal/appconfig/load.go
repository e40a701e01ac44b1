package appconfig

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"pkt.systems/shellm/schema"
)

// Load resolves configuration: values in the file at path override environment variables,
// which override built-in defaults. If path is empty, uses DefaultConfigPath. A missing file is
// not an error. The result is not validated; call Validate before starting a session.
func Load(path string) (Config, error) {
	if path == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			return Config{}, fmt.Errorf("%w: %v", schema.ErrConfig, err)
		}
		path = defaultPath
	}

	cfg, err := DefaultConfig()
	if err != nil {
		return Config{}, fmt.Errorf("%w: %v", schema.ErrConfig, err)
	}
	applyEnv(&cfg, os.LookupEnv)

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetDefault("config_version", cfg.ConfigVersion)
	v.SetDefault("llm.provider", cfg.LLM.Provider)
	v.SetDefault("llm.api_key", cfg.LLM.APIKey)
	v.SetDefault("llm.model", cfg.LLM.Model)
	v.SetDefault("llm.base_url", cfg.LLM.BaseURL)
	v.SetDefault("llm.timeout_seconds", cfg.LLM.TimeoutSeconds)
	v.SetDefault("prompt.template", cfg.Prompt.Template)
	v.SetDefault("shell.path", cfg.Shell.Path)
	v.SetDefault("shell.args", cfg.Shell.Args)
	v.SetDefault("preference.language", cfg.Preference.Language)
	v.SetDefault("ui.theme", cfg.UI.Theme)
	v.SetDefault("ui.max_height", cfg.UI.MaxHeight)
	v.SetDefault("ui.clear_on_start", cfg.UI.ClearOnStart)
	v.SetDefault("ui.notice_ms", cfg.UI.NoticeMillis)
	v.SetDefault("inject.auto_execute", cfg.Inject.AutoExecute)
	v.SetDefault("logging.file", cfg.Logging.File)
	v.SetDefault("logging.level", cfg.Logging.Level)

	configLoaded := false
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("%w: read %s: %v", schema.ErrConfig, path, err)
		}
	} else {
		configLoaded = true
	}

	if configLoaded {
		if !v.InConfig("config_version") {
			return Config{}, fmt.Errorf("%w: config_version is required; expected %d", schema.ErrConfig, CurrentConfigVersion)
		}
		if v.GetInt("config_version") != CurrentConfigVersion {
			return Config{}, fmt.Errorf("%w: unsupported config_version %d; expected %d", schema.ErrConfig, v.GetInt("config_version"), CurrentConfigVersion)
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("%w: decode %s: %v", schema.ErrConfig, path, err)
	}
	expandConfigEnv(&cfg)
	return cfg, nil
}

// applyEnv installs environment overrides on top of the built-in defaults.
func applyEnv(cfg *Config, lookup func(string) (string, bool)) {
	set := func(key string, dst *string) {
		if val, ok := lookup(key); ok && strings.TrimSpace(val) != "" {
			*dst = strings.TrimSpace(val)
		}
	}
	set("OPENAI_API_KEY", &cfg.LLM.APIKey)
	set("OPENAI_MODEL", &cfg.LLM.Model)
	set("OPENAI_BASE_URL", &cfg.LLM.BaseURL)
	set("SHELL", &cfg.Shell.Path)
}

// Validate checks that cfg can drive a session.
func Validate(cfg Config) error {
	switch strings.ToLower(strings.TrimSpace(cfg.LLM.Provider)) {
	case ProviderOpenAI:
		if strings.TrimSpace(cfg.LLM.APIKey) == "" {
			return fmt.Errorf("%w: llm.api_key is required for provider %q (set OPENAI_API_KEY or llm.api_key)", schema.ErrConfig, ProviderOpenAI)
		}
		if strings.TrimSpace(cfg.LLM.Model) == "" {
			return fmt.Errorf("%w: llm.model is required", schema.ErrConfig)
		}
		parsed, err := url.Parse(strings.TrimSpace(cfg.LLM.BaseURL))
		if err != nil || parsed.Scheme == "" || parsed.Host == "" {
			return fmt.Errorf("%w: llm.base_url must include scheme and host (e.g. https://api.openai.com/v1)", schema.ErrConfig)
		}
	case ProviderMock:
	default:
		return fmt.Errorf("%w: unsupported llm.provider %q", schema.ErrConfig, cfg.LLM.Provider)
	}
	if cfg.LLM.TimeoutSeconds < 0 {
		return fmt.Errorf("%w: llm.timeout_seconds must not be negative", schema.ErrConfig)
	}
	if strings.TrimSpace(cfg.Shell.Path) == "" {
		return fmt.Errorf("%w: shell.path is required", schema.ErrConfig)
	}
	if cfg.UI.MaxHeight < 1 {
		return fmt.Errorf("%w: ui.max_height must be at least 1", schema.ErrConfig)
	}
	if cfg.UI.NoticeMillis < 0 {
		return fmt.Errorf("%w: ui.notice_ms must not be negative", schema.ErrConfig)
	}
	if _, ok := schema.NormalizeThemeName(cfg.UI.Theme); !ok {
		return fmt.Errorf("%w: unsupported ui.theme %q", schema.ErrConfig, cfg.UI.Theme)
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Logging.Level)) {
	case "", "trace", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("%w: unsupported logging.level %q", schema.ErrConfig, cfg.Logging.Level)
	}
	return nil
}

func expandConfigEnv(cfg *Config) {
	if cfg == nil {
		return
	}
	cfg.Shell.Path = expandEnv(cfg.Shell.Path)
	cfg.Logging.File = expandEnv(cfg.Logging.File)
	cfg.LLM.APIKey = expandEnv(cfg.LLM.APIKey)
}

func expandEnv(value string) string {
	if value == "" {
		return value
	}
	if strings.HasPrefix(value, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			value = filepath.Join(home, value[2:])
		}
	}
	return os.Expand(value, func(key string) string {
		if key == "" {
			return ""
		}
		if val, ok := lookupEnv(key); ok {
			return val
		}
		return "$" + key
	})
}

func lookupEnv(key string) (string, bool) {
	if val, ok := os.LookupEnv(key); ok {
		return val, true
	}
	switch key {
	case "UID":
		return fmt.Sprintf("%d", os.Getuid()), true
	case "GID":
		return fmt.Sprintf("%d", os.Getgid()), true
	}
	return "", false
}

// Redacted returns a copy of cfg that is safe to print.
func Redacted(cfg Config) Config {
	if cfg.LLM.APIKey != "" {
		cfg.LLM.APIKey = "<redacted>"
	}
	return cfg
}

// Marshal renders cfg as YAML.
func Marshal(cfg Config) ([]byte, error) {
	return yaml.Marshal(cfg)
}

// WriteDefault writes the default config to the target path.
func WriteDefault(path string, overwrite bool) (string, error) {
	if path == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			return "", err
		}
		path = defaultPath
	}

	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return "", fmt.Errorf("config already exists at %s", path)
		}
	}

	cfg, err := DefaultConfig()
	if err != nil {
		return "", err
	}

	data, err := Marshal(cfg)
	if err != nil {
		return "", err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", err
	}
	return path, nil
}
