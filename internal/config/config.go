package config

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable, e.g. AVRISK_ARTIFACT_PATH
const EnvPrefix = "AVRISK"

// Config holds the application configuration
type Config struct {
	Port          int    `mapstructure:"port"`
	ArtifactPath  string `mapstructure:"artifact_path"`
	InputPath     string `mapstructure:"input_path"`
	SamplesDir    string `mapstructure:"samples_dir"`
	LogLevel      string `mapstructure:"log_level"`
	LogConsole    bool   `mapstructure:"log_console"`
	NameMode      string `mapstructure:"name_mode"`
	WatchArtifact bool   `mapstructure:"watch_artifact"`
	Headless      bool   `mapstructure:"headless"`
	Version       string `mapstructure:"-"`
}

// Defaults returns the built-in configuration values
func Defaults() Config {
	return Config{
		Port:         8080,
		ArtifactPath: "model_pipeline.json",
		InputPath:    "samples/sample_input_0.csv",
		SamplesDir:   "samples",
		LogLevel:     "info",
		LogConsole:   true,
		NameMode:     "legacy",
	}
}

// flagKeys maps command-line flag names to config keys
var flagKeys = map[string]string{
	"port":           "port",
	"artifact":       "artifact_path",
	"input":          "input_path",
	"samples-dir":    "samples_dir",
	"log-level":      "log_level",
	"log-console":    "log_console",
	"name-mode":      "name_mode",
	"watch-artifact": "watch_artifact",
	"headless":       "headless",
}

// New returns a viper instance with defaults and environment binding applied.
// Flags are bound separately with BindFlags so each command only binds what it defines.
func New() *viper.Viper {
	v := viper.New()
	d := Defaults()
	v.SetDefault("port", d.Port)
	v.SetDefault("artifact_path", d.ArtifactPath)
	v.SetDefault("input_path", d.InputPath)
	v.SetDefault("samples_dir", d.SamplesDir)
	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("log_console", d.LogConsole)
	v.SetDefault("name_mode", d.NameMode)
	v.SetDefault("watch_artifact", d.WatchArtifact)
	v.SetDefault("headless", d.Headless)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	return v
}

// BindFlags binds any known flags present in the set
func BindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	for name, key := range flagKeys {
		f := flags.Lookup(name)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("failed to bind flag %s: %w", name, err)
		}
	}
	return nil
}

// Load resolves the configuration (flag > env > default)
func Load(v *viper.Viper, version string) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to decode configuration: %w", err)
	}
	cfg.Version = version

	switch cfg.NameMode {
	case "legacy", "structured":
	default:
		return Config{}, fmt.Errorf("invalid name mode %q (want legacy or structured)", cfg.NameMode)
	}
	if cfg.ArtifactPath == "" {
		return Config{}, fmt.Errorf("artifact path must not be empty")
	}
	return cfg, nil
}
