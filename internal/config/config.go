package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Defaults mirror the literals of the original Tools/gendocs script.
const (
	DefaultScanDir     = "../Coral"
	DefaultScanSuffix  = ".nim"
	DefaultCommandName = "nim"
)

// Config holds all application configuration.
type Config struct {
	Scan    ScanConfig    `mapstructure:"scan"`
	Command CommandConfig `mapstructure:"command"`
	Log     LogConfig     `mapstructure:"log"`
	Tracing TracingConfig `mapstructure:"tracing"`
	Audit   AuditConfig   `mapstructure:"audit"`
	Metrics MetricsConfig `mapstructure:"metrics"`
}

// ScanConfig locates the source directory and the files to dispatch.
type ScanConfig struct {
	// Dir is joined to Base (or to the executable's directory when Base is
	// empty). An absolute Dir is used as is.
	Dir    string `mapstructure:"dir"`
	Base   string `mapstructure:"base"`
	Suffix string `mapstructure:"suffix"`
}

// CommandConfig names the external executable. Args are static and identical
// for every matched file.
type CommandConfig struct {
	Name string   `mapstructure:"name"`
	Args []string `mapstructure:"args"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type TracingConfig struct {
	Endpoint    string  `mapstructure:"endpoint"`
	SampleRate  float64 `mapstructure:"sample_rate"`
	Environment string  `mapstructure:"environment"`
}

type AuditConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Output  string `mapstructure:"output"`
}

type MetricsConfig struct {
	// Output is a Prometheus textfile path. Empty disables the export.
	Output string `mapstructure:"output"`
}

// Validate checks configuration for issues and returns warnings.
func (c *Config) Validate() []string {
	var warnings []string

	if c.Scan.Suffix == "" {
		warnings = append(warnings, "scan.suffix is empty; every regular file will match")
	}

	if strings.TrimSpace(c.Command.Name) == "" {
		warnings = append(warnings, "command.name is empty; dispatch will fail on the first match")
	}

	if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1.0 {
		warnings = append(warnings, fmt.Sprintf("tracing sample_rate %.2f is outside range [0.0, 1.0]", c.Tracing.SampleRate))
	}

	return warnings
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("scan.dir", DefaultScanDir)
	v.SetDefault("scan.base", "")
	v.SetDefault("scan.suffix", DefaultScanSuffix)
	v.SetDefault("command.name", DefaultCommandName)
	v.SetDefault("command.args", []string{})
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("tracing.endpoint", "")
	v.SetDefault("tracing.sample_rate", 1.0)
	v.SetDefault("tracing.environment", "development")
	v.SetDefault("audit.enabled", false)
	v.SetDefault("audit.output", "stderr")
	v.SetDefault("metrics.output", "")
}

// Default returns the configuration used when no file or environment
// overrides are present.
func Default() *Config {
	return &Config{
		Scan:    ScanConfig{Dir: DefaultScanDir, Suffix: DefaultScanSuffix},
		Command: CommandConfig{Name: DefaultCommandName, Args: []string{}},
		Log:     LogConfig{Level: "info", Format: "text"},
		Tracing: TracingConfig{SampleRate: 1.0, Environment: "development"},
		Audit:   AuditConfig{Output: "stderr"},
	}
}

// Load reads configuration from file and environment. An empty path skips the
// file and uses defaults plus GENDOCS_* environment variables.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("GENDOCS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if errors.As(err, &notFound) {
				return nil, fmt.Errorf("config file %s not found: %w", path, err)
			}
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	if warnings := cfg.Validate(); len(warnings) > 0 {
		for _, warning := range warnings {
			fmt.Fprintf(os.Stderr, "Warning: %s\n", warning)
		}
	}

	return &cfg, nil
}
