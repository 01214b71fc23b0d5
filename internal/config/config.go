package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/codefionn/go-blueutil/internal/logger"
	"github.com/codefionn/go-blueutil/internal/output"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "BLUEUTIL"

// MaxInquiryDuration is the longest inquiry the radio accepts, in seconds.
const MaxInquiryDuration = 255

type Config struct {
	Log       LogConfig       `mapstructure:"log"`
	Bluetooth BluetoothConfig `mapstructure:"bluetooth"`
	Inquiry   InquiryConfig   `mapstructure:"inquiry"`
	Timeouts  TimeoutConfig   `mapstructure:"timeouts"`
	Output    OutputConfig    `mapstructure:"output"`
}

type LogConfig struct {
	Level   string `mapstructure:"level"`
	Format  string `mapstructure:"format"`
	Debug   bool   `mapstructure:"debug"`
	Verbose bool   `mapstructure:"verbose"`
}

type BluetoothConfig struct {
	Adapter string `mapstructure:"adapter"`
}

type InquiryConfig struct {
	// Duration is the default scan length in seconds.
	Duration int `mapstructure:"duration"`
}

// TimeoutConfig bounds the pair and disconnect waits. Zero waits forever.
type TimeoutConfig struct {
	Pair       time.Duration `mapstructure:"pair"`
	Disconnect time.Duration `mapstructure:"disconnect"`
}

type OutputConfig struct {
	Format string `mapstructure:"format"`
}

// Load resolves the configuration for cmd. Sources are layered as
// defaults < config file < environment < flags.
func Load(cmd *cobra.Command) (*Config, error) {
	v := viper.New()

	envFile, _ := cmd.Flags().GetString("env-file")
	if envFile != "" {
		if err := loadEnvFile(envFile); err != nil {
			return nil, fmt.Errorf("failed to load env file %s: %w", envFile, err)
		}
	} else if _, err := os.Stat(".env"); err == nil {
		// A broken .env in the working directory is not fatal.
		_ = loadEnvFile(".env")
	}

	setDefaults(v)

	configFile, _ := cmd.Flags().GetString("config")
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".blueutil"))
		}
		v.AddConfigPath(".")
		v.SetConfigType("yaml")
		v.SetConfigName("config")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if err := bindFlags(cmd, v); err != nil {
		return nil, fmt.Errorf("failed to bind flags: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "warn")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.debug", false)
	v.SetDefault("log.verbose", false)
	v.SetDefault("bluetooth.adapter", "hci0")
	v.SetDefault("inquiry.duration", 10)
	v.SetDefault("timeouts.pair", 60*time.Second)
	v.SetDefault("timeouts.disconnect", 15*time.Second)
	v.SetDefault("output.format", string(output.FormatDefault))
}

// flagKeys maps flag names to configuration keys.
var flagKeys = map[string]string{
	"log-level":          "log.level",
	"log-format":         "log.format",
	"debug":              "log.debug",
	"verbose":            "log.verbose",
	"adapter":            "bluetooth.adapter",
	"format":             "output.format",
	"pair-timeout":       "timeouts.pair",
	"disconnect-timeout": "timeouts.disconnect",
}

// bindFlags binds whichever of the known flags cmd defines.
func bindFlags(cmd *cobra.Command, v *viper.Viper) error {
	for flag, key := range flagKeys {
		f := cmd.Flags().Lookup(flag)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("failed to bind flag %s: %w", flag, err)
		}
	}

	return nil
}

func validate(cfg *Config) error {
	if _, err := logger.ParseLogLevel(cfg.Log.Level); err != nil {
		return err
	}

	if _, err := logger.ParseLogFormat(cfg.Log.Format); err != nil {
		return err
	}

	if _, err := output.ParseFormat(cfg.Output.Format); err != nil {
		return err
	}

	if strings.TrimSpace(cfg.Bluetooth.Adapter) == "" {
		return fmt.Errorf("bluetooth adapter must not be empty")
	}

	if cfg.Inquiry.Duration < 1 || cfg.Inquiry.Duration > MaxInquiryDuration {
		return fmt.Errorf("invalid inquiry duration: %d (must be 1-%d seconds)", cfg.Inquiry.Duration, MaxInquiryDuration)
	}

	if cfg.Timeouts.Pair < 0 {
		return fmt.Errorf("invalid pair timeout: %s", cfg.Timeouts.Pair)
	}

	if cfg.Timeouts.Disconnect < 0 {
		return fmt.Errorf("invalid disconnect timeout: %s", cfg.Timeouts.Disconnect)
	}

	return nil
}

// LoggerLevel returns the level selected by log.level, --debug and
// --verbose together.
func (c *Config) LoggerLevel() logger.LogLevel {
	level, err := logger.ParseLogLevel(c.Log.Level)
	if err != nil {
		level = logger.WarnLevel
	}
	return logger.EffectiveLevel(level, c.Log.Debug, c.Log.Verbose)
}

// LoggerFormat returns the configured log format.
func (c *Config) LoggerFormat() logger.LogFormat {
	format, _ := logger.ParseLogFormat(c.Log.Format)
	return format
}

// OutputFormat returns the configured output format.
func (c *Config) OutputFormat() output.Format {
	format, err := output.ParseFormat(c.Output.Format)
	if err != nil {
		return output.FormatDefault
	}
	return format
}
