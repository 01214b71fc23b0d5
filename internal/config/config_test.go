package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/codefionn/go-blueutil/internal/logger"
	"github.com/codefionn/go-blueutil/internal/output"
)

func TestSetDefaults(t *testing.T) {
	tests := []struct {
		name     string
		key      string
		expected interface{}
	}{
		{"Log Level", "log.level", "warn"},
		{"Log Format", "log.format", "console"},
		{"Debug", "log.debug", false},
		{"Adapter", "bluetooth.adapter", "hci0"},
		{"Inquiry Duration", "inquiry.duration", 10},
		{"Pair Timeout", "timeouts.pair", 60 * time.Second},
		{"Disconnect Timeout", "timeouts.disconnect", 15 * time.Second},
		{"Output Format", "output.format", "default"},
	}

	v := viper.New()
	setDefaults(v)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if actual := v.Get(tt.key); actual != tt.expected {
				t.Errorf("Expected %s to be %v, got %v", tt.key, tt.expected, actual)
			}
		})
	}
}

func validConfig() Config {
	return Config{
		Log:       LogConfig{Level: "warn", Format: "console"},
		Bluetooth: BluetoothConfig{Adapter: "hci0"},
		Inquiry:   InquiryConfig{Duration: 10},
		Timeouts:  TimeoutConfig{Pair: time.Minute, Disconnect: 15 * time.Second},
		Output:    OutputConfig{Format: "default"},
	}
}

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(c *Config)
		expectErr bool
	}{
		{"Valid config", func(c *Config) {}, false},
		{"Zero timeouts disable deadlines", func(c *Config) { c.Timeouts = TimeoutConfig{} }, false},
		{"Longest inquiry", func(c *Config) { c.Inquiry.Duration = 255 }, false},
		{"Invalid log level", func(c *Config) { c.Log.Level = "loud" }, true},
		{"Invalid log format", func(c *Config) { c.Log.Format = "xml" }, true},
		{"Invalid output format", func(c *Config) { c.Output.Format = "csv" }, true},
		{"Empty adapter", func(c *Config) { c.Bluetooth.Adapter = " " }, true},
		{"Inquiry zero", func(c *Config) { c.Inquiry.Duration = 0 }, true},
		{"Inquiry too long", func(c *Config) { c.Inquiry.Duration = 256 }, true},
		{"Negative pair timeout", func(c *Config) { c.Timeouts.Pair = -time.Second }, true},
		{"Negative disconnect timeout", func(c *Config) { c.Timeouts.Disconnect = -time.Second }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)

			err := validate(&cfg)
			if tt.expectErr && err == nil {
				t.Error("Expected validation error but got none")
			}
			if !tt.expectErr && err != nil {
				t.Errorf("Unexpected validation error: %v", err)
			}
		})
	}
}

func TestLoadConfigFromFile(t *testing.T) {
	configFile := filepath.Join(t.TempDir(), "test_config.yaml")

	configContent := `
log:
  level: "debug"
  format: "json"

bluetooth:
  adapter: "hci1"

inquiry:
  duration: 30

timeouts:
  pair: 2m
  disconnect: 5s

output:
  format: "json-pretty"
`

	if err := os.WriteFile(configFile, []byte(configContent), 0644); err != nil {
		t.Fatalf("Failed to write test config file: %v", err)
	}

	cmd := &cobra.Command{}
	setupTestFlags(cmd)
	cmd.Flags().Set("config", configFile)

	cfg, err := Load(cmd)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Log.Level != "debug" {
		t.Errorf("Expected log level 'debug', got %s", cfg.Log.Level)
	}
	if cfg.LoggerFormat() != logger.JSONFormat {
		t.Errorf("Expected JSON log format, got %v", cfg.LoggerFormat())
	}
	if cfg.Bluetooth.Adapter != "hci1" {
		t.Errorf("Expected adapter 'hci1', got %s", cfg.Bluetooth.Adapter)
	}
	if cfg.Inquiry.Duration != 30 {
		t.Errorf("Expected inquiry duration 30, got %d", cfg.Inquiry.Duration)
	}
	if cfg.Timeouts.Pair != 2*time.Minute {
		t.Errorf("Expected pair timeout 2m, got %s", cfg.Timeouts.Pair)
	}
	if cfg.Timeouts.Disconnect != 5*time.Second {
		t.Errorf("Expected disconnect timeout 5s, got %s", cfg.Timeouts.Disconnect)
	}
	if cfg.OutputFormat() != output.FormatJSONPretty {
		t.Errorf("Expected json-pretty output, got %s", cfg.OutputFormat())
	}
}

func TestLoadConfigWithoutFile(t *testing.T) {
	cmd := &cobra.Command{}
	setupTestFlags(cmd)

	cfg, err := Load(cmd)
	if err != nil {
		t.Fatalf("Failed to load config without file: %v", err)
	}

	if cfg.Log.Level != "warn" {
		t.Errorf("Expected default log level 'warn', got %s", cfg.Log.Level)
	}
	if cfg.Bluetooth.Adapter != "hci0" {
		t.Errorf("Expected default adapter 'hci0', got %s", cfg.Bluetooth.Adapter)
	}
	if cfg.Inquiry.Duration != 10 {
		t.Errorf("Expected default inquiry duration 10, got %d", cfg.Inquiry.Duration)
	}
	if cfg.Timeouts.Pair != time.Minute {
		t.Errorf("Expected default pair timeout 1m, got %s", cfg.Timeouts.Pair)
	}
	if cfg.LoggerLevel() != logger.WarnLevel {
		t.Errorf("Expected warn level, got %v", cfg.LoggerLevel())
	}
}

func TestLoadConfigWithCommandLineFlags(t *testing.T) {
	cmd := &cobra.Command{}
	setupTestFlags(cmd)

	cmd.Flags().Set("log-level", "error")
	cmd.Flags().Set("debug", "true")
	cmd.Flags().Set("adapter", "hci2")
	cmd.Flags().Set("format", "json")
	cmd.Flags().Set("pair-timeout", "90s")
	cmd.Flags().Set("disconnect-timeout", "0s")

	cfg, err := Load(cmd)
	if err != nil {
		t.Fatalf("Failed to load config with flags: %v", err)
	}

	if cfg.LoggerLevel() != logger.DebugLevel {
		t.Errorf("Expected --debug to select debug level, got %v", cfg.LoggerLevel())
	}
	if cfg.Bluetooth.Adapter != "hci2" {
		t.Errorf("Expected adapter 'hci2' from flag, got %s", cfg.Bluetooth.Adapter)
	}
	if cfg.OutputFormat() != output.FormatJSON {
		t.Errorf("Expected json output from flag, got %s", cfg.OutputFormat())
	}
	if cfg.Timeouts.Pair != 90*time.Second {
		t.Errorf("Expected pair timeout 90s from flag, got %s", cfg.Timeouts.Pair)
	}
	if cfg.Timeouts.Disconnect != 0 {
		t.Errorf("Expected disabled disconnect timeout, got %s", cfg.Timeouts.Disconnect)
	}
}

func TestLoadConfigRejectsInvalidFlag(t *testing.T) {
	cmd := &cobra.Command{}
	setupTestFlags(cmd)
	cmd.Flags().Set("format", "table")

	if _, err := Load(cmd); err == nil {
		t.Error("Expected error for unknown output format")
	}
}

func TestEnvironmentVariables(t *testing.T) {
	t.Setenv("BLUEUTIL_LOG_LEVEL", "error")
	t.Setenv("BLUEUTIL_BLUETOOTH_ADAPTER", "hci3")
	t.Setenv("BLUEUTIL_TIMEOUTS_PAIR", "45s")
	t.Setenv("BLUEUTIL_INQUIRY_DURATION", "20")

	cmd := &cobra.Command{}
	setupTestFlags(cmd)

	cfg, err := Load(cmd)
	if err != nil {
		t.Fatalf("Failed to load config with env vars: %v", err)
	}

	if cfg.Log.Level != "error" {
		t.Errorf("Expected log level 'error' from env var, got %s", cfg.Log.Level)
	}
	if cfg.Bluetooth.Adapter != "hci3" {
		t.Errorf("Expected adapter 'hci3' from env var, got %s", cfg.Bluetooth.Adapter)
	}
	if cfg.Timeouts.Pair != 45*time.Second {
		t.Errorf("Expected pair timeout 45s from env var, got %s", cfg.Timeouts.Pair)
	}
	if cfg.Inquiry.Duration != 20 {
		t.Errorf("Expected inquiry duration 20 from env var, got %d", cfg.Inquiry.Duration)
	}
}

func TestConfigPrecedence(t *testing.T) {
	configFile := filepath.Join(t.TempDir(), "precedence_test.yaml")

	configContent := `
bluetooth:
  adapter: "hci1"

log:
  level: "info"

inquiry:
  duration: 40
`

	if err := os.WriteFile(configFile, []byte(configContent), 0644); err != nil {
		t.Fatalf("Failed to write test config file: %v", err)
	}

	t.Setenv("BLUEUTIL_BLUETOOTH_ADAPTER", "hci2")
	t.Setenv("BLUEUTIL_LOG_LEVEL", "error")

	cmd := &cobra.Command{}
	setupTestFlags(cmd)
	cmd.Flags().Set("config", configFile)
	cmd.Flags().Set("adapter", "hci9")

	cfg, err := Load(cmd)
	if err != nil {
		t.Fatalf("Failed to load config for precedence test: %v", err)
	}

	// flag > env > file > default
	if cfg.Bluetooth.Adapter != "hci9" {
		t.Errorf("Expected adapter 'hci9' from CLI flag, got %s", cfg.Bluetooth.Adapter)
	}
	if cfg.Log.Level != "error" {
		t.Errorf("Expected log level 'error' from env var, got %s", cfg.Log.Level)
	}
	if cfg.Inquiry.Duration != 40 {
		t.Errorf("Expected inquiry duration 40 from config file, got %d", cfg.Inquiry.Duration)
	}
}

func TestLoadWithEnvFile(t *testing.T) {
	envFile := filepath.Join(t.TempDir(), "blueutil.env")
	if err := os.WriteFile(envFile, []byte("BLUEUTIL_BLUETOOTH_ADAPTER=hci7\n"), 0644); err != nil {
		t.Fatalf("Failed to write env file: %v", err)
	}
	t.Cleanup(func() { os.Unsetenv("BLUEUTIL_BLUETOOTH_ADAPTER") })

	cmd := &cobra.Command{}
	setupTestFlags(cmd)
	cmd.Flags().Set("env-file", envFile)

	cfg, err := Load(cmd)
	if err != nil {
		t.Fatalf("Failed to load config with env file: %v", err)
	}
	if cfg.Bluetooth.Adapter != "hci7" {
		t.Errorf("Expected adapter 'hci7' from env file, got %s", cfg.Bluetooth.Adapter)
	}
}

func TestBindFlagsSkipsUndefined(t *testing.T) {
	cmd := &cobra.Command{}
	cmd.Flags().String("config", "", "config file")

	if err := bindFlags(cmd, viper.New()); err != nil {
		t.Errorf("Unexpected error: %v", err)
	}
}

func setupTestFlags(cmd *cobra.Command) {
	cmd.Flags().String("config", "", "config file")
	cmd.Flags().String("env-file", "", "env file")
	cmd.Flags().String("log-level", "warn", "log level")
	cmd.Flags().String("log-format", "console", "log format")
	cmd.Flags().Bool("debug", false, "debug logging")
	cmd.Flags().Bool("verbose", false, "trace logging")
	cmd.Flags().String("adapter", "hci0", "Bluetooth adapter")
	cmd.Flags().String("format", "default", "output format")
	cmd.Flags().Duration("pair-timeout", time.Minute, "pair timeout")
	cmd.Flags().Duration("disconnect-timeout", 15*time.Second, "disconnect timeout")
}
