// Package config loads daemon configuration from file, environment, and
// flags via viper.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/vcamd/vcamd/internal/producer"
	"github.com/vcamd/vcamd/internal/supervisor"
)

// darwinRegionPath matches the path the producer publishes to on macOS; the
// camera extension sandbox can read under /Library.
const darwinRegionPath = "/Library/Application Support/RTMPVirtualCamera/rtmp_vcam_ring"

// Config is the full daemon configuration.
type Config struct {
	Producer   producer.LaunchConfig `yaml:"producer" mapstructure:"producer"`
	Supervisor supervisor.Policy     `yaml:"supervisor" mapstructure:"supervisor"`
	Stream     StreamConfig          `yaml:"stream" mapstructure:"stream"`
	Control    ControlConfig         `yaml:"control" mapstructure:"control"`
	Log        LogConfig             `yaml:"log" mapstructure:"log"`
}

// StreamConfig configures the frame relay.
type StreamConfig struct {
	// RegionPath is the shared frame region backing file.
	RegionPath string `yaml:"region_path" mapstructure:"region_path"`

	// FrameRate is the delivery cadence in frames per second.
	FrameRate int `yaml:"frame_rate" mapstructure:"frame_rate"`

	PlaceholderWidth  int `yaml:"placeholder_width" mapstructure:"placeholder_width"`
	PlaceholderHeight int `yaml:"placeholder_height" mapstructure:"placeholder_height"`

	// SinkType selects the downstream sink: "null" or "pipe".
	SinkType string `yaml:"sink_type" mapstructure:"sink_type"`

	// SinkPath is the pipe path when SinkType is "pipe".
	SinkPath string `yaml:"sink_path" mapstructure:"sink_path"`

	// AutoStart begins delivery as soon as the daemon is up.
	AutoStart bool `yaml:"auto_start" mapstructure:"auto_start"`
}

// ControlConfig configures the operator HTTP surface.
type ControlConfig struct {
	ListenAddr string `yaml:"listen_addr" mapstructure:"listen_addr"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level string `yaml:"level" mapstructure:"level"`
	JSON  bool   `yaml:"json" mapstructure:"json"`
}

// DefaultRegionPath returns the platform default for the shared region file.
func DefaultRegionPath() string {
	if runtime.GOOS == "darwin" {
		return darwinRegionPath
	}
	return filepath.Join(os.TempDir(), "vcamd", "frame_ring")
}

// Default returns the stock configuration.
func Default() Config {
	return Config{
		Producer: producer.LaunchConfig{
			BinaryPath: "rtmp-producer",
			ListenPort: 1935,
		},
		Supervisor: supervisor.DefaultPolicy(),
		Stream: StreamConfig{
			RegionPath:        DefaultRegionPath(),
			FrameRate:         30,
			PlaceholderWidth:  1280,
			PlaceholderHeight: 720,
			SinkType:          "null",
		},
		Control: ControlConfig{
			ListenAddr: "127.0.0.1:8750",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from the given file (or the default search path
// when empty), layered over Default with VCAMD_* environment overrides.
func Load(cfgFile string) (Config, error) {
	v := viper.New()

	def := Default()
	v.SetDefault("producer.binary_path", def.Producer.BinaryPath)
	v.SetDefault("producer.listen_port", def.Producer.ListenPort)
	v.SetDefault("supervisor.graceful_timeout", def.Supervisor.GracefulTimeout)
	v.SetDefault("supervisor.forced_timeout", def.Supervisor.ForcedTimeout)
	v.SetDefault("supervisor.crash_window", def.Supervisor.CrashWindow)
	v.SetDefault("supervisor.crash_ceiling", def.Supervisor.CrashCeiling)
	v.SetDefault("supervisor.restart_delay", def.Supervisor.RestartDelay)
	v.SetDefault("stream.region_path", def.Stream.RegionPath)
	v.SetDefault("stream.frame_rate", def.Stream.FrameRate)
	v.SetDefault("stream.placeholder_width", def.Stream.PlaceholderWidth)
	v.SetDefault("stream.placeholder_height", def.Stream.PlaceholderHeight)
	v.SetDefault("stream.sink_type", def.Stream.SinkType)
	v.SetDefault("control.listen_addr", def.Control.ListenAddr)
	v.SetDefault("log.level", def.Log.Level)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			v.AddConfigPath(filepath.Join(home, ".vcamd"))
		}
		v.AddConfigPath("/etc/vcamd")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix("VCAMD")
	// Nested keys map dots to underscores: stream.frame_rate is
	// VCAMD_STREAM_FRAME_RATE.
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		// A missing config file on the default search path is fine;
		// defaults apply. An explicit --config that fails is not.
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	return cfg, cfg.Validate()
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	if c.Stream.FrameRate <= 0 || c.Stream.FrameRate > 240 {
		return fmt.Errorf("invalid frame rate %d", c.Stream.FrameRate)
	}
	if c.Supervisor.CrashCeiling < 0 {
		return fmt.Errorf("invalid crash ceiling %d", c.Supervisor.CrashCeiling)
	}
	switch c.Stream.SinkType {
	case "null", "pipe":
	default:
		return fmt.Errorf("unknown sink type %q", c.Stream.SinkType)
	}
	if c.Stream.SinkType == "pipe" && c.Stream.SinkPath == "" {
		return fmt.Errorf("pipe sink requires sink_path")
	}
	return c.Producer.Validate()
}

// FrameInterval converts the configured frame rate to a tick duration.
func (c *StreamConfig) FrameInterval() time.Duration {
	return time.Second / time.Duration(c.FrameRate)
}

// WriteExample renders the default configuration as YAML, for `vcamd config init`.
func WriteExample(path string) error {
	data, err := yaml.Marshal(Default())
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
