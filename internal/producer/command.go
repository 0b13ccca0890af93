// Package producer defines the command-line contract of the external RTMP
// producer binary. The producer is opaque: vcamd reaches it only through
// this argv contract, its combined output stream, and its exit status.
package producer

import (
	"fmt"
	"strconv"
)

// LaunchConfig is the configuration snapshot taken when the producer is
// started. Later config changes do not affect an already-running process.
type LaunchConfig struct {
	// BinaryPath is the producer executable.
	BinaryPath string `yaml:"binary_path" mapstructure:"binary_path"`

	// ListenPort is the RTMP listen port.
	ListenPort int `yaml:"listen_port" mapstructure:"listen_port"`

	// StreamKey, when set, restricts publishing to clients presenting it.
	StreamKey string `yaml:"stream_key" mapstructure:"stream_key"`

	// Verbose enables the producer's debug logging.
	Verbose bool `yaml:"verbose" mapstructure:"verbose"`
}

// Validate checks the snapshot before spawn.
func (c *LaunchConfig) Validate() error {
	if c.BinaryPath == "" {
		return fmt.Errorf("producer binary path is empty")
	}
	if c.ListenPort <= 0 || c.ListenPort > 65535 {
		return fmt.Errorf("invalid listen port %d", c.ListenPort)
	}
	return nil
}

// BuildArgs generates the producer argument list.
func (c *LaunchConfig) BuildArgs() []string {
	args := []string{"--port", strconv.Itoa(c.ListenPort)}
	if c.StreamKey != "" {
		args = append(args, "--key", c.StreamKey)
	}
	if c.Verbose {
		args = append(args, "--verbose")
	}
	return args
}
