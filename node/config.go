// Package node wires together the privacy-preserving daemon's subsystems:
// the durable store, the crypto/privacy components, the mixnet engine,
// the reward engine, the task supervisor, and the metrics collector.
package node

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// BootstrapMode selects how the node discovers peers.
type BootstrapMode string

const (
	BootstrapOfficial BootstrapMode = "official"
	BootstrapCustom   BootstrapMode = "custom"
	BootstrapNone     BootstrapMode = "none"
)

// AnyoneConfig holds parameters for the external anon/Tor-style egress
// proxy the daemon assumes is running as a child process (spec §6).
type AnyoneConfig struct {
	// SocksPort is the local SOCKS5 listen port of the anon proxy.
	SocksPort int

	// ControlPort is the local control-protocol port of the anon proxy.
	ControlPort int

	// SecurityLevel selects the circuit-building aggressiveness
	// (e.g. "standard", "safer", "safest").
	SecurityLevel string
}

// DefaultAnyoneConfig returns sensible defaults for the anon proxy.
func DefaultAnyoneConfig() AnyoneConfig {
	return AnyoneConfig{
		SocksPort:     9050,
		ControlPort:   9051,
		SecurityLevel: "standard",
	}
}

// Config holds all configuration for the nonosd daemon.
type Config struct {
	// DataDir is the root directory for all data storage.
	DataDir string

	// Name is a human-readable node identifier (used in logs).
	Name string

	// P2PPort is the TCP port for the mixnet relay listener.
	P2PPort int

	// APIPort is the HTTP port for the adapter surface.
	APIPort int

	// BootstrapMode selects the discovery policy.
	BootstrapMode BootstrapMode

	// APIAuthRequired gates the HTTP adapter behind a bearer token.
	APIAuthRequired bool

	// APIAuthToken is the bearer token required when APIAuthRequired is set.
	APIAuthToken string

	// RateLimitsEnabled enables request rate limiting at the adapter layer.
	RateLimitsEnabled bool

	// Anyone holds the external egress proxy's connection parameters.
	Anyone AnyoneConfig

	// LogLevel controls log verbosity (debug, info, warn, error).
	LogLevel string

	// Verbosity controls numeric log level (0=silent..5=trace). When set,
	// overrides LogLevel.
	Verbosity int

	// Metrics enables the metrics collection subsystem.
	Metrics bool

	// ProductionMode latches the ZK identity registry and note mixer into
	// strict verification mode (spec §4.3: VK required, no advisory pass).
	ProductionMode bool

	// RewardsContractEndpoint is the JSON-RPC URL of the external
	// staking/reward contract. Empty disables reward claiming (the
	// engine is still constructed, but ClaimRewards always fails).
	RewardsContractEndpoint string

	// RewardsContractMethod is the JSON-RPC method name used to submit
	// claim_rewards calls.
	RewardsContractMethod string
}

// defaultDataDir returns the platform-specific default data directory.
// Falls back to ".nonosd" in the current directory if the home directory
// cannot be determined.
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".nonosd"
	}
	return filepath.Join(home, ".nonosd")
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		DataDir:           defaultDataDir(),
		Name:              "nonosd",
		P2PPort:           7070,
		APIPort:           8080,
		BootstrapMode:     BootstrapOfficial,
		APIAuthRequired:   false,
		RateLimitsEnabled: true,
		Anyone:            DefaultAnyoneConfig(),
		LogLevel:          "info",
		Verbosity:         3,
		Metrics:           true,
		ProductionMode:    false,
		RewardsContractMethod: "staking_claimRewards",
	}
}

// Validate checks configuration values for correctness.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return errors.New("config: datadir must not be empty")
	}
	if c.P2PPort < 0 || c.P2PPort > 65535 {
		return fmt.Errorf("config: invalid p2p port: %d", c.P2PPort)
	}
	if c.APIPort < 0 || c.APIPort > 65535 {
		return fmt.Errorf("config: invalid api port: %d", c.APIPort)
	}
	switch c.BootstrapMode {
	case BootstrapOfficial, BootstrapCustom, BootstrapNone:
	default:
		return fmt.Errorf("config: unknown bootstrap mode %q", c.BootstrapMode)
	}
	if c.APIAuthRequired && c.APIAuthToken == "" {
		return errors.New("config: api_auth_token required when api_auth_required is set")
	}
	if c.Anyone.SocksPort < 0 || c.Anyone.SocksPort > 65535 {
		return fmt.Errorf("config: invalid anyone socks port: %d", c.Anyone.SocksPort)
	}
	if c.Anyone.ControlPort < 0 || c.Anyone.ControlPort > 65535 {
		return fmt.Errorf("config: invalid anyone control port: %d", c.Anyone.ControlPort)
	}
	if c.Verbosity < 0 || c.Verbosity > 5 {
		return fmt.Errorf("config: verbosity must be 0-5, got %d", c.Verbosity)
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: unknown log level %q", c.LogLevel)
	}
	return nil
}

// VerbosityToLogLevel converts a numeric verbosity level to a log level string.
func VerbosityToLogLevel(v int) string {
	switch {
	case v <= 0:
		return "error" // silent maps to error-only
	case v == 1:
		return "error"
	case v == 2:
		return "warn"
	case v == 3:
		return "info"
	default:
		return "debug" // 4 and 5 both map to debug
	}
}

// dataDirSubdirs lists subdirectories created inside the data directory.
var dataDirSubdirs = []string{
	"store",
	"secrets",
	"cache",
}

// InitDataDir creates the data directory and its standard subdirectories
// if they do not already exist.
func (c *Config) InitDataDir() error {
	if c.DataDir == "" {
		return errors.New("config: datadir must not be empty")
	}

	if err := os.MkdirAll(c.DataDir, 0700); err != nil {
		return fmt.Errorf("config: create datadir: %w", err)
	}

	for _, sub := range dataDirSubdirs {
		dir := filepath.Join(c.DataDir, sub)
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("config: create %s: %w", sub, err)
		}
	}
	return nil
}

// ResolvePath resolves a path relative to the data directory.
func (c *Config) ResolvePath(path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(c.DataDir, path)
}

// P2PAddr returns the mixnet relay listen address string.
func (c *Config) P2PAddr() string {
	return fmt.Sprintf(":%d", c.P2PPort)
}

// APIAddr returns the HTTP adapter listen address string.
func (c *Config) APIAddr() string {
	return fmt.Sprintf("127.0.0.1:%d", c.APIPort)
}
