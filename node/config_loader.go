package node

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// FileConfig holds the full configuration for the daemon, parsed from a
// TOML-like configuration file. It mirrors Config but supports nested
// sections and partial overrides before being folded into a Config.
type FileConfig struct {
	DataDir string
	Name    string

	P2P     P2PSection
	API     APISection
	Anyone  AnyoneSection
	Log     LogSection
}

// P2PSection holds mixnet relay networking configuration.
type P2PSection struct {
	Port          int
	BootstrapMode string
}

// APISection holds HTTP adapter configuration.
type APISection struct {
	Port          int
	AuthRequired  bool
	AuthToken     string
	RateLimited   bool
}

// AnyoneSection holds the external egress proxy configuration.
type AnyoneSection struct {
	SocksPort     int
	ControlPort   int
	SecurityLevel string
}

// LogSection holds logging configuration.
type LogSection struct {
	Level string
}

// DefaultFileConfig returns a FileConfig with sensible defaults.
func DefaultFileConfig() *FileConfig {
	d := DefaultConfig()
	return &FileConfig{
		DataDir: d.DataDir,
		Name:    d.Name,
		P2P: P2PSection{
			Port:          d.P2PPort,
			BootstrapMode: string(d.BootstrapMode),
		},
		API: APISection{
			Port:         d.APIPort,
			AuthRequired: d.APIAuthRequired,
			RateLimited:  d.RateLimitsEnabled,
		},
		Anyone: AnyoneSection{
			SocksPort:     d.Anyone.SocksPort,
			ControlPort:   d.Anyone.ControlPort,
			SecurityLevel: d.Anyone.SecurityLevel,
		},
		Log: LogSection{Level: d.LogLevel},
	}
}

// ToConfig converts a FileConfig into a runtime Config, validating it.
func (fc *FileConfig) ToConfig() (Config, error) {
	cfg := Config{
		DataDir:           fc.DataDir,
		Name:              fc.Name,
		P2PPort:           fc.P2P.Port,
		BootstrapMode:     BootstrapMode(fc.P2P.BootstrapMode),
		APIPort:           fc.API.Port,
		APIAuthRequired:   fc.API.AuthRequired,
		APIAuthToken:      fc.API.AuthToken,
		RateLimitsEnabled: fc.API.RateLimited,
		Anyone: AnyoneConfig{
			SocksPort:     fc.Anyone.SocksPort,
			ControlPort:   fc.Anyone.ControlPort,
			SecurityLevel: fc.Anyone.SecurityLevel,
		},
		LogLevel:  fc.Log.Level,
		Verbosity: 3,
		Metrics:   true,
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadConfig parses a TOML-like configuration from raw bytes into a FileConfig.
// The parser handles key = value pairs and [section] headers, supporting
// quoted/unquoted strings, integers, and booleans.
func LoadConfig(data []byte) (*FileConfig, error) {
	cfg := DefaultFileConfig()
	section := ""

	lines := strings.Split(string(data), "\n")
	for lineNum, raw := range lines {
		line := strings.TrimSpace(raw)

		if line == "" || line[0] == '#' {
			continue
		}

		if line[0] == '[' {
			end := strings.Index(line, "]")
			if end < 0 {
				return nil, fmt.Errorf("line %d: unclosed section header", lineNum+1)
			}
			section = strings.TrimSpace(line[1:end])
			continue
		}

		eqIdx := strings.Index(line, "=")
		if eqIdx < 0 {
			return nil, fmt.Errorf("line %d: expected key = value", lineNum+1)
		}
		key := strings.TrimSpace(line[:eqIdx])
		val := strings.TrimSpace(line[eqIdx+1:])

		if err := applyConfigValue(cfg, section, key, val, lineNum+1); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

func applyConfigValue(cfg *FileConfig, section, key, val string, lineNum int) error {
	switch section {
	case "":
		return applyTopLevel(cfg, key, val, lineNum)
	case "p2p":
		return applyP2P(cfg, key, val, lineNum)
	case "api":
		return applyAPI(cfg, key, val, lineNum)
	case "anyone":
		return applyAnyone(cfg, key, val, lineNum)
	case "log":
		return applyLog(cfg, key, val, lineNum)
	default:
		return fmt.Errorf("line %d: unknown section [%s]", lineNum, section)
	}
}

func applyTopLevel(cfg *FileConfig, key, val string, lineNum int) error {
	switch key {
	case "data_dir":
		cfg.DataDir = unquote(val)
	case "name":
		cfg.Name = unquote(val)
	default:
		return fmt.Errorf("line %d: unknown key %q in top-level", lineNum, key)
	}
	return nil
}

func applyP2P(cfg *FileConfig, key, val string, lineNum int) error {
	switch key {
	case "port":
		n, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("line %d: invalid p2p port: %w", lineNum, err)
		}
		cfg.P2P.Port = n
	case "bootstrap_mode":
		cfg.P2P.BootstrapMode = unquote(val)
	default:
		return fmt.Errorf("line %d: unknown key %q in [p2p]", lineNum, key)
	}
	return nil
}

func applyAPI(cfg *FileConfig, key, val string, lineNum int) error {
	switch key {
	case "port":
		n, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("line %d: invalid api port: %w", lineNum, err)
		}
		cfg.API.Port = n
	case "auth_required":
		b, err := strconv.ParseBool(val)
		if err != nil {
			return fmt.Errorf("line %d: invalid auth_required: %w", lineNum, err)
		}
		cfg.API.AuthRequired = b
	case "auth_token":
		cfg.API.AuthToken = unquote(val)
	case "rate_limited":
		b, err := strconv.ParseBool(val)
		if err != nil {
			return fmt.Errorf("line %d: invalid rate_limited: %w", lineNum, err)
		}
		cfg.API.RateLimited = b
	default:
		return fmt.Errorf("line %d: unknown key %q in [api]", lineNum, key)
	}
	return nil
}

func applyAnyone(cfg *FileConfig, key, val string, lineNum int) error {
	switch key {
	case "socks_port":
		n, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("line %d: invalid socks_port: %w", lineNum, err)
		}
		cfg.Anyone.SocksPort = n
	case "control_port":
		n, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("line %d: invalid control_port: %w", lineNum, err)
		}
		cfg.Anyone.ControlPort = n
	case "security_level":
		cfg.Anyone.SecurityLevel = unquote(val)
	default:
		return fmt.Errorf("line %d: unknown key %q in [anyone]", lineNum, key)
	}
	return nil
}

func applyLog(cfg *FileConfig, key, val string, lineNum int) error {
	switch key {
	case "level":
		cfg.Log.Level = unquote(val)
	default:
		return fmt.Errorf("line %d: unknown key %q in [log]", lineNum, key)
	}
	return nil
}

// unquote strips surrounding double quotes from a string value.
func unquote(s string) string {
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return s[1 : len(s)-1]
	}
	return s
}

// envOverrides holds the NONOSD_* environment variables recognized as
// overrides per spec §6 ("Environment variable overrides are permitted for
// each [field]").
var envOverrides = []struct {
	key   string
	apply func(cfg *FileConfig, val string) error
}{
	{"NONOSD_DATA_DIR", func(c *FileConfig, v string) error { c.DataDir = v; return nil }},
	{"NONOSD_P2P_PORT", func(c *FileConfig, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return err
		}
		c.P2P.Port = n
		return nil
	}},
	{"NONOSD_API_PORT", func(c *FileConfig, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return err
		}
		c.API.Port = n
		return nil
	}},
	{"NONOSD_BOOTSTRAP_MODE", func(c *FileConfig, v string) error { c.P2P.BootstrapMode = v; return nil }},
	{"NONOSD_API_AUTH_REQUIRED", func(c *FileConfig, v string) error {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return err
		}
		c.API.AuthRequired = b
		return nil
	}},
	{"NONOSD_API_AUTH_TOKEN", func(c *FileConfig, v string) error { c.API.AuthToken = v; return nil }},
	{"NONOSD_RATE_LIMITS_ENABLED", func(c *FileConfig, v string) error {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return err
		}
		c.API.RateLimited = b
		return nil
	}},
	{"NONOSD_ANYONE_SOCKS_PORT", func(c *FileConfig, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return err
		}
		c.Anyone.SocksPort = n
		return nil
	}},
	{"NONOSD_ANYONE_CONTROL_PORT", func(c *FileConfig, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return err
		}
		c.Anyone.ControlPort = n
		return nil
	}},
	{"NONOSD_ANYONE_SECURITY_LEVEL", func(c *FileConfig, v string) error { c.Anyone.SecurityLevel = v; return nil }},
}

// ApplyEnvOverrides mutates cfg in place from recognized NONOSD_* environment
// variables. Returns an error if any present variable fails to parse.
func ApplyEnvOverrides(cfg *FileConfig) error {
	if cfg == nil {
		return errors.New("config: nil FileConfig")
	}
	for _, o := range envOverrides {
		if v, ok := os.LookupEnv(o.key); ok {
			if err := o.apply(cfg, v); err != nil {
				return fmt.Errorf("config: env %s: %w", o.key, err)
			}
		}
	}
	return nil
}
