// ConfigManager: daemon configuration with defaults, per-field source
// tracking, validation, and multi-source merging (default < file < env < CLI).
package node

import (
	"errors"
	"fmt"
	"strings"
)

// ConfigManager errors.
var (
	ErrCfgMgrEmpty       = errors.New("config_manager: empty value")
	ErrCfgMgrInvalidPort = errors.New("config_manager: invalid port number")
	ErrCfgMgrInvalidTier = errors.New("config_manager: invalid reward tier schedule")
	ErrCfgMgrConflict    = errors.New("config_manager: conflicting settings")
	ErrCfgMgrNoAuthToken = errors.New("config_manager: api requires auth token when auth_required is set")
)

// ConfigSource identifies the origin of a configuration value.
type ConfigSource int

const (
	// SourceDefault indicates a built-in default value.
	SourceDefault ConfigSource = iota
	// SourceFile indicates a value loaded from a config file.
	SourceFile
	// SourceEnv indicates a value from an environment variable.
	SourceEnv
	// SourceCLI indicates a value from a command-line flag.
	SourceCLI
)

// String returns a human-readable name for the config source.
func (s ConfigSource) String() string {
	switch s {
	case SourceDefault:
		return "default"
	case SourceFile:
		return "file"
	case SourceEnv:
		return "env"
	case SourceCLI:
		return "cli"
	default:
		return "unknown"
	}
}

// RewardScheduleConfig holds the epoch schedule at which reward tier
// parameters (emission rate, streak multipliers) change, analogous to a
// protocol fork schedule but for the emission curve (spec §4.9).
type RewardScheduleConfig struct {
	// BaseEmissionPerEpoch is the starting per-epoch emission before decay.
	BaseEmissionPerEpoch uint64

	// DecayBps is the per-epoch decay in basis points (e.g. 25 = 0.25%).
	DecayBps uint64

	// TierSchedule maps a tier name to the epoch at which it activates.
	// Example: {"bootstrap": 0, "steady_state": 10000}
	TierSchedule map[string]uint64
}

// ManagedAPIConfig mirrors the adapter-layer fields of Config for
// source-tracked multi-source merging.
type ManagedAPIConfig struct {
	Port         int
	AuthRequired bool
	AuthToken    string
	RateLimited  bool
}

// ManagedAnyoneConfig mirrors AnyoneConfig for source-tracked merging.
type ManagedAnyoneConfig struct {
	SocksPort     int
	ControlPort   int
	SecurityLevel string
}

// ManagedConfig is the full configuration managed by ConfigManager.
type ManagedConfig struct {
	Rewards  RewardScheduleConfig
	API      ManagedAPIConfig
	Anyone   ManagedAnyoneConfig
	DataDir  string
	LogLevel string
}

// DefaultManagedConfig returns a ManagedConfig with sensible defaults.
func DefaultManagedConfig() *ManagedConfig {
	return &ManagedConfig{
		Rewards: RewardScheduleConfig{
			BaseEmissionPerEpoch: 1_000_000,
			DecayBps:             25,
			TierSchedule:         map[string]uint64{"bootstrap": 0},
		},
		API: ManagedAPIConfig{
			Port:        8080,
			RateLimited: true,
		},
		Anyone: ManagedAnyoneConfig{
			SocksPort:     9050,
			ControlPort:   9051,
			SecurityLevel: "standard",
		},
		DataDir:  "",
		LogLevel: "info",
	}
}

// ConfigManager provides validated, multi-source configuration management.
type ConfigManager struct {
	base    *ManagedConfig
	sources map[string]ConfigSource // tracks where each field came from
}

// NewConfigManager creates a ConfigManager with default configuration.
func NewConfigManager() *ConfigManager {
	return &ConfigManager{
		base:    DefaultManagedConfig(),
		sources: make(map[string]ConfigSource),
	}
}

// Config returns the current configuration.
func (cm *ConfigManager) Config() *ManagedConfig {
	return cm.base
}

// SetDataDir sets the data directory.
func (cm *ConfigManager) SetDataDir(dir string, source ConfigSource) {
	cm.base.DataDir = dir
	cm.sources["datadir"] = source
}

// SetLogLevel sets the log level.
func (cm *ConfigManager) SetLogLevel(level string, source ConfigSource) {
	cm.base.LogLevel = level
	cm.sources["loglevel"] = source
}

// SetRewardSchedule replaces the reward schedule configuration.
func (cm *ConfigManager) SetRewardSchedule(rc RewardScheduleConfig, source ConfigSource) {
	cm.base.Rewards = rc
	cm.sources["rewards"] = source
}

// SetAPIConfig replaces the API adapter configuration.
func (cm *ConfigManager) SetAPIConfig(ac ManagedAPIConfig, source ConfigSource) {
	cm.base.API = ac
	cm.sources["api"] = source
}

// SetAnyoneConfig replaces the anon egress proxy configuration.
func (cm *ConfigManager) SetAnyoneConfig(ac ManagedAnyoneConfig, source ConfigSource) {
	cm.base.Anyone = ac
	cm.sources["anyone"] = source
}

// Source returns the ConfigSource for a given field key.
func (cm *ConfigManager) Source(field string) ConfigSource {
	src, ok := cm.sources[field]
	if !ok {
		return SourceDefault
	}
	return src
}

// --- Validation ---

// ConfigValidator validates a ManagedConfig for correctness and consistency.
type ConfigValidator struct{}

// NewConfigValidator creates a new config validator.
func NewConfigValidator() *ConfigValidator {
	return &ConfigValidator{}
}

// Validate checks the full configuration. Returns all errors found.
func (cv *ConfigValidator) Validate(cfg *ManagedConfig) []error {
	var errs []error

	errs = append(errs, cv.validateRewards(cfg.Rewards)...)
	errs = append(errs, cv.validateAPI(cfg.API)...)
	errs = append(errs, cv.validateAnyone(cfg.Anyone)...)

	if cfg.LogLevel != "" {
		switch cfg.LogLevel {
		case "debug", "info", "warn", "error":
		default:
			errs = append(errs, fmt.Errorf("unknown log level %q", cfg.LogLevel))
		}
	}

	// API auth requires a token to actually gate anything.
	if cfg.API.AuthRequired && cfg.API.AuthToken == "" {
		errs = append(errs, ErrCfgMgrNoAuthToken)
	}

	return errs
}

func (cv *ConfigValidator) validateRewards(rc RewardScheduleConfig) []error {
	var errs []error
	if rc.DecayBps > 10000 {
		errs = append(errs, fmt.Errorf("%w: decay_bps %d exceeds 10000", ErrCfgMgrInvalidTier, rc.DecayBps))
	}
	if len(rc.TierSchedule) > 1 {
		if err := validateTierOrder(rc.TierSchedule); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

func (cv *ConfigValidator) validateAPI(ac ManagedAPIConfig) []error {
	var errs []error
	if ac.Port < 0 || ac.Port > 65535 {
		errs = append(errs, fmt.Errorf("%w: api port %d", ErrCfgMgrInvalidPort, ac.Port))
	}
	return errs
}

func (cv *ConfigValidator) validateAnyone(ac ManagedAnyoneConfig) []error {
	var errs []error
	if ac.SocksPort < 0 || ac.SocksPort > 65535 {
		errs = append(errs, fmt.Errorf("%w: anyone socks port %d", ErrCfgMgrInvalidPort, ac.SocksPort))
	}
	if ac.ControlPort < 0 || ac.ControlPort > 65535 {
		errs = append(errs, fmt.Errorf("%w: anyone control port %d", ErrCfgMgrInvalidPort, ac.ControlPort))
	}
	switch ac.SecurityLevel {
	case "", "standard", "safer", "safest":
	default:
		errs = append(errs, fmt.Errorf("unknown anyone security_level %q", ac.SecurityLevel))
	}
	return errs
}

// validateTierOrder checks that the reward tier schedule's known tiers
// activate in ascending epoch order.
func validateTierOrder(tiers map[string]uint64) error {
	knownOrder := []string{"bootstrap", "growth", "steady_state", "mature"}

	lastEpoch := uint64(0)
	lastTier := ""
	for _, name := range knownOrder {
		epoch, ok := tiers[name]
		if !ok {
			continue
		}
		if epoch < lastEpoch {
			return fmt.Errorf("%w: %s (epoch %d) before %s (epoch %d)",
				ErrCfgMgrInvalidTier, name, epoch, lastTier, lastEpoch)
		}
		lastEpoch = epoch
		lastTier = name
	}
	return nil
}

// --- Config Merging ---

// ConfigMerge merges multiple configuration sources with precedence.
// Later sources override earlier ones. Sources are applied in order:
// default < file < env < CLI.
func ConfigMerge(configs ...*ManagedConfig) *ManagedConfig {
	if len(configs) == 0 {
		return DefaultManagedConfig()
	}

	result := DefaultManagedConfig()
	for _, cfg := range configs {
		if cfg == nil {
			continue
		}
		mergeManagedConfig(result, cfg)
	}
	return result
}

// mergeManagedConfig applies non-zero values from src onto dst.
func mergeManagedConfig(dst, src *ManagedConfig) {
	if src.Rewards.BaseEmissionPerEpoch != 0 {
		dst.Rewards.BaseEmissionPerEpoch = src.Rewards.BaseEmissionPerEpoch
	}
	if src.Rewards.DecayBps != 0 {
		dst.Rewards.DecayBps = src.Rewards.DecayBps
	}
	if len(src.Rewards.TierSchedule) > 0 {
		dst.Rewards.TierSchedule = src.Rewards.TierSchedule
	}

	if src.API.Port != 0 {
		dst.API.Port = src.API.Port
	}
	if src.API.AuthToken != "" {
		dst.API.AuthToken = src.API.AuthToken
	}
	dst.API.AuthRequired = dst.API.AuthRequired || src.API.AuthRequired
	dst.API.RateLimited = dst.API.RateLimited || src.API.RateLimited

	if src.Anyone.SocksPort != 0 {
		dst.Anyone.SocksPort = src.Anyone.SocksPort
	}
	if src.Anyone.ControlPort != 0 {
		dst.Anyone.ControlPort = src.Anyone.ControlPort
	}
	if src.Anyone.SecurityLevel != "" {
		dst.Anyone.SecurityLevel = src.Anyone.SecurityLevel
	}

	if src.DataDir != "" {
		dst.DataDir = src.DataDir
	}
	if src.LogLevel != "" {
		dst.LogLevel = src.LogLevel
	}
}

// --- Reward Tier Schedule Helpers ---

// TierSchedule provides helper methods for working with reward tier
// activation epochs.
type TierSchedule struct {
	tiers map[string]uint64
}

// NewTierSchedule creates a tier schedule from a map of tier name to epoch.
func NewTierSchedule(tiers map[string]uint64) *TierSchedule {
	m := make(map[string]uint64, len(tiers))
	for k, v := range tiers {
		m[k] = v
	}
	return &TierSchedule{tiers: m}
}

// IsActive returns whether a tier is active at the given epoch.
func (ts *TierSchedule) IsActive(tier string, epoch uint64) bool {
	activation, ok := ts.tiers[tier]
	if !ok {
		return false
	}
	return epoch >= activation
}

// ActivationEpoch returns the activation epoch for a tier, or 0 and false
// if the tier is not in the schedule.
func (ts *TierSchedule) ActivationEpoch(tier string) (uint64, bool) {
	e, ok := ts.tiers[tier]
	return e, ok
}

// ActiveTiers returns all tiers active at the given epoch.
func (ts *TierSchedule) ActiveTiers(epoch uint64) []string {
	var active []string
	for name, activation := range ts.tiers {
		if epoch >= activation {
			active = append(active, name)
		}
	}
	return active
}

// TierCount returns the total number of tiers in the schedule.
func (ts *TierSchedule) TierCount() int {
	return len(ts.tiers)
}

// FormatTierSchedule returns a human-readable string of the tier schedule.
func FormatTierSchedule(tiers map[string]uint64) string {
	if len(tiers) == 0 {
		return "(empty)"
	}
	parts := make([]string, 0, len(tiers))
	for name, epoch := range tiers {
		parts = append(parts, fmt.Sprintf("%s@%d", name, epoch))
	}
	return strings.Join(parts, ", ")
}
