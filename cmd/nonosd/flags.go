package main

import (
	"flag"

	"github.com/nonos/nonosd/node"
)

// flagSet wraps flag.FlagSet with ContinueOnError behavior so callers
// control error handling rather than the flag package calling os.Exit.
type flagSet struct {
	*flag.FlagSet
}

// newCustomFlagSet creates a flagSet with ContinueOnError behavior.
func newCustomFlagSet(name string) *flagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	return &flagSet{FlagSet: fs}
}

// newFlagSet creates a flag.FlagSet that binds all CLI flags to the
// given Config.
func newFlagSet(cfg *node.Config) *flagSet {
	fs := newCustomFlagSet("nonosd")
	fs.StringVar(&cfg.DataDir, "datadir", cfg.DataDir, "data directory path")
	fs.StringVar(&cfg.Name, "name", cfg.Name, "human-readable node identifier")
	fs.IntVar(&cfg.P2PPort, "port", cfg.P2PPort, "mixnet relay listening port")
	fs.IntVar(&cfg.APIPort, "api.port", cfg.APIPort, "HTTP adapter listening port")
	fs.StringVar((*string)(&cfg.BootstrapMode), "bootstrap", string(cfg.BootstrapMode), "bootstrap mode (official, custom, none)")
	fs.BoolVar(&cfg.APIAuthRequired, "api.auth", cfg.APIAuthRequired, "require a bearer token on the HTTP adapter")
	fs.StringVar(&cfg.APIAuthToken, "api.token", cfg.APIAuthToken, "bearer token required when api.auth is set")
	fs.BoolVar(&cfg.RateLimitsEnabled, "ratelimit", cfg.RateLimitsEnabled, "enable request rate limiting at the adapter layer")
	fs.IntVar(&cfg.Anyone.SocksPort, "anyone.socks", cfg.Anyone.SocksPort, "anon proxy SOCKS5 port")
	fs.IntVar(&cfg.Anyone.ControlPort, "anyone.control", cfg.Anyone.ControlPort, "anon proxy control-protocol port")
	fs.StringVar(&cfg.Anyone.SecurityLevel, "anyone.security", cfg.Anyone.SecurityLevel, "anon proxy circuit security level")
	fs.IntVar(&cfg.Verbosity, "verbosity", cfg.Verbosity, "log level 0-5 (0=silent, 5=trace)")
	fs.BoolVar(&cfg.Metrics, "metrics", cfg.Metrics, "enable metrics collection")
	fs.BoolVar(&cfg.ProductionMode, "production", cfg.ProductionMode, "require real verifying keys for identity/mixer proofs")
	fs.StringVar(&cfg.RewardsContractEndpoint, "rewards.endpoint", cfg.RewardsContractEndpoint, "JSON-RPC URL of the staking/reward contract")
	fs.StringVar(&cfg.RewardsContractMethod, "rewards.method", cfg.RewardsContractMethod, "JSON-RPC method name for claim_rewards calls")
	return fs
}
