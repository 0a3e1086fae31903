// Command nonosd is the main entry point for the nonosd privacy-preserving
// node daemon.
//
// Usage:
//
//	nonosd [flags]
//
// Flags:
//
//	--datadir        Data directory path (default: ~/.nonosd)
//	--port           Mixnet relay listening port (default: 7070)
//	--api.port       HTTP adapter listening port (default: 8080)
//	--bootstrap      Bootstrap mode: official, custom, none (default: official)
//	--api.auth       Require a bearer token on the HTTP adapter (default: false)
//	--api.token      Bearer token required when api.auth is set
//	--ratelimit      Enable request rate limiting (default: true)
//	--anyone.socks   Anon proxy SOCKS5 port (default: 9050)
//	--anyone.control Anon proxy control-protocol port (default: 9051)
//	--verbosity      Log level 0-5 (default: 3)
//	--metrics        Enable metrics collection (default: true)
//	--production     Require real verifying keys for identity/mixer proofs
//	--version        Print version and exit
package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/nonos/nonosd/node"
)

// Build-time version info, overridable with ldflags:
//
//	go build -ldflags "-X main.version=v0.2.0 -X main.commit=abc1234"
var (
	version = "v0.1.0-dev"
	commit  = "unknown"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

// run is the actual entry point, returning an exit code. Accepts CLI
// arguments (without the program name) so it can be tested in isolation.
func run(args []string) int {
	cfg, exit, code := parseFlags(args)
	if exit {
		return code
	}

	log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds)

	log.Printf("nonosd %s starting", version)
	log.Printf("  datadir:       %s", cfg.DataDir)
	log.Printf("  name:          %s", cfg.Name)
	log.Printf("  p2p port:      %d", cfg.P2PPort)
	log.Printf("  api port:      %d", cfg.APIPort)
	log.Printf("  bootstrap:     %s", cfg.BootstrapMode)
	log.Printf("  anyone socks:  %d", cfg.Anyone.SocksPort)
	log.Printf("  anyone ctrl:   %d", cfg.Anyone.ControlPort)
	log.Printf("  verbosity:     %d", cfg.Verbosity)
	log.Printf("  metrics:       %v", cfg.Metrics)
	log.Printf("  production:    %v", cfg.ProductionMode)

	if err := cfg.Validate(); err != nil {
		log.Printf("Invalid configuration: %v", err)
		return 1
	}

	if err := cfg.InitDataDir(); err != nil {
		log.Printf("Failed to initialize datadir: %v", err)
		return 1
	}
	log.Printf("Data directory initialized: %s", cfg.DataDir)

	n, err := node.New(cfg)
	if err != nil {
		log.Printf("Failed to create node: %v", err)
		return 1
	}

	if err := n.Start(); err != nil {
		log.Printf("Failed to start node: %v", err)
		return 1
	}
	log.Printf("nonosd started, %d subsystems running", len(n.HealthReport()))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	log.Printf("Received signal %v, shutting down...", sig)

	if err := n.Stop(); err != nil {
		log.Printf("Error during shutdown: %v", err)
		return 1
	}

	log.Println("Shutdown complete")
	return 0
}

// parseFlags parses CLI arguments into a Config. Returns the config,
// whether the caller should exit immediately, and the exit code.
func parseFlags(args []string) (node.Config, bool, int) {
	cfg := node.DefaultConfig()
	fs := newFlagSet(&cfg)

	showVersion := fs.Bool("version", false, "print version and exit")

	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return cfg, true, 2
	}

	if *showVersion {
		fmt.Printf("nonosd %s (commit %s)\n", version, commit)
		return cfg, true, 0
	}

	// --verbosity is the only CLI log-level control; it sets LogLevel,
	// which is what node.New hands to the logger.
	cfg.LogLevel = node.VerbosityToLogLevel(cfg.Verbosity)

	return cfg, false, 0
}
