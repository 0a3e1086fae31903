// node.go wires the daemon's subsystems into a single Node: the
// durable store, the identity registry, the note mixer, the credential
// store, the content cache, the mixnet batching pool, the reward
// engine, the task supervisor, and the metrics/health machinery.
package node

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"time"

	"github.com/nonos/nonosd/anyone"
	"github.com/nonos/nonosd/contracts"
	"github.com/nonos/nonosd/log"
	"github.com/nonos/nonosd/metrics"
	"github.com/nonos/nonosd/mixnet"
	"github.com/nonos/nonosd/privacy/cache"
	"github.com/nonos/nonosd/privacy/credentials"
	"github.com/nonos/nonosd/privacy/identity"
	"github.com/nonos/nonosd/privacy/mixer"
	"github.com/nonos/nonosd/rewards"
	"github.com/nonos/nonosd/storage"
	"github.com/nonos/nonosd/supervisor"
)

// Node owns the constructed instances of every subsystem and drives
// their startup/shutdown order through a ServiceRegistry.
type Node struct {
	cfg Config

	Store         *storage.Store
	Identity      *identity.Registry
	Mixer         *mixer.Mixer
	Credentials   *credentials.Store
	Cache         *cache.Cache
	MixPool       *mixnet.Pool
	Rewards       *rewards.Engine
	Supervisor    *supervisor.Supervisor
	WorkEpoch     *metrics.WorkEpoch
	Health        *HealthChecker
	Events        *EventBus
	Metrics       *metrics.Registry
	Prometheus    *metrics.PrometheusExporter
	Reporter      *metrics.MetricsReporter
	SystemMetrics *metrics.SystemMetrics
	Anyone        *anyone.Tracker

	registry *ServiceRegistry
	startedAt time.Time
}

// noopService adapts a value with no independent lifecycle (the
// identity registry, mixer, credential store, and cache are plain data
// structures) into the Service interface so it participates in the
// registry's dependency ordering and health reporting.
type noopService struct {
	name string
}

func (n noopService) Start() error { return nil }
func (n noopService) Stop() error  { return nil }
func (n noopService) Name() string { return n.name }

// funcService adapts a pair of start/stop functions into a Service.
type funcService struct {
	name       string
	start, stop func() error
}

func (f funcService) Start() error { return f.start() }
func (f funcService) Stop() error  { return f.stop() }
func (f funcService) Name() string { return f.name }

// ForwardedPacket is the payload of an EventPacketForwarded event: the
// physical relay the packet must be sent to next, and the re-wrapped
// onion packet addressed to it.
type ForwardedPacket struct {
	NextNode mixnet.NodeID
	Packet   *mixnet.Packet
}

// stubContractAdapter satisfies rewards.ContractAdapter without talking
// to a real staking contract. It is swapped out by contracts.Adapter
// once a real RPC endpoint is configured; nonosd never embeds a chain
// client itself (spec §1 Non-goals).
type stubContractAdapter struct{}

func (stubContractAdapter) ClaimRewards(ctx context.Context, epoch uint64, amount float64) ([32]byte, error) {
	return [32]byte{}, errors.New("node: no contract adapter configured")
}

// identityChecker reports the identity registry's accepted-identity count
// as a SubsystemChecker so it participates in HealthChecker's aggregate
// report alongside the coarser running/not-running view ServiceRegistry
// gives each service.
type identityChecker struct{ reg *identity.Registry }

func (c identityChecker) Check() *SubsystemHealth {
	return &SubsystemHealth{
		Status:  StatusHealthy,
		Message: fmt.Sprintf("%d identities registered", c.reg.IdentityCount()),
	}
}

// mixerChecker reports the note mixer's deposit/spend counts.
type mixerChecker struct{ mx *mixer.Mixer }

func (c mixerChecker) Check() *SubsystemHealth {
	notes, spent := c.mx.NoteCount(), c.mx.SpentCount()
	status := StatusHealthy
	if spent > notes {
		status = StatusUnhealthy // spent notes can never exceed deposited notes
	}
	return &SubsystemHealth{
		Status:  status,
		Message: fmt.Sprintf("%d notes, %d spent", notes, spent),
	}
}

// mixnetChecker reports the onion-layer batching pool's queue depth.
// The pool flushes once MinPoolSize is reached or MaxDelayMs elapses, so a
// queue that grows far past MinPoolSize for long stretches indicates the
// forward/exit callbacks are not draining it (e.g. no transport is
// consuming EventPacketForwarded/EventPacketExited).
type mixnetChecker struct {
	pool         *mixnet.Pool
	degradedOver int
}

func (c mixnetChecker) Check() *SubsystemHealth {
	n := c.pool.Len()
	status := StatusHealthy
	if n > c.degradedOver {
		status = StatusDegraded
	}
	return &SubsystemHealth{
		Status:  status,
		Message: fmt.Sprintf("%d packets queued", n),
	}
}

// rewardsChecker reports whether the reward engine is backed by a real
// staking contract endpoint or the stub adapter (claims will fail until a
// real endpoint is configured).
type rewardsChecker struct{ usingStub bool }

func (c rewardsChecker) Check() *SubsystemHealth {
	if c.usingStub {
		return &SubsystemHealth{Status: StatusDegraded, Message: "no rewards contract endpoint configured"}
	}
	return &SubsystemHealth{Status: StatusHealthy, Message: "contract adapter configured"}
}

// storageChecker reports the durable store's schema version, i.e. that
// migrations ran and the store opened cleanly.
type storageChecker struct{ store *storage.Store }

func (c storageChecker) Check() *SubsystemHealth {
	return &SubsystemHealth{
		Status:  StatusHealthy,
		Message: fmt.Sprintf("schema v%d", c.store.SchemaVersion()),
	}
}

// New constructs every subsystem from cfg but does not start them.
// Callers should call Validate and InitDataDir on cfg first.
func New(cfg Config) (*Node, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log.SetDefault(log.New(log.ParseLevel(cfg.LogLevel)))

	masterSecret := make([]byte, 32)
	if _, err := rand.Read(masterSecret); err != nil {
		return nil, fmt.Errorf("node: generate master secret: %w", err)
	}

	store, err := storage.New(nil, storage.WithSecretsKey(masterSecret))
	if err != nil {
		return nil, fmt.Errorf("node: open storage: %w", err)
	}

	var contractAdapter rewards.ContractAdapter = stubContractAdapter{}
	if cfg.RewardsContractEndpoint != "" {
		contractAdapter = contracts.New(cfg.RewardsContractEndpoint, cfg.RewardsContractMethod)
	}

	n := &Node{
		cfg:         cfg,
		Store:       store,
		Identity:    identity.New(func() int64 { return time.Now().Unix() }),
		Mixer:       mixer.New(nil),
		Credentials: credentials.New(masterSecret, time.Now),
		Cache:       cache.New(masterSecret, 4096),
		MixPool:     mixnet.NewPool(mixnet.BatchConfig{MinPoolSize: 8, MaxDelayMs: 2000}),
		Rewards:     rewards.NewEngine(contractAdapter, time.Sleep),
		Supervisor:  supervisor.New(supervisor.DefaultHealthWindow()),
		WorkEpoch:   metrics.NewWorkEpoch(24*time.Hour, time.Now),
		Health:      NewHealthChecker(),
		Events:      NewEventBus(256),
		Metrics:     metrics.DefaultRegistry,
		Anyone:      anyone.NewTracker(),
		registry:    NewServiceRegistry(32),
	}

	n.Prometheus = metrics.NewPrometheusExporter(n.Metrics, metrics.DefaultPrometheusConfig())
	n.Reporter = metrics.NewMetricsReporter(30 * time.Second)

	n.SystemMetrics = metrics.NewSystemMetrics()
	n.SystemMetrics.SetBootstrapProgressFunc(n.Anyone.ProgressFraction)
	n.SystemMetrics.SetPeerCountFunc(func() int { return n.MixPool.Len() })

	// The mix pool only knows how to peel and batch onion layers; actual
	// network delivery to the next relay (or to whatever consumes traffic
	// terminating here) is an external transport concern (spec's anon/Tor
	// subprocess boundary, same as anyone.Tracker). Publishing onto the
	// event bus keeps that boundary narrow: a transport subscribes to
	// EventPacketForwarded/EventPacketExited rather than the mix pool
	// depending on a concrete transport type.
	n.MixPool.SetForwardCallback(func(next mixnet.NodeID, pkt *mixnet.Packet) {
		n.Events.PublishAsync(EventPacketForwarded, ForwardedPacket{NextNode: next, Packet: pkt})
	})
	n.MixPool.SetExitCallback(func(payload []byte) {
		n.Events.PublishAsync(EventPacketExited, payload)
	})

	n.Health.RegisterSubsystem("identity", identityChecker{reg: n.Identity})
	n.Health.RegisterSubsystem("mixer", mixerChecker{mx: n.Mixer})
	n.Health.RegisterSubsystem("mixnet", mixnetChecker{pool: n.MixPool, degradedOver: 4096})
	n.Health.RegisterSubsystem("rewards", rewardsChecker{usingStub: cfg.RewardsContractEndpoint == ""})
	n.Health.RegisterSubsystem("storage", storageChecker{store: n.Store})

	if err := n.registerServices(); err != nil {
		return nil, err
	}
	return n, nil
}

// registerServices declares the dependency graph and start priority of
// every subsystem. Lower priority starts first; services with no
// independent lifecycle are registered as noopService so they still
// appear in health reports.
func (n *Node) registerServices() error {
	services := []*ServiceDescriptor{
		{Name: "storage", Service: noopService{"storage"}, Priority: 0},
		{Name: "identity", Service: noopService{"identity"}, Priority: 10, Dependencies: []string{"storage"}},
		{Name: "mixer", Service: noopService{"mixer"}, Priority: 10, Dependencies: []string{"storage"}},
		{Name: "credentials", Service: noopService{"credentials"}, Priority: 10, Dependencies: []string{"storage"}},
		{Name: "cache", Service: noopService{"cache"}, Priority: 10, Dependencies: []string{"storage"}},
		{Name: "mixnet", Service: noopService{"mixnet"}, Priority: 20, Dependencies: []string{"identity", "mixer"}},
		{Name: "rewards", Service: noopService{"rewards"}, Priority: 20, Dependencies: []string{"storage"}},
		{Name: "metrics", Priority: 5, Service: funcService{
			name:  "metrics",
			start: func() error { n.Reporter.Start(); return nil },
			stop:  func() error { n.Reporter.Stop(); return nil },
		}},
		{Name: "supervisor", Priority: 30, Dependencies: []string{"mixnet", "rewards"}, Service: funcService{
			name:  "supervisor",
			start: func() error { return nil },
			stop:  func() error { n.Supervisor.Shutdown(n.shutdownTimeout()); return nil },
		}},
	}
	for _, desc := range services {
		if err := n.registry.Register(desc); err != nil {
			return fmt.Errorf("node: register %s: %w", desc.Name, err)
		}
	}
	return nil
}

func (n *Node) shutdownTimeout() time.Duration {
	return DefaultLifecycleConfig().ShutdownTimeout
}

// Start brings up every registered service in dependency order.
func (n *Node) Start() error {
	n.startedAt = time.Now()
	n.Health.SetStartTime(n.startedAt.Unix())
	if errs := n.registry.Start(); len(errs) > 0 {
		return fmt.Errorf("node: start failed: %v", errs)
	}
	return nil
}

// Stop shuts down every running service in reverse dependency order.
func (n *Node) Stop() error {
	if errs := n.registry.Stop(); len(errs) > 0 {
		return fmt.Errorf("node: stop failed: %v", errs)
	}
	n.Events.Close()
	return nil
}

// HealthReport returns the running/not-running state of every service
// registered with the ServiceRegistry. For a richer, subsystem-specific
// view (identity/mixer/mixnet/rewards/storage status messages), see
// SubsystemHealth.
func (n *Node) HealthReport() map[string]bool {
	return n.registry.HealthCheck()
}

// SubsystemHealth returns the aggregated health of the domain subsystems
// registered on Health: the identity registry, note mixer, mixnet pool,
// reward engine, and durable store. Unlike HealthReport's coarse
// running/not-running view, each subsystem reports its own status and a
// descriptive message (e.g. the rewards engine degrades itself when no
// real contract endpoint is configured).
func (n *Node) SubsystemHealth() *HealthReport {
	return n.Health.CheckAll()
}

// Uptime returns the duration since Start was called.
func (n *Node) Uptime() time.Duration {
	if n.startedAt.IsZero() {
		return 0
	}
	return time.Since(n.startedAt)
}
