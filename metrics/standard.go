package metrics

// Pre-defined metrics for the node daemon. All metrics live in
// DefaultRegistry so they are globally accessible without passing a
// registry around.

var (
	// ---- Request/connection metrics ----

	// RequestsTotal counts all inbound API requests.
	RequestsTotal = DefaultRegistry.Counter("requests.total")
	// RequestsSucceeded counts requests that completed successfully.
	RequestsSucceeded = DefaultRegistry.Counter("requests.succeeded")
	// RequestsFailed counts requests that returned an error.
	RequestsFailed = DefaultRegistry.Counter("requests.failed")
	// RequestLatency records API request latency in milliseconds.
	RequestLatency = DefaultRegistry.Histogram("requests.latency_ms")

	// BytesSent counts bytes written to peer connections.
	BytesSent = DefaultRegistry.Counter("net.bytes_sent")
	// BytesReceived counts bytes read from peer connections.
	BytesReceived = DefaultRegistry.Counter("net.bytes_received")
	// ConnectionsOpen tracks the current number of open connections.
	ConnectionsOpen = DefaultRegistry.Gauge("net.connections_open")

	// ---- Mixnet / P2P activity ----

	// PeersConnected tracks the current number of connected mixnet peers.
	PeersConnected = DefaultRegistry.Gauge("p2p.peers")
	// OnionPacketsRelayed counts onion packets forwarded to the next hop.
	OnionPacketsRelayed = DefaultRegistry.Counter("mixnet.packets_relayed")
	// OnionPacketsExit counts onion packets peeled to their final layer.
	OnionPacketsExit = DefaultRegistry.Counter("mixnet.packets_exit")

	// ---- Privacy primitive activity ----

	// IdentityRegistrations counts successful identity-commitment
	// registrations.
	IdentityRegistrations = DefaultRegistry.Counter("identity.registrations")
	// IdentityVerifications counts identity-proof verification attempts.
	IdentityVerifications = DefaultRegistry.Counter("identity.verifications")
	// IdentityVerificationFailures counts rejected identity proofs.
	IdentityVerificationFailures = DefaultRegistry.Counter("identity.verification_failures")

	// MixerDeposits counts note-mixer deposits.
	MixerDeposits = DefaultRegistry.Counter("mixer.deposits")
	// MixerSpends counts successful note-mixer spends.
	MixerSpends = DefaultRegistry.Counter("mixer.spends")
	// MixerSpendFailures counts rejected note-mixer spend attempts.
	MixerSpendFailures = DefaultRegistry.Counter("mixer.spend_failures")

	// ProofsGenerated counts zkSNARK proofs produced locally.
	ProofsGenerated = DefaultRegistry.Counter("zk.proofs_generated")
	// ProofsVerified counts zkSNARK proof verifications (success or
	// failure; see IdentityVerificationFailures/MixerSpendFailures for
	// the rejected subset).
	ProofsVerified = DefaultRegistry.Counter("zk.proofs_verified")

	// EntropyBytesConsumed counts bytes drawn from the CSPRNG for
	// cryptographic operations (jitter, key generation, Shamir
	// coefficients).
	EntropyBytesConsumed = DefaultRegistry.Counter("crypto.entropy_bytes")

	// RegistryOps counts service-registry/supervisor lifecycle
	// operations (register, start, restart, shutdown).
	RegistryOps = DefaultRegistry.Counter("registry.ops")

	// ---- Staking/rewards ----

	// RewardsClaimed counts successful reward claims.
	RewardsClaimed = DefaultRegistry.Counter("rewards.claims")
	// RewardsClaimFailed counts failed reward claim attempts.
	RewardsClaimFailed = DefaultRegistry.Counter("rewards.claim_failures")
)

// RequestLatencyBuckets is the fixed-bucket cumulative latency histogram
// for API request durations, exposed alongside RequestLatency's
// summary-style stats.
var RequestLatencyBuckets = DefaultRegistry.BucketHistogram("requests.latency_ms_bucketed")
