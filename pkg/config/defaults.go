package config

const (
	// EventStreamNop discards turn events.
	EventStreamNop = "nop"

	// EventStreamKafka publishes turn events to a Kafka topic.
	EventStreamKafka = "kafka"
)

const (
	defaultRelayListen   = ":8080"
	defaultBackend       = "http://localhost:8000"
	defaultStreamTimeout = "5m"
	defaultAPIListen     = ":8081"

	defaultEventStreamProvider = EventStreamNop
	defaultKafkaBrokers        = "localhost:9092"
	defaultKafkaTopic          = "typhoon.turns"

	defaultBurst = 10

	defaultClientRelayTarget   = "http://localhost:8080"
	defaultClientBackendTarget = "http://localhost:8000"
)

// NewDefaultConfig returns a Config with sane defaults for all fields.
// This is the single source of truth for default values.
func NewDefaultConfig() *Config {
	return &Config{
		Version: CurrentV,
		Relay: RelayConfig{
			Listen:        defaultRelayListen,
			Backend:       defaultBackend,
			StreamTimeout: defaultStreamTimeout,
		},
		API: APIConfig{
			Listen: defaultAPIListen,
		},
		EventStream: EventStreamConfig{
			Provider: defaultEventStreamProvider,
			Brokers:  defaultKafkaBrokers,
			Topic:    defaultKafkaTopic,
		},
		RateLimit: RateLimitConfig{
			Burst: defaultBurst,
		},
		Client: ClientConfig{
			RelayTarget:   defaultClientRelayTarget,
			BackendTarget: defaultClientBackendTarget,
		},
	}
}
