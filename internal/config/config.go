// Package config loads the gateway's runtime configuration from a YAML
// file with environment-variable overrides: a plain struct plus
// yaml.v2, no viper, no reflection-based env binding beyond the
// explicit table below.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v2"
)

// Config is the full set of gateway-wide tunables. Default() supplies
// every field except OTLPEndpoint and JaegerEndpoint, which default to
// empty; YAML and then environment variables override it, in that order.
type Config struct {
	ListenAddr string `yaml:"listen_addr"`
	HTTPAddr   string `yaml:"http_addr"`

	HealthyHeartbeatSecs  uint64 `yaml:"healthy_heartbeat_secs"`
	DegradedHeartbeatSecs uint64 `yaml:"degraded_heartbeat_secs"`

	PendingQueueCap   uint32 `yaml:"pending_queue_cap"`
	MemoryHeadroomMiB uint64 `yaml:"memory_headroom_mib"`
	MaxWorkloadGPUs   uint32 `yaml:"max_workload_gpus"`

	ChallengeMaxAgeSecs    int64  `yaml:"challenge_max_age_secs"`
	ChallengeNonceCacheCap int    `yaml:"challenge_nonce_cache_size"`
	VerifierID             string `yaml:"verifier_id"`

	TracingExporter string `yaml:"tracing_exporter"` // "stdout", "otlp", "jaeger", "none"
	OTLPEndpoint    string `yaml:"otlp_endpoint"`
	JaegerEndpoint  string `yaml:"jaeger_endpoint"`
}

// Default returns the gateway's documented defaults.
func Default() Config {
	return Config{
		ListenAddr: ":7777",
		HTTPAddr:   ":7778",

		HealthyHeartbeatSecs:  30,
		DegradedHeartbeatSecs: 90,

		PendingQueueCap:   10_000,
		MemoryHeadroomMiB: 0,
		MaxWorkloadGPUs:   64,

		ChallengeMaxAgeSecs:    300,
		ChallengeNonceCacheCap: 10_000,
		VerifierID:             "clawgatewayd",

		TracingExporter: "stdout",
	}
}

// Load reads path (if non-empty and present) as YAML over the defaults,
// then applies environment-variable overrides, then validates.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return Config{}, fmt.Errorf("config: reading %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parsing %s: %w", path, err)
		}
	}

	applyEnvOverrides(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// envPrefix namespaces every override, matching the "CLAW_" style used by
// the gateway's deployment manifests.
const envPrefix = "CLAW_"

func applyEnvOverrides(cfg *Config) {
	if v, ok := lookupEnv("LISTEN_ADDR"); ok {
		cfg.ListenAddr = v
	}
	if v, ok := lookupEnv("HTTP_ADDR"); ok {
		cfg.HTTPAddr = v
	}
	if v, ok := lookupEnvUint("HEALTHY_HEARTBEAT_SECS"); ok {
		cfg.HealthyHeartbeatSecs = v
	}
	if v, ok := lookupEnvUint("DEGRADED_HEARTBEAT_SECS"); ok {
		cfg.DegradedHeartbeatSecs = v
	}
	if v, ok := lookupEnvUint("PENDING_QUEUE_CAP"); ok {
		cfg.PendingQueueCap = uint32(v)
	}
	if v, ok := lookupEnvUint("MEMORY_HEADROOM_MIB"); ok {
		cfg.MemoryHeadroomMiB = v
	}
	if v, ok := lookupEnvUint("MAX_WORKLOAD_GPUS"); ok {
		cfg.MaxWorkloadGPUs = uint32(v)
	}
	if v, ok := lookupEnvInt("CHALLENGE_MAX_AGE_SECS"); ok {
		cfg.ChallengeMaxAgeSecs = v
	}
	if v, ok := lookupEnvUint("CHALLENGE_NONCE_CACHE_SIZE"); ok {
		cfg.ChallengeNonceCacheCap = int(v)
	}
	if v, ok := lookupEnv("VERIFIER_ID"); ok {
		cfg.VerifierID = v
	}
	if v, ok := lookupEnv("TRACING_EXPORTER"); ok {
		cfg.TracingExporter = v
	}
	if v, ok := lookupEnv("OTLP_ENDPOINT"); ok {
		cfg.OTLPEndpoint = v
	}
	if v, ok := lookupEnv("JAEGER_ENDPOINT"); ok {
		cfg.JaegerEndpoint = v
	}
}

func lookupEnv(suffix string) (string, bool) {
	v, ok := os.LookupEnv(envPrefix + suffix)
	return v, ok && v != ""
}

func lookupEnvUint(suffix string) (uint64, bool) {
	raw, ok := lookupEnv(suffix)
	if !ok {
		return 0, false
	}
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func lookupEnvInt(suffix string) (int64, bool) {
	raw, ok := lookupEnv(suffix)
	if !ok {
		return 0, false
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// Validate rejects configurations that would make the gateway
// internally inconsistent (e.g. a degraded window shorter than the
// healthy window).
func (c Config) Validate() error {
	if c.DegradedHeartbeatSecs <= c.HealthyHeartbeatSecs {
		return fmt.Errorf("config: degraded_heartbeat_secs (%d) must exceed healthy_heartbeat_secs (%d)",
			c.DegradedHeartbeatSecs, c.HealthyHeartbeatSecs)
	}
	if c.MaxWorkloadGPUs == 0 {
		return fmt.Errorf("config: max_workload_gpus must be positive")
	}
	if c.VerifierID == "" {
		return fmt.Errorf("config: verifier_id must not be empty")
	}
	switch c.TracingExporter {
	case "stdout", "otlp", "jaeger", "none":
	default:
		return fmt.Errorf("config: unrecognized tracing_exporter %q", c.TracingExporter)
	}
	return nil
}
