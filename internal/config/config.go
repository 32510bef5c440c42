// Package config manages the xlat64 daemon configuration using koanf/v2.
//
// Supports YAML files, environment variables, and compiled-in defaults.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// -------------------------------------------------------------------------
// Configuration Structures
// -------------------------------------------------------------------------

// Config holds the complete xlat64 daemon configuration.
type Config struct {
	Health    HealthConfig     `koanf:"health"`
	Metrics   MetricsConfig    `koanf:"metrics"`
	Log       LogConfig        `koanf:"log"`
	Instances []InstanceConfig `koanf:"instances"`
}

// HealthConfig holds the Connect-RPC health server configuration.
type HealthConfig struct {
	// Addr is the health-check listen address (e.g., ":50051").
	Addr string `koanf:"addr"`
}

// MetricsConfig holds the Prometheus metrics endpoint configuration.
type MetricsConfig struct {
	// Addr is the HTTP listen address for the metrics endpoint (e.g., ":9100").
	Addr string `koanf:"addr"`
	// Path is the URL path for the metrics endpoint (e.g., "/metrics").
	Path string `koanf:"path"`
}

// LogConfig holds the logging configuration.
type LogConfig struct {
	// Level is the log level: "debug", "info", "warn", "error".
	Level string `koanf:"level"`
	// Format is the log output format: "json" or "text".
	Format string `koanf:"format"`
}

// InstanceConfig describes one translator instance declaratively.
// Each entry is published to the registry on daemon startup and on SIGHUP
// reconciliation.
type InstanceConfig struct {
	// Name identifies the instance within its namespace (non-empty, <=15
	// bytes, printable — enforced by Validate).
	Name string `koanf:"name"`

	// Namespace is the owning network namespace identifier.
	Namespace string `koanf:"namespace"`

	// Framework is "netfilter" or "iptables"; at most one "netfilter"
	// instance may exist per namespace.
	Framework string `koanf:"framework"`

	// Mode is "siit" or "nat64".
	Mode string `koanf:"mode"`

	// ResetTOS, if true, replaces the translated TOS byte with NewTOS
	// instead of copying the IPv6 Traffic Class.
	ResetTOS bool `koanf:"reset_tos"`
	NewTOS   uint8 `koanf:"new_tos"`

	// Pool6 is the RFC 6052 translation prefix, e.g. "64:ff9b::/96".
	// NAT64 instances use it for every remote address; SIIT instances use
	// it for addresses with no EAM match.
	Pool6 string `koanf:"pool6"`

	// EAM lists explicit address mapping entries (SIIT).
	EAM []EAMEntryConfig `koanf:"eam"`

	// Blacklist4 lists IPv4 prefixes that must never be emitted as a
	// translated source (SIIT).
	Blacklist4 []string `koanf:"blacklist4"`

	// Pool6791 lists IPv4 addresses usable to mask untranslatable ICMP
	// error sources (RFC 6791).
	Pool6791 []string `koanf:"pool6791"`
}

// EAMEntryConfig is one Explicit Address Mapping prefix pair.
type EAMEntryConfig struct {
	Prefix4 string `koanf:"prefix4"`
	Prefix6 string `koanf:"prefix6"`
}

// -------------------------------------------------------------------------
// Defaults
// -------------------------------------------------------------------------

// DefaultConfig returns a Config populated with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Health: HealthConfig{
			Addr: ":50051",
		},
		Metrics: MetricsConfig{
			Addr: ":9100",
			Path: "/metrics",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// -------------------------------------------------------------------------
// Loader
// -------------------------------------------------------------------------

// envPrefix is the environment variable prefix for xlat64 configuration.
// Variables are named XLAT64_<section>_<key>, e.g., XLAT64_METRICS_ADDR.
const envPrefix = "XLAT64_"

// Load reads configuration from a YAML file at path, overlays environment
// variable overrides (XLAT64_ prefix), and merges on top of DefaultConfig().
// Missing fields inherit defaults. An empty path skips the file layer.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	defaults := DefaultConfig()
	if err := loadDefaults(k, defaults); err != nil {
		return nil, fmt.Errorf("load config defaults: %w", err)
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config from %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", envKeyMapper), nil); err != nil {
		return nil, fmt.Errorf("load env overrides: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("validate config from %s: %w", path, err)
	}

	return cfg, nil
}

// envKeyMapper transforms XLAT64_METRICS_ADDR -> metrics.addr.
func envKeyMapper(s string) string {
	s = strings.TrimPrefix(s, envPrefix)
	s = strings.ToLower(s)
	return strings.ReplaceAll(s, "_", ".")
}

// loadDefaults marshals the default config into koanf as the base layer.
func loadDefaults(k *koanf.Koanf, defaults *Config) error {
	defaultMap := map[string]any{
		"health.addr":   defaults.Health.Addr,
		"metrics.addr":  defaults.Metrics.Addr,
		"metrics.path":  defaults.Metrics.Path,
		"log.level":     defaults.Log.Level,
		"log.format":    defaults.Log.Format,
	}

	for key, val := range defaultMap {
		if err := k.Set(key, val); err != nil {
			return fmt.Errorf("set default %s: %w", key, err)
		}
	}

	return nil
}

// -------------------------------------------------------------------------
// Validation
// -------------------------------------------------------------------------

// Validation errors.
var (
	// ErrEmptyHealthAddr indicates the health listen address is empty.
	ErrEmptyHealthAddr = errors.New("health.addr must not be empty")

	// ErrInvalidInstanceName indicates an instance name is empty or too long.
	ErrInvalidInstanceName = errors.New("instance name must be non-empty, <=15 bytes, printable")

	// ErrInvalidInstanceMode indicates an instance mode is not siit/nat64.
	ErrInvalidInstanceMode = errors.New("instance mode must be siit or nat64")

	// ErrInvalidInstanceFramework indicates an instance framework is unrecognized.
	ErrInvalidInstanceFramework = errors.New("instance framework must be netfilter or iptables")

	// ErrDuplicateInstanceName indicates two instances in the same namespace
	// share a name.
	ErrDuplicateInstanceName = errors.New("duplicate instance name in namespace")

	// ErrDuplicateNetfilterInstance indicates more than one netfilter-framework
	// instance was declared for the same namespace.
	ErrDuplicateNetfilterInstance = errors.New("only one netfilter instance allowed per namespace")

	// ErrInvalidPool6 indicates a pool6 prefix failed to parse or has an
	// unsupported length.
	ErrInvalidPool6 = errors.New("pool6 must be a valid IPv6 prefix with length in {32,40,48,56,64,96}")
)

// validPool6Lengths are the RFC 6052 supported prefix lengths.
var validPool6Lengths = map[int]bool{32: true, 40: true, 48: true, 56: true, 64: true, 96: true}

// Validate checks the configuration for logical errors.
// Returns the first validation error encountered.
func Validate(cfg *Config) error {
	if cfg.Health.Addr == "" {
		return ErrEmptyHealthAddr
	}

	type nsKey struct{ ns, name string }
	seenNames := make(map[nsKey]struct{}, len(cfg.Instances))
	seenNetfilter := make(map[string]struct{}, len(cfg.Instances))

	for i, ic := range cfg.Instances {
		if err := validateInstanceName(ic.Name); err != nil {
			return fmt.Errorf("instances[%d]: %w", i, err)
		}

		switch ic.Mode {
		case "siit", "nat64":
		default:
			return fmt.Errorf("instances[%d] mode %q: %w", i, ic.Mode, ErrInvalidInstanceMode)
		}

		switch ic.Framework {
		case "netfilter", "iptables":
		default:
			return fmt.Errorf("instances[%d] framework %q: %w", i, ic.Framework, ErrInvalidInstanceFramework)
		}

		key := nsKey{ic.Namespace, ic.Name}
		if _, dup := seenNames[key]; dup {
			return fmt.Errorf("instances[%d] name %q: %w", i, ic.Name, ErrDuplicateInstanceName)
		}
		seenNames[key] = struct{}{}

		if ic.Framework == "netfilter" {
			if _, dup := seenNetfilter[ic.Namespace]; dup {
				return fmt.Errorf("instances[%d] namespace %q: %w", i, ic.Namespace, ErrDuplicateNetfilterInstance)
			}
			seenNetfilter[ic.Namespace] = struct{}{}
		}

		if ic.Pool6 != "" {
			if err := validatePool6(ic.Pool6); err != nil {
				return fmt.Errorf("instances[%d]: %w", i, err)
			}
		}
	}

	return nil
}

func validateInstanceName(name string) error {
	if name == "" || len(name) > 15 {
		return ErrInvalidInstanceName
	}
	for _, r := range name {
		if r < 0x20 || r > 0x7e {
			return ErrInvalidInstanceName
		}
	}
	return nil
}

func validatePool6(prefix string) error {
	slash := strings.LastIndexByte(prefix, '/')
	if slash < 0 {
		return ErrInvalidPool6
	}
	var length int
	if _, err := fmt.Sscanf(prefix[slash+1:], "%d", &length); err != nil {
		return ErrInvalidPool6
	}
	if !validPool6Lengths[length] {
		return ErrInvalidPool6
	}
	return nil
}

// -------------------------------------------------------------------------
// Log Level Parsing
// -------------------------------------------------------------------------

// ParseLogLevel maps a configuration log level string to the corresponding
// slog.Level. Unknown values default to slog.LevelInfo.
func ParseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
