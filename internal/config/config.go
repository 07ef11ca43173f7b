// Package config parses indexerd's environment-variable configuration the
// way services/otc-gateway/config.Config.FromEnv does in the teacher repo:
// required variables fail fast with a wrapped error, optional variables
// fall back to documented defaults, and durations/bools/CSV lists go
// through small typed parsers.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	telemetry "github.com/proposalsapp/govindexer/observability/otel"
)

// GovernorConfig describes one registered indexer: which governor variant
// it speaks, the contract it watches, and the chain it reads from.
type GovernorConfig struct {
	Name            string // unique registration name, e.g. "arbitrum-council"
	Variant         string // "nomination" | "treasury"
	ContractAddress common.Address
	ChainID         string
	RPCEndpoint     string
	DAOID           string
}

// Config is the full set of environment-derived settings for the
// indexerd boot harness.
type Config struct {
	Env              string
	DatabaseDSN      string
	MinSpeed         uint64
	MaxSpeed         uint64
	TickInterval     time.Duration
	TickTimeout      time.Duration
	OTLPEndpoint     string
	OTLPInsecure     bool
	OTLPHeaders      map[string]string
	MetricsAddr      string
	AvgBlockTimeMS   int64
	Governors        []GovernorConfig
}

// FromEnv loads Config from the process environment, mirroring the
// teacher's required-fails-fast / optional-has-default pattern.
func FromEnv() (Config, error) {
	cfg := Config{
		Env:            strings.TrimSpace(os.Getenv("GOVINDEXER_ENV")),
		MetricsAddr:    envOrDefault("GOVINDEXER_METRICS_ADDR", ":9300"),
		AvgBlockTimeMS: 12_200,
	}

	dsn, err := requiredEnv("GOVINDEXER_DATABASE_DSN")
	if err != nil {
		return Config{}, err
	}
	cfg.DatabaseDSN = dsn

	cfg.MinSpeed, err = envUint("GOVINDEXER_MIN_SPEED", 100)
	if err != nil {
		return Config{}, err
	}
	cfg.MaxSpeed, err = envUint("GOVINDEXER_MAX_SPEED", 5_000)
	if err != nil {
		return Config{}, err
	}
	cfg.TickInterval, err = envDuration("GOVINDEXER_TICK_INTERVAL", 30*time.Second)
	if err != nil {
		return Config{}, err
	}
	cfg.TickTimeout, err = envDuration("GOVINDEXER_TICK_TIMEOUT", 5*time.Minute)
	if err != nil {
		return Config{}, err
	}
	if raw := strings.TrimSpace(os.Getenv("GOVINDEXER_AVG_BLOCK_TIME_MS")); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return Config{}, fmt.Errorf("config: parse GOVINDEXER_AVG_BLOCK_TIME_MS: %w", err)
		}
		cfg.AvgBlockTimeMS = parsed
	}

	cfg.OTLPEndpoint = strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"))
	cfg.OTLPInsecure, err = envBool("OTEL_EXPORTER_OTLP_INSECURE", true)
	if err != nil {
		return Config{}, err
	}
	cfg.OTLPHeaders = telemetry.ParseHeaders(os.Getenv("OTEL_EXPORTER_OTLP_HEADERS"))

	if path := strings.TrimSpace(os.Getenv("GOVINDEXER_GOVERNORS_FILE")); path != "" {
		governors, err := loadGovernorsFile(path)
		if err != nil {
			return Config{}, err
		}
		cfg.Governors = governors
		return cfg, nil
	}

	governors, err := parseGovernors()
	if err != nil {
		return Config{}, err
	}
	cfg.Governors = governors

	return cfg, nil
}

// parseGovernors reads GOVINDEXER_GOVERNORS, a comma-separated list of
// registration names, then one block of NAME_* variables per entry. This
// keeps the env surface flat (no nested config file) while still
// supporting an arbitrary number of registered indexers, the same
// flattened-list convention the teacher uses for CSV env vars. Deployments
// registering many indexers at once should prefer GOVINDEXER_GOVERNORS_FILE
// instead (see governors_file.go).
func parseGovernors() ([]GovernorConfig, error) {
	names := splitCSV(os.Getenv("GOVINDEXER_GOVERNORS"))
	if len(names) == 0 {
		return nil, fmt.Errorf("config: GOVINDEXER_GOVERNORS must list at least one indexer name")
	}
	out := make([]GovernorConfig, 0, len(names))
	for _, name := range names {
		prefix := "GOVINDEXER_" + strings.ToUpper(name) + "_"
		variant, err := requiredEnv(prefix + "VARIANT")
		if err != nil {
			return nil, err
		}
		addrRaw, err := requiredEnv(prefix + "CONTRACT")
		if err != nil {
			return nil, err
		}
		if !common.IsHexAddress(addrRaw) {
			return nil, fmt.Errorf("config: %sCONTRACT: not a valid address: %q", prefix, addrRaw)
		}
		chainID, err := requiredEnv(prefix + "CHAIN_ID")
		if err != nil {
			return nil, err
		}
		rpc, err := requiredEnv(prefix + "RPC")
		if err != nil {
			return nil, err
		}
		daoID, err := requiredEnv(prefix + "DAO_ID")
		if err != nil {
			return nil, err
		}
		out = append(out, GovernorConfig{
			Name:            name,
			Variant:         strings.ToLower(variant),
			ContractAddress: common.HexToAddress(addrRaw),
			ChainID:         chainID,
			RPCEndpoint:     rpc,
			DAOID:           daoID,
		})
	}
	return out, nil
}

func requiredEnv(key string) (string, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return "", fmt.Errorf("config: %s is required", key)
	}
	return v, nil
}

func envOrDefault(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func envUint(key string, def uint64) (uint64, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def, nil
	}
	parsed, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("config: parse %s: %w", key, err)
	}
	return parsed, nil
}

func envDuration(key string, def time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def, nil
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("config: parse %s: %w", key, err)
	}
	return parsed, nil
}

func envBool(key string, def bool) (bool, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def, nil
	}
	parsed, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("config: parse %s: %w", key, err)
	}
	return parsed, nil
}

func splitCSV(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
