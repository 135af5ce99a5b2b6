package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/MikeSquared-Agency/verity/internal/ledger"
	"github.com/MikeSquared-Agency/verity/internal/trust"
)

type Config struct {
	Port        int
	NatsURL     string
	NatsToken   string
	DatabaseURL string
	LogLevel    string
	APIToken    string
	Admins      []string

	MaxStake           uint64
	MinStakeCeiling    uint64
	MaxStakeCeiling    uint64
	StakeUnit          uint64
	MaxReputation      uint64
	PageSize           uint64
	ScanLimit          uint64
	UnboundedReadLimit uint64

	MetadataBackend     string
	MetadataLevelDBPath string

	EscrowURL    string
	EscrowAPIKey string

	SlackBotToken string
	SlackChannel  string
}

func Load() Config {
	return Config{
		Port:        envInt("VERITY_PORT", 8760),
		NatsURL:     envStr("NATS_URL", "nats://hermes:4222"),
		NatsToken:   envStr("NATS_TOKEN", ""),
		DatabaseURL: envStr("DATABASE_URL", ""),
		LogLevel:    envStr("LOG_LEVEL", "info"),
		APIToken:    envStr("VERITY_API_TOKEN", ""),
		Admins:      envList("VERITY_ADMINS"),

		MaxStake:           envUint("VERITY_MAX_STAKE", 1_000_000),
		MinStakeCeiling:    envUint("VERITY_MIN_STAKE_CEILING", 1_000),
		MaxStakeCeiling:    envUint("VERITY_MAX_STAKE_CEILING", 1_000_000_000),
		StakeUnit:          envUint("VERITY_STAKE_UNIT", 1_000),
		MaxReputation:      envUint("VERITY_MAX_REPUTATION", 10_000),
		PageSize:           envUint("VERITY_PAGE_SIZE", 100),
		ScanLimit:          envUint("VERITY_SCAN_LIMIT", 1_000),
		UnboundedReadLimit: envUint("VERITY_UNBOUNDED_LIMIT", 500),

		MetadataBackend:     envStr("METADATA_BACKEND", "postgres"),
		MetadataLevelDBPath: envStr("METADATA_LEVELDB_PATH", "/var/lib/verity/metadata"),

		EscrowURL:    envStr("ESCROW_URL", ""),
		EscrowAPIKey: envStr("ESCROW_API_KEY", ""),

		SlackBotToken: envStr("SLACK_BOT_TOKEN", ""),
		SlackChannel:  envStr("SLACK_ALERTS_CHANNEL", ""),
	}
}

// LedgerParams maps the configuration onto ledger parameters.
func (c Config) LedgerParams() ledger.Params {
	return ledger.Params{
		MaxStake:        c.MaxStake,
		MinStakeCeiling: c.MinStakeCeiling,
		MaxStakeCeiling: c.MaxStakeCeiling,
		Weight: trust.WeightParams{
			MaxReputation: c.MaxReputation,
			StakeUnit:     c.StakeUnit,
		},
		MaxPageSize:        c.PageSize,
		ScanLimit:          c.ScanLimit,
		UnboundedReadLimit: c.UnboundedReadLimit,
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envUint(key string, fallback uint64) uint64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseUint(strings.ReplaceAll(v, "_", ""), 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func envList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
