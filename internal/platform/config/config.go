package config

import (
	"os"
	"strings"
)

// Config is centralized process configuration.
// Keep infra values here and pass typed config into builders.
type Config struct {
	ServiceName  string
	HTTPPort     string
	PostgresDSN  string
	EventBrokers []string

	AdminAddress string
	FundingAsset string

	EnableOutboxRelay   bool
	EnableRefundSweeper bool
}

func Load() (Config, error) {
	service := os.Getenv("SERVICE_NAME")
	if service == "" {
		service = "fundhouse"
	}

	port := os.Getenv("HTTP_PORT")
	if port == "" {
		port = "8080"
	}

	var brokers []string
	for _, value := range strings.Split(os.Getenv("EVENT_BROKERS"), ",") {
		value = strings.TrimSpace(value)
		if value != "" {
			brokers = append(brokers, value)
		}
	}
	if len(brokers) == 0 {
		brokers = []string{"localhost:9092"}
	}

	asset := strings.TrimSpace(os.Getenv("FUNDING_ASSET"))
	if asset == "" {
		asset = "FUND"
	}

	return Config{
		ServiceName:  service,
		HTTPPort:     port,
		PostgresDSN:  os.Getenv("POSTGRES_DSN"),
		EventBrokers: brokers,

		AdminAddress: strings.TrimSpace(os.Getenv("ADMIN_ADDRESS")),
		FundingAsset: asset,

		EnableOutboxRelay:   envBool("ENABLE_OUTBOX_RELAY", true),
		EnableRefundSweeper: envBool("ENABLE_REFUND_SWEEPER", true),
	}, nil
}

func envBool(name string, fallback bool) bool {
	raw := strings.TrimSpace(strings.ToLower(os.Getenv(name)))
	if raw == "" {
		return fallback
	}
	switch raw {
	case "1", "true", "t", "yes", "y", "on":
		return true
	case "0", "false", "f", "no", "n", "off":
		return false
	default:
		return fallback
	}
}
