package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// DefaultThankTemplate is used when THANK_TEMPLATE is not set. Recognized
// placeholders are {sats}, {who} and {rank}.
const DefaultThankTemplate = "⚡ Thanks for the {sats} sats{who}! You're currently #{rank} this week. 🙏"

type Config struct {
	Development bool
	// API configuration
	APIPort int
	// Postgres configuration
	PostgresUser     string
	PostgresPassword string
	PostgresHost     string
	PostgresPort     int
	PostgresDB       string
	// Nostr configuration
	Nsec   string
	Relays []string
	// Zap handling configuration
	MaxSatsPerZap  int64
	MinZapSats     int64
	ReplyOnUnknown bool
	AllowSelfZap   bool
	ThankTemplate  string
	// UnknownAmountLabel replaces {sats} when the amount could not be resolved.
	UnknownAmountLabel string
	// Leaderboard configuration
	MinLeaderboardInterval time.Duration
	TopN                   int

	// Operator alert configuration
	TelegramBotToken string
	TelegramChatID   string
}

// LoadConfig loads the configuration from environment variables
func LoadConfig() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg := &Config{
		Development:      getEnvAsBool("DEVELOPMENT", false),
		PostgresUser:     getEnv("POSTGRES_USER", "postgres"),
		PostgresPassword: getEnv("POSTGRES_PASSWORD", "password"),
		PostgresHost:     getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:     getEnvAsInt("POSTGRES_PORT", 5432),
		PostgresDB:       getEnv("POSTGRES_DB", "zapboard"),

		Nsec:   getEnv("NSEC", ""),
		Relays: splitRelays(getEnv("RELAYS", "")),

		MaxSatsPerZap:      getEnvAsInt64("MAX_SATS_PER_ZAP", 10_000_000),
		MinZapSats:         getEnvAsInt64("MIN_ZAP_SATS", 50),
		ReplyOnUnknown:     getEnvAsBool("REPLY_ON_UNKNOWN", true),
		AllowSelfZap:       getEnvAsBool("ALLOW_SELF_ZAP", false),
		ThankTemplate:      getEnv("THANK_TEMPLATE", DefaultThankTemplate),
		UnknownAmountLabel: getEnv("UNKNOWN_AMOUNT_LABEL", "⚡"),

		MinLeaderboardInterval: time.Duration(getEnvAsInt("MIN_LEADERBOARD_INTERVAL", 300)) * time.Second,
		TopN:                   getEnvAsInt("TOP_N", 10),

		APIPort: getEnvAsInt("API_PORT", 6533),

		TelegramBotToken: getEnv("TELEGRAM_BOT_TOKEN", ""),
		TelegramChatID:   getEnv("TELEGRAM_CHAT_ID", ""),
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are properly set
func (c *Config) Validate() error {
	if c.Nsec == "" {
		return fmt.Errorf("NSEC is required")
	}

	if len(c.Relays) == 0 {
		return fmt.Errorf("RELAYS is required")
	}
	for _, relay := range c.Relays {
		if !strings.HasPrefix(relay, "wss://") && !strings.HasPrefix(relay, "ws://") {
			return fmt.Errorf("invalid relay URL %q: must start with wss://", relay)
		}
	}

	if c.PostgresDB == "" {
		return fmt.Errorf("POSTGRES_DB is required")
	}

	if c.PostgresHost == "" {
		return fmt.Errorf("POSTGRES_HOST is required")
	}

	if c.MaxSatsPerZap <= 0 {
		return fmt.Errorf("MAX_SATS_PER_ZAP must be positive")
	}

	if c.TopN <= 0 {
		return fmt.Errorf("TOP_N must be positive")
	}

	return nil
}

// splitRelays accepts comma, space or newline separated relay lists.
func splitRelays(raw string) []string {
	var relays []string
	for _, chunk := range strings.Split(raw, ",") {
		for _, relay := range strings.Fields(chunk) {
			relays = append(relays, relay)
		}
	}
	return relays
}

// Helper functions to read environment variables
func getEnv(key string, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(name string, defaultValue int) int {
	if valueStr, exists := os.LookupEnv(name); exists {
		if value, err := strconv.Atoi(valueStr); err == nil {
			return value
		}
	}
	return defaultValue
}

func getEnvAsInt64(name string, defaultValue int64) int64 {
	if valueStr, exists := os.LookupEnv(name); exists {
		if value, err := strconv.ParseInt(valueStr, 10, 64); err == nil {
			return value
		}
	}
	return defaultValue
}

func getEnvAsBool(name string, defaultValue bool) bool {
	if valueStr, exists := os.LookupEnv(name); exists {
		if value, err := strconv.ParseBool(valueStr); err == nil {
			return value
		}
	}
	return defaultValue
}
