package config

import (
	"context"
	"log/slog"
	"os"
	"strconv"
	"time"

	infisical "github.com/infisical/go-sdk"
)

type Config struct {
	Port           string
	DatabaseURL    string
	RedisURL       string
	RedisPassword  string
	FrontendOrigin string

	DuneAPIURL       string
	DuneAPIKey       string
	DunePollInterval time.Duration
	DuneMaxWait      time.Duration

	RPCURL       string
	IndexerURL   string
	AnalyticsURL string
	PriceAPIURL  string
	CMSURL       string

	PollInterval   time.Duration
	RateLimitRPS   float64
	RateLimitBurst int

	TelegramToken       string
	TelegramAlertChatID int64

	QueriesFile   string
	VeOGVContract string
	OGVContract   string
}

func Load() Config {
	cfg := Config{
		Port:           envOr("PORT", "8080"),
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		RedisURL:       os.Getenv("REDIS_URL"),
		RedisPassword:  os.Getenv("REDIS_PASSWORD"),
		FrontendOrigin: envOr("FRONTEND_ORIGIN", "*"),

		DuneAPIURL:       envOr("DUNE_API_URL", "https://api.dune.com/api/v1"),
		DuneAPIKey:       os.Getenv("DUNE_API_KEY"),
		DunePollInterval: durationOr("DUNE_POLL_INTERVAL", 5*time.Second),
		DuneMaxWait:      durationOr("DUNE_MAX_WAIT", 10*time.Minute),

		RPCURL:       os.Getenv("RPC_URL"),
		IndexerURL:   envOr("INDEXER_URL", "https://squid.subsquid.io/origin-squid/graphql"),
		AnalyticsURL: envOr("ANALYTICS_URL", "https://analytics.ousd.com"),
		PriceAPIURL:  envOr("PRICE_API_URL", "https://api.coingecko.com/api/v3"),
		CMSURL:       os.Getenv("CMS_URL"),

		PollInterval:   durationOr("POLL_INTERVAL", 5*time.Minute),
		RateLimitRPS:   floatOr("RATE_LIMIT_RPS", 20),
		RateLimitBurst: intOr("RATE_LIMIT_BURST", 40),

		TelegramToken:       os.Getenv("TELEGRAM_BOT_TOKEN"),
		TelegramAlertChatID: int64(intOr("TELEGRAM_ALERT_CHAT_ID", 0)),

		QueriesFile:   os.Getenv("QUERIES_FILE"),
		VeOGVContract: envOr("VEOGV_CONTRACT", "0x0C4576Ca1c365868E162554AF8e385dc3e7C66D9"),
		OGVContract:   envOr("OGV_CONTRACT", "0x9c354503C38481a7A7a51629142963F98eCC12D0"),
	}

	// If Infisical credentials are available, fetch secrets from Infisical
	clientID := os.Getenv("INFISICAL_CLIENT_ID")
	clientSecret := os.Getenv("INFISICAL_CLIENT_SECRET")
	if clientID != "" && clientSecret != "" {
		loadFromInfisical(&cfg, clientID, clientSecret)
	}

	return cfg
}

func loadFromInfisical(cfg *Config, clientID, clientSecret string) {
	siteURL := envOr("INFISICAL_SITE_URL",
		"http://infisical-infisical-standalone-infisical.infisical.svc.cluster.local:8080")
	projectID := os.Getenv("INFISICAL_PROJECT_ID")
	envSlug := envOr("INFISICAL_ENV", "prod")

	if projectID == "" {
		slog.Warn("INFISICAL_PROJECT_ID not set, skipping Infisical")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client := infisical.NewInfisicalClient(ctx, infisical.Config{
		SiteUrl:          siteURL,
		AutoTokenRefresh: false,
	})

	_, err := client.Auth().UniversalAuthLogin(clientID, clientSecret)
	if err != nil {
		slog.Error("infisical auth failed", "error", err)
		return
	}

	for key, target := range secretTargets(cfg) {
		if *target != "" {
			continue // env var already set, skip
		}
		secret, err := client.Secrets().Retrieve(infisical.RetrieveSecretOptions{
			SecretKey:   key,
			Environment: envSlug,
			ProjectID:   projectID,
			SecretPath:  "/",
		})
		if err != nil {
			slog.Warn("failed to retrieve secret from infisical", "key", key, "error", err)
			continue
		}
		*target = secret.SecretValue
		slog.Info("loaded secret from infisical", "key", key)
	}
}

// secretTargets maps secret names to the config fields they fill.
func secretTargets(cfg *Config) map[string]*string {
	return map[string]*string{
		"DUNE_API_KEY":       &cfg.DuneAPIKey,
		"TELEGRAM_BOT_TOKEN": &cfg.TelegramToken,
		"REDIS_PASSWORD":     &cfg.RedisPassword,
		"RPC_URL":            &cfg.RPCURL,
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func durationOr(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		slog.Warn("invalid duration, using default", "key", key, "value", v, "default", fallback)
		return fallback
	}
	return d
}

func intOr(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		slog.Warn("invalid integer, using default", "key", key, "value", v, "default", fallback)
		return fallback
	}
	return n
}

func floatOr(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		slog.Warn("invalid number, using default", "key", key, "value", v, "default", fallback)
		return fallback
	}
	return f
}
