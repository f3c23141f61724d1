package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// LoadDotEnv loads environment variables from a .env file if present.
// Existing environment variables are not overwritten.
func LoadDotEnv(path string) error {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return godotenv.Load(path)
}

type Config struct {
	Port           string
	RealtimePort   string
	DatabaseURL    string
	DatabaseDriver string
	AutoMigrate    bool
	ServiceToken   string
	AllowedOrigins []string
	CatalogPath    string

	PlayerStaleAfter time.Duration
	InvitationTTL    time.Duration
	SessionIdleAfter time.Duration
	MaxMoveSpeed     float64

	ProfileSyncURL string
	PaymentSyncURL string

	R2 R2Config
}

type R2Config struct {
	AccountID       string
	AccessKeyID     string
	AccessKeySecret string
	Bucket          string
	CDNBaseURL      string
}

// Enabled reports whether enough settings are present to talk to R2.
func (r R2Config) Enabled() bool {
	return r.AccountID != "" && r.AccessKeyID != "" && r.AccessKeySecret != "" && r.Bucket != ""
}

func Default() Config {
	return Config{
		Port:             "5200",
		RealtimePort:     "5201",
		DatabaseDriver:   "postgres",
		AutoMigrate:      true,
		AllowedOrigins:   []string{"http://localhost:3000"},
		CatalogPath:      "config/catalog.yaml",
		PlayerStaleAfter: 15 * time.Second,
		InvitationTTL:    30 * time.Minute,
		SessionIdleAfter: 60 * time.Minute,
		MaxMoveSpeed:     12,
	}
}

func Load() Config {
	cfg := Default()
	if raw := os.Getenv("PORT"); raw != "" {
		cfg.Port = raw
	}
	if raw := os.Getenv("REALTIME_PORT"); raw != "" {
		cfg.RealtimePort = raw
	}
	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if raw := os.Getenv("DATABASE_DRIVER"); raw != "" {
		cfg.DatabaseDriver = strings.ToLower(strings.TrimSpace(raw))
	}
	if raw := os.Getenv("AUTO_MIGRATE"); raw != "" {
		if value, err := strconv.ParseBool(raw); err == nil {
			cfg.AutoMigrate = value
		}
	}
	cfg.ServiceToken = os.Getenv("GAME_SERVICE_TOKEN")
	if raw := os.Getenv("ALLOWED_ORIGINS"); raw != "" {
		var origins []string
		for _, origin := range strings.Split(raw, ",") {
			if origin = strings.TrimSpace(origin); origin != "" {
				origins = append(origins, origin)
			}
		}
		if len(origins) > 0 {
			cfg.AllowedOrigins = origins
		}
	}
	if raw := os.Getenv("CATALOG_PATH"); raw != "" {
		cfg.CatalogPath = raw
	}
	if raw := os.Getenv("PLAYER_STALE_SECONDS"); raw != "" {
		if value, err := strconv.Atoi(raw); err == nil && value > 0 {
			cfg.PlayerStaleAfter = time.Duration(value) * time.Second
		}
	}
	if raw := os.Getenv("INVITATION_TTL_MINUTES"); raw != "" {
		if value, err := strconv.Atoi(raw); err == nil && value > 0 {
			cfg.InvitationTTL = time.Duration(value) * time.Minute
		}
	}
	if raw := os.Getenv("SESSION_IDLE_MINUTES"); raw != "" {
		if value, err := strconv.Atoi(raw); err == nil && value > 0 {
			cfg.SessionIdleAfter = time.Duration(value) * time.Minute
		}
	}
	if raw := os.Getenv("MAX_MOVE_SPEED"); raw != "" {
		if value, err := strconv.ParseFloat(raw, 64); err == nil && value > 0 {
			cfg.MaxMoveSpeed = value
		}
	}
	cfg.ProfileSyncURL = os.Getenv("PROFILE_SYNC_URL")
	cfg.PaymentSyncURL = os.Getenv("PAYMENT_SYNC_URL")
	cfg.R2 = R2Config{
		AccountID:       os.Getenv("CLOUDFLARE_ACCOUNT_ID"),
		AccessKeyID:     os.Getenv("R2_ACCESS_KEY_ID"),
		AccessKeySecret: os.Getenv("R2_ACCESS_KEY_SECRET"),
		Bucket:          os.Getenv("R2_BUCKET_NAME"),
		CDNBaseURL:      os.Getenv("CDN_BASE_URL"),
	}
	return cfg
}
