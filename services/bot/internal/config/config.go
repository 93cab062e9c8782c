package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/example/anime-bot/internal/platform/auth"
	"github.com/example/anime-bot/services/bot/internal/ledger"
	"github.com/example/anime-bot/services/bot/internal/persist"
)

const (
	StorageFile     = "file"
	StoragePostgres = "postgres"
	StorageRedis    = "redis"
	StorageMemory   = "memory"
)

type Config struct {
	BotToken     string
	PollTimeout  time.Duration
	SourceChatID int64
	Admins       auth.Operators
	WelcomeImage string

	LedgerTrigger ledger.Trigger
	PageSize      int

	StorageBackend string
	DataDir        string
	CatalogDoc     string
	UsersDoc       string
	DatabaseURL    string
	RedisURL       string
	RedisPrefix    string
	WatchCatalog   bool

	NATSURL       string
	IngestEnabled bool
	IngestSubject string
	DedupTTL      time.Duration

	AdminJWTSecret string

	CBMaxRequests      uint32
	CBInterval         time.Duration
	CBTimeout          time.Duration
	CBFailureThreshold uint32
}

func Load() (Config, error) {
	token := strings.TrimSpace(os.Getenv("BOT_TOKEN"))
	if token == "" {
		return Config{}, errors.New("BOT_TOKEN is required")
	}

	cfg := Config{
		BotToken:     token,
		PollTimeout:  envDuration("TELEGRAM_POLL_TIMEOUT", 10*time.Second),
		SourceChatID: envInt64("SOURCE_CHAT_ID", 0),
		Admins:       auth.ParseOperators(os.Getenv("ADMIN_IDS")),
		WelcomeImage: strings.TrimSpace(os.Getenv("WELCOME_IMAGE")),

		LedgerTrigger: ledger.ParseTrigger(os.Getenv("LEDGER_TRIGGER")),
		PageSize:      envInt("PAGE_SIZE", 10),

		StorageBackend: strings.ToLower(envString("STORAGE_BACKEND", StorageFile)),
		DataDir:        envString("DATA_DIR", "./data"),
		CatalogDoc:     envString("CATALOG_DOC", persist.DefaultCatalogDoc),
		UsersDoc:       envString("USERS_DOC", persist.DefaultUsersDoc),
		DatabaseURL:    strings.TrimSpace(os.Getenv("DATABASE_URL")),
		RedisURL:       strings.TrimSpace(os.Getenv("REDIS_URL")),
		RedisPrefix:    strings.TrimSpace(os.Getenv("REDIS_PREFIX")),
		WatchCatalog:   envBool("WATCH_CATALOG", false),

		NATSURL:       strings.TrimSpace(os.Getenv("NATS_URL")),
		IngestEnabled: envBool("INGEST_ENABLED", false),
		IngestSubject: envString("INGEST_SUBJECT", "bot.ingest.episode"),
		DedupTTL:      envDuration("INGEST_DEDUP_TTL", 72*time.Hour),

		AdminJWTSecret: strings.TrimSpace(os.Getenv("ADMIN_JWT_SECRET")),

		CBMaxRequests:      uint32(envInt("CB_MAX_REQUESTS", 5)),
		CBInterval:         envDuration("CB_INTERVAL", 60*time.Second),
		CBTimeout:          envDuration("CB_TIMEOUT", 30*time.Second),
		CBFailureThreshold: uint32(envInt("CB_FAILURE_THRESHOLD", 5)),
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = 10
	}

	switch cfg.StorageBackend {
	case StorageFile, StorageMemory:
	case StoragePostgres:
		if cfg.DatabaseURL == "" {
			return Config{}, errors.New("STORAGE_BACKEND=postgres requires DATABASE_URL")
		}
	case StorageRedis:
		if cfg.RedisURL == "" {
			return Config{}, errors.New("STORAGE_BACKEND=redis requires REDIS_URL")
		}
	default:
		return Config{}, fmt.Errorf("unknown STORAGE_BACKEND %q", cfg.StorageBackend)
	}
	if cfg.IngestEnabled && cfg.NATSURL == "" {
		return Config{}, errors.New("INGEST_ENABLED requires NATS_URL")
	}
	if cfg.WatchCatalog && cfg.StorageBackend != StorageFile {
		return Config{}, errors.New("WATCH_CATALOG requires STORAGE_BACKEND=file")
	}
	return cfg, nil
}

func envString(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envInt64(key string, def int64) int64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return def
	}
	return n
}

func envDuration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}
