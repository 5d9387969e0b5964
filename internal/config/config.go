package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"salesdesk/backend/internal/logger"
)

type Config struct {
	Port           string
	ClientOrigins  []string
	DatabaseURL    string
	AutoMigrate    bool
	MongoURI       string
	MongoDB        string
	RedisAddr      string
	RedisPassword  string
	RedisDB        int
	TrustProxy     bool
	RateLimitPer15 int
	LoginPerMinute int

	AuthSecret            string
	AccessTokenTTLMinutes int
	SeedAdminEmail        string
	SeedAdminPassword     string

	LowStockThreshold  int
	ReportTimezone     string
	ReserveMaxAttempts int

	Logger logger.Config
}

// Load reads the environment after merging a .env file from the working
// directory when one exists. Variables already set win over the file.
func Load() Config {
	if err := loadDotEnv(".env"); err != nil {
		fmt.Fprintf(os.Stderr, "config: ignoring .env: %v\n", err)
	}

	return Config{
		Port:           getEnv("PORT", "8080"),
		ClientOrigins:  getEnvSlice("CLIENT_ORIGINS", []string{"http://localhost:5173"}),
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		AutoMigrate:    getEnvBool("AUTO_MIGRATE", true),
		MongoURI:       os.Getenv("MONGO_URI"),
		MongoDB:        getEnv("MONGO_DB", "salesdesk"),
		RedisAddr:      os.Getenv("REDIS_ADDR"),
		RedisPassword:  os.Getenv("REDIS_PASSWORD"),
		RedisDB:        getEnvInt("REDIS_DB", 0, 0),
		TrustProxy:     getEnvBool("TRUST_PROXY", false),
		RateLimitPer15: getEnvInt("RATE_LIMIT_PER_15M", 100, 1),
		LoginPerMinute: getEnvInt("LOGIN_RATE_LIMIT_PER_MINUTE", 5, 1),

		AuthSecret:            strings.TrimSpace(os.Getenv("AUTH_SECRET")),
		AccessTokenTTLMinutes: getEnvInt("ACCESS_TOKEN_TTL_MINUTES", 480, 1),
		SeedAdminEmail:        strings.TrimSpace(os.Getenv("SEED_ADMIN_EMAIL")),
		SeedAdminPassword:     os.Getenv("SEED_ADMIN_PASSWORD"),

		LowStockThreshold:  getEnvInt("LOW_STOCK_THRESHOLD", 10, 1),
		ReportTimezone:     getEnv("REPORT_TIMEZONE", "UTC"),
		ReserveMaxAttempts: getEnvInt("RESERVE_MAX_ATTEMPTS", 3, 1),

		Logger: logger.Config{
			Development:       getEnvBool("LOG_DEVELOPMENT", false),
			Encoding:          getEnv("LOG_ENCODING", "json"),
			Level:             getEnv("LOG_LEVEL", "info"),
			DisableCaller:     getEnvBool("LOG_DISABLE_CALLER", false),
			DisableStacktrace: getEnvBool("LOG_DISABLE_STACKTRACE", true),
		},
	}
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

func loadDotEnv(path string) error {
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return godotenv.Load(path)
}

func getEnv(key string, fallback string) string {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return fallback
	}
	return val
}

// getEnvInt falls back when the value is missing, malformed or below floor.
func getEnvInt(key string, fallback int, floor int) int {
	parsed, err := strconv.Atoi(getEnv(key, strconv.Itoa(fallback)))
	if err != nil || parsed < floor {
		return fallback
	}
	return parsed
}

func getEnvBool(key string, fallback bool) bool {
	parsed, err := strconv.ParseBool(getEnv(key, strconv.FormatBool(fallback)))
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvSlice(key string, fallback []string) []string {
	raw := getEnv(key, "")
	if raw == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
