package config

import (
	"fmt"
	"net/netip"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"

	// MinSecretLength is the shortest HS256 key the service accepts.
	MinSecretLength = 32
)

// TokenConfig is the signing configuration handed to the token issuer.
type TokenConfig struct {
	Secret   string
	Issuer   string
	Audience string
	Lifetime time.Duration
}

type PasswordPolicy struct {
	MinLength              int
	RequireDigit           bool
	RequireLowercase       bool
	RequireUppercase       bool
	RequireNonAlphanumeric bool
	BcryptCost             int
}

// DatabaseConfig sizes the pgx pool.
type DatabaseConfig struct {
	URL             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

type LockoutPolicy struct {
	MaxFailedAttempts int
	Window            time.Duration
}

type Config struct {
	ServerPort              string
	ServerReadHeaderTimeout time.Duration
	ServerWriteTimeout      time.Duration
	ServerIdleTimeout       time.Duration
	RequestTimeout          time.Duration
	LogLevel                string
	StoreDriver             string
	Database                DatabaseConfig
	Token                   TokenConfig
	Password                PasswordPolicy
	Lockout                 LockoutPolicy
	DefaultRole             string
	CORSOrigins             []string
	RateLimitRPM            int
	AuthRateLimitRPM        int
	TrustedProxies          []netip.Prefix
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		ServerPort:              getEnv("SERVER_PORT", "8080"),
		ServerReadHeaderTimeout: getDuration("SERVER_READ_HEADER_TIMEOUT", 10*time.Second),
		ServerWriteTimeout:      getDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
		ServerIdleTimeout:       getDuration("SERVER_IDLE_TIMEOUT", 120*time.Second),
		RequestTimeout:          getDuration("REQUEST_TIMEOUT", 30*time.Second),
		LogLevel:                getEnv("LOG_LEVEL", "info"),
		StoreDriver:             strings.ToLower(getEnv("STORE_DRIVER", StoreDriverPostgres)),
		Database: DatabaseConfig{
			URL:             strings.TrimSpace(os.Getenv("DATABASE_URL")),
			MaxConns:        int32(getInt("DB_MAX_CONNS", 10)),
			MinConns:        int32(getInt("DB_MIN_CONNS", 1)),
			MaxConnLifetime: getDuration("DB_MAX_CONN_LIFETIME", 30*time.Minute),
			MaxConnIdleTime: getDuration("DB_MAX_CONN_IDLE_TIME", 5*time.Minute),
		},
		Token: TokenConfig{
			Secret:   strings.TrimSpace(os.Getenv("JWT_SECRET")),
			Issuer:   getEnv("JWT_ISSUER", "identity-api"),
			Audience: getEnv("JWT_AUDIENCE", "identity-api-clients"),
			Lifetime: time.Duration(getInt("JWT_EXPIRATION_MINUTES", 60)) * time.Minute,
		},
		Password: PasswordPolicy{
			MinLength:              getInt("PASSWORD_MIN_LENGTH", 6),
			RequireDigit:           getBool("PASSWORD_REQUIRE_DIGIT", true),
			RequireLowercase:       getBool("PASSWORD_REQUIRE_LOWERCASE", true),
			RequireUppercase:       getBool("PASSWORD_REQUIRE_UPPERCASE", true),
			RequireNonAlphanumeric: getBool("PASSWORD_REQUIRE_NON_ALPHANUMERIC", false),
			BcryptCost:             getInt("BCRYPT_COST", 12),
		},
		Lockout: LockoutPolicy{
			MaxFailedAttempts: getInt("LOCKOUT_MAX_FAILED_ATTEMPTS", 5),
			Window:            getDuration("LOCKOUT_WINDOW", 5*time.Minute),
		},
		DefaultRole:      getEnv("DEFAULT_ROLE", ""),
		CORSOrigins:      splitCSV(getEnv("CORS_ORIGINS", "*")),
		RateLimitRPM:     getInt("RATE_LIMIT_RPM", 100),
		AuthRateLimitRPM: getInt("AUTH_RATE_LIMIT_RPM", 10),
	}

	proxies, err := parseTrustedProxies(splitCSV(getEnv("TRUSTED_PROXIES", "")))
	if err != nil {
		return nil, err
	}
	cfg.TrustedProxies = proxies

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate rejects configurations the service must not start with. A missing
// or short signing secret is fatal.
func (c *Config) Validate() error {
	if err := c.Token.Validate(); err != nil {
		return err
	}

	if c.ServerPort == "" {
		return fmt.Errorf("SERVER_PORT cannot be empty")
	}

	if c.RequestTimeout <= 0 {
		return fmt.Errorf("REQUEST_TIMEOUT must be positive")
	}

	switch c.StoreDriver {
	case StoreDriverPostgres:
		if c.Database.URL == "" {
			return fmt.Errorf("DATABASE_URL is required when STORE_DRIVER=%s", StoreDriverPostgres)
		}
		if c.Database.MaxConns <= 0 || c.Database.MinConns < 0 || c.Database.MinConns > c.Database.MaxConns {
			return fmt.Errorf("DB_MIN_CONNS and DB_MAX_CONNS must satisfy 0 <= min <= max, max > 0")
		}
	case StoreDriverMemory:
	default:
		return fmt.Errorf("STORE_DRIVER must be %q or %q", StoreDriverPostgres, StoreDriverMemory)
	}

	if c.Password.MinLength < 1 {
		return fmt.Errorf("PASSWORD_MIN_LENGTH must be positive")
	}

	if c.Password.BcryptCost < 4 || c.Password.BcryptCost > 31 {
		return fmt.Errorf("BCRYPT_COST must be between 4 and 31")
	}

	if c.Lockout.MaxFailedAttempts <= 0 {
		return fmt.Errorf("LOCKOUT_MAX_FAILED_ATTEMPTS must be positive")
	}

	if c.Lockout.Window <= 0 {
		return fmt.Errorf("LOCKOUT_WINDOW must be positive")
	}

	return nil
}

func (t TokenConfig) Validate() error {
	if t.Secret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}

	if len(t.Secret) < MinSecretLength {
		return fmt.Errorf("JWT_SECRET must be at least %d bytes", MinSecretLength)
	}

	if t.Lifetime <= 0 {
		return fmt.Errorf("JWT_EXPIRATION_MINUTES must be positive")
	}

	return nil
}

// parseTrustedProxies reads the peers allowed to set X-Forwarded-For and
// X-Real-IP. Entries are bare addresses or CIDR ranges.
func parseTrustedProxies(entries []string) ([]netip.Prefix, error) {
	prefixes := make([]netip.Prefix, 0, len(entries))
	for _, entry := range entries {
		if prefix, err := netip.ParsePrefix(entry); err == nil {
			prefixes = append(prefixes, prefix.Masked())
			continue
		}
		addr, err := netip.ParseAddr(entry)
		if err != nil {
			return nil, fmt.Errorf("TRUSTED_PROXIES: invalid entry %q", entry)
		}
		prefixes = append(prefixes, netip.PrefixFrom(addr.Unmap(), addr.Unmap().BitLen()))
	}
	return prefixes, nil
}

func getEnv(key string, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}

	return v
}

func getInt(key string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}

	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}

	return v
}

func getBool(key string, fallback bool) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}

	v, err := strconv.ParseBool(raw)
	if err != nil {
		return fallback
	}

	return v
}

func getDuration(key string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}

	v, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return v
}

func splitCSV(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		out = append(out, trimmed)
	}

	return out
}
