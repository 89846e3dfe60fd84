package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config captures runtime settings for the Evidence Ledger service.
type Config struct {
	Addr string `yaml:"addr"`

	TLSCertFile       string `yaml:"tlsCertFile"`
	TLSKeyFile        string `yaml:"tlsKeyFile"`
	TLSClientCAFile   string `yaml:"tlsClientCaFile"`
	RequireClientCert bool   `yaml:"requireClientCert"`

	DatabaseDriver string `yaml:"databaseDriver"`
	DatabaseURL    string `yaml:"databaseUrl"`

	FileBackend     string        `yaml:"fileBackend"`
	FileRoot        string        `yaml:"fileRoot"`
	FileBucket      string        `yaml:"fileBucket"`
	FilePrefix      string        `yaml:"filePrefix"`
	FileReadTimeout time.Duration `yaml:"fileReadTimeout"`
	MaxUploadBytes  int           `yaml:"maxUploadBytes"`

	AuditMaxAttempts int           `yaml:"auditMaxAttempts"`
	AuditBackoff     time.Duration `yaml:"auditBackoff"`

	JWTPublicKeysFile  string `yaml:"jwtPublicKeysFile"`
	JWTIssuer          string `yaml:"jwtIssuer"`
	AllowDevPrincipals bool   `yaml:"allowDevPrincipals"`

	RedisAddr     string        `yaml:"redisAddr"`
	RedisPassword string        `yaml:"-"`
	RedisDB       int           `yaml:"redisDb"`
	VerifyLockTTL time.Duration `yaml:"verifyLockTtl"`

	StreamerEnabled   bool     `yaml:"streamerEnabled"`
	KafkaBrokers      []string `yaml:"kafkaBrokers"`
	KafkaTopic        string   `yaml:"kafkaTopic"`
	ArchiveBucket     string   `yaml:"archiveBucket"`
	ArchivePrefix     string   `yaml:"archivePrefix"`
	StreamerBatchSize int      `yaml:"streamerBatchSize"`

	RateLimitRPS   int `yaml:"rateLimitRps"`
	RateLimitBurst int `yaml:"rateLimitBurst"`

	MaxCorrelationDepth int `yaml:"maxCorrelationDepth"`
}

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"

	FileBackendLocal = "local"
	FileBackendS3    = "s3"
)

const (
	defaultAddr                = ":8052"
	defaultFileRoot            = "./data/evidence"
	defaultFileReadTimeout     = 30 * time.Second
	defaultMaxUploadBytes      = 512 << 20 // 512MB
	defaultAuditMaxAttempts    = 3
	defaultAuditBackoff        = 100 * time.Millisecond
	defaultVerifyLockTTL       = 2 * time.Minute
	defaultKafkaTopic          = "evidence-ledger.audit"
	defaultStreamerBatchSize   = 20
	defaultRateLimitRPS        = 20
	defaultRateLimitBurst      = 40
	defaultMaxCorrelationDepth = 4
)

// Defaults returns a Config populated with built-in defaults only.
func Defaults() Config {
	return Config{
		Addr:                defaultAddr,
		DatabaseDriver:      DriverPostgres,
		FileBackend:         FileBackendLocal,
		FileRoot:            defaultFileRoot,
		FileReadTimeout:     defaultFileReadTimeout,
		MaxUploadBytes:      defaultMaxUploadBytes,
		AuditMaxAttempts:    defaultAuditMaxAttempts,
		AuditBackoff:        defaultAuditBackoff,
		VerifyLockTTL:       defaultVerifyLockTTL,
		KafkaTopic:          defaultKafkaTopic,
		StreamerBatchSize:   defaultStreamerBatchSize,
		RateLimitRPS:        defaultRateLimitRPS,
		RateLimitBurst:      defaultRateLimitBurst,
		MaxCorrelationDepth: defaultMaxCorrelationDepth,
	}
}

// Load builds the configuration from defaults, an optional YAML file named by
// EVIDENCE_LEDGER_CONFIG_FILE, and environment variables (highest precedence).
func Load() (Config, error) {
	cfg := Defaults()
	if path := os.Getenv("EVIDENCE_LEDGER_CONFIG_FILE"); path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}
	applyEnv(&cfg)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) {
	cfg.Addr = getEnv("EVIDENCE_LEDGER_ADDR", cfg.Addr)
	cfg.TLSCertFile = getEnv("EVIDENCE_LEDGER_TLS_CERT_FILE", cfg.TLSCertFile)
	cfg.TLSKeyFile = getEnv("EVIDENCE_LEDGER_TLS_KEY_FILE", cfg.TLSKeyFile)
	cfg.TLSClientCAFile = getEnv("EVIDENCE_LEDGER_TLS_CLIENT_CA_FILE", cfg.TLSClientCAFile)
	cfg.RequireClientCert = getBool("EVIDENCE_LEDGER_REQUIRE_CLIENT_CERT", cfg.RequireClientCert)
	cfg.DatabaseDriver = strings.ToLower(getEnv("EVIDENCE_LEDGER_DATABASE_DRIVER", cfg.DatabaseDriver))
	cfg.DatabaseURL = firstNonEmpty(os.Getenv("EVIDENCE_LEDGER_DATABASE_URL"), os.Getenv("DATABASE_URL"), cfg.DatabaseURL)

	cfg.FileBackend = strings.ToLower(getEnv("EVIDENCE_LEDGER_FILE_BACKEND", cfg.FileBackend))
	cfg.FileRoot = getEnv("EVIDENCE_LEDGER_FILE_ROOT", cfg.FileRoot)
	cfg.FileBucket = getEnv("EVIDENCE_LEDGER_FILE_BUCKET", cfg.FileBucket)
	cfg.FilePrefix = getEnv("EVIDENCE_LEDGER_FILE_PREFIX", cfg.FilePrefix)
	cfg.FileReadTimeout = getDuration("EVIDENCE_LEDGER_FILE_READ_TIMEOUT", cfg.FileReadTimeout)
	cfg.MaxUploadBytes = getInt("EVIDENCE_LEDGER_MAX_UPLOAD_BYTES", cfg.MaxUploadBytes)

	cfg.AuditMaxAttempts = getInt("EVIDENCE_LEDGER_AUDIT_MAX_ATTEMPTS", cfg.AuditMaxAttempts)
	cfg.AuditBackoff = getDuration("EVIDENCE_LEDGER_AUDIT_BACKOFF", cfg.AuditBackoff)

	cfg.JWTPublicKeysFile = getEnv("EVIDENCE_LEDGER_JWT_PUBLIC_KEYS_FILE", cfg.JWTPublicKeysFile)
	cfg.JWTIssuer = getEnv("EVIDENCE_LEDGER_JWT_ISSUER", cfg.JWTIssuer)
	cfg.AllowDevPrincipals = getBool("EVIDENCE_LEDGER_ALLOW_DEV_PRINCIPALS", cfg.AllowDevPrincipals)

	cfg.RedisAddr = getEnv("EVIDENCE_LEDGER_REDIS_ADDR", cfg.RedisAddr)
	cfg.RedisPassword = getEnv("EVIDENCE_LEDGER_REDIS_PASSWORD", cfg.RedisPassword)
	cfg.RedisDB = getInt("EVIDENCE_LEDGER_REDIS_DB", cfg.RedisDB)
	cfg.VerifyLockTTL = getDuration("EVIDENCE_LEDGER_VERIFY_LOCK_TTL", cfg.VerifyLockTTL)

	cfg.StreamerEnabled = getBool("EVIDENCE_LEDGER_STREAMER_ENABLED", cfg.StreamerEnabled)
	if brokers := os.Getenv("EVIDENCE_LEDGER_KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = splitList(brokers)
	}
	cfg.KafkaTopic = getEnv("EVIDENCE_LEDGER_KAFKA_TOPIC", cfg.KafkaTopic)
	cfg.ArchiveBucket = getEnv("EVIDENCE_LEDGER_ARCHIVE_BUCKET", cfg.ArchiveBucket)
	cfg.ArchivePrefix = getEnv("EVIDENCE_LEDGER_ARCHIVE_PREFIX", cfg.ArchivePrefix)
	cfg.StreamerBatchSize = getInt("EVIDENCE_LEDGER_STREAMER_BATCH_SIZE", cfg.StreamerBatchSize)

	cfg.RateLimitRPS = getInt("EVIDENCE_LEDGER_RATE_LIMIT_RPS", cfg.RateLimitRPS)
	cfg.RateLimitBurst = getInt("EVIDENCE_LEDGER_RATE_LIMIT_BURST", cfg.RateLimitBurst)
	cfg.MaxCorrelationDepth = getInt("EVIDENCE_LEDGER_MAX_CORRELATION_DEPTH", cfg.MaxCorrelationDepth)
}

// Validate reports the first inconsistency in cfg.
func (c Config) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL or EVIDENCE_LEDGER_DATABASE_URL is required")
	}
	switch c.DatabaseDriver {
	case DriverPostgres, DriverSQLite:
	default:
		return fmt.Errorf("unsupported database driver %q", c.DatabaseDriver)
	}
	switch c.FileBackend {
	case FileBackendLocal:
		if c.FileRoot == "" {
			return fmt.Errorf("EVIDENCE_LEDGER_FILE_ROOT is required for the local file backend")
		}
	case FileBackendS3:
		if c.FileBucket == "" {
			return fmt.Errorf("EVIDENCE_LEDGER_FILE_BUCKET is required for the s3 file backend")
		}
	default:
		return fmt.Errorf("unsupported file backend %q", c.FileBackend)
	}
	if (c.TLSCertFile == "") != (c.TLSKeyFile == "") {
		return fmt.Errorf("EVIDENCE_LEDGER_TLS_CERT_FILE and EVIDENCE_LEDGER_TLS_KEY_FILE must be set together")
	}
	if c.RequireClientCert && c.TLSClientCAFile == "" {
		return fmt.Errorf("EVIDENCE_LEDGER_REQUIRE_CLIENT_CERT needs EVIDENCE_LEDGER_TLS_CLIENT_CA_FILE")
	}
	if c.JWTPublicKeysFile == "" && !c.AllowDevPrincipals {
		return fmt.Errorf("EVIDENCE_LEDGER_JWT_PUBLIC_KEYS_FILE is required unless dev principals are allowed")
	}
	if c.StreamerEnabled {
		if len(c.KafkaBrokers) == 0 || c.ArchiveBucket == "" {
			return fmt.Errorf("streamer requires EVIDENCE_LEDGER_KAFKA_BROKERS and EVIDENCE_LEDGER_ARCHIVE_BUCKET")
		}
		if c.DatabaseDriver != DriverPostgres {
			return fmt.Errorf("streamer requires the postgres driver")
		}
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		ok, err := strconv.ParseBool(v)
		if err == nil {
			return ok
		}
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil && i > 0 {
			return i
		}
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
	}
	return fallback
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
