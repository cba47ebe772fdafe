package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"statchat/pkg/domain"
)

// ConfigPath is the default config file location.
const ConfigPath = "config.yaml"

// DefaultRAGBaseURL is the hardcoded fallback when RAG_API_URL is unset and
// the config file carries no value.
const DefaultRAGBaseURL = "http://localhost:8000"

// FileConfig represents configuration loaded from YAML with environment
// overrides. The answer API base URL is resolved once at startup.
type FileConfig struct {
	Port     string `yaml:"port"`
	LogLevel string `yaml:"logLevel"`

	RAGBaseURL   string   `yaml:"ragBaseURL"`
	AskTimeout   string   `yaml:"askTimeout"`
	TopK         int      `yaml:"topK"`
	DefaultModel string   `yaml:"defaultModel"`
	Models       []string `yaml:"models"`

	QuickQuestions []string `yaml:"quickQuestions"`

	SessionTTL      string `yaml:"sessionTTL"`
	SessionIdleTime string `yaml:"sessionIdleTime"`
	JWTSecret       string `yaml:"jwtSecret"`

	RedisAddr     string `yaml:"redisAddr"`
	RedisPassword string `yaml:"redisPassword"`

	DatabaseURL    string `yaml:"databaseURL"`
	ArchiveStream  string `yaml:"archiveStream"`
	ArchiveWorkers int    `yaml:"archiveWorkers"`

	MinioEndpoint  string `yaml:"minioEndpoint"`
	MinioAccessKey string `yaml:"minioAccessKey"`
	MinioSecretKey string `yaml:"minioSecretKey"`
	MinioBucket    string `yaml:"minioBucket"`
	MinioUseSSL    bool   `yaml:"minioUseSSL"`
	ExportURLTTL   string `yaml:"exportURLTTL"`

	AskRateLimitPerMinute int      `yaml:"askRateLimitPerMinute"`
	TrustedProxyCIDRs     []string `yaml:"trustedProxyCidrs"`
}

// DefaultQuickQuestions are the preset suggestion strings offered to new
// sessions when the config file does not override them.
var DefaultQuickQuestions = []string{
	"Data inflasi Sumut",
	"Tingkat kemiskinan",
	"Jumlah penduduk Sumatera Utara",
	"Pertumbuhan ekonomi terbaru",
}

// Load reads config from path (defaults to config.yaml). A missing file at
// the default path is not an error; environment and built-in defaults apply.
func Load(path string) (FileConfig, error) {
	cfg := FileConfig{}
	explicit := path != ""
	if !explicit {
		path = ConfigPath
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config: %w", err)
		}
	case os.IsNotExist(err) && !explicit:
		// run on defaults + environment
	default:
		return cfg, fmt.Errorf("read config: %w", err)
	}

	if v := os.Getenv("RAG_API_URL"); v != "" {
		cfg.RAGBaseURL = strings.TrimSpace(v)
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.RedisAddr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.RedisPassword = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.DatabaseURL = v
	}
	if v := os.Getenv("JWT_SECRET"); v != "" {
		cfg.JWTSecret = v
	}
	if v := os.Getenv("STATCHAT_PORT"); v != "" {
		cfg.Port = strings.TrimSpace(v)
	}
	if v := os.Getenv("STATCHAT_DEFAULT_MODEL"); v != "" {
		cfg.DefaultModel = strings.TrimSpace(v)
	}
	if v := os.Getenv("STATCHAT_TOP_K"); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			cfg.TopK = n
		}
	}
	if v := os.Getenv("STATCHAT_ASK_RATE_LIMIT_PER_MINUTE"); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			cfg.AskRateLimitPerMinute = n
		}
	}
	if v := os.Getenv("MINIO_ENDPOINT"); v != "" {
		cfg.MinioEndpoint = v
	}
	if v := os.Getenv("MINIO_ACCESS_KEY"); v != "" {
		cfg.MinioAccessKey = v
	}
	if v := os.Getenv("MINIO_SECRET_KEY"); v != "" {
		cfg.MinioSecretKey = v
	}
	if v := os.Getenv("MINIO_BUCKET"); v != "" {
		cfg.MinioBucket = v
	}

	applyDefaults(&cfg)
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyDefaults(cfg *FileConfig) {
	if cfg.Port == "" {
		cfg.Port = "8080"
	}
	if cfg.RAGBaseURL == "" {
		cfg.RAGBaseURL = DefaultRAGBaseURL
	}
	if cfg.AskTimeout == "" {
		cfg.AskTimeout = "30s"
	}
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = string(domain.ModelGroq)
	}
	if len(cfg.Models) == 0 {
		cfg.Models = []string{string(domain.ModelGroq), string(domain.ModelGemini)}
	}
	if len(cfg.QuickQuestions) == 0 {
		cfg.QuickQuestions = append([]string(nil), DefaultQuickQuestions...)
	}
	if cfg.SessionTTL == "" {
		cfg.SessionTTL = "24h"
	}
	if cfg.SessionIdleTime == "" {
		cfg.SessionIdleTime = "30m"
	}
	if cfg.ArchiveStream == "" {
		cfg.ArchiveStream = "statchat:archive"
	}
	if cfg.ArchiveWorkers <= 0 {
		cfg.ArchiveWorkers = 2
	}
	if cfg.ExportURLTTL == "" {
		cfg.ExportURLTTL = "15m"
	}
}

func validate(cfg FileConfig) error {
	if !domain.Model(cfg.DefaultModel).Known() {
		return fmt.Errorf("config: unknown defaultModel %q", cfg.DefaultModel)
	}
	for _, m := range cfg.Models {
		if !domain.Model(m).Known() {
			return fmt.Errorf("config: unknown model %q", m)
		}
	}
	if cfg.AskRateLimitPerMinute < 0 {
		return errors.New("config: askRateLimitPerMinute must be >= 0")
	}
	if cfg.TopK < 0 {
		return errors.New("config: topK must be >= 0")
	}
	for _, field := range []struct {
		name  string
		value string
	}{
		{"askTimeout", cfg.AskTimeout},
		{"sessionTTL", cfg.SessionTTL},
		{"sessionIdleTime", cfg.SessionIdleTime},
		{"exportURLTTL", cfg.ExportURLTTL},
	} {
		if _, err := time.ParseDuration(field.value); err != nil {
			return fmt.Errorf("config: invalid %s: %w", field.name, err)
		}
	}
	return nil
}

// Duration parses a duration field already checked by validate.
func Duration(value string) time.Duration {
	d, _ := time.ParseDuration(value)
	return d
}
