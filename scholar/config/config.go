package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

var ErrUnknownProfile = errors.New("unknown config profile")

const (
	ProfileDev  = "dev"
	ProfileTest = "test"
	ProfileProd = "prod"

	DefaultJWTSecret = "dev-secret-change-me"
	DevFrontendURL   = "http://localhost:5173"
)

type StorageConfig struct {
	Backend   string `yaml:"backend"`
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	Secure    bool   `yaml:"secure"`
}

type OpenAIConfig struct {
	APIKey         string `yaml:"api_key"`
	BaseURL        string `yaml:"base_url"`
	ChatModel      string `yaml:"chat_model"`
	EmbeddingModel string `yaml:"embedding_model"`
	MaxTokens      int    `yaml:"max_tokens"`
}

type RAGConfig struct {
	ChunkSize    int `yaml:"chunk_size"`
	ChunkOverlap int `yaml:"chunk_overlap"`
	TopK         int `yaml:"top_k"`
}

type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

type Config struct {
	Name            string          `yaml:"-"`
	Debug           bool            `yaml:"debug"`
	DatabaseURI     string          `yaml:"database_uri"`
	PaperSaveDir    string          `yaml:"paper_save_dir"`
	BaseDir         string          `yaml:"base_dir"`
	JWTSecret       string          `yaml:"jwt_secret"`
	AccessTokenTTL  time.Duration   `yaml:"access_token_ttl"`
	RefreshTokenTTL time.Duration   `yaml:"refresh_token_ttl"`
	ResetTokenTTL   time.Duration   `yaml:"reset_token_ttl"`
	AllowedOrigins  []string        `yaml:"allowed_origins"`
	Host            string          `yaml:"host"`
	Port            int             `yaml:"port"`
	Storage         StorageConfig   `yaml:"storage"`
	RedisURL        string          `yaml:"redis_url"`
	SearchCacheTTL  time.Duration   `yaml:"search_cache_ttl"`
	OpenAI          OpenAIConfig    `yaml:"openai"`
	RAG             RAGConfig       `yaml:"rag"`
	ArxivBaseURL    string          `yaml:"arxiv_base_url"`
	RateLimit       RateLimitConfig `yaml:"rate_limit"`
	TrustedProxies  []string        `yaml:"trusted_proxies"`
	PruneSchedule   string          `yaml:"prune_schedule"`
}

// Paths are the directories the application writes to at startup.
type Paths struct {
	Instance string
	Papers   string
	Logs     string
}

func base(name, baseDir string) Config {
	return Config{
		Name:            name,
		BaseDir:         baseDir,
		JWTSecret:       DefaultJWTSecret,
		AccessTokenTTL:  time.Hour,
		RefreshTokenTTL: 30 * 24 * time.Hour,
		ResetTokenTTL:   15 * time.Minute,
		AllowedOrigins:  []string{DevFrontendURL},
		Host:            "0.0.0.0",
		Port:            5000,
		Storage:         StorageConfig{Backend: "local", Bucket: "papers"},
		SearchCacheTTL:  10 * time.Minute,
		OpenAI: OpenAIConfig{
			ChatModel:      "gpt-4o-mini",
			EmbeddingModel: "text-embedding-3-small",
			MaxTokens:      800,
		},
		RAG:           RAGConfig{ChunkSize: 1200, ChunkOverlap: 200, TopK: 5},
		ArxivBaseURL:  "http://export.arxiv.org/api/query",
		RateLimit:     RateLimitConfig{RequestsPerSecond: 5, Burst: 10},
		PruneSchedule: "@every 1h",
	}
}

// ByName returns the built-in defaults for a profile.
func ByName(name string) (Config, bool) {
	baseDir := defaultBaseDir()
	switch name {
	case ProfileDev:
		cfg := base(name, baseDir)
		cfg.Debug = true
		cfg.DatabaseURI = "sqlite:///" + filepath.Join(baseDir, "instance", "dev.db")
		cfg.PaperSaveDir = filepath.Join(baseDir, "papers")
		return cfg, true
	case ProfileTest:
		cfg := base(name, baseDir)
		cfg.DatabaseURI = "sqlite:///" + filepath.Join(baseDir, "instance", "test.db")
		cfg.PaperSaveDir = filepath.Join(baseDir, "papers")
		cfg.AccessTokenTTL = 5 * time.Minute
		return cfg, true
	case ProfileProd:
		cfg := base(name, baseDir)
		cfg.DatabaseURI = "sqlite:////tmp/scholar.db"
		cfg.PaperSaveDir = "/tmp/papers"
		return cfg, true
	}
	return Config{}, false
}

// ProfileFromEnv picks the profile the process should run with.
func ProfileFromEnv() string {
	if name := getEnv("APP_CONFIG", ""); name != "" {
		return name
	}
	return getEnv("FLASK_CONFIG", ProfileDev)
}

// Load resolves a profile: built-in defaults, then the YAML overlay file,
// then environment variables.
func Load(name string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	cfg, ok := ByName(name)
	if !ok {
		return Config{}, fmt.Errorf("%w: %q", ErrUnknownProfile, name)
	}

	if path := getEnv("SCHOLAR_CONFIG_FILE", ""); path != "" {
		if err := applyFile(&cfg, path); err != nil {
			return Config{}, err
		}
	}
	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// applyFile overlays the section of a YAML file keyed by the profile name.
func applyFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	var profiles map[string]yaml.Node
	if err := yaml.Unmarshal(data, &profiles); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	node, ok := profiles[cfg.Name]
	if !ok {
		return nil
	}
	if err := node.Decode(cfg); err != nil {
		return fmt.Errorf("decode %s profile: %w", cfg.Name, err)
	}
	return nil
}

func applyEnv(cfg *Config) error {
	if dir := getEnv("SCHOLAR_BASE_DIR", ""); dir != "" {
		rebase(cfg, dir)
	}
	cfg.DatabaseURI = getEnv("DATABASE_URL", cfg.DatabaseURI)
	cfg.PaperSaveDir = getEnv("PAPER_SAVE_DIR", cfg.PaperSaveDir)
	cfg.JWTSecret = getEnv("JWT_SECRET_KEY", cfg.JWTSecret)
	cfg.Host = getEnv("HOST", cfg.Host)
	cfg.RedisURL = getEnv("REDIS_URL", cfg.RedisURL)
	cfg.ArxivBaseURL = getEnv("ARXIV_BASE_URL", cfg.ArxivBaseURL)

	cfg.OpenAI.APIKey = getEnv("OPENAI_API_KEY", cfg.OpenAI.APIKey)
	cfg.OpenAI.BaseURL = getEnv("OPENAI_BASE_URL", cfg.OpenAI.BaseURL)
	cfg.OpenAI.ChatModel = getEnv("OPENAI_CHAT_MODEL", cfg.OpenAI.ChatModel)
	cfg.OpenAI.EmbeddingModel = getEnv("OPENAI_EMBEDDING_MODEL", cfg.OpenAI.EmbeddingModel)

	cfg.Storage.Backend = getEnv("STORAGE_BACKEND", cfg.Storage.Backend)
	cfg.Storage.Endpoint = getEnv("MINIO_ENDPOINT", cfg.Storage.Endpoint)
	cfg.Storage.AccessKey = getEnv("MINIO_ACCESS_KEY", cfg.Storage.AccessKey)
	cfg.Storage.SecretKey = getEnv("MINIO_SECRET_KEY", cfg.Storage.SecretKey)
	cfg.Storage.Bucket = getEnv("MINIO_BUCKET", cfg.Storage.Bucket)

	if port := getEnv("PORT", ""); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil || p <= 0 || p > 65535 {
			return fmt.Errorf("invalid PORT %q", port)
		}
		cfg.Port = p
	}
	if origins := getEnv("CORS_ORIGINS", ""); origins != "" {
		cfg.AllowedOrigins = splitList(origins)
	}
	if proxies := getEnv("TRUSTED_PROXIES", ""); proxies != "" {
		cfg.TrustedProxies = splitList(proxies)
	}
	return nil
}

// rebase moves every BaseDir-derived default under dir.
func rebase(cfg *Config, dir string) {
	old := cfg.BaseDir
	cfg.BaseDir = dir
	if cfg.Name == ProfileProd {
		return
	}
	if rel, err := filepath.Rel(old, cfg.PaperSaveDir); err == nil && !strings.HasPrefix(rel, "..") {
		cfg.PaperSaveDir = filepath.Join(dir, rel)
	}
	if path, ok := strings.CutPrefix(cfg.DatabaseURI, "sqlite:///"); ok {
		if rel, err := filepath.Rel(old, path); err == nil && !strings.HasPrefix(rel, "..") {
			cfg.DatabaseURI = "sqlite:///" + filepath.Join(dir, rel)
		}
	}
}

// Paths resolves where papers, logs and the SQLite instance live. The
// production profile always writes under /tmp.
func (c Config) Paths() Paths {
	p := Paths{Instance: filepath.Join(c.BaseDir, "instance")}
	if c.Name == ProfileProd {
		p.Papers = "/tmp/papers"
		p.Logs = "/tmp/logs"
		return p
	}
	p.Papers = c.PaperSaveDir
	p.Logs = filepath.Join(c.BaseDir, "logs")
	return p
}

func (c Config) UsesSQLiteFile() bool {
	return strings.HasPrefix(c.DatabaseURI, "sqlite:///")
}

func (c Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func defaultBaseDir() string {
	wd, err := os.Getwd()
	if err != nil {
		return "."
	}
	return wd
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnv(key, fallback string) string {
	value := os.Getenv(key)
	if value != "" {
		return value
	}
	return fallback
}
