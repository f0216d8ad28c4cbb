package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the analyst service
type Config struct {
	General   GeneralConfig   `mapstructure:"general"`
	Providers ProvidersConfig `mapstructure:"providers"`
	NewsAPI   NewsAPIConfig   `mapstructure:"newsapi"`
	Databases DatabasesConfig `mapstructure:"databases"`
	Ingest    IngestConfig    `mapstructure:"ingest"`
	Retrieval RetrievalConfig `mapstructure:"retrieval"`
	Charts    ChartsConfig    `mapstructure:"charts"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// GeneralConfig contains general application settings
type GeneralConfig struct {
	Listen    string `mapstructure:"listen"`
	Debug     bool   `mapstructure:"debug"`
	LogLevel  string `mapstructure:"log_level"`
	JWTSecret string `mapstructure:"jwt_secret"`
}

// ProvidersConfig contains LLM provider configurations
type ProvidersConfig struct {
	OpenAI OpenAIConfig `mapstructure:"openai"`
}

// OpenAIConfig configures the OpenAI-compatible completion/embedding provider
type OpenAIConfig struct {
	APIKey          string        `mapstructure:"api_key"`
	BaseURL         string        `mapstructure:"base_url"`
	CompletionModel string        `mapstructure:"completion_model"`
	EmbeddingModel  string        `mapstructure:"embedding_model"`
	Temperature     float64       `mapstructure:"temperature"`
	MaxTokens       int           `mapstructure:"max_tokens"`
	Timeout         time.Duration `mapstructure:"timeout"`
}

// NewsAPIConfig configures the NewsAPI.org client used by market context
type NewsAPIConfig struct {
	APIKey   string `mapstructure:"api_key"`
	Endpoint string `mapstructure:"endpoint"`
	PageSize int    `mapstructure:"page_size"`
}

// DatabasesConfig groups backing stores
type DatabasesConfig struct {
	Postgres PostgresConfig `mapstructure:"postgres"`
	Redis    RedisConfig    `mapstructure:"redis"`
}

type PostgresConfig struct {
	URL      string `mapstructure:"url"`
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

// DSN builds a postgres connection string, preferring the explicit URL.
func (p PostgresConfig) DSN() (string, error) {
	if p.URL != "" {
		return p.URL, nil
	}
	if p.Host == "" || p.DBName == "" {
		return "", fmt.Errorf("postgres not configured (databases.postgres.host/dbname or url)")
	}
	port := p.Port
	if port == "" {
		port = "5432"
	}
	ssl := p.SSLMode
	if ssl == "" {
		ssl = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", p.User, p.Password, p.Host, port, p.DBName, ssl), nil
}

type RedisConfig struct {
	Host string `mapstructure:"host"`
	Port string `mapstructure:"port"`
	Pass string `mapstructure:"pass"`
	DB   int    `mapstructure:"db"`
}

func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%s", r.Host, r.Port)
}

// IngestConfig controls the ingestion pipeline
type IngestConfig struct {
	ChunkSize       int           `mapstructure:"chunk_size"`
	ChunkOverlap    int           `mapstructure:"chunk_overlap"`
	MaxArticleChars int           `mapstructure:"max_article_chars"`
	Fetcher         string        `mapstructure:"fetcher"` // http or chromedp
	FetchTimeout    time.Duration `mapstructure:"fetch_timeout"`
	UploadDir       string        `mapstructure:"upload_dir"`
	RefreshCron     string        `mapstructure:"refresh_cron"`
}

func (i IngestConfig) Validate() error {
	if i.ChunkSize <= 0 {
		return fmt.Errorf("ingest.chunk_size must be > 0")
	}
	if i.ChunkOverlap < 0 || i.ChunkOverlap >= i.ChunkSize {
		return fmt.Errorf("ingest.chunk_overlap must be in [0, chunk_size)")
	}
	switch i.Fetcher {
	case "http", "chromedp":
	default:
		return fmt.Errorf("ingest.fetcher must be http or chromedp, got %q", i.Fetcher)
	}
	return nil
}

// RetrievalConfig controls similarity search behaviour
type RetrievalConfig struct {
	TopK       int  `mapstructure:"top_k"`
	HybridBM25 bool `mapstructure:"hybrid_bm25"`
}

// ChartsConfig controls chart rendering output
type ChartsConfig struct {
	OutputDir string `mapstructure:"output_dir"`
}

// TelemetryConfig contains monitoring settings
type TelemetryConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// LoadConfig reads configuration from a JSON file (searched in ./config,
// the working directory and next to the binary when no path is given) and
// ANALYST_* environment variables.
func LoadConfig(path string) *Config {
	viper.SetConfigName("config")
	viper.SetConfigType("json")

	viper.SetDefault("general.listen", ":10010")
	viper.SetDefault("general.log_level", "info")
	viper.SetDefault("providers.openai.completion_model", "gpt-4o-mini")
	viper.SetDefault("providers.openai.embedding_model", "text-embedding-3-small")
	viper.SetDefault("providers.openai.temperature", 0.7)
	viper.SetDefault("providers.openai.max_tokens", 4096)
	viper.SetDefault("providers.openai.timeout", 60*time.Second)
	viper.SetDefault("newsapi.endpoint", "https://newsapi.org/v2/everything")
	viper.SetDefault("newsapi.page_size", 2)
	viper.SetDefault("ingest.chunk_size", 1000)
	viper.SetDefault("ingest.chunk_overlap", 200)
	viper.SetDefault("ingest.max_article_chars", 40000)
	viper.SetDefault("ingest.fetcher", "http")
	viper.SetDefault("ingest.fetch_timeout", 15*time.Second)
	viper.SetDefault("ingest.upload_dir", "uploads")
	viper.SetDefault("ingest.refresh_cron", "@daily")
	viper.SetDefault("retrieval.top_k", 4)
	viper.SetDefault("retrieval.hybrid_bm25", true)
	viper.SetDefault("charts.output_dir", "charts")
	viper.SetDefault("telemetry.enabled", true)

	if path == "" {
		viper.AddConfigPath("./config")
		viper.AddConfigPath(".")
		exe, _ := os.Executable()
		exeDir := filepath.Dir(exe)
		viper.AddConfigPath(exeDir)
		viper.AddConfigPath(filepath.Join(exeDir, "..", "config"))
	} else {
		viper.SetConfigFile(path)
	}

	viper.SetEnvPrefix("ANALYST")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		panic(fmt.Errorf("fatal error config file: %w", err))
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		panic(fmt.Errorf("fatal error config file: %w", err))
	}

	if err := config.Ingest.Validate(); err != nil {
		panic(err)
	}
	return &config
}
