package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"report-renderer/internal/domain"
)

// PaperSize is a page size in inches.
type PaperSize struct {
	Width  float64 `yaml:"width"`
	Height float64 `yaml:"height"`
}

// PostgresConfig describes the API token database.
type PostgresConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"sslmode"`
}

// CommandConfig describes an external converter binary.
type CommandConfig struct {
	Path string   `yaml:"path"`
	Args []string `yaml:"args"`
}

// Config is the full service configuration.
type Config struct {
	Server struct {
		Host    string `yaml:"host"`
		Port    string `yaml:"port"`
		Prefork bool   `yaml:"prefork"`
	} `yaml:"server"`

	Limits struct {
		MinHTMLBytes int `yaml:"min_html_bytes"`
		MaxHTMLBytes int `yaml:"max_html_bytes"`
		MaxPDFBytes  int `yaml:"max_pdf_bytes"`
	} `yaml:"limits"`

	Logger struct {
		File       string `yaml:"file"`
		Level      string `yaml:"level"`
		MaxSizeMB  int    `yaml:"max_size_mb"`
		MaxBackups int    `yaml:"max_backups"`
		MaxAgeDays int    `yaml:"max_age_days"`
		Compress   bool   `yaml:"compress"`
	} `yaml:"logger"`

	Cache struct {
		PDFCacheEnabled bool          `yaml:"pdf_cache_enabled"`
		PDFCacheTTL     time.Duration `yaml:"pdf_cache_ttl"`
		RedisHost       string        `yaml:"redis_host"`
		RateLimitDB     int           `yaml:"redis_rate_db"`
		PDFCacheDB      int           `yaml:"redis_pdf_db"`
	} `yaml:"cache"`

	PDF struct {
		Engine             string               `yaml:"engine"`
		DefaultPaper       string               `yaml:"default_paper"`
		DefaultOrientation string               `yaml:"default_orientation"`
		DefaultMargin      string               `yaml:"default_margin"`
		PaperSizes         map[string]PaperSize `yaml:"paper_sizes"`
		TimeoutSecs        int                  `yaml:"timeout_secs"`
		MaxConcurrent      int                  `yaml:"max_concurrent"`
		ChromePath         string               `yaml:"chrome_path"`
		ChromeNoSandbox    bool                 `yaml:"chrome_no_sandbox"`
		ChromePoolSize     int                  `yaml:"chrome_pool_size"`
		UserDataDir        string               `yaml:"user_data_dir"`
		Command            CommandConfig        `yaml:"command"`
	} `yaml:"pdf"`

	Auth struct {
		Enabled        bool           `yaml:"enabled"`
		ReloadInterval time.Duration  `yaml:"reload_interval"`
		Postgres       PostgresConfig `yaml:"postgres"`
	} `yaml:"auth"`

	RateLimiter struct {
		Interval          time.Duration `yaml:"interval"`
		EnableUserLimiter bool          `yaml:"enable_user_limiter"`
		UserLimit         int           `yaml:"user_limit"`
	} `yaml:"rate_limiter"`
}

// Supported engines.
const (
	EngineChromedp = "chromedp"
	EngineRod      = "rod"
	EngineCommand  = "command"
)

// Default returns the configuration used when no file is present.
func Default() Config {
	var cfg Config
	cfg.Server.Port = ":8000"

	cfg.Limits.MinHTMLBytes = 10
	cfg.Limits.MaxHTMLBytes = 5 * 1024 * 1024
	cfg.Limits.MaxPDFBytes = 50 * 1024 * 1024

	cfg.Logger.Level = "info"
	cfg.Logger.MaxSizeMB = 10
	cfg.Logger.MaxBackups = 3
	cfg.Logger.MaxAgeDays = 7

	cfg.Cache.PDFCacheTTL = 10 * time.Minute
	cfg.Cache.RedisHost = "127.0.0.1:6379"
	cfg.Cache.RateLimitDB = 0
	cfg.Cache.PDFCacheDB = 1

	cfg.PDF.Engine = EngineChromedp
	cfg.PDF.DefaultPaper = "A4"
	cfg.PDF.DefaultOrientation = "portrait"
	cfg.PDF.DefaultMargin = "1cm"
	cfg.PDF.PaperSizes = DefaultPaperSizes()
	cfg.PDF.TimeoutSecs = 60
	cfg.PDF.MaxConcurrent = 4
	cfg.PDF.ChromeNoSandbox = true
	cfg.PDF.ChromePoolSize = 2
	cfg.PDF.Command.Path = "weasyprint"

	cfg.Auth.ReloadInterval = time.Minute
	cfg.Auth.Postgres.Port = 5432
	cfg.Auth.Postgres.SSLMode = "disable"

	cfg.RateLimiter.Interval = time.Minute
	return cfg
}

// DefaultPaperSizes lists the paper formats accepted in the "format" field.
func DefaultPaperSizes() map[string]PaperSize {
	return map[string]PaperSize{
		"A3":     {Width: 11.69, Height: 16.54},
		"A4":     {Width: 8.27, Height: 11.69},
		"A5":     {Width: 5.83, Height: 8.27},
		"LETTER": {Width: 8.5, Height: 11},
		"LEGAL":  {Width: 8.5, Height: 14},
	}
}

// Load reads the file named by CONFIG_PATH (default "config.yaml").
func Load() Config {
	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = "config.yaml"
	}
	return LoadFrom(path)
}

// LoadFrom reads path over the defaults, applies environment overrides and
// validates the result. A missing file yields the defaults. It panics on
// unreadable or invalid configuration.
func LoadFrom(path string) Config {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		panic(fmt.Sprintf("config: read %s: %v", path, err))
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			panic(fmt.Sprintf("config: parse %s: %v", path, err))
		}
	}

	applyEnv(&cfg)
	normalize(&cfg)

	if err := Validate(cfg); err != nil {
		panic("config: " + err.Error())
	}
	return cfg
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("PORT"); v != "" {
		cfg.Server.Port = ":" + strings.TrimPrefix(v, ":")
	}
	// Allow common container env var to override chrome_path.
	if cfg.PDF.ChromePath == "" {
		if v := os.Getenv("CHROME_BIN"); v != "" {
			cfg.PDF.ChromePath = v
		}
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logger.Level = v
	}
	if v := os.Getenv("PDF_ENGINE"); v != "" {
		cfg.PDF.Engine = v
	}
}

func normalize(cfg *Config) {
	cfg.PDF.Engine = strings.ToLower(strings.TrimSpace(cfg.PDF.Engine))
	cfg.PDF.DefaultPaper = strings.ToUpper(cfg.PDF.DefaultPaper)
	cfg.PDF.DefaultOrientation = strings.ToLower(cfg.PDF.DefaultOrientation)

	sizes := make(map[string]PaperSize, len(cfg.PDF.PaperSizes))
	for name, size := range cfg.PDF.PaperSizes {
		sizes[strings.ToUpper(name)] = size
	}
	cfg.PDF.PaperSizes = sizes
}

// Validate reports the first invalid setting.
func Validate(cfg Config) error {
	if _, err := strconv.Atoi(strings.TrimPrefix(cfg.Server.Port, ":")); err != nil {
		return fmt.Errorf("server.port %q is not a port", cfg.Server.Port)
	}
	if cfg.Limits.MinHTMLBytes < 1 {
		return fmt.Errorf("limits.min_html_bytes must be positive")
	}
	if cfg.Limits.MaxHTMLBytes < cfg.Limits.MinHTMLBytes {
		return fmt.Errorf("limits.max_html_bytes must be at least limits.min_html_bytes")
	}
	if cfg.Limits.MaxPDFBytes <= 0 {
		return fmt.Errorf("limits.max_pdf_bytes must be positive")
	}
	switch cfg.PDF.Engine {
	case EngineChromedp, EngineRod:
	case EngineCommand:
		if cfg.PDF.Command.Path == "" {
			return fmt.Errorf("pdf.command.path is required for the command engine")
		}
	default:
		return fmt.Errorf("pdf.engine %q is not supported", cfg.PDF.Engine)
	}
	if _, ok := cfg.PDF.PaperSizes[cfg.PDF.DefaultPaper]; !ok {
		return fmt.Errorf("pdf.default_paper %q is not in pdf.paper_sizes", cfg.PDF.DefaultPaper)
	}
	if cfg.PDF.DefaultOrientation != "portrait" && cfg.PDF.DefaultOrientation != "landscape" {
		return fmt.Errorf("pdf.default_orientation must be portrait or landscape")
	}
	if _, err := domain.ParseLengthInches(cfg.PDF.DefaultMargin); err != nil {
		return fmt.Errorf("pdf.default_margin: %w", err)
	}
	if cfg.PDF.TimeoutSecs <= 0 {
		return fmt.Errorf("pdf.timeout_secs must be positive")
	}
	if cfg.PDF.MaxConcurrent < 0 || cfg.PDF.ChromePoolSize < 0 {
		return fmt.Errorf("pdf.max_concurrent and pdf.chrome_pool_size must not be negative")
	}
	if cfg.Cache.PDFCacheEnabled && cfg.Cache.PDFCacheTTL <= 0 {
		return fmt.Errorf("cache.pdf_cache_ttl must be positive when the cache is enabled")
	}
	if cfg.RateLimiter.Interval <= 0 {
		return fmt.Errorf("rate_limiter.interval must be positive")
	}
	if cfg.RateLimiter.UserLimit < 0 {
		return fmt.Errorf("rate_limiter.user_limit must not be negative")
	}
	if cfg.Auth.Enabled && cfg.Auth.ReloadInterval <= 0 {
		return fmt.Errorf("auth.reload_interval must be positive")
	}
	return nil
}
