package config

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/maltedev/amazon-review-scraper/internal/export"
)

type Config struct {
	Server  ServerConfig
	Scraper ScraperConfig
	Proxy   ProxyConfig
	Browser BrowserConfig
	Redis   RedisConfig
	Logging LoggingConfig
	Output  OutputConfig
}

type ServerConfig struct {
	Port            string
	Host            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

type ScraperConfig struct {
	Transport       string
	MaxRetries      int
	RetryDelay      time.Duration
	RetryMaxDelay   time.Duration
	RetryJitter     float64
	RequestTimeout  time.Duration
	MaxBodySize     int
	RateLimit       float64
	RateBurst       int
	ConcurrentLimit int
	ResultOrder     string
	UserAgents      []string
	Proxies         []string

	NotFoundCacheSize int
	NotFoundTTL       time.Duration
}

type ProxyConfig struct {
	FailureThreshold int
	CooldownBase     time.Duration
	CooldownMax      time.Duration
	TopK             int
}

type BrowserConfig struct {
	Headless       bool
	Timeout        time.Duration
	ViewportWidth  int
	ViewportHeight int
	ClickThrough   bool
}

type RedisConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
	Stream   string
	MaxLen   int64
}

type LoggingConfig struct {
	Level  string
	Format string
}

type OutputConfig struct {
	Format string
	Dir    string
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 10*time.Minute)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("scraper.transport", "colly")
	v.SetDefault("scraper.max_retries", 3)
	v.SetDefault("scraper.retry_delay", 2*time.Second)
	v.SetDefault("scraper.retry_max_delay", 30*time.Second)
	v.SetDefault("scraper.retry_jitter", 0.2)
	v.SetDefault("scraper.request_timeout", 20*time.Second)
	v.SetDefault("scraper.max_body_size", 10*1024*1024)
	v.SetDefault("scraper.rate_limit", 1.0)
	v.SetDefault("scraper.rate_burst", 2)
	v.SetDefault("scraper.concurrent_limit", 5)
	v.SetDefault("scraper.result_order", "input")
	v.SetDefault("scraper.user_agents", defaultUserAgents())
	v.SetDefault("scraper.proxies", []string{})
	v.SetDefault("scraper.not_found_cache_size", 1024)
	v.SetDefault("scraper.not_found_ttl", 6*time.Hour)

	v.SetDefault("proxy.failure_threshold", 3)
	v.SetDefault("proxy.cooldown_base", 30*time.Second)
	v.SetDefault("proxy.cooldown_max", 10*time.Minute)
	v.SetDefault("proxy.top_k", 3)

	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.timeout", 30*time.Second)
	v.SetDefault("browser.viewport_width", 1920)
	v.SetDefault("browser.viewport_height", 1080)
	v.SetDefault("browser.click_through", true)

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.stream", "stream:review_results")
	v.SetDefault("redis.max_len", 10000)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("output.format", "json")
	v.SetDefault("output.dir", "out")
}

// New returns a viper instance with defaults applied and environment
// variables bound, so "scraper.max_retries" reads SCRAPER_MAX_RETRIES.
func New() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("logging.level", "LOG_LEVEL", "LOGGING_LEVEL")
	_ = v.BindEnv("logging.format", "LOG_FORMAT", "LOGGING_FORMAT")
	return v
}

// Load reads configuration from the environment and, when path is set, a YAML file.
func Load(path string) (*Config, error) {
	v := New()
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}
	return FromViper(v)
}

func FromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:            v.GetString("server.port"),
			Host:            v.GetString("server.host"),
			ReadTimeout:     v.GetDuration("server.read_timeout"),
			WriteTimeout:    v.GetDuration("server.write_timeout"),
			ShutdownTimeout: v.GetDuration("server.shutdown_timeout"),
		},
		Scraper: ScraperConfig{
			Transport:         strings.ToLower(v.GetString("scraper.transport")),
			MaxRetries:        v.GetInt("scraper.max_retries"),
			RetryDelay:        v.GetDuration("scraper.retry_delay"),
			RetryMaxDelay:     v.GetDuration("scraper.retry_max_delay"),
			RetryJitter:       v.GetFloat64("scraper.retry_jitter"),
			RequestTimeout:    v.GetDuration("scraper.request_timeout"),
			MaxBodySize:       v.GetInt("scraper.max_body_size"),
			RateLimit:         v.GetFloat64("scraper.rate_limit"),
			RateBurst:         v.GetInt("scraper.rate_burst"),
			ConcurrentLimit:   v.GetInt("scraper.concurrent_limit"),
			ResultOrder:       v.GetString("scraper.result_order"),
			UserAgents:        stringList(v.Get("scraper.user_agents"), "|"),
			Proxies:           stringList(v.Get("scraper.proxies"), ","),
			NotFoundCacheSize: v.GetInt("scraper.not_found_cache_size"),
			NotFoundTTL:       v.GetDuration("scraper.not_found_ttl"),
		},
		Proxy: ProxyConfig{
			FailureThreshold: v.GetInt("proxy.failure_threshold"),
			CooldownBase:     v.GetDuration("proxy.cooldown_base"),
			CooldownMax:      v.GetDuration("proxy.cooldown_max"),
			TopK:             v.GetInt("proxy.top_k"),
		},
		Browser: BrowserConfig{
			Headless:       v.GetBool("browser.headless"),
			Timeout:        v.GetDuration("browser.timeout"),
			ViewportWidth:  v.GetInt("browser.viewport_width"),
			ViewportHeight: v.GetInt("browser.viewport_height"),
			ClickThrough:   v.GetBool("browser.click_through"),
		},
		Redis: RedisConfig{
			Enabled:  v.GetBool("redis.enabled"),
			Addr:     v.GetString("redis.addr"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
			Stream:   v.GetString("redis.stream"),
			MaxLen:   v.GetInt64("redis.max_len"),
		},
		Logging: LoggingConfig{
			Level:  strings.ToLower(v.GetString("logging.level")),
			Format: strings.ToLower(v.GetString("logging.format")),
		},
		Output: OutputConfig{
			Format: v.GetString("output.format"),
			Dir:    v.GetString("output.dir"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Scraper.ConcurrentLimit < 1 {
		return fmt.Errorf("SCRAPER_CONCURRENT_LIMIT must be at least 1")
	}
	if c.Scraper.MaxRetries < 0 {
		return fmt.Errorf("SCRAPER_MAX_RETRIES cannot be negative")
	}
	if c.Scraper.RetryDelay > c.Scraper.RetryMaxDelay {
		return fmt.Errorf("SCRAPER_RETRY_DELAY cannot be greater than SCRAPER_RETRY_MAX_DELAY")
	}
	switch c.Scraper.Transport {
	case "colly", "browser", "mock":
	default:
		return fmt.Errorf("SCRAPER_TRANSPORT must be colly, browser or mock, got %q", c.Scraper.Transport)
	}
	if c.Scraper.ResultOrder != "input" && c.Scraper.ResultOrder != "arrival" {
		return fmt.Errorf("SCRAPER_RESULT_ORDER must be input or arrival, got %q", c.Scraper.ResultOrder)
	}
	if c.Proxy.CooldownBase > c.Proxy.CooldownMax {
		return fmt.Errorf("PROXY_COOLDOWN_BASE cannot be greater than PROXY_COOLDOWN_MAX")
	}
	if c.Logging.Format != "json" && c.Logging.Format != "text" {
		return fmt.Errorf("LOG_FORMAT must be json or text, got %q", c.Logging.Format)
	}
	if _, err := export.ParseFormat(c.Output.Format); err != nil {
		return fmt.Errorf("OUTPUT_FORMAT: %w", err)
	}
	return nil
}

// NewLogger builds the process logger described by the logging section.
func (l LoggingConfig) NewLogger(w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(l.Level)}
	if l.Format == "text" {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

func parseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// stringList accepts a YAML list or a sep-separated string from the environment.
func stringList(raw interface{}, sep string) []string {
	var items []string
	switch v := raw.(type) {
	case string:
		items = strings.Split(v, sep)
	case []string:
		items = v
	case []interface{}:
		for _, item := range v {
			items = append(items, fmt.Sprint(item))
		}
	}

	out := make([]string, 0, len(items))
	for _, item := range items {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func defaultUserAgents() []string {
	return []string{
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/119.0.0.0 Safari/537.36",
		"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	}
}
