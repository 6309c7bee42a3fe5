// internal/config/config.go
package conf

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

var ErrNoSources = errors.New("config: no sources configured")

// Główny config aplikacji
type Config struct {
	SyncIntervalSeconds int    `json:"sync_interval_seconds" yaml:"sync_interval_seconds"`
	LogLevel            string `json:"log_level" yaml:"log_level"`
	MetricsPort         string `json:"metrics_port,omitempty" yaml:"metrics_port,omitempty"`

	Sources     []SourceConfig `json:"sources" yaml:"sources"`
	Scrape      ScrapeConfig   `json:"scrape" yaml:"scrape"`
	HTTP        HTTPConfig     `json:"http" yaml:"http"`
	Enrich      EnrichConfig   `json:"enrich" yaml:"enrich"`
	WooCommerce WooConfig      `json:"woocommerce" yaml:"woocommerce"`
	Store       StoreConfig    `json:"store" yaml:"store"`
	DB          DBConfig       `json:"db" yaml:"db"`
	Redis       RedisConfig    `json:"redis" yaml:"redis"`
}

// SourceConfig – jeden katalog (root) w jednym sklepie.
type SourceConfig struct {
	Catalog  string            `json:"catalog" yaml:"catalog"` // id katalogu -> products_<catalog>.json
	Adapter  string            `json:"adapter" yaml:"adapter"` // "aurora", "carro"
	Root     string            `json:"root" yaml:"root"`
	MaxPages int               `json:"max_pages,omitempty" yaml:"max_pages,omitempty"`
	Options  map[string]string `json:"options,omitempty" yaml:"options,omitempty"`
}

type ScrapeConfig struct {
	DelayMillis            int    `json:"delay_ms" yaml:"delay_ms"`
	MaxPages               int    `json:"max_pages" yaml:"max_pages"`
	FetchRetries           int    `json:"fetch_retries" yaml:"fetch_retries"`
	OnFetchError           string `json:"on_fetch_error" yaml:"on_fetch_error"` // "skip" | "stop"
	MaxConsecutiveFailures int    `json:"max_consecutive_failures" yaml:"max_consecutive_failures"`
	UserAgent              string `json:"user_agent" yaml:"user_agent"`
}

type HTTPConfig struct {
	TimeoutSec        int `json:"timeout_sec" yaml:"timeout_sec"`
	ConnectTimeoutSec int `json:"connect_timeout_sec" yaml:"connect_timeout_sec"`
	ReadTimeoutSec    int `json:"read_timeout_sec" yaml:"read_timeout_sec"`
}

type EnrichConfig struct {
	Rate       float64 `json:"rate" yaml:"rate"`
	Markup     float64 `json:"markup" yaml:"markup"`
	Currency   string  `json:"currency" yaml:"currency"`
	DecimalSep string  `json:"decimal_sep" yaml:"decimal_sep"`
	GroupSep   string  `json:"group_sep" yaml:"group_sep"`
	Workers    int     `json:"workers" yaml:"workers"`

	Translator    string `json:"translator" yaml:"translator"` // "openai" | "none"
	SourceLang    string `json:"source_lang" yaml:"source_lang"`
	TargetLang    string `json:"target_lang" yaml:"target_lang"`
	OpenAIModel   string `json:"openai_model" yaml:"openai_model"`
	OpenAIKey     string `json:"openai_key,omitempty" yaml:"openai_key,omitempty"`
	CacheTTLHours int    `json:"cache_ttl_hours" yaml:"cache_ttl_hours"`
}

type WooConfig struct {
	BaseURL          string `json:"base_url" yaml:"base_url"` // https://shop.example.com
	ConsumerKey      string `json:"consumer_key" yaml:"consumer_key"`
	ConsumerSec      string `json:"consumer_secret" yaml:"consumer_secret"`
	MediaUser        string `json:"media_user" yaml:"media_user"`
	MediaPassword    string `json:"media_password" yaml:"media_password"` // application password WP
	CategoryID       int64  `json:"category_id" yaml:"category_id"`
	MaxImages        int    `json:"max_images" yaml:"max_images"`
	ImageContentType string `json:"image_content_type" yaml:"image_content_type"`
	Concurrency      int    `json:"concurrency" yaml:"concurrency"`
	RequirePhotos    bool   `json:"require_photos" yaml:"require_photos"`
}

type StoreConfig struct {
	Dir string `json:"dir" yaml:"dir"`
}

type DBConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Driver  string `json:"driver" yaml:"driver"` // sqlite | sqlite3 | mysql | postgres
	DSN     string `json:"dsn" yaml:"dsn"`
}

type RedisConfig struct {
	URL string `json:"url,omitempty" yaml:"url,omitempty"`
}

// Default zwraca config zapisywany przy pierwszym uruchomieniu.
func Default() *Config {
	return &Config{
		SyncIntervalSeconds: 24 * 3600,
		LogLevel:            "info",
		Sources: []SourceConfig{
			{Catalog: "range-rover", Adapter: "aurora", Root: "https://aurora-parts.ru/land-rover/range-rover/range-rover-iv-2013/"},
			{Catalog: "defender", Adapter: "carro", Root: "https://carro.by/parts/brand_land-rover/model_defender"},
		},
		Scrape: ScrapeConfig{
			DelayMillis:            4000,
			MaxPages:               30,
			FetchRetries:           1,
			OnFetchError:           "skip",
			MaxConsecutiveFailures: 3,
			UserAgent:              "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/98.0.4758.80 Safari/537.36",
		},
		HTTP: HTTPConfig{
			TimeoutSec:        220,
			ConnectTimeoutSec: 30,
			ReadTimeoutSec:    140,
		},
		Enrich: EnrichConfig{
			Rate:          0.0171,
			Markup:        2,
			Currency:      "AZN",
			DecimalSep:    ",",
			GroupSep:      " ",
			Workers:       8,
			Translator:    "openai",
			SourceLang:    "ru",
			TargetLang:    "az",
			OpenAIModel:   "gpt-4o-mini",
			CacheTTLHours: 24 * 30,
		},
		WooCommerce: WooConfig{
			BaseURL:          "https://example.com",
			ConsumerKey:      "ck_xxx",
			ConsumerSec:      "cs_xxx",
			MediaUser:        "admin@example.com",
			CategoryID:       196,
			MaxImages:        4,
			ImageContentType: "image/jpeg",
			Concurrency:      2,
			RequirePhotos:    true,
		},
		Store: StoreConfig{Dir: "./catalogs"},
		DB:    DBConfig{Enabled: true, Driver: "sqlite", DSN: "parts2woo.db"},
	}
}

// LoadOrCreate ładuje config z pliku lub tworzy domyślny.
// Drugi wynik = true gdy plik został właśnie utworzony.
func LoadOrCreate(path string) (*Config, bool, error) {
	// upewnij się, że katalog istnieje
	_ = os.MkdirAll(filepath.Dir(path), 0o755)

	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg := Default()
			if err := Save(path, cfg); err != nil {
				return nil, false, fmt.Errorf("save default config: %w", err)
			}
			cfg.applyEnv()
			return cfg, true, cfg.Validate()
		}
		return nil, false, fmt.Errorf("open config: %w", err)
	}

	cfg := &Config{}
	if isYAML(path) {
		err = yaml.Unmarshal(raw, cfg)
	} else {
		err = json.NewDecoder(bytes.NewReader(raw)).Decode(cfg)
	}
	if err != nil {
		return nil, false, fmt.Errorf("parse config %s: %w", path, err)
	}

	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, false, err
	}
	return cfg, false, nil
}

// Save zapisuje config do pliku (JSON albo YAML wg rozszerzenia).
func Save(path string, cfg *Config) error {
	_ = os.MkdirAll(filepath.Dir(path), 0o755)
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	if isYAML(path) {
		enc := yaml.NewEncoder(f)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(cfg)
	}
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(cfg)
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

// applyEnv nadpisuje sekrety ze zmiennych środowiskowych (.env też działa).
func (c *Config) applyEnv() {
	_ = godotenv.Load()

	setStr := func(dst *string, key string) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			*dst = v
		}
	}
	setStr(&c.WooCommerce.BaseURL, "WOO_BASE_URL")
	setStr(&c.WooCommerce.ConsumerKey, "WOO_CONSUMER_KEY")
	setStr(&c.WooCommerce.ConsumerSec, "WOO_CONSUMER_SECRET")
	setStr(&c.WooCommerce.MediaUser, "WOO_MEDIA_USER")
	setStr(&c.WooCommerce.MediaPassword, "WOO_MEDIA_PASSWORD")
	setStr(&c.Enrich.OpenAIKey, "OPENAI_API_KEY")
	setStr(&c.Redis.URL, "REDIS_URL")
	setStr(&c.DB.DSN, "DB_DSN")
	setStr(&c.MetricsPort, "METRICS_PORT")
}

// Validate sprawdza źródła i uzupełnia brakujące wartości domyślnymi.
func (c *Config) Validate() error {
	if len(c.Sources) == 0 {
		return ErrNoSources
	}
	seen := map[string]bool{}
	for i, s := range c.Sources {
		if strings.TrimSpace(s.Catalog) == "" || strings.TrimSpace(s.Root) == "" || strings.TrimSpace(s.Adapter) == "" {
			return fmt.Errorf("config: source #%d needs catalog, adapter and root", i)
		}
		if seen[s.Catalog] {
			return fmt.Errorf("config: duplicate catalog %q", s.Catalog)
		}
		seen[s.Catalog] = true
	}

	switch c.Scrape.OnFetchError {
	case "":
		c.Scrape.OnFetchError = "skip"
	case "skip", "stop":
	default:
		return fmt.Errorf("config: on_fetch_error must be skip or stop, got %q", c.Scrape.OnFetchError)
	}
	if c.Enrich.Rate <= 0 || c.Enrich.Markup <= 0 {
		return fmt.Errorf("config: enrich rate and markup must be positive")
	}

	def := Default()
	if c.Scrape.MaxPages <= 0 {
		c.Scrape.MaxPages = def.Scrape.MaxPages
	}
	if c.Scrape.FetchRetries < 0 {
		c.Scrape.FetchRetries = 0
	}
	if c.Scrape.MaxConsecutiveFailures <= 0 {
		c.Scrape.MaxConsecutiveFailures = def.Scrape.MaxConsecutiveFailures
	}
	if c.HTTP.TimeoutSec <= 0 {
		c.HTTP.TimeoutSec = def.HTTP.TimeoutSec
	}
	if c.Enrich.Workers <= 0 {
		c.Enrich.Workers = def.Enrich.Workers
	}
	if c.Enrich.Currency == "" {
		c.Enrich.Currency = def.Enrich.Currency
	}
	if c.Enrich.DecimalSep == "" {
		c.Enrich.DecimalSep = def.Enrich.DecimalSep
	}
	if c.Enrich.TargetLang == "" {
		c.Enrich.TargetLang = def.Enrich.TargetLang
	}
	if c.WooCommerce.Concurrency <= 0 {
		c.WooCommerce.Concurrency = 1
	}
	if c.WooCommerce.ImageContentType == "" {
		c.WooCommerce.ImageContentType = def.WooCommerce.ImageContentType
	}
	if c.Store.Dir == "" {
		c.Store.Dir = def.Store.Dir
	}
	if c.DB.Driver == "" {
		c.DB.Driver = def.DB.Driver
	}
	return nil
}

// Source zwraca konfigurację katalogu po id.
func (c *Config) Source(catalog string) (SourceConfig, bool) {
	for _, s := range c.Sources {
		if s.Catalog == catalog {
			return s, true
		}
	}
	return SourceConfig{}, false
}

// PagesFor – limit stron dla źródła (nadpisanie albo globalny).
func (c *Config) PagesFor(s SourceConfig) int {
	if s.MaxPages > 0 {
		return s.MaxPages
	}
	return c.Scrape.MaxPages
}
