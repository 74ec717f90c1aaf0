package config

import (
	"errors"
	"fmt"
	"io/fs"
	"reflect"
	"slices"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/maltedev/catalog-crawler/internal/site"
	"github.com/spf13/viper"
)

type Config struct {
	Site     SiteConfig
	Browser  BrowserConfig
	Crawl    CrawlConfig
	Image    ImageConfig
	Storage  StorageConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Mongo    MongoConfig
	Logging  LoggingConfig
	Server   ServerConfig
}

type SiteConfig struct {
	Preset     string `env:"SITE_PRESET"`
	RulesFile  string `env:"SITE_RULES_FILE"`
	BaseURL    string `env:"BASE_URL" validate:"omitempty,url"`
	LoginURL   string `env:"LOGIN_URL" validate:"omitempty,url"`
	ListingURL string `env:"TARGET_URL" validate:"required,url"`
	LoginID    string `env:"LOGIN_ID" validate:"required"`
	LoginPW    string `env:"LOGIN_PW" validate:"required"`
}

type BrowserConfig struct {
	Headless  bool          `env:"BROWSER_HEADLESS"`
	Timeout   time.Duration `env:"BROWSER_TIMEOUT" validate:"gt=0"`
	UserAgent string        `env:"BROWSER_USER_AGENT"`
	Locale    string        `env:"BROWSER_LOCALE"`
	Timezone  string        `env:"BROWSER_TIMEZONE"`
}

type CrawlConfig struct {
	StartPage        int           `env:"CRAWL_START_PAGE" validate:"min=1"`
	ReadyTimeout     time.Duration `env:"CRAWL_READY_TIMEOUT" validate:"gt=0"`
	PollInitial      time.Duration `env:"CRAWL_POLL_INITIAL" validate:"gt=0"`
	PollMax          time.Duration `env:"CRAWL_POLL_MAX" validate:"gtefield=PollInitial"`
	RevealSteps      int           `env:"CRAWL_REVEAL_STEPS" validate:"min=0,max=100"`
	EmptyPageRetries int           `env:"CRAWL_EMPTY_PAGE_RETRIES" validate:"min=0,max=10"`
	MinInterval      time.Duration `env:"CRAWL_MIN_INTERVAL" validate:"min=0"`
}

type ImageConfig struct {
	Timeout time.Duration `env:"IMAGE_TIMEOUT" validate:"gt=0"`
}

type StorageConfig struct {
	OutputDir string `env:"OUTPUT_DIR" validate:"required"`
}

type DatabaseConfig struct {
	Enabled  bool   `env:"DB_ENABLED"`
	Host     string `env:"DB_HOST" validate:"required_if=Enabled true"`
	Port     int    `env:"DB_PORT" validate:"min=1,max=65535"`
	User     string `env:"DB_USER"`
	Password string `env:"DB_PASSWORD"`
	Name     string `env:"DB_NAME" validate:"required_if=Enabled true"`
	MaxConns int32  `env:"DB_MAX_CONNS" validate:"min=1"`
}

type RedisConfig struct {
	Enabled  bool   `env:"REDIS_ENABLED"`
	Addr     string `env:"REDIS_ADDR" validate:"required_if=Enabled true"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB" validate:"min=0"`
	Stream   string `env:"REDIS_STREAM" validate:"required"`
}

type MongoConfig struct {
	Enabled    bool   `env:"MONGO_ENABLED"`
	URI        string `env:"MONGO_URI" validate:"required_if=Enabled true"`
	Database   string `env:"MONGO_DATABASE" validate:"required_if=Enabled true"`
	Collection string `env:"MONGO_COLLECTION" validate:"required_if=Enabled true"`
}

type LoggingConfig struct {
	Level  string `env:"LOG_LEVEL" validate:"oneof=debug info warn error"`
	Format string `env:"LOG_FORMAT" validate:"oneof=json text"`
	File   string `env:"LOG_FILE"`
}

type ServerConfig struct {
	Port int `env:"SERVER_PORT" validate:"min=1,max=65535"`
}

var defaults = map[string]any{
	"SITE_PRESET":              site.PresetCafe24,
	"BROWSER_HEADLESS":         true,
	"BROWSER_TIMEOUT":          "30s",
	"BROWSER_LOCALE":           "ko-KR",
	"BROWSER_TIMEZONE":         "Asia/Seoul",
	"CRAWL_START_PAGE":         1,
	"CRAWL_READY_TIMEOUT":      "5s",
	"CRAWL_POLL_INITIAL":       "100ms",
	"CRAWL_POLL_MAX":           "1s",
	"CRAWL_REVEAL_STEPS":       8,
	"CRAWL_EMPTY_PAGE_RETRIES": 1,
	"CRAWL_MIN_INTERVAL":       "0s",
	"IMAGE_TIMEOUT":            "30s",
	"OUTPUT_DIR":               "./output",
	"DB_ENABLED":               false,
	"DB_HOST":                  "localhost",
	"DB_PORT":                  5432,
	"DB_USER":                  "postgres",
	"DB_NAME":                  "catalog",
	"DB_MAX_CONNS":             4,
	"REDIS_ENABLED":            false,
	"REDIS_ADDR":               "localhost:6379",
	"REDIS_DB":                 0,
	"REDIS_STREAM":             "stream:catalog_products",
	"MONGO_ENABLED":            false,
	"MONGO_URI":                "mongodb://localhost:27017",
	"MONGO_DATABASE":           "catalog",
	"MONGO_COLLECTION":         "products",
	"LOG_LEVEL":                "info",
	"LOG_FORMAT":               "json",
	"SERVER_PORT":              8080,
}

// Load reads ./.env when present and lets the environment override it.
func Load() (*Config, error) {
	return LoadFile(".env")
}

func LoadFile(envFile string) (*Config, error) {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.SetConfigFile(envFile)
	v.SetConfigType("env")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.Is(err, fs.ErrNotExist) && !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read %s: %w", envFile, err)
		}
	}

	cfg := &Config{
		Site: SiteConfig{
			Preset:     v.GetString("SITE_PRESET"),
			RulesFile:  v.GetString("SITE_RULES_FILE"),
			BaseURL:    v.GetString("BASE_URL"),
			LoginURL:   v.GetString("LOGIN_URL"),
			ListingURL: v.GetString("TARGET_URL"),
			LoginID:    firstString(v, "LOGIN_ID", "ID"),
			LoginPW:    firstString(v, "LOGIN_PW", "PW"),
		},
		Browser: BrowserConfig{
			Headless:  v.GetBool("BROWSER_HEADLESS"),
			Timeout:   v.GetDuration("BROWSER_TIMEOUT"),
			UserAgent: v.GetString("BROWSER_USER_AGENT"),
			Locale:    v.GetString("BROWSER_LOCALE"),
			Timezone:  v.GetString("BROWSER_TIMEZONE"),
		},
		Crawl: CrawlConfig{
			StartPage:        v.GetInt("CRAWL_START_PAGE"),
			ReadyTimeout:     v.GetDuration("CRAWL_READY_TIMEOUT"),
			PollInitial:      v.GetDuration("CRAWL_POLL_INITIAL"),
			PollMax:          v.GetDuration("CRAWL_POLL_MAX"),
			RevealSteps:      v.GetInt("CRAWL_REVEAL_STEPS"),
			EmptyPageRetries: v.GetInt("CRAWL_EMPTY_PAGE_RETRIES"),
			MinInterval:      v.GetDuration("CRAWL_MIN_INTERVAL"),
		},
		Image: ImageConfig{
			Timeout: v.GetDuration("IMAGE_TIMEOUT"),
		},
		Storage: StorageConfig{
			OutputDir: v.GetString("OUTPUT_DIR"),
		},
		Database: DatabaseConfig{
			Enabled:  v.GetBool("DB_ENABLED"),
			Host:     v.GetString("DB_HOST"),
			Port:     v.GetInt("DB_PORT"),
			User:     v.GetString("DB_USER"),
			Password: v.GetString("DB_PASSWORD"),
			Name:     v.GetString("DB_NAME"),
			MaxConns: v.GetInt32("DB_MAX_CONNS"),
		},
		Redis: RedisConfig{
			Enabled:  v.GetBool("REDIS_ENABLED"),
			Addr:     v.GetString("REDIS_ADDR"),
			Password: v.GetString("REDIS_PASSWORD"),
			DB:       v.GetInt("REDIS_DB"),
			Stream:   v.GetString("REDIS_STREAM"),
		},
		Mongo: MongoConfig{
			Enabled:    v.GetBool("MONGO_ENABLED"),
			URI:        v.GetString("MONGO_URI"),
			Database:   v.GetString("MONGO_DATABASE"),
			Collection: v.GetString("MONGO_COLLECTION"),
		},
		Logging: LoggingConfig{
			Level:  v.GetString("LOG_LEVEL"),
			Format: v.GetString("LOG_FORMAT"),
			File:   v.GetString("LOG_FILE"),
		},
		Server: ServerConfig{
			Port: v.GetInt("SERVER_PORT"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// firstString returns the first key with a non-empty value. Older .env
// files name the login keys ID and PW.
func firstString(v *viper.Viper, keys ...string) string {
	for _, key := range keys {
		if s := v.GetString(key); s != "" {
			return s
		}
	}
	return ""
}

func newValidator() *validator.Validate {
	v := validator.New()
	// report environment variable names instead of Go field names
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		if name := fld.Tag.Get("env"); name != "" {
			return name
		}
		return fld.Name
	})
	return v
}

func (c *Config) Validate() error {
	if err := newValidator().Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			first := verrs[0]
			return fmt.Errorf("invalid configuration: %s (rule: %s)", first.Field(), first.Tag())
		}
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if c.Site.RulesFile == "" && !slices.Contains(site.PresetNames(), c.Site.Preset) {
		return fmt.Errorf("SITE_PRESET %q is not one of %v", c.Site.Preset, site.PresetNames())
	}

	return nil
}

// Ruleset builds the site rules: the rules file when one is configured,
// otherwise the named preset, with the URL settings applied on top.
func (c *Config) Ruleset() (*site.Ruleset, error) {
	var (
		rules *site.Ruleset
		err   error
	)
	if c.Site.RulesFile != "" {
		rules, err = site.LoadFile(c.Site.RulesFile)
	} else {
		rules, err = site.Preset(c.Site.Preset)
	}
	if err != nil {
		return nil, err
	}

	rules.Apply(site.Overrides{
		BaseURL:    c.Site.BaseURL,
		LoginURL:   c.Site.LoginURL,
		ListingURL: c.Site.ListingURL,
	})
	if err := rules.Validate(); err != nil {
		return nil, err
	}
	return rules, nil
}

func (c *Config) Credentials() site.Credentials {
	return site.Credentials{User: c.Site.LoginID, Password: c.Site.LoginPW}
}
