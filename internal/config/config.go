package config

import "strings"

// AppConfig holds application-level settings.
type AppConfig struct {
	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"` // text or json
}

// HTTPConfig controls the REST API server.
type HTTPConfig struct {
	Addr           string   `mapstructure:"addr"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	AdminToken     string   `mapstructure:"admin_token"`    // empty disables admin auth
	SubscribeRate  int64    `mapstructure:"subscribe_rate"` // requests per minute per IP
	ShutdownGrace  string   `mapstructure:"shutdown_grace"` // duration string, e.g., "10s"
}

// StoreConfig selects the subscriber store backend.
type StoreConfig struct {
	Driver string `mapstructure:"driver"` // redis or postgres
}

// RedisConfig holds redis connection settings.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"` // key namespace, default "newsletter"
}

// PostgresConfig holds postgres connection settings.
type PostgresConfig struct {
	DSN          string `mapstructure:"dsn"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	AutoMigrate  bool   `mapstructure:"auto_migrate"`
}

// SocialConfig lists the brand's social profiles.
type SocialConfig struct {
	Instagram string `mapstructure:"instagram"`
	Facebook  string `mapstructure:"facebook"`
	Twitter   string `mapstructure:"twitter"`
	Pinterest string `mapstructure:"pinterest"`
	TikTok    string `mapstructure:"tiktok"`
}

// BrandConfig carries white-label defaults used when templates or stored
// settings leave a field empty.
type BrandConfig struct {
	CompanyName  string       `mapstructure:"company_name"`
	WebsiteURL   string       `mapstructure:"website_url"`
	LogoURL      string       `mapstructure:"logo_url"`
	PrimaryColor string       `mapstructure:"primary_color"`
	AccentColor  string       `mapstructure:"accent_color"`
	ContactEmail string       `mapstructure:"contact_email"`
	Address      string       `mapstructure:"address"`
	Social       SocialConfig `mapstructure:"social"`
}

// NewsletterConfig controls templating and dispatch.
type NewsletterConfig struct {
	PresetsDir      string `mapstructure:"presets_dir"` // optional extra presets
	DiscountPercent int    `mapstructure:"discount_percent"`
	OfferValidity   string `mapstructure:"offer_validity"` // duration string, e.g., "168h"
	Concurrency     int    `mapstructure:"concurrency"`
	PageSize        int    `mapstructure:"page_size"`
}

// SMTPConfig holds SMTP submission settings.
type SMTPConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	TLS      string `mapstructure:"tls"` // mandatory, opportunistic or none
}

// SESConfig holds AWS SES settings.
type SESConfig struct {
	Region          string `mapstructure:"region"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	ConfigSet       string `mapstructure:"configuration_set"`
}

// MailConfig selects and configures the mail transport.
type MailConfig struct {
	Transport string     `mapstructure:"transport"` // smtp, ses or log
	From      string     `mapstructure:"from"`
	FromName  string     `mapstructure:"from_name"`
	ReplyTo   string     `mapstructure:"reply_to"`
	Timeout   string     `mapstructure:"timeout"` // duration string
	SMTP      SMTPConfig `mapstructure:"smtp"`
	SES       SESConfig  `mapstructure:"ses"`
}

// UnsubscribeConfig controls unsubscribe link signing.
type UnsubscribeConfig struct {
	SigningKey   string `mapstructure:"signing_key"`
	RequireToken bool   `mapstructure:"require_token"`
	Path         string `mapstructure:"path"`
}

// OpenAIConfig enables AI subject suggestions.
type OpenAIConfig struct {
	APIKey   string `mapstructure:"api_key"`
	Model    string `mapstructure:"model"`
	BaseURL  string `mapstructure:"base_url"`
	Language string `mapstructure:"language"`
}

// ImagesConfig controls header image normalization.
type ImagesConfig struct {
	Normalize   bool   `mapstructure:"normalize"`
	AssetsDir   string `mapstructure:"assets_dir"`
	PublicURL   string `mapstructure:"public_url"` // base URL under which assets_dir is served
	JPEGQuality int    `mapstructure:"jpeg_quality"`
	MaxAge      string `mapstructure:"max_age"`        // prune assets older than this
	PruneEvery  string `mapstructure:"prune_interval"` // janitor interval
}

// Config is the top-level configuration structure.
type Config struct {
	App         AppConfig         `mapstructure:"app"`
	HTTP        HTTPConfig        `mapstructure:"http"`
	Store       StoreConfig       `mapstructure:"store"`
	Redis       RedisConfig       `mapstructure:"redis"`
	Postgres    PostgresConfig    `mapstructure:"postgres"`
	Brand       BrandConfig       `mapstructure:"brand"`
	Newsletter  NewsletterConfig  `mapstructure:"newsletter"`
	Mail        MailConfig        `mapstructure:"mail"`
	Unsubscribe UnsubscribeConfig `mapstructure:"unsubscribe"`
	OpenAI      OpenAIConfig      `mapstructure:"openai"`
	Images      ImagesConfig      `mapstructure:"images"`
}

// FillDefaults applies default values if not provided.
func (c *Config) FillDefaults() {
	if c.App.LogLevel == "" {
		c.App.LogLevel = "info"
	}
	if c.App.LogFormat == "" {
		c.App.LogFormat = "text"
	}
	if c.HTTP.Addr == "" {
		c.HTTP.Addr = ":8080"
	}
	if c.HTTP.SubscribeRate == 0 {
		c.HTTP.SubscribeRate = 10
	}
	if c.HTTP.ShutdownGrace == "" {
		c.HTTP.ShutdownGrace = "10s"
	}
	c.Store.Driver = strings.ToLower(strings.TrimSpace(c.Store.Driver))
	if c.Store.Driver == "" {
		c.Store.Driver = "redis"
	}
	if c.Redis.Addr == "" {
		c.Redis.Addr = "127.0.0.1:6379"
	}
	if c.Redis.Prefix == "" {
		c.Redis.Prefix = "newsletter"
	}
	if c.Postgres.MaxOpenConns == 0 {
		c.Postgres.MaxOpenConns = 10
	}
	if c.Brand.CompanyName == "" {
		c.Brand.CompanyName = "Maison Storefront"
	}
	if c.Brand.WebsiteURL == "" {
		c.Brand.WebsiteURL = "http://localhost:8080"
	}
	c.Brand.WebsiteURL = strings.TrimRight(c.Brand.WebsiteURL, "/")
	if c.Brand.PrimaryColor == "" {
		c.Brand.PrimaryColor = "#1a1a1a"
	}
	if c.Brand.AccentColor == "" {
		c.Brand.AccentColor = "#c9a96e"
	}
	if c.Newsletter.DiscountPercent == 0 {
		c.Newsletter.DiscountPercent = 20
	}
	if c.Newsletter.OfferValidity == "" {
		c.Newsletter.OfferValidity = "168h"
	}
	if c.Newsletter.Concurrency <= 0 {
		c.Newsletter.Concurrency = 4
	}
	if c.Newsletter.PageSize <= 0 {
		c.Newsletter.PageSize = 50
	}
	c.Mail.Transport = strings.ToLower(strings.TrimSpace(c.Mail.Transport))
	if c.Mail.Transport == "" {
		c.Mail.Transport = "log"
	}
	if c.Mail.From == "" {
		c.Mail.From = "newsletter@localhost"
	}
	if c.Mail.FromName == "" {
		c.Mail.FromName = c.Brand.CompanyName
	}
	if c.Mail.Timeout == "" {
		c.Mail.Timeout = "20s"
	}
	if c.Mail.SMTP.Port == 0 {
		c.Mail.SMTP.Port = 587
	}
	if c.Mail.SMTP.TLS == "" {
		c.Mail.SMTP.TLS = "mandatory"
	}
	if c.Mail.SES.Region == "" {
		c.Mail.SES.Region = "us-east-1"
	}
	if c.Unsubscribe.Path == "" {
		c.Unsubscribe.Path = "/newsletter/unsubscribe"
	}
	if c.OpenAI.Model == "" {
		c.OpenAI.Model = "gpt-4o-mini"
	}
	if c.Images.AssetsDir == "" {
		c.Images.AssetsDir = "./assets"
	}
	if c.Images.PublicURL == "" {
		c.Images.PublicURL = c.Brand.WebsiteURL + "/assets"
	}
	if c.Images.JPEGQuality <= 0 || c.Images.JPEGQuality > 100 {
		c.Images.JPEGQuality = 85
	}
	if c.Images.MaxAge == "" {
		c.Images.MaxAge = "720h"
	}
	if c.Images.PruneEvery == "" {
		c.Images.PruneEvery = "6h"
	}
}
