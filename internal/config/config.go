package config

import (
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"esign-archiver/internal/domain/entity"
)

// Strategy constants for the document library transport
const (
	StrategySession = "session"
	StrategyREST    = "rest"
)

type Config struct {
	App        AppConfig        `mapstructure:"app"`
	DocuSign   DocuSignConfig   `mapstructure:"docusign"`
	Recipient  RecipientConfig  `mapstructure:"recipient"`
	SharePoint SharePointConfig `mapstructure:"sharepoint"`
	Webhook    WebhookConfig    `mapstructure:"webhook"`
	Document   DocumentConfig   `mapstructure:"document"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

type AppConfig struct {
	Name    string `mapstructure:"name"`
	Port    int    `mapstructure:"port"`
	Env     string `mapstructure:"env"`
	BaseURL string `mapstructure:"base_url"`
}

type DocuSignConfig struct {
	OAuthBasePath  string        `mapstructure:"oauth_base_path"` // account-d.docusign.com or an URL
	IntegratorKey  string        `mapstructure:"integrator_key"`
	UserID         string        `mapstructure:"user_id"`
	PrivateKeyPath string        `mapstructure:"private_key_path"`
	PrivateKey     string        `mapstructure:"private_key"` // inline PEM, wins over the path
	ExpiresInHours int           `mapstructure:"expires_in_hours"`
	TemplateID     string        `mapstructure:"template_id"`
	RoleName       string        `mapstructure:"role_name"`
	EmailSubject   string        `mapstructure:"email_subject"`
	Timeout        time.Duration `mapstructure:"timeout"`
	MaxRetries     int           `mapstructure:"max_retries"`
	RetryInterval  time.Duration `mapstructure:"retry_interval"`
}

// OAuthBaseURL returns the oauth base path as an absolute URL
func (d *DocuSignConfig) OAuthBaseURL() string {
	if strings.HasPrefix(d.OAuthBasePath, "http://") || strings.HasPrefix(d.OAuthBasePath, "https://") {
		return strings.TrimRight(d.OAuthBasePath, "/")
	}
	return "https://" + strings.TrimRight(d.OAuthBasePath, "/")
}

// OAuthHost returns the oauth base path without scheme, used as the JWT audience
func (d *DocuSignConfig) OAuthHost() string {
	host := strings.TrimPrefix(d.OAuthBaseURL(), "https://")
	return strings.TrimPrefix(host, "http://")
}

// TokenLifetime is the lifetime requested for JWT grant assertions
func (d *DocuSignConfig) TokenLifetime() time.Duration {
	return time.Duration(d.ExpiresInHours) * time.Hour
}

// LoadPrivateKey returns the PEM private key material
func (d *DocuSignConfig) LoadPrivateKey() ([]byte, error) {
	if d.PrivateKey != "" {
		return []byte(d.PrivateKey), nil
	}
	if d.PrivateKeyPath == "" {
		return nil, entity.ConfigurationError("docusign.private_key_path is not set")
	}
	key, err := os.ReadFile(d.PrivateKeyPath)
	if err != nil {
		return nil, entity.ConfigurationError("failed to read private key %s: %v", d.PrivateKeyPath, err)
	}
	return key, nil
}

type RecipientConfig struct {
	Name  string `mapstructure:"name"`
	Email string `mapstructure:"email"`
}

type SharePointConfig struct {
	Enabled         bool          `mapstructure:"enabled"`  // run the repository stage at all
	Strategy        string        `mapstructure:"strategy"` // "session" or "rest"
	SiteURL         string        `mapstructure:"site_url"`
	Library         string        `mapstructure:"library"`
	Username        string        `mapstructure:"username"`
	Password        string        `mapstructure:"password"`
	STSURL          string        `mapstructure:"sts_url"`
	SessionValidity time.Duration `mapstructure:"session_validity"`
	DigestMargin    time.Duration `mapstructure:"digest_margin"`
	RootFallback    bool          `mapstructure:"root_fallback"`
	Timeout         time.Duration `mapstructure:"timeout"`
	MaxRetries      int           `mapstructure:"max_retries"`
	RetryInterval   time.Duration `mapstructure:"retry_interval"`
}

// IsREST returns true if the REST + form digest strategy is selected
func (s *SharePointConfig) IsREST() bool {
	return s.Strategy == StrategyREST
}

type WebhookConfig struct {
	HMACKey     string `mapstructure:"hmac_key"`
	AutoArchive bool   `mapstructure:"auto_archive"`
}

type DocumentConfig struct {
	SpoolEnabled   bool   `mapstructure:"spool_enabled"`
	BasePath       string `mapstructure:"base_path"`
	ProgressFolder string `mapstructure:"progress_folder"` // artifacts waiting for upload
	FinishFolder   string `mapstructure:"finish_folder"`   // artifacts uploaded successfully
}

type DatabaseConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Driver   string `mapstructure:"driver"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "esign-archiver")
	v.SetDefault("app.port", 8080)
	v.SetDefault("app.env", "development")

	v.SetDefault("docusign.oauth_base_path", "account-d.docusign.com")
	v.SetDefault("docusign.expires_in_hours", 1)
	v.SetDefault("docusign.role_name", "Signer")
	v.SetDefault("docusign.email_subject", "Please sign this document")
	v.SetDefault("docusign.timeout", 30*time.Second)
	v.SetDefault("docusign.max_retries", 3)
	v.SetDefault("docusign.retry_interval", time.Second)

	v.SetDefault("sharepoint.strategy", StrategySession)
	v.SetDefault("sharepoint.sts_url", "https://login.microsoftonline.com/extSTS.srf")
	v.SetDefault("sharepoint.session_validity", 30*time.Minute)
	v.SetDefault("sharepoint.digest_margin", 30*time.Second)
	v.SetDefault("sharepoint.timeout", 60*time.Second)
	v.SetDefault("sharepoint.max_retries", 3)
	v.SetDefault("sharepoint.retry_interval", time.Second)

	v.SetDefault("document.base_path", "./spool")
	v.SetDefault("document.progress_folder", "progress")
	v.SetDefault("document.finish_folder", "finish")

	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("logging.level", "info")
}

// NewConfig loads config.yaml from the working directory, ./config, or the file named
// by APP_CONFIG. Environment variables override file values (docusign.user_id -> DOCUSIGN_USER_ID).
func NewConfig() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if file := os.Getenv("APP_CONFIG"); file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	// Enable environment variable override
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		return nil, entity.ConfigurationError("failed to read config: %v", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, entity.ConfigurationError("failed to decode config: %v", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks the settings the pipeline cannot run without
func (c *Config) Validate() error {
	missing := []string{}
	if c.DocuSign.IntegratorKey == "" {
		missing = append(missing, "docusign.integrator_key")
	}
	if c.DocuSign.UserID == "" {
		missing = append(missing, "docusign.user_id")
	}
	if c.DocuSign.PrivateKey == "" && c.DocuSign.PrivateKeyPath == "" {
		missing = append(missing, "docusign.private_key_path")
	}
	if c.SharePoint.Enabled {
		if c.SharePoint.SiteURL == "" {
			missing = append(missing, "sharepoint.site_url")
		}
		if c.SharePoint.Library == "" {
			missing = append(missing, "sharepoint.library")
		}
		if c.SharePoint.Username == "" {
			missing = append(missing, "sharepoint.username")
		}
	}
	if len(missing) > 0 {
		return entity.ConfigurationError("missing required settings: %s", strings.Join(missing, ", "))
	}

	if c.SharePoint.Strategy != StrategySession && c.SharePoint.Strategy != StrategyREST {
		return entity.ConfigurationError("sharepoint.strategy must be %q or %q, got %q", StrategySession, StrategyREST, c.SharePoint.Strategy)
	}
	if c.DocuSign.ExpiresInHours <= 0 {
		return entity.ConfigurationError("docusign.expires_in_hours must be positive")
	}
	return nil
}

func (c *Config) IsDevelopment() bool {
	return c.App.Env == "development"
}

func (c *Config) IsProduction() bool {
	return c.App.Env == "production"
}
