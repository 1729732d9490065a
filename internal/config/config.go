package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/semmidev/backdrop/internal/domain"
	"github.com/spf13/viper"
)

const envPrefix = "BACKDROP"

type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Producer  ProducerConfig  `mapstructure:"producer"`
	Remote    RemoteConfig    `mapstructure:"remote"`
	Retention RetentionConfig `mapstructure:"retention"`
	Schedule  ScheduleConfig  `mapstructure:"schedule"`
	Notify    NotifyConfig    `mapstructure:"notify"`
}

type AppConfig struct {
	Name     string `mapstructure:"name"`
	LogLevel string `mapstructure:"log_level"`
	LogFile  string `mapstructure:"log_file"`
}

type ProducerConfig struct {
	Name        string           `mapstructure:"name"`
	WorkDir     string           `mapstructure:"work_dir"`
	LocalPath   string           `mapstructure:"local_path"`
	FilePrefix  string           `mapstructure:"file_prefix"`
	Compress    bool             `mapstructure:"compress"`
	KeepLocal   int              `mapstructure:"keep_local"`
	LocalExpiry time.Duration    `mapstructure:"local_expiry"`
	Directories []string         `mapstructure:"directories"`
	Databases   []DatabaseConfig `mapstructure:"databases"`
}

type DatabaseConfig struct {
	Name     string `mapstructure:"name"`
	Type     string `mapstructure:"type"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	Enabled  bool   `mapstructure:"enabled"`

	// PostgreSQL specific
	SSLMode string `mapstructure:"ssl_mode"`

	// MongoDB specific
	AuthDatabase string `mapstructure:"auth_database"`
}

type RemoteConfig struct {
	Type       string        `mapstructure:"type"`
	UploadPath string        `mapstructure:"upload_path"`
	Dropbox    DropboxConfig `mapstructure:"dropbox"`
	S3         S3Config      `mapstructure:"s3"`
	Minio      MinioConfig   `mapstructure:"minio"`
	GDrive     GDriveConfig  `mapstructure:"gdrive"`
	Local      LocalConfig   `mapstructure:"local"`
}

// DropboxConfig holds the app credentials from https://www.dropbox.com/developers/apps.
// AccessToken is the generated token of the user who owns the backups. With a
// RefreshToken set, short-lived access tokens are refreshed automatically.
type DropboxConfig struct {
	AppKey       string `mapstructure:"app_key"`
	AppSecret    string `mapstructure:"app_secret"`
	AccessToken  string `mapstructure:"access_token"`
	RefreshToken string `mapstructure:"refresh_token"`
}

type S3Config struct {
	Region    string `mapstructure:"region"`
	Bucket    string `mapstructure:"bucket"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Endpoint  string `mapstructure:"endpoint"`
}

type MinioConfig struct {
	Endpoint  string `mapstructure:"endpoint"`
	Bucket    string `mapstructure:"bucket"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	UseSSL    bool   `mapstructure:"use_ssl"`
}

type GDriveConfig struct {
	// Service account key. Takes precedence over the OAuth client files.
	CredentialsFile  string `mapstructure:"credentials_file"`
	ClientSecretFile string `mapstructure:"client_secret_file"`
	TokenFile        string `mapstructure:"token_file"`
	FolderID         string `mapstructure:"folder_id"`
}

type LocalConfig struct {
	Path string `mapstructure:"path"`
}

type RetentionConfig struct {
	Expiry      time.Duration `mapstructure:"expiry"`
	MatchSuffix string        `mapstructure:"match_suffix"`
	AutoDelete  bool          `mapstructure:"auto_delete"`
}

type ScheduleConfig struct {
	Cron       string `mapstructure:"cron"`
	RunOnStart bool   `mapstructure:"run_on_start"`
}

type NotifyConfig struct {
	Telegram TelegramConfig `mapstructure:"telegram"`
	Webhook  WebhookConfig  `mapstructure:"webhook"`
}

type TelegramConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	BotToken  string `mapstructure:"bot_token"`
	ChatID    int64  `mapstructure:"chat_id"`
	OnSuccess bool   `mapstructure:"on_success"`
	OnFailure bool   `mapstructure:"on_failure"`

	// APIEndpoint overrides the Bot API URL format, for self-hosted Bot API
	// servers. Defaults to the public API.
	APIEndpoint string `mapstructure:"api_endpoint"`
}

type WebhookConfig struct {
	Enabled   bool              `mapstructure:"enabled"`
	URL       string            `mapstructure:"url"`
	Headers   map[string]string `mapstructure:"headers"`
	OnSuccess bool              `mapstructure:"on_success"`
	OnFailure bool              `mapstructure:"on_failure"`
}

func Load(path string) (*Config, error) {
	// A missing .env is fine; everything can come from the YAML file.
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "backdrop")
	v.SetDefault("app.log_level", "info")

	v.SetDefault("producer.name", "backup")
	v.SetDefault("producer.local_path", "backups")
	v.SetDefault("producer.file_prefix", "backup")
	v.SetDefault("producer.compress", true)
	v.SetDefault("producer.keep_local", 3)
	v.SetDefault("producer.local_expiry", 7*24*time.Hour)

	v.SetDefault("remote.type", "dropbox")
	v.SetDefault("remote.upload_path", "/")
	v.SetDefault("remote.s3.region", "us-east-1")

	// One month, 2592000 seconds.
	v.SetDefault("retention.expiry", 720*time.Hour)
	v.SetDefault("retention.match_suffix", domain.DefaultMatchSuffix)
	v.SetDefault("retention.auto_delete", true)

	v.SetDefault("schedule.cron", "0 0 3 * * *")

	v.SetDefault("notify.telegram.on_failure", true)
	v.SetDefault("notify.webhook.on_failure", true)

	// Secrets without a YAML key still need a binding for AutomaticEnv.
	for _, key := range []string{
		"remote.dropbox.app_key",
		"remote.dropbox.app_secret",
		"remote.dropbox.access_token",
		"remote.dropbox.refresh_token",
		"remote.s3.access_key",
		"remote.s3.secret_key",
		"remote.minio.access_key",
		"remote.minio.secret_key",
		"notify.telegram.bot_token",
	} {
		_ = v.BindEnv(key)
	}
}

// Validate fails fast with domain.ErrConfiguration before anything touches
// the remote side.
func (c *Config) Validate() error {
	var errs []error

	errs = append(errs, c.Producer.validate()...)
	errs = append(errs, c.Remote.validate()...)
	errs = append(errs, c.Retention.validate()...)

	if c.Schedule.Cron != "" {
		if _, err := cron.NewParser(cronFields).Parse(c.Schedule.Cron); err != nil {
			errs = append(errs, fmt.Errorf("schedule.cron: %w", err))
		}
	}

	if c.Notify.Telegram.Enabled {
		if c.Notify.Telegram.BotToken == "" {
			errs = append(errs, errors.New("notify.telegram.bot_token is required"))
		}
		if c.Notify.Telegram.ChatID == 0 {
			errs = append(errs, errors.New("notify.telegram.chat_id is required"))
		}
	}
	if c.Notify.Webhook.Enabled && strings.TrimSpace(c.Notify.Webhook.URL) == "" {
		errs = append(errs, errors.New("notify.webhook.url is required"))
	}

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", domain.ErrConfiguration, errors.Join(errs...))
}

// cronFields matches the scheduler: seconds first.
const cronFields = cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow

func (p ProducerConfig) validate() []error {
	var errs []error

	if p.LocalPath == "" {
		errs = append(errs, errors.New("producer.local_path is required"))
	}
	if p.FilePrefix == "" || strings.ContainsAny(p.FilePrefix, `/\`) {
		errs = append(errs, errors.New("producer.file_prefix must be a plain file name prefix"))
	}
	if p.KeepLocal < 0 {
		errs = append(errs, errors.New("producer.keep_local must be >= 0"))
	}
	if p.LocalExpiry < 0 {
		errs = append(errs, errors.New("producer.local_expiry must be >= 0"))
	}
	if len(p.Directories) == 0 && len(p.EnabledDatabases()) == 0 {
		errs = append(errs, errors.New("producer needs at least one directory or enabled database"))
	}

	for i, db := range p.Databases {
		if db.Name == "" {
			errs = append(errs, fmt.Errorf("producer.databases[%d]: name is required", i))
		}
		switch db.Type {
		case "mysql", "postgresql", "mongodb":
		default:
			errs = append(errs, fmt.Errorf("producer.databases[%d]: unsupported type %q", i, db.Type))
		}
		if db.Host == "" {
			errs = append(errs, fmt.Errorf("producer.databases[%d]: host is required", i))
		}
	}

	return errs
}

func (r RemoteConfig) validate() []error {
	var errs []error

	if !strings.HasPrefix(r.UploadPath, "/") {
		errs = append(errs, errors.New("remote.upload_path must start with /"))
	}

	switch r.Type {
	case "dropbox":
		if r.Dropbox.AppKey == "" {
			errs = append(errs, errors.New("remote.dropbox.app_key is required"))
		}
		if r.Dropbox.AppSecret == "" {
			errs = append(errs, errors.New("remote.dropbox.app_secret is required"))
		}
		if r.Dropbox.AccessToken == "" {
			errs = append(errs, errors.New("remote.dropbox.access_token is required"))
		}
	case "s3":
		if r.S3.Bucket == "" {
			errs = append(errs, errors.New("remote.s3.bucket is required"))
		}
		if r.S3.Region == "" {
			errs = append(errs, errors.New("remote.s3.region is required"))
		}
		if (r.S3.AccessKey == "") != (r.S3.SecretKey == "") {
			errs = append(errs, errors.New("remote.s3.access_key and remote.s3.secret_key must be set together"))
		}
	case "minio":
		if r.Minio.Endpoint == "" {
			errs = append(errs, errors.New("remote.minio.endpoint is required"))
		}
		if r.Minio.Bucket == "" {
			errs = append(errs, errors.New("remote.minio.bucket is required"))
		}
	case "gdrive":
		if r.GDrive.FolderID == "" {
			errs = append(errs, errors.New("remote.gdrive.folder_id is required"))
		}
		if r.GDrive.CredentialsFile == "" && (r.GDrive.ClientSecretFile == "" || r.GDrive.TokenFile == "") {
			errs = append(errs, errors.New("remote.gdrive needs credentials_file or client_secret_file with token_file"))
		}
	case "local":
		if r.Local.Path == "" {
			errs = append(errs, errors.New("remote.local.path is required"))
		}
	default:
		errs = append(errs, fmt.Errorf("remote.type %q is not supported", r.Type))
	}

	return errs
}

func (r RetentionConfig) validate() []error {
	var errs []error

	if r.Expiry < 0 {
		errs = append(errs, errors.New("retention.expiry must be >= 0"))
	}
	if r.Expiry%time.Second != 0 {
		errs = append(errs, errors.New("retention.expiry must be a whole number of seconds"))
	}
	if r.MatchSuffix == "" {
		errs = append(errs, errors.New("retention.match_suffix is required"))
	}

	return errs
}

func (p ProducerConfig) EnabledDatabases() []DatabaseConfig {
	var enabled []DatabaseConfig
	for _, db := range p.Databases {
		if db.Enabled {
			enabled = append(enabled, db)
		}
	}
	return enabled
}

func (c *Config) RetentionPolicy() domain.RetentionPolicy {
	return domain.RetentionPolicy{
		Expiry:      c.Retention.Expiry,
		MatchSuffix: c.Retention.MatchSuffix,
		AutoDelete:  c.Retention.AutoDelete,
	}
}

// UploadDir is the remote directory backups are uploaded to and swept in,
// without a trailing slash. The root stays "/".
func (c *Config) UploadDir() string {
	dir := strings.TrimRight(c.Remote.UploadPath, "/")
	if dir == "" {
		return "/"
	}
	return dir
}
