package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/Zenn-Dev99/StrapiAlmonte-sub001/internal/domain/integration"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of every environment variable read by Load
const EnvPrefix = "CATALOGSYNC"

// Config holds all application configuration, assembled once at startup
type Config struct {
	App          AppConfig
	Log          LogConfig
	Database     DatabaseConfig
	Redis        RedisConfig
	ContentStore ContentStoreConfig
	Channels     map[string]ChannelConfig
	Memberships  []MembershipRuleConfig
	Sync         SyncConfig
	Retry        RetryConfig
	Scheduler    SchedulerConfig
	HTTP         HTTPConfig
	Metrics      MetricsConfig
	Telemetry    TelemetryConfig
}

// AppConfig holds application-specific settings
type AppConfig struct {
	Name string
	Env  string
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, console
	Output string // stdout, stderr, or file path
}

// DatabaseConfig holds identifier map storage settings
type DatabaseConfig struct {
	Driver          string // sqlite or postgres
	Path            string // sqlite file
	Host            string
	Port            int
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime int // in minutes
	ConnMaxIdleTime int // in minutes
	AutoMigrate     bool
}

// RedisConfig holds settings of the shared taxonomy term cache
type RedisConfig struct {
	Enabled   bool
	Host      string
	Port      int
	Password  string
	DB        int
	KeyPrefix string
	TTL       time.Duration
}

// ContentStoreConfig holds the canonical content store connection
type ContentStoreConfig struct {
	BaseURL  string `validate:"required,url"`
	Token    string `validate:"required"`
	PageSize int    `validate:"min=1,max=250"`
	Timeout  time.Duration
}

// ChannelConfig holds one channel's settings as read from file or environment
type ChannelConfig struct {
	Key                string
	BaseURL            string   `validate:"required,url"`
	Auth               string   `validate:"oneof=basic bearer"`
	APIKey             string   `validate:"required_if=Auth basic"`
	Secret             string   `validate:"required_if=Auth basic"`
	Token              string   `validate:"required_if=Auth bearer"`
	Capabilities       []string `validate:"dive,oneof=attributes brands categories"`
	Memberships        []string
	Collections        map[string]string
	CategoryAliases    map[string]string
	BrandFromPublisher bool
	Timeout            time.Duration
	RateLimit          float64 `validate:"min=0"`
}

// MembershipRuleConfig derives a membership tag from the publisher
type MembershipRuleConfig struct {
	Tag            string   `mapstructure:"tag"`
	PublisherIDs   []string `mapstructure:"publisher_ids"`
	PublisherNames []string `mapstructure:"publisher_names"`
}

// SyncConfig holds run settings
type SyncConfig struct {
	Concurrency int
	Limit       int
	Kinds       []string
	MetricsFile string
}

// RetryConfig holds the channel retry policy
type RetryConfig struct {
	MaxAttempts int
	BackoffBase time.Duration
	Jitter      time.Duration
}

// SchedulerConfig holds serve mode scheduling
type SchedulerConfig struct {
	Enabled           bool
	SyncInterval      time.Duration
	ReconcileInterval time.Duration
	JobTimeout        time.Duration
	RunOnStart        bool
}

// HTTPConfig holds the serve mode status server
type HTTPConfig struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// MetricsConfig holds Prometheus settings
type MetricsConfig struct {
	Namespace string
}

// TelemetryConfig holds OpenTelemetry configuration
type TelemetryConfig struct {
	Enabled           bool          // Whether to enable OpenTelemetry
	CollectorEndpoint string        // OTEL Collector endpoint (e.g., "localhost:4317")
	SamplingRatio     float64       // Sampling ratio (0.0-1.0, 1.0 = 100%)
	ServiceName       string        // Service name for traces
	Insecure          bool          // Use insecure (non-TLS) connection
	MetricsEnabled    bool          // Export channel metrics over OTLP
	MetricsInterval   time.Duration // OTLP metrics export interval
	DBTraceEnabled    bool          // Trace identifier map queries (otelgorm)
}

// Load loads configuration from .env, catalogsync.toml and environment variables
// Priority (highest to lowest):
// 1. Environment variables with CATALOGSYNC_ prefix (e.g., CATALOGSYNC_CHANNELS_TIENDA_TOKEN)
// 2. catalogsync.toml
// 3. Built-in defaults
func Load() (*Config, error) {
	return LoadFile("")
}

// LoadFile is Load with an explicit config file path. An empty path searches the
// working directory and /etc/catalogsync.
func LoadFile(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("error reading .env: %w", err)
	}

	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("catalogsync")
		v.SetConfigType("toml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/catalogsync")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) || path != "" {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	cfg := &Config{
		App: AppConfig{
			Name: v.GetString("app.name"),
			Env:  v.GetString("app.env"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		Database: DatabaseConfig{
			Driver:          v.GetString("database.driver"),
			Path:            v.GetString("database.path"),
			Host:            v.GetString("database.host"),
			Port:            v.GetInt("database.port"),
			User:            v.GetString("database.user"),
			Password:        v.GetString("database.password"),
			DBName:          v.GetString("database.dbname"),
			SSLMode:         v.GetString("database.sslmode"),
			MaxOpenConns:    v.GetInt("database.max_open_conns"),
			MaxIdleConns:    v.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: v.GetInt("database.conn_max_lifetime"),
			ConnMaxIdleTime: v.GetInt("database.conn_max_idle_time"),
			AutoMigrate:     v.GetBool("database.auto_migrate"),
		},
		Redis: RedisConfig{
			Enabled:   v.GetBool("redis.enabled"),
			Host:      v.GetString("redis.host"),
			Port:      v.GetInt("redis.port"),
			Password:  v.GetString("redis.password"),
			DB:        v.GetInt("redis.db"),
			KeyPrefix: v.GetString("redis.key_prefix"),
			TTL:       v.GetDuration("redis.ttl"),
		},
		ContentStore: ContentStoreConfig{
			BaseURL:  v.GetString("content_store.base_url"),
			Token:    v.GetString("content_store.token"),
			PageSize: v.GetInt("content_store.page_size"),
			Timeout:  v.GetDuration("content_store.timeout"),
		},
		Channels: loadChannels(v),
		Sync: SyncConfig{
			Concurrency: v.GetInt("sync.concurrency"),
			Limit:       v.GetInt("sync.limit"),
			Kinds:       listValue(v, "sync.kinds"),
			MetricsFile: v.GetString("sync.metrics_file"),
		},
		Retry: RetryConfig{
			MaxAttempts: v.GetInt("retry.max_attempts"),
			BackoffBase: v.GetDuration("retry.backoff_base"),
			Jitter:      v.GetDuration("retry.jitter"),
		},
		Scheduler: SchedulerConfig{
			Enabled:           v.GetBool("scheduler.enabled"),
			SyncInterval:      v.GetDuration("scheduler.sync_interval"),
			ReconcileInterval: v.GetDuration("scheduler.reconcile_interval"),
			JobTimeout:        v.GetDuration("scheduler.job_timeout"),
			RunOnStart:        v.GetBool("scheduler.run_on_start"),
		},
		HTTP: HTTPConfig{
			Addr:         v.GetString("http.addr"),
			ReadTimeout:  v.GetDuration("http.read_timeout"),
			WriteTimeout: v.GetDuration("http.write_timeout"),
		},
		Metrics: MetricsConfig{
			Namespace: v.GetString("metrics.namespace"),
		},
		Telemetry: TelemetryConfig{
			Enabled:           v.GetBool("telemetry.enabled"),
			CollectorEndpoint: v.GetString("telemetry.collector_endpoint"),
			SamplingRatio:     v.GetFloat64("telemetry.sampling_ratio"),
			ServiceName:       v.GetString("telemetry.service_name"),
			Insecure:          v.GetBool("telemetry.insecure"),
			MetricsEnabled:    v.GetBool("telemetry.metrics_enabled"),
			MetricsInterval:   v.GetDuration("telemetry.metrics_interval"),
			DBTraceEnabled:    v.GetBool("telemetry.db_trace_enabled"),
		},
	}

	if err := v.UnmarshalKey("memberships", &cfg.Memberships); err != nil {
		return nil, fmt.Errorf("error reading memberships: %w", err)
	}

	applyDefaults(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadChannels reads channels declared as [channels.<key>] tables and channels declared
// only through CATALOGSYNC_CHANNEL_KEYS
func loadChannels(v *viper.Viper) map[string]ChannelConfig {
	keys := make(map[string]struct{})
	for key := range v.GetStringMap("channels") {
		keys[strings.ToLower(key)] = struct{}{}
	}
	for _, key := range splitList(v.GetString("channel_keys")) {
		keys[strings.ToLower(key)] = struct{}{}
	}

	channels := make(map[string]ChannelConfig, len(keys))
	for key := range keys {
		p := "channels." + key + "."
		channels[key] = ChannelConfig{
			Key:                key,
			BaseURL:            v.GetString(p + "base_url"),
			Auth:               strings.ToLower(v.GetString(p + "auth")),
			APIKey:             v.GetString(p + "key"),
			Secret:             v.GetString(p + "secret"),
			Token:              v.GetString(p + "token"),
			Capabilities:       listValue(v, p+"capabilities"),
			Memberships:        listValue(v, p+"memberships"),
			Collections:        v.GetStringMapString(p + "collections"),
			CategoryAliases:    v.GetStringMapString(p + "category_aliases"),
			BrandFromPublisher: v.GetBool(p + "brand_from_publisher"),
			Timeout:            v.GetDuration(p + "timeout"),
			RateLimit:          v.GetFloat64(p + "rate_limit"),
		}
	}
	return channels
}

// listValue reads a list from TOML or a comma separated environment value
func listValue(v *viper.Viper, key string) []string {
	if raw, ok := v.Get(key).(string); ok {
		return splitList(raw)
	}
	return v.GetStringSlice(key)
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

// applyDefaults sets default values for any empty config fields
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "catalogsync"
	}
	if cfg.App.Env == "" {
		cfg.App.Env = "development"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}
	if cfg.Log.Output == "" {
		cfg.Log.Output = "stderr"
	}
	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "sqlite"
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = "catalogsync.db"
	}
	if cfg.Database.Host == "" {
		cfg.Database.Host = "localhost"
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.User == "" {
		cfg.Database.User = "postgres"
	}
	if cfg.Database.DBName == "" {
		cfg.Database.DBName = "catalogsync"
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 10
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 2
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = 60
	}
	if cfg.Database.ConnMaxIdleTime == 0 {
		cfg.Database.ConnMaxIdleTime = 30
	}
	if cfg.Redis.Host == "" {
		cfg.Redis.Host = "localhost"
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}
	if cfg.Redis.KeyPrefix == "" {
		cfg.Redis.KeyPrefix = "catalogsync:term:"
	}
	if cfg.Redis.TTL == 0 {
		cfg.Redis.TTL = 7 * 24 * time.Hour
	}
	if cfg.ContentStore.PageSize == 0 {
		cfg.ContentStore.PageSize = 100
	}
	if cfg.ContentStore.Timeout == 0 {
		cfg.ContentStore.Timeout = 30 * time.Second
	}
	if cfg.Sync.Concurrency == 0 {
		cfg.Sync.Concurrency = 4
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry.MaxAttempts = 4
	}
	if cfg.Retry.BackoffBase == 0 {
		cfg.Retry.BackoffBase = 500 * time.Millisecond
	}
	if cfg.Retry.Jitter == 0 {
		cfg.Retry.Jitter = 250 * time.Millisecond
	}
	if cfg.Scheduler.SyncInterval == 0 {
		cfg.Scheduler.SyncInterval = time.Hour
	}
	if cfg.Scheduler.ReconcileInterval == 0 {
		cfg.Scheduler.ReconcileInterval = 24 * time.Hour
	}
	if cfg.Scheduler.JobTimeout == 0 {
		cfg.Scheduler.JobTimeout = 30 * time.Minute
	}
	if cfg.HTTP.Addr == "" {
		cfg.HTTP.Addr = ":9090"
	}
	if cfg.HTTP.ReadTimeout == 0 {
		cfg.HTTP.ReadTimeout = 15 * time.Second
	}
	if cfg.HTTP.WriteTimeout == 0 {
		cfg.HTTP.WriteTimeout = 15 * time.Second
	}
	if cfg.Metrics.Namespace == "" {
		cfg.Metrics.Namespace = "catalogsync"
	}
	if cfg.Telemetry.CollectorEndpoint == "" {
		cfg.Telemetry.CollectorEndpoint = "localhost:4317"
	}
	if cfg.Telemetry.SamplingRatio == 0 {
		cfg.Telemetry.SamplingRatio = 1.0
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = "catalogsync"
	}
	if cfg.Telemetry.MetricsInterval == 0 {
		cfg.Telemetry.MetricsInterval = 30 * time.Second
	}
	for key, ch := range cfg.Channels {
		if ch.Auth == "" {
			ch.Auth = string(integration.AuthSchemeBasic)
		}
		if len(ch.Capabilities) == 0 {
			ch.Capabilities = []string{"attributes", "brands", "categories"}
		}
		if len(ch.Collections) == 0 {
			ch.Collections = make(map[string]string)
			for kind, col := range integration.DefaultStorefrontCollections() {
				ch.Collections[string(kind)] = col
			}
		}
		if ch.Timeout == 0 {
			ch.Timeout = 15 * time.Second
		}
		cfg.Channels[key] = ch
	}
}

// validate checks settings that apply to every run. Channel credentials are checked
// by ChannelsFor, only for the channels a run targets.
func (c *Config) validate() error {
	if c.Database.Driver != "sqlite" && c.Database.Driver != "postgres" {
		return integration.NewConfigurationError("", "database.driver", fmt.Sprintf("unsupported driver %q", c.Database.Driver))
	}
	if c.Database.MaxOpenConns <= 0 {
		return integration.NewConfigurationError("", "database.max_open_conns", "must be positive")
	}
	if c.Database.MaxIdleConns < 0 {
		return integration.NewConfigurationError("", "database.max_idle_conns", "cannot be negative")
	}
	if c.Database.MaxIdleConns > c.Database.MaxOpenConns {
		return integration.NewConfigurationError("", "database.max_idle_conns",
			fmt.Sprintf("(%d) cannot exceed database.max_open_conns (%d)", c.Database.MaxIdleConns, c.Database.MaxOpenConns))
	}
	if c.Retry.MaxAttempts < 3 || c.Retry.MaxAttempts > 5 {
		return integration.NewConfigurationError("", "retry.max_attempts", fmt.Sprintf("must be between 3 and 5, got %d", c.Retry.MaxAttempts))
	}
	if c.Sync.Concurrency < 1 || c.Sync.Concurrency > 32 {
		return integration.NewConfigurationError("", "sync.concurrency", fmt.Sprintf("must be between 1 and 32, got %d", c.Sync.Concurrency))
	}
	if c.Sync.Limit < 0 {
		return integration.NewConfigurationError("", "sync.limit", "cannot be negative")
	}
	if _, err := c.Kinds(); err != nil {
		return err
	}
	for key := range c.Channels {
		if !integration.ChannelKey(key).IsValid() {
			return integration.NewConfigurationError(integration.ChannelKey(key), "key", "must be lower-case alphanumeric")
		}
	}
	for i, rule := range c.Memberships {
		if strings.TrimSpace(rule.Tag) == "" {
			return integration.NewConfigurationError("", fmt.Sprintf("memberships[%d].tag", i), "is required")
		}
	}
	if c.Telemetry.SamplingRatio < 0.0 || c.Telemetry.SamplingRatio > 1.0 {
		return integration.NewConfigurationError("", "telemetry.sampling_ratio",
			fmt.Sprintf("must be between 0.0 and 1.0, got %f", c.Telemetry.SamplingRatio))
	}
	return nil
}

// Kinds returns the entity kinds a run syncs, in dependency order. Empty means all.
func (c *Config) Kinds() ([]integration.EntityKind, error) {
	if len(c.Sync.Kinds) == 0 {
		return integration.AllEntityKinds(), nil
	}
	wanted := make([]integration.EntityKind, 0, len(c.Sync.Kinds))
	for _, k := range c.Sync.Kinds {
		kind := integration.EntityKind(strings.ToLower(strings.TrimSpace(k)))
		if !kind.IsValid() {
			return nil, integration.NewConfigurationError("", "sync.kinds", fmt.Sprintf("unknown entity kind %q", k))
		}
		wanted = append(wanted, kind)
	}
	var kinds []integration.EntityKind
	for _, kind := range integration.AllEntityKinds() {
		if slices.Contains(wanted, kind) {
			kinds = append(kinds, kind)
		}
	}
	return kinds, nil
}

// ChannelKeys returns the configured channel keys, sorted
func (c *Config) ChannelKeys() []string {
	keys := make([]string, 0, len(c.Channels))
	for k := range c.Channels {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// ChannelsFor validates and returns the channels a run targets. An empty selection
// targets every configured channel. Missing or invalid settings of a targeted channel
// are a *integration.ConfigurationError; untargeted channels are not checked.
func (c *Config) ChannelsFor(keys []string) ([]integration.Channel, error) {
	if len(keys) == 0 {
		keys = c.ChannelKeys()
	}
	if len(keys) == 0 {
		return nil, integration.NewConfigurationError("", "channels", "no channel configured")
	}

	validate := validator.New(validator.WithRequiredStructEnabled())
	rules := c.MembershipRules()
	channels := make([]integration.Channel, 0, len(keys))
	for _, key := range keys {
		key = strings.ToLower(strings.TrimSpace(key))
		cc, ok := c.Channels[key]
		if !ok {
			return nil, integration.NewConfigurationError(integration.ChannelKey(key), "channel", "is not configured")
		}
		if err := validate.Struct(cc); err != nil {
			return nil, channelValidationError(key, err)
		}
		channels = append(channels, cc.toDomain(rules))
	}
	return channels, nil
}

// ValidateContentStore checks the content store settings
func (c *Config) ValidateContentStore() error {
	err := validator.New().Struct(c.ContentStore)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		return integration.NewConfigurationError("", "content_store."+fieldName(verrs[0].Field()), describeTag(verrs[0]))
	}
	return integration.NewConfigurationError("", "content_store", err.Error())
}

// MembershipRules converts the configured rules
func (c *Config) MembershipRules() []integration.MembershipRule {
	rules := make([]integration.MembershipRule, 0, len(c.Memberships))
	for _, r := range c.Memberships {
		rules = append(rules, integration.MembershipRule{
			Tag:            r.Tag,
			PublisherIDs:   r.PublisherIDs,
			PublisherNames: r.PublisherNames,
		})
	}
	return rules
}

func (cc ChannelConfig) toDomain(rules []integration.MembershipRule) integration.Channel {
	ch := integration.Channel{
		Key:     integration.ChannelKey(cc.Key),
		BaseURL: cc.BaseURL,
		Credentials: integration.Credentials{
			Scheme: integration.AuthScheme(cc.Auth),
			Key:    cc.APIKey,
			Secret: cc.Secret,
			Token:  cc.Token,
		},
		Capabilities: integration.Capabilities{
			Attributes: slices.Contains(cc.Capabilities, "attributes"),
			Brands:     slices.Contains(cc.Capabilities, "brands"),
			Categories: slices.Contains(cc.Capabilities, "categories"),
		},
		Memberships:        cc.Memberships,
		Collections:        make(map[integration.EntityKind]string, len(cc.Collections)),
		CategoryAliases:    make(map[string]string, len(cc.CategoryAliases)),
		BrandFromPublisher: cc.BrandFromPublisher,
		MembershipRules:    rules,
		Timeout:            cc.Timeout,
		RateLimit:          cc.RateLimit,
	}
	for kind, col := range cc.Collections {
		ch.Collections[integration.EntityKind(strings.ToLower(kind))] = col
	}
	for tag, alias := range cc.CategoryAliases {
		ch.CategoryAliases[integration.NormalizeKey(tag)] = alias
	}
	return ch
}

func channelValidationError(key string, err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		return integration.NewConfigurationError(integration.ChannelKey(key), fieldName(verrs[0].Field()), describeTag(verrs[0]))
	}
	return integration.NewConfigurationError(integration.ChannelKey(key), "channel", err.Error())
}

// fieldName maps a struct field to its configuration key
func fieldName(field string) string {
	switch field {
	case "BaseURL":
		return "base_url"
	case "APIKey":
		return "key"
	case "PageSize":
		return "page_size"
	case "RateLimit":
		return "rate_limit"
	default:
		return strings.ToLower(field)
	}
}

func describeTag(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required", "required_if":
		return "is required"
	case "url":
		return "must be an absolute URL"
	case "oneof":
		return fmt.Sprintf("must be one of: %s", fe.Param())
	default:
		return fmt.Sprintf("failed %s validation", fe.Tag())
	}
}

// DSN returns the postgres connection string with properly escaped values
func (d *DatabaseConfig) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(d.User, d.Password),
		Host:   fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:   d.DBName,
	}
	q := u.Query()
	q.Set("sslmode", d.SSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}

// Addr returns host:port of the redis server
func (r *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// IsProduction reports whether the app runs in production
func (a AppConfig) IsProduction() bool {
	return a.Env == "production"
}
