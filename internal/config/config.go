// Package config provides configuration management for the gateway.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"tenant-gateway/internal/tier"

	"github.com/spf13/viper"
)

// Backends do contador de janelas.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// Fontes do tier.
const (
	SourceCatalog = "catalog"
	SourceHTTP    = "http"
)

// Config holds all configuration for the gateway.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Upstream    UpstreamConfig    `mapstructure:"upstream"`
	Tenant      TenantConfig      `mapstructure:"tenant"`
	Auth        AuthConfig        `mapstructure:"auth"`
	RateLimit   RateLimitConfig   `mapstructure:"rate_limit"`
	Concurrency ConcurrencyConfig `mapstructure:"concurrency"`
	Tier        TierConfig        `mapstructure:"tier"`
	Redis       RedisConfig       `mapstructure:"redis"`
	Stats       StatsConfig       `mapstructure:"stats"`
	Metrics     MetricsConfig     `mapstructure:"metrics"`
	Logging     LoggingConfig     `mapstructure:"logging"`
	Scheduler   SchedulerConfig   `mapstructure:"scheduler"`
	Routes      []RouteConfig     `mapstructure:"routes"`
}

type ServerConfig struct {
	ListenAddr        string        `mapstructure:"listen_addr"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout"`
	ReadTimeout       time.Duration `mapstructure:"read_timeout"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout"`
	IdleTimeout       time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout"`
}

type UpstreamConfig struct {
	URL string `mapstructure:"url"`
}

type TenantConfig struct {
	Header          string `mapstructure:"header"`
	QueryParam      string `mapstructure:"query_param"`
	Default         string `mapstructure:"default"`
	RequireExplicit bool   `mapstructure:"require_explicit"`
	EchoHeader      bool   `mapstructure:"echo_header"`
}

// AuthConfig: sem jwt_secret a autenticação fica desligada.
type AuthConfig struct {
	JWTSecret string        `mapstructure:"jwt_secret"`
	Issuer    string        `mapstructure:"issuer"`
	Leeway    time.Duration `mapstructure:"leeway"`
}

type RateLimitConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	Backend     string        `mapstructure:"backend"`
	MaxTenants  int           `mapstructure:"max_tenants"`
	Window      time.Duration `mapstructure:"window"`
	RetryAfter  time.Duration `mapstructure:"retry_after"`
	AddHeaders  bool          `mapstructure:"add_headers"`
	RedisPrefix string        `mapstructure:"redis_prefix"`
}

type ConcurrencyConfig struct {
	Max            int           `mapstructure:"max"`
	AcquireTimeout time.Duration `mapstructure:"acquire_timeout"`
}

type TierConfig struct {
	Source        string `mapstructure:"source"`
	CatalogPath   string `mapstructure:"catalog_path"`
	FailurePolicy string `mapstructure:"failure_policy"`

	PostgresDSN      string `mapstructure:"postgres_dsn"`
	PostgresMaxConns int32  `mapstructure:"postgres_max_conns"`

	ServiceURL   string        `mapstructure:"service_url"`
	ServiceToken string        `mapstructure:"service_token"`
	Timeout      time.Duration `mapstructure:"timeout"`
	CallRate     float64       `mapstructure:"call_rate"`
	CallBurst    int           `mapstructure:"call_burst"`

	CacheTTL  time.Duration `mapstructure:"cache_ttl"`
	CacheSize int           `mapstructure:"cache_size"`
}

// RedisConfig é compartilhado pelo contador distribuído e pelas estatísticas.
// Mais de um endereço ativa o modo cluster.
type RedisConfig struct {
	Addrs    []string `mapstructure:"addrs"`
	Password string   `mapstructure:"password"`
	DB       int      `mapstructure:"db"`
}

type StatsConfig struct {
	Memory       bool          `mapstructure:"memory"`
	Redis        bool          `mapstructure:"redis"`
	RedisPrefix  string        `mapstructure:"redis_prefix"`
	TTL          time.Duration `mapstructure:"ttl"`
	Bucket       string        `mapstructure:"bucket"`
	TrackTenants bool          `mapstructure:"track_tenants"`
}

type MetricsConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	ListenAddr string `mapstructure:"listen_addr"`
	Path       string `mapstructure:"path"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// SchedulerConfig guarda as expressões cron dos jobs embutidos; vazio desliga o job.
type SchedulerConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	WindowSweep    string `mapstructure:"window_sweep"`
	TierCachePurge string `mapstructure:"tier_cache_purge"`
	UsageReport    string `mapstructure:"usage_report"`
}

// RouteConfig é uma entrada da tabela de rotas do gateway.
type RouteConfig struct {
	Name       string   `mapstructure:"name"`
	Method     string   `mapstructure:"method"`
	Path       string   `mapstructure:"path"`
	PathPrefix string   `mapstructure:"path_prefix"`
	Feature    string   `mapstructure:"feature"`
	Category   string   `mapstructure:"category"`
	Roles      []string `mapstructure:"roles"`
}

// Load reads configuration from file and environment variables
// (prefix GATEWAY_, e.g. GATEWAY_SERVER_LISTEN_ADDR).
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("gateway")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/tenant-gateway/")
	}

	v.SetEnvPrefix("GATEWAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.listen_addr", ":8080")
	v.SetDefault("server.read_header_timeout", "10s")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.idle_timeout", "90s")
	v.SetDefault("server.shutdown_timeout", "10s")

	v.SetDefault("upstream.url", "")

	v.SetDefault("tenant.header", "X-Tenant-Id")
	v.SetDefault("tenant.query_param", "tenantId")
	v.SetDefault("tenant.default", "default")
	v.SetDefault("tenant.require_explicit", false)
	v.SetDefault("tenant.echo_header", true)

	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.issuer", "")
	v.SetDefault("auth.leeway", "0s")

	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.backend", BackendMemory)
	v.SetDefault("rate_limit.max_tenants", 10000)
	v.SetDefault("rate_limit.window", "1m")
	v.SetDefault("rate_limit.retry_after", "60s")
	v.SetDefault("rate_limit.add_headers", false)
	v.SetDefault("rate_limit.redis_prefix", "ratelimit:window")

	v.SetDefault("concurrency.max", 100)
	v.SetDefault("concurrency.acquire_timeout", "0s")

	v.SetDefault("tier.source", SourceCatalog)
	v.SetDefault("tier.catalog_path", "tiers.yaml")
	v.SetDefault("tier.failure_policy", string(tier.PolicyClosed))
	v.SetDefault("tier.postgres_dsn", "")
	v.SetDefault("tier.postgres_max_conns", 10)
	v.SetDefault("tier.service_url", "")
	v.SetDefault("tier.service_token", "")
	v.SetDefault("tier.timeout", "2s")
	v.SetDefault("tier.call_rate", 50.0)
	v.SetDefault("tier.call_burst", 10)
	v.SetDefault("tier.cache_ttl", "30s")
	v.SetDefault("tier.cache_size", 10000)

	v.SetDefault("redis.addrs", []string{})
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("stats.memory", true)
	v.SetDefault("stats.redis", false)
	v.SetDefault("stats.redis_prefix", "ratelimit:stats")
	v.SetDefault("stats.ttl", "24h")
	v.SetDefault("stats.bucket", "minute")
	v.SetDefault("stats.track_tenants", true)

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.listen_addr", ":9090")
	v.SetDefault("metrics.path", "/metrics")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("scheduler.enabled", true)
	v.SetDefault("scheduler.window_sweep", "@every 1m")
	v.SetDefault("scheduler.tier_cache_purge", "@every 5m")
	v.SetDefault("scheduler.usage_report", "@every 5m")
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Server.ListenAddr) == "" {
		return errors.New("server listen_addr is required")
	}
	if c.Upstream.URL != "" {
		if u, err := url.Parse(c.Upstream.URL); err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("invalid upstream url %q", c.Upstream.URL)
		}
	}

	if strings.TrimSpace(c.Tenant.Header) == "" && strings.TrimSpace(c.Tenant.QueryParam) == "" {
		return errors.New("tenant header or query_param is required")
	}
	if !c.Tenant.RequireExplicit && strings.TrimSpace(c.Tenant.Default) == "" {
		return errors.New("tenant default is required unless require_explicit is set")
	}

	if c.RateLimit.Enabled {
		switch c.RateLimit.Backend {
		case BackendMemory:
			if c.RateLimit.MaxTenants <= 0 {
				return fmt.Errorf("rate_limit max_tenants must be positive")
			}
		case BackendRedis:
			if len(c.Redis.Addrs) == 0 {
				return errors.New("redis addrs are required for the redis rate_limit backend")
			}
		default:
			return fmt.Errorf("invalid rate_limit backend %q", c.RateLimit.Backend)
		}
		if c.RateLimit.Window <= 0 {
			return errors.New("rate_limit window must be positive")
		}
		if c.RateLimit.RetryAfter < 0 {
			return errors.New("rate_limit retry_after must not be negative")
		}
	}

	if c.Concurrency.Max < 0 {
		return errors.New("concurrency max must be >= 0")
	}

	if _, err := tier.ParseFailurePolicy(c.Tier.FailurePolicy); err != nil {
		return err
	}
	switch c.Tier.Source {
	case SourceCatalog:
		if c.Tier.CatalogPath == "" {
			return errors.New("tier catalog_path is required for the catalog source")
		}
	case SourceHTTP:
		if c.Tier.ServiceURL == "" {
			return errors.New("tier service_url is required for the http source")
		}
	default:
		return fmt.Errorf("invalid tier source %q", c.Tier.Source)
	}

	if c.Stats.Redis && len(c.Redis.Addrs) == 0 {
		return errors.New("redis addrs are required for redis stats")
	}

	if c.Metrics.Enabled && c.Metrics.ListenAddr == "" {
		return errors.New("metrics listen_addr is required")
	}

	seen := make(map[string]bool, len(c.Routes))
	for i, r := range c.Routes {
		if r.Name == "" {
			return fmt.Errorf("route at index %d has empty name", i)
		}
		if seen[r.Name] {
			return fmt.Errorf("duplicate route name %q", r.Name)
		}
		seen[r.Name] = true
		if (r.Path == "") == (r.PathPrefix == "") {
			return fmt.Errorf("route %q must set exactly one of path or path_prefix", r.Name)
		}
	}
	return nil
}

// FailOpen traduz tier.failure_policy; Validate garante que o valor é válido.
func (c *Config) FailOpen() bool {
	p, _ := tier.ParseFailurePolicy(c.Tier.FailurePolicy)
	return p.FailOpen()
}
