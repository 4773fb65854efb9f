package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/starlingpost/starlingpost/internal/domain/social"
)

type Config struct {
	App struct {
		// dev | staging | prod
		Env     string `yaml:"env"`
		Version string `yaml:"version"`
	} `yaml:"app"`

	Server struct {
		Addr               string        `yaml:"addr"`
		ReadTimeout        time.Duration `yaml:"read_timeout"`
		WriteTimeout       time.Duration `yaml:"write_timeout"`
		IdleTimeout        time.Duration `yaml:"idle_timeout"`
		ShutdownTimeout    time.Duration `yaml:"shutdown_timeout"`
		CORSAllowedOrigins []string      `yaml:"cors_allowed_origins"`
	} `yaml:"server"`

	Log struct {
		Level string `yaml:"level"`
	} `yaml:"log"`

	Store struct {
		// memory | postgres | sqlite
		Driver   string `yaml:"driver"`
		DSN      string `yaml:"dsn"`
		MaxConns int    `yaml:"max_conns"`
		Migrate  bool   `yaml:"migrate"`
	} `yaml:"store"`

	Cache struct {
		// memory | redis
		Driver   string `yaml:"driver"`
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		Prefix   string `yaml:"prefix"`
	} `yaml:"cache"`

	Linking struct {
		StateTTL        time.Duration `yaml:"state_ttl"`
		ExchangeTimeout time.Duration `yaml:"exchange_timeout"`
		// DashboardURL recibe los redirects del callback (?linked= / ?link_error=).
		DashboardURL string `yaml:"dashboard_url"`
	} `yaml:"linking"`

	Sync struct {
		FetchTimeout   time.Duration `yaml:"fetch_timeout"`
		RefreshTimeout time.Duration `yaml:"refresh_timeout"`
		Concurrency    int           `yaml:"concurrency"`
	} `yaml:"sync"`

	// Platforms por nombre (youtube, instagram, ...).
	Platforms map[string]PlatformConfig `yaml:"platforms"`

	Security struct {
		// MasterKey (base64 o hex, 32 bytes) cifra los tokens guardados.
		MasterKey string `yaml:"master_key"`
	} `yaml:"security"`

	Identity struct {
		JWTSecret    string `yaml:"jwt_secret"`
		JWTPublicKey string `yaml:"jwt_public_key"`
		Issuer       string `yaml:"issuer"`
		Audience     string `yaml:"audience"`
	} `yaml:"identity"`

	Admin struct {
		// SetupSecret habilita POST /admin/setup. Vacío = deshabilitado.
		SetupSecret string `yaml:"setup_secret"`
	} `yaml:"admin"`

	SMTP struct {
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		From     string `yaml:"from"`
		Username string `yaml:"username"`
		Password string `yaml:"password"`
		TLSMode  string `yaml:"tls_mode"`
	} `yaml:"smtp"`

	Rate struct {
		Enabled bool `yaml:"enabled"`
		// local | redis
		Driver   string        `yaml:"driver"`
		Requests int           `yaml:"requests"`
		Window   time.Duration `yaml:"window"`
		Burst    int           `yaml:"burst"`
	} `yaml:"rate"`
}

// PlatformConfig credenciales de la app registrada en cada plataforma.
type PlatformConfig struct {
	ClientID      string  `yaml:"client_id"`
	ClientSecret  string  `yaml:"client_secret"`
	RedirectURI   string  `yaml:"redirect_uri"`
	RatePerSecond float64 `yaml:"rate_per_second"`
	Burst         int     `yaml:"burst"`
}

// Load lee el YAML de path (opcional, "" = solo env), aplica env y defaults.
func Load(path string) (*Config, error) {
	var c Config
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(b, &c); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	c.applyEnvOverrides()
	c.applyDefaults()
	return &c, nil
}

func (c *Config) applyDefaults() {
	if c.App.Env == "" {
		c.App.Env = "dev"
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 15 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 30 * time.Second
	}
	if c.Server.IdleTimeout == 0 {
		c.Server.IdleTimeout = 60 * time.Second
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 15 * time.Second
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Store.Driver == "" {
		c.Store.Driver = "memory"
	}
	if c.Cache.Driver == "" {
		c.Cache.Driver = "memory"
	}
	if c.Cache.Port == 0 {
		c.Cache.Port = 6379
	}
	if c.Cache.Prefix == "" {
		c.Cache.Prefix = "starling"
	}
	if c.Linking.StateTTL == 0 {
		c.Linking.StateTTL = 10 * time.Minute
	}
	if c.Linking.ExchangeTimeout == 0 {
		c.Linking.ExchangeTimeout = 10 * time.Second
	}
	if c.Sync.FetchTimeout == 0 {
		c.Sync.FetchTimeout = 5 * time.Second
	}
	if c.Sync.RefreshTimeout == 0 {
		c.Sync.RefreshTimeout = 10 * time.Second
	}
	if c.Sync.Concurrency == 0 {
		c.Sync.Concurrency = 4
	}
	if c.SMTP.Port == 0 {
		c.SMTP.Port = 587
	}
	if c.Rate.Driver == "" {
		c.Rate.Driver = "local"
	}
	if c.Rate.Requests == 0 {
		c.Rate.Requests = 60
	}
	if c.Rate.Window == 0 {
		c.Rate.Window = time.Minute
	}
}

func getEnvStr(key string) (string, bool) {
	v := os.Getenv(key)
	return v, v != ""
}
func getEnvInt(key string) (int, bool) {
	if s, ok := getEnvStr(key); ok {
		if i, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
			return i, true
		}
	}
	return 0, false
}
func getEnvFloat(key string) (float64, bool) {
	if s, ok := getEnvStr(key); ok {
		if f, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
			return f, true
		}
	}
	return 0, false
}
func getEnvBool(key string) (bool, bool) {
	if s, ok := getEnvStr(key); ok {
		if b, err := strconv.ParseBool(strings.TrimSpace(s)); err == nil {
			return b, true
		}
	}
	return false, false
}
func getEnvDur(key string) (time.Duration, bool) {
	if s, ok := getEnvStr(key); ok {
		if d, err := time.ParseDuration(strings.TrimSpace(s)); err == nil {
			return d, true
		}
	}
	return 0, false
}
func getEnvCSV(key string) ([]string, bool) {
	if s, ok := getEnvStr(key); ok {
		parts := strings.Split(s, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				out = append(out, p)
			}
		}
		return out, true
	}
	return nil, false
}

func setStr(dst *string, keys ...string) {
	for _, k := range keys {
		if v, ok := getEnvStr(k); ok {
			*dst = v
			return
		}
	}
}
func setInt(dst *int, key string) {
	if v, ok := getEnvInt(key); ok {
		*dst = v
	}
}
func setBool(dst *bool, key string) {
	if v, ok := getEnvBool(key); ok {
		*dst = v
	}
}
func setDur(dst *time.Duration, key string) {
	if v, ok := getEnvDur(key); ok {
		*dst = v
	}
}

func (c *Config) applyEnvOverrides() {
	setStr(&c.App.Env, "APP_ENV")
	setStr(&c.App.Version, "APP_VERSION")

	setStr(&c.Server.Addr, "SERVER_ADDR")
	setDur(&c.Server.ReadTimeout, "SERVER_READ_TIMEOUT")
	setDur(&c.Server.WriteTimeout, "SERVER_WRITE_TIMEOUT")
	setDur(&c.Server.ShutdownTimeout, "SERVER_SHUTDOWN_TIMEOUT")
	if v, ok := getEnvCSV("CORS_ALLOWED_ORIGINS"); ok {
		c.Server.CORSAllowedOrigins = v
	}

	setStr(&c.Log.Level, "LOG_LEVEL")

	setStr(&c.Store.Driver, "STORE_DRIVER")
	setStr(&c.Store.DSN, "STORE_DSN", "DATABASE_URL")
	setInt(&c.Store.MaxConns, "STORE_MAX_CONNS")
	setBool(&c.Store.Migrate, "STORE_MIGRATE")

	setStr(&c.Cache.Driver, "CACHE_DRIVER")
	setStr(&c.Cache.Host, "REDIS_HOST")
	setInt(&c.Cache.Port, "REDIS_PORT")
	setStr(&c.Cache.Password, "REDIS_PASSWORD")
	setInt(&c.Cache.DB, "REDIS_DB")
	setStr(&c.Cache.Prefix, "CACHE_PREFIX")

	setDur(&c.Linking.StateTTL, "LINK_STATE_TTL")
	setDur(&c.Linking.ExchangeTimeout, "LINK_EXCHANGE_TIMEOUT")
	setStr(&c.Linking.DashboardURL, "DASHBOARD_URL")

	setDur(&c.Sync.FetchTimeout, "SYNC_FETCH_TIMEOUT")
	setDur(&c.Sync.RefreshTimeout, "SYNC_REFRESH_TIMEOUT")
	setInt(&c.Sync.Concurrency, "SYNC_CONCURRENCY")

	// <PLATFORM>_CLIENT_ID / _CLIENT_SECRET / _REDIRECT_URI
	if c.Platforms == nil {
		c.Platforms = map[string]PlatformConfig{}
	}
	for _, p := range social.AllPlatforms {
		pre := p.EnvPrefix()
		pc := c.Platforms[string(p)]
		setStr(&pc.ClientID, pre+"_CLIENT_ID")
		setStr(&pc.ClientSecret, pre+"_CLIENT_SECRET")
		setStr(&pc.RedirectURI, pre+"_REDIRECT_URI")
		if v, ok := getEnvFloat(pre + "_RATE_PER_SECOND"); ok {
			pc.RatePerSecond = v
		}
		setInt(&pc.Burst, pre+"_RATE_BURST")
		if pc != (PlatformConfig{}) {
			c.Platforms[string(p)] = pc
		}
	}

	setStr(&c.Security.MasterKey, "MASTER_KEY")

	setStr(&c.Identity.JWTSecret, "IDP_JWT_SECRET")
	setStr(&c.Identity.JWTPublicKey, "IDP_JWT_PUBLIC_KEY")
	setStr(&c.Identity.Issuer, "IDP_ISSUER")
	setStr(&c.Identity.Audience, "IDP_AUDIENCE")

	setStr(&c.Admin.SetupSecret, "ADMIN_SETUP_SECRET")

	setStr(&c.SMTP.Host, "SMTP_HOST")
	setInt(&c.SMTP.Port, "SMTP_PORT")
	setStr(&c.SMTP.From, "SMTP_FROM")
	setStr(&c.SMTP.Username, "SMTP_USERNAME")
	setStr(&c.SMTP.Password, "SMTP_PASSWORD")
	setStr(&c.SMTP.TLSMode, "SMTP_TLS_MODE")

	setBool(&c.Rate.Enabled, "RATE_ENABLED")
	setStr(&c.Rate.Driver, "RATE_DRIVER")
	setInt(&c.Rate.Requests, "RATE_REQUESTS")
	setDur(&c.Rate.Window, "RATE_WINDOW")
	setInt(&c.Rate.Burst, "RATE_BURST")
}

// Platform retorna la config de p (vacía si no hay).
func (c *Config) Platform(p social.Platform) PlatformConfig {
	return c.Platforms[string(p)]
}

// IsProd reporta APP_ENV=prod.
func (c *Config) IsProd() bool { return strings.EqualFold(c.App.Env, "prod") }

// Validate chequea combinaciones inválidas. Devuelve todos los errores juntos.
func (c *Config) Validate() error {
	var errs []error
	switch c.Store.Driver {
	case "memory", "postgres", "sqlite":
	default:
		errs = append(errs, fmt.Errorf("store.driver %q not supported", c.Store.Driver))
	}
	if c.Store.Driver == "postgres" && c.Store.DSN == "" {
		errs = append(errs, errors.New("store.dsn required for postgres"))
	}
	switch c.Cache.Driver {
	case "memory":
	case "redis":
		if c.Cache.Host == "" {
			errs = append(errs, errors.New("cache.host required for redis"))
		}
	default:
		errs = append(errs, fmt.Errorf("cache.driver %q not supported", c.Cache.Driver))
	}
	if c.Rate.Driver != "local" && c.Rate.Driver != "redis" {
		errs = append(errs, fmt.Errorf("rate.driver %q not supported", c.Rate.Driver))
	}
	if c.Rate.Enabled && c.Rate.Driver == "redis" && c.Cache.Driver != "redis" {
		errs = append(errs, errors.New("rate.driver redis requires cache.driver redis"))
	}
	for name := range c.Platforms {
		if _, err := social.ParsePlatform(name); err != nil {
			errs = append(errs, fmt.Errorf("platforms.%s: unknown platform", name))
		}
	}
	if c.Identity.JWTSecret == "" && c.Identity.JWTPublicKey == "" {
		errs = append(errs, errors.New("identity: IDP_JWT_SECRET or IDP_JWT_PUBLIC_KEY required"))
	}
	if c.IsProd() {
		if c.Security.MasterKey == "" {
			errs = append(errs, errors.New("security.master_key required in prod"))
		}
		if c.Store.Driver == "memory" {
			errs = append(errs, errors.New("store.driver memory not allowed in prod"))
		}
		if c.Linking.DashboardURL == "" {
			errs = append(errs, errors.New("linking.dashboard_url required in prod"))
		}
	}
	if c.Linking.StateTTL <= 0 {
		errs = append(errs, errors.New("linking.state_ttl must be > 0"))
	}
	return errors.Join(errs...)
}
