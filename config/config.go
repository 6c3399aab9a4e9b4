package config

import (
	"errors"
	"fmt"
	"net/netip"
	"os"
	"strconv"
	"strings"
	"time"
)

// Store drivers.
const (
	DriverFirestore = "firestore"
	DriverMemory    = "memory"
)

// Config holds all application configuration
type Config struct {
	Server    ServerConfig
	JWT       JWTConfig
	Firebase  FirebaseConfig
	Store     StoreConfig
	CORS      CORSConfig
	Proxy     ProxyConfig
	RateLimit RateLimitConfig
	Logging   LoggingConfig
	Location  LocationConfig
	Activity  ActivityConfig
	Stats     StatsConfig
}

type ServerConfig struct {
	Port            string
	Host            string
	Environment     string
	ShutdownTimeout time.Duration
}

type JWTConfig struct {
	Secret                 string
	Expiration             time.Duration
	RefreshTokenExpiration time.Duration
}

type FirebaseConfig struct {
	ProjectID       string
	CredentialsPath string
	StorageBucket   string
}

type StoreConfig struct {
	Driver   string
	PhotoDir string // memory driver only
}

type CORSConfig struct {
	AllowedOrigins []string
}

// ProxyConfig lists the proxies whose forwarding headers are believed.
// Entries are CIDRs or single addresses.
type ProxyConfig struct {
	TrustedProxies []string
}

type RateLimitConfig struct {
	Requests int
	Window   time.Duration
}

type LoggingConfig struct {
	Level  string
	Format string
}

type LocationConfig struct {
	GeocoderURL     string
	IPLocatorURL    string
	UserAgent       string
	GeocoderTimeout time.Duration
	IPTimeout       time.Duration
	GeocoderRate    float64
	IPAccuracy      float64
}

type ActivityConfig struct {
	QueueSize    int
	Workers      int
	MaxAttempts  int
	RetryBackoff time.Duration
	WriteTimeout time.Duration
}

type StatsConfig struct {
	WindowDays int
	TopN       int
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            getEnv("PORT", "8080"),
			Host:            getEnv("HOST", "0.0.0.0"),
			Environment:     getEnv("ENVIRONMENT", "development"),
			ShutdownTimeout: parseDuration(getEnv("SHUTDOWN_TIMEOUT", "15s"), 15*time.Second),
		},
		JWT: JWTConfig{
			Secret:                 getEnv("JWT_SECRET", "dev-secret-key"),
			Expiration:             parseDuration(getEnv("JWT_EXPIRATION", "30m"), 30*time.Minute),
			RefreshTokenExpiration: parseDuration(getEnv("REFRESH_TOKEN_EXPIRATION", "7d"), 7*24*time.Hour),
		},
		Firebase: FirebaseConfig{
			ProjectID:       getEnv("FIREBASE_PROJECT_ID", ""),
			CredentialsPath: getEnv("FIREBASE_CREDENTIALS_PATH", "./serviceAccountKey.json"),
			StorageBucket:   getEnv("FIREBASE_STORAGE_BUCKET", ""),
		},
		Store: StoreConfig{
			Driver:   strings.ToLower(getEnv("STORE_DRIVER", DriverFirestore)),
			PhotoDir: getEnv("PHOTO_DIR", "./data/photos"),
		},
		CORS: CORSConfig{
			AllowedOrigins: parseStringSlice(getEnv("ALLOWED_ORIGINS", "http://localhost:5173")),
		},
		Proxy: ProxyConfig{
			TrustedProxies: parseStringSlice(getEnv("TRUSTED_PROXIES", "")),
		},
		RateLimit: RateLimitConfig{
			Requests: parseInt(getEnv("RATE_LIMIT_REQUESTS", "100"), 100),
			Window:   parseDuration(getEnv("RATE_LIMIT_WINDOW", "60"), 60*time.Second),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		Location: LocationConfig{
			GeocoderURL:     getEnv("GEOCODER_URL", "https://nominatim.openstreetmap.org"),
			IPLocatorURL:    getEnv("IP_LOCATOR_URL", "https://ipapi.co"),
			UserAgent:       getEnv("LOCATION_USER_AGENT", "guardpost/1.0"),
			GeocoderTimeout: parseDuration(getEnv("GEOCODER_TIMEOUT", "5s"), 5*time.Second),
			IPTimeout:       parseDuration(getEnv("IP_LOCATOR_TIMEOUT", "5s"), 5*time.Second),
			GeocoderRate:    parseFloat(getEnv("GEOCODER_RATE", "1"), 1),
			IPAccuracy:      parseFloat(getEnv("IP_LOCATION_ACCURACY", "50000"), 50000),
		},
		Activity: ActivityConfig{
			QueueSize:    parseInt(getEnv("ACTIVITY_QUEUE_SIZE", "256"), 256),
			Workers:      parseInt(getEnv("ACTIVITY_WORKERS", "2"), 2),
			MaxAttempts:  parseInt(getEnv("ACTIVITY_MAX_ATTEMPTS", "3"), 3),
			RetryBackoff: parseDuration(getEnv("ACTIVITY_RETRY_BACKOFF", "200ms"), 200*time.Millisecond),
			WriteTimeout: parseDuration(getEnv("ACTIVITY_WRITE_TIMEOUT", "5s"), 5*time.Second),
		},
		Stats: StatsConfig{
			WindowDays: parseInt(getEnv("STATS_WINDOW_DAYS", "30"), 30),
			TopN:       parseInt(getEnv("STATS_TOP_N", "5"), 5),
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseInt(s string, defaultValue int) int {
	if i, err := strconv.Atoi(s); err == nil {
		return i
	}
	return defaultValue
}

func parseFloat(s string, defaultValue float64) float64 {
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return defaultValue
}

// parseDuration accepts Go durations, a day suffix ("7d") or bare seconds ("60").
func parseDuration(s string, defaultValue time.Duration) time.Duration {
	if d, err := time.ParseDuration(s); err == nil {
		return d
	}
	if days, ok := strings.CutSuffix(s, "d"); ok {
		if i, err := strconv.Atoi(days); err == nil {
			return time.Duration(i) * 24 * time.Hour
		}
	}
	if i, err := strconv.Atoi(s); err == nil {
		return time.Duration(i) * time.Second
	}
	return defaultValue
}

func parseStringSlice(s string) []string {
	result := []string{}
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			result = append(result, part)
		}
	}
	return result
}

// TrustedProxyPrefixes parses Proxy.TrustedProxies. A bare address becomes a
// single-host prefix.
func (c *Config) TrustedProxyPrefixes() ([]netip.Prefix, error) {
	prefixes := make([]netip.Prefix, 0, len(c.Proxy.TrustedProxies))
	for _, entry := range c.Proxy.TrustedProxies {
		if strings.Contains(entry, "/") {
			p, err := netip.ParsePrefix(entry)
			if err != nil {
				return nil, fmt.Errorf("invalid TRUSTED_PROXIES entry %q: %w", entry, err)
			}
			prefixes = append(prefixes, p.Masked())
			continue
		}
		addr, err := netip.ParseAddr(entry)
		if err != nil {
			return nil, fmt.Errorf("invalid TRUSTED_PROXIES entry %q: %w", entry, err)
		}
		addr = addr.Unmap()
		prefixes = append(prefixes, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return prefixes, nil
}

func (c *Config) IsProduction() bool {
	return c.Server.Environment == "production"
}

func (c *Config) IsDevelopment() bool {
	return c.Server.Environment == "development"
}

// Validate reports every configuration problem at once.
func (c *Config) Validate() error {
	var errs []error
	if c.JWT.Secret == "dev-secret-key" && c.IsProduction() {
		errs = append(errs, errors.New("JWT_SECRET must be set in production"))
	}
	switch c.Store.Driver {
	case DriverFirestore:
		if c.Firebase.ProjectID == "" {
			errs = append(errs, errors.New("FIREBASE_PROJECT_ID must be set"))
		}
		if _, err := os.Stat(c.Firebase.CredentialsPath); os.IsNotExist(err) {
			errs = append(errs, fmt.Errorf("firebase credentials file not found: %s", c.Firebase.CredentialsPath))
		}
	case DriverMemory:
		if c.IsProduction() {
			errs = append(errs, errors.New("memory store driver is not allowed in production"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown STORE_DRIVER %q", c.Store.Driver))
	}
	if _, err := c.TrustedProxyPrefixes(); err != nil {
		errs = append(errs, err)
	}
	if c.RateLimit.Requests <= 0 || c.RateLimit.Window <= 0 {
		errs = append(errs, errors.New("rate limit requests and window must be positive"))
	}
	if c.Location.GeocoderRate <= 0 {
		errs = append(errs, errors.New("GEOCODER_RATE must be positive"))
	}
	if c.Activity.QueueSize <= 0 || c.Activity.MaxAttempts <= 0 {
		errs = append(errs, errors.New("activity queue size and max attempts must be positive"))
	}
	return errors.Join(errs...)
}
